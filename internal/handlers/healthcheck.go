package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/clients/ollama"
	"github.com/yungbote/organizer-backend/internal/clients/redis"
)

type HealthHandler struct {
	db     *gorm.DB
	bus    redis.JobBus
	ollama ollama.Client
}

func NewHealthHandler(db *gorm.DB, bus redis.JobBus, llm ollama.Client) *HealthHandler {
	return &HealthHandler{db: db, bus: bus, ollama: llm}
}

// GET /healthcheck
// Database trouble makes the service unusable and returns 503; a degraded
// redis or ollama dependency is reported but does not fail the check.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	checks := gin.H{}

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = err.Error()
		status = http.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = err.Error()
		status = http.StatusServiceUnavailable
	}
	checks["database"] = dbStatus

	busStatus := "ok"
	if h.bus == nil {
		busStatus = "disabled"
	} else if err := h.bus.Ping(ctx); err != nil {
		busStatus = err.Error()
	}
	checks["redis"] = busStatus

	llmStatus := "ok"
	if h.ollama == nil {
		llmStatus = "disabled"
	} else if err := h.ollama.Healthy(ctx); err != nil {
		llmStatus = err.Error()
	}
	checks["ollama"] = llmStatus

	c.JSON(status, gin.H{
		"status": http.StatusText(status),
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": checks,
	})
}
