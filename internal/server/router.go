package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/organizer-backend/internal/handlers"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/middleware"
	"github.com/yungbote/organizer-backend/internal/utils"
)

type RouterConfig struct {
	Log     *logger.Logger
	Jobs    *handlers.JobsHandler
	SSE     *handlers.SSEHandler
	Health  *handlers.HealthHandler
	GinMode string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.Log != nil {
		router.Use(middleware.RequestLogger(cfg.Log))
	}
	router.Use(otelgin.Middleware("organizer-backend"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(cfg.Log),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.Health.Check)

	api := router.Group("/api")
	{
		api.POST("/jobs", cfg.Jobs.Submit)
		api.GET("/jobs", cfg.Jobs.List)
		api.GET("/jobs/:id", cfg.Jobs.Get)
		api.GET("/jobs/:id/report", cfg.Jobs.Report)
		api.GET("/jobs/:id/events", cfg.SSE.JobEvents)
		api.GET("/jobs/:id/download", cfg.Jobs.Download)
		api.POST("/jobs/:id/approve", cfg.Jobs.Approve)
		api.POST("/jobs/:id/cancel", cfg.Jobs.Cancel)
		api.POST("/jobs/:id/rollback", cfg.Jobs.Rollback)
	}

	return router
}

func corsOrigins(log *logger.Logger) []string {
	raw := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173", log)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
