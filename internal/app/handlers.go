package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/handlers"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/sse"
)

type Handlers struct {
	Jobs   *handlers.JobsHandler
	SSE    *handlers.SSEHandler
	Health *handlers.HealthHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, s Services, hub *sse.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Jobs:   handlers.NewJobsHandler(s.Jobs),
		SSE:    handlers.NewSSEHandler(hub),
		Health: handlers.NewHealthHandler(db, s.Bus, s.Ollama),
	}
}
