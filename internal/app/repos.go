package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/repos"
)

type Repos struct {
	Jobs      repos.JobRepo
	Items     repos.DocumentItemRepo
	Dups      repos.DuplicateRepo
	Versions  repos.VersionRepo
	Plans     repos.PlanRepo
	Shortcuts repos.ShortcutRepo
	ExecLog   repos.ExecutionLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Jobs:      repos.NewJobRepo(db, log),
		Items:     repos.NewDocumentItemRepo(db, log),
		Dups:      repos.NewDuplicateRepo(db, log),
		Versions:  repos.NewVersionRepo(db, log),
		Plans:     repos.NewPlanRepo(db, log),
		Shortcuts: repos.NewShortcutRepo(db, log),
		ExecLog:   repos.NewExecutionLogRepo(db, log),
	}
}
