package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/archive"
	"github.com/yungbote/organizer-backend/internal/clients/claude"
	"github.com/yungbote/organizer-backend/internal/clients/ollama"
	"github.com/yungbote/organizer-backend/internal/clients/redis"
	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/extract"
	"github.com/yungbote/organizer-backend/internal/jobs"
	"github.com/yungbote/organizer-backend/internal/jobs/runtime"
	"github.com/yungbote/organizer-backend/internal/jobs/worker"
	"github.com/yungbote/organizer-backend/internal/localtools"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pipeline/dedup"
	"github.com/yungbote/organizer-backend/internal/pipeline/executor"
	"github.com/yungbote/organizer-backend/internal/pipeline/indexer"
	"github.com/yungbote/organizer-backend/internal/pipeline/planner"
	"github.com/yungbote/organizer-backend/internal/pipeline/versions"
	"github.com/yungbote/organizer-backend/internal/services"
	"github.com/yungbote/organizer-backend/internal/utils"
)

type Services struct {
	Ollama ollama.Client
	Claude claude.Client
	Bus    redis.JobBus

	Archive  *archive.Service
	Extract  *extract.Service
	Indexer  *indexer.Service
	Dedup    *dedup.Service
	Versions *versions.Service
	Planner  *planner.Service
	Executor *executor.Service

	Jobs     services.JobService
	Registry *runtime.Registry
	Runner   *jobs.Runner
	Worker   *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg *config.Pipeline, r Repos) (Services, error) {
	log.Info("Wiring services...")

	ollamaClient, err := ollama.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init ollama client: %w", err)
	}
	claudeClient, err := claude.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init claude client: %w", err)
	}

	var bus redis.JobBus
	if utils.GetEnv("REDIS_ADDR", "", nil) != "" {
		bus, err = redis.NewJobBus(log)
		if err != nil {
			return Services{}, fmt.Errorf("init redis bus: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set, job events will not be published")
	}

	zips := archive.NewService(log, archive.Options{
		MaxFileBytes:  cfg.MaxZipFileBytes,
		MaxTotalBytes: cfg.MaxZipTotalBytes,
	})
	tools := localtools.New(log)
	extractor := extract.NewService(log, tools)

	idx := indexer.NewService(log, cfg, extractor, ollamaClient, r.Items)
	dd := dedup.NewService(log, cfg, ollamaClient, r.Items, r.Dups)
	vers := versions.NewService(log, cfg, ollamaClient, r.Items, r.Versions)
	plan := planner.NewService(log, cfg, claudeClient, db, r.Items, r.Versions, r.Plans)
	exec := executor.NewService(log, cfg, db, r.Items, r.Dups, r.Versions, r.Plans, r.Shortcuts, r.ExecLog)

	registry := runtime.NewRegistry()
	if err := jobs.RegisterStages(registry, cfg, zips, idx, dd, vers, plan, exec, r.Dups, r.Versions); err != nil {
		return Services{}, fmt.Errorf("register stages: %w", err)
	}

	policy := worker.PolicyFromEnv(log)
	callback := jobs.NewCallbackNotifier(log)
	runner := jobs.NewRunner(log, registry, callback, policy.MaxAttempts)
	jobWorker := worker.New(db, log, r.Jobs, runner, bus, policy)

	jobService := services.NewJobService(db, log, cfg, r.Jobs, r.Items, r.Dups, r.Versions, r.Plans, exec, bus)

	return Services{
		Ollama:   ollamaClient,
		Claude:   claudeClient,
		Bus:      bus,
		Archive:  zips,
		Extract:  extractor,
		Indexer:  idx,
		Dedup:    dd,
		Versions: vers,
		Planner:  plan,
		Executor: exec,
		Jobs:     jobService,
		Registry: registry,
		Runner:   runner,
		Worker:   jobWorker,
	}, nil
}
