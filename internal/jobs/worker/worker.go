package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/clients/redis"
	"github.com/yungbote/organizer-backend/internal/jobs"
	"github.com/yungbote/organizer-backend/internal/jobs/runtime"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/utils"
)

// Policy controls when a queued or stuck job becomes claimable again.
type Policy struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

func PolicyFromEnv(log *logger.Logger) Policy {
	return Policy{
		Concurrency:  utils.GetEnvAsInt("WORKER_CONCURRENCY", 2, log),
		PollInterval: utils.GetEnvAsDuration("WORKER_POLL_INTERVAL", time.Second, log),
		MaxAttempts:  utils.GetEnvAsInt("WORKER_MAX_ATTEMPTS", 3, log),
		RetryDelay:   utils.GetEnvAsDuration("WORKER_RETRY_DELAY", 30*time.Second, log),
		StaleRunning: utils.GetEnvAsDuration("WORKER_STALE_RUNNING", 15*time.Minute, log),
	}
}

type Worker struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRepo
	runner *jobs.Runner
	bus    redis.JobBus
	policy Policy
}

func New(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRepo, runner *jobs.Runner, bus redis.JobBus, policy Policy) *Worker {
	if policy.Concurrency < 1 {
		policy.Concurrency = 1
	}
	if policy.PollInterval <= 0 {
		policy.PollInterval = time.Second
	}
	return &Worker{
		db:     db,
		log:    baseLog.With("component", "JobWorker"),
		repo:   repo,
		runner: runner,
		bus:    bus,
		policy: policy,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.policy.Concurrency,
		"poll_interval", w.policy.PollInterval,
	)
	for i := 0; i < w.policy.Concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.policy.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(ctx, nil, w.policy.MaxAttempts, w.policy.RetryDelay, w.policy.StaleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.execute(ctx, workerID, runtime.NewContext(ctx, w.db, job, w.repo, w.bus))
		}
	}
}

// Drain runs claim loops until the queue is empty, for one-shot CLI runs.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		job, err := w.repo.ClaimNextRunnable(ctx, nil, w.policy.MaxAttempts, w.policy.RetryDelay, w.policy.StaleRunning)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		w.execute(ctx, 0, runtime.NewContext(ctx, w.db, job, w.repo, w.bus))
	}
}

func (w *Worker) execute(ctx context.Context, workerID int, jc *runtime.Context) {
	heartbeatDone := make(chan struct{})
	go w.heartbeatLoop(ctx, jc, heartbeatDone)
	defer close(heartbeatDone)

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"worker_id", workerID,
				"job_id", jc.Job.ID,
				"panic", r,
			)
			jc.Fail(jc.Job.Stage, fmt.Errorf("panic: %v", r))
		}
	}()
	w.runner.Run(jc)
}

func (w *Worker) heartbeatLoop(ctx context.Context, jc *runtime.Context, done <-chan struct{}) {
	interval := w.policy.StaleRunning / 3
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			jc.Heartbeat()
		}
	}
}
