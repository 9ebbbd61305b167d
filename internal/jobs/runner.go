package jobs

import (
	"github.com/yungbote/organizer-backend/internal/jobs/runtime"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/types"
)

// Runner drives a claimed job through the stage sequence. It owns the
// lifecycle decisions: which stage to resume at, when to park for the review
// gate, when a failure is worth another attempt and when it is terminal. A
// rejected plan is terminal; planning_incomplete is not retryable.
type Runner struct {
	log         *logger.Logger
	registry    *runtime.Registry
	callback    *CallbackNotifier
	maxAttempts int
}

func NewRunner(baseLog *logger.Logger, registry *runtime.Registry, callback *CallbackNotifier, maxAttempts int) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Runner{
		log:         baseLog.With("component", "JobRunner"),
		registry:    registry,
		callback:    callback,
		maxAttempts: maxAttempts,
	}
}

func stageIndex(stage string) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return 0
}

// Run executes stages from the job's persisted stage onward. A freshly
// queued job starts at extracting; an approved job resumes at executing.
func (r *Runner) Run(jc *runtime.Context) {
	job := jc.Job
	start := 0
	if job.Stage != "" {
		start = stageIndex(job.Stage)
	}

	for i := start; i < len(stageOrder); i++ {
		stage := stageOrder[i]

		if cancelled, err := r.refreshCancelled(jc); err != nil {
			jc.Requeue(stage, errkind.New(errkind.Store, "jobs.Run", err))
			return
		} else if cancelled {
			r.log.Info("Job cancelled, stopping", "job_id", job.ID, "stage", stage)
			return
		}
		if jc.Ctx != nil && jc.Ctx.Err() != nil {
			jc.Requeue(stage, errkind.New(errkind.Cancelled, "jobs.Run", jc.Ctx.Err()))
			return
		}

		h, ok := r.registry.Get(stage)
		if !ok {
			jc.Fail(stage, errkind.Newf(errkind.Fatal, "jobs.Run", "no handler registered for stage %s", stage))
			r.notify(jc)
			return
		}

		if err := h.Run(jc); err != nil {
			r.handleStageError(jc, stage, err)
			return
		}

		if stage == types.StageOrganizing && job.ReviewGate && !job.DryRun {
			jc.Park(stage, "organization plan ready for review")
			r.notify(jc)
			return
		}
	}

	jc.Succeed(jc.Result)
	r.notify(jc)
	r.log.Info("Job completed", "job_id", job.ID)
}

func (r *Runner) handleStageError(jc *runtime.Context, stage string, err error) {
	kind := errkind.KindOf(err)
	switch {
	case kind == errkind.Cancelled:
		r.log.Info("Job interrupted", "job_id", jc.Job.ID, "stage", stage)
		jc.Requeue(stage, err)
	case errkind.Retryable(err) && jc.Job.Attempts < r.maxAttempts:
		r.log.Warn("Stage failed, requeueing",
			"job_id", jc.Job.ID,
			"stage", stage,
			"attempt", jc.Job.Attempts,
			"kind", string(kind),
			"error", err,
		)
		jc.Requeue(stage, err)
	default:
		r.log.Error("Stage failed terminally",
			"job_id", jc.Job.ID,
			"stage", stage,
			"kind", string(kind),
			"error", err,
		)
		jc.Fail(stage, err)
		r.notify(jc)
	}
}

// refreshCancelled reloads the job row so a cancel issued through the API is
// honored between stages, not just at claim time.
func (r *Runner) refreshCancelled(jc *runtime.Context) (bool, error) {
	fresh, err := jc.Repo.GetByID(jc.Ctx, nil, jc.Job.ID)
	if err != nil {
		return false, err
	}
	if fresh == nil {
		return true, nil
	}
	if fresh.Status == types.JobStatusCancelled {
		return true, nil
	}
	return false, nil
}

func (r *Runner) notify(jc *runtime.Context) {
	if r.callback == nil {
		return
	}
	r.callback.Notify(jc.Ctx, jc.Job)
}
