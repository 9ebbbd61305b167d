package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/db"
	"github.com/yungbote/organizer-backend/internal/jobs/runtime"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

type fakeStage struct {
	stage string
	fn    func(jc *runtime.Context) error
}

func (f *fakeStage) Stage() string { return f.stage }

func (f *fakeStage) Run(jc *runtime.Context) error {
	if f.fn == nil {
		return nil
	}
	return f.fn(jc)
}

func runnerSetup(t *testing.T) (*gorm.DB, repos.JobRepo, *logger.Logger) {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatal(err)
	}
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	return gdb, repos.NewJobRepo(gdb, log), log
}

func newRegistry(t *testing.T, overrides map[string]func(jc *runtime.Context) error, order *[]string) *runtime.Registry {
	t.Helper()
	reg := runtime.NewRegistry()
	for _, stage := range stageOrder {
		stage := stage
		fn := overrides[stage]
		err := reg.Register(&fakeStage{stage: stage, fn: func(jc *runtime.Context) error {
			if order != nil {
				*order = append(*order, stage)
			}
			if fn != nil {
				return fn(jc)
			}
			return nil
		}})
		if err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func claimedJob(t *testing.T, repo repos.JobRepo, mutate func(j *types.Job)) *types.Job {
	t.Helper()
	job := &types.Job{
		Status:    types.JobStatusRunning,
		SourceZip: "upload.zip",
		Attempts:  1,
	}
	if mutate != nil {
		mutate(job)
	}
	created, err := repo.Create(context.Background(), nil, job)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestRunnerRunsAllStages(t *testing.T) {
	gdb, repo, log := runnerSetup(t)
	var order []string
	reg := newRegistry(t, nil, &order)
	runner := NewRunner(log, reg, nil, 3)

	job := claimedJob(t, repo, nil)
	jc := runtime.NewContext(context.Background(), gdb, job, repo, nil)
	jc.Result["marker"] = true
	runner.Run(jc)

	if len(order) != len(stageOrder) {
		t.Fatalf("ran stages %v", order)
	}
	fresh, err := repo.GetByID(context.Background(), nil, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Status != types.JobStatusCompleted || fresh.Progress != 100 {
		t.Fatalf("job = %s progress=%d", fresh.Status, fresh.Progress)
	}
	if len(fresh.Result) == 0 {
		t.Fatal("result not persisted")
	}
}

func TestRunnerRequeuesRetryableError(t *testing.T) {
	gdb, repo, log := runnerSetup(t)
	reg := newRegistry(t, map[string]func(jc *runtime.Context) error{
		types.StageIndexing: func(jc *runtime.Context) error {
			return errkind.New(errkind.Network, "test", errors.New("connection refused"))
		},
	}, nil)
	runner := NewRunner(log, reg, nil, 3)

	job := claimedJob(t, repo, nil)
	runner.Run(runtime.NewContext(context.Background(), gdb, job, repo, nil))

	fresh, _ := repo.GetByID(context.Background(), nil, job.ID)
	if fresh.Status != types.JobStatusQueued {
		t.Fatalf("status = %s, want queued", fresh.Status)
	}
	if fresh.Stage != types.StageIndexing || fresh.LastErrorAt == nil {
		t.Fatalf("stage=%s last_error_at=%v", fresh.Stage, fresh.LastErrorAt)
	}
}

func TestRunnerFailsAfterMaxAttempts(t *testing.T) {
	gdb, repo, log := runnerSetup(t)
	reg := newRegistry(t, map[string]func(jc *runtime.Context) error{
		types.StageIndexing: func(jc *runtime.Context) error {
			return errkind.New(errkind.Network, "test", errors.New("connection refused"))
		},
	}, nil)
	runner := NewRunner(log, reg, nil, 3)

	job := claimedJob(t, repo, func(j *types.Job) { j.Attempts = 3 })
	runner.Run(runtime.NewContext(context.Background(), gdb, job, repo, nil))

	fresh, _ := repo.GetByID(context.Background(), nil, job.ID)
	if fresh.Status != types.JobStatusFailed {
		t.Fatalf("status = %s, want failed", fresh.Status)
	}
	if fresh.ErrorKind != string(errkind.Network) {
		t.Fatalf("error_kind = %s", fresh.ErrorKind)
	}
}

func TestRunnerFailsNonRetryableImmediately(t *testing.T) {
	gdb, repo, log := runnerSetup(t)
	reg := newRegistry(t, map[string]func(jc *runtime.Context) error{
		types.StageOrganizing: func(jc *runtime.Context) error {
			return errkind.Newf(errkind.Malformed, "test", "model reply unusable")
		},
	}, nil)
	runner := NewRunner(log, reg, nil, 3)

	job := claimedJob(t, repo, nil)
	runner.Run(runtime.NewContext(context.Background(), gdb, job, repo, nil))

	fresh, _ := repo.GetByID(context.Background(), nil, job.ID)
	if fresh.Status != types.JobStatusFailed {
		t.Fatalf("status = %s, want failed", fresh.Status)
	}
}

func TestRunnerFailsOnPlanningIncomplete(t *testing.T) {
	gdb, repo, log := runnerSetup(t)
	reg := newRegistry(t, map[string]func(jc *runtime.Context) error{
		types.StageOrganizing: func(jc *runtime.Context) error {
			return errkind.Newf(errkind.PlanningIncomplete, "test", "too many files missing from plan")
		},
	}, nil)
	runner := NewRunner(log, reg, nil, 3)

	job := claimedJob(t, repo, nil)
	runner.Run(runtime.NewContext(context.Background(), gdb, job, repo, nil))

	fresh, _ := repo.GetByID(context.Background(), nil, job.ID)
	if fresh.Status != types.JobStatusFailed {
		t.Fatalf("status = %s, want failed", fresh.Status)
	}
	if fresh.ErrorKind != string(errkind.PlanningIncomplete) {
		t.Fatalf("error_kind = %s", fresh.ErrorKind)
	}
}

func TestRunnerReviewGateAndResume(t *testing.T) {
	gdb, repo, log := runnerSetup(t)
	var order []string
	reg := newRegistry(t, nil, &order)
	runner := NewRunner(log, reg, nil, 3)

	job := claimedJob(t, repo, func(j *types.Job) { j.ReviewGate = true })
	runner.Run(runtime.NewContext(context.Background(), gdb, job, repo, nil))

	fresh, _ := repo.GetByID(context.Background(), nil, job.ID)
	if fresh.Status != types.JobStatusReviewRequired || fresh.Stage != types.StageOrganizing {
		t.Fatalf("after gate: status=%s stage=%s", fresh.Status, fresh.Stage)
	}
	if order[len(order)-1] != types.StageOrganizing {
		t.Fatalf("last stage before gate = %s", order[len(order)-1])
	}

	// Approve: back to queued at the executing stage.
	err := repo.UpdateFields(context.Background(), nil, job.ID, map[string]interface{}{
		"status": types.JobStatusRunning,
		"stage":  types.StageExecuting,
	})
	if err != nil {
		t.Fatal(err)
	}
	fresh, _ = repo.GetByID(context.Background(), nil, job.ID)

	order = order[:0]
	runner.Run(runtime.NewContext(context.Background(), gdb, fresh, repo, nil))

	want := []string{types.StageExecuting, types.StagePackaging}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("resumed stages = %v, want %v", order, want)
	}
	fresh, _ = repo.GetByID(context.Background(), nil, job.ID)
	if fresh.Status != types.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", fresh.Status)
	}
}

func TestRunnerStopsWhenCancelled(t *testing.T) {
	gdb, repo, log := runnerSetup(t)
	var order []string
	reg := newRegistry(t, map[string]func(jc *runtime.Context) error{
		types.StageExtracting: func(jc *runtime.Context) error {
			// Cancel arrives mid-run, before the next stage starts.
			return repo.UpdateFields(context.Background(), nil, jc.Job.ID, map[string]interface{}{
				"status": types.JobStatusCancelled,
			})
		},
	}, &order)
	runner := NewRunner(log, reg, nil, 3)

	job := claimedJob(t, repo, nil)
	runner.Run(runtime.NewContext(context.Background(), gdb, job, repo, nil))

	if len(order) != 1 {
		t.Fatalf("stages run after cancel = %v", order)
	}
	fresh, _ := repo.GetByID(context.Background(), nil, job.ID)
	if fresh.Status != types.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", fresh.Status)
	}
}
