package services

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/clients/redis"
	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pipeline/executor"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/sse"
	"github.com/yungbote/organizer-backend/internal/types"
)

// SubmitRequest carries everything POST /api/jobs accepts. Either Upload or
// ZipPath must be set; Upload wins when both are present.
type SubmitRequest struct {
	Upload      io.Reader
	FileName    string
	ZipPath     string
	DryRun      bool
	ReviewGate  *bool
	CallbackURL string
	Options     map[string]any
}

type JobService interface {
	Submit(ctx context.Context, req SubmitRequest) (*types.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Job, error)
	List(ctx context.Context, limit int) ([]*types.Job, error)
	Report(ctx context.Context, id uuid.UUID) (*JobReport, error)
	Approve(ctx context.Context, id uuid.UUID) (*types.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*types.Job, error)
	Rollback(ctx context.Context, id uuid.UUID) (*types.Job, error)
}

type jobService struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      *config.Pipeline
	jobs     repos.JobRepo
	items    repos.DocumentItemRepo
	dups     repos.DuplicateRepo
	versions repos.VersionRepo
	plans    repos.PlanRepo
	exec     *executor.Service
	bus      redis.JobBus
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, cfg *config.Pipeline, jobs repos.JobRepo, items repos.DocumentItemRepo, dups repos.DuplicateRepo, versions repos.VersionRepo, plans repos.PlanRepo, exec *executor.Service, bus redis.JobBus) JobService {
	return &jobService{
		db:       db,
		log:      baseLog.With("service", "JobService"),
		cfg:      cfg,
		jobs:     jobs,
		items:    items,
		dups:     dups,
		versions: versions,
		plans:    plans,
		exec:     exec,
		bus:      bus,
	}
}

func (s *jobService) Submit(ctx context.Context, req SubmitRequest) (*types.Job, error) {
	jobID := uuid.New()
	jobRoot := filepath.Join(s.cfg.WorkRoot, jobID.String())

	sourceZip := req.ZipPath
	if req.Upload != nil {
		name := req.FileName
		if name == "" {
			name = "upload.zip"
		}
		saved, err := s.saveUpload(jobRoot, name, req.Upload)
		if err != nil {
			return nil, err
		}
		sourceZip = saved
	} else if sourceZip != "" {
		if _, err := os.Stat(sourceZip); err != nil {
			return nil, errkind.Newf(errkind.Validation, "jobs.Submit", "source zip not found: %s", sourceZip)
		}
	}
	if sourceZip == "" {
		return nil, errkind.Newf(errkind.Validation, "jobs.Submit", "no archive provided")
	}

	reviewGate := s.cfg.ReviewGate
	if req.ReviewGate != nil {
		reviewGate = *req.ReviewGate
	}

	var options datatypes.JSON
	if len(req.Options) > 0 {
		b, err := json.Marshal(req.Options)
		if err != nil {
			return nil, errkind.New(errkind.Validation, "jobs.Submit", err)
		}
		options = datatypes.JSON(b)
	}

	job := &types.Job{
		ID:          jobID,
		Status:      types.JobStatusQueued,
		Message:     "Queued",
		SourceZip:   sourceZip,
		WorkDir:     filepath.Join(jobRoot, "source"),
		OutputDir:   filepath.Join(jobRoot, "organized"),
		DryRun:      req.DryRun,
		ReviewGate:  reviewGate,
		CallbackURL: req.CallbackURL,
		Options:     options,
	}
	created, err := s.jobs.Create(ctx, nil, job)
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Submit", err)
	}
	s.log.Info("Job submitted",
		"job_id", created.ID,
		"source_zip", sourceZip,
		"dry_run", req.DryRun,
		"review_gate", reviewGate,
	)
	return created, nil
}

func (s *jobService) saveUpload(jobRoot, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(jobRoot, 0o755); err != nil {
		return "", errkind.New(errkind.IO, "jobs.saveUpload", err)
	}
	dest := filepath.Join(jobRoot, executor.SanitizeFileName(name))
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", errkind.New(errkind.IO, "jobs.saveUpload", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", errkind.New(errkind.IO, "jobs.saveUpload", err)
	}
	if err := f.Close(); err != nil {
		return "", errkind.New(errkind.IO, "jobs.saveUpload", err)
	}
	return dest, nil
}

func (s *jobService) Get(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := s.jobs.GetByID(ctx, nil, id)
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Get", err)
	}
	if job == nil {
		return nil, errkind.Newf(errkind.Validation, "jobs.Get", "job %s not found", id)
	}
	return job, nil
}

func (s *jobService) List(ctx context.Context, limit int) ([]*types.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out, err := s.jobs.ListRecent(ctx, nil, limit)
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.List", err)
	}
	return out, nil
}

// Approve re-queues a parked job directly at the executing stage.
func (s *jobService) Approve(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusReviewRequired {
		return nil, errkind.Newf(errkind.Conflict, "jobs.Approve", "job is %s, not review_required", job.Status)
	}
	plan, err := s.plans.GetByJob(ctx, nil, id)
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Approve", err)
	}
	if plan == nil {
		return nil, errkind.Newf(errkind.Conflict, "jobs.Approve", "no plan stored for job")
	}
	err = s.jobs.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":     types.JobStatusQueued,
		"stage":      types.StageExecuting,
		"message":    "Approved, queued for execution",
		"error":      "",
		"error_kind": "",
		"updated_at": time.Now(),
	})
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Approve", err)
	}
	s.log.Info("Job approved", "job_id", id)
	return s.Get(ctx, id)
}

func (s *jobService) Cancel(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		return nil, errkind.Newf(errkind.Conflict, "jobs.Cancel", "job already %s", job.Status)
	}
	err = s.jobs.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":     types.JobStatusCancelled,
		"message":    "Cancelled by user",
		"locked_at":  nil,
		"updated_at": time.Now(),
	})
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Cancel", err)
	}
	if s.bus != nil {
		_ = s.bus.Publish(ctx, sse.Message{
			Channel: sse.JobChannel(id),
			Event:   sse.EventJobFailed,
			Data:    map[string]any{"job_id": id, "error": "cancelled by user"},
		})
	}
	s.log.Info("Job cancelled", "job_id", id)
	return s.Get(ctx, id)
}

// Rollback undoes a finished execution: output tree and zip removed,
// execution records cleared, item statuses rewound so the job could be
// re-approved later.
func (s *jobService) Rollback(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case types.JobStatusCompleted, types.JobStatusFailed, types.JobStatusReviewRequired:
	default:
		return nil, errkind.Newf(errkind.Conflict, "jobs.Rollback", "cannot roll back a %s job", job.Status)
	}
	if err := s.exec.Rollback(ctx, job); err != nil {
		return nil, err
	}
	err = s.items.ResetStatusByJob(ctx, nil, id, []string{types.DocStatusApplied}, types.DocStatusOrganized)
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Rollback", err)
	}
	err = s.jobs.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":     types.JobStatusRolledBack,
		"message":    "Execution rolled back",
		"output_zip": "",
		"updated_at": time.Now(),
	})
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Rollback", err)
	}
	s.log.Info("Job rolled back", "job_id", id)
	return s.Get(ctx, id)
}

func (s *jobService) Report(ctx context.Context, id uuid.UUID) (*JobReport, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	report := &JobReport{Job: job}

	plan, err := s.plans.GetByJob(ctx, nil, id)
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Report", err)
	}
	if plan != nil {
		report.Summary = plan.Summary
		report.TotalAssigned = plan.TotalAssigned
		report.RepairedCount = plan.RepairedCount
		if len(plan.Directories) > 0 {
			_ = json.Unmarshal(plan.Directories, &report.Directories)
		}
		if len(plan.Assignments) > 0 {
			_ = json.Unmarshal(plan.Assignments, &report.Assignments)
		}
	}

	items, err := s.items.ListByJob(ctx, nil, id)
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Report", err)
	}
	byID := make(map[uuid.UUID]*types.DocumentItem, len(items))
	report.StatusCounts = map[string]int{}
	for _, it := range items {
		byID[it.ID] = it
		report.StatusCounts[it.Status]++
	}

	groups, err := s.dups.ListGroupsByJob(ctx, nil, id)
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Report", err)
	}
	for _, g := range groups {
		dg := DuplicateReport{Resolution: g.Resolution, Reason: g.Reason}
		members, err := s.dups.ListMembers(ctx, nil, g.ID)
		if err != nil {
			return nil, errkind.New(errkind.Store, "jobs.Report", err)
		}
		for _, m := range members {
			item := byID[m.DocumentItemID]
			if item == nil {
				continue
			}
			if m.Role == types.DupRoleKeeper {
				dg.Keeper = item.SourcePath
			} else {
				dg.Removed = append(dg.Removed, item.SourcePath)
			}
		}
		report.Duplicates = append(report.Duplicates, dg)
	}

	chains, err := s.versions.ListChainsByJob(ctx, nil, id)
	if err != nil {
		return nil, errkind.New(errkind.Store, "jobs.Report", err)
	}
	for _, chain := range chains {
		vc := VersionReport{
			BaseName:        chain.BaseName,
			ArchiveStrategy: chain.ArchiveStrategy,
			Resolution:      chain.Resolution,
		}
		members, err := s.versions.ListMembers(ctx, nil, chain.ID)
		if err != nil {
			return nil, errkind.New(errkind.Store, "jobs.Report", err)
		}
		for _, m := range members {
			item := byID[m.DocumentItemID]
			if item == nil {
				continue
			}
			if m.Role == types.VersionRoleCurrent {
				vc.Current = item.SourcePath
			} else {
				vc.Superseded = append(vc.Superseded, item.SourcePath)
			}
		}
		report.Versions = append(report.Versions, vc)
	}
	return report, nil
}

// JobReport is the review payload behind GET /api/jobs/:id/report.
type JobReport struct {
	Job           *types.Job             `json:"job"`
	Summary       string                 `json:"summary,omitempty"`
	TotalAssigned int                    `json:"total_assigned"`
	RepairedCount int                    `json:"repaired_count"`
	Directories   []types.DirectoryNode  `json:"directories,omitempty"`
	Assignments   []types.FileAssignment `json:"assignments,omitempty"`
	Duplicates    []DuplicateReport      `json:"duplicates,omitempty"`
	Versions      []VersionReport        `json:"versions,omitempty"`
	StatusCounts  map[string]int         `json:"status_counts"`
}

type DuplicateReport struct {
	Keeper     string   `json:"keeper"`
	Removed    []string `json:"removed"`
	Resolution string   `json:"resolution"`
	Reason     string   `json:"reason,omitempty"`
}

type VersionReport struct {
	BaseName        string   `json:"base_name"`
	Current         string   `json:"current"`
	Superseded      []string `json:"superseded"`
	ArchiveStrategy string   `json:"archive_strategy"`
	Resolution      string   `json:"resolution"`
}
