package jobs

import (
	"fmt"
	"path/filepath"

	"github.com/yungbote/organizer-backend/internal/archive"
	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/jobs/runtime"
	"github.com/yungbote/organizer-backend/internal/pipeline/dedup"
	"github.com/yungbote/organizer-backend/internal/pipeline/executor"
	"github.com/yungbote/organizer-backend/internal/pipeline/indexer"
	"github.com/yungbote/organizer-backend/internal/pipeline/planner"
	"github.com/yungbote/organizer-backend/internal/pipeline/versions"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

// stageOrder is the canonical pipeline sequence. The runner resumes from the
// job's persisted stage, so approve can drop a parked job straight into
// executing.
var stageOrder = []string{
	types.StageExtracting,
	types.StageIndexing,
	types.StageDeduplicating,
	types.StageVersioning,
	types.StageOrganizing,
	types.StageExecuting,
	types.StagePackaging,
}

// Per-stage slices of the overall progress bar.
var stageBands = map[string][2]int{
	types.StageExtracting:    {0, 10},
	types.StageIndexing:      {10, 30},
	types.StageDeduplicating: {40, 15},
	types.StageVersioning:    {55, 15},
	types.StageOrganizing:    {70, 15},
	types.StageExecuting:     {85, 10},
	types.StagePackaging:     {95, 5},
}

func stageProgress(jc *runtime.Context, stage string, pct int, msg string) {
	band := stageBands[stage]
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	jc.Progress(stage, band[0]+pct*band[1]/100, msg)
}

// RegisterStages wires every pipeline stage into the registry.
func RegisterStages(reg *runtime.Registry, cfg *config.Pipeline, zips *archive.Service, idx *indexer.Service, dd *dedup.Service, vers *versions.Service, plan *planner.Service, exec *executor.Service, dups repos.DuplicateRepo, chains repos.VersionRepo) error {
	handlers := []runtime.StageHandler{
		&extractStage{zips: zips},
		&indexStage{svc: idx},
		&dedupStage{svc: dd, dups: dups},
		&versionStage{svc: vers, chains: chains},
		&planStage{svc: plan},
		&executeStage{svc: exec},
		&packageStage{zips: zips},
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

type extractStage struct {
	zips *archive.Service
}

func (s *extractStage) Stage() string { return types.StageExtracting }

func (s *extractStage) Run(jc *runtime.Context) error {
	stageProgress(jc, s.Stage(), 0, "extracting archive")
	report, err := s.zips.Extract(jc.Ctx, jc.Job.SourceZip, jc.Job.WorkDir)
	if err != nil {
		return err
	}
	if report.FilesExtracted == 0 {
		return errkind.Newf(errkind.Validation, "jobs.extract", "archive contains no usable files")
	}
	jc.Result["extracted_files"] = report.FilesExtracted
	jc.Result["skipped_entries"] = report.FilesSkipped
	stageProgress(jc, s.Stage(), 100, fmt.Sprintf("extracted %d files", report.FilesExtracted))
	return nil
}

type indexStage struct {
	svc *indexer.Service
}

func (s *indexStage) Stage() string { return types.StageIndexing }

func (s *indexStage) Run(jc *runtime.Context) error {
	// Items persist per file, so a retried job picks up where it stopped.
	stats, err := s.svc.Run(jc.Ctx, jc.Job.ID, jc.Job.WorkDir, func(pct int, msg string) {
		stageProgress(jc, s.Stage(), pct, msg)
	})
	if err != nil {
		return err
	}
	jc.Result["indexed"] = stats.Indexed
	jc.Result["resumed"] = stats.Resumed
	jc.Result["index_errors"] = stats.Errors
	return nil
}

type dedupStage struct {
	svc  *dedup.Service
	dups repos.DuplicateRepo
}

func (s *dedupStage) Stage() string { return types.StageDeduplicating }

func (s *dedupStage) Run(jc *runtime.Context) error {
	if err := s.dups.DeleteByJob(jc.Ctx, nil, jc.Job.ID); err != nil {
		return errkind.New(errkind.Store, "jobs.dedup", err)
	}
	stats, err := s.svc.Run(jc.Ctx, jc.Job.ID, func(pct int, msg string) {
		stageProgress(jc, s.Stage(), pct, msg)
	})
	if err != nil {
		return err
	}
	jc.Result["duplicate_groups"] = stats.Groups
	jc.Result["duplicates_removed"] = stats.Losers
	return nil
}

type versionStage struct {
	svc    *versions.Service
	chains repos.VersionRepo
}

func (s *versionStage) Stage() string { return types.StageVersioning }

func (s *versionStage) Run(jc *runtime.Context) error {
	if err := s.chains.DeleteByJob(jc.Ctx, nil, jc.Job.ID); err != nil {
		return errkind.New(errkind.Store, "jobs.versions", err)
	}
	stats, err := s.svc.Run(jc.Ctx, jc.Job.ID, func(pct int, msg string) {
		stageProgress(jc, s.Stage(), pct, msg)
	})
	if err != nil {
		return err
	}
	jc.Result["version_chains"] = stats.Chains
	return nil
}

type planStage struct {
	svc *planner.Service
}

func (s *planStage) Stage() string { return types.StageOrganizing }

func (s *planStage) Run(jc *runtime.Context) error {
	stats, err := s.svc.Run(jc.Ctx, jc.Job.ID, func(pct int, msg string) {
		stageProgress(jc, s.Stage(), pct, msg)
	})
	if stats != nil {
		jc.Result["assigned"] = stats.Assigned
		jc.Result["repaired"] = stats.Repaired
	}
	return err
}

type executeStage struct {
	svc *executor.Service
}

func (s *executeStage) Stage() string { return types.StageExecuting }

func (s *executeStage) Run(jc *runtime.Context) error {
	manifest, err := s.svc.Run(jc.Ctx, jc.Job, func(pct int, msg string) {
		stageProgress(jc, s.Stage(), pct, msg)
	})
	if manifest != nil {
		jc.Result["statistics"] = manifest.Statistics
		if jc.Job.DryRun {
			// Nothing hits the disk on a dry run, so the projected manifest
			// lives on the job row instead.
			jc.Result["manifest"] = manifest
		}
	}
	return err
}

type packageStage struct {
	zips *archive.Service
}

func (s *packageStage) Stage() string { return types.StagePackaging }

func (s *packageStage) Run(jc *runtime.Context) error {
	if jc.Job.DryRun {
		stageProgress(jc, s.Stage(), 100, "dry run, nothing to package")
		return nil
	}
	zipPath := jc.Job.OutputZip
	if zipPath == "" {
		zipPath = filepath.Join(filepath.Dir(jc.Job.OutputDir), "organized.zip")
	}
	stageProgress(jc, s.Stage(), 0, "packaging output")
	if err := s.zips.Package(jc.Ctx, jc.Job.OutputDir, zipPath); err != nil {
		return err
	}
	if err := jc.Update(map[string]interface{}{"output_zip": zipPath}); err != nil {
		return errkind.New(errkind.Store, "jobs.package", err)
	}
	jc.Job.OutputZip = zipPath
	jc.Result["output_zip"] = zipPath
	stageProgress(jc, s.Stage(), 100, "output packaged")
	return nil
}
