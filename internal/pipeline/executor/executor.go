package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/archive"
	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/db"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

type Service struct {
	log       *logger.Logger
	cfg       *config.Pipeline
	gdb       *gorm.DB
	items     repos.DocumentItemRepo
	dups      repos.DuplicateRepo
	versions  repos.VersionRepo
	plans     repos.PlanRepo
	shortcuts repos.ShortcutRepo
	execLog   repos.ExecutionLogRepo
}

func NewService(log *logger.Logger, cfg *config.Pipeline, gdb *gorm.DB, items repos.DocumentItemRepo, dups repos.DuplicateRepo, vers repos.VersionRepo, plans repos.PlanRepo, shortcuts repos.ShortcutRepo, execLog repos.ExecutionLogRepo) *Service {
	return &Service{
		log:       log.With("component", "Executor"),
		cfg:       cfg,
		gdb:       gdb,
		items:     items,
		dups:      dups,
		versions:  vers,
		plans:     plans,
		shortcuts: shortcuts,
		execLog:   execLog,
	}
}

// run-scoped working state, one per Run call.
type run struct {
	job      *types.Job
	srcRoot  string
	outDir   string
	dryRun   bool
	plan     *types.OrganizationPlan
	assigns  []types.FileAssignment
	dirs     []types.DirectoryNode
	byID     map[uuid.UUID]*types.DocumentItem
	bySource map[string]*types.DocumentItem
	// final on-disk destination per document item
	destByID  map[uuid.UUID]string
	usedNames map[string]bool

	manifest *Manifest
	entries  []*types.ExecutionLogEntry
	records  []*types.ShortcutRecord
	step     int
}

// Run materializes the stored plan under job.OutputDir in seven ordered
// steps. In dry-run mode every step is computed and logged but nothing
// touches the filesystem.
func (s *Service) Run(ctx context.Context, job *types.Job, report func(pct int, msg string)) (*Manifest, error) {
	r := &run{
		job:       job,
		srcRoot:   job.WorkDir,
		outDir:    job.OutputDir,
		dryRun:    job.DryRun,
		byID:      map[uuid.UUID]*types.DocumentItem{},
		bySource:  map[string]*types.DocumentItem{},
		destByID:  map[uuid.UUID]string{},
		usedNames: map[string]bool{},
		manifest: &Manifest{
			JobID:      job.ID,
			ExecutedAt: time.Now(),
			DryRun:     job.DryRun,
			SourceZip:  job.SourceZip,
			Errors:     []string{},
		},
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context, r *run) error
	}{
		{"validate", s.stepValidate},
		{"clear output", s.stepClearOutput},
		{"create directories", s.stepCreateDirs},
		{"copy files", s.stepCopyFiles},
		{"create shortcuts", s.stepShortcuts},
		{"archive versions", s.stepVersionArchives},
		{"write manifest", s.stepManifest},
	}
	for i, step := range steps {
		if ctx.Err() != nil {
			return r.manifest, errkind.New(errkind.Cancelled, "executor.Run", ctx.Err())
		}
		r.step = i + 1
		if report != nil {
			report(i*100/len(steps), step.name)
		}
		if err := step.fn(ctx, r); err != nil {
			s.flushRecords(ctx, r)
			return r.manifest, err
		}
	}

	if err := s.flushRecords(ctx, r); err != nil {
		return r.manifest, err
	}
	if report != nil {
		report(100, "execution complete")
	}
	return r.manifest, nil
}

func (s *Service) flushRecords(ctx context.Context, r *run) error {
	if err := s.execLog.Append(ctx, nil, r.entries); err != nil {
		return errkind.New(errkind.Store, "executor.flushRecords", err)
	}
	r.entries = nil
	if _, err := s.shortcuts.CreateBatch(ctx, nil, r.records); err != nil {
		return errkind.New(errkind.Store, "executor.flushRecords", err)
	}
	r.records = nil
	return nil
}

func (r *run) logOp(action, source, dest, status, detail string) {
	r.entries = append(r.entries, &types.ExecutionLogEntry{
		JobID:      r.job.ID,
		Step:       r.step,
		Action:     action,
		SourcePath: source,
		DestPath:   dest,
		Status:     status,
		Detail:     detail,
	})
	if status == types.ExecStatusError {
		r.manifest.Statistics.Errors++
		r.manifest.Errors = append(r.manifest.Errors, fmt.Sprintf("%s %s -> %s: %s", action, source, dest, detail))
		return
	}
	r.manifest.Operations = append(r.manifest.Operations, ManifestOperation{
		Action: action,
		Source: source,
		Dest:   dest,
		Detail: detail,
	})
}

// --- step 1: validate ---

func (s *Service) stepValidate(ctx context.Context, r *run) error {
	plan, err := s.plans.GetByJob(ctx, nil, r.job.ID)
	if err != nil {
		return errkind.New(errkind.Store, "executor.validate", err)
	}
	if plan == nil {
		return errkind.Newf(errkind.Validation, "executor.validate", "no organization plan stored for job")
	}
	r.plan = plan

	if err := json.Unmarshal(plan.Assignments, &r.assigns); err != nil {
		return errkind.Newf(errkind.Corrupt, "executor.validate", "decode assignments: %v", err)
	}
	if err := json.Unmarshal(plan.Directories, &r.dirs); err != nil {
		return errkind.Newf(errkind.Corrupt, "executor.validate", "decode directories: %v", err)
	}
	if len(r.assigns) == 0 {
		return errkind.Newf(errkind.Validation, "executor.validate", "plan has no assignments")
	}

	items, err := s.items.ListByJob(ctx, nil, r.job.ID)
	if err != nil {
		return errkind.New(errkind.Store, "executor.validate", err)
	}
	for _, it := range items {
		r.byID[it.ID] = it
		r.bySource[it.SourcePath] = it
	}

	for _, a := range r.assigns {
		item := r.bySource[a.SourcePath]
		if item == nil {
			return errkind.Newf(errkind.Validation, "executor.validate", "assignment for unknown file %q", a.SourcePath)
		}
		if _, ok := archive.SafeJoin(r.outDir, strings.TrimPrefix(a.TargetDir, "/")); !ok {
			return errkind.Newf(errkind.Validation, "executor.validate", "target dir %q escapes output root", a.TargetDir)
		}
		if !r.dryRun {
			src := filepath.Join(r.srcRoot, filepath.FromSlash(a.SourcePath))
			if _, err := os.Stat(src); err != nil {
				return errkind.Newf(errkind.Validation, "executor.validate", "source file missing: %s", a.SourcePath)
			}
		}
	}
	r.manifest.Statistics.TotalFiles = len(r.assigns)
	return nil
}

// --- step 2: clear output ---

func (s *Service) stepClearOutput(_ context.Context, r *run) error {
	if r.dryRun {
		r.logOp("clear_output", "", r.outDir, types.ExecStatusDryRun, "")
		return nil
	}
	if err := os.RemoveAll(r.outDir); err != nil {
		return errkind.New(errkind.IO, "executor.clearOutput", err)
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return errkind.New(errkind.IO, "executor.clearOutput", err)
	}
	r.logOp("clear_output", "", r.outDir, types.ExecStatusOK, "")
	return nil
}

// --- step 3: create directories, shallow first ---

func (s *Service) stepCreateDirs(_ context.Context, r *run) error {
	dirs := make([]types.DirectoryNode, len(r.dirs))
	copy(dirs, r.dirs)
	sort.Slice(dirs, func(i, j int) bool {
		di := strings.Count(dirs[i].Path, "/")
		dj := strings.Count(dirs[j].Path, "/")
		if di != dj {
			return di < dj
		}
		return dirs[i].Path < dirs[j].Path
	})
	for _, d := range dirs {
		target, ok := archive.SafeJoin(r.outDir, strings.TrimPrefix(d.Path, "/"))
		if !ok {
			r.logOp(types.ExecActionCreateDir, "", d.Path, types.ExecStatusError, "escapes output root")
			continue
		}
		if r.dryRun {
			r.logOp(types.ExecActionCreateDir, "", d.Path, types.ExecStatusDryRun, "")
			r.manifest.Statistics.DirectoriesCreated++
			continue
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return errkind.New(errkind.IO, "executor.createDirs", err)
		}
		r.logOp(types.ExecActionCreateDir, "", d.Path, types.ExecStatusOK, "")
		r.manifest.Statistics.DirectoriesCreated++
	}
	return nil
}

// --- step 4: copy files ---

func (s *Service) stepCopyFiles(ctx context.Context, r *run) error {
	for _, a := range r.assigns {
		if ctx.Err() != nil {
			return errkind.New(errkind.Cancelled, "executor.copyFiles", ctx.Err())
		}
		item := r.bySource[a.SourcePath]
		name := a.TargetName
		if name == "" {
			name = SanitizeFileName(item.FileName)
		}
		relDest := r.reserveName(a.TargetDir, name)
		dest, ok := archive.SafeJoin(r.outDir, strings.TrimPrefix(relDest, "/"))
		if !ok {
			return errkind.Newf(errkind.Validation, "executor.copyFiles", "destination %q escapes output root", relDest)
		}
		src := filepath.Join(r.srcRoot, filepath.FromSlash(a.SourcePath))

		if r.dryRun {
			r.logOp(types.ExecActionCopy, a.SourcePath, relDest, types.ExecStatusDryRun, "")
		} else {
			if err := copyFile(src, dest, item.ModTime); err != nil {
				r.logOp(types.ExecActionCopy, a.SourcePath, relDest, types.ExecStatusError, err.Error())
				continue
			}
			r.logOp(types.ExecActionCopy, a.SourcePath, relDest, types.ExecStatusOK, "")
			if err := s.markApplied(ctx, item, relDest, appliedChanges(item, relDest)); err != nil {
				return err
			}
		}
		r.destByID[item.ID] = relDest
		r.manifest.Statistics.FilesCopied++
		if filepath.Base(relDest) != item.FileName {
			r.manifest.Statistics.FilesRenamed++
		}
	}
	return nil
}

// appliedChanges names what execution did to the file relative to its source
// location.
func appliedChanges(item *types.DocumentItem, relDest string, extra ...string) []string {
	var changes []string
	srcDir := ""
	if d := filepath.ToSlash(filepath.Dir(item.SourcePath)); d != "." {
		srcDir = "/" + d
	}
	destDir := relDest[:strings.LastIndex(relDest, "/")]
	if srcDir != destDir {
		changes = append(changes, "moved")
	}
	if filepath.Base(relDest) != item.FileName {
		changes = append(changes, "renamed")
	}
	return append(changes, extra...)
}

// markApplied records the final on-disk location on the item row.
func (s *Service) markApplied(ctx context.Context, item *types.DocumentItem, relDest string, changes []string) error {
	updates := map[string]interface{}{
		"final_name": filepath.Base(relDest),
		"final_path": relDest,
		"status":     types.DocStatusApplied,
	}
	if len(changes) > 0 {
		b, err := json.Marshal(changes)
		if err != nil {
			return errkind.New(errkind.Fatal, "executor.markApplied", err)
		}
		updates["changes_applied"] = datatypes.JSON(b)
	}
	if err := s.items.UpdateFields(ctx, nil, item.ID, updates); err != nil {
		return errkind.New(errkind.Store, "executor.markApplied", err)
	}
	return nil
}

// reserveName returns "<dir>/<name>" with a numeric suffix when the slot is
// already taken by an earlier assignment.
func (r *run) reserveName(dir, name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	ext := filepath.Ext(name)
	candidate := dir + "/" + name
	for n := 1; r.usedNames[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s/%s_%d%s", dir, base, n, ext)
	}
	r.usedNames[strings.ToLower(candidate)] = true
	return candidate
}

func copyFile(src, dest string, modTime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !modTime.IsZero() {
		_ = os.Chtimes(dest, modTime, modTime)
	}
	return nil
}

// --- step 5: shortcuts for duplicate losers ---

func (s *Service) stepShortcuts(ctx context.Context, r *run) error {
	groups, err := s.dups.ListGroupsByJob(ctx, nil, r.job.ID)
	if err != nil {
		return errkind.New(errkind.Store, "executor.shortcuts", err)
	}
	for _, g := range groups {
		if g.KeeperID == nil {
			continue
		}
		keeperDest, ok := r.destByID[*g.KeeperID]
		if !ok {
			r.logOp(types.ExecActionShortcut, "", "", types.ExecStatusSkipped, "keeper was not copied")
			continue
		}
		members, err := s.dups.ListMembers(ctx, nil, g.ID)
		if err != nil {
			return errkind.New(errkind.Store, "executor.shortcuts", err)
		}
		for _, m := range members {
			if m.Role != types.DupRoleLoser {
				continue
			}
			loser := r.byID[m.DocumentItemID]
			if loser == nil {
				continue
			}
			switch m.Action {
			case types.DupActionKeepBoth:
				// stayed indexed and went through the plan like any other file
			case types.DupActionDelete:
				r.logOp(types.ExecActionDelete, loser.SourcePath, "", okOrDryRun(r.dryRun), "duplicate removed, keeper at "+keeperDest)
				r.manifest.Statistics.DuplicatesDeleted++
			default:
				if err := s.oneShortcut(r, loser, keeperDest); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// oneShortcut puts the link where the duplicate originally lived, so the old
// location still resolves to the kept copy.
func (s *Service) oneShortcut(r *run, loser *types.DocumentItem, keeperDest string) error {
	linkDir := ""
	if d := filepath.ToSlash(filepath.Dir(loser.SourcePath)); d != "." {
		linkDir = "/" + d
	}
	linkName := SanitizeFileName(strings.TrimSuffix(loser.FileName, loser.Extension))
	relLink := r.reserveName(linkDir, linkName)

	record := &types.ShortcutRecord{
		JobID:          r.job.ID,
		DocumentItemID: loser.ID,
		TargetPath:     keeperDest,
		Format:         types.ShortcutFormatURL,
	}

	if r.dryRun {
		record.LinkPath = relLink
		r.logOp(types.ExecActionShortcut, loser.SourcePath, relLink, types.ExecStatusDryRun, "duplicate of "+keeperDest)
		r.records = append(r.records, record)
		r.manifest.Statistics.ShortcutsCreated++
		return nil
	}

	linkAbs, ok := archive.SafeJoin(r.outDir, strings.TrimPrefix(relLink, "/"))
	if !ok {
		return errkind.Newf(errkind.Validation, "executor.shortcuts", "link %q escapes output root", relLink)
	}
	if err := os.MkdirAll(filepath.Dir(linkAbs), 0o755); err != nil {
		return errkind.New(errkind.IO, "executor.shortcuts", err)
	}
	targetAbs, _ := archive.SafeJoin(r.outDir, strings.TrimPrefix(keeperDest, "/"))
	finalPath, format, err := writeShortcut(linkAbs, targetAbs, s.cfg.ShortcutFormat)
	if err != nil {
		record.Error = err.Error()
		r.records = append(r.records, record)
		r.logOp(types.ExecActionShortcut, loser.SourcePath, relLink, types.ExecStatusError, err.Error())
		return nil
	}
	rel, relErr := filepath.Rel(r.outDir, finalPath)
	if relErr != nil {
		rel = finalPath
	}
	record.LinkPath = "/" + filepath.ToSlash(rel)
	record.Format = format
	record.Created = true
	r.records = append(r.records, record)
	r.logOp(types.ExecActionShortcut, loser.SourcePath, record.LinkPath, types.ExecStatusOK, "duplicate of "+keeperDest)
	r.manifest.Shortcuts = append(r.manifest.Shortcuts, ManifestOperation{
		Action: types.ExecActionShortcut,
		Source: loser.SourcePath,
		Dest:   record.LinkPath,
	})
	r.manifest.Statistics.ShortcutsCreated++
	return nil
}

// --- step 6: version archives ---

func (s *Service) stepVersionArchives(ctx context.Context, r *run) error {
	chains, err := s.versions.ListChainsByJob(ctx, nil, r.job.ID)
	if err != nil {
		return errkind.New(errkind.Store, "executor.versionArchives", err)
	}
	for _, chain := range chains {
		if ctx.Err() != nil {
			return errkind.New(errkind.Cancelled, "executor.versionArchives", ctx.Err())
		}
		if err := s.archiveChain(ctx, r, chain); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) archiveChain(ctx context.Context, r *run, chain *types.VersionChain) error {
	if chain.CurrentID == nil {
		return nil
	}
	currentDest, ok := r.destByID[*chain.CurrentID]
	if !ok {
		r.logOp(types.ExecActionVersionArchive, chain.BaseName, "", types.ExecStatusSkipped, "current version was not copied")
		return nil
	}
	currentDir := strings.TrimSuffix(currentDest, "/"+filepath.Base(currentDest))
	base := SanitizeFileName(chain.BaseName)
	ext := chain.Extension

	// The current member sheds its version markers and sits at the plain
	// base name.
	if filepath.Base(currentDest) != base+ext {
		renamed := r.reserveName(currentDir, base+ext)
		if !r.dryRun {
			oldAbs, _ := archive.SafeJoin(r.outDir, strings.TrimPrefix(currentDest, "/"))
			newAbs, ok := archive.SafeJoin(r.outDir, strings.TrimPrefix(renamed, "/"))
			if !ok {
				return errkind.Newf(errkind.Validation, "executor.versionArchives", "rename target %q escapes output root", renamed)
			}
			if err := os.Rename(oldAbs, newAbs); err != nil {
				return errkind.New(errkind.IO, "executor.versionArchives", err)
			}
		}
		r.logOp(types.ExecActionRename, currentDest, renamed, okOrDryRun(r.dryRun), "current version takes the base name")
		currentDest = renamed
		r.destByID[*chain.CurrentID] = renamed
		if !r.dryRun {
			if item := r.byID[*chain.CurrentID]; item != nil {
				if err := s.markApplied(ctx, item, renamed, appliedChanges(item, renamed)); err != nil {
					return err
				}
			}
		}
	}

	var archiveDir string
	switch chain.ArchiveStrategy {
	case types.ArchiveInline:
		archiveDir = currentDir
	case types.ArchiveSeparate:
		archiveDir = "/Archive/Versions/" + base
	default: // subfolder
		archiveDir = currentDir + "/_versions/" + base
	}

	members, err := s.versions.ListMembers(ctx, nil, chain.ID)
	if err != nil {
		return errkind.New(errkind.Store, "executor.versionArchives", err)
	}

	history := versionHistory{
		DocumentName:    chain.BaseName,
		ArchivePath:     archiveDir,
		ArchiveStrategy: chain.ArchiveStrategy,
		GeneratedAt:     time.Now(),
	}
	if rel, relErr := filepath.Rel(archiveDir, currentDest); relErr == nil {
		history.CurrentFile = filepath.ToSlash(rel)
	} else {
		history.CurrentFile = currentDest
	}

	for _, m := range members {
		entry := versionHistoryEntry{Version: m.Position + 1}
		if m.VersionNumber != nil {
			entry.Version = *m.VersionNumber
		}
		if m.VersionDate != nil {
			entry.Date = m.VersionDate.Format("2006-01-02")
		}
		entry.Status = m.VersionStatus

		if m.Role == types.VersionRoleCurrent {
			entry.File = filepath.Base(currentDest)
			history.CurrentVersion = entry.Version
			history.Versions = append(history.Versions, entry)
			continue
		}

		item := r.byID[m.DocumentItemID]
		if item == nil {
			continue
		}
		date := item.ModTime.Format("2006-01-02")
		if m.VersionDate != nil {
			date = m.VersionDate.Format("2006-01-02")
		}
		entry.Date = date
		archiveName := fmt.Sprintf("%s_v%d_%s%s", base, entry.Version, date, ext)
		relDest := r.reserveName(archiveDir, archiveName)
		entry.File = filepath.Base(relDest)
		history.Versions = append(history.Versions, entry)

		if r.dryRun {
			r.logOp(types.ExecActionVersionArchive, item.SourcePath, relDest, types.ExecStatusDryRun, "")
			r.manifest.Statistics.VersionArchives++
			continue
		}
		dest, ok := archive.SafeJoin(r.outDir, strings.TrimPrefix(relDest, "/"))
		if !ok {
			return errkind.Newf(errkind.Validation, "executor.versionArchives", "archive path %q escapes output root", relDest)
		}
		src := filepath.Join(r.srcRoot, filepath.FromSlash(item.SourcePath))
		if err := copyFile(src, dest, item.ModTime); err != nil {
			r.logOp(types.ExecActionVersionArchive, item.SourcePath, relDest, types.ExecStatusError, err.Error())
			continue
		}
		r.destByID[item.ID] = relDest
		r.logOp(types.ExecActionVersionArchive, item.SourcePath, relDest, types.ExecStatusOK, "")
		r.manifest.Statistics.VersionArchives++
		if err := s.markApplied(ctx, item, relDest, appliedChanges(item, relDest, "archived")); err != nil {
			return err
		}
	}

	if !r.dryRun {
		histDir, ok := archive.SafeJoin(r.outDir, strings.TrimPrefix(archiveDir, "/"))
		if !ok {
			return errkind.Newf(errkind.Validation, "executor.versionArchives", "archive dir %q escapes output root", archiveDir)
		}
		if err := os.MkdirAll(histDir, 0o755); err != nil {
			return errkind.New(errkind.IO, "executor.versionArchives", err)
		}
		raw, err := json.MarshalIndent(history, "", "  ")
		if err != nil {
			return errkind.New(errkind.Fatal, "executor.versionArchives", err)
		}
		if err := os.WriteFile(filepath.Join(histDir, versionHistoryFileName), raw, 0o644); err != nil {
			return errkind.New(errkind.IO, "executor.versionArchives", err)
		}
	}
	return nil
}

func okOrDryRun(dryRun bool) string {
	if dryRun {
		return types.ExecStatusDryRun
	}
	return types.ExecStatusOK
}

// --- step 7: manifest ---

func (s *Service) stepManifest(_ context.Context, r *run) error {
	if r.dryRun {
		r.logOp(types.ExecActionManifest, "", manifestFileName, types.ExecStatusDryRun, "")
		return nil
	}
	if err := r.manifest.write(r.outDir); err != nil {
		return errkind.New(errkind.IO, "executor.manifest", err)
	}
	r.logOp(types.ExecActionManifest, "", manifestFileName, types.ExecStatusOK, "")
	return nil
}

// Rollback removes everything execution produced and clears its records.
// The indexed corpus and the plan survive, so the job can re-execute.
func (s *Service) Rollback(ctx context.Context, job *types.Job) error {
	if err := os.RemoveAll(job.OutputDir); err != nil {
		return errkind.New(errkind.IO, "executor.Rollback", err)
	}
	if job.OutputZip != "" {
		if err := os.Remove(job.OutputZip); err != nil && !os.IsNotExist(err) {
			return errkind.New(errkind.IO, "executor.Rollback", err)
		}
	}
	err := db.WithTx(s.gdb, func(tx *gorm.DB) error {
		if err := s.shortcuts.DeleteByJob(ctx, tx, job.ID); err != nil {
			return err
		}
		return s.execLog.DeleteByJob(ctx, tx, job.ID)
	})
	if err != nil {
		return errkind.New(errkind.Store, "executor.Rollback", err)
	}
	s.log.Info("Execution rolled back", "job_id", job.ID)
	return nil
}
