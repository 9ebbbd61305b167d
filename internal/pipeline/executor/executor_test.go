package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/db"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

type fixture struct {
	svc       *Service
	items     repos.DocumentItemRepo
	dups      repos.DuplicateRepo
	versions  repos.VersionRepo
	plans     repos.PlanRepo
	shortcuts repos.ShortcutRepo
	execLog   repos.ExecutionLogRepo
	job       *types.Job
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatal(err)
	}
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		items:     repos.NewDocumentItemRepo(gdb, log),
		dups:      repos.NewDuplicateRepo(gdb, log),
		versions:  repos.NewVersionRepo(gdb, log),
		plans:     repos.NewPlanRepo(gdb, log),
		shortcuts: repos.NewShortcutRepo(gdb, log),
		execLog:   repos.NewExecutionLogRepo(gdb, log),
	}
	cfg := &config.Pipeline{ShortcutFormat: "auto"}
	f.svc = NewService(log, cfg, gdb, f.items, f.dups, f.versions, f.plans, f.shortcuts, f.execLog)
	f.job = &types.Job{
		ID:        uuid.New(),
		Status:    types.JobStatusRunning,
		SourceZip: "upload.zip",
		WorkDir:   t.TempDir(),
		OutputDir: filepath.Join(t.TempDir(), "organized"),
	}
	return f
}

func (f *fixture) seedFile(t *testing.T, relPath, content string) *types.DocumentItem {
	t.Helper()
	abs := filepath.Join(f.job.WorkDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	it := &types.DocumentItem{
		JobID:      f.job.ID,
		SourcePath: relPath,
		FileName:   filepath.Base(relPath),
		Extension:  filepath.Ext(relPath),
		SizeBytes:  int64(len(content)),
		ModTime:    time.Now().Add(-time.Hour).Truncate(time.Second),
		Status:     types.DocStatusOrganized,
	}
	created, err := f.items.CreateBatch(context.Background(), nil, []*types.DocumentItem{it})
	if err != nil {
		t.Fatal(err)
	}
	return created[0]
}

func (f *fixture) seedPlan(t *testing.T, dirs []types.DirectoryNode, assigns []types.FileAssignment) {
	t.Helper()
	rawDirs, _ := json.Marshal(dirs)
	rawAssigns, _ := json.Marshal(assigns)
	_, err := f.plans.Upsert(context.Background(), nil, &types.OrganizationPlan{
		JobID:         f.job.ID,
		Directories:   rawDirs,
		Assignments:   rawAssigns,
		TotalAssigned: len(assigns),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report.txt", "report.txt"},
		{`in<va>lid:"name".txt`, "invalidname.txt"},
		{"  spaced  ", "spaced"},
		{"trailing...", "trailing"},
		{"CON.txt", "_CON.txt"},
		{"lpt3", "_lpt3"},
		{"console.txt", "console.txt"},
		{"<>:*", "unnamed"},
		{"", "unnamed"},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteShortcutFormats(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, format, err := writeShortcut(filepath.Join(dir, "link-url"), target, types.ShortcutFormatURL)
	if err != nil {
		t.Fatalf("url shortcut: %v", err)
	}
	if format != types.ShortcutFormatURL || !strings.HasSuffix(path, ".url") {
		t.Fatalf("path=%q format=%q", path, format)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	if !strings.HasPrefix(body, "[InternetShortcut]\n") || !strings.Contains(body, "URL=file:///") {
		t.Fatalf("url body = %q", body)
	}
	if strings.Contains(body, "\r") || !strings.HasSuffix(body, "\n") {
		t.Fatalf("url body must be LF-terminated: %q", body)
	}

	path, format, err = writeShortcut(filepath.Join(dir, "link-desktop"), target, types.ShortcutFormatDesktop)
	if err != nil {
		t.Fatalf("desktop shortcut: %v", err)
	}
	if format != types.ShortcutFormatDesktop || !strings.HasSuffix(path, ".desktop") {
		t.Fatalf("path=%q format=%q", path, format)
	}
	raw, _ = os.ReadFile(path)
	body = string(raw)
	if !strings.Contains(body, "Type=Link") || !strings.Contains(body, "Name=link-desktop\n") {
		t.Fatalf("desktop body = %q", body)
	}
	if strings.Contains(body, "\r") || !strings.HasSuffix(body, "\n") {
		t.Fatalf("desktop body must be LF-terminated: %q", body)
	}

	path, format, err = writeShortcut(filepath.Join(dir, "link-auto"), target, "auto")
	if err != nil {
		t.Fatalf("auto shortcut: %v", err)
	}
	if format == types.ShortcutFormatSymlink {
		resolved, err := os.Readlink(path)
		if err != nil {
			t.Fatal(err)
		}
		if resolved != "target.txt" {
			t.Fatalf("symlink resolves to %q, want relative target", resolved)
		}
	}
}

func TestRunExecutesPlan(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	keeper := f.seedFile(t, "docs/report.txt", "report contents")
	loser := f.seedFile(t, "backup/report.txt", "report contents")
	specV2 := f.seedFile(t, "docs/spec_v2.txt", "spec version two")
	specV1 := f.seedFile(t, "docs/spec_v1.txt", "spec version one")

	f.seedPlan(t,
		[]types.DirectoryNode{
			{Path: "/Work"},
			{Path: "/Work/Reports"},
			{Path: "/Work/Specs"},
		},
		[]types.FileAssignment{
			{SourcePath: keeper.SourcePath, TargetDir: "/Work/Reports", TargetName: "report.txt"},
			{SourcePath: specV2.SourcePath, TargetDir: "/Work/Specs"},
		})

	_, err := f.dups.CreateGroup(ctx, nil, &types.DuplicateGroup{
		JobID:       f.job.ID,
		ContentHash: "h1",
		KeeperID:    &keeper.ID,
		Resolution:  types.DupResolutionAuto,
	}, []*types.DuplicateGroupMember{
		{DocumentItemID: keeper.ID, Role: types.DupRoleKeeper, Action: types.DupActionShortcut},
		{DocumentItemID: loser.ID, Role: types.DupRoleLoser, Action: types.DupActionShortcut},
	})
	if err != nil {
		t.Fatal(err)
	}

	one, two := 1, 2
	_, err = f.versions.CreateChain(ctx, nil, &types.VersionChain{
		JobID:           f.job.ID,
		BaseName:        "spec",
		Extension:       ".txt",
		ArchiveStrategy: types.ArchiveSubfolder,
		CurrentID:       &specV2.ID,
	}, []*types.VersionChainMember{
		{DocumentItemID: specV1.ID, Position: 0, VersionNumber: &one, Role: types.VersionRoleSuperseded},
		{DocumentItemID: specV2.ID, Position: 1, VersionNumber: &two, Role: types.VersionRoleCurrent},
	})
	if err != nil {
		t.Fatal(err)
	}

	manifest, err := f.svc.Run(ctx, f.job, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	reportPath := filepath.Join(f.job.OutputDir, "Work", "Reports", "report.txt")
	raw, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("copied file missing: %v", err)
	}
	if string(raw) != "report contents" {
		t.Fatalf("copied contents = %q", raw)
	}
	info, err := os.Stat(reportPath)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Truncate(time.Second).Equal(keeper.ModTime.Truncate(time.Second)) {
		t.Errorf("mtime not preserved: got %v want %v", info.ModTime(), keeper.ModTime)
	}

	archiveName := "spec_v1_" + specV1.ModTime.Format("2006-01-02") + ".txt"
	archived := filepath.Join(f.job.OutputDir, "Work", "Specs", "_versions", "spec", archiveName)
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("archived version missing: %v", err)
	}
	current := filepath.Join(f.job.OutputDir, "Work", "Specs", "spec.txt")
	if raw, err := os.ReadFile(current); err != nil || string(raw) != "spec version two" {
		t.Fatalf("current version should take the base name: %q %v", raw, err)
	}
	histRaw, err := os.ReadFile(filepath.Join(f.job.OutputDir, "Work", "Specs", "_versions", "spec", versionHistoryFileName))
	if err != nil {
		t.Fatalf("version history missing: %v", err)
	}
	var hist versionHistory
	if err := json.Unmarshal(histRaw, &hist); err != nil {
		t.Fatal(err)
	}
	if hist.CurrentVersion != 2 || hist.CurrentFile != "../../spec.txt" || len(hist.Versions) != 2 {
		t.Fatalf("history = %+v", hist)
	}

	records, err := f.shortcuts.ListByJob(ctx, nil, f.job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("shortcut records = %d", len(records))
	}
	if !records[0].Created || records[0].TargetPath != "/Work/Reports/report.txt" {
		t.Fatalf("shortcut record = %+v", records[0])
	}
	if !strings.HasPrefix(records[0].LinkPath, "/backup/report") {
		t.Fatalf("shortcut should sit at the duplicate's original location, got %q", records[0].LinkPath)
	}
	linkAbs := filepath.Join(f.job.OutputDir, filepath.FromSlash(strings.TrimPrefix(records[0].LinkPath, "/")))
	if _, err := os.Lstat(linkAbs); err != nil {
		t.Fatalf("shortcut missing on disk: %v", err)
	}

	applied, err := f.items.GetByID(ctx, nil, keeper.ID)
	if err != nil {
		t.Fatal(err)
	}
	if applied.Status != types.DocStatusApplied || applied.FinalPath != "/Work/Reports/report.txt" || applied.FinalName != "report.txt" {
		t.Fatalf("keeper final location = %+v", applied)
	}
	var changes []string
	if err := json.Unmarshal(applied.ChangesApplied, &changes); err != nil || len(changes) == 0 {
		t.Fatalf("changes_applied = %s (%v)", applied.ChangesApplied, err)
	}
	appliedSpec, err := f.items.GetByID(ctx, nil, specV2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if appliedSpec.Status != types.DocStatusApplied || appliedSpec.FinalPath != "/Work/Specs/spec.txt" {
		t.Fatalf("current version final location = %+v", appliedSpec)
	}

	if _, err := os.Stat(filepath.Join(f.job.OutputDir, manifestFileName)); err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	st := manifest.Statistics
	if st.FilesCopied != 2 || st.DirectoriesCreated != 3 || st.ShortcutsCreated != 1 || st.VersionArchives != 1 || st.Errors != 0 {
		t.Fatalf("statistics = %+v", st)
	}

	entries, err := f.execLog.ListByJob(ctx, nil, f.job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("no execution log entries")
	}
}

func TestRunDeleteActionSkipsShortcut(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	keeper := f.seedFile(t, "docs/report.txt", "report contents")
	loser := f.seedFile(t, "backup/report.txt", "report contents")
	f.seedPlan(t,
		[]types.DirectoryNode{{Path: "/Docs"}},
		[]types.FileAssignment{{SourcePath: keeper.SourcePath, TargetDir: "/Docs"}})

	_, err := f.dups.CreateGroup(ctx, nil, &types.DuplicateGroup{
		JobID:       f.job.ID,
		ContentHash: "h1",
		KeeperID:    &keeper.ID,
		Resolution:  types.DupResolutionAuto,
	}, []*types.DuplicateGroupMember{
		{DocumentItemID: keeper.ID, Role: types.DupRoleKeeper, Action: types.DupActionDelete},
		{DocumentItemID: loser.ID, Role: types.DupRoleLoser, Action: types.DupActionDelete},
	})
	if err != nil {
		t.Fatal(err)
	}

	manifest, err := f.svc.Run(ctx, f.job, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if manifest.Statistics.ShortcutsCreated != 0 || manifest.Statistics.DuplicatesDeleted != 1 {
		t.Fatalf("statistics = %+v", manifest.Statistics)
	}
	records, err := f.shortcuts.ListByJob(ctx, nil, f.job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("deleted duplicate should leave no shortcut record, got %d", len(records))
	}
	entries, err := f.execLog.ListByJob(ctx, nil, f.job.ID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range entries {
		if e.Action == types.ExecActionDelete && e.SourcePath == loser.SourcePath {
			found = true
		}
	}
	if !found {
		t.Fatal("no delete entry in the execution log")
	}
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	f := setup(t)
	f.job.DryRun = true
	ctx := context.Background()

	item := f.seedFile(t, "docs/a.txt", "a")
	f.seedPlan(t,
		[]types.DirectoryNode{{Path: "/Docs"}},
		[]types.FileAssignment{{SourcePath: item.SourcePath, TargetDir: "/Docs"}})

	manifest, err := f.svc.Run(ctx, f.job, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !manifest.DryRun || manifest.Statistics.FilesCopied != 1 {
		t.Fatalf("manifest = %+v", manifest)
	}
	if _, err := os.Stat(f.job.OutputDir); !os.IsNotExist(err) {
		t.Fatalf("output dir exists after dry run: %v", err)
	}

	entries, err := f.execLog.ListByJob(ctx, nil, f.job.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Status != types.ExecStatusDryRun {
			t.Fatalf("entry %s has status %s", e.Action, e.Status)
		}
	}
}

func TestRunResolvesNameCollisions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.seedFile(t, "one/notes.txt", "first")
	b := f.seedFile(t, "two/notes.txt", "second")
	f.seedPlan(t,
		[]types.DirectoryNode{{Path: "/Docs"}},
		[]types.FileAssignment{
			{SourcePath: a.SourcePath, TargetDir: "/Docs", TargetName: "notes.txt"},
			{SourcePath: b.SourcePath, TargetDir: "/Docs", TargetName: "notes.txt"},
		})

	if _, err := f.svc.Run(ctx, f.job, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.job.OutputDir, "Docs", "notes.txt")); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(f.job.OutputDir, "Docs", "notes_1.txt"))
	if err != nil {
		t.Fatalf("suffixed copy missing: %v", err)
	}
	if string(raw) != "second" {
		t.Fatalf("suffixed copy = %q", raw)
	}
}

func TestRunFailsWithoutPlan(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.Run(context.Background(), f.job, nil); err == nil {
		t.Fatal("expected error for missing plan")
	}
}

func TestRollback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	item := f.seedFile(t, "docs/a.txt", "a")
	f.seedPlan(t,
		[]types.DirectoryNode{{Path: "/Docs"}},
		[]types.FileAssignment{{SourcePath: item.SourcePath, TargetDir: "/Docs"}})

	if _, err := f.svc.Run(ctx, f.job, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := f.svc.Rollback(ctx, f.job); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, err := os.Stat(f.job.OutputDir); !os.IsNotExist(err) {
		t.Fatal("output dir survived rollback")
	}
	entries, err := f.execLog.ListByJob(ctx, nil, f.job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("execution log entries survived rollback: %d", len(entries))
	}
}
