package planner

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/db"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

// fakePlanModel satisfies claude.Client with a canned reply.
type fakePlanModel struct {
	reply string
}

func (f *fakePlanModel) Complete(_ context.Context, _, _ string, _ int) (string, error) {
	return f.reply, nil
}

func (f *fakePlanModel) CompleteJSON(_ context.Context, _, _ string, _ int, out any) error {
	return json.Unmarshal([]byte(f.reply), out)
}

func (f *fakePlanModel) Model() string { return "fake" }

func plannerSetup(t *testing.T, reply string) (*Service, repos.DocumentItemRepo, repos.PlanRepo, uuid.UUID) {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatal(err)
	}
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	items := repos.NewDocumentItemRepo(gdb, log)
	vers := repos.NewVersionRepo(gdb, log)
	plans := repos.NewPlanRepo(gdb, log)
	cfg := &config.Pipeline{MaxRepairRatio: 0.1}
	svc := NewService(log, cfg, &fakePlanModel{reply: reply}, gdb, items, vers, plans)

	jobID := uuid.New()
	now := time.Now()
	seed := make([]*types.DocumentItem, 0, 10)
	for i := 0; i < 10; i++ {
		name := string(rune('a'+i)) + ".txt"
		seed = append(seed, &types.DocumentItem{
			JobID:      jobID,
			SourcePath: "docs/" + name,
			FileName:   name,
			Extension:  ".txt",
			ModTime:    now,
			Status:     types.DocStatusIndexed,
		})
	}
	if _, err := items.CreateBatch(context.Background(), nil, seed); err != nil {
		t.Fatal(err)
	}
	return svc, items, plans, jobID
}

func planJSON(t *testing.T, assigned int) string {
	t.Helper()
	reply := map[string]any{
		"summary":     "flat documents folder",
		"directories": []map[string]string{{"path": "/Documents"}},
	}
	assignments := []map[string]any{}
	for i := 0; i < assigned; i++ {
		name := string(rune('a'+i)) + ".txt"
		assignments = append(assignments, map[string]any{
			"source_path": "docs/" + name,
			"target_dir":  "/Documents",
		})
	}
	reply["assignments"] = assignments
	raw, err := json.Marshal(reply)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestRunPersistsPlanAndMarksOrganized(t *testing.T) {
	svc, items, plans, jobID := plannerSetup(t, planJSON(t, 10))

	stats, err := svc.Run(context.Background(), jobID, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Assigned != 10 || stats.Repaired != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	plan, err := plans.GetByJob(context.Background(), nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if plan == nil || plan.TotalAssigned != 10 {
		t.Fatalf("plan = %+v", plan)
	}

	all, err := items.ListByJob(context.Background(), nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range all {
		if it.Status != types.DocStatusOrganized || it.TargetDir != "/Documents" {
			t.Fatalf("%s: status=%s target=%s", it.SourcePath, it.Status, it.TargetDir)
		}
	}
}

func TestRunRejectedPlanPersistsNothing(t *testing.T) {
	// 7 of 10 assigned leaves 30% of the corpus unplaced.
	svc, items, plans, jobID := plannerSetup(t, planJSON(t, 7))

	_, err := svc.Run(context.Background(), jobID, nil)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if errkind.KindOf(err) != errkind.PlanningIncomplete {
		t.Fatalf("kind = %s, want planning_incomplete", errkind.KindOf(err))
	}

	plan, err := plans.GetByJob(context.Background(), nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if plan != nil {
		t.Fatal("rejected plan must not be stored")
	}

	all, err := items.ListByJob(context.Background(), nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range all {
		if it.Status != types.DocStatusIndexed {
			t.Fatalf("%s status = %s, want indexed", it.SourcePath, it.Status)
		}
	}
}
