package versions

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/organizer-backend/internal/clients/ollama"
	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/db"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

func TestParseMarkers(t *testing.T) {
	cases := []struct {
		stem    string
		base    string
		number  int // -1 means nil
		status  string
		date    string
		matched bool
	}{
		{"report_v2", "report", 2, "", "", true},
		{"report_rev3", "report", 3, "", "", true},
		{"report_version10", "report", 10, "", "", true},
		{"report (2)", "report", 2, "", "", true},
		{"budget_2024-03-01", "budget", -1, "", "2024-03-01", true},
		{"budget_20240301", "budget", -1, "", "2024-03-01", true},
		{"plan_draft", "plan", -1, "draft", "", true},
		{"plan_v3_final", "plan", 3, "final", "", true},
		{"plain_name", "plain_name", -1, "", "", false},
		{"invoice_99999999", "invoice_99999999", -1, "", "", false},
	}
	for _, tc := range cases {
		m := ParseMarkers(tc.stem)
		if m.Base != tc.base {
			t.Errorf("%q base = %q, want %q", tc.stem, m.Base, tc.base)
		}
		if tc.number == -1 && m.Number != nil {
			t.Errorf("%q number = %d, want nil", tc.stem, *m.Number)
		}
		if tc.number != -1 && (m.Number == nil || *m.Number != tc.number) {
			t.Errorf("%q number = %v, want %d", tc.stem, m.Number, tc.number)
		}
		if m.Status != tc.status {
			t.Errorf("%q status = %q, want %q", tc.stem, m.Status, tc.status)
		}
		if tc.date != "" {
			if m.Date == nil || m.Date.Format("2006-01-02") != tc.date {
				t.Errorf("%q date = %v, want %s", tc.stem, m.Date, tc.date)
			}
		}
		if m.Matched != tc.matched {
			t.Errorf("%q matched = %v, want %v", tc.stem, m.Matched, tc.matched)
		}
	}
}

func TestOrderChain(t *testing.T) {
	now := time.Now()
	n1, n2 := 1, 2
	fam := []candidate{
		{item: &types.DocumentItem{SourcePath: "a_v2.txt", ModTime: now.Add(-48 * time.Hour)}, markers: Markers{Number: &n2}},
		{item: &types.DocumentItem{SourcePath: "a_v1.txt", ModTime: now}, markers: Markers{Number: &n1}},
		{item: &types.DocumentItem{SourcePath: "a.txt", ModTime: now.Add(-time.Hour)}, markers: Markers{}},
	}
	ordered := orderChain(fam)
	if ordered[len(ordered)-1].item.SourcePath != "a_v2.txt" {
		t.Fatalf("newest = %s, want a_v2.txt", ordered[len(ordered)-1].item.SourcePath)
	}
}

func TestBuildFamiliesSimilarityMerge(t *testing.T) {
	items := []*types.DocumentItem{
		{SourcePath: "docs/quarterly_report.docx", FileName: "quarterly_report.docx", Extension: ".docx", ContentHash: "hA"},
		{SourcePath: "docs/quarterly_reprt.docx", FileName: "quarterly_reprt.docx", Extension: ".docx", ContentHash: "hB"},
	}
	fams := buildFamilies(items, 0.7)
	if len(fams) != 1 || len(fams[0]) != 2 {
		t.Fatalf("families = %+v", fams)
	}
}

func TestBuildFamiliesRespectsThreshold(t *testing.T) {
	items := []*types.DocumentItem{
		{SourcePath: "docs/notes.txt", FileName: "notes.txt", Extension: ".txt", ContentHash: "hA"},
		{SourcePath: "docs/plan.txt", FileName: "plan.txt", Extension: ".txt", ContentHash: "hB"},
	}
	if fams := buildFamilies(items, 0.7); len(fams) != 0 {
		t.Fatalf("unrelated names must not merge: %+v", fams)
	}
}

func TestBuildFamiliesIdenticalContentIsNotAVersionPair(t *testing.T) {
	items := []*types.DocumentItem{
		{SourcePath: "docs/quarterly_report.docx", FileName: "quarterly_report.docx", Extension: ".docx", ContentHash: "same"},
		{SourcePath: "docs/quarterly_reprt.docx", FileName: "quarterly_reprt.docx", Extension: ".docx", ContentHash: "same"},
	}
	if fams := buildFamilies(items, 0.7); len(fams) != 0 {
		t.Fatalf("identical content must not merge on name similarity: %+v", fams)
	}
}

func TestRunBuildsChainAndMarksSuperseded(t *testing.T) {
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
	cfg := &config.Pipeline{ArchiveStrategy: "subfolder", SimilarityThreshold: 0.7}
	svc := NewService(log, cfg, nil, items, vers)

	jobID := uuid.New()
	now := time.Now()
	seed := []*types.DocumentItem{
		{JobID: jobID, SourcePath: "docs/spec_v1.docx", FileName: "spec_v1.docx", Extension: ".docx", ModTime: now.Add(-72 * time.Hour), Status: types.DocStatusIndexed},
		{JobID: jobID, SourcePath: "docs/spec_v2.docx", FileName: "spec_v2.docx", Extension: ".docx", ModTime: now.Add(-24 * time.Hour), Status: types.DocStatusIndexed},
		{JobID: jobID, SourcePath: "docs/spec_final.docx", FileName: "spec_final.docx", Extension: ".docx", ModTime: now, Status: types.DocStatusIndexed},
		{JobID: jobID, SourcePath: "docs/other.docx", FileName: "other.docx", Extension: ".docx", ModTime: now, Status: types.DocStatusIndexed},
	}
	if _, err := items.CreateBatch(context.Background(), nil, seed); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.Run(context.Background(), jobID, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Chains != 1 || stats.Superseded != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	chains, err := vers.ListChainsByJob(context.Background(), nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chains) != 1 || chains[0].BaseName != "spec" {
		t.Fatalf("chains = %+v", chains)
	}

	all, err := items.ListByJob(context.Background(), nil, jobID)
	if err != nil {
		t.Fatal(err)
	}
	statuses := map[string]string{}
	for _, it := range all {
		statuses[it.SourcePath] = it.Status
	}
	// Explicit version numbers outrank lifecycle markers, so v2 is current
	// and the unnumbered "final" copy is treated as an earlier draft.
	if statuses["docs/spec_v2.docx"] != types.DocStatusCurrent {
		t.Fatalf("v2 status = %s", statuses["docs/spec_v2.docx"])
	}
	if statuses["docs/spec_v1.docx"] != types.DocStatusSuperseded {
		t.Fatalf("v1 status = %s", statuses["docs/spec_v1.docx"])
	}
	if statuses["docs/spec_final.docx"] != types.DocStatusSuperseded {
		t.Fatalf("final status = %s", statuses["docs/spec_final.docx"])
	}
	if statuses["docs/other.docx"] != types.DocStatusIndexed {
		t.Fatalf("other status = %s", statuses["docs/other.docx"])
	}
}

// fakeModel satisfies ollama.Client with a canned JSON reply.
type fakeModel struct {
	reply string
}

func (f *fakeModel) Generate(_ context.Context, _ string) (string, error) { return f.reply, nil }

func (f *fakeModel) GenerateJSON(_ context.Context, _ string, out any) error {
	return json.Unmarshal([]byte(f.reply), out)
}

func (f *fakeModel) Describe(_ context.Context, _, _ string) (ollama.Description, error) {
	return ollama.Description{}, nil
}

func (f *fakeModel) Healthy(_ context.Context) error { return nil }

func (f *fakeModel) HasModel(_ context.Context) (bool, error) { return true, nil }

func (f *fakeModel) Model() string { return "fake" }

func TestRunSimilarityChainNeedsConfirmation(t *testing.T) {
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
	cfg := &config.Pipeline{ArchiveStrategy: "subfolder", SimilarityThreshold: 0.7}
	svc := NewService(log, cfg, &fakeModel{reply: `{"same_document": false, "reason": "different audiences"}`}, items, vers)

	jobID := uuid.New()
	now := time.Now()
	seed := []*types.DocumentItem{
		{JobID: jobID, SourcePath: "docs/quarterly_report.docx", FileName: "quarterly_report.docx", Extension: ".docx", ContentHash: "hA", ModTime: now.Add(-time.Hour), Status: types.DocStatusIndexed},
		{JobID: jobID, SourcePath: "docs/quarterly_reprt.docx", FileName: "quarterly_reprt.docx", Extension: ".docx", ContentHash: "hB", ModTime: now, Status: types.DocStatusIndexed},
	}
	if _, err := items.CreateBatch(context.Background(), nil, seed); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.Run(context.Background(), jobID, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.LLMUsed != 1 {
		t.Fatalf("llm used = %d", stats.LLMUsed)
	}
	if stats.Chains != 0 || stats.Superseded != 0 {
		t.Fatalf("declined chain must not supersede anything: %+v", stats)
	}
}
