package repos

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/db"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/types"
)

func itemSetup(t *testing.T) (*gorm.DB, DocumentItemRepo, *types.Job) {
	t.Helper()
	log, err := logger.New("dev")
	require.NoError(t, err)
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	job := &types.Job{Status: types.JobStatusQueued, SourceZip: "/tmp/source.zip"}
	require.NoError(t, gdb.Create(job).Error)
	return gdb, NewDocumentItemRepo(gdb, log), job
}

func seedItems(t *testing.T, repo DocumentItemRepo, job *types.Job, statuses ...string) []*types.DocumentItem {
	t.Helper()
	items := make([]*types.DocumentItem, 0, len(statuses))
	for i, status := range statuses {
		items = append(items, &types.DocumentItem{
			JobID:      job.ID,
			SourcePath: "/docs/file_" + string(rune('a'+i)) + ".txt",
			FileName:   "file_" + string(rune('a'+i)) + ".txt",
			Extension:  ".txt",
			Status:     status,
		})
	}
	created, err := repo.CreateBatch(context.Background(), nil, items)
	require.NoError(t, err)
	return created
}

func TestListByJobAndStatus(t *testing.T) {
	_, repo, job := itemSetup(t)
	ctx := context.Background()
	seedItems(t, repo, job,
		types.DocStatusIndexed, types.DocStatusDuplicate, types.DocStatusIndexed)

	indexed, err := repo.ListByJobAndStatus(ctx, nil, job.ID, []string{types.DocStatusIndexed})
	require.NoError(t, err)
	require.Len(t, indexed, 2)

	all, err := repo.ListByJob(ctx, nil, job.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestResetStatusByJob(t *testing.T) {
	_, repo, job := itemSetup(t)
	ctx := context.Background()
	seedItems(t, repo, job,
		types.DocStatusOrganized, types.DocStatusOrganized, types.DocStatusDuplicate)

	err := repo.ResetStatusByJob(ctx, nil, job.ID,
		[]string{types.DocStatusOrganized}, types.DocStatusCurrent)
	require.NoError(t, err)

	current, err := repo.ListByJobAndStatus(ctx, nil, job.ID, []string{types.DocStatusCurrent})
	require.NoError(t, err)
	require.Len(t, current, 2)

	dups, err := repo.ListByJobAndStatus(ctx, nil, job.ID, []string{types.DocStatusDuplicate})
	require.NoError(t, err)
	require.Len(t, dups, 1)
}

func TestUpdateFieldsRecordsFinalLocation(t *testing.T) {
	_, repo, job := itemSetup(t)
	ctx := context.Background()
	seedItems(t, repo, job, types.DocStatusOrganized)

	all, err := repo.ListByJob(ctx, nil, job.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)

	err = repo.UpdateFields(ctx, nil, all[0].ID, map[string]interface{}{
		"final_name": "report.txt",
		"final_path": "/Documents/report.txt",
		"status":     types.DocStatusApplied,
	})
	require.NoError(t, err)

	fresh, err := repo.GetByID(ctx, nil, all[0].ID)
	require.NoError(t, err)
	require.Equal(t, types.DocStatusApplied, fresh.Status)
	require.Equal(t, "/Documents/report.txt", fresh.FinalPath)
	require.Equal(t, "report.txt", fresh.FinalName)
}

func TestPlanUpsertReplacesExisting(t *testing.T) {
	gdb, _, job := itemSetup(t)
	ctx := context.Background()
	log, err := logger.New("dev")
	require.NoError(t, err)
	plans := NewPlanRepo(gdb, log)

	first := &types.OrganizationPlan{
		JobID:         job.ID,
		Directories:   datatypes.JSON(`[{"path":"/Work"}]`),
		Assignments:   datatypes.JSON(`[]`),
		TotalAssigned: 1,
	}
	_, err = plans.Upsert(ctx, nil, first)
	require.NoError(t, err)

	second := &types.OrganizationPlan{
		JobID:         job.ID,
		Directories:   datatypes.JSON(`[{"path":"/Work"},{"path":"/Archive"}]`),
		Assignments:   datatypes.JSON(`[]`),
		TotalAssigned: 2,
	}
	_, err = plans.Upsert(ctx, nil, second)
	require.NoError(t, err)

	stored, err := plans.GetByJob(ctx, nil, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, 2, stored.TotalAssigned)
	require.Equal(t, first.ID, stored.ID, "upsert keeps one row per job")
}
