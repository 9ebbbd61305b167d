package repos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/db"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/types"
)

func repoSetup(t *testing.T) (*gorm.DB, JobRepo) {
	t.Helper()
	log, err := logger.New("dev")
	require.NoError(t, err)
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return gdb, NewJobRepo(gdb, log)
}

func seedJob(t *testing.T, repo JobRepo, mutate func(*types.Job)) *types.Job {
	t.Helper()
	job := &types.Job{
		Status:    types.JobStatusQueued,
		SourceZip: "/tmp/source.zip",
	}
	if mutate != nil {
		mutate(job)
	}
	created, err := repo.Create(context.Background(), nil, job)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	return created
}

func TestClaimNextRunnableBumpsAttempts(t *testing.T) {
	_, repo := repoSetup(t)
	ctx := context.Background()
	seeded := seedJob(t, repo, nil)

	claimed, err := repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 15*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, seeded.ID, claimed.ID)
	require.Equal(t, types.JobStatusRunning, claimed.Status)
	require.Equal(t, 1, claimed.Attempts)
	require.NotNil(t, claimed.LockedAt)
	require.NotNil(t, claimed.HeartbeatAt)

	stored, err := repo.GetByID(ctx, nil, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, types.JobStatusRunning, stored.Status)
	require.Equal(t, 1, stored.Attempts)

	// Nothing else is runnable now.
	again, err := repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 15*time.Minute)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestClaimNextRunnableOldestFirst(t *testing.T) {
	_, repo := repoSetup(t)
	ctx := context.Background()

	first := seedJob(t, repo, func(j *types.Job) { j.CreatedAt = time.Now().Add(-2 * time.Hour) })
	seedJob(t, repo, func(j *types.Job) { j.CreatedAt = time.Now().Add(-1 * time.Hour) })

	claimed, err := repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 15*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, first.ID, claimed.ID)
}

func TestClaimNextRunnableHonorsRetryDelay(t *testing.T) {
	_, repo := repoSetup(t)
	ctx := context.Background()
	job := seedJob(t, repo, nil)

	recent := time.Now().Add(-5 * time.Second)
	require.NoError(t, repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"attempts":      1,
		"last_error_at": recent,
	}))

	claimed, err := repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 15*time.Minute)
	require.NoError(t, err)
	require.Nil(t, claimed, "job inside the retry delay must not be claimed")

	old := time.Now().Add(-time.Minute)
	require.NoError(t, repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"last_error_at": old,
	}))
	claimed, err = repo.ClaimNextRunnable(ctx, nil, 3, 30*time.Second, 15*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, 2, claimed.Attempts)
}

func TestClaimNextRunnableSkipsExhaustedJobs(t *testing.T) {
	_, repo := repoSetup(t)
	ctx := context.Background()
	job := seedJob(t, repo, nil)

	require.NoError(t, repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"attempts": 3,
	}))
	claimed, err := repo.ClaimNextRunnable(ctx, nil, 3, 0, 15*time.Minute)
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestClaimNextRunnableReclaimsStaleRunning(t *testing.T) {
	_, repo := repoSetup(t)
	ctx := context.Background()
	job := seedJob(t, repo, nil)

	fresh := time.Now()
	require.NoError(t, repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":       types.JobStatusRunning,
		"attempts":     1,
		"heartbeat_at": fresh,
	}))
	claimed, err := repo.ClaimNextRunnable(ctx, nil, 3, 0, 15*time.Minute)
	require.NoError(t, err)
	require.Nil(t, claimed, "a running job with a fresh heartbeat stays claimed")

	stale := time.Now().Add(-time.Hour)
	require.NoError(t, repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"heartbeat_at": stale,
	}))
	claimed, err = repo.ClaimNextRunnable(ctx, nil, 3, 0, 15*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, job.ID, claimed.ID)
	require.Equal(t, 2, claimed.Attempts)
}

func TestUpdateFieldsUnlessStatusGuards(t *testing.T) {
	_, repo := repoSetup(t)
	ctx := context.Background()
	job := seedJob(t, repo, nil)

	ok, err := repo.UpdateFieldsUnlessStatus(ctx, nil, job.ID,
		[]string{types.JobStatusCancelled},
		map[string]interface{}{"status": types.JobStatusRunning})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status": types.JobStatusCancelled,
	}))

	// A late worker update must not resurrect a cancelled job.
	ok, err = repo.UpdateFieldsUnlessStatus(ctx, nil, job.ID,
		[]string{types.JobStatusCancelled},
		map[string]interface{}{"status": types.JobStatusCompleted})
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.GetByID(ctx, nil, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.JobStatusCancelled, stored.Status)
}

func TestHeartbeatOnlyTouchesRunningJobs(t *testing.T) {
	_, repo := repoSetup(t)
	ctx := context.Background()
	job := seedJob(t, repo, nil)

	require.NoError(t, repo.Heartbeat(ctx, nil, job.ID))
	stored, err := repo.GetByID(ctx, nil, job.ID)
	require.NoError(t, err)
	require.Nil(t, stored.HeartbeatAt, "queued jobs do not heartbeat")

	require.NoError(t, repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status": types.JobStatusRunning,
	}))
	require.NoError(t, repo.Heartbeat(ctx, nil, job.ID))
	stored, err = repo.GetByID(ctx, nil, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.HeartbeatAt)
}

func TestListRecentClampsLimit(t *testing.T) {
	_, repo := repoSetup(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedJob(t, repo, func(j *types.Job) {
			j.CreatedAt = time.Now().Add(-time.Duration(i) * time.Minute)
		})
	}

	out, err := repo.ListRecent(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)

	out, err = repo.ListRecent(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
}
