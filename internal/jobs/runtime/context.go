package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/clients/redis"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/sse"
	"github.com/yungbote/organizer-backend/internal/types"
)

// Context is the execution handle for a single claimed job. Stage code never
// writes the job row directly; Progress, Park, Fail and Succeed are the only
// sanctioned transitions, and all of them refuse to overwrite a cancelled job.
type Context struct {
	Ctx  context.Context
	DB   *gorm.DB
	Job  *types.Job
	Repo repos.JobRepo
	Bus  redis.JobBus
	// Result accumulates per-stage outputs and is persisted by Succeed.
	Result  map[string]any
	options map[string]any
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.Job, repo repos.JobRepo, bus redis.JobBus) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Bus:    bus,
		Result: map[string]any{},
	}
	_ = c.decodeOptions()
	return c
}

func (c *Context) decodeOptions() error {
	if c.Job == nil || len(c.Job.Options) == 0 {
		c.options = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Options, &m); err != nil {
		c.options = map[string]any{}
		return err
	}
	c.options = m
	return nil
}

// Options returns the decoded submit-time options map, never nil.
func (c *Context) Options() map[string]any {
	if c.options == nil {
		c.options = map[string]any{}
	}
	return c.options
}

func (c *Context) publish(event sse.Event, data any) {
	if c.Bus == nil || c.Job == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	_ = c.Bus.Publish(ctx, sse.Message{
		Channel: sse.JobChannel(c.Job.ID),
		Event:   event,
		Data:    data,
	})
}

func (c *Context) guardedUpdate(updates map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, nil, c.Job.ID, []string{types.JobStatusCancelled}, updates)
	return ok
}

// Update applies field updates outside the lifecycle transitions, still
// guarded against overwriting a cancelled job.
func (c *Context) Update(updates map[string]interface{}) error {
	if c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(ctx, nil, c.Job.ID, []string{types.JobStatusCancelled}, updates)
	return err
}

// Progress persists a non-terminal stage/progress update, refreshes the
// heartbeat and emits a JobProgress event.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now()
	if !c.guardedUpdate(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.publish(sse.EventJobProgress, map[string]any{
		"job_id":   c.Job.ID,
		"stage":    stage,
		"progress": pct,
		"message":  msg,
	})
}

// Park moves the job to review_required and releases the lock. The job stays
// claimable only through an explicit approve, which re-queues it.
func (c *Context) Park(stage string, msg string) {
	if c == nil {
		return
	}
	now := time.Now()
	if !c.guardedUpdate(map[string]interface{}{
		"status":     types.JobStatusReviewRequired,
		"stage":      stage,
		"message":    msg,
		"locked_at":  nil,
		"updated_at": now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.JobStatusReviewRequired
		c.Job.Stage = stage
		c.Job.Message = msg
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	c.publish(sse.EventJobReview, map[string]any{
		"job_id":  c.Job.ID,
		"stage":   stage,
		"message": msg,
	})
}

// Requeue releases the job back to queued after a retryable failure. The
// attempt counter was already bumped at claim time; last_error_at delays the
// next claim by the worker's retry policy.
func (c *Context) Requeue(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if !c.guardedUpdate(map[string]interface{}{
		"status":        types.JobStatusQueued,
		"stage":         stage,
		"error":         msg,
		"error_kind":    string(errkind.KindOf(err)),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.JobStatusQueued
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
}

// Fail marks the job terminally failed, recording the error and its kind.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if !c.guardedUpdate(map[string]interface{}{
		"status":        types.JobStatusFailed,
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"error_kind":    string(errkind.KindOf(err)),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.JobStatusFailed
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.ErrorKind = string(errkind.KindOf(err))
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	c.publish(sse.EventJobFailed, map[string]any{
		"job_id": c.Job.ID,
		"stage":  stage,
		"error":  msg,
	})
}

// Succeed marks the job completed and stores the run result.
func (c *Context) Succeed(result any) {
	if c == nil {
		return
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	if !c.guardedUpdate(map[string]interface{}{
		"status":       types.JobStatusCompleted,
		"progress":     100,
		"message":      "",
		"error":        "",
		"error_kind":   "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.JobStatusCompleted
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.ErrorKind = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.publish(sse.EventJobDone, map[string]any{
		"job_id": c.Job.ID,
		"result": result,
	})
}

// Heartbeat refreshes heartbeat_at so a long stage is not reclaimed as stale.
func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	_ = c.Repo.Heartbeat(ctx, nil, c.Job.ID)
}
