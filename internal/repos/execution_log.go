package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/types"
)

type ExecutionLogRepo interface {
	Append(ctx context.Context, tx *gorm.DB, entries []*types.ExecutionLogEntry) error
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ExecutionLogEntry, error)
	DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error
}

type executionLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExecutionLogRepo(db *gorm.DB, baseLog *logger.Logger) ExecutionLogRepo {
	return &executionLogRepo{
		db:  db,
		log: baseLog.With("repo", "ExecutionLogRepo"),
	}
}

func (r *executionLogRepo) Append(ctx context.Context, tx *gorm.DB, entries []*types.ExecutionLogEntry) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(entries) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).CreateInBatches(&entries, 200).Error
}

func (r *executionLogRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ExecutionLogEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ExecutionLogEntry
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("step ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *executionLogRepo) DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Delete(&types.ExecutionLogEntry{}).Error
}
