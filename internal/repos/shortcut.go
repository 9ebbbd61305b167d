package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/types"
)

type ShortcutRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, records []*types.ShortcutRecord) ([]*types.ShortcutRecord, error)
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ShortcutRecord, error)
	DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error
}

type shortcutRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewShortcutRepo(db *gorm.DB, baseLog *logger.Logger) ShortcutRepo {
	return &shortcutRepo{
		db:  db,
		log: baseLog.With("repo", "ShortcutRepo"),
	}
}

func (r *shortcutRepo) CreateBatch(ctx context.Context, tx *gorm.DB, records []*types.ShortcutRecord) ([]*types.ShortcutRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(records) == 0 {
		return []*types.ShortcutRecord{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *shortcutRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ShortcutRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ShortcutRecord
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *shortcutRepo) DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Delete(&types.ShortcutRecord{}).Error
}
