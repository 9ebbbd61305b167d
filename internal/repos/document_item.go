package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/types"
)

type DocumentItemRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, items []*types.DocumentItem) ([]*types.DocumentItem, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DocumentItem, error)
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.DocumentItem, error)
	ListByJobAndStatus(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, statuses []string) ([]*types.DocumentItem, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	UpdateStatusBulk(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, status string) error
	ResetStatusByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, fromStatuses []string, toStatus string) error
	CountByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (int64, error)
}

type documentItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentItemRepo(db *gorm.DB, baseLog *logger.Logger) DocumentItemRepo {
	return &documentItemRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentItemRepo"),
	}
}

func (r *documentItemRepo) CreateBatch(ctx context.Context, tx *gorm.DB, items []*types.DocumentItem) ([]*types.DocumentItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return []*types.DocumentItem{}, nil
	}
	if err := transaction.WithContext(ctx).CreateInBatches(&items, 200).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *documentItemRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DocumentItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var item types.DocumentItem
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == uuid.Nil {
		return nil, nil
	}
	return &item, nil
}

func (r *documentItemRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.DocumentItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DocumentItem
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("source_path ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentItemRepo) ListByJobAndStatus(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, statuses []string) ([]*types.DocumentItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DocumentItem
	if jobID == uuid.Nil || len(statuses) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("job_id = ? AND status IN ?", jobID, statuses).
		Order("source_path ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentItemRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.DocumentItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *documentItemRepo) UpdateStatusBulk(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.DocumentItem{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *documentItemRepo) ResetStatusByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, fromStatuses []string, toStatus string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil || len(fromStatuses) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.DocumentItem{}).
		Where("job_id = ? AND status IN ?", jobID, fromStatuses).
		Updates(map[string]interface{}{
			"status":     toStatus,
			"updated_at": time.Now(),
		}).Error
}

func (r *documentItemRepo) CountByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return 0, nil
	}
	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.DocumentItem{}).
		Where("job_id = ?", jobID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
