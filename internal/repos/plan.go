package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/types"
)

type PlanRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, plan *types.OrganizationPlan) (*types.OrganizationPlan, error)
	GetByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.OrganizationPlan, error)
	DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error
}

type planRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return &planRepo{
		db:  db,
		log: baseLog.With("repo", "PlanRepo"),
	}
}

func (r *planRepo) Upsert(ctx context.Context, tx *gorm.DB, plan *types.OrganizationPlan) (*types.OrganizationPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if plan == nil {
		return nil, nil
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"directories", "assignments", "naming_schema", "tag_taxonomy",
				"summary", "model_used", "total_assigned", "repaired_count", "updated_at",
			}),
		}).
		Create(plan).Error
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepo) GetByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.OrganizationPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil, nil
	}
	var plan types.OrganizationPlan
	err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Limit(1).
		Find(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == uuid.Nil {
		return nil, nil
	}
	return &plan, nil
}

func (r *planRepo) DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Delete(&types.OrganizationPlan{}).Error
}
