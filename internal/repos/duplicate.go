package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/types"
)

type DuplicateRepo interface {
	CreateGroup(ctx context.Context, tx *gorm.DB, group *types.DuplicateGroup, members []*types.DuplicateGroupMember) (*types.DuplicateGroup, error)
	ListGroupsByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.DuplicateGroup, error)
	ListMembers(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.DuplicateGroupMember, error)
	UpdateGroupFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error
}

type duplicateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDuplicateRepo(db *gorm.DB, baseLog *logger.Logger) DuplicateRepo {
	return &duplicateRepo{
		db:  db,
		log: baseLog.With("repo", "DuplicateRepo"),
	}
}

func (r *duplicateRepo) CreateGroup(ctx context.Context, tx *gorm.DB, group *types.DuplicateGroup, members []*types.DuplicateGroupMember) (*types.DuplicateGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if group == nil {
		return nil, nil
	}
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(group).Error; err != nil {
			return err
		}
		for _, m := range members {
			m.GroupID = group.ID
		}
		if len(members) > 0 {
			if err := txx.Create(&members).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (r *duplicateRepo) ListGroupsByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.DuplicateGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DuplicateGroup
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

func (r *duplicateRepo) ListMembers(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.DuplicateGroupMember, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DuplicateGroupMember
	if groupID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("group_id = ?", groupID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *duplicateRepo) UpdateGroupFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.DuplicateGroup{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *duplicateRepo) DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.
			Where("group_id IN (?)", txx.Session(&gorm.Session{NewDB: true}).
				Model(&types.DuplicateGroup{}).
				Select("id").
				Where("job_id = ?", jobID)).
			Delete(&types.DuplicateGroupMember{}).Error; err != nil {
			return err
		}
		return txx.Where("job_id = ?", jobID).Delete(&types.DuplicateGroup{}).Error
	})
}
