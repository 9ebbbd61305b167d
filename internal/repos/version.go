package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/types"
)

type VersionRepo interface {
	CreateChain(ctx context.Context, tx *gorm.DB, chain *types.VersionChain, members []*types.VersionChainMember) (*types.VersionChain, error)
	ListChainsByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.VersionChain, error)
	ListMembers(ctx context.Context, tx *gorm.DB, chainID uuid.UUID) ([]*types.VersionChainMember, error)
	UpdateChainFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error
}

type versionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionRepo(db *gorm.DB, baseLog *logger.Logger) VersionRepo {
	return &versionRepo{
		db:  db,
		log: baseLog.With("repo", "VersionRepo"),
	}
}

func (r *versionRepo) CreateChain(ctx context.Context, tx *gorm.DB, chain *types.VersionChain, members []*types.VersionChainMember) (*types.VersionChain, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if chain == nil {
		return nil, nil
	}
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(chain).Error; err != nil {
			return err
		}
		for _, m := range members {
			m.ChainID = chain.ID
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
	return chain, nil
}

func (r *versionRepo) ListChainsByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.VersionChain, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.VersionChain
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("base_name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *versionRepo) ListMembers(ctx context.Context, tx *gorm.DB, chainID uuid.UUID) ([]*types.VersionChainMember, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.VersionChainMember
	if chainID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("chain_id = ?", chainID).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *versionRepo) UpdateChainFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.VersionChain{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *versionRepo) DeleteByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.
			Where("chain_id IN (?)", txx.Session(&gorm.Session{NewDB: true}).
				Model(&types.VersionChain{}).
				Select("id").
				Where("job_id = ?", jobID)).
			Delete(&types.VersionChainMember{}).Error; err != nil {
			return err
		}
		return txx.Where("job_id = ?", jobID).Delete(&types.VersionChain{}).Error
	})
}
