package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	DupResolutionAuto = "auto"
	DupResolutionLLM  = "llm"

	DupRoleKeeper = "keeper"
	DupRoleLoser  = "loser"

	DupActionShortcut = "shortcut"
	DupActionKeepBoth = "keep_both"
	DupActionDelete   = "delete"
)

type DuplicateGroup struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	JobID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"job_id"`
	Job         *Job       `gorm:"constraint:OnDelete:CASCADE;foreignKey:JobID;references:ID" json:"-"`
	ContentHash string     `gorm:"column:content_hash;not null;index" json:"content_hash"`
	KeeperID    *uuid.UUID `gorm:"type:uuid;column:keeper_id" json:"keeper_id,omitempty"`
	Resolution  string     `gorm:"column:resolution;not null;default:'auto'" json:"resolution"`
	Reason      string     `gorm:"column:reason" json:"reason,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (DuplicateGroup) TableName() string { return "duplicate_group" }

type DuplicateGroupMember struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"group_id"`
	Group          *DuplicateGroup `gorm:"constraint:OnDelete:CASCADE;foreignKey:GroupID;references:ID" json:"-"`
	DocumentItemID uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_item_id"`
	Role           string          `gorm:"column:role;not null;default:'loser'" json:"role"`
	Action         string          `gorm:"column:action;not null;default:'shortcut'" json:"action"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

func (DuplicateGroupMember) TableName() string { return "duplicate_group_member" }
