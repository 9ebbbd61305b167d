package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	ShortcutFormatURL     = "url"
	ShortcutFormatDesktop = "desktop"
	ShortcutFormatSymlink = "symlink"
)

type ShortcutRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID          uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	Job            *Job      `gorm:"constraint:OnDelete:CASCADE;foreignKey:JobID;references:ID" json:"-"`
	DocumentItemID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_item_id"`
	LinkPath       string    `gorm:"column:link_path;not null" json:"link_path"`
	TargetPath     string    `gorm:"column:target_path;not null" json:"target_path"`
	Format         string    `gorm:"column:format;not null" json:"format"`
	Created        bool      `gorm:"column:created;not null;default:false" json:"created"`
	Error          string    `gorm:"column:error" json:"error,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (ShortcutRecord) TableName() string { return "shortcut_record" }
