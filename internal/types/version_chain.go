package types

import (
	"time"

	"github.com/google/uuid"
)

// Archive strategies for superseded versions.
const (
	ArchiveSubfolder = "subfolder"
	ArchiveInline    = "inline"
	ArchiveSeparate  = "separate_archive"
)

const (
	VersionRoleCurrent    = "current"
	VersionRoleSuperseded = "superseded"
)

type VersionChain struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	JobID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"job_id"`
	Job             *Job       `gorm:"constraint:OnDelete:CASCADE;foreignKey:JobID;references:ID" json:"-"`
	BaseName        string     `gorm:"column:base_name;not null" json:"base_name"`
	Extension       string     `gorm:"column:extension" json:"extension"`
	ArchiveStrategy string     `gorm:"column:archive_strategy;not null;default:'subfolder'" json:"archive_strategy"`
	CurrentID       *uuid.UUID `gorm:"type:uuid;column:current_id" json:"current_id,omitempty"`
	Resolution      string     `gorm:"column:resolution;not null;default:'auto'" json:"resolution"`
	Reason          string     `gorm:"column:reason" json:"reason,omitempty"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (VersionChain) TableName() string { return "version_chain" }

type VersionChainMember struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ChainID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"chain_id"`
	Chain          *VersionChain `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChainID;references:ID" json:"-"`
	DocumentItemID uuid.UUID     `gorm:"type:uuid;not null;index" json:"document_item_id"`
	Position       int           `gorm:"column:position;not null;default:0" json:"position"`
	VersionNumber  *int          `gorm:"column:version_number" json:"version_number,omitempty"`
	VersionDate    *time.Time    `gorm:"column:version_date" json:"version_date,omitempty"`
	VersionStatus  string        `gorm:"column:version_status" json:"version_status,omitempty"`
	Role           string        `gorm:"column:role;not null;default:'superseded'" json:"role"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
}

func (VersionChainMember) TableName() string { return "version_chain_member" }
