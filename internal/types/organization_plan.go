package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type OrganizationPlan struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"job_id"`
	Job           *Job           `gorm:"constraint:OnDelete:CASCADE;foreignKey:JobID;references:ID" json:"-"`
	Directories   datatypes.JSON `gorm:"column:directories;type:jsonb" json:"directories"`
	Assignments   datatypes.JSON `gorm:"column:assignments;type:jsonb" json:"assignments"`
	NamingSchema  datatypes.JSON `gorm:"column:naming_schema;type:jsonb" json:"naming_schema,omitempty"`
	TagTaxonomy   datatypes.JSON `gorm:"column:tag_taxonomy;type:jsonb" json:"tag_taxonomy,omitempty"`
	Summary       string         `gorm:"column:summary" json:"summary,omitempty"`
	ModelUsed     string         `gorm:"column:model_used" json:"model_used,omitempty"`
	TotalAssigned int            `gorm:"column:total_assigned;not null;default:0" json:"total_assigned"`
	RepairedCount int            `gorm:"column:repaired_count;not null;default:0" json:"repaired_count"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (OrganizationPlan) TableName() string { return "organization_plan" }

// Plan payload shapes stored in the JSON columns above. The planner builds
// them, the executor consumes them.

type DirectoryNode struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

type FileAssignment struct {
	SourcePath string   `json:"source_path"`
	TargetDir  string   `json:"target_dir"`
	TargetName string   `json:"target_name,omitempty"` // empty keeps the original name
	Tags       []string `json:"tags,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Repaired   bool     `json:"repaired,omitempty"`
}

type NamingSchema struct {
	Pattern     string `json:"pattern"`
	Separator   string `json:"separator,omitempty"`
	Case        string `json:"case,omitempty"`
	DateFormat  string `json:"date_format,omitempty"`
	Description string `json:"description,omitempty"`
}

type TagTaxonomy struct {
	Tags []TaxonomyTag `json:"tags"`
}

type TaxonomyTag struct {
	Name     string        `json:"name"`
	Children []TaxonomyTag `json:"children,omitempty"`
}
