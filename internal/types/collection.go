package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CollectionStatusBuilding  = "building"
	CollectionStatusAnalyzing = "analyzing"
	CollectionStatusReady     = "ready"
	CollectionStatusFailed    = "failed"
)

type SourceCollection struct {
	ID                  uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"organization_id"`
	Organization        *Organization `gorm:"constraint:OnDelete:CASCADE;foreignKey:OrganizationID;references:ID" json:"organization,omitempty"`
	Title               string        `gorm:"column:title;not null" json:"title"`
	Description         string        `gorm:"column:description" json:"description"`
	Status              string        `gorm:"column:status;not null;default:'building';index" json:"status"`
	Error               string        `gorm:"column:error" json:"error,omitempty"`
	AnalysisCompletedAt *time.Time    `gorm:"column:analysis_completed_at" json:"analysis_completed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SourceCollection) TableName() string { return "source_collection" }

// CollectionSource records membership with insertion order. Order indices are
// never compacted after removal; the next index is always max+1.
type CollectionSource struct {
	ID           uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CollectionID uuid.UUID         `gorm:"type:uuid;not null;index" json:"collection_id"`
	Collection   *SourceCollection `gorm:"constraint:OnDelete:CASCADE;foreignKey:CollectionID;references:ID" json:"collection,omitempty"`
	SourceID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"source_id"`
	Source       *Source           `gorm:"constraint:OnDelete:CASCADE;foreignKey:SourceID;references:ID" json:"source,omitempty"`
	OrderIndex   int               `gorm:"column:order_index;not null" json:"order_index"`
	CreatedAt    time.Time         `gorm:"not null;default:now()" json:"created_at"`
}

func (CollectionSource) TableName() string { return "collection_source" }

// CollectionAnalysis rows are append-only; the latest row is the current
// cross-source synthesis for the collection.
type CollectionAnalysis struct {
	ID           uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CollectionID uuid.UUID         `gorm:"type:uuid;not null;index" json:"collection_id"`
	Collection   *SourceCollection `gorm:"constraint:OnDelete:CASCADE;foreignKey:CollectionID;references:ID" json:"collection,omitempty"`
	Payload      datatypes.JSON    `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	ProcessingMS int64             `gorm:"column:processing_ms;not null;default:0" json:"processing_ms"`
	CostUSD      float64           `gorm:"column:cost_usd;not null;default:0" json:"cost_usd"`
	Model        string            `gorm:"column:model" json:"model"`
	CreatedAt    time.Time         `gorm:"not null;default:now();index" json:"created_at"`
}

func (CollectionAnalysis) TableName() string { return "collection_analysis" }
