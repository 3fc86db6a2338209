package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ContentAnalysis rows are append-only; "latest by created_at" is the read
// contract. A source's current analysis is its most recent row.
type ContentAnalysis struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"source_id"`
	Source       *Source        `gorm:"constraint:OnDelete:CASCADE;foreignKey:SourceID;references:ID" json:"source,omitempty"`
	Payload      datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	ProcessingMS int64          `gorm:"column:processing_ms;not null;default:0" json:"processing_ms"`
	CostUSD      float64        `gorm:"column:cost_usd;not null;default:0" json:"cost_usd"`
	Model        string         `gorm:"column:model" json:"model"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (ContentAnalysis) TableName() string { return "content_analysis" }
