package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Source statuses. "processing" doubles as the exclusivity lease: a pipeline
// invocation owns the source while the row sits in this state.
const (
	SourceStatusPending    = "pending"
	SourceStatusProcessing = "processing"
	SourceStatusCompleted  = "completed"
	SourceStatusFailed     = "failed"
)

const (
	SourceTypeVideo     = "video"
	SourceTypePDF       = "pdf"
	SourceTypeSlideDeck = "slide_deck"
	SourceTypeURL       = "url"
)

type Source struct {
	ID              uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID  uuid.UUID     `gorm:"type:uuid;not null;index" json:"organization_id"`
	Organization    *Organization `gorm:"constraint:OnDelete:CASCADE;foreignKey:OrganizationID;references:ID" json:"organization,omitempty"`
	Type            string        `gorm:"column:type;not null" json:"type"`
	Locator         string        `gorm:"column:locator;not null" json:"locator"`
	Title           string        `gorm:"column:title;not null" json:"title"`
	Status          string        `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Error           string        `gorm:"column:error" json:"error,omitempty"`
	Transcript      string        `gorm:"column:transcript" json:"transcript,omitempty"`
	DurationSeconds *float64      `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Source) TableName() string { return "source" }
