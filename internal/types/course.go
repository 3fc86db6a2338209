package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CourseStatusDraft     = "draft"
	CourseStatusReview    = "review"
	CourseStatusPublished = "published"
	CourseStatusArchived  = "archived"
)

const (
	ObjectiveTypeTerminal = "terminal"
	ObjectiveTypeEnabling = "enabling"
)

// BloomLevels is the six-level cognitive taxonomy, ordered low to high.
var BloomLevels = []string{"remember", "understand", "apply", "analyze", "evaluate", "create"}

type Course struct {
	ID             uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID uuid.UUID         `gorm:"type:uuid;not null;index" json:"organization_id"`
	Organization   *Organization     `gorm:"constraint:OnDelete:CASCADE;foreignKey:OrganizationID;references:ID" json:"organization,omitempty"`
	CollectionID   *uuid.UUID        `gorm:"type:uuid;index" json:"collection_id,omitempty"`
	Collection     *SourceCollection `gorm:"constraint:OnDelete:SET NULL;foreignKey:CollectionID;references:ID" json:"collection,omitempty"`
	Title          string            `gorm:"column:title;not null" json:"title"`
	Description    string            `gorm:"column:description" json:"description"`
	Status         string            `gorm:"column:status;not null;default:'draft';index" json:"status"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }

// CourseModule numbers are one-based and dense per course.
type CourseModule struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID     uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Course       *Course   `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"course,omitempty"`
	ModuleNumber int       `gorm:"column:module_number;not null" json:"module_number"`
	Title        string    `gorm:"column:title;not null" json:"title"`
	Description  string    `gorm:"column:description" json:"description"`
	Duration     string    `gorm:"column:duration" json:"duration"`
	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CourseModule) TableName() string { return "course_module" }

type LearningObjective struct {
	ID         uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ModuleID   uuid.UUID     `gorm:"type:uuid;not null;index" json:"module_id"`
	Module     *CourseModule `gorm:"constraint:OnDelete:CASCADE;foreignKey:ModuleID;references:ID" json:"module,omitempty"`
	Type       string        `gorm:"column:type;not null" json:"type"`
	Content    string        `gorm:"column:content;not null" json:"content"`
	BloomLevel string        `gorm:"column:bloom_level;not null" json:"bloom_level"`
	OrderIndex int           `gorm:"column:order_index;not null" json:"order_index"`
	CreatedAt  time.Time     `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null;default:now()" json:"updated_at"`
}

func (LearningObjective) TableName() string { return "learning_objective" }

type LearningActivity struct {
	ID                uuid.UUID          `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ObjectiveID       uuid.UUID          `gorm:"type:uuid;not null;index" json:"objective_id"`
	Objective         *LearningObjective `gorm:"constraint:OnDelete:CASCADE;foreignKey:ObjectiveID;references:ID" json:"objective,omitempty"`
	InstructionMethod string             `gorm:"column:instruction_method;not null" json:"instruction_method"`
	Description       string             `gorm:"column:description;not null" json:"description"`
	Duration          string             `gorm:"column:duration" json:"duration"`
	Resources         datatypes.JSON     `gorm:"column:resources;type:jsonb" json:"resources"`
	OrderIndex        int                `gorm:"column:order_index;not null" json:"order_index"`
	CreatedAt         time.Time          `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"not null;default:now()" json:"updated_at"`
}

func (LearningActivity) TableName() string { return "learning_activity" }

// LessonSourceMapping links a generated module back to the source(s) that
// contributed to it.
type LessonSourceMapping struct {
	ID               uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ModuleID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"module_id"`
	Module           *CourseModule `gorm:"constraint:OnDelete:CASCADE;foreignKey:ModuleID;references:ID" json:"module,omitempty"`
	SourceID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"source_id"`
	Source           *Source       `gorm:"constraint:OnDelete:CASCADE;foreignKey:SourceID;references:ID" json:"source,omitempty"`
	ContributionNote string        `gorm:"column:contribution_note" json:"contribution_note"`
	CreatedAt        time.Time     `gorm:"not null;default:now()" json:"created_at"`
}

func (LessonSourceMapping) TableName() string { return "lesson_source_mapping" }
