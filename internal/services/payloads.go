package services

import (
	"fmt"
	"strings"
)

// Typed payloads for the adapter boundary. Gateway JSON is parsed into these
// and validated before anything downstream touches it; loose maps never cross
// into the pipeline.

type KeyConcept struct {
	Concept    string `json:"concept"`
	Definition string `json:"definition"`
}

type TeachingOpportunity struct {
	Topic             string `json:"topic"`
	SuggestedApproach string `json:"suggested_approach"`
	BloomsLevel       string `json:"blooms_level"`
}

type ContentAnalysisPayload struct {
	Summary               string                `json:"summary"`
	MainTopics            []string              `json:"main_topics"`
	KeyConcepts           []KeyConcept          `json:"key_concepts"`
	TeachingOpportunities []TeachingOpportunity `json:"teaching_opportunities"`
	Transcript            string                `json:"transcript"`
	VisualElements        []string              `json:"visual_elements"`
	Difficulty            string                `json:"difficulty"`
	Prerequisites         []string              `json:"prerequisites"`
	SuggestedDuration     string                `json:"suggested_duration"`
}

func (p *ContentAnalysisPayload) Validate() error {
	if strings.TrimSpace(p.Summary) == "" {
		return fmt.Errorf("analysis missing summary")
	}
	if len(p.MainTopics) == 0 {
		return fmt.Errorf("analysis missing main topics")
	}
	return nil
}

type UnifiedTheme struct {
	Theme       string   `json:"theme"`
	Description string   `json:"description"`
	SourceIDs   []string `json:"source_ids"`
	Importance  string   `json:"importance"`
}

type SourceContribution struct {
	UniqueTopics     []string `json:"unique_topics"`
	ReinforcedTopics []string `json:"reinforced_topics"`
	PrimaryFocus     string   `json:"primary_focus"`
	BloomsLevels     []string `json:"blooms_levels"`
}

type KnowledgeGap struct {
	Gap              string `json:"gap"`
	Description      string `json:"description"`
	SuggestedContent string `json:"suggested_content"`
}

type SequenceStep struct {
	Step              int      `json:"step"`
	SourceIDs         []string `json:"source_ids"`
	Rationale         string   `json:"rationale"`
	EstimatedDuration string   `json:"estimated_duration"`
}

type CrossSourceSynthesis struct {
	UnifiedThemes       []UnifiedTheme                `json:"unified_themes"`
	SourceContributions map[string]SourceContribution `json:"source_contributions"`
	KnowledgeGaps       []KnowledgeGap                `json:"knowledge_gaps"`
	RecommendedSequence []SequenceStep                `json:"recommended_sequence"`
	SynthesisStrategy   string                        `json:"synthesis_strategy"`
	OverallComplexity   string                        `json:"overall_complexity"`
	Prerequisites       []string                      `json:"prerequisites"`
}

func (s *CrossSourceSynthesis) Validate() error {
	if len(s.UnifiedThemes) == 0 {
		return fmt.Errorf("synthesis missing unified themes")
	}
	if len(s.SourceContributions) == 0 {
		return fmt.Errorf("synthesis missing source contributions")
	}
	if len(s.RecommendedSequence) == 0 {
		return fmt.Errorf("synthesis missing recommended sequence")
	}
	return nil
}

// LessonTree is the generated course structure as returned by the lesson
// adapter, prior to persistence.
type LessonTree struct {
	Course  LessonCourse   `json:"course"`
	Modules []LessonModule `json:"modules"`
}

type LessonCourse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type LessonModule struct {
	ModuleNumber int               `json:"module_number"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Duration     string            `json:"duration"`
	Objectives   []LessonObjective `json:"objectives"`
}

type LessonObjective struct {
	Type        string           `json:"type"`
	Content     string           `json:"content"`
	BloomsLevel string           `json:"blooms_level"`
	SourceIDs   []string         `json:"source_ids,omitempty"`
	Activities  []LessonActivity `json:"activities"`
}

type LessonActivity struct {
	InstructionMethod string   `json:"instruction_method"`
	Description       string   `json:"description"`
	Duration          string   `json:"duration"`
	Resources         []string `json:"resources"`
}
