package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
)

// SynthesisInput is one member's contribution to a cross-source synthesis,
// in collection order.
type SynthesisInput struct {
	SourceID uuid.UUID
	Title    string
	Type     string
	Analysis ContentAnalysisPayload
}

type SynthesisResult struct {
	Payload      CrossSourceSynthesis
	Raw          json.RawMessage
	Model        string
	CostUSD      float64
	ProcessingMS int64
}

// SynthesisAdapter merges the per-source analyses of a collection into one
// cross-source synthesis.
type SynthesisAdapter interface {
	Synthesize(ctx context.Context, inputs []SynthesisInput) (*SynthesisResult, error)
}

type synthesisAdapter struct {
	log *logger.Logger
	ai  AIClient
}

func NewSynthesisAdapter(log *logger.Logger, ai AIClient) SynthesisAdapter {
	return &synthesisAdapter{
		log: log.With("service", "SynthesisAdapter"),
		ai:  ai,
	}
}

func synthesisSchema() map[string]any {
	stringArray := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"unified_themes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"theme":       map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"source_ids":  stringArray,
						"importance":  map[string]any{"type": "string", "enum": []string{"core", "supporting", "supplementary"}},
					},
					"required":             []string{"theme", "description", "source_ids", "importance"},
					"additionalProperties": false,
				},
			},
			"source_contributions": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"unique_topics":     stringArray,
						"reinforced_topics": stringArray,
						"primary_focus":     map[string]any{"type": "string"},
						"blooms_levels":     stringArray,
					},
					"required":             []string{"unique_topics", "reinforced_topics", "primary_focus", "blooms_levels"},
					"additionalProperties": false,
				},
			},
			"knowledge_gaps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"gap":               map[string]any{"type": "string"},
						"description":       map[string]any{"type": "string"},
						"suggested_content": map[string]any{"type": "string"},
					},
					"required":             []string{"gap", "description", "suggested_content"},
					"additionalProperties": false,
				},
			},
			"recommended_sequence": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"step":               map[string]any{"type": "integer"},
						"source_ids":         stringArray,
						"rationale":          map[string]any{"type": "string"},
						"estimated_duration": map[string]any{"type": "string"},
					},
					"required":             []string{"step", "source_ids", "rationale", "estimated_duration"},
					"additionalProperties": false,
				},
			},
			"synthesis_strategy": map[string]any{"type": "string"},
			"overall_complexity": map[string]any{"type": "string", "enum": []string{"beginner", "intermediate", "advanced", "mixed"}},
			"prerequisites":      stringArray,
		},
		"required": []string{
			"unified_themes", "source_contributions", "knowledge_gaps",
			"recommended_sequence", "synthesis_strategy", "overall_complexity", "prerequisites",
		},
		"additionalProperties": false,
	}
}

const synthesisSystem = "You are a curriculum synthesis expert. Given structured analyses of multiple educational sources, identify unified themes, each source's unique and reinforced contributions, knowledge gaps, and a recommended teaching sequence. Refer to sources only by the ids given."

func (sa *synthesisAdapter) Synthesize(ctx context.Context, inputs []SynthesisInput) (*SynthesisResult, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("synthesis requires at least 2 analyzed sources, got %d", len(inputs))
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Synthesize the following %d source analyses, listed in collection order.\n", len(inputs))
	for i, in := range inputs {
		fmt.Fprintf(&prompt, "\n--- Source %d ---\nid: %s\ntitle: %s\ntype: %s\n", i+1, in.SourceID, in.Title, in.Type)
		summary := struct {
			Summary               string                `json:"summary"`
			MainTopics            []string              `json:"main_topics"`
			KeyConcepts           []KeyConcept          `json:"key_concepts"`
			TeachingOpportunities []TeachingOpportunity `json:"teaching_opportunities"`
			Difficulty            string                `json:"difficulty"`
			Prerequisites         []string              `json:"prerequisites"`
			SuggestedDuration     string                `json:"suggested_duration"`
		}{
			Summary:               in.Analysis.Summary,
			MainTopics:            in.Analysis.MainTopics,
			KeyConcepts:           in.Analysis.KeyConcepts,
			TeachingOpportunities: in.Analysis.TeachingOpportunities,
			Difficulty:            in.Analysis.Difficulty,
			Prerequisites:         in.Analysis.Prerequisites,
			SuggestedDuration:     in.Analysis.SuggestedDuration,
		}
		// Transcripts are deliberately excluded; the analyses are the input.
		b, err := json.Marshal(summary)
		if err != nil {
			return nil, fmt.Errorf("marshal analysis for %s: %w", in.SourceID, err)
		}
		prompt.Write(b)
		prompt.WriteString("\n")
	}
	prompt.WriteString("\nReturn the cross-source synthesis. Keys of source_contributions must be the source ids above.")

	start := time.Now()
	raw, usage, err := sa.ai.GenerateJSON(ctx, synthesisSystem, prompt.String(), "cross_source_synthesis", synthesisSchema())
	if err != nil {
		return nil, err
	}

	var payload CrossSourceSynthesis
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse synthesis payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	sa.log.Debug("Synthesis complete", "sources", len(inputs), "themes", len(payload.UnifiedThemes))
	return &SynthesisResult{
		Payload:      payload,
		Raw:          raw,
		Model:        usage.Model,
		CostUSD:      usage.CostUSD(),
		ProcessingMS: time.Since(start).Milliseconds(),
	}, nil
}
