package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

type LessonResult struct {
	Tree         LessonTree
	Raw          json.RawMessage
	Model        string
	CostUSD      float64
	ProcessingMS int64
}

// LessonAdapter generates a full course structure, either from one source's
// analysis or from a collection's cross-source synthesis.
type LessonAdapter interface {
	GenerateFromAnalysis(ctx context.Context, title string, analysis ContentAnalysisPayload) (*LessonResult, error)
	GenerateFromSynthesis(ctx context.Context, title string, synthesis CrossSourceSynthesis, inputs []SynthesisInput) (*LessonResult, error)
}

type lessonAdapter struct {
	log *logger.Logger
	ai  AIClient
}

func NewLessonAdapter(log *logger.Logger, ai AIClient) LessonAdapter {
	return &lessonAdapter{
		log: log.With("service", "LessonAdapter"),
		ai:  ai,
	}
}

func lessonSchema(withSourceIDs bool) map[string]any {
	stringArray := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

	objectiveProps := map[string]any{
		"type":         map[string]any{"type": "string", "enum": []string{types.ObjectiveTypeTerminal, types.ObjectiveTypeEnabling}},
		"content":      map[string]any{"type": "string"},
		"blooms_level": map[string]any{"type": "string", "enum": types.BloomLevels},
		"activities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"instruction_method": map[string]any{"type": "string"},
					"description":        map[string]any{"type": "string"},
					"duration":           map[string]any{"type": "string"},
					"resources":          stringArray,
				},
				"required":             []string{"instruction_method", "description", "duration", "resources"},
				"additionalProperties": false,
			},
		},
	}
	objectiveRequired := []string{"type", "content", "blooms_level", "activities"}
	if withSourceIDs {
		objectiveProps["source_ids"] = stringArray
		objectiveRequired = append(objectiveRequired, "source_ids")
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"course": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
				},
				"required":             []string{"title", "description"},
				"additionalProperties": false,
			},
			"modules": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"module_number": map[string]any{"type": "integer"},
						"title":         map[string]any{"type": "string"},
						"description":   map[string]any{"type": "string"},
						"duration":      map[string]any{"type": "string"},
						"objectives": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":                 "object",
								"properties":           objectiveProps,
								"required":             objectiveRequired,
								"additionalProperties": false,
							},
						},
					},
					"required":             []string{"module_number", "title", "description", "duration", "objectives"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"course", "modules"},
		"additionalProperties": false,
	}
}

const lessonSystem = "You are an instructional designer. Build a complete course: sequential modules, each with learning objectives (at least one terminal objective per module) tagged with Bloom's taxonomy levels, and concrete learning activities under each objective. Number modules starting at 1 with no gaps."

func (la *lessonAdapter) GenerateFromAnalysis(ctx context.Context, title string, analysis ContentAnalysisPayload) (*LessonResult, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Design a course from this single source.\n\nSource title: %s\n\nAnalysis:\n", title)
	if err := writeJSON(&prompt, analysisForPrompt(analysis)); err != nil {
		return nil, err
	}
	prompt.WriteString("\nReturn the full course structure.")
	return la.generate(ctx, prompt.String(), false)
}

func (la *lessonAdapter) GenerateFromSynthesis(ctx context.Context, title string, synthesis CrossSourceSynthesis, inputs []SynthesisInput) (*LessonResult, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Design a course from this multi-source collection.\n\nCollection title: %s\n\nSources:\n", title)
	for i, in := range inputs {
		fmt.Fprintf(&prompt, "%d. id=%s title=%q type=%s\n", i+1, in.SourceID, in.Title, in.Type)
	}
	prompt.WriteString("\nCross-source synthesis:\n")
	if err := writeJSON(&prompt, synthesis); err != nil {
		return nil, err
	}
	prompt.WriteString("\nReturn the full course structure. Tag each objective's source_ids with the ids of the sources it draws on; follow the recommended sequence when ordering modules.")
	return la.generate(ctx, prompt.String(), true)
}

func (la *lessonAdapter) generate(ctx context.Context, prompt string, withSourceIDs bool) (*LessonResult, error) {
	start := time.Now()
	raw, usage, err := la.ai.GenerateJSON(ctx, lessonSystem, prompt, "lesson_tree", lessonSchema(withSourceIDs))
	if err != nil {
		return nil, err
	}

	var tree LessonTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse lesson tree: %w", err)
	}

	la.log.Debug("Lesson generation complete", "modules", len(tree.Modules))
	return &LessonResult{
		Tree:         tree,
		Raw:          raw,
		Model:        usage.Model,
		CostUSD:      usage.CostUSD(),
		ProcessingMS: time.Since(start).Milliseconds(),
	}, nil
}

func analysisForPrompt(a ContentAnalysisPayload) ContentAnalysisPayload {
	// Transcripts can dwarf the rest of the analysis; cap what we resend.
	a.Transcript = truncate(a.Transcript, 40000)
	return a
}

func writeJSON(b *strings.Builder, v any) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal prompt payload: %w", err)
	}
	b.Write(enc)
	b.WriteString("\n")
	return nil
}
