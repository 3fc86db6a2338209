package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
)

// AnalysisResult couples the validated payload with the call accounting the
// pipeline persists alongside it.
type AnalysisResult struct {
	Payload      ContentAnalysisPayload
	Raw          json.RawMessage
	Model        string
	CostUSD      float64
	ProcessingMS int64
}

// AnalysisAdapter converts extracted content into a structured content
// analysis. One adapter per source shape; both sit behind this interface.
type AnalysisAdapter interface {
	Analyze(ctx context.Context, content *ExtractedContent, sourceID uuid.UUID, title string) (*AnalysisResult, error)
}

type analysisAdapter struct {
	log    *logger.Logger
	ai     AIClient
	system string
}

func NewVideoAnalysisAdapter(log *logger.Logger, ai AIClient) AnalysisAdapter {
	return &analysisAdapter{
		log:    log.With("service", "VideoAnalysisAdapter"),
		ai:     ai,
		system: "You analyze educational video content. Work from the transcript or video URL provided and produce a faithful structured analysis for curriculum designers.",
	}
}

func NewDocumentAnalysisAdapter(log *logger.Logger, ai AIClient) AnalysisAdapter {
	return &analysisAdapter{
		log:    log.With("service", "DocumentAnalysisAdapter"),
		ai:     ai,
		system: "You analyze educational documents and slide decks. Produce a faithful structured analysis of the provided text for curriculum designers.",
	}
}

func analysisSchema() map[string]any {
	stringArray := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":     map[string]any{"type": "string"},
			"main_topics": stringArray,
			"key_concepts": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"concept":    map[string]any{"type": "string"},
						"definition": map[string]any{"type": "string"},
					},
					"required":             []string{"concept", "definition"},
					"additionalProperties": false,
				},
			},
			"teaching_opportunities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"topic":              map[string]any{"type": "string"},
						"suggested_approach": map[string]any{"type": "string"},
						"blooms_level":       map[string]any{"type": "string"},
					},
					"required":             []string{"topic", "suggested_approach", "blooms_level"},
					"additionalProperties": false,
				},
			},
			"transcript":         map[string]any{"type": "string"},
			"visual_elements":    stringArray,
			"difficulty":         map[string]any{"type": "string", "enum": []string{"beginner", "intermediate", "advanced"}},
			"prerequisites":      stringArray,
			"suggested_duration": map[string]any{"type": "string"},
		},
		"required": []string{
			"summary", "main_topics", "key_concepts", "teaching_opportunities",
			"transcript", "visual_elements", "difficulty", "prerequisites", "suggested_duration",
		},
		"additionalProperties": false,
	}
}

func (a *analysisAdapter) Analyze(ctx context.Context, content *ExtractedContent, sourceID uuid.UUID, title string) (*AnalysisResult, error) {
	if content == nil {
		return nil, fmt.Errorf("no content to analyze")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Source title: %s\n\n", title)
	if content.Text != "" {
		fmt.Fprintf(&prompt, "Content:\n%s\n", truncate(content.Text, 60000))
	} else if content.Locator != "" {
		fmt.Fprintf(&prompt, "Content URL: %s\n", content.Locator)
	} else {
		return nil, fmt.Errorf("extracted content has neither text nor locator")
	}
	prompt.WriteString("\nReturn the content analysis.")

	start := time.Now()
	raw, usage, err := a.ai.GenerateJSON(ctx, a.system, prompt.String(), "content_analysis", analysisSchema())
	if err != nil {
		return nil, err
	}

	var payload ContentAnalysisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse analysis payload: %w", err)
	}
	if payload.Transcript == "" && content.Text != "" {
		payload.Transcript = content.Text
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	a.log.Debug("Analysis complete", "source_id", sourceID, "topics", len(payload.MainTopics))
	return &AnalysisResult{
		Payload:      payload,
		Raw:          raw,
		Model:        usage.Model,
		CostUSD:      usage.CostUSD(),
		ProcessingMS: time.Since(start).Milliseconds(),
	}, nil
}

// truncate cuts s to at most n bytes, backing off to the previous rune
// boundary so the result stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
