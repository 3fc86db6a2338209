package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/repos"
	"github.com/lessonforge/lessonforge-backend/internal/services"
	"github.com/lessonforge/lessonforge-backend/internal/sse"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// Pipeline orchestrates ingest, analysis, synthesis, lesson generation and
// materialization. Exclusivity comes from conditional status transitions, not
// locks: whoever flips the row into its processing state owns the run.
type Pipeline struct {
	log                *logger.Logger
	sources            repos.SourceRepo
	analyses           repos.ContentAnalysisRepo
	collections        repos.CollectionRepo
	collectionAnalyses repos.CollectionAnalysisRepo
	courses            repos.CourseRepo
	extractor          services.ContentExtractor
	videoAnalysis      services.AnalysisAdapter
	docAnalysis        services.AnalysisAdapter
	synthesis          services.SynthesisAdapter
	lessons            services.LessonAdapter
	hub                *sse.SSEHub
	addConcurrency     int
}

type Config struct {
	// AddConcurrency bounds parallel source processing during bulk
	// collection adds.
	AddConcurrency int
}

func New(
	log *logger.Logger,
	sources repos.SourceRepo,
	analyses repos.ContentAnalysisRepo,
	collections repos.CollectionRepo,
	collectionAnalyses repos.CollectionAnalysisRepo,
	courses repos.CourseRepo,
	extractor services.ContentExtractor,
	videoAnalysis services.AnalysisAdapter,
	docAnalysis services.AnalysisAdapter,
	synthesis services.SynthesisAdapter,
	lessons services.LessonAdapter,
	hub *sse.SSEHub,
	cfg Config,
) *Pipeline {
	if cfg.AddConcurrency <= 0 {
		cfg.AddConcurrency = 4
	}
	return &Pipeline{
		log:                log.With("component", "Pipeline"),
		sources:            sources,
		analyses:           analyses,
		collections:        collections,
		collectionAnalyses: collectionAnalyses,
		courses:            courses,
		extractor:          extractor,
		videoAnalysis:      videoAnalysis,
		docAnalysis:        docAnalysis,
		synthesis:          synthesis,
		lessons:            lessons,
		hub:                hub,
		addConcurrency:     cfg.AddConcurrency,
	}
}

// SourceDescriptor is the caller-supplied shape of a new source.
type SourceDescriptor struct {
	Type     string
	Locator  string
	Title    string
	MimeType string
}

func (d *SourceDescriptor) validate() error {
	switch d.Type {
	case types.SourceTypeVideo, types.SourceTypePDF, types.SourceTypeSlideDeck, types.SourceTypeURL:
	default:
		return fmt.Errorf("unknown source type %q", d.Type)
	}
	if d.Locator == "" {
		return fmt.Errorf("source locator is required")
	}
	if d.Title == "" {
		return fmt.Errorf("source title is required")
	}
	return nil
}

// Ingest creates a pending source and runs the full single-source pipeline:
// extract, analyze, generate a course, materialize. Returns the source and
// the generated course.
func (p *Pipeline) Ingest(ctx context.Context, orgID uuid.UUID, desc SourceDescriptor) (*types.Source, *types.Course, error) {
	if err := desc.validate(); err != nil {
		return nil, nil, err
	}
	source := &types.Source{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Type:           desc.Type,
		Locator:        desc.Locator,
		Title:          desc.Title,
		Status:         types.SourceStatusPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	created, err := p.sources.Create(ctx, nil, []*types.Source{source})
	if err != nil {
		return nil, nil, stageErr(KindPersistence, "create source", err)
	}
	source = created[0]
	course, err := p.Process(ctx, orgID, source.ID, desc.MimeType)
	return source, course, err
}

// Process runs the full pipeline on an existing source. The source must be
// pending or failed; a source already held by another run yields
// ErrAlreadyProcessing. Any failure after the lease is taken marks the source
// failed with the stage error.
func (p *Pipeline) Process(ctx context.Context, orgID, sourceID uuid.UUID, mimeType string) (course *types.Course, err error) {
	source, err := p.loadSource(ctx, orgID, sourceID)
	if err != nil {
		return nil, err
	}
	if err := p.leaseSource(ctx, source); err != nil {
		return nil, err
	}
	// The lease must not outlive the run: a panic past this point still marks
	// the source failed instead of leaving it in processing.
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("unexpected panic: %v", r)
			p.failSource(ctx, source, cause)
			course, err = nil, cause
		}
	}()

	course, err = p.processLeased(ctx, source, mimeType)
	if err != nil {
		p.failSource(ctx, source, err)
		return nil, err
	}
	return course, nil
}

func (p *Pipeline) processLeased(ctx context.Context, source *types.Source, mimeType string) (*types.Course, error) {
	payload, err := p.ensureAnalysis(ctx, source, mimeType)
	if err != nil {
		return nil, err
	}

	result, err := p.lessons.GenerateFromAnalysis(ctx, source.Title, *payload)
	if err != nil {
		return nil, stageErr(KindGeneration, "generate lesson", err)
	}
	if err := ValidateLessonTree(&result.Tree); err != nil {
		return nil, stageErr(KindGeneration, "validate lesson", err)
	}

	// Single-source courses map every module to the one source.
	rows := buildRows(source.OrganizationID, nil, &result.Tree, func(*services.LessonModule) []uuid.UUID {
		return []uuid.UUID{source.ID}
	})
	if err := p.courses.MaterializeTree(ctx, nil, rows); err != nil {
		return nil, stageErr(KindPersistence, "materialize course", err)
	}

	if err := p.completeSource(ctx, source); err != nil {
		return nil, err
	}
	p.hub.BroadcastOrg(source.OrganizationID, sse.SSEEventCourseGenerated, map[string]any{
		"course_id": rows.Course.ID,
		"source_id": source.ID,
	})
	return rows.Course, nil
}

// AnalyzeOnly runs extract and analyze on a source without generating a
// course. Used when sources enter through a collection, where generation
// happens at the collection level.
func (p *Pipeline) AnalyzeOnly(ctx context.Context, orgID, sourceID uuid.UUID, mimeType string) (err error) {
	source, err := p.loadSource(ctx, orgID, sourceID)
	if err != nil {
		return err
	}
	if err := p.leaseSource(ctx, source); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("unexpected panic: %v", r)
			p.failSource(ctx, source, cause)
			err = cause
		}
	}()
	if _, err := p.ensureAnalysis(ctx, source, mimeType); err != nil {
		p.failSource(ctx, source, err)
		return err
	}
	return p.completeSource(ctx, source)
}

// ensureAnalysis returns the source's current analysis, producing one if none
// exists. Existing analyses are reused as-is: a retry after a downstream
// failure never re-extracts or re-bills.
func (p *Pipeline) ensureAnalysis(ctx context.Context, source *types.Source, mimeType string) (*services.ContentAnalysisPayload, error) {
	existing, err := p.analyses.GetLatestBySourceID(ctx, nil, source.ID)
	if err != nil {
		return nil, stageErr(KindPersistence, "load analysis", err)
	}
	if existing != nil {
		var payload services.ContentAnalysisPayload
		if err := json.Unmarshal(existing.Payload, &payload); err != nil {
			return nil, stageErr(KindAnalysis, "parse stored analysis", err)
		}
		p.log.Debug("Reusing existing analysis", "source_id", source.ID, "analysis_id", existing.ID)
		return &payload, nil
	}

	content, err := p.extractor.Extract(ctx, source.Type, source.Locator, mimeType)
	if err != nil {
		return nil, stageErr(KindExtraction, "extract content", err)
	}
	if content.Text != "" || content.DurationSeconds != nil {
		updates := map[string]interface{}{}
		if content.Text != "" {
			updates["transcript"] = content.Text
		}
		if content.DurationSeconds != nil {
			updates["duration_seconds"] = *content.DurationSeconds
		}
		if err := p.sources.UpdateFields(ctx, nil, source.ID, updates); err != nil {
			return nil, stageErr(KindPersistence, "store transcript", err)
		}
	}

	adapter := p.docAnalysis
	if source.Type == types.SourceTypeVideo {
		adapter = p.videoAnalysis
	}
	result, err := adapter.Analyze(ctx, content, source.ID, source.Title)
	if err != nil {
		return nil, stageErr(KindAnalysis, "analyze content", err)
	}

	payloadJSON, err := json.Marshal(result.Payload)
	if err != nil {
		return nil, stageErr(KindAnalysis, "encode analysis", err)
	}
	row := &types.ContentAnalysis{
		ID:           uuid.New(),
		SourceID:     source.ID,
		Payload:      datatypes.JSON(payloadJSON),
		ProcessingMS: result.ProcessingMS,
		CostUSD:      result.CostUSD,
		Model:        result.Model,
		CreatedAt:    time.Now(),
	}
	if _, err := p.analyses.Create(ctx, nil, []*types.ContentAnalysis{row}); err != nil {
		return nil, stageErr(KindPersistence, "store analysis", err)
	}
	return &result.Payload, nil
}

func (p *Pipeline) loadSource(ctx context.Context, orgID, sourceID uuid.UUID) (*types.Source, error) {
	rows, err := p.sources.GetByIDs(ctx, nil, []uuid.UUID{sourceID})
	if err != nil {
		return nil, stageErr(KindPersistence, "load source", err)
	}
	if len(rows) == 0 || rows[0].OrganizationID != orgID {
		return nil, services.ErrNotFound
	}
	return rows[0], nil
}

func (p *Pipeline) leaseSource(ctx context.Context, source *types.Source) error {
	ok, err := p.sources.UpdateStatusIf(ctx, nil, source.ID,
		[]string{types.SourceStatusPending, types.SourceStatusFailed},
		map[string]interface{}{
			"status": types.SourceStatusProcessing,
			"error":  "",
		})
	if err != nil {
		return stageErr(KindPersistence, "lease source", err)
	}
	if !ok {
		return ErrAlreadyProcessing
	}
	p.hub.BroadcastOrg(source.OrganizationID, sse.SSEEventSourceProcessing, map[string]any{"source_id": source.ID})
	return nil
}

func (p *Pipeline) completeSource(ctx context.Context, source *types.Source) error {
	ok, err := p.sources.UpdateStatusIf(ctx, nil, source.ID,
		[]string{types.SourceStatusProcessing},
		map[string]interface{}{"status": types.SourceStatusCompleted})
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("source %s left processing state mid-run", source.ID)
		}
		return stageErr(KindPersistence, "complete source", err)
	}
	p.hub.BroadcastOrg(source.OrganizationID, sse.SSEEventSourceCompleted, map[string]any{"source_id": source.ID})
	return nil
}

func (p *Pipeline) failSource(ctx context.Context, source *types.Source, cause error) {
	_, err := p.sources.UpdateStatusIf(ctx, nil, source.ID,
		[]string{types.SourceStatusProcessing},
		map[string]interface{}{
			"status": types.SourceStatusFailed,
			"error":  cause.Error(),
		})
	if err != nil {
		p.log.Error("Failed to mark source failed", "source_id", source.ID, "error", err, "cause", cause)
		return
	}
	p.log.Warn("Source processing failed", "source_id", source.ID, "error", cause)
	p.hub.BroadcastOrg(source.OrganizationID, sse.SSEEventSourceFailed, map[string]any{
		"source_id": source.ID,
		"error":     cause.Error(),
	})
}
