package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/repos"
	"github.com/lessonforge/lessonforge-backend/internal/services"
	"github.com/lessonforge/lessonforge-backend/internal/sse"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

func testLogger(t interface{ Fatalf(string, ...interface{}) }) *logger.Logger {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// ---- source repo ----

type fakeSourceRepo struct {
	mu      sync.Mutex
	sources map[uuid.UUID]*types.Source
}

func newFakeSourceRepo() *fakeSourceRepo {
	return &fakeSourceRepo{sources: make(map[uuid.UUID]*types.Source)}
}

func (f *fakeSourceRepo) Create(_ context.Context, _ *gorm.DB, sources []*types.Source) ([]*types.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range sources {
		cp := *s
		f.sources[s.ID] = &cp
	}
	return sources, nil
}

func (f *fakeSourceRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Source
	for _, id := range ids {
		if s, ok := f.sources[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSourceRepo) GetByOrganizationID(_ context.Context, _ *gorm.DB, orgID uuid.UUID) ([]*types.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Source
	for _, s := range f.sources {
		if s.OrganizationID == orgID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSourceRepo) UpdateStatusIf(_ context.Context, _ *gorm.DB, id uuid.UUID, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range fromStatuses {
		if s.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	applySourceUpdates(s, updates)
	return true, nil
}

func (f *fakeSourceRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return fmt.Errorf("source %s not found", id)
	}
	applySourceUpdates(s, updates)
	return nil
}

func applySourceUpdates(s *types.Source, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			s.Status = v.(string)
		case "error":
			s.Error = v.(string)
		case "transcript":
			s.Transcript = v.(string)
		case "duration_seconds":
			d := v.(float64)
			s.DurationSeconds = &d
		case "updated_at":
			s.UpdatedAt = v.(time.Time)
		}
	}
}

func (f *fakeSourceRepo) get(id uuid.UUID) *types.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sources[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

// ---- content analysis repo ----

type fakeAnalysisRepo struct {
	mu   sync.Mutex
	rows []*types.ContentAnalysis
}

func newFakeAnalysisRepo() *fakeAnalysisRepo { return &fakeAnalysisRepo{} }

func (f *fakeAnalysisRepo) Create(_ context.Context, _ *gorm.DB, analyses []*types.ContentAnalysis) ([]*types.ContentAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, analyses...)
	return analyses, nil
}

func (f *fakeAnalysisRepo) GetLatestBySourceID(_ context.Context, _ *gorm.DB, sourceID uuid.UUID) (*types.ContentAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.ContentAnalysis
	for _, row := range f.rows {
		if row.SourceID != sourceID {
			continue
		}
		if latest == nil || !row.CreatedAt.Before(latest.CreatedAt) {
			latest = row
		}
	}
	return latest, nil
}

func (f *fakeAnalysisRepo) GetLatestBySourceIDs(ctx context.Context, tx *gorm.DB, sourceIDs []uuid.UUID) (map[uuid.UUID]*types.ContentAnalysis, error) {
	out := make(map[uuid.UUID]*types.ContentAnalysis)
	for _, id := range sourceIDs {
		row, _ := f.GetLatestBySourceID(ctx, tx, id)
		if row != nil {
			out[id] = row
		}
	}
	return out, nil
}

func (f *fakeAnalysisRepo) CountBySourceID(_ context.Context, _ *gorm.DB, sourceID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, row := range f.rows {
		if row.SourceID == sourceID {
			n++
		}
	}
	return n, nil
}

// ---- collection repo ----

type fakeCollectionRepo struct {
	mu          sync.Mutex
	collections map[uuid.UUID]*types.SourceCollection
	members     []*types.CollectionSource
}

func newFakeCollectionRepo() *fakeCollectionRepo {
	return &fakeCollectionRepo{collections: make(map[uuid.UUID]*types.SourceCollection)}
}

func (f *fakeCollectionRepo) Create(_ context.Context, _ *gorm.DB, collections []*types.SourceCollection) ([]*types.SourceCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range collections {
		cp := *c
		f.collections[c.ID] = &cp
	}
	return collections, nil
}

func (f *fakeCollectionRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.SourceCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.SourceCollection
	for _, id := range ids {
		if c, ok := f.collections[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCollectionRepo) GetByOrganizationID(_ context.Context, _ *gorm.DB, orgID uuid.UUID) ([]*types.SourceCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.SourceCollection
	for _, c := range f.collections {
		if c.OrganizationID == orgID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCollectionRepo) UpdateStatusIf(_ context.Context, _ *gorm.DB, id uuid.UUID, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range fromStatuses {
		if c.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	applyCollectionUpdates(c, updates)
	return true, nil
}

func (f *fakeCollectionRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[id]
	if !ok {
		return fmt.Errorf("collection %s not found", id)
	}
	applyCollectionUpdates(c, updates)
	return nil
}

func applyCollectionUpdates(c *types.SourceCollection, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			c.Status = v.(string)
		case "error":
			c.Error = v.(string)
		case "analysis_completed_at":
			t := v.(time.Time)
			c.AnalysisCompletedAt = &t
		case "updated_at":
			c.UpdatedAt = v.(time.Time)
		}
	}
}

func (f *fakeCollectionRepo) AddMember(_ context.Context, _ *gorm.DB, collectionID, sourceID uuid.UUID) (*types.CollectionSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := 0
	for _, m := range f.members {
		if m.CollectionID == collectionID && m.OrderIndex >= next {
			next = m.OrderIndex + 1
		}
	}
	member := &types.CollectionSource{
		ID:           uuid.New(),
		CollectionID: collectionID,
		SourceID:     sourceID,
		OrderIndex:   next,
		CreatedAt:    time.Now(),
	}
	f.members = append(f.members, member)
	return member, nil
}

func (f *fakeCollectionRepo) GetMembers(_ context.Context, _ *gorm.DB, collectionID uuid.UUID) ([]*types.CollectionSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.CollectionSource
	for _, m := range f.members {
		if m.CollectionID == collectionID {
			out = append(out, m)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].OrderIndex < out[i].OrderIndex {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeCollectionRepo) get(id uuid.UUID) *types.SourceCollection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.collections[id]; ok {
		cp := *c
		return &cp
	}
	return nil
}

// ---- collection analysis repo ----

type fakeCollectionAnalysisRepo struct {
	mu   sync.Mutex
	rows []*types.CollectionAnalysis
}

func newFakeCollectionAnalysisRepo() *fakeCollectionAnalysisRepo {
	return &fakeCollectionAnalysisRepo{}
}

func (f *fakeCollectionAnalysisRepo) Create(_ context.Context, _ *gorm.DB, analyses []*types.CollectionAnalysis) ([]*types.CollectionAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, analyses...)
	return analyses, nil
}

func (f *fakeCollectionAnalysisRepo) GetLatestByCollectionID(_ context.Context, _ *gorm.DB, collectionID uuid.UUID) (*types.CollectionAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.CollectionAnalysis
	for _, row := range f.rows {
		if row.CollectionID != collectionID {
			continue
		}
		if latest == nil || !row.CreatedAt.Before(latest.CreatedAt) {
			latest = row
		}
	}
	return latest, nil
}

// ---- course repo ----

type fakeCourseRepo struct {
	mu           sync.Mutex
	materialized []*repos.LessonTreeRows
	failWith     error
}

func newFakeCourseRepo() *fakeCourseRepo { return &fakeCourseRepo{} }

func (f *fakeCourseRepo) MaterializeTree(_ context.Context, _ *gorm.DB, rows *repos.LessonTreeRows) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.materialized = append(f.materialized, rows)
	return nil
}

func (f *fakeCourseRepo) GetByIDs(_ context.Context, _ *gorm.DB, _ []uuid.UUID) ([]*types.Course, error) {
	return nil, nil
}
func (f *fakeCourseRepo) GetByOrganizationID(_ context.Context, _ *gorm.DB, _ uuid.UUID) ([]*types.Course, error) {
	return nil, nil
}
func (f *fakeCourseRepo) GetModulesByCourseID(_ context.Context, _ *gorm.DB, _ uuid.UUID) ([]*types.CourseModule, error) {
	return nil, nil
}
func (f *fakeCourseRepo) GetObjectivesByModuleIDs(_ context.Context, _ *gorm.DB, _ []uuid.UUID) ([]*types.LearningObjective, error) {
	return nil, nil
}
func (f *fakeCourseRepo) GetActivitiesByObjectiveIDs(_ context.Context, _ *gorm.DB, _ []uuid.UUID) ([]*types.LearningActivity, error) {
	return nil, nil
}
func (f *fakeCourseRepo) GetMappingsByModuleIDs(_ context.Context, _ *gorm.DB, _ []uuid.UUID) ([]*types.LessonSourceMapping, error) {
	return nil, nil
}

// ---- extractor and adapters ----

type fakeExtractor struct {
	mu        sync.Mutex
	calls     int
	content   *services.ExtractedContent
	err       error
	panicWith interface{}
}

func (f *fakeExtractor) Extract(_ context.Context, _, locator, _ string) (*services.ExtractedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.content != nil {
		return f.content, nil
	}
	return &services.ExtractedContent{Text: "extracted text", Locator: locator}, nil
}

type fakeAnalysisAdapter struct {
	mu      sync.Mutex
	calls   int
	payload services.ContentAnalysisPayload
	err     error
}

func (f *fakeAnalysisAdapter) Analyze(_ context.Context, _ *services.ExtractedContent, _ uuid.UUID, _ string) (*services.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	raw, _ := json.Marshal(f.payload)
	return &services.AnalysisResult{
		Payload:      f.payload,
		Raw:          raw,
		Model:        "test-model",
		CostUSD:      0.01,
		ProcessingMS: 5,
	}, nil
}

type fakeSynthesisAdapter struct {
	mu         sync.Mutex
	calls      int
	lastInputs []services.SynthesisInput
	payload    services.CrossSourceSynthesis
	err        error
	panicWith  interface{}
}

func (f *fakeSynthesisAdapter) Synthesize(_ context.Context, inputs []services.SynthesisInput) (*services.SynthesisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastInputs = inputs
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	raw, _ := json.Marshal(f.payload)
	return &services.SynthesisResult{
		Payload:      f.payload,
		Raw:          raw,
		Model:        "test-model",
		CostUSD:      0.02,
		ProcessingMS: 5,
	}, nil
}

type fakeLessonAdapter struct {
	mu             sync.Mutex
	analysisCalls  int
	synthesisCalls int
	tree           services.LessonTree
	err            error
}

func (f *fakeLessonAdapter) GenerateFromAnalysis(_ context.Context, _ string, _ services.ContentAnalysisPayload) (*services.LessonResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analysisCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result()
}

func (f *fakeLessonAdapter) GenerateFromSynthesis(_ context.Context, _ string, _ services.CrossSourceSynthesis, _ []services.SynthesisInput) (*services.LessonResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthesisCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result()
}

func (f *fakeLessonAdapter) result() (*services.LessonResult, error) {
	raw, _ := json.Marshal(f.tree)
	// Deep-copy: callers mutate the tree during tag filtering.
	var tree services.LessonTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return &services.LessonResult{
		Tree:         tree,
		Raw:          raw,
		Model:        "test-model",
		CostUSD:      0.03,
		ProcessingMS: 5,
	}, nil
}

// ---- harness ----

type pipelineFixture struct {
	pipe               *Pipeline
	sources            *fakeSourceRepo
	analyses           *fakeAnalysisRepo
	collections        *fakeCollectionRepo
	collectionAnalyses *fakeCollectionAnalysisRepo
	courses            *fakeCourseRepo
	extractor          *fakeExtractor
	videoAnalysis      *fakeAnalysisAdapter
	docAnalysis        *fakeAnalysisAdapter
	synthesis          *fakeSynthesisAdapter
	lessons            *fakeLessonAdapter
}

func newPipelineFixture(t interface{ Fatalf(string, ...interface{}) }) *pipelineFixture {
	log := testLogger(t)
	fx := &pipelineFixture{
		sources:            newFakeSourceRepo(),
		analyses:           newFakeAnalysisRepo(),
		collections:        newFakeCollectionRepo(),
		collectionAnalyses: newFakeCollectionAnalysisRepo(),
		courses:            newFakeCourseRepo(),
		extractor:          &fakeExtractor{},
		videoAnalysis:      &fakeAnalysisAdapter{payload: validAnalysisPayload()},
		docAnalysis:        &fakeAnalysisAdapter{payload: validAnalysisPayload()},
		synthesis:          &fakeSynthesisAdapter{payload: validSynthesisPayload()},
		lessons:            &fakeLessonAdapter{tree: validLessonTree()},
	}
	fx.pipe = New(
		log,
		fx.sources,
		fx.analyses,
		fx.collections,
		fx.collectionAnalyses,
		fx.courses,
		fx.extractor,
		fx.videoAnalysis,
		fx.docAnalysis,
		fx.synthesis,
		fx.lessons,
		sse.NewSSEHub(log),
		Config{AddConcurrency: 2},
	)
	return fx
}

func validAnalysisPayload() services.ContentAnalysisPayload {
	return services.ContentAnalysisPayload{
		Summary:    "Covers the basics of photosynthesis.",
		MainTopics: []string{"photosynthesis", "chlorophyll"},
		Difficulty: "beginner",
	}
}

func validSynthesisPayload() services.CrossSourceSynthesis {
	return services.CrossSourceSynthesis{
		UnifiedThemes: []services.UnifiedTheme{
			{Theme: "energy conversion", Description: "shared across sources", Importance: "core"},
		},
		SourceContributions: map[string]services.SourceContribution{
			"placeholder": {PrimaryFocus: "overview"},
		},
		RecommendedSequence: []services.SequenceStep{
			{Step: 1, Rationale: "foundations first"},
		},
		SynthesisStrategy: "sequential",
		OverallComplexity: "beginner",
	}
}

func validLessonTree() services.LessonTree {
	return services.LessonTree{
		Course: services.LessonCourse{Title: "Photosynthesis 101", Description: "Intro course"},
		Modules: []services.LessonModule{
			{
				ModuleNumber: 1,
				Title:        "Light Reactions",
				Description:  "How light becomes chemical energy",
				Duration:     "45m",
				Objectives: []services.LessonObjective{
					{
						Type:        types.ObjectiveTypeTerminal,
						Content:     "Explain the light reactions",
						BloomsLevel: "understand",
						Activities: []services.LessonActivity{
							{InstructionMethod: "lecture", Description: "Walk through the diagram", Duration: "15m"},
						},
					},
				},
			},
		},
	}
}
