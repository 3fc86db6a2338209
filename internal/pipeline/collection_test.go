package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/types"
)

func seedCollection(t *testing.T, fx *pipelineFixture, orgID uuid.UUID) *types.SourceCollection {
	t.Helper()
	collection := &types.SourceCollection{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Title:          "Biology unit",
		Status:         types.CollectionStatusBuilding,
	}
	if _, err := fx.collections.Create(context.Background(), nil, []*types.SourceCollection{collection}); err != nil {
		t.Fatalf("seed collection: %v", err)
	}
	return collection
}

func pdfDescriptor(n int) SourceDescriptor {
	return SourceDescriptor{
		Type:    types.SourceTypePDF,
		Locator: fmt.Sprintf("gcs:uploads/doc-%d.pdf", n),
		Title:   fmt.Sprintf("Document %d", n),
	}
}

func TestAddSourcesAnalyzesAndOrdersMembers(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)

	results, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2), pdfDescriptor(3)})
	if err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("source %d failed: %v", i, res.Err)
		}
		if got := fx.sources.get(res.Source.ID).Status; got != types.SourceStatusCompleted {
			t.Fatalf("source %d status = %q, want completed", i, got)
		}
	}

	members, err := fx.collections.GetMembers(context.Background(), nil, collection.ID)
	if err != nil {
		t.Fatalf("GetMembers failed: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("members = %d, want 3", len(members))
	}
	for i, m := range members {
		if m.OrderIndex != i {
			t.Fatalf("member %d has order index %d", i, m.OrderIndex)
		}
		if m.SourceID != results[i].Source.ID {
			t.Fatalf("member order does not follow input order")
		}
	}
	// No course is generated when sources enter through a collection.
	if len(fx.courses.materialized) != 0 {
		t.Fatalf("collection add must not generate a course")
	}
}

func TestAddSourcesSingleDescriptor(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)

	results, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID, []SourceDescriptor{pdfDescriptor(1)})
	if err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("single add should succeed, got %+v", results)
	}
	if got := fx.sources.get(results[0].Source.ID).Status; got != types.SourceStatusCompleted {
		t.Fatalf("source status = %q, want completed", got)
	}
	members, _ := fx.collections.GetMembers(context.Background(), nil, collection.ID)
	if len(members) != 1 || members[0].OrderIndex != 0 {
		t.Fatalf("expected one member at order index 0, got %d members", len(members))
	}
}

func TestAddSourcesKeepsBatchAliveOnFailure(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.docAnalysis.err = fmt.Errorf("provider down")
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)

	results, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2)})
	if err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	for i, res := range results {
		if res.Err == nil {
			t.Fatalf("source %d should have failed analysis", i)
		}
		if got := fx.sources.get(res.Source.ID).Status; got != types.SourceStatusFailed {
			t.Fatalf("source %d status = %q, want failed", i, got)
		}
	}
	// Failed sources stay members; re-analysis can pick them up later.
	members, _ := fx.collections.GetMembers(context.Background(), nil, collection.ID)
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
}

func TestAnalyzeRequiresTwoMembers(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	if _, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID, []SourceDescriptor{pdfDescriptor(1)}); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}

	_, err := fx.pipe.Analyze(context.Background(), orgID, collection.ID)
	if !errors.Is(err, ErrNotEnoughMembers) {
		t.Fatalf("err = %v, want ErrNotEnoughMembers", err)
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	if _, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2)}); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}

	row, err := fx.pipe.Analyze(context.Background(), orgID, collection.ID)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if row == nil || row.CollectionID != collection.ID {
		t.Fatalf("synthesis row not stored for collection")
	}

	stored := fx.collections.get(collection.ID)
	if stored.Status != types.CollectionStatusReady {
		t.Fatalf("collection status = %q, want ready", stored.Status)
	}
	if stored.AnalysisCompletedAt == nil {
		t.Fatalf("analysis completion time not recorded")
	}
	if len(fx.synthesis.lastInputs) != 2 {
		t.Fatalf("synthesis saw %d inputs, want 2", len(fx.synthesis.lastInputs))
	}
}

func TestAnalyzeRejectsHeldLease(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	if _, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2)}); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	if err := fx.collections.UpdateFields(context.Background(), nil, collection.ID,
		map[string]interface{}{"status": types.CollectionStatusAnalyzing}); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	_, err := fx.pipe.Analyze(context.Background(), orgID, collection.ID)
	if !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("err = %v, want ErrAlreadyProcessing", err)
	}
}

func TestAnalyzeSkipsMembersWithoutAnalysis(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	if _, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2)}); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	// Third member never went through analysis.
	bare := &types.Source{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Type:           types.SourceTypePDF,
		Locator:        "gcs:uploads/bare.pdf",
		Title:          "Unanalyzed",
		Status:         types.SourceStatusPending,
	}
	if _, err := fx.sources.Create(context.Background(), nil, []*types.Source{bare}); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	if _, err := fx.collections.AddMember(context.Background(), nil, collection.ID, bare.ID); err != nil {
		t.Fatalf("seed member: %v", err)
	}

	if _, err := fx.pipe.Analyze(context.Background(), orgID, collection.ID); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(fx.synthesis.lastInputs) != 2 {
		t.Fatalf("synthesis saw %d inputs, want 2 (skipping the unanalyzed member)", len(fx.synthesis.lastInputs))
	}
}

func TestAnalyzeFailureMarksCollectionFailed(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.synthesis.err = fmt.Errorf("provider outage")
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	if _, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2)}); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}

	_, err := fx.pipe.Analyze(context.Background(), orgID, collection.ID)
	if err == nil {
		t.Fatalf("expected synthesis failure")
	}
	stored := fx.collections.get(collection.ID)
	if stored.Status != types.CollectionStatusFailed {
		t.Fatalf("collection status = %q, want failed", stored.Status)
	}
	if stored.Error == "" {
		t.Fatalf("failed collection should carry the stage error")
	}
}

func TestAnalyzePanicMarksCollectionFailed(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	if _, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2)}); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	fx.synthesis.panicWith = "runtime error: invalid memory address or nil pointer dereference"

	_, err := fx.pipe.Analyze(context.Background(), orgID, collection.ID)
	if err == nil {
		t.Fatalf("expected an error from the panicking run")
	}
	stored := fx.collections.get(collection.ID)
	if stored.Status != types.CollectionStatusFailed {
		t.Fatalf("collection status = %q, want failed; the lease must not outlive the run", stored.Status)
	}
	if stored.Error == "" {
		t.Fatalf("failed collection should carry the panic cause")
	}
}

func TestGenerateSingleMemberSkipsSynthesis(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	results, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID, []SourceDescriptor{pdfDescriptor(1)})
	if err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}

	course, err := fx.pipe.Generate(context.Background(), orgID, collection.ID)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if course == nil {
		t.Fatalf("expected a course")
	}
	if fx.synthesis.calls != 0 {
		t.Fatalf("single-member generation must not synthesize")
	}
	if fx.lessons.analysisCalls != 1 || fx.lessons.synthesisCalls != 0 {
		t.Fatalf("adapter calls analysis=%d synthesis=%d, want 1/0", fx.lessons.analysisCalls, fx.lessons.synthesisCalls)
	}

	rows := fx.courses.materialized[len(fx.courses.materialized)-1]
	if rows.Course.CollectionID == nil || *rows.Course.CollectionID != collection.ID {
		t.Fatalf("course should link back to the collection")
	}
	if len(rows.Mappings) == 0 || rows.Mappings[0].SourceID != results[0].Source.ID {
		t.Fatalf("modules should map to the lone member")
	}
}

func TestGenerateReanalyzesWhenSynthesisStale(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	if _, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2)}); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	if _, err := fx.pipe.Analyze(context.Background(), orgID, collection.ID); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if fx.synthesis.calls != 1 {
		t.Fatalf("synthesis calls = %d, want 1", fx.synthesis.calls)
	}

	// New member added after the synthesis makes it stale.
	if _, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID, []SourceDescriptor{pdfDescriptor(3)}); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	if got := fx.collections.get(collection.ID).Status; got != types.CollectionStatusBuilding {
		t.Fatalf("collection status after membership change = %q, want building", got)
	}

	course, err := fx.pipe.Generate(context.Background(), orgID, collection.ID)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if course == nil {
		t.Fatalf("expected a course")
	}
	if fx.synthesis.calls != 2 {
		t.Fatalf("stale synthesis should trigger re-analysis; calls = %d, want 2", fx.synthesis.calls)
	}
	if fx.lessons.synthesisCalls != 1 {
		t.Fatalf("lesson generation should use the synthesis variant")
	}
}

func TestGenerateReusesFreshSynthesis(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	if _, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2)}); err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}
	if _, err := fx.pipe.Analyze(context.Background(), orgID, collection.ID); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if _, err := fx.pipe.Generate(context.Background(), orgID, collection.ID); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if fx.synthesis.calls != 1 {
		t.Fatalf("fresh synthesis should be reused; calls = %d, want 1", fx.synthesis.calls)
	}
}

func TestGenerateDropsForeignSourceTags(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)
	results, err := fx.pipe.AddSources(context.Background(), orgID, collection.ID,
		[]SourceDescriptor{pdfDescriptor(1), pdfDescriptor(2)})
	if err != nil {
		t.Fatalf("AddSources failed: %v", err)
	}

	memberID := results[0].Source.ID
	foreign := uuid.New()
	fx.lessons.tree.Modules[0].Objectives[0].SourceIDs = []string{
		memberID.String(),
		foreign.String(),
		"not-a-uuid",
	}

	if _, err := fx.pipe.Generate(context.Background(), orgID, collection.ID); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	rows := fx.courses.materialized[len(fx.courses.materialized)-1]
	if len(rows.Mappings) != 1 {
		t.Fatalf("mappings = %d, want 1 (foreign tags dropped)", len(rows.Mappings))
	}
	if rows.Mappings[0].SourceID != memberID {
		t.Fatalf("mapping source = %s, want %s", rows.Mappings[0].SourceID, memberID)
	}
}

func TestGenerateEmptyCollection(t *testing.T) {
	fx := newPipelineFixture(t)
	orgID := uuid.New()
	collection := seedCollection(t, fx, orgID)

	if _, err := fx.pipe.Generate(context.Background(), orgID, collection.ID); err == nil {
		t.Fatalf("expected error for empty collection")
	}
}
