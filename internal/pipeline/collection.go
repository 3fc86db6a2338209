package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/lessonforge/lessonforge-backend/internal/services"
	"github.com/lessonforge/lessonforge-backend/internal/sse"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// AddResult reports the outcome of one source in a bulk add.
type AddResult struct {
	Source *types.Source `json:"source"`
	Err    error         `json:"-"`
	Error  string        `json:"error,omitempty"`
}

// AddSources adds sources to the collection, a single one being a batch of
// one. Creation and membership are serial so order indices follow input
// order; analysis fans out with bounded concurrency. A failed analysis marks
// its source failed without aborting the rest. Membership changes flip the
// collection back to building: any prior synthesis is now stale.
func (p *Pipeline) AddSources(ctx context.Context, orgID, collectionID uuid.UUID, descs []SourceDescriptor) ([]*AddResult, error) {
	if _, err := p.loadCollection(ctx, orgID, collectionID); err != nil {
		return nil, err
	}
	for i := range descs {
		if err := descs[i].validate(); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
	}

	results := make([]*AddResult, len(descs))
	for i, desc := range descs {
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
		if _, err := p.sources.Create(ctx, nil, []*types.Source{source}); err != nil {
			return nil, stageErr(KindPersistence, "create source", err)
		}
		if _, err := p.collections.AddMember(ctx, nil, collectionID, source.ID); err != nil {
			return nil, stageErr(KindPersistence, "add collection member", err)
		}
		results[i] = &AddResult{Source: source}
	}
	p.markCollectionBuilding(ctx, collectionID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.addConcurrency)
	for i := range results {
		i := i
		mimeType := descs[i].MimeType
		g.Go(func() error {
			if err := p.AnalyzeOnly(gctx, orgID, results[i].Source.ID, mimeType); err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Analyze synthesizes the collection's member analyses into one cross-source
// synthesis. Requires at least two members with stored analyses; members
// without an analysis are skipped with a warning. On success the collection
// becomes ready and records the synthesis time.
func (p *Pipeline) Analyze(ctx context.Context, orgID, collectionID uuid.UUID) (row *types.CollectionAnalysis, err error) {
	collection, err := p.loadCollection(ctx, orgID, collectionID)
	if err != nil {
		return nil, err
	}
	members, err := p.collections.GetMembers(ctx, nil, collectionID)
	if err != nil {
		return nil, stageErr(KindPersistence, "load members", err)
	}
	if len(members) < 2 {
		return nil, ErrNotEnoughMembers
	}

	ok, err := p.collections.UpdateStatusIf(ctx, nil, collectionID,
		[]string{types.CollectionStatusBuilding, types.CollectionStatusReady, types.CollectionStatusFailed},
		map[string]interface{}{
			"status": types.CollectionStatusAnalyzing,
			"error":  "",
		})
	if err != nil {
		return nil, stageErr(KindPersistence, "lease collection", err)
	}
	if !ok {
		return nil, ErrAlreadyProcessing
	}
	// Same contract as the source lease: a panic mid-synthesis still marks the
	// collection failed.
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("unexpected panic: %v", r)
			p.failCollection(ctx, collection, cause)
			row, err = nil, cause
		}
	}()

	row, err = p.synthesizeLeased(ctx, collection, members)
	if err != nil {
		p.failCollection(ctx, collection, err)
		return nil, err
	}
	return row, nil
}

func (p *Pipeline) synthesizeLeased(ctx context.Context, collection *types.SourceCollection, members []*types.CollectionSource) (*types.CollectionAnalysis, error) {
	inputs, err := p.memberInputs(ctx, members)
	if err != nil {
		return nil, err
	}
	if len(inputs) < 2 {
		return nil, stageErr(KindAnalysis, "gather analyses",
			fmt.Errorf("only %d of %d members have analyses; need at least 2", len(inputs), len(members)))
	}

	result, err := p.synthesis.Synthesize(ctx, inputs)
	if err != nil {
		return nil, stageErr(KindAnalysis, "synthesize", err)
	}

	payloadJSON, err := json.Marshal(result.Payload)
	if err != nil {
		return nil, stageErr(KindAnalysis, "encode synthesis", err)
	}
	row := &types.CollectionAnalysis{
		ID:           uuid.New(),
		CollectionID: collection.ID,
		Payload:      datatypes.JSON(payloadJSON),
		ProcessingMS: result.ProcessingMS,
		CostUSD:      result.CostUSD,
		Model:        result.Model,
		CreatedAt:    time.Now(),
	}
	if _, err := p.collectionAnalyses.Create(ctx, nil, []*types.CollectionAnalysis{row}); err != nil {
		return nil, stageErr(KindPersistence, "store synthesis", err)
	}

	now := time.Now()
	ok, err := p.collections.UpdateStatusIf(ctx, nil, collection.ID,
		[]string{types.CollectionStatusAnalyzing},
		map[string]interface{}{
			"status":                types.CollectionStatusReady,
			"analysis_completed_at": now,
		})
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("collection %s left analyzing state mid-run", collection.ID)
		}
		return nil, stageErr(KindPersistence, "complete collection analysis", err)
	}
	p.hub.BroadcastOrg(collection.OrganizationID, sse.SSEEventCollectionReady, map[string]any{
		"collection_id": collection.ID,
	})
	return row, nil
}

// Generate builds a course from the collection. Multi-member collections use
// the latest synthesis, re-synthesizing first when it is missing or predates
// any member's latest analysis. Single-member collections skip synthesis and
// generate straight from the member's analysis.
func (p *Pipeline) Generate(ctx context.Context, orgID, collectionID uuid.UUID) (*types.Course, error) {
	collection, err := p.loadCollection(ctx, orgID, collectionID)
	if err != nil {
		return nil, err
	}
	members, err := p.collections.GetMembers(ctx, nil, collectionID)
	if err != nil {
		return nil, stageErr(KindPersistence, "load members", err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("collection %s has no sources", collectionID)
	}

	var result *services.LessonResult
	memberIDs := make(map[uuid.UUID]bool, len(members))
	for _, m := range members {
		memberIDs[m.SourceID] = true
	}

	if len(members) == 1 {
		inputs, err := p.memberInputs(ctx, members)
		if err != nil {
			return nil, err
		}
		if len(inputs) == 0 {
			return nil, stageErr(KindAnalysis, "gather analyses",
				fmt.Errorf("member source %s has no analysis", members[0].SourceID))
		}
		result, err = p.lessons.GenerateFromAnalysis(ctx, collection.Title, inputs[0].Analysis)
		if err != nil {
			return nil, stageErr(KindGeneration, "generate lesson", err)
		}
	} else {
		synthesis, inputs, err := p.currentSynthesis(ctx, collection, members)
		if err != nil {
			return nil, err
		}
		result, err = p.lessons.GenerateFromSynthesis(ctx, collection.Title, *synthesis, inputs)
		if err != nil {
			return nil, stageErr(KindGeneration, "generate lesson", err)
		}
		FilterSourceTags(&result.Tree, memberIDs)
	}

	if err := ValidateLessonTree(&result.Tree); err != nil {
		return nil, stageErr(KindGeneration, "validate lesson", err)
	}

	cid := collection.ID
	rows := buildRows(orgID, &cid, &result.Tree, func(mod *services.LessonModule) []uuid.UUID {
		if tagged := moduleTaggedSources(mod); len(tagged) > 0 {
			return tagged
		}
		if len(members) == 1 {
			return []uuid.UUID{members[0].SourceID}
		}
		return nil
	})
	if err := p.courses.MaterializeTree(ctx, nil, rows); err != nil {
		return nil, stageErr(KindPersistence, "materialize course", err)
	}

	p.hub.BroadcastOrg(orgID, sse.SSEEventCourseGenerated, map[string]any{
		"course_id":     rows.Course.ID,
		"collection_id": collection.ID,
	})
	return rows.Course, nil
}

// currentSynthesis returns a synthesis no older than any member analysis,
// running Analyze first when the stored one is missing or stale.
func (p *Pipeline) currentSynthesis(ctx context.Context, collection *types.SourceCollection, members []*types.CollectionSource) (*services.CrossSourceSynthesis, []services.SynthesisInput, error) {
	latest, err := p.collectionAnalyses.GetLatestByCollectionID(ctx, nil, collection.ID)
	if err != nil {
		return nil, nil, stageErr(KindPersistence, "load synthesis", err)
	}

	sourceIDs := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		sourceIDs = append(sourceIDs, m.SourceID)
	}
	analysesByID, err := p.analyses.GetLatestBySourceIDs(ctx, nil, sourceIDs)
	if err != nil {
		return nil, nil, stageErr(KindPersistence, "load analyses", err)
	}

	stale := latest == nil
	if !stale {
		for _, a := range analysesByID {
			if a.CreatedAt.After(latest.CreatedAt) {
				stale = true
				break
			}
		}
	}
	if stale {
		p.log.Info("Synthesis missing or stale; re-analyzing", "collection_id", collection.ID)
		latest, err = p.Analyze(ctx, collection.OrganizationID, collection.ID)
		if err != nil {
			return nil, nil, err
		}
	}

	var synthesis services.CrossSourceSynthesis
	if err := json.Unmarshal(latest.Payload, &synthesis); err != nil {
		return nil, nil, stageErr(KindAnalysis, "parse stored synthesis", err)
	}
	inputs, err := p.memberInputs(ctx, members)
	if err != nil {
		return nil, nil, err
	}
	return &synthesis, inputs, nil
}

// memberInputs loads each member's source and latest analysis in collection
// order, skipping members without one.
func (p *Pipeline) memberInputs(ctx context.Context, members []*types.CollectionSource) ([]services.SynthesisInput, error) {
	sourceIDs := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		sourceIDs = append(sourceIDs, m.SourceID)
	}
	sources, err := p.sources.GetByIDs(ctx, nil, sourceIDs)
	if err != nil {
		return nil, stageErr(KindPersistence, "load sources", err)
	}
	sourcesByID := make(map[uuid.UUID]*types.Source, len(sources))
	for _, s := range sources {
		sourcesByID[s.ID] = s
	}
	analysesByID, err := p.analyses.GetLatestBySourceIDs(ctx, nil, sourceIDs)
	if err != nil {
		return nil, stageErr(KindPersistence, "load analyses", err)
	}

	inputs := make([]services.SynthesisInput, 0, len(members))
	for _, m := range members {
		src, ok := sourcesByID[m.SourceID]
		if !ok {
			continue
		}
		row, ok := analysesByID[m.SourceID]
		if !ok {
			p.log.Warn("Skipping member without analysis", "source_id", m.SourceID)
			continue
		}
		var payload services.ContentAnalysisPayload
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return nil, stageErr(KindAnalysis, "parse stored analysis", err)
		}
		inputs = append(inputs, services.SynthesisInput{
			SourceID: src.ID,
			Title:    src.Title,
			Type:     src.Type,
			Analysis: payload,
		})
	}
	return inputs, nil
}

func (p *Pipeline) loadCollection(ctx context.Context, orgID, collectionID uuid.UUID) (*types.SourceCollection, error) {
	rows, err := p.collections.GetByIDs(ctx, nil, []uuid.UUID{collectionID})
	if err != nil {
		return nil, stageErr(KindPersistence, "load collection", err)
	}
	if len(rows) == 0 || rows[0].OrganizationID != orgID {
		return nil, services.ErrNotFound
	}
	return rows[0], nil
}

// markCollectionBuilding flips a settled collection back to building after a
// membership change. An in-flight analyzing lease is left alone.
func (p *Pipeline) markCollectionBuilding(ctx context.Context, collectionID uuid.UUID) {
	_, err := p.collections.UpdateStatusIf(ctx, nil, collectionID,
		[]string{types.CollectionStatusBuilding, types.CollectionStatusReady, types.CollectionStatusFailed},
		map[string]interface{}{"status": types.CollectionStatusBuilding})
	if err != nil {
		p.log.Warn("Failed to mark collection building", "collection_id", collectionID, "error", err)
	}
}

func (p *Pipeline) failCollection(ctx context.Context, collection *types.SourceCollection, cause error) {
	_, err := p.collections.UpdateStatusIf(ctx, nil, collection.ID,
		[]string{types.CollectionStatusAnalyzing},
		map[string]interface{}{
			"status": types.CollectionStatusFailed,
			"error":  cause.Error(),
		})
	if err != nil {
		p.log.Error("Failed to mark collection failed", "collection_id", collection.ID, "error", err, "cause", cause)
		return
	}
	p.log.Warn("Collection analysis failed", "collection_id", collection.ID, "error", cause)
	p.hub.BroadcastOrg(collection.OrganizationID, sse.SSEEventCollectionFailed, map[string]any{
		"collection_id": collection.ID,
		"error":         cause.Error(),
	})
}
