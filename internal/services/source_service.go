package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/repos"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// ErrNotFound is returned by the read services when a record does not exist
// or belongs to another organization. Handlers map it to 404.
var ErrNotFound = errors.New("record not found")

// SourceService is the org-scoped read/lookup surface over sources. Writes go
// through the pipeline, which owns the status transitions.
type SourceService interface {
	List(ctx context.Context, orgID uuid.UUID) ([]*types.Source, error)
	Get(ctx context.Context, orgID, sourceID uuid.UUID) (*types.Source, error)
	LatestAnalysis(ctx context.Context, orgID, sourceID uuid.UUID) (*types.ContentAnalysis, error)
}

type sourceService struct {
	log      *logger.Logger
	sources  repos.SourceRepo
	analyses repos.ContentAnalysisRepo
}

func NewSourceService(log *logger.Logger, sources repos.SourceRepo, analyses repos.ContentAnalysisRepo) SourceService {
	return &sourceService{
		log:      log.With("service", "SourceService"),
		sources:  sources,
		analyses: analyses,
	}
}

func (s *sourceService) List(ctx context.Context, orgID uuid.UUID) ([]*types.Source, error) {
	return s.sources.GetByOrganizationID(ctx, nil, orgID)
}

func (s *sourceService) Get(ctx context.Context, orgID, sourceID uuid.UUID) (*types.Source, error) {
	rows, err := s.sources.GetByIDs(ctx, nil, []uuid.UUID{sourceID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *sourceService) LatestAnalysis(ctx context.Context, orgID, sourceID uuid.UUID) (*types.ContentAnalysis, error) {
	if _, err := s.Get(ctx, orgID, sourceID); err != nil {
		return nil, err
	}
	analysis, err := s.analyses.GetLatestBySourceID(ctx, nil, sourceID)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, ErrNotFound
	}
	return analysis, nil
}
