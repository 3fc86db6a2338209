package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/repos"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// CollectionMember pairs a membership row with its source.
type CollectionMember struct {
	OrderIndex int           `json:"order_index"`
	Source     *types.Source `json:"source"`
}

type CollectionService interface {
	Create(ctx context.Context, orgID uuid.UUID, title, description string) (*types.SourceCollection, error)
	List(ctx context.Context, orgID uuid.UUID) ([]*types.SourceCollection, error)
	Get(ctx context.Context, orgID, collectionID uuid.UUID) (*types.SourceCollection, error)
	Members(ctx context.Context, orgID, collectionID uuid.UUID) ([]*CollectionMember, error)
	LatestSynthesis(ctx context.Context, orgID, collectionID uuid.UUID) (*types.CollectionAnalysis, error)
}

type collectionService struct {
	log         *logger.Logger
	collections repos.CollectionRepo
	sources     repos.SourceRepo
	syntheses   repos.CollectionAnalysisRepo
}

func NewCollectionService(
	log *logger.Logger,
	collections repos.CollectionRepo,
	sources repos.SourceRepo,
	syntheses repos.CollectionAnalysisRepo,
) CollectionService {
	return &collectionService{
		log:         log.With("service", "CollectionService"),
		collections: collections,
		sources:     sources,
		syntheses:   syntheses,
	}
}

func (s *collectionService) Create(ctx context.Context, orgID uuid.UUID, title, description string) (*types.SourceCollection, error) {
	collection := &types.SourceCollection{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Title:          strings.TrimSpace(title),
		Description:    strings.TrimSpace(description),
		Status:         types.CollectionStatusBuilding,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	created, err := s.collections.Create(ctx, nil, []*types.SourceCollection{collection})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

func (s *collectionService) List(ctx context.Context, orgID uuid.UUID) ([]*types.SourceCollection, error) {
	return s.collections.GetByOrganizationID(ctx, nil, orgID)
}

func (s *collectionService) Get(ctx context.Context, orgID, collectionID uuid.UUID) (*types.SourceCollection, error) {
	rows, err := s.collections.GetByIDs(ctx, nil, []uuid.UUID{collectionID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *collectionService) Members(ctx context.Context, orgID, collectionID uuid.UUID) ([]*CollectionMember, error) {
	if _, err := s.Get(ctx, orgID, collectionID); err != nil {
		return nil, err
	}
	links, err := s.collections.GetMembers(ctx, nil, collectionID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.SourceID)
	}
	sources, err := s.sources.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Source, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}
	members := make([]*CollectionMember, 0, len(links))
	for _, link := range links {
		src, ok := byID[link.SourceID]
		if !ok {
			continue
		}
		members = append(members, &CollectionMember{OrderIndex: link.OrderIndex, Source: src})
	}
	return members, nil
}

func (s *collectionService) LatestSynthesis(ctx context.Context, orgID, collectionID uuid.UUID) (*types.CollectionAnalysis, error) {
	if _, err := s.Get(ctx, orgID, collectionID); err != nil {
		return nil, err
	}
	row, err := s.syntheses.GetLatestByCollectionID(ctx, nil, collectionID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return row, nil
}
