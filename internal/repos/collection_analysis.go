package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// CollectionAnalysisRepo is append-only; history is retained and the most
// recent row is the current synthesis.
type CollectionAnalysisRepo interface {
	Create(ctx context.Context, tx *gorm.DB, analyses []*types.CollectionAnalysis) ([]*types.CollectionAnalysis, error)
	GetLatestByCollectionID(ctx context.Context, tx *gorm.DB, collectionID uuid.UUID) (*types.CollectionAnalysis, error)
}

type collectionAnalysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCollectionAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) CollectionAnalysisRepo {
	return &collectionAnalysisRepo{db: db, log: baseLog.With("repo", "CollectionAnalysisRepo")}
}

func (r *collectionAnalysisRepo) Create(ctx context.Context, tx *gorm.DB, analyses []*types.CollectionAnalysis) ([]*types.CollectionAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(analyses) == 0 {
		return []*types.CollectionAnalysis{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&analyses).Error; err != nil {
		return nil, err
	}
	return analyses, nil
}

func (r *collectionAnalysisRepo) GetLatestByCollectionID(ctx context.Context, tx *gorm.DB, collectionID uuid.UUID) (*types.CollectionAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if collectionID == uuid.Nil {
		return nil, nil
	}
	var row types.CollectionAnalysis
	err := transaction.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("created_at DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}
