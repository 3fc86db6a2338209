package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// ContentAnalysisRepo is append-only: analyses are never updated in place.
type ContentAnalysisRepo interface {
	Create(ctx context.Context, tx *gorm.DB, analyses []*types.ContentAnalysis) ([]*types.ContentAnalysis, error)
	GetLatestBySourceID(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (*types.ContentAnalysis, error)
	GetLatestBySourceIDs(ctx context.Context, tx *gorm.DB, sourceIDs []uuid.UUID) (map[uuid.UUID]*types.ContentAnalysis, error)
	CountBySourceID(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (int64, error)
}

type contentAnalysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) ContentAnalysisRepo {
	return &contentAnalysisRepo{db: db, log: baseLog.With("repo", "ContentAnalysisRepo")}
}

func (r *contentAnalysisRepo) Create(ctx context.Context, tx *gorm.DB, analyses []*types.ContentAnalysis) ([]*types.ContentAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(analyses) == 0 {
		return []*types.ContentAnalysis{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&analyses).Error; err != nil {
		return nil, err
	}
	return analyses, nil
}

func (r *contentAnalysisRepo) GetLatestBySourceID(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (*types.ContentAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if sourceID == uuid.Nil {
		return nil, nil
	}
	var row types.ContentAnalysis
	err := transaction.WithContext(ctx).
		Where("source_id = ?", sourceID).
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

func (r *contentAnalysisRepo) GetLatestBySourceIDs(ctx context.Context, tx *gorm.DB, sourceIDs []uuid.UUID) (map[uuid.UUID]*types.ContentAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID]*types.ContentAnalysis, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return out, nil
	}
	var rows []*types.ContentAnalysis
	if err := transaction.WithContext(ctx).
		Where("source_id IN ?", sourceIDs).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	// Rows arrive newest-first; the first row seen per source wins.
	for _, row := range rows {
		if row == nil {
			continue
		}
		if _, seen := out[row.SourceID]; !seen {
			out[row.SourceID] = row
		}
	}
	return out, nil
}

func (r *contentAnalysisRepo) CountBySourceID(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.ContentAnalysis{}).
		Where("source_id = ?", sourceID).
		Count(&n).Error
	return n, err
}
