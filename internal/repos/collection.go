package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

type CollectionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, collections []*types.SourceCollection) ([]*types.SourceCollection, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.SourceCollection, error)
	GetByOrganizationID(ctx context.Context, tx *gorm.DB, orgID uuid.UUID) ([]*types.SourceCollection, error)
	UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatuses []string, updates map[string]interface{}) (bool, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error

	// AddMember links a source at the next order index (max existing + 1).
	// Indices are never compacted, so insertion order survives removals.
	AddMember(ctx context.Context, tx *gorm.DB, collectionID, sourceID uuid.UUID) (*types.CollectionSource, error)
	GetMembers(ctx context.Context, tx *gorm.DB, collectionID uuid.UUID) ([]*types.CollectionSource, error)
}

type collectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCollectionRepo(db *gorm.DB, baseLog *logger.Logger) CollectionRepo {
	return &collectionRepo{db: db, log: baseLog.With("repo", "CollectionRepo")}
}

func (r *collectionRepo) Create(ctx context.Context, tx *gorm.DB, collections []*types.SourceCollection) ([]*types.SourceCollection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(collections) == 0 {
		return []*types.SourceCollection{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&collections).Error; err != nil {
		return nil, err
	}
	return collections, nil
}

func (r *collectionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.SourceCollection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.SourceCollection
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *collectionRepo) GetByOrganizationID(ctx context.Context, tx *gorm.DB, orgID uuid.UUID) ([]*types.SourceCollection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.SourceCollection
	if err := transaction.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *collectionRepo) UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(fromStatuses) == 0 {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := transaction.WithContext(ctx).
		Model(&types.SourceCollection{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *collectionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.SourceCollection{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *collectionRepo) AddMember(ctx context.Context, tx *gorm.DB, collectionID, sourceID uuid.UUID) (*types.CollectionSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var member *types.CollectionSource
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var maxIndex struct {
			N *int
		}
		if err := txx.Model(&types.CollectionSource{}).
			Select("MAX(order_index) AS n").
			Where("collection_id = ?", collectionID).
			Scan(&maxIndex).Error; err != nil {
			return err
		}
		next := 0
		if maxIndex.N != nil {
			next = *maxIndex.N + 1
		}
		member = &types.CollectionSource{
			ID:           uuid.New(),
			CollectionID: collectionID,
			SourceID:     sourceID,
			OrderIndex:   next,
			CreatedAt:    time.Now(),
		}
		return txx.Create(member).Error
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (r *collectionRepo) GetMembers(ctx context.Context, tx *gorm.DB, collectionID uuid.UUID) ([]*types.CollectionSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.CollectionSource
	if collectionID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
