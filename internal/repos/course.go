package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// LessonTreeRows is a fully-built course graph ready for the fan-out insert.
// Parents precede children; every child row already carries its parent id.
type LessonTreeRows struct {
	Course     *types.Course
	Modules    []*types.CourseModule
	Objectives []*types.LearningObjective
	Activities []*types.LearningActivity
	Mappings   []*types.LessonSourceMapping
}

type CourseRepo interface {
	// MaterializeTree applies the whole graph as one logical unit: either every
	// row is visible afterward or none is. The insert runs inside a transaction;
	// if the store rejects a row partway through, rows already written for this
	// attempt are explicitly deleted before the error is returned.
	MaterializeTree(ctx context.Context, tx *gorm.DB, rows *LessonTreeRows) error

	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Course, error)
	GetByOrganizationID(ctx context.Context, tx *gorm.DB, orgID uuid.UUID) ([]*types.Course, error)
	GetModulesByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.CourseModule, error)
	GetObjectivesByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.LearningObjective, error)
	GetActivitiesByObjectiveIDs(ctx context.Context, tx *gorm.DB, objectiveIDs []uuid.UUID) ([]*types.LearningActivity, error)
	GetMappingsByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.LessonSourceMapping, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) MaterializeTree(ctx context.Context, tx *gorm.DB, rows *LessonTreeRows) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if rows == nil || rows.Course == nil {
		return fmt.Errorf("materialize: empty tree")
	}

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(rows.Course).Error; err != nil {
			return fmt.Errorf("create course: %w", err)
		}
		if len(rows.Modules) > 0 {
			if err := txx.Create(&rows.Modules).Error; err != nil {
				return fmt.Errorf("create modules: %w", err)
			}
		}
		if len(rows.Objectives) > 0 {
			if err := txx.Create(&rows.Objectives).Error; err != nil {
				return fmt.Errorf("create objectives: %w", err)
			}
		}
		if len(rows.Activities) > 0 {
			if err := txx.Create(&rows.Activities).Error; err != nil {
				return fmt.Errorf("create activities: %w", err)
			}
		}
		if len(rows.Mappings) > 0 {
			if err := txx.Create(&rows.Mappings).Error; err != nil {
				return fmt.Errorf("create source mappings: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		// The transaction already rolled back; the compensating delete makes the
		// outcome explicit on stores where the rollback may not cover every row.
		r.cleanupAttempt(ctx, rows)
		return err
	}
	return nil
}

// cleanupAttempt removes, child-first, anything that survived a failed fan-out.
func (r *courseRepo) cleanupAttempt(ctx context.Context, rows *LessonTreeRows) {
	moduleIDs := make([]uuid.UUID, 0, len(rows.Modules))
	for _, m := range rows.Modules {
		moduleIDs = append(moduleIDs, m.ID)
	}
	objectiveIDs := make([]uuid.UUID, 0, len(rows.Objectives))
	for _, o := range rows.Objectives {
		objectiveIDs = append(objectiveIDs, o.ID)
	}

	if len(moduleIDs) > 0 {
		if err := r.db.WithContext(ctx).Where("module_id IN ?", moduleIDs).Delete(&types.LessonSourceMapping{}).Error; err != nil {
			r.log.Warn("Cleanup of lesson source mappings failed", "error", err, "course_id", rows.Course.ID)
		}
	}
	if len(objectiveIDs) > 0 {
		if err := r.db.WithContext(ctx).Where("objective_id IN ?", objectiveIDs).Delete(&types.LearningActivity{}).Error; err != nil {
			r.log.Warn("Cleanup of learning activities failed", "error", err, "course_id", rows.Course.ID)
		}
	}
	if len(moduleIDs) > 0 {
		if err := r.db.WithContext(ctx).Where("module_id IN ?", moduleIDs).Delete(&types.LearningObjective{}).Error; err != nil {
			r.log.Warn("Cleanup of learning objectives failed", "error", err, "course_id", rows.Course.ID)
		}
	}
	if err := r.db.WithContext(ctx).Where("course_id = ?", rows.Course.ID).Delete(&types.CourseModule{}).Error; err != nil {
		r.log.Warn("Cleanup of course modules failed", "error", err, "course_id", rows.Course.ID)
	}
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", rows.Course.ID).Delete(&types.Course{}).Error; err != nil {
		r.log.Warn("Cleanup of course failed", "error", err, "course_id", rows.Course.ID)
	}
}

func (r *courseRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Course
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

func (r *courseRepo) GetByOrganizationID(ctx context.Context, tx *gorm.DB, orgID uuid.UUID) ([]*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Course
	if err := transaction.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseRepo) GetModulesByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.CourseModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.CourseModule
	if courseID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("module_number ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseRepo) GetObjectivesByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.LearningObjective, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LearningObjective
	if len(moduleIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("module_id IN ?", moduleIDs).
		Order("order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseRepo) GetActivitiesByObjectiveIDs(ctx context.Context, tx *gorm.DB, objectiveIDs []uuid.UUID) ([]*types.LearningActivity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LearningActivity
	if len(objectiveIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("objective_id IN ?", objectiveIDs).
		Order("order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseRepo) GetMappingsByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.LessonSourceMapping, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LessonSourceMapping
	if len(moduleIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("module_id IN ?", moduleIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
