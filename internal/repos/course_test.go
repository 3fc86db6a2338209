package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// openTestDB gives each test its own in-memory sqlite database. The schema is
// created by hand: the model tags carry postgres defaults that sqlite cannot
// evaluate, and the repos never rely on them (ids are assigned in Go).
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ddl := []string{
		`CREATE TABLE course (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			collection_id TEXT,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)`,
		`CREATE TABLE course_module (
			id TEXT PRIMARY KEY,
			course_id TEXT NOT NULL,
			module_number INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			duration TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE learning_objective (
			id TEXT PRIMARY KEY,
			module_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			bloom_level TEXT NOT NULL,
			order_index INTEGER NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE learning_activity (
			id TEXT PRIMARY KEY,
			objective_id TEXT NOT NULL,
			instruction_method TEXT NOT NULL,
			description TEXT NOT NULL,
			duration TEXT,
			resources TEXT,
			order_index INTEGER NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE lesson_source_mapping (
			id TEXT PRIMARY KEY,
			module_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			contribution_note TEXT,
			created_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func testRepoLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func sampleTreeRows(orgID uuid.UUID) *LessonTreeRows {
	now := time.Now()
	course := &types.Course{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Title:          "Cell Biology",
		Status:         types.CourseStatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	module := &types.CourseModule{
		ID:           uuid.New(),
		CourseID:     course.ID,
		ModuleNumber: 1,
		Title:        "Membranes",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	objective := &types.LearningObjective{
		ID:         uuid.New(),
		ModuleID:   module.ID,
		Type:       types.ObjectiveTypeTerminal,
		Content:    "Describe membrane transport",
		BloomLevel: "understand",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	activities := []*types.LearningActivity{
		{
			ID:                uuid.New(),
			ObjectiveID:       objective.ID,
			InstructionMethod: "lecture",
			Description:       "Transport mechanisms walkthrough",
			OrderIndex:        0,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		{
			ID:                uuid.New(),
			ObjectiveID:       objective.ID,
			InstructionMethod: "lab",
			Description:       "Osmosis demo",
			OrderIndex:        1,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}
	mapping := &types.LessonSourceMapping{
		ID:        uuid.New(),
		ModuleID:  module.ID,
		SourceID:  uuid.New(),
		CreatedAt: now,
	}
	return &LessonTreeRows{
		Course:     course,
		Modules:    []*types.CourseModule{module},
		Objectives: []*types.LearningObjective{objective},
		Activities: activities,
		Mappings:   []*types.LessonSourceMapping{mapping},
	}
}

func TestMaterializeTreeWritesWholeGraph(t *testing.T) {
	db := openTestDB(t)
	repo := NewCourseRepo(db, testRepoLogger(t))
	ctx := context.Background()
	orgID := uuid.New()

	rows := sampleTreeRows(orgID)
	if err := repo.MaterializeTree(ctx, nil, rows); err != nil {
		t.Fatalf("MaterializeTree failed: %v", err)
	}

	courses, err := repo.GetByOrganizationID(ctx, nil, orgID)
	if err != nil {
		t.Fatalf("GetByOrganizationID failed: %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("courses = %d, want 1", len(courses))
	}
	modules, err := repo.GetModulesByCourseID(ctx, nil, rows.Course.ID)
	if err != nil || len(modules) != 1 {
		t.Fatalf("modules = %d (err %v), want 1", len(modules), err)
	}
	objectives, err := repo.GetObjectivesByModuleIDs(ctx, nil, []uuid.UUID{modules[0].ID})
	if err != nil || len(objectives) != 1 {
		t.Fatalf("objectives = %d (err %v), want 1", len(objectives), err)
	}
	activities, err := repo.GetActivitiesByObjectiveIDs(ctx, nil, []uuid.UUID{objectives[0].ID})
	if err != nil || len(activities) != 2 {
		t.Fatalf("activities = %d (err %v), want 2", len(activities), err)
	}
	if activities[0].OrderIndex != 0 || activities[1].OrderIndex != 1 {
		t.Fatalf("activities not ordered by order_index")
	}
	mappings, err := repo.GetMappingsByModuleIDs(ctx, nil, []uuid.UUID{modules[0].ID})
	if err != nil || len(mappings) != 1 {
		t.Fatalf("mappings = %d (err %v), want 1", len(mappings), err)
	}
}

func TestMaterializeTreeLeavesNothingOnFailure(t *testing.T) {
	db := openTestDB(t)
	repo := NewCourseRepo(db, testRepoLogger(t))
	ctx := context.Background()
	orgID := uuid.New()

	rows := sampleTreeRows(orgID)
	// A duplicated activity id blows up the fan-out partway through.
	rows.Activities[1].ID = rows.Activities[0].ID

	if err := repo.MaterializeTree(ctx, nil, rows); err == nil {
		t.Fatalf("expected failure from duplicate activity id")
	}

	var n int64
	for _, model := range []interface{}{
		&types.Course{}, &types.CourseModule{}, &types.LearningObjective{},
		&types.LearningActivity{}, &types.LessonSourceMapping{},
	} {
		if err := db.Model(model).Unscoped().Count(&n).Error; err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 0 {
			t.Fatalf("%T rows = %d after failed materialization, want 0", model, n)
		}
	}
}
