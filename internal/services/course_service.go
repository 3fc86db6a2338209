package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/repos"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// CourseTree is the fully-hydrated read shape: the course with its modules,
// each module carrying its objectives (with activities) and source mappings.
type CourseTree struct {
	Course  *types.Course     `json:"course"`
	Modules []*CourseTreeNode `json:"modules"`
}

type CourseTreeNode struct {
	Module     *types.CourseModule          `json:"module"`
	Objectives []*CourseTreeObjective       `json:"objectives"`
	Mappings   []*types.LessonSourceMapping `json:"source_mappings"`
}

type CourseTreeObjective struct {
	Objective  *types.LearningObjective  `json:"objective"`
	Activities []*types.LearningActivity `json:"activities"`
}

type CourseService interface {
	List(ctx context.Context, orgID uuid.UUID) ([]*types.Course, error)
	GetTree(ctx context.Context, orgID, courseID uuid.UUID) (*CourseTree, error)
}

type courseService struct {
	log     *logger.Logger
	courses repos.CourseRepo
}

func NewCourseService(log *logger.Logger, courses repos.CourseRepo) CourseService {
	return &courseService{
		log:     log.With("service", "CourseService"),
		courses: courses,
	}
}

func (s *courseService) List(ctx context.Context, orgID uuid.UUID) ([]*types.Course, error) {
	return s.courses.GetByOrganizationID(ctx, nil, orgID)
}

func (s *courseService) GetTree(ctx context.Context, orgID, courseID uuid.UUID) (*CourseTree, error) {
	rows, err := s.courses.GetByIDs(ctx, nil, []uuid.UUID{courseID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].OrganizationID != orgID {
		return nil, ErrNotFound
	}
	course := rows[0]

	modules, err := s.courses.GetModulesByCourseID(ctx, nil, course.ID)
	if err != nil {
		return nil, err
	}
	moduleIDs := make([]uuid.UUID, 0, len(modules))
	for _, m := range modules {
		moduleIDs = append(moduleIDs, m.ID)
	}

	objectives, err := s.courses.GetObjectivesByModuleIDs(ctx, nil, moduleIDs)
	if err != nil {
		return nil, err
	}
	objectiveIDs := make([]uuid.UUID, 0, len(objectives))
	for _, o := range objectives {
		objectiveIDs = append(objectiveIDs, o.ID)
	}

	activities, err := s.courses.GetActivitiesByObjectiveIDs(ctx, nil, objectiveIDs)
	if err != nil {
		return nil, err
	}
	mappings, err := s.courses.GetMappingsByModuleIDs(ctx, nil, moduleIDs)
	if err != nil {
		return nil, err
	}

	activitiesByObjective := make(map[uuid.UUID][]*types.LearningActivity, len(objectives))
	for _, a := range activities {
		activitiesByObjective[a.ObjectiveID] = append(activitiesByObjective[a.ObjectiveID], a)
	}
	objectivesByModule := make(map[uuid.UUID][]*CourseTreeObjective, len(modules))
	for _, o := range objectives {
		objectivesByModule[o.ModuleID] = append(objectivesByModule[o.ModuleID], &CourseTreeObjective{
			Objective:  o,
			Activities: activitiesByObjective[o.ID],
		})
	}
	mappingsByModule := make(map[uuid.UUID][]*types.LessonSourceMapping, len(modules))
	for _, m := range mappings {
		mappingsByModule[m.ModuleID] = append(mappingsByModule[m.ModuleID], m)
	}

	tree := &CourseTree{Course: course, Modules: make([]*CourseTreeNode, 0, len(modules))}
	for _, m := range modules {
		tree.Modules = append(tree.Modules, &CourseTreeNode{
			Module:     m,
			Objectives: objectivesByModule[m.ID],
			Mappings:   mappingsByModule[m.ID],
		})
	}
	return tree, nil
}
