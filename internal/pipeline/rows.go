package pipeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/lessonforge/lessonforge-backend/internal/repos"
	"github.com/lessonforge/lessonforge-backend/internal/services"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// buildRows flattens a validated lesson tree into insertable rows. IDs are
// assigned here so children can reference parents before anything is written.
// Objective and activity order indices are dense and zero-based within their
// parent; module numbers come from the tree (validated 1-based dense).
// sourcesForModule decides which source mappings each module gets.
func buildRows(
	orgID uuid.UUID,
	collectionID *uuid.UUID,
	tree *services.LessonTree,
	sourcesForModule func(mod *services.LessonModule) []uuid.UUID,
) *repos.LessonTreeRows {
	now := time.Now()
	rows := &repos.LessonTreeRows{
		Course: &types.Course{
			ID:             uuid.New(),
			OrganizationID: orgID,
			CollectionID:   collectionID,
			Title:          tree.Course.Title,
			Description:    tree.Course.Description,
			Status:         types.CourseStatusDraft,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}

	for mi := range tree.Modules {
		mod := &tree.Modules[mi]
		moduleRow := &types.CourseModule{
			ID:           uuid.New(),
			CourseID:     rows.Course.ID,
			ModuleNumber: mod.ModuleNumber,
			Title:        mod.Title,
			Description:  mod.Description,
			Duration:     mod.Duration,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		rows.Modules = append(rows.Modules, moduleRow)

		for oi := range mod.Objectives {
			obj := &mod.Objectives[oi]
			objectiveRow := &types.LearningObjective{
				ID:         uuid.New(),
				ModuleID:   moduleRow.ID,
				Type:       obj.Type,
				Content:    obj.Content,
				BloomLevel: obj.BloomsLevel,
				OrderIndex: oi,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			rows.Objectives = append(rows.Objectives, objectiveRow)

			for ai := range obj.Activities {
				act := &obj.Activities[ai]
				resources, _ := json.Marshal(act.Resources)
				rows.Activities = append(rows.Activities, &types.LearningActivity{
					ID:                uuid.New(),
					ObjectiveID:       objectiveRow.ID,
					InstructionMethod: act.InstructionMethod,
					Description:       act.Description,
					Duration:          act.Duration,
					Resources:         datatypes.JSON(resources),
					OrderIndex:        ai,
					CreatedAt:         now,
					UpdatedAt:         now,
				})
			}
		}

		for _, srcID := range sourcesForModule(mod) {
			rows.Mappings = append(rows.Mappings, &types.LessonSourceMapping{
				ID:        uuid.New(),
				ModuleID:  moduleRow.ID,
				SourceID:  srcID,
				CreatedAt: now,
			})
		}
	}
	return rows
}

// moduleTaggedSources unions the (already filtered) source tags of a module's
// objectives, deduplicated in first-seen order.
func moduleTaggedSources(mod *services.LessonModule) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, obj := range mod.Objectives {
		for _, raw := range obj.SourceIDs {
			id, err := uuid.Parse(raw)
			if err != nil || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
