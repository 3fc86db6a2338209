package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge-backend/internal/services"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// ValidateLessonTree rejects generated structures that would violate the
// course shape contract: at least one module, one-based dense module numbers,
// every module carrying at least one objective including a terminal one, and
// only known objective types and Bloom levels.
func ValidateLessonTree(tree *services.LessonTree) error {
	if tree == nil || len(tree.Modules) == 0 {
		return fmt.Errorf("generated course has no modules")
	}
	if tree.Course.Title == "" {
		return fmt.Errorf("generated course has no title")
	}
	for i, mod := range tree.Modules {
		if mod.ModuleNumber != i+1 {
			return fmt.Errorf("module numbers must be 1-based and dense: position %d has number %d", i+1, mod.ModuleNumber)
		}
		if len(mod.Objectives) == 0 {
			return fmt.Errorf("module %d has no objectives", mod.ModuleNumber)
		}
		hasTerminal := false
		for _, obj := range mod.Objectives {
			switch obj.Type {
			case types.ObjectiveTypeTerminal:
				hasTerminal = true
			case types.ObjectiveTypeEnabling:
			default:
				return fmt.Errorf("module %d has objective with unknown type %q", mod.ModuleNumber, obj.Type)
			}
			if !validBloomLevel(obj.BloomsLevel) {
				return fmt.Errorf("module %d has objective with unknown bloom level %q", mod.ModuleNumber, obj.BloomsLevel)
			}
		}
		if !hasTerminal {
			return fmt.Errorf("module %d has no terminal objective", mod.ModuleNumber)
		}
	}
	return nil
}

func validBloomLevel(level string) bool {
	for _, l := range types.BloomLevels {
		if l == level {
			return true
		}
	}
	return false
}

// FilterSourceTags drops objective source tags that do not name a current
// collection member. The provider occasionally hallucinates ids; a bad tag is
// dropped rather than failing the whole generation.
func FilterSourceTags(tree *services.LessonTree, memberIDs map[uuid.UUID]bool) {
	for mi := range tree.Modules {
		for oi := range tree.Modules[mi].Objectives {
			obj := &tree.Modules[mi].Objectives[oi]
			kept := obj.SourceIDs[:0]
			for _, raw := range obj.SourceIDs {
				id, err := uuid.Parse(raw)
				if err != nil || !memberIDs[id] {
					continue
				}
				kept = append(kept, raw)
			}
			obj.SourceIDs = kept
		}
	}
}
