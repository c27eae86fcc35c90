// Package merge implements the workspace branch/merge engine: merging a
// branch workspace back into its base with suffix-preserving id minting
// and conflict detection, and resolving a flagged conflict with one of
// three strategies.
package merge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/cad/store"
)

// Engine performs merge/resolve over a store. Merge is the only path
// that crosses workspace boundaries, so the engine serializes merges
// touching the same workspace pair behind a per-workspace lock set.
type Engine struct {
	st *store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex // workspace_id -> exclusive merge lock
}

// New returns an Engine bound to a store.
func New(st *store.Store) *Engine {
	return &Engine{st: st, locks: make(map[string]*sync.Mutex)}
}

func (e *Engine) lockFor(workspaceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[workspaceID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[workspaceID] = l
	}
	return l
}

// lockPair takes both workspace locks in a stable order so two
// concurrent merges over the same pair cannot deadlock.
func (e *Engine) lockPair(a, b string) func() {
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	l1 := e.lockFor(first)
	l1.Lock()
	if first == second {
		return l1.Unlock
	}
	l2 := e.lockFor(second)
	l2.Lock()
	return func() {
		l2.Unlock()
		l1.Unlock()
	}
}

// Conflict describes one entity id collision discovered during a merge.
type Conflict struct {
	EntityID        string `json:"entity_id"`
	ConflictType    string `json:"conflict_type"`
	SourceWorkspace string `json:"source_workspace"`
	TargetWorkspace string `json:"target_workspace"`
}

// ConflictEntityExists is the only conflict type a merge can flag.
const ConflictEntityExists = "entity_exists"

// Result is the outcome of a merge attempt.
type Result struct {
	MergeResult   string     `json:"merge_result"` // success | has_conflicts
	EntitiesAdded int        `json:"entities_added"`
	Conflicts     []Conflict `json:"conflicts"`
}

// localID strips the owning-workspace prefix off an entity id, leaving
// the "<type>_<suffix>" part that survives a merge.
func localID(entityID, workspaceID string) string {
	return strings.TrimPrefix(entityID, workspaceID+":")
}

// Merge merges sourceWorkspaceID (an agent_branch) into
// targetWorkspaceID. Each source entity's target-side id is minted by
// rebinding its "<type>_<suffix>" part to the target prefix; if that id
// already exists in the target the entity is flagged as a conflict and
// left uncopied. Copies preserve properties, bounding box, validity,
// timestamps, and originator. The source branch ends the merge as
// merged (clean) or conflicted (needs ResolveConflict), and the merge
// itself is journaled against the target workspace.
func (e *Engine) Merge(ctx context.Context, sourceWorkspaceID, targetWorkspaceID, agentID string) (*Result, error) {
	source, err := e.st.GetWorkspace(ctx, sourceWorkspaceID)
	if err != nil {
		return nil, err
	}
	target, err := e.st.GetWorkspace(ctx, targetWorkspaceID)
	if err != nil {
		return nil, err
	}
	if !source.CanMerge() {
		return nil, fmt.Errorf("workspace conflict: %s is %s and cannot be merged", source.WorkspaceID, source.BranchStatus)
	}

	unlock := e.lockPair(source.WorkspaceID, target.WorkspaceID)
	defer unlock()

	sourceEntities, err := e.st.ListEntitiesByWorkspace(ctx, source.WorkspaceID)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	added := make([]*model.Entity, 0, len(sourceEntities))

	for _, se := range sourceEntities {
		mintedID := fmt.Sprintf("%s:%s", target.WorkspaceID, localID(se.EntityID, se.WorkspaceID))
		if _, err := e.st.GetEntity(ctx, mintedID); err == nil {
			conflicts = append(conflicts, Conflict{
				EntityID:        mintedID,
				ConflictType:    ConflictEntityExists,
				SourceWorkspace: source.WorkspaceID,
				TargetWorkspace: target.WorkspaceID,
			})
			continue
		}
		clone := *se
		clone.EntityID = mintedID
		clone.WorkspaceID = target.WorkspaceID
		if err := e.st.CreateEntity(ctx, &clone); err != nil {
			return nil, err
		}
		added = append(added, &clone)
	}

	status := model.BranchMerged
	result := &Result{MergeResult: "success", EntitiesAdded: len(added), Conflicts: conflicts}
	if len(conflicts) > 0 {
		status = model.BranchConflicted
		result.MergeResult = "has_conflicts"
	}
	if err := e.st.UpdateWorkspaceStatus(ctx, source.WorkspaceID, status, nil); err != nil {
		return nil, err
	}

	op := &model.Operation{
		OperationID:   "op_" + uuid.NewString()[:8],
		OperationType: "workspace.merge",
		WorkspaceID:   target.WorkspaceID,
		AgentID:       agentID,
		Timestamp:     time.Now().UTC(),
		InputParameters: map[string]any{
			"source": source.WorkspaceID,
			"target": target.WorkspaceID,
		},
		InputEntities:  entityIDs(sourceEntities),
		OutputEntities: entityIDs(added),
		ResultStatus:   model.ResultSuccess,
	}
	if len(conflicts) > 0 {
		op.ResultStatus = model.ResultWarning
		op.ErrorMessage = fmt.Sprintf("%d entity conflicts", len(conflicts))
	}
	if err := e.st.LogOperation(ctx, op); err != nil {
		return nil, err
	}

	return result, nil
}

// ResolveStrategy names one of the three ways to resolve a flagged
// entity conflict.
type ResolveStrategy string

const (
	KeepSource  ResolveStrategy = "keep_source"
	KeepTarget  ResolveStrategy = "keep_target"
	ManualMerge ResolveStrategy = "manual_merge"
)

// ResolveConflict resolves one conflicting entity between source and
// target workspaces. entityID may be the target-side id reported in the
// conflict record or the bare "<type>_<suffix>" part.
//   - keep_source: overwrites the target entity with the source copy.
//   - keep_target: a no-op; the target entity must already exist.
//   - manual_merge: requires mergedProperties; applies them to the
//     target entity, preserving its created_at.
//
// Every resolution is journaled against the target workspace so the
// merge history stays auditable.
func (e *Engine) ResolveConflict(ctx context.Context, entityID, sourceWorkspaceID, targetWorkspaceID string, strategy ResolveStrategy, mergedProperties map[string]any, agentID string) (note string, err error) {
	source, err := e.st.GetWorkspace(ctx, sourceWorkspaceID)
	if err != nil {
		return "", err
	}
	target, err := e.st.GetWorkspace(ctx, targetWorkspaceID)
	if err != nil {
		return "", err
	}

	unlock := e.lockPair(source.WorkspaceID, target.WorkspaceID)
	defer unlock()

	local := localID(entityID, target.WorkspaceID)
	sourceID := fmt.Sprintf("%s:%s", source.WorkspaceID, local)
	targetID := fmt.Sprintf("%s:%s", target.WorkspaceID, local)

	sourceEntity, srcErr := e.st.GetEntity(ctx, sourceID)
	targetEntity, targetErr := e.st.GetEntity(ctx, targetID)
	targetExists := targetErr == nil

	switch strategy {
	case KeepSource:
		if srcErr != nil {
			return "", srcErr
		}
		clone := *sourceEntity
		clone.EntityID = targetID
		clone.WorkspaceID = target.WorkspaceID
		clone.ModifiedAt = time.Now().UTC()
		if targetExists {
			err = e.st.UpdateEntity(ctx, &clone)
		} else {
			err = e.st.CreateEntity(ctx, &clone)
		}
		if err != nil {
			return "", err
		}
		note = "Kept source entity"

	case KeepTarget:
		if !targetExists {
			return "", fmt.Errorf("entity not found: target entity %s does not exist", targetID)
		}
		note = "Kept target entity"

	case ManualMerge:
		if mergedProperties == nil {
			return "", fmt.Errorf("missing required parameter: manual_merge requires merged_properties")
		}
		if !targetExists {
			if srcErr != nil {
				return "", fmt.Errorf("entity not found: %s", entityID)
			}
			clone := *sourceEntity
			clone.EntityID = targetID
			clone.WorkspaceID = target.WorkspaceID
			clone.Properties = mergedProperties
			clone.ModifiedAt = time.Now().UTC()
			if err := e.st.CreateEntity(ctx, &clone); err != nil {
				return "", err
			}
		} else {
			createdAt := targetEntity.CreatedAt
			targetEntity.Properties = mergedProperties
			targetEntity.ModifiedAt = time.Now().UTC()
			targetEntity.CreatedAt = createdAt
			if err := e.st.UpdateEntity(ctx, targetEntity); err != nil {
				return "", err
			}
		}
		note = "Applied manual merge"

	default:
		return "", fmt.Errorf("missing required parameter: unknown resolution strategy %q", strategy)
	}

	op := &model.Operation{
		OperationID:   "op_" + uuid.NewString()[:8],
		OperationType: "workspace.resolve_conflict",
		WorkspaceID:   target.WorkspaceID,
		AgentID:       agentID,
		Timestamp:     time.Now().UTC(),
		InputParameters: map[string]any{
			"entity_id": entityID,
			"source":    source.WorkspaceID,
			"target":    target.WorkspaceID,
			"strategy":  string(strategy),
		},
		InputEntities:  []string{sourceID},
		OutputEntities: []string{targetID},
		ResultStatus:   model.ResultSuccess,
	}
	if err := e.st.LogOperation(ctx, op); err != nil {
		return "", err
	}

	return note, nil
}

func entityIDs(entities []*model.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.EntityID)
	}
	return out
}
