package merge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcad/cad/merge"
	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/testutil"
)

func TestBranchIsolation(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	branch, err := h.Workspaces.Create(ctx, "ws1", model.MainWorkspaceID, "agent_a")
	require.NoError(t, err)
	assert.Equal(t, "agent_a:ws1", branch.WorkspaceID)
	assert.Equal(t, model.BranchClean, branch.BranchStatus)

	// The branch starts empty and writes to it never touch main.
	h.CreatePoint(t, branch.WorkspaceID, []float64{10, 20, 30})

	mainEntities, err := h.Store.ListEntitiesByWorkspace(ctx, model.MainWorkspaceID)
	require.NoError(t, err)
	assert.Empty(t, mainEntities)

	branchEntities, err := h.Store.ListEntitiesByWorkspace(ctx, branch.WorkspaceID)
	require.NoError(t, err)
	assert.Len(t, branchEntities, 1)
}

func TestMergeCopiesEntitiesIntoTarget(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	branch, err := h.Workspaces.Create(ctx, "ws1", model.MainWorkspaceID, "agent_a")
	require.NoError(t, err)
	created := h.CreatePoint(t, branch.WorkspaceID, []float64{10, 20, 30})

	engine := merge.New(h.Store)
	result, err := engine.Merge(ctx, branch.WorkspaceID, model.MainWorkspaceID, "agent_a")
	require.NoError(t, err)

	assert.Equal(t, "success", result.MergeResult)
	assert.Equal(t, 1, result.EntitiesAdded)
	assert.Empty(t, result.Conflicts)

	// The copied entity landed under the target prefix with the same
	// local suffix and identical properties.
	mainEntities, err := h.Store.ListEntitiesByWorkspace(ctx, model.MainWorkspaceID)
	require.NoError(t, err)
	require.Len(t, mainEntities, 1)
	copied := mainEntities[0]
	assert.Equal(t, "main:"+created.EntityID[len(branch.WorkspaceID)+1:], copied.EntityID)
	assert.Equal(t, created.Properties, copied.Properties)
	assert.Equal(t, created.CreatedByAgent, copied.CreatedByAgent)

	// The source branch is now merged (and retained).
	source, err := h.Store.GetWorkspace(ctx, branch.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, model.BranchMerged, source.BranchStatus)
	assert.False(t, source.CanMerge())
}

func TestMergeEmptyBranchIsNoOp(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	branch, err := h.Workspaces.Create(ctx, "empty", model.MainWorkspaceID, "agent_a")
	require.NoError(t, err)

	before, err := h.Store.ListEntitiesByWorkspace(ctx, model.MainWorkspaceID)
	require.NoError(t, err)

	engine := merge.New(h.Store)
	result, err := engine.Merge(ctx, branch.WorkspaceID, model.MainWorkspaceID, "agent_a")
	require.NoError(t, err)
	assert.Equal(t, "success", result.MergeResult)
	assert.Equal(t, 0, result.EntitiesAdded)

	after, err := h.Store.ListEntitiesByWorkspace(ctx, model.MainWorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestMergeConflictAndResolution(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	branch, err := h.Workspaces.Create(ctx, "b", model.MainWorkspaceID, "agent_b")
	require.NoError(t, err)
	created := h.CreatePoint(t, branch.WorkspaceID, []float64{1, 1, 0})
	local := created.EntityID[len(branch.WorkspaceID)+1:]

	// Pre-insert a colliding id in the target.
	collider := *created
	collider.EntityID = "main:" + local
	collider.WorkspaceID = model.MainWorkspaceID
	collider.Properties = map[string]any{"coordinates": []any{9.0, 9.0, 0.0}}
	require.NoError(t, h.Store.CreateEntity(ctx, &collider))

	engine := merge.New(h.Store)
	result, err := engine.Merge(ctx, branch.WorkspaceID, model.MainWorkspaceID, "agent_b")
	require.NoError(t, err)

	assert.Equal(t, "has_conflicts", result.MergeResult)
	assert.Equal(t, 0, result.EntitiesAdded)
	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, "main:"+local, conflict.EntityID)
	assert.Equal(t, merge.ConflictEntityExists, conflict.ConflictType)
	assert.Equal(t, branch.WorkspaceID, conflict.SourceWorkspace)
	assert.Equal(t, model.MainWorkspaceID, conflict.TargetWorkspace)

	source, err := h.Store.GetWorkspace(ctx, branch.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, model.BranchConflicted, source.BranchStatus)

	// keep_source overwrites the target copy with the branch's version.
	note, err := engine.ResolveConflict(ctx, conflict.EntityID, branch.WorkspaceID, model.MainWorkspaceID,
		merge.KeepSource, nil, "agent_b")
	require.NoError(t, err)
	assert.Equal(t, "Kept source entity", note)

	resolved, err := h.Store.GetEntity(ctx, "main:"+local)
	require.NoError(t, err)
	assert.Equal(t, created.Properties, resolved.Properties)
}

func TestMergePreservesEntityCountInvariant(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	branch, err := h.Workspaces.Create(ctx, "counts", model.MainWorkspaceID, "agent_c")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		h.CreatePoint(t, branch.WorkspaceID, []float64{float64(i), 0, 0})
	}

	// One of the four will collide.
	branchEntities, err := h.Store.ListEntitiesByWorkspace(ctx, branch.WorkspaceID)
	require.NoError(t, err)
	local := branchEntities[0].EntityID[len(branch.WorkspaceID)+1:]
	collider := *branchEntities[0]
	collider.EntityID = "main:" + local
	collider.WorkspaceID = model.MainWorkspaceID
	require.NoError(t, h.Store.CreateEntity(ctx, &collider))

	before, err := h.Store.ListEntitiesByWorkspace(ctx, model.MainWorkspaceID)
	require.NoError(t, err)

	engine := merge.New(h.Store)
	result, err := engine.Merge(ctx, branch.WorkspaceID, model.MainWorkspaceID, "agent_c")
	require.NoError(t, err)

	after, err := h.Store.ListEntitiesByWorkspace(ctx, model.MainWorkspaceID)
	require.NoError(t, err)

	// |target after| = |target before| + entities_added, and
	// entities_added + |conflicts| = |source|.
	assert.Equal(t, len(before)+result.EntitiesAdded, len(after))
	assert.Equal(t, len(branchEntities), result.EntitiesAdded+len(result.Conflicts))
}

func TestMergedBranchCannotMergeAgain(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	branch, err := h.Workspaces.Create(ctx, "done", model.MainWorkspaceID, "agent_d")
	require.NoError(t, err)

	engine := merge.New(h.Store)
	_, err = engine.Merge(ctx, branch.WorkspaceID, model.MainWorkspaceID, "agent_d")
	require.NoError(t, err)

	_, err = engine.Merge(ctx, branch.WorkspaceID, model.MainWorkspaceID, "agent_d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be merged")
}

func TestResolveConflictManualMerge(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	branch, err := h.Workspaces.Create(ctx, "manual", model.MainWorkspaceID, "agent_e")
	require.NoError(t, err)
	created := h.CreatePoint(t, branch.WorkspaceID, []float64{1, 2, 0})
	local := created.EntityID[len(branch.WorkspaceID)+1:]

	collider := *created
	collider.EntityID = "main:" + local
	collider.WorkspaceID = model.MainWorkspaceID
	require.NoError(t, h.Store.CreateEntity(ctx, &collider))
	originalCreatedAt := collider.CreatedAt

	engine := merge.New(h.Store)

	// manual_merge without properties is rejected.
	_, err = engine.ResolveConflict(ctx, "main:"+local, branch.WorkspaceID, model.MainWorkspaceID,
		merge.ManualMerge, nil, "agent_e")
	require.Error(t, err)

	merged := map[string]any{"coordinates": []any{5.0, 5.0, 0.0}}
	note, err := engine.ResolveConflict(ctx, "main:"+local, branch.WorkspaceID, model.MainWorkspaceID,
		merge.ManualMerge, merged, "agent_e")
	require.NoError(t, err)
	assert.Equal(t, "Applied manual merge", note)

	resolved, err := h.Store.GetEntity(ctx, "main:"+local)
	require.NoError(t, err)
	assert.Equal(t, merged, resolved.Properties)
	assert.WithinDuration(t, originalCreatedAt, resolved.CreatedAt, time.Second)
}
