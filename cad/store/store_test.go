package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/cad/store"
	"github.com/BaSui01/agentcad/internal/cache"
	"github.com/BaSui01/agentcad/testutil"
)

func newEntity(workspaceID, id string) *model.Entity {
	now := time.Now().UTC()
	return &model.Entity{
		EntityID:       workspaceID + ":" + id,
		EntityType:     model.EntityPoint,
		WorkspaceID:    workspaceID,
		CreatedAt:      now,
		ModifiedAt:     now,
		CreatedByAgent: "agent_a",
		Properties:     map[string]any{"coordinates": []any{1.0, 2.0, 0.0}},
		IsValid:        true,
	}
}

func TestMainWorkspaceBootstrap(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	w, err := st.GetWorkspace(ctx, model.MainWorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkspaceMain, w.WorkspaceType)
	assert.Equal(t, model.BranchClean, w.BranchStatus)
	assert.Nil(t, w.BaseWorkspaceID)
}

func TestMainWorkspaceIndestructible(t *testing.T) {
	st := testutil.NewTestStore(t)
	err := st.DeleteWorkspace(context.Background(), model.MainWorkspaceID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be deleted")
}

func TestEntityCRUDAdjustsWorkspaceCounts(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	e := newEntity("main", "point_aaaa1111")
	require.NoError(t, st.CreateEntity(ctx, e))

	w, err := st.GetWorkspace(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 1, w.EntityCount)

	got, err := st.GetEntity(ctx, e.EntityID)
	require.NoError(t, err)
	assert.Equal(t, e.EntityID, got.EntityID)
	assert.Equal(t, model.EntityPoint, got.EntityType)

	require.NoError(t, st.DeleteEntity(ctx, e.EntityID))
	w, err = st.GetWorkspace(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 0, w.EntityCount)

	_, err = st.GetEntity(ctx, e.EntityID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListEntitiesPagination(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		e := newEntity("main", "point_"+string(rune('a'+i))+"0000000")
		e.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, st.CreateEntity(ctx, e))
	}

	page, err := st.ListEntities(ctx, "main", model.EntityPoint, 3, 0)
	require.NoError(t, err)
	assert.Len(t, page.Entities, 3)
	assert.EqualValues(t, 7, page.TotalCount)

	page, err = st.ListEntities(ctx, "main", "", 3, 6)
	require.NoError(t, err)
	assert.Len(t, page.Entities, 1)
	assert.EqualValues(t, 7, page.TotalCount)

	// Type filter excludes everything else.
	page, err = st.ListEntities(ctx, "main", model.EntitySolid, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Entities)
	assert.EqualValues(t, 0, page.TotalCount)
}

func TestWorkspaceDeleteCascades(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	branch := &model.Workspace{
		WorkspaceID:   "agent_a:ws1",
		WorkspaceName: "ws1",
		WorkspaceType: model.WorkspaceAgentBranch,
		CreatedAt:     time.Now().UTC(),
		BranchStatus:  model.BranchClean,
	}
	require.NoError(t, st.CreateWorkspace(ctx, branch))

	e := newEntity("agent_a:ws1", "point_aaaa1111")
	require.NoError(t, st.CreateEntity(ctx, e))

	con := &model.Constraint{
		ConstraintID:       "constraint_1",
		ConstraintType:     model.ConstraintRadius,
		WorkspaceID:        "agent_a:ws1",
		EntityIDs:          []string{e.EntityID},
		SatisfactionStatus: model.SatisfactionSatisfied,
		Tolerance:          model.DefaultTolerance,
		CreatedAt:          time.Now().UTC(),
		CreatedByAgent:     "agent_a",
	}
	require.NoError(t, st.CreateConstraint(ctx, con))

	op := &model.Operation{
		OperationID:   "op_1",
		OperationType: "entity.create.point",
		WorkspaceID:   "agent_a:ws1",
		AgentID:       "agent_a",
		Timestamp:     time.Now().UTC(),
		ResultStatus:  model.ResultSuccess,
	}
	require.NoError(t, st.LogOperation(ctx, op))

	require.NoError(t, st.DeleteWorkspace(ctx, "agent_a:ws1"))

	_, err := st.GetWorkspace(ctx, "agent_a:ws1")
	assert.Error(t, err)
	_, err = st.GetEntity(ctx, e.EntityID)
	assert.Error(t, err)
	_, err = st.GetConstraint(ctx, "constraint_1")
	assert.Error(t, err)

	ops, err := st.ListOperations(ctx, "agent_a:ws1")
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestShortNameResolution(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	branch := &model.Workspace{
		WorkspaceID:   "agent_a:ws1",
		WorkspaceName: "ws1",
		WorkspaceType: model.WorkspaceAgentBranch,
		CreatedAt:     time.Now().UTC(),
		BranchStatus:  model.BranchClean,
	}
	require.NoError(t, st.CreateWorkspace(ctx, branch))

	w, err := st.GetWorkspace(ctx, "%:ws1")
	require.NoError(t, err)
	assert.Equal(t, "agent_a:ws1", w.WorkspaceID)
}

func TestOperationJournalOrdering(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 2; i >= 0; i-- { // insert out of order on purpose
		op := &model.Operation{
			OperationID:   "op_" + string(rune('a'+i)),
			OperationType: "entity.create.point",
			WorkspaceID:   "main",
			AgentID:       "agent_a",
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			ResultStatus:  model.ResultSuccess,
		}
		require.NoError(t, st.LogOperation(ctx, op))
	}

	ops, err := st.ListOperations(ctx, "main")
	require.NoError(t, err)
	require.Len(t, ops, 3)
	for i := 1; i < len(ops); i++ {
		assert.True(t, ops[i].Timestamp.After(ops[i-1].Timestamp))
	}

	w, err := st.GetWorkspace(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 3, w.OperationCount)
}

func logOps(t *testing.T, st *store.Store, agentID string, statuses []model.ResultStatus) {
	t.Helper()
	base := time.Now().UTC()
	for i, status := range statuses {
		op := &model.Operation{
			OperationID:   "op_" + agentID + "_" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			OperationType: "entity.create.point",
			WorkspaceID:   "main",
			AgentID:       agentID,
			Timestamp:     base.Add(time.Duration(i) * time.Millisecond),
			ResultStatus:  status,
		}
		require.NoError(t, st.LogOperation(context.Background(), op))
	}
}

func TestAgentMetricsImprovement(t *testing.T) {
	st := testutil.NewTestStore(t)

	// First 10 all errors, last 10 all successes: 100% improvement.
	statuses := make([]model.ResultStatus, 0, 20)
	for i := 0; i < 10; i++ {
		statuses = append(statuses, model.ResultError)
	}
	for i := 0; i < 10; i++ {
		statuses = append(statuses, model.ResultSuccess)
	}
	logOps(t, st, "improver", statuses)

	m, err := st.AgentMetricsFor(context.Background(), "improver", "")
	require.NoError(t, err)
	assert.Equal(t, 20, m.TotalOperations)
	assert.InDelta(t, 0.5, m.SuccessRate, 1e-9)
	assert.InDelta(t, 1.0, m.ErrorRateFirst10, 1e-9)
	assert.InDelta(t, 0.0, m.ErrorRateLast10, 1e-9)
	assert.InDelta(t, 100.0, m.ImprovementPercent, 1e-9)
}

func TestAgentMetricsClamps(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	// Clean start that degrades: clamped to -100%.
	statuses := make([]model.ResultStatus, 0, 20)
	for i := 0; i < 10; i++ {
		statuses = append(statuses, model.ResultSuccess)
	}
	for i := 0; i < 10; i++ {
		statuses = append(statuses, model.ResultError)
	}
	logOps(t, st, "degrader", statuses)

	m, err := st.AgentMetricsFor(ctx, "degrader", "")
	require.NoError(t, err)
	assert.InDelta(t, -100.0, m.ImprovementPercent, 1e-9)

	// No operations at all: all zeros.
	m, err = st.AgentMetricsFor(ctx, "ghost", "")
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalOperations)
	assert.InDelta(t, 0.0, m.ImprovementPercent, 1e-9)
}

func TestEntityCacheReadThrough(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	srv := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{
		Addr:                srv.Addr(),
		DefaultTTL:          time.Minute,
		PoolSize:            2,
		HealthCheckInterval: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	st.AttachCache(manager, nil)

	e := newEntity("main", "point_cccc3333")
	require.NoError(t, st.CreateEntity(ctx, e))

	// First read populates the cache, second is served from it.
	first, err := st.GetEntity(ctx, e.EntityID)
	require.NoError(t, err)
	second, err := st.GetEntity(ctx, e.EntityID)
	require.NoError(t, err)
	assert.Equal(t, first.EntityID, second.EntityID)

	// Update invalidates, so the next read reflects the new state.
	first.Properties["coordinates"] = []any{9.0, 9.0, 0.0}
	require.NoError(t, st.UpdateEntity(ctx, first))
	refreshed, err := st.GetEntity(ctx, e.EntityID)
	require.NoError(t, err)
	assert.Equal(t, []any{9.0, 9.0, 0.0}, refreshed.Properties["coordinates"])

	// Delete invalidates too.
	require.NoError(t, st.DeleteEntity(ctx, e.EntityID))
	_, err = st.GetEntity(ctx, e.EntityID)
	assert.Error(t, err)
}
