package integration_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/controller"
	"github.com/BaSui01/agentcad/cad/merge"
	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/testutil"
)

func fullRoles(t *testing.T) *controller.RoleRegistry {
	t.Helper()
	reg, err := controller.NewRoleRegistry([]*model.RoleTemplate{
		{
			Name: "designer",
			AllowedOperations: []string{
				"entity.create.point", "entity.create.line", "entity.create.circle",
				"entity.query", "entity.list", "constraint.apply", "constraint.status",
				"workspace.create", "workspace.switch", "workspace.status",
			},
			ForbiddenOperations: []string{"solid.extrude", "workspace.merge"},
		},
		{
			Name: "builder",
			AllowedOperations: []string{
				"entity.query", "entity.list", "solid.extrude", "solid.boolean",
				"workspace.status",
			},
		},
		{
			Name: "integrator",
			AllowedOperations: []string{
				"entity.list", "workspace.status", "workspace.merge",
				"workspace.resolve_conflict", "file.export",
			},
		},
	})
	require.NoError(t, err)
	return reg
}

// The full multi-agent workflow: a designer sketches in a branch, a
// builder extrudes there, an integrator merges the branch into main
// and exports the result. Every step flows through role-checked
// controller dispatch and lands in the journal.
func TestMultiAgentAssemblyWorkflow(t *testing.T) {
	h := testutil.NewHarness(t)
	ctrl, err := controller.New(h.Dispatcher, fullRoles(t), zap.NewNop(), nil, controller.Config{})
	require.NoError(t, err)
	defer ctrl.Close()
	ctx := context.Background()

	_, err = ctrl.CreateAgent(ctx, "des", "designer", "base-plate")
	require.NoError(t, err)
	_, err = ctrl.CreateAgent(ctx, "bld", "builder", model.MainWorkspaceID)
	require.NoError(t, err)
	_, err = ctrl.CreateAgent(ctx, "int", "integrator", model.MainWorkspaceID)
	require.NoError(t, err)

	// Plan the goal; phases order the sketch before the merge.
	tasks := ctrl.DecomposeTask("create box assembly with lid", nil)
	phases, err := controller.ResolveDependencies(tasks)
	require.NoError(t, err)
	require.Len(t, phases, 2)

	// Designer sketches the profile in its branch workspace.
	lineIDs := make([]any, 0, 4)
	for _, seg := range testutil.SquareLoop(10) {
		resp, err := ctrl.ExecuteOperation(ctx, "des", "entity.create.line", map[string]any{
			"workspace": "base-plate",
			"start":     []any{seg[0][0], seg[0][1]},
			"end":       []any{seg[1][0], seg[1][1]},
		})
		require.NoError(t, err)
		require.Nil(t, resp.Error)
		lineIDs = append(lineIDs, resp.Result.Data.(*model.Entity).EntityID)
	}

	// Designer constrains adjacent edges perpendicular.
	resp, err := ctrl.ExecuteOperation(ctx, "des", "constraint.apply", map[string]any{
		"workspace":       "base-plate",
		"constraint_type": "perpendicular",
		"entity_ids":      []any{lineIDs[0], lineIDs[1]},
	})
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	// The designer cannot extrude; the builder can.
	_, err = ctrl.ExecuteOperation(ctx, "des", "solid.extrude", map[string]any{
		"workspace":  "base-plate",
		"entity_ids": lineIDs,
		"distance":   10.0,
	})
	var violation *controller.RoleViolationError
	require.ErrorAs(t, err, &violation)

	resp, err = ctrl.ExecuteOperation(ctx, "bld", "solid.extrude", map[string]any{
		"workspace":  "base-plate",
		"entity_ids": lineIDs,
		"distance":   10.0,
	})
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	props := resp.Result.Data.(map[string]any)["solid_properties"].(*model.SolidProperties)
	assert.Greater(t, props.Volume, 950.0)
	assert.Less(t, props.Volume, 1050.0)

	// Integrator merges the branch into main.
	resp, err = ctrl.ExecuteOperation(ctx, "int", "workspace.merge", map[string]any{
		"source": "base-plate",
		"target": model.MainWorkspaceID,
	})
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	merged := resp.Result.Data.(*merge.Result)
	assert.Equal(t, "success", merged.MergeResult)
	assert.Equal(t, 5, merged.EntitiesAdded)

	mainEntities, err := h.Store.ListEntitiesByWorkspace(ctx, model.MainWorkspaceID)
	require.NoError(t, err)
	assert.Len(t, mainEntities, 5) // four lines and the solid

	// Source branch ends up merged and immutable for further merges.
	source, err := h.Workspaces.Resolve(ctx, "base-plate")
	require.NoError(t, err)
	assert.Equal(t, model.BranchMerged, source.BranchStatus)

	// Integrator exports the merged design.
	path := filepath.Join(t.TempDir(), "assembly.json")
	resp, err = ctrl.ExecuteOperation(ctx, "int", "file.export", map[string]any{
		"workspace": model.MainWorkspaceID,
		"format":    "json",
		"path":      path,
	})
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	assert.EqualValues(t, 5, resp.Result.Data.(map[string]any)["entity_count"])

	// Learning metrics reflect the one blocked attempt.
	desReport, err := ctrl.AgentMetrics("des")
	require.NoError(t, err)
	assert.Equal(t, desReport.ErrorCount, 1)
	assert.Equal(t, desReport.SuccessCount+desReport.ErrorCount, desReport.OperationCount)
}
