package controller_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/controller"
	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/testutil"
)

func testRoles(t *testing.T) *controller.RoleRegistry {
	t.Helper()
	reg, err := controller.NewRoleRegistry([]*model.RoleTemplate{
		{
			Name:        "designer",
			Description: "sketching only",
			AllowedOperations: []string{
				"entity.create.point", "entity.create.line", "entity.create.circle",
				"entity.query", "entity.list", "constraint.apply", "constraint.status",
				"workspace.create", "workspace.switch", "workspace.status",
			},
			ForbiddenOperations: []string{"solid.extrude", "solid.boolean", "workspace.merge"},
		},
		{
			Name:              "builder",
			Description:       "solids",
			AllowedOperations: []string{"entity.query", "solid.extrude", "solid.boolean", "workspace.merge"},
		},
	})
	require.NoError(t, err)
	return reg
}

func newController(t *testing.T, workers int) (*controller.Controller, *testutil.Harness) {
	t.Helper()
	h := testutil.NewHarness(t)
	ctrl, err := controller.New(h.Dispatcher, testRoles(t), zap.NewNop(), nil, controller.Config{
		MaxConcurrentAgents: workers,
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	return ctrl, h
}

func TestRoleRegistryRejectsOverlap(t *testing.T) {
	_, err := controller.NewRoleRegistry([]*model.RoleTemplate{{
		Name:                "broken",
		AllowedOperations:   []string{"entity.query"},
		ForbiddenOperations: []string{"entity.query"},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both allowed and forbidden")

	_, err = controller.NewRoleRegistry([]*model.RoleTemplate{{Name: "empty"}})
	require.Error(t, err)
}

func TestLoadRolesMissingFile(t *testing.T) {
	_, err := controller.LoadRoles("/nonexistent/roles.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not readable")
}

func TestCreateAgentValidation(t *testing.T) {
	ctrl, _ := newController(t, 4)
	ctx := context.Background()

	agent, err := ctrl.CreateAgent(ctx, "a1", "designer", model.MainWorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, model.AgentIdle, agent.Status)
	assert.Equal(t, "designer", agent.Role)

	_, err = ctrl.CreateAgent(ctx, "a1", "designer", model.MainWorkspaceID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = ctrl.CreateAgent(ctx, "a2", "astronaut", model.MainWorkspaceID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestCreateAgentProvisionsWorkspace(t *testing.T) {
	ctrl, h := newController(t, 4)
	ctx := context.Background()

	agent, err := ctrl.CreateAgent(ctx, "a1", "designer", "scratch")
	require.NoError(t, err)

	w, err := h.Workspaces.Resolve(ctx, agent.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkspaceAgentBranch, w.WorkspaceType)
}

// Scenario: a designer may sketch but an extrude attempt is blocked
// before the handler runs, while still counting against its metrics.
func TestRoleEnforcement(t *testing.T) {
	ctrl, h := newController(t, 4)
	ctx := context.Background()

	_, err := ctrl.CreateAgent(ctx, "designer-1", "designer", model.MainWorkspaceID)
	require.NoError(t, err)

	resp, err := ctrl.ExecuteOperation(ctx, "designer-1", "entity.create.line", map[string]any{
		"start": []any{0.0, 0.0},
		"end":   []any{10.0, 0.0},
	})
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	line := resp.Result.Data.(*model.Entity)

	_, err = ctrl.ExecuteOperation(ctx, "designer-1", "solid.extrude", map[string]any{
		"entity_ids": []any{line.EntityID},
		"distance":   10.0,
	})
	require.Error(t, err)
	var violation *controller.RoleViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "solid.extrude", violation.Operation)

	agent, err := ctrl.Agent("designer-1")
	require.NoError(t, err)
	assert.Equal(t, 2, agent.OperationCount)
	assert.Equal(t, 1, agent.SuccessCount)
	assert.Equal(t, 1, agent.ErrorCount)
	assert.Equal(t, model.AgentError, agent.Status)
	require.NotEmpty(t, agent.ErrorLog)
	assert.Contains(t, agent.ErrorLog[len(agent.ErrorLog)-1], "role violation")

	// The handler never ran: no extrude in the journal.
	ops, err := h.Store.ListOperations(ctx, model.MainWorkspaceID)
	require.NoError(t, err)
	for _, op := range ops {
		assert.NotEqual(t, "solid.extrude", op.OperationType)
	}

	// The created entity is tracked on the agent record.
	assert.Contains(t, agent.CreatedEntities, line.EntityID)
}

func TestAgentStatusInvariant(t *testing.T) {
	ctrl, _ := newController(t, 4)
	ctx := context.Background()

	_, err := ctrl.CreateAgent(ctx, "a1", "designer", model.MainWorkspaceID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _ = ctrl.ExecuteOperation(ctx, "a1", "entity.create.point", map[string]any{
			"coordinates": []any{float64(i), 0.0},
		})
	}
	_, _ = ctrl.ExecuteOperation(ctx, "a1", "workspace.merge", nil) // forbidden

	agent, err := ctrl.Agent("a1")
	require.NoError(t, err)
	assert.LessOrEqual(t, agent.SuccessCount+agent.ErrorCount, agent.OperationCount)
	assert.Len(t, agent.OperationHistory, agent.OperationCount)
}

func TestShutdownAgent(t *testing.T) {
	ctrl, _ := newController(t, 4)
	ctx := context.Background()

	_, err := ctrl.CreateAgent(ctx, "a1", "designer", model.MainWorkspaceID)
	require.NoError(t, err)
	require.NoError(t, ctrl.ShutdownAgent("a1"))

	_, err = ctrl.Agent("a1")
	assert.Error(t, err)

	_, err = ctrl.ExecuteOperation(ctx, "a1", "entity.list", nil)
	assert.Error(t, err)

	assert.Error(t, ctrl.ShutdownAgent("a1"))
}

// Scenario: four agents in four workspaces creating points in parallel
// through the worker pool, with no cross-contamination.
func TestConcurrentAgentsIndependentWorkspaces(t *testing.T) {
	ctrl, h := newController(t, 8)
	ctx := context.Background()

	agents := make([]string, 4)
	for i := range agents {
		agents[i] = fmt.Sprintf("agent-%d", i)
		_, err := ctrl.CreateAgent(ctx, agents[i], "designer", fmt.Sprintf("ws-%d", i))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i, agentID := range agents {
		workspaceRef := fmt.Sprintf("ws-%d", i)
		for j := 0; j < 5; j++ {
			wg.Add(1)
			coords := []any{float64(j), float64(i)}
			go func(agentID, workspaceRef string, coords []any) {
				defer wg.Done()
				ch, err := ctrl.Submit(ctx, agentID, "entity.create.point", map[string]any{
					"workspace":   workspaceRef,
					"coordinates": coords,
				})
				if err != nil {
					t.Errorf("submit failed: %v", err)
					return
				}
				resp := <-ch
				if resp.Error != nil {
					t.Errorf("operation failed: %+v", resp.Error)
				}
			}(agentID, workspaceRef, coords)
		}
	}
	wg.Wait()

	total := 0
	for i, agentID := range agents {
		entities, err := h.Store.ListEntitiesByWorkspace(ctx, fmt.Sprintf("%s:ws-%d", agentID, i))
		require.NoError(t, err)
		assert.Len(t, entities, 5, "workspace ws-%d", i)
		for _, e := range entities {
			assert.Equal(t, agentID, e.CreatedByAgent)
		}
		total += len(entities)
	}
	assert.Equal(t, 20, total)
}

// Scenario: a degrading history yields error_trend=degrading and
// learning_status=needs_attention.
func TestAgentMetricsTrend(t *testing.T) {
	ctrl, _ := newController(t, 4)
	ctx := context.Background()

	_, err := ctrl.CreateAgent(ctx, "drifter", "designer", model.MainWorkspaceID)
	require.NoError(t, err)

	// First half: 10 successes. Second half: 10 failures (missing
	// required parameters).
	for i := 0; i < 10; i++ {
		resp, err := ctrl.ExecuteOperation(ctx, "drifter", "entity.create.point", map[string]any{
			"coordinates": []any{float64(i), 0.0},
		})
		require.NoError(t, err)
		require.Nil(t, resp.Error)
	}
	for i := 0; i < 10; i++ {
		resp, err := ctrl.ExecuteOperation(ctx, "drifter", "entity.create.point", nil)
		require.NoError(t, err)
		require.NotNil(t, resp.Error)
	}

	report, err := ctrl.AgentMetrics("drifter")
	require.NoError(t, err)
	assert.Equal(t, 20, report.OperationCount)
	assert.InDelta(t, 0.5, report.SuccessRate, 1e-9)
	assert.Equal(t, controller.TrendDegrading, report.ErrorTrend)
	assert.Equal(t, controller.LearningNeedsAttention, report.LearningStatus)
	assert.Greater(t, report.AverageDuration, time.Duration(0))
}

func TestAgentMetricsNewAndProficient(t *testing.T) {
	ctrl, _ := newController(t, 4)
	ctx := context.Background()

	_, err := ctrl.CreateAgent(ctx, "rookie", "designer", model.MainWorkspaceID)
	require.NoError(t, err)

	report, err := ctrl.AgentMetrics("rookie")
	require.NoError(t, err)
	assert.Equal(t, controller.LearningNew, report.LearningStatus)
	assert.Equal(t, controller.TrendStable, report.ErrorTrend)

	for i := 0; i < 12; i++ {
		resp, err := ctrl.ExecuteOperation(ctx, "rookie", "entity.create.point", map[string]any{
			"coordinates": []any{float64(i), 1.0},
		})
		require.NoError(t, err)
		require.Nil(t, resp.Error)
	}

	report, err = ctrl.AgentMetrics("rookie")
	require.NoError(t, err)
	assert.Equal(t, controller.LearningProficient, report.LearningStatus)
}
