package dispatch

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentcad/cad/model"
)

func (d *Dispatcher) handleAgentMetrics(ctx context.Context, c *call) (any, error) {
	agentID := c.params.String("agent_id", c.agentID)
	workspaceRef := c.params.String("workspace", "")

	workspaceID := ""
	if workspaceRef != "" {
		w, err := d.ws.Resolve(ctx, workspaceRef)
		if err != nil {
			return nil, err
		}
		workspaceID = w.WorkspaceID
	}

	m, err := d.st.AgentMetricsFor(ctx, agentID, workspaceID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"agent_id":            agentID,
		"total_operations":    m.TotalOperations,
		"success_rate":        m.SuccessRate,
		"error_rate_first_10": m.ErrorRateFirst10,
		"error_rate_last_10":  m.ErrorRateLast10,
		"improvement_percent": m.ImprovementPercent,
	}, nil
}

// scenarioBoxLoop is the seed box-extrusion scenario: a 10x10 square
// profile extruded into a 10-unit cube.
var scenarioBoxLoop = [][2][3]float64{
	{{0, 0, 0}, {10, 0, 0}},
	{{10, 0, 0}, {10, 10, 0}},
	{{10, 10, 0}, {0, 10, 0}},
	{{0, 10, 0}, {0, 0, 0}},
}

// handleScenarioRun executes a named multi-step scenario by re-entering
// the dispatcher, so every step is journaled exactly like an
// agent-issued operation.
func (d *Dispatcher) handleScenarioRun(ctx context.Context, c *call) (any, error) {
	name, perr := c.params.StringRequired("scenario")
	if perr != nil {
		return nil, perr
	}
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}

	switch name {
	case "box_extrusion":
		return d.runBoxExtrusion(ctx, c)
	default:
		return nil, New(CodeInvalidParams, fmt.Sprintf("unknown scenario %q", name)).
			WithField("scenario").WithValue(name).
			WithSuggestion("Known scenarios: box_extrusion")
	}
}

func (d *Dispatcher) runBoxExtrusion(ctx context.Context, c *call) (any, error) {
	lineIDs := make([]any, 0, len(scenarioBoxLoop))
	for _, seg := range scenarioBoxLoop {
		resp := d.Dispatch(ctx, &Request{
			JSONRPC: JSONRPCVersion,
			Method:  "entity.create.line",
			Params: map[string]any{
				"agent_id":  c.agentID,
				"workspace": c.workspaceID,
				"start":     []any{seg[0][0], seg[0][1], seg[0][2]},
				"end":       []any{seg[1][0], seg[1][1], seg[1][2]},
			},
		})
		if resp.Error != nil {
			return nil, New(resp.Error.Code, resp.Error.Message)
		}
		line, ok := resp.Result.Data.(*model.Entity)
		if !ok {
			return nil, New(CodeInternalError, "scenario step returned an unexpected result shape")
		}
		lineIDs = append(lineIDs, line.EntityID)
	}

	resp := d.Dispatch(ctx, &Request{
		JSONRPC: JSONRPCVersion,
		Method:  "solid.extrude",
		Params: map[string]any{
			"agent_id":   c.agentID,
			"workspace":  c.workspaceID,
			"entity_ids": lineIDs,
			"distance":   10.0,
		},
	})
	if resp.Error != nil {
		return nil, New(resp.Error.Code, resp.Error.Message)
	}

	return map[string]any{
		"scenario": "box_extrusion",
		"lines":    lineIDs,
		"solid":    resp.Result.Data,
	}, nil
}
