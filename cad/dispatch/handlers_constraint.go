package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agentcad/cad/constraint"
	"github.com/BaSui01/agentcad/cad/history"
	"github.com/BaSui01/agentcad/cad/model"
)

var constraintArity = map[model.ConstraintType]int{
	model.ConstraintParallel:      2,
	model.ConstraintPerpendicular: 2,
	model.ConstraintCoincident:    2,
	model.ConstraintDistance:      2,
	model.ConstraintAngle:         2,
	model.ConstraintTangent:       2,
	model.ConstraintRadius:        1,
}

// loadGraph builds the in-memory constraint graph for a workspace from
// the persisted constraints and entities, the derived-view relationship
// fixed by the data model.
func (d *Dispatcher) loadGraph(ctx context.Context, workspaceID string) (*constraint.Graph, map[string]*model.Entity, error) {
	entities, err := d.st.ListEntitiesByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	constraints, err := d.st.ListConstraintsByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}

	g := constraint.NewGraph()
	byID := make(map[string]*model.Entity, len(entities))
	for _, e := range entities {
		g.AddEntity(e)
		byID[e.EntityID] = e
	}
	for _, con := range constraints {
		g.AddConstraint(con)
	}
	return g, byID, nil
}

func (d *Dispatcher) handleConstraintApply(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	typeName, perr := c.params.StringRequired("constraint_type")
	if perr != nil {
		return nil, perr
	}
	entityIDs, perr := c.params.StringSliceRequired("entity_ids")
	if perr != nil {
		return nil, perr
	}

	ctype := model.ConstraintType(typeName)
	arity, known := constraintArity[ctype]
	if !known {
		return nil, New(CodeInvalidConstraint, fmt.Sprintf("invalid constraint type: %q", typeName)).
			WithField("constraint_type").WithValue(typeName)
	}
	if len(entityIDs) != arity {
		return nil, New(CodeInvalidConstraint,
			fmt.Sprintf("invalid constraint type: %s requires %d entities, got %d", ctype, arity, len(entityIDs))).
			WithField("entity_ids")
	}

	g, byID, err := d.loadGraph(ctx, c.workspaceID)
	if err != nil {
		return nil, err
	}
	for _, id := range entityIDs {
		if _, ok := byID[id]; !ok {
			return nil, NewWithSuggestion(CodeEntityNotFound,
				fmt.Sprintf("entity not found in workspace %s: %s", c.workspaceID, id)).WithField("entity_ids").WithValue(id)
		}
	}
	c.inputEntities = entityIDs

	params := map[string]float64{}
	for _, key := range []string{"target_distance", "target_angle", "target_radius"} {
		if _, ok := c.params[key]; ok {
			params[key] = c.params.Float(key, 0)
		}
	}

	con := &model.Constraint{
		ConstraintID:            "constraint_" + uuid.NewString()[:8],
		ConstraintType:          ctype,
		WorkspaceID:             c.workspaceID,
		EntityIDs:               entityIDs,
		Parameters:              params,
		DegreesOfFreedomRemoved: 1,
		Tolerance:               c.params.Float("tolerance", 0),
		CreatedAt:               time.Now().UTC(),
		CreatedByAgent:          c.agentID,
	}
	if con.Tolerance == 0 {
		con.Tolerance = constraint.ToleranceFor(con)
	}

	if conflicting, conflictID := g.CheckConflict(con); conflicting {
		return nil, NewWithSuggestion(CodeConstraintConflict,
			fmt.Sprintf("constraint conflicts with existing constraint %s", conflictID)).
			WithValue(conflictID)
	}

	residual, err := constraint.Residual(con, byID)
	if err != nil {
		return nil, err
	}
	if residual < constraint.ToleranceFor(con) {
		con.SatisfactionStatus = model.SatisfactionSatisfied
	} else {
		con.SatisfactionStatus = model.SatisfactionViolated
	}

	if err := d.st.CreateConstraint(ctx, con); err != nil {
		return nil, err
	}
	if err := d.ws.MarkModified(ctx, c.workspaceID); err != nil {
		return nil, err
	}

	c.undoData = map[string]any{"inverse": "constraint.delete", "constraint_id": con.ConstraintID}
	c.historyEntry = &history.Entry{
		OperationType: c.method,
		WorkspaceID:   c.workspaceID,
		Params:        map[string]any(c.params),
		Result:        map[string]any{"constraint_id": con.ConstraintID},
		InverseOp:     "constraint.delete",
		InverseParams: map[string]any{"constraint_id": con.ConstraintID},
	}

	return map[string]any{
		"constraint": con,
		"residual":   residual,
	}, nil
}

func (d *Dispatcher) handleConstraintStatus(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	g, byID, err := d.loadGraph(ctx, c.workspaceID)
	if err != nil {
		return nil, err
	}

	result, err := d.solver.Solve(g, byID)
	if err != nil {
		return nil, err
	}

	constraints := g.Constraints()
	for _, con := range constraints {
		if err := d.st.UpdateConstraintStatus(ctx, con.ConstraintID, con.SatisfactionStatus); err != nil {
			return nil, err
		}
	}

	entities := make([]*model.Entity, 0, len(byID))
	for _, e := range byID {
		entities = append(entities, e)
	}

	return map[string]any{
		"constraints":        constraints,
		"converged":          result.Converged,
		"iterations":         result.Iterations,
		"total_residual":     result.TotalResidual,
		"degrees_of_freedom": constraint.RemainingDOF(entities, constraints),
	}, nil
}
