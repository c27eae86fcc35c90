package dispatch

import (
	"context"
	"math"
	"time"

	"github.com/BaSui01/agentcad/cad/history"
	"github.com/BaSui01/agentcad/cad/model"
)

// createEntity persists e, dirties the branch, and fills in the call's
// journal and history bookkeeping shared by every entity.create.*
// handler.
func (d *Dispatcher) createEntity(ctx context.Context, c *call, e *model.Entity) error {
	if err := d.st.CreateEntity(ctx, e); err != nil {
		return err
	}
	if err := d.ws.MarkModified(ctx, e.WorkspaceID); err != nil {
		return err
	}
	c.outputEntities = []string{e.EntityID}
	c.undoData = map[string]any{"inverse": "entity.delete", "entity_id": e.EntityID}
	c.historyEntry = &history.Entry{
		OperationType: c.method,
		WorkspaceID:   e.WorkspaceID,
		Params:        map[string]any(c.params),
		Result:        map[string]any{"entity_id": e.EntityID},
		InverseOp:     "entity.delete",
		InverseParams: map[string]any{"entity_id": e.EntityID},
	}
	return nil
}

func newEntity(workspaceID, agentID string, t model.EntityType) *model.Entity {
	now := time.Now().UTC()
	return &model.Entity{
		EntityID:       mintEntityID(workspaceID, t),
		EntityType:     t,
		WorkspaceID:    workspaceID,
		CreatedAt:      now,
		ModifiedAt:     now,
		CreatedByAgent: agentID,
		IsValid:        true,
	}
}

func (d *Dispatcher) handleCreatePoint(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	coords, perr := c.params.Vec3("coordinates")
	if perr != nil {
		return nil, perr
	}
	if err := d.kernel.ValidatePoint(coords); err != nil {
		return nil, err
	}

	e := newEntity(c.workspaceID, c.agentID, model.EntityPoint)
	e.Properties = map[string]any{"coordinates": []float64{coords[0], coords[1], coords[2]}}
	e.BoundingBox = model.BoundingBox{Min: coords, Max: coords}

	if err := d.createEntity(ctx, c, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (d *Dispatcher) handleCreateLine(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	start, perr := c.params.Vec3("start")
	if perr != nil {
		return nil, perr
	}
	end, perr := c.params.Vec3("end")
	if perr != nil {
		return nil, perr
	}
	length, err := d.kernel.ValidateLine(start, end)
	if err != nil {
		return nil, err
	}

	dir := []float64{
		(end[0] - start[0]) / length,
		(end[1] - start[1]) / length,
		(end[2] - start[2]) / length,
	}

	e := newEntity(c.workspaceID, c.agentID, model.EntityLine)
	e.Properties = map[string]any{
		"start":            []float64{start[0], start[1], start[2]},
		"end":              []float64{end[0], end[1], end[2]},
		"length":           length,
		"direction_vector": dir,
	}
	e.BoundingBox = boundsOf(start, end)

	if err := d.createEntity(ctx, c, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (d *Dispatcher) handleCreateCircle(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	center, perr := c.params.Vec3("center")
	if perr != nil {
		return nil, perr
	}
	radius, perr := c.params.FloatRequired("radius")
	if perr != nil {
		return nil, perr
	}
	if err := d.kernel.ValidateCircle(center, radius); err != nil {
		return nil, err
	}

	e := newEntity(c.workspaceID, c.agentID, model.EntityCircle)
	e.Properties = map[string]any{
		"center":        []float64{center[0], center[1], center[2]},
		"radius":        radius,
		"area":          math.Pi * radius * radius,
		"circumference": 2 * math.Pi * radius,
	}
	e.BoundingBox = model.BoundingBox{
		Min: model.Vec3{center[0] - radius, center[1] - radius, center[2]},
		Max: model.Vec3{center[0] + radius, center[1] + radius, center[2]},
	}

	if err := d.createEntity(ctx, c, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (d *Dispatcher) handleCreateArc(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	center, perr := c.params.Vec3("center")
	if perr != nil {
		return nil, perr
	}
	radius, perr := c.params.FloatRequired("radius")
	if perr != nil {
		return nil, perr
	}
	startAngle, perr := c.params.FloatRequired("start_angle")
	if perr != nil {
		return nil, perr
	}
	endAngle, perr := c.params.FloatRequired("end_angle")
	if perr != nil {
		return nil, perr
	}
	if err := d.kernel.ValidateCircle(center, radius); err != nil {
		return nil, err
	}

	sweep := math.Abs(endAngle - startAngle)
	e := newEntity(c.workspaceID, c.agentID, model.EntityArc)
	e.Properties = map[string]any{
		"center":      []float64{center[0], center[1], center[2]},
		"radius":      radius,
		"start_angle": startAngle,
		"end_angle":   endAngle,
		"arc_length":  radius * sweep,
	}
	e.BoundingBox = model.BoundingBox{
		Min: model.Vec3{center[0] - radius, center[1] - radius, center[2]},
		Max: model.Vec3{center[0] + radius, center[1] + radius, center[2]},
	}

	if err := d.createEntity(ctx, c, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (d *Dispatcher) handleEntityQuery(ctx context.Context, c *call) (any, error) {
	entityID, perr := c.params.StringRequired("entity_id")
	if perr != nil {
		return nil, perr
	}
	e, err := d.st.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	c.workspaceID = e.WorkspaceID
	c.inputEntities = []string{entityID}

	if e.EntityType == model.EntitySolid {
		if props, err := d.st.GetSolidProperties(ctx, entityID); err == nil {
			return map[string]any{"entity": e, "solid_properties": props}, nil
		}
	}
	return map[string]any{"entity": e}, nil
}

func (d *Dispatcher) handleEntityList(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	entityType := model.EntityType(c.params.String("entity_type", ""))
	limit := c.params.Int("limit", 50)
	offset := c.params.Int("offset", 0)

	page, err := d.st.ListEntities(ctx, c.workspaceID, entityType, limit, offset)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"entities":    page.Entities,
		"total_count": page.TotalCount,
		"limit":       limit,
		"offset":      offset,
	}, nil
}

func (d *Dispatcher) handleEntityDelete(ctx context.Context, c *call) (any, error) {
	entityID, perr := c.params.StringRequired("entity_id")
	if perr != nil {
		return nil, perr
	}
	e, err := d.st.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	c.workspaceID = e.WorkspaceID
	c.inputEntities = []string{entityID}

	if err := d.st.DeleteEntity(ctx, entityID); err != nil {
		return nil, err
	}
	if err := d.ws.MarkModified(ctx, e.WorkspaceID); err != nil {
		return nil, err
	}
	c.undoData = map[string]any{"inverse": "entity.restore", "entity": e}
	c.historyEntry = &history.Entry{
		OperationType: c.method,
		WorkspaceID:   e.WorkspaceID,
		Params:        map[string]any(c.params),
		Result:        map[string]any{"deleted": entityID},
	}
	return map[string]any{"deleted": entityID}, nil
}

func boundsOf(points ...model.Vec3) model.BoundingBox {
	bbox := model.BoundingBox{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		for axis := 0; axis < 3; axis++ {
			if p[axis] < bbox.Min[axis] {
				bbox.Min[axis] = p[axis]
			}
			if p[axis] > bbox.Max[axis] {
				bbox.Max[axis] = p[axis]
			}
		}
	}
	return bbox
}
