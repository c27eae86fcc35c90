package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/agentcad/cad/geometry"
	"github.com/BaSui01/agentcad/cad/model"
)

// profileLoop chains an ordered list of line entities into a closed
// polygon loop. Each line must start where the previous one ended, and
// the last must return to the first line's start.
func profileLoop(lines []*model.Entity) ([]model.Vec3, *Error) {
	loop := make([]model.Vec3, 0, len(lines))
	for i, line := range lines {
		if line.EntityType != model.EntityLine {
			return nil, New(CodeInvalidParams,
				fmt.Sprintf("extrusion profile entity %s is a %s, not a line", line.EntityID, line.EntityType)).
				WithField("entity_ids").WithValue(line.EntityID)
		}
		start := propVec3(line.Properties["start"])
		end := propVec3(line.Properties["end"])
		if i > 0 {
			prev := loop[len(loop)-1]
			if vecDist(prev, start) > 1e-9 {
				return nil, New(CodeInternalError,
					fmt.Sprintf("extrusion profile is degenerate: line %s does not continue the loop", line.EntityID)).
					WithField("entity_ids")
			}
		}
		loop = append(loop, start)
		if i == len(lines)-1 {
			if vecDist(end, loop[0]) > 1e-9 {
				return nil, New(CodeInternalError, "extrusion profile is degenerate: loop does not close").
					WithField("entity_ids")
			}
		}
	}
	return loop, nil
}

// persistSolid stores the shape blob, the solid entity, and its derived
// mass properties, linking parents both ways.
func (d *Dispatcher) persistSolid(ctx context.Context, c *call, props *model.SolidProperties, shape *geometry.GeometryShape, parents []*model.Entity) (*model.Entity, error) {
	now := time.Now().UTC()

	gs := &model.GeometryShape{
		ShapeID:     geometry.NewShapeID(),
		ShapeType:   shape.ShapeType,
		BRepData:    shape.BRepData,
		IsValid:     true,
		CreatedAt:   now,
		WorkspaceID: c.workspaceID,
	}
	if err := d.st.SaveGeometryShape(ctx, gs); err != nil {
		return nil, err
	}

	solid := newEntity(c.workspaceID, c.agentID, model.EntitySolid)
	solid.ShapeID = &gs.ShapeID
	solid.Properties = map[string]any{
		"volume":         props.Volume,
		"surface_area":   props.SurfaceArea,
		"center_of_mass": []float64{props.CenterOfMass[0], props.CenterOfMass[1], props.CenterOfMass[2]},
		"topology": map[string]any{
			"face_count":   props.Topology.FaceCount,
			"edge_count":   props.Topology.EdgeCount,
			"vertex_count": props.Topology.VertexCount,
			"is_closed":    props.Topology.IsClosed,
			"is_manifold":  props.Topology.IsManifold,
		},
	}
	solid.BoundingBox = props.BoundingBox
	for _, p := range parents {
		solid.ParentEntities = append(solid.ParentEntities, p.EntityID)
	}

	if err := d.createEntity(ctx, c, solid); err != nil {
		return nil, err
	}

	for _, p := range parents {
		p.ChildEntities = append(p.ChildEntities, solid.EntityID)
		p.ModifiedAt = now
		if err := d.st.UpdateEntity(ctx, p); err != nil {
			return nil, err
		}
	}

	props.EntityID = solid.EntityID
	props.ComputedAt = now
	if err := d.st.SaveSolidProperties(ctx, props); err != nil {
		return nil, err
	}
	return solid, nil
}

func (d *Dispatcher) handleSolidExtrude(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	entityIDs, perr := c.params.StringSliceRequired("entity_ids")
	if perr != nil {
		return nil, perr
	}
	distance, perr := c.params.FloatRequired("distance")
	if perr != nil {
		return nil, perr
	}

	lines := make([]*model.Entity, 0, len(entityIDs))
	for _, id := range entityIDs {
		e, err := d.st.GetEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		if e.WorkspaceID != c.workspaceID {
			return nil, NewWithSuggestion(CodeEntityNotFound,
				fmt.Sprintf("entity not found in workspace %s: %s", c.workspaceID, id))
		}
		lines = append(lines, e)
	}
	c.inputEntities = entityIDs

	loop, perr := profileLoop(lines)
	if perr != nil {
		return nil, perr
	}

	props, shape, err := d.kernel.ExtrudeProfile(loop, distance)
	if err != nil {
		return nil, err
	}

	solid, err := d.persistSolid(ctx, c, props, shape, lines)
	if err != nil {
		return nil, err
	}
	c.historyEntry.Result = map[string]any{"entity_id": solid.EntityID, "volume": props.Volume}

	return map[string]any{"entity": solid, "solid_properties": props}, nil
}

func (d *Dispatcher) handleSolidBoolean(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	entityIDs, perr := c.params.StringSliceRequired("entity_ids")
	if perr != nil {
		return nil, perr
	}
	if len(entityIDs) != 2 {
		return nil, New(CodeInvalidParams,
			fmt.Sprintf("boolean operation requires exactly 2 solids, got %d", len(entityIDs))).WithField("entity_ids")
	}
	opName, perr := c.params.StringRequired("operation")
	if perr != nil {
		return nil, perr
	}

	operands := make([]*model.Entity, 0, 2)
	propsList := make([]*model.SolidProperties, 0, 2)
	for _, id := range entityIDs {
		e, err := d.st.GetEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		if e.EntityType != model.EntitySolid {
			return nil, New(CodeInvalidParams,
				fmt.Sprintf("boolean operand %s is a %s, not a solid", id, e.EntityType)).WithField("entity_ids").WithValue(id)
		}
		p, err := d.st.GetSolidProperties(ctx, id)
		if err != nil {
			return nil, err
		}
		operands = append(operands, e)
		propsList = append(propsList, p)
	}
	c.inputEntities = entityIDs

	props, shape, err := d.kernel.Boolean(geometry.BooleanOp(opName), propsList[0], propsList[1])
	if err != nil {
		return nil, err
	}

	solid, err := d.persistSolid(ctx, c, props, shape, operands)
	if err != nil {
		return nil, err
	}
	c.historyEntry.Result = map[string]any{"entity_id": solid.EntityID, "operation": opName}

	return map[string]any{"entity": solid, "solid_properties": props}, nil
}

func (d *Dispatcher) handleSolidTessellate(ctx context.Context, c *call) (any, error) {
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

	props, err := d.st.GetSolidProperties(ctx, entityID)
	if err != nil {
		return nil, err
	}

	preset := geometry.TessellationPreset(c.params.String("quality", string(geometry.PresetStandard)))
	count, err := d.kernel.Tessellate(props.SurfaceArea, preset)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"entity_id":      entityID,
		"quality":        preset,
		"triangle_count": count,
	}, nil
}

func propVec3(v any) model.Vec3 {
	switch t := v.(type) {
	case model.Vec3:
		return t
	case []float64:
		var out model.Vec3
		copy(out[:], t)
		return out
	case []any:
		var out model.Vec3
		for i := 0; i < len(t) && i < 3; i++ {
			if f, ok := toFloat(t[i]); ok {
				out[i] = f
			}
		}
		return out
	}
	return model.Vec3{}
}

func vecDist(a, b model.Vec3) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}
