package dispatch

import (
	"context"

	"github.com/BaSui01/agentcad/cad/merge"
	"github.com/BaSui01/agentcad/cad/model"
)

func (d *Dispatcher) handleWorkspaceCreate(ctx context.Context, c *call) (any, error) {
	name, perr := c.params.StringRequired("name")
	if perr != nil {
		return nil, perr
	}
	base := c.params.String("base", model.MainWorkspaceID)

	w, err := d.ws.Create(ctx, name, base, c.agentID)
	if err != nil {
		return nil, err
	}
	c.workspaceID = w.WorkspaceID
	return w, nil
}

func (d *Dispatcher) handleWorkspaceList(ctx context.Context, c *call) (any, error) {
	workspaces, err := d.ws.List(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"workspaces": workspaces,
		"active":     d.ws.Active(c.agentID),
	}, nil
}

func (d *Dispatcher) handleWorkspaceSwitch(ctx context.Context, c *call) (any, error) {
	ref, perr := c.params.StringRequired("workspace")
	if perr != nil {
		return nil, perr
	}
	w, err := d.ws.Switch(ctx, c.agentID, ref)
	if err != nil {
		return nil, err
	}
	c.workspaceID = w.WorkspaceID
	return w, nil
}

func (d *Dispatcher) handleWorkspaceStatus(ctx context.Context, c *call) (any, error) {
	w, err := d.resolveWorkspace(ctx, c)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"workspace": w,
		"can_merge": w.CanMerge(),
	}, nil
}

func (d *Dispatcher) handleWorkspaceMerge(ctx context.Context, c *call) (any, error) {
	sourceRef, perr := c.params.StringRequired("source")
	if perr != nil {
		return nil, perr
	}
	targetRef := c.params.String("target", model.MainWorkspaceID)

	source, err := d.ws.Resolve(ctx, sourceRef)
	if err != nil {
		return nil, err
	}
	target, err := d.ws.Resolve(ctx, targetRef)
	if err != nil {
		return nil, err
	}
	c.workspaceID = target.WorkspaceID

	result, err := d.engine.Merge(ctx, source.WorkspaceID, target.WorkspaceID, c.agentID)
	if err != nil {
		return nil, err
	}
	if d.collector != nil {
		d.collector.RecordMerge(target.WorkspaceID, result.EntitiesAdded, len(result.Conflicts))
	}
	return result, nil
}

func (d *Dispatcher) handleWorkspaceResolveConflict(ctx context.Context, c *call) (any, error) {
	entityID, perr := c.params.StringRequired("entity_id")
	if perr != nil {
		return nil, perr
	}
	sourceRef, perr := c.params.StringRequired("source")
	if perr != nil {
		return nil, perr
	}
	targetRef, perr := c.params.StringRequired("target")
	if perr != nil {
		return nil, perr
	}
	strategy, perr := c.params.StringRequired("strategy")
	if perr != nil {
		return nil, perr
	}

	source, err := d.ws.Resolve(ctx, sourceRef)
	if err != nil {
		return nil, err
	}
	target, err := d.ws.Resolve(ctx, targetRef)
	if err != nil {
		return nil, err
	}
	c.workspaceID = target.WorkspaceID

	note, err := d.engine.ResolveConflict(ctx, entityID, source.WorkspaceID, target.WorkspaceID,
		merge.ResolveStrategy(strategy), c.params.Map("merged_properties"), c.agentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"entity_id":  entityID,
		"strategy":   strategy,
		"resolution": note,
	}, nil
}
