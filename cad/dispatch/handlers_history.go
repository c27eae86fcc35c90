package dispatch

import (
	"context"
)

func (d *Dispatcher) handleHistoryList(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	h := d.hist.For(c.workspaceID)
	limit := c.params.Int("limit", 20)
	offset := c.params.Int("offset", 0)

	entries := h.List(limit, offset, c.params.Bool("include_future", false))
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"operation_type": e.OperationType,
			"params":         e.Params,
			"result":         e.Result,
		})
	}
	return map[string]any{
		"history":  items,
		"can_undo": h.CanUndo(),
		"can_redo": h.CanRedo(),
	}, nil
}

// handleHistoryUndo reports the operation being undone and moves the
// cursor backward. When the entry carries an executable inverse
// (entity.create ops invert to a delete) the inverse is applied through
// the store; otherwise the undo is cursor-only, which the history
// contract permits.
func (d *Dispatcher) handleHistoryUndo(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	h := d.hist.For(c.workspaceID)

	entry, err := h.UndoEntry()
	if err != nil {
		return nil, err
	}

	applied := false
	if entry.InverseOp == "entity.delete" {
		if id, ok := entry.InverseParams["entity_id"].(string); ok {
			if err := d.st.DeleteEntity(ctx, id); err != nil {
				return nil, err
			}
			c.inputEntities = []string{id}
			applied = true
		}
	}

	h.MarkUndone()
	return map[string]any{
		"undone": map[string]any{
			"operation_type": entry.OperationType,
			"params":         entry.Params,
			"result":         entry.Result,
		},
		"inverse_applied": applied,
		"can_undo":        h.CanUndo(),
		"can_redo":        h.CanRedo(),
	}, nil
}

// handleHistoryRedo reports the operation being redone and moves the
// cursor forward. Redo does not re-execute the original operation; it
// restores the cursor position, which pairs with cursor-only undo.
func (d *Dispatcher) handleHistoryRedo(ctx context.Context, c *call) (any, error) {
	if _, err := d.resolveWorkspace(ctx, c); err != nil {
		return nil, err
	}
	h := d.hist.For(c.workspaceID)

	entry, err := h.RedoEntry()
	if err != nil {
		return nil, err
	}
	h.MarkRedone()
	return map[string]any{
		"redone": map[string]any{
			"operation_type": entry.OperationType,
			"params":         entry.Params,
			"result":         entry.Result,
		},
		"can_undo": h.CanUndo(),
		"can_redo": h.CanRedo(),
	}, nil
}
