package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/BaSui01/agentcad/cad/model"
)

// LogOperation appends an operation journal entry and increments the
// workspace's operation_count in the same transaction, the way every
// mutating handler in the dispatcher records its own history.
func (s *Store) LogOperation(ctx context.Context, op *model.Operation) error {
	row, err := operationToRow(op)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return s.IncrementWorkspaceCounts(ctx, tx, op.WorkspaceID, 0, 1)
	})
}

// ListOperations returns a workspace's operation journal, oldest first,
// for the undo/redo history manager to replay from.
func (s *Store) ListOperations(ctx context.Context, workspaceID string) ([]*model.Operation, error) {
	var rows []operationRow
	if err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("timestamp ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Operation, 0, len(rows))
	for _, r := range rows {
		op, err := operationFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// ListOperationsByAgent returns every operation an agent has logged
// across all workspaces, oldest first, for agent metrics aggregation.
func (s *Store) ListOperationsByAgent(ctx context.Context, agentID string) ([]*model.Operation, error) {
	var rows []operationRow
	if err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("timestamp ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Operation, 0, len(rows))
	for _, r := range rows {
		op, err := operationFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func operationToRow(op *model.Operation) (operationRow, error) {
	inputParams, err := marshalJSON(op.InputParameters)
	if err != nil {
		return operationRow{}, err
	}
	inputEntities, err := marshalJSON(op.InputEntities)
	if err != nil {
		return operationRow{}, err
	}
	outputEntities, err := marshalJSON(op.OutputEntities)
	if err != nil {
		return operationRow{}, err
	}
	undoData, err := marshalJSON(op.UndoData)
	if err != nil {
		return operationRow{}, err
	}
	return operationRow{
		OperationID:     op.OperationID,
		OperationType:   op.OperationType,
		WorkspaceID:     op.WorkspaceID,
		AgentID:         op.AgentID,
		Timestamp:       op.Timestamp,
		InputParameters: inputParams,
		InputEntities:   inputEntities,
		OutputEntities:  outputEntities,
		ResultStatus:    string(op.ResultStatus),
		ErrorCode:       op.ErrorCode,
		ErrorMessage:    op.ErrorMessage,
		ExecutionTimeMs: op.ExecutionTimeMs,
		UndoData:        undoData,
	}, nil
}

func operationFromRow(r operationRow) (*model.Operation, error) {
	op := &model.Operation{
		OperationID:     r.OperationID,
		OperationType:   r.OperationType,
		WorkspaceID:     r.WorkspaceID,
		AgentID:         r.AgentID,
		Timestamp:       r.Timestamp,
		ResultStatus:    model.ResultStatus(r.ResultStatus),
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
		ExecutionTimeMs: r.ExecutionTimeMs,
	}
	if err := unmarshalJSON(r.InputParameters, &op.InputParameters); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.InputEntities, &op.InputEntities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.OutputEntities, &op.OutputEntities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.UndoData, &op.UndoData); err != nil {
		return nil, err
	}
	return op, nil
}
