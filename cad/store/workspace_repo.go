package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/BaSui01/agentcad/cad/model"
)

// CreateWorkspace inserts a new branch workspace. The main workspace is
// created once by ensureMainWorkspace and is never created here.
func (s *Store) CreateWorkspace(ctx context.Context, w *model.Workspace) error {
	row := workspaceRow{
		WorkspaceID:     w.WorkspaceID,
		WorkspaceName:   w.WorkspaceName,
		WorkspaceType:   string(w.WorkspaceType),
		BaseWorkspaceID: w.BaseWorkspaceID,
		OwningAgentID:   w.OwningAgentID,
		CreatedAt:       w.CreatedAt,
		EntityCount:     w.EntityCount,
		OperationCount:  w.OperationCount,
		BranchStatus:    string(w.BranchStatus),
		DivergencePoint: w.DivergencePoint,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("workspace name %q already exists", w.WorkspaceName)
		}
		return err
	}
	return nil
}

// GetWorkspace resolves a workspace by id, or by its short %:name form,
// which matches workspace_id suffixes the way a user-facing alias would
// (branch ids take the "<owning_agent_id>:<name>" form).
func (s *Store) GetWorkspace(ctx context.Context, ref string) (*model.Workspace, error) {
	var row workspaceRow
	q := s.db.WithContext(ctx)
	if strings.HasPrefix(ref, "%:") {
		q = q.Where("workspace_id LIKE ?", "%"+strings.TrimPrefix(ref, "%:"))
	} else {
		q = q.Where("workspace_id = ? OR workspace_name = ?", ref, ref)
	}
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("workspace not found: %s", ref)
		}
		return nil, err
	}
	return workspaceFromRow(row), nil
}

// ListWorkspaces returns every workspace, most recently created first.
func (s *Store) ListWorkspaces(ctx context.Context) ([]*model.Workspace, error) {
	var rows []workspaceRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Workspace, 0, len(rows))
	for _, r := range rows {
		out = append(out, workspaceFromRow(r))
	}
	return out, nil
}

// UpdateWorkspaceStatus updates branch_status and, when non-nil,
// divergence_point for a workspace.
func (s *Store) UpdateWorkspaceStatus(ctx context.Context, workspaceID string, status model.BranchStatus, divergencePoint *string) error {
	updates := map[string]any{"branch_status": string(status)}
	if divergencePoint != nil {
		updates["divergence_point"] = *divergencePoint
	}
	res := s.db.WithContext(ctx).Model(&workspaceRow{}).Where("workspace_id = ?", workspaceID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("workspace not found: %s", workspaceID)
	}
	return nil
}

// IncrementWorkspaceCounts bumps entity_count and/or operation_count by
// the given deltas (which may be negative) inside tx, or on the store's
// own connection when tx is nil.
func (s *Store) IncrementWorkspaceCounts(ctx context.Context, tx *gorm.DB, workspaceID string, entityDelta, operationDelta int) error {
	db := s.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).Model(&workspaceRow{}).Where("workspace_id = ?", workspaceID).
		Updates(map[string]any{
			"entity_count":    gorm.Expr("entity_count + ?", entityDelta),
			"operation_count": gorm.Expr("operation_count + ?", operationDelta),
		}).Error
}

// DeleteWorkspace removes a branch workspace and everything scoped to it
// (entities, constraints, operations, shapes). The main workspace can
// never be deleted.
func (s *Store) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == model.MainWorkspaceID {
		return errors.New("the main workspace cannot be deleted")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entityIDs []string
		if err := tx.Model(&entityRow{}).Where("workspace_id = ?", workspaceID).Pluck("entity_id", &entityIDs).Error; err != nil {
			return err
		}
		if len(entityIDs) > 0 {
			if err := tx.Where("entity_id IN ?", entityIDs).Delete(&entityConstraintRow{}).Error; err != nil {
				return err
			}
			if err := tx.Where("entity_id IN ?", entityIDs).Delete(&solidPropertiesRow{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("workspace_id = ?", workspaceID).Delete(&entityRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workspace_id = ?", workspaceID).Delete(&constraintRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workspace_id = ?", workspaceID).Delete(&operationRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workspace_id = ?", workspaceID).Delete(&geometryShapeRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("workspace_id = ?", workspaceID).Delete(&workspaceRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("workspace not found: %s", workspaceID)
		}
		return nil
	})
}

func workspaceFromRow(r workspaceRow) *model.Workspace {
	return &model.Workspace{
		WorkspaceID:     r.WorkspaceID,
		WorkspaceName:   r.WorkspaceName,
		WorkspaceType:   model.WorkspaceType(r.WorkspaceType),
		BaseWorkspaceID: r.BaseWorkspaceID,
		OwningAgentID:   r.OwningAgentID,
		CreatedAt:       r.CreatedAt,
		EntityCount:     r.EntityCount,
		OperationCount:  r.OperationCount,
		BranchStatus:    model.BranchStatus(r.BranchStatus),
		DivergencePoint: r.DivergencePoint,
	}
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "unique") || strings.Contains(msg, "Duplicate")
}
