package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/BaSui01/agentcad/cad/model"
)

// CreateConstraint inserts a constraint row and its entity_constraints
// junction rows in a single transaction.
func (s *Store) CreateConstraint(ctx context.Context, c *model.Constraint) error {
	row, err := constraintToRow(c)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for _, entityID := range c.EntityIDs {
			if err := tx.Create(&entityConstraintRow{EntityID: entityID, ConstraintID: c.ConstraintID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConstraint resolves a single constraint by id.
func (s *Store) GetConstraint(ctx context.Context, constraintID string) (*model.Constraint, error) {
	var row constraintRow
	if err := s.db.WithContext(ctx).Where("constraint_id = ?", constraintID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("entity not found: constraint %s", constraintID)
		}
		return nil, err
	}
	return constraintFromRow(row)
}

// ListConstraintsByWorkspace returns every constraint scoped to a
// workspace, for the constraint graph and solver.
func (s *Store) ListConstraintsByWorkspace(ctx context.Context, workspaceID string) ([]*model.Constraint, error) {
	var rows []constraintRow
	if err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Constraint, 0, len(rows))
	for _, r := range rows {
		c, err := constraintFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateConstraintStatus persists a recomputed satisfaction_status, as
// produced by the solver.
func (s *Store) UpdateConstraintStatus(ctx context.Context, constraintID string, status model.SatisfactionStatus) error {
	res := s.db.WithContext(ctx).Model(&constraintRow{}).Where("constraint_id = ?", constraintID).
		Update("satisfaction_status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("entity not found: constraint %s", constraintID)
	}
	return nil
}

// DeleteConstraint removes a constraint and its junction rows.
func (s *Store) DeleteConstraint(ctx context.Context, constraintID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("constraint_id = ?", constraintID).Delete(&entityConstraintRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("constraint_id = ?", constraintID).Delete(&constraintRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("entity not found: constraint %s", constraintID)
		}
		return nil
	})
}

func constraintToRow(c *model.Constraint) (constraintRow, error) {
	entityIDs, err := marshalJSON(c.EntityIDs)
	if err != nil {
		return constraintRow{}, err
	}
	params, err := marshalJSON(c.Parameters)
	if err != nil {
		return constraintRow{}, err
	}
	return constraintRow{
		ConstraintID:            c.ConstraintID,
		ConstraintType:          string(c.ConstraintType),
		WorkspaceID:             c.WorkspaceID,
		EntityIDs:               entityIDs,
		Parameters:              params,
		SatisfactionStatus:      string(c.SatisfactionStatus),
		DegreesOfFreedomRemoved: c.DegreesOfFreedomRemoved,
		Tolerance:               c.Tolerance,
		CreatedAt:               c.CreatedAt,
		CreatedByAgent:          c.CreatedByAgent,
	}, nil
}

func constraintFromRow(r constraintRow) (*model.Constraint, error) {
	c := &model.Constraint{
		ConstraintID:            r.ConstraintID,
		ConstraintType:          model.ConstraintType(r.ConstraintType),
		WorkspaceID:             r.WorkspaceID,
		SatisfactionStatus:      model.SatisfactionStatus(r.SatisfactionStatus),
		DegreesOfFreedomRemoved: r.DegreesOfFreedomRemoved,
		Tolerance:               r.Tolerance,
		CreatedAt:               r.CreatedAt,
		CreatedByAgent:          r.CreatedByAgent,
	}
	if err := unmarshalJSON(r.EntityIDs, &c.EntityIDs); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.Parameters, &c.Parameters); err != nil {
		return nil, err
	}
	return c, nil
}
