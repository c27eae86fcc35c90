package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/BaSui01/agentcad/cad/model"
)

// CreateEntity inserts an entity row and increments the owning
// workspace's entity_count within the same transaction.
func (s *Store) CreateEntity(ctx context.Context, e *model.Entity) error {
	row, err := entityToRow(e)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return s.IncrementWorkspaceCounts(ctx, tx, e.WorkspaceID, 1, 0)
	})
	if err != nil {
		return err
	}
	s.invalidateEntity(ctx, e.EntityID)
	return nil
}

// GetEntity resolves a single entity by id, trying the read-through
// cache first when one is attached.
func (s *Store) GetEntity(ctx context.Context, entityID string) (*model.Entity, error) {
	if cached := s.cachedEntity(ctx, entityID); cached != nil {
		return cached, nil
	}
	var row entityRow
	if err := s.db.WithContext(ctx).Where("entity_id = ?", entityID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("entity not found: %s", entityID)
		}
		return nil, err
	}
	e, err := entityFromRow(row)
	if err != nil {
		return nil, err
	}
	s.cacheEntity(ctx, e)
	return e, nil
}

// EntityPage is a page of entities plus the total matching the filter,
// for the dispatcher's entity.list pagination contract.
type EntityPage struct {
	Entities   []*model.Entity
	TotalCount int64
}

// ListEntities returns a page of entities in a workspace, optionally
// filtered by entity type.
func (s *Store) ListEntities(ctx context.Context, workspaceID string, entityType model.EntityType, limit, offset int) (*EntityPage, error) {
	q := s.db.WithContext(ctx).Model(&entityRow{}).Where("workspace_id = ?", workspaceID)
	if entityType != "" {
		q = q.Where("entity_type = ?", string(entityType))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}
	var rows []entityRow
	if err := q.Order("created_at ASC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}

	entities := make([]*model.Entity, 0, len(rows))
	for _, r := range rows {
		e, err := entityFromRow(r)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return &EntityPage{Entities: entities, TotalCount: total}, nil
}

// ListEntitiesByWorkspace returns every entity in a workspace unpaged,
// for callers (the constraint graph, the merge engine) that need the
// full working set rather than a page.
func (s *Store) ListEntitiesByWorkspace(ctx context.Context, workspaceID string) ([]*model.Entity, error) {
	var rows []entityRow
	if err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Entity, 0, len(rows))
	for _, r := range rows {
		e, err := entityFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// UpdateEntity overwrites an entity's mutable fields in place.
func (s *Store) UpdateEntity(ctx context.Context, e *model.Entity) error {
	row, err := entityToRow(e)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&entityRow{}).Where("entity_id = ?", e.EntityID).Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("entity not found: %s", e.EntityID)
	}
	s.invalidateEntity(ctx, e.EntityID)
	return nil
}

// DeleteEntity removes an entity, its junction rows, and any derived
// solid properties, and decrements the workspace's entity_count.
func (s *Store) DeleteEntity(ctx context.Context, entityID string) error {
	defer s.invalidateEntity(ctx, entityID)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row entityRow
		if err := tx.Where("entity_id = ?", entityID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("entity not found: %s", entityID)
			}
			return err
		}
		if err := tx.Where("entity_id = ?", entityID).Delete(&entityConstraintRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("entity_id = ?", entityID).Delete(&solidPropertiesRow{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&row).Error; err != nil {
			return err
		}
		return s.IncrementWorkspaceCounts(ctx, tx, row.WorkspaceID, -1, 0)
	})
}

func entityToRow(e *model.Entity) (entityRow, error) {
	parents, err := marshalJSON(e.ParentEntities)
	if err != nil {
		return entityRow{}, err
	}
	children, err := marshalJSON(e.ChildEntities)
	if err != nil {
		return entityRow{}, err
	}
	props, err := marshalJSON(e.Properties)
	if err != nil {
		return entityRow{}, err
	}
	bbox, err := marshalJSON(e.BoundingBox)
	if err != nil {
		return entityRow{}, err
	}
	verrs, err := marshalJSON(e.ValidationErrors)
	if err != nil {
		return entityRow{}, err
	}
	return entityRow{
		EntityID:         e.EntityID,
		EntityType:       string(e.EntityType),
		WorkspaceID:      e.WorkspaceID,
		CreatedAt:        e.CreatedAt,
		ModifiedAt:       e.ModifiedAt,
		CreatedByAgent:   e.CreatedByAgent,
		ParentEntities:   parents,
		ChildEntities:    children,
		Properties:       props,
		BoundingBox:      bbox,
		IsValid:          e.IsValid,
		ValidationErrors: verrs,
		ShapeID:          e.ShapeID,
	}, nil
}

func entityFromRow(r entityRow) (*model.Entity, error) {
	e := &model.Entity{
		EntityID:       r.EntityID,
		EntityType:     model.EntityType(r.EntityType),
		WorkspaceID:    r.WorkspaceID,
		CreatedAt:      r.CreatedAt,
		ModifiedAt:     r.ModifiedAt,
		CreatedByAgent: r.CreatedByAgent,
		IsValid:        r.IsValid,
		ShapeID:        r.ShapeID,
	}
	if err := unmarshalJSON(r.ParentEntities, &e.ParentEntities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.ChildEntities, &e.ChildEntities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.Properties, &e.Properties); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.BoundingBox, &e.BoundingBox); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.ValidationErrors, &e.ValidationErrors); err != nil {
		return nil, err
	}
	return e, nil
}
