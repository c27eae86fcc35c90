package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/BaSui01/agentcad/cad/model"
)

// SaveGeometryShape persists the opaque B-Rep blob behind a solid entity.
func (s *Store) SaveGeometryShape(ctx context.Context, shape *model.GeometryShape) error {
	row := geometryShapeRow{
		ShapeID:     shape.ShapeID,
		ShapeType:   shape.ShapeType,
		BRepData:    shape.BRepData,
		IsValid:     shape.IsValid,
		CreatedAt:   shape.CreatedAt,
		WorkspaceID: shape.WorkspaceID,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// GetGeometryShape resolves a shape by id.
func (s *Store) GetGeometryShape(ctx context.Context, shapeID string) (*model.GeometryShape, error) {
	var row geometryShapeRow
	if err := s.db.WithContext(ctx).Where("shape_id = ?", shapeID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("entity not found: shape %s", shapeID)
		}
		return nil, err
	}
	return &model.GeometryShape{
		ShapeID:     row.ShapeID,
		ShapeType:   row.ShapeType,
		BRepData:    row.BRepData,
		IsValid:     row.IsValid,
		CreatedAt:   row.CreatedAt,
		WorkspaceID: row.WorkspaceID,
	}, nil
}

// SaveSolidProperties upserts the derived mass properties of a solid
// entity.
func (s *Store) SaveSolidProperties(ctx context.Context, props *model.SolidProperties) error {
	row := solidPropertiesRow{
		EntityID:      props.EntityID,
		Volume:        props.Volume,
		SurfaceArea:   props.SurfaceArea,
		CenterOfMassX: props.CenterOfMass[0],
		CenterOfMassY: props.CenterOfMass[1],
		CenterOfMassZ: props.CenterOfMass[2],
		BBoxMinX:      props.BoundingBox.Min[0],
		BBoxMinY:      props.BoundingBox.Min[1],
		BBoxMinZ:      props.BoundingBox.Min[2],
		BBoxMaxX:      props.BoundingBox.Max[0],
		BBoxMaxY:      props.BoundingBox.Max[1],
		BBoxMaxZ:      props.BoundingBox.Max[2],
		FaceCount:     props.Topology.FaceCount,
		EdgeCount:     props.Topology.EdgeCount,
		VertexCount:   props.Topology.VertexCount,
		IsClosed:      props.Topology.IsClosed,
		IsManifold:    props.Topology.IsManifold,
		ComputedAt:    props.ComputedAt,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// GetSolidProperties resolves the derived mass properties of a solid
// entity.
func (s *Store) GetSolidProperties(ctx context.Context, entityID string) (*model.SolidProperties, error) {
	var row solidPropertiesRow
	if err := s.db.WithContext(ctx).Where("entity_id = ?", entityID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("entity not found: solid properties for %s", entityID)
		}
		return nil, err
	}
	return &model.SolidProperties{
		EntityID:     row.EntityID,
		Volume:       row.Volume,
		SurfaceArea:  row.SurfaceArea,
		CenterOfMass: model.Vec3{row.CenterOfMassX, row.CenterOfMassY, row.CenterOfMassZ},
		BoundingBox: model.BoundingBox{
			Min: model.Vec3{row.BBoxMinX, row.BBoxMinY, row.BBoxMinZ},
			Max: model.Vec3{row.BBoxMaxX, row.BBoxMaxY, row.BBoxMaxZ},
		},
		Topology: model.Topology{
			FaceCount:   row.FaceCount,
			EdgeCount:   row.EdgeCount,
			VertexCount: row.VertexCount,
			IsClosed:    row.IsClosed,
			IsManifold:  row.IsManifold,
		},
		ComputedAt: row.ComputedAt,
	}, nil
}
