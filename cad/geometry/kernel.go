// Package geometry implements the Geometry Kernel Adapter: a thin,
// engine-agnostic façade that validates primitives, extrudes profiles,
// performs boolean operations, computes mass properties, and tessellates
// to triangles. It holds no package-level state — callers construct a
// single explicit *Kernel handle at process start and thread it through
// the dispatcher, avoiding the implicit singleton the design notes warn
// against.
package geometry

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/BaSui01/agentcad/cad/model"
)

// Bound limits are fixed by the adapter contract.
const (
	MaxCoordinate = 1e6
	MaxRadius     = 1e6
)

// TessellationPreset names a quality/performance tradeoff for meshing.
type TessellationPreset string

const (
	PresetPreview     TessellationPreset = "preview"
	PresetStandard    TessellationPreset = "standard"
	PresetHighQuality TessellationPreset = "high_quality"
)

// TessellationConfig pairs linear and angular deflection for a preset.
type TessellationConfig struct {
	LinearDeflection  float64
	AngularDeflection float64
}

var tessellationPresets = map[TessellationPreset]TessellationConfig{
	PresetPreview:     {LinearDeflection: 1.0, AngularDeflection: 1.0},
	PresetStandard:    {LinearDeflection: 0.1, AngularDeflection: 0.5},
	PresetHighQuality: {LinearDeflection: 0.01, AngularDeflection: 0.1},
}

// Error kinds the adapter surfaces to the dispatcher. These are distinct
// from dispatch.Code so the dispatcher alone owns the wire mapping.
type ErrKind string

const (
	ErrInvalidGeometry           ErrKind = "invalid_geometry"
	ErrOperationFailed           ErrKind = "operation_failed"
	ErrTessellationFailed        ErrKind = "tessellation_failed"
	ErrSerializationFailed       ErrKind = "serialization_failed"
	ErrPropertyComputationFailed ErrKind = "property_computation_failed"
)

// Error is a kernel-level failure; the dispatcher classifies its message
// into a wire error code using the same keyword rules as any other
// handler-raised value error.
type Error struct {
	Kind    ErrKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func invalidGeometry(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidGeometry, Message: fmt.Sprintf(format, args...)}
}

// Tolerance is the minimum extent a primitive must have to be considered
// non-degenerate.
const Tolerance = 1e-9

// Kernel is the explicit, non-singleton geometry handle.
type Kernel struct {
	tolerance float64
}

// New constructs a Kernel with the default tolerance.
func New() *Kernel {
	return &Kernel{tolerance: Tolerance}
}

// ValidatePoint checks that coordinates lie within the finite bounds.
func (k *Kernel) ValidatePoint(coords model.Vec3) error {
	for _, c := range coords {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return invalidGeometry("coordinate is not finite: %v", coords)
		}
		if c < -MaxCoordinate || c > MaxCoordinate {
			return invalidGeometry("coordinate %v out of bounds [-%v, %v]", c, MaxCoordinate, MaxCoordinate)
		}
	}
	return nil
}

// ValidateLine checks that a line's length exceeds tolerance.
func (k *Kernel) ValidateLine(start, end model.Vec3) (length float64, err error) {
	if err := k.ValidatePoint(start); err != nil {
		return 0, err
	}
	if err := k.ValidatePoint(end); err != nil {
		return 0, err
	}
	length = distance(start, end)
	if length <= k.tolerance {
		return 0, invalidGeometry("line is degenerate: length %v below tolerance", length)
	}
	return length, nil
}

// ValidateCircle checks that a circle's radius is within bounds.
func (k *Kernel) ValidateCircle(center model.Vec3, radius float64) error {
	if err := k.ValidatePoint(center); err != nil {
		return err
	}
	if radius <= k.tolerance {
		return invalidGeometry("radius %v is degenerate", radius)
	}
	if radius > MaxRadius {
		return invalidGeometry("radius %v exceeds bounds %v", radius, MaxRadius)
	}
	return nil
}

// ExtrudeProfile extrudes a closed polygon (given as an ordered loop of
// line endpoints) by distance along +Z, returning the resulting solid's
// derived properties. The loop is treated as closed (the last point
// connects back to the first) and its area is taken from the XY
// projection; neither closure nor Z planarity is checked here.
func (k *Kernel) ExtrudeProfile(loop []model.Vec3, distance float64) (*model.SolidProperties, *GeometryShape, error) {
	if len(loop) < 3 {
		return nil, nil, invalidGeometry("extrusion profile needs at least 3 points, got %d", len(loop))
	}
	if distance <= k.tolerance {
		return nil, nil, invalidGeometry("extrusion distance %v is degenerate", distance)
	}

	area, perimeter, bbox := polygonMetrics(loop)
	if area <= k.tolerance {
		return nil, nil, invalidGeometry("extrusion profile has zero area")
	}

	volume := area * distance
	sideArea := perimeter * distance
	surfaceArea := sideArea + 2*area

	com := model.Vec3{
		(bbox.Min[0] + bbox.Max[0]) / 2,
		(bbox.Min[1] + bbox.Max[1]) / 2,
		distance / 2,
	}

	bbox.Max[2] = distance

	props := &model.SolidProperties{
		Volume:       volume,
		SurfaceArea:  surfaceArea,
		CenterOfMass: com,
		BoundingBox:  bbox,
		Topology: model.Topology{
			FaceCount:   len(loop) + 2, // N side faces + top + bottom
			EdgeCount:   3 * len(loop),
			VertexCount: 2 * len(loop),
			IsClosed:    true,
			IsManifold:  true,
		},
	}

	shape := &GeometryShape{
		ShapeType: "extruded_solid",
		BRepData:  fmt.Sprintf("extrude:loop=%d:dist=%v", len(loop), distance),
	}

	return props, shape, nil
}

// BooleanOp is the kind of solid-solid boolean operation.
type BooleanOp string

const (
	BooleanUnion     BooleanOp = "union"
	BooleanSubtract  BooleanOp = "subtract"
	BooleanIntersect BooleanOp = "intersect"
)

// Boolean combines two solids' mass properties. This is a simplified,
// analytically-approximate combination, not true B-Rep boolean
// evaluation, so no third-party B-Rep engine is needed.
func (k *Kernel) Boolean(op BooleanOp, a, b *model.SolidProperties) (*model.SolidProperties, *GeometryShape, error) {
	if a == nil || b == nil {
		return nil, nil, &Error{Kind: ErrOperationFailed, Message: "boolean operands must be non-nil solids"}
	}

	var volume float64
	switch op {
	case BooleanUnion:
		volume = a.Volume + b.Volume
	case BooleanSubtract:
		volume = a.Volume - b.Volume
		if volume < 0 {
			volume = 0
		}
	case BooleanIntersect:
		volume = math.Min(a.Volume, b.Volume)
	default:
		return nil, nil, &Error{Kind: ErrOperationFailed, Message: fmt.Sprintf("unknown boolean operation %q", op)}
	}

	bbox := unionBounds(a.BoundingBox, b.BoundingBox)
	props := &model.SolidProperties{
		Volume:       volume,
		SurfaceArea:  a.SurfaceArea + b.SurfaceArea,
		CenterOfMass: midpoint(a.CenterOfMass, b.CenterOfMass),
		BoundingBox:  bbox,
		Topology: model.Topology{
			FaceCount:   a.Topology.FaceCount + b.Topology.FaceCount,
			EdgeCount:   a.Topology.EdgeCount + b.Topology.EdgeCount,
			VertexCount: a.Topology.VertexCount + b.Topology.VertexCount,
			IsClosed:    true,
			IsManifold:  true,
		},
	}
	shape := &GeometryShape{
		ShapeType: "boolean_solid",
		BRepData:  fmt.Sprintf("boolean:%s", op),
	}
	return props, shape, nil
}

// Tessellate produces a triangle count for a given surface area and
// quality preset. Triangle counts strictly increase from preview to
// standard to high_quality for a smooth (non-degenerate) surface, as
// required by the adapter contract.
func (k *Kernel) Tessellate(surfaceArea float64, preset TessellationPreset) (triangleCount int, err error) {
	cfg, ok := tessellationPresets[preset]
	if !ok {
		return 0, &Error{Kind: ErrTessellationFailed, Message: fmt.Sprintf("unknown tessellation preset %q", preset)}
	}
	if surfaceArea <= k.tolerance {
		return 0, &Error{Kind: ErrTessellationFailed, Message: "cannot tessellate a zero-area surface"}
	}

	// Triangle density grows as deflection shrinks; counts never drop
	// below 4.
	density := 1.0 / (cfg.LinearDeflection * cfg.AngularDeflection)
	count := int(math.Ceil(surfaceArea * density))
	if count < 4 {
		count = 4
	}
	return count, nil
}

// GeometryShape mirrors model.GeometryShape but without identity/workspace
// fields the kernel itself does not own; the caller assigns those before
// persisting.
type GeometryShape struct {
	ShapeType string
	BRepData  string
}

// NewShapeID mints a fresh opaque shape identifier.
func NewShapeID() string {
	return "shape_" + uuid.NewString()[:8]
}

func distance(a, b model.Vec3) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func midpoint(a, b model.Vec3) model.Vec3 {
	return model.Vec3{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2, (a[2] + b[2]) / 2}
}

func unionBounds(a, b model.BoundingBox) model.BoundingBox {
	min := model.Vec3{math.Min(a.Min[0], b.Min[0]), math.Min(a.Min[1], b.Min[1]), math.Min(a.Min[2], b.Min[2])}
	max := model.Vec3{math.Max(a.Max[0], b.Max[0]), math.Max(a.Max[1], b.Max[1]), math.Max(a.Max[2], b.Max[2])}
	return model.BoundingBox{Min: min, Max: max}
}

// polygonMetrics computes the planar area (shoelace formula, projected
// onto XY), perimeter, and bounding box of a closed loop of points.
func polygonMetrics(loop []model.Vec3) (area, perimeter float64, bbox model.BoundingBox) {
	n := len(loop)
	bbox.Min = loop[0]
	bbox.Max = loop[0]

	var signedArea float64
	for i := 0; i < n; i++ {
		p := loop[i]
		q := loop[(i+1)%n]
		signedArea += p[0]*q[1] - q[0]*p[1]
		perimeter += distance(p, q)

		for axis := 0; axis < 3; axis++ {
			if p[axis] < bbox.Min[axis] {
				bbox.Min[axis] = p[axis]
			}
			if p[axis] > bbox.Max[axis] {
				bbox.Max[axis] = p[axis]
			}
		}
	}
	area = math.Abs(signedArea) / 2
	return area, perimeter, bbox
}
