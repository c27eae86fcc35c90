package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcad/cad/model"
)

func TestValidatePoint(t *testing.T) {
	k := New()

	assert.NoError(t, k.ValidatePoint(model.Vec3{0, 0, 0}))
	assert.NoError(t, k.ValidatePoint(model.Vec3{-1e6, 1e6, 0}))

	assert.Error(t, k.ValidatePoint(model.Vec3{1e6 + 1, 0, 0}))
	assert.Error(t, k.ValidatePoint(model.Vec3{math.NaN(), 0, 0}))
	assert.Error(t, k.ValidatePoint(model.Vec3{math.Inf(1), 0, 0}))
}

func TestValidateLine(t *testing.T) {
	k := New()

	length, err := k.ValidateLine(model.Vec3{0, 0, 0}, model.Vec3{3, 4, 0})
	require.NoError(t, err)
	assert.InDelta(t, 5, length, 1e-9)

	_, err = k.ValidateLine(model.Vec3{1, 1, 1}, model.Vec3{1, 1, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "degenerate")
}

func TestValidateCircle(t *testing.T) {
	k := New()

	assert.NoError(t, k.ValidateCircle(model.Vec3{0, 0, 0}, 5))
	assert.Error(t, k.ValidateCircle(model.Vec3{0, 0, 0}, 0))
	assert.Error(t, k.ValidateCircle(model.Vec3{0, 0, 0}, 1e6+1))
}

func TestExtrudeProfileBox(t *testing.T) {
	k := New()
	loop := []model.Vec3{
		{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {0, 10, 0},
	}

	props, shape, err := k.ExtrudeProfile(loop, 10)
	require.NoError(t, err)
	require.NotNil(t, shape)

	// Analytic: 10x10x10 cube. The contract requires 0.1% accuracy
	// for axis-aligned primitives.
	assert.InDelta(t, 1000, props.Volume, 1)
	assert.InDelta(t, 600, props.SurfaceArea, 0.6)
	assert.Equal(t, model.Vec3{5, 5, 5}, props.CenterOfMass)
	assert.True(t, props.Topology.IsClosed)
	assert.True(t, props.Topology.IsManifold)
	assert.Equal(t, 6, props.Topology.FaceCount)
	assert.Equal(t, model.Vec3{10, 10, 10}, props.BoundingBox.Max)
}

func TestExtrudeProfileRejectsDegenerate(t *testing.T) {
	k := New()

	_, _, err := k.ExtrudeProfile([]model.Vec3{{0, 0, 0}, {1, 0, 0}}, 10)
	assert.Error(t, err)

	loop := []model.Vec3{{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {0, 10, 0}}
	_, _, err = k.ExtrudeProfile(loop, 0)
	assert.Error(t, err)

	// Collinear loop has zero area.
	flat := []model.Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}
	_, _, err = k.ExtrudeProfile(flat, 10)
	assert.Error(t, err)
}

func TestBoolean(t *testing.T) {
	k := New()
	a := &model.SolidProperties{Volume: 1000, SurfaceArea: 600, Topology: model.Topology{FaceCount: 6}}
	b := &model.SolidProperties{Volume: 300, SurfaceArea: 280, Topology: model.Topology{FaceCount: 6}}

	union, _, err := k.Boolean(BooleanUnion, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1300, union.Volume, 1e-9)

	sub, _, err := k.Boolean(BooleanSubtract, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 700, sub.Volume, 1e-9)

	inter, _, err := k.Boolean(BooleanIntersect, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 300, inter.Volume, 1e-9)

	// Subtraction never goes negative.
	clamped, _, err := k.Boolean(BooleanSubtract, b, a)
	require.NoError(t, err)
	assert.Equal(t, 0.0, clamped.Volume)

	_, _, err = k.Boolean("bogus", a, b)
	assert.Error(t, err)
}

func TestTessellatePresetMonotonicity(t *testing.T) {
	k := New()
	surfaceArea := 600.0

	preview, err := k.Tessellate(surfaceArea, PresetPreview)
	require.NoError(t, err)
	standard, err := k.Tessellate(surfaceArea, PresetStandard)
	require.NoError(t, err)
	high, err := k.Tessellate(surfaceArea, PresetHighQuality)
	require.NoError(t, err)

	assert.Less(t, preview, standard)
	assert.Less(t, standard, high)
}

func TestTessellateErrors(t *testing.T) {
	k := New()

	_, err := k.Tessellate(100, "bogus")
	assert.Error(t, err)

	_, err = k.Tessellate(0, PresetStandard)
	assert.Error(t, err)
}
