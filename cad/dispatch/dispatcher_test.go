package dispatch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcad/cad/dispatch"
	"github.com/BaSui01/agentcad/cad/fileio"
	"github.com/BaSui01/agentcad/cad/merge"
	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/testutil"
)

func TestUnknownMethodListsKnownMethods(t *testing.T) {
	h := testutil.NewHarness(t)

	werr := h.CallErr(t, "entity.create.cube", nil)
	assert.Equal(t, dispatch.CodeMethodNotFound, werr.Code)

	data, ok := werr.Data.(map[string]any)
	require.True(t, ok)
	methods, ok := data["value"].([]string)
	require.True(t, ok)
	assert.Contains(t, methods, "entity.create.point")
	assert.Contains(t, methods, "workspace.merge")
}

func TestUnderscoreAliasesAreEquivalent(t *testing.T) {
	h := testutil.NewHarness(t)

	data := h.Call(t, "entity_create_point", map[string]any{
		"coordinates": []any{1.0, 2.0},
	})
	e, ok := data.(*model.Entity)
	require.True(t, ok)
	assert.Equal(t, model.EntityPoint, e.EntityType)

	// The journal records the canonical dotted name.
	ops, err := h.Store.ListOperations(context.Background(), model.MainWorkspaceID)
	require.NoError(t, err)
	require.NotEmpty(t, ops)
	assert.Equal(t, "entity.create.point", ops[len(ops)-1].OperationType)
}

func TestCoordinateNormalization(t *testing.T) {
	h := testutil.NewHarness(t)

	// 2-element array pads z=0.
	e := h.CreatePoint(t, "", []float64{3, 4})
	coords := e.Properties["coordinates"].([]float64)
	assert.Equal(t, []float64{3, 4, 0}, coords)

	// {x, y, z} object form is equivalent.
	data := h.Call(t, "entity.create.point", map[string]any{
		"coordinates": map[string]any{"x": 3.0, "y": 4.0},
	})
	e2 := data.(*model.Entity)
	assert.Equal(t, []float64{3, 4, 0}, e2.Properties["coordinates"].([]float64))

	// Wrong dimension is an invalid parameter.
	werr := h.CallErr(t, "entity.create.point", map[string]any{
		"coordinates": []any{1.0},
	})
	assert.Equal(t, dispatch.CodeInvalidParams, werr.Code)
}

func TestMissingParameter(t *testing.T) {
	h := testutil.NewHarness(t)

	werr := h.CallErr(t, "entity.create.line", map[string]any{
		"start": []any{0.0, 0.0},
	})
	assert.Equal(t, dispatch.CodeInvalidParams, werr.Code)
	assert.Contains(t, werr.Message, "missing required parameter")
}

func TestInvalidGeometryMapsToInternalCode(t *testing.T) {
	h := testutil.NewHarness(t)

	// Out-of-bounds coordinate: InvalidGeometry shares the internal
	// error code on the wire.
	werr := h.CallErr(t, "entity.create.point", map[string]any{
		"coordinates": []any{2e6, 0.0},
	})
	assert.Equal(t, dispatch.CodeInvalidGeometry, werr.Code)

	// Degenerate line.
	werr = h.CallErr(t, "entity.create.line", map[string]any{
		"start": []any{1.0, 1.0},
		"end":   []any{1.0, 1.0},
	})
	assert.Equal(t, dispatch.CodeInvalidGeometry, werr.Code)
}

func TestEntityQueryAndList(t *testing.T) {
	h := testutil.NewHarness(t)

	e := h.CreatePoint(t, "", []float64{1, 2, 3})

	data := h.Call(t, "entity.query", map[string]any{"entity_id": e.EntityID})
	result := data.(map[string]any)
	queried := result["entity"].(*model.Entity)
	assert.Equal(t, e.EntityID, queried.EntityID)

	werr := h.CallErr(t, "entity.query", map[string]any{"entity_id": "main:point_ffffffff"})
	assert.Equal(t, dispatch.CodeEntityNotFound, werr.Code)
	errData := werr.Data.(map[string]any)
	assert.Equal(t, "Use entity.list to see available entities", errData["suggestion"])

	h.CreatePoint(t, "", []float64{4, 5, 6})
	listData := h.Call(t, "entity.list", map[string]any{"limit": 1})
	list := listData.(map[string]any)
	assert.EqualValues(t, 2, list["total_count"])
	assert.Len(t, list["entities"].([]*model.Entity), 1)
}

// Scenario: four boundary lines extruded into a closed manifold solid
// with the analytically expected volume.
func TestBoxExtrusion(t *testing.T) {
	h := testutil.NewHarness(t)

	lineIDs := h.CreateSquare(t, "", 10)
	data := h.Call(t, "solid.extrude", map[string]any{
		"entity_ids": lineIDs,
		"distance":   10.0,
	})
	result := data.(map[string]any)
	solid := result["entity"].(*model.Entity)
	props := result["solid_properties"].(*model.SolidProperties)

	assert.Equal(t, model.EntitySolid, solid.EntityType)
	assert.Greater(t, props.Volume, 950.0)
	assert.Less(t, props.Volume, 1050.0)
	assert.True(t, props.Topology.IsClosed)
	assert.True(t, props.Topology.IsManifold)
	assert.Equal(t, lineIDs, solid.ParentEntities)
	require.NotNil(t, solid.ShapeID)

	// The shape blob and derived properties are retrievable.
	ctx := context.Background()
	shape, err := h.Store.GetGeometryShape(ctx, *solid.ShapeID)
	require.NoError(t, err)
	assert.Equal(t, "extruded_solid", shape.ShapeType)

	stored, err := h.Store.GetSolidProperties(ctx, solid.EntityID)
	require.NoError(t, err)
	assert.InDelta(t, props.Volume, stored.Volume, 1e-9)

	// Parent lines now list the solid as a child.
	parent, err := h.Store.GetEntity(ctx, lineIDs[0])
	require.NoError(t, err)
	assert.Contains(t, parent.ChildEntities, solid.EntityID)
}

func TestSolidBooleanSubtract(t *testing.T) {
	h := testutil.NewHarness(t)

	big := h.Call(t, "solid.extrude", map[string]any{
		"entity_ids": h.CreateSquare(t, "", 10),
		"distance":   10.0,
	}).(map[string]any)["entity"].(*model.Entity)

	small := h.Call(t, "solid.extrude", map[string]any{
		"entity_ids": h.CreateSquare(t, "", 5),
		"distance":   5.0,
	}).(map[string]any)["entity"].(*model.Entity)

	data := h.Call(t, "solid.boolean", map[string]any{
		"entity_ids": []any{big.EntityID, small.EntityID},
		"operation":  "subtract",
	})
	props := data.(map[string]any)["solid_properties"].(*model.SolidProperties)
	assert.InDelta(t, 875, props.Volume, 1)
}

// Scenario: perpendicular satisfied, then a parallel constraint on the
// same pair conflicts, referencing the prior constraint.
func TestPerpendicularThenParallelConflict(t *testing.T) {
	h := testutil.NewHarness(t)

	l1 := h.CreateLine(t, "", []float64{0, 0}, []float64{10, 0})
	l2 := h.CreateLine(t, "", []float64{0, 0}, []float64{0, 10})

	data := h.Call(t, "constraint.apply", map[string]any{
		"constraint_type": "perpendicular",
		"entity_ids":      []any{l1.EntityID, l2.EntityID},
	})
	result := data.(map[string]any)
	con := result["constraint"].(*model.Constraint)
	assert.Equal(t, model.SatisfactionSatisfied, con.SatisfactionStatus)
	assert.Less(t, result["residual"].(float64), 1e-6)

	werr := h.CallErr(t, "constraint.apply", map[string]any{
		"constraint_type": "parallel",
		"entity_ids":      []any{l1.EntityID, l2.EntityID},
	})
	assert.Equal(t, dispatch.CodeConstraintConflict, werr.Code)
	assert.Contains(t, werr.Message, con.ConstraintID)
}

func TestConstraintOnMissingEntity(t *testing.T) {
	h := testutil.NewHarness(t)
	l1 := h.CreateLine(t, "", []float64{0, 0}, []float64{10, 0})

	werr := h.CallErr(t, "constraint.apply", map[string]any{
		"constraint_type": "perpendicular",
		"entity_ids":      []any{l1.EntityID, "main:line_ffffffff"},
	})
	assert.Equal(t, dispatch.CodeEntityNotFound, werr.Code)
}

func TestInvalidConstraintType(t *testing.T) {
	h := testutil.NewHarness(t)
	l1 := h.CreateLine(t, "", []float64{0, 0}, []float64{10, 0})

	werr := h.CallErr(t, "constraint.apply", map[string]any{
		"constraint_type": "symmetric",
		"entity_ids":      []any{l1.EntityID},
	})
	assert.Equal(t, dispatch.CodeInvalidConstraint, werr.Code)
}

func TestConstraintStatusSolves(t *testing.T) {
	h := testutil.NewHarness(t)

	l1 := h.CreateLine(t, "", []float64{0, 0}, []float64{10, 0})
	l2 := h.CreateLine(t, "", []float64{0, 0}, []float64{0, 10})
	h.Call(t, "constraint.apply", map[string]any{
		"constraint_type": "perpendicular",
		"entity_ids":      []any{l1.EntityID, l2.EntityID},
	})

	data := h.Call(t, "constraint.status", nil)
	status := data.(map[string]any)
	assert.True(t, status["converged"].(bool))
	// Two lines contribute 8 DOF, one constraint removes one.
	assert.Equal(t, 7, status["degrees_of_freedom"].(int))
}

func TestWorkspaceLifecycleThroughDispatch(t *testing.T) {
	h := testutil.NewHarness(t)

	data := h.Call(t, "workspace.create", map[string]any{
		"name":     "ws1",
		"agent_id": "agent_a",
	})
	w := data.(*model.Workspace)
	assert.Equal(t, "agent_a:ws1", w.WorkspaceID)

	h.Call(t, "workspace.switch", map[string]any{"workspace": "ws1", "agent_id": "agent_a"})

	// With the active workspace switched, creations land in the branch.
	e := h.Call(t, "entity.create.point", map[string]any{
		"agent_id":    "agent_a",
		"coordinates": []any{10.0, 20.0, 30.0},
	}).(*model.Entity)
	assert.Equal(t, "agent_a:ws1", e.WorkspaceID)

	statusData := h.Call(t, "workspace.status", map[string]any{"workspace": "ws1"})
	status := statusData.(map[string]any)
	assert.True(t, status["can_merge"].(bool))
	assert.Equal(t, model.BranchModified, status["workspace"].(*model.Workspace).BranchStatus)

	// Merge into main through the dispatcher.
	mergeData := h.Call(t, "workspace.merge", map[string]any{
		"source":   "ws1",
		"agent_id": "agent_a",
	})
	result := mergeData.(*merge.Result)
	assert.Equal(t, "success", result.MergeResult)
	assert.Equal(t, 1, result.EntitiesAdded)
	assert.Empty(t, result.Conflicts)

	// The copied entity landed under the main prefix with identical
	// properties, and the source branch is now merged.
	copied, err := h.Store.GetEntity(context.Background(), "main:"+e.EntityID[len("agent_a:ws1")+1:])
	require.NoError(t, err)
	assert.Equal(t, e.Properties, copied.Properties)

	source, err := h.Workspaces.Resolve(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Equal(t, model.BranchMerged, source.BranchStatus)
}

func TestHistoryUndoRedo(t *testing.T) {
	h := testutil.NewHarness(t)

	e := h.CreatePoint(t, "", []float64{1, 1})

	listData := h.Call(t, "history.list", nil)
	list := listData.(map[string]any)
	assert.True(t, list["can_undo"].(bool))
	assert.False(t, list["can_redo"].(bool))

	// Undo executes the inverse delete for a create.
	undoData := h.Call(t, "history.undo", nil)
	undo := undoData.(map[string]any)
	assert.True(t, undo["inverse_applied"].(bool))
	assert.True(t, undo["can_redo"].(bool))

	_, err := h.Store.GetEntity(context.Background(), e.EntityID)
	assert.Error(t, err)

	// Redo restores the cursor to its pre-undo position.
	redoData := h.Call(t, "history.redo", nil)
	redo := redoData.(map[string]any)
	assert.False(t, redo["can_redo"].(bool))
	assert.True(t, redo["can_undo"].(bool))

	// Nothing left to redo.
	werr := h.CallErr(t, "history.redo", nil)
	assert.Equal(t, dispatch.CodeInvalidParams, werr.Code)
}

func TestFileExportImportRoundTrip(t *testing.T) {
	h := testutil.NewHarness(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")

	h.CreatePoint(t, "", []float64{1, 2, 3})
	h.CreateLine(t, "", []float64{0, 0}, []float64{5, 0})

	exportData := h.Call(t, "file.export", map[string]any{
		"format": "json",
		"path":   path,
	})
	assert.EqualValues(t, 2, exportData.(map[string]any)["entity_count"])

	// Import into a fresh branch reproduces type and properties.
	h.Call(t, "workspace.create", map[string]any{"name": "imported", "agent_id": "agent_i"})
	importData := h.Call(t, "file.import", map[string]any{
		"format":    "json",
		"path":      path,
		"workspace": "imported",
	})
	assert.EqualValues(t, 2, importData.(map[string]any)["imported"])

	entities, err := h.Store.ListEntitiesByWorkspace(context.Background(), "agent_i:imported")
	require.NoError(t, err)
	types := map[model.EntityType]int{}
	for _, e := range entities {
		types[e.EntityType]++
	}
	assert.Equal(t, 1, types[model.EntityPoint])
	assert.Equal(t, 1, types[model.EntityLine])
}

func TestFileImportMissingFile(t *testing.T) {
	h := testutil.NewHarness(t)

	werr := h.CallErr(t, "file.import", map[string]any{
		"format": "json",
		"path":   filepath.Join(t.TempDir(), "missing.json"),
	})
	assert.Equal(t, dispatch.CodeFileNotFound, werr.Code)
}

func TestFileExportUnsupportedFormat(t *testing.T) {
	h := testutil.NewHarness(t)

	werr := h.CallErr(t, "file.export", map[string]any{
		"format": "obj",
		"path":   filepath.Join(t.TempDir(), "x.obj"),
	})
	assert.Equal(t, dispatch.CodeUnsupportedFormat, werr.Code)
}

// STL triangle counts must grow strictly with the quality preset.
func TestSTLExportQualityMonotonic(t *testing.T) {
	h := testutil.NewHarness(t)
	dir := t.TempDir()

	h.Call(t, "solid.extrude", map[string]any{
		"entity_ids": h.CreateSquare(t, "", 10),
		"distance":   10.0,
	})

	counts := make([]int, 0, 3)
	for _, quality := range []string{"preview", "standard", "high_quality"} {
		path := filepath.Join(dir, quality+".stl")
		h.Call(t, "file.export", map[string]any{
			"format":  "stl",
			"path":    path,
			"quality": quality,
		})
		f, err := os.Open(path)
		require.NoError(t, err)
		count, err := fileio.ReadSTLBinaryCount(f)
		f.Close()
		require.NoError(t, err)
		counts = append(counts, count)
	}
	assert.Less(t, counts[0], counts[1])
	assert.Less(t, counts[1], counts[2])
}

func TestSTEPExportDefaults(t *testing.T) {
	h := testutil.NewHarness(t)
	path := filepath.Join(t.TempDir(), "out.step")

	h.Call(t, "solid.extrude", map[string]any{
		"entity_ids": h.CreateSquare(t, "", 10),
		"distance":   10.0,
	})

	data := h.Call(t, "file.export", map[string]any{
		"format": "step",
		"path":   path,
	})
	result := data.(map[string]any)
	assert.Equal(t, "AP214", result["schema"])
	assert.Equal(t, "mm", result["units"])
	assert.Equal(t, false, result["data_loss"])
}

func TestScenarioRunBoxExtrusion(t *testing.T) {
	h := testutil.NewHarness(t)

	data := h.Call(t, "scenario.run", map[string]any{"scenario": "box_extrusion"})
	result := data.(map[string]any)
	assert.Len(t, result["lines"].([]any), 4)

	solid := result["solid"].(map[string]any)
	props := solid["solid_properties"].(*model.SolidProperties)
	assert.InDelta(t, 1000, props.Volume, 50)

	werr := h.CallErr(t, "scenario.run", map[string]any{"scenario": "unknown"})
	assert.Equal(t, dispatch.CodeInvalidParams, werr.Code)
}

func TestParseRequest(t *testing.T) {
	_, derr := dispatch.ParseRequest([]byte("{"))
	require.NotNil(t, derr)
	assert.Equal(t, dispatch.CodeParseError, derr.Code)

	_, derr = dispatch.ParseRequest([]byte(`{"jsonrpc":"1.0","method":"x","id":1}`))
	require.NotNil(t, derr)
	assert.Equal(t, dispatch.CodeInvalidRequest, derr.Code)

	_, derr = dispatch.ParseRequest([]byte(`{"jsonrpc":"2.0","id":1}`))
	require.NotNil(t, derr)
	assert.Equal(t, dispatch.CodeInvalidRequest, derr.Code)

	req, derr := dispatch.ParseRequest([]byte(`{"jsonrpc":"2.0","method":"entity.list","id":7}`))
	require.Nil(t, derr)
	assert.Equal(t, "entity.list", req.Method)
}

func TestJournalRecordsFailures(t *testing.T) {
	h := testutil.NewHarness(t)

	h.CallErr(t, "entity.create.line", map[string]any{
		"start": []any{1.0, 1.0},
		"end":   []any{1.0, 1.0},
	})

	ops, err := h.Store.ListOperations(context.Background(), model.MainWorkspaceID)
	require.NoError(t, err)
	require.NotEmpty(t, ops)
	last := ops[len(ops)-1]
	assert.Equal(t, model.ResultError, last.ResultStatus)
	assert.NotEmpty(t, last.ErrorMessage)
}
