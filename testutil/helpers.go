// Package testutil provides shared test helpers: an in-memory store,
// a fully wired dispatcher, and geometry fixtures, so package tests
// don't each rebuild the same scaffolding.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/dispatch"
	"github.com/BaSui01/agentcad/cad/geometry"
	"github.com/BaSui01/agentcad/cad/history"
	"github.com/BaSui01/agentcad/cad/merge"
	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/cad/store"
	"github.com/BaSui01/agentcad/cad/workspace"
)

// NewTestStore opens a throwaway in-memory sqlite store. Each call gets
// its own database, so tests never share state.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.Config{
		Driver:      store.DriverSQLite,
		DSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Logger:      zap.NewNop(),
		SkipMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.AutoMigrateForTest(context.Background()))
	return st
}

// Harness bundles the wired core a dispatcher test needs.
type Harness struct {
	Store      *store.Store
	Kernel     *geometry.Kernel
	Workspaces *workspace.Manager
	Engine     *merge.Engine
	History    *history.Manager
	Dispatcher *dispatch.Dispatcher
}

// NewHarness wires a dispatcher over a fresh in-memory store.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	st := NewTestStore(t)
	kernel := geometry.New()
	ws := workspace.New(st)
	engine := merge.New(st)
	hist := history.NewManager()
	d := dispatch.NewDispatcher(st, kernel, ws, engine, hist, zap.NewNop(), nil, dispatch.Config{})
	return &Harness{
		Store:      st,
		Kernel:     kernel,
		Workspaces: ws,
		Engine:     engine,
		History:    hist,
		Dispatcher: d,
	}
}

// Call dispatches a method and requires a successful result, returning
// its data payload.
func (h *Harness) Call(t *testing.T, method string, params map[string]any) any {
	t.Helper()
	resp := h.Dispatcher.Dispatch(context.Background(), &dispatch.Request{
		JSONRPC: dispatch.JSONRPCVersion,
		Method:  method,
		Params:  params,
		ID:      1,
	})
	require.Nil(t, resp.Error, "method %s failed: %+v", method, resp.Error)
	require.NotNil(t, resp.Result)
	return resp.Result.Data
}

// CallErr dispatches a method and requires a wire error, returning it.
func (h *Harness) CallErr(t *testing.T, method string, params map[string]any) *dispatch.WireError {
	t.Helper()
	resp := h.Dispatcher.Dispatch(context.Background(), &dispatch.Request{
		JSONRPC: dispatch.JSONRPCVersion,
		Method:  method,
		Params:  params,
		ID:      1,
	})
	require.NotNil(t, resp.Error, "method %s unexpectedly succeeded", method)
	return resp.Error
}

// CreateLine creates a line entity through the dispatcher and returns it.
func (h *Harness) CreateLine(t *testing.T, workspaceID string, start, end []float64) *model.Entity {
	t.Helper()
	data := h.Call(t, "entity.create.line", map[string]any{
		"workspace": workspaceID,
		"start":     toAny(start),
		"end":       toAny(end),
	})
	e, ok := data.(*model.Entity)
	require.True(t, ok, "entity.create.line returned %T", data)
	return e
}

// CreatePoint creates a point entity through the dispatcher and returns it.
func (h *Harness) CreatePoint(t *testing.T, workspaceID string, coords []float64) *model.Entity {
	t.Helper()
	data := h.Call(t, "entity.create.point", map[string]any{
		"workspace":   workspaceID,
		"coordinates": toAny(coords),
	})
	e, ok := data.(*model.Entity)
	require.True(t, ok, "entity.create.point returned %T", data)
	return e
}

// SquareLoop returns the four line segments of an axis-aligned square
// with the given side length, in loop order.
func SquareLoop(side float64) [][2][]float64 {
	return [][2][]float64{
		{{0, 0}, {side, 0}},
		{{side, 0}, {side, side}},
		{{side, side}, {0, side}},
		{{0, side}, {0, 0}},
	}
}

// CreateSquare creates the four boundary lines of a square and returns
// their ids in loop order.
func (h *Harness) CreateSquare(t *testing.T, workspaceID string, side float64) []string {
	t.Helper()
	ids := make([]string, 0, 4)
	for _, seg := range SquareLoop(side) {
		ids = append(ids, h.CreateLine(t, workspaceID, seg[0], seg[1]).EntityID)
	}
	return ids
}

func toAny(fs []float64) []any {
	out := make([]any, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}
