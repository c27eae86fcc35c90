// Package dispatch implements the operation dispatcher: the command
// kernel that parses JSON-RPC requests, routes them through a static
// method table, maps handler failures onto the wire error taxonomy,
// journals every executed operation, and reports structured results
// with execution timing.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/constraint"
	"github.com/BaSui01/agentcad/cad/geometry"
	"github.com/BaSui01/agentcad/cad/history"
	"github.com/BaSui01/agentcad/cad/merge"
	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/cad/store"
	"github.com/BaSui01/agentcad/cad/workspace"
	"github.com/BaSui01/agentcad/internal/metrics"
)

// DefaultAgentID is charged with operations that arrive without an
// explicit agent_id parameter.
const DefaultAgentID = "default"

// Timeouts fixed by the concurrency model: every handler call carries a
// deadline, with export operations allowed a longer one.
const (
	DefaultCallTimeout = 10 * time.Second
	ExportCallTimeout  = 30 * time.Second
)

// handlerFunc is one entry in the method table. Handlers return raw
// result data; the dispatcher owns envelope construction, error
// mapping, journaling, and timing.
type handlerFunc func(ctx context.Context, c *call) (any, error)

// call carries per-request state into a handler.
type call struct {
	params      Params
	agentID     string
	workspaceID string // resolved canonical id
	method      string

	// journal bookkeeping, filled in by handlers
	inputEntities  []string
	outputEntities []string
	undoData       map[string]any
	historyEntry   *history.Entry
}

// Config configures a Dispatcher.
type Config struct {
	CallTimeout   time.Duration
	ExportTimeout time.Duration
}

// Dispatcher is the command kernel. It owns the method table and every
// collaborator a handler needs; all fields are threaded in from the
// entry point, never reached through package state.
type Dispatcher struct {
	st        *store.Store
	kernel    *geometry.Kernel
	ws        *workspace.Manager
	engine    *merge.Engine
	hist      *history.Manager
	solver    *constraint.Solver
	logger    *zap.Logger
	collector *metrics.Collector

	callTimeout   time.Duration
	exportTimeout time.Duration

	handlers map[string]handlerFunc
	methods  []string // sorted canonical names, for unknown-method errors
}

// NewDispatcher wires a Dispatcher. collector may be nil (metrics disabled).
func NewDispatcher(st *store.Store, kernel *geometry.Kernel, ws *workspace.Manager, engine *merge.Engine, hist *history.Manager, logger *zap.Logger, collector *metrics.Collector, cfg Config) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = ExportCallTimeout
	}
	d := &Dispatcher{
		st:            st,
		kernel:        kernel,
		ws:            ws,
		engine:        engine,
		hist:          hist,
		solver:        constraint.NewSolver(),
		logger:        logger.With(zap.String("component", "dispatcher")),
		collector:     collector,
		callTimeout:   cfg.CallTimeout,
		exportTimeout: cfg.ExportTimeout,
	}
	d.buildMethodTable()
	return d
}

// buildMethodTable enumerates every operation once. The underscore
// spellings of the create methods are explicit aliases for the dotted
// canonical forms; any third spelling is deprecated on sight.
func (d *Dispatcher) buildMethodTable() {
	canonical := map[string]handlerFunc{
		"entity.create.point":        d.handleCreatePoint,
		"entity.create.line":         d.handleCreateLine,
		"entity.create.circle":       d.handleCreateCircle,
		"entity.create.arc":          d.handleCreateArc,
		"entity.query":               d.handleEntityQuery,
		"entity.list":                d.handleEntityList,
		"entity.delete":              d.handleEntityDelete,
		"constraint.apply":           d.handleConstraintApply,
		"constraint.status":          d.handleConstraintStatus,
		"solid.extrude":              d.handleSolidExtrude,
		"solid.boolean":              d.handleSolidBoolean,
		"solid.tessellate":           d.handleSolidTessellate,
		"workspace.create":           d.handleWorkspaceCreate,
		"workspace.list":             d.handleWorkspaceList,
		"workspace.switch":           d.handleWorkspaceSwitch,
		"workspace.status":           d.handleWorkspaceStatus,
		"workspace.merge":            d.handleWorkspaceMerge,
		"workspace.resolve_conflict": d.handleWorkspaceResolveConflict,
		"history.list":               d.handleHistoryList,
		"history.undo":               d.handleHistoryUndo,
		"history.redo":               d.handleHistoryRedo,
		"file.export":                d.handleFileExport,
		"file.import":                d.handleFileImport,
		"agent.metrics":              d.handleAgentMetrics,
		"scenario.run":               d.handleScenarioRun,
	}

	aliases := map[string]string{
		"entity_create_point":  "entity.create.point",
		"entity_create_line":   "entity.create.line",
		"entity_create_circle": "entity.create.circle",
		"entity_create_arc":    "entity.create.arc",
	}

	d.handlers = make(map[string]handlerFunc, len(canonical)+len(aliases))
	d.methods = make([]string, 0, len(canonical))
	for name, h := range canonical {
		d.handlers[name] = h
		d.methods = append(d.methods, name)
	}
	sort.Strings(d.methods)
	for alias, target := range aliases {
		d.handlers[alias] = d.handlers[target]
	}
}

// Methods returns the sorted canonical method names.
func (d *Dispatcher) Methods() []string {
	out := make([]string, len(d.methods))
	copy(out, d.methods)
	return out
}

// Dispatch executes one request end to end and returns the wire
// response. It never panics: a handler panic is converted into an
// internal error result.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	started := time.Now()

	handler, ok := d.handlers[req.Method]
	if !ok {
		d.record(req.Method, "error", time.Since(started))
		return errorResponse(req.ID, New(CodeMethodNotFound,
			fmt.Sprintf("unknown method %q", req.Method)).WithValue(d.Methods()))
	}

	c := &call{
		params:  Params(req.Params),
		agentID: DefaultAgentID,
		method:  canonicalName(req.Method),
	}
	if id, ok := req.Params["agent_id"].(string); ok && id != "" {
		c.agentID = id
	}

	timeout := d.callTimeout
	if strings.HasPrefix(c.method, "file.export") {
		timeout = d.exportTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := d.run(ctx, handler, c)
	elapsed := time.Since(started)

	if err != nil {
		derr := d.mapError(ctx, err)
		d.journal(c, model.ResultError, derr, elapsed)
		d.record(c.method, "error", elapsed)
		d.logger.Warn("operation failed",
			zap.String("operation", c.method),
			zap.String("agent_id", c.agentID),
			zap.String("workspace_id", c.workspaceID),
			zap.Int("code", int(derr.Code)),
			zap.Error(derr))
		return errorResponse(req.ID, derr)
	}

	d.journal(c, model.ResultSuccess, nil, elapsed)
	if c.historyEntry != nil {
		d.hist.For(c.workspaceID).Add(*c.historyEntry)
	}
	d.record(c.method, "success", elapsed)
	d.logger.Debug("operation succeeded",
		zap.String("operation", c.method),
		zap.String("agent_id", c.agentID),
		zap.String("workspace_id", c.workspaceID),
		zap.Duration("elapsed", elapsed))

	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      req.ID,
		Result: &Result{
			Status: "success",
			Data:   data,
			Metadata: ResultMetadata{
				OperationType:   c.method,
				ExecutionTimeMs: elapsed.Milliseconds(),
			},
		},
	}
}

// run executes the handler behind a panic guard.
func (d *Dispatcher) run(ctx context.Context, handler handlerFunc, c *call) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				zap.String("operation", c.method),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = New(CodeInternalError, fmt.Sprintf("internal error in %s: %v", c.method, r))
		}
	}()
	return handler(ctx, c)
}

// mapError converts any handler failure into a wire *Error, applying
// the keyword classification to plain value errors.
func (d *Dispatcher) mapError(ctx context.Context, err error) *Error {
	if derr, ok := err.(*Error); ok {
		if derr.Suggestion == "" {
			derr.Suggestion = suggestionFor(derr.Code)
		}
		return derr
	}
	if ctx.Err() == context.DeadlineExceeded {
		return New(CodeTimeout, "operation timed out").WithRetryable(true).WithCause(err)
	}
	if gerr, ok := err.(*geometry.Error); ok {
		return NewWithSuggestion(classifyValueError(gerr.Message), gerr.Message).WithCause(gerr)
	}
	return NewWithSuggestion(classifyValueError(err.Error()), err.Error()).WithCause(err)
}

// journal appends the operation to the workspace journal. Journal
// failures are logged, never surfaced: the operation result stands.
func (d *Dispatcher) journal(c *call, status model.ResultStatus, derr *Error, elapsed time.Duration) {
	if c.workspaceID == "" {
		return // nothing workspace-scoped happened
	}
	op := &model.Operation{
		OperationID:     "op_" + uuid.NewString()[:8],
		OperationType:   c.method,
		WorkspaceID:     c.workspaceID,
		AgentID:         c.agentID,
		Timestamp:       time.Now().UTC(),
		InputParameters: map[string]any(c.params),
		InputEntities:   c.inputEntities,
		OutputEntities:  c.outputEntities,
		ResultStatus:    status,
		ExecutionTimeMs: elapsed.Milliseconds(),
		UndoData:        c.undoData,
	}
	if derr != nil {
		op.ErrorCode = fmt.Sprintf("%d", derr.Code)
		op.ErrorMessage = derr.Message
	}
	// The journal write runs on a fresh context so a handler timeout
	// cannot suppress the record of its own failure.
	jctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.st.LogOperation(jctx, op); err != nil {
		d.logger.Error("journaling operation failed",
			zap.String("operation", c.method),
			zap.String("workspace_id", c.workspaceID),
			zap.Error(err))
	}
}

func (d *Dispatcher) record(operation, status string, elapsed time.Duration) {
	if d.collector != nil {
		d.collector.RecordDispatch(operation, status, elapsed)
	}
}

// resolveWorkspace resolves the request's workspace parameter (canonical
// id, short name, or omitted, defaulting to the caller's active
// workspace) and stores the canonical id on the call.
func (d *Dispatcher) resolveWorkspace(ctx context.Context, c *call) (*model.Workspace, error) {
	ref := c.params.String("workspace", "")
	if ref == "" {
		ref = d.ws.Active(c.agentID)
	}
	w, err := d.ws.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.workspaceID = w.WorkspaceID
	return w, nil
}

func canonicalName(method string) string {
	switch method {
	case "entity_create_point":
		return "entity.create.point"
	case "entity_create_line":
		return "entity.create.line"
	case "entity_create_circle":
		return "entity.create.circle"
	case "entity_create_arc":
		return "entity.create.arc"
	}
	return method
}

func errorResponse(id any, derr *Error) *Response {
	we := &WireError{Code: derr.Code, Message: derr.Message}
	data := map[string]any{}
	if derr.Field != "" {
		data["field"] = derr.Field
	}
	if derr.Value != nil {
		data["value"] = derr.Value
	}
	if derr.Suggestion != "" {
		data["suggestion"] = derr.Suggestion
	}
	data["recoverable"] = derr.Retryable
	we.Data = data
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: we}
}

// mintEntityID builds an id in the canonical
// "<workspace_id>:<type>_<8-hex>" form.
func mintEntityID(workspaceID string, t model.EntityType) string {
	return fmt.Sprintf("%s:%s_%s", workspaceID, t, uuid.NewString()[:8])
}
