package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/dispatch"
	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/internal/metrics"
	"github.com/BaSui01/agentcad/internal/pool"
)

// Concurrency bounds fixed by the controller contract.
const (
	MinConcurrentAgents     = 1
	MaxConcurrentAgents     = 50
	DefaultConcurrentAgents = 10
)

// Config configures a Controller.
type Config struct {
	MaxConcurrentAgents int
	MessageQueueDepth   int
}

// RoleViolationError marks an operation blocked before handler entry
// because the agent's role does not permit it.
type RoleViolationError struct {
	AgentID   string
	Role      string
	Operation string
}

func (e *RoleViolationError) Error() string {
	return fmt.Sprintf("role violation: agent %s (role %s) may not execute %s", e.AgentID, e.Role, e.Operation)
}

// Controller is the outer orchestration layer: it owns the agent
// registry, enforces roles ahead of every dispatch, runs operations on
// a bounded goroutine pool, and keeps per-agent learning metrics.
type Controller struct {
	dispatcher *dispatch.Dispatcher
	roles      *RoleRegistry
	hub        *Hub
	pool       *pool.GoroutinePool
	logger     *zap.Logger
	collector  *metrics.Collector

	queueDepth int

	mu     sync.RWMutex
	agents map[string]*agentState
}

// agentState pairs the agent record with its per-agent execution lock,
// which keeps a single agent's operation stream strictly sequential
// even when submissions race.
type agentState struct {
	mu    sync.Mutex
	agent *model.Agent
}

// New wires a Controller. collector may be nil.
func New(dispatcher *dispatch.Dispatcher, roles *RoleRegistry, logger *zap.Logger, collector *metrics.Collector, cfg Config) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.MaxConcurrentAgents
	if workers == 0 {
		workers = DefaultConcurrentAgents
	}
	if workers < MinConcurrentAgents || workers > MaxConcurrentAgents {
		return nil, fmt.Errorf("max_concurrent_agents %d outside [%d, %d]", workers, MinConcurrentAgents, MaxConcurrentAgents)
	}

	p := pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers:  workers,
		QueueSize:   workers * 4,
		IdleTimeout: 60 * time.Second,
	})

	return &Controller{
		dispatcher: dispatcher,
		roles:      roles,
		hub:        NewHub(logger),
		pool:       p,
		logger:     logger.With(zap.String("component", "controller")),
		collector:  collector,
		queueDepth: cfg.MessageQueueDepth,
		agents:     make(map[string]*agentState),
	}, nil
}

// Close drains the worker pool.
func (c *Controller) Close() {
	c.pool.Close()
}

// CreateAgent registers a new agent under roleName, bound to
// workspaceID as its primary workspace. The workspace is created
// through the dispatcher when it does not exist yet, so agent setup is
// journaled like any other operation.
func (c *Controller) CreateAgent(ctx context.Context, agentID, roleName, workspaceID string) (*model.Agent, error) {
	role, ok := c.roles.Get(roleName)
	if !ok {
		return nil, fmt.Errorf("unknown role %q (known: %v)", roleName, c.roles.Names())
	}

	c.mu.Lock()
	if _, dup := c.agents[agentID]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("agent %q already exists", agentID)
	}
	// Reserve the id before the workspace round-trip so concurrent
	// creates with the same id cannot both pass the duplicate check.
	c.agents[agentID] = nil
	c.mu.Unlock()

	rollback := func() {
		c.mu.Lock()
		delete(c.agents, agentID)
		c.mu.Unlock()
	}

	if workspaceID != model.MainWorkspaceID {
		resp := c.dispatcher.Dispatch(ctx, &dispatch.Request{
			JSONRPC: dispatch.JSONRPCVersion,
			Method:  "workspace.status",
			Params:  map[string]any{"workspace": workspaceID, "agent_id": agentID},
		})
		if resp.Error != nil {
			resp = c.dispatcher.Dispatch(ctx, &dispatch.Request{
				JSONRPC: dispatch.JSONRPCVersion,
				Method:  "workspace.create",
				Params:  map[string]any{"name": workspaceID, "agent_id": agentID},
			})
			if resp.Error != nil {
				rollback()
				return nil, fmt.Errorf("creating workspace %q: %s", workspaceID, resp.Error.Message)
			}
			if w, ok := resp.Result.Data.(*model.Workspace); ok {
				workspaceID = w.WorkspaceID
			}
		}
	}

	now := time.Now().UTC()
	agent := &model.Agent{
		AgentID:     agentID,
		Role:        roleName,
		WorkspaceID: workspaceID,
		Status:      model.AgentIdle,
		CreatedAt:   now,
		LastActive:  now,
	}

	c.mu.Lock()
	c.agents[agentID] = &agentState{agent: agent}
	c.mu.Unlock()
	c.hub.Register(agentID, c.queueDepth)

	c.recordTransition(agentID, "", model.AgentIdle)
	c.logger.Info("agent created",
		zap.String("agent_id", agentID),
		zap.String("role", role.Name),
		zap.String("workspace_id", workspaceID))
	return agent, nil
}

// ShutdownAgent terminates an agent, removes it from the registry, and
// discards its message queue.
func (c *Controller) ShutdownAgent(agentID string) error {
	c.mu.Lock()
	state, ok := c.agents[agentID]
	if ok {
		delete(c.agents, agentID)
	}
	c.mu.Unlock()
	if !ok || state == nil {
		return fmt.Errorf("agent not found: %s", agentID)
	}

	state.mu.Lock()
	prev := state.agent.Status
	state.agent.Status = model.AgentTerminated
	state.mu.Unlock()

	c.hub.Unregister(agentID)
	c.recordTransition(agentID, prev, model.AgentTerminated)
	c.logger.Info("agent terminated", zap.String("agent_id", agentID))
	return nil
}

// Agent returns a snapshot of an agent record.
func (c *Controller) Agent(agentID string) (*model.Agent, error) {
	state, err := c.state(agentID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	snapshot := *state.agent
	return &snapshot, nil
}

// ListAgents returns a snapshot of every registered agent.
func (c *Controller) ListAgents() []*model.Agent {
	c.mu.RLock()
	states := make([]*agentState, 0, len(c.agents))
	for _, s := range c.agents {
		if s != nil {
			states = append(states, s)
		}
	}
	c.mu.RUnlock()

	out := make([]*model.Agent, 0, len(states))
	for _, s := range states {
		s.mu.Lock()
		snapshot := *s.agent
		s.mu.Unlock()
		out = append(out, &snapshot)
	}
	return out
}

func (c *Controller) state(agentID string) (*agentState, error) {
	c.mu.RLock()
	state, ok := c.agents[agentID]
	c.mu.RUnlock()
	if !ok || state == nil {
		return nil, fmt.Errorf("agent not found: %s", agentID)
	}
	return state, nil
}

// ExecuteOperation runs one operation on behalf of an agent: role
// check first (a violation is blocked before handler entry but still
// counts against the agent's metrics), then dispatch, then metric and
// status bookkeeping.
func (c *Controller) ExecuteOperation(ctx context.Context, agentID, operation string, params map[string]any) (*dispatch.Response, error) {
	state, err := c.state(agentID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	agent := state.agent
	if agent.Status == model.AgentTerminated {
		return nil, fmt.Errorf("agent %s is terminated", agentID)
	}

	role, _ := c.roles.Get(agent.Role)
	started := time.Now()

	c.recordTransition(agentID, agent.Status, model.AgentWorking)
	agent.Status = model.AgentWorking

	if role == nil || !role.CanExecute(operation) {
		verr := &RoleViolationError{AgentID: agentID, Role: agent.Role, Operation: operation}
		c.finishOperation(agent, operation, started, false, verr.Error())
		c.logger.Warn("role violation blocked",
			zap.String("agent_id", agentID),
			zap.String("role", agent.Role),
			zap.String("operation", operation))
		return nil, verr
	}

	if params == nil {
		params = map[string]any{}
	}
	params["agent_id"] = agentID

	resp := c.dispatcher.Dispatch(ctx, &dispatch.Request{
		JSONRPC: dispatch.JSONRPCVersion,
		Method:  operation,
		Params:  params,
	})

	if resp.Error != nil {
		c.finishOperation(agent, operation, started, false, resp.Error.Message)
		return resp, nil
	}

	c.finishOperation(agent, operation, started, true, "")
	c.trackCreatedEntities(agent, resp)
	return resp, nil
}

// finishOperation updates counters, history, the error log, and the
// terminal status for one completed operation. Callers hold the agent
// lock.
func (c *Controller) finishOperation(agent *model.Agent, operation string, started time.Time, success bool, errMsg string) {
	duration := time.Since(started)
	agent.OperationCount++
	agent.LastActive = time.Now().UTC()
	agent.OperationHistory = append(agent.OperationHistory, model.OperationHistoryEntry{
		Timestamp: started.UTC(),
		Success:   success,
		Duration:  duration,
		Operation: operation,
	})

	status := model.AgentIdle
	result := "success"
	if success {
		agent.SuccessCount++
	} else {
		agent.ErrorCount++
		agent.RecordError(errMsg)
		status = model.AgentError
		result = "error"
	}
	c.recordTransition(agent.AgentID, model.AgentWorking, status)
	agent.Status = status

	if c.collector != nil {
		c.collector.RecordAgentExecution(agent.AgentID, agent.Role, result, duration)
		stats := c.pool.Stats()
		c.collector.RecordPoolStats("controller", stats.Workers, stats.Active, stats.Queued)
	}
}

// trackCreatedEntities pulls any created entity ids out of a successful
// result so the agent record lists everything it built.
func (c *Controller) trackCreatedEntities(agent *model.Agent, resp *dispatch.Response) {
	if resp.Result == nil {
		return
	}
	switch data := resp.Result.Data.(type) {
	case *model.Entity:
		agent.CreatedEntities = append(agent.CreatedEntities, data.EntityID)
	case map[string]any:
		if e, ok := data["entity"].(*model.Entity); ok {
			agent.CreatedEntities = append(agent.CreatedEntities, e.EntityID)
		}
	}
}

// Submit queues an operation for asynchronous execution on the worker
// pool and returns a channel resolving to its response. Independent
// agents run concurrently up to the pool bound; a single agent's
// submissions serialize on its state lock.
func (c *Controller) Submit(ctx context.Context, agentID, operation string, params map[string]any) (<-chan *dispatch.Response, error) {
	if _, err := c.state(agentID); err != nil {
		return nil, err
	}

	out := make(chan *dispatch.Response, 1)
	err := c.pool.Submit(ctx, func(taskCtx context.Context) error {
		defer close(out)
		resp, err := c.ExecuteOperation(taskCtx, agentID, operation, params)
		if err != nil {
			out <- &dispatch.Response{
				JSONRPC: dispatch.JSONRPCVersion,
				Error:   &dispatch.WireError{Code: dispatch.CodeRoleViolation, Message: err.Error()},
			}
			return err
		}
		out <- resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage validates and routes one inter-agent message.
func (c *Controller) SendMessage(ctx context.Context, from, to string, t model.MessageType, content map[string]any) (*model.AgentMessage, error) {
	if _, err := c.state(from); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if to != model.BroadcastRecipient {
		if _, err := c.state(to); err != nil {
			return nil, fmt.Errorf("recipient: %w", err)
		}
	}
	return c.hub.Send(ctx, from, to, t, content)
}

// GetMessages drains an agent's inbound queue.
func (c *Controller) GetMessages(agentID string, markRead bool) ([]*model.AgentMessage, error) {
	if _, err := c.state(agentID); err != nil {
		return nil, err
	}
	return c.hub.Drain(agentID, markRead)
}

func (c *Controller) recordTransition(agentID string, from, to model.AgentStatus) {
	if c.collector != nil {
		c.collector.RecordAgentStateTransition(agentID, string(from), string(to))
	}
}
