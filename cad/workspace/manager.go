// Package workspace implements the workspace directory: short-name
// resolution, the active-workspace pointer agents operate against by
// default, and the branch lifecycle helpers the dispatcher and merge
// engine share.
package workspace

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/cad/store"
)

// Manager resolves workspace references (full id, name, or %:name
// short form) against the store and tracks each agent's active
// workspace pointer in memory.
type Manager struct {
	st *store.Store

	mu     sync.Mutex
	active map[string]string // agent_id -> workspace_id
}

// New returns a Manager bound to a store.
func New(st *store.Store) *Manager {
	return &Manager{st: st, active: make(map[string]string)}
}

// Create mints a new agent-owned branch workspace based on
// baseWorkspaceID. Branch ids take the "<owning_agent_id>:<name>" form,
// and the branch records the base's latest operation as its divergence
// point. The branch starts empty: entities are never copied from base.
func (m *Manager) Create(ctx context.Context, name string, baseWorkspaceID, owningAgentID string) (*model.Workspace, error) {
	if name == "" {
		return nil, fmt.Errorf("missing required parameter: name")
	}
	if owningAgentID == "" {
		owningAgentID = "agent_" + uuid.NewString()[:8]
	}
	if _, err := m.st.GetWorkspace(ctx, baseWorkspaceID); err != nil {
		return nil, err
	}

	var divergence *string
	ops, err := m.st.ListOperations(ctx, baseWorkspaceID)
	if err != nil {
		return nil, err
	}
	if len(ops) > 0 {
		id := ops[len(ops)-1].OperationID
		divergence = &id
	}

	w := &model.Workspace{
		WorkspaceID:     owningAgentID + ":" + name,
		WorkspaceName:   name,
		WorkspaceType:   model.WorkspaceAgentBranch,
		BaseWorkspaceID: &baseWorkspaceID,
		OwningAgentID:   &owningAgentID,
		CreatedAt:       time.Now().UTC(),
		BranchStatus:    model.BranchClean,
		DivergencePoint: divergence,
	}
	if err := m.st.CreateWorkspace(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Resolve looks up a workspace reference. The literal id is tried
// first; when that fails and the reference carries no ":", the lookup
// retries with the "%:name" suffix pattern, which is how agents address
// branch workspaces by short name while the store keeps canonical ids.
func (m *Manager) Resolve(ctx context.Context, ref string) (*model.Workspace, error) {
	if ref == "" {
		ref = model.MainWorkspaceID
	}
	w, err := m.st.GetWorkspace(ctx, ref)
	if err != nil && !strings.Contains(ref, ":") {
		if retry, rerr := m.st.GetWorkspace(ctx, "%:"+ref); rerr == nil {
			return retry, nil
		}
	}
	return w, err
}

// List returns every workspace known to the store.
func (m *Manager) List(ctx context.Context) ([]*model.Workspace, error) {
	return m.st.ListWorkspaces(ctx)
}

// Switch sets agentID's active workspace pointer, after confirming the
// reference resolves to a real workspace.
func (m *Manager) Switch(ctx context.Context, agentID, ref string) (*model.Workspace, error) {
	w, err := m.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.active[agentID] = w.WorkspaceID
	m.mu.Unlock()
	return w, nil
}

// Active returns agentID's active workspace id, defaulting to main.
func (m *Manager) Active(agentID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.active[agentID]; ok {
		return id
	}
	return model.MainWorkspaceID
}

// MarkModified transitions a clean workspace to modified, the way any
// mutating operation dirties a branch before it can be merged or must
// be resolved first.
func (m *Manager) MarkModified(ctx context.Context, workspaceID string) error {
	w, err := m.st.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if w.BranchStatus == model.BranchClean {
		return m.st.UpdateWorkspaceStatus(ctx, workspaceID, model.BranchModified, nil)
	}
	return nil
}

// Status reports a workspace's current lifecycle status.
func (m *Manager) Status(ctx context.Context, ref string) (*model.Workspace, error) {
	return m.Resolve(ctx, ref)
}

// IsShortName reports whether ref uses the "%:name" short-reference
// syntax rather than a full workspace id or exact name.
func IsShortName(ref string) bool {
	return strings.HasPrefix(ref, "%:")
}
