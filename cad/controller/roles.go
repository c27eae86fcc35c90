// Package controller implements the multi-agent controller: the agent
// registry with role enforcement, concurrent dispatch through a bounded
// worker pool, per-agent learning metrics, rule-based task
// decomposition with dependency-ordered execution, and the inter-agent
// message hub.
package controller

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/BaSui01/agentcad/cad/model"
)

// RoleRegistry holds the immutable role templates loaded at startup.
type RoleRegistry struct {
	roles map[string]*model.RoleTemplate
}

// LoadRoles reads the repository-local role-template JSON file: an
// array of {name, description, allowed_operations,
// forbidden_operations, example_tasks} objects. A missing file is a
// clear startup error, and templates whose allowed and forbidden sets
// intersect are rejected.
func LoadRoles(path string) (*RoleRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("role template file %s is not readable: %w", path, err)
	}

	var templates []*model.RoleTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("role template file %s is malformed: %w", path, err)
	}

	reg := &RoleRegistry{roles: make(map[string]*model.RoleTemplate, len(templates))}
	for _, t := range templates {
		if err := validateRole(t); err != nil {
			return nil, fmt.Errorf("role template %q: %w", t.Name, err)
		}
		if _, dup := reg.roles[t.Name]; dup {
			return nil, fmt.Errorf("role template %q is defined twice", t.Name)
		}
		reg.roles[t.Name] = t
	}
	return reg, nil
}

// NewRoleRegistry builds a registry from in-memory templates, for tests
// and embedded defaults.
func NewRoleRegistry(templates []*model.RoleTemplate) (*RoleRegistry, error) {
	reg := &RoleRegistry{roles: make(map[string]*model.RoleTemplate, len(templates))}
	for _, t := range templates {
		if err := validateRole(t); err != nil {
			return nil, fmt.Errorf("role template %q: %w", t.Name, err)
		}
		reg.roles[t.Name] = t
	}
	return reg, nil
}

func validateRole(t *model.RoleTemplate) error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.AllowedOperations) == 0 {
		return fmt.Errorf("allowed_operations must be non-empty")
	}
	allowed := make(map[string]struct{}, len(t.AllowedOperations))
	for _, op := range t.AllowedOperations {
		allowed[op] = struct{}{}
	}
	for _, op := range t.ForbiddenOperations {
		if _, clash := allowed[op]; clash {
			return fmt.Errorf("operation %q is both allowed and forbidden", op)
		}
	}
	return nil
}

// Get resolves a role template by name.
func (r *RoleRegistry) Get(name string) (*model.RoleTemplate, bool) {
	t, ok := r.roles[name]
	return t, ok
}

// Names returns the sorted role names.
func (r *RoleRegistry) Names() []string {
	out := make([]string, 0, len(r.roles))
	for name := range r.roles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
