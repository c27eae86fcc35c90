package controller

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentcad/cad/model"
)

var taskCounter atomic.Int64

func mintTaskID() string {
	return fmt.Sprintf("task_%06d", taskCounter.Add(1))
}

func newTask(description, criteria string, required []string, deps ...string) *model.TaskAssignment {
	return &model.TaskAssignment{
		TaskID:             mintTaskID(),
		Description:        description,
		RequiredOperations: required,
		Dependencies:       deps,
		SuccessCriteria:    criteria,
		Status:             model.TaskPending,
	}
}

// DecomposeTask turns a goal string into an ordered task list by
// rule-based pattern matching, evaluated in the fixed order: box+lid,
// bracket, cylinder/shaft, assembly/create fallback, then a single
// generic task.
func (c *Controller) DecomposeTask(goal string, planningContext map[string]any) []*model.TaskAssignment {
	lower := strings.ToLower(goal)
	has := func(s string) bool { return strings.Contains(lower, s) }

	var tasks []*model.TaskAssignment
	switch {
	case has("box") && has("lid"):
		base := newTask("Create the box base profile and solid",
			"base solid exists with closed manifold topology",
			[]string{"entity.create.line", "solid.extrude"})
		lid := newTask("Create the lid profile and solid",
			"lid solid exists with closed manifold topology",
			[]string{"entity.create.line", "solid.extrude"})
		integrate := newTask("Integrate base and lid into the assembly",
			"assembly contains both solids in one workspace",
			[]string{"workspace.merge"}, base.TaskID, lid.TaskID)
		tasks = []*model.TaskAssignment{base, lid, integrate}

	case has("bracket"):
		profile := newTask("Create the bracket profile",
			"closed bracket profile sketched",
			[]string{"entity.create.line", "constraint.apply"})
		holes := newTask("Add mounting holes to the profile",
			"hole circles constrained to the profile",
			[]string{"entity.create.circle", "constraint.apply"}, profile.TaskID)
		extrude := newTask("Extrude the bracket",
			"bracket solid exists",
			[]string{"solid.extrude"}, profile.TaskID)
		tasks = []*model.TaskAssignment{profile, holes, extrude}

	case has("cylinder") || has("shaft"):
		circle := newTask("Create the circular profile",
			"circle entity exists with target radius",
			[]string{"entity.create.circle"})
		extrude := newTask("Extrude the cylinder",
			"cylinder solid exists",
			[]string{"solid.extrude"}, circle.TaskID)
		tasks = []*model.TaskAssignment{circle, extrude}

	case has("assembly") || has("create"):
		first := newTask("Create the first component: "+goal,
			"first component solid exists",
			[]string{"entity.create.line", "solid.extrude"})
		second := newTask("Create the second component: "+goal,
			"second component solid exists",
			[]string{"entity.create.line", "solid.extrude"})
		integrate := newTask("Integrate components: "+goal,
			"components merged into one workspace",
			[]string{"workspace.merge"}, first.TaskID, second.TaskID)
		tasks = []*model.TaskAssignment{first, second, integrate}

	default:
		tasks = []*model.TaskAssignment{newTask(goal,
			"goal satisfied",
			[]string{"entity.create.point"})}
	}

	return tasks
}

// ResolveDependencies orders tasks into phases: each phase contains
// only tasks whose dependencies all landed in prior phases. A cycle or
// a dangling dependency leaves unplaceable tasks, which is an error.
func ResolveDependencies(tasks []*model.TaskAssignment) ([][]*model.TaskAssignment, error) {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.TaskID] = true
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == t.TaskID {
				return nil, fmt.Errorf("circular dependency: task %s depends on itself", t.TaskID)
			}
			if !known[dep] {
				return nil, fmt.Errorf("circular dependency: task %s depends on unknown task %s", t.TaskID, dep)
			}
		}
	}

	placed := make(map[string]bool, len(tasks))
	remaining := append([]*model.TaskAssignment(nil), tasks...)
	var phases [][]*model.TaskAssignment

	for len(remaining) > 0 {
		var phase []*model.TaskAssignment
		var next []*model.TaskAssignment
		for _, t := range remaining {
			ready := true
			for _, dep := range t.Dependencies {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				phase = append(phase, t)
			} else {
				next = append(next, t)
			}
		}
		if len(phase) == 0 {
			ids := make([]string, 0, len(next))
			for _, t := range next {
				ids = append(ids, t.TaskID)
			}
			return nil, fmt.Errorf("circular dependency among tasks %v", ids)
		}
		for _, t := range phase {
			placed[t.TaskID] = true
		}
		phases = append(phases, phase)
		remaining = next
	}
	return phases, nil
}

// AssignTask binds a task to an agent, requiring every operation the
// task needs to be in the agent role's allowed set.
func (c *Controller) AssignTask(task *model.TaskAssignment, agentID string) error {
	state, err := c.state(agentID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	roleName := state.agent.Role
	state.mu.Unlock()

	role, ok := c.roles.Get(roleName)
	if !ok {
		return fmt.Errorf("unknown role %q", roleName)
	}
	allowed := make(map[string]bool, len(role.AllowedOperations))
	for _, op := range role.AllowedOperations {
		allowed[op] = true
	}
	for _, op := range task.RequiredOperations {
		if !allowed[op] {
			return fmt.Errorf("role violation: task %s requires %s, which role %s does not allow",
				task.TaskID, op, roleName)
		}
	}

	now := time.Now().UTC()
	task.AgentID = &agentID
	task.AssignedAt = &now
	return nil
}

// TaskRunner executes one assigned task and reports its outcome.
type TaskRunner func(ctx context.Context, task *model.TaskAssignment) (map[string]any, error)

// ExecutePlan runs phases sequentially; tasks within a phase run in
// parallel on the worker pool. A failed task fails its phase, and
// every task in later phases that depended on the plan is left
// blocked.
func (c *Controller) ExecutePlan(ctx context.Context, phases [][]*model.TaskAssignment, run TaskRunner) error {
	for i, phase := range phases {
		g, phaseCtx := errgroup.WithContext(ctx)
		for _, task := range phase {
			task := task
			task.Status = model.TaskInProgress
			g.Go(func() error {
				return c.pool.SubmitWait(phaseCtx, func(taskCtx context.Context) error {
					result, err := run(taskCtx, task)
					now := time.Now().UTC()
					task.CompletedAt = &now
					if err != nil {
						task.Status = model.TaskFailed
						task.Result = map[string]any{"error": err.Error()}
						return fmt.Errorf("task %s: %w", task.TaskID, err)
					}
					task.Status = model.TaskCompleted
					task.Result = result
					return nil
				})
			})
		}
		if err := g.Wait(); err != nil {
			for _, later := range phases[i+1:] {
				for _, task := range later {
					if task.Status == model.TaskPending {
						task.Status = model.TaskBlocked
					}
				}
			}
			c.logger.Warn("plan phase failed", zap.Int("phase", i), zap.Error(err))
			return err
		}
	}
	return nil
}
