// Package constraint implements the in-memory constraint graph: conflict
// detection, residual evaluation, and degree-of-freedom accounting over
// the entities and constraints of a single workspace. The graph is a
// derived view over persisted constraints and entities; the store stays
// authoritative.
package constraint

import (
	"fmt"
	"math"

	"github.com/BaSui01/agentcad/cad/model"
)

// DOF is the degrees-of-freedom contribution of each 2D entity type.
var DOF = map[model.EntityType]int{
	model.EntityPoint:  2,
	model.EntityLine:   4,
	model.EntityCircle: 3,
}

// Graph is the in-memory multigraph of entities (nodes) and constraints
// (edges) for a single workspace.
type Graph struct {
	entities    map[string]*model.Entity
	constraints map[string]*model.Constraint
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		entities:    make(map[string]*model.Entity),
		constraints: make(map[string]*model.Constraint),
	}
}

// AddEntity registers (or replaces) an entity node.
func (g *Graph) AddEntity(e *model.Entity) {
	g.entities[e.EntityID] = e
}

// AddConstraint registers (or replaces) a constraint edge.
func (g *Graph) AddConstraint(c *model.Constraint) {
	g.constraints[c.ConstraintID] = c
}

// RemoveConstraint removes a constraint edge.
func (g *Graph) RemoveConstraint(id string) {
	delete(g.constraints, id)
}

// Constraints returns all registered constraints.
func (g *Graph) Constraints() []*model.Constraint {
	out := make([]*model.Constraint, 0, len(g.constraints))
	for _, c := range g.constraints {
		out = append(out, c)
	}
	return out
}

// CheckConflict reports whether adding newC would conflict with an
// existing constraint on the same entity set, per the contradiction
// rules: {parallel, perpendicular} on the same pair; two distance (or
// angle) constraints on the same pair with differing targets beyond
// tolerance.
func (g *Graph) CheckConflict(newC *model.Constraint) (conflict bool, conflictingID string) {
	for _, existing := range g.constraints {
		if existing.ConstraintID == newC.ConstraintID {
			continue
		}
		if !sameEntitySet(existing.EntityIDs, newC.EntityIDs) {
			continue
		}
		if contradicts(existing, newC) {
			return true, existing.ConstraintID
		}
	}
	return false, ""
}

func sameEntitySet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

func contradicts(existing, newC *model.Constraint) bool {
	a, b := existing.ConstraintType, newC.ConstraintType
	if isParallelPerpPair(a, b) {
		return true
	}
	if a == model.ConstraintDistance && b == model.ConstraintDistance {
		return differs(existing.Parameters["target_distance"], newC.Parameters["target_distance"], existing.Tolerance)
	}
	if a == model.ConstraintAngle && b == model.ConstraintAngle {
		return differs(existing.Parameters["target_angle"], newC.Parameters["target_angle"], existing.Tolerance)
	}
	return false
}

func isParallelPerpPair(a, b model.ConstraintType) bool {
	return (a == model.ConstraintParallel && b == model.ConstraintPerpendicular) ||
		(a == model.ConstraintPerpendicular && b == model.ConstraintParallel)
}

func differs(a, b, tolerance float64) bool {
	if tolerance <= 0 {
		tolerance = model.DefaultTolerance
	}
	return math.Abs(a-b) > tolerance
}

// Residual computes the current residual of a constraint from its
// referenced entities' properties.
func Residual(c *model.Constraint, entities map[string]*model.Entity) (float64, error) {
	switch c.ConstraintType {
	case model.ConstraintParallel:
		d1, d2, err := twoLineDirections(c, entities)
		if err != nil {
			return 0, err
		}
		return vecLen(cross(d1, d2)), nil

	case model.ConstraintPerpendicular:
		d1, d2, err := twoLineDirections(c, entities)
		if err != nil {
			return 0, err
		}
		return math.Abs(dot(d1, d2)), nil

	case model.ConstraintCoincident:
		p1, p2, err := twoPoints(c, entities)
		if err != nil {
			return 0, err
		}
		return dist(p1, p2), nil

	case model.ConstraintDistance:
		a, b, err := lineEndpointsOrPoints(c, entities)
		if err != nil {
			return 0, err
		}
		target := c.Parameters["target_distance"]
		return math.Abs(dist(a, b) - target), nil

	case model.ConstraintAngle:
		d1, d2, err := twoLineDirections(c, entities)
		if err != nil {
			return 0, err
		}
		cosTheta := dot(d1, d2) / (vecLen(d1) * vecLen(d2))
		cosTheta = clamp(cosTheta, -1, 1)
		actual := math.Acos(cosTheta)
		target := c.Parameters["target_angle"]
		return math.Abs(actual - target), nil

	case model.ConstraintTangent:
		return tangentResidual(c, entities)

	case model.ConstraintRadius:
		ent, err := singleEntity(c, entities)
		if err != nil {
			return 0, err
		}
		radius, _ := ent.Properties["radius"].(float64)
		target := c.Parameters["target_radius"]
		return math.Abs(radius - target), nil

	default:
		return 0, fmt.Errorf("invalid constraint type: %s", c.ConstraintType)
	}
}

// ToleranceFor returns the satisfaction tolerance for a constraint,
// applying the tangent-specific default when unset.
func ToleranceFor(c *model.Constraint) float64 {
	if c.Tolerance > 0 {
		return c.Tolerance
	}
	if c.ConstraintType == model.ConstraintTangent {
		return model.TangentTolerance
	}
	return model.DefaultTolerance
}

// RemainingDOF computes max(0, total entity DOF - constraints applied).
// Accounting is deliberately simple: each constraint removes exactly
// one degree of freedom.
func RemainingDOF(entities []*model.Entity, constraints []*model.Constraint) int {
	total := 0
	for _, e := range entities {
		total += DOF[e.EntityType]
	}
	remaining := total - len(constraints)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func singleEntity(c *model.Constraint, entities map[string]*model.Entity) (*model.Entity, error) {
	if len(c.EntityIDs) < 1 {
		return nil, fmt.Errorf("invalid constraint type: %s requires an entity", c.ConstraintType)
	}
	e, ok := entities[c.EntityIDs[0]]
	if !ok {
		return nil, fmt.Errorf("entity not found: %s", c.EntityIDs[0])
	}
	return e, nil
}

func twoLineDirections(c *model.Constraint, entities map[string]*model.Entity) (model.Vec3, model.Vec3, error) {
	if len(c.EntityIDs) != 2 {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("invalid constraint type: %s requires two entities", c.ConstraintType)
	}
	l1, ok := entities[c.EntityIDs[0]]
	if !ok {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("entity not found: %s", c.EntityIDs[0])
	}
	l2, ok := entities[c.EntityIDs[1]]
	if !ok {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("entity not found: %s", c.EntityIDs[1])
	}
	return lineDirection(l1), lineDirection(l2), nil
}

func lineDirection(e *model.Entity) model.Vec3 {
	start := vec3From(e.Properties["start"])
	end := vec3From(e.Properties["end"])
	return model.Vec3{end[0] - start[0], end[1] - start[1], end[2] - start[2]}
}

func twoPoints(c *model.Constraint, entities map[string]*model.Entity) (model.Vec3, model.Vec3, error) {
	if len(c.EntityIDs) != 2 {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("invalid constraint type: %s requires two entities", c.ConstraintType)
	}
	p1, ok := entities[c.EntityIDs[0]]
	if !ok {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("entity not found: %s", c.EntityIDs[0])
	}
	p2, ok := entities[c.EntityIDs[1]]
	if !ok {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("entity not found: %s", c.EntityIDs[1])
	}
	return vec3From(p1.Properties["coordinates"]), vec3From(p2.Properties["coordinates"]), nil
}

// lineEndpointsOrPoints resolves a distance constraint's operands,
// accepting either two points or two line endpoints depending on entity
// type.
func lineEndpointsOrPoints(c *model.Constraint, entities map[string]*model.Entity) (model.Vec3, model.Vec3, error) {
	if len(c.EntityIDs) != 2 {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("invalid constraint type: %s requires two entities", c.ConstraintType)
	}
	e1, ok := entities[c.EntityIDs[0]]
	if !ok {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("entity not found: %s", c.EntityIDs[0])
	}
	e2, ok := entities[c.EntityIDs[1]]
	if !ok {
		return model.Vec3{}, model.Vec3{}, fmt.Errorf("entity not found: %s", c.EntityIDs[1])
	}
	return entityPosition(e1), entityPosition(e2), nil
}

func entityPosition(e *model.Entity) model.Vec3 {
	if e.EntityType == model.EntityPoint {
		return vec3From(e.Properties["coordinates"])
	}
	return vec3From(e.Properties["start"])
}

func tangentResidual(c *model.Constraint, entities map[string]*model.Entity) (float64, error) {
	if len(c.EntityIDs) != 2 {
		return 0, fmt.Errorf("invalid constraint type: %s requires a line and a circle", c.ConstraintType)
	}
	var line, circle *model.Entity
	for _, id := range c.EntityIDs {
		e, ok := entities[id]
		if !ok {
			return 0, fmt.Errorf("entity not found: %s", id)
		}
		switch e.EntityType {
		case model.EntityLine:
			line = e
		case model.EntityCircle:
			circle = e
		}
	}
	if line == nil || circle == nil {
		return 0, fmt.Errorf("invalid constraint type: tangent requires a line and a circle")
	}

	start := vec3From(line.Properties["start"])
	end := vec3From(line.Properties["end"])
	center := vec3From(circle.Properties["center"])
	radius, _ := circle.Properties["radius"].(float64)

	d := pointToLineDistance(center, start, end)
	return math.Abs(d - radius), nil
}

func pointToLineDistance(p, a, b model.Vec3) float64 {
	dir := model.Vec3{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	ap := model.Vec3{p[0] - a[0], p[1] - a[1], p[2] - a[2]}
	dirLen := vecLen(dir)
	if dirLen == 0 {
		return dist(p, a)
	}
	crossed := cross(ap, dir)
	return vecLen(crossed) / dirLen
}

// vec3From tolerates the shapes a coordinate property takes across its
// lifetime: typed vectors in memory, []float64 fresh from a handler,
// and []any after a JSON round-trip through the store.
func vec3From(v any) model.Vec3 {
	switch t := v.(type) {
	case model.Vec3:
		return t
	case []float64:
		var out model.Vec3
		copy(out[:], t)
		return out
	case []any:
		var out model.Vec3
		for i := 0; i < len(t) && i < 3; i++ {
			if f, ok := t[i].(float64); ok {
				out[i] = f
			}
		}
		return out
	default:
		return model.Vec3{}
	}
}

func dot(a, b model.Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b model.Vec3) model.Vec3 {
	return model.Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func vecLen(v model.Vec3) float64 {
	return math.Sqrt(dot(v, v))
}

func dist(a, b model.Vec3) float64 {
	return vecLen(model.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
