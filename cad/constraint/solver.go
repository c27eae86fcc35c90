package constraint

import (
	"math"

	"github.com/BaSui01/agentcad/cad/model"
)

// Result is the outcome of a solve pass over a graph.
type Result struct {
	Converged     bool
	Iterations    int
	TotalResidual float64
}

// Solver evaluates whether a graph's constraints are collectively
// satisfied. The shipping implementation evaluates rather than solves:
// it does not move entities to satisfy constraints, it only recomputes
// each constraint's satisfaction_status and aggregates an overall
// residual. A full Newton solver could replace Solve's body later,
// provided entity mutations still go through the store's update path.
type Solver struct{}

// NewSolver returns a Solver.
func NewSolver() *Solver { return &Solver{} }

// Solve recomputes satisfaction_status for every constraint in the graph
// and returns the aggregate result. entities must contain every entity
// referenced by any constraint in the graph.
func (s *Solver) Solve(g *Graph, entities map[string]*model.Entity) (Result, error) {
	var sumSquares float64

	for _, c := range g.Constraints() {
		residual, err := Residual(c, entities)
		if err != nil {
			return Result{}, err
		}
		tolerance := ToleranceFor(c)
		if residual < tolerance {
			c.SatisfactionStatus = model.SatisfactionSatisfied
		} else {
			c.SatisfactionStatus = model.SatisfactionViolated
		}
		sumSquares += residual * residual
	}

	total := math.Sqrt(sumSquares)
	return Result{
		Converged:     total < model.DefaultTolerance,
		Iterations:    0,
		TotalResidual: total,
	}, nil
}
