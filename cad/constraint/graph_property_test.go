package constraint

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/agentcad/cad/model"
)

// Conflict detection must be symmetric: whichever of two contradictory
// constraints lands in the graph first, the other is flagged.
func TestConflictDetectionSymmetric(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("distance conflicts are symmetric", prop.ForAll(
		func(a, b float64) bool {
			ca := &model.Constraint{
				ConstraintID:   "a",
				ConstraintType: model.ConstraintDistance,
				EntityIDs:      []string{"p1", "p2"},
				Parameters:     map[string]float64{"target_distance": a},
				Tolerance:      model.DefaultTolerance,
			}
			cb := &model.Constraint{
				ConstraintID:   "b",
				ConstraintType: model.ConstraintDistance,
				EntityIDs:      []string{"p1", "p2"},
				Parameters:     map[string]float64{"target_distance": b},
				Tolerance:      model.DefaultTolerance,
			}

			gab := NewGraph()
			gab.AddConstraint(ca)
			conflictAB, _ := gab.CheckConflict(cb)

			gba := NewGraph()
			gba.AddConstraint(cb)
			conflictBA, _ := gba.CheckConflict(ca)

			expected := math.Abs(a-b) > model.DefaultTolerance
			return conflictAB == conflictBA && conflictAB == expected
		},
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
	))

	properties.Property("angle residual is within [0, pi] of target", prop.ForAll(
		func(x1, y1, x2, y2, target float64) bool {
			l1 := line("l1", model.Vec3{0, 0, 0}, model.Vec3{x1, y1, 0})
			l2 := line("l2", model.Vec3{0, 0, 0}, model.Vec3{x2, y2, 0})
			c := &model.Constraint{
				ConstraintType: model.ConstraintAngle,
				EntityIDs:      []string{"l1", "l2"},
				Parameters:     map[string]float64{"target_angle": target},
			}
			r, err := Residual(c, entityMap(l1, l2))
			if err != nil {
				return false
			}
			return r >= 0 && r <= math.Pi+target
		},
		gen.Float64Range(0.1, 100),
		gen.Float64Range(0.1, 100),
		gen.Float64Range(0.1, 100),
		gen.Float64Range(0.1, 100),
		gen.Float64Range(0, math.Pi),
	))

	properties.TestingRun(t)
}
