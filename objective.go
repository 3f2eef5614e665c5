package bo

import (
	"fmt"
	"time"
)

//////
// Const, vars, types.
//////

// Objective is the black box being minimized.
//
// Evaluate must be deterministic for a given point: noise, if any, is
// modelled by Config.ObservationNoise, not by the objective changing its
// answer. CheckReachability is the extra feasibility constraint applied on top
// of the search box; it is only called with points inside the box.
//
// Usage example:
//
//	type camel struct{}
//
//	func (camel) Evaluate(x []float64) float64 {
//	    return math.Abs(1.21056e-09/7.0*x[0] - 5.1881e-10)
//	}
//
//	func (camel) CheckReachability(x []float64) bool { return true }
type Objective interface {
	Evaluate(x []float64) float64
	CheckReachability(x []float64) bool
}

// ObjectiveFunc adapts a plain function to Objective. Every point of the box
// is reachable.
type ObjectiveFunc func(x []float64) float64

// Evaluate implements Objective.
func (f ObjectiveFunc) Evaluate(x []float64) float64 { return f(x) }

// CheckReachability implements Objective.
func (ObjectiveFunc) CheckReachability([]float64) bool { return true }

// constrained pairs an evaluation function with a reachability predicate.
type constrained struct {
	evaluate  func(x []float64) float64
	reachable func(x []float64) bool
}

func (c constrained) Evaluate(x []float64) float64 { return c.evaluate(x) }

func (c constrained) CheckReachability(x []float64) bool { return c.reachable(x) }

// Constrained returns an Objective evaluating f and accepting only the points
// for which reachable returns true. A nil reachable accepts every point.
func Constrained(f func(x []float64) float64, reachable func(x []float64) bool) Objective {
	if reachable == nil {
		reachable = func([]float64) bool { return true }
	}

	return constrained{evaluate: f, reachable: reachable}
}

// ObjectiveAdapter guards an Objective with a Domain: it refuses to evaluate
// infeasible points and keeps simple bookkeeping about the evaluations it
// performed.
type ObjectiveAdapter struct {
	domain    *Domain
	objective Objective

	evaluations int
	lastElapsed time.Duration
}

//////
// Factory.
//////

// NewObjectiveAdapter returns an adapter evaluating objective on domain.
func NewObjectiveAdapter(domain *Domain, objective Objective) *ObjectiveAdapter {
	return &ObjectiveAdapter{
		domain:    domain,
		objective: objective,
	}
}

//////
// Methods.
//////

// Evaluate runs the objective at x. It fails with ErrInfeasiblePoint, without
// calling the objective, when x is not feasible in the adapter's Domain.
func (a *ObjectiveAdapter) Evaluate(x []float64) (float64, error) {
	if !a.domain.IsFeasible(x) {
		return 0, fmt.Errorf("%w: %v", ErrInfeasiblePoint, x)
	}

	// The objective gets its own copy so it cannot alter the caller's point.
	point := cloneVector(x)

	value, elapsed := timed(func() float64 {
		return a.objective.Evaluate(point)
	})

	a.evaluations++
	a.lastElapsed = elapsed

	return value, nil
}

// Evaluations returns the number of objective calls made so far.
func (a *ObjectiveAdapter) Evaluations() int { return a.evaluations }

// LastElapsed returns how long the last objective call took.
func (a *ObjectiveAdapter) LastElapsed() time.Duration { return a.lastElapsed }
