package bo

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/optimize"
)

//////
// Const, vars, types.
//////

const (
	// tieTolerance is the relative difference under which two acquisition
	// scores are considered equal.
	tieTolerance = 1e-12

	// refineEvaluations bounds the Nelder-Mead evaluations of each local
	// refinement.
	refineEvaluations = 100
)

// AcquisitionOptimizer picks the next point to evaluate by maximizing an
// acquisition function over the feasible region.
//
// Fields:
// - acquisition: scoring function, higher is better
// - params: Beta and Xi; BestSoFar and DegreesOfFreedom are set per call
// - numCandidates: feasible random candidates scored per proposal
// - localStarts: best candidates refined with Nelder-Mead
// - searchBudget: maximum random draws per proposal
type AcquisitionOptimizer struct {
	acquisition   AcquisitionFunc
	params        AcquisitionParams
	numCandidates int
	localStarts   int
	searchBudget  int
}

// candidate is a scored feasible point.
type candidate struct {
	point []float64
	score float64
}

//////
// Factory.
//////

// NewAcquisitionOptimizer returns the optimizer described by cfg.Criterion,
// cfg.AcqParams and the search budget fields.
func NewAcquisitionOptimizer(cfg Config) *AcquisitionOptimizer {
	return &AcquisitionOptimizer{
		acquisition:   acquisitionFor(cfg.Criterion),
		params:        cfg.AcqParams,
		numCandidates: max(cfg.NumCandidates, 1),
		localStarts:   max(cfg.LocalStarts, 0),
		searchBudget:  max(cfg.SearchBudget, cfg.NumCandidates, 1),
	}
}

//////
// Methods.
//////

// Score returns the acquisition value of x given the surrogate and the best
// objective value observed so far. It has no side effects. A NaN score is
// reported as -Inf.
func (a *AcquisitionOptimizer) Score(x []float64, surrogate Surrogate, best float64) float64 {
	mean, stddev := surrogate.Predict(x)

	params := a.params
	params.BestSoFar = best
	params.DegreesOfFreedom = surrogate.DegreesOfFreedom()

	score := a.acquisition(mean, stddev, params)
	if math.IsNaN(score) {
		return math.Inf(-1)
	}

	return score
}

// ProposeNext returns the feasible point maximizing the acquisition function.
//
// How it works:
// 1. Draws uniform points until NumCandidates feasible ones are collected or
// SearchBudget draws are spent
// 2. Refines the LocalStarts best candidates with Nelder-Mead, keeping a
// refinement only if it is feasible and scores at least as well
// 3. Returns the best candidate; near-equal scores go to the point closest to
// the domain centroid, then to the earliest candidate
//
// It fails with ErrAcquisitionSearchExhausted when no feasible point is found.
// A domain whose bounds are all equal yields its single point.
func (a *AcquisitionOptimizer) ProposeNext(domain *Domain, surrogate Surrogate, best float64, rng *rand.Rand) ([]float64, error) {
	if domain.isDegenerate() {
		x := domain.Lower()
		if !domain.IsFeasible(x) {
			return nil, fmt.Errorf("%w: the only point of the domain is unreachable", ErrAcquisitionSearchExhausted)
		}

		return x, nil
	}

	pool := a.sample(domain, surrogate, best, rng)
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: no feasible point in %d draws", ErrAcquisitionSearchExhausted, a.searchBudget)
	}

	// Indices of the candidates by decreasing score, earliest first on ties.
	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}

	slices.SortStableFunc(order, func(i, j int) int {
		switch {
		case pool[i].score > pool[j].score:
			return -1
		case pool[i].score < pool[j].score:
			return 1
		default:
			return 0
		}
	})

	for _, idx := range order[:min(a.localStarts, len(order))] {
		if refined, ok := a.refine(domain, surrogate, best, pool[idx]); ok {
			pool[idx] = refined
		}
	}

	return selectBest(domain, pool), nil
}

// sample collects up to numCandidates scored feasible points.
func (a *AcquisitionOptimizer) sample(domain *Domain, surrogate Surrogate, best float64, rng *rand.Rand) []candidate {
	pool := make([]candidate, 0, a.numCandidates)

	for draws := 0; draws < a.searchBudget && len(pool) < a.numCandidates; draws++ {
		x := domain.SampleUniform(rng)
		if !domain.IsFeasible(x) {
			continue
		}

		pool = append(pool, candidate{point: x, score: a.Score(x, surrogate, best)})
	}

	return pool
}

// refine runs Nelder-Mead from start in unit-cube coordinates. Points are
// clamped to the box and infeasible ones get the penalty.
func (a *AcquisitionOptimizer) refine(domain *Domain, surrogate Surrogate, best float64, start candidate) (candidate, bool) {
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			x := domain.FromUnit(clampUnit(u))
			if !domain.IsFeasible(x) {
				return penalty
			}

			score := a.Score(x, surrogate, best)
			if math.IsInf(score, 0) {
				return penalty
			}

			return -score
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: refineEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 20,
		},
	}

	result, _ := optimize.Minimize(problem, domain.ToUnit(start.point), settings, &optimize.NelderMead{})
	if result == nil {
		return candidate{}, false
	}

	x := domain.FromUnit(clampUnit(result.X))
	if !domain.IsFeasible(x) {
		return candidate{}, false
	}

	score := a.Score(x, surrogate, best)
	if !(score >= start.score) {
		return candidate{}, false
	}

	return candidate{point: x, score: score}, true
}

//////
// Helper functions.
//////

// selectBest returns the point of the highest-scoring candidate. Candidates
// within tieTolerance of the top score are tied; among them the closest to
// the domain centroid wins, then the earliest.
func selectBest(domain *Domain, pool []candidate) []float64 {
	top := math.Inf(-1)
	for _, c := range pool {
		top = math.Max(top, c.score)
	}

	centroid := domain.Centroid()

	tied := make([]int, 0, 1)
	distances := make([]float64, 0, 1)

	for i, c := range pool {
		if !scoresTied(c.score, top) {
			continue
		}

		tied = append(tied, i)
		distances = append(distances, squaredDistance(c.point, centroid))
	}

	return cloneVector(pool[tied[argMin(distances)]].point)
}

// scoresTied reports whether a and b are equal up to tieTolerance relative to
// their magnitude.
func scoresTied(a, b float64) bool {
	if a == b {
		return true
	}

	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}

	return math.Abs(a-b) <= tieTolerance*math.Max(math.Abs(a), math.Abs(b))
}
