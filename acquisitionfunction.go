package bo

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

//////
// Available acquisition functions for Bayesian optimization.
// Each function scores a candidate from the surrogate's predictive mean and
// standard deviation, balancing exploration (uncertain areas) and
// exploitation (areas predicted to be good). The objective is minimized and
// the scores are maximized: higher is more promising.
//////

// LowerConfidenceBound implements the Lower Confidence Bound acquisition
// function, negated so that higher is better.
//
// How it works:
// - Subtracts Beta standard deviations from the predicted mean
// - Points that are either predicted low or very uncertain score high
//
// Parameters:
// - mean: Predicted objective value at this point
// - stddev: Uncertainty of the prediction
// - params.Beta: Exploration weight (higher = more exploration)
//
// Example:
//
//	params := AcquisitionParams{Beta: 2.0}
//	score := LowerConfidenceBound(0.5, 0.2, params)
func LowerConfidenceBound(mean, stddev float64, params AcquisitionParams) float64 {
	return params.Beta*stddev - mean
}

// ProbabilityOfImprovement (POI) calculates the probability that a point
// improves on BestSoFar by at least Xi.
//
// Uses a Student-t predictive when params.DegreesOfFreedom is finite and
// positive, a normal one otherwise.
//
// Example:
//
//	params := AcquisitionParams{
//	    BestSoFar:        1.0,
//	    Xi:               0.01,
//	    DegreesOfFreedom: math.Inf(1),
//	}
//	prob := ProbabilityOfImprovement(0.9, 0.2, params)
func ProbabilityOfImprovement(mean, stddev float64, params AcquisitionParams) float64 {
	improvement := params.BestSoFar - params.Xi - mean

	if !(stddev > 0) {
		if improvement > 0 {
			return 1
		}

		return 0
	}

	z := improvement / stddev

	if nu, ok := studentDegrees(params); ok {
		return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}.CDF(z)
	}

	return distuv.UnitNormal.CDF(z)
}

// ExpectedImprovement (EI) calculates the expected amount by which a point
// improves on BestSoFar - Xi.
//
// Mathematical formula, with z = (BestSoFar - Xi - mean) / stddev:
//
//	normal:    (BestSoFar - Xi - mean) Phi(z) + stddev phi(z)
//	student-t: (BestSoFar - Xi - mean) T(z) + stddev (nu + z^2) / (nu - 1) t(z)
//
// The Student-t form needs nu > 1; smaller degrees of freedom are raised to 2.
//
// Example:
//
//	params := AcquisitionParams{
//	    BestSoFar:        1.0,
//	    DegreesOfFreedom: math.Inf(1),
//	}
//	expected := ExpectedImprovement(0.9, 0.2, params)
func ExpectedImprovement(mean, stddev float64, params AcquisitionParams) float64 {
	improvement := params.BestSoFar - params.Xi - mean

	if !(stddev > 0) {
		return math.Max(improvement, 0)
	}

	z := improvement / stddev

	if nu, ok := studentDegrees(params); ok {
		nu = math.Max(nu, 2)
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}

		return math.Max(improvement*t.CDF(z)+stddev*(nu+z*z)/(nu-1)*t.Prob(z), 0)
	}

	// Rounding can push the far tail slightly below zero.
	return math.Max(improvement*distuv.UnitNormal.CDF(z)+stddev*distuv.UnitNormal.Prob(z), 0)
}

//////
// Factory.
//////

// acquisitionFor returns the built-in acquisition function of criterion.
// Unknown criteria are rejected by Config.Validate.
func acquisitionFor(criterion Criterion) AcquisitionFunc {
	switch criterion {
	case CriterionLCB:
		return LowerConfidenceBound
	case CriterionPOI:
		return ProbabilityOfImprovement
	default:
		return ExpectedImprovement
	}
}

//////
// Helper functions.
//////

// studentDegrees reports the Student-t degrees of freedom to use, if any.
func studentDegrees(params AcquisitionParams) (float64, bool) {
	nu := params.DegreesOfFreedom

	return nu, nu > 0 && !math.IsInf(nu, 0) && !math.IsNaN(nu)
}
