package bo

import "errors"

//////
// Errors.
//////

var (
	// ErrInvalidDomain is returned when the search box is malformed: empty,
	// mismatched bound lengths, non-finite bounds, or a lower bound above its
	// upper bound.
	ErrInvalidDomain = errors.New("bo: invalid domain")

	// ErrInvalidConfiguration is returned by Config.Validate and New for any
	// out-of-range or unknown option.
	ErrInvalidConfiguration = errors.New("bo: invalid configuration")

	// ErrInfeasiblePoint is returned when an evaluation is requested outside
	// the feasible region.
	ErrInfeasiblePoint = errors.New("bo: infeasible point")

	// ErrFitFailure is returned when the surrogate cannot be fitted, usually
	// because the covariance matrix is not positive definite. The surrogate
	// keeps its previous state.
	ErrFitFailure = errors.New("bo: surrogate fit failure")

	// ErrAcquisitionSearchExhausted is returned when no feasible point could
	// be found within the search budget.
	ErrAcquisitionSearchExhausted = errors.New("bo: acquisition search exhausted")

	// ErrNotInitialized is returned when a step or a result is requested
	// before the initial design completed.
	ErrNotInitialized = errors.New("bo: optimization not initialized")

	// ErrCompleted is returned when a step is requested after the iteration
	// budget is spent.
	ErrCompleted = errors.New("bo: optimization already completed")

	// ErrInvalidState is returned when InitializeOptimization is called more
	// than once.
	ErrInvalidState = errors.New("bo: invalid optimizer state")
)
