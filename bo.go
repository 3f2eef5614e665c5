package bo

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
)

//////
// Const, vars, types.
//////

// Progress phases reported on Config.ProgressChan.
const (
	PhaseInitialSampling = "InitialSampling"
	PhaseOptimization    = "Optimization"
)

// Option configures an Optimizer.
type Option func(*Optimizer)

// Step describes one completed optimization step.
type Step struct {
	// Iteration is the zero-based index of the step.
	Iteration int

	// Point is the evaluated point and Value its objective value.
	Point []float64
	Value float64

	// Relearned is true when the hyperparameters were re-estimated during
	// the step.
	Relearned bool

	// FitErr holds the surrogate failure absorbed during the step, if any.
	// It wraps ErrFitFailure; the surrogate kept its previous state.
	FitErr error

	// Elapsed is the wall-clock time of the whole step.
	Elapsed time.Duration
}

// Result is the outcome of a completed run.
type Result struct {
	RunID string

	// Best is the lowest observation, the earliest one on ties.
	Best Observation

	Observations    []Observation
	Hyperparameters Hyperparameters
	Iterations      int
	Evaluations     int
	FitFailures     int
}

// Optimizer drives a sequential Bayesian optimization run: initial design,
// then one propose-evaluate-update cycle per StepOptimization call.
//
// Lifecycle:
//
//	Created -> Initializing -> Iterating -> Completed
//
// Any unrecovered error moves the optimizer to Failed. An Optimizer is not
// safe for concurrent use.
type Optimizer struct {
	cfg         Config
	domain      *Domain
	adapter     *ObjectiveAdapter
	surrogate   Surrogate
	acquisition *AcquisitionOptimizer

	// rng is the single random stream of the run.
	rng *rand.Rand

	logger   *slog.Logger
	observer StepObserver
	runID    string

	state   State
	failure error

	observations []Observation

	// iteration counts completed steps, sinceRelearn the steps since the
	// last successful relearn.
	iteration    int
	sinceRelearn int
	fitFailures  int
}

//////
// Factory.
//////

// WithLogger sets the logger. The run ID is attached to it.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers a function called once per completed step.
func WithObserver(observer StepObserver) Option {
	return func(o *Optimizer) {
		o.observer = observer
	}
}

// WithSurrogate replaces the surrogate selected by Config.SurrogateKind.
func WithSurrogate(surrogate Surrogate) Option {
	return func(o *Optimizer) {
		o.surrogate = surrogate
	}
}

// New validates cfg and returns an optimizer in the Created state. The
// objective's CheckReachability becomes the reachability predicate of the
// domain built from cfg.Lower and cfg.Upper.
//
// Usage example:
//
//	cfg := DefaultConfig()
//	cfg.Lower = []float64{1}
//	cfg.Upper = []float64{10}
//
//	optimizer, err := New(cfg, ObjectiveFunc(func(x []float64) float64 {
//	    return math.Abs(1.21056e-09/7.0*x[0] - 5.1881e-10)
//	}))
//	if err != nil {
//	    return err
//	}
//
//	result, err := optimizer.Optimize()
func New(cfg Config, objective Objective, opts ...Option) (*Optimizer, error) {
	if objective == nil {
		return nil, fmt.Errorf("%w: objective is required", ErrInvalidConfiguration)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	domain, err := NewDomain(cfg.Lower, cfg.Upper, WithReachability(objective.CheckReachability))
	if err != nil {
		return nil, err
	}

	o := &Optimizer{
		cfg:         cfg,
		domain:      domain,
		adapter:     NewObjectiveAdapter(domain, objective),
		acquisition: NewAcquisitionOptimizer(cfg),
		rng:         rand.New(rand.NewSource(cfg.RandomSeed)),
		runID:       uuid.NewString(),
		state:       StateCreated,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.LogLevel(),
		}))
	}

	o.logger = o.logger.With("run_id", o.runID)

	if o.surrogate == nil {
		if o.surrogate, err = NewSurrogate(cfg, domain, o.rng); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Minimize runs a whole optimization of objective with cfg and returns its
// result.
//
// How it works:
// 1. Evaluates InitSamples points of the initial design
// 2. Fits the surrogate to them
// 3. For each of the Iterations steps:
//   - Maximizes the acquisition function over the feasible region
//   - Evaluates the selected point
//   - Refits the surrogate, relearning its hyperparameters every
//     RelearnPeriod steps
//
// 4. Returns the best observation
//
// Performance considerations:
// - Total runtime = InitSamples + Iterations evaluations
// - Each fit is O(n^3) in the number of observations
// - Each relearn costs RelearnIterations * RelearnPopulation fits and more
func Minimize(cfg Config, objective Objective, opts ...Option) (*Result, error) {
	o, err := New(cfg, objective, opts...)
	if err != nil {
		return nil, err
	}

	return o.Optimize()
}

//////
// Methods.
//////

// InitializeOptimization evaluates the initial design and fits the surrogate
// to it. It is only valid in the Created state. A failure of the first fit is
// fatal. With Iterations == 0 the optimizer goes straight to Completed.
func (o *Optimizer) InitializeOptimization() error {
	if o.state != StateCreated {
		return fmt.Errorf("%w: cannot initialize in state %s", ErrInvalidState, o.state)
	}

	o.state = StateInitializing

	points, err := initialDesign(o.cfg.InitMethod, o.domain, o.cfg.InitSamples, o.rng)
	if err != nil {
		return o.fail(err)
	}

	for i, x := range points {
		value, err := o.adapter.Evaluate(x)
		if err != nil {
			return o.fail(err)
		}

		o.observations = append(o.observations, Observation{Point: x, Value: value})

		o.logger.Debug("Initial point evaluated", "index", i, "point", x, "value", value)

		o.sendProgress(PhaseInitialSampling, i+1, len(points), x, value)
	}

	if err := o.surrogate.Fit(o.observations); err != nil {
		return o.fail(fmt.Errorf("initial fit: %w", err))
	}

	best := o.best()

	o.logger.Info("Initial design evaluated",
		"samples", len(o.observations),
		"best_value", best.Value,
		"method", o.cfg.InitMethod,
	)

	if o.cfg.Iterations == 0 {
		o.complete()

		return nil
	}

	o.state = StateIterating

	return nil
}

// StepOptimization runs one propose-evaluate-update cycle. It is only valid in
// the Iterating state; it returns ErrNotInitialized before initialization,
// ErrCompleted once the budget is spent and the stored failure after a fatal
// error.
//
// Surrogate failures are not fatal: they are logged, counted and reported in
// Step.FitErr while the surrogate keeps its previous state.
func (o *Optimizer) StepOptimization() (*Step, error) {
	switch o.state {
	case StateIterating:
	case StateCompleted:
		return nil, ErrCompleted
	case StateFailed:
		return nil, o.failure
	default:
		return nil, fmt.Errorf("%w: state %s", ErrNotInitialized, o.state)
	}

	start := time.Now()
	i := o.iteration

	x, err := o.acquisition.ProposeNext(o.domain, o.surrogate, o.best().Value, o.rng)
	if err != nil {
		return nil, o.fail(err)
	}

	value, err := o.adapter.Evaluate(x)
	if err != nil {
		return nil, o.fail(err)
	}

	o.observations = append(o.observations, Observation{Point: x, Value: value})

	relearned, fitErr := o.update(o.relearning() && (i+1)%o.cfg.RelearnPeriod == 0)
	if fitErr != nil && !errors.Is(fitErr, ErrFitFailure) {
		return nil, o.fail(fitErr)
	}

	o.iteration++

	if o.iteration >= o.cfg.Iterations {
		if err := o.finish(); err != nil {
			return nil, o.fail(err)
		}
	}

	step := &Step{
		Iteration: i,
		Point:     cloneVector(x),
		Value:     value,
		Relearned: relearned,
		FitErr:    fitErr,
		Elapsed:   time.Since(start),
	}

	o.logger.Debug("Step completed",
		"iteration", i,
		"point", x,
		"value", value,
		"relearned", relearned,
		"elapsed", step.Elapsed,
	)

	if o.observer != nil {
		o.observer(i, step.Elapsed)
	}

	o.sendProgress(PhaseOptimization, i+1, o.cfg.Iterations, x, value)

	return step, nil
}

// Optimize runs the state machine to completion from wherever it stands and
// returns the result.
func (o *Optimizer) Optimize() (*Result, error) {
	if o.state == StateCreated {
		if err := o.InitializeOptimization(); err != nil {
			return nil, err
		}
	}

	for o.state == StateIterating {
		if _, err := o.StepOptimization(); err != nil {
			return nil, err
		}
	}

	if o.state == StateFailed {
		return nil, o.failure
	}

	return &Result{
		RunID:           o.runID,
		Best:            o.best().Clone(),
		Observations:    o.Observations(),
		Hyperparameters: o.surrogate.Hyperparameters(),
		Iterations:      o.iteration,
		Evaluations:     o.adapter.Evaluations(),
		FitFailures:     o.fitFailures,
	}, nil
}

// FinalResult returns the best point observed so far. It is valid in the
// Iterating and Completed states.
func (o *Optimizer) FinalResult() ([]float64, error) {
	switch o.state {
	case StateIterating, StateCompleted:
		return cloneVector(o.best().Point), nil
	case StateFailed:
		return nil, o.failure
	default:
		return nil, fmt.Errorf("%w: state %s", ErrNotInitialized, o.state)
	}
}

// Best returns a copy of the lowest observation, the earliest one on ties.
func (o *Optimizer) Best() (Observation, error) {
	if len(o.observations) == 0 {
		return Observation{}, ErrNotInitialized
	}

	return o.best().Clone(), nil
}

// Observations returns a deep copy of the observations, in evaluation order.
func (o *Optimizer) Observations() []Observation {
	out := make([]Observation, len(o.observations))

	for i, obs := range o.observations {
		out[i] = obs.Clone()
	}

	return out
}

// Evaluate evaluates the objective at x through the optimizer's adapter. It
// does not record an observation.
func (o *Optimizer) Evaluate(x []float64) (float64, error) {
	return o.adapter.Evaluate(x)
}

// State returns the current state.
func (o *Optimizer) State() State { return o.state }

// Surrogate returns the surrogate model.
func (o *Optimizer) Surrogate() Surrogate { return o.surrogate }

// Domain returns the search domain.
func (o *Optimizer) Domain() *Domain { return o.domain }

// FitFailures returns the number of absorbed surrogate failures.
func (o *Optimizer) FitFailures() int { return o.fitFailures }

// RunID returns the identifier attached to every log record of the run.
func (o *Optimizer) RunID() string { return o.runID }

// update refits the surrogate, relearning the hyperparameters first when
// relearn is set. A failed relearn falls back to a plain fit so that the model
// still sees the new observation. The returned error, if any, is the first
// surrogate failure.
func (o *Optimizer) update(relearn bool) (bool, error) {
	var firstErr error

	if relearn {
		err := o.surrogate.RelearnHyperparameters(o.observations)
		if err == nil {
			o.sinceRelearn = 0

			return true, nil
		}

		if !errors.Is(err, ErrFitFailure) {
			return false, err
		}

		o.absorb("relearn", err)

		firstErr = err
	}

	o.sinceRelearn++

	if err := o.surrogate.Fit(o.observations); err != nil {
		if !errors.Is(err, ErrFitFailure) {
			return false, err
		}

		if firstErr == nil {
			o.absorb("fit", err)

			firstErr = err
		}
	}

	return false, firstErr
}

// finish runs the closing relearn, when relearning is on and steps happened
// since the last one, and moves to Completed.
func (o *Optimizer) finish() error {
	if o.relearning() && o.sinceRelearn > 0 {
		if err := o.surrogate.RelearnHyperparameters(o.observations); err != nil {
			if !errors.Is(err, ErrFitFailure) {
				return err
			}

			o.absorb("final relearn", err)
		} else {
			o.sinceRelearn = 0
		}
	}

	o.complete()

	return nil
}

func (o *Optimizer) relearning() bool {
	return o.cfg.LearningType != LearningFixed
}

func (o *Optimizer) complete() {
	o.state = StateCompleted

	best := o.best()

	o.logger.Info("Optimization completed",
		"iterations", o.iteration,
		"evaluations", o.adapter.Evaluations(),
		"fit_failures", o.fitFailures,
		"best_point", best.Point,
		"best_value", best.Value,
	)
}

// absorb records a non-fatal surrogate failure.
func (o *Optimizer) absorb(operation string, err error) {
	o.fitFailures++

	o.logger.Warn("Surrogate update failed, keeping previous state",
		"operation", operation,
		"iteration", o.iteration,
		"observations", len(o.observations),
		"error", err,
	)
}

// fail moves to Failed and stores err.
func (o *Optimizer) fail(err error) error {
	o.state = StateFailed
	o.failure = err

	o.logger.Error("Optimization failed", "state", o.state, "error", err)

	return err
}

// best returns the lowest observation, the earliest one on ties. There must
// be at least one observation.
func (o *Optimizer) best() Observation {
	values := make([]float64, len(o.observations))
	for i, obs := range o.observations {
		values[i] = obs.Value
	}

	return o.observations[argMin(values)]
}

// sendProgress sends a progress update without blocking.
func (o *Optimizer) sendProgress(phase string, iteration, total int, point []float64, value float64) {
	if o.cfg.ProgressChan == nil {
		return
	}

	best := o.best()

	update := ProgressUpdate{
		Phase:            phase,
		CurrentIteration: iteration,
		TotalIterations:  total,
		CurrentPoint:     cloneVector(point),
		CurrentBestPoint: cloneVector(best.Point),
		CurrentBestValue: best.Value,
		LastValue:        value,
	}

	select {
	case o.cfg.ProgressChan <- update:
	default:
		// Skip update if channel is full.
	}
}
