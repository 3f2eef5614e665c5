package bo

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	absC1 = 1.21056e-09 / 7.0
	absC2 = 5.1881e-10
)

// absObjective is minimized at x = absC2 / absC1, close to 3.
func absObjective(x []float64) float64 {
	return math.Abs(absC1*x[0] - absC2)
}

// camelback is the six-hump camel function, with global minima near
// (0.0898, -0.7126) and (-0.0898, 0.7126).
func camelback(x []float64) float64 {
	x1, x2 := x[0], x[1]

	return (4-2.1*x1*x1+x1*x1*x1*x1/3)*x1*x1 + x1*x2 + (-4+4*x2*x2)*x2*x2
}

func quietLogger() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig(lower, upper []float64) Config {
	cfg := DefaultConfig()
	cfg.Lower = lower
	cfg.Upper = upper
	cfg.NumCandidates = 300
	cfg.SearchBudget = 3000
	cfg.LocalStarts = 2
	cfg.RelearnIterations = 10

	return cfg
}

// flakySurrogate wraps a Surrogate, counts the calls it receives and fails
// the chosen Fit call.
type flakySurrogate struct {
	Surrogate

	failFitAt   int
	failRelearn bool

	fits     int
	relearns int
}

func (f *flakySurrogate) Fit(observations []Observation) error {
	f.fits++
	if f.fits == f.failFitAt {
		return fmt.Errorf("%w: injected on fit %d", ErrFitFailure, f.fits)
	}

	return f.Surrogate.Fit(observations)
}

func (f *flakySurrogate) RelearnHyperparameters(observations []Observation) error {
	f.relearns++
	if f.failRelearn {
		return fmt.Errorf("%w: injected on relearn %d", ErrFitFailure, f.relearns)
	}

	return f.Surrogate.RelearnHyperparameters(observations)
}

func realSurrogate(t *testing.T, cfg Config) Surrogate {
	t.Helper()

	domain, err := NewDomain(cfg.Lower, cfg.Upper)
	require.NoError(t, err)

	surrogate, err := NewSurrogate(cfg, domain, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	return surrogate
}

func TestNewRejectsInvalidInput(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})

	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	unknown := cfg
	unknown.SurrogateKind = "sMystery"
	_, err = New(unknown, ObjectiveFunc(absObjective))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	inverted := testConfig([]float64{10}, []float64{1})
	_, err = New(inverted, ObjectiveFunc(absObjective))
	assert.ErrorIs(t, err, ErrInvalidDomain)

	noSamples := cfg
	noSamples.InitSamples = 0
	_, err = New(noSamples, ObjectiveFunc(absObjective))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestInitializeOptimization(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})

	optimizer, err := New(cfg, ObjectiveFunc(absObjective), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, StateCreated, optimizer.State())

	_, err = uuid.Parse(optimizer.RunID())
	assert.NoError(t, err)

	require.NoError(t, optimizer.InitializeOptimization())
	assert.Equal(t, StateIterating, optimizer.State())

	observations := optimizer.Observations()
	require.Len(t, observations, cfg.InitSamples)

	for _, o := range observations {
		assert.True(t, optimizer.Domain().IsFeasible(o.Point))
		assert.Equal(t, absObjective(o.Point), o.Value)
	}

	// Observations hands out copies.
	observations[0].Point[0] = -1
	assert.NotEqual(t, -1.0, optimizer.Observations()[0].Point[0])

	assert.ErrorIs(t, optimizer.InitializeOptimization(), ErrInvalidState)
}

func TestOutOfOrderCalls(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})
	cfg.Iterations = 1

	optimizer, err := New(cfg, ObjectiveFunc(absObjective), quietLogger())
	require.NoError(t, err)

	_, err = optimizer.StepOptimization()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = optimizer.FinalResult()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = optimizer.Best()
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, optimizer.InitializeOptimization())

	_, err = optimizer.FinalResult()
	assert.NoError(t, err)

	step, err := optimizer.StepOptimization()
	require.NoError(t, err)
	assert.Equal(t, 0, step.Iteration)
	assert.Equal(t, StateCompleted, optimizer.State())

	_, err = optimizer.StepOptimization()
	assert.ErrorIs(t, err, ErrCompleted)
}

func TestZeroIterations(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})
	cfg.InitSamples = 10
	cfg.Iterations = 0
	cfg.RelearnPeriod = 1
	cfg.RandomSeed = 1

	optimizer, err := New(cfg, ObjectiveFunc(absObjective), quietLogger())
	require.NoError(t, err)

	result, err := optimizer.Optimize()
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, optimizer.State())
	require.Len(t, result.Observations, 10)

	lowest := math.Inf(1)
	for _, o := range result.Observations {
		lowest = math.Min(lowest, o.Value)
	}

	assert.Equal(t, lowest, result.Best.Value)

	point, err := optimizer.FinalResult()
	require.NoError(t, err)
	assert.Equal(t, result.Best.Point, point)

	value, err := optimizer.Evaluate(point)
	require.NoError(t, err)
	assert.Equal(t, result.Best.Value, value)
	assert.Equal(t, 11, optimizer.adapter.Evaluations())

	_, err = optimizer.Evaluate([]float64{11})
	assert.ErrorIs(t, err, ErrInfeasiblePoint)
}

func TestOptimizeAbsoluteValue(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})
	cfg.InitSamples = 10
	cfg.Iterations = 20
	cfg.RelearnPeriod = 1
	cfg.RandomSeed = 2

	optimizer, err := New(cfg, ObjectiveFunc(absObjective), quietLogger())
	require.NoError(t, err)
	require.NoError(t, optimizer.InitializeOptimization())

	initialBest, err := optimizer.Best()
	require.NoError(t, err)

	previous := initialBest.Value
	steps := 0

	for optimizer.State() == StateIterating {
		step, err := optimizer.StepOptimization()
		require.NoError(t, err)
		assert.Equal(t, steps, step.Iteration)
		assert.True(t, step.Relearned)
		assert.True(t, optimizer.Domain().IsFeasible(step.Point))

		best, err := optimizer.Best()
		require.NoError(t, err)
		assert.LessOrEqual(t, best.Value, previous)

		previous = best.Value
		steps++
	}

	assert.Equal(t, cfg.Iterations, steps)
	assert.Equal(t, StateCompleted, optimizer.State())
	assert.Len(t, optimizer.Observations(), cfg.InitSamples+cfg.Iterations)

	point, err := optimizer.FinalResult()
	require.NoError(t, err)
	assert.InDelta(t, absC2/absC1, point[0], 0.5)
	assert.LessOrEqual(t, previous, initialBest.Value)
}

func TestMinimizeCamelback(t *testing.T) {
	cfg := testConfig([]float64{-3, -2}, []float64{3, 2})
	cfg.InitSamples = 10
	cfg.Iterations = 15
	cfg.RelearnPeriod = 5
	cfg.InitMethod = InitLHS

	result, err := Minimize(cfg, ObjectiveFunc(camelback), quietLogger())
	require.NoError(t, err)

	require.Len(t, result.Observations, 25)
	assert.Equal(t, 15, result.Iterations)
	assert.Equal(t, 25, result.Evaluations)
	assert.Len(t, result.Hyperparameters.LengthScales, 2)

	initialBest := math.Inf(1)
	for _, o := range result.Observations[:10] {
		initialBest = math.Min(initialBest, o.Value)
	}

	assert.LessOrEqual(t, result.Best.Value, initialBest)
	assert.Equal(t, camelback(result.Best.Point), result.Best.Value)
}

func TestOptimizationIsDeterministic(t *testing.T) {
	for _, kind := range []SurrogateKind{SurrogateGaussianProcess, SurrogateGaussianProcessML, SurrogateStudentTProcessJef} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := testConfig([]float64{-3, -2}, []float64{3, 2})
			cfg.SurrogateKind = kind
			cfg.InitSamples = 5
			cfg.Iterations = 6
			cfg.RelearnPeriod = 2
			cfg.RandomSeed = 77

			first, err := Minimize(cfg, ObjectiveFunc(camelback), quietLogger())
			require.NoError(t, err)

			second, err := Minimize(cfg, ObjectiveFunc(camelback), quietLogger())
			require.NoError(t, err)

			assert.Equal(t, first.Observations, second.Observations)
			assert.Equal(t, first.Best, second.Best)
			assert.Equal(t, first.Hyperparameters, second.Hyperparameters)
			assert.NotEqual(t, first.RunID, second.RunID)
		})
	}
}

func TestFitFailureIsAbsorbed(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})
	cfg.InitSamples = 5
	cfg.Iterations = 4
	cfg.RelearnPeriod = 100

	// Fit #1 is the initial fit, #2 the fit of step 0, #3 the fit of step 1.
	surrogate := &flakySurrogate{Surrogate: realSurrogate(t, cfg), failFitAt: 3}

	optimizer, err := New(cfg, ObjectiveFunc(absObjective), WithSurrogate(surrogate), quietLogger())
	require.NoError(t, err)
	require.NoError(t, optimizer.InitializeOptimization())

	step, err := optimizer.StepOptimization()
	require.NoError(t, err)
	assert.NoError(t, step.FitErr)

	probe := []float64{7.5}
	meanBefore, stddevBefore := optimizer.Surrogate().Predict(probe)
	hyperBefore := optimizer.Surrogate().Hyperparameters()

	step, err = optimizer.StepOptimization()
	require.NoError(t, err)
	assert.ErrorIs(t, step.FitErr, ErrFitFailure)
	assert.Equal(t, 1, optimizer.FitFailures())
	assert.Equal(t, StateIterating, optimizer.State())

	// The next proposal works from the state fitted before the failure.
	meanAfter, stddevAfter := optimizer.Surrogate().Predict(probe)
	assert.Equal(t, meanBefore, meanAfter)
	assert.Equal(t, stddevBefore, stddevAfter)
	assert.Equal(t, hyperBefore, optimizer.Surrogate().Hyperparameters())

	for optimizer.State() == StateIterating {
		step, err = optimizer.StepOptimization()
		require.NoError(t, err)
		assert.NoError(t, step.FitErr)
	}

	assert.Equal(t, StateCompleted, optimizer.State())
	assert.Len(t, optimizer.Observations(), cfg.InitSamples+cfg.Iterations)
	assert.Equal(t, 1, optimizer.FitFailures())
}

func TestExtremeValuesKeepTheSurrogateFitting(t *testing.T) {
	for _, bad := range []float64{math.Inf(1), math.MaxFloat64 / 2, 1e200, math.NaN()} {
		t.Run(fmt.Sprint(bad), func(t *testing.T) {
			cfg := testConfig([]float64{1}, []float64{10})
			cfg.InitSamples = 5
			cfg.Iterations = 10
			cfg.RelearnPeriod = 3
			cfg.RandomSeed = 4

			calls := 0
			objective := ObjectiveFunc(func(x []float64) float64 {
				calls++
				if calls == 7 {
					return bad
				}

				return absObjective(x)
			})

			result, err := Minimize(cfg, objective, quietLogger())
			require.NoError(t, err)

			assert.Zero(t, result.FitFailures)
			assert.Len(t, result.Observations, 15)

			// The observation keeps the value the objective returned.
			if math.IsNaN(bad) {
				assert.True(t, math.IsNaN(result.Observations[6].Value))
			} else {
				assert.Equal(t, bad, result.Observations[6].Value)
			}

			assert.False(t, math.IsInf(result.Best.Value, 0))
			assert.Less(t, result.Best.Value, 1.0)
		})
	}
}

func TestRelearnFailureFallsBackToFit(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})
	cfg.InitSamples = 4
	cfg.Iterations = 2
	cfg.RelearnPeriod = 1

	surrogate := &flakySurrogate{Surrogate: constantSurrogate(), failRelearn: true}

	optimizer, err := New(cfg, ObjectiveFunc(absObjective), WithSurrogate(surrogate), quietLogger())
	require.NoError(t, err)

	result, err := optimizer.Optimize()
	require.NoError(t, err)

	// One relearn per step plus the closing one, each failing. Every failed
	// step relearn is followed by a plain fit.
	assert.Equal(t, 3, surrogate.relearns)
	assert.Equal(t, 1+2, surrogate.fits)
	assert.Equal(t, 3, result.FitFailures)
	assert.Equal(t, StateCompleted, optimizer.State())
}

func TestFixedLearningNeverRelearns(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})
	cfg.InitSamples = 4
	cfg.Iterations = 5
	cfg.RelearnPeriod = 1
	cfg.LearningType = LearningFixed

	surrogate := &flakySurrogate{Surrogate: constantSurrogate()}

	optimizer, err := New(cfg, ObjectiveFunc(absObjective), WithSurrogate(surrogate), quietLogger())
	require.NoError(t, err)
	require.NoError(t, optimizer.InitializeOptimization())

	for optimizer.State() == StateIterating {
		step, err := optimizer.StepOptimization()
		require.NoError(t, err)
		assert.False(t, step.Relearned)
	}

	assert.Zero(t, surrogate.relearns)
	assert.Equal(t, 1+cfg.Iterations, surrogate.fits)
	assert.Equal(t, StateCompleted, optimizer.State())
}

func TestFirstFitFailureIsFatal(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})

	surrogate := &flakySurrogate{Surrogate: constantSurrogate(), failFitAt: 1}

	optimizer, err := New(cfg, ObjectiveFunc(absObjective), WithSurrogate(surrogate), quietLogger())
	require.NoError(t, err)

	assert.ErrorIs(t, optimizer.InitializeOptimization(), ErrFitFailure)
	assert.Equal(t, StateFailed, optimizer.State())

	_, err = optimizer.StepOptimization()
	assert.ErrorIs(t, err, ErrFitFailure)

	_, err = optimizer.FinalResult()
	assert.ErrorIs(t, err, ErrFitFailure)

	_, err = optimizer.Optimize()
	assert.ErrorIs(t, err, ErrFitFailure)
}

func TestRelearnSchedule(t *testing.T) {
	tests := []struct {
		name       string
		iterations int
		relearns   int
		relearned  []int
	}{
		{name: "ends on a relearn", iterations: 6, relearns: 2, relearned: []int{2, 5}},
		{name: "final relearn", iterations: 7, relearns: 3, relearned: []int{2, 5}},
		{name: "shorter than the period", iterations: 2, relearns: 1, relearned: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig([]float64{0, 0}, []float64{1, 1})
			cfg.InitSamples = 3
			cfg.Iterations = tt.iterations
			cfg.RelearnPeriod = 3

			surrogate := &flakySurrogate{Surrogate: constantSurrogate()}

			optimizer, err := New(cfg, ObjectiveFunc(camelback), WithSurrogate(surrogate), quietLogger())
			require.NoError(t, err)
			require.NoError(t, optimizer.InitializeOptimization())

			// The first fit never relearns.
			assert.Equal(t, 0, surrogate.relearns)

			var relearned []int

			for optimizer.State() == StateIterating {
				step, err := optimizer.StepOptimization()
				require.NoError(t, err)

				if step.Relearned {
					relearned = append(relearned, step.Iteration)
				}
			}

			assert.Equal(t, tt.relearned, relearned)
			assert.Equal(t, tt.relearns, surrogate.relearns)
		})
	}
}

func TestReachabilityIsHonoured(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})
	cfg.InitSamples = 5
	cfg.Iterations = 5

	objective := Constrained(absObjective, func(x []float64) bool { return x[0] >= 5 })

	result, err := Minimize(cfg, objective, quietLogger())
	require.NoError(t, err)

	for _, o := range result.Observations {
		assert.GreaterOrEqual(t, o.Point[0], 5.0)
	}

	// The unconstrained minimum near 3 is out of reach.
	assert.GreaterOrEqual(t, result.Best.Point[0], 5.0)
}

func TestUnreachableDomainFails(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})

	objective := Constrained(absObjective, func([]float64) bool { return false })

	optimizer, err := New(cfg, objective, quietLogger())
	require.NoError(t, err)

	assert.ErrorIs(t, optimizer.InitializeOptimization(), ErrAcquisitionSearchExhausted)
	assert.Equal(t, StateFailed, optimizer.State())
}

func TestObserver(t *testing.T) {
	cfg := testConfig([]float64{1}, []float64{10})
	cfg.InitSamples = 3
	cfg.Iterations = 4

	var iterations []int

	observer := func(iteration int, elapsed time.Duration) {
		iterations = append(iterations, iteration)

		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	}

	_, err := Minimize(cfg, ObjectiveFunc(absObjective), WithObserver(observer), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, iterations)
}

func TestOptimizeProgressChannel(t *testing.T) {
	cfg := testConfig([]float64{-3, -2}, []float64{3, 2})
	cfg.InitSamples = 3
	cfg.Iterations = 5

	// Room for every update, so none is dropped by the non-blocking send.
	progressChan := make(chan ProgressUpdate, cfg.InitSamples+cfg.Iterations)
	cfg.ProgressChan = progressChan

	var counter int32

	done := make(chan struct{})

	// Start a goroutine to handle progress updates.
	go func() {
		defer close(done)

		for update := range progressChan {
			atomic.AddInt32(&counter, int32(update.CurrentIteration))

			assert.Len(t, update.CurrentBestPoint, 2)
		}
	}()

	result, err := Minimize(cfg, ObjectiveFunc(camelback), quietLogger())
	require.NoError(t, err)

	close(progressChan)
	<-done

	// 1+2+3 initial samples, 1+...+5 steps.
	assert.Equal(t, int32(6+15), atomic.LoadInt32(&counter))

	// Ensure the best point is returned.
	assert.Len(t, result.Best.Point, 2)
}
