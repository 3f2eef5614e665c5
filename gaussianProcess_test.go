package bo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSurrogate(t *testing.T, kind SurrogateKind, lower, upper []float64) *gaussianProcess {
	t.Helper()

	domain, err := NewDomain(lower, upper)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.SurrogateKind = kind
	cfg.RelearnIterations = 5

	surrogate, err := NewSurrogate(cfg, domain, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	return surrogate.(*gaussianProcess)
}

func sineObservations(points ...float64) []Observation {
	observations := make([]Observation, len(points))
	for i, x := range points {
		observations[i] = Observation{Point: []float64{x}, Value: math.Sin(x)}
	}

	return observations
}

func TestKernelCorrelation(t *testing.T) {
	for _, kind := range []KernelKind{KernelMaternARD5, KernelSEARD} {
		t.Run(string(kind), func(t *testing.T) {
			k, err := newKernel(kind)
			require.NoError(t, err)

			ls := []float64{0.5, 0.5}
			a := []float64{0.1, 0.2}
			b := []float64{0.4, 0.2}
			c := []float64{0.9, 0.2}

			assert.InDelta(t, 1.0, k.Correlation(a, a, ls), 1e-12)
			assert.InDelta(t, k.Correlation(a, b, ls), k.Correlation(b, a, ls), 1e-12)
			assert.Greater(t, k.Correlation(a, b, ls), k.Correlation(a, c, ls))
			assert.Greater(t, k.Correlation(a, c, ls), 0.0)
		})
	}

	_, err := newKernel("kUnknown")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewSurrogateRejectsUnknownKind(t *testing.T) {
	domain, err := NewDomain([]float64{0}, []float64{1})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.SurrogateKind = "sUnknown"

	_, err = NewSurrogate(cfg, domain, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestPredictBeforeFit(t *testing.T) {
	gp := newTestSurrogate(t, SurrogateGaussianProcessML, []float64{0}, []float64{10})

	mean, stddev := gp.Predict([]float64{5})
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 1.0, stddev)
}

func TestPredictUncertaintyShrinksAtObservations(t *testing.T) {
	for _, kind := range []SurrogateKind{SurrogateGaussianProcess, SurrogateGaussianProcessML, SurrogateStudentTProcessJef} {
		t.Run(string(kind), func(t *testing.T) {
			gp := newTestSurrogate(t, kind, []float64{0}, []float64{10})

			observations := sineObservations(1, 2, 3)
			require.NoError(t, gp.Fit(observations))

			mean, near := gp.Predict([]float64{2})
			_, far := gp.Predict([]float64{9})

			assert.Greater(t, near, 0.0)
			assert.Less(t, near, far)
			assert.InDelta(t, math.Sin(2), mean, 1e-2)
		})
	}
}

func TestPredictMalformedPointReturnsPrior(t *testing.T) {
	gp := newTestSurrogate(t, SurrogateGaussianProcessML, []float64{0}, []float64{10})
	require.NoError(t, gp.Fit(sineObservations(1, 2, 3, 4)))

	priorMean, priorStddev := gp.fit.prior()

	for _, x := range [][]float64{nil, {1, 2}, {math.NaN()}} {
		mean, stddev := gp.Predict(x)
		assert.Equal(t, priorMean, mean)
		assert.Equal(t, priorStddev, stddev)
	}

	assert.Greater(t, priorStddev, 0.0)
}

func TestDegreesOfFreedom(t *testing.T) {
	observations := sineObservations(1, 2, 3, 4, 5)

	gp := newTestSurrogate(t, SurrogateGaussianProcessML, []float64{0}, []float64{10})
	assert.True(t, math.IsInf(gp.DegreesOfFreedom(), 1))
	require.NoError(t, gp.Fit(observations))
	assert.True(t, math.IsInf(gp.DegreesOfFreedom(), 1))

	tp := newTestSurrogate(t, SurrogateStudentTProcessJef, []float64{0}, []float64{10})
	require.NoError(t, tp.Fit(observations))
	assert.Equal(t, 4.0, tp.DegreesOfFreedom())
}

func TestFitFailureKeepsPreviousState(t *testing.T) {
	domain, err := NewDomain([]float64{0}, []float64{10})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ObservationNoise = 0

	surrogate, err := NewSurrogate(cfg, domain, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	require.NoError(t, surrogate.Fit(sineObservations(1, 5)))

	meanBefore, stddevBefore := surrogate.Predict([]float64{3})
	hyperBefore := surrogate.Hyperparameters()

	duplicates := []Observation{
		{Point: []float64{4}, Value: 1},
		{Point: []float64{4}, Value: 2},
	}

	assert.ErrorIs(t, surrogate.Fit(duplicates), ErrFitFailure)
	assert.ErrorIs(t, surrogate.RelearnHyperparameters(duplicates), ErrFitFailure)

	meanAfter, stddevAfter := surrogate.Predict([]float64{3})
	assert.Equal(t, meanBefore, meanAfter)
	assert.Equal(t, stddevBefore, stddevAfter)
	assert.Equal(t, hyperBefore, surrogate.Hyperparameters())
}

func TestFitRejectsInvalidObservations(t *testing.T) {
	gp := newTestSurrogate(t, SurrogateGaussianProcessML, []float64{0}, []float64{10})

	assert.ErrorIs(t, gp.Fit(nil), ErrFitFailure)
	assert.ErrorIs(t, gp.Fit([]Observation{{Point: []float64{1}, Value: math.NaN()}}), ErrFitFailure)
	assert.ErrorIs(t, gp.Fit([]Observation{{Point: []float64{1, 2}, Value: 0}}), ErrFitFailure)
}

func TestFitModelsExtremeValues(t *testing.T) {
	observations := sineObservations(1, 2, 3, 4, 5, 6, 7)
	observations[1].Value = math.Inf(1)
	observations[3].Value = 1e200
	observations[4].Value = math.NaN()
	observations[5].Value = math.Inf(-1)

	gp := newTestSurrogate(t, SurrogateGaussianProcessML, []float64{0}, []float64{10})
	require.NoError(t, gp.Fit(observations))
	require.NoError(t, gp.RelearnHyperparameters(observations))

	mean, stddev := gp.Predict([]float64{2.5})
	assert.False(t, math.IsNaN(mean) || math.IsInf(mean, 0))
	assert.False(t, math.IsNaN(stddev) || math.IsInf(stddev, 0))

	// The caller's observations are not rewritten.
	assert.True(t, math.IsInf(observations[1].Value, 1))
	assert.True(t, math.IsNaN(observations[4].Value))
}

func TestReplaceNonFinite(t *testing.T) {
	values := []float64{1, math.Inf(1), 3, math.NaN(), math.Inf(-1)}
	require.NoError(t, replaceNonFinite(values))
	assert.Equal(t, []float64{1, 5, 3, 5, -1}, values)

	huge := []float64{math.MaxFloat64, math.Inf(1)}
	require.NoError(t, replaceNonFinite(huge))
	assert.Equal(t, []float64{math.MaxFloat64, math.MaxFloat64}, huge)

	assert.ErrorIs(t, replaceNonFinite([]float64{math.NaN(), math.Inf(1)}), ErrFitFailure)
}

func TestMeanStdDoesNotOverflow(t *testing.T) {
	mean, std := meanStd([]float64{0, 1e200})
	assert.InDelta(t, 5e199, mean, 1e186)
	assert.InDelta(t, 5e199, std, 1e186)

	mean, std = meanStd([]float64{2, 2, 2})
	assert.Equal(t, 2.0, mean)
	assert.Equal(t, 1.0, std)
}

func TestRelearnHyperparameters(t *testing.T) {
	observations := sineObservations(0.5, 1.7, 3.1, 4.2, 5.5, 6.3, 7.9, 9.4)

	for _, kind := range []SurrogateKind{SurrogateGaussianProcess, SurrogateGaussianProcessML, SurrogateStudentTProcessJef} {
		for _, score := range []ScoreType{ScoreML, ScoreMAP, ScoreLOOCV} {
			t.Run(string(kind)+"/"+string(score), func(t *testing.T) {
				gp := newTestSurrogate(t, kind, []float64{0}, []float64{10})
				gp.scoreType = score

				require.NoError(t, gp.Fit(observations))

				data, err := gp.prepare(observations)
				require.NoError(t, err)

				before := gp.criterion(data, gp.hyper)
				require.Less(t, before, penalty)

				require.NoError(t, gp.RelearnHyperparameters(observations))

				after := gp.criterion(data, gp.hyper)
				assert.LessOrEqual(t, after, before+1e-6)

				hyper := gp.Hyperparameters()
				require.Len(t, hyper.LengthScales, 1)
				assert.GreaterOrEqual(t, hyper.LengthScales[0], minLengthScale*(1-1e-9))
				assert.LessOrEqual(t, hyper.LengthScales[0], maxLengthScale*(1+1e-9))
			})
		}
	}
}

func TestRelearnIsDeterministic(t *testing.T) {
	observations := sineObservations(0.5, 2.5, 4, 6.1, 8.8)

	a := newTestSurrogate(t, SurrogateGaussianProcessML, []float64{0}, []float64{10})
	b := newTestSurrogate(t, SurrogateGaussianProcessML, []float64{0}, []float64{10})

	require.NoError(t, a.RelearnHyperparameters(observations))
	require.NoError(t, b.RelearnHyperparameters(observations))

	assert.Equal(t, a.Hyperparameters(), b.Hyperparameters())
}

func TestHyperSpaceRoundTrip(t *testing.T) {
	space := newHyperSpace(2, SurrogateGaussianProcess, 1e-6)
	require.Equal(t, 3, space.size())

	h := Hyperparameters{LengthScales: []float64{0.3, 2}, SignalVariance: 4, NoiseVariance: 1e-6}
	back := space.decode(space.encode(h))

	assert.InDeltaSlice(t, h.LengthScales, back.LengthScales, 1e-9)
	assert.InDelta(t, h.SignalVariance, back.SignalVariance, 1e-9)
	assert.Equal(t, h.NoiseVariance, back.NoiseVariance)

	// Out-of-range values are clamped onto the search box.
	clamped := space.decode(space.encode(Hyperparameters{LengthScales: []float64{1e-5, 1e5}, SignalVariance: 1}))
	assert.InDeltaSlice(t, []float64{minLengthScale, maxLengthScale}, clamped.LengthScales, 1e-9)

	assert.Equal(t, 2, newHyperSpace(2, SurrogateGaussianProcessML, 0).size())
}
