package bo

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

//////
// Const, vars, types.
//////

const (
	// Length-scale search range, in unit-cube coordinates.
	minLengthScale = 1e-2
	maxLengthScale = 1e1

	// Signal variance search range, in standardized units. Only searched by
	// the plain Gaussian process, the other kinds estimate it in closed form.
	minSearchSignalVariance = 1e-2
	maxSearchSignalVariance = 1e2

	// Log-normal prior on the length-scales used by ScoreMAP.
	priorLogLengthScale = -0.6931471805599453 // log(0.5)
	priorLogStd         = 1.0

	// penalty stands in for +Inf in the search objectives: Nelder-Mead and
	// the mayfly population both need finite values to order candidates.
	penalty = 1e300

	// Local polish budget.
	polishEvaluations = 200
)

// hyperSpace maps the normalized search box [0,1]^k to hyperparameters. The
// first Dim coordinates are log length-scales, the optional last one is the
// log signal variance.
type hyperSpace struct {
	dim        int
	withSignal bool
	noise      float64
}

//////
// Factory.
//////

func newHyperSpace(dim int, kind SurrogateKind, noise float64) hyperSpace {
	return hyperSpace{
		dim:        dim,
		withSignal: kind == SurrogateGaussianProcess,
		noise:      noise,
	}
}

//////
// Methods.
//////

// size is the number of searched coordinates.
func (s hyperSpace) size() int {
	if s.withSignal {
		return s.dim + 1
	}

	return s.dim
}

// decode maps z to hyperparameters. z is clamped to the unit box first.
func (s hyperSpace) decode(z []float64) Hyperparameters {
	h := Hyperparameters{
		LengthScales:   make([]float64, s.dim),
		SignalVariance: 1.0,
		NoiseVariance:  s.noise,
	}

	for i := 0; i < s.dim; i++ {
		h.LengthScales[i] = logInterpolate(z[i], minLengthScale, maxLengthScale)
	}

	if s.withSignal {
		h.SignalVariance = logInterpolate(z[s.dim], minSearchSignalVariance, maxSearchSignalVariance)
	}

	return h
}

// encode is the inverse of decode. Values outside the search range are
// clamped onto it.
func (s hyperSpace) encode(h Hyperparameters) []float64 {
	z := make([]float64, s.size())

	for i := 0; i < s.dim; i++ {
		z[i] = logNormalize(h.LengthScales[i], minLengthScale, maxLengthScale)
	}

	if s.withSignal {
		z[s.dim] = logNormalize(h.SignalVariance, minSearchSignalVariance, maxSearchSignalVariance)
	}

	return z
}

// RelearnHyperparameters implements Surrogate.
//
// How it works:
// 1. Scores the current hyperparameters with the configured criterion
// 2. Runs a mayfly search over the normalized hyperparameter box
// 3. Polishes the best point found with Nelder-Mead
// 4. Keeps the candidate only if it is finite and not worse than the current
// hyperparameters, then fits with it
//
// On failure the hyperparameters and the fit stay as they were.
func (gp *gaussianProcess) RelearnHyperparameters(observations []Observation) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	data, err := gp.prepare(observations)
	if err != nil {
		return err
	}

	space := newHyperSpace(gp.domain.Dim(), gp.kind, gp.hyper.NoiseVariance)

	score := func(z []float64) float64 {
		return gp.criterion(data, space.decode(clampUnit(z)))
	}

	bestZ := space.encode(gp.hyper)
	bestScore := score(bestZ)

	// Global stage.
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = score
	config.ProblemSize = space.size()
	config.MaxIterations = gp.relearnIterations
	config.NPop = gp.relearnPopulation
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(gp.rng.Int63()))

	if result, err := mayfly.Optimize(config); err == nil {
		z := clampUnit(result.GlobalBest.Position)
		if s := score(z); s < bestScore {
			bestZ, bestScore = z, s
		}
	}

	// Local stage.
	problem := optimize.Problem{Func: score}
	settings := &optimize.Settings{
		FuncEvaluations: polishEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-8,
			Iterations: 20,
		},
	}

	// A polish error only means the global stage result is kept.
	if result, _ := optimize.Minimize(problem, cloneVector(bestZ), settings, &optimize.NelderMead{}); result != nil {
		z := clampUnit(result.X)
		if s := score(z); s < bestScore {
			bestZ, bestScore = z, s
		}
	}

	if bestScore >= penalty {
		return fmt.Errorf("%w: no hyperparameters yield a valid fit", ErrFitFailure)
	}

	hyper := space.decode(bestZ)

	fit, err := data.fit(gp, hyper)
	if err != nil {
		return err
	}

	gp.hyper = hyper
	gp.fit = fit

	return nil
}

// criterion returns the value minimized by the relearn search for hyper, or
// penalty when the process cannot be fitted with it.
func (gp *gaussianProcess) criterion(data trainingData, hyper Hyperparameters) float64 {
	fit, err := gp.solve(data.points, data.y, hyper)
	if err != nil {
		return penalty
	}

	var value float64

	switch gp.scoreType {
	case ScoreLOOCV:
		value = gp.leaveOneOut(fit)
	case ScoreMAP:
		value = gp.negLogLikelihood(fit) + logNormalPrior(hyper.LengthScales)
	default:
		value = gp.negLogLikelihood(fit)
	}

	if math.IsNaN(value) || math.IsInf(value, 0) || value > penalty {
		return penalty
	}

	return value
}

// negLogLikelihood returns the negative log marginal likelihood of the
// standardized values, up to a constant that does not depend on the
// hyperparameters.
func (gp *gaussianProcess) negLogLikelihood(fit *gpFit) float64 {
	n := float64(len(fit.points))

	switch gp.kind {
	case SurrogateGaussianProcess:
		s2 := fit.signalVariance

		return 0.5*fit.quad/s2 + 0.5*fit.logDet + 0.5*n*math.Log(s2)
	case SurrogateStudentTProcessJef:
		// Mean and signal variance integrated out under the Jeffreys prior.
		return 0.5*fit.logDet + 0.5*math.Log(fit.onesQuad) + 0.5*(n-1)*math.Log(math.Max(fit.quad, minSignalVariance))
	default:
		return 0.5*fit.logDet + 0.5*n*math.Log(fit.signalVariance)
	}
}

// leaveOneOut returns the negative leave-one-out log predictive density,
// computed in closed form from the diagonal of R^-1.
func (gp *gaussianProcess) leaveOneOut(fit *gpFit) float64 {
	n := len(fit.points)

	var inverse mat.SymDense
	if err := fit.chol.InverseTo(&inverse); err != nil {
		return penalty
	}

	var total float64

	for i := 0; i < n; i++ {
		d := inverse.At(i, i)
		if d <= 0 {
			return penalty
		}

		residual := fit.alpha.AtVec(i) / d
		variance := fit.signalVariance / d

		total += 0.5*math.Log(2*math.Pi*variance) + residual*residual/(2*variance)
	}

	return total
}

//////
// Helper functions.
//////

// logNormalPrior is the negative log density, up to a constant, of the
// length-scale prior.
func logNormalPrior(lengthScales []float64) float64 {
	var sum float64

	for _, l := range lengthScales {
		d := (math.Log(l) - priorLogLengthScale) / priorLogStd

		sum += 0.5 * d * d
	}

	return sum
}

// logInterpolate maps t in [0, 1] log-linearly onto [lo, hi].
func logInterpolate(t, lo, hi float64) float64 {
	return math.Exp(math.Log(lo) + clamp(t, 0, 1)*(math.Log(hi)-math.Log(lo)))
}

// logNormalize is the inverse of logInterpolate.
func logNormalize(v, lo, hi float64) float64 {
	if !(v > 0) {
		return 0
	}

	return clamp((math.Log(v)-math.Log(lo))/(math.Log(hi)-math.Log(lo)), 0, 1)
}

// clampUnit returns a copy of z clamped to the unit box.
func clampUnit(z []float64) []float64 {
	out := make([]float64, len(z))

	for i, v := range z {
		if math.IsNaN(v) {
			v = 0.5
		}

		out[i] = clamp(v, 0, 1)
	}

	return out
}
