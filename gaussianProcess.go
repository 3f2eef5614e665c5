package bo

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

const (
	// defaultLengthScale is the initial length-scale on every unit-cube axis.
	defaultLengthScale = 0.5

	// minSignalVariance keeps closed-form signal variance estimates positive
	// when every observation has the same value.
	minSignalVariance = 1e-10

	// minPredictiveVariance is the floor of the predictive variance, in
	// standardized units, so that the predictive stddev is never zero even
	// with ObservationNoise == 0.
	minPredictiveVariance = 1e-12

	// maxCondition is the largest condition number of the correlation matrix
	// accepted by a fit. Beyond it the solves lose every significant digit.
	maxCondition = 1e15
)

// Surrogate is a probabilistic model of the objective, fitted to the
// observations gathered so far.
//
// Contract:
//   - Fit recomputes the model from the full observation sequence with the
//     current hyperparameters. On failure it returns an error wrapping
//     ErrFitFailure and the previous state is left untouched.
//   - RelearnHyperparameters re-estimates the hyperparameters, then fits.
//     Same failure semantics as Fit.
//   - Predict returns the posterior predictive mean and standard deviation.
//     The stddev is > 0 and shrinks toward the noise floor near observed
//     points. Predict must not be called before the first successful Fit.
//     A point of the wrong dimension, or with a non-finite coordinate, gets
//     the prior of the fitted model.
//   - DegreesOfFreedom returns +Inf for a normal predictive, or the degrees of
//     freedom of a Student-t predictive.
type Surrogate interface {
	Fit(observations []Observation) error
	RelearnHyperparameters(observations []Observation) error
	Predict(x []float64) (mean, stddev float64)
	Hyperparameters() Hyperparameters
	DegreesOfFreedom() float64
}

// gaussianProcess implements Surrogate with a Gaussian (or Student-t) process
// over the unit cube.
//
// Fields:
// - mu: RWMutex for thread-safe access to all fields
// - kind: model family
// - kernel: correlation function
// - domain: maps points to and from the unit cube
// - hyper: current hyperparameters
// - fit: sufficient statistics of the last successful fit, nil before it
//
// Memory usage:
// - O(n^2) for the Cholesky factor where n is the number of observations.
type gaussianProcess struct {
	// mu protects access to all fields
	mu sync.RWMutex

	kind      SurrogateKind
	kernel    kernel
	domain    *Domain
	scoreType ScoreType

	// relearn settings. rng is the run's shared random stream.
	relearnIterations int
	relearnPopulation int
	rng               *rand.Rand

	hyper Hyperparameters
	fit   *gpFit
}

// gpFit holds everything Predict needs. It is immutable once built, which is
// what makes a failed fit leave the previous one in place.
type gpFit struct {
	hyper Hyperparameters

	// points are the observed points in unit-cube coordinates.
	points [][]float64

	// yMean and yStd standardize the observed values.
	yMean, yStd float64

	// mean is the prior mean of the standardized values.
	mean float64

	// signalVariance is the variance the correlation matrix is scaled by.
	signalVariance float64

	chol *mat.Cholesky

	// alpha is R^-1 (y - mean), R being the correlation matrix plus noise.
	alpha *mat.VecDense

	// quad is (y - mean)^T R^-1 (y - mean) and logDet is log|R|.
	quad, logDet float64

	// onesQuad is 1^T R^-1 1, used by the Jeffreys marginal likelihood.
	onesQuad float64

	dof float64
}

// prior returns the predictive mean and stddev far from every observation.
func (f *gpFit) prior() (mean, stddev float64) {
	return f.yMean + f.yStd*f.mean, f.yStd * math.Sqrt(f.signalVariance*(1+f.hyper.NoiseVariance))
}

//////
// Factory.
//////

// NewSurrogate returns the surrogate selected by cfg.SurrogateKind, working
// on domain and drawing the seeds of its hyperparameter search from rng.
//
// Usage example:
//
//	rng := rand.New(rand.NewSource(cfg.RandomSeed))
//	surrogate, err := NewSurrogate(cfg, domain, rng)
//	if err != nil {
//	    return err
//	}
//	if err := surrogate.Fit(observations); err != nil {
//	    return err
//	}
//	mean, stddev := surrogate.Predict([]float64{2.5})
func NewSurrogate(cfg Config, domain *Domain, rng *rand.Rand) (Surrogate, error) {
	switch cfg.SurrogateKind {
	case SurrogateGaussianProcess, SurrogateGaussianProcessML, SurrogateStudentTProcessJef:
	default:
		return nil, fmt.Errorf("%w: unknown surrogate kind %q", ErrInvalidConfiguration, cfg.SurrogateKind)
	}

	k, err := newKernel(cfg.Kernel)
	if err != nil {
		return nil, err
	}

	lengthScales := make([]float64, domain.Dim())
	for i := range lengthScales {
		lengthScales[i] = defaultLengthScale
	}

	return &gaussianProcess{
		kind:              cfg.SurrogateKind,
		kernel:            k,
		domain:            domain,
		scoreType:         cfg.ScoreType,
		relearnIterations: cfg.RelearnIterations,
		relearnPopulation: cfg.RelearnPopulation,
		rng:               rng,
		hyper: Hyperparameters{
			LengthScales:   lengthScales,
			SignalVariance: 1.0,
			NoiseVariance:  cfg.ObservationNoise,
		},
	}, nil
}

//////
// Methods.
//////

// Fit implements Surrogate.
func (gp *gaussianProcess) Fit(observations []Observation) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	fit, err := gp.buildFit(observations, gp.hyper)
	if err != nil {
		return err
	}

	gp.fit = fit

	return nil
}

// Predict implements Surrogate.
//
// Mathematical details:
//   - r is the correlation between x and every observed point
//   - mean = yMean + yStd * (m + r^T alpha)
//   - variance = yStd^2 * s2 * (max(1 - r^T R^-1 r, 0) + noise)
//
// Returns (0, 1) if the model was never fitted, and the prior of the fit for
// a point that does not belong to the domain's space.
func (gp *gaussianProcess) Predict(x []float64) (mean, stddev float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	fit := gp.fit
	if fit == nil {
		return 0, 1
	}

	if len(x) != gp.domain.Dim() || !allFinite(x) {
		return fit.prior()
	}

	u := gp.domain.ToUnit(x)

	n := len(fit.points)
	r := mat.NewVecDense(n, nil)

	for i, p := range fit.points {
		r.SetVec(i, gp.kernel.Correlation(u, p, fit.hyper.LengthScales))
	}

	standardMean := fit.mean + mat.Dot(r, fit.alpha)

	var w mat.VecDense
	if err := fit.chol.SolveVecTo(&w, r); err != nil {
		// Cannot happen with a factorization that succeeded.
		return fit.prior()
	}

	latent := math.Max(1-mat.Dot(r, &w), 0)
	noise := math.Max(fit.hyper.NoiseVariance, minPredictiveVariance)
	variance := fit.signalVariance * (latent + noise)

	return fit.yMean + fit.yStd*standardMean, fit.yStd * math.Sqrt(variance)
}

// Hyperparameters implements Surrogate. It returns the hyperparameters of the
// last successful fit, or the initial ones before any fit.
func (gp *gaussianProcess) Hyperparameters() Hyperparameters {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if gp.fit != nil {
		h := gp.fit.hyper.Clone()
		h.SignalVariance = gp.fit.signalVariance

		return h
	}

	return gp.hyper.Clone()
}

// DegreesOfFreedom implements Surrogate.
func (gp *gaussianProcess) DegreesOfFreedom() float64 {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if gp.fit == nil {
		return math.Inf(1)
	}

	return gp.fit.dof
}

// buildFit computes the sufficient statistics for observations under hyper
// without touching gp. The caller holds the lock.
func (gp *gaussianProcess) buildFit(observations []Observation, hyper Hyperparameters) (*gpFit, error) {
	data, err := gp.prepare(observations)
	if err != nil {
		return nil, err
	}

	return data.fit(gp, hyper)
}

// trainingData is the observation sequence in the coordinates the process
// works in: unit-cube points and standardized values.
type trainingData struct {
	points      [][]float64
	y           *mat.VecDense
	yMean, yStd float64
}

// fit solves the process for hyper and attaches the standardization.
func (t trainingData) fit(gp *gaussianProcess, hyper Hyperparameters) (*gpFit, error) {
	fit, err := gp.solve(t.points, t.y, hyper)
	if err != nil {
		return nil, err
	}

	fit.yMean = t.yMean
	fit.yStd = t.yStd

	return fit, nil
}

// prepare validates the observations and converts them to training data.
// Non-finite values are modelled through finite stand-ins, see
// replaceNonFinite; the observations themselves are left untouched.
func (gp *gaussianProcess) prepare(observations []Observation) (trainingData, error) {
	n := len(observations)
	if n == 0 {
		return trainingData{}, fmt.Errorf("%w: no observations", ErrFitFailure)
	}

	points := make([][]float64, n)
	values := make([]float64, n)

	for i, o := range observations {
		if len(o.Point) != gp.domain.Dim() || !allFinite(o.Point) {
			return trainingData{}, fmt.Errorf("%w: observation %d has an invalid point", ErrFitFailure, i)
		}

		points[i] = gp.domain.ToUnit(o.Point)
		values[i] = o.Value
	}

	if err := replaceNonFinite(values); err != nil {
		return trainingData{}, err
	}

	yMean, yStd := meanStd(values)

	y := mat.NewVecDense(n, nil)
	for i, v := range values {
		y.SetVec(i, (v-yMean)/yStd)
	}

	return trainingData{points: points, y: y, yMean: yMean, yStd: yStd}, nil
}

// solve factorizes the correlation matrix of points under hyper and derives
// the prior mean, the signal variance and the weights for the standardized
// values y.
func (gp *gaussianProcess) solve(points [][]float64, y *mat.VecDense, hyper Hyperparameters) (*gpFit, error) {
	n := len(points)

	chol, err := gp.factorize(points, hyper)
	if err != nil {
		return nil, err
	}

	ones := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		ones.SetVec(i, 1)
	}

	var onesW mat.VecDense
	if err := chol.SolveVecTo(&onesW, ones); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFitFailure, err)
	}

	onesQuad := mat.Dot(ones, &onesW)

	// Generalized least squares estimate of a constant mean. The plain GP
	// keeps a zero prior mean on the standardized values.
	var priorMean float64
	if gp.kind != SurrogateGaussianProcess {
		var yW mat.VecDense
		if err := chol.SolveVecTo(&yW, y); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFitFailure, err)
		}

		priorMean = mat.Dot(ones, &yW) / onesQuad
	}

	residual := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		residual.SetVec(i, y.AtVec(i)-priorMean)
	}

	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, residual); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFitFailure, err)
	}

	quad := mat.Dot(residual, alpha)

	if !allFinite(alpha.RawVector().Data) || math.IsNaN(quad) || math.IsInf(quad, 0) {
		return nil, fmt.Errorf("%w: non-finite weights", ErrFitFailure)
	}

	signalVariance := hyper.SignalVariance
	dof := math.Inf(1)

	switch gp.kind {
	case SurrogateGaussianProcessML:
		signalVariance = math.Max(quad/float64(n), minSignalVariance)
	case SurrogateStudentTProcessJef:
		dof = float64(max(n-1, 1))
		signalVariance = math.Max(quad/dof, minSignalVariance)
	}

	return &gpFit{
		hyper:          hyper.Clone(),
		points:         points,
		mean:           priorMean,
		signalVariance: signalVariance,
		chol:           chol,
		alpha:          alpha,
		quad:           quad,
		logDet:         chol.LogDet(),
		onesQuad:       onesQuad,
		dof:            dof,
	}, nil
}

// factorize builds R = C + noise*I, C being the kernel correlation matrix of
// points, and returns its Cholesky factorization. A matrix that is not
// numerically positive definite yields ErrFitFailure.
func (gp *gaussianProcess) factorize(points [][]float64, hyper Hyperparameters) (*mat.Cholesky, error) {
	n := len(points)
	r := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		r.SetSym(i, i, 1+hyper.NoiseVariance)

		for j := 0; j < i; j++ {
			r.SetSym(i, j, gp.kernel.Correlation(points[i], points[j], hyper.LengthScales))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(r); !ok {
		return nil, fmt.Errorf("%w: covariance matrix is not positive definite (n=%d)", ErrFitFailure, n)
	}

	if cond := chol.Cond(); math.IsNaN(cond) || cond > maxCondition {
		return nil, fmt.Errorf("%w: covariance matrix is ill-conditioned (n=%d, cond=%g)", ErrFitFailure, n, cond)
	}

	return &chol, nil
}

// replaceNonFinite substitutes, in place, +Inf and NaN with a value one
// finite range above the worst finite value, and -Inf with one range below
// the best. It fails when no value is finite.
func replaceNonFinite(values []float64) error {
	lo, hi := math.Inf(1), math.Inf(-1)

	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	if lo > hi {
		return fmt.Errorf("%w: no observation has a finite value", ErrFitFailure)
	}

	span := hi - lo
	if span == 0 || math.IsInf(span, 0) {
		span = math.Max(math.Max(math.Abs(lo), math.Abs(hi)), 1)
	}

	worse := math.Min(hi+span, math.MaxFloat64)
	better := math.Max(lo-span, -math.MaxFloat64)

	for i, v := range values {
		switch {
		case math.IsNaN(v), math.IsInf(v, 1):
			values[i] = worse
		case math.IsInf(v, -1):
			values[i] = better
		}
	}

	return nil
}
