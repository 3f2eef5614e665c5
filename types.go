package bo

import "time"

//////
// Const, vars, types.
//////

// SurrogateKind selects the probabilistic model family used to approximate
// the objective. It is a closed set: any value not listed below is rejected
// by Config.Validate.
type SurrogateKind string

const (
	// SurrogateGaussianProcess is a zero-mean Gaussian Process whose signal
	// variance is learned together with the length-scales.
	SurrogateGaussianProcess SurrogateKind = "sGaussianProcess"

	// SurrogateGaussianProcessML is a Gaussian Process with a constant mean and
	// a signal variance both estimated in closed form by maximum likelihood.
	SurrogateGaussianProcessML SurrogateKind = "sGaussianProcessML"

	// SurrogateStudentTProcessJef is the ML process with a Jeffreys prior on
	// the signal variance, which turns the predictive into a Student-t with
	// n-1 degrees of freedom.
	SurrogateStudentTProcessJef SurrogateKind = "sStudentTProcessJef"
)

// KernelKind selects the covariance function of the surrogate.
type KernelKind string

const (
	// KernelMaternARD5 is the Matérn 5/2 kernel with one length-scale per
	// dimension.
	KernelMaternARD5 KernelKind = "kMaternARD5"

	// KernelSEARD is the squared exponential (RBF) kernel with one
	// length-scale per dimension.
	KernelSEARD KernelKind = "kSEARD"
)

// Criterion selects the acquisition function maximized at every step.
type Criterion string

const (
	// CriterionEI is Expected Improvement.
	CriterionEI Criterion = "cEI"

	// CriterionLCB is Lower Confidence Bound.
	CriterionLCB Criterion = "cLCB"

	// CriterionPOI is Probability of Improvement.
	CriterionPOI Criterion = "cPOI"
)

// ScoreType selects the criterion minimized when hyperparameters are
// relearned.
type ScoreType string

const (
	// ScoreML is the negative log marginal likelihood.
	ScoreML ScoreType = "SC_ML"

	// ScoreMAP is the negative log marginal likelihood plus a log-normal prior
	// on the length-scales.
	ScoreMAP ScoreType = "SC_MAP"

	// ScoreLOOCV is the negative leave-one-out log predictive density.
	ScoreLOOCV ScoreType = "SC_LOOCV"
)

// LearningType selects whether hyperparameters are re-estimated during a
// run.
type LearningType string

const (
	// LearningFixed keeps the initial hyperparameters for the whole run: no
	// periodic relearn and no closing relearn.
	LearningFixed LearningType = "L_FIXED"

	// LearningEmpirical relearns a point estimate every RelearnPeriod steps
	// and once more when the run completes.
	LearningEmpirical LearningType = "L_EMPIRICAL"
)

// InitMethod selects how the initial design is drawn.
type InitMethod string

const (
	// InitUniform draws every initial point uniformly inside the box.
	InitUniform InitMethod = "uniform"

	// InitLHS draws the initial points as a Latin hypercube.
	InitLHS InitMethod = "lhs"
)

// State is a stage of the optimization state machine.
type State int

const (
	// StateCreated is the state of a freshly constructed optimizer.
	StateCreated State = iota

	// StateInitializing is entered while the initial design is evaluated.
	StateInitializing

	// StateIterating is entered once the initial design has been fitted.
	StateIterating

	// StateCompleted is entered after the iteration budget is spent.
	StateCompleted

	// StateFailed is entered on any unrecovered error.
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateInitializing:
		return "Initializing"
	case StateIterating:
		return "Iterating"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Observation is an evaluated point of the objective.
type Observation struct {
	// Point is the evaluated point, one coordinate per dimension.
	Point []float64 `json:"point" yaml:"point"`

	// Value is the objective value at Point.
	Value float64 `json:"value" yaml:"value"`
}

// Clone returns a deep copy of the observation.
func (o Observation) Clone() Observation {
	return Observation{
		Point: cloneVector(o.Point),
		Value: o.Value,
	}
}

// Hyperparameters of the surrogate model.
type Hyperparameters struct {
	// LengthScales holds one length-scale per dimension, expressed in
	// unit-cube coordinates (the domain is rescaled to [0, 1]^d before any
	// kernel evaluation).
	LengthScales []float64 `json:"length_scales" yaml:"length_scales"`

	// SignalVariance is the prior variance of the standardized objective.
	SignalVariance float64 `json:"signal_variance" yaml:"signal_variance"`

	// NoiseVariance is the observation-noise variance of the standardized
	// objective, taken from Config.ObservationNoise.
	NoiseVariance float64 `json:"noise_variance" yaml:"noise_variance"`
}

// Clone returns a deep copy of the hyperparameters.
func (h Hyperparameters) Clone() Hyperparameters {
	return Hyperparameters{
		LengthScales:   cloneVector(h.LengthScales),
		SignalVariance: h.SignalVariance,
		NoiseVariance:  h.NoiseVariance,
	}
}

// ProgressUpdate represents the current state of the optimization process.
type ProgressUpdate struct {
	// Phase indicates whether we're in initial sampling or optimization phase
	Phase string

	// CurrentIteration is the current iteration number
	CurrentIteration int

	// TotalIterations is the total number of iterations to run
	TotalIterations int

	// CurrentPoint holds the point being evaluated
	CurrentPoint []float64

	// CurrentBestPoint holds the best point found so far
	CurrentBestPoint []float64

	// CurrentBestValue holds the best objective value found so far
	CurrentBestValue float64

	// LastValue holds the objective value of the last evaluation
	LastValue float64
}

// AcquisitionParams holds parameters used by the acquisition functions to
// decide which point to sample next.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off of the Lower
	// Confidence Bound.
	// - Higher values (e.g., 3.0 or 5.0) encourage more exploration of uncertain areas
	// - Lower values (e.g., 0.1 or 0.5) focus more on exploiting known good areas
	Beta float64 `json:"beta" yaml:"beta"`

	// Xi is the minimum improvement, in objective units, that Probability of
	// Improvement and Expected Improvement ask for over BestSoFar.
	Xi float64 `json:"xi" yaml:"xi"`

	// BestSoFar is the lowest objective value observed so far. It is
	// maintained by the optimizer.
	BestSoFar float64 `json:"-" yaml:"-"`

	// DegreesOfFreedom of the predictive distribution. +Inf selects a normal
	// predictive, finite values select a Student-t. Maintained by the
	// optimizer from the surrogate.
	DegreesOfFreedom float64 `json:"-" yaml:"-"`
}

// AcquisitionFunc scores a point from its predictive mean and standard
// deviation. Higher values indicate more promising points.
//
// Built-in acquisition functions:
// - ExpectedImprovement
// - LowerConfidenceBound
// - ProbabilityOfImprovement
//
// Implementation notes for custom acquisition functions:
// - Must be deterministic
// - Should handle a zero or tiny stddev
// - Should return higher values for more promising points.
type AcquisitionFunc func(mean, stddev float64, params AcquisitionParams) float64

// StepObserver is notified once per completed optimization step with the
// zero-based iteration index and the wall-clock time the step took.
type StepObserver func(iteration int, elapsed time.Duration)

// Config holds all configuration parameters of a run. Build it with
// DefaultConfig and adjust the fields you need; it must not be changed once
// passed to New.
//
// Usage example:
//
//	cfg := DefaultConfig()
//	cfg.Lower = []float64{1}
//	cfg.Upper = []float64{10}
//	cfg.InitSamples = 10
//	cfg.Iterations = 20
//	cfg.RelearnPeriod = 1
//
// Recommended settings:
//   - Iterations: 20-200 (more = better results but longer runtime)
//   - InitSamples: 5-20 (more = better initial model)
//   - RelearnPeriod: 1-50 (lower = better model, slower iterations)
type Config struct {
	// Lower is the lower corner of the search box.
	Lower []float64 `json:"lower" yaml:"lower"`

	// Upper is the upper corner of the search box.
	Upper []float64 `json:"upper" yaml:"upper"`

	// InitSamples is the number of points evaluated before the surrogate is
	// used. Must be at least 1.
	InitSamples int `json:"init_samples" yaml:"init_samples"`

	// Iterations is the number of model-guided evaluations after the initial
	// design. Zero is allowed.
	Iterations int `json:"iterations" yaml:"iterations"`

	// RelearnPeriod is the number of steps between hyperparameter
	// re-estimations. Must be at least 1.
	RelearnPeriod int `json:"relearn_period" yaml:"relearn_period"`

	// SurrogateKind selects the model family.
	SurrogateKind SurrogateKind `json:"surrogate_kind" yaml:"surrogate_kind"`

	// Kernel selects the covariance function.
	Kernel KernelKind `json:"kernel" yaml:"kernel"`

	// ObservationNoise is the assumed noise variance of the standardized
	// objective. Zero assumes exact evaluations.
	ObservationNoise float64 `json:"observation_noise" yaml:"observation_noise"`

	// RandomSeed seeds the single random stream of the run.
	RandomSeed int64 `json:"random_seed" yaml:"random_seed"`

	// Verbosity maps to the default logger level: 0 warn, 1 info, 2+ debug.
	Verbosity int `json:"verbosity" yaml:"verbosity"`

	// InitMethod selects how the initial design is drawn.
	InitMethod InitMethod `json:"init_method" yaml:"init_method"`

	// Criterion selects the acquisition function.
	Criterion Criterion `json:"criterion" yaml:"criterion"`

	// AcqParams holds the parameters of the acquisition function.
	AcqParams AcquisitionParams `json:"acq_params" yaml:"acq_params"`

	// ScoreType selects the hyperparameter relearning criterion.
	ScoreType ScoreType `json:"score_type" yaml:"score_type"`

	// LearningType turns hyperparameter relearning on or off.
	LearningType LearningType `json:"learning_type" yaml:"learning_type"`

	// NumCandidates is the number of feasible random candidates scored per
	// acquisition search.
	NumCandidates int `json:"num_candidates" yaml:"num_candidates"`

	// LocalStarts is the number of best candidates refined by a local search.
	LocalStarts int `json:"local_starts" yaml:"local_starts"`

	// SearchBudget bounds the number of random draws spent looking for
	// feasible candidates. Must be at least NumCandidates.
	SearchBudget int `json:"search_budget" yaml:"search_budget"`

	// RelearnIterations is the number of generations of the global
	// hyperparameter search.
	RelearnIterations int `json:"relearn_iterations" yaml:"relearn_iterations"`

	// RelearnPopulation is the population size of the global hyperparameter
	// search. Must be at least 20.
	RelearnPopulation int `json:"relearn_population" yaml:"relearn_population"`

	// ProgressChan is used to send progress updates during optimization.
	// If nil, no updates will be sent.
	ProgressChan chan<- ProgressUpdate `json:"-" yaml:"-"`
}
