// Package bo minimizes expensive, derivative-free objectives over a bounded
// box using sequential Bayesian optimization: a probabilistic surrogate is
// fitted to the evaluations made so far and an acquisition function decides
// where to evaluate next.
//
// # Features
//
// The package includes the following key features:
//
//   - Surrogate models: Gaussian Process, Gaussian Process with maximum
//     likelihood mean and variance, and Student-t Process with a Jeffreys
//     prior, over Matérn 5/2 or squared exponential ARD kernels
//   - Hyperparameter relearning: maximum likelihood, maximum a posteriori or
//     leave-one-out criteria, searched with mayfly then polished with
//     Nelder-Mead
//   - Acquisition functions: Expected Improvement, Lower Confidence Bound and
//     Probability of Improvement
//   - Reachability constraints: a predicate can carve a non-box feasible
//     region out of the search box
//   - Reproducible runs: one seeded random stream drives the whole run
//   - Progress monitoring: non-blocking updates via channels, per-step
//     observers and structured logging with log/slog
//
// # Usage
//
//	cfg := bo.DefaultConfig()
//	cfg.Lower = []float64{-3, -2}
//	cfg.Upper = []float64{3, 2}
//	cfg.Iterations = 40
//
//	result, err := bo.Minimize(cfg, bo.ObjectiveFunc(camelback))
//	if err != nil {
//	    return err
//	}
//
//	fmt.Println(result.Best.Point, result.Best.Value)
//
// For step-by-step control, build an Optimizer with New and call
// InitializeOptimization, then StepOptimization until State reports
// StateCompleted.
//
// # Acquisition Functions
//
// 1. Expected Improvement (EI), the default:
//
//   - Balances improvement probability and magnitude
//
//   - Xi asks for a minimum improvement, in objective units
//
//     cfg.Criterion = bo.CriterionEI
//     cfg.AcqParams.Xi = 0.01
//
// 2. Lower Confidence Bound (LCB):
//
//   - Controlled by Beta (higher = more exploration)
//
//     cfg.Criterion = bo.CriterionLCB
//     cfg.AcqParams.Beta = 2.0
//
// 3. Probability of Improvement (POI):
//
//   - Conservative, favours small reliable improvements
//
//     cfg.Criterion = bo.CriterionPOI
//
// With the Student-t process, EI and POI use the Student-t predictive.
//
// # Configuration
//
// Config is a plain value. DefaultConfig returns sane defaults; LoadConfig
// and SaveConfig read and write it as YAML.
//
// Recommended settings:
//   - InitSamples: 5-20 (more = better initial model)
//   - Iterations: 20-200 (more = better results but longer runtime)
//   - RelearnPeriod: 1-50 (lower = better model, slower iterations)
//   - NumCandidates: 100-5000 (more = better search but slower iterations)
//
// # Thread Safety
//
// An Optimizer runs single-threaded and must not be shared between
// goroutines. The surrogate guards its state with an RWMutex so it can be
// queried while a run is inspected from another goroutine.
package bo
