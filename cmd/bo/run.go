package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/thalesfsp/bo"
)

var (
	configPath    string
	objectiveName string
	timeLogPath   string
	noProgress    bool

	lowerBounds   []float64
	upperBounds   []float64
	initSamples   int
	iterations    int
	relearnPeriod int
	surrogateKind string
	kernelKind    string
	criterion     string
	scoreType     string
	initMethod    string
	learningType  string
	noise         float64
	seed          int64
	verbosity     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Minimize a built-in objective",
	Long: `Runs a Bayesian optimization of one of the built-in objectives and prints
the best point found. Options come from --config when given, then from the
flags set on the command line.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	runCmd.Flags().StringVar(&objectiveName, "objective", "abs", fmt.Sprintf("Objective to minimize %v", objectiveNames()))
	runCmd.Flags().StringVar(&timeLogPath, "time-log", "", "Write per-step timings as CSV to this file")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	runCmd.Flags().Float64SliceVar(&lowerBounds, "lower", nil, "Lower bounds (defaults to the objective's box)")
	runCmd.Flags().Float64SliceVar(&upperBounds, "upper", nil, "Upper bounds (defaults to the objective's box)")
	runCmd.Flags().IntVar(&initSamples, "init-samples", 10, "Size of the initial design")
	runCmd.Flags().IntVar(&iterations, "iterations", 50, "Number of model-guided evaluations")
	runCmd.Flags().IntVar(&relearnPeriod, "relearn-period", 10, "Steps between hyperparameter relearns")
	runCmd.Flags().StringVar(&surrogateKind, "surrogate", string(bo.SurrogateGaussianProcessML), "Surrogate kind: sGaussianProcess, sGaussianProcessML, sStudentTProcessJef")
	runCmd.Flags().StringVar(&kernelKind, "kernel", string(bo.KernelMaternARD5), "Kernel: kMaternARD5, kSEARD")
	runCmd.Flags().StringVar(&criterion, "criterion", string(bo.CriterionEI), "Acquisition criterion: cEI, cLCB, cPOI")
	runCmd.Flags().StringVar(&scoreType, "score", string(bo.ScoreMAP), "Relearn criterion: SC_ML, SC_MAP, SC_LOOCV")
	runCmd.Flags().StringVar(&initMethod, "init-method", string(bo.InitUniform), "Initial design: uniform, lhs")
	runCmd.Flags().StringVar(&learningType, "learning-type", string(bo.LearningEmpirical), "Hyperparameter learning: L_EMPIRICAL, L_FIXED")
	runCmd.Flags().Float64Var(&noise, "noise", 1e-6, "Observation noise variance")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Random seed")
	runCmd.Flags().IntVar(&verbosity, "verbosity", 0, "Optimizer verbosity (0 warn, 1 info, 2 debug), used when --log-level is not set")

	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	demo, err := lookupObjective(objectiveName)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(cmd, demo)
	if err != nil {
		return err
	}

	runLog := runLogger(cmd, cfg)

	opts := []bo.Option{bo.WithLogger(runLog)}

	if timeLogPath != "" {
		tl, err := newTimeLog(timeLogPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := tl.Close(); err != nil {
				runLog.Error("Time log incomplete", "error", err)
			}
		}()

		opts = append(opts, bo.WithObserver(tl.observer()))
	}

	var barDone chan struct{}

	if !noProgress {
		progress := make(chan bo.ProgressUpdate, 16)
		cfg.ProgressChan = progress

		barDone = make(chan struct{})
		go renderProgress(progress, cfg.InitSamples+cfg.Iterations, barDone)

		defer func() {
			close(progress)
			<-barDone
		}()
	}

	optimizer, err := bo.New(cfg, demo.objective, opts...)
	if err != nil {
		return err
	}

	runLog.Info("Starting optimization",
		"objective", objectiveName,
		"run_id", optimizer.RunID(),
		"init_samples", cfg.InitSamples,
		"iterations", cfg.Iterations,
		"surrogate", cfg.SurrogateKind,
	)

	start := time.Now()

	result, err := optimizer.Optimize()
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	point, err := optimizer.FinalResult()
	if err != nil {
		return err
	}

	// Report the objective at the returned point through the same adapter.
	value, err := optimizer.Evaluate(point)
	if err != nil {
		return err
	}

	runLog.Info("Optimization complete",
		"elapsed", time.Since(start),
		"evaluations", result.Evaluations,
		"fit_failures", result.FitFailures,
		"best_value", value,
	)

	fmt.Printf("\nBest point: %v\nBest value: %g\nEvaluations: %d (fit failures: %d)\n",
		point, value, result.Evaluations, result.FitFailures)

	return nil
}

// buildConfig starts from --config, or the defaults, then applies the flags
// that were set explicitly. Missing bounds come from the demo objective.
func buildConfig(cmd *cobra.Command, demo demoObjective) (bo.Config, error) {
	cfg := bo.DefaultConfig()

	if configPath != "" {
		loaded, err := bo.LoadConfig(configPath)
		if err != nil {
			return bo.Config{}, err
		}

		cfg = loaded
	}

	flags := cmd.Flags()

	if flags.Changed("lower") {
		cfg.Lower = lowerBounds
	}

	if flags.Changed("upper") {
		cfg.Upper = upperBounds
	}

	if len(cfg.Lower) == 0 && len(cfg.Upper) == 0 {
		cfg.Lower = demo.lower
		cfg.Upper = demo.upper
	}

	if flags.Changed("init-samples") {
		cfg.InitSamples = initSamples
	}

	if flags.Changed("iterations") {
		cfg.Iterations = iterations
	}

	if flags.Changed("relearn-period") {
		cfg.RelearnPeriod = relearnPeriod
	}

	if flags.Changed("surrogate") {
		cfg.SurrogateKind = bo.SurrogateKind(surrogateKind)
	}

	if flags.Changed("kernel") {
		cfg.Kernel = bo.KernelKind(kernelKind)
	}

	if flags.Changed("criterion") {
		cfg.Criterion = bo.Criterion(criterion)
	}

	if flags.Changed("score") {
		cfg.ScoreType = bo.ScoreType(scoreType)
	}

	if flags.Changed("init-method") {
		cfg.InitMethod = bo.InitMethod(initMethod)
	}

	if flags.Changed("learning-type") {
		cfg.LearningType = bo.LearningType(learningType)
	}

	if flags.Changed("noise") {
		cfg.ObservationNoise = noise
	}

	if flags.Changed("seed") {
		cfg.RandomSeed = seed
	}

	if flags.Changed("verbosity") {
		cfg.Verbosity = verbosity
	}

	if err := cfg.Validate(); err != nil {
		return bo.Config{}, err
	}

	return cfg, nil
}

// runLogger returns the root logger when --log-level was given, otherwise a
// JSON logger at the level of cfg.Verbosity.
func runLogger(cmd *cobra.Command, cfg bo.Config) *slog.Logger {
	if f := cmd.Flag("log-level"); f != nil && f.Changed && logger != nil {
		return logger
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
}

func renderProgress(updates <-chan bo.ProgressUpdate, total int, done chan<- struct{}) {
	defer close(done)

	bar := progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("evals"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Sampling[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionUseANSICodes(true),
	)

	for update := range updates {
		if update.Phase == bo.PhaseOptimization {
			bar.Describe(fmt.Sprintf("[cyan]Optimizing[reset] best=%.4g", update.CurrentBestValue))
		}

		_ = bar.Add(1)
	}

	_ = bar.Finish()
}
