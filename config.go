package bo

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//////
// Exported functionalities.
//////

// DefaultConfig returns a default configuration. The bounds are left empty:
// set Lower and Upper before passing the configuration to New.
//
// The returned value is built from scratch on every call, there is no
// package-level default to mutate.
func DefaultConfig() Config {
	return Config{
		InitSamples:      10,
		Iterations:       50,
		RelearnPeriod:    10,
		SurrogateKind:    SurrogateGaussianProcessML,
		Kernel:           KernelMaternARD5,
		ObservationNoise: 1e-6,
		RandomSeed:       0,
		Verbosity:        0,
		InitMethod:       InitUniform,
		Criterion:        CriterionEI,
		AcqParams: AcquisitionParams{
			Beta: 2.0,
			Xi:   0,
		},
		ScoreType:         ScoreMAP,
		LearningType:      LearningEmpirical,
		NumCandidates:     1000,
		LocalStarts:       5,
		SearchBudget:      10000,
		RelearnIterations: 30,
		RelearnPopulation: 20,
		ProgressChan:      nil, // Default to no progress updates.
	}
}

// Validate checks every option of the configuration and returns an error
// wrapping ErrInvalidConfiguration for the first offending one. Bounds with a
// lower value above the upper value are reported by NewDomain as
// ErrInvalidDomain instead.
func (c Config) Validate() error {
	switch {
	case len(c.Lower) == 0 || len(c.Upper) == 0:
		return invalidConfigf("bounds are required")
	case len(c.Lower) != len(c.Upper):
		return invalidConfigf("mismatched bound lengths: %d lower, %d upper", len(c.Lower), len(c.Upper))
	case c.InitSamples < 1:
		return invalidConfigf("init samples must be >= 1, got %d", c.InitSamples)
	case c.Iterations < 0:
		return invalidConfigf("iterations must be >= 0, got %d", c.Iterations)
	case c.RelearnPeriod < 1:
		return invalidConfigf("relearn period must be >= 1, got %d", c.RelearnPeriod)
	case math.IsNaN(c.ObservationNoise) || math.IsInf(c.ObservationNoise, 0) || c.ObservationNoise < 0:
		return invalidConfigf("observation noise must be a finite value >= 0, got %v", c.ObservationNoise)
	case c.Verbosity < 0:
		return invalidConfigf("verbosity must be >= 0, got %d", c.Verbosity)
	case c.NumCandidates < 1:
		return invalidConfigf("num candidates must be >= 1, got %d", c.NumCandidates)
	case c.LocalStarts < 0:
		return invalidConfigf("local starts must be >= 0, got %d", c.LocalStarts)
	case c.SearchBudget < c.NumCandidates:
		return invalidConfigf("search budget (%d) must be >= num candidates (%d)", c.SearchBudget, c.NumCandidates)
	case c.RelearnIterations < 1:
		return invalidConfigf("relearn iterations must be >= 1, got %d", c.RelearnIterations)
	case c.RelearnPopulation < minRelearnPopulation:
		return invalidConfigf("relearn population must be >= %d, got %d", minRelearnPopulation, c.RelearnPopulation)
	case !isFiniteNonNegative(c.AcqParams.Beta):
		return invalidConfigf("acquisition beta must be a finite value >= 0, got %v", c.AcqParams.Beta)
	case !isFiniteNonNegative(c.AcqParams.Xi):
		return invalidConfigf("acquisition xi must be a finite value >= 0, got %v", c.AcqParams.Xi)
	}

	switch c.SurrogateKind {
	case SurrogateGaussianProcess, SurrogateGaussianProcessML, SurrogateStudentTProcessJef:
	default:
		return invalidConfigf("unknown surrogate kind %q", c.SurrogateKind)
	}

	switch c.Kernel {
	case KernelMaternARD5, KernelSEARD:
	default:
		return invalidConfigf("unknown kernel %q", c.Kernel)
	}

	switch c.InitMethod {
	case InitUniform, InitLHS:
	default:
		return invalidConfigf("unknown init method %q", c.InitMethod)
	}

	switch c.Criterion {
	case CriterionEI, CriterionLCB, CriterionPOI:
	default:
		return invalidConfigf("unknown criterion %q", c.Criterion)
	}

	switch c.ScoreType {
	case ScoreML, ScoreMAP, ScoreLOOCV:
	default:
		return invalidConfigf("unknown score type %q", c.ScoreType)
	}

	switch c.LearningType {
	case LearningFixed, LearningEmpirical:
	default:
		return invalidConfigf("unknown learning type %q", c.LearningType)
	}

	return nil
}

// LoadConfig reads a YAML configuration file. Fields missing from the file
// keep their DefaultConfig value. The result is validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: failed to decode config: %v", ErrInvalidConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// SaveConfig writes the configuration to path as YAML.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

//////
// Helpers.
//////

// minRelearnPopulation is the smallest population the global hyperparameter
// search accepts.
const minRelearnPopulation = 20

// LogLevel maps Verbosity to a log level: 0 is Warn, 1 Info, 2 and above Debug.
func (c Config) LogLevel() slog.Level {
	switch {
	case c.Verbosity <= 0:
		return slog.LevelWarn
	case c.Verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func invalidConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func isFiniteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
