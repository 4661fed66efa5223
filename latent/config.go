package latent

import (
	"fmt"

	"github.com/happyhackingspace/latentcrf/emission"
	"github.com/happyhackingspace/latentcrf/optimize"
)

// WeightOptimizer selects how feature weights are fit.
type WeightOptimizer string

const (
	OptimizeLBFGS WeightOptimizer = "lbfgs"
	OptimizeSGD   WeightOptimizer = "sgd"
	OptimizeNone  WeightOptimizer = "none"
)

// EmissionOptimizer selects how emission parameters are fit.
type EmissionOptimizer string

const (
	OptimizeEM         EmissionOptimizer = "em"
	OptimizeStepwiseEM EmissionOptimizer = "stepwise-em"
)

// Config holds the training hyperparameters.
type Config struct {
	WeightOptimizer   WeightOptimizer
	EmissionOptimizer EmissionOptimizer

	MaxIterations   int
	MinRelativeDiff float64
	EMIterations    int
	// StepwiseDecay is the exponent of the stepwise EM step size (k+2)^-StepwiseDecay.
	StepwiseDecay float64

	DirichletAlpha float64
	Variational    bool
	Markovian      bool

	LBFGS optimize.LBFGSConfig

	LearningRate float64
	Decay        string
	DecayParam   float64
	MiniBatch    int
	Epochs       int
	Seed         int64

	Regularizer         string
	RegularizerStrength float64

	EarlyStopping bool
	HeldOutStride int

	MaxSequenceLength int

	Workers      int
	OutputPrefix string
	PersistEvery int

	OptimizeWeightsFirst bool
	SkipFirstWeightPhase bool
	LabelsEveryIteration bool
	TestWithCRFOnly      bool
	Model1Iterations     int
}

// DefaultConfig returns the defaults of the alignment trainer.
func DefaultConfig() Config {
	return Config{
		WeightOptimizer:   OptimizeSGD,
		EmissionOptimizer: OptimizeEM,
		MaxIterations:     50,
		MinRelativeDiff:   0.03,
		EMIterations:      3,
		StepwiseDecay:     0.6,
		DirichletAlpha:    1.01,
		Markovian:         true,
		LBFGS:             optimize.DefaultLBFGSConfig(),
		LearningRate:      1.0,
		Decay:             "epoch-fixed",
		DecayParam:        0.001,
		MiniBatch:         1,
		Epochs:            1,
		Seed:              1,
		Regularizer:       "none",
		HeldOutStride:     10,
		Workers:           1,
		OutputPrefix:      "latentcrf",
		PersistEvery:      1,
		Model1Iterations:  0,
	}
}

// settings is a validated Config with parsed enums.
type settings struct {
	Config
	decay       optimize.Decay
	regularizer optimize.RegularizerKind
	estimator   emission.Estimator
}

func (c Config) validate() (settings, error) {
	s := settings{Config: c}
	switch c.WeightOptimizer {
	case OptimizeLBFGS, OptimizeSGD, OptimizeNone:
	default:
		return s, fmt.Errorf("latent: unknown weight optimizer %q", c.WeightOptimizer)
	}
	switch c.EmissionOptimizer {
	case OptimizeEM, OptimizeStepwiseEM:
	default:
		return s, fmt.Errorf("latent: unknown emission optimizer %q", c.EmissionOptimizer)
	}
	var err error
	if s.decay, err = optimize.ParseDecay(c.Decay); err != nil {
		return s, err
	}
	if s.regularizer, err = optimize.ParseRegularizer(c.Regularizer); err != nil {
		return s, err
	}
	if c.WeightOptimizer == OptimizeSGD && (s.regularizer == optimize.L1 || s.regularizer == optimize.WeightedL2) {
		return s, fmt.Errorf("latent: regularizer %q needs the lbfgs optimizer", c.Regularizer)
	}
	if c.RegularizerStrength < 0 {
		return s, fmt.Errorf("latent: negative regularizer strength %v", c.RegularizerStrength)
	}
	if c.DirichletAlpha <= 0 {
		return s, fmt.Errorf("latent: Dirichlet alpha must be positive, got %v", c.DirichletAlpha)
	}
	if c.EarlyStopping && c.HeldOutStride < 1 {
		return s, fmt.Errorf("latent: held-out stride must be positive, got %d", c.HeldOutStride)
	}
	if c.Workers < 1 {
		s.Workers = 1
	}
	if c.MiniBatch < 1 {
		s.MiniBatch = 1
	}
	if c.PersistEvery < 1 {
		s.PersistEvery = 1
	}
	s.estimator = emission.NewEstimator(c.DirichletAlpha, c.Variational)
	return s, nil
}
