package cli

import (
	"github.com/happyhackingspace/latentcrf"
	"github.com/happyhackingspace/latentcrf/latent"
	"github.com/spf13/pflag"
)

// trainFlags binds latent.Config and the corpus options to command flags.
type trainFlags struct {
	config          latent.Config
	weightOptimizer string
	emOptimizer     string
	templates       []string
	maxSentences    int
	checkpoint      latentcrf.Checkpoint
}

func newTrainFlags() *trainFlags {
	f := &trainFlags{config: latent.DefaultConfig()}
	f.weightOptimizer = string(f.config.WeightOptimizer)
	f.emOptimizer = string(f.config.EmissionOptimizer)
	return f
}

func (f *trainFlags) bind(fs *pflag.FlagSet) {
	c := &f.config
	fs.StringVar(&f.weightOptimizer, "optimizer", f.weightOptimizer, "Weight optimizer: lbfgs, sgd or none")
	fs.StringVar(&f.emOptimizer, "em", f.emOptimizer, "Emission optimizer: em or stepwise-em")
	fs.IntVar(&c.MaxIterations, "max-iterations", c.MaxIterations, "Maximum coordinate descent iterations")
	fs.Float64Var(&c.MinRelativeDiff, "min-relative-diff", c.MinRelativeDiff, "Stop when the objective improves by less than this fraction")
	fs.IntVar(&c.EMIterations, "em-iterations", c.EMIterations, "EM rounds per emission phase")
	fs.Float64Var(&c.StepwiseDecay, "stepwise-decay", c.StepwiseDecay, "Stepwise EM step size exponent")
	fs.Float64Var(&c.DirichletAlpha, "dirichlet-alpha", c.DirichletAlpha, "Symmetric Dirichlet prior on emissions (1 for MLE)")
	fs.BoolVar(&c.Variational, "variational", c.Variational, "Use the variational Bayes emission update")
	fs.BoolVar(&c.Markovian, "markovian", c.Markovian, "Condition features on the previous label")

	fs.IntVar(&c.LBFGS.Memory, "lbfgs-memory", c.LBFGS.Memory, "L-BFGS history size")
	fs.IntVar(&c.LBFGS.MaxIterations, "lbfgs-max-iterations", c.LBFGS.MaxIterations, "L-BFGS iterations per weight phase")
	fs.Float64Var(&c.LBFGS.Epsilon, "lbfgs-epsilon", c.LBFGS.Epsilon, "L-BFGS relative gradient norm tolerance")

	fs.Float64Var(&c.LearningRate, "learning-rate", c.LearningRate, "Initial SGD learning rate")
	fs.StringVar(&c.Decay, "decay", c.Decay, "Learning rate schedule: fixed, epoch-fixed, bottou or geometric")
	fs.Float64Var(&c.DecayParam, "decay-param", c.DecayParam, "Learning rate schedule parameter")
	fs.IntVar(&c.MiniBatch, "minibatch", c.MiniBatch, "Sentences per SGD update")
	fs.IntVar(&c.Epochs, "epochs", c.Epochs, "SGD epochs per weight phase")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "Shuffle seed")

	fs.StringVar(&c.Regularizer, "regularizer", c.Regularizer, "Weight penalty: none, l1, l2 or weighted-l2")
	fs.Float64Var(&c.RegularizerStrength, "regularizer-strength", c.RegularizerStrength, "Weight penalty strength s; SGD shrinks weights by 1-rate*s/N per sentence")

	fs.BoolVar(&c.EarlyStopping, "early-stopping", c.EarlyStopping, "Hold out every n-th sentence for validation")
	fs.IntVar(&c.HeldOutStride, "held-out-stride", c.HeldOutStride, "Stride of held-out sentences")
	fs.IntVar(&c.MaxSequenceLength, "max-sequence-length", c.MaxSequenceLength, "Skip longer sentences during training (0 keeps all)")

	fs.IntVar(&c.Workers, "workers", c.Workers, "Number of parallel workers")
	fs.StringVar(&c.OutputPrefix, "output-prefix", c.OutputPrefix, "Prefix of checkpoint and label files")
	fs.IntVar(&c.PersistEvery, "persist-every", c.PersistEvery, "Write checkpoints every n iterations")

	fs.BoolVar(&c.OptimizeWeightsFirst, "optimize-weights-first", c.OptimizeWeightsFirst, "Skip the emission phase of the first iteration")
	fs.BoolVar(&c.SkipFirstWeightPhase, "skip-first-weight-phase", c.SkipFirstWeightPhase, "Skip the weight phase of the first iteration")
	fs.BoolVar(&c.LabelsEveryIteration, "labels-every-iteration", c.LabelsEveryIteration, "Write labels after every iteration")
	fs.BoolVar(&c.TestWithCRFOnly, "test-with-crf-only", c.TestWithCRFOnly, "Decode without emissions")
	fs.IntVar(&c.Model1Iterations, "model1-iterations", c.Model1Iterations, "IBM Model 1 rounds before training")

	fs.StringSliceVar(&f.templates, "features", nil, "Feature templates (default set when empty)")
	fs.IntVar(&f.maxSentences, "max-sentences", 0, "Read at most this many sentences (0 reads all)")
	fs.StringVar(&f.checkpoint.Weights, "init-lambda", "", "Start from saved weights")
	fs.StringVar(&f.checkpoint.Emissions, "init-theta", "", "Start from saved emissions")
}

// resolve returns the bound configuration.
func (f *trainFlags) resolve() latent.Config {
	c := f.config
	c.WeightOptimizer = latent.WeightOptimizer(f.weightOptimizer)
	c.EmissionOptimizer = latent.EmissionOptimizer(f.emOptimizer)
	return c
}
