// Package latent trains latent-variable CRFs by block coordinate descent:
// emission parameters are fit with EM, feature weights with L-BFGS or SGD,
// and the two alternate until the likelihood stops improving.
package latent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/happyhackingspace/latentcrf/crf"
	"github.com/happyhackingspace/latentcrf/emission"
	"github.com/happyhackingspace/latentcrf/internal/cluster"
	"github.com/happyhackingspace/latentcrf/optimize"
)

// ErrInterrupted is returned when training stops on a cancelled context.
var ErrInterrupted = errors.New("latent: training interrupted")

// Trainer owns a task, its configuration and, after Train, the fitted
// parameters of the coordinator replica.
type Trainer struct {
	task Task
	cfg  settings
	pool *cluster.Pool

	// InitialWeights and InitialEmissions replace the zero weights and the
	// uniform emissions when set.
	InitialWeights   *crf.Weights
	InitialEmissions *emission.Table

	Weights    *crf.Weights
	Emissions  *emission.Table
	History    []float64 // training objective per iteration
	DevHistory []float64 // held-out NLL per iteration
	Labels     []string  // last labeling, one line per sentence
	Iterations int
	Converged  bool
}

// NewTrainer validates config and prepares a worker pool for task.
func NewTrainer(task Task, config Config) (*Trainer, error) {
	cfg, err := config.validate()
	if err != nil {
		return nil, err
	}
	return &Trainer{
		task: task,
		cfg:  cfg,
		pool: cluster.NewPool(cfg.Workers),
	}, nil
}

// HeldOut reports whether sentID is reserved for validation.
func (t *Trainer) HeldOut(sentID int) bool {
	return t.cfg.EarlyStopping && sentID%t.cfg.HeldOutStride == 0
}

// Train runs block coordinate descent across the worker pool. Cancelling
// ctx stops training at the next iteration boundary; the current
// parameters are then persisted with the interrupted suffix and
// ErrInterrupted is returned.
func (t *Trainer) Train(ctx context.Context) error {
	return t.pool.Run(ctx, func(ctx context.Context, c *cluster.Comm) error {
		return t.newWorker(c).train(ctx)
	})
}

// worker holds one replica of the parameters and the sentences it owns.
type worker struct {
	t       *Trainer
	task    Task
	cfg     settings
	comm    *cluster.Comm
	log     *slog.Logger
	weights *crf.Weights
	table   *emission.Table
	builder *crf.Builder
	mine    []int
	rng     *rand.Rand

	schedule  *optimize.Schedule
	reg       optimize.Regularizer
	sgd       *optimize.SGD
	sgdEpoch  int
	running   *emission.Counts
	stepwiseK int
}

func (t *Trainer) newWorker(c *cluster.Comm) *worker {
	w := &worker{
		t:     t,
		task:  t.task,
		cfg:   t.cfg,
		comm:  c,
		log:   c.Logger(),
		table: emission.New(),
		mine:  c.Partition(t.task.Len()),
		rng:   rand.New(rand.NewSource(t.cfg.Seed + int64(c.Rank()))),
		reg: optimize.Regularizer{
			Kind:     t.cfg.regularizer,
			Strength: t.cfg.RegularizerStrength,
		},
		schedule: optimize.NewSchedule(t.cfg.decay, t.cfg.LearningRate, t.cfg.DecayParam),
	}
	return w
}

func (w *worker) heldOut(id int) bool {
	return w.t.HeldOut(id)
}

// skip reports whether id is too long to process this iteration.
func (w *worker) skip(id int) bool {
	if n := len(w.task.Observation(id)); w.cfg.MaxSequenceLength > 0 && n > w.cfg.MaxSequenceLength {
		w.log.Debug("Skipping long sentence", "sentence", id, "length", n)
		return true
	}
	return false
}

// trainingIDs returns the owned sentences that feed counts and gradients.
func (w *worker) trainingIDs() []int {
	ids := make([]int, 0, len(w.mine))
	for _, id := range w.mine {
		if !w.heldOut(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// trainingCount returns the number of training sentences across the pool.
func (w *worker) trainingCount() int {
	n := 0
	for id := range w.task.Len() {
		if !w.heldOut(id) {
			n++
		}
	}
	return n
}

func (w *worker) emitter(id int) crf.EmissionFunc {
	z := w.task.ReconstructedSequenceOf(id)
	return func(pos, label int) (float64, error) {
		ctx, err := w.task.ContextOf(id, label)
		if err != nil {
			return 0, err
		}
		return w.table.NLogProb(ctx, z[pos])
	}
}

// scorable reports whether every emission the joint lattice of id needs
// has non-zero probability. Decisions seen only in sentences that never
// feed counts lose all mass under the MLE estimator.
func (w *worker) scorable(id int) (bool, error) {
	z := w.task.ReconstructedSequenceOf(id)
	for _, label := range w.task.LabelDomain(id) {
		ctx, err := w.task.ContextOf(id, label)
		if err != nil {
			return false, err
		}
		for _, d := range z {
			v, err := w.table.NLogProb(ctx, d)
			if errors.Is(err, emission.ErrUnknownContext) || math.IsInf(v, 1) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// inference builds a lattice and its potentials, logging a dump of the
// lattice when the numbers go bad.
func (w *worker) inference(id int, joint bool) (*crf.Lattice, crf.Potentials, error) {
	x := w.task.Observation(id)
	domain := w.task.LabelDomain(id)
	var l *crf.Lattice
	var err error
	if joint {
		l, err = w.builder.JointLattice(id, len(x), domain, w.emitter(id))
	} else {
		l, err = w.builder.FeatureLattice(id, len(x), domain)
	}
	if err != nil {
		return nil, crf.Potentials{}, err
	}
	p, err := crf.ForwardBackward(l)
	if err != nil {
		w.log.Error("Non-finite potentials", "sentence", id, "lattice", l.Dump())
		return nil, p, err
	}
	return l, p, nil
}

// accumulate computes the negative log-likelihood of sentence id. When grad
// is non-nil the sentence gradient is added to it; when counts is non-nil
// the expected emission counts are added to them.
func (w *worker) accumulate(id int, grad map[int]float64, counts *emission.Counts) (float64, error) {
	lz, pz, err := w.inference(id, false)
	if err != nil {
		return 0, err
	}

	if gold := w.task.GoldLabels(id); gold != nil {
		fv, goldWeight := w.builder.PathFeatures(id, gold)
		if grad != nil {
			ez, err := crf.FeatureExpectations(lz, pz)
			if err != nil {
				return 0, err
			}
			for i, v := range ez {
				grad[i] += v
			}
			for i, idx := range fv.Indices {
				grad[idx] -= fv.Values[i]
			}
		}
		if counts != nil {
			z := w.task.ReconstructedSequenceOf(id)
			for pos, y := range gold {
				ctx, err := w.task.ContextOf(id, y)
				if err != nil {
					return 0, err
				}
				counts.Add(ctx, z[pos], 1)
			}
		}
		return goldWeight - pz.Total, nil
	}

	lc, pc, err := w.inference(id, true)
	if err != nil {
		return 0, err
	}
	if grad != nil {
		ez, err := crf.FeatureExpectations(lz, pz)
		if err != nil {
			return 0, err
		}
		ec, err := crf.FeatureExpectations(lc, pc)
		if err != nil {
			return 0, err
		}
		for i, v := range ez {
			grad[i] += v
		}
		for i, v := range ec {
			grad[i] -= v
		}
	}
	if counts != nil {
		b, err := crf.BMatrix(lc, pc, w.task.ReconstructedSequenceOf(id))
		if err != nil {
			return 0, err
		}
		contextOf := func(label int) (int64, error) { return w.task.ContextOf(id, label) }
		if err := counts.AddPosteriors(b, contextOf, 1); err != nil {
			return 0, err
		}
	}
	return pc.Total - pz.Total, nil
}

// devLoss sums the negative log-likelihood of the owned held-out sentences.
func (w *worker) devLoss() (float64, error) {
	total := 0.0
	for _, id := range w.mine {
		if !w.heldOut(id) || w.skip(id) {
			continue
		}
		if w.task.GoldLabels(id) == nil {
			ok, err := w.scorable(id)
			if err != nil {
				return 0, fmt.Errorf("held-out sentence %d: %w", id, err)
			}
			if !ok {
				w.log.Debug("Held-out sentence has zero-probability emissions, not scored", "sentence", id)
				continue
			}
		}
		nll, err := w.accumulate(id, nil, nil)
		if err != nil {
			return 0, fmt.Errorf("held-out sentence %d: %w", id, err)
		}
		total += nll
	}
	return total, nil
}

// reduceDev returns the held-out NLL summed over the pool on root.
func (w *worker) reduceDev() (float64, error) {
	local, err := w.devLoss()
	if err != nil {
		return 0, err
	}
	return cluster.Reduce(w.comm, 0, local, cluster.Sum[float64])
}
