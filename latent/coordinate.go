package latent

import (
	"context"
	"fmt"
	"math"

	"github.com/happyhackingspace/latentcrf/internal/cluster"
)

// train is the per-worker body of Trainer.Train. Every collective below is
// reached in the same order on every rank.
func (w *worker) train(ctx context.Context) error {
	if err := w.initialize(); err != nil {
		return err
	}
	if err := w.model1(); err != nil {
		return err
	}

	prevNll, prevDev := math.NaN(), math.NaN()
	for iter := 0; ; iter++ {
		stop := w.comm.IsRoot() && ctx.Err() != nil
		if err := cluster.Broadcast(w.comm, 0, &stop); err != nil {
			return err
		}
		if stop {
			w.log.Warn("Training interrupted", "iteration", iter)
			if err := w.persistAll(suffixInterrupted); err != nil {
				return err
			}
			w.publish(iter, false)
			return ErrInterrupted
		}

		w.log.Info("Starting iteration", "iteration", iter)
		var nll float64
		var err error
		if !(iter == 0 && w.cfg.OptimizeWeightsFirst) {
			if nll, err = w.emissionPhase(); err != nil {
				return fmt.Errorf("iteration %d emission phase: %w", iter, err)
			}
		}
		if err := w.persistTheta(iter); err != nil {
			return err
		}

		if w.weightPhaseDue(iter) {
			if nll, err = w.weightPhase(); err != nil {
				return fmt.Errorf("iteration %d weight phase: %w", iter, err)
			}
		}
		if err := w.persistLambda(iter); err != nil {
			return err
		}

		if w.cfg.LabelsEveryIteration {
			if err := w.writeLabels(fmt.Sprintf("labels.iter%d", iter)); err != nil {
				return err
			}
		}

		dev := math.NaN()
		if w.cfg.EarlyStopping {
			if dev, err = w.reduceDev(); err != nil {
				return err
			}
		}

		done, converged := false, false
		if w.comm.IsRoot() {
			w.t.History = append(w.t.History, nll)
			if w.cfg.EarlyStopping {
				w.t.DevHistory = append(w.t.DevHistory, dev)
			}
			done, converged = w.converged(iter, nll, prevNll, dev, prevDev)
			prevNll, prevDev = nll, dev
		}
		if err := cluster.Broadcast(w.comm, 0, &done); err != nil {
			return err
		}
		if done {
			if err := w.persistAll(suffixFinal); err != nil {
				return err
			}
			w.publish(iter+1, converged)
			return nil
		}
	}
}

func (w *worker) weightPhaseDue(iter int) bool {
	if w.cfg.WeightOptimizer == OptimizeNone || w.weights.Size() == 0 {
		return false
	}
	return !(iter == 0 && w.cfg.SkipFirstWeightPhase)
}

func (w *worker) weightPhase() (float64, error) {
	if w.cfg.WeightOptimizer == OptimizeLBFGS {
		return w.lbfgsPhase()
	}
	return w.sgdPhase()
}

// converged decides on root whether to stop after iteration iter, and
// whether stopping is due to convergence rather than the iteration budget.
func (w *worker) converged(iter int, nll, prevNll, dev, prevDev float64) (bool, bool) {
	if !math.IsNaN(prevNll) && prevNll != 0 {
		diff := math.Abs(prevNll-nll) / math.Abs(prevNll)
		w.log.Info("Iteration finished", "iteration", iter, "nll", nll, "relative_diff", diff, "dev_nll", dev)
		if diff < w.cfg.MinRelativeDiff {
			w.log.Info("Converged", "iteration", iter, "relative_diff", diff)
			return true, true
		}
	} else {
		w.log.Info("Iteration finished", "iteration", iter, "nll", nll, "dev_nll", dev)
	}
	if w.cfg.EarlyStopping && !math.IsNaN(prevDev) && dev > prevDev {
		w.log.Info("Held-out likelihood worsened", "iteration", iter, "dev_nll", dev, "previous", prevDev)
		return true, true
	}
	return iter+1 >= w.cfg.MaxIterations, false
}

// publish copies the root replica into the Trainer.
func (w *worker) publish(iterations int, converged bool) {
	if !w.comm.IsRoot() {
		return
	}
	w.t.Weights = w.weights.Clone()
	w.t.Emissions = w.table.Clone()
	w.t.Iterations = iterations
	w.t.Converged = converged
}
