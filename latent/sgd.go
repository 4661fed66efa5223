package latent

import (
	"fmt"

	"github.com/happyhackingspace/latentcrf/internal/cluster"
	"github.com/happyhackingspace/latentcrf/optimize"
)

// sgdResult is one worker's contribution to an epoch: the change it made
// to the epoch start weights beyond its own shrinkage.
type sgdResult struct {
	Nll       float64
	Delta     []float64
	Shrinkage float64
}

// sgdPhase runs Epochs passes of minibatch SGD. Every worker updates its own
// replica over its shuffled sentences; root then combines the replicas as
// w = (prod m_k) w0 + sum (w_k - m_k w0), so the L2 shrinkage of every
// worker applies exactly once, and broadcasts the result.
func (w *worker) sgdPhase() (float64, error) {
	if w.sgd == nil {
		w.sgd = optimize.NewSGD(w.schedule, w.reg.L2Strength(), w.trainingCount())
	}
	var objective float64
	for range w.cfg.Epochs {
		w0 := w.weights.Effective()
		w.sgd.BeginEpoch(w.sgdEpoch)
		w.sgdEpoch++

		ids := w.trainingIDs()
		w.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

		local := sgdResult{}
		grad := make(map[int]float64)
		batch := 0
		flush := func() error {
			if batch == 0 {
				return nil
			}
			err := w.sgd.Update(w.weights, grad, batch)
			clear(grad)
			batch = 0
			return err
		}
		for _, id := range ids {
			if w.skip(id) {
				continue
			}
			nll, err := w.accumulate(id, grad, nil)
			if err != nil {
				return 0, fmt.Errorf("sentence %d: %w", id, err)
			}
			local.Nll += nll
			if batch++; batch == w.cfg.MiniBatch {
				if err := flush(); err != nil {
					return 0, err
				}
			}
		}
		if err := flush(); err != nil {
			return 0, err
		}

		local.Shrinkage = w.sgd.Shrinkage
		local.Delta = w.weights.Effective()
		for i, v := range w0 {
			local.Delta[i] -= local.Shrinkage * v
		}

		parts, err := cluster.Gather(w.comm, 0, local)
		if err != nil {
			return 0, err
		}
		values := w0
		if w.comm.IsRoot() {
			values, objective = combineReplicas(w0, parts)
			objective += w.reg.Value(values)
			w.log.Info("SGD epoch", "epoch", w.sgdEpoch, "objective", objective,
				"rate", w.schedule.Rate(), "updates", w.sgd.Updates)
		}
		if err := cluster.Broadcast(w.comm, 0, &values); err != nil {
			return 0, err
		}
		if err := w.weights.SetEffective(values); err != nil {
			return 0, err
		}
	}
	return w.shareObjective(objective)
}

// combineReplicas merges per-worker epoch results over the shared start
// point w0 and returns the new weights with the summed objective.
func combineReplicas(w0 []float64, parts []sgdResult) ([]float64, float64) {
	shrink := 1.0
	nll := 0.0
	for _, p := range parts {
		shrink *= p.Shrinkage
		nll += p.Nll
	}
	out := make([]float64, len(w0))
	for i, v := range w0 {
		out[i] = shrink * v
	}
	for _, p := range parts {
		for i, d := range p.Delta {
			out[i] += d
		}
	}
	return out, nll
}
