package latent

import (
	"fmt"
	"math"

	"github.com/happyhackingspace/latentcrf/emission"
	"github.com/happyhackingspace/latentcrf/internal/cluster"
)

// emStats is what every worker reports after one E-step.
type emStats struct {
	Counts *emission.Counts
	Nll    float64
}

func mergeStats(a, b emStats) emStats {
	if a.Counts == nil {
		a.Counts = emission.NewCounts()
	}
	if b.Counts != nil {
		a.Counts.Merge(b.Counts)
	}
	a.Nll += b.Nll
	return a
}

// expectation runs the E-step over the owned training sentences.
func (w *worker) expectation() (emStats, error) {
	stats := emStats{Counts: emission.NewCounts()}
	for _, id := range w.trainingIDs() {
		if w.skip(id) {
			continue
		}
		nll, err := w.accumulate(id, nil, stats.Counts)
		if err != nil {
			return stats, fmt.Errorf("sentence %d: %w", id, err)
		}
		stats.Nll += nll
	}
	return stats, nil
}

// emissionPhase fits the emission parameters with EMIterations rounds of
// EM, or stepwise EM, holding the weights fixed. It returns the objective
// of the last E-step.
func (w *worker) emissionPhase() (float64, error) {
	var nll float64
	for i := range w.cfg.EMIterations {
		local, err := w.expectation()
		if err != nil {
			return 0, err
		}
		total, err := cluster.Reduce(w.comm, 0, local, mergeStats)
		if err != nil {
			return 0, err
		}

		var rows emission.Rows
		if w.comm.IsRoot() {
			nll = total.Nll
			counts := total.Counts
			if counts == nil {
				counts = emission.NewCounts()
			}
			if w.cfg.EmissionOptimizer == OptimizeStepwiseEM {
				if w.running == nil {
					w.running = emission.NewCounts()
				}
				eta := math.Pow(float64(w.stepwiseK+2), -w.cfg.StepwiseDecay)
				w.running.Blend(counts, eta)
				w.stepwiseK++
				counts = w.running
			}
			if err := w.table.UpdateFromAccumulator(counts, w.cfg.estimator); err != nil {
				return 0, err
			}
			if w.cfg.estimator.Kind != emission.MLE {
				if err := w.table.Normalize(); err != nil {
					return 0, err
				}
			}
			w.log.Info("EM step", "round", i, "nll", nll, "estimator", w.cfg.estimator)
			rows = w.table.Rows()
		}
		if err := w.syncEmissions(rows); err != nil {
			return 0, err
		}
	}
	if err := cluster.Broadcast(w.comm, 0, &nll); err != nil {
		return 0, err
	}
	return nll, nil
}
