package latent

import (
	"fmt"
	"math"

	"github.com/happyhackingspace/latentcrf/crf"
	"github.com/happyhackingspace/latentcrf/emission"
	"github.com/happyhackingspace/latentcrf/internal/cluster"
)

// model1 warms the emissions with IBM Model 1 style EM: each position picks
// its label independently with probability proportional to the emission of
// its observation, ignoring the feature weights.
func (w *worker) model1() error {
	for i := range w.cfg.Model1Iterations {
		local := emission.NewCounts()
		for _, id := range w.trainingIDs() {
			if w.skip(id) {
				continue
			}
			if err := w.model1Counts(id, local); err != nil {
				return fmt.Errorf("sentence %d: %w", id, err)
			}
		}
		total, err := cluster.Reduce(w.comm, 0, local, func(a, b *emission.Counts) *emission.Counts {
			if a == nil {
				a = emission.NewCounts()
			}
			if b != nil {
				a.Merge(b)
			}
			return a
		})
		if err != nil {
			return err
		}
		var rows emission.Rows
		if w.comm.IsRoot() {
			if total == nil {
				total = emission.NewCounts()
			}
			if err := w.table.UpdateFromAccumulator(total, w.cfg.estimator); err != nil {
				return err
			}
			if err := w.table.Normalize(); err != nil {
				return err
			}
			w.log.Info("Model 1 step", "round", i, "contexts", len(total.Mle))
			rows = w.table.Rows()
		}
		if err := w.syncEmissions(rows); err != nil {
			return err
		}
	}
	return nil
}

func (w *worker) model1Counts(id int, counts *emission.Counts) error {
	z := w.task.ReconstructedSequenceOf(id)
	domain := w.task.LabelDomain(id)
	if gold := w.task.GoldLabels(id); gold != nil {
		for pos, y := range gold {
			ctx, err := w.task.ContextOf(id, y)
			if err != nil {
				return err
			}
			counts.Add(ctx, z[pos], 1)
		}
		return nil
	}
	ctxs := make([]int64, len(domain))
	ws := make([]float64, len(domain))
	for _, d := range z {
		for k, label := range domain {
			ctx, err := w.task.ContextOf(id, label)
			if err != nil {
				return err
			}
			if ws[k], err = w.table.NLogProb(ctx, d); err != nil {
				return err
			}
			ctxs[k] = ctx
		}
		norm := crf.PlusAll(ws)
		if math.IsInf(norm, 1) {
			continue
		}
		for k, ctx := range ctxs {
			counts.Add(ctx, d, math.Exp(norm-ws[k]))
		}
	}
	return nil
}
