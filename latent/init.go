package latent

import (
	"fmt"
	"math"
	"slices"

	"github.com/happyhackingspace/latentcrf/crf"
	"github.com/happyhackingspace/latentcrf/emission"
	"github.com/happyhackingspace/latentcrf/internal/cluster"
)

// initialize discovers the feature space, then agrees on initial weights and
// emissions across the pool.
func (w *worker) initialize() error {
	ids, err := w.discoverFeatures()
	if err != nil {
		return err
	}
	w.weights = crf.NewWeightsFromIDs(ids)
	w.builder = &crf.Builder{
		Weights:   w.weights,
		Features:  w.task.Features,
		Markovian: w.cfg.Markovian,
	}
	if err := w.initWeights(); err != nil {
		return err
	}
	if err := w.seedEmissions(); err != nil {
		return err
	}
	w.log.Info("Initialized", "features", w.weights.Size(), "emissions", w.table.Len(),
		"sentences", len(w.mine))
	return nil
}

// discoverFeatures fires every template over the owned sentences with every
// label pair the lattice can contain. Root sorts the union and broadcasts it
// so that all replicas share one index order.
func (w *worker) discoverFeatures() ([]crf.FeatureID, error) {
	seen := make(map[crf.FeatureID]struct{})
	var local []crf.FeatureID
	fire := func(label, prev, sentID, pos int) {
		for _, f := range w.task.Features(label, prev, sentID, pos) {
			if _, ok := seen[f.ID]; !ok {
				seen[f.ID] = struct{}{}
				local = append(local, f.ID)
			}
		}
	}
	for _, id := range w.mine {
		domain := w.task.LabelDomain(id)
		for pos := range len(w.task.Observation(id)) {
			prevs := []int{crf.StartLabel}
			if pos > 0 {
				prevs = []int{crf.NoLabel}
				if w.cfg.Markovian {
					prevs = domain
				}
			}
			for _, label := range domain {
				for _, prev := range prevs {
					fire(label, prev, id, pos)
				}
			}
		}
	}

	parts, err := cluster.Gather(w.comm, 0, local)
	if err != nil {
		return nil, err
	}
	var ids []crf.FeatureID
	if w.comm.IsRoot() {
		var all []crf.FeatureID
		for _, p := range parts {
			all = append(all, p...)
		}
		ids = crf.SortFeatureIDs(all)
	}
	if err := cluster.Broadcast(w.comm, 0, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// initWeights copies the configured initial weights by feature id. Features
// unknown to them start at zero.
func (w *worker) initWeights() error {
	values := make([]float64, w.weights.Size())
	if w.comm.IsRoot() && w.t.InitialWeights != nil {
		given := w.t.InitialWeights
		matched := 0
		for i := range values {
			if j := given.Index(w.weights.ID(i)); j >= 0 {
				values[i] = given.Get(j)
				matched++
			}
		}
		w.log.Info("Loaded initial weights", "matched", matched, "given", given.Size())
	}
	if err := cluster.Broadcast(w.comm, 0, &values); err != nil {
		return err
	}
	if err := w.weights.SetEffective(values); err != nil {
		return err
	}
	w.reg.Means = values
	return nil
}

func unionRows(a, b emission.Rows) emission.Rows {
	if a == nil {
		a = make(emission.Rows)
	}
	for ctx, row := range b {
		dst, ok := a[ctx]
		if !ok {
			dst = make(map[int64]float64)
			a[ctx] = dst
		}
		for d, v := range row {
			dst[d] = v
		}
	}
	return a
}

// seedEmissions registers every (context, decision) pair the joint lattices
// can reach with a uniform distribution per context. Pairs found in the
// configured initial emissions take their value from there.
func (w *worker) seedEmissions() error {
	local := emission.New()
	for _, id := range w.mine {
		z := w.task.ReconstructedSequenceOf(id)
		for _, label := range w.task.LabelDomain(id) {
			ctx, err := w.task.ContextOf(id, label)
			if err != nil {
				return err
			}
			for _, d := range z {
				local.Seed(ctx, d)
			}
		}
	}

	rows, err := cluster.Reduce(w.comm, 0, local.Rows(), unionRows)
	if err != nil {
		return err
	}
	if w.comm.IsRoot() {
		table := emission.FromRows(rows)
		if given := w.t.InitialEmissions; given != nil {
			for _, ctx := range table.Contexts() {
				_, known := given.Row(ctx)
				if len(known) == 0 {
					continue
				}
				// unseen decisions get the rarest known probability
				floor := slices.Max(known)
				decisions, _ := table.Row(ctx)
				for _, d := range decisions {
					v, err := given.NLogProb(ctx, d)
					if err != nil || math.IsInf(v, 1) {
						v = floor
					}
					table.Set(ctx, d, v)
				}
			}
		}
		if err := table.Normalize(); err != nil {
			return fmt.Errorf("seeding emissions: %w", err)
		}
		rows = table.Rows()
	}
	return w.syncEmissions(rows)
}

// syncEmissions installs root's rows on every replica.
func (w *worker) syncEmissions(rows emission.Rows) error {
	if err := cluster.Broadcast(w.comm, 0, &rows); err != nil {
		return err
	}
	w.table = emission.FromRows(rows)
	return nil
}
