package crf

import (
	"fmt"
	"math"
)

// LabelDecision keys the posterior mass of emitting an observation under a label.
type LabelDecision struct {
	Label    int
	Decision int64
}

// Posterior returns the marginal probability of traversing arc ai.
func Posterior(l *Lattice, p Potentials, ai int) float64 {
	a := &l.Arcs[ai]
	return math.Exp(-(p.Alpha[a.From] + a.Weight + p.Beta[a.To] - p.Total))
}

// replay visits every labeling arc position by position with its posterior.
func replay(l *Lattice, p Potentials, visit func(a *Arc, post float64)) error {
	for pos := 0; pos < l.Len(); pos++ {
		for _, ai := range l.Steps[pos] {
			post := Posterior(l, p, ai)
			if math.IsNaN(post) || math.IsInf(post, 0) {
				return fmt.Errorf("%w: sentence %d position %d posterior %v",
					ErrBadPotential, l.SentID, pos, post)
			}
			visit(&l.Arcs[ai], post)
		}
	}
	return nil
}

// FeatureExpectations returns the expected value of every fired feature
// under the lattice distribution, keyed by weight index.
func FeatureExpectations(l *Lattice, p Potentials) (map[int]float64, error) {
	out := make(map[int]float64)
	err := replay(l, p, func(a *Arc, post float64) {
		for i, idx := range a.Features.Indices {
			out[idx] += post * a.Features.Values[i]
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddFeatureExpectations adds scale times the feature expectations into the
// dense vector dst.
func AddFeatureExpectations(l *Lattice, p Potentials, scale float64, dst []float64) error {
	return replay(l, p, func(a *Arc, post float64) {
		a.Features.AddTo(dst, scale*post)
	})
}

// BMatrix returns the posterior mass of each (label, observed decision) pair,
// where z[pos] is the observation emitted at pos.
func BMatrix(l *Lattice, p Potentials, z []int64) (map[LabelDecision]float64, error) {
	if len(z) != l.Len() {
		return nil, fmt.Errorf("crf: %d observations for a lattice of length %d", len(z), l.Len())
	}
	b := make(map[LabelDecision]float64)
	err := replay(l, p, func(a *Arc, post float64) {
		b[LabelDecision{Label: a.Label, Decision: z[a.Pos]}] += post
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// TimestepMass returns the summed posterior of the arcs at each position.
// Every entry is 1 for a consistent lattice.
func TimestepMass(l *Lattice, p Potentials) []float64 {
	mass := make([]float64, l.Len())
	for pos := range mass {
		for _, ai := range l.Steps[pos] {
			mass[pos] += Posterior(l, p, ai)
		}
	}
	return mass
}
