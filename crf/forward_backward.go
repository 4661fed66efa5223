package crf

import (
	"fmt"
	"math"
)

// potentialTolerance bounds the allowed disagreement between Alpha[Final]
// and Beta[Start], relative to the total.
const potentialTolerance = 1e-6

// Potentials holds the forward and backward potentials of a lattice.
type Potentials struct {
	Alpha []float64 // root-to-state
	Beta  []float64 // state-to-sink
	Total float64   // -log of the summed weight of all paths
}

// ShortestDistance computes the generalized shortest distance in the log
// semiring from the start state (or to the final state when reverse is set).
func ShortestDistance(l *Lattice, reverse bool) []float64 {
	d := make([]float64, l.NumStates())
	for i := range d {
		d[i] = Zero
	}
	if !reverse {
		d[l.Start] = One
		for s := 0; s < l.NumStates(); s++ {
			if math.IsInf(d[s], 1) {
				continue
			}
			for _, ai := range l.Out[s] {
				a := &l.Arcs[ai]
				d[a.To] = Plus(d[a.To], Times(d[s], a.Weight))
			}
		}
		return d
	}
	d[l.Final] = One
	for s := l.NumStates() - 1; s >= 0; s-- {
		for _, ai := range l.Out[s] {
			a := &l.Arcs[ai]
			d[s] = Plus(d[s], Times(a.Weight, d[a.To]))
		}
	}
	return d
}

// ForwardBackward computes both potential vectors and checks that they agree.
func ForwardBackward(l *Lattice) (Potentials, error) {
	p := Potentials{
		Alpha: ShortestDistance(l, false),
		Beta:  ShortestDistance(l, true),
	}
	p.Total = p.Alpha[l.Final]
	back := p.Beta[l.Start]
	if !finite(p.Total) || !finite(back) {
		return p, fmt.Errorf("%w: sentence %d total %v", ErrBadPotential, l.SentID, p.Total)
	}
	if math.Abs(p.Total-back) > potentialTolerance*math.Max(1, math.Abs(p.Total)) {
		return p, fmt.Errorf("%w: sentence %d alpha %v beta %v", ErrBadPotential, l.SentID, p.Total, back)
	}
	return p, nil
}
