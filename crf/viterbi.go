package crf

import "math"

// Viterbi finds the lowest-weight path through the lattice and returns its
// labels, one per position, along with the path weight.
func Viterbi(l *Lattice) ([]int, float64) {
	n := l.NumStates()
	best := make([]float64, n)
	back := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
		back[i] = -1
	}
	best[l.Start] = 0

	for s := 0; s < n; s++ {
		if math.IsInf(best[s], 1) {
			continue
		}
		for _, ai := range l.Out[s] {
			a := &l.Arcs[ai]
			if w := best[s] + a.Weight; w < best[a.To] {
				best[a.To] = w
				back[a.To] = ai
			}
		}
	}

	if math.IsInf(best[l.Final], 1) {
		return nil, best[l.Final]
	}

	// Backtrack
	path := make([]int, l.Len())
	for s := l.Final; s != l.Start; {
		a := &l.Arcs[back[s]]
		if a.Label != EndLabel {
			path[a.Pos] = a.Label
		}
		s = a.From
	}
	return path, best[l.Final]
}
