package crf

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

// Arc is a weighted transition labeling position Pos with Label.
// Arcs into the final state carry Label EndLabel and Pos == sentence length.
type Arc struct {
	From, To  int
	Pos       int
	PrevLabel int
	Label     int
	Weight    float64
	Features  SparseVector
}

// Lattice is an acyclic weighted automaton over the labelings of one
// sentence. State ids are allocated layer by layer, so id order is a
// topological order; Start is 0 and Final is the last state.
type Lattice struct {
	SentID int
	Start  int
	Final  int
	Arcs   []Arc
	// Out lists arc indices leaving each state.
	Out [][]int
	// Steps lists arc indices per position; Steps[len] holds the final arcs.
	Steps [][]int
	// Layers lists the states reachable after each position, Layers[0] = {Start}.
	Layers [][]int
}

// NumStates returns the number of states.
func (l *Lattice) NumStates() int {
	return len(l.Out)
}

// Len returns the number of labeled positions.
func (l *Lattice) Len() int {
	return len(l.Steps) - 1
}

func (l *Lattice) newState() int {
	l.Out = append(l.Out, nil)
	return len(l.Out) - 1
}

func (l *Lattice) addArc(a Arc) error {
	if !finite(a.Weight) {
		return fmt.Errorf("%w: sentence %d position %d label %d weight %v",
			ErrBadWeight, l.SentID, a.Pos, a.Label, a.Weight)
	}
	idx := len(l.Arcs)
	l.Arcs = append(l.Arcs, a)
	l.Out[a.From] = append(l.Out[a.From], idx)
	l.Steps[a.Pos] = append(l.Steps[a.Pos], idx)
	return nil
}

type latticeSummary struct {
	SentID    int
	States    int
	Arcs      int
	Positions int
	Weights   [][]float64
}

// Dump renders a compact summary of the lattice for diagnostics.
func (l *Lattice) Dump() string {
	s := latticeSummary{
		SentID:    l.SentID,
		States:    l.NumStates(),
		Arcs:      len(l.Arcs),
		Positions: l.Len(),
	}
	for _, step := range l.Steps {
		ws := make([]float64, len(step))
		for i, a := range step {
			ws[i] = l.Arcs[a].Weight
		}
		s.Weights = append(s.Weights, ws)
	}
	return spew.Sdump(s)
}

// EmissionFunc returns the negative-log probability of the observation at pos
// given label.
type EmissionFunc func(pos, label int) (float64, error)

// Builder constructs lattices from feature weights and, for the joint
// variant, emission probabilities.
type Builder struct {
	Weights   *Weights
	Features  FeatureFunc
	Markovian bool
}

// FeatureLattice builds the lattice of p(y|x): arc weights are the negated
// feature scores.
func (b *Builder) FeatureLattice(sentID, length int, domain []int) (*Lattice, error) {
	return b.build(sentID, length, domain, nil)
}

// JointLattice builds the lattice of p(y,z|x): arc weights add the emission
// weight of the observation at each position.
func (b *Builder) JointLattice(sentID, length int, domain []int, emit EmissionFunc) (*Lattice, error) {
	return b.build(sentID, length, domain, emit)
}

func (b *Builder) build(sentID, length int, domain []int, emit EmissionFunc) (*Lattice, error) {
	l := &Lattice{
		SentID: sentID,
		Steps:  make([][]int, length+1),
		Layers: make([][]int, length+1),
	}
	l.Start = l.newState()
	l.Layers[0] = []int{l.Start}

	// label carried by each state of the previous layer
	prevLabels := map[int]int{l.Start: StartLabel}

	for pos := 0; pos < length; pos++ {
		next := make(map[int]int)
		byLabel := make(map[int]int)
		shared := -1
		for _, from := range l.Layers[pos] {
			prev := prevLabels[from]
			if !b.Markovian && pos > 0 {
				prev = NoLabel
			}
			for _, label := range domain {
				var to int
				if b.Markovian {
					var ok bool
					if to, ok = byLabel[label]; !ok {
						to = l.newState()
						byLabel[label] = to
						next[to] = label
						l.Layers[pos+1] = append(l.Layers[pos+1], to)
					}
				} else {
					if shared < 0 {
						shared = l.newState()
						next[shared] = NoLabel
						l.Layers[pos+1] = append(l.Layers[pos+1], shared)
					}
					to = shared
				}
				fv := b.Weights.Vector(b.Features(label, prev, sentID, pos))
				w := -b.Weights.Score(fv)
				if emit != nil {
					e, err := emit(pos, label)
					if err != nil {
						return nil, fmt.Errorf("crf: emission at sentence %d position %d: %w", sentID, pos, err)
					}
					w = Times(w, e)
				}
				if err := l.addArc(Arc{From: from, To: to, Pos: pos, PrevLabel: prev, Label: label, Weight: w, Features: fv}); err != nil {
					return nil, err
				}
			}
		}
		prevLabels = next
	}

	l.Final = l.newState()
	for _, from := range l.Layers[length] {
		prev := prevLabels[from]
		if err := l.addArc(Arc{From: from, To: l.Final, Pos: length, PrevLabel: prev, Label: EndLabel, Weight: One}); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// PathFeatures returns the feature vector and weight of a fixed labeling.
func (b *Builder) PathFeatures(sentID int, labels []int) (SparseVector, float64) {
	var total SparseVector
	prev := StartLabel
	for pos, label := range labels {
		p := prev
		if !b.Markovian && pos > 0 {
			p = NoLabel
		}
		fv := b.Weights.Vector(b.Features(label, p, sentID, pos))
		for i, idx := range fv.Indices {
			total.Add(idx, fv.Values[i])
		}
		prev = label
	}
	return total, -b.Weights.Score(total)
}
