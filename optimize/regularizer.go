package optimize

import (
	"fmt"
	"math"
)

// RegularizerKind selects the penalty on feature weights.
type RegularizerKind int

const (
	NoRegularizer RegularizerKind = iota
	L1
	L2
	WeightedL2
)

var regularizerNames = map[string]RegularizerKind{
	"none":        NoRegularizer,
	"l1":          L1,
	"l2":          L2,
	"weighted-l2": WeightedL2,
}

// ParseRegularizer parses a regularizer name.
func ParseRegularizer(s string) (RegularizerKind, error) {
	if k, ok := regularizerNames[s]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("optimize: unknown regularizer %q", s)
}

// Regularizer is a penalty applied centrally to the summed objective.
type Regularizer struct {
	Kind     RegularizerKind
	Strength float64
	// Means are the per-feature centers of the weighted L2 penalty.
	Means []float64
}

// Apply adds the smooth penalty at w to grad and returns its value.
// L1 contributes nothing here; it is handled by OWL-QN.
func (r Regularizer) Apply(w, grad []float64) float64 {
	if r.Strength == 0 || (r.Kind != L2 && r.Kind != WeightedL2) {
		return 0
	}
	penalty := 0.0
	for i, v := range w {
		d := v
		if r.Kind == WeightedL2 && i < len(r.Means) {
			d -= r.Means[i]
		}
		penalty += d * d
		grad[i] += 2 * r.Strength * d
	}
	return r.Strength * penalty
}

// L1Strength returns the OWL-QN strength, 0 unless the kind is L1.
func (r Regularizer) L1Strength() float64 {
	if r.Kind == L1 {
		return r.Strength
	}
	return 0
}

// L2Strength returns the lazy shrinkage strength, 0 unless the kind is L2.
func (r Regularizer) L2Strength() float64 {
	if r.Kind == L2 {
		return r.Strength
	}
	return 0
}

// Value returns the penalty at w without touching a gradient.
func (r Regularizer) Value(w []float64) float64 {
	switch r.Kind {
	case L1:
		s := 0.0
		for _, v := range w {
			s += math.Abs(v)
		}
		return r.Strength * s
	case L2, WeightedL2:
		return r.Apply(w, make([]float64, len(w)))
	}
	return 0
}
