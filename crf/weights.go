package crf

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Weights holds log-linear feature weights as an unscaled vector times a
// scalar multiplier. The effective weight of index i is Values[i]*Multiplier.
type Weights struct {
	index      map[FeatureID]int
	ids        []FeatureID
	Values     []float64
	Multiplier float64
}

// NewWeights creates an empty weight vector.
func NewWeights() *Weights {
	return &Weights{
		index:      make(map[FeatureID]int),
		Multiplier: 1,
	}
}

// NewWeightsFromIDs creates zero weights over ids, in the given order.
func NewWeightsFromIDs(ids []FeatureID) *Weights {
	w := NewWeights()
	for _, id := range ids {
		w.Add(id)
	}
	return w
}

// Add registers id if not already present and returns its index.
func (w *Weights) Add(id FeatureID) int {
	if i, ok := w.index[id]; ok {
		return i
	}
	i := len(w.ids)
	w.index[id] = i
	w.ids = append(w.ids, id)
	w.Values = append(w.Values, 0)
	return i
}

// Index returns the index of id, or -1 if unknown.
func (w *Weights) Index(id FeatureID) int {
	if i, ok := w.index[id]; ok {
		return i
	}
	return -1
}

// ID returns the feature id at index i.
func (w *Weights) ID(i int) FeatureID {
	return w.ids[i]
}

// IDs returns the registered feature ids in index order.
func (w *Weights) IDs() []FeatureID {
	return w.ids
}

// Size returns the number of weights.
func (w *Weights) Size() int {
	return len(w.ids)
}

// Get returns the effective weight at index i.
func (w *Weights) Get(i int) float64 {
	return w.Values[i] * w.Multiplier
}

// Set sets the effective weight at index i.
func (w *Weights) Set(i int, v float64) {
	w.Values[i] = v / w.Multiplier
}

// Effective returns a copy of the effective weights.
func (w *Weights) Effective() []float64 {
	out := make([]float64, len(w.Values))
	floats.ScaleTo(out, w.Multiplier, w.Values)
	return out
}

// SetEffective replaces every weight and resets the multiplier to 1.
func (w *Weights) SetEffective(values []float64) error {
	if len(values) != len(w.Values) {
		return fmt.Errorf("crf: weight vector has %d entries, want %d", len(values), len(w.Values))
	}
	copy(w.Values, values)
	w.Multiplier = 1
	return nil
}

// Shrink multiplies every effective weight by f in constant time.
func (w *Weights) Shrink(f float64) {
	w.Multiplier *= f
}

// Scale returns the current multiplier.
func (w *Weights) Scale() float64 {
	return w.Multiplier
}

// Rescale folds the multiplier back into the values.
func (w *Weights) Rescale() {
	if w.Multiplier == 1 {
		return
	}
	floats.Scale(w.Multiplier, w.Values)
	w.Multiplier = 1
}

// AddScaled adds scale*g to the effective weights, where g is dense.
func (w *Weights) AddScaled(scale float64, g []float64) {
	floats.AddScaled(w.Values, scale/w.Multiplier, g)
}

// Vector resolves fired features to a sparse vector, dropping unknown ids.
func (w *Weights) Vector(feats []Feature) SparseVector {
	var sv SparseVector
	for _, f := range feats {
		if i := w.Index(f.ID); i >= 0 {
			sv.Add(i, f.Value)
		}
	}
	return sv
}

// Score returns the effective dot product of the weights with sv.
func (w *Weights) Score(sv SparseVector) float64 {
	return sv.Dot(w.Values) * w.Multiplier
}

// Clone returns a deep copy sharing no memory with w.
func (w *Weights) Clone() *Weights {
	c := &Weights{
		index:      make(map[FeatureID]int, len(w.index)),
		ids:        append([]FeatureID(nil), w.ids...),
		Values:     append([]float64(nil), w.Values...),
		Multiplier: w.Multiplier,
	}
	for id, i := range w.index {
		c.index[id] = i
	}
	return c
}
