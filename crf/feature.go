package crf

import (
	"fmt"
	"sort"
)

// FeatureID names a feature by its template and up to two integer arguments.
type FeatureID struct {
	Template string
	A, B     int64
}

// String renders the human-readable form "template(a,b)".
func (f FeatureID) String() string {
	return fmt.Sprintf("%s(%d,%d)", f.Template, f.A, f.B)
}

// Less orders feature ids by template, then arguments.
func (f FeatureID) Less(o FeatureID) bool {
	if f.Template != o.Template {
		return f.Template < o.Template
	}
	if f.A != o.A {
		return f.A < o.A
	}
	return f.B < o.B
}

// Feature is a fired feature with its value.
type Feature struct {
	ID    FeatureID
	Value float64
}

// FeatureFunc fires the features of labeling position pos of sentence sentID
// with label, given the previous label (StartLabel at position 0, NoLabel when
// the hidden chain is not Markovian).
type FeatureFunc func(label, prevLabel, sentID, pos int) []Feature

// SparseVector is a sparse feature vector over weight indices.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// Add accumulates val at idx.
func (sv *SparseVector) Add(idx int, val float64) {
	for i, existingIdx := range sv.Indices {
		if existingIdx == idx {
			sv.Values[i] += val
			return
		}
	}
	sv.Indices = append(sv.Indices, idx)
	sv.Values = append(sv.Values, val)
}

// Dot computes the dot product with a dense vector.
func (sv SparseVector) Dot(dense []float64) float64 {
	var sum float64
	for i, idx := range sv.Indices {
		if idx < len(dense) {
			sum += sv.Values[i] * dense[idx]
		}
	}
	return sum
}

// AddTo adds scale times the vector into dense.
func (sv SparseVector) AddTo(dense []float64, scale float64) {
	for i, idx := range sv.Indices {
		dense[idx] += scale * sv.Values[i]
	}
}

// Nnz returns the number of non-zero entries.
func (sv SparseVector) Nnz() int {
	return len(sv.Indices)
}

// SortFeatureIDs sorts ids in place and drops duplicates.
func SortFeatureIDs(ids []FeatureID) []FeatureID {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	out := ids[:0]
	for _, id := range ids {
		if len(out) > 0 && id == out[len(out)-1] {
			continue
		}
		out = append(out, id)
	}
	return out
}
