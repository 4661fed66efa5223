package crf

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Semiring identities in negative-log space.
var (
	Zero = math.Inf(1)
	One  = 0.0
)

// Times multiplies two negative-log weights.
func Times(a, b float64) float64 {
	return a + b
}

// Plus adds two negative-log weights: -log(exp(-a) + exp(-b)).
func Plus(a, b float64) float64 {
	if math.IsInf(a, 1) {
		return b
	}
	if math.IsInf(b, 1) {
		return a
	}
	if a > b {
		a, b = b, a
	}
	return a - math.Log1p(math.Exp(a-b))
}

// PlusAll adds a set of negative-log weights.
func PlusAll(ws []float64) float64 {
	if len(ws) == 0 {
		return Zero
	}
	neg := make([]float64, len(ws))
	floats.ScaleTo(neg, -1, ws)
	return -floats.LogSumExp(neg)
}

// finite reports whether w is neither NaN nor infinite.
func finite(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0)
}
