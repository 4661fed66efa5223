package optimize

import (
	"fmt"
	"math"
)

// LazyVector is a weight vector stored as values times a multiplier, so that
// shrinking every weight costs O(1).
type LazyVector interface {
	Get(i int) float64
	Set(i int, v float64)
	Shrink(f float64)
	Rescale()
	Scale() float64
}

// SGD applies per-example updates with lazy L2 shrinkage.
type SGD struct {
	Schedule *Schedule
	L2       float64
	// Total is the number of training examples across all workers.
	Total int
	// RescaleBelow folds the multiplier back into the values once it drops
	// under this bound.
	RescaleBelow float64

	// Shrinkage is the product of every shrink factor applied since BeginEpoch.
	Shrinkage float64
	Updates   int
}

// NewSGD creates an SGD driver over total examples.
func NewSGD(schedule *Schedule, l2 float64, total int) *SGD {
	return &SGD{
		Schedule:     schedule,
		L2:           l2,
		Total:        total,
		RescaleBelow: 1e-4,
		Shrinkage:    1,
	}
}

// BeginEpoch resets per-epoch state.
func (s *SGD) BeginEpoch(epoch int) {
	s.Schedule.BeginEpoch(epoch)
	s.Shrinkage = 1
}

// Update shrinks w once per example in the minibatch, then applies the
// summed minibatch gradient.
func (s *SGD) Update(w LazyVector, grad map[int]float64, examples int) error {
	for i, d := range grad {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: gradient[%d]=%v", ErrNonFinite, i, d)
		}
	}
	rate := s.Schedule.Next()
	if s.L2 > 0 && s.Total > 0 {
		f := 1 - rate*s.L2/float64(s.Total)
		if f <= 0 {
			return fmt.Errorf("optimize: shrink factor %v at rate %v; lower the learning rate or L2 strength", f, rate)
		}
		f = math.Pow(f, float64(examples))
		w.Shrink(f)
		s.Shrinkage *= f
	}
	for i, d := range grad {
		w.Set(i, w.Get(i)-rate*d)
	}
	if w.Scale() < s.RescaleBelow {
		w.Rescale()
	}
	s.Updates++
	return nil
}
