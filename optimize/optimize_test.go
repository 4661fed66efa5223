package optimize

import (
	"errors"
	"math"
	"testing"
)

// quadratic is f(x) = sum_i (i+1) * (x_i - i)^2.
func quadratic(x []float64) (float64, []float64, error) {
	f := 0.0
	g := make([]float64, len(x))
	for i, v := range x {
		d := v - float64(i)
		f += float64(i+1) * d * d
		g[i] = 2 * float64(i+1) * d
	}
	return f, g, nil
}

func TestLBFGSQuadratic(t *testing.T) {
	config := LBFGSConfig{Memory: 5, MaxIterations: 100, Epsilon: 1e-8, MaxLineSearch: 20}
	res, err := LBFGS(make([]float64, 4), quadratic, config)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res.X {
		if math.Abs(v-float64(i)) > 1e-4 {
			t.Errorf("x[%d] = %v, want %d", i, v, i)
		}
	}
	if res.F > 1e-8 {
		t.Errorf("f = %v, want ~0", res.F)
	}
}

func TestLBFGSL1Sparsity(t *testing.T) {
	// f(x) = (x0 - 3)^2 + (x1 - 0.1)^2 with L1 = 1 drives x1 to exactly 0
	obj := func(x []float64) (float64, []float64, error) {
		a, b := x[0]-3, x[1]-0.1
		return a*a + b*b, []float64{2 * a, 2 * b}, nil
	}
	config := LBFGSConfig{Memory: 5, MaxIterations: 100, Epsilon: 1e-8, MaxLineSearch: 30, L1: 1}
	res, err := LBFGS([]float64{0, 0}, obj, config)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.X[0]-2.5) > 1e-3 {
		t.Errorf("x0 = %v, want 2.5", res.X[0])
	}
	if res.X[1] != 0 {
		t.Errorf("x1 = %v, want 0", res.X[1])
	}
}

func TestLBFGSNonFinite(t *testing.T) {
	tests := []struct {
		name string
		f    float64
		g    float64
	}{
		{"nan objective", math.NaN(), 0},
		{"nan gradient", 1, math.NaN()},
		{"inf gradient", 1, math.Inf(1)},
		{"negative inf gradient", 1, math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := func(x []float64) (float64, []float64, error) {
				return tt.f, []float64{0, tt.g}, nil
			}
			_, err := LBFGS([]float64{1, 1}, obj, DefaultLBFGSConfig())
			if !errors.Is(err, ErrNonFinite) {
				t.Errorf("err = %v, want ErrNonFinite", err)
			}
		})
	}
}

func TestSchedules(t *testing.T) {
	s := NewSchedule(DecayBottou, 1, 0.5)
	if r := s.Next(); r != 1 {
		t.Errorf("bottou t=0: %v, want 1", r)
	}
	if r := s.Next(); math.Abs(r-1/1.5) > 1e-12 {
		t.Errorf("bottou t=1: %v, want %v", r, 1/1.5)
	}

	s = NewSchedule(DecayGeometric, 1, 1)
	s.Next()
	if r := s.Next(); r != 0.25 {
		t.Errorf("geometric: %v, want 0.25", r)
	}

	s = NewSchedule(DecayEpoch, 0.9, 0)
	s.BeginEpoch(2)
	if r := s.Next(); math.Abs(r-0.3) > 1e-12 {
		t.Errorf("epoch-fixed: %v, want 0.3", r)
	}

	s = NewSchedule(DecayFixed, 0.1, 5)
	s.BeginEpoch(3)
	s.Next()
	if r := s.Next(); r != 0.1 {
		t.Errorf("fixed: %v, want 0.1", r)
	}

	if _, err := ParseDecay("cosine"); err == nil {
		t.Error("expected error for unknown decay")
	}
	if d, err := ParseDecay("bottou"); err != nil || d != DecayBottou {
		t.Errorf("ParseDecay(bottou) = %v, %v", d, err)
	}
}

type lazy struct {
	values []float64
	mult   float64
}

func (l *lazy) Get(i int) float64    { return l.values[i] * l.mult }
func (l *lazy) Set(i int, v float64) { l.values[i] = v / l.mult }
func (l *lazy) Shrink(f float64)     { l.mult *= f }
func (l *lazy) Scale() float64       { return l.mult }
func (l *lazy) Rescale() {
	for i := range l.values {
		l.values[i] *= l.mult
	}
	l.mult = 1
}

func (l *lazy) norm() float64 {
	s := 0.0
	for i := range l.values {
		s += l.Get(i) * l.Get(i)
	}
	return math.Sqrt(s)
}

func TestSGDLazyL2Shrinks(t *testing.T) {
	grad := map[int]float64{0: -1, 1: 0.5}
	run := func(l2 float64) *lazy {
		w := &lazy{values: make([]float64, 2), mult: 1}
		sgd := NewSGD(NewSchedule(DecayFixed, 0.1, 0), l2, 10)
		for epoch := range 3 {
			sgd.BeginEpoch(epoch)
			for range 10 {
				if err := sgd.Update(w, grad, 1); err != nil {
					t.Fatal(err)
				}
			}
		}
		return w
	}
	plain, reg := run(0), run(1)
	if reg.norm() >= plain.norm() {
		t.Errorf("L2 norm %v should be below unregularized %v", reg.norm(), plain.norm())
	}
	if math.Abs(plain.Get(0)-3) > 1e-9 {
		t.Errorf("unregularized w0 = %v, want 3", plain.Get(0))
	}
}

func TestSGDShrinkageMatchesEagerUpdate(t *testing.T) {
	w := &lazy{values: []float64{2, -1}, mult: 1}
	sgd := NewSGD(NewSchedule(DecayFixed, 0.5, 0), 2, 4)
	sgd.RescaleBelow = 0.9
	eager := []float64{2, -1}
	for range 5 {
		if err := sgd.Update(w, map[int]float64{1: 1}, 1); err != nil {
			t.Fatal(err)
		}
		f := 1 - 0.5*2/4.0
		eager[0] *= f
		eager[1] = eager[1]*f - 0.5
	}
	for i, want := range eager {
		if math.Abs(w.Get(i)-want) > 1e-12 {
			t.Errorf("w[%d] = %v, want %v", i, w.Get(i), want)
		}
	}
	if math.Abs(sgd.Shrinkage-math.Pow(0.75, 5)) > 1e-12 {
		t.Errorf("Shrinkage = %v", sgd.Shrinkage)
	}
}

func TestSGDRejectsNonFiniteGradient(t *testing.T) {
	for _, d := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		w := &lazy{values: []float64{1, 1}, mult: 1}
		sgd := NewSGD(NewSchedule(DecayFixed, 0.1, 0), 1, 2)
		err := sgd.Update(w, map[int]float64{0: 1, 1: d}, 1)
		if !errors.Is(err, ErrNonFinite) {
			t.Errorf("gradient %v: err = %v, want ErrNonFinite", d, err)
		}
		if w.Get(0) != 1 || w.mult != 1 {
			t.Errorf("gradient %v: weights changed to %v (multiplier %v)", d, w.values, w.mult)
		}
	}
}

func TestRegularizer(t *testing.T) {
	w := []float64{1, -2}
	g := make([]float64, 2)
	r := Regularizer{Kind: WeightedL2, Strength: 0.5, Means: []float64{1, 0}}
	if p := r.Apply(w, g); p != 2 {
		t.Errorf("penalty = %v, want 2", p)
	}
	if g[0] != 0 || g[1] != -2 {
		t.Errorf("grad = %v, want [0 -2]", g)
	}
	if v := (Regularizer{Kind: L1, Strength: 2}).Value(w); v != 6 {
		t.Errorf("L1 value = %v, want 6", v)
	}
	if _, err := ParseRegularizer("elastic"); err == nil {
		t.Error("expected error for unknown regularizer")
	}
}
