package crf

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestAlphabet(t *testing.T) {
	a := NewAlphabet()
	id0 := a.Add("hello")
	id1 := a.Add("world")
	id2 := a.Add("hello") // duplicate

	if id0 != 0 || id1 != 1 || id2 != 0 {
		t.Errorf("IDs: %d, %d, %d; want 0, 1, 0", id0, id1, id2)
	}
	if a.Size() != 2 {
		t.Errorf("Size = %d, want 2", a.Size())
	}
	if a.Get("missing") != -1 {
		t.Error("Get missing should return -1")
	}
}

func TestPlus(t *testing.T) {
	got := Plus(-math.Log(0.25), -math.Log(0.5))
	if math.Abs(got+math.Log(0.75)) > 1e-12 {
		t.Errorf("Plus = %v, want %v", got, -math.Log(0.75))
	}
	if Plus(Zero, 2) != 2 || Plus(3, Zero) != 3 {
		t.Error("Zero should be the identity of Plus")
	}
	all := PlusAll([]float64{-math.Log(0.25), -math.Log(0.25), -math.Log(0.5)})
	if math.Abs(all) > 1e-12 {
		t.Errorf("PlusAll = %v, want 0", all)
	}
	if !math.IsInf(PlusAll(nil), 1) {
		t.Error("PlusAll of nothing should be Zero")
	}
}

func testFeatures(label, prev, sentID, pos int) []Feature {
	return []Feature{
		{ID: FeatureID{Template: "label", A: int64(label)}, Value: 1},
		{ID: FeatureID{Template: "trans", A: int64(prev), B: int64(label)}, Value: 1},
		{ID: FeatureID{Template: "pos", A: int64(pos), B: int64(label)}, Value: 0.5},
	}
}

func testWeights(domain []int, length int) *Weights {
	w := NewWeights()
	prevs := append([]int{StartLabel, NoLabel}, domain...)
	for _, y := range domain {
		w.Add(FeatureID{Template: "label", A: int64(y)})
		for _, p := range prevs {
			w.Add(FeatureID{Template: "trans", A: int64(p), B: int64(y)})
		}
		for pos := range length {
			w.Add(FeatureID{Template: "pos", A: int64(pos), B: int64(y)})
		}
	}
	for i := range w.Size() {
		w.Set(i, 0.1*float64(i%7)-0.3)
	}
	return w
}

// enumerate calls fn with every labeling of the given length.
func enumerate(domain []int, length int, fn func([]int)) {
	labels := make([]int, length)
	var rec func(pos int)
	rec = func(pos int) {
		if pos == length {
			fn(labels)
			return
		}
		for _, y := range domain {
			labels[pos] = y
			rec(pos + 1)
		}
	}
	rec(0)
}

func TestUniformLatticeTotal(t *testing.T) {
	domain := []int{0, 1, 2}
	b := &Builder{Weights: NewWeights(), Features: testFeatures, Markovian: true}
	l, err := b.FeatureLattice(0, 4, domain)
	if err != nil {
		t.Fatal(err)
	}
	p, err := ForwardBackward(l)
	if err != nil {
		t.Fatal(err)
	}
	want := -4 * math.Log(3)
	if math.Abs(p.Total-want) > 1e-9 {
		t.Errorf("Total = %v, want %v", p.Total, want)
	}
	if math.Abs(p.Alpha[l.Final]-p.Beta[l.Start]) > 1e-9 {
		t.Errorf("alpha[final] = %v, beta[start] = %v", p.Alpha[l.Final], p.Beta[l.Start])
	}
}

func TestForwardBackwardBruteForce(t *testing.T) {
	domain := []int{0, 1, 2}
	const length = 4
	for _, markovian := range []bool{true, false} {
		b := &Builder{Weights: testWeights(domain, length), Features: testFeatures, Markovian: markovian}
		l, err := b.FeatureLattice(7, length, domain)
		if err != nil {
			t.Fatal(err)
		}
		p, err := ForwardBackward(l)
		if err != nil {
			t.Fatal(err)
		}

		var paths []float64
		expected := make([]float64, b.Weights.Size())
		enumerate(domain, length, func(labels []int) {
			_, w := b.PathFeatures(7, labels)
			paths = append(paths, w)
		})
		logZ := PlusAll(paths)
		if math.Abs(p.Total-logZ) > 1e-9 {
			t.Errorf("markovian=%v: Total = %v, brute force = %v", markovian, p.Total, logZ)
		}

		enumerate(domain, length, func(labels []int) {
			fv, w := b.PathFeatures(7, labels)
			fv.AddTo(expected, math.Exp(-(w - logZ)))
		})
		got := make([]float64, b.Weights.Size())
		if err := AddFeatureExpectations(l, p, 1, got); err != nil {
			t.Fatal(err)
		}
		for i := range got {
			if math.Abs(got[i]-expected[i]) > 1e-9 {
				t.Errorf("markovian=%v: E[%s] = %v, want %v", markovian, b.Weights.ID(i), got[i], expected[i])
			}
		}

		for pos, m := range TimestepMass(l, p) {
			if math.Abs(m-1) > 1e-9 {
				t.Errorf("markovian=%v: posterior mass at %d = %v, want 1", markovian, pos, m)
			}
		}
	}
}

func TestNonMarkovianLatticeSize(t *testing.T) {
	domain := []int{0, 1, 2, 3}
	b := &Builder{Weights: NewWeights(), Features: testFeatures}
	l, err := b.FeatureLattice(0, 5, domain)
	if err != nil {
		t.Fatal(err)
	}
	if l.NumStates() != 7 {
		t.Errorf("NumStates = %d, want 7", l.NumStates())
	}
	if len(l.Arcs) != 5*4+1 {
		t.Errorf("arcs = %d, want %d", len(l.Arcs), 5*4+1)
	}
}

func TestEmptySentence(t *testing.T) {
	b := &Builder{Weights: NewWeights(), Features: testFeatures, Markovian: true}
	l, err := b.FeatureLattice(0, 0, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	p, err := ForwardBackward(l)
	if err != nil {
		t.Fatal(err)
	}
	if p.Total != 0 {
		t.Errorf("Total = %v, want 0", p.Total)
	}
}

func TestBMatrixDeterministicEmission(t *testing.T) {
	domain := []int{0, 1, 2}
	z := []int64{2, 0, 0, 1}
	b := &Builder{Weights: testWeights(domain, len(z)), Features: testFeatures, Markovian: true}
	l, err := b.JointLattice(0, len(z), domain, func(pos, label int) (float64, error) {
		if int64(label) == z[pos] {
			return 0, nil
		}
		return 1e3, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := ForwardBackward(l)
	if err != nil {
		t.Fatal(err)
	}
	bm, err := BMatrix(l, p, z)
	if err != nil {
		t.Fatal(err)
	}
	want := map[LabelDecision]float64{{2, 2}: 1, {0, 0}: 2, {1, 1}: 1}
	for k, v := range want {
		if math.Abs(bm[k]-v) > 1e-9 {
			t.Errorf("B[%v] = %v, want %v", k, bm[k], v)
		}
	}
	labels, _ := Viterbi(l)
	for i, y := range labels {
		if int64(y) != z[i] {
			t.Errorf("Viterbi label %d = %d, want %d", i, y, z[i])
		}
	}
}

func TestViterbiMatchesBruteForce(t *testing.T) {
	domain := []int{0, 1, 2}
	const length = 3
	b := &Builder{Weights: testWeights(domain, length), Features: testFeatures, Markovian: true}
	l, err := b.FeatureLattice(0, length, domain)
	if err != nil {
		t.Fatal(err)
	}
	best := math.Inf(1)
	enumerate(domain, length, func(labels []int) {
		if _, w := b.PathFeatures(0, labels); w < best {
			best = w
		}
	})
	labels, w := Viterbi(l)
	if math.Abs(w-best) > 1e-9 {
		t.Errorf("Viterbi weight = %v, want %v", w, best)
	}
	if _, pw := b.PathFeatures(0, labels); math.Abs(pw-w) > 1e-9 {
		t.Errorf("path weight = %v, Viterbi weight = %v", pw, w)
	}
}

func TestBadWeight(t *testing.T) {
	b := &Builder{Weights: NewWeights(), Features: testFeatures, Markovian: true}
	_, err := b.JointLattice(0, 2, []int{0, 1}, func(pos, label int) (float64, error) {
		return math.NaN(), nil
	})
	if !errors.Is(err, ErrBadWeight) {
		t.Errorf("err = %v, want ErrBadWeight", err)
	}
}

func TestWeightsMultiplier(t *testing.T) {
	w := NewWeights()
	w.Set(w.Add(FeatureID{Template: "a"}), 2)
	w.Set(w.Add(FeatureID{Template: "b"}), -4)
	w.Shrink(0.5)
	if w.Get(0) != 1 || w.Get(1) != -2 {
		t.Errorf("shrunk weights = %v, %v; want 1, -2", w.Get(0), w.Get(1))
	}
	w.Set(0, 3)
	w.Rescale()
	if w.Multiplier != 1 || w.Values[0] != 3 || w.Values[1] != -2 {
		t.Errorf("rescaled = %v (multiplier %v)", w.Values, w.Multiplier)
	}
}

func TestWeightsReadWrite(t *testing.T) {
	w := NewWeights()
	w.Set(w.Add(FeatureID{Template: "label", A: 3}), 0.25)
	w.Set(w.Add(FeatureID{Template: "trans", A: StartLabel, B: 1}), -1.5)

	var buf bytes.Buffer
	if err := WriteWeights(&buf, w); err != nil {
		t.Fatal(err)
	}
	got, err := ReadWeights(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Size() != 2 || got.Get(1) != -1.5 || got.ID(1) != w.ID(1) {
		t.Errorf("read back %v %v", got.IDs(), got.Values)
	}

	buf.Reset()
	if err := WriteHumaneWeights(&buf, w); err != nil {
		t.Fatal(err)
	}
	if want := "trans(-100,1)\t-1.5\nlabel(3,0)\t0.25\n"; buf.String() != want {
		t.Errorf("humane = %q, want %q", buf.String(), want)
	}
}

func TestSortFeatureIDs(t *testing.T) {
	ids := []FeatureID{{Template: "b"}, {Template: "a", A: 2}, {Template: "a", A: 1}, {Template: "b"}}
	got := SortFeatureIDs(ids)
	if len(got) != 3 || got[0].A != 1 || got[2].Template != "b" {
		t.Errorf("SortFeatureIDs = %v", got)
	}
}
