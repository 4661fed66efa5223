package latent

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/happyhackingspace/latentcrf/emission"
	"github.com/happyhackingspace/latentcrf/internal/cluster"
)

func alignmentTask() *Alignment {
	pairs := []Pair{
		{Source: []int64{1, 2}, Target: []int64{11, 12}},
		{Source: []int64{1, 3}, Target: []int64{11, 13}},
		{Source: []int64{2, 3, 1}, Target: []int64{12, 13, 11}},
		{Source: []int64{3}, Target: []int64{13}},
		{Source: []int64{2, 1}, Target: []int64{12, 11}},
	}
	return NewAlignment(pairs, 0, true, false, []AlignmentTemplate{SrcTgt, Diagonal, JumpIsZero, NullAlign})
}

func taggingTask(t *testing.T, gold [][]int) *Tagging {
	t.Helper()
	sents := [][]int64{
		{1, 2, 1},
		{2, 2, 1, 1},
		{1},
		{2, 1, 2},
	}
	task, err := NewTagging(sents, gold, 2, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func testConfig(t *testing.T) Config {
	config := DefaultConfig()
	config.OutputPrefix = filepath.Join(t.TempDir(), "model")
	config.MaxIterations = 3
	config.EMIterations = 2
	return config
}

// withWorker runs fn on every rank of a pool over an initialized trainer.
func withWorker(t *testing.T, task Task, config Config, fn func(w *worker) error) *Trainer {
	t.Helper()
	tr, err := NewTrainer(task, config)
	if err != nil {
		t.Fatal(err)
	}
	err = tr.pool.Run(context.Background(), func(ctx context.Context, c *cluster.Comm) error {
		w := tr.newWorker(c)
		if err := w.initialize(); err != nil {
			return err
		}
		return fn(w)
	})
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"weight optimizer", func(c *Config) { c.WeightOptimizer = "adam" }},
		{"emission optimizer", func(c *Config) { c.EmissionOptimizer = "vb" }},
		{"decay", func(c *Config) { c.Decay = "cosine" }},
		{"regularizer", func(c *Config) { c.Regularizer = "elastic" }},
		{"sgd with l1", func(c *Config) { c.Regularizer = "l1" }},
		{"negative strength", func(c *Config) { c.RegularizerStrength = -1 }},
		{"alpha", func(c *Config) { c.DirichletAlpha = 0 }},
		{"stride", func(c *Config) { c.EarlyStopping, c.HeldOutStride = true, 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)
			if _, err := NewTrainer(alignmentTask(), config); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}

func checkGradient(t *testing.T, task Task, config Config) {
	t.Helper()
	withWorker(t, task, config, func(w *worker) error {
		n := w.weights.Size()
		if n == 0 {
			t.Fatal("no features discovered")
		}
		x := make([]float64, n)
		for i := range x {
			x[i] = 0.3 * math.Sin(float64(i+1))
		}
		res, err := w.evaluate(x)
		if err != nil {
			return err
		}
		const h = 1e-5
		for i := range x {
			xp := append([]float64(nil), x...)
			xm := append([]float64(nil), x...)
			xp[i] += h
			xm[i] -= h
			fp, err := w.evaluate(xp)
			if err != nil {
				return err
			}
			fm, err := w.evaluate(xm)
			if err != nil {
				return err
			}
			numeric := (fp.Nll - fm.Nll) / (2 * h)
			if math.Abs(numeric-res.Gradient[i]) > 1e-4*math.Max(1, math.Abs(numeric)) {
				t.Errorf("feature %v: gradient %v, finite difference %v", w.weights.ID(i), res.Gradient[i], numeric)
			}
		}
		return nil
	})
}

func TestLatentGradientMatchesFiniteDifferences(t *testing.T) {
	config := testConfig(t)
	checkGradient(t, alignmentTask(), config)
}

func TestSupervisedGradientMatchesFiniteDifferences(t *testing.T) {
	gold := [][]int{{0, 1, 0}, nil, {0}, {1, 0, 1}}
	checkGradient(t, taggingTask(t, gold), testConfig(t))
}

func TestHeldOutSentencesDoNotTrain(t *testing.T) {
	config := testConfig(t)
	config.EarlyStopping = true
	config.HeldOutStride = 2
	task := alignmentTask()

	withWorker(t, task, config, func(w *worker) error {
		stats, err := w.expectation()
		if err != nil {
			return err
		}
		// every training position contributes one unit of posterior mass
		want := 0.0
		for id := range task.Len() {
			if id%2 != 0 {
				want += float64(len(task.Observation(id)))
			}
		}
		got := 0.0
		for _, m := range stats.Counts.Marginals {
			got += m
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("accumulated mass %v, want %v", got, want)
		}
		dev, err := w.devLoss()
		if err != nil {
			return err
		}
		if dev <= 0 || math.IsInf(dev, 0) || math.IsNaN(dev) {
			t.Errorf("held-out NLL = %v", dev)
		}
		return nil
	})
}

func TestCombineReplicas(t *testing.T) {
	w0 := []float64{1, 2}
	parts := []sgdResult{
		{Nll: 1.5, Shrinkage: 0.5, Delta: []float64{0.1, 0}},
		{Nll: 2, Shrinkage: 0.8, Delta: []float64{0, -0.2}},
	}
	got, nll := combineReplicas(w0, parts)
	want := []float64{0.5, 0.6}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("w[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if nll != 3.5 {
		t.Errorf("nll = %v, want 3.5", nll)
	}
}

func TestEmissionPhaseNormalizes(t *testing.T) {
	config := testConfig(t)
	config.EmissionOptimizer = OptimizeStepwiseEM
	withWorker(t, alignmentTask(), config, func(w *worker) error {
		if _, err := w.emissionPhase(); err != nil {
			return err
		}
		for _, ctx := range w.table.Contexts() {
			_, nlogps := w.table.Row(ctx)
			total := 0.0
			for _, v := range nlogps {
				total += math.Exp(-v)
			}
			if math.Abs(total-1) > 1e-9 {
				t.Errorf("rank %d context %d sums to %v", w.comm.Rank(), ctx, total)
			}
		}
		return nil
	})
}

func fileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("missing %s: %v", filepath.Base(path), err)
	}
}

func TestTrainSupervisedTagging(t *testing.T) {
	gold := [][]int{{0, 1, 0}, {1, 1, 0, 0}, {0}, {1, 0, 1}}
	config := testConfig(t)
	config.WeightOptimizer = OptimizeLBFGS
	config.Workers = 2
	config.TestWithCRFOnly = true

	tr, err := NewTrainer(taggingTask(t, gold), config)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Train(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"0 1 0", "1 1 0 0", "0", "1 0 1"}
	for i, line := range tr.Labels {
		if line != want[i] {
			t.Errorf("sentence %d labeled %q, want %q", i, line, want[i])
		}
	}
	for i := 1; i < len(tr.History); i++ {
		if tr.History[i] > tr.History[i-1]+1e-9 {
			t.Errorf("objective rose from %v to %v", tr.History[i-1], tr.History[i])
		}
	}
	for _, name := range []string{"0.theta", "0.lambda", "0.lambda.humane", "final.theta", "final.lambda", "labels"} {
		fileExists(t, config.OutputPrefix+"."+name)
	}
}

func TestTrainAlignment(t *testing.T) {
	for _, opt := range []WeightOptimizer{OptimizeSGD, OptimizeLBFGS} {
		t.Run(string(opt), func(t *testing.T) {
			config := testConfig(t)
			config.WeightOptimizer = opt
			config.Workers = 2
			config.Regularizer = "l2"
			config.RegularizerStrength = 0.01
			config.EarlyStopping = true
			config.HeldOutStride = 4
			config.LabelsEveryIteration = true
			config.Model1Iterations = 2

			task := alignmentTask()
			tr, err := NewTrainer(task, config)
			if err != nil {
				t.Fatal(err)
			}
			if err := tr.Train(context.Background()); err != nil {
				t.Fatal(err)
			}
			if len(tr.History) == 0 || len(tr.History) != len(tr.DevHistory) {
				t.Fatalf("history %v, dev history %v", tr.History, tr.DevHistory)
			}
			for _, v := range append(tr.History, tr.DevHistory...) {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("non-finite history entry %v", v)
				}
			}
			if len(tr.Labels) != task.Len() {
				t.Fatalf("%d label lines for %d pairs", len(tr.Labels), task.Len())
			}
			for i, line := range tr.Labels {
				if line == "" {
					continue
				}
				for _, link := range strings.Fields(line) {
					if !strings.Contains(link, "-") {
						t.Errorf("pair %d: malformed link %q", i, link)
					}
				}
			}
			if tr.Weights == nil || tr.Emissions == nil || tr.Iterations != len(tr.History) {
				t.Errorf("results not published: iterations %d", tr.Iterations)
			}
			fileExists(t, config.OutputPrefix+".labels.iter0")
			fileExists(t, config.OutputPrefix+".labels")

			loaded, err := emission.Load(config.OutputPrefix + ".final.theta")
			if err != nil {
				t.Fatal(err)
			}
			if loaded.Len() != tr.Emissions.Len() {
				t.Errorf("reloaded %d emissions, trained %d", loaded.Len(), tr.Emissions.Len())
			}
		})
	}
}

func TestWorkerCountDoesNotChangeResult(t *testing.T) {
	run := func(workers int) []float64 {
		config := testConfig(t)
		config.WeightOptimizer = OptimizeLBFGS
		config.MaxIterations = 1
		config.EMIterations = 1
		config.LBFGS.MaxIterations = 3
		config.Workers = workers
		tr, err := NewTrainer(alignmentTask(), config)
		if err != nil {
			t.Fatal(err)
		}
		if err := tr.Train(context.Background()); err != nil {
			t.Fatal(err)
		}
		return tr.Weights.Effective()
	}
	one, three := run(1), run(3)
	for i := range one {
		if math.Abs(one[i]-three[i]) > 1e-6 {
			t.Errorf("weight %d: %v with one worker, %v with three", i, one[i], three[i])
		}
	}
}

func TestTrainInterrupted(t *testing.T) {
	config := testConfig(t)
	config.Workers = 2
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr, err := NewTrainer(alignmentTask(), config)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Train(ctx); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	for _, name := range []string{"interrupted-theta", "interrupted-lambda", "interrupted-labels"} {
		fileExists(t, config.OutputPrefix+"."+name)
	}
	if tr.Converged {
		t.Error("interrupted run reported convergence")
	}
}

func TestLongSentencesAreSkipped(t *testing.T) {
	sents := [][]int64{{1, 2, 1}, {2, 2, 1, 9, 9}, {1}, {2, 1, 2}}
	newTask := func() *Tagging {
		task, err := NewTagging(sents, nil, 2, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		return task
	}
	config := testConfig(t)
	config.MaxSequenceLength = 3
	config.DirichletAlpha = 1

	withWorker(t, newTask(), config, func(w *worker) error {
		stats, err := w.expectation()
		if err != nil {
			return err
		}
		mass := 0.0
		for ctx, row := range stats.Counts.Mle {
			if row[9] != 0 {
				t.Errorf("context %d counted decision 9 from a skipped sentence", ctx)
			}
			mass += stats.Counts.Marginals[ctx]
		}
		if math.Abs(mass-7) > 1e-9 {
			t.Errorf("accumulated mass %v, want 7", mass)
		}

		x := w.weights.Effective()
		for i := range x {
			x[i] = 0.1 * float64(i+1)
		}
		res, err := w.evaluate(x)
		if err != nil {
			return err
		}
		want := 0.0
		for _, id := range []int{0, 2, 3} {
			nll, err := w.accumulate(id, nil, nil)
			if err != nil {
				return err
			}
			want += nll
		}
		if math.Abs(res.Nll-want) > 1e-9 {
			t.Errorf("objective %v, want %v from the short sentences", res.Nll, want)
		}
		for i, g := range res.Gradient {
			if id := w.weights.ID(i); id.Template == string(LabelWord) && id.B == 9 && g != 0 {
				t.Errorf("gradient of %v = %v, want 0", id, g)
			}
		}
		return nil
	})

	tr, err := NewTrainer(newTask(), config)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Train(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.Labels[1] != "" {
		t.Errorf("long sentence labeled %q, want empty line", tr.Labels[1])
	}
	for _, id := range []int{0, 2, 3} {
		if got := len(strings.Fields(tr.Labels[id])); got != len(sents[id]) {
			t.Errorf("sentence %d has %d labels, want %d", id, got, len(sents[id]))
		}
	}
	fileExists(t, config.OutputPrefix+".labels")
}

func TestHeldOutUnseenWordsAreNotScored(t *testing.T) {
	sents := [][]int64{{1, 7, 1}, {1, 2, 1}, {2, 2, 1, 1}, {1}, {2, 1, 2}}
	newTask := func() *Tagging {
		task, err := NewTagging(sents, nil, 2, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		return task
	}
	config := testConfig(t)
	config.EarlyStopping = true
	config.HeldOutStride = 4
	config.DirichletAlpha = 1

	withWorker(t, newTask(), config, func(w *worker) error {
		if _, err := w.emissionPhase(); err != nil {
			return err
		}
		if ok, err := w.scorable(0); err != nil || ok {
			t.Errorf("scorable(0) = %v, %v; want false", ok, err)
		}
		if ok, err := w.scorable(4); err != nil || !ok {
			t.Errorf("scorable(4) = %v, %v; want true", ok, err)
		}
		dev, err := w.devLoss()
		if err != nil {
			return err
		}
		if dev <= 0 || math.IsInf(dev, 0) || math.IsNaN(dev) {
			t.Errorf("held-out NLL = %v", dev)
		}
		return nil
	})

	tr, err := NewTrainer(newTask(), config)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Train(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(tr.DevHistory) != len(tr.History) {
		t.Errorf("dev history %v, training history %v", tr.DevHistory, tr.History)
	}
	if got := len(strings.Fields(tr.Labels[0])); got != 3 {
		t.Errorf("held-out sentence has %d labels, want 3", got)
	}
}

func TestSGDShrinksByRegularizerStrength(t *testing.T) {
	config := testConfig(t)
	config.WeightOptimizer = OptimizeSGD
	config.Regularizer = "l2"
	config.RegularizerStrength = 0.5
	task := alignmentTask()

	withWorker(t, task, config, func(w *worker) error {
		if _, err := w.sgdPhase(); err != nil {
			return err
		}
		if w.sgd.L2 != 0.5 {
			t.Errorf("SGD L2 = %v, want 0.5", w.sgd.L2)
		}
		if w.sgd.Total != task.Len() {
			t.Errorf("SGD total = %d, want %d", w.sgd.Total, task.Len())
		}
		return nil
	})
}
