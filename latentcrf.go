// Package latentcrf trains latent-variable conditional random fields that
// reconstruct their own input, for unsupervised and semi-supervised tagging
// and word alignment.
//
//	res, _ := latentcrf.TrainAlignment(ctx, latentcrf.AlignmentConfig{
//	    Corpus: "train.ids",
//	    Config: latent.DefaultConfig(),
//	})
//	for _, line := range res.Labels {
//	    fmt.Println(line) // "0-0 1-2 2-1"
//	}
package latentcrf

import (
	"context"
	"fmt"

	"github.com/happyhackingspace/latentcrf/crf"
	"github.com/happyhackingspace/latentcrf/emission"
	"github.com/happyhackingspace/latentcrf/latent"
)

// Result holds the parameters and labels of a finished run.
type Result struct {
	Weights    *crf.Weights
	Emissions  *emission.Table
	Labels     []string
	History    []float64
	DevHistory []float64
	Iterations int
	Converged  bool
}

// Checkpoint names saved parameters to start from. Empty paths are ignored.
type Checkpoint struct {
	Weights   string
	Emissions string
}

func (cp Checkpoint) apply(t *latent.Trainer) error {
	if cp.Weights != "" {
		w, err := crf.LoadWeights(cp.Weights)
		if err != nil {
			return fmt.Errorf("latentcrf: %w", err)
		}
		t.InitialWeights = w
	}
	if cp.Emissions != "" {
		e, err := emission.Load(cp.Emissions)
		if err != nil {
			return fmt.Errorf("latentcrf: %w", err)
		}
		t.InitialEmissions = e
	}
	return nil
}

func run(ctx context.Context, task latent.Task, config latent.Config, cp Checkpoint) (*Result, error) {
	t, err := latent.NewTrainer(task, config)
	if err != nil {
		return nil, fmt.Errorf("latentcrf: %w", err)
	}
	if err := cp.apply(t); err != nil {
		return nil, err
	}
	err = t.Train(ctx)
	res := &Result{
		Weights:    t.Weights,
		Emissions:  t.Emissions,
		Labels:     t.Labels,
		History:    t.History,
		DevHistory: t.DevHistory,
		Iterations: t.Iterations,
		Converged:  t.Converged,
	}
	if err != nil {
		return res, fmt.Errorf("latentcrf: %w", err)
	}
	return res, nil
}

// Label decodes a corpus with fixed parameters: no emission or weight
// updates happen and the labels are written with the configured prefix.
func Label(ctx context.Context, task latent.Task, config latent.Config, cp Checkpoint) (*Result, error) {
	config.WeightOptimizer = latent.OptimizeNone
	config.EMIterations = 0
	config.Model1Iterations = 0
	config.MaxIterations = 1
	config.EarlyStopping = false
	return run(ctx, task, config, cp)
}
