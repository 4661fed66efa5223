package latent

import (
	"fmt"

	"github.com/happyhackingspace/latentcrf/internal/cluster"
	"github.com/happyhackingspace/latentcrf/optimize"
)

// evalRequest is broadcast by root before every objective evaluation.
type evalRequest struct {
	Done    bool
	Weights []float64
}

// evalResult is reduced to root after every objective evaluation.
type evalResult struct {
	Nll      float64
	Gradient []float64
}

func mergeResults(a, b evalResult) evalResult {
	a.Nll += b.Nll
	if a.Gradient == nil {
		a.Gradient = b.Gradient
	} else if b.Gradient != nil {
		a.Gradient = cluster.SumSlices(a.Gradient, b.Gradient)
	}
	return a
}

// evaluate computes the unregularized objective and dense gradient of the
// owned training sentences at x.
func (w *worker) evaluate(x []float64) (evalResult, error) {
	if err := w.weights.SetEffective(x); err != nil {
		return evalResult{}, err
	}
	res := evalResult{Gradient: make([]float64, len(x))}
	grad := make(map[int]float64)
	for _, id := range w.trainingIDs() {
		if w.skip(id) {
			continue
		}
		nll, err := w.accumulate(id, grad, nil)
		if err != nil {
			return res, fmt.Errorf("sentence %d: %w", id, err)
		}
		res.Nll += nll
	}
	for i, v := range grad {
		res.Gradient[i] = v
	}
	return res, nil
}

// lbfgsPhase fits the weights with L-BFGS, or OWL-QN under L1. Root drives
// the optimizer; every evaluation is a broadcast of the point followed by a
// reduction of the partial objectives. Root adds the regularizer.
func (w *worker) lbfgsPhase() (float64, error) {
	if !w.comm.IsRoot() {
		for {
			var req evalRequest
			if err := cluster.Broadcast(w.comm, 0, &req); err != nil {
				return 0, err
			}
			if req.Done {
				break
			}
			local, err := w.evaluate(req.Weights)
			if err != nil {
				return 0, err
			}
			if _, err := cluster.Reduce(w.comm, 0, local, mergeResults); err != nil {
				return 0, err
			}
		}
		return w.receiveWeights()
	}

	obj := func(x []float64) (float64, []float64, error) {
		req := evalRequest{Weights: x}
		if err := cluster.Broadcast(w.comm, 0, &req); err != nil {
			return 0, nil, err
		}
		local, err := w.evaluate(x)
		if err != nil {
			return 0, nil, err
		}
		total, err := cluster.Reduce(w.comm, 0, local, mergeResults)
		if err != nil {
			return 0, nil, err
		}
		g := total.Gradient
		if len(g) != len(x) {
			g = make([]float64, len(x))
		}
		f := total.Nll + w.reg.Apply(x, g)
		return f, g, nil
	}

	config := w.cfg.LBFGS
	config.L1 = w.reg.L1Strength()
	res, err := optimize.LBFGS(w.weights.Effective(), obj, config)
	if err != nil {
		return 0, err
	}
	w.log.Info("L-BFGS finished", "objective", res.F, "iterations", res.Iterations,
		"evaluations", res.Evaluations)

	done := evalRequest{Done: true}
	if err := cluster.Broadcast(w.comm, 0, &done); err != nil {
		return 0, err
	}
	values := res.X
	if err := cluster.Broadcast(w.comm, 0, &values); err != nil {
		return 0, err
	}
	if err := w.weights.SetEffective(values); err != nil {
		return 0, err
	}
	return w.shareObjective(res.F)
}

// receiveWeights installs the weights root broadcasts at the end of a
// weight phase and returns root's objective.
func (w *worker) receiveWeights() (float64, error) {
	var values []float64
	if err := cluster.Broadcast(w.comm, 0, &values); err != nil {
		return 0, err
	}
	if err := w.weights.SetEffective(values); err != nil {
		return 0, err
	}
	return w.shareObjective(0)
}

func (w *worker) shareObjective(f float64) (float64, error) {
	err := cluster.Broadcast(w.comm, 0, &f)
	return f, err
}
