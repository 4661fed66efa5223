// Package optimize implements the numerical optimizers used to fit feature
// weights: L-BFGS with OWL-QN for L1, and SGD with lazy L2 shrinkage.
package optimize

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrNonFinite is returned when an objective or gradient is NaN or infinite.
var ErrNonFinite = errors.New("optimize: non-finite objective or gradient")

// Objective evaluates the function and its gradient at x.
type Objective func(x []float64) (float64, []float64, error)

// LBFGSConfig holds quasi-Newton hyperparameters.
type LBFGSConfig struct {
	Memory        int
	MaxIterations int
	Epsilon       float64 // stop when |g| / max(1,|x|) < Epsilon
	Past          int     // window for the relative-improvement test, 0 disables
	Delta         float64 // stop when the improvement over Past iterations < Delta
	MaxLineSearch int
	L1            float64 // OWL-QN strength, 0 for plain L-BFGS
}

// DefaultLBFGSConfig returns the defaults used between emission updates.
func DefaultLBFGSConfig() LBFGSConfig {
	return LBFGSConfig{
		Memory:        6,
		MaxIterations: 6,
		Epsilon:       1e-5,
		Past:          3,
		Delta:         1e-4,
		MaxLineSearch: 4,
	}
}

// Result reports the minimizer state on exit.
type Result struct {
	X           []float64
	F           float64
	Iterations  int
	Evaluations int
}

// LBFGS minimizes obj starting at x0. The L1 penalty, when configured, is
// added to obj and handled with the orthant-wise pseudo-gradient.
func LBFGS(x0 []float64, obj Objective, config LBFGSConfig) (Result, error) {
	n := len(x0)
	x := append([]float64(nil), x0...)
	res := Result{X: x}

	eval := func(at []float64) (float64, []float64, error) {
		res.Evaluations++
		f, g, err := obj(at)
		if err != nil {
			return 0, nil, err
		}
		if len(g) != n {
			return 0, nil, fmt.Errorf("optimize: gradient has %d entries, want %d", len(g), n)
		}
		if config.L1 > 0 {
			f += config.L1 * floats.Norm(at, 1)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || !allFinite(g) {
			return 0, nil, fmt.Errorf("%w: f=%v", ErrNonFinite, f)
		}
		return f, g, nil
	}

	f, g, err := eval(x)
	if err != nil {
		return res, err
	}
	res.F = f
	pg := pseudoGradient(x, g, config.L1)
	if converged(x, pg, config.Epsilon) {
		return res, nil
	}

	mem := newLBFGS(n, max(config.Memory, 1))
	history := []float64{f}
	xNew := make([]float64, n)

	for iter := range config.MaxIterations {
		res.Iterations = iter + 1

		dir := mem.computeDirection(pg)
		if config.L1 > 0 {
			// Constrain direction to same orthant as pseudo-gradient
			for i := range dir {
				if dir[i]*pg[i] > 0 {
					dir[i] = 0
				}
			}
		}

		dirDeriv := floats.Dot(dir, pg)
		if dirDeriv >= 0 {
			slog.Debug("L-BFGS direction is not a descent direction, resetting memory", "iteration", iter+1)
			mem = newLBFGS(n, max(config.Memory, 1))
			dir = mem.computeDirection(pg)
			dirDeriv = floats.Dot(dir, pg)
		}

		step := 1.0
		if iter == 0 {
			if norm := floats.Norm(dir, 2); norm > 0 {
				step = 1 / norm
			}
		}

		var fNew float64
		var gNew []float64
		accepted := false
		for trial := 0; trial < max(config.MaxLineSearch, 1); trial++ {
			for i := range n {
				xNew[i] = x[i] + step*dir[i]
			}
			// Project onto orthant
			if config.L1 > 0 {
				for i := range n {
					if xNew[i]*x[i] < 0 || (x[i] == 0 && xNew[i]*pg[i] > 0) {
						xNew[i] = 0
					}
				}
			}
			fNew, gNew, err = eval(xNew)
			if err != nil {
				return res, err
			}
			if fNew <= f+1e-4*step*dirDeriv {
				accepted = true
				break
			}
			step *= 0.5
		}
		if !accepted {
			slog.Warn("L-BFGS line search failed, stopping", "iteration", iter+1, "objective", f)
			break
		}

		s := make([]float64, n)
		floats.SubTo(s, xNew, x)
		pgNew := pseudoGradient(xNew, gNew, config.L1)
		y := make([]float64, n)
		floats.SubTo(y, gNew, g)
		mem.update(s, y)

		copy(x, xNew)
		f, g, pg = fNew, gNew, pgNew
		res.F = f
		history = append(history, f)

		slog.Debug("L-BFGS iteration", "iteration", iter+1, "objective", f, "step", step)

		if converged(x, pg, config.Epsilon) {
			slog.Debug("L-BFGS converged", "iteration", iter+1)
			break
		}
		if config.Past > 0 && len(history) > config.Past {
			prev := history[len(history)-1-config.Past]
			if math.Abs(prev-f)/math.Max(1, math.Abs(f)) < config.Delta {
				slog.Debug("L-BFGS stopped on small improvement", "iteration", iter+1)
				break
			}
		}
	}
	return res, nil
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func converged(x, g []float64, eps float64) bool {
	return floats.Norm(g, 2)/math.Max(1, floats.Norm(x, 2)) < eps
}

// pseudoGradient returns the OWL-QN pseudo-gradient, which is g itself when c1 is 0.
func pseudoGradient(w, g []float64, c1 float64) []float64 {
	pg := make([]float64, len(g))
	if c1 == 0 {
		copy(pg, g)
		return pg
	}
	for i := range g {
		switch {
		case w[i] > 0:
			pg[i] = g[i] + c1
		case w[i] < 0:
			pg[i] = g[i] - c1
		default:
			switch {
			case g[i]+c1 < 0:
				pg[i] = g[i] + c1
			case g[i]-c1 > 0:
				pg[i] = g[i] - c1
			default:
				pg[i] = 0
			}
		}
	}
	return pg
}

// lbfgs implements the L-BFGS two-loop recursion.
type lbfgs struct {
	n    int // number of variables
	m    int // memory size
	s    [][]float64
	y    [][]float64
	rho  []float64
	k    int
	size int
}

func newLBFGS(n, m int) *lbfgs {
	return &lbfgs{
		n:   n,
		m:   m,
		s:   make([][]float64, m),
		y:   make([][]float64, m),
		rho: make([]float64, m),
	}
}

func (l *lbfgs) update(s, y []float64) {
	sy := floats.Dot(s, y)
	if sy <= 0 {
		return
	}
	idx := l.k % l.m
	l.s[idx] = s
	l.y[idx] = y
	l.rho[idx] = 1.0 / sy
	l.k++
	if l.size < l.m {
		l.size++
	}
}

func (l *lbfgs) slot(i int) int {
	idx := i % l.m
	if idx < 0 {
		idx += l.m
	}
	return idx
}

func (l *lbfgs) computeDirection(pg []float64) []float64 {
	q := make([]float64, l.n)
	copy(q, pg)

	if l.size == 0 {
		floats.Scale(-1, q)
		return q
	}

	alpha := make([]float64, l.size)

	// First loop, newest pair first
	for i := l.size - 1; i >= 0; i-- {
		idx := l.slot(l.k - l.size + i)
		alpha[i] = l.rho[idx] * floats.Dot(l.s[idx], q)
		floats.AddScaled(q, -alpha[i], l.y[idx])
	}

	// Scale by H_0 = (s_k^T y_k) / (y_k^T y_k)
	latest := l.slot(l.k - 1)
	if yy := floats.Dot(l.y[latest], l.y[latest]); yy > 0 {
		floats.Scale(floats.Dot(l.s[latest], l.y[latest])/yy, q)
	}

	// Second loop
	for i := range l.size {
		idx := l.slot(l.k - l.size + i)
		beta := l.rho[idx] * floats.Dot(l.y[idx], q)
		floats.AddScaled(q, alpha[i]-beta, l.s[idx])
	}

	floats.Scale(-1, q)
	return q
}
