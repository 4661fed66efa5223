// Package emission stores conditional multinomial emission parameters as
// negative-log probabilities keyed by context and decision, and re-estimates
// them from expected counts.
package emission

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mathext"
)

var (
	// ErrUnknownContext is returned when a lookup hits a context or decision
	// that was never seeded.
	ErrUnknownContext = errors.New("emission: unknown context or decision")
	// ErrZeroDenominator is returned when an update would divide by zero.
	ErrZeroDenominator = errors.New("emission: zero denominator")
	// ErrBadProbability is returned when an update produces NaN.
	ErrBadProbability = errors.New("emission: non-finite probability")
)

// Kind selects the re-estimation formula.
type Kind int

const (
	MLE Kind = iota
	DirichletMAP
	Variational
)

// Estimator configures UpdateFromAccumulator.
type Estimator struct {
	Kind  Kind
	Alpha float64 // symmetric Dirichlet strength
}

// NewEstimator picks the estimator implied by a Dirichlet strength and the
// variational toggle.
func NewEstimator(alpha float64, variational bool) Estimator {
	switch {
	case variational:
		return Estimator{Kind: Variational, Alpha: alpha}
	case alpha != 1:
		return Estimator{Kind: DirichletMAP, Alpha: alpha}
	default:
		return Estimator{Kind: MLE, Alpha: 1}
	}
}

func (e Estimator) String() string {
	switch e.Kind {
	case DirichletMAP:
		return fmt.Sprintf("dirichlet-map(%g)", e.Alpha)
	case Variational:
		return fmt.Sprintf("variational(%g)", e.Alpha)
	default:
		return "mle"
	}
}

// Table maps context -> decision -> negative-log probability.
type Table struct {
	rows map[int64]map[int64]float64
}

// New creates an empty table.
func New() *Table {
	return &Table{rows: make(map[int64]map[int64]float64)}
}

// Set stores the negative-log probability of decision given context.
func (t *Table) Set(context, decision int64, nlogp float64) {
	row, ok := t.rows[context]
	if !ok {
		row = make(map[int64]float64)
		t.rows[context] = row
	}
	row[decision] = nlogp
}

// Seed registers decision under context with a unit pseudo-count, leaving
// existing entries alone. Call Normalize once seeding is complete.
func (t *Table) Seed(context, decision int64) {
	if row, ok := t.rows[context]; ok {
		if _, ok := row[decision]; ok {
			return
		}
	}
	t.Set(context, decision, 0)
}

// NLogProb returns -log p(decision | context).
func (t *Table) NLogProb(context, decision int64) (float64, error) {
	row, ok := t.rows[context]
	if !ok {
		return 0, fmt.Errorf("%w: context %d", ErrUnknownContext, context)
	}
	v, ok := row[decision]
	if !ok {
		return 0, fmt.Errorf("%w: context %d decision %d", ErrUnknownContext, context, decision)
	}
	return v, nil
}

// Contexts returns the contexts in ascending order.
func (t *Table) Contexts() []int64 {
	return sortedKeys(t.rows)
}

// Row returns the decisions of context in ascending order with their
// negative-log probabilities.
func (t *Table) Row(context int64) ([]int64, []float64) {
	row := t.rows[context]
	decisions := sortedKeys(row)
	values := make([]float64, len(decisions))
	for i, d := range decisions {
		values[i] = row[d]
	}
	return decisions, values
}

// Len returns the number of (context, decision) entries.
func (t *Table) Len() int {
	n := 0
	for _, row := range t.rows {
		n += len(row)
	}
	return n
}

// Normalize rescales every row to sum to one.
func (t *Table) Normalize() error {
	for ctx, row := range t.rows {
		total := 0.0
		for _, v := range row {
			total += math.Exp(-v)
		}
		if total == 0 {
			return fmt.Errorf("%w: context %d", ErrZeroDenominator, ctx)
		}
		logTotal := math.Log(total)
		for d, v := range row {
			row[d] = v + logTotal
		}
	}
	return nil
}

// UpdateFromAccumulator re-estimates every context present in c. Contexts
// absent from c keep their current values.
func (t *Table) UpdateFromAccumulator(c *Counts, est Estimator) error {
	for ctx, counts := range c.Mle {
		row, ok := t.rows[ctx]
		if !ok {
			row = make(map[int64]float64)
			t.rows[ctx] = row
		}
		for d := range counts {
			if _, ok := row[d]; !ok {
				row[d] = 0
			}
		}
		rowSize := float64(len(counts))
		marginal := c.Marginals[ctx]
		for d := range row {
			count := counts[d]
			var num, den float64
			switch est.Kind {
			case Variational:
				num = math.Exp(mathext.Digamma(count + rowSize*est.Alpha))
				den = math.Exp(mathext.Digamma(marginal + est.Alpha))
			case DirichletMAP:
				num = count + rowSize*(est.Alpha-1)
				den = marginal + est.Alpha - 1
			default:
				num = count
				den = marginal
			}
			if den == 0 {
				return fmt.Errorf("%w: context %d", ErrZeroDenominator, ctx)
			}
			p := math.Max(num/den, 0)
			if math.IsNaN(p) {
				return fmt.Errorf("%w: context %d decision %d", ErrBadProbability, ctx, d)
			}
			row[d] = -math.Log(p)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := New()
	for ctx, row := range t.rows {
		for d, v := range row {
			c.Set(ctx, d, v)
		}
	}
	return c
}

// String renders the table for debugging.
func (t *Table) String() string {
	var sb strings.Builder
	for _, ctx := range t.Contexts() {
		decisions, values := t.Row(ctx)
		fmt.Fprintf(&sb, "%d:", ctx)
		for i, d := range decisions {
			fmt.Fprintf(&sb, " %d=%.4f", d, math.Exp(-values[i]))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Rows is the plain form of a table, used to ship it between workers.
type Rows map[int64]map[int64]float64

// Rows returns a deep copy of the table contents.
func (t *Table) Rows() Rows {
	return Rows(t.Clone().rows)
}

// FromRows builds a table from its plain form.
func FromRows(r Rows) *Table {
	t := New()
	for ctx, row := range r {
		for d, v := range row {
			t.Set(ctx, d, v)
		}
	}
	return t
}
