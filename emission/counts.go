package emission

import "github.com/happyhackingspace/latentcrf/crf"

// Counts accumulates expected (context, decision) counts and their
// per-context marginals within one accumulation pass.
type Counts struct {
	Mle       map[int64]map[int64]float64
	Marginals map[int64]float64
}

// NewCounts creates an empty accumulator.
func NewCounts() *Counts {
	return &Counts{
		Mle:       make(map[int64]map[int64]float64),
		Marginals: make(map[int64]float64),
	}
}

// Clear zeroes the accumulator.
func (c *Counts) Clear() {
	c.Mle = make(map[int64]map[int64]float64)
	c.Marginals = make(map[int64]float64)
}

// Add accumulates v expected occurrences of decision under context.
func (c *Counts) Add(context, decision int64, v float64) {
	if c.Mle == nil {
		c.Clear()
	}
	row, ok := c.Mle[context]
	if !ok {
		row = make(map[int64]float64)
		c.Mle[context] = row
	}
	row[decision] += v
	c.Marginals[context] += v
}

// Merge adds every count of o into c.
func (c *Counts) Merge(o *Counts) {
	for ctx, row := range o.Mle {
		for d, v := range row {
			c.Add(ctx, d, v)
		}
	}
}

// Blend sets c to (1-eta)*c + eta*o, the stepwise EM interpolation.
func (c *Counts) Blend(o *Counts, eta float64) {
	for ctx, row := range c.Mle {
		for d := range row {
			row[d] *= 1 - eta
		}
		c.Marginals[ctx] *= 1 - eta
	}
	for ctx, row := range o.Mle {
		for d, v := range row {
			c.Add(ctx, d, eta*v)
		}
	}
}

// AddPosteriors folds a B-matrix into the counts, mapping each label to its
// emission context.
func (c *Counts) AddPosteriors(b map[crf.LabelDecision]float64, contextOf func(label int) (int64, error), scale float64) error {
	for ld, mass := range b {
		ctx, err := contextOf(ld.Label)
		if err != nil {
			return err
		}
		c.Add(ctx, ld.Decision, scale*mass)
	}
	return nil
}

// Empty reports whether nothing has been accumulated.
func (c *Counts) Empty() bool {
	return len(c.Mle) == 0
}
