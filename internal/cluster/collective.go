package cluster

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Number is any value the numeric combiners can add.
type Number interface {
	constraints.Integer | constraints.Float
}

// Broadcast replaces *v on every worker with root's value. Receivers get a
// decoded copy that shares no memory with root.
func Broadcast[T any](c *Comm, root int, v *T) error {
	seq := c.next()
	if c.rank == root {
		payload, err := encode(*v)
		if err != nil {
			return err
		}
		for to := range c.size {
			if to == root {
				continue
			}
			if err := c.send(to, seq, payload); err != nil {
				return err
			}
		}
		return nil
	}
	payload, err := c.recv(root, seq)
	if err != nil {
		return err
	}
	got, err := decode[T](payload)
	if err != nil {
		return err
	}
	*v = got
	return nil
}

// Gather collects every worker's value on root, indexed by rank. Other
// workers receive nil.
func Gather[T any](c *Comm, root int, v T) ([]T, error) {
	seq := c.next()
	if c.rank != root {
		payload, err := encode(v)
		if err != nil {
			return nil, err
		}
		return nil, c.send(root, seq, payload)
	}
	out := make([]T, c.size)
	for from := range c.size {
		var payload []byte
		var err error
		if from == root {
			// copied through the codec like every other value
			payload, err = encode(v)
		} else {
			payload, err = c.recv(from, seq)
		}
		if err != nil {
			return nil, err
		}
		if out[from], err = decode[T](payload); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Reduce folds every worker's value with combine in rank order and returns
// the result on root. Other workers receive the zero value.
func Reduce[T any](c *Comm, root int, v T, combine func(a, b T) T) (T, error) {
	var zero T
	vals, err := Gather(c, root, v)
	if err != nil || c.rank != root {
		return zero, err
	}
	acc := vals[0]
	for _, x := range vals[1:] {
		acc = combine(acc, x)
	}
	return acc, nil
}

// AllReduce is Reduce to rank 0 followed by Broadcast of the result.
func AllReduce[T any](c *Comm, v T, combine func(a, b T) T) (T, error) {
	acc, err := Reduce(c, 0, v, combine)
	if err != nil {
		return acc, err
	}
	if err := Broadcast(c, 0, &acc); err != nil {
		return acc, err
	}
	return acc, nil
}

// Barrier returns once every worker has reached it.
func Barrier(c *Comm) error {
	_, err := AllReduce(c, true, And)
	return err
}

// Sum adds two numbers.
func Sum[T Number](a, b T) T {
	return a + b
}

// SumSlices adds b into a element-wise and returns a.
func SumSlices[T Number](a, b []T) []T {
	if len(a) != len(b) {
		panic(fmt.Sprintf("cluster: summing slices of length %d and %d", len(a), len(b)))
	}
	for i := range a {
		a[i] += b[i]
	}
	return a
}

// Max returns the larger value.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// And is logical conjunction.
func And(a, b bool) bool {
	return a && b
}

// Or is logical disjunction.
func Or(a, b bool) bool {
	return a || b
}
