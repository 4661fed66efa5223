// Package cluster runs a fixed pool of workers that share no memory and
// exchange serialized messages through collective operations.
package cluster

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ErrDesync is returned when workers disagree on the order of collectives.
var ErrDesync = errors.New("cluster: collective sequence mismatch")

const inboxSize = 8

type envelope struct {
	seq     uint64
	payload []byte
}

// Pool is a set of Size workers identified by rank 0..Size-1.
type Pool struct {
	size int
}

// NewPool creates a pool of size workers.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Run starts every worker and waits for all of them. ctx is handed to the
// workers untouched; collectives only abort when a worker fails, so a
// cancelled ctx is a signal to poll, not a teardown.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context, c *Comm) error) error {
	inbox := make([][]chan envelope, p.size)
	for to := range inbox {
		inbox[to] = make([]chan envelope, p.size)
		for from := range inbox[to] {
			inbox[to][from] = make(chan envelope, inboxSize)
		}
	}

	g, abort := errgroup.WithContext(context.WithoutCancel(ctx))
	for rank := range p.size {
		c := &Comm{
			rank:  rank,
			size:  p.size,
			inbox: inbox,
			abort: abort,
			log:   slog.With("rank", rank),
		}
		g.Go(func() error {
			if err := fn(ctx, c); err != nil {
				return fmt.Errorf("worker %d: %w", rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Comm is one worker's endpoint.
type Comm struct {
	rank  int
	size  int
	inbox [][]chan envelope
	abort context.Context
	seq   uint64
	log   *slog.Logger
}

// Rank returns the worker's rank.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of workers.
func (c *Comm) Size() int { return c.size }

// IsRoot reports whether this worker is rank 0.
func (c *Comm) IsRoot() bool { return c.rank == 0 }

// Logger returns a logger tagged with the worker's rank.
func (c *Comm) Logger() *slog.Logger { return c.log }

// Owns reports whether example id belongs to this worker.
func (c *Comm) Owns(id int) bool {
	return Owner(id, c.size) == c.rank
}

// Partition returns the ids in [0, n) owned by this worker, in order.
func (c *Comm) Partition(n int) []int {
	return Partition(n, c.size, c.rank)
}

// Owner returns the rank that owns id.
func Owner(id, size int) int {
	return id % size
}

// Partition returns the ids in [0, n) with id mod size == rank.
func Partition(n, size, rank int) []int {
	var ids []int
	for id := rank; id < n; id += size {
		ids = append(ids, id)
	}
	return ids
}

func (c *Comm) next() uint64 {
	c.seq++
	return c.seq
}

func (c *Comm) send(to int, seq uint64, payload []byte) error {
	select {
	case c.inbox[to][c.rank] <- envelope{seq: seq, payload: payload}:
		return nil
	case <-c.abort.Done():
		return fmt.Errorf("cluster: send to %d: %w", to, context.Cause(c.abort))
	}
}

func (c *Comm) recv(from int, seq uint64) ([]byte, error) {
	select {
	case env := <-c.inbox[c.rank][from]:
		if env.seq != seq {
			return nil, fmt.Errorf("%w: rank %d expected %d from %d, got %d", ErrDesync, c.rank, seq, from, env.seq)
		}
		return env.payload, nil
	case <-c.abort.Done():
		return nil, fmt.Errorf("cluster: receive from %d: %w", from, context.Cause(c.abort))
	}
}

func encode[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("cluster: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decode[T any](b []byte) (T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return v, fmt.Errorf("cluster: decode: %w", err)
	}
	return v, nil
}
