// Package crf builds weighted lattices for latent-variable CRFs and runs
// log-semiring inference over them.
//
// Weights are negative logs: 0 is certainty and +Inf is an impossible path.
package crf

import "errors"

// Sentinel labels. They never appear in a label domain.
const (
	StartLabel = -100
	EndLabel   = -101
	NoLabel    = -102
)

var (
	// ErrBadWeight is returned when an arc weight is NaN or infinite.
	ErrBadWeight = errors.New("crf: non-finite arc weight")
	// ErrBadPotential is returned when forward and backward potentials disagree
	// or the total score is not finite.
	ErrBadPotential = errors.New("crf: inconsistent potentials")
)

// Alphabet maps between string labels and integer IDs.
type Alphabet struct {
	ToID  map[string]int
	ToStr []string
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{
		ToID: make(map[string]int),
	}
}

// Add adds a string to the alphabet if not already present, returns its ID.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

// Get returns the ID for a string, or -1 if not found.
func (a *Alphabet) Get(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	return -1
}

// Size returns the number of entries.
func (a *Alphabet) Size() int {
	return len(a.ToStr)
}
