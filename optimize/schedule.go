package optimize

import "fmt"

// Decay selects how the SGD learning rate evolves.
type Decay int

const (
	DecayFixed Decay = iota
	DecayEpoch
	DecayBottou
	DecayGeometric
)

var decayNames = map[string]Decay{
	"fixed":       DecayFixed,
	"epoch-fixed": DecayEpoch,
	"bottou":      DecayBottou,
	"geometric":   DecayGeometric,
}

// ParseDecay parses a decay strategy name.
func ParseDecay(s string) (Decay, error) {
	if d, ok := decayNames[s]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("optimize: unknown decay strategy %q", s)
}

func (d Decay) String() string {
	for name, v := range decayNames {
		if v == d {
			return name
		}
	}
	return fmt.Sprintf("Decay(%d)", int(d))
}

// Schedule produces the learning rate of successive SGD updates.
type Schedule struct {
	Decay   Decay
	Initial float64
	Param   float64

	rate float64
	t    int
}

// NewSchedule creates a schedule starting at initial.
func NewSchedule(d Decay, initial, param float64) *Schedule {
	return &Schedule{Decay: d, Initial: initial, Param: param, rate: initial}
}

// BeginEpoch resets the rate for epoch (0-based) where the strategy asks for it.
func (s *Schedule) BeginEpoch(epoch int) {
	if s.Decay == DecayEpoch {
		s.rate = s.Initial / float64(epoch+1)
	}
}

// Next returns the rate of the next update.
func (s *Schedule) Next() float64 {
	switch s.Decay {
	case DecayBottou:
		s.rate = s.Initial / (1 + s.Initial*float64(s.t)*s.Param)
	case DecayGeometric:
		s.rate /= 1 + s.Param
	}
	s.t++
	return s.rate
}

// Rate returns the current rate without advancing.
func (s *Schedule) Rate() float64 {
	return s.rate
}
