package midi

import (
	"fmt"

	"go-stepseq/sequencer"
)

// Params is the per-track parameter bag of a MIDI step sequencer
type Params struct {
	Channel uint8               `json:"channel" yaml:"channel"`       // 0-15
	Note    uint8               `json:"noteNumber" yaml:"noteNumber"` // 0-127
	Dir     sequencer.Direction `json:"dir" yaml:"dir"`
}

// DefaultParams is what a freshly added track plays: channel 0, middle C
func DefaultParams() Params {
	return Params{Channel: 0, Note: 60, Dir: sequencer.DirectionBackward}
}

func (p Params) Direction() sequencer.Direction { return p.Dir }

func (p Params) WithDirection(d sequencer.Direction) Params {
	p.Dir = d
	return p
}

// Validate checks channel and note ranges
func (p Params) Validate() error {
	if p.Channel > 15 {
		return fmt.Errorf("channel %d out of range 0-15", p.Channel)
	}
	if p.Note > 127 {
		return fmt.Errorf("note %d out of range 0-127", p.Note)
	}
	return nil
}

// Strategy names
const (
	StrategyForward      = "forward"
	StrategyBackward     = "backward"
	StrategyBackAndForth = "backAndForth"
)

// Strategies returns the selectable next-step strategies by name
func Strategies() map[string]sequencer.Strategy[Params] {
	return map[string]sequencer.Strategy[Params]{
		StrategyForward:      sequencer.Forward[Params],
		StrategyBackward:     sequencer.Backward[Params],
		StrategyBackAndForth: sequencer.PingPong[Params],
	}
}

// StrategyNames returns the strategy names in display order
func StrategyNames() []string {
	return []string{StrategyForward, StrategyBackward, StrategyBackAndForth}
}

// LookupStrategy returns the named strategy
func LookupStrategy(name string) (sequencer.Strategy[Params], error) {
	s, ok := Strategies()[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (known: %v)", name, StrategyNames())
	}
	return s, nil
}
