package sequencer

import "fmt"

// Step is one position in a track's cycle
type Step struct {
	Active  bool `json:"active" yaml:"active"`
	Current bool `json:"current" yaml:"current"` // playhead marker, mirrors Track.CurrentStep
}

// State is the complete, serializable snapshot of all tracks.
// Track order is meaningful: tracks are addressed by index.
type State[P any] struct {
	Tracks []Track[P] `json:"tracks" yaml:"tracks"`
}

// Clone returns a deep copy of the step data. Parameters are copied by
// value, or through Cloner[P] when implemented.
func (s State[P]) Clone() State[P] {
	out := State[P]{Tracks: make([]Track[P], len(s.Tracks))}
	for i, t := range s.Tracks {
		out.Tracks[i] = t.Clone()
	}
	return out
}

// Validate checks every track's invariants
func (s State[P]) Validate() error {
	for i, t := range s.Tracks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("track %d: %w", i, err)
		}
	}
	return nil
}
