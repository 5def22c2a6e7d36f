package sequencer

// Strategy computes a track's next cursor. It receives a copy of the track
// and returns the next index together with the parameter bag the track
// should carry from now on, so strategies that keep state (a direction
// flag, say) thread it through the return value instead of mutating shared
// storage.
type Strategy[P any] func(t Track[P]) (next int, params P)

// Direction is the travel direction kept by direction-aware parameter bags.
// Values match the persisted "dir" field: 0 backward, 1 forward.
type Direction int

const (
	DirectionBackward Direction = 0
	DirectionForward  Direction = 1
)

func (d Direction) String() string {
	if d == DirectionForward {
		return "forward"
	}
	return "backward"
}

// Directed is implemented by parameter bags that carry a Direction
type Directed[P any] interface {
	Direction() Direction
	WithDirection(d Direction) P
}

// Forward advances the cursor by one, wrapping at the end
func Forward[P any](t Track[P]) (int, P) {
	return (t.CurrentStep + 1) % t.NumberOfSteps, t.Parameters
}

// Backward moves the cursor back by one, wrapping at the start
func Backward[P any](t Track[P]) (int, P) {
	return (t.CurrentStep - 1 + t.NumberOfSteps) % t.NumberOfSteps, t.Parameters
}

// PingPong bounces between the first and last step. The direction flips to
// forward at index 0 and to backward at the last index; a single-step track
// is both, and stays forward.
func PingPong[P Directed[P]](t Track[P]) (int, P) {
	params := t.Parameters
	switch t.CurrentStep {
	case 0:
		params = params.WithDirection(DirectionForward)
	case t.NumberOfSteps - 1:
		params = params.WithDirection(DirectionBackward)
	}
	t.Parameters = params

	if params.Direction() == DirectionForward {
		return Forward(t)
	}
	return Backward(t)
}
