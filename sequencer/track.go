package sequencer

import "fmt"

// Track is one independently clocked lane: a parameter bag the engine never
// inspects, an ordered list of steps and a cursor into it.
//
// P must be a value type unless it implements Cloner[P]; otherwise maps,
// slices or pointers inside it are shared between the engine and its
// snapshots.
type Track[P any] struct {
	Parameters    P      `json:"parameters" yaml:"parameters"`
	Steps         []Step `json:"steps" yaml:"steps"`
	NumberOfSteps int    `json:"numberOfSteps" yaml:"numberOfSteps"`
	CurrentStep   int    `json:"currentStep" yaml:"currentStep"`
}

// NewTrack creates a track with step 0 current and the given steps active.
// Out-of-range active indices are ignored.
func NewTrack[P any](params P, numberOfSteps int, active ...int) (Track[P], error) {
	if numberOfSteps < 1 {
		return Track[P]{}, fmt.Errorf("%w: numberOfSteps %d < 1", ErrInvalidConfiguration, numberOfSteps)
	}
	t := Track[P]{
		Parameters:    cloneParams(params),
		Steps:         make([]Step, numberOfSteps),
		NumberOfSteps: numberOfSteps,
	}
	for _, i := range active {
		if i >= 0 && i < numberOfSteps {
			t.Steps[i].Active = true
		}
	}
	t.Steps[0].Current = true
	return t, nil
}

// Cloner is implemented by parameter bags that hold references
type Cloner[P any] interface {
	Clone() P
}

// Clone returns a copy that shares no step storage with t. Parameters are
// deep-copied when P implements Cloner[P].
func (t Track[P]) Clone() Track[P] {
	out := t
	out.Steps = make([]Step, len(t.Steps))
	copy(out.Steps, t.Steps)
	out.Parameters = cloneParams(t.Parameters)
	return out
}

func cloneParams[P any](p P) P {
	if c, ok := any(p).(Cloner[P]); ok {
		return c.Clone()
	}
	return p
}

// Validate checks the track invariants: at least one step, a consistent
// step count, an in-range cursor and exactly one current step, at the cursor.
func (t Track[P]) Validate() error {
	if t.NumberOfSteps < 1 {
		return fmt.Errorf("%w: numberOfSteps %d < 1", ErrInvalidState, t.NumberOfSteps)
	}
	if len(t.Steps) != t.NumberOfSteps {
		return fmt.Errorf("%w: %d steps but numberOfSteps is %d", ErrInvalidState, len(t.Steps), t.NumberOfSteps)
	}
	if t.CurrentStep < 0 || t.CurrentStep >= t.NumberOfSteps {
		return fmt.Errorf("%w: currentStep %d outside [0,%d)", ErrInvalidState, t.CurrentStep, t.NumberOfSteps)
	}
	for i, s := range t.Steps {
		if s.Current != (i == t.CurrentStep) {
			return fmt.Errorf("%w: step %d current=%t with currentStep %d", ErrInvalidState, i, s.Current, t.CurrentStep)
		}
	}
	return nil
}

// resize grows with inactive steps or truncates from the end, keeping the
// cursor and its marker in range.
func (t *Track[P]) resize(n int) {
	if n > len(t.Steps) {
		t.Steps = append(t.Steps, make([]Step, n-len(t.Steps))...)
	} else {
		t.Steps = t.Steps[:n:n]
	}
	t.NumberOfSteps = n
	if t.CurrentStep >= n {
		t.moveTo(n - 1)
	}
}

// moveTo clears the old playhead marker before setting the new one
func (t *Track[P]) moveTo(i int) {
	if t.CurrentStep >= 0 && t.CurrentStep < len(t.Steps) {
		t.Steps[t.CurrentStep].Current = false
	}
	t.CurrentStep = i
	t.Steps[i].Current = true
}
