package sequencer

// Trigger describes an active step that just became current
type Trigger[P any] struct {
	Track      int // track index within the state
	Step       int // step index within the track
	Parameters P
}

// StepExecutor performs the side effect for a triggered step (e.g. a MIDI
// note). A returned error is logged and never stops the tick.
type StepExecutor[P any] interface {
	Execute(trig Trigger[P]) error
}

// ExecutorFunc adapts a function to StepExecutor
type ExecutorFunc[P any] func(trig Trigger[P]) error

func (f ExecutorFunc[P]) Execute(trig Trigger[P]) error {
	return f(trig)
}

// NopExecutor ignores every trigger
type NopExecutor[P any] struct{}

func (NopExecutor[P]) Execute(Trigger[P]) error { return nil }
