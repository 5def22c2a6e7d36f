package sequencer

import (
	"fmt"
	"log/slog"
	"sync"

	"go-stepseq/debug"
)

// Sequencer owns the track list, advances it on every tick and publishes a
// snapshot after each change. All public methods are serialized by one
// mutex which is held while executors and observers run, so observers must
// not call back into the Sequencer synchronously (hand the snapshot off to
// a channel instead).
//
// Snapshots, observers, strategies and executors only ever see copies. A
// parameter type holding maps, slices or pointers must implement Cloner[P]
// for those copies to be independent.
type Sequencer[P any, E StepExecutor[P]] struct {
	state    State[P]
	strategy Strategy[P]
	executor E

	observers []*observer[P]
	nextSubID uint64

	onExecError func(trig Trigger[P], err error)
	log         *slog.Logger

	mu sync.Mutex
}

// Option configures a Sequencer
type Option[P any] func(*options[P])

type options[P any] struct {
	strategy    Strategy[P]
	log         *slog.Logger
	onExecError func(trig Trigger[P], err error)
}

// WithStrategy sets the initial next-step strategy (Forward by default)
func WithStrategy[P any](s Strategy[P]) Option[P] {
	return func(o *options[P]) {
		o.strategy = s
	}
}

// WithLogger sets the logger used for executor failures and tick errors
func WithLogger[P any](l *slog.Logger) Option[P] {
	return func(o *options[P]) {
		o.log = l
	}
}

// WithExecutorErrorHandler is called, under the sequencer lock, for every
// executor error or panic.
func WithExecutorErrorHandler[P any](fn func(trig Trigger[P], err error)) Option[P] {
	return func(o *options[P]) {
		o.onExecError = fn
	}
}

// New creates an empty sequencer driving the given executor
func New[P any, E StepExecutor[P]](executor E, opts ...Option[P]) *Sequencer[P, E] {
	o := options[P]{
		strategy: Forward[P],
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = debug.Logger("seq")
	}
	return &Sequencer[P, E]{
		state:       State[P]{Tracks: []Track[P]{}},
		strategy:    o.strategy,
		executor:    executor,
		onExecError: o.onExecError,
		log:         o.log,
	}
}

// Snapshot returns a copy of the current state
func (s *Sequencer[P, E]) Snapshot() State[P] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// AddTrack appends a track with step 0 current and the listed steps active
func (s *Sequencer[P, E]) AddTrack(params P, numberOfSteps int, active ...int) error {
	t, err := NewTrack(params, numberOfSteps, active...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tracks = append(s.state.Tracks, t)
	s.publish()
	return nil
}

// RemoveTrack deletes the track at index; later tracks shift down
func (s *Sequencer[P, E]) RemoveTrack(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTrack(index); err != nil {
		return err
	}
	s.state.Tracks = append(s.state.Tracks[:index:index], s.state.Tracks[index+1:]...)
	s.publish()
	return nil
}

// SetParameters replaces a track's parameter bag
func (s *Sequencer[P, E]) SetParameters(index int, params P) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTrack(index); err != nil {
		return err
	}
	s.state.Tracks[index].Parameters = cloneParams(params)
	s.publish()
	return nil
}

// SetNumberOfSteps grows a track with inactive steps or truncates it from
// the end, clamping the cursor to the new last step.
func (s *Sequencer[P, E]) SetNumberOfSteps(index, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: numberOfSteps %d < 1", ErrInvalidConfiguration, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTrack(index); err != nil {
		return err
	}
	s.state.Tracks[index].resize(n)
	s.publish()
	return nil
}

// ToggleStep flips a step's active flag
func (s *Sequencer[P, E]) ToggleStep(trackIndex, stepIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTrack(trackIndex); err != nil {
		return err
	}
	t := &s.state.Tracks[trackIndex]
	if stepIndex < 0 || stepIndex >= len(t.Steps) {
		return fmt.Errorf("%w: step %d of track %d (has %d)", ErrIndexOutOfRange, stepIndex, trackIndex, len(t.Steps))
	}
	t.Steps[stepIndex].Active = !t.Steps[stepIndex].Active
	s.publish()
	return nil
}

// SetNextStepStrategy replaces the strategy used from the next tick on.
// A nil strategy restores Forward.
func (s *Sequencer[P, E]) SetNextStepStrategy(strategy Strategy[P]) {
	if strategy == nil {
		strategy = Forward[P]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = strategy
}

// Load replaces the whole state with st, or leaves the current state
// untouched and returns ErrInvalidState if st breaks an invariant.
func (s *Sequencer[P, E]) Load(st State[P]) error {
	if err := st.Validate(); err != nil {
		return err
	}
	loaded := st.Clone()
	if loaded.Tracks == nil {
		loaded.Tracks = []Track[P]{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = loaded
	s.publish()
	return nil
}

type move[P any] struct {
	next   int
	params P
}

// OnTick advances every track by one step. Strategy results are checked for
// all tracks before any is applied; an out-of-range result aborts the tick
// with ErrInvalidState and leaves the state as it was.
func (s *Sequencer[P, E]) OnTick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	moves := make([]move[P], len(s.state.Tracks))
	for i, t := range s.state.Tracks {
		next, params := s.strategy(t.Clone())
		if next < 0 || next >= t.NumberOfSteps {
			err := fmt.Errorf("%w: strategy returned step %d for track %d with %d steps", ErrInvalidState, next, i, t.NumberOfSteps)
			s.log.Error("tick rejected", "track", i, "error", err)
			return err
		}
		moves[i] = move[P]{next: next, params: params}
	}

	var triggers []Trigger[P]
	for i := range s.state.Tracks {
		t := &s.state.Tracks[i]
		t.Parameters = moves[i].params
		t.moveTo(moves[i].next)
		if t.Steps[t.CurrentStep].Active {
			triggers = append(triggers, Trigger[P]{Track: i, Step: t.CurrentStep, Parameters: cloneParams(t.Parameters)})
		}
	}

	for _, trig := range triggers {
		if err := s.execute(trig); err != nil {
			s.log.Warn("executor failed", "track", trig.Track, "step", trig.Step, "error", err)
			if s.onExecError != nil {
				s.onExecError(trig, err)
			}
		}
	}

	s.publish()
	return nil
}

// execute runs the executor for one trigger, turning a panic into an error
func (s *Sequencer[P, E]) execute(trig Trigger[P]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return s.executor.Execute(trig)
}

func (s *Sequencer[P, E]) checkTrack(index int) error {
	if index < 0 || index >= len(s.state.Tracks) {
		return fmt.Errorf("%w: track %d (have %d)", ErrIndexOutOfRange, index, len(s.state.Tracks))
	}
	return nil
}
