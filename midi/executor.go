package midi

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-stepseq/debug"
	"go-stepseq/sequencer"
)

// SendFunc delivers one MIDI message (gomidi.SendTo returns one)
type SendFunc func(msg gomidi.Message) error

// Executor plays a note for every triggered step: note on right away, note
// off after the gate time.
type Executor struct {
	send     SendFunc
	velocity uint8
	gate     time.Duration

	pending map[noteKey]*time.Timer
	mu      sync.Mutex

	log *slog.Logger
}

type noteKey struct {
	channel, note uint8
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithVelocity sets the note-on velocity (100 by default)
func WithVelocity(v uint8) ExecutorOption {
	return func(e *Executor) {
		e.velocity = v
	}
}

// WithGate sets how long notes are held (100ms by default)
func WithGate(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.gate = d
	}
}

// WithExecutorLogger sets the executor's logger
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.log = l
	}
}

// NewExecutor creates an executor that writes through send. A nil send
// makes every trigger fail, which the sequencer logs and skips.
func NewExecutor(send SendFunc, opts ...ExecutorOption) *Executor {
	e := &Executor{
		send:     send,
		velocity: 100,
		gate:     100 * time.Millisecond,
		pending:  make(map[noteKey]*time.Timer),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = debug.Logger("midi")
	}
	return e
}

// GateForTempo returns a gate of 80% of one step at the given tempo
func GateForTempo(bpm float64, stepsPerBeat int) time.Duration {
	if bpm <= 0 || stepsPerBeat < 1 {
		return 0
	}
	step := time.Duration(float64(time.Minute) / bpm / float64(stepsPerBeat))
	return step * 80 / 100
}

// SetGate changes the hold time of notes started from now on
func (e *Executor) SetGate(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = d
}

// Gate returns the current hold time
func (e *Executor) Gate() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate
}

// Execute implements sequencer.StepExecutor
func (e *Executor) Execute(trig sequencer.Trigger[Params]) error {
	p := trig.Parameters
	if err := p.Validate(); err != nil {
		return fmt.Errorf("track %d: %w", trig.Track, err)
	}
	if e.send == nil {
		return fmt.Errorf("track %d: no MIDI output open", trig.Track)
	}

	key := noteKey{channel: p.Channel, note: p.Note}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Retrigger: end the previous note before starting it again
	if t, ok := e.pending[key]; ok && t.Stop() {
		e.sendLocked(Event{Type: NoteOff, Channel: key.channel, Note: key.note})
	}

	on := Event{Type: NoteOn, Channel: p.Channel, Note: p.Note, Velocity: e.velocity}
	if err := e.sendLocked(on); err != nil {
		delete(e.pending, key)
		return fmt.Errorf("failed to send %s: %w", on, err)
	}

	var timer *time.Timer
	timer = time.AfterFunc(e.gate, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.pending[key] != timer {
			return
		}
		delete(e.pending, key)
		if err := e.sendLocked(Event{Type: NoteOff, Channel: key.channel, Note: key.note}); err != nil {
			e.log.Warn("note off failed", "channel", key.channel, "note", key.note, "error", err)
		}
	})
	e.pending[key] = timer
	return nil
}

// Flush ends every sounding note immediately
func (e *Executor) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, t := range e.pending {
		if t.Stop() {
			e.sendLocked(Event{Type: NoteOff, Channel: key.channel, Note: key.note})
		}
		delete(e.pending, key)
	}
}

// sendLocked must be called with mu held
func (e *Executor) sendLocked(ev Event) error {
	e.log.Debug("send", "event", ev.String())
	return e.send(ev.Message())
}
