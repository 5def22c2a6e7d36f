package sequencer

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go-stepseq/debug"
)

// Ticker calls a tick function at a rate derived from a tempo in beats per
// minute. It runs independently of the Sequencer: pass seq.OnTick wrapped in
// a func() as the tick function.
type Ticker struct {
	tick         func()
	bpm          float64
	stepsPerBeat int

	running  bool
	stopChan chan struct{}
	stopped  chan struct{}
	retempo  chan struct{} // re-arms the pending timer after SetBPM
	mu       sync.Mutex

	log *slog.Logger
}

// TickerOption configures a Ticker
type TickerOption func(*Ticker)

// WithStepsPerBeat sets how many ticks make one beat (1 by default, 4 for
// sixteenth notes).
func WithStepsPerBeat(n int) TickerOption {
	return func(t *Ticker) {
		t.stepsPerBeat = n
	}
}

// WithTickerLogger sets the ticker's logger
func WithTickerLogger(l *slog.Logger) TickerOption {
	return func(t *Ticker) {
		t.log = l
	}
}

// NewTicker creates a stopped ticker
func NewTicker(bpm float64, tick func(), opts ...TickerOption) (*Ticker, error) {
	if err := checkBPM(bpm); err != nil {
		return nil, err
	}
	if tick == nil {
		return nil, fmt.Errorf("%w: nil tick function", ErrInvalidConfiguration)
	}
	t := &Ticker{
		tick:         tick,
		bpm:          bpm,
		stepsPerBeat: 1,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.stepsPerBeat < 1 {
		return nil, fmt.Errorf("%w: steps per beat %d < 1", ErrInvalidConfiguration, t.stepsPerBeat)
	}
	if t.log == nil {
		t.log = debug.Logger("ticker")
	}
	return t, nil
}

func checkBPM(bpm float64) error {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return fmt.Errorf("%w: bpm %v must be positive", ErrInvalidConfiguration, bpm)
	}
	return nil
}

// BPM returns the current tempo
func (t *Ticker) BPM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

// SetBPM changes the tempo. A running ticker picks it up for the next tick.
func (t *Ticker) SetBPM(bpm float64) error {
	if err := checkBPM(bpm); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bpm = bpm
	if t.running {
		select {
		case t.retempo <- struct{}{}:
		default:
		}
	}
	return nil
}

// Interval returns the time between ticks at the current tempo
func (t *Ticker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval()
}

func (t *Ticker) interval() time.Duration {
	return time.Duration(float64(time.Minute) / t.bpm / float64(t.stepsPerBeat))
}

// Running reports whether the ticker is started
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start begins ticking; the first tick comes one interval from now
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopChan = make(chan struct{})
	t.stopped = make(chan struct{})
	t.retempo = make(chan struct{}, 1)
	t.log.Debug("start", "bpm", t.bpm, "interval", t.interval())

	go t.loop(t.stopChan, t.retempo, t.stopped)
}

// Stop halts ticking. When it returns no tick is running and none will be
// delivered. It must not be called from inside the tick function.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopChan)
	stopped := t.stopped
	t.mu.Unlock()

	<-stopped
	t.log.Debug("stop")
}

// ticksPerLogLine is the debug log cadence of the tick loop
const ticksPerLogLine = 64

func (t *Ticker) loop(stop, retempo <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	last := time.Now()
	timer := time.NewTimer(t.Interval())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-retempo:
			// next tick is one new interval after the last one
			timer.Stop()
			timer.Reset(max(time.Until(last.Add(t.Interval())), 0))
			continue
		case <-timer.C:
		}

		// Stop may have raced with the timer
		select {
		case <-stop:
			return
		default:
		}

		last = time.Now()
		debug.LogEvery(ticksPerLogLine, "ticker", "tick at %.0f bpm", t.BPM())
		t.tick()
		timer.Reset(t.Interval())
	}
}
