package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"go-stepseq/sequencer"
)

// Metrics holds the sequencer's prometheus collectors
type Metrics struct {
	Ticks          prometheus.Counter
	TickErrors     prometheus.Counter
	Triggers       *prometheus.CounterVec
	ExecutorErrors prometheus.Counter
	StateChanges   prometheus.Counter
	Tracks         prometheus.Gauge
	BPM            prometheus.Gauge
}

// New creates the collectors and registers them with reg (skipped if nil)
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stepseq_ticks_total",
			Help: "Ticks applied to the sequencer",
		}),
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stepseq_tick_errors_total",
			Help: "Ticks rejected because a strategy result was out of range",
		}),
		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepseq_triggers_total",
			Help: "Active steps that became current, by track index",
		}, []string{"track"}),
		ExecutorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stepseq_executor_errors_total",
			Help: "Step executor failures",
		}),
		StateChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stepseq_state_changes_total",
			Help: "State snapshots published to observers",
		}),
		Tracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stepseq_tracks",
			Help: "Number of tracks in the latest snapshot",
		}),
		BPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stepseq_bpm",
			Help: "Current ticker tempo",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Ticks, m.TickErrors, m.Triggers, m.ExecutorErrors, m.StateChanges, m.Tracks, m.BPM)
	}
	return m
}

// ObserveTick records the outcome of one OnTick call
func (m *Metrics) ObserveTick(err error) {
	if err != nil {
		m.TickErrors.Inc()
		return
	}
	m.Ticks.Inc()
}

// ObserveExecutorError counts one executor failure
func (m *Metrics) ObserveExecutorError() {
	m.ExecutorErrors.Inc()
}

// SetBPM records the ticker tempo
func (m *Metrics) SetBPM(bpm float64) {
	m.BPM.Set(bpm)
}

// Observe returns a state observer for Sequencer.OnStateChange
func Observe[P any](m *Metrics) func(sequencer.State[P]) {
	return func(st sequencer.State[P]) {
		m.StateChanges.Inc()
		m.Tracks.Set(float64(len(st.Tracks)))
	}
}

// InstrumentedExecutor counts triggers before delegating
type InstrumentedExecutor[P any, E sequencer.StepExecutor[P]] struct {
	m    *Metrics
	next E
}

// Instrument wraps an executor so every trigger and failure is counted
func Instrument[P any, E sequencer.StepExecutor[P]](m *Metrics, next E) *InstrumentedExecutor[P, E] {
	return &InstrumentedExecutor[P, E]{m: m, next: next}
}

func (e *InstrumentedExecutor[P, E]) Execute(trig sequencer.Trigger[P]) error {
	e.m.Triggers.WithLabelValues(strconv.Itoa(trig.Track)).Inc()
	err := e.next.Execute(trig)
	if err != nil {
		e.m.ObserveExecutorError()
	}
	return err
}

// Unwrap returns the wrapped executor
func (e *InstrumentedExecutor[P, E]) Unwrap() E {
	return e.next
}
