package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"go-stepseq/config"
	"go-stepseq/debug"
	"go-stepseq/metrics"
	"go-stepseq/midi"
	"go-stepseq/sequencer"
	"go-stepseq/store"
)

type engine = sequencer.Sequencer[midi.Params, *metrics.InstrumentedExecutor[midi.Params, *midi.Executor]]

// app wires the sequencer to its clock, MIDI output, store and metrics.
// It is also the transport handed to the UI and the HTTP API, so tempo
// changes keep the note gate and the bpm gauge in step.
type app struct {
	cfg      *config.Config
	seq      *engine
	exec     *midi.Executor
	ticker   *sequencer.Ticker
	states   *store.StateStore[midi.Params]
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	closeStore func() error
	log        *slog.Logger
}

func newApp(cfg *config.Config, send midi.SendFunc) (*app, error) {
	strategy, err := midi.LookupStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	states, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	a := &app{
		cfg:        cfg,
		states:     states,
		metrics:    m,
		registry:   reg,
		closeStore: closeStore,
		log:        debug.Logger("app"),
	}

	opts := []midi.ExecutorOption{midi.WithGate(a.gateFor(cfg.Tempo.BPM))}
	if cfg.SynthOutput.Velocity > 0 {
		opts = append(opts, midi.WithVelocity(cfg.SynthOutput.Velocity))
	}
	a.exec = midi.NewExecutor(send, opts...)

	a.seq = sequencer.New[midi.Params](
		metrics.Instrument[midi.Params](m, a.exec),
		sequencer.WithStrategy(strategy),
	)
	a.seq.OnStateChange(metrics.Observe[midi.Params](m))

	a.ticker, err = sequencer.NewTicker(cfg.Tempo.BPM, func() {
		m.ObserveTick(a.seq.OnTick())
	}, sequencer.WithStepsPerBeat(a.stepsPerBeat()))
	if err != nil {
		a.closeStoreQuietly()
		return nil, err
	}
	m.SetBPM(cfg.Tempo.BPM)

	return a, nil
}

// openStore builds the state store selected by cfg
func openStore(cfg *config.Config) (*store.StateStore[midi.Params], func() error, error) {
	codec, err := store.CodecByName(cfg.Store.Format)
	if err != nil {
		return nil, nil, err
	}

	closer := func() error { return nil }
	var b store.Backend
	switch cfg.Store.Kind {
	case config.StoreMemory:
		b = store.NewMemoryBackend()
	case config.StoreRedis:
		r := store.NewRedisBackend(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
		b, closer = r, r.Close
	case config.StoreFile, "":
		dir := cfg.Store.Dir
		if dir == "" {
			if dir, err = config.StateDir(); err != nil {
				return nil, nil, err
			}
		}
		b = store.NewFileBackend(dir, codec.Ext())
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}

	return store.NewStateStore[midi.Params](b, codec), closer, nil
}

func (a *app) stepsPerBeat() int {
	return max(a.cfg.Tempo.StepsPerBeat, 1)
}

// gateFor is the configured gate, or 80% of a step at bpm
func (a *app) gateFor(bpm float64) time.Duration {
	if g := a.cfg.SynthOutput.Gate(); g > 0 {
		return g
	}
	return midi.GateForTempo(bpm, a.stepsPerBeat())
}

// restore loads the saved state, if there is one
func (a *app) restore(ctx context.Context) error {
	st, err := a.states.Load(ctx, a.cfg.Store.Key)
	if errors.Is(err, store.ErrNotFound) {
		a.log.Info("no saved state", "key", a.cfg.Store.Key)
		return nil
	}
	if err != nil {
		return err
	}
	if err := a.seq.Load(st); err != nil {
		return err
	}
	a.log.Info("restored state", "key", a.cfg.Store.Key, "tracks", len(st.Tracks))
	return nil
}

func (a *app) save(ctx context.Context, st sequencer.State[midi.Params]) error {
	return a.states.Save(ctx, a.cfg.Store.Key, st)
}

// close stops the clock and silences every note
func (a *app) close() {
	a.ticker.Stop()
	a.exec.Flush()
	a.closeStoreQuietly()
}

func (a *app) closeStoreQuietly() {
	if err := a.closeStore(); err != nil {
		a.log.Warn("closing store", "error", err)
	}
}

func (a *app) Start() { a.ticker.Start() }

func (a *app) Stop() { a.ticker.Stop() }

func (a *app) Running() bool { return a.ticker.Running() }

func (a *app) BPM() float64 { return a.ticker.BPM() }

func (a *app) SetBPM(bpm float64) error {
	if err := a.ticker.SetBPM(bpm); err != nil {
		return err
	}
	a.exec.SetGate(a.gateFor(bpm))
	a.metrics.SetBPM(bpm)
	a.log.Debug("tempo", "bpm", bpm)
	return nil
}
