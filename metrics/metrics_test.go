package metrics_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-stepseq/metrics"
	"go-stepseq/sequencer"
)

type noteParams struct {
	Note int
}

func TestMetrics_WithSequencer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	failing := sequencer.ExecutorFunc[noteParams](func(trig sequencer.Trigger[noteParams]) error {
		if trig.Track == 1 {
			return errors.New("no output")
		}
		return nil
	})
	exec := metrics.Instrument[noteParams](m, failing)
	seq := sequencer.New[noteParams](exec)
	seq.OnStateChange(metrics.Observe[noteParams](m))

	require.NoError(t, seq.AddTrack(noteParams{Note: 1}, 2, 1))
	require.NoError(t, seq.AddTrack(noteParams{Note: 2}, 2, 1))
	for i := 0; i < 3; i++ {
		m.ObserveTick(seq.OnTick())
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Ticks))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TickErrors))
	// ticks 1 and 3 land on the active step
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Triggers.WithLabelValues("0")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Triggers.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExecutorErrors))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.StateChanges))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Tracks))
}

func TestMetrics_TickErrorAndBPM(t *testing.T) {
	m := metrics.New(nil)
	m.ObserveTick(sequencer.ErrInvalidState)
	m.SetBPM(128)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TickErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Ticks))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.BPM))
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Triggers.WithLabelValues("0").Inc()

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
