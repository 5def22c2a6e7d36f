package sequencer_test

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-stepseq/debug"
	"go-stepseq/sequencer"
)

func TestNewTicker_InvalidBPM(t *testing.T) {
	for _, bpm := range []float64{0, -120, math.NaN(), math.Inf(1)} {
		_, err := sequencer.NewTicker(bpm, func() {})
		assert.ErrorIs(t, err, sequencer.ErrInvalidConfiguration, "bpm %v", bpm)
	}

	_, err := sequencer.NewTicker(120, nil)
	assert.ErrorIs(t, err, sequencer.ErrInvalidConfiguration)

	_, err = sequencer.NewTicker(120, func() {}, sequencer.WithStepsPerBeat(0))
	assert.ErrorIs(t, err, sequencer.ErrInvalidConfiguration)
}

func TestTicker_Interval(t *testing.T) {
	tk, err := sequencer.NewTicker(120, func() {})
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, tk.Interval())

	require.NoError(t, tk.SetBPM(60))
	assert.Equal(t, time.Second, tk.Interval())
	assert.Equal(t, 60.0, tk.BPM())

	assert.ErrorIs(t, tk.SetBPM(-1), sequencer.ErrInvalidConfiguration)
	assert.Equal(t, 60.0, tk.BPM())

	sixteenths, err := sequencer.NewTicker(120, func() {}, sequencer.WithStepsPerBeat(4))
	require.NoError(t, err)
	assert.Equal(t, 125*time.Millisecond, sixteenths.Interval())
}

func TestTicker_StartStopIdempotent(t *testing.T) {
	tk, err := sequencer.NewTicker(6000, func() {})
	require.NoError(t, err)

	tk.Stop()
	assert.False(t, tk.Running())
	tk.Start()
	tk.Start()
	assert.True(t, tk.Running())
	tk.Stop()
	tk.Stop()
	assert.False(t, tk.Running())
}

func TestTicker_DrivesSequencer(t *testing.T) {
	seq, _ := newSeq(t)
	require.NoError(t, seq.AddTrack(params{}, 4))

	var changes atomic.Int64
	seq.OnStateChange(func(sequencer.State[params]) { changes.Add(1) })

	// 6000 bpm = one tick every 10ms
	tk, err := sequencer.NewTicker(6000, func() { _ = seq.OnTick() })
	require.NoError(t, err)

	tk.Start()
	assert.Eventually(t, func() bool { return changes.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	tk.Stop()

	after := changes.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, changes.Load(), "tick delivered after Stop returned")
}

func TestTicker_StopWaitsForInFlightTick(t *testing.T) {
	var ticks atomic.Int64
	entered := make(chan struct{}, 1)
	tk, err := sequencer.NewTicker(6000, func() {
		select {
		case entered <- struct{}{}:
		default:
		}
		time.Sleep(30 * time.Millisecond)
		ticks.Add(1)
	})
	require.NoError(t, err)

	tk.Start()
	<-entered
	tk.Stop()

	after := ticks.Load()
	assert.GreaterOrEqual(t, after, int64(1))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())
}

func TestTicker_BPMChangeWhileRunning(t *testing.T) {
	var ticks atomic.Int64
	tk, err := sequencer.NewTicker(1, func() { ticks.Add(1) })
	require.NoError(t, err)

	tk.Start()
	defer tk.Stop()

	// at 1 bpm the first tick is a minute away; the new tempo re-arms it
	require.NoError(t, tk.SetBPM(6000))
	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, tk.Running())
}

func TestTicker_Restart(t *testing.T) {
	var ticks atomic.Int64
	tk, err := sequencer.NewTicker(6000, func() { ticks.Add(1) })
	require.NoError(t, err)

	tk.Start()
	assert.Eventually(t, func() bool { return ticks.Load() >= 1 }, time.Second, 5*time.Millisecond)
	tk.Stop()
	stopped := ticks.Load()

	tk.Start()
	assert.Eventually(t, func() bool { return ticks.Load() > stopped }, time.Second, 5*time.Millisecond)
	tk.Stop()
}

func TestTicker_LogsCadence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, debug.Enable(path))
	t.Cleanup(debug.Disable)

	var ticks atomic.Int64
	tk, err := sequencer.NewTicker(60000, func() { ticks.Add(1) })
	require.NoError(t, err)
	tk.Start()
	defer tk.Stop()

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), "tick at 60000 bpm (every 64")
	}, 5*time.Second, 10*time.Millisecond)
}
