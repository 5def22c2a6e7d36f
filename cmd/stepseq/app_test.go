package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-stepseq/config"
	"go-stepseq/midi"
)

type sink struct {
	mu   sync.Mutex
	msgs []gomidi.Message
}

func (s *sink) send(msg gomidi.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Store.Kind = config.StoreMemory
	return cfg
}

func TestApp_SaveAndRestore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.Store.Format = "yaml"

	a, err := newApp(cfg, discard)
	require.NoError(t, err)
	require.NoError(t, a.restore(context.Background()))
	assert.Empty(t, a.seq.Snapshot().Tracks)

	require.NoError(t, a.seq.AddTrack(midi.Params{Channel: 9, Note: 36}, 4, 0, 2))
	require.NoError(t, a.seq.OnTick())
	require.NoError(t, a.save(context.Background(), a.seq.Snapshot()))
	saved := a.seq.Snapshot()
	a.close()

	assert.FileExists(t, filepath.Join(cfg.Store.Dir, "seqState.yaml"))

	b, err := newApp(cfg, discard)
	require.NoError(t, err)
	defer b.close()
	require.NoError(t, b.restore(context.Background()))
	assert.Equal(t, saved, b.seq.Snapshot())
}

func TestApp_RedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := config.DefaultConfig()
	cfg.Store.Kind = config.StoreRedis
	cfg.Store.RedisAddr = mr.Addr()

	a, err := newApp(cfg, discard)
	require.NoError(t, err)
	defer a.close()

	require.NoError(t, a.seq.AddTrack(midi.DefaultParams(), 8))
	require.NoError(t, a.save(context.Background(), a.seq.Snapshot()))
	assert.True(t, mr.Exists("stepseq:state:seqState"))
}

func TestApp_UnknownStrategy(t *testing.T) {
	cfg := memoryConfig()
	cfg.Strategy = "sideways"
	_, err := newApp(cfg, discard)
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestApp_TempoFollowsGate(t *testing.T) {
	a, err := newApp(memoryConfig(), discard)
	require.NoError(t, err)
	defer a.close()

	assert.Equal(t, 100*time.Millisecond, a.exec.Gate())
	require.NoError(t, a.SetBPM(60))
	assert.Equal(t, 200*time.Millisecond, a.exec.Gate())
	assert.Equal(t, 60.0, testutil.ToFloat64(a.metrics.BPM))
	assert.Error(t, a.SetBPM(0))
	assert.Equal(t, 60.0, a.BPM())

	cfg := memoryConfig()
	cfg.SynthOutput.GateMs = 30
	fixed, err := newApp(cfg, discard)
	require.NoError(t, err)
	defer fixed.close()
	require.NoError(t, fixed.SetBPM(60))
	assert.Equal(t, 30*time.Millisecond, fixed.exec.Gate())
}

func TestApp_ClockPlaysNotes(t *testing.T) {
	out := &sink{}
	cfg := memoryConfig()
	cfg.Tempo.BPM = 6000
	a, err := newApp(cfg, out.send)
	require.NoError(t, err)
	defer a.close()

	require.NoError(t, a.seq.AddTrack(midi.DefaultParams(), 2, 0, 1))
	a.Start()
	assert.Eventually(t, func() bool {
		return out.count() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	a.Stop()

	assert.Positive(t, testutil.ToFloat64(a.metrics.Ticks))
	assert.Positive(t, testutil.ToFloat64(a.metrics.Triggers.WithLabelValues("0")))
}

func TestApp_Handler(t *testing.T) {
	a, err := newApp(memoryConfig(), discard)
	require.NoError(t, err)
	defer a.close()
	h := a.handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/transport", strings.NewReader(`{"bpm":90}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 90.0, testutil.ToFloat64(a.metrics.BPM))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "stepseq_bpm 90")
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := config.DefaultConfig()
	cfg.Tempo.BPM = 100
	require.NoError(t, cfg.SaveTo(path))

	cmd := &cobra.Command{}
	cmd.Flags().String("config", path, "")
	engineFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--strategy", "backAndForth", "--store", "memory", "--key", "other"}))

	got, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Tempo.BPM)
	assert.Equal(t, midi.StrategyBackAndForth, got.Strategy)
	assert.Equal(t, config.StoreMemory, got.Store.Kind)
	assert.Equal(t, "other", got.Store.Key)

	require.NoError(t, cmd.Flags().Set("store", "floppy"))
	_, err = loadConfig(cmd)
	assert.Error(t, err)
}

func TestStateCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := config.DefaultConfig()
	cfg.Store.Dir = filepath.Join(dir, "state")
	require.NoError(t, cfg.SaveTo(path))

	a, err := newApp(cfg, discard)
	require.NoError(t, err)
	require.NoError(t, a.seq.AddTrack(midi.Params{Channel: 2, Note: 64}, 3, 1))
	require.NoError(t, a.save(context.Background(), a.seq.Snapshot()))
	a.close()

	run := func(args ...string) string {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append(args, "--config", path))
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	assert.Contains(t, run("state", "list"), "seqState")
	shown := run("state", "show", "--format", "yaml")
	assert.Contains(t, shown, "noteNumber: 64")
	assert.Contains(t, shown, "numberOfSteps: 3")
	assert.Contains(t, run("state", "clear"), `cleared "seqState"`)
	assert.NotContains(t, run("state", "list"), "seqState")
}
