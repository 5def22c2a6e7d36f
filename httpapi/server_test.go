package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-stepseq/httpapi"
	"go-stepseq/metrics"
	"go-stepseq/midi"
	"go-stepseq/sequencer"
)

type fixture struct {
	seq     *sequencer.Sequencer[midi.Params, sequencer.NopExecutor[midi.Params]]
	handler http.Handler
	ticker  *sequencer.Ticker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	seq := sequencer.New[midi.Params](sequencer.NopExecutor[midi.Params]{})
	ticker, err := sequencer.NewTicker(120, func() { _ = seq.OnTick() })
	require.NoError(t, err)
	t.Cleanup(ticker.Stop)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	srv := httpapi.NewServer[midi.Params](seq)
	srv.Transport = ticker
	srv.Gatherer = reg
	srv.OnTick = m.ObserveTick
	return &fixture{seq: seq, handler: srv.Handler(), ticker: ticker}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeState(t *testing.T, rr *httptest.ResponseRecorder) sequencer.State[midi.Params] {
	t.Helper()
	var st sequencer.State[midi.Params]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	return st
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestTrackLifecycle(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/tracks", `{"parameters":{"channel":9,"noteNumber":36,"dir":0},"numberOfSteps":4,"active":[0,2]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	st := decodeState(t, rr)
	require.Len(t, st.Tracks, 1)
	assert.Equal(t, midi.Params{Channel: 9, Note: 36}, st.Tracks[0].Parameters)
	assert.True(t, st.Tracks[0].Steps[2].Active)

	rr = f.do(t, http.MethodPost, "/tracks/0/steps/1/toggle", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeState(t, rr).Tracks[0].Steps[1].Active)

	rr = f.do(t, http.MethodPut, "/tracks/0/steps", `{"numberOfSteps":6}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 6, decodeState(t, rr).Tracks[0].NumberOfSteps)

	rr = f.do(t, http.MethodPut, "/tracks/0/parameters", `{"channel":1,"noteNumber":40,"dir":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, midi.Params{Channel: 1, Note: 40, Dir: sequencer.DirectionForward}, decodeState(t, rr).Tracks[0].Parameters)

	rr = f.do(t, http.MethodPost, "/tick", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeState(t, rr).Tracks[0].CurrentStep)

	rr = f.do(t, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, f.seq.Snapshot(), decodeState(t, rr))

	rr = f.do(t, http.MethodDelete, "/tracks/0", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeState(t, rr).Tracks)
}

func TestErrorStatus(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.seq.AddTrack(midi.DefaultParams(), 4))

	tests := []struct {
		name, method, path, body string
		status                   int
	}{
		{"unknown track", http.MethodDelete, "/tracks/3", "", http.StatusNotFound},
		{"unknown step", http.MethodPost, "/tracks/0/steps/9/toggle", "", http.StatusNotFound},
		{"zero steps", http.MethodPut, "/tracks/0/steps", `{"numberOfSteps":0}`, http.StatusBadRequest},
		{"bad track index", http.MethodDelete, "/tracks/x", "", http.StatusBadRequest},
		{"bad body", http.MethodPost, "/tracks", `{`, http.StatusBadRequest},
		{"zero steps on add", http.MethodPost, "/tracks", `{"numberOfSteps":0}`, http.StatusBadRequest},
		{"too many steps on add", http.MethodPost, "/tracks", `{"numberOfSteps":1099511627776}`, http.StatusBadRequest},
		{"too many steps", http.MethodPut, "/tracks/0/steps", `{"numberOfSteps":1025}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
	assert.Len(t, f.seq.Snapshot().Tracks, 1)
}

func TestTickConflict(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.seq.AddTrack(midi.DefaultParams(), 4))
	f.seq.SetNextStepStrategy(func(t sequencer.Track[midi.Params]) (int, midi.Params) {
		return -1, t.Parameters
	})

	rr := f.do(t, http.MethodPost, "/tick", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestTransport(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/transport", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"running":false,"bpm":120}`, rr.Body.String())

	rr = f.do(t, http.MethodPut, "/transport", `{"running":true,"bpm":90}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"running":true,"bpm":90}`, rr.Body.String())
	assert.True(t, f.ticker.Running())

	rr = f.do(t, http.MethodPut, "/transport", `{"bpm":-5}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 90.0, f.ticker.BPM())

	rr = f.do(t, http.MethodPut, "/transport", `{"running":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, f.ticker.Running())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/tick", "")

	rr := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "stepseq_ticks_total 1")
}

func TestStepsCap(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/tracks", `{"parameters":{"channel":0,"noteNumber":60,"dir":0},"numberOfSteps":1024}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodPut, "/tracks/0/steps", `{"numberOfSteps":1025}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "exceeds 1024")
	assert.Equal(t, httpapi.MaxSteps, f.seq.Snapshot().Tracks[0].NumberOfSteps)
}
