package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-stepseq/debug"
	"go-stepseq/sequencer"
)

// Engine is the part of the sequencer the API drives.
// *sequencer.Sequencer satisfies it for any executor type.
type Engine[P any] interface {
	Snapshot() sequencer.State[P]
	AddTrack(params P, numberOfSteps int, active ...int) error
	RemoveTrack(index int) error
	SetParameters(index int, params P) error
	SetNumberOfSteps(index, n int) error
	ToggleStep(trackIndex, stepIndex int) error
	OnTick() error
}

// Transport is the clock driving the engine; *sequencer.Ticker satisfies it.
type Transport interface {
	Start()
	Stop()
	Running() bool
	BPM() float64
	SetBPM(bpm float64) error
}

// Server serves the control API
type Server[P any] struct {
	Engine    Engine[P]
	Transport Transport           // optional
	Gatherer  prometheus.Gatherer // optional, serves /metrics
	OnTick    func(err error)     // optional, called after POST /tick

	log *slog.Logger
}

// NewServer creates a server for engine
func NewServer[P any](engine Engine[P]) *Server[P] {
	return &Server[P]{Engine: engine, log: debug.Logger("http")}
}

// Handler builds the chi router
func (s *Server[P]) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/state", s.getState)
	r.Post("/tick", s.tick)
	r.Route("/tracks", func(r chi.Router) {
		r.Post("/", s.addTrack)
		r.Route("/{track}", func(r chi.Router) {
			r.Delete("/", s.removeTrack)
			r.Put("/parameters", s.setParameters)
			r.Put("/steps", s.setNumberOfSteps)
			r.Post("/steps/{step}/toggle", s.toggleStep)
		})
	})
	if s.Transport != nil {
		r.Get("/transport", s.getTransport)
		r.Put("/transport", s.putTransport)
	}
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// MaxSteps caps the track length accepted from a request body
const MaxSteps = 1024

// AddTrackRequest is the body of POST /tracks
type AddTrackRequest[P any] struct {
	Parameters    P     `json:"parameters"`
	NumberOfSteps int   `json:"numberOfSteps"`
	Active        []int `json:"active"`
}

// StepsRequest is the body of PUT /tracks/{track}/steps
type StepsRequest struct {
	NumberOfSteps int `json:"numberOfSteps"`
}

// TransportState is the body of GET and PUT /transport
type TransportState struct {
	Running *bool    `json:"running,omitempty"`
	BPM     *float64 `json:"bpm,omitempty"`
}

func (s *Server[P]) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

func (s *Server[P]) tick(w http.ResponseWriter, r *http.Request) {
	err := s.Engine.OnTick()
	if s.OnTick != nil {
		s.OnTick(err)
	}
	s.respond(w, err)
}

func (s *Server[P]) addTrack(w http.ResponseWriter, r *http.Request) {
	var body AddTrackRequest[P]
	if !decode(w, r, &body) || !checkSteps(w, body.NumberOfSteps) {
		return
	}
	s.respond(w, s.Engine.AddTrack(body.Parameters, body.NumberOfSteps, body.Active...))
}

func (s *Server[P]) removeTrack(w http.ResponseWriter, r *http.Request) {
	track, ok := pathIndex(w, r, "track")
	if !ok {
		return
	}
	s.respond(w, s.Engine.RemoveTrack(track))
}

func (s *Server[P]) setParameters(w http.ResponseWriter, r *http.Request) {
	track, ok := pathIndex(w, r, "track")
	if !ok {
		return
	}
	var params P
	if !decode(w, r, &params) {
		return
	}
	s.respond(w, s.Engine.SetParameters(track, params))
}

func (s *Server[P]) setNumberOfSteps(w http.ResponseWriter, r *http.Request) {
	track, ok := pathIndex(w, r, "track")
	if !ok {
		return
	}
	var body StepsRequest
	if !decode(w, r, &body) || !checkSteps(w, body.NumberOfSteps) {
		return
	}
	s.respond(w, s.Engine.SetNumberOfSteps(track, body.NumberOfSteps))
}

func (s *Server[P]) toggleStep(w http.ResponseWriter, r *http.Request) {
	track, ok := pathIndex(w, r, "track")
	if !ok {
		return
	}
	step, ok := pathIndex(w, r, "step")
	if !ok {
		return
	}
	s.respond(w, s.Engine.ToggleStep(track, step))
}

func (s *Server[P]) transportState() TransportState {
	running := s.Transport.Running()
	bpm := s.Transport.BPM()
	return TransportState{Running: &running, BPM: &bpm}
}

func (s *Server[P]) getTransport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.transportState())
}

func (s *Server[P]) putTransport(w http.ResponseWriter, r *http.Request) {
	var body TransportState
	if !decode(w, r, &body) {
		return
	}
	if body.BPM != nil {
		if err := s.Transport.SetBPM(*body.BPM); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.Running != nil {
		if *body.Running {
			s.Transport.Start()
		} else {
			s.Transport.Stop()
		}
	}
	writeJSON(w, http.StatusOK, s.transportState())
}

// respond writes the new state on success, or the mapped error
func (s *Server[P]) respond(w http.ResponseWriter, err error) {
	if err != nil {
		s.log.Info("request failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sequencer.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, sequencer.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, sequencer.ErrInvalidState):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func checkSteps(w http.ResponseWriter, n int) bool {
	if n > MaxSteps {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("numberOfSteps %d exceeds %d", n, MaxSteps)})
		return false
	}
	return true
}

func pathIndex(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name + " index"})
		return 0, false
	}
	return i, true
}
