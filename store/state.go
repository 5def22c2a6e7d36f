package store

import (
	"context"
	"fmt"
	"log/slog"

	"go-stepseq/debug"
	"go-stepseq/sequencer"
)

// StateStore saves and loads sequencer snapshots through a backend
type StateStore[P any] struct {
	backend Backend
	codec   Codec
	log     *slog.Logger
}

// NewStateStore combines a backend and a codec (JSON if nil)
func NewStateStore[P any](b Backend, c Codec) *StateStore[P] {
	if c == nil {
		c = JSONCodec{}
	}
	return &StateStore[P]{backend: b, codec: c, log: debug.Logger("store")}
}

// Save writes st under key
func (s *StateStore[P]) Save(ctx context.Context, key string, st sequencer.State[P]) error {
	data, err := s.codec.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.backend.Put(ctx, key, data); err != nil {
		return err
	}
	s.log.Debug("saved", "key", key, "tracks", len(st.Tracks), "bytes", len(data))
	return nil
}

// Load reads the state under key. The decoded state is validated, so a
// corrupted entry fails here with sequencer.ErrInvalidState.
func (s *StateStore[P]) Load(ctx context.Context, key string) (sequencer.State[P], error) {
	var st sequencer.State[P]
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return st, err
	}
	if err := s.codec.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to unmarshal state %q: %w", key, err)
	}
	if err := st.Validate(); err != nil {
		return st, fmt.Errorf("state %q: %w", key, err)
	}
	if st.Tracks == nil {
		st.Tracks = []sequencer.Track[P]{}
	}
	s.log.Debug("loaded", "key", key, "tracks", len(st.Tracks))
	return st, nil
}

// Delete removes the state under key
func (s *StateStore[P]) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Keys lists stored keys
func (s *StateStore[P]) Keys(ctx context.Context) ([]string, error) {
	return s.backend.List(ctx)
}

// Raw returns the encoded bytes under key, for display
func (s *StateStore[P]) Raw(ctx context.Context, key string) ([]byte, error) {
	return s.backend.Get(ctx, key)
}
