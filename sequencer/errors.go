package sequencer

import "errors"

var (
	// ErrIndexOutOfRange is returned when a track or step index is outside current bounds.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrInvalidConfiguration is returned for non-positive step counts or tempos.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidState is returned when a loaded snapshot or a strategy result
	// breaks a track invariant.
	ErrInvalidState = errors.New("invalid state")
)
