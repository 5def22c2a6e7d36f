package midi

import (
	"errors"
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ErrPortTimeout is returned when the MIDI driver does not answer in time
// (CoreMIDI can hang: sudo killall coreaudiod midiserver)
var ErrPortTimeout = errors.New("timed out listing MIDI ports")

// ErrPortNotFound is returned by OpenOut for an unknown port name
var ErrPortNotFound = errors.New("MIDI output port not found")

// A driver must be registered by the binary, e.g.
//
//	import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

// listOuts wraps gomidi.GetOutPorts with a timeout
func listOuts(timeout time.Duration) ([]drivers.Out, error) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()

	select {
	case outs := <-ch:
		return outs, nil
	case <-time.After(timeout):
		return nil, ErrPortTimeout
	}
}

// OutPorts returns the names of all MIDI output ports
func OutPorts(timeout time.Duration) ([]string, error) {
	outs, err := listOuts(timeout)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}

// OpenOut opens the named output port. An empty name picks the first port.
func OpenOut(name string, timeout time.Duration) (SendFunc, error) {
	outs, err := listOuts(timeout)
	if err != nil {
		return nil, err
	}
	for _, out := range outs {
		if name != "" && out.String() != name {
			continue
		}
		send, err := gomidi.SendTo(out)
		if err != nil {
			return nil, fmt.Errorf("failed to open port %q: %w", out.String(), err)
		}
		return send, nil
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no output ports", ErrPortNotFound)
	}
	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
}

// CloseDriver releases the registered MIDI driver
func CloseDriver() {
	gomidi.CloseDriver()
}
