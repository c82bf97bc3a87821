package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds callers branch on with errors.Is.
var (
	// ErrInvalidConfig means a configured value was unusable before any
	// device I/O was attempted (e.g. a manual port absent from the OS
	// port list).
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRejected means the device answered NOK: a state precondition was
	// not met or no valid calibration exists. Never retried automatically.
	ErrRejected = errors.New("rejected by device")

	// ErrNotSupported marks operations the device does not implement,
	// such as halting an in-progress motion.
	ErrNotSupported = errors.New("not supported by device")

	// ErrSessionClosed is returned for commands issued after Close.
	ErrSessionClosed = errors.New("session closed")
)

// ConnectionError reports that no candidate port produced a device
// handshake. Individual probe failures are non-fatal and folded into this
// once the candidate list is exhausted.
type ConnectionError struct {
	Candidates []string
}

func (e *ConnectionError) Error() string {
	if len(e.Candidates) == 0 {
		return "no serial ports found"
	}
	return fmt.Sprintf("no cover controller responded on %v", e.Candidates)
}

// ProtocolError reports a broken command round-trip: a missing expected
// prefix, a malformed line, or a timed-out response. Response carries the
// raw line when one was read.
type ProtocolError struct {
	Request  string
	Response string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %q: %v", e.Request, e.Err)
	}
	return fmt.Sprintf("command %q: unexpected response %q", e.Request, e.Response)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
