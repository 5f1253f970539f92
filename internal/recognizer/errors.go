package recognizer

import (
	"errors"
	"fmt"
)

var (
	// ErrListening is returned by SetSearch while a worker is recording
	ErrListening = errors.New("recognizer is listening")

	// ErrClosed is returned by operations on a closed session
	ErrClosed = errors.New("session is closed")
)

// Fault phases
const (
	PhaseStartup = "startup"
	PhaseRuntime = "runtime"
)

// FaultError is the error carried by Error events
type FaultError struct {
	Phase string
	Err   error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("recognition %s fault: %v", e.Phase, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}
