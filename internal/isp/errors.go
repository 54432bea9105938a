package isp

import "errors"

var (
	// ErrNoEcho is returned when the target does not echo the program
	// enable command. The programmer is back in Idle state.
	ErrNoEcho = errors.New("target did not acknowledge programming mode")

	// ErrSessionClosed is returned by operations on a Session that has exited.
	ErrSessionClosed = errors.New("programming session closed")

	// ErrAlreadyProgramming is returned by Enter while a session is open.
	ErrAlreadyProgramming = errors.New("programming session already open")

	// ErrBusyTimeout is returned when busy polling exceeds its timeout.
	ErrBusyTimeout = errors.New("target still busy")
)
