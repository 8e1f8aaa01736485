package telemetry

import "errors"

var (
	// ErrInvalidAddress is returned by the constructors when the multicast
	// address is not an IPv4 address or the port is out of range.
	ErrInvalidAddress = errors.New("telemetry: invalid multicast address")

	// ErrAlreadyRunning is returned by Start when the loop is already running.
	// The running loop is unaffected.
	ErrAlreadyRunning = errors.New("telemetry: already running")

	// ErrSocketSetup wraps socket, bind and group join failures.
	ErrSocketSetup = errors.New("telemetry: socket setup failed")
)
