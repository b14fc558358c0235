package domain

import "errors"

// Error classes shared across the session, execution and API layers. Layers
// wrap these with %w so callers can classify failures with errors.Is.
var (
	// ErrConnection covers host unreachable, handshake failure and
	// connect timeout. A session that fails to connect is not registered.
	ErrConnection = errors.New("connection failed")

	// ErrProtocol covers invalid coordinates, unknown keys and writes the
	// host rejects. Surfaced as a failed log entry, never a crash.
	ErrProtocol = errors.New("protocol error")

	// ErrTimeout is returned when wait_for_text exhausts its bound.
	ErrTimeout = errors.New("timeout")

	// ErrAssertion is returned when assert_text does not match.
	ErrAssertion = errors.New("assertion failed")

	// ErrSessionBusy rejects destroy/reap of a session with a running
	// script. The reaper defers; the API surfaces 409.
	ErrSessionBusy = errors.New("session busy")
)
