package terminal

import "context"

// Link is a decoded connection to one terminal host. Implementations own the
// byte-level protocol (3270 data stream, NVT line mode, …) and expose only
// the resulting character grid. A Link is not safe for concurrent use; the
// owning session serializes access.
type Link interface {
	// Connect establishes the transport and completes any negotiation.
	// It honors ctx cancellation and deadline.
	Connect(ctx context.Context) error

	// Disconnect tears down the transport. Idempotent.
	Disconnect() error

	// WriteText types text with the cursor at (row, col). The link may
	// reject the write, e.g. when the target field is protected.
	WriteText(row, col int, text string) error

	// WriteKey sends one attention or control key. The key name has
	// already been normalized (see NormalizeKey).
	WriteKey(key string) error

	// MoveCursor repositions the cursor.
	MoveCursor(row, col int) error

	// Screen returns the current decoded screen. The returned value must
	// not alias link-internal state.
	Screen() (Screen, error)
}

// Dialer constructs an unconnected Link for the given target.
type Dialer func(host string, port int, useTLS bool) (Link, error)
