package device

import "context"

// Handle identifies a discovered actuator. It is owned exclusively by the
// session that discovered it while connected and is released on disconnect.
type Handle struct {
	// ID is the transport-specific device identifier.
	ID string
	// Name is the advertised device name matched during discovery.
	Name string
}

// Link is an established connection to the actuator.
//
// The link is a best-effort channel: Send reports whether the command was
// accepted for delivery, not whether the actuator executed it.
type Link interface {
	// Send writes a single command code to the actuator.
	Send(code string) (accepted bool, err error)

	// WatchDisconnect registers a callback invoked once if the link drops
	// without a local Close. The returned cancel func unregisters the
	// callback; callers must invoke it when the owning session ends so
	// listener lifetime is bounded by session lifetime.
	WatchDisconnect(fn func(reason string)) (cancel func())

	// Close tears the link down. Closing does not fire the disconnect watch.
	Close() error
}

// Transport abstracts the short-range wireless link to the actuator. The
// session depends only on this contract, never on transport internals.
type Transport interface {
	// Discover finds the actuator advertising filterName. It honors ctx
	// cancellation and deadlines.
	Discover(ctx context.Context, filterName string) (Handle, error)

	// Connect performs the handshake against a discovered handle.
	Connect(ctx context.Context, handle Handle) (Link, error)
}
