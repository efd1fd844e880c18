package device

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies device connection failures.
type ErrorKind string

const (
	// KindNotFound means discovery completed without finding the actuator.
	KindNotFound ErrorKind = "not-found"
	// KindPermissionDenied means the transport refused the session, typically
	// because the channel requires a secure context.
	KindPermissionDenied ErrorKind = "permission-denied"
	// KindTransportUnavailable means the transport itself is unreachable or
	// the attempt exceeded the connect timeout.
	KindTransportUnavailable ErrorKind = "transport-unavailable"
	// KindTransportError covers link-level failures after the transport was
	// reachable.
	KindTransportError ErrorKind = "transport-error"
	// KindUnknown covers everything else; the message carries the detail.
	KindUnknown ErrorKind = "unknown"
)

// Error is a classified device failure. It never crashes a session: every
// Error resolves the session back to Idle after being reported.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// NewError builds an Error with an explicit kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// StatusText returns the short operator-facing status string for the error.
func (e *Error) StatusText() string {
	switch e.Kind {
	case KindNotFound:
		return "Device not found"
	case KindPermissionDenied:
		return "Security error: a secure connection is required"
	case KindTransportUnavailable:
		return "Wireless transport unavailable"
	case KindTransportError:
		return "Connection error"
	default:
		if e.Message != "" {
			return "Error: " + e.Message
		}
		return "Unknown error"
	}
}

// ErrNotConnected is returned by SendCommand when the session is not in the
// Connected state. It fails fast and has no side effects on the session.
var ErrNotConnected = errors.New("device not connected")

// ErrBusy is returned by Connect while another connect attempt is in flight.
// Connect attempts on one session are strictly sequential.
var ErrBusy = errors.New("connect already in progress")

// Classify wraps an arbitrary transport error into an *Error. Errors that are
// already classified pass through unchanged; context deadline errors map to
// transport-unavailable so a hung discovery surfaces as a bounded fault.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTransportUnavailable, "timed out", err)
	}
	return NewError(KindUnknown, err.Error(), err)
}
