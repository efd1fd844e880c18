package device

import "time"

// State is the connection state of a device session.
type State string

const (
	// StateIdle means no connection exists and none is being attempted.
	StateIdle State = "Idle"
	// StateDiscovering means discovery is in flight.
	StateDiscovering State = "Discovering"
	// StateConnecting means a handle was acquired and the handshake is in flight.
	StateConnecting State = "Connecting"
	// StateConnected means commands may be sent.
	StateConnected State = "Connected"
	// StateDisconnecting means an orderly teardown is in progress.
	StateDisconnecting State = "Disconnecting"
	// StateFaulted is the transient state a failed attempt passes through
	// while the fault is reported. It is never observed as a resting state:
	// the session settles back to Idle immediately after emitting the fault.
	StateFaulted State = "Faulted"
)

// EventType identifies a session event.
type EventType string

const (
	// EventDiscoveryStarted fires when a connect attempt begins discovery.
	EventDiscoveryStarted EventType = "discovery-started"
	// EventDeviceFound fires when discovery acquired a handle.
	EventDeviceFound EventType = "device-found"
	// EventConnected fires when the handshake succeeded.
	EventConnected EventType = "connected"
	// EventDisconnected fires on teardown, explicit or unsolicited.
	EventDisconnected EventType = "disconnected"
	// EventFault fires when an attempt failed; Err carries the classification.
	EventFault EventType = "fault"
)

// Event is an observation emitted by a session. Events are delivered on a
// buffered channel and dropped if no observer keeps up; they are UI signals,
// not a durable record.
type Event struct {
	Type   EventType
	State  State
	Handle Handle
	Err    *Error
	// Reason is set on disconnect events: "requested" for explicit
	// disconnects, otherwise the transport-provided reason.
	Reason string
	At     time.Time
}
