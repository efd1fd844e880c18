// Package records defines the three ledger record kinds shared by the local
// cache, the persistence gateway, and the sync engine.
package records

import (
	"encoding/json"
	"strconv"
	"time"
)

// Activity is one operator action. Immutable once created.
type Activity struct {
	// ID is the client-generated record id, kept stable across the local
	// cache and the remote store so duplicate appends are idempotent.
	ID string `json:"id"`
	// Operator is the login name of the operator who acted.
	Operator string `json:"operator"`
	// OperatorName is the display name, joined in on remote lists.
	OperatorName string `json:"operatorName,omitempty"`
	// Dependency is the organizational grouping tag of the operator.
	Dependency string `json:"dependency"`
	// Action is the human-readable description of what happened.
	Action string `json:"action"`
	// Command is the command code, when the activity issued one.
	Command string `json:"command,omitempty"`
	// Timestamp is the creation time.
	Timestamp time.Time `json:"timestamp"`
}

// Key is the dedup identity of an activity: operator plus timestamp.
func (a Activity) Key() string {
	return a.Operator + "|" + strconv.FormatInt(a.Timestamp.UnixMilli(), 10)
}

// Log categories.
const (
	CategoryBluetooth = "bluetooth"
	CategoryMovement  = "movement"
	CategorySystem    = "system"
	CategoryAuth      = "auth"
)

// Log outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeWarning = "warning"
)

// Log is one system log entry. Immutable once created.
type Log struct {
	ID string `json:"id"`
	// Action describes what happened.
	Action string `json:"action"`
	// Category is one of the Category* constants.
	Category string `json:"category"`
	// Detail is an opaque structured payload, may be nil.
	Detail json.RawMessage `json:"detail,omitempty"`
	// Operator is the login name of the acting operator, empty for system
	// entries.
	Operator     string `json:"operator,omitempty"`
	OperatorName string `json:"operatorName,omitempty"`
	// Outcome is one of the Outcome* constants.
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert kinds.
const (
	AlertInfo      = "info"
	AlertWarning   = "warning"
	AlertEmergency = "emergency"
)

// Alert priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Alert is one operator-visible alert. The only permitted mutation is the
// one-way read flag transition false -> true.
type Alert struct {
	ID string `json:"id"`
	// Message is the alert text. Never empty; validated at the boundary.
	Message string `json:"message"`
	// Kind is one of the Alert* constants. Only emergency alerts trigger
	// notifications.
	Kind string `json:"kind"`
	// Priority is one of the Priority* constants.
	Priority     string `json:"priority"`
	Operator     string `json:"operator,omitempty"`
	OperatorName string `json:"operatorName,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	// Read marks the alert as acknowledged.
	Read bool `json:"read"`
}

// Key is the dedup identity of an alert: its timestamp. Two alerts with the
// same timestamp are treated as the same record.
func (a Alert) Key() string {
	return strconv.FormatInt(a.Timestamp.UnixMilli(), 10)
}
