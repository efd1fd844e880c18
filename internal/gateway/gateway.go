// Package gateway is the client-side boundary to the shared persistence
// backend. Appends are best effort: the local ledger never blocks or rolls
// back on a gateway failure, it only logs it.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/luchaneitor/tecnoacceso-web/internal/records"
)

// ErrEmptyMessage is returned when an alert is appended without a message.
// Validated locally, before any request is made.
var ErrEmptyMessage = errors.New("alert message is empty")

// UnavailableError wraps any gateway failure with the operation that hit it.
type UnavailableError struct {
	// Op is the logical operation, e.g. "appendActivity".
	Op    string
	cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("persistence unavailable during %s: %v", e.Op, e.cause)
}

func (e *UnavailableError) Unwrap() error { return e.cause }

func unavailable(op string, cause error) error {
	return &UnavailableError{Op: op, cause: cause}
}

// Gateway is the persistence boundary consumed by the ledger and sync engine.
type Gateway interface {
	// AppendActivity stores one activity record and returns the stored id.
	AppendActivity(ctx context.Context, a records.Activity) (string, error)
	// ListActivity returns the newest 50 activities, operator names joined.
	ListActivity(ctx context.Context) ([]records.Activity, error)

	// AppendLog stores one log record and returns the stored id.
	AppendLog(ctx context.Context, l records.Log) (string, error)
	// ListLogs returns the newest 50 log records, operator names joined.
	ListLogs(ctx context.Context) ([]records.Log, error)

	// AppendAlert stores one alert. The message must be non-empty.
	AppendAlert(ctx context.Context, a records.Alert) (string, error)
	// ListUnreadAlerts returns the newest 10 unread alerts.
	ListUnreadAlerts(ctx context.Context) ([]records.Alert, error)
	// AcknowledgeAlert flips one alert's read flag. The transition is
	// one-way; acknowledging an already-read alert is a no-op.
	AcknowledgeAlert(ctx context.Context, id string) error
}
