// Package notify delivers emergency alert notifications to the operator's
// attention outside the panel itself.
package notify

import (
	"context"

	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

// Notification is one message to surface.
type Notification struct {
	// Title is the short headline.
	Title string
	// Message is the body text.
	Message string
	// Key de-duplicates notifications for the same alert within a
	// notifier's cooldown window.
	Key string
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the process log. It is the fallback
// used when no push channel is configured.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, n Notification) error {
	logger.Warnf("ALERT %s: %s", n.Title, n.Message)
	return nil
}

// Multi fans a notification out to several notifiers. Errors are logged, not
// returned: notification delivery is best effort everywhere it is used.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			logger.Warnf("notify: delivery failed: %v", err)
		}
	}
	return nil
}
