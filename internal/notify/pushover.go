package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// pushoverEndpoint is the Pushover API endpoint used for message delivery.
	pushoverEndpoint = "https://api.pushover.net/1/messages.json"
	// pushoverContentType is the HTTP form content type required by Pushover.
	pushoverContentType = "application/x-www-form-urlencoded"
	// defaultPushoverTimeout is the HTTP timeout used for Pushover requests.
	defaultPushoverTimeout = 10 * time.Second
)

// PushoverConfig describes the credentials and defaults for Pushover delivery.
type PushoverConfig struct {
	// Token is the application API token.
	Token string
	// UserKey is the destination user key.
	UserKey string
	// Priority is the Pushover priority value for messages.
	Priority int
	// Cooldown is the minimum interval between notifications per key.
	Cooldown time.Duration
}

// Pushover sends emergency notifications to the Pushover service.
type Pushover struct {
	token    string
	userKey  string
	priority int
	cooldown time.Duration

	client *http.Client

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewPushover creates a notifier using the supplied config.
func NewPushover(cfg PushoverConfig) (*Pushover, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("pushover token is required")
	}
	if strings.TrimSpace(cfg.UserKey) == "" {
		return nil, fmt.Errorf("pushover user key is required")
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("pushover cooldown must be non-negative")
	}

	return &Pushover{
		token:    cfg.Token,
		userKey:  cfg.UserKey,
		priority: cfg.Priority,
		cooldown: cfg.Cooldown,
		client:   &http.Client{Timeout: defaultPushoverTimeout},
		lastSent: make(map[string]time.Time),
	}, nil
}

// Notify implements Notifier. Repeated notifications for the same key inside
// the cooldown window are dropped.
func (p *Pushover) Notify(ctx context.Context, n Notification) error {
	key := strings.TrimSpace(n.Key)
	if key == "" {
		return fmt.Errorf("notification key is required")
	}
	message := strings.TrimSpace(n.Message)
	if message == "" {
		return fmt.Errorf("notification message is required")
	}

	now := time.Now()
	if !p.shouldSend(key, now) {
		return nil
	}
	if err := p.send(ctx, n.Title, message); err != nil {
		return err
	}
	p.markSent(key, now)
	return nil
}

// shouldSend returns whether a notification is allowed under cooldown rules.
func (p *Pushover) shouldSend(key string, now time.Time) bool {
	if p.cooldown == 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSent[key]
	if !ok {
		return true
	}
	return now.Sub(last) >= p.cooldown
}

// markSent records a successful send time for a specific key.
func (p *Pushover) markSent(key string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSent[key] = now
}

// send performs the HTTP request to Pushover.
func (p *Pushover) send(ctx context.Context, title, message string) error {
	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.userKey)
	form.Set("message", message)
	if title = strings.TrimSpace(title); title != "" {
		form.Set("title", title)
	}
	if p.priority != 0 {
		form.Set("priority", fmt.Sprintf("%d", p.priority))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushoverEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover request build failed: %w", err)
	}
	req.Header.Set("Content-Type", pushoverContentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("pushover response read failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("pushover response %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
