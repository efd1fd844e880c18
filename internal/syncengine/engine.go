// Package syncengine keeps one observer's view of the activity, log and alert
// feeds current across processes.
//
// Two wake-up sources drive it: a fixed-interval poll of the remote store,
// armed only for admin sessions, and the shared marker files, watched for all
// sessions. Either way the engine re-fetches, merges by record identity, and
// publishes a fresh immutable View. Only emergency alerts that were not in
// the previous view trigger a notification.
package syncengine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/luchaneitor/tecnoacceso-web/internal/gateway"
	"github.com/luchaneitor/tecnoacceso-web/internal/ledger"
	"github.com/luchaneitor/tecnoacceso-web/internal/marker"
	"github.com/luchaneitor/tecnoacceso-web/internal/notify"
	"github.com/luchaneitor/tecnoacceso-web/internal/operator"
	"github.com/luchaneitor/tecnoacceso-web/internal/records"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultFetchTimeout = 10 * time.Second
)

// View is an immutable snapshot of the feeds as of one refresh. Slices are
// newest first and must not be mutated by the receiver.
type View struct {
	Activities []records.Activity
	Logs       []records.Log
	Alerts     []records.Alert
	// Unread counts alerts not yet acknowledged.
	Unread int
	// RefreshedAt is when this view was assembled.
	RefreshedAt time.Time
}

// Config wires an Engine.
type Config struct {
	// Session decides what this observer may fetch. Non-admin sessions never
	// touch the remote activity or log feeds.
	Session operator.Context
	// Ledger is the local record cache. Required.
	Ledger *ledger.Ledger
	// Gateway is the remote store. nil means local-only operation.
	Gateway gateway.Gateway
	// Markers is the shared wake-up channel. nil disables marker wake-ups.
	Markers *marker.Store
	// Notifier receives emergency alerts. nil disables notifications.
	Notifier notify.Notifier
	// PollInterval is the admin poll cadence. Defaults to 3s.
	PollInterval time.Duration
	// FetchTimeout bounds one remote refresh. Defaults to 10s.
	FetchTimeout time.Duration
}

// Engine merges local and remote feeds into a live View.
type Engine struct {
	cfg Config

	mu   sync.Mutex
	view View
	// seenAlerts holds the identity keys of alerts already surfaced, so a
	// record observed twice notifies at most once.
	seenAlerts map[string]struct{}
	started    bool

	updates chan View
	kicks   chan marker.Kind

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds an engine. Call Start to begin refreshing.
func New(cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Engine{
		cfg:        cfg,
		seenAlerts: make(map[string]struct{}),
		updates:    make(chan View, 1),
		kicks:      make(chan marker.Kind, 16),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start performs the initial refresh and launches the wake-up loop. The
// first View is published before Start returns.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	// Existing alerts are seeded as seen so a restart does not re-notify
	// the whole backlog.
	e.refresh(ctx, true)

	var changes <-chan marker.Change
	if e.cfg.Markers != nil {
		ch, err := e.cfg.Markers.Watch(ctx)
		if err != nil {
			// The loop never runs on this path, so Stop must not wait on it.
			close(e.doneCh)
			return err
		}
		changes = ch
	}

	go e.loop(ctx, changes)
	return nil
}

// Stop shuts the wake-up loop down and waits for it to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh
}

// Updates delivers each published View, latest wins. Slow receivers only ever
// lag by one snapshot.
func (e *Engine) Updates() <-chan View { return e.updates }

// Current returns the most recently published View.
func (e *Engine) Current() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Kick forces a refresh outside the normal wake-up sources, e.g. right after
// a local write when the caller wants the view updated synchronously.
func (e *Engine) Kick() {
	select {
	case e.kicks <- "":
	default:
	}
}

// MarkRead acknowledges one alert by identity key. The local flip is
// immediate; the remote mirror is the ledger's best-effort append.
func (e *Engine) MarkRead(ctx context.Context, key string) bool {
	ok := e.cfg.Ledger.MarkAlertRead(key)
	e.refresh(ctx, false)
	return ok
}

// MarkAllRead acknowledges every unread alert.
func (e *Engine) MarkAllRead(ctx context.Context) int {
	n := e.cfg.Ledger.MarkAllAlertsRead()
	e.refresh(ctx, false)
	return n
}

func (e *Engine) loop(ctx context.Context, changes <-chan marker.Change) {
	defer close(e.doneCh)

	// Only admin sessions poll; operator sessions refresh solely on marker
	// wake-ups and explicit kicks.
	var tick <-chan time.Time
	if e.cfg.Session.IsAdmin() {
		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-tick:
			e.refresh(ctx, false)
		case <-e.kicks:
			e.refresh(ctx, false)
		case ch, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			// Our own stamps are already reflected in the local ledger, but
			// a refresh is still cheap and keeps one code path.
			logger.Tracef("syncengine: %s marker advanced (origin=%s)", ch.Kind, ch.Marker.Origin)
			e.refresh(ctx, false)
		}
	}
}

// refresh assembles a new View from the local ledger and, for admin
// sessions, the remote store, then publishes it.
func (e *Engine) refresh(ctx context.Context, seed bool) {
	activities := e.cfg.Ledger.Activities()
	logs := e.cfg.Ledger.Logs()
	alerts := e.cfg.Ledger.Alerts()

	// A view built without a failed alert fetch carries every alert this
	// observer can know about, so it is safe to prune dedup state against.
	alertsComplete := true

	if e.cfg.Session.IsAdmin() && e.cfg.Gateway != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()

		if remote, err := e.cfg.Gateway.ListActivity(fetchCtx); err != nil {
			logger.Warnf("syncengine: activity fetch failed, serving local view: %v", err)
		} else {
			activities = mergeActivities(activities, remote)
		}
		if remote, err := e.cfg.Gateway.ListLogs(fetchCtx); err != nil {
			logger.Warnf("syncengine: log fetch failed, serving local view: %v", err)
		} else {
			logs = mergeLogs(logs, remote)
		}
		if remote, err := e.cfg.Gateway.ListUnreadAlerts(fetchCtx); err != nil {
			logger.Warnf("syncengine: alert fetch failed, serving local view: %v", err)
			alertsComplete = false
		} else {
			alerts = mergeAlerts(alerts, remote)
		}
	} else {
		// The fetch decision point is the only gate: non-admin sessions
		// simply never see the global feeds.
		activities = nil
		logs = nil
	}

	view := View{
		Activities:  activities,
		Logs:        logs,
		Alerts:      alerts,
		RefreshedAt: time.Now(),
	}
	for _, a := range alerts {
		if !a.Read {
			view.Unread++
		}
	}

	e.mu.Lock()
	fresh := make([]records.Alert, 0)
	for _, a := range alerts {
		if _, ok := e.seenAlerts[a.Key()]; ok {
			continue
		}
		e.seenAlerts[a.Key()] = struct{}{}
		fresh = append(fresh, a)
	}
	if alertsComplete && len(e.seenAlerts) > len(alerts) {
		// Drop dedup keys for alerts that aged out of the capped feed, so a
		// long-lived observer does not accumulate every key ever seen.
		pruned := make(map[string]struct{}, len(alerts))
		for _, a := range alerts {
			if _, ok := e.seenAlerts[a.Key()]; ok {
				pruned[a.Key()] = struct{}{}
			}
		}
		e.seenAlerts = pruned
	}
	e.view = view
	e.mu.Unlock()

	if !seed && len(fresh) > 0 {
		// Off the wake-up loop: a slow notifier must not stall polling or
		// marker handling.
		go e.notifyEmergencies(ctx, fresh)
	}
	e.publish(view)
}

func (e *Engine) notifyEmergencies(ctx context.Context, fresh []records.Alert) {
	if e.cfg.Notifier == nil {
		return
	}
	for _, a := range fresh {
		if a.Kind != records.AlertEmergency {
			continue
		}
		n := notify.Notification{
			Title:   "Emergency alert",
			Message: a.Message,
			Key:     a.Key(),
		}
		if err := e.cfg.Notifier.Notify(ctx, n); err != nil {
			logger.Warnf("syncengine: emergency notification failed: %v", err)
		}
	}
}

func (e *Engine) publish(view View) {
	for {
		select {
		case e.updates <- view:
			return
		default:
		}
		select {
		case <-e.updates:
		default:
		}
	}
}

// mergeActivities unions local and remote records by identity key, newest
// first. Local copies win so an optimistic write keeps its fields until the
// remote echo replaces nothing.
func mergeActivities(local, remote []records.Activity) []records.Activity {
	seen := make(map[string]struct{}, len(local))
	out := make([]records.Activity, 0, len(local)+len(remote))
	for _, a := range local {
		seen[a.Key()] = struct{}{}
		out = append(out, a)
	}
	for _, a := range remote {
		if _, ok := seen[a.Key()]; ok {
			continue
		}
		seen[a.Key()] = struct{}{}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > ledger.ActivityCap {
		out = out[:ledger.ActivityCap]
	}
	return out
}

func mergeLogs(local, remote []records.Log) []records.Log {
	seen := make(map[string]struct{}, len(local))
	out := make([]records.Log, 0, len(local)+len(remote))
	for _, l := range local {
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	for _, l := range remote {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > ledger.LogCap {
		out = out[:ledger.LogCap]
	}
	return out
}

func mergeAlerts(local, remote []records.Alert) []records.Alert {
	seen := make(map[string]struct{}, len(local))
	out := make([]records.Alert, 0, len(local)+len(remote))
	for _, a := range local {
		seen[a.Key()] = struct{}{}
		out = append(out, a)
	}
	for _, a := range remote {
		if _, ok := seen[a.Key()]; ok {
			continue
		}
		seen[a.Key()] = struct{}{}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > ledger.AlertCap {
		out = out[:ledger.AlertCap]
	}
	return out
}
