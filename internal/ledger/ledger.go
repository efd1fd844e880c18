// Package ledger is the process-local cache of activity, log, and alert
// records.
//
// The ledger is optimistic and authoritative for this process's own UI: every
// write lands in the capped in-memory cache (and its on-disk snapshot) first,
// then is appended to the remote store best effort. A gateway failure is
// logged, never rolled back. The ledger also stamps the shared markers so
// co-resident panel processes wake up immediately.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luchaneitor/tecnoacceso-web/internal/gateway"
	"github.com/luchaneitor/tecnoacceso-web/internal/marker"
	"github.com/luchaneitor/tecnoacceso-web/internal/records"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

// Hard caps per record kind. Insertion is newest-first; overflow drops the
// oldest entries silently.
const (
	ActivityCap = 50
	LogCap      = 30
	AlertCap    = 20
)

const defaultAppendTimeout = 10 * time.Second

// Config controls a Ledger.
type Config struct {
	// Dir is where cache snapshots are persisted. Empty disables persistence.
	Dir string
	// Gateway receives best-effort remote appends. Nil disables them.
	Gateway gateway.Gateway
	// Markers is stamped after each local write. Nil disables stamping.
	Markers *marker.Store
	// AppendTimeout bounds each remote append. Zero means a 10s default.
	AppendTimeout time.Duration
}

// Ledger owns the capped record collections for one panel process.
type Ledger struct {
	cfg Config

	mu         sync.Mutex
	activities []records.Activity
	logs       []records.Log
	alerts     []records.Alert

	pending sync.WaitGroup
}

// New creates a ledger, loading any persisted cache snapshots from cfg.Dir.
func New(cfg Config) (*Ledger, error) {
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = defaultAppendTimeout
	}
	l := &Ledger{cfg: cfg}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create ledger dir: %w", err)
		}
		l.load()
	}
	return l, nil
}

// RecordActivity caches one activity and schedules its remote append.
// Missing ID and Timestamp are filled in.
func (l *Ledger) RecordActivity(a records.Activity) records.Activity {
	a = fillActivity(a)

	l.mu.Lock()
	l.activities = insertCapped(l.activities, a, ActivityCap)
	l.mu.Unlock()

	l.persist(marker.KindActivity)
	l.stamp(marker.KindActivity)
	l.appendRemote("activity", func(ctx context.Context) error {
		_, err := l.cfg.Gateway.AppendActivity(ctx, a)
		return err
	})
	return a
}

// RecordLog caches one log entry and schedules its remote append.
func (l *Ledger) RecordLog(entry records.Log) records.Log {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	l.logs = insertCapped(l.logs, entry, LogCap)
	l.mu.Unlock()

	l.persist(marker.KindLog)
	l.stamp(marker.KindLog)
	l.appendRemote("log", func(ctx context.Context) error {
		_, err := l.cfg.Gateway.AppendLog(ctx, entry)
		return err
	})
	return entry
}

// RecordAlert caches one alert and schedules its remote append. An empty
// message is rejected before anything is written.
func (l *Ledger) RecordAlert(a records.Alert) (records.Alert, error) {
	if strings.TrimSpace(a.Message) == "" {
		return records.Alert{}, gateway.ErrEmptyMessage
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if a.Kind == "" {
		a.Kind = records.AlertInfo
	}
	if a.Priority == "" {
		a.Priority = records.PriorityMedium
	}

	l.mu.Lock()
	l.alerts = insertCapped(l.alerts, a, AlertCap)
	l.mu.Unlock()

	l.persist(marker.KindAlert)
	l.stamp(marker.KindAlert)
	l.appendRemote("alert", func(ctx context.Context) error {
		_, err := l.cfg.Gateway.AppendAlert(ctx, a)
		return err
	})
	return a, nil
}

// Activities returns a snapshot of the cached activities, newest first.
func (l *Ledger) Activities() []records.Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]records.Activity(nil), l.activities...)
}

// Logs returns a snapshot of the cached log entries, newest first.
func (l *Ledger) Logs() []records.Log {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]records.Log(nil), l.logs...)
}

// Alerts returns a snapshot of the cached alerts, newest first.
func (l *Ledger) Alerts() []records.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]records.Alert(nil), l.alerts...)
}

// MarkAlertRead flips the read flag of the alert with the given identity key.
// The transition is one-way. The local mutation happens first; the remote
// acknowledgement follows best effort.
func (l *Ledger) MarkAlertRead(key string) bool {
	var acked *records.Alert
	l.mu.Lock()
	for i := range l.alerts {
		if l.alerts[i].Key() == key && !l.alerts[i].Read {
			l.alerts[i].Read = true
			a := l.alerts[i]
			acked = &a
			break
		}
	}
	l.mu.Unlock()
	if acked == nil {
		return false
	}

	l.persist(marker.KindAlert)
	l.stamp(marker.KindAlert)
	id := acked.ID
	l.appendRemote("alert-ack", func(ctx context.Context) error {
		return l.cfg.Gateway.AcknowledgeAlert(ctx, id)
	})
	return true
}

// MarkAllAlertsRead flips every cached unread alert to read and returns how
// many changed.
func (l *Ledger) MarkAllAlertsRead() int {
	var acked []records.Alert
	l.mu.Lock()
	for i := range l.alerts {
		if !l.alerts[i].Read {
			l.alerts[i].Read = true
			acked = append(acked, l.alerts[i])
		}
	}
	l.mu.Unlock()
	if len(acked) == 0 {
		return 0
	}

	l.persist(marker.KindAlert)
	l.stamp(marker.KindAlert)
	for _, a := range acked {
		id := a.ID
		l.appendRemote("alert-ack", func(ctx context.Context) error {
			return l.cfg.Gateway.AcknowledgeAlert(ctx, id)
		})
	}
	return len(acked)
}

// Flush waits for outstanding remote appends. Used on shutdown and in tests.
func (l *Ledger) Flush() {
	l.pending.Wait()
}

func fillActivity(a records.Activity) records.Activity {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	return a
}

// insertCapped inserts newest-first and drops overflow from the tail.
func insertCapped[T any](items []T, item T, limit int) []T {
	items = append([]T{item}, items...)
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (l *Ledger) appendRemote(what string, fn func(ctx context.Context) error) {
	if l.cfg.Gateway == nil {
		return
	}
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.AppendTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			// Local cache already holds the record; the remote copy catches
			// up on a later poll cycle or not at all.
			logger.Warnf("ledger: remote %s append failed: %v", what, err)
		}
	}()
}

func (l *Ledger) stamp(kind marker.Kind) {
	if l.cfg.Markers == nil {
		return
	}
	if err := l.cfg.Markers.Stamp(kind); err != nil {
		logger.Warnf("ledger: marker stamp %s failed: %v", kind, err)
	}
}

// persist snapshots one kind to disk with the tmp+rename pattern.
func (l *Ledger) persist(kind marker.Kind) {
	if l.cfg.Dir == "" {
		return
	}

	l.mu.Lock()
	var payload any
	switch kind {
	case marker.KindActivity:
		payload = l.activities
	case marker.KindLog:
		payload = l.logs
	case marker.KindAlert:
		payload = l.alerts
	}
	raw, err := json.Marshal(payload)
	l.mu.Unlock()
	if err != nil {
		logger.Warnf("ledger: snapshot %s encode failed: %v", kind, err)
		return
	}

	path := l.snapshotPath(kind)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		logger.Warnf("ledger: snapshot %s write failed: %v", kind, err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Warnf("ledger: snapshot %s rename failed: %v", kind, err)
	}
}

// load restores cache snapshots. Corrupt snapshots read as empty.
func (l *Ledger) load() {
	loadSnapshot(l.snapshotPath(marker.KindActivity), &l.activities)
	loadSnapshot(l.snapshotPath(marker.KindLog), &l.logs)
	loadSnapshot(l.snapshotPath(marker.KindAlert), &l.alerts)
}

func (l *Ledger) snapshotPath(kind marker.Kind) string {
	return filepath.Join(l.cfg.Dir, string(kind)+".json")
}

func loadSnapshot[T any](path string, into *[]T) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("ledger: snapshot read failed: %v", err)
		}
		return
	}
	if err := json.Unmarshal(data, into); err != nil {
		logger.Warnf("ledger: corrupt snapshot %s, starting empty: %v", filepath.Base(path), err)
		*into = nil
	}
}
