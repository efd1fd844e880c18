// Package marker implements the shared "last updated" signal used to wake
// co-resident panel processes when a ledger changes.
//
// One marker exists per record kind. A marker is a versioned signal, not a
// data payload: writers bump it after appending a record, readers re-fetch
// the corresponding ledger when they observe a new version. Markers live as
// small JSON files in a shared directory so every panel process on the
// machine sees the same state.
package marker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

// Kind names the ledger a marker belongs to.
type Kind string

const (
	KindActivity Kind = "activity"
	KindLog      Kind = "log"
	KindAlert    Kind = "alert"
)

// Kinds lists every marker kind.
func Kinds() []Kind { return []Kind{KindActivity, KindLog, KindAlert} }

// Marker is the versioned signal payload.
//
// Seq increases on every stamp. Writers race read-modify-write across
// processes without a lock; a lost increment collapses two wake-ups into one,
// which is harmless because readers re-fetch the whole ledger either way.
type Marker struct {
	Seq         int64  `json:"seq"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
	Origin      string `json:"origin"`
}

// Change is delivered by Watch when a marker advances.
type Change struct {
	Kind   Kind
	Marker Marker
}

// Store reads and writes the markers of one shared directory.
type Store struct {
	dir    string
	origin string
}

// NewStore opens (and creates if needed) the marker directory. Origin
// identifies this process in stamps it writes, so observers can tell their
// own wake-ups apart from foreign ones.
func NewStore(dir string, origin string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create marker dir: %w", err)
	}
	return &Store{dir: dir, origin: origin}, nil
}

// Origin returns the identity this store stamps with.
func (s *Store) Origin() string { return s.origin }

func (s *Store) path(kind Kind) string {
	return filepath.Join(s.dir, string(kind)+".json")
}

// Read returns the current marker for kind. A missing or corrupt file reads
// as the zero marker.
func (s *Store) Read(kind Kind) Marker {
	data, err := os.ReadFile(s.path(kind))
	if err != nil {
		return Marker{}
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Warnf("marker: corrupt %s marker, treating as empty: %v", kind, err)
		return Marker{}
	}
	return m
}

// Stamp advances the marker for kind. The write is atomic (tmp + rename) so
// watchers never observe a partial file.
func (s *Store) Stamp(kind Kind) error {
	next := Marker{
		Seq:         s.Read(kind).Seq + 1,
		UpdatedAtMs: time.Now().UnixMilli(),
		Origin:      s.origin,
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	path := s.path(kind)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return os.Rename(tmp, path)
}

// Watch streams marker advances until ctx is done. Each kind is deduplicated
// by Seq, so rewrites of an unchanged marker are silent. Changes stamped by
// this store's own origin are included; callers that only care about foreign
// writes filter on Change.Marker.Origin.
func (s *Store) Watch(ctx context.Context) (<-chan Change, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create marker watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch marker dir: %w", err)
	}

	// Prime the baseline before Watch returns. A stamp landing after this
	// point is newer than the baseline, so its event cannot be deduplicated
	// away even if it races the goroutine startup.
	lastSeen := make(map[Kind]int64)
	for _, kind := range Kinds() {
		lastSeen[kind] = s.Read(kind).Seq
	}

	changes := make(chan Change, 16)
	go func() {
		defer watcher.Close()
		defer close(changes)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
					continue
				}
				kind, ok := kindFromFilename(filepath.Base(ev.Name))
				if !ok {
					continue
				}
				m := s.Read(kind)
				if m.Seq <= lastSeen[kind] {
					continue
				}
				lastSeen[kind] = m.Seq
				select {
				case changes <- Change{Kind: kind, Marker: m}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("marker: watch error: %v", err)
			}
		}
	}()
	return changes, nil
}

func kindFromFilename(name string) (Kind, bool) {
	for _, kind := range Kinds() {
		if name == string(kind)+".json" {
			return kind, true
		}
	}
	return "", false
}
