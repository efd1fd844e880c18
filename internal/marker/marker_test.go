package marker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStampAdvancesSeq(t *testing.T) {
	store, err := NewStore(t.TempDir(), "tab-1")
	require.NoError(t, err)

	require.Zero(t, store.Read(KindActivity).Seq)

	require.NoError(t, store.Stamp(KindActivity))
	first := store.Read(KindActivity)
	require.Equal(t, int64(1), first.Seq)
	require.Equal(t, "tab-1", first.Origin)

	require.NoError(t, store.Stamp(KindActivity))
	require.Equal(t, int64(2), store.Read(KindActivity).Seq)

	// Kinds are independent.
	require.Zero(t, store.Read(KindAlert).Seq)
}

func TestReadCorruptMarkerIsZero(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "tab-1")
	require.NoError(t, err)

	require.NoError(t, store.Stamp(KindLog))
	path := store.path(KindLog)
	require.NoError(t, writeFile(path, "{not json"))

	require.Zero(t, store.Read(KindLog).Seq)
}

func TestWatchSeesForeignStamp(t *testing.T) {
	dir := t.TempDir()
	observer, err := NewStore(dir, "tab-observer")
	require.NoError(t, err)
	writer, err := NewStore(dir, "tab-writer")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := observer.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, writer.Stamp(KindAlert))

	select {
	case ch := <-changes:
		require.Equal(t, KindAlert, ch.Kind)
		require.Equal(t, int64(1), ch.Marker.Seq)
		require.Equal(t, "tab-writer", ch.Marker.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for marker change")
	}
}

func TestWatchImmediateStampIsNotLost(t *testing.T) {
	// Stamping right after Watch returns must always wake the watcher; the
	// dedup baseline is fixed before Watch hands control back, so a stamp in
	// that window can never be mistaken for already-seen. Iterate to cover
	// the startup window repeatedly.
	for i := 0; i < 20; i++ {
		dir := t.TempDir()
		observer, err := NewStore(dir, "tab-observer")
		require.NoError(t, err)
		writer, err := NewStore(dir, "tab-writer")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		changes, err := observer.Watch(ctx)
		require.NoError(t, err)

		require.NoError(t, writer.Stamp(KindLog))

		select {
		case ch := <-changes:
			require.Equal(t, KindLog, ch.Kind)
			require.Equal(t, int64(1), ch.Marker.Seq)
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: stamp after Watch was lost", i)
		}
		cancel()
	}
}

func TestWatchDedupsBySeq(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "tab-1")
	require.NoError(t, err)
	require.NoError(t, store.Stamp(KindActivity))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The watcher primes on the current seq; rewriting the same content must
	// stay silent.
	changes, err := store.Watch(ctx)
	require.NoError(t, err)

	raw := `{"seq":1,"updatedAtMs":1,"origin":"tab-1"}`
	require.NoError(t, writeFile(store.path(KindActivity), raw))

	select {
	case ch := <-changes:
		t.Fatalf("unexpected change: %+v", ch)
	case <-time.After(200 * time.Millisecond):
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
