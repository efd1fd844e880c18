package syncengine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luchaneitor/tecnoacceso-web/internal/ledger"
	"github.com/luchaneitor/tecnoacceso-web/internal/marker"
	"github.com/luchaneitor/tecnoacceso-web/internal/notify"
	"github.com/luchaneitor/tecnoacceso-web/internal/operator"
	"github.com/luchaneitor/tecnoacceso-web/internal/records"
)

type fakeGateway struct {
	mu         sync.Mutex
	activities []records.Activity
	logs       []records.Log
	alerts     []records.Alert
	listCalls  int
}

func (f *fakeGateway) AppendActivity(_ context.Context, a records.Activity) (string, error) {
	return a.ID, nil
}

func (f *fakeGateway) AppendLog(_ context.Context, l records.Log) (string, error) {
	return l.ID, nil
}

func (f *fakeGateway) AppendAlert(_ context.Context, a records.Alert) (string, error) {
	return a.ID, nil
}

func (f *fakeGateway) ListActivity(_ context.Context) ([]records.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]records.Activity(nil), f.activities...), nil
}

func (f *fakeGateway) ListLogs(_ context.Context) ([]records.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]records.Log(nil), f.logs...), nil
}

func (f *fakeGateway) ListUnreadAlerts(_ context.Context) ([]records.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]records.Alert(nil), f.alerts...), nil
}

func (f *fakeGateway) AcknowledgeAlert(_ context.Context, _ string) error { return nil }

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) notifications() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(ledger.Config{})
	require.NoError(t, err)
	return l
}

func adminSession() operator.Context {
	return operator.Context{OperatorID: "op-admin", Username: "admin", Role: operator.RoleAdmin}
}

func operatorSession() operator.Context {
	return operator.Context{OperatorID: "op-juan", Username: "juan", Role: operator.RoleOperator}
}

func startEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, e.Start(ctx))
	t.Cleanup(e.Stop)
	return e
}

func latest(t *testing.T, e *Engine) View {
	t.Helper()
	select {
	case v := <-e.Updates():
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for view")
		return View{}
	}
}

func TestAdminPollPicksUpRemoteEmergency(t *testing.T) {
	gw := &fakeGateway{}
	rec := &recordingNotifier{}
	e := startEngine(t, Config{
		Session:      adminSession(),
		Ledger:       newLedger(t),
		Gateway:      gw,
		Notifier:     rec,
		PollInterval: 20 * time.Millisecond,
	})

	// A foreign operator raises an emergency after the engine is running.
	gw.mu.Lock()
	gw.alerts = []records.Alert{{
		ID:        "al-1",
		Message:   "Emergency stop pressed",
		Kind:      records.AlertEmergency,
		Priority:  records.PriorityHigh,
		Operator:  "juan",
		Timestamp: time.Now(),
	}}
	gw.mu.Unlock()

	require.Eventually(t, func() bool {
		v := e.Current()
		return len(v.Alerts) == 1 && v.Unread == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(rec.notifications()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "Emergency stop pressed", rec.notifications()[0].Message)
}

func TestInfoAlertDoesNotNotify(t *testing.T) {
	gw := &fakeGateway{}
	rec := &recordingNotifier{}
	e := startEngine(t, Config{
		Session:      adminSession(),
		Ledger:       newLedger(t),
		Gateway:      gw,
		Notifier:     rec,
		PollInterval: 20 * time.Millisecond,
	})

	gw.mu.Lock()
	gw.alerts = []records.Alert{{
		ID: "al-1", Message: "connected", Kind: records.AlertInfo, Timestamp: time.Now(),
	}}
	gw.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(e.Current().Alerts) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Empty(t, rec.notifications())
}

func TestEmergencyNotifiesOnlyOnce(t *testing.T) {
	gw := &fakeGateway{}
	rec := &recordingNotifier{}
	e := startEngine(t, Config{
		Session:      adminSession(),
		Ledger:       newLedger(t),
		Gateway:      gw,
		Notifier:     rec,
		PollInterval: 10 * time.Millisecond,
	})

	gw.mu.Lock()
	gw.alerts = []records.Alert{{
		ID: "al-1", Message: "halt", Kind: records.AlertEmergency, Timestamp: time.Now(),
	}}
	gw.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(rec.notifications()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Several more polls observe the same record.
	start := gw.calls()
	require.Eventually(t, func() bool {
		return gw.calls() > start+3
	}, 2*time.Second, 5*time.Millisecond)
	require.Len(t, rec.notifications(), 1)
	require.Len(t, e.Current().Alerts, 1)
}

func TestSameTimestampIsSameRecord(t *testing.T) {
	gw := &fakeGateway{}
	lgr := newLedger(t)
	ts := time.Now()

	// Local optimistic write and its remote echo share a timestamp, so the
	// merged view must carry a single record.
	local, err := lgr.RecordAlert(records.Alert{
		Message: "halt", Kind: records.AlertEmergency, Timestamp: ts,
	})
	require.NoError(t, err)
	gw.mu.Lock()
	gw.alerts = []records.Alert{{
		ID: "server-id", Message: "halt", Kind: records.AlertEmergency, Timestamp: ts,
	}}
	gw.mu.Unlock()

	rec := &recordingNotifier{}
	e := startEngine(t, Config{
		Session:      adminSession(),
		Ledger:       lgr,
		Gateway:      gw,
		Notifier:     rec,
		PollInterval: 20 * time.Millisecond,
	})

	start := gw.calls()
	require.Eventually(t, func() bool {
		return gw.calls() > start
	}, 2*time.Second, 10*time.Millisecond)

	v := e.Current()
	require.Len(t, v.Alerts, 1)
	require.Equal(t, local.ID, v.Alerts[0].ID, "local copy wins the merge")
	require.Empty(t, rec.notifications(), "backlog present at start never notifies")
}

func TestOperatorSessionNeverFetchesFeeds(t *testing.T) {
	gw := &fakeGateway{}
	gw.activities = []records.Activity{{ID: "a1", Operator: "admin", Timestamp: time.Now()}}
	gw.logs = []records.Log{{ID: "l1", Action: "boot", Timestamp: time.Now()}}

	lgr := newLedger(t)
	lgr.RecordActivity(records.Activity{Operator: "juan", Action: "RAISE ELEVATOR"})

	e := startEngine(t, Config{
		Session:      operatorSession(),
		Ledger:       lgr,
		Gateway:      gw,
		PollInterval: 10 * time.Millisecond,
	})

	v := latest(t, e)
	require.Empty(t, v.Activities, "operator views carry no activity feed")
	require.Empty(t, v.Logs, "operator views carry no log feed")

	// No poll ticker is armed for operators either.
	time.Sleep(60 * time.Millisecond)
	require.Zero(t, gw.calls())
}

func TestMarkerWakeRefreshesOperatorView(t *testing.T) {
	dir := t.TempDir()
	ours, err := marker.NewStore(dir, "tab-a")
	require.NoError(t, err)
	theirs, err := marker.NewStore(dir, "tab-b")
	require.NoError(t, err)

	lgr := newLedger(t)
	e := startEngine(t, Config{
		Session: operatorSession(),
		Ledger:  lgr,
		Markers: ours,
	})
	before := e.Current().RefreshedAt

	_, err = lgr.RecordAlert(records.Alert{Message: "platform jam", Kind: records.AlertWarning})
	require.NoError(t, err)
	require.NoError(t, theirs.Stamp(marker.KindAlert))

	require.Eventually(t, func() bool {
		v := e.Current()
		return v.RefreshedAt.After(before) && len(v.Alerts) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopAfterFailedStartDoesNotHang(t *testing.T) {
	dir := t.TempDir()
	store, err := marker.NewStore(dir, "tab-a")
	require.NoError(t, err)
	// Removing the directory makes the marker watch fail on Start.
	require.NoError(t, os.RemoveAll(dir))

	e := New(Config{Session: operatorSession(), Ledger: newLedger(t), Markers: store})
	require.Error(t, e.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after failed Start")
	}
}

func TestSeenAlertKeysArePruned(t *testing.T) {
	gw := &fakeGateway{}
	e := startEngine(t, Config{
		Session:      adminSession(),
		Ledger:       newLedger(t),
		Gateway:      gw,
		PollInterval: 10 * time.Millisecond,
	})

	// Rotate several batches of alerts through the feed; dedup state must
	// follow the capped view instead of remembering every key ever seen.
	base := time.Now()
	for batch := 0; batch < 3; batch++ {
		alerts := make([]records.Alert, 0, 4)
		for i := 0; i < 4; i++ {
			alerts = append(alerts, records.Alert{
				ID:        fmt.Sprintf("al-%d-%d", batch, i),
				Message:   "note",
				Kind:      records.AlertInfo,
				Timestamp: base.Add(time.Duration(batch*4+i) * time.Second),
			})
		}
		gw.mu.Lock()
		gw.alerts = alerts
		gw.mu.Unlock()

		newest := alerts[3].ID
		require.Eventually(t, func() bool {
			v := e.Current()
			return len(v.Alerts) == 4 && v.Alerts[0].ID == newest
		}, 2*time.Second, 10*time.Millisecond)
	}

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.seenAlerts) == 4
	}, 2*time.Second, 10*time.Millisecond)
}

type blockingNotifier struct {
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func (b *blockingNotifier) Notify(_ context.Context, _ notify.Notification) error {
	b.enterOnce.Do(func() { close(b.entered) })
	<-b.release
	return nil
}

func TestSlowNotifierDoesNotStallPolling(t *testing.T) {
	gw := &fakeGateway{}
	bn := &blockingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	defer close(bn.release)

	startEngine(t, Config{
		Session:      adminSession(),
		Ledger:       newLedger(t),
		Gateway:      gw,
		Notifier:     bn,
		PollInterval: 10 * time.Millisecond,
	})

	gw.mu.Lock()
	gw.alerts = []records.Alert{{
		ID: "al-1", Message: "halt", Kind: records.AlertEmergency, Timestamp: time.Now(),
	}}
	gw.mu.Unlock()

	select {
	case <-bn.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier never invoked")
	}

	// Polls keep ticking while the notification is still in flight.
	start := gw.calls()
	require.Eventually(t, func() bool {
		return gw.calls() > start+3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMarkReadUpdatesUnreadCount(t *testing.T) {
	lgr := newLedger(t)
	a, err := lgr.RecordAlert(records.Alert{Message: "low battery", Kind: records.AlertWarning})
	require.NoError(t, err)

	e := startEngine(t, Config{Session: operatorSession(), Ledger: lgr})
	require.Equal(t, 1, e.Current().Unread)

	require.True(t, e.MarkRead(context.Background(), a.Key()))
	require.Equal(t, 0, e.Current().Unread)
	require.True(t, e.Current().Alerts[0].Read)

	// Acknowledgement is one-way.
	require.False(t, e.MarkRead(context.Background(), a.Key()))
}

func TestMarkAllRead(t *testing.T) {
	lgr := newLedger(t)
	for _, msg := range []string{"one", "two", "three"} {
		_, err := lgr.RecordAlert(records.Alert{Message: msg, Kind: records.AlertInfo})
		require.NoError(t, err)
	}

	e := startEngine(t, Config{Session: operatorSession(), Ledger: lgr})
	require.Equal(t, 3, e.Current().Unread)
	require.Equal(t, 3, e.MarkAllRead(context.Background()))
	require.Equal(t, 0, e.Current().Unread)
}
