package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	mu     sync.Mutex
	sent   []string
	watch  func(reason string)
	closed bool
}

func (l *fakeLink) Send(code string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, NewError(KindTransportError, "link closed", nil)
	}
	l.sent = append(l.sent, code)
	return true, nil
}

func (l *fakeLink) WatchDisconnect(fn func(reason string)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watch = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.watch = nil
	}
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) drop(reason string) {
	l.mu.Lock()
	watch := l.watch
	l.mu.Unlock()
	if watch != nil {
		watch(reason)
	}
}

func (l *fakeLink) sentCodes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sent...)
}

type fakeTransport struct {
	discover func(ctx context.Context, name string) (Handle, error)
	connect  func(ctx context.Context, handle Handle) (Link, error)
}

func (t *fakeTransport) Discover(ctx context.Context, name string) (Handle, error) {
	return t.discover(ctx, name)
}

func (t *fakeTransport) Connect(ctx context.Context, handle Handle) (Link, error) {
	return t.connect(ctx, handle)
}

func happyTransport(link *fakeLink) *fakeTransport {
	return &fakeTransport{
		discover: func(ctx context.Context, name string) (Handle, error) {
			return Handle{ID: "dev-1", Name: name}, nil
		},
		connect: func(ctx context.Context, handle Handle) (Link, error) {
			return link, nil
		},
	}
}

func startSession(t *testing.T, transport Transport) *Session {
	t.Helper()
	s := New(Config{Transport: transport, FilterName: "TecnoAcceso", ConnectTimeout: 2 * time.Second})
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func waitEvent(t *testing.T, s *Session, typ EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func TestConnectHappyPath(t *testing.T) {
	link := &fakeLink{}
	s := startSession(t, happyTransport(link))

	require.NoError(t, s.Connect(context.Background()))

	st := s.Status()
	require.Equal(t, StateConnected, st.State)
	require.Equal(t, "dev-1", st.Handle.ID)
	require.Nil(t, st.LastError)

	waitEvent(t, s, EventDiscoveryStarted)
	found := waitEvent(t, s, EventDeviceFound)
	require.Equal(t, "TecnoAcceso", found.Handle.Name)
	waitEvent(t, s, EventConnected)
}

func TestSendFailsFastWhenNotConnected(t *testing.T) {
	s := startSession(t, happyTransport(&fakeLink{}))

	accepted, err := s.SendCommand("A")
	require.False(t, accepted)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSendCommandWhileConnected(t *testing.T) {
	link := &fakeLink{}
	s := startSession(t, happyTransport(link))
	require.NoError(t, s.Connect(context.Background()))

	accepted, err := s.SendCommand("A")
	require.True(t, accepted)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		codes := link.sentCodes()
		return len(codes) == 1 && codes[0] == "A"
	}, time.Second, 10*time.Millisecond)
}

func TestPermissionDeniedFaultResolvesToIdle(t *testing.T) {
	transport := &fakeTransport{
		discover: func(ctx context.Context, name string) (Handle, error) {
			return Handle{}, NewError(KindPermissionDenied, "secure context required", nil)
		},
	}
	s := startSession(t, transport)

	err := s.Connect(context.Background())
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, KindPermissionDenied, derr.Kind)

	fault := waitEvent(t, s, EventFault)
	require.Equal(t, KindPermissionDenied, fault.Err.Kind)

	st := s.Status()
	require.Equal(t, StateIdle, st.State)
	require.NotNil(t, st.LastError)
	require.Equal(t, KindPermissionDenied, st.LastError.Kind)

	// Still fails fast after the fault.
	accepted, err := s.SendCommand("C")
	require.False(t, accepted)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestNotFoundFault(t *testing.T) {
	transport := &fakeTransport{
		discover: func(ctx context.Context, name string) (Handle, error) {
			return Handle{}, NewError(KindNotFound, "no such device", nil)
		},
	}
	s := startSession(t, transport)

	err := s.Connect(context.Background())
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, KindNotFound, derr.Kind)
	require.Equal(t, "Device not found", derr.StatusText())
}

func TestConnectClearsRetainedError(t *testing.T) {
	fail := true
	link := &fakeLink{}
	transport := &fakeTransport{
		discover: func(ctx context.Context, name string) (Handle, error) {
			if fail {
				return Handle{}, NewError(KindNotFound, "no such device", nil)
			}
			return Handle{ID: "dev-1", Name: name}, nil
		},
		connect: func(ctx context.Context, handle Handle) (Link, error) {
			return link, nil
		},
	}
	s := startSession(t, transport)

	require.Error(t, s.Connect(context.Background()))
	require.NotNil(t, s.Status().LastError)

	fail = false
	require.NoError(t, s.Connect(context.Background()))
	st := s.Status()
	require.Equal(t, StateConnected, st.State)
	require.Nil(t, st.LastError)
}

func TestUnsolicitedDisconnect(t *testing.T) {
	link := &fakeLink{}
	s := startSession(t, happyTransport(link))
	require.NoError(t, s.Connect(context.Background()))
	waitEvent(t, s, EventConnected)

	link.drop("gatt server disconnected")

	ev := waitEvent(t, s, EventDisconnected)
	require.Equal(t, "gatt server disconnected", ev.Reason)
	require.Equal(t, StateIdle, s.Status().State)
}

func TestExplicitDisconnect(t *testing.T) {
	link := &fakeLink{}
	s := startSession(t, happyTransport(link))
	require.NoError(t, s.Connect(context.Background()))
	waitEvent(t, s, EventConnected)

	s.Disconnect()

	ev := waitEvent(t, s, EventDisconnected)
	require.Equal(t, "requested", ev.Reason)
	require.Equal(t, StateIdle, s.Status().State)

	link.mu.Lock()
	closed := link.closed
	link.mu.Unlock()
	require.True(t, closed)
}

func TestDisconnectQueuedDuringConnect(t *testing.T) {
	link := &fakeLink{}
	release := make(chan struct{})
	transport := &fakeTransport{
		discover: func(ctx context.Context, name string) (Handle, error) {
			return Handle{ID: "dev-1", Name: name}, nil
		},
		connect: func(ctx context.Context, handle Handle) (Link, error) {
			<-release
			return link, nil
		},
	}
	s := startSession(t, transport)

	connectErr := make(chan error, 1)
	go func() { connectErr <- s.Connect(context.Background()) }()

	waitEvent(t, s, EventDeviceFound)
	s.Disconnect()
	close(release)

	require.NoError(t, <-connectErr)
	waitEvent(t, s, EventDisconnected)
	require.Equal(t, StateIdle, s.Status().State)

	link.mu.Lock()
	closed := link.closed
	link.mu.Unlock()
	require.True(t, closed)
}

func TestDiscoveryTimeoutIsTransportUnavailable(t *testing.T) {
	transport := &fakeTransport{
		discover: func(ctx context.Context, name string) (Handle, error) {
			<-ctx.Done()
			return Handle{}, ctx.Err()
		},
	}
	s := New(Config{Transport: transport, FilterName: "TecnoAcceso", ConnectTimeout: 50 * time.Millisecond})
	s.Start()
	t.Cleanup(s.Stop)

	err := s.Connect(context.Background())
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, KindTransportUnavailable, derr.Kind)
}

func TestConnectWhileConnectedIsBusy(t *testing.T) {
	link := &fakeLink{}
	s := startSession(t, happyTransport(link))
	require.NoError(t, s.Connect(context.Background()))

	require.ErrorIs(t, s.Connect(context.Background()), ErrBusy)
}
