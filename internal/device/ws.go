package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

// wsMessage is the JSON frame exchanged with the wireless bridge. The bridge
// fronts the actuator's serial link; framing and retransmission below this
// level are its problem, not ours.
type wsMessage struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Device string `json:"device,omitempty"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

const (
	msgDiscover = "discover"
	msgDevice   = "device"
	msgNotFound = "not-found"
	msgDenied   = "denied"
	msgAttach   = "attach"
	msgAttached = "attached"
	msgCommand  = "command"
)

// WSTransport talks to an actuator through a websocket bridge.
type WSTransport struct {
	// URL is the bridge websocket endpoint.
	URL string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// NewWSTransport creates a transport for the given bridge URL.
func NewWSTransport(url string) *WSTransport {
	return &WSTransport{URL: url}
}

func (t *WSTransport) dialer() *websocket.Dialer {
	if t.Dialer != nil {
		return t.Dialer
	}
	return websocket.DefaultDialer
}

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := t.dialer().DialContext(ctx, t.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(KindTransportUnavailable, "bridge dial timed out", err)
		}
		return nil, NewError(KindTransportUnavailable, fmt.Sprintf("bridge unreachable: %v", err), err)
	}
	return conn, nil
}

// Discover implements Transport. It asks the bridge for the device
// advertising filterName.
func (t *WSTransport) Discover(ctx context.Context, filterName string) (Handle, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return Handle{}, err
	}
	defer conn.Close()

	resp, err := roundTrip(ctx, conn, wsMessage{Type: msgDiscover, Name: filterName})
	if err != nil {
		return Handle{}, err
	}

	switch resp.Type {
	case msgDevice:
		return Handle{ID: resp.Device, Name: resp.Name}, nil
	case msgNotFound:
		return Handle{}, NewError(KindNotFound, fmt.Sprintf("no device named %q", filterName), nil)
	case msgDenied:
		return Handle{}, NewError(KindPermissionDenied, resp.Reason, nil)
	default:
		return Handle{}, NewError(KindTransportError, fmt.Sprintf("unexpected bridge reply %q", resp.Type), nil)
	}
}

// Connect implements Transport. It attaches to a discovered device and
// returns the live link.
func (t *WSTransport) Connect(ctx context.Context, handle Handle) (Link, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := roundTrip(ctx, conn, wsMessage{Type: msgAttach, Device: handle.ID})
	if err != nil {
		conn.Close()
		return nil, err
	}
	switch resp.Type {
	case msgAttached:
	case msgDenied:
		conn.Close()
		return nil, NewError(KindPermissionDenied, resp.Reason, nil)
	default:
		conn.Close()
		return nil, NewError(KindTransportError, fmt.Sprintf("unexpected bridge reply %q", resp.Type), nil)
	}

	link := &wsLink{conn: conn}
	go link.readPump()
	return link, nil
}

func roundTrip(ctx context.Context, conn *websocket.Conn, req wsMessage) (wsMessage, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}
	if err := conn.WriteJSON(req); err != nil {
		return wsMessage{}, NewError(KindTransportError, fmt.Sprintf("bridge write failed: %v", err), err)
	}
	var resp wsMessage
	if err := conn.ReadJSON(&resp); err != nil {
		if ctx.Err() != nil {
			return wsMessage{}, NewError(KindTransportUnavailable, "bridge reply timed out", err)
		}
		return wsMessage{}, NewError(KindTransportError, fmt.Sprintf("bridge read failed: %v", err), err)
	}
	return resp, nil
}

// wsLink is an attached bridge connection.
type wsLink struct {
	conn *websocket.Conn

	mu      sync.Mutex
	watch   func(reason string)
	closed  bool
	dropped bool
}

// Send implements Link. Accepted means the frame was written; the bridge
// gives no delivery confirmation.
func (l *wsLink) Send(code string) (bool, error) {
	raw, err := json.Marshal(wsMessage{Type: msgCommand, Code: code})
	if err != nil {
		return false, err
	}

	// Gorilla conns allow a single concurrent writer; the lock also covers
	// the write deadline so overlapping sends serialize here.
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.dropped {
		return false, NewError(KindTransportError, "link closed", nil)
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := l.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return false, NewError(KindTransportError, fmt.Sprintf("command write failed: %v", err), err)
	}
	return true, nil
}

// WatchDisconnect implements Link.
func (l *wsLink) WatchDisconnect(fn func(reason string)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watch = fn
	if l.dropped {
		// The pump already saw the link die; report it on the new watcher.
		go fn("connection lost")
	}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.watch = nil
	}
}

// Close implements Link. A local close never fires the disconnect watch.
func (l *wsLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.conn.Close()
}

// readPump drains inbound frames so websocket control messages are processed
// and a dropped link is noticed promptly.
func (l *wsLink) readPump() {
	_ = l.conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := l.conn.ReadMessage(); err != nil {
			l.mu.Lock()
			wasClosed := l.closed
			l.dropped = true
			watch := l.watch
			l.watch = nil
			l.mu.Unlock()

			if !wasClosed {
				logger.Debugf("device: bridge link dropped: %v", err)
				if watch != nil {
					watch("connection lost")
				}
			}
			return
		}
	}
}
