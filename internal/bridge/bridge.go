// Package bridge implements the wireless bridge endpoint the panel's device
// transport dials. It simulates the actuator: one advertised device, attach
// semantics, and a command sink. The real deployment swaps this for the
// hardware bridge speaking the same frames.
package bridge

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// message is the JSON frame exchanged with panel clients. It mirrors the
// transport's frame type on the other side of the socket.
type message struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Device string `json:"device,omitempty"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Simulator is a single-device bridge.
type Simulator struct {
	// DeviceID is the stable id returned on discovery.
	DeviceID string
	// DeviceName is the advertised name. Discovery matches on it.
	DeviceName string
	// DenyReason, when non-empty, refuses every discover and attach with a
	// permission error. Used to exercise the denied path end to end.
	DenyReason string

	mu       sync.Mutex
	commands []string
	attached map[*websocket.Conn]struct{}
}

// NewSimulator creates a bridge advertising one device.
func NewSimulator(deviceID, deviceName string) *Simulator {
	return &Simulator{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		attached:   make(map[*websocket.Conn]struct{}),
	}
}

// Commands returns every command code received so far, oldest first.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// DropAll closes every attached connection, simulating the actuator powering
// off mid-session.
func (s *Simulator) DropAll() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.attached))
	for conn := range s.attached {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// Handle serves one bridge connection.
func (s *Simulator) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("bridge: upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	defer func() {
		s.mu.Lock()
		delete(s.attached, conn)
		s.mu.Unlock()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warnf("bridge: bad frame: %v", err)
			continue
		}

		switch msg.Type {
		case "discover":
			s.reply(conn, s.discover(msg))
		case "attach":
			s.reply(conn, s.attach(conn, msg))
		case "command":
			s.mu.Lock()
			_, ok := s.attached[conn]
			if ok {
				s.commands = append(s.commands, msg.Code)
			}
			s.mu.Unlock()
			if !ok {
				logger.Warnf("bridge: command %q from unattached connection", msg.Code)
			} else {
				logger.Infof("bridge: command %q", msg.Code)
			}
		default:
			logger.Warnf("bridge: unknown frame type %q", msg.Type)
		}
	}
}

func (s *Simulator) discover(msg message) message {
	if s.DenyReason != "" {
		return message{Type: "denied", Reason: s.DenyReason}
	}
	if msg.Name != "" && msg.Name != s.DeviceName {
		return message{Type: "not-found"}
	}
	return message{Type: "device", Device: s.DeviceID, Name: s.DeviceName}
}

func (s *Simulator) attach(conn *websocket.Conn, msg message) message {
	if s.DenyReason != "" {
		return message{Type: "denied", Reason: s.DenyReason}
	}
	if msg.Device != s.DeviceID {
		return message{Type: "denied", Reason: "unknown device"}
	}
	s.mu.Lock()
	s.attached[conn] = struct{}{}
	s.mu.Unlock()
	return message{Type: "attached", Device: s.DeviceID}
}

func (s *Simulator) reply(conn *websocket.Conn, msg message) {
	if err := conn.WriteJSON(msg); err != nil {
		logger.Warnf("bridge: reply failed: %v", err)
	}
}
