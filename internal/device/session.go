// Package device owns the connection state machine for a single actuator.
//
// A Session is a single-goroutine event loop: callers submit requests, the
// loop owns all connection state, and observers consume state-change events.
// Transitions are strictly sequential; no two connect attempts ever interleave
// on one session.
package device

import (
	"context"
	"time"

	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

const (
	defaultConnectTimeout = 15 * time.Second
	defaultQueueSize      = 64
)

// Config controls a Session instance.
type Config struct {
	// Transport is the wireless link implementation. Required.
	Transport Transport
	// FilterName is the advertised device name discovery filters on.
	FilterName string
	// ConnectTimeout bounds discovery plus handshake for one attempt.
	// If zero, a default of 15s is used.
	ConnectTimeout time.Duration
	// QueueSize bounds the request and event queues. If zero, a default is used.
	QueueSize int
}

// Session manages the connection lifecycle for one actuator.
type Session struct {
	cfg Config

	requests chan input
	events   chan Event
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Status is a snapshot of session state.
type Status struct {
	State  State
	Handle Handle
	// LastError is the classification of the most recent fault. It is
	// retained until the next connect attempt begins.
	LastError *Error
}

// input is a request or transport observation handled by the session loop.
type input interface{ isSessionInput() }

type reqConnect struct {
	reply chan error
}

type reqDisconnect struct {
	reply chan struct{}
}

type reqSend struct {
	code  string
	reply chan sendResult
}

type sendResult struct {
	accepted bool
	err      error
}

type reqStatus struct {
	reply chan Status
}

// Attempt observations carry the generation of the attempt that produced
// them so stale results from superseded attempts are ignored.
type evHandleFound struct {
	gen    int64
	handle Handle
}

type evLinkUp struct {
	gen  int64
	link Link
}

type evAttemptFailed struct {
	gen int64
	err error
}

type evLinkDown struct {
	gen    int64
	reason string
}

func (reqConnect) isSessionInput()    {}
func (reqDisconnect) isSessionInput() {}
func (reqSend) isSessionInput()       {}
func (reqStatus) isSessionInput()     {}
func (evHandleFound) isSessionInput() {}
func (evLinkUp) isSessionInput()      {}
func (evAttemptFailed) isSessionInput() {}
func (evLinkDown) isSessionInput()    {}

// loopState is the state owned exclusively by the session goroutine.
type loopState struct {
	state             State
	handle            Handle
	link              Link
	watchCancel       func()
	lastErr           *Error
	gen               int64
	pendingDisconnect bool
	connectReply      chan error
}

// New creates a session. Start must be called before use.
func New(cfg Config) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Session{
		cfg:      cfg,
		requests: make(chan input, queueSize),
		events:   make(chan Event, queueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the session loop in a new goroutine.
func (s *Session) Start() {
	go s.loop()
}

// Stop tears the session down and waits for the loop to exit. Any open link
// is closed.
func (s *Session) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

// Events returns the session event stream. Events are dropped if the
// consumer falls behind.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Connect runs one discovery plus handshake attempt and blocks until the
// session is Connected or the attempt faulted. It clears the retained
// lastError from any previous fault.
//
// Connect returns ErrBusy when called while another attempt is in flight or a
// connection already exists.
func (s *Session) Connect(ctx context.Context) error {
	reply := make(chan error, 1)
	if !s.post(reqConnect{reply: reply}) {
		return ErrBusy
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		// The attempt keeps running; its outcome surfaces as events. The
		// caller just stops waiting.
		return ctx.Err()
	}
}

// Disconnect requests an orderly teardown. While an attempt is in flight the
// disconnect is queued logically: the transport offers no abort primitive, so
// the session disconnects as soon as the attempt completes (or does nothing
// if the attempt fails). Disconnect never blocks on the transport.
func (s *Session) Disconnect() {
	reply := make(chan struct{}, 1)
	if !s.post(reqDisconnect{reply: reply}) {
		return
	}
	<-reply
}

// SendCommand submits one command code. It fails fast with ErrNotConnected
// unless the session is Connected; otherwise the write is fire-and-forget and
// accepted reports that the command was handed to the transport.
func (s *Session) SendCommand(code string) (accepted bool, err error) {
	reply := make(chan sendResult, 1)
	if !s.post(reqSend{code: code, reply: reply}) {
		return false, ErrNotConnected
	}
	res := <-reply
	return res.accepted, res.err
}

// Status returns a snapshot of the current session state.
func (s *Session) Status() Status {
	reply := make(chan Status, 1)
	if !s.post(reqStatus{reply: reply}) {
		return Status{State: StateIdle}
	}
	return <-reply
}

func (s *Session) post(in input) bool {
	select {
	case <-s.stopCh:
		return false
	default:
	}
	select {
	case s.requests <- in:
		return true
	case <-s.stopCh:
		return false
	}
}

func (s *Session) emit(ev Event) {
	ev.At = time.Now()
	select {
	case s.events <- ev:
	default:
		logger.Tracef("device: dropping event %s (slow consumer)", ev.Type)
	}
}

func (s *Session) loop() {
	defer close(s.doneCh)

	st := &loopState{state: StateIdle}
	defer s.cleanup(st)

	for {
		select {
		case <-s.stopCh:
			return
		case in := <-s.requests:
			s.apply(st, in)
		}
	}
}

func (s *Session) apply(st *loopState, in input) {
	switch in := in.(type) {
	case reqConnect:
		s.applyConnect(st, in)
	case reqDisconnect:
		s.applyDisconnect(st)
		in.reply <- struct{}{}
	case reqSend:
		s.applySend(st, in)
	case reqStatus:
		in.reply <- Status{State: st.state, Handle: st.handle, LastError: st.lastErr}
	case evHandleFound:
		if in.gen != st.gen || st.state != StateDiscovering {
			return
		}
		st.handle = in.handle
		st.state = StateConnecting
		s.emit(Event{Type: EventDeviceFound, State: st.state, Handle: st.handle})
	case evLinkUp:
		s.applyLinkUp(st, in)
	case evAttemptFailed:
		if in.gen != st.gen || (st.state != StateDiscovering && st.state != StateConnecting) {
			return
		}
		s.applyFault(st, Classify(in.err))
	case evLinkDown:
		if in.gen != st.gen || st.state != StateConnected {
			return
		}
		logger.Warnf("device: link dropped: %s", in.reason)
		s.teardown(st, in.reason)
	}
}

func (s *Session) applyConnect(st *loopState, in reqConnect) {
	if st.state != StateIdle {
		in.reply <- ErrBusy
		return
	}

	// A fresh attempt clears the fault retained from the previous one.
	st.lastErr = nil
	st.pendingDisconnect = false
	st.gen++
	st.state = StateDiscovering
	st.connectReply = in.reply
	s.emit(Event{Type: EventDiscoveryStarted, State: st.state})

	go s.attempt(st.gen)
}

// attempt runs discovery and handshake off the loop goroutine, reporting
// progress back as generation-stamped observations.
func (s *Session) attempt(gen int64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	handle, err := s.cfg.Transport.Discover(ctx, s.cfg.FilterName)
	if err != nil {
		s.post(evAttemptFailed{gen: gen, err: err})
		return
	}
	s.post(evHandleFound{gen: gen, handle: handle})

	link, err := s.cfg.Transport.Connect(ctx, handle)
	if err != nil {
		s.post(evAttemptFailed{gen: gen, err: err})
		return
	}
	if !s.post(evLinkUp{gen: gen, link: link}) {
		_ = link.Close()
	}
}

func (s *Session) applyLinkUp(st *loopState, in evLinkUp) {
	if in.gen != st.gen || st.state != StateConnecting {
		// Superseded attempt; the link has no owner, close it.
		_ = in.link.Close()
		return
	}

	if st.pendingDisconnect {
		// A disconnect was queued during the attempt: honor it now that the
		// transport handed us something to tear down.
		st.pendingDisconnect = false
		_ = in.link.Close()
		st.state = StateIdle
		st.handle = Handle{}
		s.replyConnect(st, nil)
		s.emit(Event{Type: EventDisconnected, State: st.state, Reason: "requested"})
		return
	}

	st.link = in.link
	st.state = StateConnected
	gen := st.gen
	st.watchCancel = in.link.WatchDisconnect(func(reason string) {
		s.post(evLinkDown{gen: gen, reason: reason})
	})
	s.replyConnect(st, nil)
	s.emit(Event{Type: EventConnected, State: st.state, Handle: st.handle})
}

func (s *Session) applyDisconnect(st *loopState) {
	switch st.state {
	case StateConnected:
		s.teardown(st, "requested")
	case StateDiscovering, StateConnecting:
		st.pendingDisconnect = true
	default:
		// Idle: nothing to do.
	}
}

func (s *Session) applySend(st *loopState, in reqSend) {
	if st.state != StateConnected || st.link == nil {
		in.reply <- sendResult{accepted: false, err: ErrNotConnected}
		return
	}

	link := st.link
	code := in.code
	in.reply <- sendResult{accepted: true}

	// Best-effort channel: the write happens off the loop and failures are
	// logged, not surfaced. A broken link is detected by the disconnect watch.
	go func() {
		if accepted, err := link.Send(code); err != nil {
			logger.Warnf("device: send %q failed: %v", code, err)
		} else if !accepted {
			logger.Warnf("device: send %q rejected by transport", code)
		}
	}()
}

// applyFault reports a classified failure and settles the session back to
// Idle. The fault is not sticky; only lastErr retains it.
func (s *Session) applyFault(st *loopState, derr *Error) {
	st.lastErr = derr
	st.state = StateFaulted
	st.handle = Handle{}
	s.emit(Event{Type: EventFault, State: st.state, Err: derr})
	st.state = StateIdle
	st.pendingDisconnect = false
	s.replyConnect(st, derr)
}

// teardown is the single cleanup path shared by explicit disconnects and
// unsolicited link drops.
func (s *Session) teardown(st *loopState, reason string) {
	st.state = StateDisconnecting
	if st.watchCancel != nil {
		st.watchCancel()
		st.watchCancel = nil
	}
	if st.link != nil {
		_ = st.link.Close()
		st.link = nil
	}
	st.handle = Handle{}
	st.state = StateIdle
	s.emit(Event{Type: EventDisconnected, State: st.state, Reason: reason})
}

func (s *Session) replyConnect(st *loopState, err error) {
	if st.connectReply == nil {
		return
	}
	select {
	case st.connectReply <- err:
	default:
	}
	st.connectReply = nil
}

func (s *Session) cleanup(st *loopState) {
	if st.watchCancel != nil {
		st.watchCancel()
		st.watchCancel = nil
	}
	if st.link != nil {
		_ = st.link.Close()
		st.link = nil
	}
	s.replyConnect(st, context.Canceled)
}
