// Package socket owns the duplex websocket for one conversation: dialing,
// keep-alive heartbeats, and autonomous reconnection with capped exponential
// backoff. An intentional close (conversation switch) never reconnects; an
// abnormal close schedules exactly one reconnect timer per attempt until the
// ceiling is reached, after which the failure is surfaced once and retrying
// stops until the user starts a new session.
package socket

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/lexhub/agentstream/internal/timers"
	"github.com/lexhub/agentstream/internal/wire"
)

// State is the connection lifecycle state.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Timer registry purposes owned by the supervisor.
const (
	PurposeReconnect = "reconnect"
	PurposeHeartbeat = "heartbeat"
)

const jitterMax = time.Second

// Conn is the minimal websocket surface the supervisor needs. *websocket.Conn
// satisfies it; tests substitute scripted connections.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a connection to the conversation endpoint.
type Dialer func(ctx context.Context, url string) (Conn, error)

// GorillaDialer adapts a gorilla websocket dialer.
func GorillaDialer(d *websocket.Dialer) Dialer {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return func(ctx context.Context, url string) (Conn, error) {
		conn, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Handler receives supervisor callbacks. HandleFrame is invoked from the read
// loop in arrival order for a given connection.
type Handler interface {
	HandleFrame(data []byte)
	// ConnectionLost fires once when reconnect attempts are exhausted.
	ConnectionLost(reason string)
}

// Options configures a Supervisor.
type Options struct {
	URL               string
	Dial              Dialer
	Handler           Handler
	Logger            *slog.Logger
	Timers            *timers.Registry
	MaxAttempts       int
	HeartbeatInterval time.Duration
	OpenWait          time.Duration

	// OnReconnect observes every scheduled reconnect attempt, for metrics
	// and tracing. Invoked outside the supervisor lock.
	OnReconnect func(attempt int, delay time.Duration)

	// onReconnectScheduled observes scheduled reconnects (tests only).
	onReconnectScheduled func(attempt int, delay time.Duration)
}

// Supervisor manages one conversation's connection.
type Supervisor struct {
	opts   Options
	logger *slog.Logger
	timers *timers.Registry

	mu          sync.Mutex
	conn        Conn
	state       State
	attempts    int
	intentional bool
	exhausted   bool
	gen         int
	ctx         context.Context
	backoff     *backoff.ExponentialBackOff
}

// NewSupervisor creates a supervisor. Connect must be called to establish the
// channel.
func NewSupervisor(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timers == nil {
		opts.Timers = timers.NewRegistry()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 25 * time.Second
	}
	if opts.OpenWait <= 0 {
		opts.OpenWait = 3 * time.Second
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	return &Supervisor{
		opts:    opts,
		logger:  opts.Logger,
		timers:  opts.Timers,
		state:   StateClosed,
		backoff: bo,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the reconnect attempt counter.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Connect establishes the channel asynchronously. The context bounds the
// lifetime of this connection and all its reconnect attempts.
func (s *Supervisor) Connect(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.intentional = false
	s.exhausted = false
	s.state = StateConnecting
	gen := s.gen
	s.mu.Unlock()

	go s.dial(ctx, gen)
}

func (s *Supervisor) dial(ctx context.Context, gen int) {
	conn, err := s.opts.Dial(ctx, s.opts.URL)

	s.mu.Lock()
	if gen != s.gen || s.intentional {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "Dial failed", "url", s.opts.URL, "error", err)
		s.onAbnormalClose(ctx, gen)
		return
	}

	s.conn = conn
	s.state = StateOpen
	s.attempts = 0
	s.backoff.Reset()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Connection open", "url", s.opts.URL)

	s.scheduleHeartbeat(gen)
	go s.readLoop(ctx, conn, gen)
}

func (s *Supervisor) readLoop(ctx context.Context, conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			stale := gen != s.gen
			intentional := s.intentional
			if !stale {
				s.conn = nil
				s.timers.Cancel(PurposeHeartbeat)
			}
			s.mu.Unlock()

			if stale {
				return
			}
			if intentional || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.mu.Lock()
				s.state = StateClosed
				s.mu.Unlock()
				s.logger.InfoContext(ctx, "Connection closed", "intentional", intentional)
				return
			}

			s.logger.WarnContext(ctx, "Connection lost abnormally", "error", err)
			s.onAbnormalClose(ctx, gen)
			return
		}
		s.opts.Handler.HandleFrame(data)
	}
}

// onAbnormalClose schedules exactly one reconnect timer, or surfaces the
// terminal failure once the ceiling is reached.
func (s *Supervisor) onAbnormalClose(ctx context.Context, gen int) {
	s.mu.Lock()
	if gen != s.gen || s.intentional {
		s.mu.Unlock()
		return
	}

	if s.attempts >= s.opts.MaxAttempts {
		alreadySurfaced := s.exhausted
		s.exhausted = true
		s.state = StateClosed
		s.mu.Unlock()
		if !alreadySurfaced {
			s.logger.ErrorContext(ctx, "Reconnect attempts exhausted", "attempts", s.opts.MaxAttempts)
			s.opts.Handler.ConnectionLost("无法连接到服务器")
		}
		return
	}

	attempt := s.attempts
	s.attempts++
	s.state = StateConnecting
	delay := s.backoff.NextBackOff() + rand.N(jitterMax)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Scheduling reconnect", "attempt", attempt+1, "delay", delay)
	if s.opts.OnReconnect != nil {
		s.opts.OnReconnect(attempt, delay)
	}
	if s.opts.onReconnectScheduled != nil {
		s.opts.onReconnectScheduled(attempt, delay)
	}

	s.timers.Schedule(PurposeReconnect, delay, func() {
		s.dial(ctx, gen)
	})
}

// scheduleHeartbeat arms the next keep-alive ping. The heartbeat only guards
// against idle-timeout disconnects at intermediaries; send failures are
// swallowed and the read loop detects the broken connection.
func (s *Supervisor) scheduleHeartbeat(gen int) {
	s.timers.Schedule(PurposeHeartbeat, s.opts.HeartbeatInterval, func() {
		s.mu.Lock()
		conn := s.conn
		ok := gen == s.gen && s.state == StateOpen && conn != nil
		s.mu.Unlock()
		if !ok {
			return
		}

		if data, err := wire.Encode(&wire.Ping{}); err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		s.scheduleHeartbeat(gen)
	})
}

// Send transmits a frame if the channel is open, waiting briefly for an
// in-progress connect. It reports false on any failure so callers can surface
// a user-facing error without an exception path.
func (s *Supervisor) Send(frame wire.Frame) bool {
	conn := s.awaitOpen()
	if conn == nil {
		return false
	}

	data, err := wire.Encode(frame)
	if err != nil {
		s.logger.Error("Frame encoding failed", "error", err)
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("Frame send failed", "error", err)
		return false
	}
	return true
}

// awaitOpen polls for the connection to open, bounded by OpenWait.
func (s *Supervisor) awaitOpen() Conn {
	deadline := time.Now().Add(s.opts.OpenWait)
	for {
		s.mu.Lock()
		state, conn := s.state, s.conn
		s.mu.Unlock()

		if state == StateOpen && conn != nil {
			return conn
		}
		if state != StateConnecting || time.Now().After(deadline) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Close tears down the channel. An intentional close cancels any pending
// reconnect and heartbeat timers and suppresses reconnection, so no stray
// attempt can target a conversation the user has left.
func (s *Supervisor) Close(intentional bool) {
	s.mu.Lock()
	if intentional {
		s.intentional = true
		s.gen++
	}
	s.state = StateClosing
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.timers.Cancel(PurposeReconnect)
	s.timers.Cancel(PurposeHeartbeat)

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}
