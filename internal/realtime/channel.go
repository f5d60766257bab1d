// Package realtime maintains the push channel that streams progress for one
// bulk operation at a time.
//
// State machine:
//
//	Idle ──Connect──► Connecting ──ok──► Open ──server close──► ClosedClean
//	                      ▲                │
//	                      │              error
//	                      │                ▼
//	                 Reconnecting ◄── ClosedError ──attempts exhausted──► Lost
//
// Closing the channel only stops listening; the server-side operation keeps
// running.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/rolodex/internal/domain"
)

// Defaults used when Options leaves a field zero
const (
	DefaultReconnectInterval = 3 * time.Second
	DefaultMaxAttempts       = 5

	eventBuffer = 32
)

// State of the channel
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosedClean
	StateClosedError
	StateReconnecting
	StateLost
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedClean:
		return "closed"
	case StateClosedError:
		return "closed_error"
	case StateReconnecting:
		return "reconnecting"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// EventType distinguishes progress frames from state transitions
type EventType int

const (
	EventProgress EventType = iota
	EventState
)

// Event is delivered on Channel.Events
type Event struct {
	Type        EventType
	OperationID string // id the channel is subscribed to
	State       State
	Attempt     int // reconnect attempt number while Reconnecting
	Progress    domain.Progress
}

// Conn is one open transport connection
type Conn interface {
	// Read blocks for the next frame. io.EOF means the server closed normally.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a connection subscribed to one operation
type Dialer interface {
	Dial(ctx context.Context, operationID string) (Conn, error)
}

// Options tunes reconnection
type Options struct {
	ReconnectInterval time.Duration
	MaxAttempts       int
}

// session is the lifetime of one Connect call
type session struct {
	operationID string
	ctx         context.Context
	cancel      context.CancelFunc
	finished    chan struct{}

	conn Conn

	// monotonic guard, kept across reconnects of the same session
	lastProcessed int
	lastTotal     int
	seen          bool
}

// Channel is a reconnecting progress subscription. At most one operation is
// followed at a time; Connect to another id replaces the current session.
type Channel struct {
	dialer   Dialer
	interval time.Duration
	max      int
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	attempts int
	current  *session

	events chan Event
}

// NewChannel creates an idle channel
func NewChannel(dialer Dialer, opts Options, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Channel{
		dialer:   dialer,
		interval: opts.ReconnectInterval,
		max:      opts.MaxAttempts,
		logger:   logger,
		events:   make(chan Event, eventBuffer),
	}
}

// Events returns the stream of progress frames and state transitions.
// The stream is shared by all sessions and never closed.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// State returns the current state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnect attempts made since the last open
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// MaxAttempts returns the reconnect cap
func (c *Channel) MaxAttempts() int {
	return c.max
}

// Connect subscribes to operationID, replacing any current subscription.
// An empty id just closes the channel.
func (c *Channel) Connect(operationID string) {
	c.Close()
	if operationID == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		operationID: operationID,
		ctx:         ctx,
		cancel:      cancel,
		finished:    make(chan struct{}),
	}

	c.mu.Lock()
	c.current = s
	c.attempts = 0
	c.mu.Unlock()

	go c.run(s)
}

// Close stops listening cleanly and resets the attempt counter. Safe to call
// when idle.
func (c *Channel) Close() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	if s != nil {
		c.state = StateClosedClean
	}
	c.attempts = 0
	c.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	<-s.finished
}

// Send writes v as JSON to the open connection. When the channel is not open
// the message is dropped with a warning and nil is returned.
func (c *Channel) Send(ctx context.Context, v any) error {
	c.mu.Lock()
	s := c.current
	open := c.state == StateOpen && s != nil && s.conn != nil
	var conn Conn
	if open {
		conn = s.conn
	}
	c.mu.Unlock()

	if !open {
		c.logger.Warn("dropping message, progress channel not open", "state", c.State().String())
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if err := conn.Write(ctx, data); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return nil
}

func (c *Channel) run(s *session) {
	defer close(s.finished)

	for {
		c.transition(s, StateConnecting, 0)

		conn, err := c.dialer.Dial(s.ctx, s.operationID)
		if err == nil {
			c.opened(s, conn)
			err = c.readLoop(s, conn)
			c.detach(s)
			conn.Close()
		}

		if s.ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			c.logger.Debug("progress channel closed by server", "operationID", s.operationID)
			c.closedClean(s)
			return
		}

		c.logger.Warn("progress channel error", "error", err, "operationID", s.operationID)
		c.transition(s, StateClosedError, 0)

		attempt, ok := c.nextAttempt(s)
		if !ok {
			c.logger.Error("failed to reconnect progress channel, giving up",
				"operationID", s.operationID, "attempts", c.max)
			c.transition(s, StateLost, c.max)
			return
		}
		c.transition(s, StateReconnecting, attempt)

		timer := time.NewTimer(c.interval)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Channel) readLoop(s *session, conn Conn) error {
	for {
		data, err := conn.Read(s.ctx)
		if err != nil {
			return err
		}

		var p domain.Progress
		if err := json.Unmarshal(data, &p); err != nil {
			c.logger.Warn("ignoring malformed progress frame", "error", err, "operationID", s.operationID)
			continue
		}
		if !validStatus(p.Status) {
			c.logger.Warn("ignoring progress frame with unknown status", "status", p.Status, "operationID", s.operationID)
			continue
		}

		if !c.admit(s, &p) {
			c.logger.Debug("dropping stale progress frame",
				"operationID", s.operationID, "processed", p.Processed)
			continue
		}
		c.emit(s, Event{Type: EventProgress, OperationID: s.operationID, State: StateOpen, Progress: p})
	}
}

// admit applies the monotonic guard: processed never goes backwards and
// total never shrinks.
func (c *Channel) admit(s *session, p *domain.Progress) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.seen && p.Processed < s.lastProcessed {
		return false
	}
	if p.Total < s.lastTotal {
		p.Total = s.lastTotal
	}
	s.lastProcessed = p.Processed
	s.lastTotal = p.Total
	s.seen = true
	return true
}

func (c *Channel) opened(s *session, conn Conn) {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	s.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Debug("progress channel open", "operationID", s.operationID)
	c.emit(s, Event{Type: EventState, OperationID: s.operationID, State: StateOpen})
}

func (c *Channel) detach(s *session) {
	c.mu.Lock()
	s.conn = nil
	c.mu.Unlock()
}

func (c *Channel) closedClean(s *session) {
	c.mu.Lock()
	if c.current == s {
		c.attempts = 0
	}
	c.mu.Unlock()
	c.transition(s, StateClosedClean, 0)
}

func (c *Channel) nextAttempt(s *session) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != s || c.attempts >= c.max {
		return c.attempts, false
	}
	c.attempts++
	return c.attempts, true
}

// transition records a state change for the live session and emits it
func (c *Channel) transition(s *session, st State, attempt int) {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	c.state = st
	c.mu.Unlock()

	c.emit(s, Event{Type: EventState, OperationID: s.operationID, State: st, Attempt: attempt})
}

func (c *Channel) emit(s *session, ev Event) {
	select {
	case c.events <- ev:
	case <-s.ctx.Done():
	}
}

func validStatus(st domain.OperationStatus) bool {
	switch st {
	case domain.OperationPending, domain.OperationInProgress, domain.OperationCompleted, domain.OperationFailed:
		return true
	}
	return false
}
