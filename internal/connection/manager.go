package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/repairtracker/repairsync/internal/wire"
)

// ChannelSource supplies the channel set to replay after a reconnect.
// The Subscription Registry implements it.
type ChannelSource interface {
	Channels() []string
}

// Manager owns the process-wide connection and its lifecycle.
type Manager interface {
	// Connect establishes the transport if not already open. Concurrent
	// calls while an attempt is in flight share that attempt's outcome; a
	// second transport is never opened.
	//
	// Connect resolves at transport open. The server's "connected" envelope
	// arrives afterwards and populates SessionID asynchronously; callers
	// that need the session id must observe it separately.
	Connect(ctx context.Context) error

	// Close tears the connection down and stops all reconnection.
	Close() error

	// Send transmits one envelope. When the connection is not open it
	// returns ErrNotConnected; the envelope is not queued or retried.
	Send(env wire.Envelope) error

	// Messages returns decoded inbound envelopes in server order.
	Messages() <-chan wire.Envelope

	// States returns lifecycle state transitions for observers.
	States() <-chan State

	// State returns the current lifecycle state.
	State() State

	// SessionID returns the server-assigned connection identifier, or ""
	// before the "connected" envelope arrives and after a disconnect.
	SessionID() string

	// Exhausted reports whether the reconnect ceiling was reached. Only a
	// new explicit Connect clears it.
	Exhausted() bool

	// SetChannelSource attaches the registry whose channels are replayed
	// after every successful open.
	SetChannelSource(src ChannelSource)

	// ForceDisconnect simulates a transport failure for testing.
	ForceDisconnect()
}

// manager implements the Manager interface.
type manager struct {
	cfg    Config
	logger *slog.Logger

	messages chan wire.Envelope
	states   chan State
	done     chan struct{}
	wg       sync.WaitGroup

	mu         sync.Mutex
	state      State
	client     Client
	sessionID  string
	source     ChannelSource
	attempts   int // consecutive failed reconnect attempts this cycle
	retryTimer *time.Timer
	waiters    []chan error
	exhausted  bool
	closed     bool
}

// NewManager creates a connection manager. The connection is not opened
// until Connect is called.
func NewManager(cfg Config, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &manager{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan wire.Envelope, cfg.BufferSize),
		states:   make(chan State, 32),
		done:     make(chan struct{}),
		state:    StateDisconnected,
	}
}

// SetChannelSource attaches the registry replayed after reconnects.
func (m *manager) SetChannelSource(src ChannelSource) {
	m.mu.Lock()
	m.source = src
	m.mu.Unlock()
}

// Connect establishes the transport if not already open.
func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	switch m.state {
	case StateOpen:
		m.mu.Unlock()
		return nil

	case StateConnecting:
		// Join the in-flight attempt.
		ch := make(chan error, 1)
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()

		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Fresh connect cycle: drop any pending scheduled retry so a stale
	// timer cannot race a second transport open.
	m.stopRetryLocked()
	m.attempts = 0
	m.exhausted = false
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyState(StateConnecting)

	err := m.dial(ctx)
	if err != nil {
		m.logger.Warn("connect failed", "url", m.cfg.URL, "error", err)
		m.mu.Lock()
		m.state = StateDisconnected
		m.scheduleRetryLocked()
		m.mu.Unlock()
		m.notifyState(StateDisconnected)
	}

	m.resolveWaiters(err)
	return err
}

// Close tears the connection down.
func (m *manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.state = StateClosing
	m.stopRetryLocked()
	c := m.client
	m.client = nil
	m.sessionID = ""
	m.mu.Unlock()

	m.notifyState(StateClosing)

	close(m.done)
	if c != nil {
		c.Close()
	}
	m.wg.Wait()
	close(m.messages)

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.logger.Info("connection manager closed")
	return nil
}

// Send transmits one envelope over the open connection.
func (m *manager) Send(env wire.Envelope) error {
	m.mu.Lock()
	c := m.client
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || c == nil {
		m.logger.Warn("send while disconnected, dropping",
			"type", env.Type,
			"channel", env.Channel,
		)
		return ErrNotConnected
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}

	if err := c.Send(data); err != nil {
		m.logger.Warn("send failed",
			"type", env.Type,
			"channel", env.Channel,
			"error", err,
		)
		return err
	}

	return nil
}

// Messages returns decoded inbound envelopes.
func (m *manager) Messages() <-chan wire.Envelope {
	return m.messages
}

// States returns lifecycle state transitions.
func (m *manager) States() <-chan State {
	return m.states
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the server-assigned connection identifier.
func (m *manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Exhausted reports whether the reconnect ceiling was reached.
func (m *manager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

// ForceDisconnect simulates a transport failure for testing.
func (m *manager) ForceDisconnect() {
	m.mu.Lock()
	c := m.client
	m.mu.Unlock()

	if c != nil {
		c.ForceDisconnect()
	}
}

// dial opens a new transport and promotes it on success.
func (m *manager) dial(ctx context.Context) error {
	c := NewClient(m.cfg, m.logger)
	if err := c.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		c.Close()
		return ErrClosed
	}
	m.stopRetryLocked()
	m.client = c
	m.state = StateOpen
	m.attempts = 0
	m.exhausted = false
	m.mu.Unlock()

	m.notifyState(StateOpen)

	m.wg.Add(1)
	go m.pump(c)

	m.replaySubscriptions(c)
	return nil
}

// pump reads one client's frames, decodes them, and forwards envelopes.
// Exactly one pump runs per live transport; it exits on the first transport
// error, handing control to the reconnect path.
func (m *manager) pump(c Client) {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return

		case err := <-c.Errors():
			m.handleDisconnect(c, err)
			return

		case data := <-c.Messages():
			env, err := wire.Decode(data)
			if err != nil {
				// Single malformed frame: drop it, keep the connection.
				m.logger.Warn("dropping malformed frame", "error", err)
				continue
			}

			if env.Type == wire.TypeConnected {
				id := env.SessionID()
				m.mu.Lock()
				m.sessionID = id
				m.mu.Unlock()
				m.logger.Info("session established", "websocket_id", id)
			}

			select {
			case m.messages <- env:
			case <-m.done:
				return
			default:
				m.logger.Warn("inbound buffer full, dropping envelope",
					"type", env.Type,
					"channel", env.Channel,
				)
			}
		}
	}
}

// handleDisconnect records the transport loss and schedules a reconnect.
// This is the only code path that triggers reconnection.
func (m *manager) handleDisconnect(c Client, err error) {
	m.mu.Lock()
	if m.closed || m.client != c {
		m.mu.Unlock()
		return
	}
	m.client = nil
	m.sessionID = ""
	m.state = StateDisconnected
	m.scheduleRetryLocked()
	m.mu.Unlock()

	c.Close()
	m.logger.Warn("connection lost", "error", err)
	m.notifyState(StateDisconnected)
}

// scheduleRetryLocked arms the backoff timer for the next attempt, or marks
// the cycle exhausted once the ceiling is hit. Caller holds m.mu.
func (m *manager) scheduleRetryLocked() {
	if m.closed {
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.exhausted = true
		m.logger.Error("reconnection attempts exhausted",
			"attempts", m.attempts,
		)
		return
	}

	m.attempts++
	delay := backoffDelay(m.cfg.ReconnectBaseDelay, m.attempts)
	m.logger.Info("scheduling reconnect",
		"attempt", m.attempts,
		"delay", delay,
	)
	m.retryTimer = time.AfterFunc(delay, m.retry)
}

// retry is the backoff timer callback: exactly one connect attempt.
func (m *manager) retry() {
	m.mu.Lock()
	if m.closed || m.state != StateDisconnected {
		// A connect succeeded through another path first.
		m.mu.Unlock()
		return
	}
	attempt := m.attempts
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyState(StateConnecting)
	m.logger.Info("attempting reconnection",
		"attempt", attempt,
		"max", m.cfg.MaxReconnectAttempts,
	)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	err := m.dial(ctx)
	cancel()

	if err != nil {
		m.logger.Warn("reconnection failed", "attempt", attempt, "error", err)
		m.mu.Lock()
		m.state = StateDisconnected
		m.scheduleRetryLocked()
		m.mu.Unlock()
		m.notifyState(StateDisconnected)
	}

	m.resolveWaiters(err)
}

// replaySubscriptions re-issues server-side interest for every channel the
// registry knows about. Correctness-critical after a reconnect: without it
// the server would push nothing on the new transport.
func (m *manager) replaySubscriptions(c Client) {
	m.mu.Lock()
	src := m.source
	m.mu.Unlock()

	if src == nil {
		return
	}
	channels := src.Channels()
	if len(channels) == 0 {
		return
	}

	data, err := wire.NewSubscribe(channels).Encode()
	if err != nil {
		m.logger.Error("encode subscription replay", "error", err)
		return
	}
	if err := c.Send(data); err != nil {
		m.logger.Warn("subscription replay failed",
			"channels", len(channels),
			"error", err,
		)
		return
	}

	m.logger.Info("replayed subscriptions", "channels", channels)
}

// stopRetryLocked cancels a pending scheduled retry. Caller holds m.mu.
func (m *manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// resolveWaiters delivers the in-flight attempt's outcome to every caller
// that joined it.
func (m *manager) resolveWaiters(err error) {
	m.mu.Lock()
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}

// notifyState emits a state transition without ever blocking.
func (m *manager) notifyState(s State) {
	select {
	case m.states <- s:
	default:
	}
}

// backoffDelay returns the delay before reconnect attempt n (1-indexed):
// base * 2^(n-1).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << (attempt - 1)
}
