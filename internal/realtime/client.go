package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/repairtracker/repairsync/internal/connection"
	"github.com/repairtracker/repairsync/internal/subscription"
	"github.com/repairtracker/repairsync/internal/wire"
)

// Client is the interface UI code talks to: connect, subscribe, send
// intents, observe state.
type Client struct {
	logger   *slog.Logger
	manager  connection.Manager
	registry *subscription.Registry

	mu     sync.RWMutex
	latest map[string]wire.Envelope

	wg sync.WaitGroup
}

// NewClient wires the manager and registry and starts the dispatch pump.
// The connection itself is not opened until Connect.
func NewClient(cfg connection.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	mgr := connection.NewManager(cfg, logger)
	reg := subscription.NewRegistry(mgr, logger)
	mgr.SetChannelSource(reg)

	c := &Client{
		logger:   logger,
		manager:  mgr,
		registry: reg,
		latest:   make(map[string]wire.Envelope),
	}

	c.wg.Add(1)
	go c.pump()

	return c
}

// pump is the single logical task queue: every inbound envelope passes
// through here, one at a time, in server order.
func (c *Client) pump() {
	defer c.wg.Done()

	for env := range c.manager.Messages() {
		if env.Channel != "" {
			c.mu.Lock()
			c.latest[env.Channel] = env
			c.mu.Unlock()
		}

		if env.Channel == wire.MessagesChannel {
			// Out-of-band server diagnostics: logged, dispatched to any
			// local listeners, never fed into reconcilers.
			c.logger.Warn("server error notice",
				"websocket_id", env.WebsocketID,
				"message", env.Message,
			)
		}

		c.registry.Dispatch(env)
	}
}

// Connect establishes the connection. Concurrent callers share one attempt.
func (c *Client) Connect(ctx context.Context) error {
	return c.manager.Connect(ctx)
}

// Close shuts the client down.
func (c *Client) Close() error {
	err := c.manager.Close()
	c.wg.Wait()
	return err
}

// Connected reports whether the connection is open.
func (c *Client) Connected() bool {
	return c.manager.State() == connection.StateOpen
}

// State returns the connection lifecycle state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// States returns lifecycle state transitions for observers.
func (c *Client) States() <-chan connection.State {
	return c.manager.States()
}

// SessionID returns the server-assigned connection identifier, if known.
func (c *Client) SessionID() string {
	return c.manager.SessionID()
}

// Exhausted reports whether automatic reconnection gave up; a new Connect
// call starts a fresh cycle.
func (c *Client) Exhausted() bool {
	return c.manager.Exhausted()
}

// Registry exposes the subscription registry for binding reconcilers.
func (c *Client) Registry() *subscription.Registry {
	return c.registry
}

// Subscribe registers a channel listener and returns its unsubscribe handle.
func (c *Client) Subscribe(channel string, listener subscription.Listener) func() {
	return c.registry.Subscribe(channel, listener)
}

// SendUpdate packages mutation intents into an update envelope and
// transmits it. Records may be partial; the server assigns ids and
// broadcasts the materialized records back, including to this client.
func (c *Client) SendUpdate(channel string, records any) error {
	env, err := wire.NewUpdate(channel, records)
	if err != nil {
		return err
	}
	return c.manager.Send(env)
}

// Ping sends an application-level keepalive; the server answers with a
// pong envelope.
func (c *Client) Ping() error {
	return c.manager.Send(wire.NewPing())
}

// SendDelete packages composite keys into a delete envelope and transmits it.
func (c *Client) SendDelete(channel string, keys []string) error {
	return c.manager.Send(wire.NewDelete(channel, keys))
}

// LatestMessage returns the most recent envelope seen on a channel.
func (c *Client) LatestMessage(channel string) (wire.Envelope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	env, ok := c.latest[channel]
	return env, ok
}

// Messages returns a copy of the channel → latest envelope view.
func (c *Client) Messages() map[string]wire.Envelope {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]wire.Envelope, len(c.latest))
	for ch, env := range c.latest {
		out[ch] = env
	}
	return out
}
