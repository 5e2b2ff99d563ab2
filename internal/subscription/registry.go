package subscription

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/repairtracker/repairsync/internal/wire"
)

// Listener receives every envelope dispatched to its channel.
type Listener func(env wire.Envelope)

// Sender transmits envelopes to the server. The connection manager
// implements it.
type Sender interface {
	Send(env wire.Envelope) error
}

// entry is one registered listener. Handles keep registration order and let
// listeners be removed individually (funcs are not comparable).
type entry struct {
	id uuid.UUID
	fn Listener
}

// Registry is the channel → listener table.
type Registry struct {
	sender Sender
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string][]entry
}

// NewRegistry creates an empty registry over the given sender.
func NewRegistry(sender Sender, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		sender: sender,
		logger: logger,
		subs:   make(map[string][]entry),
	}
}

// Subscribe registers a listener for a channel and returns its unsubscribe
// handle. The first listener for a channel emits a subscribe envelope; a
// send failure is logged but the local registration stands, because the
// manager replays the channel set on the next successful connect.
//
// The private "__messages__" channel is never subscribed server-side; the
// server pushes it unprompted.
func (r *Registry) Subscribe(channel string, listener Listener) (unsubscribe func()) {
	id := uuid.New()

	r.mu.Lock()
	first := len(r.subs[channel]) == 0
	r.subs[channel] = append(r.subs[channel], entry{id: id, fn: listener})
	r.mu.Unlock()

	if first && channel != wire.MessagesChannel {
		if err := r.sender.Send(wire.NewSubscribe([]string{channel})); err != nil {
			r.logger.Warn("subscribe request not sent",
				"channel", channel,
				"error", err,
			)
		} else {
			r.logger.Debug("subscribed", "channel", channel)
		}
	}

	return func() {
		r.remove(channel, id)
	}
}

// remove detaches a single listener; the channel entry disappears with its
// last listener. Invoking a handle twice is a no-op.
func (r *Registry) remove(channel string, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.subs[channel]
	for i, e := range entries {
		if e.id == id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}

	if len(entries) == 0 {
		delete(r.subs, channel)
		return
	}
	r.subs[channel] = entries
}

// Dispatch invokes every listener registered for the envelope's channel, in
// registration order. Unknown channels are ignored silently.
func (r *Registry) Dispatch(env wire.Envelope) {
	r.mu.Lock()
	entries := make([]entry, len(r.subs[env.Channel]))
	copy(entries, r.subs[env.Channel])
	r.mu.Unlock()

	for _, e := range entries {
		e.fn(env)
	}
}

// Channels returns the sorted set of channels with at least one listener.
// The connection manager replays this set after a reconnect. The private
// messages channel is excluded, matching Subscribe.
func (r *Registry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := make([]string, 0, len(r.subs))
	for ch := range r.subs {
		if ch == wire.MessagesChannel {
			continue
		}
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// ListenerCount returns the number of listeners on a channel.
func (r *Registry) ListenerCount(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[channel])
}
