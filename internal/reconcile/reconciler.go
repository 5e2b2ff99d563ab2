package reconcile

import (
	"log/slog"

	"github.com/repairtracker/repairsync/internal/subscription"
	"github.com/repairtracker/repairsync/internal/wire"
)

// Reconciler binds one collection to one channel: every update/delete
// envelope dispatched on the channel is applied to the collection.
type Reconciler[T Record] struct {
	channel    string
	collection *Collection[T]
	logger     *slog.Logger
	cancel     func()
}

// NewReconciler creates an empty collection and subscribes it to the
// channel through the registry.
func NewReconciler[T Record](reg *subscription.Registry, channel string, logger *slog.Logger) *Reconciler[T] {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reconciler[T]{
		channel:    channel,
		collection: NewCollection[T](),
		logger:     logger,
	}
	r.cancel = reg.Subscribe(channel, r.apply)
	return r
}

// apply is the channel listener.
func (r *Reconciler[T]) apply(env wire.Envelope) {
	if err := r.collection.Apply(env); err != nil {
		// A bad payload drops this envelope only; the subscription and the
		// current collection state are untouched.
		r.logger.Warn("reconcile failed",
			"channel", r.channel,
			"type", env.Type,
			"error", err,
		)
	}
}

// Channel returns the bound channel name.
func (r *Reconciler[T]) Channel() string {
	return r.channel
}

// Snapshot returns a copy of the collection in insertion order.
func (r *Reconciler[T]) Snapshot() []T {
	return r.collection.Snapshot()
}

// Get returns the record with the given id.
func (r *Reconciler[T]) Get(id int64) (T, bool) {
	return r.collection.Get(id)
}

// Len returns the number of records.
func (r *Reconciler[T]) Len() int {
	return r.collection.Len()
}

// Close detaches the reconciler from its channel.
func (r *Reconciler[T]) Close() {
	r.cancel()
}
