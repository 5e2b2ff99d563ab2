// Package realtime assembles the sync core behind a single client facade:
// the connection manager, the subscription registry, and the dispatch pump
// that joins them.
//
// All inbound envelopes flow through one pump goroutine: each updates the
// latest-message view, then fans out through registry dispatch. Listeners
// and reconcilers therefore see messages one at a time, in server order,
// without locking of their own. Outbound intents (sendUpdate/sendDelete)
// are fire-and-forget: the server assigns ids and success is observed via
// the next broadcast on the channel.
package realtime
