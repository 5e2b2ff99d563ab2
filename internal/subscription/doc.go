// Package subscription maps channel names to listener callbacks and
// deduplicates server-side interest.
//
// A subscribe envelope is sent only when a channel gains its first local
// listener. Detaching the last listener drops the channel from the registry
// without notifying the server; the server prunes interest when the socket
// closes, and a reconnect replays only channels that still have listeners.
package subscription
