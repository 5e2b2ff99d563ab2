// Package connection owns the single WebSocket transport to the repair
// tracker server.
//
// Client wraps one socket: dial, serialized writes, a read loop feeding a
// buffered channel, and ping keepalive. Manager layers the lifecycle on top:
// a disconnected/connecting/open/closing state machine, single-flight
// connect, exponential-backoff reconnection with an attempt ceiling, session
// id tracking from the server's "connected" envelope, and replay of the
// subscription set after a successful reconnect.
//
// No other component may hold the transport handle.
package connection
