package connection

import (
	"errors"
	"time"
)

// State is the lifecycle state of the managed connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
)

// Config holds transport and reconnection settings.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "ws://localhost:8000/ws".
	URL string

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration

	// PingInterval is the keepalive ping cadence. Zero disables keepalive
	// and read deadlines.
	PingInterval time.Duration

	// BufferSize is the inbound message channel capacity.
	BufferSize int

	// ReconnectBaseDelay is the delay before the first reconnect attempt.
	// The delay doubles on each consecutive failure.
	ReconnectBaseDelay time.Duration

	// MaxReconnectAttempts is the ceiling of consecutive failed attempts
	// before the manager gives up until the next explicit Connect.
	MaxReconnectAttempts int
}

// DefaultConfig returns the settings used when fields are left zero.
func DefaultConfig(url string) Config {
	cfg := Config{URL: url}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
}

// Sentinel errors.
var (
	// ErrNotConnected is returned by Send when the connection is not open.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("connection manager closed")

	// ErrStaleConnection is reported when keepalive pings stop being
	// answered.
	ErrStaleConnection = errors.New("stale connection: pong timeout")
)
