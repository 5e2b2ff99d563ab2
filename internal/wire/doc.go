// Package wire defines the JSON message envelope exchanged with the repair
// tracker server and the composite key format used to address entities.
//
// Conventions:
//   - One envelope per WebSocket text frame.
//   - Channels are opaque routing keys of the form "<scope>:<resource>"
//     (scopes: "main", "order"); the special "__messages__" channel carries
//     out-of-band server error notices.
//   - Composite keys are "<PREFIX>-<id>" with a fixed two-letter prefix per
//     entity type and a positive integer id.
package wire
