// Package model defines the entity records synchronized from the repair
// tracker server.
//
// Conventions:
//   - Field names mirror the server's JSON serializers exactly.
//   - Every record carries a numeric id (unique within its collection) and a
//     composite key string ("AS-1", "RO-7", ...).
//   - Timestamps are ISO 8601 strings as sent by the server; absent values
//     decode to the empty string.
package model
