// Package archive mirrors synchronized repair data into PostgreSQL.
//
// The Writer consumes update and delete envelopes from subscribed channels
// and applies them in batches: repair orders and repair units are upserted
// keyed on their server-assigned id, deletes remove the matching rows.
// Batches flush when they reach the configured size or on the flush
// interval, whichever comes first.
package archive
