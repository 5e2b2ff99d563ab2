// Package reconcile keeps local entity collections consistent with
// server-side truth.
//
// A Collection is ordered by first insertion and unique by numeric id.
// Every inbound envelope is applied as an independent, idempotent pass over
// the current snapshot: update records replace in place or append, delete
// keys remove by decoded id. A Reconciler binds one collection to one
// channel through the subscription registry.
package reconcile
