// Package vehicle holds the canonical vehicle position model and the
// in-memory snapshot store the collector publishes into.
//
// A Snapshot is immutable once published. The store keeps the current
// snapshot behind an atomic pointer plus a bounded ring of recent
// snapshots, so readers never contend with the poll loop.
package vehicle
