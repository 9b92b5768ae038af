// Package arrivals derives stop arrival events from consecutive
// vehicle snapshots and journals them to SQLite. A vehicle arrives
// when its at-stop flag flips on at a regular stop; at the origin stop
// the interesting flip is the other way, off, which marks the start of
// a trip.
package arrivals
