package vehicle

import "time"

// Query is the read-only face of a Store. Handlers and other consumers
// hold a Query so they can never publish. Every method operates on the
// snapshot that is current at call time; none of them block or trigger
// a fetch.
type Query struct {
	store *Store
}

// NewQuery wraps a store for read-only access.
func NewQuery(store *Store) *Query {
	return &Query{store: store}
}

// Current returns the latest snapshot, nil before the first publish.
func (q *Query) Current() *Snapshot {
	return q.store.Current()
}

// ByRoute returns the current records on routeID.
func (q *Query) ByRoute(routeID string) []Record {
	s := q.store.Current()
	if s == nil {
		return nil
	}
	return s.ByRoute(routeID)
}

// ByVehicle returns the current record for vehicleID. A missing
// vehicle is a normal outcome, reported through ok.
func (q *Query) ByVehicle(vehicleID string) (Record, bool) {
	s := q.store.Current()
	if s == nil {
		return Record{}, false
	}
	return s.ByVehicle(vehicleID)
}

// History returns up to limit retained snapshots, most recent first.
func (q *Query) History(limit int) []*Snapshot {
	return q.store.History(limit)
}

// Staleness reports the age of the current snapshot. ok is false before
// the first publish, when there is nothing to judge staleness against.
func (q *Query) Staleness(now time.Time) (time.Duration, bool) {
	s := q.store.Current()
	if s == nil {
		return 0, false
	}
	return s.Age(now), true
}
