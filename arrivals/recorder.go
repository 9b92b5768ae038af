package arrivals

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/transit-collector/utils"
	"github.com/theoremus-urban-solutions/transit-collector/vehicle"
)

// DefaultStaleAfter is how long a vehicle may go unseen before its
// per-stop state is discarded.
const DefaultStaleAfter = 30 * time.Minute

// A stop is identified by route, code and position; the same physical
// pole can appear at different positions on different routes.
type stopKey struct {
	route string
	code  string
	index int
}

// Recorder turns consecutive snapshots into arrival events. It keeps
// the last observed at-stop flag per vehicle and stop; a flip to
// at-stop at a regular stop is an arrival, a flip to moving at the
// origin stop is a trip start. A vehicle's first observation counts as
// a flip. Not safe for concurrent use; the collector invokes it from
// the poll loop only.
type Recorder struct {
	journal    *Journal
	stops      StopNames
	staleAfter time.Duration
	now        func() time.Time

	atStop   map[string]map[stopKey]bool
	lastSeen map[string]time.Time
}

// NewRecorder builds a recorder writing to journal. stops may be nil.
func NewRecorder(journal *Journal, stops StopNames, staleAfter time.Duration) *Recorder {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Recorder{
		journal:    journal,
		stops:      stops,
		staleAfter: staleAfter,
		now:        time.Now,
		atStop:     make(map[string]map[stopKey]bool),
		lastSeen:   make(map[string]time.Time),
	}
}

// OnSnapshot implements collector.Sink. Records without stop ordering
// carry no arrival signal and are skipped.
func (r *Recorder) OnSnapshot(snap *vehicle.Snapshot) {
	for _, rec := range snap.Records {
		if rec.StopIndex < 0 {
			continue
		}
		r.observe(rec)
	}
	r.dropStale()
}

func (r *Recorder) observe(rec vehicle.Record) {
	key := stopKey{route: rec.RouteID, code: rec.StopCode, index: rec.StopIndex}
	var (
		prev  bool
		known bool
	)
	if states, ok := r.atStop[rec.VehicleID]; ok {
		prev, known = states[key]
	}
	changed := !known || prev != rec.AtStop

	switch {
	case rec.StopIndex == 0 && changed && !rec.AtStop:
		// Leaving the origin starts a trip; per-stop state from the
		// previous round is gone.
		delete(r.atStop, rec.VehicleID)
		r.record(rec)
	case rec.StopIndex > 0 && changed && rec.AtStop:
		r.record(rec)
	}

	states := r.atStop[rec.VehicleID]
	if states == nil {
		states = make(map[stopKey]bool)
		r.atStop[rec.VehicleID] = states
	}
	states[key] = rec.AtStop
	if changed {
		r.lastSeen[rec.VehicleID] = r.now()
	}
}

func (r *Recorder) record(rec vehicle.Record) {
	ev := Event{
		Route:     rec.RouteID,
		VehicleID: rec.VehicleID,
		StopCode:  rec.StopCode,
		StopIndex: rec.StopIndex,
		ArrivedAt: utils.Iso8601FromTime(r.now()),
	}
	if err := r.journal.Insert(ev); err != nil {
		log.Error().Err(err).Str("vehicle", ev.VehicleID).Msg("Failed to journal arrival")
		return
	}
	if ev.StopIndex == 0 {
		log.Info().
			Str("route", ev.Route).
			Str("vehicle", ev.VehicleID).
			Str("stop", r.stops.Name(ev.StopCode)).
			Msg("Trip started")
		return
	}
	log.Debug().
		Str("route", ev.Route).
		Str("vehicle", ev.VehicleID).
		Str("stop", r.stops.Name(ev.StopCode)).
		Int("index", ev.StopIndex).
		Msg("Arrival recorded")
}

// dropStale forgets vehicles whose status has not changed within the
// stale window, so plates that left service do not pin memory.
func (r *Recorder) dropStale() {
	cutoff := r.now().Add(-r.staleAfter)
	for id, seen := range r.lastSeen {
		if seen.Before(cutoff) {
			delete(r.atStop, id)
			delete(r.lastSeen, id)
		}
	}
}
