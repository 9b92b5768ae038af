package vehicle

import "time"

// Snapshot is one complete, validated collection cycle. It is immutable
// after construction; the store hands the same pointer to every reader.
type Snapshot struct {
	Sequence    uint64    `json:"sequence"`
	Source      string    `json:"source"`
	CollectedAt time.Time `json:"collected_at"`
	Records     []Record  `json:"records"`

	byVehicle map[string]int
	byRoute   map[string][]int
}

// newSnapshot builds the lookup indexes once, so reads stay cheap no
// matter how many clients ask.
func newSnapshot(seq uint64, source string, collectedAt time.Time, records []Record) *Snapshot {
	s := &Snapshot{
		Sequence:    seq,
		Source:      source,
		CollectedAt: collectedAt,
		Records:     records,
		byVehicle:   make(map[string]int, len(records)),
		byRoute:     map[string][]int{},
	}
	for i, r := range records {
		s.byVehicle[r.VehicleID] = i
		s.byRoute[r.RouteID] = append(s.byRoute[r.RouteID], i)
	}
	return s
}

// ByVehicle returns the record for one vehicle id.
func (s *Snapshot) ByVehicle(vehicleID string) (Record, bool) {
	i, ok := s.byVehicle[vehicleID]
	if !ok {
		return Record{}, false
	}
	return s.Records[i], true
}

// ByRoute returns the records on one route, in snapshot order. An
// unknown route is an empty result, not an error.
func (s *Snapshot) ByRoute(routeID string) []Record {
	idxs := s.byRoute[routeID]
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Record, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.Records[i])
	}
	return out
}

// Age reports how long ago this snapshot was collected.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CollectedAt)
}
