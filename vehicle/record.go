package vehicle

import "time"

// Record is one vehicle's position as observed in a single collection
// cycle. Identifiers and coordinates are always present; everything
// else depends on what the upstream feed reports.
type Record struct {
	VehicleID string   `json:"vehicle_id"`
	RouteID   string   `json:"route_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Bearing   *float64 `json:"bearing,omitempty"`
	SpeedKMH  *float64 `json:"speed_kmh,omitempty"`

	// Stop context for feeds that report per-stop state. StopIndex is
	// the stop's position along the route, -1 when the feed carries no
	// stop ordering.
	StopCode  string `json:"stop_code,omitempty"`
	StopIndex int    `json:"stop_index"`
	AtStop    bool   `json:"at_stop"`

	// Timestamp is the source-reported epoch in seconds, 0 when the
	// feed does not carry one. ObservedAt is when this collector
	// fetched the record.
	Timestamp  int64     `json:"timestamp,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}
