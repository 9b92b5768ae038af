package feed

import (
	"context"
	"time"
)

// RawVehicle is one vehicle as the upstream reported it, parsed out of
// the wire format but not yet validated.
type RawVehicle struct {
	VehicleID string
	RouteID   string
	Latitude  float64
	Longitude float64
	Bearing   *float64
	SpeedKMH  *float64

	// Stop context for feeds that report per-stop state. StopIndex is
	// -1 when the feed has no stop ordering.
	StopCode  string
	StopIndex int
	AtStop    bool

	// Source-reported epoch seconds, 0 when absent.
	Timestamp int64
}

// Batch is the outcome of one successful fetch cycle.
type Batch struct {
	Source    string
	FetchedAt time.Time
	Vehicles  []RawVehicle
}

// Source is a live vehicle position provider. Fetch performs exactly
// one fetch-and-parse cycle; it does not retry.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (*Batch, error)
}
