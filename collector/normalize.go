package collector

import (
	"errors"
	"fmt"
	"math"

	"github.com/theoremus-urban-solutions/transit-collector/feed"
	"github.com/theoremus-urban-solutions/transit-collector/vehicle"
)

// ErrEmptyBatch reports a batch that yielded zero valid records after
// filtering. The scheduler treats it like any other collection failure
// so the store keeps serving the last good snapshot.
var ErrEmptyBatch = errors.New("no valid vehicle records in batch")

// ValidationError reports a batch that cannot be normalized at all.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid batch: %s", e.Reason)
}

// Normalize converts a raw feed batch into canonical records. Records
// missing an identifier or carrying out-of-range coordinates are
// dropped individually; the second return value counts them. When the
// same vehicle appears more than once the last occurrence wins and the
// superseded entries count as dropped, so input length always equals
// output length plus dropped.
func Normalize(batch *feed.Batch) ([]vehicle.Record, int, error) {
	if batch == nil {
		return nil, 0, &ValidationError{Reason: "nil batch"}
	}

	records := make([]vehicle.Record, 0, len(batch.Vehicles))
	position := make(map[string]int, len(batch.Vehicles))
	dropped := 0
	for _, raw := range batch.Vehicles {
		if !validRaw(raw) {
			dropped++
			continue
		}
		rec := vehicle.Record{
			VehicleID:  raw.VehicleID,
			RouteID:    raw.RouteID,
			Latitude:   raw.Latitude,
			Longitude:  raw.Longitude,
			Bearing:    raw.Bearing,
			SpeedKMH:   raw.SpeedKMH,
			StopCode:   raw.StopCode,
			StopIndex:  raw.StopIndex,
			AtStop:     raw.AtStop,
			Timestamp:  raw.Timestamp,
			ObservedAt: batch.FetchedAt,
		}
		if at, seen := position[raw.VehicleID]; seen {
			records[at] = rec
			dropped++
			continue
		}
		position[raw.VehicleID] = len(records)
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, dropped, ErrEmptyBatch
	}
	return records, dropped, nil
}

func validRaw(raw feed.RawVehicle) bool {
	if raw.VehicleID == "" || raw.RouteID == "" {
		return false
	}
	if math.IsNaN(raw.Latitude) || raw.Latitude < -90 || raw.Latitude > 90 {
		return false
	}
	if math.IsNaN(raw.Longitude) || raw.Longitude < -180 || raw.Longitude > 180 {
		return false
	}
	return true
}
