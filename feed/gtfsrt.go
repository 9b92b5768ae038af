package feed

import (
	"context"
	"io"
	"net/http"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// GTFS-RT reports speed in m/s; records carry km/h.
const metersPerSecondToKMH = 3.6

// GTFSRTSource reads a GTFS-Realtime VehiclePositions feed.
type GTFSRTSource struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewGTFSRTSource builds a source for one VehiclePositions URL.
func NewGTFSRTSource(url string, timeout time.Duration) *GTFSRTSource {
	return &GTFSRTSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (s *GTFSRTSource) Name() string { return "gtfsrt" }

// Fetch downloads and decodes the feed. Entities without a vehicle or
// position are skipped; everything else maps onto RawVehicle fields.
func (s *GTFSRTSource) Fetch(ctx context.Context) (*Batch, error) {
	fm, err := s.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}
	batch := &Batch{Source: s.Name(), FetchedAt: s.now()}
	for _, e := range fm.Entity {
		v := e.Vehicle
		if v == nil || v.Position == nil {
			continue
		}
		raw := RawVehicle{StopIndex: -1}
		if v.Vehicle != nil {
			if v.Vehicle.Id != nil {
				raw.VehicleID = *v.Vehicle.Id
			} else if v.Vehicle.Label != nil {
				raw.VehicleID = *v.Vehicle.Label
			}
		}
		if v.Trip != nil && v.Trip.RouteId != nil {
			raw.RouteID = *v.Trip.RouteId
		}
		if v.Position.Latitude != nil {
			raw.Latitude = float64(*v.Position.Latitude)
		}
		if v.Position.Longitude != nil {
			raw.Longitude = float64(*v.Position.Longitude)
		}
		if v.Position.Bearing != nil {
			b := float64(*v.Position.Bearing)
			raw.Bearing = &b
		}
		if v.Position.Speed != nil {
			kmh := float64(*v.Position.Speed) * metersPerSecondToKMH
			raw.SpeedKMH = &kmh
		}
		if v.StopId != nil {
			raw.StopCode = *v.StopId
		}
		if v.CurrentStopSequence != nil {
			raw.StopIndex = int(*v.CurrentStopSequence)
		}
		if v.CurrentStatus != nil {
			raw.AtStop = *v.CurrentStatus == gtfsrtpb.VehiclePosition_STOPPED_AT
		}
		if v.Timestamp != nil {
			raw.Timestamp = int64(*v.Timestamp)
		}
		batch.Vehicles = append(batch.Vehicles, raw)
	}
	return batch, nil
}

func (s *GTFSRTSource) fetchFeed(ctx context.Context) (*gtfsrtpb.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &NetworkError{URL: s.url, Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: s.url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{URL: s.url, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: s.url, Err: err}
	}
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, &ParseError{Source: s.Name(), Err: err}
	}
	return &fm, nil
}
