package collector

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/theoremus-urban-solutions/transit-collector/feed"
)

func rawVehicle(id, route string, lat, lon float64) feed.RawVehicle {
	return feed.RawVehicle{
		VehicleID: id,
		RouteID:   route,
		Latitude:  lat,
		Longitude: lon,
		StopIndex: -1,
	}
}

func TestNormalizeFiltersOutOfRangeRecords(t *testing.T) {
	batch := &feed.Batch{
		Source:    "test",
		FetchedAt: time.Now(),
		Vehicles: []feed.RawVehicle{
			rawVehicle("V1", "73", 22.19, 113.54),
			rawVehicle("V2", "73", -90, -180),
			rawVehicle("V3", "73", 90, 180),
			rawVehicle("V4", "71", 0, 0),
			rawVehicle("V5", "71", 45.5, -122.6),
			rawVehicle("V6", "71", 91, 0),
			rawVehicle("V7", "71", 0, -180.5),
		},
	}

	records, dropped, err := Normalize(batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("expected 5 records, got %d", len(records))
	}
	if dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", dropped)
	}
}

func TestNormalizeDropsRecordsMissingFields(t *testing.T) {
	tests := []struct {
		name string
		raw  feed.RawVehicle
	}{
		{"missing vehicle id", rawVehicle("", "73", 22.19, 113.54)},
		{"missing route id", rawVehicle("MW1234", "", 22.19, 113.54)},
		{"nan latitude", rawVehicle("MW1234", "73", math.NaN(), 113.54)},
		{"nan longitude", rawVehicle("MW1234", "73", 22.19, math.NaN())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := &feed.Batch{
				Source:    "test",
				FetchedAt: time.Now(),
				Vehicles:  []feed.RawVehicle{tt.raw, rawVehicle("OK", "73", 22.19, 113.54)},
			}
			records, dropped, err := Normalize(batch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != 1 || records[0].VehicleID != "OK" {
				t.Errorf("expected only the valid record, got %+v", records)
			}
			if dropped != 1 {
				t.Errorf("expected 1 dropped, got %d", dropped)
			}
		})
	}
}

func TestNormalizeLastOccurrenceWins(t *testing.T) {
	batch := &feed.Batch{
		Source:    "test",
		FetchedAt: time.Now(),
		Vehicles: []feed.RawVehicle{
			{VehicleID: "MW1234", RouteID: "73", Latitude: 22.19, Longitude: 113.54, StopIndex: 3},
			{VehicleID: "MW5678", RouteID: "73", Latitude: 22.20, Longitude: 113.55, StopIndex: 1},
			{VehicleID: "MW1234", RouteID: "73", Latitude: 22.21, Longitude: 113.56, StopIndex: 4, AtStop: true},
		},
	}

	records, dropped, err := Normalize(batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
	// First-appearance order is kept; the payload comes from the last
	// occurrence.
	if records[0].VehicleID != "MW1234" || records[1].VehicleID != "MW5678" {
		t.Errorf("unexpected order: %s, %s", records[0].VehicleID, records[1].VehicleID)
	}
	if records[0].StopIndex != 4 || !records[0].AtStop {
		t.Errorf("expected last occurrence to win, got %+v", records[0])
	}
}

func TestNormalizeEmptyBatch(t *testing.T) {
	batch := &feed.Batch{
		Source:    "test",
		FetchedAt: time.Now(),
		Vehicles:  []feed.RawVehicle{rawVehicle("", "73", 22.19, 113.54)},
	}
	_, dropped, err := Normalize(batch)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
}

func TestNormalizeNilBatch(t *testing.T) {
	_, _, err := Normalize(nil)
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestNormalizeStampsObservedAt(t *testing.T) {
	at := time.Date(2023, 10, 5, 14, 7, 46, 0, time.UTC)
	batch := &feed.Batch{
		Source:    "test",
		FetchedAt: at,
		Vehicles:  []feed.RawVehicle{rawVehicle("MW1234", "73", 22.19, 113.54)},
	}
	records, _, err := Normalize(batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !records[0].ObservedAt.Equal(at) {
		t.Errorf("expected ObservedAt %v, got %v", at, records[0].ObservedAt)
	}
}
