package arrivals

import (
	"path/filepath"
	"testing"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "bus_data.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func seedJournal(t *testing.T, j *Journal) {
	t.Helper()
	events := []Event{
		{Route: "73", VehicleID: "MW1234", StopCode: "T530", StopIndex: 0, ArrivedAt: "2023-10-05T14:00:00Z"},
		{Route: "73", VehicleID: "MW1234", StopCode: "T532/1", StopIndex: 1, ArrivedAt: "2023-10-05T14:05:00Z"},
		{Route: "71", VehicleID: "MW5678", StopCode: "M11/1", StopIndex: 3, ArrivedAt: "2023-10-05T14:06:00Z"},
		{Route: "71", VehicleID: "MW9012", StopCode: "T532/1", StopIndex: 5, ArrivedAt: "2023-10-05T14:07:00Z"},
	}
	for _, ev := range events {
		if err := j.Insert(ev); err != nil {
			t.Fatalf("failed to insert event: %v", err)
		}
	}
}

func TestJournalRecentNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	seedJournal(t, j)

	got, err := j.Recent(Filter{}, 10)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}
	if got[0].VehicleID != "MW9012" {
		t.Errorf("expected newest event first, got %+v", got[0])
	}
	if got[3].StopIndex != 0 || got[3].StopCode != "T530" {
		t.Errorf("expected oldest event last, got %+v", got[3])
	}
}

func TestJournalFilters(t *testing.T) {
	j := openTestJournal(t)
	seedJournal(t, j)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by route", Filter{Route: "73"}, 2},
		{"by stop", Filter{StopCode: "T532/1"}, 2},
		{"by route and stop", Filter{Route: "71", StopCode: "T532/1"}, 1},
		{"no match", Filter{Route: "N6"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.Recent(tt.filter, 10)
			if err != nil {
				t.Fatalf("failed to read journal: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d events, got %d", tt.want, len(got))
			}
		})
	}
}

func TestJournalLimit(t *testing.T) {
	j := openTestJournal(t)
	seedJournal(t, j)

	got, err := j.Recent(Filter{}, 2)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].VehicleID != "MW9012" || got[1].VehicleID != "MW5678" {
		t.Errorf("expected the 2 newest events, got %+v", got)
	}
}

func TestJournalRoundTripsEventFields(t *testing.T) {
	j := openTestJournal(t)
	ev := Event{Route: "N6", VehicleID: "MW4321", StopCode: "C690/2", StopIndex: 12, ArrivedAt: "2023-10-05T23:59:59Z"}
	if err := j.Insert(ev); err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}
	got, err := j.Recent(Filter{}, 1)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	if len(got) != 1 || got[0] != ev {
		t.Errorf("expected %+v, got %+v", ev, got)
	}
}
