package utils_test

import (
	"testing"
	"time"

	"github.com/theoremus-urban-solutions/transit-collector/utils"
)

func TestIso8601Now(t *testing.T) {
	before := time.Now().UTC().Add(-1 * time.Second)
	result := utils.Iso8601Now()
	after := time.Now().UTC().Add(1 * time.Second)

	parsed, err := time.Parse(time.RFC3339, result)
	if err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}

	if parsed.Before(before) || parsed.After(after) {
		t.Errorf("timestamp should be between %v and %v, got %v", before, after, parsed)
	}
}

func TestIso8601FromUnixSeconds(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{
			name:     "epoch",
			input:    0,
			expected: "1970-01-01T00:00:00Z",
		},
		{
			name:     "specific timestamp",
			input:    1696320000, // 2023-10-03 08:00:00 UTC
			expected: "2023-10-03T08:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := utils.Iso8601FromUnixSeconds(tt.input)
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestIso8601FromTime(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{
			name:     "UTC time",
			input:    time.Date(2023, 10, 5, 14, 7, 40, 0, time.UTC),
			expected: "2023-10-05T14:07:40Z",
		},
		{
			name:     "non-UTC time is converted",
			input:    time.Date(2023, 10, 5, 22, 7, 40, 0, time.FixedZone("CST", 8*3600)),
			expected: "2023-10-05T14:07:40Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := utils.Iso8601FromTime(tt.input)
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestValidUntilFrom(t *testing.T) {
	tests := []struct {
		name           string
		baseEpoch      int64
		readIntervalMS int
		expected       string
	}{
		{
			name:           "thirty seconds ahead",
			baseEpoch:      1696320000,
			readIntervalMS: 30000,
			expected:       "2023-10-03T08:00:30Z",
		},
		{
			name:           "sub-second interval truncates",
			baseEpoch:      1696320000,
			readIntervalMS: 500,
			expected:       "2023-10-03T08:00:00Z",
		},
		{
			name:           "zero base is unknown",
			baseEpoch:      0,
			readIntervalMS: 30000,
			expected:       "",
		},
		{
			name:           "zero interval is unknown",
			baseEpoch:      1696320000,
			readIntervalMS: 0,
			expected:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := utils.ValidUntilFrom(tt.baseEpoch, tt.readIntervalMS)
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}
