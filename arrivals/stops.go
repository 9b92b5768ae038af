package arrivals

import (
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
)

type stopNameRow struct {
	Code string `csv:"station_code"`
	Name string `csv:"station_name"`
}

// StopNames maps station codes to display names.
type StopNames map[string]string

// LoadStopNames reads a station_code,station_name CSV into a lookup
// table.
func LoadStopNames(path string) (StopNames, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stop names file: %w", err)
	}
	defer f.Close()

	var rows []stopNameRow
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse stop names file: %w", err)
	}
	names := make(StopNames, len(rows))
	for _, row := range rows {
		names[row.Code] = row.Name
	}
	return names, nil
}

// Name resolves a station code to its display name. The upstream feed
// reports some stops without a pole suffix while the GIS export always
// carries one, so bare codes fall back to pole 1. Unknown codes
// resolve to themselves.
func (n StopNames) Name(code string) string {
	if name, ok := n[code]; ok {
		return name
	}
	if !strings.Contains(code, "/") {
		if name, ok := n[code+"/1"]; ok {
			return name
		}
	}
	return code
}
