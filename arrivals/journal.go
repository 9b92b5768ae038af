package arrivals

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS bus_data (
	route TEXT,
	bus_plate TEXT,
	station_code TEXT,
	arrival_time TEXT,
	station_index INT
)`

// Event is one journaled arrival.
type Event struct {
	Route     string `json:"route"`
	VehicleID string `json:"vehicleId"`
	StopCode  string `json:"stopCode"`
	StopIndex int    `json:"stopIndex"`
	ArrivedAt string `json:"arrivedAt"`
}

// Filter narrows journal reads. Zero fields match everything.
type Filter struct {
	Route    string
	StopCode string
}

// Journal persists arrival events to a SQLite database.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens the journal database at path, creating the file
// and its directory if needed.
func OpenJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	// A single connection keeps the recorder and API reads from
	// tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal table: %w", err)
	}
	return &Journal{db: db}, nil
}

// Insert journals one arrival event.
func (j *Journal) Insert(ev Event) error {
	_, err := j.db.Exec(
		"INSERT INTO bus_data (route, bus_plate, station_code, arrival_time, station_index) VALUES (?, ?, ?, ?, ?)",
		ev.Route, ev.VehicleID, ev.StopCode, ev.ArrivedAt, ev.StopIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to insert arrival: %w", err)
	}
	return nil
}

// Recent returns up to limit events matching the filter, newest first.
func (j *Journal) Recent(f Filter, limit int) ([]Event, error) {
	query := "SELECT route, bus_plate, station_code, arrival_time, station_index FROM bus_data"
	var (
		clauses []string
		args    []any
	)
	if f.Route != "" {
		clauses = append(clauses, "route = ?")
		args = append(args, f.Route)
	}
	if f.StopCode != "" {
		clauses = append(clauses, "station_code = ?")
		args = append(args, f.StopCode)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query arrivals: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Route, &ev.VehicleID, &ev.StopCode, &ev.ArrivedAt, &ev.StopIndex); err != nil {
			return nil, fmt.Errorf("failed to scan arrival: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating arrivals: %w", err)
	}
	return events, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
