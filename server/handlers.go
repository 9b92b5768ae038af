package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/theoremus-urban-solutions/transit-collector/arrivals"
	"github.com/theoremus-urban-solutions/transit-collector/utils"
	"github.com/theoremus-urban-solutions/transit-collector/vehicle"
)

const defaultArrivalsLimit = 50

type apiError struct {
	Error string `json:"error"`
}

type QueryError struct{ Msg string }

func (e *QueryError) Error() string { return e.Msg }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// queryParams lowercases parameter names so filters are
// case-insensitive, SIRI-style.
func queryParams(r *http.Request) map[string]string {
	params := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[lower(k)] = strings.TrimSpace(v[0])
		}
	}
	return params
}

func lower(s string) string {
	bs := []rune(s)
	for i, r := range bs {
		if r >= 'A' && r <= 'Z' {
			bs[i] = r + 32
		}
	}
	return string(bs)
}

func parseNonNegativeInt(s string) (int, error) {
	if s == "" {
		return -1, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return -1, &QueryError{Msg: "Numeric parameter must be a non-negative integer."}
	}
	return v, nil
}

type healthResponse struct {
	Status              string   `json:"status"`
	Sequence            uint64   `json:"sequence"`
	Vehicles            int      `json:"vehicles"`
	CollectedAt         string   `json:"collectedAt,omitempty"`
	AgeSeconds          *float64 `json:"ageSeconds,omitempty"`
	ConsecutiveFailures int      `json:"consecutiveFailures"`
	LastSuccess         string   `json:"lastSuccess,omitempty"`
	LastError           string   `json:"lastError,omitempty"`
}

// handleHealth always answers 200; the status field carries the
// verdict. Staleness is an observable, not an error.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "waiting"}
	if s.deps.Collector != nil {
		state := s.deps.Collector.State()
		resp.ConsecutiveFailures = state.ConsecutiveFailures
		resp.LastError = state.LastError
		if !state.LastSuccess.IsZero() {
			resp.LastSuccess = utils.Iso8601FromTime(state.LastSuccess)
		}
	}
	if snap := s.deps.Query.Current(); snap != nil {
		age := snap.Age(time.Now())
		secs := age.Seconds()
		resp.Sequence = snap.Sequence
		resp.Vehicles = len(snap.Records)
		resp.CollectedAt = utils.Iso8601FromTime(snap.CollectedAt)
		resp.AgeSeconds = &secs
		switch {
		case s.deps.StaleAfter > 0 && age > s.deps.StaleAfter:
			resp.Status = "stale"
		case resp.ConsecutiveFailures > 0:
			resp.Status = "degraded"
		default:
			resp.Status = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type vehiclesResponse struct {
	Sequence    uint64           `json:"sequence"`
	Source      string           `json:"source"`
	CollectedAt string           `json:"collectedAt"`
	AgeSeconds  float64          `json:"ageSeconds"`
	Vehicles    []vehicle.Record `json:"vehicles"`
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Query.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "no snapshot collected yet"})
		return
	}
	params := queryParams(r)
	records := snap.Records
	if route := params["route"]; route != "" {
		records = snap.ByRoute(route)
	}
	// A vehicle lookup wins over the route filter.
	if id := params["vehicle"]; id != "" {
		rec, ok := snap.ByVehicle(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, apiError{Error: "no such vehicle: " + id})
			return
		}
		records = []vehicle.Record{rec}
	}
	if records == nil {
		records = []vehicle.Record{}
	}
	writeJSON(w, http.StatusOK, vehiclesResponse{
		Sequence:    snap.Sequence,
		Source:      snap.Source,
		CollectedAt: utils.Iso8601FromTime(snap.CollectedAt),
		AgeSeconds:  snap.Age(time.Now()).Seconds(),
		Vehicles:    records,
	})
}

type snapshotSummary struct {
	Sequence    uint64 `json:"sequence"`
	Source      string `json:"source"`
	CollectedAt string `json:"collectedAt"`
	Vehicles    int    `json:"vehicles"`
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	params := queryParams(r)
	limit, err := parseNonNegativeInt(params["limit"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	history := s.deps.Query.History(limit)
	summaries := make([]snapshotSummary, 0, len(history))
	for _, snap := range history {
		summaries = append(summaries, snapshotSummary{
			Sequence:    snap.Sequence,
			Source:      snap.Source,
			CollectedAt: utils.Iso8601FromTime(snap.CollectedAt),
			Vehicles:    len(snap.Records),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleArrivals(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "arrival journal unavailable"})
		return
	}
	params := queryParams(r)
	limit, err := parseNonNegativeInt(params["limit"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	if limit <= 0 {
		limit = defaultArrivalsLimit
	}

	events, err := s.deps.Journal.Recent(arrivals.Filter{
		Route:    params["route"],
		StopCode: params["stop"],
	}, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to read arrivals"})
		return
	}

	type arrivalEntry struct {
		arrivals.Event
		StopName string `json:"stopName,omitempty"`
	}
	out := make([]arrivalEntry, 0, len(events))
	for _, ev := range events {
		entry := arrivalEntry{Event: ev}
		if name := s.deps.StopNames.Name(ev.StopCode); name != ev.StopCode {
			entry.StopName = name
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}
