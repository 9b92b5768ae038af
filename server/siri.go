package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/theoremus-urban-solutions/transit-collector/arrivals"
	"github.com/theoremus-urban-solutions/transit-collector/utils"
	"github.com/theoremus-urban-solutions/transit-collector/vehicle"
)

const kmhPerMeterPerSecond = 3.6

// SIRI VehicleMonitoring envelope. Field names follow the SIRI JSON
// convention, hence the capitalised tags.
type siriResponse struct {
	Siri siriServiceDelivery `json:"Siri"`
}

type siriServiceDelivery struct {
	ServiceDelivery serviceDelivery `json:"ServiceDelivery"`
}

type serviceDelivery struct {
	ResponseTimestamp         string              `json:"ResponseTimestamp"`
	ProducerRef               string              `json:"ProducerRef"`
	VehicleMonitoringDelivery []vehicleMonitoring `json:"VehicleMonitoringDelivery"`
}

type vehicleMonitoring struct {
	ResponseTimestamp string                 `json:"ResponseTimestamp"`
	ValidUntil        string                 `json:"ValidUntil"`
	VehicleActivity   []vehicleActivityEntry `json:"VehicleActivity"`
}

type vehicleActivityEntry struct {
	RecordedAtTime          string                  `json:"RecordedAtTime"`
	MonitoredVehicleJourney monitoredVehicleJourney `json:"MonitoredVehicleJourney"`
}

type monitoredVehicleJourney struct {
	LineRef         string             `json:"LineRef"`
	Monitored       bool               `json:"Monitored"`
	DataSource      string             `json:"DataSource"`
	VehicleLocation siriLocation       `json:"VehicleLocation"`
	Bearing         *float64           `json:"Bearing,omitempty"`
	Velocity        *int               `json:"Velocity,omitempty"`
	ProgressRate    string             `json:"ProgressRate,omitempty"`
	VehicleRef      string             `json:"VehicleRef"`
	MonitoredCall   *siriMonitoredCall `json:"MonitoredCall,omitempty"`
}

type siriLocation struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
}

type siriMonitoredCall struct {
	StopPointRef  string `json:"StopPointRef"`
	Order         *int   `json:"Order,omitempty"`
	StopPointName string `json:"StopPointName,omitempty"`
	VehicleAtStop *bool  `json:"VehicleAtStop,omitempty"`
}

func normalizeDetailLevel(s string) (string, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "normal" {
		return "normal", nil
	}
	if s == "calls" {
		return "calls", nil
	}
	return "", &QueryError{Msg: "Unsupported VehicleMonitoringDetailLevel: " + s}
}

func buildErrorPayload(msg string) []byte {
	type siriErr struct {
		Siri struct {
			ServiceDelivery struct {
				ErrorCondition struct {
					Description string `json:"Description"`
				} `json:"ErrorCondition"`
			} `json:"ServiceDelivery"`
		} `json:"Siri"`
	}
	var e siriErr
	e.Siri.ServiceDelivery.ErrorCondition.Description = msg
	b, _ := json.Marshal(e)
	return b
}

func memoKey(args ...string) string {
	var b bytes.Buffer
	for i, a := range args {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(a)
	}
	return b.String()
}

// siriRenderer builds and memoizes VehicleMonitoring responses. The
// memo holds rendered payloads for the current snapshot sequence only;
// a new publish clears it.
type siriRenderer struct {
	query        *vehicle.Query
	stops        arrivals.StopNames
	readInterval time.Duration

	mu   sync.Mutex
	seq  uint64
	memo map[string][]byte
}

func newSiriRenderer(query *vehicle.Query, stops arrivals.StopNames, readInterval time.Duration) *siriRenderer {
	return &siriRenderer{
		query:        query,
		stops:        stops,
		readInterval: readInterval,
		memo:         map[string][]byte{},
	}
}

func (sr *siriRenderer) render(params map[string]string) ([]byte, error) {
	if _, err := normalizeDetailLevel(params["vehiclemonitoringdetaillevel"]); err != nil {
		return nil, err
	}
	maxVehicles, err := parseNonNegativeInt(params["maximumvehicles"])
	if err != nil {
		return nil, err
	}
	lineRef := lower(params["lineref"])
	vehicleRef := lower(params["vehicleref"])

	snap := sr.query.Current()
	if snap == nil {
		// Nothing collected yet renders as an empty delivery.
		return json.Marshal(emptyDelivery())
	}

	key := memoKey("vm", "json", lineRef, vehicleRef, strconv.Itoa(maxVehicles))
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if snap.Sequence != sr.seq {
		sr.seq = snap.Sequence
		sr.memo = map[string][]byte{}
	}
	if buf, ok := sr.memo[key]; ok {
		return buf, nil
	}
	buf, err := json.Marshal(sr.build(snap, lineRef, vehicleRef, maxVehicles))
	if err != nil {
		return nil, err
	}
	sr.memo[key] = buf
	return buf, nil
}

func (sr *siriRenderer) build(snap *vehicle.Snapshot, lineRef, vehicleRef string, maxVehicles int) *siriResponse {
	vm := vehicleMonitoring{
		ResponseTimestamp: utils.Iso8601FromTime(snap.CollectedAt),
		ValidUntil:        utils.ValidUntilFrom(snap.CollectedAt.Unix(), int(sr.readInterval.Milliseconds())),
		VehicleActivity:   []vehicleActivityEntry{},
	}
	for _, rec := range snap.Records {
		if lineRef != "" && lower(rec.RouteID) != lineRef {
			continue
		}
		if vehicleRef != "" && lower(rec.VehicleID) != vehicleRef {
			continue
		}
		if maxVehicles >= 0 && len(vm.VehicleActivity) >= maxVehicles {
			break
		}
		vm.VehicleActivity = append(vm.VehicleActivity, vehicleActivityEntry{
			RecordedAtTime:          recordedAt(rec),
			MonitoredVehicleJourney: sr.buildMVJ(snap, rec),
		})
	}
	return &siriResponse{Siri: siriServiceDelivery{ServiceDelivery: serviceDelivery{
		ResponseTimestamp:         utils.Iso8601Now(),
		ProducerRef:               snap.Source,
		VehicleMonitoringDelivery: []vehicleMonitoring{vm},
	}}}
}

func (sr *siriRenderer) buildMVJ(snap *vehicle.Snapshot, rec vehicle.Record) monitoredVehicleJourney {
	mvj := monitoredVehicleJourney{
		LineRef:         rec.RouteID,
		Monitored:       true,
		DataSource:      snap.Source,
		VehicleLocation: siriLocation{Latitude: rec.Latitude, Longitude: rec.Longitude},
		Bearing:         rec.Bearing,
		ProgressRate:    progressRate(rec),
		VehicleRef:      rec.VehicleID,
	}
	if rec.SpeedKMH != nil {
		// SIRI velocity is metres per second.
		v := int(math.Round(*rec.SpeedKMH / kmhPerMeterPerSecond))
		mvj.Velocity = &v
	}
	if rec.StopCode != "" || rec.StopIndex >= 0 {
		call := &siriMonitoredCall{StopPointRef: rec.StopCode}
		if rec.StopIndex >= 0 {
			order := rec.StopIndex + 1
			call.Order = &order
		}
		if name := sr.stops.Name(rec.StopCode); name != rec.StopCode {
			call.StopPointName = name
		}
		atStop := rec.AtStop
		call.VehicleAtStop = &atStop
		mvj.MonitoredCall = call
	}
	return mvj
}

func progressRate(rec vehicle.Record) string {
	if rec.AtStop {
		return "noProgress"
	}
	return "normalProgress"
}

func recordedAt(rec vehicle.Record) string {
	if rec.Timestamp > 0 {
		return utils.Iso8601FromUnixSeconds(rec.Timestamp)
	}
	return utils.Iso8601FromTime(rec.ObservedAt)
}

func emptyDelivery() *siriResponse {
	return &siriResponse{Siri: siriServiceDelivery{ServiceDelivery: serviceDelivery{
		ResponseTimestamp: utils.Iso8601Now(),
		ProducerRef:       "UNKNOWN",
		VehicleMonitoringDelivery: []vehicleMonitoring{{
			ResponseTimestamp: utils.Iso8601Now(),
			VehicleActivity:   []vehicleActivityEntry{},
		}},
	}}}
}

func (s *Server) handleVehicleMonitoringJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	buf, err := s.siri.render(queryParams(r))
	if err != nil {
		var qerr *QueryError
		if errors.As(err, &qerr) {
			w.WriteHeader(http.StatusBadRequest)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_, _ = w.Write(buildErrorPayload(err.Error()))
		return
	}
	_, _ = w.Write(buf)
}
