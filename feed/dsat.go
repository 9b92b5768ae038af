package feed

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultDSATEndpoint is the public route/station endpoint of the Macau
// transport bureau.
const DefaultDSATEndpoint = "https://bis.dsat.gov.mo:37812/macauweb/routestation/bus"

// The endpoint rejects requests without a browser User-Agent.
const dsatUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36 Edg/117.0.2045.47"

// Bus status values in the DSAT payload. A bus with status "0" has left
// the station it is listed under and is moving toward the next one.
const (
	dsatStatusMoving = "0"
	dsatStatusAtStop = "1"
)

// DSATSource polls the DSAT route/station API. The API is per-route, so
// one Fetch issues a request for every configured route and merges the
// results into a single batch. Any route request failing fails the
// whole cycle; a batch is all routes or nothing.
type DSATSource struct {
	endpoint string
	routes   []string
	lang     string
	client   *http.Client
	now      func() time.Time
}

// NewDSATSource builds a source for the given routes. An empty endpoint
// selects the public API; an empty lang defaults to zh-tw.
func NewDSATSource(endpoint string, routes []string, lang string, timeout time.Duration) *DSATSource {
	if endpoint == "" {
		endpoint = DefaultDSATEndpoint
	}
	if lang == "" {
		lang = "zh-tw"
	}
	return &DSATSource{
		endpoint: endpoint,
		routes:   routes,
		lang:     lang,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

func (s *DSATSource) Name() string { return "dsat" }

// Wire format of the routestation/bus response. Coordinates and speed
// arrive as strings.
type dsatResponse struct {
	Data dsatData `json:"data"`
}

type dsatData struct {
	RouteInfo []dsatStation `json:"routeInfo"`
}

type dsatStation struct {
	StaCode string    `json:"staCode"`
	BusInfo []dsatBus `json:"busInfo"`
}

type dsatBus struct {
	BusPlate  string `json:"busPlate"`
	Status    string `json:"status"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Speed     string `json:"speed"`
}

// Fetch collects every configured route. Route order, station order and
// bus order are preserved so batches are deterministic.
func (s *DSATSource) Fetch(ctx context.Context) (*Batch, error) {
	batch := &Batch{Source: s.Name(), FetchedAt: s.now()}
	for _, route := range s.routes {
		vehicles, err := s.fetchRoute(ctx, route)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", route, err)
		}
		batch.Vehicles = append(batch.Vehicles, vehicles...)
	}
	return batch, nil
}

func (s *DSATSource) fetchRoute(ctx context.Context, route string) ([]RawVehicle, error) {
	payload := fmt.Sprintf("action=dy&dir=0&lang=%s&device=web&routeName=%s", s.lang, route)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(payload))
	if err != nil {
		return nil, &NetworkError{URL: s.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", dsatUserAgent)
	req.Header.Set("token", dsatToken(payload, s.now()))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: s.endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{URL: s.endpoint, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: s.endpoint, Err: err}
	}
	var dr dsatResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, &ParseError{Source: s.Name(), Err: err}
	}

	out := make([]RawVehicle, 0, 8)
	for idx, station := range dr.Data.RouteInfo {
		for _, bus := range station.BusInfo {
			out = append(out, RawVehicle{
				VehicleID: bus.BusPlate,
				RouteID:   route,
				Latitude:  parseCoordinate(bus.Latitude),
				Longitude: parseCoordinate(bus.Longitude),
				SpeedKMH:  parseSpeed(bus.Speed),
				StopCode:  station.StaCode,
				StopIndex: idx,
				AtStop:    bus.Status == dsatStatusAtStop,
			})
		}
	}
	return out, nil
}

// dsatToken interleaves the md5 hex of the form payload with the
// current wall-clock minute (YYYYMMDDHHmm). The endpoint rejects
// requests whose token does not match its own clock.
func dsatToken(payload string, now time.Time) string {
	sum := md5.Sum([]byte(payload))
	digest := hex.EncodeToString(sum[:])
	t := now.Format("200601021504")
	return digest[0:4] + t[0:4] + digest[4:12] + t[4:8] + digest[12:24] + t[8:12] + digest[24:32]
}

// parseCoordinate yields NaN for absent or malformed values, which the
// normalizer drops.
func parseCoordinate(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseSpeed(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
