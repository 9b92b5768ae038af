package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/transit-collector/arrivals"
	"github.com/theoremus-urban-solutions/transit-collector/collector"
	"github.com/theoremus-urban-solutions/transit-collector/vehicle"
)

// Deps are the read-side collaborators the server serves from.
type Deps struct {
	Query     *vehicle.Query
	Collector *collector.Collector
	Journal   *arrivals.Journal
	StopNames arrivals.StopNames
	Hub       *Hub

	// PollInterval drives the ValidUntil hint on SIRI responses;
	// StaleAfter is the snapshot age at which health reports stale.
	PollInterval time.Duration
	StaleAfter   time.Duration
}

// Server is the HTTP read surface over the snapshot store.
type Server struct {
	deps Deps
	siri *siriRenderer
	http *http.Server
}

// New builds the server and its routes.
func New(port int, deps Deps) *Server {
	s := &Server{
		deps: deps,
		siri: newSiriRenderer(deps.Query, deps.StopNames, deps.PollInterval),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/vehicles.json", s.handleVehicles)
	mux.HandleFunc("/api/snapshots.json", s.handleSnapshots)
	mux.HandleFunc("/api/arrivals.json", s.handleArrivals)
	mux.HandleFunc("/api/siri/vehicle-monitoring.json", s.handleVehicleMonitoringJSON)
	if deps.Hub != nil {
		mux.HandleFunc("/ws", deps.Hub.handleWS)
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()
	log.Info().Str("addr", s.http.Addr).Msg("Server listening")
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
