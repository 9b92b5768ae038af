// Package server exposes the collected snapshots over HTTP: plain
// JSON endpoints for the dashboard, a SIRI VehicleMonitoring rendering
// for standards-speaking consumers, and a websocket push channel. All
// endpoints are read-only; none of them ever triggers a fetch.
package server
