// Package feed fetches raw vehicle positions from an upstream provider.
//
// A Source performs one fetch-and-parse cycle per call and reports
// failures through the NetworkError, HTTPError and ParseError types so
// the collector can classify them. Retry policy belongs to the
// collector, not here.
//
// Two sources are implemented: the Macau DSAT route/station API and
// GTFS-Realtime VehiclePositions feeds.
package feed
