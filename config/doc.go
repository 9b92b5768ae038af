// Package config handles application configuration loading and validation.
//
// Configuration is loaded from config.yml and validated using struct tags.
// The package supports the DSAT and GTFS-RT feed adapters and fills in
// defaults for anything omitted.
package config
