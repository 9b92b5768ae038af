package config

import "time"

// Feed adapter kinds.
const (
	KindDSAT   = "dsat"
	KindGTFSRT = "gtfsrt"
)

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// DSATConfig contains the Macau DSAT bus API configuration
type DSATConfig struct {
	Endpoint string   `yaml:"endpoint" validate:"omitempty,url"`
	Routes   []string `yaml:"routes"`
	Lang     string   `yaml:"lang"`
}

// GTFSRTConfig contains GTFS-Realtime feed configuration
type GTFSRTConfig struct {
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty,url"`
}

// FeedConfig selects and configures the upstream feed adapter
type FeedConfig struct {
	Kind   string       `yaml:"kind" validate:"omitempty,oneof=dsat gtfsrt"`
	DSAT   DSATConfig   `yaml:"dsat"`
	GTFSRT GTFSRTConfig `yaml:"gtfsrt"`
}

// CollectorConfig contains poll cadence and backoff configuration
type CollectorConfig struct {
	PollIntervalMS     int `yaml:"pollIntervalMS" validate:"gte=0"`
	MaxBackoffMS       int `yaml:"maxBackoffMS" validate:"gte=0"`
	FetchTimeoutMS     int `yaml:"fetchTimeoutMS" validate:"gte=0"`
	AlarmAfterFailures int `yaml:"alarmAfterFailures" validate:"gte=0"`
	HistorySize        int `yaml:"historySize" validate:"gte=0"`
	StaleAfterMS       int `yaml:"staleAfterMS" validate:"gte=0"`
}

// PollInterval returns the poll cadence as a duration
func (c CollectorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// MaxBackoff returns the backoff ceiling as a duration
func (c CollectorConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

// FetchTimeout returns the per-fetch timeout as a duration
func (c CollectorConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// StaleAfter returns the snapshot age at which health reports stale
func (c CollectorConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMS) * time.Millisecond
}

// ArrivalsConfig contains the arrival journal configuration
type ArrivalsConfig struct {
	DatabasePath      string `yaml:"databasePath"`
	StopNamesPath     string `yaml:"stopNamesPath"`
	StaleAfterMinutes int    `yaml:"staleAfterMinutes" validate:"gte=0"`
}

// StaleAfter returns the vehicle tracking stale window as a duration
func (c ArrivalsConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// LoggingConfig contains log output configuration
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Feed      FeedConfig      `yaml:"feed"`
	Collector CollectorConfig `yaml:"collector"`
	Arrivals  ArrivalsConfig  `yaml:"arrivals"`
	Logging   LoggingConfig   `yaml:"logging"`
}
