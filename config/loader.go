package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPaths are tried in order when Load is given an empty path.
var DefaultPaths = []string{"config.yml", "./configs/config.yml"}

// Load reads the configuration at path, fills in defaults and
// validates the result. An empty path tries DefaultPaths in order.
func Load(path string) (*AppConfig, error) {
	paths := []string{path}
	if path == "" {
		paths = DefaultPaths
	}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	switch cfg.Feed.Kind {
	case KindDSAT:
		if len(cfg.Feed.DSAT.Routes) == 0 {
			return nil, fmt.Errorf("invalid config: dsat feed needs at least one route")
		}
	case KindGTFSRT:
		if cfg.Feed.GTFSRT.VehiclePositionsURL == "" {
			return nil, fmt.Errorf("invalid config: gtfsrt feed needs vehiclePositionsURL")
		}
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Feed.Kind == "" {
		c.Feed.Kind = KindDSAT
	}
	if c.Collector.PollIntervalMS == 0 {
		c.Collector.PollIntervalMS = 5000
	}
	if c.Collector.MaxBackoffMS == 0 {
		c.Collector.MaxBackoffMS = 120000
	}
	if c.Collector.FetchTimeoutMS == 0 {
		c.Collector.FetchTimeoutMS = 10000
	}
	if c.Collector.AlarmAfterFailures == 0 {
		c.Collector.AlarmAfterFailures = 5
	}
	if c.Collector.HistorySize == 0 {
		c.Collector.HistorySize = 30
	}
	if c.Collector.StaleAfterMS == 0 {
		c.Collector.StaleAfterMS = 30000
	}
	if c.Arrivals.DatabasePath == "" {
		c.Arrivals.DatabasePath = "./data/bus_data.db"
	}
	if c.Arrivals.StaleAfterMinutes == 0 {
		c.Arrivals.StaleAfterMinutes = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}
