package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/theoremus-urban-solutions/transit-collector/arrivals"
	"github.com/theoremus-urban-solutions/transit-collector/collector"
	"github.com/theoremus-urban-solutions/transit-collector/config"
	"github.com/theoremus-urban-solutions/transit-collector/feed"
	"github.com/theoremus-urban-solutions/transit-collector/server"
	"github.com/theoremus-urban-solutions/transit-collector/vehicle"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:        "transit-collector",
		Description: "Polls a live bus position feed and serves validated snapshots over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the collector and the HTTP API",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					setupLogging(cfg.Logging)
					return run(cfg)
				},
			},
			{
				Name:  "oneshot",
				Usage: "run a single collection cycle and print the snapshot",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					setupLogging(cfg.Logging)
					return oneshot(cfg)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setupLogging(cfg config.LoggingConfig) {
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.Level); err == nil && level != zerolog.NoLevel {
		log.Logger = log.Logger.Level(level)
	}
}

func buildSource(cfg *config.AppConfig) (feed.Source, error) {
	timeout := cfg.Collector.FetchTimeout()
	switch cfg.Feed.Kind {
	case config.KindDSAT:
		return feed.NewDSATSource(cfg.Feed.DSAT.Endpoint, cfg.Feed.DSAT.Routes, cfg.Feed.DSAT.Lang, timeout), nil
	case config.KindGTFSRT:
		return feed.NewGTFSRTSource(cfg.Feed.GTFSRT.VehiclePositionsURL, timeout), nil
	}
	return nil, fmt.Errorf("unknown feed kind %q", cfg.Feed.Kind)
}

func run(cfg *config.AppConfig) error {
	source, err := buildSource(cfg)
	if err != nil {
		return err
	}

	store := vehicle.NewStore(cfg.Collector.HistorySize)
	query := vehicle.NewQuery(store)

	journal, err := arrivals.OpenJournal(cfg.Arrivals.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open arrival journal: %w", err)
	}
	defer journal.Close()

	var stops arrivals.StopNames
	if cfg.Arrivals.StopNamesPath != "" {
		stops, err = arrivals.LoadStopNames(cfg.Arrivals.StopNamesPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Arrivals.StopNamesPath).
				Msg("Stop names unavailable, codes will be served as-is")
		}
	}

	recorder := arrivals.NewRecorder(journal, stops, cfg.Arrivals.StaleAfter())
	hub := server.NewHub(query)

	col := collector.New(source, store, collector.Options{
		PollInterval: cfg.Collector.PollInterval(),
		MaxBackoff:   cfg.Collector.MaxBackoff(),
		FetchTimeout: cfg.Collector.FetchTimeout(),
		AlarmAfter:   cfg.Collector.AlarmAfterFailures,
		Sinks:        []collector.Sink{recorder, hub},
	})

	srv := server.New(cfg.Server.Port, server.Deps{
		Query:        query,
		Collector:    col,
		Journal:      journal,
		StopNames:    stops,
		Hub:          hub,
		PollInterval: cfg.Collector.PollInterval(),
		StaleAfter:   cfg.Collector.StaleAfter(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- col.Run(ctx) }()
	srv.Start()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	<-signals // wait for signal
	go func() {
		<-signals // hard exit on second signal (in case shutdown gets stuck)
		os.Exit(1)
	}()
	log.Info().Msg("Shutdown signal received")

	cancel()
	<-done
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("Shutdown complete")
	return nil
}

func oneshot(cfg *config.AppConfig) error {
	source, err := buildSource(cfg)
	if err != nil {
		return err
	}
	store := vehicle.NewStore(1)
	col := collector.New(source, store, collector.Options{
		FetchTimeout: cfg.Collector.FetchTimeout(),
	})
	snap, err := col.RunOnce(context.Background())
	if err != nil {
		return err
	}
	buf, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
