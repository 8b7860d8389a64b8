// Copyright © 2024 Mutker Telag <witty.text5011@fastmail.com>
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/powerwallmon/internal/config"
	"codeberg.org/mutker/powerwallmon/internal/journal"
	"codeberg.org/mutker/powerwallmon/internal/logger"
	"codeberg.org/mutker/powerwallmon/internal/monitor"
	"codeberg.org/mutker/powerwallmon/internal/pid"
	"codeberg.org/mutker/powerwallmon/internal/powerwall"
	"codeberg.org/mutker/powerwallmon/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.Error().Err(err).Msg("failed to write PID file")
		os.Exit(1)
	}
	defer pid.Remove()

	device := powerwall.New(powerwall.Config{
		Host:     cfg.Powerwall.Host,
		Email:    cfg.Powerwall.Email,
		Password: cfg.Powerwall.Password,
	})

	recorder, err := telemetry.NewRecorder(telemetry.Config{
		URL:    cfg.InfluxDB.URL,
		Token:  cfg.InfluxDB.Token,
		Org:    cfg.InfluxDB.Org,
		Bucket: cfg.InfluxDB.Bucket,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize telemetry recorder")
		os.Exit(1)
	}

	journalCollector, err := journal.NewService(journal.Config{
		Enabled: cfg.Journal.Enabled,
		DBPath:  cfg.Journal.Database,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize cycle journal")
		os.Exit(1)
	}
	defer journalCollector.Close()

	mon := monitor.New(monitor.Config{
		Interval: time.Duration(cfg.Interval) * time.Second,
		Backoff:  time.Duration(cfg.Backoff) * time.Second,
		DryRun:   cfg.DryRun,
	}, device, recorder, journalCollector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	logger.Info().
		Str("host", cfg.Powerwall.Host).
		Int("interval", cfg.Interval).
		Bool("dry_run", cfg.DryRun).
		Msg("Starting Powerwall monitoring")

	if err := mon.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
		pid.Remove()
		os.Exit(1)
	}

	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
