/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/carverauto/cachewarm/pkg/config"
	"github.com/carverauto/cachewarm/pkg/inventory"
	"github.com/carverauto/cachewarm/pkg/ledger"
	"github.com/carverauto/cachewarm/pkg/logger"
	"github.com/carverauto/cachewarm/pkg/probe"
	"github.com/carverauto/cachewarm/pkg/refresh"
	"github.com/carverauto/cachewarm/pkg/runner"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/data/config.json", "Path to config file (JSON or YAML)")
	force := flag.Bool("force", false, "Re-check identifiers already marked success")
	once := flag.Bool("once", false, "Run a single episode and exit instead of looping")
	dryRun := flag.Bool("dry-run", false, "Show what would be checked without probing")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	forceMode := *force || cfg.Run.Force
	if forceMode {
		appLogger.Info().Msg("force mode enabled: re-checking all identifiers")
	}

	store := ledger.NewFileStore(cfg.Ledger.CSVPath, appLogger.WithComponent("ledger"))
	inv := inventory.NewClient(
		cfg.Inventory.BaseURL,
		cfg.Inventory.APIKey,
		cfg.Probe.Timeout.Duration(),
		appLogger.WithComponent("inventory"),
	)
	client := probe.NewHTTPClient(
		cfg.Probe.TargetBaseURL,
		cfg.Probe.Timeout.Duration(),
		cfg.Probe.FatalStatusCodes,
		appLogger.WithComponent("probe"),
	)

	var notifier runner.Notifier

	if cfg.Actions.TriggerRefresh {
		n := refresh.NewNotifier(cfg.Inventory.BaseURL, cfg.Inventory.APIKey, appLogger.WithComponent("refresh"))
		defer n.Stop()

		notifier = n
	}

	r := runner.New(cfg, store, inv, client, notifier, appLogger)
	r.DryRun = *dryRun

	if *once || *dryRun {
		_, err := r.RunEpisode(ctx, forceMode)
		return err
	}

	svc := runner.NewService(
		r,
		cfg.Schedule.Interval.Duration(),
		cfg.RunAtStart(),
		forceMode,
		nil,
		appLogger.WithComponent("service"),
	)

	err = svc.Start(ctx)
	if err != nil && ctx.Err() != nil {
		// Signal-driven shutdown is a clean exit.
		appLogger.Info().Msg("shutting down")
		return nil
	}

	return err
}
