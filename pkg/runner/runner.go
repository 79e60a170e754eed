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

// Package runner wires the collaborators into warming episodes: load the
// ledger, discover identifiers, merge, probe the pending subset, and
// report.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/cachewarm/pkg/config"
	"github.com/carverauto/cachewarm/pkg/ledger"
	"github.com/carverauto/cachewarm/pkg/logger"
	"github.com/carverauto/cachewarm/pkg/models"
	"github.com/carverauto/cachewarm/pkg/probe"
	"github.com/carverauto/cachewarm/pkg/warmer"
)

const dryRunPreview = 10

// Inventory lists the current identifier set from the source service.
type Inventory interface {
	List(ctx context.Context) ([]models.Identity, error)
}

// Notifier is the refresh collaborator as the runner sees it.
type Notifier interface {
	SetIdentities(identities []models.Identity)
	Notify(id, displayName string)
}

// Runner executes warming episodes.
type Runner struct {
	cfg       *config.Config
	store     *ledger.Store
	inventory Inventory
	client    probe.Client
	notifier  Notifier
	logger    logger.Logger

	// DryRun logs what would be checked without probing or committing.
	DryRun bool
}

// New creates a Runner. notifier may be nil when refresh triggering is
// disabled.
func New(
	cfg *config.Config,
	store *ledger.Store,
	inv Inventory,
	client probe.Client,
	notifier Notifier,
	log logger.Logger,
) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     store,
		inventory: inv,
		client:    client,
		notifier:  notifier,
		logger:    log,
	}
}

// RunEpisode performs one full episode. Ledger load/commit failures are
// returned (run-fatal); an unreachable inventory service is tolerated and
// the episode proceeds with the identifiers already in the ledger.
func (r *Runner) RunEpisode(ctx context.Context, force bool) (*models.Summary, error) {
	runID := uuid.NewString()
	log := r.logger.With().Str("run_id", runID).Logger()

	if _, err := r.store.Load(); err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	identities, err := r.inventory.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("inventory unavailable, proceeding with ledger contents")

		identities = nil
	}

	added := r.store.Merge(identities)

	if r.notifier != nil {
		r.notifier.SetIdentities(identities)
	}

	// Persist newly discovered identifiers before probing so an early
	// crash does not lose the discovery.
	if err := r.store.Flush(); err != nil {
		return nil, fmt.Errorf("persisting merged ledger: %w", err)
	}

	pending := r.store.Pending(force)

	log.Info().
		Int("discovered", len(identities)).
		Int("new", added).
		Int("pending", len(pending)).
		Bool("force", force).
		Msg("episode starting")

	if r.DryRun {
		r.logDryRun(pending)
		return r.summarize(runID, force, warmer.Stats{}, added, len(identities)), nil
	}

	stats, err := r.warm(ctx, force, pending)
	if err != nil {
		return nil, err
	}

	summary := r.summarize(runID, force, stats, added, len(identities))

	if err := writeSummaryFile(r.cfg.ResultsDir, summary); err != nil {
		// The episode itself succeeded; a missing results file is not
		// worth failing the run over.
		log.Warn().Err(err).Msg("failed to write results log")
	}

	log.Info().
		Int("success", summary.Success).
		Int("timeout", summary.Timeout).
		Int("total", summary.Total).
		Int("refreshes_triggered", summary.Refreshes).
		Bool("force_mode", summary.ForceMode).
		Msg("episode finished")

	return summary, nil
}

func (r *Runner) warm(ctx context.Context, force bool, pending []models.Record) (warmer.Stats, error) {
	policy := probe.Policy{
		MaxAttempts: r.cfg.Probe.MaxAttempts,
		Delay:       r.cfg.Probe.Delay.Duration(),
	}.WithForce(force)

	var notifier warmer.Notifier
	if r.notifier != nil {
		notifier = r.notifier
	}

	w := warmer.New(warmer.Config{
		Concurrency:   r.cfg.Probe.MaxConcurrentRequests,
		RatePerSecond: r.cfg.Probe.RateLimitPerSecond,
		Policy:        policy,
		ProgressEvery: r.cfg.Monitoring.LogProgressEveryN,
	}, r.client, r.store, notifier, r.logger)

	return w.Run(ctx, pending)
}

func (r *Runner) logDryRun(pending []models.Record) {
	preview := pending
	if len(preview) > dryRunPreview {
		preview = preview[:dryRunPreview]
	}

	for _, rec := range preview {
		r.logger.Info().Str("id", rec.ID).Str("name", rec.DisplayName).Msg("dry run: would check")
	}

	if len(pending) > dryRunPreview {
		r.logger.Info().Int("more", len(pending)-dryRunPreview).Msg("dry run: additional identifiers not shown")
	}
}

func (r *Runner) summarize(runID string, force bool, stats warmer.Stats, added, discovered int) *models.Summary {
	success, timeout, pendingCount, total := r.store.Counts()

	return &models.Summary{
		RunID:           runID,
		FinishedAt:      time.Now().UTC(),
		Success:         success,
		Timeout:         timeout,
		Pending:         pendingCount,
		Total:           total,
		ForceMode:       force,
		Refreshes:       stats.Refreshes,
		NewSuccesses:    stats.Successes,
		NewFailures:     stats.Failures,
		CheckedThisRun:  stats.Checked,
		DiscoveredNew:   added,
		DiscoveredTotal: discovered,
	}
}
