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

// Package warmer schedules the cache-warming probes: a bounded worker
// pool drives pending identifiers through their per-identifier retry
// loops behind a shared rate limiter and commits every outcome to the
// ledger as it lands.
package warmer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/carverauto/cachewarm/pkg/logger"
	"github.com/carverauto/cachewarm/pkg/models"
	"github.com/carverauto/cachewarm/pkg/probe"
)

const (
	defaultConcurrency   = 5
	defaultRatePerSecond = 3
	defaultProgressEvery = 25
)

// Ledger is the slice of the ledger store the warmer needs: committing
// outcomes one identifier at a time.
type Ledger interface {
	Commit(id string, result models.EpisodeResult) error
}

// Notifier receives identifiers whose status transitioned into success.
// Implementations must not block.
type Notifier interface {
	Notify(id, displayName string)
}

// Config tunes one warming episode.
type Config struct {
	// Concurrency is the fixed worker pool size.
	Concurrency int
	// RatePerSecond bounds outbound probe calls across all workers.
	RatePerSecond float64
	// Policy is the per-identifier retry state machine.
	Policy probe.Policy
	// ProgressEvery logs a progress line every N completed identifiers.
	// Zero disables progress logging.
	ProgressEvery int
}

// Stats are the counters for one episode.
type Stats struct {
	Checked   int
	Successes int
	Failures  int
	Refreshes int
	// Skipped counts identifiers whose attempt loop was interrupted by
	// shutdown before reaching a terminal outcome; their ledger rows are
	// untouched.
	Skipped int
}

// Warmer runs warming episodes.
type Warmer struct {
	config   Config
	client   probe.Client
	ledger   Ledger
	notifier Notifier
	limiter  *rate.Limiter
	logger   logger.Logger

	mu    sync.Mutex
	stats Stats
	start time.Time
	total int
}

// New creates a Warmer. notifier may be nil when refresh triggering is
// disabled.
func New(config Config, client probe.Client, store Ledger, notifier Notifier, log logger.Logger) *Warmer {
	if config.Concurrency < 1 {
		config.Concurrency = defaultConcurrency
	}

	if config.RatePerSecond <= 0 {
		config.RatePerSecond = defaultRatePerSecond
	}

	// Burst of one keeps throughput smooth at the configured rate
	// instead of bursting then idling.
	return &Warmer{
		config:   config,
		client:   client,
		ledger:   store,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(config.RatePerSecond), 1),
		logger:   log,
	}
}

// Run drives the pending identifiers to completion and returns the
// episode counters. A cancelled context stops cleanly: in-flight attempts
// finish within their probe timeout and uncommitted identifiers are
// counted as skipped. Only ledger commit failures return an error.
func (w *Warmer) Run(ctx context.Context, pending []models.Record) (Stats, error) {
	w.mu.Lock()
	w.stats = Stats{}
	w.start = time.Now()
	w.total = len(pending)
	w.mu.Unlock()

	if len(pending) == 0 {
		return Stats{}, nil
	}

	workCh := make(chan models.Record)

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.config.Concurrency; i++ {
		g.Go(func() error {
			for rec := range workCh {
				if err := w.processOne(gctx, rec); err != nil {
					return err
				}
			}

			return nil
		})
	}

	g.Go(func() error {
		defer close(workCh)

		for _, rec := range pending {
			select {
			case <-gctx.Done():
				return nil
			case workCh <- rec:
			}
		}

		return nil
	})

	err := g.Wait()

	w.mu.Lock()
	stats := w.stats
	w.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		return stats, err
	}

	return stats, nil
}

// processOne runs one identifier's full attempt loop and commits the
// outcome. Anything unexpected is contained here and recorded as a
// timeout so one bad identifier cannot abort the run; only a failed
// ledger commit propagates.
func (w *Warmer) processOne(ctx context.Context, rec models.Record) error {
	result, runErr := w.runGuarded(ctx, rec)

	if runErr != nil {
		// Interrupted by shutdown before a terminal outcome: skip the
		// commit entirely rather than half-applying it.
		w.mu.Lock()
		w.stats.Skipped++
		w.mu.Unlock()

		return nil
	}

	if err := w.ledger.Commit(rec.ID, result); err != nil {
		return fmt.Errorf("committing %s: %w", rec.ID, err)
	}

	transitioned := result.Status == models.StatusSuccess && rec.Status != models.StatusSuccess
	if transitioned && w.notifier != nil {
		w.notifier.Notify(rec.ID, rec.DisplayName)
	}

	w.logOutcome(rec, result)
	w.account(result, transitioned)

	return nil
}

// runGuarded wraps the retry loop with a panic boundary. A panic while
// probing is recorded as a timeout outcome, not a crashed run.
func (w *Warmer) runGuarded(ctx context.Context, rec models.Record) (result models.EpisodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("id", rec.ID).
				Interface("panic", r).
				Msg("recovered panic while probing identifier")

			result = models.EpisodeResult{
				Status:         models.StatusTimeout,
				Attempts:       w.config.Policy.MaxAttempts,
				LastStatusCode: models.CodeNetworkError,
				CheckedAt:      time.Now().UTC(),
			}
			err = nil
		}
	}()

	if ctx.Err() != nil {
		return models.EpisodeResult{}, ctx.Err()
	}

	return w.config.Policy.Run(ctx, rec.ID, w.client, w.limiter)
}

func (w *Warmer) logOutcome(rec models.Record, result models.EpisodeResult) {
	event := w.logger.Info()
	if result.Status != models.StatusSuccess {
		event = w.logger.Warn()
	}

	event.
		Str("id", rec.ID).
		Str("name", rec.DisplayName).
		Str("status", string(result.Status)).
		Int("attempts", result.Attempts).
		Str("last_code", result.LastStatusCode).
		Msg("identifier checked")
}

func (w *Warmer) account(result models.EpisodeResult, transitioned bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.Checked++

	if result.Status == models.StatusSuccess {
		w.stats.Successes++
	} else {
		w.stats.Failures++
	}

	if transitioned {
		w.stats.Refreshes++
	}

	if w.config.ProgressEvery > 0 && w.stats.Checked%w.config.ProgressEvery == 0 {
		w.logProgressLocked()
	}
}

// logProgressLocked emits processed count, observed throughput, and an
// ETA. Callers must hold w.mu.
func (w *Warmer) logProgressLocked() {
	elapsed := time.Since(w.start).Seconds()
	if elapsed <= 0 {
		elapsed = 0.001
	}

	perSec := float64(w.stats.Checked) / elapsed
	remaining := w.total - w.stats.Checked

	eta := time.Duration(0)
	if perSec > 0 {
		eta = time.Duration(float64(remaining)/perSec) * time.Second
	}

	w.logger.Info().
		Int("processed", w.stats.Checked).
		Int("total", w.total).
		Float64("ids_per_sec", perSec).
		Float64("rate_limit", w.config.RatePerSecond).
		Dur("eta", eta).
		Msg("warming progress")
}
