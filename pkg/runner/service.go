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

package runner

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/cachewarm/pkg/logger"
)

// Service runs warming episodes on a fixed interval until stopped.
// Episodes run sequentially; a tick that fires while an episode is still
// in flight is dropped by the ticker rather than queued.
type Service struct {
	runner     *Runner
	interval   time.Duration
	runAtStart bool
	force      bool
	clock      Clock
	logger     logger.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewService creates the interval service. A nil clock defaults to the
// real clock.
func NewService(r *Runner, interval time.Duration, runAtStart, force bool, clock Clock, log logger.Logger) *Service {
	if clock == nil {
		clock = realClock{}
	}

	return &Service{
		runner:     r,
		interval:   interval,
		runAtStart: runAtStart,
		force:      force,
		clock:      clock,
		logger:     log,
		done:       make(chan struct{}),
	}
}

// Start blocks, running episodes until the context is cancelled or Stop
// is called. Run-fatal episode errors (ledger I/O) are returned so the
// process exits non-zero instead of looping on inconsistent state.
func (s *Service) Start(ctx context.Context) error {
	s.wg.Add(1)
	defer s.wg.Done()

	s.logger.Info().
		Dur("interval", s.interval).
		Bool("run_at_start", s.runAtStart).
		Msg("starting warming service")

	if s.runAtStart {
		if err := s.runOnce(ctx); err != nil {
			return err
		}
	}

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-ticker.Chan():
			if err := s.runOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Service) runOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	_, err := s.runner.RunEpisode(ctx, s.force)

	return err
}

// Stop requests a clean shutdown and waits for the in-flight episode to
// wind down.
func (s *Service) Stop(_ context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.wg.Wait()

	return nil
}
