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

package probe

import (
	"context"
	"time"

	"github.com/carverauto/cachewarm/pkg/models"
)

// forceAttempts is the attempt budget under force mode: a quick status
// refresh trades thoroughness for speed.
const forceAttempts = 1

// Gate blocks until the caller may issue one outbound probe call.
// *rate.Limiter satisfies it.
type Gate interface {
	Wait(ctx context.Context) error
}

// Policy is the per-identifier retry state machine: a fixed per-episode
// attempt budget with a fixed, non-exponential delay between attempts.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// WithForce returns the policy adjusted for force mode.
func (p Policy) WithForce(force bool) Policy {
	if force {
		p.MaxAttempts = forceAttempts
	}

	return p
}

// Run drives one identifier through its full attempt loop: acquire the
// rate gate, probe, classify, delay, retry. It returns a terminal
// EpisodeResult, or ctx.Err() when cancellation interrupted the loop so
// the caller can skip the commit cleanly. A fatal classification
// short-circuits the remaining budget straight to timeout.
func (p Policy) Run(ctx context.Context, id string, client Client, gate Gate) (models.EpisodeResult, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	lastCode := ""

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if gate != nil {
			if err := gate.Wait(ctx); err != nil {
				return models.EpisodeResult{}, err
			}
		}

		outcome := client.Probe(ctx, id)
		lastCode = outcome.Code

		switch outcome.Class {
		case models.ClassOK:
			return models.EpisodeResult{
				Status:         models.StatusSuccess,
				Attempts:       attempt,
				LastStatusCode: lastCode,
				CheckedAt:      time.Now().UTC(),
			}, nil
		case models.ClassFatal:
			return models.EpisodeResult{
				Status:         models.StatusTimeout,
				Attempts:       attempt,
				LastStatusCode: lastCode,
				CheckedAt:      time.Now().UTC(),
			}, nil
		case models.ClassNotReady:
			// A cancelled context also surfaces as not_ready from the
			// client; stop instead of burning the remaining budget.
			if ctx.Err() != nil {
				return models.EpisodeResult{}, ctx.Err()
			}
		}

		if attempt < maxAttempts && p.Delay > 0 {
			if err := sleep(ctx, p.Delay); err != nil {
				return models.EpisodeResult{}, err
			}
		}
	}

	return models.EpisodeResult{
		Status:         models.StatusTimeout,
		Attempts:       maxAttempts,
		LastStatusCode: lastCode,
		CheckedAt:      time.Now().UTC(),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
