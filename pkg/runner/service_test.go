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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/cachewarm/pkg/logger"
)

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.ch }
func (*fakeTicker) Stop()                    {}

type fakeClock struct {
	ticker *fakeTicker
}

func (*fakeClock) Now() time.Time { return time.Now() }

func (f *fakeClock) Ticker(time.Duration) Ticker { return f.ticker }

func TestServiceRunsOnTicks(t *testing.T) {
	target := newTargetServer("warm-id", "cold-id")
	defer target.srv.Close()

	inv := inventoryServer(twoArtists)
	defer inv.Close()

	cfg := testConfig(t, inv.URL, target.srv.URL)
	r, _ := newTestRunner(t, cfg)

	clock := &fakeClock{ticker: &fakeTicker{ch: make(chan time.Time)}}
	svc := NewService(r, time.Hour, true, true, clock, logger.NewTestLogger())

	errCh := make(chan error, 1)

	go func() {
		errCh <- svc.Start(context.Background())
	}()

	// run_at_start episode plus one forced tick episode.
	require.Eventually(t, func() bool {
		return target.probeCount("warm-id") >= 1
	}, 5*time.Second, 5*time.Millisecond)

	clock.ticker.ch <- time.Now()

	require.Eventually(t, func() bool {
		return target.probeCount("warm-id") >= 2
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceStopWithoutStart(t *testing.T) {
	target := newTargetServer()
	defer target.srv.Close()

	inv := inventoryServer(`[]`)
	defer inv.Close()

	cfg := testConfig(t, inv.URL, target.srv.URL)
	r, _ := newTestRunner(t, cfg)

	svc := NewService(r, time.Hour, false, false, nil, logger.NewTestLogger())
	assert.NoError(t, svc.Stop(context.Background()))
}

func TestServiceContextCancel(t *testing.T) {
	target := newTargetServer()
	defer target.srv.Close()

	inv := inventoryServer(`[]`)
	defer inv.Close()

	cfg := testConfig(t, inv.URL, target.srv.URL)
	r, _ := newTestRunner(t, cfg)

	clock := &fakeClock{ticker: &fakeTicker{ch: make(chan time.Time)}}
	svc := NewService(r, time.Hour, false, false, clock, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)

	go func() {
		errCh <- svc.Start(ctx)
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not observe cancellation")
	}
}
