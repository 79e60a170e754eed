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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalJSON = `{
	"inventory": {"base_url": "http://lidarr:8686", "api_key": "abc123"}
}`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", minimalJSON))
	require.NoError(t, err)

	assert.Equal(t, "https://api.lidarr.audio/api/v0.4", cfg.Probe.TargetBaseURL)
	assert.Equal(t, 10*time.Second, cfg.Probe.Timeout.Duration())
	assert.Equal(t, 25, cfg.Probe.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Probe.Delay.Duration())
	assert.Equal(t, 5, cfg.Probe.MaxConcurrentRequests)
	assert.InDelta(t, 3.0, cfg.Probe.RateLimitPerSecond, 0.001)
	assert.Equal(t, "/data/mbids.csv", cfg.Ledger.CSVPath)
	assert.Equal(t, time.Hour, cfg.Schedule.Interval.Duration())
	assert.Equal(t, 25, cfg.Monitoring.LogProgressEveryN)
	assert.True(t, cfg.RunAtStart())
	assert.False(t, cfg.Run.Force)
	assert.Empty(t, cfg.Probe.FatalStatusCodes)
}

func TestLoadYAML(t *testing.T) {
	content := `
inventory:
  base_url: http://lidarr:8686
  api_key: abc123
probe:
  timeout: 3s
  max_attempts: 7
  delay: 250ms
  rate_limit_per_second: 1.5
schedule:
  interval: 30m
  run_at_start: false
`

	cfg, err := Load(writeConfig(t, "config.yaml", content))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Probe.Timeout.Duration())
	assert.Equal(t, 7, cfg.Probe.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Probe.Delay.Duration())
	assert.InDelta(t, 1.5, cfg.Probe.RateLimitPerSecond, 0.001)
	assert.Equal(t, 30*time.Minute, cfg.Schedule.Interval.Duration())
	assert.False(t, cfg.RunAtStart())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CACHEWARM_INVENTORY_API_KEY", "from-env")
	t.Setenv("CACHEWARM_LEDGER_PATH", "/tmp/other.csv")

	cfg, err := Load(writeConfig(t, "config.json", minimalJSON))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Inventory.APIKey)
	assert.Equal(t, "/tmp/other.csv", cfg.Ledger.CSVPath)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "missing api key",
			content: `{"inventory": {"base_url": "http://x"}}`,
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "placeholder api key",
			content: `{"inventory": {"base_url": "http://x", "api_key": "REPLACE_WITH_YOUR_KEY"}}`,
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "bad inventory url",
			content: `{"inventory": {"base_url": "lidarr:8686", "api_key": "k"}}`,
			wantErr: ErrInvalidURL,
		},
		{
			name:    "negative attempts",
			content: `{"inventory": {"base_url": "http://x", "api_key": "k"}, "probe": {"max_attempts": -1}}`,
			wantErr: ErrInvalidMaxAttempts,
		},
		{
			name:    "zero rate limit",
			content: `{"inventory": {"base_url": "http://x", "api_key": "k"}, "probe": {"rate_limit_per_second": -2}}`,
			wantErr: ErrInvalidRateLimit,
		},
		{
			name:    "negative concurrency",
			content: `{"inventory": {"base_url": "http://x", "api_key": "k"}, "probe": {"max_concurrent_requests": -3}}`,
			wantErr: ErrInvalidConcurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.json", tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrUnreadableConfig)
}

func TestLoadGarbage(t *testing.T) {
	_, err := Load(writeConfig(t, "config.json", "{not json"))
	assert.ErrorIs(t, err, ErrUnparseableConfig)
}
