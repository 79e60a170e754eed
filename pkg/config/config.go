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

// Package config loads and validates the cachewarm configuration file.
// JSON and YAML are both accepted; environment variables override
// secrets and endpoints for containerized deployments.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/carverauto/cachewarm/pkg/logger"
	"github.com/carverauto/cachewarm/pkg/models"
)

var (
	ErrMissingAPIKey       = errors.New("inventory api_key is required")
	ErrInvalidURL          = errors.New("url must start with http:// or https://")
	ErrInvalidMaxAttempts  = errors.New("max_attempts must be >= 1")
	ErrInvalidDelay        = errors.New("delay must be >= 0")
	ErrInvalidTimeout      = errors.New("timeout must be > 0")
	ErrInvalidConcurrency  = errors.New("max_concurrent_requests must be >= 1")
	ErrInvalidRateLimit    = errors.New("rate_limit_per_second must be > 0")
	ErrMissingLedgerPath   = errors.New("ledger csv_path is required")
	ErrUnreadableConfig    = errors.New("failed to read config")
	ErrUnparseableConfig   = errors.New("failed to parse config")
	ErrInvalidInterval     = errors.New("schedule interval must be > 0")
	ErrInvalidProgressStep = errors.New("log_progress_every_n must be >= 0")
)

// Defaults mirror the shipped config.ini of the original deployment.
const (
	defaultTargetBaseURL = "https://api.lidarr.audio/api/v0.4"
	defaultTimeout       = 10 * time.Second
	defaultMaxAttempts   = 25
	defaultDelay         = 500 * time.Millisecond
	defaultConcurrency   = 5
	defaultRateLimit     = 3.0
	defaultProgressEvery = 25
	defaultInterval      = time.Hour
	defaultLedgerPath    = "/data/mbids.csv"
	defaultResultsDir    = "/data"
)

// InventoryConfig addresses the source media manager.
type InventoryConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" env:"CACHEWARM_INVENTORY_URL"`
	APIKey  string `json:"api_key" yaml:"api_key" env:"CACHEWARM_INVENTORY_API_KEY"`
}

// ProbeConfig tunes the probing engine.
type ProbeConfig struct {
	TargetBaseURL         string          `json:"target_base_url" yaml:"target_base_url" env:"CACHEWARM_TARGET_URL"`
	Timeout               models.Duration `json:"timeout" yaml:"timeout"`
	MaxAttempts           int             `json:"max_attempts" yaml:"max_attempts"`
	Delay                 models.Duration `json:"delay" yaml:"delay"`
	MaxConcurrentRequests int             `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	RateLimitPerSecond    float64         `json:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	// FatalStatusCodes lists response codes treated as "will never
	// resolve", short-circuiting the attempt budget. Empty by default:
	// the warming API returns 404/503 while the cache fills, so every
	// non-200 stays retryable unless operators opt in.
	FatalStatusCodes []int `json:"fatal_status_codes" yaml:"fatal_status_codes"`
}

// LedgerConfig locates the durable CSV ledger.
type LedgerConfig struct {
	CSVPath string `json:"csv_path" yaml:"csv_path" env:"CACHEWARM_LEDGER_PATH"`
}

// RunConfig holds per-run behavior toggles.
type RunConfig struct {
	Force bool `json:"force" yaml:"force"`
}

// ActionsConfig enables side effects on status transitions.
type ActionsConfig struct {
	TriggerRefresh bool `json:"trigger_refresh" yaml:"trigger_refresh"`
}

// ScheduleConfig drives the outer episode loop.
type ScheduleConfig struct {
	Interval   models.Duration `json:"interval" yaml:"interval"`
	RunAtStart *bool           `json:"run_at_start" yaml:"run_at_start"`
}

// MonitoringConfig tunes progress reporting.
type MonitoringConfig struct {
	LogProgressEveryN int `json:"log_progress_every_n" yaml:"log_progress_every_n"`
}

// Config is the full configuration tree.
type Config struct {
	Inventory  InventoryConfig  `json:"inventory" yaml:"inventory"`
	Probe      ProbeConfig      `json:"probe" yaml:"probe"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger"`
	Run        RunConfig        `json:"run" yaml:"run"`
	Actions    ActionsConfig    `json:"actions" yaml:"actions"`
	Schedule   ScheduleConfig   `json:"schedule" yaml:"schedule"`
	Monitoring MonitoringConfig `json:"monitoring" yaml:"monitoring"`
	Logging    *logger.Config   `json:"logging" yaml:"logging"`
	ResultsDir string           `json:"results_dir" yaml:"results_dir" env:"CACHEWARM_RESULTS_DIR"`
}

// RunAtStart reports whether the interval loop should run an episode
// immediately on startup. Defaults to true when unset.
func (c *Config) RunAtStart() bool {
	if c.Schedule.RunAtStart == nil {
		return true
	}

	return *c.Schedule.RunAtStart
}

// Load reads, defaults, env-overrides, and validates the config at path.
// YAML is selected by file extension, JSON otherwise.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableConfig, err)
	}

	cfg := &Config{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparseableConfig, err)
	}

	cfg.applyDefaults()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparseableConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Probe.TargetBaseURL == "" {
		c.Probe.TargetBaseURL = defaultTargetBaseURL
	}

	if c.Probe.Timeout.Duration() == 0 {
		c.Probe.Timeout = models.Duration(defaultTimeout)
	}

	if c.Probe.MaxAttempts == 0 {
		c.Probe.MaxAttempts = defaultMaxAttempts
	}

	if c.Probe.Delay.Duration() == 0 {
		c.Probe.Delay = models.Duration(defaultDelay)
	}

	if c.Probe.MaxConcurrentRequests == 0 {
		c.Probe.MaxConcurrentRequests = defaultConcurrency
	}

	if c.Probe.RateLimitPerSecond == 0 {
		c.Probe.RateLimitPerSecond = defaultRateLimit
	}

	if c.Ledger.CSVPath == "" {
		c.Ledger.CSVPath = defaultLedgerPath
	}

	if c.Schedule.Interval.Duration() == 0 {
		c.Schedule.Interval = models.Duration(defaultInterval)
	}

	if c.Monitoring.LogProgressEveryN == 0 {
		c.Monitoring.LogProgressEveryN = defaultProgressEvery
	}

	if c.ResultsDir == "" {
		c.ResultsDir = defaultResultsDir
	}
}

// Validate enforces the recognized option ranges.
func (c *Config) Validate() error {
	if c.Inventory.APIKey == "" || strings.Contains(c.Inventory.APIKey, "REPLACE_WITH_YOUR") {
		return ErrMissingAPIKey
	}

	for _, u := range []string{c.Inventory.BaseURL, c.Probe.TargetBaseURL} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%w: %q", ErrInvalidURL, u)
		}
	}

	if c.Probe.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.Probe.Delay.Duration() < 0 {
		return ErrInvalidDelay
	}

	if c.Probe.Timeout.Duration() <= 0 {
		return ErrInvalidTimeout
	}

	if c.Probe.MaxConcurrentRequests < 1 {
		return ErrInvalidConcurrency
	}

	if c.Probe.RateLimitPerSecond <= 0 {
		return ErrInvalidRateLimit
	}

	if c.Ledger.CSVPath == "" {
		return ErrMissingLedgerPath
	}

	if c.Schedule.Interval.Duration() <= 0 {
		return ErrInvalidInterval
	}

	if c.Monitoring.LogProgressEveryN < 0 {
		return ErrInvalidProgressStep
	}

	return nil
}
