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

// Package probe performs single lookup calls against the target service
// and drives the per-identifier retry loop.
package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/cachewarm/pkg/logger"
	"github.com/carverauto/cachewarm/pkg/models"
)

const (
	defaultTimeout = 10 * time.Second

	// Connection pooling limits sized for a small worker pool hitting
	// one host.
	maxIdleConns        = 32
	maxIdleConnsPerHost = 8
	maxConnsPerHost     = 16
	idleConnTimeout     = 60 * time.Second
)

// Client performs one bounded-timeout lookup for one identifier.
type Client interface {
	Probe(ctx context.Context, id string) models.Outcome
}

// HTTPClient probes identifiers against {base_url}/artist/{id}.
type HTTPClient struct {
	baseURL    string
	timeout    time.Duration
	fatalCodes map[int]struct{}
	httpClient *http.Client
	logger     logger.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a probe client. fatalCodes lists response codes
// treated as "will never resolve"; by default it is empty and every
// non-200 response stays retryable, which matches the cache-warming
// behavior of the target API.
func NewHTTPClient(baseURL string, timeout time.Duration, fatalCodes []int, log logger.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	fatal := make(map[int]struct{}, len(fatalCodes))
	for _, code := range fatalCodes {
		fatal[code] = struct{}{}
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		fatalCodes: fatal,
		httpClient: &http.Client{
			// Per-request timeouts come from the context, not the client.
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
				MaxConnsPerHost:     maxConnsPerHost,
				IdleConnTimeout:     idleConnTimeout,
			},
		},
		logger: log,
	}
}

// Probe performs one lookup. Ordinary network failures never surface as
// errors; they classify as not_ready with a sentinel status code.
func (c *HTTPClient) Probe(ctx context.Context, id string) models.Outcome {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + "/artist/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, http.NoBody)
	if err != nil {
		c.logger.Error().Err(err).Str("id", id).Msg("failed to build probe request")
		return models.Outcome{Class: models.ClassNotReady, Code: models.CodeNetworkError}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransportError(id, err)
	}

	defer func() {
		// Drain so the connection can be reused by the pool.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
	}()

	return c.classifyStatus(resp.StatusCode)
}

func (c *HTTPClient) classifyTransportError(id string, err error) models.Outcome {
	code := models.CodeNetworkError

	if errors.Is(err, context.DeadlineExceeded) {
		code = models.CodeTimeout
	}

	c.logger.Debug().Err(err).Str("id", id).Str("code", code).Msg("probe transport error")

	return models.Outcome{Class: models.ClassNotReady, Code: code}
}

func (c *HTTPClient) classifyStatus(status int) models.Outcome {
	code := strconv.Itoa(status)

	if status == http.StatusOK {
		return models.Outcome{Class: models.ClassOK, Code: code}
	}

	if _, ok := c.fatalCodes[status]; ok {
		return models.Outcome{Class: models.ClassFatal, Code: code}
	}

	// Everything else (404, 503, 429, 5xx, malformed responses) is the
	// cache still warming up: retryable.
	return models.Outcome{Class: models.ClassNotReady, Code: code}
}
