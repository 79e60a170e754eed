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

// Package inventory lists identifiers from the source media manager.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carverauto/cachewarm/pkg/logger"
	"github.com/carverauto/cachewarm/pkg/models"
)

// ErrUnavailable is returned when no known inventory endpoint answered.
// Callers log it and proceed with whatever the ledger already holds.
var ErrUnavailable = errors.New("inventory service unavailable")

const (
	defaultListTimeout = 30 * time.Second
	maxResponseBody    = 32 << 20 // artist lists can be large but bounded
)

// API versions drifted across releases; probe the known paths in order.
var artistPaths = []string{"/api/v1/artist", "/api/artist", "/api/v3/artist"}

// Client lists identifiers from a Lidarr-style inventory service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates an inventory client.
func NewClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultListTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// artistPayload is the subset of the inventory's artist resource we
// need. Older API versions used different field names for the MBID.
type artistPayload struct {
	ID         int64  `json:"id"`
	ArtistName string `json:"artistName"`
	Name       string `json:"name"`
	ForeignID  string `json:"foreignArtistId"`
	MBIDUpper  string `json:"mbId"`
	MBIDLower  string `json:"mbid"`
}

func (a artistPayload) identity() models.Identity {
	id := a.ForeignID
	if id == "" {
		id = a.MBIDUpper
	}

	if id == "" {
		id = a.MBIDLower
	}

	name := a.ArtistName
	if name == "" {
		name = a.Name
	}

	return models.Identity{ID: id, DisplayName: name, RemoteID: a.ID}
}

// List fetches the current identifier set. It tries each known API path,
// skipping 404s, and returns ErrUnavailable when none answers.
func (c *Client) List(ctx context.Context) ([]models.Identity, error) {
	var lastErr error

	for _, path := range artistPaths {
		identities, err := c.listPath(ctx, path)
		if err != nil {
			if errors.Is(err, errPathNotFound) {
				continue
			}

			lastErr = err

			continue
		}

		return identities, nil
	}

	if lastErr == nil {
		lastErr = errPathNotFound
	}

	return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

var errPathNotFound = errors.New("endpoint not found")

func (c *Client) listPath(ctx context.Context, path string) ([]models.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errPathNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	var artists []artistPayload

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&artists); err != nil {
		return nil, fmt.Errorf("decoding artist list: %w", err)
	}

	identities := make([]models.Identity, 0, len(artists))

	for _, a := range artists {
		ident := a.identity()
		if ident.ID == "" {
			c.logger.Debug().Str("name", ident.DisplayName).Msg("skipping artist without identifier")
			continue
		}

		identities = append(identities, ident)
	}

	return identities, nil
}
