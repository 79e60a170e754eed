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

// Package models defines the shared types for the cache-warming pipeline.
package models

import "time"

// Status is the persisted probe state of one identifier.
type Status string

const (
	// StatusUnset means the identifier has never been successfully probed
	// and no terminal failure has been recorded. Persisted as the empty string.
	StatusUnset Status = ""

	// StatusSuccess is terminal and sticky across episodes unless a forced
	// re-check is requested.
	StatusSuccess Status = "success"

	// StatusTimeout means the last episode exhausted its attempt budget.
	// The identifier is re-eligible in the next episode.
	StatusTimeout Status = "timeout"
)

// ParseStatus maps a persisted status field to a Status, treating anything
// unrecognized as unset so a hand-edited ledger row degrades to "re-check".
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusSuccess:
		return StatusSuccess
	case StatusTimeout:
		return StatusTimeout
	default:
		return StatusUnset
	}
}

// Classification is the outcome class of a single probe attempt.
type Classification int

const (
	// ClassNotReady covers retryable responses: 404/503, timeouts,
	// connection errors, and any response that is neither a definitive
	// success nor an explicitly configured fatal code.
	ClassNotReady Classification = iota

	// ClassOK is a definitive success response from the target endpoint.
	ClassOK

	// ClassFatal marks a response indicating the identifier will never
	// resolve; it short-circuits the remaining attempt budget.
	ClassFatal
)

// Status code sentinels for probes that produced no HTTP response.
const (
	// CodeTimeout is recorded when the per-request timeout expired.
	CodeTimeout = "TIMEOUT"

	// CodeNetworkError is recorded for any other transport failure
	// (DNS, connection refused, TLS, ...).
	CodeNetworkError = "EXC"
)

// Outcome is the classified result of a single probe attempt.
type Outcome struct {
	Class Classification
	// Code is the HTTP status code as a string, or a sentinel
	// (CodeTimeout, CodeNetworkError) when no response was received.
	Code string
}

// Identity is one identifier as reported by the inventory service.
type Identity struct {
	// ID is the opaque identifier probed against the target service
	// (an artist MBID in the original domain).
	ID string
	// DisplayName is informational only.
	DisplayName string
	// RemoteID is the inventory service's own numeric id for the entity,
	// needed to address refresh commands. Zero when unknown.
	RemoteID int64
}

// Record is one ledger row.
type Record struct {
	ID             string
	DisplayName    string
	Status         Status
	Attempts       int
	LastStatusCode string
	// LastChecked is the UTC timestamp of the last attempt; zero when the
	// identifier has never been probed.
	LastChecked time.Time
}

// EpisodeResult is the terminal outcome of one identifier's per-episode
// attempt loop, as committed to the ledger.
type EpisodeResult struct {
	Status         Status
	Attempts       int
	LastStatusCode string
	CheckedAt      time.Time
}

// Summary is the ephemeral per-episode report emitted after all
// identifiers complete.
type Summary struct {
	RunID           string
	FinishedAt      time.Time
	Success         int
	Timeout         int
	Pending         int
	Total           int
	ForceMode       bool
	Refreshes       int
	NewSuccesses    int
	NewFailures     int
	CheckedThisRun  int
	DiscoveredNew   int
	DiscoveredTotal int
}
