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

// Package refresh delivers fire-and-forget refresh commands to the
// inventory service when an identifier first warms up. The scheduler
// hands work to an outbound queue and never waits on delivery; failures
// are logged here and never observed by the probing pipeline.
package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/cachewarm/pkg/logger"
	"github.com/carverauto/cachewarm/pkg/models"
)

const (
	defaultQueueSize   = 256
	commandTimeout     = 2 * time.Second
	refreshCommandName = "RefreshArtist"
)

// Command paths across inventory API versions, tried in order.
var commandPaths = []string{"/api/v1/command", "/api/command"}

// Notifier queues and delivers refresh commands.
type Notifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger

	queue chan request
	done  chan struct{}
	once  sync.Once

	mu        sync.RWMutex
	remoteIDs map[string]int64
}

type request struct {
	id          string
	displayName string
}

// NewNotifier creates a Notifier and starts its drain goroutine.
func NewNotifier(baseURL, apiKey string, log logger.Logger) *Notifier {
	return newNotifier(baseURL, apiKey, defaultQueueSize, log)
}

func newNotifier(baseURL, apiKey string, queueSize int, log logger.Logger) *Notifier {
	n := &Notifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: commandTimeout},
		logger:     log,
		queue:      make(chan request, queueSize),
		done:       make(chan struct{}),
		remoteIDs:  make(map[string]int64),
	}

	go n.drain()

	return n
}

// SetIdentities refreshes the identifier-to-remote-id mapping for the
// upcoming episode. Entries without a remote id are ignored.
func (n *Notifier) SetIdentities(identities []models.Identity) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ident := range identities {
		if ident.ID != "" && ident.RemoteID != 0 {
			n.remoteIDs[ident.ID] = ident.RemoteID
		}
	}
}

// Notify enqueues a refresh for the identifier. It never blocks: when
// the queue is full the notification is dropped with a log line, since a
// missed refresh only delays the inventory service's own metadata sync.
func (n *Notifier) Notify(id, displayName string) {
	select {
	case n.queue <- request{id: id, displayName: displayName}:
	default:
		n.logger.Warn().Str("id", id).Msg("refresh queue full, dropping notification")
	}
}

// Stop closes the queue and waits for queued notifications to drain.
func (n *Notifier) Stop() {
	n.once.Do(func() {
		close(n.queue)
	})

	<-n.done
}

func (n *Notifier) drain() {
	defer close(n.done)

	for req := range n.queue {
		n.deliver(req)
	}
}

func (n *Notifier) deliver(req request) {
	n.mu.RLock()
	remoteID, ok := n.remoteIDs[req.id]
	n.mu.RUnlock()

	if !ok {
		n.logger.Debug().Str("id", req.id).Msg("no remote id for identifier, skipping refresh")
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"name":      refreshCommandName,
		"artistIds": []int64{remoteID},
	})
	if err != nil {
		n.logger.Error().Err(err).Str("id", req.id).Msg("failed to encode refresh command")
		return
	}

	for _, path := range commandPaths {
		if n.post(path, body) {
			n.logger.Info().
				Str("id", req.id).
				Str("name", req.displayName).
				Int64("remote_id", remoteID).
				Msg("triggered refresh")

			return
		}
	}

	n.logger.Warn().Str("id", req.id).Msg("refresh command failed on all endpoints")
}

func (n *Notifier) post(path string, body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false
	}

	req.Header.Set("X-Api-Key", n.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
