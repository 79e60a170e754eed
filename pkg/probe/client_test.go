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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/cachewarm/pkg/logger"
	"github.com/carverauto/cachewarm/pkg/models"
)

func TestProbeClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		fatal     []int
		wantClass models.Classification
		wantCode  string
	}{
		{name: "200 ok", status: http.StatusOK, wantClass: models.ClassOK, wantCode: "200"},
		{name: "404 retryable", status: http.StatusNotFound, wantClass: models.ClassNotReady, wantCode: "404"},
		{name: "503 retryable", status: http.StatusServiceUnavailable, wantClass: models.ClassNotReady, wantCode: "503"},
		{name: "429 retryable", status: http.StatusTooManyRequests, wantClass: models.ClassNotReady, wantCode: "429"},
		{name: "configured fatal code", status: http.StatusGone, fatal: []int{http.StatusGone}, wantClass: models.ClassFatal, wantCode: "410"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/artist/some-mbid", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, time.Second, tt.fatal, logger.NewTestLogger())

			out := c.Probe(context.Background(), "some-mbid")
			assert.Equal(t, tt.wantClass, out.Class)
			assert.Equal(t, tt.wantCode, out.Code)
		})
	}
}

func TestProbeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 20*time.Millisecond, nil, logger.NewTestLogger())

	out := c.Probe(context.Background(), "slow")
	assert.Equal(t, models.ClassNotReady, out.Class)
	assert.Equal(t, models.CodeTimeout, out.Code)
}

func TestProbeConnectionRefused(t *testing.T) {
	// Grab a port that is guaranteed closed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := NewHTTPClient(addr, time.Second, nil, logger.NewTestLogger())

	out := c.Probe(context.Background(), "unreachable")
	assert.Equal(t, models.ClassNotReady, out.Class)
	assert.Equal(t, models.CodeNetworkError, out.Code)
}

func TestProbeEscapesIdentifier(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second, nil, logger.NewTestLogger())

	out := c.Probe(context.Background(), "weird id/with?chars")
	require.Equal(t, models.ClassOK, out.Class)
	assert.Equal(t, "/artist/weird%20id%2Fwith%3Fchars", gotPath)
}
