// Copyright (c) 2025, Hostwatch Authors.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwatch/hostwatch/pkg/registry"
)

type stubRecord struct {
	key registry.Key
	at  time.Time
}

func (s stubRecord) Key() registry.Key      { return s.key }
func (s stubRecord) LastUpdated() time.Time { return s.at }
func (s stubRecord) Values() map[string]any { return map[string]any{"available": int64(42)} }

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New("")
	reg.Publish(stubRecord{key: registry.Key{Type: "EntropyLevel"}, at: time.Now()})
	reg.Publish(stubRecord{
		key: registry.Key{Type: "io-device", SubKey: "devicename", SubValue: "sda"},
		at:  time.Now(),
	})
	return New(nil, reg), reg
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestReadyEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	s.handleReady(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.SetReady(true)
	w = httptest.NewRecorder()
	s.handleReady(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecordsEndpoint(t *testing.T) {
	s, reg := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	w := httptest.NewRecorder()
	s.handleRecords(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp RecordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, reg.Root(), resp.Root)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Records, 2)
	assert.NotEmpty(t, resp.Records[0].Name)
	assert.NotEmpty(t, resp.Records[0].Values)
}

func TestRecordsEndpointQuery(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/records?q=*type=io-device*", nil)
	w := httptest.NewRecorder()
	s.handleRecords(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp RecordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Contains(t, resp.Records[0].Name, "devicename=sda")
}

func TestRecordsEndpointMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/records", nil)
	w := httptest.NewRecorder()
	s.handleRecords(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeMethodNotAllowed, resp.Code)
}

func TestDefaultRoute(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.setupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Name   string   `json:"name"`
		Routes []string `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hostwatch", resp.Name)
	assert.Contains(t, resp.Routes, "GET /v1/records")
}

func TestRequestIDMiddleware(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.withMiddleware(s.handleRecords)

	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	// a caller supplied id is echoed back
	req = httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	req.Header.Set("X-Request-Id", "11111111-2222-3333-4444-555555555555")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", w.Header().Get("X-Request-Id"))
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	s, _ := newTestServer(t)

	handler := s.withMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.setupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}
