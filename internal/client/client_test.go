// Copyright 2025 Tom Barlow
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

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kani-maki-gang/bld/internal/model"
)

func TestClientRunPostsBodyAndReturnsRunID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req RunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "build", req.Pipeline)

		json.NewEncoder(w).Encode(map[string]string{"run_id": "run-1"})
	}))
	defer server.Close()

	c, err := New(server.URL, WithHTTPClient(server.Client()), WithToken("secret"))
	require.NoError(t, err)

	runID, err := c.Run(context.Background(), RunRequest{Pipeline: "build"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
}

func TestClientRunPropagatesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"pipeline is required"}`))
	}))
	defer server.Close()

	c, err := New(server.URL, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), RunRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClientPushSendsYAMLContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-yaml", r.Header.Get("Content-Type"))
		assert.Equal(t, "build", r.URL.Query().Get("pipeline"))
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	c, err := New(server.URL, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	err = c.Push(context.Background(), "build", []byte("name: build\n"))
	require.NoError(t, err)
}

func TestClientPullReturnsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("name: build\n"))
	}))
	defer server.Close()

	c, err := New(server.URL, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	body, err := c.Pull(context.Background(), "build")
	require.NoError(t, err)
	assert.Equal(t, "name: build\n", string(body))
}

func TestClientHistoryDecodesRunArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "build", r.URL.Query().Get("pipeline"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]*model.PipelineRun{
			{ID: "run-1", Name: "build", State: model.RunFinished},
		})
	}))
	defer server.Close()

	c, err := New(server.URL, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	runs, err := c.History(context.Background(), HistoryFilter{Pipeline: "build", Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}
