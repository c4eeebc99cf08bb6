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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/kani-maki-gang/bld/internal/model"
)

// Client is the CLI's HTTP client for a bld server's REST surface (§6).
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New creates a new client targeting baseURL (e.g. "http://localhost:6080").
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: baseURL,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: NewTCPTransport()}
	}

	return c, nil
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithTransport sets a custom transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{Transport: transport}
		return nil
	}
}

// WithToken sets the bearer token attached to authenticated routes. Empty
// disables the Authorization header, matching a server with no auth_token
// configured.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// RunRequest is the body of POST /run.
type RunRequest struct {
	Pipeline    string            `json:"pipeline"`
	User        string            `json:"user,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// Run submits a pipeline for execution and returns its run id.
func (c *Client) Run(ctx context.Context, req RunRequest) (string, error) {
	var resp struct {
		RunID string `json:"run_id"`
	}
	if err := c.postJSON(ctx, "/run", req, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// Stop requests cancellation of an in-flight run.
func (c *Client) Stop(ctx context.Context, runID string) error {
	return c.postJSON(ctx, "/stop", map[string]string{"run_id": runID}, nil)
}

// Push uploads a pipeline document's raw YAML under name.
func (c *Client) Push(ctx context.Context, name string, yamlBody []byte) error {
	resp, err := c.doRaw(ctx, http.MethodPost, "/push?pipeline="+name, "application/x-yaml", bytes.NewReader(yamlBody))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return errorFromStatus(resp)
}

// Pull fetches a pipeline document's raw YAML.
func (c *Client) Pull(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.doRaw(ctx, http.MethodGet, "/pull?pipeline="+name, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := errorFromStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// List returns the names of every pipeline pushed to the server.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var resp struct {
		Pipelines []string `json:"pipelines"`
	}
	if err := c.getJSON(ctx, "/list", &resp); err != nil {
		return nil, err
	}
	return resp.Pipelines, nil
}

// Remove deletes a pushed pipeline document.
func (c *Client) Remove(ctx context.Context, name string) error {
	resp, err := c.doRaw(ctx, http.MethodDelete, "/rm?pipeline="+name, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return errorFromStatus(resp)
}

// Dependencies returns the transitive set of pipelines name depends on.
func (c *Client) Dependencies(ctx context.Context, name string) ([]string, error) {
	var resp struct {
		Dependencies []string `json:"dependencies"`
	}
	if err := c.getJSON(ctx, "/deps?pipeline="+name, &resp); err != nil {
		return nil, err
	}
	return resp.Dependencies, nil
}

// HistoryFilter narrows a History query.
type HistoryFilter struct {
	Pipeline string
	States   []string
	Limit    int
}

// History returns past and in-flight runs matching filter.
func (c *Client) History(ctx context.Context, filter HistoryFilter) ([]*model.PipelineRun, error) {
	path := "/hist?"
	if filter.Pipeline != "" {
		path += "pipeline=" + filter.Pipeline + "&"
	}
	if filter.Limit > 0 {
		path += fmt.Sprintf("limit=%d&", filter.Limit)
	}
	for _, s := range filter.States {
		path += "state=" + s + "&"
	}

	var runs []*model.PipelineRun
	if err := c.getJSON(ctx, path, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// HAStatus reports whether the server's supervisor control channel is
// connected.
func (c *Client) HAStatus(ctx context.Context) (bool, error) {
	var resp struct {
		SupervisorConnected bool `json:"supervisor_connected"`
	}
	if err := c.getJSON(ctx, "/ha/status", &resp); err != nil {
		return false, err
	}
	return resp.SupervisorConnected, nil
}

// Monitor opens ws-monit for runID and delivers each log line on the
// returned channel until the run reaches a terminal state or ctx is
// canceled; the channel is closed when streaming ends.
func (c *Client) Monitor(ctx context.Context, runID string) (<-chan string, error) {
	return c.streamLog(ctx, "/ws-monit/"+runID)
}

// Exec opens ws-exec for runID, the log stream `bld run` (without
// --detach) follows immediately after submitting a pipeline.
func (c *Client) Exec(ctx context.Context, runID string) (<-chan string, error) {
	return c.streamLog(ctx, "/ws-exec/"+runID)
}

func (c *Client) streamLog(ctx context.Context, path string) (<-chan string, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + path

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		defer conn.Close()

		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			select {
			case lines <- string(data):
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRaw(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := errorFromStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	resp, err := c.doRaw(ctx, http.MethodPost, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := errorFromStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doRaw issues a request against the server and returns the live response;
// callers are responsible for closing resp.Body.
func (c *Client) doRaw(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// addAuth adds the bearer token header if configured.
func (c *Client) addAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func errorFromStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
}
