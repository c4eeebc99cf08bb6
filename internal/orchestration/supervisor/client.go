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

package supervisor

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kani-maki-gang/bld/internal/orchestration/proto"
)

// reconnectDelay is the fixed retry delay named in §7 ("exponential
// retry... fixed delay in the reference implementation" — the reference
// keeps it simple, so does this).
const reconnectDelay = 2 * time.Second

// Client is the supervisor's end of the control channel: it dials the
// server, identifies itself with a WhoAmI frame, and dispatches
// Enqueue/Stop frames to the Queue until the connection drops, at which
// point it reconnects with a fixed delay.
type Client struct {
	url    string
	queue  *Queue
	logger *slog.Logger
}

// NewClient builds a Client dialing url (the server's /control endpoint)
// and driving queue.
func NewClient(url string, queue *Queue) *Client {
	return &Client{
		url:    url,
		queue:  queue,
		logger: slog.Default().With(slog.String("component", "supervisor.client")),
	}
}

// Run connects and reconnects until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connectAndServe(ctx); err != nil {
			c.logger.Warn("control channel disconnected", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.logger.Info("connected to server control channel", "url", c.url)

	who := proto.NewWhoAmI(os.Getpid())
	data, err := who.Marshal()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}

	go c.notifyCompleted(ctx, conn)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		f, err := proto.Parse(data)
		if err != nil {
			c.logger.Warn("malformed frame from server", "error", err)
			continue
		}

		c.dispatch(conn, f)
	}
}

func (c *Client) dispatch(conn *websocket.Conn, f *proto.Frame) {
	switch f.Type {
	case proto.FrameEnqueue:
		if err := c.queue.Enqueue(f.RunID, f.Pipeline, f.Variables, f.Environment); err != nil {
			c.logger.Error("enqueue failed", "run_id", f.RunID, "error", err)
		}
		c.ack(conn, f.ID)
	case proto.FrameStop:
		c.queue.Stop(f.RunID)
		c.ack(conn, f.ID)
	default:
		c.logger.Warn("unexpected frame from server", "type", f.Type)
	}
}

func (c *Client) ack(conn *websocket.Conn, id string) {
	ack := proto.NewAck(id)
	data, err := ack.Marshal()
	if err != nil {
		return
	}
	conn.WriteMessage(websocket.TextMessage, data)
}

// notifyCompleted reports reaped workers to the server as Completed
// frames. It drains the queue's completion channel for the lifetime of
// one connection; a new connection (after reconnect) gets a fresh drain
// goroutine.
func (c *Client) notifyCompleted(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.queue.Completions():
			if !ok {
				return
			}
			frame := proto.NewCompleted(ev.RunID, ev.State)
			data, err := frame.Marshal()
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
