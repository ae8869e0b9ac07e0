// Package cpclient is the Client Producer: it reads a line-oriented
// request file and submits each request to its site's Load Gateway,
// one at a time, with a per-request timeout and connection reset on
// stall (spec.md §4.1).
//
// The HTTP half is grounded on the teacher's internal/client.Client
// (single-node HTTP wrapper, APIError on non-2xx); the line parser and
// pacing loop have no teacher analogue since the teacher is a KV store
// with no batch-request concept, so they're written fresh in the same
// plain, explicit style.
package cpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"library-network/internal/wire"
)

// Client talks to one site's Load Gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client bound to baseURL (e.g. "http://localhost:8090").
// Every call applies its own timeout via context rather than a blanket
// client timeout, so a reset connection can be redialed on the very
// next request (spec.md §4.1's "connection reset on stall").
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, httpClient: &http.Client{}}
}

// Submit sends req to the Load Gateway and returns its reply.
func (c *Client) Submit(ctx context.Context, req wire.Request) (wire.Reply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return wire.Reply{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/requests", bytes.NewReader(data))
	if err != nil {
		return wire.Reply{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return wire.Reply{}, fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return wire.Reply{}, &APIError{Status: resp.StatusCode, Message: string(body)}
	}

	var reply wire.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return wire.Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

// APIError carries the HTTP status and body from a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("load gateway returned HTTP %d: %s", e.Status, e.Message)
}

// WithTimeout bounds one Submit call per spec.md §5's CP->LG 3s timeout.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

// ResetConnection discards any pooled connection to the gateway. Called
// after a timeout or transport error so the next request dials fresh,
// the HTTP/1.1 stand-in for spec.md §4.1's "discard the current
// request/reply channel and establish a new one."
func (c *Client) ResetConnection() {
	c.httpClient.CloseIdleConnections()
}
