// Package peerclient is the HTTP client used across the only two real
// network boundaries inside a site's own engine/actor tier: a Loan
// Actor's failover call to the peer Storage Engine, and a Storage
// Engine's heartbeat poll + bulk catalog fetch from its peer.
//
// Grounded on the teacher's cluster.Replicator (sendReplicateRequest/
// doHTTPReplicate/fetchFromPeer: context timeout, checkStatus-style
// error wrapping) and internal/client.Client (typed request/response,
// APIError). Unlike the teacher's replicator, there is no retry/backoff
// here: spec.md §4.3 pins the Loan Actor to exactly one attempt per
// engine before giving up, and the heartbeat/catch-up pollers simply
// try again on their own next tick.
package peerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"library-network/internal/catalog"
	"library-network/internal/wire"
)

// APIError carries the HTTP status and message from a peer's response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("peer returned HTTP %d: %s", e.Status, e.Message)
}

// Client talks to one peer engine's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client bound to the peer engine listening at baseURL
// (e.g. "http://127.0.0.1:9001"), with timeout applied per-request via
// the context passed to each call, not a blanket client timeout — a
// caller, once it gives up, must still be able to use a fresh context
// on a freshly dialed connection (spec.md §4.1/§4.3's "discard and
// re-establish" rule).
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// SubmitLoan sends a PRESTAMO request to the peer engine — the Loan
// Actor's failover hop (spec.md §4.3 step 2).
func (c *Client) SubmitLoan(ctx context.Context, req wire.Request) (wire.Reply, error) {
	var reply wire.Reply
	err := c.doJSON(ctx, http.MethodPost, "/request", req, &reply)
	return reply, err
}

// PollHeartbeat fetches the peer engine's current heartbeat frame.
func (c *Client) PollHeartbeat(ctx context.Context) (wire.Heartbeat, error) {
	var hb wire.Heartbeat
	err := c.doJSON(ctx, http.MethodGet, "/heartbeat", nil, &hb)
	return hb, err
}

// FetchCatalog performs the bulk state transfer used for catch-up: a
// real network read of the peer's current Catalog, never a filesystem
// path (spec.md §9's explicit instruction).
func (c *Client) FetchCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cat := catalog.New()
	if err := c.doJSON(ctx, http.MethodGet, "/catalog", nil, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Message: string(data)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// WithTimeout is a small helper mirroring the teacher's pattern of
// wrapping every outbound call in its own deadline.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
