// Package marketpulse is a Go client for the marketpulse-server HTTP API.
package marketpulse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client provides a Go SDK for interacting with the marketpulse-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new marketpulse API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// SnapshotOptions narrows the rows returned by GetSnapshot.
type SnapshotOptions struct {
	Sort  string // index, gain, loss, symbol
	Class string // advance, decline, neutral
}

// GetSnapshot retrieves the latest breadth snapshot.
func (c *Client) GetSnapshot(ctx context.Context, opts *SnapshotOptions) (*Snapshot, error) {
	q := url.Values{}
	if opts != nil {
		if opts.Sort != "" {
			q.Set("sort", opts.Sort)
		}
		if opts.Class != "" {
			q.Set("class", opts.Class)
		}
	}
	var s Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/breadth", q, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Refresh forces a refresh cycle and returns its snapshot.
func (c *Client) Refresh(ctx context.Context) (*Snapshot, error) {
	var s Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/breadth/refresh", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetUniverse retrieves the current instrument universe.
func (c *Client) GetUniverse(ctx context.Context) (*Universe, error) {
	var u Universe
	if err := c.do(ctx, http.MethodGet, "/api/universe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Health retrieves the server health payload.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Stream connects to the snapshot stream and calls fn for every snapshot
// until ctx is cancelled or the connection fails.
func (c *Client) Stream(ctx context.Context, fn func(Snapshot)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var s Snapshot
		if err := conn.ReadJSON(&s); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading stream: %w", err)
		}
		fn(s)
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketpulse: status %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
