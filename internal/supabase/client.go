// Package supabase wraps the possibly-absent remote backend connection:
// five REST collections plus invocable edge functions. A client built from
// incomplete or invalid configuration degrades to not-ready instead of
// failing construction; callers are expected to check Ready first.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/polishcrew/syncbridge/internal/config"
	"github.com/sirupsen/logrus"
)

// ErrNotReady is returned by operations on a client without a valid
// remote connection.
var ErrNotReady = errors.New("supabase client not configured")

const clientHeader = "polish-crew-crm"

// Client talks to the Supabase REST and functions endpoints.
type Client struct {
	baseURL    *url.URL
	anonKey    string
	httpClient *http.Client
	ready      bool
}

// NewClient builds a client from configuration. Missing connection
// parameters or an unparseable URL downgrade the client to not-ready.
func NewClient(cfg config.Config) *Client {
	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		return &Client{}
	}

	u, err := url.Parse(cfg.SupabaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		logrus.WithField("url", cfg.SupabaseURL).Warn("Failed to initialise Supabase client: invalid URL")
		return &Client{}
	}

	return &Client{
		baseURL: u,
		anonKey: cfg.SupabaseAnonKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		ready: true,
	}
}

// Ready reports whether valid connection parameters were supplied and
// client construction succeeded.
func (c *Client) Ready() bool {
	return c != nil && c.ready
}

// BaseURL returns the configured remote base URL, or empty when not ready.
func (c *Client) BaseURL() string {
	if !c.Ready() {
		return ""
	}
	return c.baseURL.String()
}

// SelectAll reads the full contents of a table. The result is the raw JSON
// array returned by the backend.
func (c *Client) SelectAll(ctx context.Context, table string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/rest/v1/"+table+"?select=*", "", nil)
}

// Upsert writes a payload to a table with merge-duplicates semantics, so
// replaying the same payload converges instead of duplicating rows.
func (c *Client) Upsert(ctx context.Context, table string, payload json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPost, "/rest/v1/"+table, "resolution=merge-duplicates", payload)
	return err
}

// UpsertReturning upserts a single row and returns the canonical stored
// representation.
func (c *Client) UpsertReturning(ctx context.Context, table string, payload json.RawMessage) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, "/rest/v1/"+table,
		"resolution=merge-duplicates,return=representation", payload)
	if err != nil {
		return nil, err
	}
	return firstRow(table, body)
}

// InsertReturning inserts a single row and returns the stored
// representation.
func (c *Client) InsertReturning(ctx context.Context, table string, payload json.RawMessage) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, "/rest/v1/"+table, "return=representation", payload)
	if err != nil {
		return nil, err
	}
	return firstRow(table, body)
}

// Invoke calls a named edge function with a JSON body and returns the raw
// JSON result.
func (c *Client) Invoke(ctx context.Context, functionName string, body json.RawMessage) (json.RawMessage, error) {
	if body == nil {
		body = json.RawMessage("{}")
	}
	return c.do(ctx, http.MethodPost, "/functions/v1/"+functionName, "", body)
}

func (c *Client) do(ctx context.Context, method, path, prefer string, payload json.RawMessage) (json.RawMessage, error) {
	if !c.Ready() {
		return nil, ErrNotReady
	}

	endpoint := strings.TrimRight(c.baseURL.String(), "/") + path

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	req.Header.Set("x-pcwa-client", clientHeader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote returned %d for %s: %s",
			resp.StatusCode, path, truncate(string(body), 256))
	}

	return body, nil
}

// firstRow unwraps PostgREST's single-element array representation.
func firstRow(table string, body json.RawMessage) (json.RawMessage, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		// Some deployments return a bare object for single-row writes.
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			return trimmed, nil
		}
		return nil, fmt.Errorf("unexpected response from %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no row returned from %s", table)
	}
	return rows[0], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
