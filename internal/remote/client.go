// Package remote is an HTTP client for the shared record store.
//
// The store is a key-by-id document service:
//
//	GET   /records/{id}  returns the record document, 404 when absent
//	PATCH /records/{id}  merges a partial document into the record
//
// The server owns the merge. Clients send the fields produced by
// brand.Patch.Fields and never a whole record.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/brandquest/internal/brand"
)

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Client talks to the record store.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for baseURL. A nil httpClient gets a default client
// with a 30 second timeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *Client) recordURL(id string) string {
	return c.baseURL + "/records/" + url.PathEscape(id)
}

// Get fetches record id. A 404 maps to brand.ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (*brand.Record, error) {
	resp, err := c.do(ctx, http.MethodGet, c.recordURL(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, brand.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var rec brand.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

// Patch sends p as a partial document for record id.
func (c *Client) Patch(ctx context.Context, id string, p brand.Patch) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode patch for %s: %w", id, err)
	}
	resp, err := c.do(ctx, http.MethodPatch, c.recordURL(id), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusCreated:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return statusError(resp)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL.String(),
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(data)),
	}
}
