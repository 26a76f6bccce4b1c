package correlation

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
)

// Client talks to the correlation HTTP surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, including any base path.
// A nil httpClient gets a client with a 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Get fetches the stored record. ErrNotFound means no result has been delivered yet.
func (c *Client) Get(ctx context.Context, requestID string) (*Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodGet, "/analysis/"+url.PathEscape(requestID), nil, &rec); err != nil {
		return nil, err
	}
	rec.RequestID = requestID
	return &rec, nil
}

// Status fetches the presence projection for requestID.
func (c *Client) Status(ctx context.Context, requestID string) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/analysis/"+url.PathEscape(requestID)+"/status", nil, &st)
	return st, err
}

// Deliver posts analysis data for requestID, as the pipeline does.
func (c *Client) Deliver(ctx context.Context, requestID string, analysisData map[string]any) error {
	body := ReceiveRequest{RequestID: requestID, AnalysisData: analysisData}
	return c.do(ctx, http.MethodPost, "/analysis/receive", body, nil)
}

// Health checks the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("correlation server returned %d: %s", resp.StatusCode, e.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
