package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/squadhq/intake/internal/form/model"
)

const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// TransportError reports that a submission never reached the pipeline.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to send submission to %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Receipt acknowledges that a submission was sent. It says nothing about
// whether the pipeline processed it.
type Receipt struct {
	RequestID  string
	SentAt     time.Time
	StatusCode int
}

// Dispatcher hands completed form records to the analysis pipeline.
type Dispatcher struct {
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
	token      func() string
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher posting to endpoint.
func NewDispatcher(endpoint string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now:   time.Now,
		token: randomToken,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewRequestID builds "<epoch millis>-<9 base36 chars>". It is not meant to be
// unguessable and is never checked for collisions.
func NewRequestID(now time.Time, token string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + token
}

func randomToken() string {
	b := make([]byte, 9)
	for i := range b {
		b[i] = tokenAlphabet[rand.IntN(len(tokenAlphabet))]
	}
	return string(b)
}

// Dispatch mints a request id, posts the record snapshot once, and returns the
// receipt. Only transport failures are errors; the response status and body
// are not inspected. There is no retry.
func (d *Dispatcher) Dispatch(ctx context.Context, record model.FormRecord) (*Receipt, error) {
	sentAt := d.now()
	requestID := NewRequestID(sentAt, d.token())

	payload := BuildPayload(record, requestID)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, &TransportError{Endpoint: d.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "failed to dispatch submission",
			"requestId", requestID,
			"endpoint", d.endpoint,
			"error", err)
		return nil, &TransportError{Endpoint: d.endpoint, Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.WarnContext(ctx, "pipeline answered submission with non-success status",
			"requestId", requestID,
			"status", resp.StatusCode)
	}

	slog.InfoContext(ctx, "submission dispatched",
		"requestId", requestID,
		"endpoint", d.endpoint)

	return &Receipt{RequestID: requestID, SentAt: sentAt, StatusCode: resp.StatusCode}, nil
}
