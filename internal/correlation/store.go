package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// TimestampLayout is the millisecond precision UTC form used on the wire.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrNotFound is returned while no result has been stored for a request id.
	ErrNotFound = errors.New("analysis data not found")
	// ErrRequestIDRequired is returned when a write carries no request id.
	ErrRequestIDRequired = errors.New("requestId is required")
)

// Record is the analysis result stored for one request id.
type Record struct {
	RequestID    string
	AnalysisData map[string]any
	Timestamp    time.Time
	Ready        bool
}

// MarshalJSON flattens the analysis data and adds the server-owned
// timestamp and ready keys, which win over keys of the same name.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.AnalysisData)+2)
	maps.Copy(out, r.AnalysisData)
	out["timestamp"] = r.Timestamp.UTC().Format(TimestampLayout)
	out["ready"] = r.Ready
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON. The request id is not part of the body.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if ts, ok := raw["timestamp"].(string); ok {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		r.Timestamp = parsed
	}
	r.Ready, _ = raw["ready"].(bool)

	delete(raw, "timestamp")
	delete(raw, "ready")
	r.AnalysisData = raw
	return nil
}

// Field returns a top-level string field of the analysis data.
func (r *Record) Field(name string) string {
	if r == nil {
		return ""
	}
	s, _ := r.AnalysisData[name].(string)
	return s
}

// Status is the presence projection of a record.
// On the wire an absent timestamp is null.
type Status struct {
	Ready     bool
	Timestamp *time.Time
}

func (s Status) MarshalJSON() ([]byte, error) {
	var ts *string
	if s.Timestamp != nil {
		formatted := s.Timestamp.UTC().Format(TimestampLayout)
		ts = &formatted
	}
	return json.Marshal(struct {
		Ready     bool    `json:"ready"`
		Timestamp *string `json:"timestamp"`
	}{s.Ready, ts})
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var wire struct {
		Ready     bool    `json:"ready"`
		Timestamp *string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.Ready = wire.Ready
	s.Timestamp = nil
	if wire.Timestamp != nil {
		parsed, err := time.Parse(time.RFC3339Nano, *wire.Timestamp)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", *wire.Timestamp, err)
		}
		s.Timestamp = &parsed
	}
	return nil
}

// Store keeps the latest analysis result per request id.
// A second Put for the same id replaces the first.
type Store interface {
	// Put stores analysisData under requestID, stamping it with the current time.
	Put(ctx context.Context, requestID string, analysisData map[string]any) (*Record, error)

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, requestID string) (*Record, error)

	// Status reports whether a record exists and when it was written.
	Status(ctx context.Context, requestID string) (Status, error)
}

func statusOf(rec *Record) Status {
	if rec == nil {
		return Status{}
	}
	ts := rec.Timestamp
	return Status{Ready: rec.Ready, Timestamp: &ts}
}
