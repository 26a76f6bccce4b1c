package model

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Field names shared across steps and the dispatched payload.
const (
	FieldRequestID        = "requestId"
	FieldRequesterEmail   = "requesterEmail"
	FieldProcessSteps     = "processSteps"
	FieldGeneratedSummary = "generatedSummary"
	FieldChangesRequested = "changesRequested"
)

// FormRecord is the single record accumulated across the intake steps.
// Updates are shallow merges: a key written later replaces the earlier value
// wholesale, keys never written again keep their value.
type FormRecord map[string]any

// NewFormRecord returns an empty record.
func NewFormRecord() FormRecord {
	return FormRecord{}
}

// Merge copies every key of partial into the record, overwriting existing values.
func (r FormRecord) Merge(partial map[string]any) {
	maps.Copy(r, partial)
}

// Clone returns a shallow copy of the record.
func (r FormRecord) Clone() FormRecord {
	if r == nil {
		return FormRecord{}
	}
	return maps.Clone(r)
}

// String returns the string value stored under key, or "" when absent or not a string.
func (r FormRecord) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// RequestID returns the correlation identifier minted at dispatch time.
func (r FormRecord) RequestID() string {
	return r.String(FieldRequestID)
}

// Decode fills v, a pointer to one of the step structs, from the record.
func (r FormRecord) Decode(v any) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode form record: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode form record: %w", err)
	}
	return nil
}

// Fields converts a step struct into the partial map merged into a record.
func Fields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode step data: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode step data: %w", err)
	}
	return fields, nil
}
