package correlation

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Records live until the
// process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, requestID string, analysisData map[string]any) (*Record, error) {
	if requestID == "" {
		return nil, ErrRequestIDRequired
	}

	rec := Record{
		RequestID:    requestID,
		AnalysisData: maps.Clone(analysisData),
		Timestamp:    s.now().UTC(),
		Ready:        true,
	}
	if rec.AnalysisData == nil {
		rec.AnalysisData = map[string]any{}
	}

	s.mu.Lock()
	s.records[requestID] = rec
	s.mu.Unlock()

	return &rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, requestID string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[requestID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	rec.AnalysisData = maps.Clone(rec.AnalysisData)
	return &rec, nil
}

func (s *MemoryStore) Status(ctx context.Context, requestID string) (Status, error) {
	s.mu.RLock()
	rec, ok := s.records[requestID]
	s.mu.RUnlock()

	if !ok {
		return Status{}, nil
	}
	return statusOf(&rec), nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
