package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memoryRingSize = 256

// MemoryStore keeps the most recent utterances in a fixed-size ring.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	next    int
	full    bool
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make([]Record, memoryRingSize)}
}

func (s *MemoryStore) RecordUtterance(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records[s.next] = rec
	s.next++
	if s.next == len(s.records) {
		s.next = 0
		s.full = true
	}
	return nil
}

func (s *MemoryStore) RecentUtterances(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	size := s.next
	if s.full {
		size = len(s.records)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	// Newest first.
	out := make([]Record, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, s.records[(s.next-i+len(s.records))%len(s.records)])
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
