package history

import (
	"context"
	"sync"
)

const defaultRingSize = 200

// ringStore keeps the most recent records in memory.
type ringStore struct {
	mu   sync.Mutex
	recs []Record
	size int
}

func newRing(size int) *ringStore {
	if size <= 0 {
		size = defaultRingSize
	}
	return &ringStore{size: size}
}

func (s *ringStore) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	s.recs = append(s.recs, r)
	if len(s.recs) > s.size {
		s.recs = s.recs[len(s.recs)-s.size:]
	}
	s.mu.Unlock()
	return nil
}

// Recent returns up to n records, newest first.
func (s *ringStore) Recent(_ context.Context, n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.recs) {
		n = len(s.recs)
	}
	out := make([]Record, 0, n)
	for i := len(s.recs) - 1; i >= len(s.recs)-n; i-- {
		out = append(out, s.recs[i])
	}
	return out, nil
}

func (s *ringStore) Close() error { return nil }
