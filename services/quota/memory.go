package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Suitable for tests and single-node
// deployments; multi-process deployments share state through the Postgres
// store instead.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[string][]time.Time),
	}
}

// CountSince prunes entries older than cutoff for key and returns how many remain
func (s *MemoryStore) CountSince(ctx context.Context, key string, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.attempts[key][:0]
	for _, ts := range s.attempts[key] {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(s.attempts, key)
		return 0, nil
	}
	s.attempts[key] = kept
	return len(kept), nil
}

// Append records one attempt at ts for key
func (s *MemoryStore) Append(ctx context.Context, key string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[key] = append(s.attempts[key], ts)
	return nil
}

// Expire removes entries older than cutoff across all keys
func (s *MemoryStore) Expire(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entries := range s.attempts {
		kept := entries[:0]
		for _, ts := range entries {
			if !ts.Before(cutoff) {
				kept = append(kept, ts)
			}
		}
		removed += int64(len(entries) - len(kept))
		if len(kept) == 0 {
			delete(s.attempts, key)
			continue
		}
		s.attempts[key] = kept
	}
	return removed, nil
}
