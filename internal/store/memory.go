package store

import (
	"context"
	"sync"
	"time"
)

// Ensure MemoryStore implements the VersionedStore interface
var _ VersionedStore = (*MemoryStore)(nil)

// MemoryStore is the in-process VersionedStore backend. It is safe for
// concurrent use and is the default backend for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Get returns the current record, or ErrNotFound when the key is absent
// or expired
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Expired(time.Now()) {
		delete(s.records, key)
		return nil, ErrNotFound
	}

	out := rec
	return &out, nil
}

// Put writes value under key honoring the conditional-write options
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	current, ok := s.records[key]
	if ok && current.Expired(now) {
		delete(s.records, key)
		ok = false
	}

	if ok {
		if opts.IfAbsent {
			return 0, ErrKeyExists
		}
		if opts.ExpectedVersion != nil && *opts.ExpectedVersion != current.Version {
			return 0, ErrVersionConflict
		}
	} else {
		if opts.ExpectedVersion != nil {
			return 0, ErrVersionConflict
		}
	}

	next := Record{
		Value:        append([]byte(nil), value...),
		Version:      1,
		UpdatedAt:    now,
		SourceRegion: opts.Region,
	}
	if ok {
		next.Version = current.Version + 1
	}
	if opts.TTL != 0 {
		next.ExpiresAt = now.Add(opts.TTL)
	}

	s.records[key] = next
	return next.Version, nil
}

// Delete removes the key; deleting an absent key is not an error
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// Restore writes the record verbatim, bypassing the version increment
func (s *MemoryStore) Restore(ctx context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Value = append([]byte(nil), rec.Value...)
	s.records[key] = rec
	return nil
}

// Close releases nothing for the in-memory backend
func (s *MemoryStore) Close() error {
	return nil
}
