// Package store provides the versioned key-value state store that backs
// session persistence: conditional writes with optimistic concurrency,
// store-native TTL expiry, and cross-region reconciliation.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or expired
	ErrNotFound = errors.New("store: key not found")
	// ErrVersionConflict is returned when a conditional write carries a
	// stale expected version
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrKeyExists is returned when an if-absent write hits a live key
	ErrKeyExists = errors.New("store: key already exists")
)

// Record is a stored value with its concurrency and replication metadata
type Record struct {
	Value        []byte    `json:"value"`
	Version      int64     `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"` // zero means no expiry
	SourceRegion string    `json:"source_region,omitempty"`
}

// Expired reports whether the record is past its expiry at the given time
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// PutOptions controls conditional-write behavior
type PutOptions struct {
	// ExpectedVersion, when set, rejects the write with ErrVersionConflict
	// unless it matches the stored version exactly. An expected version on
	// an absent key is always a conflict.
	ExpectedVersion *int64
	// IfAbsent rejects the write with ErrKeyExists when the key is live
	IfAbsent bool
	// TTL attaches a store-native expiry; zero means no expiry
	TTL time.Duration
	// Region stamps write provenance on the stored record
	Region string
}

// VersionedStore is the optimistic-concurrency key-value contract consumed
// by the session manager and the cross-region reconciler.
type VersionedStore interface {
	// Get returns the current record, or ErrNotFound when the key is
	// absent or expired. Expired entries are lazily removed on access.
	Get(ctx context.Context, key string) (*Record, error)

	// Put writes value under key and returns the committed version.
	// New keys start at version 1; every accepted write over a live key
	// increments the stored version by exactly 1.
	Put(ctx context.Context, key string, value []byte, opts PutOptions) (int64, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Restore writes a record verbatim, bypassing the version increment.
	// Replication uses it to adopt a remote copy with its original
	// version, timestamp and provenance intact.
	Restore(ctx context.Context, key string, rec Record) error

	// Close releases backend resources
	Close() error
}
