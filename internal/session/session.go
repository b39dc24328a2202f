// Package session tracks per-owner collaboration context: history of prior
// exchanges plus environment-like key/value pairs, persisted through the
// versioned state store and fronted by a bounded in-process cache. All
// mutations go through optimistic-concurrency writes; there are no locks on
// shared session state.
package session

import (
	"fmt"
	"time"

	"github.com/wombat2006/wallbounce/internal/store"
)

// Key returns the store key for a session id
func Key(id string) string {
	return "session#" + id
}

// CacheKey returns the store key for an auxiliary cached value
func CacheKey(key string) string {
	return "cache#" + key
}

// Exchange is one completed query/response round kept in session history
type Exchange struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	TaskType  string    `json:"task_type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkingContext is the mutable collaboration context carried by a session
type WorkingContext struct {
	History []Exchange        `json:"history"`
	Env     map[string]string `json:"env,omitempty"`
}

func (wc WorkingContext) clone() WorkingContext {
	out := WorkingContext{}
	if wc.History != nil {
		out.History = append([]Exchange(nil), wc.History...)
	}
	if wc.Env != nil {
		out.Env = make(map[string]string, len(wc.Env))
		for k, v := range wc.Env {
			out.Env[k] = v
		}
	}
	return out
}

// Record is a session together with its concurrency and provenance metadata.
// Version and UpdatedAt mirror the backing store record; Region is the region
// that produced the last accepted write.
type Record struct {
	ID        string
	Owner     string
	Context   WorkingContext
	Version   int64
	UpdatedAt time.Time
	Region    string
}

func (r *Record) clone() *Record {
	cp := *r
	cp.Context = r.Context.clone()
	return &cp
}

// Mutation applies a partial update to a session's working context. It may
// run more than once when a conflicted write is retried against re-read
// state, so it must not carry side effects outside the context it is given.
type Mutation func(*WorkingContext)

// UpdateOptions tunes conflict handling for a single update
type UpdateOptions struct {
	// MaxRetries overrides the configured retry budget when positive
	MaxRetries int
	// NoRetry makes the first version conflict final
	NoRetry bool
}

// EventType discriminates session update notifications
type EventType string

const (
	// EventOptimistic fires when an update is applied locally, before the
	// store confirms it
	EventOptimistic EventType = "optimistic_update"
	// EventCommitted fires when the store accepts a write
	EventCommitted EventType = "committed"
	// EventConflict fires when a conditional write loses its version check,
	// whether or not a retry follows
	EventConflict EventType = "conflict"
	// EventReverted fires when an update exhausts its retries and the local
	// cache is rolled back to committed truth
	EventReverted EventType = "reverted"
)

// Event is a session update notification
type Event struct {
	Type      EventType
	SessionID string
	Version   int64
	Timestamp time.Time
}

// ConflictError reports an update that lost every optimistic write attempt.
// LastCommitted carries the committed state observed when giving up, so the
// caller can inspect what won.
type ConflictError struct {
	SessionID     string
	Attempts      int
	LastCommitted *Record
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s: update conflicted after %d attempts", e.SessionID, e.Attempts)
}

// Unwrap ties the error into the store's conflict sentinel so callers can
// match with errors.Is.
func (e *ConflictError) Unwrap() error {
	return store.ErrVersionConflict
}
