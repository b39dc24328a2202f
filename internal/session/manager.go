package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/wombat2006/wallbounce/internal/config"
	"github.com/wombat2006/wallbounce/internal/logger"
	"github.com/wombat2006/wallbounce/internal/store"
)

var log = logger.WithComponent("session")

// eventBuffer bounds the notification channel; events beyond it are dropped
// rather than blocking updates.
const eventBuffer = 64

// persistedSession is the stored JSON form. Version, timestamps and region
// live on the store record, not in the value.
type persistedSession struct {
	ID      string         `json:"id"`
	Owner   string         `json:"owner"`
	Context WorkingContext `json:"context"`
}

// Manager wraps the versioned state store with a bounded expirable LRU cache
// and optimistic-concurrency updates with retry.
type Manager struct {
	store  store.VersionedStore
	cache  *expirable.LRU[string, *Record]
	cfg    config.SessionConfig
	region string
	events chan Event
}

// NewManager creates a session manager on top of the given store
func NewManager(st store.VersionedStore, cfg config.SessionConfig, region string) *Manager {
	return &Manager{
		store:  st,
		cache:  expirable.NewLRU[string, *Record](cfg.CacheSize, nil, cfg.CacheTTL),
		cfg:    cfg,
		region: region,
		events: make(chan Event, eventBuffer),
	}
}

// Events exposes update notifications: optimistic applies, commits and
// reverts. The channel is buffered; when no consumer drains it, events are
// dropped instead of stalling writers.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Create persists a new session for owner with the given working context.
// The session starts at version 1 and carries the configured TTL.
func (m *Manager) Create(ctx context.Context, owner string, wc WorkingContext) (*Record, error) {
	rec := &Record{
		ID:      uuid.New().String(),
		Owner:   owner,
		Context: wc.clone(),
		Region:  m.region,
	}

	value, err := encodeSession(rec)
	if err != nil {
		return nil, err
	}

	key := Key(rec.ID)
	version, err := m.store.Put(ctx, key, value, store.PutOptions{
		IfAbsent: true,
		TTL:      m.cfg.TTL,
		Region:   m.region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	rec.Version = version
	rec.UpdatedAt = time.Now()
	m.cache.Add(key, rec.clone())
	m.emit(Event{Type: EventCommitted, SessionID: rec.ID, Version: version, Timestamp: time.Now()})

	log.WithFields(logrus.Fields{
		"session_id": rec.ID,
		"owner":      owner,
	}).Info("Created session")

	return rec, nil
}

// Get loads a session. With useCache it serves from the in-process cache when
// present; otherwise it reads the store and refreshes the cache. Returns
// store.ErrNotFound when the session is absent or expired.
func (m *Manager) Get(ctx context.Context, id string, useCache bool) (*Record, error) {
	key := Key(id)
	if useCache {
		if rec, ok := m.cache.Get(key); ok {
			return rec.clone(), nil
		}
	}

	stored, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	rec, err := decodeSession(id, stored)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, rec.clone())
	return rec, nil
}

// Update applies mut to the session under optimistic concurrency. The
// mutation is applied locally and announced to subscribers before the store
// confirms it; the conditional write uses the last known version. On
// conflict the local cache entry is dropped, current truth is re-read after
// an exponentially growing backoff, and the mutation is re-applied, up to the
// retry budget. Exhausting the budget reverts the cache to committed truth
// and returns a *ConflictError carrying the state that won.
func (m *Manager) Update(ctx context.Context, id string, mut Mutation, opts UpdateOptions) (*Record, error) {
	maxRetries := m.cfg.MaxRetries
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	}
	if opts.NoRetry {
		maxRetries = 0
	}

	key := Key(id)
	base, err := m.Get(ctx, id, true)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		optimistic := base.clone()
		mut(&optimistic.Context)

		// Optimistic apply: cache readers and subscribers see the update
		// before the store confirms it.
		m.cache.Add(key, optimistic.clone())
		m.emit(Event{Type: EventOptimistic, SessionID: id, Version: base.Version, Timestamp: time.Now()})

		value, err := encodeSession(optimistic)
		if err != nil {
			m.cache.Remove(key)
			return nil, err
		}

		expected := base.Version
		version, err := m.store.Put(ctx, key, value, store.PutOptions{
			ExpectedVersion: &expected,
			TTL:             m.cfg.TTL,
			Region:          m.region,
		})
		if err == nil {
			optimistic.Version = version
			optimistic.UpdatedAt = time.Now()
			optimistic.Region = m.region
			m.cache.Add(key, optimistic.clone())
			m.emit(Event{Type: EventCommitted, SessionID: id, Version: version, Timestamp: time.Now()})

			log.WithFields(logrus.Fields{
				"session_id": id,
				"version":    version,
				"attempts":   attempt + 1,
			}).Debug("Committed session update")
			return optimistic, nil
		}

		// The abandoned optimistic copy must not linger in the cache.
		m.cache.Remove(key)

		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to persist session %s: %w", id, err)
		}

		m.emit(Event{Type: EventConflict, SessionID: id, Version: expected, Timestamp: time.Now()})

		if attempt >= maxRetries {
			return nil, m.revert(ctx, id, attempt+1)
		}

		log.WithFields(logrus.Fields{
			"session_id":       id,
			"expected_version": expected,
			"attempt":          attempt + 1,
		}).Warn("Session version conflict, retrying")

		if err := m.backoff(ctx, attempt); err != nil {
			return nil, err
		}

		// Re-read current truth past the cache and re-apply the mutation.
		base, err = m.Get(ctx, id, false)
		if err != nil {
			return nil, err
		}
	}
}

// revert rolls the cache back to committed truth after retries are exhausted
// and builds the conflict error handed to the caller.
func (m *Manager) revert(ctx context.Context, id string, attempts int) error {
	committed, err := m.Get(ctx, id, false)
	if err != nil {
		log.WithError(err).WithField("session_id", id).Warn("Could not re-read session while reverting")
		committed = nil
	}

	ev := Event{Type: EventReverted, SessionID: id, Timestamp: time.Now()}
	if committed != nil {
		ev.Version = committed.Version
	}
	m.emit(ev)

	log.WithFields(logrus.Fields{
		"session_id": id,
		"attempts":   attempts,
	}).Warn("Session update conflicted on every attempt, reverted")

	return &ConflictError{SessionID: id, Attempts: attempts, LastCommitted: committed}
}

// AddRound appends a completed exchange to session history, dropping the
// oldest entries once the configured cap is exceeded.
func (m *Manager) AddRound(ctx context.Context, id string, ex Exchange) (*Record, error) {
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now()
	}
	return m.Update(ctx, id, func(wc *WorkingContext) {
		wc.History = append(wc.History, ex)
		if max := m.cfg.MaxHistory; max > 0 && len(wc.History) > max {
			// Copy so the dropped prefix does not pin the backing array.
			trimmed := make([]Exchange, max)
			copy(trimmed, wc.History[len(wc.History)-max:])
			wc.History = trimmed
		}
	}, UpdateOptions{})
}

// PutCached stores an auxiliary value under the shared cache namespace with a
// store-native TTL hint.
func (m *Manager) PutCached(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := m.store.Put(ctx, CacheKey(key), value, store.PutOptions{
		TTL:    ttl,
		Region: m.region,
	})
	if err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

// GetCached loads an auxiliary cached value. Returns store.ErrNotFound when
// the entry is absent or expired.
func (m *Manager) GetCached(ctx context.Context, key string) ([]byte, error) {
	rec, err := m.store.Get(ctx, CacheKey(key))
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

func (m *Manager) backoff(ctx context.Context, attempt int) error {
	delay := m.cfg.RetryBackoff * time.Duration(1<<uint(attempt))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.WithFields(logrus.Fields{
			"session_id": ev.SessionID,
			"type":       string(ev.Type),
		}).Debug("Dropped session event, channel full")
	}
}

func encodeSession(rec *Record) ([]byte, error) {
	value, err := json.Marshal(persistedSession{ID: rec.ID, Owner: rec.Owner, Context: rec.Context})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", rec.ID, err)
	}
	return value, nil
}

func decodeSession(id string, stored *store.Record) (*Record, error) {
	var ps persistedSession
	if err := json.Unmarshal(stored.Value, &ps); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &Record{
		ID:        ps.ID,
		Owner:     ps.Owner,
		Context:   ps.Context,
		Version:   stored.Version,
		UpdatedAt: stored.UpdatedAt,
		Region:    stored.SourceRegion,
	}, nil
}
