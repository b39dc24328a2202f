package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/wombat2006/wallbounce/internal/logger"
)

var recordsBucket = []byte("records")

// Ensure BoltStore implements the VersionedStore interface
var _ VersionedStore = (*BoltStore)(nil)

// BoltStore is a single-file VersionedStore backend on bbolt. Conditional
// writes run inside one update transaction, so the version check and the
// write are atomic.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the bolt file at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating bolt directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("error opening bolt file: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating records bucket: %w", err)
	}

	logger.Log.WithField("path", path).Info("Opened bolt state store")
	return &BoltStore{db: db}, nil
}

// Get returns the current record, or ErrNotFound when the key is absent
// or expired
func (s *BoltStore) Get(ctx context.Context, key string) (*Record, error) {
	var rec *Record
	expired := false

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(recordsBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("error decoding record: %w", err)
		}
		if r.Expired(time.Now()) {
			expired = true
			return nil
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		// Lazy removal happens in a separate write transaction
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Put writes value under key honoring the conditional-write options
func (s *BoltStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) (int64, error) {
	var committed int64

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		now := time.Now()

		var current *Record
		if raw := b.Get([]byte(key)); raw != nil {
			var r Record
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("error decoding record: %w", err)
			}
			if !r.Expired(now) {
				current = &r
			}
		}

		if current != nil {
			if opts.IfAbsent {
				return ErrKeyExists
			}
			if opts.ExpectedVersion != nil && *opts.ExpectedVersion != current.Version {
				return ErrVersionConflict
			}
		} else if opts.ExpectedVersion != nil {
			return ErrVersionConflict
		}

		next := Record{
			Value:        value,
			Version:      1,
			UpdatedAt:    now,
			SourceRegion: opts.Region,
		}
		if current != nil {
			next.Version = current.Version + 1
		}
		if opts.TTL != 0 {
			next.ExpiresAt = now.Add(opts.TTL)
		}

		enc, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("error encoding record: %w", err)
		}
		if err := b.Put([]byte(key), enc); err != nil {
			return err
		}

		committed = next.Version
		return nil
	})
	if err != nil {
		return 0, err
	}
	return committed, nil
}

// Delete removes the key; deleting an absent key is not an error
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete([]byte(key))
	})
}

// Restore writes the record verbatim, bypassing the version increment
func (s *BoltStore) Restore(ctx context.Context, key string, rec Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		enc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("error encoding record: %w", err)
		}
		return tx.Bucket(recordsBucket).Put([]byte(key), enc)
	})
}

// Close closes the underlying bolt file
func (s *BoltStore) Close() error {
	return s.db.Close()
}
