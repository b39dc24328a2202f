package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/wombat2006/wallbounce/internal/config"
	"github.com/wombat2006/wallbounce/internal/logger"
)

// Ensure PostgresStore implements the VersionedStore interface
var _ VersionedStore = (*PostgresStore)(nil)

// PostgresStore is the PostgreSQL VersionedStore backend. Conditional
// writes run inside a transaction with a row lock, so concurrent writers
// of the same key serialize on the version check.
type PostgresStore struct {
	conn *sql.DB
}

// NewPostgresStore creates a new PostgresStore with a new connection
func NewPostgresStore(dbConfig config.DatabaseConfig) (*PostgresStore, error) {
	dsn := dbConfig.GetDSN()
	logger.Log.WithField("dsn", dsn).Info("Connecting to PostgreSQL")

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	logger.Log.Info("Successfully connected to PostgreSQL")

	s := &PostgresStore{conn: conn}

	// Run migrations
	if err = s.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return s, nil
}

// RunMigrations runs database migrations using golang-migrate
func (s *PostgresStore) RunMigrations() error {
	driver, err := postgres.WithInstance(s.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("error creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.Info("Database migrations applied successfully")
	return nil
}

// Get returns the current record, or ErrNotFound when the key is absent
// or expired
func (s *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	query := `
	SELECT value, version, updated_at, expires_at, source_region
	FROM records
	WHERE key = $1
	`

	var rec Record
	var expiresAt sql.NullTime
	err := s.conn.QueryRowContext(ctx, query, key).Scan(
		&rec.Value, &rec.Version, &rec.UpdatedAt, &expiresAt, &rec.SourceRegion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error retrieving record: %w", err)
	}
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}

	if rec.Expired(time.Now()) {
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	return &rec, nil
}

// Put writes value under key honoring the conditional-write options
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	var currentVersion int64
	var expiresAt sql.NullTime
	live := true
	err = tx.QueryRowContext(ctx,
		`SELECT version, expires_at FROM records WHERE key = $1 FOR UPDATE`, key).
		Scan(&currentVersion, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		live = false
	} else if err != nil {
		return 0, fmt.Errorf("error reading current version: %w", err)
	}
	if live && expiresAt.Valid && now.After(expiresAt.Time) {
		live = false
	}

	if live {
		if opts.IfAbsent {
			return 0, ErrKeyExists
		}
		if opts.ExpectedVersion != nil && *opts.ExpectedVersion != currentVersion {
			return 0, ErrVersionConflict
		}
	} else if opts.ExpectedVersion != nil {
		return 0, ErrVersionConflict
	}

	next := int64(1)
	if live {
		next = currentVersion + 1
	}

	var expiry interface{}
	if opts.TTL != 0 {
		expiry = now.Add(opts.TTL)
	}

	query := `
	INSERT INTO records (key, value, version, updated_at, expires_at, source_region)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (key) DO UPDATE SET
		value = EXCLUDED.value,
		version = EXCLUDED.version,
		updated_at = EXCLUDED.updated_at,
		expires_at = EXCLUDED.expires_at,
		source_region = EXCLUDED.source_region
	`
	if _, err := tx.ExecContext(ctx, query, key, value, next, now, expiry, opts.Region); err != nil {
		return 0, fmt.Errorf("error writing record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing write: %w", err)
	}
	return next, nil
}

// Delete removes the key; deleting an absent key is not an error
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("error deleting record: %w", err)
	}
	return nil
}

// Restore writes the record verbatim, bypassing the version increment
func (s *PostgresStore) Restore(ctx context.Context, key string, rec Record) error {
	var expiry interface{}
	if !rec.ExpiresAt.IsZero() {
		expiry = rec.ExpiresAt
	}

	query := `
	INSERT INTO records (key, value, version, updated_at, expires_at, source_region)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (key) DO UPDATE SET
		value = EXCLUDED.value,
		version = EXCLUDED.version,
		updated_at = EXCLUDED.updated_at,
		expires_at = EXCLUDED.expires_at,
		source_region = EXCLUDED.source_region
	`
	if _, err := s.conn.ExecContext(ctx, query, key, rec.Value, rec.Version, rec.UpdatedAt, expiry, rec.SourceRegion); err != nil {
		return fmt.Errorf("error restoring record: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
