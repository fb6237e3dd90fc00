package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearsay-live/hearsay/internal/config"
)

// Sentinel errors returned by Store operations. Callers match them with
// errors.Is; all are wrapped with operation context before being returned.
var (
	// ErrRecordingNotFound is returned when a recording id resolves to no row.
	ErrRecordingNotFound = errors.New("store: recording not found")

	// ErrAudioNotFound is returned when an AudioRef points at audio that no
	// longer exists (unlinked large object or deleted blob row).
	ErrAudioNotFound = errors.New("store: audio not found")

	// ErrEmptyAudioRef is returned when an AudioRef carries neither an OID
	// nor a blob id.
	ErrEmptyAudioRef = errors.New("store: audio ref has neither oid nor blob id")
)

// Compile-time interface checks. Store dispatches audio operations to the one
// backend identified by the AudioRef, so all three satisfy [AudioStore].
var (
	_ AudioStore = (*Store)(nil)
	_ AudioStore = (*largeObjectStore)(nil)
	_ AudioStore = (*blobStore)(nil)
)

// Store is the central PostgreSQL-backed persistence layer for Hearsay. It
// holds a single [pgxpool.Pool] and exposes recordings, transcripts,
// translations, user settings, and audio storage.
//
// SaveAudio writes through the backend selected in [config.StorageConfig];
// reads, streams, and deletes dispatch on the [AudioRef] instead, so audio
// stored under a previous backend configuration stays reachable.
//
// All operations are safe for concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	backend config.AudioBackend
	lo      *largeObjectStore
	blob    *blobStore
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database in cfg, and runs [Migrate] to ensure all required tables exist.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{
		pool:    pool,
		backend: cfg.Backend(),
		lo:      &largeObjectStore{pool: pool},
		blob:    &blobStore{pool: pool},
	}, nil
}

// Ping verifies the database connection. It backs the /readyz checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
