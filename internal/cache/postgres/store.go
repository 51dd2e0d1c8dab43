package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"farmScope/internal/cache"
	"farmScope/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	collection TEXT NOT NULL,
	key TEXT NOT NULL,
	value JSONB NOT NULL,
	PRIMARY KEY (collection, key)
);
CREATE TABLE IF NOT EXISTS cache_collections (
	collection TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL
);
`

// Store keeps cached collections in Postgres. Each Put replaces a collection
// inside one transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &model.TransportError{Op: "postgres ping", Err: err}
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the cache tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate cache schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, entries map[string]json.RawMessage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &model.TransportError{Op: "postgres begin", Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cache_entries WHERE collection = $1`, key); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}

	if len(entries) > 0 {
		batch := &pgx.Batch{}
		for field, raw := range entries {
			batch.Queue(`INSERT INTO cache_entries (collection, key, value) VALUES ($1, $2, $3)`,
				key, field, string(raw))
		}
		br := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert %s: %w", key, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert %s: %w", key, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cache_collections (collection, size, committed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (collection) DO UPDATE
		SET size = EXCLUDED.size, committed_at = EXCLUDED.committed_at
	`, key, len(entries))
	if err != nil {
		return fmt.Errorf("mark %s committed: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return &model.TransportError{Op: "postgres commit " + key, Err: err}
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context, key string) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value::text FROM cache_entries WHERE collection = $1`, key)
	if err != nil {
		return nil, &model.TransportError{Op: "postgres select " + key, Err: err}
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		out[field] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.TransportError{Op: "postgres select " + key, Err: err}
	}
	return out, nil
}

func (s *Store) CommittedAt(ctx context.Context, key string) (time.Time, bool, error) {
	var ts time.Time
	row := s.pool.QueryRow(ctx, `SELECT committed_at FROM cache_collections WHERE collection = $1`, key)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts.UTC(), true, nil
}

// AcquireLease takes a session-level advisory lock keyed by name on a
// connection held until release. The lock dies with the session, so ttl is
// not used.
func (s *Store) AcquireLease(ctx context.Context, name string, _ time.Duration) (func(context.Context) error, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &model.TransportError{Op: "postgres acquire " + name, Err: err}
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&locked); err != nil {
		conn.Release()
		return nil, &model.TransportError{Op: "postgres lock " + name, Err: err}
	}
	if !locked {
		conn.Release()
		return nil, cache.ErrLeaseHeld
	}

	release := func(ctx context.Context) error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
			// Drop the session so the lock cannot outlive this holder.
			conn.Conn().Close(ctx)
			return &model.TransportError{Op: "postgres unlock " + name, Err: err}
		}
		return nil
	}
	return release, nil
}

var (
	_ cache.Store  = (*Store)(nil)
	_ cache.Leaser = (*Store)(nil)
)
