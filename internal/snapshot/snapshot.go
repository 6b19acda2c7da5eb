// Package snapshot persists the last successfully fetched CSV body in
// Postgres so a restarted service can answer queries while the spreadsheet
// is unreachable.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS csv_snapshots (
	source_key  TEXT PRIMARY KEY,
	body        TEXT NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSQL = `
INSERT INTO csv_snapshots (source_key, body, fetched_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (source_key) DO UPDATE
SET body = EXCLUDED.body, fetched_at = EXCLUDED.fetched_at, updated_at = now()`

const latestSQL = `
SELECT body, fetched_at FROM csv_snapshots WHERE source_key = $1`

// Store keeps one snapshot per source URL. It implements core.SnapshotStore.
type Store struct {
	db  DBTX
	key string
}

// New creates a Store for the given source URL. The URL itself is not
// stored, only its SHA-256.
func New(db DBTX, sourceURL string) *Store {
	return &Store{db: db, key: SourceKey(sourceURL)}
}

// SourceKey derives the row key for a source URL.
func SourceKey(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])
}

// Migrate creates the snapshot table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create csv_snapshots: %w", err)
	}
	return nil
}

// Save replaces the snapshot for this source.
func (s *Store) Save(ctx context.Context, snap core.Snapshot) error {
	if _, err := s.db.Exec(ctx, upsertSQL, s.key, snap.Body, snap.FetchedAt.UTC()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Latest returns the stored snapshot, or core.ErrNoSnapshot.
func (s *Store) Latest(ctx context.Context) (core.Snapshot, error) {
	var (
		body      string
		fetchedAt time.Time
	)
	err := s.db.QueryRow(ctx, latestSQL, s.key).Scan(&body, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Snapshot{}, core.ErrNoSnapshot
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return core.Snapshot{Body: body, FetchedAt: fetchedAt}, nil
}
