// Package postgres implements session.Store backed by PostgreSQL.
//
// The sessions table carries a UNIQUE (name, user_id) constraint so the
// one-session-per-pair invariant is enforced by the engine, and rotation
// uses a compare-and-swap on updated_tally so concurrent validations of the
// same token cannot both rotate.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tgrimes/keygate/session"
)

// Store implements session.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ session.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures the
// schema exists, and returns a new Store.
func NewStoreFromDSN(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(pool, opts...), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const recordColumns = `id, name, user_id, nonce_hash, refresh_nonce_hash, header_nonce_hash,
	created_at, expires_at, updated_tally, updated_at, additionals`

func scanRecord(row pgx.Row) (session.Record, error) {
	var rec session.Record
	var updatedAt sql.NullInt64
	var additionals []byte
	err := row.Scan(&rec.ID, &rec.Name, &rec.UserID, &rec.NonceHash, &rec.RefreshNonceHash,
		&rec.HeaderNonceHash, &rec.CreatedAt, &rec.ExpiresAt, &rec.UpdatedTally,
		&updatedAt, &additionals)
	if err != nil {
		return session.Record{}, err
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Int64
	}
	if len(additionals) > 0 {
		rec.Additionals = json.RawMessage(additionals)
	}
	return rec, nil
}

func nullableUpdatedAt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableAdditionals(a json.RawMessage) any {
	if len(a) == 0 {
		return nil
	}
	return []byte(a)
}

func (s *Store) Generate(ctx context.Context, rec session.Record) (session.Record, error) {
	if !session.ValidAdditionals(rec.Additionals) {
		return session.Record{}, session.ErrBadAdditionals
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return session.Record{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM sessions WHERE name = $1 AND user_id = $2`,
		rec.Name, rec.UserID); err != nil {
		return session.Record{}, fmt.Errorf("evicting prior session: %w", err)
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO sessions (name, user_id, nonce_hash, refresh_nonce_hash, header_nonce_hash,
			created_at, expires_at, updated_tally, updated_at, additionals)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NULL, $8)
		 RETURNING `+recordColumns,
		rec.Name, rec.UserID, rec.NonceHash, rec.RefreshNonceHash, rec.HeaderNonceHash,
		rec.CreatedAt, rec.ExpiresAt, nullableAdditionals(rec.Additionals))
	created, err := scanRecord(row)
	if err != nil {
		return session.Record{}, fmt.Errorf("inserting session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return session.Record{}, fmt.Errorf("committing session: %w", err)
	}
	return created, nil
}

func (s *Store) Get(ctx context.Context, name string, user int64) (session.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM sessions WHERE name = $1 AND user_id = $2`,
		name, user)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Record{}, session.ErrNotFound
	}
	if err != nil {
		return session.Record{}, fmt.Errorf("fetching session: %w", err)
	}
	if rec.Expired(s.now()) {
		_, _ = s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, rec.ID)
		return session.Record{}, session.ErrExpired
	}
	return rec, nil
}

func (s *Store) Update(ctx context.Context, name string, user int64, additionals json.RawMessage,
	refreshHash, headerHash string, expectedTally uint64) (session.Record, error) {
	if !session.ValidAdditionals(additionals) {
		return session.Record{}, session.ErrBadAdditionals
	}

	now := s.now().Unix()
	row := s.pool.QueryRow(ctx,
		`UPDATE sessions
		 SET refresh_nonce_hash = $1, header_nonce_hash = $2, additionals = $3,
		     updated_tally = updated_tally + 1, updated_at = $4
		 WHERE name = $5 AND user_id = $6 AND updated_tally = $7 AND expires_at > $4
		 RETURNING `+recordColumns,
		refreshHash, headerHash, nullableAdditionals(additionals), now, name, user, expectedTally)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return session.Record{}, fmt.Errorf("updating session: %w", err)
	}

	// The guarded update matched nothing: decide which failure it was.
	if _, err := s.Get(ctx, name, user); err != nil {
		return session.Record{}, err
	}
	return session.Record{}, session.ErrConflict
}

func (s *Store) Delete(ctx context.Context, name string, user int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE name = $1 AND user_id = $2`, name, user)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
