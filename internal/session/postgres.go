// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// poolIface is the subset of pgxpool.Pool used by PostgresStore.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store on the sessions table.
type PostgresStore struct {
	pool poolIface
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const selectSessionSQL = `
	SELECT id, token_hash, identity, location_id, doctor_id, expires_at, created_at, updated_at
	FROM sessions
	WHERE token_hash = $1`

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, tokenHash string) (*Record, error) {
	var rec Record
	var id string
	err := s.pool.QueryRow(ctx, selectSessionSQL, tokenHash).Scan(
		&id,
		&rec.TokenHash,
		&rec.Data.Identity,
		&rec.Data.LocationRole,
		&rec.Data.DoctorRole,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("operation", "select session").Wrap(err)
	}

	rec.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("operation", "parse session id").With("id", id).Wrap(err)
	}
	return &rec, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET identity = $2, location_id = $3, doctor_id = $4, expires_at = $5, updated_at = $6
		WHERE token_hash = $1
	`,
		rec.TokenHash,
		rec.Data.Identity,
		rec.Data.LocationRole,
		rec.Data.DoctorRole,
		rec.ExpiresAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").
			With("operation", "update session").
			With("id", rec.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("id", rec.ID.String()).Wrap(ErrNotFound)
	}
	return nil
}

// Rotate implements Store. The delete and insert run in one transaction.
func (s *PostgresStore) Rotate(ctx context.Context, oldTokenHash string, rec *Record) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").With("operation", "begin transaction").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // original error takes precedence
		}
	}()

	if oldTokenHash != "" {
		if _, err = tx.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, oldTokenHash); err != nil {
			return oops.Code("SESSION_ROTATE_FAILED").With("operation", "delete previous session").Wrap(err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, token_hash, identity, location_id, doctor_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		rec.ID.String(),
		rec.TokenHash,
		rec.Data.Identity,
		rec.Data.LocationRole,
		rec.Data.DoctorRole,
		rec.ExpiresAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("SESSION_TOKEN_CONFLICT").With("id", rec.ID.String()).Wrap(ErrTokenConflict)
		}
		return oops.Code("SESSION_ROTATE_FAILED").With("operation", "insert session").Wrap(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").With("operation", "commit transaction").Wrap(err)
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, tokenHash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "delete session").Wrap(err)
	}
	return nil
}

// DeleteExpired implements Store.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("operation", "delete expired sessions").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*PostgresStore)(nil)
