// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	token_hash  TEXT NOT NULL UNIQUE,
	identity    INTEGER,
	location_id INTEGER,
	doctor_id   INTEGER,
	expires_at  INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at);
`

// SQLiteStore implements Store on an embedded SQLite database. Timestamps
// are stored as Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) a SQLite session database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, oops.Code("SESSION_STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	// Serialize writers; SQLite allows one at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close() //nolint:errcheck // schema error takes precedence
		return nil, oops.Code("SESSION_STORE_OPEN_FAILED").With("path", path).With("operation", "create schema").Wrap(err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.Code("SESSION_STORE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, tokenHash string) (*Record, error) {
	var (
		rec                       Record
		id                        string
		identity, loc, doc        sql.NullInt32
		expires, created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, identity, location_id, doctor_id, expires_at, created_at, updated_at
		FROM sessions WHERE token_hash = ?
	`, tokenHash).Scan(&id, &rec.TokenHash, &identity, &loc, &doc, &expires, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("operation", "select session").Wrap(err)
	}

	rec.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("operation", "parse session id").With("id", id).Wrap(err)
	}
	rec.Data = Data{
		Identity:     fromNull(identity),
		LocationRole: fromNull(loc),
		DoctorRole:   fromNull(doc),
	}
	rec.ExpiresAt = time.Unix(0, expires).UTC()
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return &rec, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET identity = ?, location_id = ?, doctor_id = ?, expires_at = ?, updated_at = ?
		WHERE token_hash = ?
	`,
		toNull(rec.Data.Identity),
		toNull(rec.Data.LocationRole),
		toNull(rec.Data.DoctorRole),
		rec.ExpiresAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
		rec.TokenHash,
	)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("operation", "update session").With("id", rec.ID.String()).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("operation", "rows affected").Wrap(err)
	}
	if n == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("id", rec.ID.String()).Wrap(ErrNotFound)
	}
	return nil
}

// Rotate implements Store.
func (s *SQLiteStore) Rotate(ctx context.Context, oldTokenHash string, rec *Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").With("operation", "begin transaction").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // original error takes precedence
		}
	}()

	if oldTokenHash != "" {
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, oldTokenHash); err != nil {
			return oops.Code("SESSION_ROTATE_FAILED").With("operation", "delete previous session").Wrap(err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, token_hash, identity, location_id, doctor_id, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID.String(),
		rec.TokenHash,
		toNull(rec.Data.Identity),
		toNull(rec.Data.LocationRole),
		toNull(rec.Data.DoctorRole),
		rec.ExpiresAt.UnixNano(),
		rec.CreatedAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return oops.Code("SESSION_TOKEN_CONFLICT").With("id", rec.ID.String()).Wrap(ErrTokenConflict)
		}
		return oops.Code("SESSION_ROTATE_FAILED").With("operation", "insert session").Wrap(err)
	}

	if err = tx.Commit(); err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").With("operation", "commit transaction").Wrap(err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "delete session").Wrap(err)
	}
	return nil
}

// DeleteExpired implements Store.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("operation", "delete expired sessions").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("operation", "rows affected").Wrap(err)
	}
	return n, nil
}

func toNull(v *int32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *v, Valid: true}
}

func fromNull(v sql.NullInt32) *int32 {
	if !v.Valid {
		return nil
	}
	n := v.Int32
	return &n
}

var _ Store = (*SQLiteStore)(nil)
