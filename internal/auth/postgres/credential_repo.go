// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/azap/azap/internal/auth"
)

// poolIface is the subset of pgxpool.Pool the repository uses.
type poolIface interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialRepository implements auth.CredentialRepository. Every
// statement is parameterized.
type CredentialRepository struct {
	pool poolIface
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool poolIface) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// FindCredential returns the stored hash for a user id.
func (r *CredentialRepository) FindCredential(ctx context.Context, id int32) (*auth.Credential, error) {
	var cred auth.Credential
	err := r.pool.QueryRow(ctx, `SELECT id, hsecret FROM users WHERE id = $1`, id).
		Scan(&cred.ID, &cred.SecretHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("user_id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_QUERY_FAILED").
			With("operation", "select user").
			With("user_id", id).
			Wrap(err)
	}
	return &cred, nil
}

// ExistsLocation reports whether a location has the given id.
func (r *CredentialRepository) ExistsLocation(ctx context.Context, id int32) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)`, "locations", id)
}

// ExistsDoctor reports whether a doctor has the given id.
func (r *CredentialRepository) ExistsDoctor(ctx context.Context, id int32) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, "doctors", id)
}

func (r *CredentialRepository) exists(ctx context.Context, query, table string, id int32) (bool, error) {
	var found bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&found); err != nil {
		return false, oops.Code("CREDENTIAL_QUERY_FAILED").
			With("operation", "check role").
			With("table", table).
			With("id", id).
			Wrap(err)
	}
	return found, nil
}

// InsertCredential stores a hashed secret and returns the new user id.
func (r *CredentialRepository) InsertCredential(ctx context.Context, secretHash string) (int32, error) {
	var id int32
	err := r.pool.QueryRow(ctx, `INSERT INTO users (hsecret) VALUES ($1) RETURNING id`, secretHash).Scan(&id)
	if err != nil {
		return 0, oops.Code("CREDENTIAL_INSERT_FAILED").With("operation", "insert user").Wrap(err)
	}
	return id, nil
}

// Compile-time interface check.
var _ auth.CredentialRepository = (*CredentialRepository)(nil)
