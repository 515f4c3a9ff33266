// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

// Package session provides server-side sessions keyed by an opaque client
// token. Reads and writes go through a per-request Session handle that
// buffers mutations until Commit.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is returned when no session exists for a token hash.
	ErrNotFound = errors.New("session not found")

	// ErrTokenConflict is returned when a new token hash collides with an
	// existing session.
	ErrTokenConflict = errors.New("session token conflict")
)

// Data is the authentication state carried by a session. A nil field is
// absent.
type Data struct {
	Identity     *int32 `json:"identity,omitempty"`
	LocationRole *int32 `json:"location,omitempty"`
	DoctorRole   *int32 `json:"doctor,omitempty"`
}

// IsZero reports whether no field is present.
func (d Data) IsZero() bool {
	return d.Identity == nil && d.LocationRole == nil && d.DoctorRole == nil
}

// clone returns a copy that shares no pointers with d.
func (d Data) clone() Data {
	return Data{
		Identity:     copyInt32(d.Identity),
		LocationRole: copyInt32(d.LocationRole),
		DoctorRole:   copyInt32(d.DoctorRole),
	}
}

func copyInt32(v *int32) *int32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Record is a persisted session.
type Record struct {
	ID        ulid.ULID
	TokenHash string
	Data      Data
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpiredAt reports whether the record has expired at t.
func (r *Record) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

func (r *Record) clone() *Record {
	c := *r
	c.Data = r.Data.clone()
	return &c
}

// Store persists session records. Every method is a single atomic
// operation from the point of view of concurrent readers.
type Store interface {
	// Load returns the record for a token hash, or ErrNotFound.
	Load(ctx context.Context, tokenHash string) (*Record, error)

	// Save updates the data and expiry of an existing record.
	// Returns ErrNotFound if the record no longer exists.
	Save(ctx context.Context, rec *Record) error

	// Rotate removes the record for oldTokenHash (if any) and inserts rec.
	// An empty oldTokenHash inserts only. Returns ErrTokenConflict if
	// rec.TokenHash is already in use.
	Rotate(ctx context.Context, oldTokenHash string, rec *Record) error

	// Delete removes the record for a token hash. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteExpired removes records that expired at or before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
