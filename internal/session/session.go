// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package session

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Field names one value carried by a session.
type Field int

// Session fields.
const (
	FieldIdentity Field = iota + 1
	FieldLocationRole
	FieldDoctorRole
)

// String returns the field name.
func (f Field) String() string {
	switch f {
	case FieldIdentity:
		return "identity"
	case FieldLocationRole:
		return "location"
	case FieldDoctorRole:
		return "doctor"
	default:
		return "unknown"
	}
}

// maxTokenAttempts bounds retries when a freshly generated token collides.
const maxTokenAttempts = 3

// Session is a per-request handle on one client session. Reads observe the
// staged view; Set, Remove, Stage, Renew and Purge only change the handle.
// Commit writes the staged state in a single Store operation. A Session is
// not safe for concurrent use.
type Session struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	token  string  // plaintext client token of record, "" when none
	record *Record // last committed record, nil when anonymous
	stale  string  // hash of an expired record to drop on the next write

	data  Data
	dirty bool
	renew bool
	purge bool
}

func newSession(store Store, ttl time.Duration, now func() time.Time) *Session {
	return &Session{store: store, ttl: ttl, now: now}
}

// Token returns the client token for the committed record, or "" when the
// session has no record.
func (s *Session) Token() string {
	return s.token
}

// ExpiresAt returns the expiry of the committed record, or the zero time.
func (s *Session) ExpiresAt() time.Time {
	if s.record == nil {
		return time.Time{}
	}
	return s.record.ExpiresAt
}

// Data returns a copy of the staged session values.
func (s *Session) Data() Data {
	return s.data.clone()
}

// Get returns a staged field value.
func (s *Session) Get(f Field) (int32, bool) {
	if p := s.slot(f); p != nil && *p != nil {
		return **p, true
	}
	return 0, false
}

// Set stages a field value.
func (s *Session) Set(f Field, v int32) {
	if p := s.slot(f); p != nil {
		*p = &v
		s.dirty = true
	}
}

// Remove stages the removal of a field.
func (s *Session) Remove(f Field) {
	if p := s.slot(f); p != nil && *p != nil {
		*p = nil
		s.dirty = true
	}
}

// Stage replaces every field at once.
func (s *Session) Stage(d Data) {
	s.data = d.clone()
	s.dirty = true
}

// Clear stages the removal of every field.
func (s *Session) Clear() {
	s.Stage(Data{})
}

// Renew stages rotation of the client token. The next Commit issues a new
// token and invalidates the current one.
func (s *Session) Renew() {
	s.renew = true
}

// Purge discards all staged values and stages destruction of the session.
// Values staged after Purge start a new session.
func (s *Session) Purge() {
	s.data = Data{}
	s.purge = true
	s.dirty = true
}

// Pending reports whether the handle has uncommitted changes.
func (s *Session) Pending() bool {
	return s.dirty || s.renew || s.purge
}

// Commit persists staged changes. On error the store is left as it was
// before the call and the handle keeps its staged changes.
func (s *Session) Commit(ctx context.Context) error {
	if !s.Pending() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("SESSION_COMMIT_FAILED").With("operation", "commit session").Wrap(err)
	}

	now := s.now()
	switch {
	case s.data.IsZero():
		if hash := s.currentHash(); hash != "" {
			if err := s.store.Delete(ctx, hash); err != nil {
				return oops.Code("SESSION_COMMIT_FAILED").With("operation", "delete session").Wrap(err)
			}
		}
		s.token, s.record, s.stale = "", nil, ""

	case s.record == nil || s.renew || s.purge:
		if err := s.issue(ctx, now); err != nil {
			return err
		}

	default:
		rec := s.record.clone()
		rec.Data = s.data.clone()
		rec.ExpiresAt = now.Add(s.ttl)
		rec.UpdatedAt = now
		err := s.store.Save(ctx, rec)
		if errors.Is(err, ErrNotFound) {
			// Swept between load and commit.
			s.record = nil
			err = s.issue(ctx, now)
		} else if err == nil {
			s.record = rec
		}
		if err != nil {
			return oops.Code("SESSION_COMMIT_FAILED").With("operation", "save session").Wrap(err)
		}
	}

	s.dirty, s.renew, s.purge = false, false, false
	return nil
}

func (s *Session) currentHash() string {
	if s.record != nil {
		return s.record.TokenHash
	}
	return s.stale
}

// issue writes the staged data under a freshly generated token, replacing
// any existing record.
func (s *Session) issue(ctx context.Context, now time.Time) error {
	oldHash := s.currentHash()

	var token string
	var rec *Record
	backoff := retry.WithMaxRetries(maxTokenAttempts-1, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, h, err := GenerateToken()
		if err != nil {
			return err
		}
		r := &Record{
			ID:        ulid.Make(),
			TokenHash: h,
			Data:      s.data.clone(),
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.Rotate(ctx, oldHash, r); err != nil {
			if errors.Is(err, ErrTokenConflict) {
				return retry.RetryableError(err)
			}
			return err //nolint:wrapcheck // wrapped below
		}
		token, rec = t, r
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_COMMIT_FAILED").With("operation", "issue session token").Wrap(err)
	}

	s.token, s.record, s.stale = token, rec, ""
	return nil
}

func (s *Session) slot(f Field) **int32 {
	switch f {
	case FieldIdentity:
		return &s.data.Identity
	case FieldLocationRole:
		return &s.data.LocationRole
	case FieldDoctorRole:
		return &s.data.DoctorRole
	default:
		return nil
	}
}
