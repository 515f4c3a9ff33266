// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/azap/azap/pkg/errutil"
)

// DefaultTTL is how long a session stays valid after its last write.
const DefaultTTL = 24 * time.Hour

// Manager opens Session handles against a Store.
type Manager struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	swept  func(n int64)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger used by the expiry sweeper.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSweepObserver registers fn to receive the count of every sweep that
// removed sessions.
func WithSweepObserver(fn func(n int64)) ManagerOption {
	return func(m *Manager) {
		m.swept = fn
	}
}

// NewManager creates a Manager. The store is required.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("session store is required")
	}
	m := &Manager{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_CONFIG").With("ttl", m.ttl.String()).Errorf("session ttl must be positive")
	}
	return m, nil
}

// New returns an anonymous handle with no record.
func (m *Manager) New() *Session {
	return newSession(m.store, m.ttl, m.now)
}

// Load returns the handle for a client token. An empty, malformed, unknown
// or expired token yields an anonymous handle. Only store failures are
// returned as errors.
func (m *Manager) Load(ctx context.Context, token string) (*Session, error) {
	s := m.New()
	if !wellFormedToken(token) {
		return s, nil
	}

	hash := HashToken(token)
	rec, err := m.store.Load(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("operation", "load session").Wrap(err)
	}

	if rec.IsExpiredAt(m.now()) {
		s.stale = hash
		return s, nil
	}

	s.token = token
	s.record = rec
	s.data = rec.Data.clone()
	return s, nil
}

// PurgeExpired deletes every expired session.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").With("operation", "delete expired sessions").Wrap(err)
	}
	return n, nil
}

// RunSweeper purges expired sessions every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogError(m.logger, "session sweep failed", err)
				continue
			}
			if n > 0 {
				m.logger.Debug("purged expired sessions", "count", n)
				if m.swept != nil {
					m.swept(n)
				}
			}
		}
	}
}
