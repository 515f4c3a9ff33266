// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/azap/azap/internal/auth"
	"github.com/azap/azap/internal/auth/mocks"
	"github.com/azap/azap/internal/session"
	"github.com/azap/azap/pkg/errutil"
)

// flakyStore fails writes while failWrites is set.
type flakyStore struct {
	*session.MemoryStore
	mu         sync.Mutex
	failWrites bool
}

var errStoreDown = errors.New("session store unavailable")

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = v
}

func (s *flakyStore) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failWrites
}

func (s *flakyStore) Save(ctx context.Context, rec *session.Record) error {
	if s.failing() {
		return errStoreDown
	}
	return s.MemoryStore.Save(ctx, rec)
}

func (s *flakyStore) Rotate(ctx context.Context, old string, rec *session.Record) error {
	if s.failing() {
		return errStoreDown
	}
	return s.MemoryStore.Rotate(ctx, old, rec)
}

func (s *flakyStore) Delete(ctx context.Context, hash string) error {
	if s.failing() {
		return errStoreDown
	}
	return s.MemoryStore.Delete(ctx, hash)
}

type fixture struct {
	creds   *mocks.MockCredentialRepository
	hasher  *mocks.MockPasswordHasher
	store   *flakyStore
	manager *session.Manager
	svc     *auth.Service
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		creds:  mocks.NewMockCredentialRepository(t),
		hasher: mocks.NewMockPasswordHasher(t),
		store:  &flakyStore{MemoryStore: session.NewMemoryStore()},
		logs:   &bytes.Buffer{},
	}

	var err error
	f.manager, err = session.NewManager(f.store)
	require.NoError(t, err)

	logger := slog.New(slog.NewJSONHandler(f.logs, nil))
	f.svc, err = auth.NewService(f.creds, f.hasher, auth.WithLogger(logger))
	require.NoError(t, err)
	return f
}

// populated returns the token of a committed session holding data.
func (f *fixture) populated(t *testing.T, data session.Data) string {
	t.Helper()
	s := f.manager.New()
	s.Stage(data)
	require.NoError(t, s.Commit(context.Background()))
	require.NotEmpty(t, s.Token())
	return s.Token()
}

func (f *fixture) load(t *testing.T, token string) *session.Session {
	t.Helper()
	s, err := f.manager.Load(context.Background(), token)
	require.NoError(t, err)
	return s
}

func (f *fixture) expectValidLogin(id int32, location, doctor bool) {
	hash := fmt.Sprintf("$scrypt$hash-%d", id)
	f.creds.On("FindCredential", mock.Anything, id).Return(&auth.Credential{ID: id, SecretHash: hash}, nil).Once()
	f.hasher.On("Verify", "s3cret", hash).Return(true).Once()
	f.creds.On("ExistsLocation", mock.Anything, id).Return(location, nil).Once()
	f.creds.On("ExistsDoctor", mock.Anything, id).Return(doctor, nil).Once()
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		creds   auth.CredentialRepository
		hasher  auth.PasswordHasher
		wantErr string
	}{
		{
			name:    "nil credential repository",
			hasher:  mocks.NewMockPasswordHasher(t),
			wantErr: "credential repository is required",
		},
		{
			name:    "nil hasher",
			creds:   mocks.NewMockCredentialRepository(t),
			wantErr: "password hasher is required",
		},
		{
			name:   "valid dependencies",
			creds:  mocks.NewMockCredentialRepository(t),
			hasher: mocks.NewMockPasswordHasher(t),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.creds, tt.hasher)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				errutil.AssertErrorCode(t, err, "AUTH_INVALID_CONFIG")
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestService_Login_Success(t *testing.T) {
	ctx := context.Background()

	t.Run("plain user gets identity only", func(t *testing.T) {
		f := newFixture(t)
		f.expectValidLogin(4, false, false)
		sess := f.manager.New()

		view, err := f.svc.Login(ctx, sess, 4, "s3cret")
		require.NoError(t, err)

		assert.Equal(t, int32(4), view.Identity)
		assert.Nil(t, view.LocationRole)
		assert.Nil(t, view.DoctorRole)
		assert.Equal(t, auth.ScopeNone, auth.ScopeFor(*view))

		reloaded := f.load(t, sess.Token())
		got, ok := f.svc.CurrentSession(reloaded)
		require.True(t, ok)
		assert.Equal(t, *view, got)
	})

	t.Run("location actor", func(t *testing.T) {
		f := newFixture(t)
		f.expectValidLogin(7, true, false)
		sess := f.manager.New()

		view, err := f.svc.Login(ctx, sess, 7, "s3cret")
		require.NoError(t, err)

		require.NotNil(t, view.LocationRole)
		assert.Equal(t, int32(7), *view.LocationRole)
		assert.Nil(t, view.DoctorRole)
		assert.Equal(t, auth.ScopeLocation, auth.ScopeFor(*view))
	})

	t.Run("doctor at a location", func(t *testing.T) {
		f := newFixture(t)
		f.expectValidLogin(9, true, true)
		sess := f.manager.New()

		view, err := f.svc.Login(ctx, sess, 9, "s3cret")
		require.NoError(t, err)

		require.NotNil(t, view.LocationRole)
		require.NotNil(t, view.DoctorRole)
		assert.Equal(t, int32(9), *view.LocationRole)
		assert.Equal(t, int32(9), *view.DoctorRole)
		assert.Equal(t, auth.ScopeDoctor, auth.ScopeFor(*view))

		d := f.load(t, sess.Token()).Data()
		assert.Equal(t, int32(9), *d.Identity)
		assert.Equal(t, int32(9), *d.LocationRole)
		assert.Equal(t, int32(9), *d.DoctorRole)
	})

	t.Run("rotates the session token", func(t *testing.T) {
		f := newFixture(t)
		oldToken := f.populated(t, session.Data{Identity: int32Ptr(2)})
		f.expectValidLogin(4, false, false)
		sess := f.load(t, oldToken)

		_, err := f.svc.Login(ctx, sess, 4, "s3cret")
		require.NoError(t, err)

		assert.NotEqual(t, oldToken, sess.Token())
		_, ok := f.svc.CurrentSession(f.load(t, oldToken))
		assert.False(t, ok, "old token must no longer resolve")
		assert.Equal(t, 1, f.store.Len())
	})

	t.Run("replaces stale roles from an earlier login", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, session.Data{
			Identity:     int32Ptr(7),
			LocationRole: int32Ptr(7),
			DoctorRole:   int32Ptr(7),
		})
		f.expectValidLogin(4, false, false)
		sess := f.load(t, token)

		_, err := f.svc.Login(ctx, sess, 4, "s3cret")
		require.NoError(t, err)

		d := f.load(t, sess.Token()).Data()
		assert.Equal(t, int32(4), *d.Identity)
		assert.Nil(t, d.LocationRole)
		assert.Nil(t, d.DoctorRole)
	})
}

func TestService_Login_Rejected(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id purges without hashing", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, session.Data{Identity: int32Ptr(5), LocationRole: int32Ptr(5)})
		f.creds.On("FindCredential", mock.Anything, int32(999)).Return(nil, auth.ErrNotFound).Once()
		sess := f.load(t, token)

		view, err := f.svc.Login(ctx, sess, 999, "anything")
		require.Error(t, err)
		assert.Nil(t, view)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
		assert.Equal(t, auth.OutcomeRejected, auth.Classify(err))

		f.hasher.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
		assert.Empty(t, sess.Token())
		assert.Equal(t, 0, f.store.Len())
	})

	t.Run("wrong secret purges a populated session", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, session.Data{Identity: int32Ptr(5), LocationRole: int32Ptr(5)})
		f.creds.On("FindCredential", mock.Anything, int32(5)).Return(&auth.Credential{ID: 5, SecretHash: "h"}, nil).Once()
		f.hasher.On("Verify", "wrong", "h").Return(false).Once()
		sess := f.load(t, token)

		_, err := f.svc.Login(ctx, sess, 5, "wrong")
		require.Error(t, err)
		assert.Equal(t, auth.OutcomeRejected, auth.Classify(err))

		_, ok := f.svc.CurrentSession(sess)
		assert.False(t, ok)
		_, ok = f.svc.CurrentSession(f.load(t, token))
		assert.False(t, ok)
		f.creds.AssertNotCalled(t, "ExistsLocation", mock.Anything, mock.Anything)
		f.creds.AssertNotCalled(t, "ExistsDoctor", mock.Anything, mock.Anything)
	})

	t.Run("unknown id and wrong secret are indistinguishable", func(t *testing.T) {
		f := newFixture(t)
		f.creds.On("FindCredential", mock.Anything, int32(1)).Return(nil, auth.ErrNotFound).Once()
		f.creds.On("FindCredential", mock.Anything, int32(2)).Return(&auth.Credential{ID: 2, SecretHash: "h"}, nil).Once()
		f.hasher.On("Verify", "x", "h").Return(false).Once()

		_, unknownErr := f.svc.Login(ctx, f.manager.New(), 1, "x")
		_, wrongErr := f.svc.Login(ctx, f.manager.New(), 2, "x")

		assert.Equal(t, unknownErr.Error(), wrongErr.Error())
		assert.Equal(t, auth.Classify(unknownErr), auth.Classify(wrongErr))
	})

	t.Run("secret never appears in logs", func(t *testing.T) {
		f := newFixture(t)
		f.creds.On("FindCredential", mock.Anything, int32(5)).Return(&auth.Credential{ID: 5, SecretHash: "h"}, nil).Once()
		f.hasher.On("Verify", "very-private-secret", "h").Return(false).Once()

		_, err := f.svc.Login(ctx, f.manager.New(), 5, "very-private-secret")
		require.Error(t, err)

		assert.Contains(t, f.logs.String(), "login rejected")
		assert.NotContains(t, f.logs.String(), "very-private-secret")
		assert.NotContains(t, err.Error(), "very-private-secret")
	})
}

func TestService_Login_RealHasherMalformedHash(t *testing.T) {
	creds := mocks.NewMockCredentialRepository(t)
	creds.On("FindCredential", mock.Anything, int32(3)).
		Return(&auth.Credential{ID: 3, SecretHash: "not-a-hash"}, nil).Once()
	svc, err := auth.NewService(creds, fastHasher(t))
	require.NoError(t, err)
	mgr, err := session.NewManager(session.NewMemoryStore())
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), mgr.New(), 3, "secret")

	require.Error(t, err)
	assert.Equal(t, auth.OutcomeRejected, auth.Classify(err))
}

func TestService_Login_InfrastructureFailure(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("connection refused")
	existing := session.Data{Identity: int32Ptr(5), LocationRole: int32Ptr(5)}

	assertUntouched := func(t *testing.T, f *fixture, token string) {
		t.Helper()
		view, ok := f.svc.CurrentSession(f.load(t, token))
		require.True(t, ok, "previous session must survive")
		assert.Equal(t, int32(5), view.Identity)
		require.NotNil(t, view.LocationRole)
	}

	t.Run("credential lookup error", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, existing)
		f.creds.On("FindCredential", mock.Anything, int32(5)).Return(nil, dbErr).Once()

		_, err := f.svc.Login(ctx, f.load(t, token), 5, "s3cret")
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Equal(t, auth.OutcomeFailed, auth.Classify(err))
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "find credential")
		f.hasher.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)

		assertUntouched(t, f, token)
	})

	t.Run("doctor lookup error", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, existing)
		f.creds.On("FindCredential", mock.Anything, int32(5)).Return(&auth.Credential{ID: 5, SecretHash: "h"}, nil).Once()
		f.hasher.On("Verify", "s3cret", "h").Return(true).Once()
		f.creds.On("ExistsLocation", mock.Anything, int32(5)).Return(true, nil).Maybe()
		f.creds.On("ExistsDoctor", mock.Anything, int32(5)).Return(false, dbErr).Once()

		_, err := f.svc.Login(ctx, f.load(t, token), 5, "s3cret")
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Equal(t, auth.OutcomeFailed, auth.Classify(err))
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "lookup roles")
		errutil.AssertErrorContext(t, err, "role", "doctor")

		assertUntouched(t, f, token)
	})

	t.Run("location lookup error", func(t *testing.T) {
		f := newFixture(t)
		f.creds.On("FindCredential", mock.Anything, int32(5)).Return(&auth.Credential{ID: 5, SecretHash: "h"}, nil).Once()
		f.hasher.On("Verify", "s3cret", "h").Return(true).Once()
		f.creds.On("ExistsLocation", mock.Anything, int32(5)).Return(false, dbErr).Once()
		f.creds.On("ExistsDoctor", mock.Anything, int32(5)).Return(false, nil).Maybe()
		sess := f.manager.New()

		_, err := f.svc.Login(ctx, sess, 5, "s3cret")
		require.Error(t, err)
		assert.Equal(t, auth.OutcomeFailed, auth.Classify(err))
		assert.Empty(t, sess.Token())
		assert.Equal(t, 0, f.store.Len())
	})

	t.Run("session commit error", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, existing)
		f.expectValidLogin(5, true, false)
		f.store.setFailing(true)

		_, err := f.svc.Login(ctx, f.load(t, token), 5, "s3cret")
		require.Error(t, err)
		assert.ErrorIs(t, err, errStoreDown)
		assert.Equal(t, auth.OutcomeFailed, auth.Classify(err))
		errutil.AssertErrorContext(t, err, "user_id", int32(5))

		f.store.setFailing(false)
		assertUntouched(t, f, token)
	})

	t.Run("purge commit error on rejection", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, existing)
		f.creds.On("FindCredential", mock.Anything, int32(5)).Return(nil, auth.ErrNotFound).Once()
		f.store.setFailing(true)

		_, err := f.svc.Login(ctx, f.load(t, token), 5, "s3cret")
		require.Error(t, err)
		assert.Equal(t, auth.OutcomeFailed, auth.Classify(err))

		f.store.setFailing(false)
		assertUntouched(t, f, token)
	})

	t.Run("cancelled context commits nothing", func(t *testing.T) {
		f := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		f.creds.On("FindCredential", mock.Anything, int32(5)).Return(&auth.Credential{ID: 5, SecretHash: "h"}, nil).Once()
		f.hasher.On("Verify", "s3cret", "h").Return(true).Once()
		f.creds.On("ExistsLocation", mock.Anything, int32(5)).Return(true, nil).Maybe()
		f.creds.On("ExistsDoctor", mock.Anything, int32(5)).
			Run(func(mock.Arguments) { cancel() }).
			Return(false, nil).Once()
		sess := f.manager.New()

		_, err := f.svc.Login(cctx, sess, 5, "s3cret")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, auth.OutcomeFailed, auth.Classify(err))
		assert.Equal(t, 0, f.store.Len())
	})
}

func TestService_CurrentSession(t *testing.T) {
	f := newFixture(t)

	t.Run("anonymous session", func(t *testing.T) {
		sess := f.manager.New()
		_, ok := f.svc.CurrentSession(sess)
		assert.False(t, ok)
		assert.False(t, sess.Pending(), "reading must not stage changes")
	})

	t.Run("populated session", func(t *testing.T) {
		token := f.populated(t, session.Data{Identity: int32Ptr(9), LocationRole: int32Ptr(9), DoctorRole: int32Ptr(9)})
		sess := f.load(t, token)

		view, ok := f.svc.CurrentSession(sess)
		require.True(t, ok)
		assert.Equal(t, int32(9), view.Identity)
		assert.Equal(t, auth.ScopeDoctor, auth.ScopeFor(view))
		assert.False(t, sess.Pending())
		assert.Equal(t, token, sess.Token())
	})
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("clears a populated session", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, session.Data{Identity: int32Ptr(7), LocationRole: int32Ptr(7)})
		sess := f.load(t, token)

		status, err := f.svc.Logout(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, auth.LogoutCleared, status)

		_, ok := f.svc.CurrentSession(sess)
		assert.False(t, ok)
		assert.Nil(t, sess.Data().LocationRole)
		_, ok = f.svc.CurrentSession(f.load(t, token))
		assert.False(t, ok)
		assert.Equal(t, 0, f.store.Len())
	})

	t.Run("is idempotent", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, session.Data{Identity: int32Ptr(7)})
		sess := f.load(t, token)

		first, err := f.svc.Logout(ctx, sess)
		require.NoError(t, err)
		second, err := f.svc.Logout(ctx, sess)
		require.NoError(t, err)

		assert.Equal(t, auth.LogoutCleared, first)
		assert.Equal(t, auth.LogoutAlreadyClear, second)
	})

	t.Run("anonymous session is left untouched", func(t *testing.T) {
		f := newFixture(t)
		sess := f.manager.New()

		status, err := f.svc.Logout(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, auth.LogoutAlreadyClear, status)
		assert.False(t, sess.Pending())
	})

	t.Run("commit failure", func(t *testing.T) {
		f := newFixture(t)
		token := f.populated(t, session.Data{Identity: int32Ptr(7)})
		f.store.setFailing(true)

		_, err := f.svc.Logout(ctx, f.load(t, token))
		require.Error(t, err)
		assert.ErrorIs(t, err, errStoreDown)
		errutil.AssertErrorContext(t, err, "user_id", int32(7))
		assert.Equal(t, auth.OutcomeFailed, auth.Classify(err))

		f.store.setFailing(false)
		_, ok := f.svc.CurrentSession(f.load(t, token))
		assert.True(t, ok)
	})
}

func TestService_Provision(t *testing.T) {
	ctx := context.Background()

	t.Run("hashes and inserts", func(t *testing.T) {
		f := newFixture(t)
		f.hasher.On("Hash", "new-secret").Return("$scrypt$stored").Once()
		f.creds.On("InsertCredential", mock.Anything, "$scrypt$stored").Return(int32(12), nil).Once()

		id, err := f.svc.Provision(ctx, "new-secret")
		require.NoError(t, err)
		assert.Equal(t, int32(12), id)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Provision(ctx, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrEmptySecret)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_SECRET")
		f.hasher.AssertNotCalled(t, "Hash", mock.Anything)
	})

	t.Run("insert failure", func(t *testing.T) {
		f := newFixture(t)
		f.hasher.On("Hash", "s").Return("h").Once()
		f.creds.On("InsertCredential", mock.Anything, "h").Return(int32(0), errors.New("disk full")).Once()

		_, err := f.svc.Provision(ctx, "s")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_PROVISION_FAILED")
	})

	t.Run("provisioned secret logs in with the same hasher", func(t *testing.T) {
		creds := &memCredentials{}
		svc, err := auth.NewService(creds, fastHasher(t))
		require.NoError(t, err)
		mgr, err := session.NewManager(session.NewMemoryStore())
		require.NoError(t, err)

		id, err := svc.Provision(ctx, "round-trip")
		require.NoError(t, err)

		view, err := svc.Login(ctx, mgr.New(), id, "round-trip")
		require.NoError(t, err)
		assert.Equal(t, id, view.Identity)
	})
}

func TestClassify(t *testing.T) {
	assert.Equal(t, auth.OutcomeSuccess, auth.Classify(nil))
	assert.Equal(t, auth.OutcomeRejected, auth.Classify(auth.ErrInvalidCredentials))
	assert.Equal(t, auth.OutcomeFailed, auth.Classify(errors.New("boom")))
	assert.Equal(t, "rejected", auth.OutcomeRejected.String())
	assert.Equal(t, "cleared", auth.LogoutCleared.String())
	assert.Equal(t, "already_clear", auth.LogoutAlreadyClear.String())
}

// memCredentials is a concurrency-safe in-memory CredentialRepository.
type memCredentials struct {
	mu        sync.Mutex
	next      int32
	hashes    map[int32]string
	locations map[int32]bool
	doctors   map[int32]bool
}

func (m *memCredentials) FindCredential(_ context.Context, id int32) (*auth.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &auth.Credential{ID: id, SecretHash: h}, nil
}

func (m *memCredentials) ExistsLocation(_ context.Context, id int32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locations[id], nil
}

func (m *memCredentials) ExistsDoctor(_ context.Context, id int32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doctors[id], nil
}

func (m *memCredentials) InsertCredential(_ context.Context, hash string) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes == nil {
		m.hashes = make(map[int32]string)
	}
	m.next++
	m.hashes[m.next] = hash
	return m.next, nil
}

func TestService_Login_ConcurrentSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	hasher := fastHasher(t)
	creds := &memCredentials{
		locations: map[int32]bool{},
		doctors:   map[int32]bool{},
	}
	svc, err := auth.NewService(creds, hasher)
	require.NoError(t, err)
	store := session.NewMemoryStore()
	mgr, err := session.NewManager(store)
	require.NoError(t, err)

	const users = 16
	ids := make([]int32, users)
	for i := range ids {
		ids[i], err = svc.Provision(ctx, fmt.Sprintf("secret-%d", i))
		require.NoError(t, err)
		creds.mu.Lock()
		creds.locations[ids[i]] = i%2 == 0
		creds.doctors[ids[i]] = i%4 == 0
		creds.mu.Unlock()
	}

	tokens := make([]string, users)
	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := mgr.New()
			if _, err := svc.Login(ctx, sess, ids[i], fmt.Sprintf("secret-%d", i)); err != nil {
				errs <- err
				return
			}
			tokens[i] = sess.Token()
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, users, store.Len())
	for i, token := range tokens {
		sess, err := mgr.Load(ctx, token)
		require.NoError(t, err)
		view, ok := svc.CurrentSession(sess)
		require.True(t, ok)
		assert.Equal(t, ids[i], view.Identity)
		assert.Equal(t, i%2 == 0, view.LocationRole != nil, "user %d location", i)
		assert.Equal(t, i%4 == 0, view.DoctorRole != nil, "user %d doctor", i)
	}
}

func TestService_Login_SessionExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	creds := &memCredentials{}
	svc, err := auth.NewService(creds, fastHasher(t))
	require.NoError(t, err)
	mgr, err := session.NewManager(session.NewMemoryStore(), session.WithTTL(time.Hour), session.WithClock(clock))
	require.NoError(t, err)
	ctx := context.Background()

	id, err := svc.Provision(ctx, "pw")
	require.NoError(t, err)
	sess := mgr.New()
	_, err = svc.Login(ctx, sess, id, "pw")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	expired, err := mgr.Load(ctx, sess.Token())
	require.NoError(t, err)
	_, ok := svc.CurrentSession(expired)
	assert.False(t, ok)
}
