// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/azap/azap/internal/session"
)

const tracerName = "github.com/azap/azap/internal/auth"

// Session is the per-request session capability the service reads and
// mutates. Changes are buffered until Commit.
type Session interface {
	Data() session.Data
	Stage(d session.Data)
	Clear()
	Renew()
	Purge()
	Commit(ctx context.Context) error
}

// LogoutStatus reports what Logout found.
type LogoutStatus int

// Logout statuses.
const (
	LogoutCleared      LogoutStatus = iota + 1 // an identity was present and removed
	LogoutAlreadyClear                         // nothing to remove
)

// String returns the status name.
func (s LogoutStatus) String() string {
	switch s {
	case LogoutCleared:
		return "cleared"
	case LogoutAlreadyClear:
		return "already_clear"
	default:
		return "unknown"
	}
}

// Service authenticates users and manages the authentication state held in
// their sessions.
type Service struct {
	creds  CredentialRepository
	hasher PasswordHasher
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer sets the tracer used for login and logout spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// NewService creates a Service.
func NewService(creds CredentialRepository, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if creds == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("credential repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}

	s := &Service{
		creds:  creds,
		hasher: hasher,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login authenticates claimedID with secret and, on success, populates the
// session with the identity and the roles found for it, then rotates the
// session token. All session changes are committed together.
//
// An unknown id and a wrong secret both purge the session and return an
// error wrapping ErrInvalidCredentials. Any other error means nothing was
// committed.
func (s *Service) Login(ctx context.Context, sess Session, claimedID int32, secret string) (*AuthenticatedView, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login", trace.WithAttributes(attribute.Int("user.id", int(claimedID))))
	defer span.End()

	cred, err := s.creds.FindCredential(ctx, claimedID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, s.fail(span, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find credential").
			With("user_id", claimedID).
			Wrap(err))
	}

	// Unknown ids never reach the hasher.
	if err != nil || !s.hasher.Verify(secret, cred.SecretHash) {
		s.logger.InfoContext(ctx, "login rejected", "user_id", claimedID)
		span.SetAttributes(attribute.String("auth.outcome", OutcomeRejected.String()))
		return nil, s.reject(ctx, span, sess)
	}

	roles, err := s.lookupRoles(ctx, cred.ID)
	if err != nil {
		return nil, s.fail(span, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "lookup roles").
			With("user_id", cred.ID).
			Wrap(err))
	}

	data := dataFor(cred.ID, roles)
	sess.Stage(data)
	sess.Renew()
	if err := sess.Commit(ctx); err != nil {
		return nil, s.fail(span, oops.Code("AUTH_SESSION_COMMIT_FAILED").
			With("operation", "commit session").
			With("user_id", cred.ID).
			Wrap(err))
	}

	view, _ := ViewOf(data)
	span.SetAttributes(attribute.String("auth.outcome", OutcomeSuccess.String()))
	s.logger.InfoContext(ctx, "login succeeded",
		"user_id", cred.ID,
		"location", roles.IsLocation,
		"doctor", roles.IsDoctor,
	)
	return &view, nil
}

// lookupRoles runs both role checks. Both complete before it returns.
func (s *Service) lookupRoles(ctx context.Context, id int32) (RoleContext, error) {
	var roles RoleContext
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := s.creds.ExistsLocation(gctx, id)
		if err != nil {
			return oops.With("role", "location").Wrap(err)
		}
		roles.IsLocation = ok
		return nil
	})
	g.Go(func() error {
		ok, err := s.creds.ExistsDoctor(gctx, id)
		if err != nil {
			return oops.With("role", "doctor").Wrap(err)
		}
		roles.IsDoctor = ok
		return nil
	})
	if err := g.Wait(); err != nil {
		return RoleContext{}, err //nolint:wrapcheck // wrapped by caller
	}
	return roles, nil
}

func (s *Service) reject(ctx context.Context, span trace.Span, sess Session) error {
	sess.Purge()
	if err := sess.Commit(ctx); err != nil {
		return s.fail(span, oops.Code("AUTH_SESSION_COMMIT_FAILED").
			With("operation", "purge session").
			Wrap(err))
	}
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "login failed")
	span.SetAttributes(attribute.String("auth.outcome", OutcomeFailed.String()))
	return err
}

// CurrentSession returns the authenticated view of a session, or false if
// the session carries no identity. It never modifies the session.
func (s *Service) CurrentSession(sess Session) (AuthenticatedView, bool) {
	return ViewOf(sess.Data())
}

// Logout removes the identity and roles from a session. A session with no
// identity is left untouched and reported as LogoutAlreadyClear.
func (s *Service) Logout(ctx context.Context, sess Session) (LogoutStatus, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Logout")
	defer span.End()

	data := sess.Data()
	if data.Identity == nil {
		return LogoutAlreadyClear, nil
	}

	sess.Clear()
	if err := sess.Commit(ctx); err != nil {
		err = oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "commit session").
			With("user_id", *data.Identity).
			Wrap(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "logout failed")
		return 0, err
	}

	s.logger.InfoContext(ctx, "logout", "user_id", *data.Identity)
	return LogoutCleared, nil
}

// Provision hashes secret with the service hasher and stores a new
// credential, returning the assigned id.
func (s *Service) Provision(ctx context.Context, secret string) (int32, error) {
	if secret == "" {
		return 0, oops.Code("AUTH_EMPTY_SECRET").Wrap(ErrEmptySecret)
	}

	id, err := s.creds.InsertCredential(ctx, s.hasher.Hash(secret))
	if err != nil {
		return 0, oops.Code("AUTH_PROVISION_FAILED").
			With("operation", "insert credential").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "credential provisioned", "user_id", id)
	return id, nil
}

// ViewOf builds the authenticated view of session data. It returns false
// when no identity is present.
func ViewOf(d session.Data) (AuthenticatedView, bool) {
	if d.Identity == nil {
		return AuthenticatedView{}, false
	}
	v := AuthenticatedView{Identity: *d.Identity}
	if d.LocationRole != nil {
		loc := *d.LocationRole
		v.LocationRole = &loc
	}
	if d.DoctorRole != nil {
		doc := *d.DoctorRole
		v.DoctorRole = &doc
	}
	return v, true
}

// dataFor builds the session data for an authenticated id. Role lookups
// are keyed by the user's own id, so a present role always equals it.
func dataFor(id int32, roles RoleContext) session.Data {
	identity := id
	d := session.Data{Identity: &identity}
	if roles.IsLocation {
		loc := id
		d.LocationRole = &loc
	}
	if roles.IsDoctor {
		doc := id
		d.DoctorRole = &doc
	}
	return d
}
