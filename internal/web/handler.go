// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

// Package web exposes login, current-session and logout over HTTP.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/azap/azap/internal/auth"
	"github.com/azap/azap/internal/observability"
	"github.com/azap/azap/internal/roster"
	"github.com/azap/azap/internal/session"
	"github.com/azap/azap/pkg/errutil"
)

// DefaultCookieName is the session cookie used when none is configured.
const DefaultCookieName = "azap_session"

// maxBodyBytes caps the login request body.
const maxBodyBytes = 4 << 10

// Authenticator is the authentication core the handlers drive.
type Authenticator interface {
	Login(ctx context.Context, sess auth.Session, claimedID int32, secret string) (*auth.AuthenticatedView, error)
	CurrentSession(sess auth.Session) (auth.AuthenticatedView, bool)
	Logout(ctx context.Context, sess auth.Session) (auth.LogoutStatus, error)
}

// SessionLoader opens the session named by a request cookie.
type SessionLoader interface {
	Load(ctx context.Context, token string) (*session.Session, error)
}

// RosterLister lists what a session may see.
type RosterLister interface {
	ForView(ctx context.Context, v auth.AuthenticatedView) (roster.Listing, error)
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler serves the /api/v2 routes.
type Handler struct {
	authn    Authenticator
	sessions SessionLoader
	roster   RosterLister
	cookie   CookieConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMetrics records request counters on m.
func WithMetrics(m *observability.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithCookie overrides the session cookie settings.
func WithCookie(c CookieConfig) HandlerOption {
	return func(h *Handler) {
		if c.Name != "" {
			h.cookie = c
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(authn Authenticator, sessions SessionLoader, lister RosterLister, opts ...HandlerOption) (*Handler, error) {
	if authn == nil || sessions == nil || lister == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("authenticator, session loader and roster are required")
	}
	h := &Handler{
		authn:    authn,
		sessions: sessions,
		roster:   lister,
		cookie:   CookieConfig{Name: DefaultCookieName},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes returns the API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/v2/login", h.counted("login", h.handleLogin))
	mux.Handle("GET /api/v2/me", h.counted("me", h.handleMe))
	mux.Handle("POST /api/v2/logout", h.counted("logout", h.handleLogout))
	return mux
}

type loginRequest struct {
	ID     int32  `json:"id"`
	Secret string `json:"secret"`
}

type loginResponse struct {
	Status string `json:"status"`
	ID     int32  `json:"id"`
}

type meResponse struct {
	Status     string          `json:"status"`
	ID         int32           `json:"id"`
	LocationID *int32          `json:"locationId"`
	DoctorID   *int32          `json:"doctorId"`
	Doctors    []roster.Doctor `json:"doctors"`
	Tickets    []roster.Ticket `json:"tickets"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Error: "invalid request"})
		return
	}

	sess, ok := h.open(w, r)
	if !ok {
		return
	}
	before := sess.Token()

	view, err := h.authn.Login(r.Context(), sess, req.ID, req.Secret)
	outcome := auth.Classify(err)
	h.metrics.RecordLogin(outcome.String())

	switch outcome {
	case auth.OutcomeSuccess:
		h.syncCookie(w, before, sess)
		writeJSON(w, http.StatusOK, loginResponse{Status: "success", ID: view.Identity})
	case auth.OutcomeRejected:
		h.syncCookie(w, before, sess)
		writeJSON(w, http.StatusUnauthorized, statusResponse{Status: "error", Error: "error"})
	default:
		errutil.LogError(h.logger, "login failed", err)
		writeInternal(w)
	}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.open(w, r)
	if !ok {
		return
	}

	view, ok := h.authn.CurrentSession(sess)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, statusResponse{Status: "error", Error: "invalid session"})
		return
	}

	listing, err := h.roster.ForView(r.Context(), view)
	if err != nil {
		errutil.LogError(h.logger, "roster lookup failed", err)
		writeInternal(w)
		return
	}

	resp := meResponse{
		Status:     "success",
		ID:         view.Identity,
		LocationID: view.LocationRole,
		DoctorID:   view.DoctorRole,
		Doctors:    listing.Doctors,
		Tickets:    listing.Tickets,
	}
	if resp.Doctors == nil {
		resp.Doctors = []roster.Doctor{}
	}
	if resp.Tickets == nil {
		resp.Tickets = []roster.Ticket{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.open(w, r)
	if !ok {
		return
	}
	before := sess.Token()

	status, err := h.authn.Logout(r.Context(), sess)
	if err != nil {
		h.metrics.RecordLogout("failed")
		errutil.LogError(h.logger, "logout failed", err)
		writeInternal(w)
		return
	}
	h.metrics.RecordLogout(status.String())
	h.syncCookie(w, before, sess)

	if status == auth.LogoutAlreadyClear {
		writeJSON(w, http.StatusOK, statusResponse{Status: "error"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// open loads the request's session. On failure it writes a 500 and
// returns false.
func (h *Handler) open(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	var token string
	if c, err := r.Cookie(h.cookie.Name); err == nil {
		token = c.Value
	}
	sess, err := h.sessions.Load(r.Context(), token)
	if err != nil {
		errutil.LogError(h.logger, "session load failed", err)
		writeInternal(w)
		return nil, false
	}
	return sess, true
}

// syncCookie sends the committed token to the client when it changed.
func (h *Handler) syncCookie(w http.ResponseWriter, before string, sess *session.Session) {
	after := sess.Token()
	if after == before {
		return
	}
	c := &http.Cookie{
		Name:     h.cookie.Name,
		Value:    after,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if after == "" {
		c.MaxAge = -1
	} else {
		c.Expires = sess.ExpiresAt()
	}
	http.SetCookie(w, c)
}

// counted records the response code of next under route.
func (h *Handler) counted(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		h.metrics.RecordRequest(route, rec.code)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func writeInternal(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}
