// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the account flows over HTTP.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/observability"
)

// Route paths.
const (
	RegisterPath      = "/users/api/register"
	VerifyPath        = "/users/verify-now/{verificationCode}"
	AuthenticatePath  = "/users/api/authenticate"
	ResetRequestPath  = "/users/api/reset-password"
	ResetPagePath     = "/users/reset-password-now/{resetPasswordToken}"
	ResetConfirmPath  = "/users/api/reset-password-now"
	maxRequestBodyLen = 1 << 20
)

// AuthService is the part of *auth.Service the handlers use.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Registration, error)
	Verify(ctx context.Context, code string) (*auth.User, error)
	Authenticate(ctx context.Context, in auth.LoginInput) (*auth.Session, error)
	CurrentUser(ctx context.Context, token string) (*auth.PublicUser, error)
	RequestPasswordReset(ctx context.Context, in auth.ResetRequestInput) (string, error)
	CheckResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, in auth.ResetConfirmInput) error
}

// RouterOptions configures NewRouter. All fields are optional.
type RouterOptions struct {
	Logger         *slog.Logger
	Metrics        *observability.Metrics
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP handler for the account flows.
func NewRouter(svc AuthService, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, logger: logger, metrics: opts.Metrics}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(logger, opts.Metrics))
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Post(RegisterPath, h.register)
	r.Get(VerifyPath, h.verify)
	r.Post(AuthenticatePath, h.authenticate)
	r.Get(AuthenticatePath, h.currentUser)
	r.Put(ResetRequestPath, h.requestReset)
	r.Get(ResetPagePath, h.resetPage)
	r.Post(ResetConfirmPath, h.resetPassword)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: msgNotFound})
	})
	return r
}
