// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

const (
	msgGenericFailure = "An error occurred."
	msgInvalidBody    = "Invalid request body."
	msgNotFound       = "Not found."
)

type messageResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  []auth.FieldError `json:"errors,omitempty"`
}

type authenticateResponse struct {
	Success bool            `json:"success"`
	Token   string          `json:"token"`
	User    auth.PublicUser `json:"user"`
	Message string          `json:"message"`
}

type currentUserResponse struct {
	User *auth.PublicUser `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}

// statusFor maps an auth error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case auth.CodeValidationFailed, auth.CodeDuplicateUsername, auth.CodeDuplicateEmail:
		return http.StatusBadRequest
	case auth.CodeUserNotFound:
		return http.StatusNotFound
	case auth.CodeIncorrectPassword,
		auth.CodeInvalidCredentials,
		auth.CodeInvalidVerificationCode,
		auth.CodeInvalidOrExpiredToken,
		auth.CodeInvalidToken,
		auth.CodeExpiredToken,
		auth.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the user-facing message for err, or the generic
// failure message when the error is not a domain outcome.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return msgGenericFailure
	}
	return errutil.PublicMessage(err, http.StatusText(status))
}

// writeError renders err as a JSON failure body. Infrastructure failures are
// logged with their full cause chain.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(errutil.Code(err))
	if status == http.StatusInternalServerError {
		errutil.LogError(requestLogger(r, logger), "request failed", err, "route", routePattern(r))
	}

	body := messageResponse{Message: publicMessage(err, status)}
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		body.Errors = verr.Fields
	}
	writeJSON(w, status, body)
}

func requestLogger(r *http.Request, logger *slog.Logger) *slog.Logger {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
