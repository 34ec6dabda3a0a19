// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/pkg/errutil"
)

// Flow names used as the "flow" metric label.
const (
	flowRegister     = "register"
	flowVerify       = "verify"
	flowAuthenticate = "authenticate"
	flowCurrentUser  = "current_user"
	flowResetRequest = "reset_request"
	flowResetCheck   = "reset_check"
	flowResetConfirm = "reset_confirm"
)

const (
	msgRegistered    = "Your account has been created, please verify your email address."
	msgLoggedIn      = "Hurray! You are now logged in."
	msgResetSent     = "Password reset link is sent to your email."
	msgResetComplete = "Your password reset request is complete and your password is reset successfully. " +
		"Login into your account with your new password."
)

type handlers struct {
	svc     AuthService
	logger  *slog.Logger
	metrics *observability.Metrics
}

// record counts a finished flow. The outcome is "ok" or the error code.
func (h *handlers) record(flow string, err error) {
	outcome := "ok"
	if err != nil {
		if outcome = errutil.Code(err); outcome == "" {
			outcome = "error"
		}
	}
	h.metrics.RecordFlow(flow, outcome)
}

// decode reads a JSON body into dst, writing a 400 on failure.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, flow string, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyLen))
	if err := dec.Decode(dst); err != nil {
		h.metrics.RecordFlow(flow, "invalid_body")
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: msgInvalidBody})
		return false
	}
	return true
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !h.decode(w, r, flowRegister, &in) {
		return
	}

	_, err := h.svc.Register(r.Context(), in)
	h.record(flowRegister, err)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Success: true, Message: msgRegistered})
}

func (h *handlers) verify(w http.ResponseWriter, r *http.Request) {
	_, err := h.svc.Verify(r.Context(), chi.URLParam(r, "verificationCode"))
	h.record(flowVerify, err)
	if err != nil {
		h.errorPage(w, r, "Verification failed", err)
		return
	}
	renderPage(w, h.logger, http.StatusOK, "verified", pageData{Title: "Account verified"})
}

func (h *handlers) authenticate(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if !h.decode(w, r, flowAuthenticate, &in) {
		return
	}

	session, err := h.svc.Authenticate(r.Context(), in)
	h.record(flowAuthenticate, err)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, authenticateResponse{
		Success: true,
		Token:   "Bearer " + session.Token,
		User:    session.User,
		Message: msgLoggedIn,
	})
}

func (h *handlers) currentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.CurrentUser(r.Context(), bearerToken(r))
	h.record(flowCurrentUser, err)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, currentUserResponse{User: user})
}

func (h *handlers) requestReset(w http.ResponseWriter, r *http.Request) {
	var in auth.ResetRequestInput
	if !h.decode(w, r, flowResetRequest, &in) {
		return
	}

	_, err := h.svc.RequestPasswordReset(r.Context(), in)
	h.record(flowResetRequest, err)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msgResetSent})
}

func (h *handlers) resetPage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "resetPasswordToken")
	err := h.svc.CheckResetToken(r.Context(), token)
	h.record(flowResetCheck, err)
	if err != nil {
		h.errorPage(w, r, "Password reset failed", err)
		return
	}
	renderPage(w, h.logger, http.StatusOK, "reset", pageData{
		Title:      "Reset your password",
		Token:      token,
		SubmitPath: ResetConfirmPath,
	})
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in auth.ResetConfirmInput
	if !h.decode(w, r, flowResetConfirm, &in) {
		return
	}

	err := h.svc.ResetPassword(r.Context(), in)
	h.record(flowResetConfirm, err)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msgResetComplete})
}

// errorPage renders err as the static error page.
func (h *handlers) errorPage(w http.ResponseWriter, r *http.Request, title string, err error) {
	status := statusFor(errutil.Code(err))
	if status == http.StatusInternalServerError {
		errutil.LogError(requestLogger(r, h.logger), "request failed", err, "route", routePattern(r))
	}
	renderPage(w, h.logger, status, "error", pageData{Title: title, Message: publicMessage(err, status)})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
