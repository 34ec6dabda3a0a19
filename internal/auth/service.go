// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/pkg/errutil"
)

// DefaultResetTokenTTL is how long a password reset token stays valid.
const DefaultResetTokenTTL = time.Hour

// dummyPasswordHash is verified when a username does not exist so that
// response time does not depend on it. It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing equalization, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// ServiceConfig holds the tunable behavior of the auth flows.
type ServiceConfig struct {
	// PublicURL prefixes the links mailed to users. It must end with "/".
	PublicURL string

	// ResetTokenTTL bounds the validity of reset tokens. Zero uses DefaultResetTokenTTL.
	ResetTokenTTL time.Duration

	// UniformErrors hides whether a username or email exists.
	UniformErrors bool
}

// Service implements the account flows: register, verify, authenticate and password reset.
type Service struct {
	store    AccountStore
	hasher   PasswordHasher
	sessions SessionIssuer
	notifier Notifier
	cfg      ServiceConfig
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. All dependencies are required.
func NewService(store AccountStore, hasher PasswordHasher, sessions SessionIssuer, notifier Notifier, cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("account store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("session issuer is required")
	}
	if notifier == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("notifier is required")
	}
	if !strings.HasSuffix(cfg.PublicURL, "/") {
		return nil, oops.Code("AUTH_INVALID_SERVICE").
			With("public_url", cfg.PublicURL).
			Errorf("public URL must end with a slash")
	}
	if cfg.ResetTokenTTL < 0 {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("reset token ttl cannot be negative")
	}
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = DefaultResetTokenTTL
	}

	s := &Service{
		store:    store,
		hasher:   hasher,
		sessions: sessions,
		notifier: notifier,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Registration is the result of a successful register flow.
// VerificationCode is the plaintext code that was mailed to the user.
type Registration struct {
	User             *User
	VerificationCode string
}

// Register creates an unverified account and mails its verification link.
// A delivery failure returns NOTIFICATION_FAILED; the account is kept.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}

	if _, err := s.store.GetByUsername(ctx, in.Username); err == nil {
		return nil, duplicateUsernameError(in.Username)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storeError("get user by username", err)
	}

	if _, err := s.store.GetByEmail(ctx, in.Email); err == nil {
		return nil, duplicateEmailError(in.Email)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storeError("get user by email", err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	code, err := GenerateSecret(SecretBytes)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "generate verification code").Wrap(err)
	}

	user, err := NewUser(in.Name, in.Username, in.Email, passwordHash, DigestSecret(code), s.now())
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "build user").Wrap(err)
	}

	if err := s.store.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			return nil, duplicateUsernameError(in.Username)
		case errors.Is(err, ErrDuplicateEmail):
			return nil, duplicateEmailError(in.Email)
		default:
			return nil, storeError("create user", err)
		}
	}

	msg, err := verificationMessage(user, s.cfg.PublicURL, code)
	if err != nil {
		return nil, s.notificationError("verification", user, err)
	}
	if err := s.notifier.Send(ctx, user.Email, msg.subject, msg.text, msg.html); err != nil {
		return nil, s.notificationError("verification", user, err)
	}

	return &Registration{User: user, VerificationCode: code}, nil
}

// Verify marks the account holding code as verified. The code is single-use.
func (s *Service) Verify(ctx context.Context, code string) (*User, error) {
	if code == "" {
		return nil, invalidVerificationCodeError()
	}

	user, err := s.store.ConsumeVerificationCode(ctx, DigestSecret(code), s.now())
	if errors.Is(err, ErrNotFound) {
		return nil, invalidVerificationCodeError()
	}
	if err != nil {
		return nil, storeError("consume verification code", err)
	}
	return user, nil
}

// Session is the result of a successful authenticate flow.
type Session struct {
	Token string
	User  PublicUser
}

// Authenticate checks credentials and issues a session token.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (*Session, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}

	user, err := s.store.GetByUsername(ctx, in.Username)
	if errors.Is(err, ErrNotFound) {
		if s.cfg.UniformErrors {
			s.hasher.Verify(in.Password, dummyPasswordHash)
			return nil, invalidCredentialsError()
		}
		return nil, oops.Code(CodeUserNotFound).
			Public(msgUserNotFound).
			Errorf("user %q not found", in.Username)
	}
	if err != nil {
		return nil, storeError("get user by username", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		if s.cfg.UniformErrors {
			return nil, invalidCredentialsError()
		}
		return nil, oops.Code(CodeIncorrectPassword).
			Public(msgIncorrectPassword).
			Errorf("incorrect password for user %s", user.ID)
	}

	s.upgradeHash(ctx, user, in.Password)

	token, err := s.sessions.Issue(user)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue session token").Wrap(err)
	}

	return &Session{Token: token, User: user.Public()}, nil
}

// upgradeHash rehashes legacy password hashes. Login succeeds regardless of the outcome.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", user.ID.String(), "error", err)
		return
	}
	// Conditional on the hash just verified, so a reset that lands in
	// between is never overwritten with the old password.
	err = s.store.UpgradePasswordHash(ctx, user.ID, user.PasswordHash, newHash, s.now())
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.InfoContext(ctx, "password changed concurrently, hash upgrade skipped", "user_id", user.ID.String())
	case err != nil:
		s.logger.WarnContext(ctx, "persisting upgraded password hash failed", "user_id", user.ID.String(), "error", err)
	default:
		user.PasswordHash = newHash
	}
}

// CurrentUser resolves a session token to the public projection of its user.
// Every failure is reported as AUTH_UNAUTHORIZED.
func (s *Service) CurrentUser(ctx context.Context, token string) (*PublicUser, error) {
	if token == "" {
		return nil, unauthorizedError("missing token")
	}

	userID, err := s.sessions.Validate(token)
	if err != nil {
		reason := "invalid token"
		if errors.Is(err, ErrExpiredToken) {
			reason = "expired token"
		}
		return nil, unauthorizedError(reason)
	}

	user, err := s.store.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, unauthorizedError("user no longer exists")
	}
	if err != nil {
		return nil, storeError("get user by id", err)
	}

	public := user.Public()
	return &public, nil
}

// RequestPasswordReset stores a new reset token for the account with email
// and mails the reset link. Any earlier pending token is replaced.
// The plaintext token is returned; it is empty when UniformErrors hides an unknown email.
func (s *Service) RequestPasswordReset(ctx context.Context, in ResetRequestInput) (string, error) {
	if err := ValidateInput(in); err != nil {
		return "", err
	}

	user, err := s.store.GetByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		return "", s.unknownResetEmail(in.Email)
	}
	if err != nil {
		return "", storeError("get user by email", err)
	}

	token, err := GenerateSecret(SecretBytes)
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").With("operation", "generate reset token").Wrap(err)
	}

	// Only the reset columns are written; the rest of user may be stale.
	now := s.now()
	digest, expiresAt := DigestSecret(token), now.Add(s.cfg.ResetTokenTTL)
	err = s.store.SetResetToken(ctx, user.ID, digest, expiresAt, now)
	if errors.Is(err, ErrNotFound) {
		return "", s.unknownResetEmail(in.Email)
	}
	if err != nil {
		return "", storeError("store reset token", err)
	}
	user.SetResetToken(digest, expiresAt, now)

	msg, err := resetMessage(user, s.cfg.PublicURL, token)
	if err != nil {
		return "", s.notificationError("reset", user, err)
	}
	if err := s.notifier.Send(ctx, user.Email, msg.subject, msg.text, msg.html); err != nil {
		return "", s.notificationError("reset", user, err)
	}

	return token, nil
}

// unknownResetEmail answers a reset request for an email with no account.
// With UniformErrors it mints and renders a throwaway token, matching the
// CPU work of the known-email path, and reports success. The store write and
// mail delivery of that path are not imitated.
func (s *Service) unknownResetEmail(email string) error {
	if !s.cfg.UniformErrors {
		return oops.Code(CodeUserNotFound).
			Public(msgEmailNotFound).
			Errorf("no user with email %q", email)
	}
	if token, err := GenerateSecret(SecretBytes); err == nil {
		_ = DigestSecret(token)
		_, _ = resetMessage(&User{Username: email}, s.cfg.PublicURL, token)
	}
	return nil
}

// CheckResetToken reports whether token is a pending, unexpired reset token.
func (s *Service) CheckResetToken(ctx context.Context, token string) error {
	if token == "" {
		return invalidOrExpiredTokenError()
	}

	_, err := s.store.GetByResetToken(ctx, DigestSecret(token), s.now())
	if errors.Is(err, ErrNotFound) {
		return invalidOrExpiredTokenError()
	}
	if err != nil {
		return storeError("get user by reset token", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password. The
// confirmation email is best-effort: a delivery failure is logged and
// counted but does not fail the reset.
func (s *Service) ResetPassword(ctx context.Context, in ResetConfirmInput) error {
	if err := ValidateInput(in); err != nil {
		return err
	}

	// Reject unknown or expired tokens before paying for a password hash.
	digest := DigestSecret(in.ResetPasswordToken)
	if _, err := s.store.GetByResetToken(ctx, digest, s.now()); errors.Is(err, ErrNotFound) {
		return invalidOrExpiredTokenError()
	} else if err != nil {
		return storeError("get user by reset token", err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return oops.Code("RESET_CONFIRM_FAILED").With("operation", "hash password").Wrap(err)
	}

	// The consume re-checks the token, so a concurrent confirm still wins only once.
	user, err := s.store.ConsumeResetToken(ctx, digest, s.now(), passwordHash)
	if errors.Is(err, ErrNotFound) {
		return invalidOrExpiredTokenError()
	}
	if err != nil {
		return storeError("consume reset token", err)
	}

	msg, err := resetCompleteMessage(user)
	if err == nil {
		err = s.notifier.Send(ctx, user.Email, msg.subject, msg.text, msg.html)
	}
	if err != nil {
		_ = s.notificationError("reset_complete", user, err) //nolint:errcheck // best effort, the reset already succeeded
	}
	return nil
}

// notificationError records a failed delivery and returns the NOTIFICATION_FAILED error.
func (s *Service) notificationError(kind string, user *User, err error) error {
	observability.RecordNotificationFailure(kind)
	notifyErr := oops.Code(CodeNotificationFailed).
		With("notification", kind).
		With("user_id", user.ID.String()).
		Wrapf(err, "sending %s email", kind)
	errutil.LogError(s.logger, "notification failed", notifyErr)
	return notifyErr
}

func storeError(operation string, err error) error {
	return oops.Code(CodeStoreUnavailable).With("operation", operation).Wrap(err)
}

func duplicateUsernameError(username string) error {
	return oops.Code(CodeDuplicateUsername).
		Public(msgDuplicateUsername).
		Errorf("username %q already exists", username)
}

func duplicateEmailError(email string) error {
	return oops.Code(CodeDuplicateEmail).
		Public(msgDuplicateEmail).
		Errorf("email %q already registered", email)
}

func invalidVerificationCodeError() error {
	return oops.Code(CodeInvalidVerificationCode).
		Public(msgInvalidVerificationCode).
		Errorf("invalid verification code")
}

func invalidOrExpiredTokenError() error {
	return oops.Code(CodeInvalidOrExpiredToken).
		Public(msgInvalidOrExpiredToken).
		Errorf("reset token is invalid or has expired")
}

func invalidCredentialsError() error {
	return oops.Code(CodeInvalidCredentials).
		Public(msgInvalidCredentials).
		Errorf("invalid username or password")
}

func unauthorizedError(reason string) error {
	return oops.Code(CodeUnauthorized).
		Public(msgUnauthorized).
		With("reason", reason).
		Errorf("unauthorized")
}
