// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	DefaultSessionTTL  = 7 * 24 * time.Hour
	MinSigningKeyBytes = 32
	sessionIssuer      = "holoauth"
)

// Session validation sentinels.
var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("expired session token")
)

// SessionIssuer issues and validates signed session tokens.
type SessionIssuer interface {
	// Issue returns a signed token identifying user.
	Issue(user *User) (string, error)

	// Validate returns the user ID carried by token.
	// Errors wrap ErrInvalidToken or ErrExpiredToken.
	Validate(token string) (ulid.ULID, error)
}

type sessionClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// JWTSessionIssuer implements SessionIssuer with HS256 JWTs.
type JWTSessionIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// JWTOption configures a JWTSessionIssuer.
type JWTOption func(*JWTSessionIssuer)

// WithJWTClock overrides the clock used for issuing and validating tokens.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(i *JWTSessionIssuer) {
		i.now = now
	}
}

// NewJWTSessionIssuer creates an issuer signing with key. A zero ttl uses DefaultSessionTTL.
func NewJWTSessionIssuer(key []byte, ttl time.Duration, opts ...JWTOption) (*JWTSessionIssuer, error) {
	if len(key) < MinSigningKeyBytes {
		return nil, oops.Code("SESSION_INVALID_KEY").
			Errorf("signing key must be at least %d bytes, got %d", MinSigningKeyBytes, len(key))
	}
	if ttl < 0 {
		return nil, oops.Code("SESSION_INVALID_TTL").Errorf("session ttl cannot be negative")
	}
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	issuer := &JWTSessionIssuer{key: keyCopy, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// Issue returns a signed token for user.
func (i *JWTSessionIssuer) Issue(user *User) (string, error) {
	if user == nil || user.ID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("SESSION_ISSUE_FAILED").Errorf("user ID cannot be zero")
	}

	now := i.now()
	claims := sessionClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return signed, nil
}

// Validate checks signature and expiry and returns the user ID.
func (i *JWTSessionIssuer) Validate(token string) (ulid.ULID, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ulid.ULID{}, oops.Code(CodeExpiredToken).Public(msgUnauthorized).Wrap(ErrExpiredToken)
	}
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).
			Public(msgUnauthorized).
			With("reason", err.Error()).
			Wrap(ErrInvalidToken)
	}

	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).
			Public(msgUnauthorized).
			With("reason", "malformed subject").
			Wrap(ErrInvalidToken)
	}
	return userID, nil
}

var _ SessionIssuer = (*JWTSessionIssuer)(nil)
