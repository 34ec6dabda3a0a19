// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User represents an account.
//
// VerificationCode and ResetPasswordToken hold DigestSecret values, never the
// secrets mailed to the user.
type User struct {
	ID                     ulid.ULID
	Name                   string
	Username               string
	Email                  string
	PasswordHash           string
	Verified               bool
	VerificationCode       *string
	ResetPasswordToken     *string
	ResetPasswordExpiresAt *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewUser creates an unverified User with a pending verification code digest.
func NewUser(name, username, email, passwordHash, verificationDigest string, now time.Time) (*User, error) {
	if username == "" {
		return nil, oops.Code("USER_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_PASSWORD_HASH").Errorf("password hash cannot be empty")
	}
	if verificationDigest == "" {
		return nil, oops.Code("USER_INVALID_VERIFICATION_CODE").Errorf("verification code cannot be empty")
	}

	return &User{
		ID:               ulid.Make(),
		Name:             name,
		Username:         username,
		Email:            email,
		PasswordHash:     passwordHash,
		Verified:         false,
		VerificationCode: &verificationDigest,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// HasPendingReset reports whether a reset token is set and still valid at now.
func (u *User) HasPendingReset(now time.Time) bool {
	return u.ResetPasswordToken != nil &&
		u.ResetPasswordExpiresAt != nil &&
		u.ResetPasswordExpiresAt.After(now)
}

// SetResetToken records a pending reset, replacing any earlier one.
func (u *User) SetResetToken(digest string, expiresAt, now time.Time) {
	u.ResetPasswordToken = &digest
	u.ResetPasswordExpiresAt = &expiresAt
	u.UpdatedAt = now
}

// PublicUser is the projection of a User that is safe to return to clients.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Public returns the client-safe projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID.String(),
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	}
}

// AccountStore manages user persistence.
//
// Lookups that find nothing return an error wrapping ErrNotFound. Secret
// arguments are digests produced by DigestSecret.
type AccountStore interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by exact username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by exact email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByVerificationCode retrieves the user with a pending verification code.
	GetByVerificationCode(ctx context.Context, codeDigest string) (*User, error)

	// GetByResetToken retrieves the user whose reset token matches and expires after now.
	GetByResetToken(ctx context.Context, tokenDigest string, now time.Time) (*User, error)

	// Create stores a new user. Uniqueness of username and email is enforced
	// atomically; conflicts wrap ErrDuplicateUsername or ErrDuplicateEmail.
	Create(ctx context.Context, user *User) error

	// Update replaces the mutable fields of an existing user.
	Update(ctx context.Context, user *User) error

	// ConsumeVerificationCode atomically marks the matching user verified and
	// clears the code.
	ConsumeVerificationCode(ctx context.Context, codeDigest string, now time.Time) (*User, error)

	// ConsumeResetToken atomically sets passwordHash on the user whose token
	// matches and has not expired, clearing the token and its expiry.
	ConsumeResetToken(ctx context.Context, tokenDigest string, now time.Time, passwordHash string) (*User, error)

	// SetResetToken stores a reset token digest and its expiry on user id,
	// touching no other field. A missing user wraps ErrNotFound.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenDigest string, expiresAt, now time.Time) error

	// UpgradePasswordHash replaces the password hash of user id only while it
	// still equals oldHash. A changed hash or missing user wraps ErrNotFound.
	UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error
}
