// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.AccountStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Constraint names from migrations/000001_create_users.up.sql.
const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
)

const userColumns = `id, name, username, email, password_hash, verified,
	verification_code, reset_password_token, reset_password_expires_at,
	created_at, updated_at`

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.AccountStore using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. Username and email collisions are reported
// as auth.ErrDuplicateUsername and auth.ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		user.Name,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Verified,
		user.VerificationCode,
		user.ResetPasswordToken,
		user.ResetPasswordExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				Wrap(dup)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.getOne(ctx, "id", id.String(),
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	return r.getOne(ctx, "username", username,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getOne(ctx, "email", email,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetByVerificationCode retrieves the user holding a verification code digest.
func (r *UserRepository) GetByVerificationCode(ctx context.Context, codeDigest string) (*auth.User, error) {
	return r.getOne(ctx, "lookup", "verification_code",
		`SELECT `+userColumns+` FROM users WHERE verification_code = $1`, codeDigest)
}

// GetByResetToken retrieves the user holding an unexpired reset token digest.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenDigest string, now time.Time) (*auth.User, error) {
	return r.getOne(ctx, "lookup", "reset_password_token", `
		SELECT `+userColumns+` FROM users
		WHERE reset_password_token = $1 AND reset_password_expires_at > $2
	`, tokenDigest, now)
}

// Update overwrites every mutable column of an existing user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			name = $2,
			username = $3,
			email = $4,
			password_hash = $5,
			verified = $6,
			verification_code = $7,
			reset_password_token = $8,
			reset_password_expires_at = $9,
			updated_at = $10
		WHERE id = $1
	`,
		user.ID.String(),
		user.Name,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Verified,
		user.VerificationCode,
		user.ResetPasswordToken,
		user.ResetPasswordExpiresAt,
		user.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return oops.Code("USER_DUPLICATE").With("id", user.ID.String()).Wrap(dup)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumeVerificationCode marks the holder of codeDigest verified and clears
// the code in one statement, so a code can succeed at most once.
func (r *UserRepository) ConsumeVerificationCode(ctx context.Context, codeDigest string, now time.Time) (*auth.User, error) {
	return r.getOne(ctx, "lookup", "verification_code", `
		UPDATE users SET
			verified = TRUE,
			verification_code = NULL,
			updated_at = $2
		WHERE verification_code = $1
		RETURNING `+userColumns,
		codeDigest, now)
}

// ConsumeResetToken sets a new password hash and clears the reset token,
// provided the token is still unexpired at now.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, tokenDigest string, now time.Time, passwordHash string) (*auth.User, error) {
	return r.getOne(ctx, "lookup", "reset_password_token", `
		UPDATE users SET
			password_hash = $3,
			reset_password_token = NULL,
			reset_password_expires_at = NULL,
			updated_at = $2
		WHERE reset_password_token = $1 AND reset_password_expires_at > $2
		RETURNING `+userColumns,
		tokenDigest, now, passwordHash)
}

// SetResetToken stores a reset token digest and expiry without touching
// any other column.
func (r *UserRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenDigest string, expiresAt, now time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			reset_password_token = $2,
			reset_password_expires_at = $3,
			updated_at = $4
		WHERE id = $1
	`, id.String(), tokenDigest, expiresAt, now)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpgradePasswordHash swaps oldHash for newHash. The WHERE clause makes it a
// no-op when the password changed since oldHash was read.
func (r *UserRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			password_hash = $3,
			updated_at = $4
		WHERE id = $1 AND password_hash = $2
	`, id.String(), oldHash, newHash, now)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "upgrade password hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// getOne runs a single-row query. key/value describe the lookup in error context;
// secret digests are never logged.
func (r *UserRepository) getOne(ctx context.Context, key, value, sql string, args ...any) (*auth.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "query user").
			With(key, value).
			Wrap(err)
	}
	return user, nil
}

// scanUser scans a single row into a User.
// pgx.ErrNoRows is returned unwrapped.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		user  auth.User
	)
	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Verified,
		&user.VerificationCode,
		&user.ResetPasswordToken,
		&user.ResetPasswordExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("USER_SCAN_FAILED").With("operation", "scan user").Wrap(err)
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	return &user, nil
}

// duplicateError maps a unique violation to the matching auth sentinel.
func duplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case usernameConstraint:
		return auth.ErrDuplicateUsername
	case emailConstraint:
		return auth.ErrDuplicateEmail
	}
	return nil
}

// Compile-time interface check.
var _ auth.AccountStore = (*UserRepository)(nil)
