// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements auth.AccountStore on SQLite through gorm.
package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/holomush/holoauth/internal/auth"
)

// userRow is the gorm model for the users table. Timestamps come from the
// service clock, so gorm's automatic timestamps are disabled.
type userRow struct {
	ID                     string     `gorm:"primaryKey;size:26"`
	Name                   string     `gorm:"not null;default:''"`
	Username               string     `gorm:"not null;uniqueIndex:users_username_key"`
	Email                  string     `gorm:"not null;uniqueIndex:users_email_key"`
	PasswordHash           string     `gorm:"not null"`
	Verified               bool       `gorm:"not null;default:false"`
	VerificationCode       *string    `gorm:"index"`
	ResetPasswordToken     *string    `gorm:"index"`
	ResetPasswordExpiresAt *time.Time
	CreatedAt              time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt              time.Time `gorm:"not null;autoUpdateTime:false"`
}

// TableName implements gorm's tabler.
func (userRow) TableName() string { return "users" }

func toRow(u *auth.User) userRow {
	return userRow{
		ID:                     u.ID.String(),
		Name:                   u.Name,
		Username:               u.Username,
		Email:                  u.Email,
		PasswordHash:           u.PasswordHash,
		Verified:               u.Verified,
		VerificationCode:       u.VerificationCode,
		ResetPasswordToken:     u.ResetPasswordToken,
		ResetPasswordExpiresAt: u.ResetPasswordExpiresAt,
		CreatedAt:              u.CreatedAt,
		UpdatedAt:              u.UpdatedAt,
	}
}

func (r userRow) toUser() (*auth.User, error) {
	id, err := ulid.Parse(r.ID)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", r.ID).
			Wrap(err)
	}
	return &auth.User{
		ID:                     id,
		Name:                   r.Name,
		Username:               r.Username,
		Email:                  r.Email,
		PasswordHash:           r.PasswordHash,
		Verified:               r.Verified,
		VerificationCode:       r.VerificationCode,
		ResetPasswordToken:     r.ResetPasswordToken,
		ResetPasswordExpiresAt: r.ResetPasswordExpiresAt,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}, nil
}

// Open opens the SQLite database at dsn with gorm's logger silenced.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("driver", "sqlite").Wrap(err)
	}
	return db, nil
}

// UserRepository implements auth.AccountStore using gorm.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Migrate creates or updates the users table.
func (r *UserRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&userRow{}); err != nil {
		return oops.Code("STORE_MIGRATE_FAILED").With("operation", "auto migrate users").Wrap(err)
	}
	return nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	row := toRow(user)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if dup := duplicateError(err); dup != nil {
			return oops.Code("USER_DUPLICATE").With("username", user.Username).Wrap(dup)
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
	return r.take(ctx, "id", id.String(), "id = ?", id.String())
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	return r.take(ctx, "username", username, "username = ?", username)
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.take(ctx, "email", email, "email = ?", email)
}

// GetByVerificationCode retrieves the user holding a verification code digest.
func (r *UserRepository) GetByVerificationCode(ctx context.Context, codeDigest string) (*auth.User, error) {
	return r.take(ctx, "lookup", "verification_code", "verification_code = ?", codeDigest)
}

// GetByResetToken retrieves the user holding an unexpired reset token digest.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenDigest string, now time.Time) (*auth.User, error) {
	user, err := r.take(ctx, "lookup", "reset_password_token", "reset_password_token = ?", tokenDigest)
	if err != nil {
		return nil, err
	}
	if !user.HasPendingReset(now) {
		return nil, oops.Code("USER_NOT_FOUND").With("lookup", "reset_password_token").Wrap(auth.ErrNotFound)
	}
	return user, nil
}

// Update overwrites every mutable column of an existing user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	row := toRow(user)
	result := r.db.WithContext(ctx).
		Model(&userRow{ID: row.ID}).
		Select("*").
		Omit("id", "created_at").
		Updates(&row)
	if err := result.Error; err != nil {
		if dup := duplicateError(err); dup != nil {
			return oops.Code("USER_DUPLICATE").With("id", row.ID).Wrap(dup)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", row.ID).
			Wrap(err)
	}
	if result.RowsAffected == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", row.ID).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetResetToken writes the reset columns of user id and nothing else.
func (r *UserRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenDigest string, expiresAt, now time.Time) error {
	return updateColumns("set reset token",
		r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id.String()),
		id, map[string]any{
			"reset_password_token":      tokenDigest,
			"reset_password_expires_at": expiresAt,
			"updated_at":                now,
		})
}

// UpgradePasswordHash swaps oldHash for newHash; a row whose hash has moved on is left alone.
func (r *UserRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error {
	return updateColumns("upgrade password hash",
		r.db.WithContext(ctx).Model(&userRow{}).Where("id = ? AND password_hash = ?", id.String(), oldHash),
		id, map[string]any{
			"password_hash": newHash,
			"updated_at":    now,
		})
}

func updateColumns(operation string, scope *gorm.DB, id ulid.ULID, updates map[string]any) error {
	result := scope.Updates(updates)
	if err := result.Error; err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumeVerificationCode verifies the holder of codeDigest. The update is
// conditioned on the code still being present, so only one caller wins.
func (r *UserRepository) ConsumeVerificationCode(ctx context.Context, codeDigest string, now time.Time) (*auth.User, error) {
	return r.consume(ctx, "verification_code", codeDigest,
		func(*auth.User) bool { return true },
		map[string]any{
			"verified":          true,
			"verification_code": nil,
			"updated_at":        now,
		},
		func(u *auth.User) {
			u.Verified = true
			u.VerificationCode = nil
			u.UpdatedAt = now
		})
}

// ConsumeResetToken sets a new password hash and clears an unexpired reset token.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, tokenDigest string, now time.Time, passwordHash string) (*auth.User, error) {
	return r.consume(ctx, "reset_password_token", tokenDigest,
		func(u *auth.User) bool { return u.HasPendingReset(now) },
		map[string]any{
			"password_hash":             passwordHash,
			"reset_password_token":      nil,
			"reset_password_expires_at": nil,
			"updated_at":                now,
		},
		func(u *auth.User) {
			u.PasswordHash = passwordHash
			u.ResetPasswordToken = nil
			u.ResetPasswordExpiresAt = nil
			u.UpdatedAt = now
		})
}

// consume finds the row holding secret in column, checks eligible, and
// applies updates only if the secret is unchanged.
func (r *UserRepository) consume(
	ctx context.Context,
	column, secret string,
	eligible func(*auth.User) bool,
	updates map[string]any,
	apply func(*auth.User),
) (*auth.User, error) {
	var user *auth.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		if err := tx.Where(column+" = ?", secret).Take(&row).Error; err != nil {
			return err
		}
		found, err := row.toUser()
		if err != nil {
			return err
		}
		if !eligible(found) {
			return gorm.ErrRecordNotFound
		}

		result := tx.Model(&userRow{}).
			Where("id = ? AND "+column+" = ?", row.ID, secret).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		apply(found)
		user = found
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.Code("USER_NOT_FOUND").With("lookup", column).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "consume secret").
			With("lookup", column).
			Wrap(err)
	}
	return user, nil
}

func (r *UserRepository) take(ctx context.Context, key, value, query string, args ...any) (*auth.User, error) {
	var row userRow
	err := r.db.WithContext(ctx).Where(query, args...).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "query user").
			With(key, value).
			Wrap(err)
	}
	return row.toUser()
}

// duplicateError maps SQLite's "UNIQUE constraint failed: users.<column>"
// to the matching auth sentinel.
func duplicateError(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "users.username"):
		return auth.ErrDuplicateUsername
	case strings.Contains(msg, "users.email"):
		return auth.ErrDuplicateEmail
	}
	return nil
}

// Compile-time interface check.
var _ auth.AccountStore = (*UserRepository)(nil)
