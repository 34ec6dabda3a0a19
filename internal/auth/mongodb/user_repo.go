// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mongodb implements auth.AccountStore on MongoDB.
package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/holomush/holoauth/internal/auth"
)

// CollectionName is the collection holding user documents.
const CollectionName = "users"

// Index names, shared with the postgres constraint names.
const (
	usernameIndex = "users_username_key"
	emailIndex    = "users_email_key"
)

// userDocument is the stored form of auth.User. Nil secrets are omitted so
// a replace removes them from the document.
type userDocument struct {
	ID                     string     `bson:"_id"`
	Name                   string     `bson:"name"`
	Username               string     `bson:"username"`
	Email                  string     `bson:"email"`
	PasswordHash           string     `bson:"password_hash"`
	Verified               bool       `bson:"verified"`
	VerificationCode       *string    `bson:"verification_code,omitempty"`
	ResetPasswordToken     *string    `bson:"reset_password_token,omitempty"`
	ResetPasswordExpiresAt *time.Time `bson:"reset_password_expires_at,omitempty"`
	CreatedAt              time.Time  `bson:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at"`
}

func toDocument(u *auth.User) userDocument {
	return userDocument{
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

func (d userDocument) toUser() (*auth.User, error) {
	id, err := ulid.Parse(d.ID)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", d.ID).
			Wrap(err)
	}
	return &auth.User{
		ID:                     id,
		Name:                   d.Name,
		Username:               d.Username,
		Email:                  d.Email,
		PasswordHash:           d.PasswordHash,
		Verified:               d.Verified,
		VerificationCode:       d.VerificationCode,
		ResetPasswordToken:     d.ResetPasswordToken,
		ResetPasswordExpiresAt: d.ResetPasswordExpiresAt,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}, nil
}

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("driver", "mongo").Wrap(err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("STORE_CONNECT_FAILED").With("driver", "mongo").Wrap(err)
	}
	return client, nil
}

// UserRepository implements auth.AccountStore using a MongoDB collection.
type UserRepository struct {
	coll *mongo.Collection
}

// NewUserRepository creates a new UserRepository over coll.
func NewUserRepository(coll *mongo.Collection) *UserRepository {
	return &UserRepository{coll: coll}
}

// EnsureIndexes creates the unique username and email indexes and the
// sparse secret lookup indexes. It is idempotent.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetName(usernameIndex).SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName(emailIndex).SetUnique(true)},
		{Keys: bson.D{{Key: "verification_code", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "reset_password_token", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return oops.Code("STORE_MIGRATE_FAILED").With("operation", "create indexes").Wrap(err)
	}
	return nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if _, err := r.coll.InsertOne(ctx, toDocument(user)); err != nil {
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
	return r.findOne(ctx, "id", id.String(), bson.D{{Key: "_id", Value: id.String()}})
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	return r.findOne(ctx, "username", username, bson.D{{Key: "username", Value: username}})
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.findOne(ctx, "email", email, bson.D{{Key: "email", Value: email}})
}

// GetByVerificationCode retrieves the user holding a verification code digest.
func (r *UserRepository) GetByVerificationCode(ctx context.Context, codeDigest string) (*auth.User, error) {
	return r.findOne(ctx, "lookup", "verification_code", bson.D{{Key: "verification_code", Value: codeDigest}})
}

// GetByResetToken retrieves the user holding an unexpired reset token digest.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenDigest string, now time.Time) (*auth.User, error) {
	return r.findOne(ctx, "lookup", "reset_password_token", resetFilter(tokenDigest, now))
}

// Update replaces the stored document for user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	result, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: user.ID.String()}}, toDocument(user))
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return oops.Code("USER_DUPLICATE").With("id", user.ID.String()).Wrap(dup)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "replace user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.MatchedCount == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumeVerificationCode verifies the holder of codeDigest and removes the
// code with a single findAndModify.
func (r *UserRepository) ConsumeVerificationCode(ctx context.Context, codeDigest string, now time.Time) (*auth.User, error) {
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "verified", Value: true}, {Key: "updated_at", Value: now}}},
		{Key: "$unset", Value: bson.D{{Key: "verification_code", Value: ""}}},
	}
	return r.findAndModify(ctx, "verification_code", bson.D{{Key: "verification_code", Value: codeDigest}}, update)
}

// ConsumeResetToken replaces the password hash and removes an unexpired
// reset token with a single findAndModify.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, tokenDigest string, now time.Time, passwordHash string) (*auth.User, error) {
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "password_hash", Value: passwordHash}, {Key: "updated_at", Value: now}}},
		{Key: "$unset", Value: bson.D{
			{Key: "reset_password_token", Value: ""},
			{Key: "reset_password_expires_at", Value: ""},
		}},
	}
	return r.findAndModify(ctx, "reset_password_token", resetFilter(tokenDigest, now), update)
}

// SetResetToken sets the reset token fields with $set, leaving the rest of
// the document alone.
func (r *UserRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenDigest string, expiresAt, now time.Time) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "reset_password_token", Value: tokenDigest},
		{Key: "reset_password_expires_at", Value: expiresAt},
		{Key: "updated_at", Value: now},
	}}}
	return r.updateOne(ctx, "set reset token", id, bson.D{{Key: "_id", Value: id.String()}}, update)
}

// UpgradePasswordHash replaces the hash only while the document still holds oldHash.
func (r *UserRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error {
	filter := bson.D{{Key: "_id", Value: id.String()}, {Key: "password_hash", Value: oldHash}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "password_hash", Value: newHash},
		{Key: "updated_at", Value: now},
	}}}
	return r.updateOne(ctx, "upgrade password hash", id, filter, update)
}

func (r *UserRepository) updateOne(ctx context.Context, operation string, id ulid.ULID, filter, update bson.D) error {
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.MatchedCount == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func resetFilter(tokenDigest string, now time.Time) bson.D {
	return bson.D{
		{Key: "reset_password_token", Value: tokenDigest},
		{Key: "reset_password_expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
	}
}

func (r *UserRepository) findOne(ctx context.Context, key, value string, filter bson.D) (*auth.User, error) {
	return decodeResult(r.coll.FindOne(ctx, filter), key, value)
}

func (r *UserRepository) findAndModify(ctx context.Context, lookup string, filter, update bson.D) (*auth.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return decodeResult(r.coll.FindOneAndUpdate(ctx, filter, update, opts), "lookup", lookup)
}

func decodeResult(res *mongo.SingleResult, key, value string) (*auth.User, error) {
	var doc userDocument
	err := res.Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "query user").
			With(key, value).
			Wrap(err)
	}
	return doc.toUser()
}

// duplicateError maps an E11000 error to the matching auth sentinel by index name.
func duplicateError(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, usernameIndex):
		return auth.ErrDuplicateUsername
	case strings.Contains(msg, emailIndex):
		return auth.ErrDuplicateEmail
	}
	return nil
}

// Compile-time interface check.
var _ auth.AccountStore = (*UserRepository)(nil)
