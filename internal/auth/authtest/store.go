// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides in-memory test doubles for the auth package.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// MemoryStore is an AccountStore backed by a map.
// It enforces the same uniqueness and atomicity guarantees as the real stores.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[ulid.ULID]*auth.User
	failures map[string]error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[ulid.ULID]*auth.User),
		failures: make(map[string]error),
	}
}

// FailOn makes the named method (e.g. "Create") return err until cleared with a nil err.
func (s *MemoryStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Users returns copies of all stored users.
func (s *MemoryStore) Users() []*auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	return out
}

// GetByID implements auth.AccountStore.
func (s *MemoryStore) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	return s.find("GetByID", func(u *auth.User) bool { return u.ID == id })
}

// GetByUsername implements auth.AccountStore.
func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	return s.find("GetByUsername", func(u *auth.User) bool { return u.Username == username })
}

// GetByEmail implements auth.AccountStore.
func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	return s.find("GetByEmail", func(u *auth.User) bool { return u.Email == email })
}

// GetByVerificationCode implements auth.AccountStore.
func (s *MemoryStore) GetByVerificationCode(_ context.Context, codeDigest string) (*auth.User, error) {
	return s.find("GetByVerificationCode", func(u *auth.User) bool {
		return u.VerificationCode != nil && *u.VerificationCode == codeDigest
	})
}

// GetByResetToken implements auth.AccountStore.
func (s *MemoryStore) GetByResetToken(_ context.Context, tokenDigest string, now time.Time) (*auth.User, error) {
	return s.find("GetByResetToken", resetTokenMatches(tokenDigest, now))
}

// Create implements auth.AccountStore.
func (s *MemoryStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["Create"]; err != nil {
		return err
	}
	if err := s.checkUnique(user); err != nil {
		return err
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// Update implements auth.AccountStore.
func (s *MemoryStore) Update(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["Update"]; err != nil {
		return err
	}
	if _, ok := s.users[user.ID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	if err := s.checkUnique(user); err != nil {
		return err
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// ConsumeVerificationCode implements auth.AccountStore.
func (s *MemoryStore) ConsumeVerificationCode(_ context.Context, codeDigest string, now time.Time) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["ConsumeVerificationCode"]; err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.VerificationCode != nil && *u.VerificationCode == codeDigest {
			u.Verified = true
			u.VerificationCode = nil
			u.UpdatedAt = now
			return cloneUser(u), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// ConsumeResetToken implements auth.AccountStore.
func (s *MemoryStore) ConsumeResetToken(_ context.Context, tokenDigest string, now time.Time, passwordHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["ConsumeResetToken"]; err != nil {
		return nil, err
	}
	match := resetTokenMatches(tokenDigest, now)
	for _, u := range s.users {
		if match(u) {
			u.PasswordHash = passwordHash
			u.ResetPasswordToken = nil
			u.ResetPasswordExpiresAt = nil
			u.UpdatedAt = now
			return cloneUser(u), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// SetResetToken implements auth.AccountStore.
func (s *MemoryStore) SetResetToken(_ context.Context, id ulid.ULID, tokenDigest string, expiresAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["SetResetToken"]; err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	u.SetResetToken(tokenDigest, expiresAt, now)
	return nil
}

// UpgradePasswordHash implements auth.AccountStore.
func (s *MemoryStore) UpgradePasswordHash(_ context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["UpgradePasswordHash"]; err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok || u.PasswordHash != oldHash {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	u.PasswordHash = newHash
	u.UpdatedAt = now
	return nil
}

func (s *MemoryStore) find(method string, match func(*auth.User) bool) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[method]; err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// checkUnique must be called with mu held.
func (s *MemoryStore) checkUnique(user *auth.User) error {
	for id, u := range s.users {
		if id == user.ID {
			continue
		}
		if u.Username == user.Username {
			return oops.Code("USER_DUPLICATE").With("username", user.Username).Wrap(auth.ErrDuplicateUsername)
		}
		if u.Email == user.Email {
			return oops.Code("USER_DUPLICATE").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
		}
	}
	return nil
}

func resetTokenMatches(tokenDigest string, now time.Time) func(*auth.User) bool {
	return func(u *auth.User) bool {
		return u.ResetPasswordToken != nil &&
			*u.ResetPasswordToken == tokenDigest &&
			u.ResetPasswordExpiresAt != nil &&
			u.ResetPasswordExpiresAt.After(now)
	}
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	if u.VerificationCode != nil {
		v := *u.VerificationCode
		c.VerificationCode = &v
	}
	if u.ResetPasswordToken != nil {
		v := *u.ResetPasswordToken
		c.ResetPasswordToken = &v
	}
	if u.ResetPasswordExpiresAt != nil {
		v := *u.ResetPasswordExpiresAt
		c.ResetPasswordExpiresAt = &v
	}
	return &c
}

var _ auth.AccountStore = (*MemoryStore)(nil)
