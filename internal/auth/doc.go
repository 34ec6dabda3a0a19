// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements account registration, email verification,
// authentication and password reset.
//
// # Domain Types
//
// User is the only persisted entity. NewUser builds a validated, unverified
// User; repository implementations receive Users built this way.
// Verification codes and reset tokens are stored as DigestSecret values.
//
// # Components
//
//   - PasswordHasher - argon2id hashing with legacy bcrypt verification
//   - GenerateSecret - random hex secrets for verification and reset links
//   - SessionIssuer - signed, expiring session tokens (JWTSessionIssuer)
//   - AccountStore - user persistence, implemented in the postgres, mongo and sqlite subpackages
//   - Notifier - email delivery, implemented in internal/notify
//
// # Services
//
// Service coordinates the flows: Register, Verify, Authenticate, CurrentUser,
// RequestPasswordReset, CheckResetToken and ResetPassword. Domain failures
// are oops errors carrying one of the Code* constants and a public message.
package auth
