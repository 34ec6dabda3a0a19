// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/samber/oops"
)

// SecretBytes is the entropy of verification codes and reset tokens (40 hex chars).
const SecretBytes = 20

// GenerateSecret returns byteLength random bytes from crypto/rand, hex-encoded.
// Collisions are not checked; at SecretBytes of entropy they are negligible.
func GenerateSecret(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", oops.Code("SECRET_INVALID_LENGTH").Errorf("byte length must be positive, got %d", byteLength)
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("SECRET_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}

// DigestSecret returns the SHA-256 hex digest under which a secret is stored.
// The plaintext secret is only ever sent to the user.
func DigestSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}
