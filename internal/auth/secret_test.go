// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

func TestGenerateSecret(t *testing.T) {
	t.Run("default length is 40 hex chars", func(t *testing.T) {
		secret, err := auth.GenerateSecret(auth.SecretBytes)
		require.NoError(t, err)
		assert.Len(t, secret, 40)

		_, err = hex.DecodeString(secret)
		assert.NoError(t, err)
	})

	t.Run("secrets are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for range 100 {
			secret, err := auth.GenerateSecret(auth.SecretBytes)
			require.NoError(t, err)
			assert.False(t, seen[secret], "duplicate secret generated")
			seen[secret] = true
		}
	})

	t.Run("rejects non-positive length", func(t *testing.T) {
		_, err := auth.GenerateSecret(0)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SECRET_INVALID_LENGTH")
	})
}

func TestDigestSecret(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, auth.DigestSecret("abc"), auth.DigestSecret("abc"))
	})

	t.Run("differs from the secret", func(t *testing.T) {
		digest := auth.DigestSecret("abc")
		assert.NotEqual(t, "abc", digest)
		assert.Len(t, digest, 64)
	})

	t.Run("different secrets produce different digests", func(t *testing.T) {
		assert.NotEqual(t, auth.DigestSecret("abc"), auth.DigestSecret("abd"))
	})
}
