// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err, "should read embedded migrations directory")

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		assert.True(t, pattern.MatchString(name),
			"file %s should match pattern NNNNNN_name.(up|down).sql", name)
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			ups[base] = true
		}
		if base, ok := strings.CutSuffix(name, ".down.sql"); ok {
			downs[base] = true
		}
	}

	assert.True(t, ups["000001_create_users"], "users migration must be embedded")
	assert.Equal(t, ups, downs, "every up migration needs a down migration")
}

func TestMigrations_UsersSchema(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, uint(1), migrations[0].Version)

	sql, err := migrationsFS.ReadFile("migrations/000001_create_users.up.sql")
	require.NoError(t, err)
	// The postgres repository maps these constraint names to duplicate errors.
	assert.Contains(t, string(sql), "users_username_key")
	assert.Contains(t, string(sql), "users_email_key")
}
