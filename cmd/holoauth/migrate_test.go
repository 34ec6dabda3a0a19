// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/pkg/errutil"
)

type mockSchemaMigrator struct {
	calls   []string
	version uint
	dirty   bool
	forced  int
	status  store.MigrationStatus
	err     error
}

func (m *mockSchemaMigrator) Up() error   { m.calls = append(m.calls, "up"); return m.err }
func (m *mockSchemaMigrator) Down() error { m.calls = append(m.calls, "down"); return m.err }

func (m *mockSchemaMigrator) Version() (uint, bool, error) {
	m.calls = append(m.calls, "version")
	return m.version, m.dirty, m.err
}

func (m *mockSchemaMigrator) Force(v int) error {
	m.calls = append(m.calls, "force")
	m.forced = v
	return m.err
}

func (m *mockSchemaMigrator) Status() (store.MigrationStatus, error) {
	m.calls = append(m.calls, "status")
	return m.status, m.err
}

func (m *mockSchemaMigrator) Close() error {
	m.calls = append(m.calls, "close")
	return nil
}

// useMockMigrator isolates config lookups and swaps in a mock migrator.
func useMockMigrator(t *testing.T, m *mockSchemaMigrator) *string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("HOLOAUTH_STORE_DRIVER", "postgres")
	t.Setenv("HOLOAUTH_STORE_POSTGRES_URL", "postgres://holoauth@localhost/holoauth")

	var gotURL string
	orig := schemaMigratorFactory
	schemaMigratorFactory = func(url string) (SchemaMigrator, error) {
		gotURL = url
		return m, nil
	}
	t.Cleanup(func() {
		schemaMigratorFactory = orig
		configFile = ""
	})
	return &gotURL
}

func runMigrateCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"migrate"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrateCommands(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		migrator  *mockSchemaMigrator
		wantCalls []string
		wantOut   string
	}{
		{"up", []string{"up"}, &mockSchemaMigrator{}, []string{"up", "close"}, "Migrations completed successfully"},
		{"down", []string{"down"}, &mockSchemaMigrator{}, []string{"down", "close"}, "rolled back"},
		{"version", []string{"version"}, &mockSchemaMigrator{version: 1}, []string{"version", "close"}, "Version: 1 (dirty: false)"},
		{"force", []string{"force", "1"}, &mockSchemaMigrator{}, []string{"force", "close"}, "Forced version to 1"},
		{
			"status",
			[]string{"status"},
			&mockSchemaMigrator{status: store.MigrationStatus{Latest: 1, Pending: []store.Migration{{Version: 1, Name: "create_users"}}}},
			[]string{"status", "close"},
			"000001_create_users",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL := useMockMigrator(t, tt.migrator)

			out, err := runMigrateCmd(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, tt.migrator.calls)
			assert.Contains(t, out, tt.wantOut)
			assert.Equal(t, "postgres://holoauth@localhost/holoauth", *gotURL)
		})
	}
}

func TestMigrateCommand_ErrorClosesMigrator(t *testing.T) {
	m := &mockSchemaMigrator{err: errors.New("dirty database")}
	useMockMigrator(t, m)

	_, err := runMigrateCmd(t, "up")
	require.Error(t, err)
	assert.Equal(t, []string{"up", "close"}, m.calls)
}

func TestMigrateCommand_RejectsOtherDrivers(t *testing.T) {
	m := &mockSchemaMigrator{}
	useMockMigrator(t, m)
	t.Setenv("HOLOAUTH_STORE_DRIVER", "sqlite")

	_, err := runMigrateCmd(t, "up")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATE_UNSUPPORTED_DRIVER")
	assert.Empty(t, m.calls)
}

func TestMigrateCommand_RequiresURL(t *testing.T) {
	m := &mockSchemaMigrator{}
	useMockMigrator(t, m)
	t.Setenv("HOLOAUTH_STORE_POSTGRES_URL", "")

	_, err := runMigrateCmd(t, "status")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "non-numeric returns error", input: "abc", wantErr: true, wantErrCode: "INVALID_VERSION"},
		{name: "float parses as integer (Sscanf stops at dot)", input: "1.5", wantVersion: 1},
		{name: "trailing chars are ignored", input: "3abc", wantVersion: 3},
		{name: "negative parses, Force rejects it", input: "-1", wantVersion: -1},
		{name: "empty string returns error", input: "", wantErr: true, wantErrCode: "INVALID_VERSION"},
		{name: "whitespace only returns error", input: "   ", wantErr: true, wantErrCode: "INVALID_VERSION"},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestFormatMigrationStatus(t *testing.T) {
	t.Run("up to date", func(t *testing.T) {
		out := formatMigrationStatus(store.MigrationStatus{Current: 1, Latest: 1})
		assert.Contains(t, out, "Current version: 1")
		assert.Contains(t, out, "Pending:         none")
		assert.NotContains(t, out, "DIRTY")
	})

	t.Run("dirty", func(t *testing.T) {
		out := formatMigrationStatus(store.MigrationStatus{Current: 1, Latest: 1, Dirty: true})
		assert.Contains(t, out, "DIRTY")
	})
}
