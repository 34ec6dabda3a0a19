// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg provides XDG Base Directory paths for holoauth.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "holoauth"

// ConfigDir returns the XDG config directory for holoauth.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for holoauth.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	return appDir("XDG_DATA_HOME", ".local", "share")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// SQLiteFile returns the default sqlite database path.
func SQLiteFile() string {
	return filepath.Join(DataDir(), "holoauth.db")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

func appDir(envVar string, fallback ...string) string {
	base := os.Getenv(envVar)
	if base == "" {
		base = filepath.Join(append([]string{os.Getenv("HOME")}, fallback...)...)
	}
	return filepath.Join(base, appName)
}
