// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/internal/web"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory opens the configured account store.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg config.StoreConfig, newMigrator MigratorFactory) (*Backend, error)

	// MigratorFactory creates a postgres migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory MigratorFactory

	// NotifierFactory creates the email notifier.
	// Default: newNotifier
	NotifierFactory func(cfg config.MailConfig, logger *slog.Logger) (auth.Notifier, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer with build info and the readiness timeout
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// WebServerFactory creates the public HTTP server.
	// Default: web.NewServer
	WebServerFactory func(addr string, handler http.Handler, readHeaderTimeout time.Duration, logger *slog.Logger) WebServer
}

func (d *ServeDeps) withDefaults() {
	if d.BackendFactory == nil {
		d.BackendFactory = openBackend
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = newPostgresMigrator
	}
	if d.NotifierFactory == nil {
		d.NotifierFactory = newNotifier
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker,
				observability.WithLogger(logger),
				observability.WithBuildInfo(version, commit),
				observability.WithReadinessTimeout(readinessTimeout),
			)
		}
	}
	if d.WebServerFactory == nil {
		d.WebServerFactory = func(addr string, handler http.Handler, readHeaderTimeout time.Duration, logger *slog.Logger) WebServer {
			return web.NewServer(addr, handler, readHeaderTimeout, logger)
		}
	}
}

// MigratorFactory creates a migrator for a postgres URL.
type MigratorFactory func(databaseURL string) (AutoMigrator, error)

// AutoMigrator wraps the methods used for automatic migration from store.Migrator.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// WebServer interface wraps the methods used from web.Server.
type WebServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func newPostgresMigrator(databaseURL string) (AutoMigrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}
