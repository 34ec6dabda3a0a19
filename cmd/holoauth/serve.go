// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/web"
)

const (
	serviceName = "holoauth"

	// readinessTimeout bounds the store ping behind /healthz/readiness.
	readinessTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the HTTP server for registration, verification, login and
password reset, plus the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: configFile, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies and blocks
// until a signal arrives, ctx is cancelled or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})

	logger.Info("starting holoauth",
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"mail", cfg.Mail.Driver,
		"uniform_errors", cfg.Auth.UniformErrors,
	)

	backend, err := deps.BackendFactory(ctx, cfg.Store, deps.MigratorFactory)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer backend.Close()

	notifier, err := deps.NotifierFactory(cfg.Mail, logger)
	if err != nil {
		return err
	}

	issuer, err := auth.NewJWTSessionIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionTTL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, storeReadiness(backend), logger)
		metrics = obsServer.Metrics()
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	svc, err := auth.NewService(backend.Store, auth.NewArgon2idHasher(), issuer, notifier, auth.ServiceConfig{
		PublicURL:     cfg.Auth.PublicURL,
		ResetTokenTTL: cfg.Auth.ResetTokenTTL,
		UniformErrors: cfg.Auth.UniformErrors,
	}, auth.WithLogger(logger))
	if err != nil {
		stopServer(obsServer, "observability")
		return err
	}

	router := web.NewRouter(svc, web.RouterOptions{
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	webServer := deps.WebServerFactory(cfg.HTTP.Addr, router, cfg.HTTP.ReadHeaderTimeout, logger)
	webErrChan, err := webServer.Start()
	if err != nil {
		stopServer(obsServer, "observability")
		return oops.Code("WEB_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, webErrChan, "web")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("holoauth started")
	logger.Info("holoauth ready", "http_addr", webServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// storeReadiness reports ready while the store answers a ping.
func storeReadiness(backend *Backend) observability.ReadinessChecker {
	return func(ctx context.Context) error {
		if err := backend.Ping(ctx); err != nil {
			return oops.Code("STORE_UNAVAILABLE").With("operation", "readiness ping").Wrap(err)
		}
		return nil
	}
}

// stopServer is used on startup failure paths; srv may be nil.
func stopServer(srv interface{ Stop(context.Context) error }, name string) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		slog.Warn("failed to stop server during cleanup", "server", name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
