// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides PostgreSQL connectivity and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connect defaults.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 500 * time.Millisecond
)

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// Attempts is the number of pings tried before giving up.
	Attempts uint64
	// Backoff is the first delay; later delays grow exponentially.
	Backoff time.Duration
	Logger  *slog.Logger
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.Attempts == 0 {
		o.Attempts = DefaultConnectAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultConnectBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Connect opens a pgx pool and waits until the database answers a ping.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_INVALID_URL").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("host", cfg.ConnConfig.Host).Wrap(err)
	}

	if err := waitForPing(ctx, pool, opts.withDefaults()); err != nil {
		pool.Close()
		return nil, oops.With("host", cfg.ConnConfig.Host).Wrap(err)
	}
	return pool, nil
}

func waitForPing(ctx context.Context, db pinger, opts ConnectOptions) error {
	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewExponential(opts.Backoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			opts.Logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return nil
}
