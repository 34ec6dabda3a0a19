// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/mongodb"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/auth/sqlite"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/notify"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/internal/xdg"
)

// Backend is an opened account store with its health check and cleanup.
type Backend struct {
	Store auth.AccountStore
	Ping  func(ctx context.Context) error
	Close func()
}

// openBackend connects to the store selected by cfg.Driver and, when
// cfg.AutoMigrate is set, brings its schema up to date.
func openBackend(ctx context.Context, cfg config.StoreConfig, newMigrator MigratorFactory) (*Backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, newMigrator)
	case config.DriverMongo:
		return openMongo(ctx, cfg)
	case config.DriverSQLite:
		return openSQLite(ctx, cfg)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Driver).Errorf("unknown store driver")
	}
}

func openPostgres(ctx context.Context, cfg config.StoreConfig, newMigrator MigratorFactory) (*Backend, error) {
	if cfg.AutoMigrate {
		if err := runAutoMigration(cfg.PostgresURL, newMigrator); err != nil {
			return nil, err
		}
	}

	pool, err := store.Connect(ctx, cfg.PostgresURL, store.ConnectOptions{Logger: slog.Default()})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database", "driver", cfg.Driver)

	return &Backend{
		Store: postgres.NewUserRepository(pool),
		Ping:  pool.Ping,
		Close: pool.Close,
	}, nil
}

func openMongo(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	client, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	closeClient := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			slog.Warn("error disconnecting from mongo", "error", err)
		}
	}

	repo := mongodb.NewUserRepository(client.Database(cfg.MongoDatabase).Collection(mongodb.CollectionName))
	if cfg.AutoMigrate {
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeClient()
			return nil, err
		}
	}
	slog.Info("connected to database", "driver", cfg.Driver, "database", cfg.MongoDatabase)

	return &Backend{
		Store: repo,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		Close: closeClient,
	}, nil
}

func openSQLite(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	if err := xdg.EnsureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
		return nil, err
	}
	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("path", cfg.SQLitePath).Wrap(err)
	}
	closeDB := func() {
		if err := sqlDB.Close(); err != nil {
			slog.Warn("error closing sqlite database", "error", err)
		}
	}

	repo := sqlite.NewUserRepository(db)
	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			closeDB()
			return nil, err
		}
	}
	slog.Info("opened database", "driver", cfg.Driver, "path", cfg.SQLitePath)

	return &Backend{Store: repo, Ping: sqlDB.PingContext, Close: closeDB}, nil
}

// runAutoMigration applies pending postgres migrations. A failure to close
// the migrator is logged, not returned.
func runAutoMigration(databaseURL string, newMigrator MigratorFactory) error {
	slog.Info("running database migrations")

	migrator, err := newMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator, connection may leak", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}

	slog.Info("database migrations complete")
	return nil
}

// newNotifier builds the notifier selected by cfg.Driver.
func newNotifier(cfg config.MailConfig, logger *slog.Logger) (auth.Notifier, error) {
	switch cfg.Driver {
	case config.MailLog:
		logger.Warn("mail driver is log: emails are not delivered, links appear only in debug logs")
		return notify.NewLogNotifier(logger), nil
	case config.MailSMTP:
		n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Username:   cfg.Username,
			Password:   cfg.Password,
			From:       cfg.From,
			TLS:        cfg.TLS,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, notify.WithSMTPLogger(logger))
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Driver).Errorf("unknown mail driver")
	}
}
