// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/store"
)

// SchemaMigrator wraps the methods used by the migrate commands from store.Migrator.
type SchemaMigrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Status() (store.MigrationStatus, error)
	Close() error
}

// schemaMigratorFactory is replaced in tests.
var schemaMigratorFactory = func(databaseURL string) (SchemaMigrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply, roll back or inspect the PostgreSQL users schema.
The mongo and sqlite stores create their indexes on serve when
store.auto_migrate is enabled.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m SchemaMigrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m SchemaMigrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m SchemaMigrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Printf("Version: %d (dirty: %t)\n", v, dirty)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Long:  `Set the recorded schema version and clear the dirty flag. Use after fixing a failed migration by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m SchemaMigrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version to %d\n", version)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m SchemaMigrator) error {
				status, err := m.Status()
				if err != nil {
					return err
				}
				cmd.Print(formatMigrationStatus(status))
				return nil
			})
		},
	})

	return cmd
}

// withMigrator loads the store configuration, opens a migrator and runs fn.
func withMigrator(cmd *cobra.Command, fn func(SchemaMigrator) error) error {
	cfg, err := config.Load(config.LoadOptions{Path: configFile})
	if err != nil {
		return err
	}
	if err := cfg.Store.Validate(); err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return oops.Code("MIGRATE_UNSUPPORTED_DRIVER").
			With("driver", cfg.Store.Driver).
			Errorf("migrate only manages the postgres store")
	}

	m, err := schemaMigratorFactory(cfg.Store.PostgresURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()

	return fn(m)
}

// parseForceVersion parses the version argument of migrate force.
// Negative values are rejected by store.Migrator.Force.
func parseForceVersion(arg string) (int, error) {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	var version int
	if _, err := fmt.Sscanf(trimmed, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Wrap(err)
	}
	return version, nil
}

func formatMigrationStatus(status store.MigrationStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current version: %d\n", status.Current)
	fmt.Fprintf(&b, "Latest version:  %d\n", status.Latest)
	if status.Dirty {
		b.WriteString("State:           DIRTY (fix the schema, then run migrate force)\n")
	}
	if len(status.Pending) == 0 {
		b.WriteString("Pending:         none\n")
		return b.String()
	}
	b.WriteString("Pending:\n")
	for _, mig := range status.Pending {
		fmt.Fprintf(&b, "  %06d_%s\n", mig.Version, mig.Name)
	}
	return b.String()
}
