// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/azap/azap/internal/store"
)

// newMigrateCmd creates the migrate subcommand and its children.
func newMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back and inspect the PostgreSQL schema migrations.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err //nolint:wrapcheck // store errors carry their code
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back the last --steps migrations, or all of them with --all.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return withMigrator(cmd, deps, func(m Migrator) error {
				if all {
					if err := m.Down(); err != nil {
						return err //nolint:wrapcheck // store errors carry their code
					}
					cmd.Println("All migrations rolled back")
					return nil
				}
				if steps < 1 {
					return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("--steps must be at least 1")
				}
				if err := m.Steps(-steps); err != nil {
					return err //nolint:wrapcheck // store errors carry their code
				}
				cmd.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return printStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use this to
recover after a failed migration has been repaired by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err //nolint:wrapcheck // store errors carry their code
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator loads the configuration, opens a migrator and closes it
// after fn returns.
func withMigrator(cmd *cobra.Command, deps *Deps, fn func(Migrator) error) (err error) {
	cfg, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	if err := cfg.requireDatabase(); err != nil {
		return err
	}

	m, err := deps.withDefaults().MigratorFactory(cfg.Database.URL)
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their code
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(m)
}

// applyMigrations runs all pending migrations, for serve --database-migrate.
func applyMigrations(deps *Deps, databaseURL string) (err error) {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their code
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return m.Up() //nolint:wrapcheck // store errors carry their code
}

func printStatus(cmd *cobra.Command, m Migrator) error {
	status, err := m.Status()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their code
	}

	state := "clean"
	if status.Dirty {
		state = "dirty"
	}
	cmd.Printf("Schema version: %d (%s)\n", status.Version, state)

	for _, group := range []struct {
		label    string
		versions []uint
	}{
		{"Applied", status.Applied},
		{"Pending", status.Pending},
	} {
		if len(group.versions) == 0 {
			cmd.Printf("%s: none\n", group.label)
			continue
		}
		cmd.Printf("%s:\n", group.label)
		for _, v := range group.versions {
			name, err := store.MigrationName(v)
			if err != nil {
				return err //nolint:wrapcheck // store errors carry their code
			}
			cmd.Printf("  %s\n", name)
		}
	}
	return nil
}

// parseForceVersion parses the VERSION argument of migrate force.
func parseForceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Errorf("version must be an integer: %q", arg)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Errorf("version must not be negative")
	}
	return version, nil
}
