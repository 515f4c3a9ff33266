// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/azap/azap/internal/xdg"
)

// NewRootCmd creates the root command for the azap CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

// newRootCmd builds the command tree with injectable dependencies.
// If deps is nil, default implementations are used.
func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "azap",
		Short: "azap - authentication and session service",
		Long: `azap authenticates location and doctor accounts against stored scrypt
hashes and keeps their sessions in PostgreSQL, SQLite or memory.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (YAML)")
	addConfigFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newUserCmd(deps))
	cmd.AddCommand(newSessionsCmd(deps))
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// configFromCmd loads and validates the configuration for a running command.
// Without --config, the XDG config file is read when it exists.
func configFromCmd(cmd *cobra.Command) (*Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err //nolint:wrapcheck // flag is registered on the root command
	}
	if path == "" {
		if def, xdgErr := xdg.ConfigFile(); xdgErr == nil && fileExists(def) {
			path = def
		}
	}

	cfg, err := loadConfig(cmd.Flags(), path)
	if err != nil {
		return nil, err
	}
	if cfg.Session.Store == storeSQLite && cfg.Session.Path == "" {
		if cfg.Session.Path, err = xdg.SessionDB(); err != nil {
			return nil, err //nolint:wrapcheck // xdg errors carry their code
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
