// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/azap/azap/internal/session"
)

// newSessionsCmd creates the sessions subcommand.
func newSessionsCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain the session store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions",
		Long: `Delete every expired session from the configured store once. The
server does this periodically when --session-sweep is non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessionsPurge(cmd, deps)
		},
	})

	return cmd
}

func runSessionsPurge(cmd *cobra.Command, deps *Deps) error {
	cfg, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	if cfg.Session.Store == storeMemory {
		return oops.Code("CONFIG_INVALID").Errorf("the memory session store lives inside the server process")
	}

	ctx := cmd.Context()
	var pool Pool
	if cfg.Session.Store == storePostgres {
		if pool, err = deps.withDefaults().openPool(ctx, cfg); err != nil {
			return err
		}
		defer pool.Close()
	}

	store, closeStore, err := openSessionStore(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer closeStore()

	manager, err := session.NewManager(store, session.WithTTL(cfg.Session.TTL))
	if err != nil {
		return err //nolint:wrapcheck // session errors carry their code
	}

	n, err := manager.PurgeExpired(ctx)
	if err != nil {
		return err //nolint:wrapcheck // session errors carry their code
	}

	cmd.Printf("Purged %d expired session(s)\n", n)
	return nil
}
