// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/azap/azap/internal/auth"
	authpg "github.com/azap/azap/internal/auth/postgres"
	"github.com/azap/azap/internal/logging"
)

// newUserCmd creates the user subcommand.
func newUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user credentials",
	}

	var secret string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print its id",
		Long: `Hash a secret with the configured scrypt parameters and store it as a new
user. The secret is read from --secret, or from the terminal without echo,
or from the first line of standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserCreate(cmd, deps, secret)
		},
	}
	create.Flags().StringVar(&secret, "secret", "", "secret for the new user (prompted when empty)")
	cmd.AddCommand(create)

	return cmd
}

func runUserCreate(cmd *cobra.Command, deps *Deps, secret string) error {
	cfg, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.Setup("azap", version, logging.Options{Format: cfg.Log.Format, Level: cfg.Log.Level}, cmd.ErrOrStderr())
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "set up logging").Wrap(err)
	}

	if secret == "" {
		if secret, err = readSecret(cmd); err != nil {
			return err
		}
	}

	hasher, err := auth.NewScryptHasher(cfg.Hash.ScryptParams())
	if err != nil {
		return err //nolint:wrapcheck // auth errors carry their code
	}

	ctx := cmd.Context()
	pool, err := deps.withDefaults().openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := auth.NewService(authpg.NewCredentialRepository(pool), hasher, auth.WithLogger(logger))
	if err != nil {
		return err //nolint:wrapcheck // auth errors carry their code
	}

	id, err := svc.Provision(ctx, secret)
	if err != nil {
		return err //nolint:wrapcheck // auth errors carry their code
	}

	cmd.Printf("Created user %d\n", id)
	return nil
}

// readSecret prompts on a terminal and reads a line otherwise.
func readSecret(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print("Secret: ")
		first, err := term.ReadPassword(int(f.Fd()))
		cmd.Println()
		if err != nil {
			return "", oops.Code("SECRET_READ_FAILED").Wrap(err)
		}
		cmd.Print("Confirm secret: ")
		second, err := term.ReadPassword(int(f.Fd()))
		cmd.Println()
		if err != nil {
			return "", oops.Code("SECRET_READ_FAILED").Wrap(err)
		}
		if string(first) != string(second) {
			return "", oops.Code("SECRET_MISMATCH").Errorf("secrets do not match")
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("SECRET_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
