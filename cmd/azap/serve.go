// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/azap/azap/internal/auth"
	authpg "github.com/azap/azap/internal/auth/postgres"
	"github.com/azap/azap/internal/logging"
	"github.com/azap/azap/internal/observability"
	"github.com/azap/azap/internal/roster"
	rosterpg "github.com/azap/azap/internal/roster/postgres"
	"github.com/azap/azap/internal/session"
	"github.com/azap/azap/internal/web"
	"github.com/azap/azap/internal/xdg"
)

// shutdownTimeout bounds graceful shutdown of the listeners.
const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand.
func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API serving login, session lookup and logout, plus the
metrics and health endpoints when --metrics-addr is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromCmd(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, deps)
		},
	}
}

// runServeWithDeps runs the server until a signal arrives, ctx ends or a
// listener fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *Config, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()

	if err := cfg.requireDatabase(); err != nil {
		return err
	}

	if err := logging.SetDefault("azap", version, logging.Options{Format: cfg.Log.Format, Level: cfg.Log.Level}); err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "set up logging").Wrap(err)
	}
	logger := slog.Default()

	logger.Info("starting azap",
		"http_addr", cfg.HTTP.Addr,
		"session_store", cfg.Session.Store,
		"session_ttl", cfg.Session.TTL,
	)

	if cfg.Database.Migrate {
		if err := applyMigrations(deps, cfg.Database.URL); err != nil {
			return err
		}
	}

	pool, err := deps.openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessions, closeSessions, err := openSessionStore(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer closeSessions()

	// Servers are stopped in reverse start order.
	var running []namedServer

	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, readinessProbe(pool))
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
		running = append(running, namedServer{"observability", obsServer})
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
	}

	manager, handler, err := buildHandler(cfg, pool, sessions, metrics, logger)
	if err != nil {
		stopServers(running)
		return err
	}

	webServer := web.NewServer(cfg.HTTP.Addr, handler.Routes())
	webErrChan, err := webServer.Start()
	if err != nil {
		stopServers(running)
		return oops.Code("SERVE_FAILED").With("operation", "start web server").Wrap(err)
	}
	running = append(running, namedServer{"web", webServer})
	go monitorServerErrors(ctx, cancel, webErrChan, "web")

	var wg sync.WaitGroup
	if cfg.Session.Sweep > 0 {
		wg.Go(func() {
			manager.RunSweeper(ctx, cfg.Session.Sweep)
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("azap listening on %s\n", webServer.Addr())
	logger.Info("azap ready", "http_addr", webServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()
	stopServers(running)
	wg.Wait()

	logger.Info("shutdown complete")
	return nil
}

// buildHandler wires the authentication core, roster and session manager
// into the API handler.
func buildHandler(cfg *Config, pool Pool, store session.Store, metrics *observability.Metrics, logger *slog.Logger) (*session.Manager, *web.Handler, error) {
	manager, err := session.NewManager(store,
		session.WithTTL(cfg.Session.TTL),
		session.WithLogger(logger),
		session.WithSweepObserver(metrics.RecordExpired),
	)
	if err != nil {
		return nil, nil, err
	}

	hasher, err := auth.NewScryptHasher(cfg.Hash.ScryptParams())
	if err != nil {
		return nil, nil, err
	}
	authService, err := auth.NewService(authpg.NewCredentialRepository(pool), hasher, auth.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	rosterService, err := roster.NewService(rosterpg.NewRosterRepository(pool))
	if err != nil {
		return nil, nil, err
	}

	handler, err := web.NewHandler(authService, manager, rosterService,
		web.WithMetrics(metrics),
		web.WithLogger(logger),
		web.WithCookie(web.CookieConfig{Name: cfg.Session.Cookie, Secure: cfg.Session.Secure}),
	)
	if err != nil {
		return nil, nil, err
	}
	return manager, handler, nil
}

// openSessionStore opens the configured session store. pool is only used
// by the postgres store. The returned func releases the store.
func openSessionStore(ctx context.Context, cfg *Config, pool Pool) (session.Store, func(), error) {
	switch cfg.Session.Store {
	case storeSQLite:
		if err := xdg.EnsureDir(filepath.Dir(cfg.Session.Path)); err != nil {
			return nil, nil, err //nolint:wrapcheck // xdg errors carry their code
		}
		s, err := session.OpenSQLiteStore(ctx, cfg.Session.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("error closing session store", "error", err)
			}
		}, nil
	case storeMemory:
		return session.NewMemoryStore(), func() {}, nil
	default:
		if pool == nil {
			return nil, nil, oops.Code("CONFIG_INVALID").Errorf("the postgres session store needs database.url")
		}
		return session.NewPostgresStore(pool), func() {}, nil
	}
}

// readinessProbe reports ready while the database answers pings.
func readinessProbe(pool Pool) observability.ReadinessChecker {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return pool.Ping(ctx) == nil
	}
}

type stoppable interface {
	Stop(ctx context.Context) error
}

type namedServer struct {
	name string
	srv  stoppable
}

// stopServers stops servers in reverse order within shutdownTimeout.
func stopServers(servers []namedServer) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].srv.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping server", "server", servers[i].name, "error", err)
		}
	}
}

// monitorServerErrors cancels the context when a server reports an error.
// It exits when an error is received, the channel is closed, or the context
// is cancelled.
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
