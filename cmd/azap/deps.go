// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package main

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/azap/azap/internal/observability"
	"github.com/azap/azap/internal/store"
)

// Pool is the subset of *pgxpool.Pool the commands hand to repositories.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods the migrate command uses from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Status() (store.Status, error)
	Force(version int) error
	Close() error
}

// ObservabilityServer wraps the methods serve uses from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Deps contains injectable dependencies shared by the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolFactory opens the PostgreSQL pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, dsn string, cfg store.PoolConfig) (Pool, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// withDefaults returns deps with every nil factory replaced by its default.
func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, dsn string, cfg store.PoolConfig) (Pool, error) {
			pool, err := store.Connect(ctx, dsn, cfg)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	return &out
}

// openPool connects using the database section of cfg.
func (d *Deps) openPool(ctx context.Context, cfg *Config) (Pool, error) {
	if err := cfg.requireDatabase(); err != nil {
		return nil, err
	}
	return d.PoolFactory(ctx, cfg.Database.URL, store.PoolConfig{
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.Timeout,
	})
}
