// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package main

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/azap/azap/internal/auth"
	"github.com/azap/azap/internal/logging"
	"github.com/azap/azap/internal/web"
)

// envPrefix marks environment variables read as configuration.
// AZAP_DATABASE_URL maps to database.url.
const envPrefix = "AZAP_"

// Session store backends.
const (
	storePostgres = "postgres"
	storeSQLite   = "sqlite"
	storeMemory   = "memory"
)

// Default values for configuration flags.
const (
	defaultHTTPAddr    = "127.0.0.1:8080"
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat   = "json"
	defaultLogLevel    = "info"
	defaultMaxConns    = 10
	defaultDBTimeout   = 10 * time.Second
	defaultSessionTTL  = 24 * time.Hour
	defaultSweep       = 10 * time.Minute
)

// configSections are the top-level keys flags may bind to.
var configSections = []string{"http", "metrics", "log", "database", "session", "hash"}

// Config is the effective process configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Session  SessionConfig  `koanf:"session" yaml:"session"`
	Hash     HashConfig     `koanf:"hash" yaml:"hash"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// MetricsConfig configures the metrics and health listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"` // empty disables it
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL      string        `koanf:"url" yaml:"url"`
	MaxConns int32         `koanf:"maxconns" yaml:"maxconns"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
	Migrate  bool          `koanf:"migrate" yaml:"migrate"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	Store  string        `koanf:"store" yaml:"store"`
	Path   string        `koanf:"path" yaml:"path"`
	TTL    time.Duration `koanf:"ttl" yaml:"ttl"`
	Cookie string        `koanf:"cookie" yaml:"cookie"`
	Secure bool          `koanf:"secure" yaml:"secure"`
	Sweep  time.Duration `koanf:"sweep" yaml:"sweep"` // zero disables the sweeper
}

// HashConfig holds the scrypt cost parameters for new hashes.
type HashConfig struct {
	LN int `koanf:"ln" yaml:"ln"`
	R  int `koanf:"r" yaml:"r"`
	P  int `koanf:"p" yaml:"p"`
}

// ScryptParams converts the hash section to hasher parameters.
func (c HashConfig) ScryptParams() auth.ScryptParams {
	return auth.ScryptParams{LogN: c.LN, R: c.R, P: c.P}
}

// addConfigFlags registers one flag per configuration key. Flag names use
// dashes where keys use dots, so --session-ttl sets session.ttl.
func addConfigFlags(fs *pflag.FlagSet) {
	hash := auth.DefaultScryptParams()

	fs.String("http-addr", defaultHTTPAddr, "API listen address")
	fs.String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", defaultLogFormat, "log format (json or text)")
	fs.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Int32("database-maxconns", defaultMaxConns, "maximum open database connections")
	fs.Duration("database-timeout", defaultDBTimeout, "time allowed to reach the database at startup")
	fs.Bool("database-migrate", false, "apply pending migrations before serving")
	fs.String("session-store", storePostgres, "session store (postgres, sqlite or memory)")
	fs.String("session-path", "", "sqlite database file for the sqlite session store")
	fs.Duration("session-ttl", defaultSessionTTL, "session lifetime, extended on every write")
	fs.String("session-cookie", web.DefaultCookieName, "session cookie name")
	fs.Bool("session-secure", false, "mark the session cookie Secure")
	fs.Duration("session-sweep", defaultSweep, "interval between expired session sweeps (0 = disabled)")
	fs.Int("hash-ln", hash.LogN, "scrypt cost exponent for new hashes")
	fs.Int("hash-r", hash.R, "scrypt block size for new hashes")
	fs.Int("hash-p", hash.P, "scrypt parallelism for new hashes")
}

// loadConfig layers the optional YAML file, AZAP_ environment variables and
// command-line flags, later sources winning. Flag defaults fill keys no other
// source set.
func loadConfig(fs *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		return flagKey(f.Name), posflag.FlagVal(fs, f)
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
}

// flagKey maps a flag name to its config key, or "" for flags that are not
// configuration (help, config, version).
func flagKey(name string) string {
	key := strings.ReplaceAll(name, "-", ".")
	section, _, _ := strings.Cut(key, ".")
	if !slices.Contains(configSections, section) || !strings.Contains(key, ".") {
		return ""
	}
	return key
}

// Validate checks settings every command relies on.
func (c *Config) Validate() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").With("log.format", c.Log.Format).
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	switch c.Session.Store {
	case storePostgres, storeMemory:
	case storeSQLite:
		if c.Session.Path == "" {
			return oops.Code("CONFIG_INVALID").Errorf("session.path is required for the sqlite session store")
		}
	default:
		return oops.Code("CONFIG_INVALID").With("session.store", c.Session.Store).
			Errorf("session.store must be postgres, sqlite or memory, got %q", c.Session.Store)
	}
	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("session.ttl", c.Session.TTL.String()).
			Errorf("session.ttl must be positive")
	}
	if c.Session.Sweep < 0 {
		return oops.Code("CONFIG_INVALID").With("session.sweep", c.Session.Sweep.String()).
			Errorf("session.sweep must not be negative")
	}
	if err := c.Hash.ScryptParams().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return nil
}

// requireDatabase reports a missing database.url.
func (c *Config) requireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database.url is required (set --database-url or %sDATABASE_URL)", envPrefix)
	}
	return nil
}

// Redacted returns a copy safe to print, with the database password masked.
func (c Config) Redacted() Config {
	if u, err := url.Parse(c.Database.URL); err == nil && c.Database.URL != "" {
		c.Database.URL = u.Redacted()
	}
	return c
}
