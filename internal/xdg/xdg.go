// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

// Package xdg provides XDG Base Directory paths for azap.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "azap"

// ConfigDir returns the XDG config directory for azap.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return baseDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for azap.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() (string, error) {
	return baseDir("XDG_DATA_HOME", ".local", "share")
}

// ConfigFile returns the path of the default config file. The file may not
// exist.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// SessionDB returns the default sqlite session database path.
func SessionDB() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions.db"), nil
}

func baseDir(envVar string, homeFallback ...string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", oops.Code("XDG_NO_HOME").With("env", envVar).Errorf("neither %s nor HOME is set", envVar)
		}
		base = filepath.Join(append([]string{home}, homeFallback...)...)
	}
	return filepath.Join(base, appName), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
