// Copyright 2026 The Histfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides mount configuration loading for histfs.
//
// Configuration is loaded from a single YAML file specified by:
//   - HISTFS_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Command-line flags
// override values from the file.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the mount configuration for histfs.
type Config struct {
	// Repository is the path of the git repository to expose.
	Repository string `yaml:"repository"`

	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string `yaml:"mountpoint"`

	// Owner is the identity reported as file owner. Both fields
	// default to the mounting process's identity when omitted.
	Owner OwnerConfig `yaml:"owner"`

	// AllowOther permits other users to access the mount.
	AllowOther bool `yaml:"allow_other"`

	// BlobCacheEntries bounds the in-memory blob content cache.
	// Zero selects the built-in default.
	BlobCacheEntries int `yaml:"blob_cache_entries"`

	// LogLevel is one of debug, info, warn, error. Empty means info.
	LogLevel string `yaml:"log_level"`
}

// OwnerConfig is the reported file owner. Pointer fields distinguish
// "not set" from uid/gid 0.
type OwnerConfig struct {
	UID *uint32 `yaml:"uid"`
	GID *uint32 `yaml:"gid"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// SlogLevel translates the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}
