// Package config owns the bosminer configuration file: its schema, first-boot
// generation from bootloader defaults, atomic writing, and Viper-based
// loading, validation and hot-reload watching.
//
// The file itself belongs to the bosminer daemon, which parses it at its own
// startup. This package only synthesizes it when absent and reads it back for
// validation and reload notification; it never rewrites a file that exists.
package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DefaultPath is where the daemon expects its configuration on the device.
const DefaultPath = "/etc/bosminer.toml"

// Format identity stamped into every generated file.
const (
	FormatVersion   = "1.0"
	FormatModel     = "Antminer S9"
	FormatGenerator = "init_script"
)

// Config mirrors the bosminer.toml schema.
type Config struct {
	Format          Format           `mapstructure:"format" toml:"format"`
	HashChainGlobal *HashChainGlobal `mapstructure:"hash_chain_global" toml:"hash_chain_global,omitempty"`
	Groups          []Group          `mapstructure:"group" toml:"group"`
}

// Format identifies the schema revision, the target hardware and which tool
// produced the file.
type Format struct {
	Version   string `mapstructure:"version" toml:"version"`
	Model     string `mapstructure:"model" toml:"model"`
	Generator string `mapstructure:"generator" toml:"generator"`
	Timestamp int64  `mapstructure:"timestamp" toml:"timestamp"`
}

// HashChainGlobal carries chip tuning that applies to all hash chains. It is
// only emitted for fixed-frequency provisioning; in its absence the daemon
// auto-tunes.
type HashChainGlobal struct {
	Frequency float64 `mapstructure:"frequency" toml:"frequency"`
}

// Group is a named, ordered set of pools the daemon fails over across.
type Group struct {
	Name  string `mapstructure:"name" toml:"name"`
	Pools []Pool `mapstructure:"pool" toml:"pool"`
}

// Pool is one remote work endpoint. The password belongs to the entry it is
// declared on; entries without one authenticate by user alone.
type Pool struct {
	URL      string `mapstructure:"url" toml:"url"`
	User     string `mapstructure:"user" toml:"user"`
	Password string `mapstructure:"password" toml:"password,omitempty"`
}

// Validate checks structural completeness of a loaded config. It is
// deliberately not part of the generation path: an existing file on disk is
// the daemon's to interpret, valid or not.
func (c *Config) Validate() error {
	if c.Format.Version == "" {
		return fmt.Errorf("format.version is missing")
	}

	if len(c.Groups) == 0 {
		return fmt.Errorf("no pool groups defined")
	}

	for gi, group := range c.Groups {
		if group.Name == "" {
			return fmt.Errorf("group %d has no name", gi)
		}
		if len(group.Pools) == 0 {
			return fmt.Errorf("group %q has no pools", group.Name)
		}
		for pi, pool := range group.Pools {
			if pool.URL == "" {
				return fmt.Errorf("group %q pool %d has no url", group.Name, pi)
			}
			if pool.User == "" {
				return fmt.Errorf("group %q pool %d (%s) has no user", group.Name, pi, pool.URL)
			}
		}
	}

	if c.HashChainGlobal != nil && c.HashChainGlobal.Frequency <= 0 {
		return fmt.Errorf("hash_chain_global.frequency must be positive, got %v", c.HashChainGlobal.Frequency)
	}

	return nil
}

// Load reads and validates an existing bosminer.toml.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Watch starts a background watcher on the config file and calls the
// callback with each valid new revision. Invalid revisions are logged and
// dropped so a half-saved edit cannot bounce the daemon. The watcher stops
// when the context is cancelled. If logger is nil, logging is disabled.
func Watch(ctx context.Context, path string, callback func(*Config), logger *slog.Logger) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if logger != nil {
			logger.Info("configuration file changed",
				"file", e.Name,
				"operation", e.Op.String())
		}

		var newConfig Config
		if err := v.Unmarshal(&newConfig); err != nil {
			if logger != nil {
				logger.Error("failed to unmarshal config on reload",
					"error", err,
					"file", e.Name)
			}
			return
		}

		if err := newConfig.Validate(); err != nil {
			if logger != nil {
				logger.Error("invalid configuration after reload",
					"error", err,
					"file", e.Name)
			}
			return
		}

		callback(&newConfig)
	})

	go func() {
		<-ctx.Done()
		if logger != nil {
			logger.Debug("config watcher stopped",
				"reason", "context cancelled")
		}
	}()

	return nil
}
