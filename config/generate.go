package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bosinit/bootenv"

	"github.com/pelletier/go-toml/v2"
)

// Store is the bootloader environment lookup used by generation. A miss
// means the key has no usable value, whatever the underlying reason.
type Store interface {
	Lookup(ctx context.Context, key string) (string, bool)
}

// Fallbacks applied when the bootloader environment has nothing. The user
// placeholder is intentionally invalid so an unprovisioned machine shows up
// on the pool side as a rejected login instead of mining into the void under
// some accidental identity.
const (
	DefaultPoolHost = "stratum2+tcp://v2.stratum.slushpool.com"
	DefaultPoolUser = "!non-existent-user!"

	// BackupPoolHost is always appended as a second pool entry so the
	// daemon has somewhere to fail over to even on a fully provisioned
	// machine whose primary pool is mistyped or down.
	BackupPoolHost = "stratum2+tcp://v2-backup.stratum.slushpool.com"
)

// DefaultGroupName names the single group a generated config contains.
const DefaultGroupName = "Default"

// Generate synthesizes a first-boot configuration from the bootloader
// environment. Host and user fall back to the built-in defaults; port, path,
// password and frequency are simply omitted when absent.
func Generate(ctx context.Context, store Store) Config {
	host, ok := store.Lookup(ctx, bootenv.KeyPoolHost)
	if !ok {
		host = DefaultPoolHost
	}

	user, ok := store.Lookup(ctx, bootenv.KeyPoolUser)
	if !ok {
		user = DefaultPoolUser
	}

	url := host
	if port, ok := store.Lookup(ctx, bootenv.KeyPoolPort); ok {
		url += ":" + port
	}
	if path, ok := store.Lookup(ctx, bootenv.KeyPoolPath); ok {
		url += "/" + path
	}

	primary := Pool{URL: url, User: user}
	if pass, ok := store.Lookup(ctx, bootenv.KeyPoolPass); ok {
		primary.Password = pass
	}

	cfg := Config{
		Format: Format{
			Version:   FormatVersion,
			Model:     FormatModel,
			Generator: FormatGenerator,
			Timestamp: time.Now().Unix(),
		},
		Groups: []Group{{
			Name: DefaultGroupName,
			Pools: []Pool{
				primary,
				{URL: BackupPoolHost, User: user},
			},
		}},
	}

	// Fixed-frequency provisioning is an S9 factory-calibration escape
	// hatch: both the flag and a parseable frequency must be present,
	// otherwise the daemon is left to auto-tune.
	if fixed, ok := store.Lookup(ctx, bootenv.KeyFixedFreq); ok && fixed == "true" {
		if raw, ok := store.Lookup(ctx, bootenv.KeyFreq); ok {
			if freq, err := strconv.ParseFloat(raw, 64); err == nil {
				cfg.HashChainGlobal = &HashChainGlobal{Frequency: freq}
			}
		}
	}

	return cfg
}

// WriteAtomic marshals the config to a temporary file in the target
// directory and renames it into place. A crash mid-write leaves at worst a
// stale temp file, never a truncated config that the presence check on the
// next boot would mistake for a provisioned machine.
func (c Config) WriteAtomic(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("syncing temp config: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("setting config mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp config: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming config into place: %w", err)
	}
	return nil
}

// EnsureConfig generates and writes the config at path unless a file is
// already there. Presence alone gates generation; existing content is never
// inspected or rewritten. Reports whether a new file was generated.
func EnsureConfig(ctx context.Context, store Store, path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking for config at %s: %w", path, err)
	}

	cfg := Generate(ctx, store)
	if err := cfg.WriteAtomic(path); err != nil {
		return false, err
	}
	return true, nil
}
