// Package bootenv reads miner settings from the bootloader environment.
//
// On NAND-installed machines the u-boot environment carries factory
// provisioning defaults for the miner: pool address, worker credentials and
// chip frequency. The store shells out to fw_printenv for each key. Every
// failure mode (missing mode file, missing helper binary, absent key,
// unreadable flash) is reported as a miss, never as an error, because first
// boot has to proceed with built-in fallbacks no matter how broken the
// environment partition is.
package bootenv

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Bootloader environment keys consumed by config generation.
const (
	KeyPoolHost  = "miner_pool_host"
	KeyPoolPort  = "miner_pool_port"
	KeyPoolPath  = "miner_pool_path"
	KeyPoolUser  = "miner_pool_user"
	KeyPoolPass  = "miner_pool_pass"
	KeyFreq      = "miner_freq"
	KeyFixedFreq = "miner_fixed_freq"
)

// Default locations on the device. Tests and non-embedded hosts override
// them on the Store.
const (
	DefaultModeFile   = "/etc/bos_mode"
	DefaultFwPrintenv = "/usr/sbin/fw_printenv"

	// ModeNAND is the only firmware mode whose bootloader environment is
	// trusted to hold miner settings. SD and recovery images share one
	// generic environment that must not leak into the generated config.
	ModeNAND = "nand"
)

// lookupTimeout bounds a single fw_printenv run. Reading the environment
// partition can wedge on failing flash and boot must not hang on it.
const lookupTimeout = 5 * time.Second

// Store reads keys from the persistent bootloader environment.
type Store struct {
	// ModeFile is the firmware mode indicator, a single-line text file.
	ModeFile string
	// FwPrintenv is the path of the fw_printenv helper binary.
	FwPrintenv string
}

// NewStore returns a Store wired to the standard device paths.
func NewStore() *Store {
	return &Store{
		ModeFile:   DefaultModeFile,
		FwPrintenv: DefaultFwPrintenv,
	}
}

// Active reports whether bootloader lookups are attempted at all. Only the
// NAND firmware mode qualifies; any other mode, or an unreadable mode file,
// disables the store.
func (s *Store) Active() bool {
	raw, err := os.ReadFile(s.ModeFile)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(raw)) == ModeNAND
}

// Lookup reads a single key from the bootloader environment. The second
// return value reports whether a value was found; a miss carries no
// distinction between "store disabled", "key unset" and "read failed".
func (s *Store) Lookup(ctx context.Context, key string) (string, bool) {
	if !s.Active() {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.FwPrintenv, "-n", key).Output()
	if err != nil {
		return "", false
	}

	value := strings.TrimSpace(string(out))
	if value == "" {
		return "", false
	}
	return value, true
}
