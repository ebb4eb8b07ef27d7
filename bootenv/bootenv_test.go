package bootenv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// writeModeFile creates a firmware mode indicator file with the given content.
func writeModeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "bos_mode")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write mode file: %v", err)
	}
	return path
}

// writeFakeFwPrintenv creates an executable shell script that mimics
// fw_printenv -n <key>, serving values from the given map and failing with
// exit code 1 for unknown keys, the way the real tool does.
func writeFakeFwPrintenv(t *testing.T, dir string, values map[string]string) string {
	t.Helper()

	script := "#!/bin/sh\ncase \"$2\" in\n"
	for key, value := range values {
		script += key + ") echo '" + value + "' ;;\n"
	}
	script += "*) echo \"## Error: \\\"$2\\\" not defined\" >&2; exit 1 ;;\nesac\n"

	path := filepath.Join(dir, "fw_printenv")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write fake fw_printenv: %v", err)
	}
	return path
}

func TestLookupReturnsStoredValue(t *testing.T) {
	dir := t.TempDir()
	store := &Store{
		ModeFile: writeModeFile(t, dir, "nand\n"),
		FwPrintenv: writeFakeFwPrintenv(t, dir, map[string]string{
			KeyPoolHost: "stratum2+tcp://pool.example.com",
			KeyPoolUser: "worker.one",
		}),
	}

	value, ok := store.Lookup(context.Background(), KeyPoolHost)
	if !ok {
		t.Fatal("Expected lookup hit for miner_pool_host")
	}
	if value != "stratum2+tcp://pool.example.com" {
		t.Errorf("Expected 'stratum2+tcp://pool.example.com', got '%s'", value)
	}
}

func TestLookupMissesForUnsetKey(t *testing.T) {
	dir := t.TempDir()
	store := &Store{
		ModeFile:   writeModeFile(t, dir, "nand"),
		FwPrintenv: writeFakeFwPrintenv(t, dir, map[string]string{}),
	}

	if value, ok := store.Lookup(context.Background(), KeyPoolPort); ok {
		t.Errorf("Expected miss for unset key, got '%s'", value)
	}
}

func TestLookupGatedByFirmwareMode(t *testing.T) {
	tests := []struct {
		name string
		mode string
	}{
		{name: "sd mode", mode: "sd"},
		{name: "recovery mode", mode: "recovery"},
		{name: "empty mode file", mode: ""},
		{name: "nand with suffix", mode: "nand-broken"},
	}

	keys := []string{
		KeyPoolHost, KeyPoolPort, KeyPoolPath, KeyPoolUser,
		KeyPoolPass, KeyFreq, KeyFixedFreq,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()

			// The underlying store has every key; mode gating must hide
			// all of them.
			values := make(map[string]string, len(keys))
			for _, key := range keys {
				values[key] = "some-value"
			}

			store := &Store{
				ModeFile:   writeModeFile(t, dir, tt.mode),
				FwPrintenv: writeFakeFwPrintenv(t, dir, values),
			}

			if store.Active() {
				t.Errorf("Store should be inactive in mode %q", tt.mode)
			}
			for _, key := range keys {
				if value, ok := store.Lookup(context.Background(), key); ok {
					t.Errorf("Expected miss for %s in mode %q, got '%s'", key, tt.mode, value)
				}
			}
		})
	}
}

func TestMissingModeFileDisablesStore(t *testing.T) {
	dir := t.TempDir()
	store := &Store{
		ModeFile: filepath.Join(dir, "does-not-exist"),
		FwPrintenv: writeFakeFwPrintenv(t, dir, map[string]string{
			KeyPoolHost: "stratum2+tcp://pool.example.com",
		}),
	}

	if store.Active() {
		t.Error("Store should be inactive without a mode file")
	}
	if _, ok := store.Lookup(context.Background(), KeyPoolHost); ok {
		t.Error("Expected miss when mode file is missing")
	}
}

func TestMissingHelperBinaryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	store := &Store{
		ModeFile:   writeModeFile(t, dir, "nand"),
		FwPrintenv: filepath.Join(dir, "no-such-binary"),
	}

	if _, ok := store.Lookup(context.Background(), KeyPoolHost); ok {
		t.Error("Expected miss when fw_printenv is missing")
	}
}

func TestLookupTrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	store := &Store{
		ModeFile: writeModeFile(t, dir, "nand"),
		FwPrintenv: writeFakeFwPrintenv(t, dir, map[string]string{
			KeyFreq: "650",
		}),
	}

	value, ok := store.Lookup(context.Background(), KeyFreq)
	if !ok {
		t.Fatal("Expected lookup hit for miner_freq")
	}
	if value != "650" {
		t.Errorf("Expected '650' with trailing newline trimmed, got '%s'", value)
	}
}
