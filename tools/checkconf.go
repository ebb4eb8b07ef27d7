//go:build tools
// +build tools

// Package main provides a configuration check tool for the miner bootstrap.
// It loads a bosminer.toml, validates its structure and prints the resolved
// pools, which is handy after hand-editing the file on a device.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"bosinit/config"
)

func main() {
	path := flag.String("config", config.DefaultPath, "Path to the bosminer configuration file")
	flag.Parse()

	fmt.Println("bosminer configuration check")
	fmt.Println("----------------------------")
	fmt.Printf("File: %s\n", *path)

	if _, err := os.Stat(*path); err != nil {
		fmt.Println("Status: no config file present")
		fmt.Println("The boot handler will generate one on the next service start.")
		return
	}

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Println("Status: INVALID")
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Status: valid")
	fmt.Println()
	fmt.Printf("Format version: %s\n", cfg.Format.Version)
	fmt.Printf("Model:          %s\n", cfg.Format.Model)
	fmt.Printf("Generated by:   %s\n", cfg.Format.Generator)
	fmt.Printf("Generated at:   %s\n", time.Unix(cfg.Format.Timestamp, 0).UTC().Format(time.RFC3339))

	if cfg.HashChainGlobal != nil {
		fmt.Printf("Frequency:      %.2f MHz (fixed)\n", cfg.HashChainGlobal.Frequency)
	} else {
		fmt.Println("Frequency:      auto-tuned")
	}

	for _, group := range cfg.Groups {
		fmt.Println()
		fmt.Printf("Group %q:\n", group.Name)
		for i, pool := range group.Pools {
			fmt.Printf("  %d. %s\n", i+1, pool.URL)
			fmt.Printf("     user: %s", pool.User)
			if pool.Password != "" {
				fmt.Print(" (password set)")
			}
			fmt.Println()
		}
	}
}
