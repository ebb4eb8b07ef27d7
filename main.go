// Command bosinit bootstraps and supervises the bosminer mining daemon.
//
// It implements the three lifecycle hooks the init layer calls:
//
//   - boot: generate /etc/bosminer.toml from bootloader defaults when the
//     file is absent, then run the daemon under supervision
//   - start: run the daemon under supervision without touching the config
//   - reload: restart the daemon inside a running bosinit, preserving the
//     existing configuration
//
// A generated configuration is written exactly once; every later boot finds
// the file and leaves it alone.
package main

import (
	"os"

	"bosinit/bootenv"
	"bosinit/config"
	"bosinit/logger"

	"github.com/spf13/cobra"
)

type options struct {
	ConfigPath string
	DaemonPath string
	ModeFile   string
	FwPrintenv string
	PidFile    string
	LogLevel   string
	LogFormat  string
}

func defaultOptions() *options {
	return &options{
		ConfigPath: config.DefaultPath,
		DaemonPath: "/usr/sbin/bosminer",
		ModeFile:   bootenv.DefaultModeFile,
		FwPrintenv: bootenv.DefaultFwPrintenv,
		PidFile:    "/var/run/bosinit.pid",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

func main() {
	opts := defaultOptions()

	rootCmd := &cobra.Command{
		Use:           "bosinit",
		Short:         "bootstrap and supervise the bosminer daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "path of the bosminer configuration file")
	flags.StringVar(&opts.DaemonPath, "daemon", opts.DaemonPath, "path of the bosminer executable")
	flags.StringVar(&opts.ModeFile, "mode-file", opts.ModeFile, "firmware mode indicator file")
	flags.StringVar(&opts.FwPrintenv, "fw-printenv", opts.FwPrintenv, "path of the fw_printenv helper")
	flags.StringVar(&opts.PidFile, "pidfile", opts.PidFile, "pidfile of the running bosinit instance")
	flags.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "log format (text, color, json)")

	rootCmd.AddCommand(bootCmd(opts), startCmd(opts), reloadCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		logger.Error("bosinit failed", "error", err)
		os.Exit(1)
	}
}
