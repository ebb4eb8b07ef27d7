package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bosinit/bootenv"
	"bosinit/config"
	"bosinit/logger"
	"bosinit/supervisor"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func bootCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "generate the miner configuration if absent, then start the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := lifecycleContext(opts)
			defer stop()

			if err := ensureConfig(ctx, opts); err != nil {
				return err
			}
			return runService(ctx, opts)
		},
	}
}

func startCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start the daemon under supervision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := lifecycleContext(opts)
			defer stop()

			return runService(ctx, opts)
		},
	}
}

func reloadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "restart the daemon inside a running bosinit, keeping the config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := readPidFile(opts.PidFile)
			if err != nil {
				return fmt.Errorf("no running instance: %w", err)
			}

			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("no process with pid %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGHUP); err != nil {
				return fmt.Errorf("signaling pid %d: %w", pid, err)
			}

			logger.Info("reload signal sent", "pid", pid)
			return nil
		},
	}
}

// lifecycleContext builds the root context of a lifecycle command: logger
// configured from flags and stored in the context, cancellation on SIGINT
// and SIGTERM.
func lifecycleContext(opts *options) (context.Context, context.CancelFunc) {
	log := logger.New(logger.Config{
		Level:  opts.LogLevel,
		Format: opts.LogFormat,
		Output: os.Stderr,
	})
	logger.Set(log)

	ctx := logger.WithLogger(context.Background(), log)
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// ensureConfig generates the daemon configuration on first boot. Presence of
// the file, whatever its content, means a later boot: nothing is written.
func ensureConfig(ctx context.Context, opts *options) error {
	log := logger.FromContext(ctx)

	store := &bootenv.Store{
		ModeFile:   opts.ModeFile,
		FwPrintenv: opts.FwPrintenv,
	}

	generated, err := config.EnsureConfig(ctx, store, opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("ensuring configuration: %w", err)
	}

	if generated {
		log.Info("generated first-boot configuration",
			"path", opts.ConfigPath,
			"bootloader_env", store.Active())
	} else {
		log.Debug("configuration already present", "path", opts.ConfigPath)
	}
	return nil
}

// runService supervises the daemon until the context ends. SIGHUP and valid
// config file edits both restart the daemon in place; the respawn budget is
// only spent on crashes.
func runService(ctx context.Context, opts *options) error {
	log := logger.FromContext(ctx)

	if err := writePidFile(opts.PidFile); err != nil {
		log.Warn("cannot write pidfile", "path", opts.PidFile, "error", err)
	} else {
		defer os.Remove(opts.PidFile)
	}

	svc := &supervisor.Service{
		Name:    "bosminer",
		Command: opts.DaemonPath,
		Policy:  supervisor.DefaultPolicy(),
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				log.Info("reload requested")
				svc.Restart()
			}
		}
	})

	// An edited pool list takes effect without an init-system round trip.
	// The watcher only fires for revisions that parse and validate, so a
	// half-saved edit never bounces the daemon.
	if err := config.Watch(ctx, opts.ConfigPath, func(*config.Config) {
		log.Info("configuration changed, restarting daemon")
		svc.Restart()
	}, log); err != nil {
		log.Warn("config watcher unavailable", "error", err)
	}

	g.Go(func() error {
		return svc.Run(ctx)
	})

	return g.Wait()
}
