// Package supervisor runs one daemon process under automatic respawn.
//
// The policy mirrors the classic init-system contract: a crashed service is
// restarted after a short delay, a crash-looping service is given up on after
// a bounded number of respawns, and an instance that stays up long enough
// earns its respawn budget back. Stdout and stderr of the supervised process
// are forwarded line by line into the structured logger.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"bosinit/logger"

	"golang.org/x/sync/errgroup"
)

// ErrRespawnLimit is returned by Run when the service crashed more times
// than the policy allows without a healthy run in between.
var ErrRespawnLimit = errors.New("respawn limit reached")

// Policy is the respawn policy for a supervised service.
type Policy struct {
	// Threshold is the uptime after which an instance is considered
	// healthy and the crash counter resets.
	Threshold time.Duration
	// Retries is how many consecutive short-lived runs are tolerated
	// before the supervisor gives up.
	Retries int
	// Delay is the pause between a crash and the next spawn.
	Delay time.Duration
}

// DefaultPolicy matches the host init framework's stock respawn parameters.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: 3600 * time.Second,
		Retries:   5,
		Delay:     5 * time.Second,
	}
}

// graceTimeout is how long a signalled service gets to exit before SIGKILL.
const graceTimeout = 15 * time.Second

// Service supervises a single daemon process.
type Service struct {
	Name    string
	Command string
	Args    []string
	Policy  Policy

	mu         sync.Mutex
	proc       *exec.Cmd
	restarting bool
}

// Run spawns the service and keeps it running until the context is
// cancelled. It returns nil on cancellation, or an error wrapping
// ErrRespawnLimit when the service crash-loops past the policy budget.
// Logging goes to the logger carried by the context.
func (s *Service) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	policy := s.Policy
	if policy.Threshold == 0 && policy.Retries == 0 && policy.Delay == 0 {
		policy = DefaultPolicy()
	}

	spawns := 0
	for {
		started := time.Now()
		err := s.runOnce(ctx, log)

		if ctx.Err() != nil {
			log.Info("service stopped", "service", s.Name)
			return nil
		}

		if s.takeRestart() {
			log.Info("service restart requested", "service", s.Name)
			continue
		}

		uptime := time.Since(started)
		if err != nil {
			log.Warn("service exited", "service", s.Name, "uptime", uptime, "error", err)
		} else {
			log.Warn("service exited", "service", s.Name, "uptime", uptime)
		}

		if uptime >= policy.Threshold {
			spawns = 0
		}
		spawns++
		if spawns > policy.Retries {
			return fmt.Errorf("%s: %w after %d attempts", s.Name, ErrRespawnLimit, spawns)
		}

		select {
		case <-ctx.Done():
			log.Info("service stopped", "service", s.Name)
			return nil
		case <-time.After(policy.Delay):
		}
	}
}

// Restart asks the run loop to replace the current instance. The respawn
// budget is not charged for requested restarts. Safe to call whether or not
// an instance is currently alive.
func (s *Service) Restart() {
	s.mu.Lock()
	s.restarting = true
	proc := s.proc
	s.mu.Unlock()

	if proc != nil && proc.Process != nil {
		proc.Process.Signal(syscall.SIGTERM)
	}
}

func (s *Service) takeRestart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	requested := s.restarting
	s.restarting = false
	return requested
}

// runOnce spawns one instance and waits it out. On context cancellation the
// instance is terminated with SIGTERM, then SIGKILL after a grace period.
func (s *Service) runOnce(ctx context.Context, log *slog.Logger) error {
	cmd := exec.Command(s.Command, s.Args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.Command, err)
	}

	s.mu.Lock()
	s.proc = cmd
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.proc = nil
		s.mu.Unlock()
	}()

	log.Info("service started", "service", s.Name, "pid", cmd.Process.Pid)

	var g errgroup.Group
	g.Go(func() error {
		s.forward(log, "stdout", stdout)
		return nil
	})
	g.Go(func() error {
		s.forward(log, "stderr", stderr)
		return nil
	})

	done := make(chan error, 1)
	go func() {
		g.Wait()
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(graceTimeout):
			log.Warn("service did not terminate in time, killing",
				"service", s.Name, "grace", graceTimeout)
			cmd.Process.Kill()
			<-done
		}
		return ctx.Err()
	}
}

// forward relays one output stream of the service into the logger, a line
// per record, the way the init framework forwards service output to logd.
func (s *Service) forward(log *slog.Logger, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Info(scanner.Text(), "service", s.Name, "stream", stream)
	}
}
