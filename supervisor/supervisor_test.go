package supervisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"bosinit/logger"
)

// syncBuffer is a goroutine-safe bytes.Buffer for capturing log output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testContext returns a context carrying a logger that writes to the
// returned buffer.
func testContext(t *testing.T) (context.Context, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	log := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger.WithLogger(context.Background(), log), buf
}

func TestRespawnLimit(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
	}{
		{name: "crashing service", command: "/bin/sh", args: []string{"-c", "exit 1"}},
		{name: "cleanly exiting service", command: "/bin/sh", args: []string{"-c", "exit 0"}},
		{name: "missing binary", command: "/no/such/daemon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &Service{
				Name:    "testd",
				Command: tt.command,
				Args:    tt.args,
				Policy: Policy{
					Threshold: time.Hour,
					Retries:   2,
					Delay:     5 * time.Millisecond,
				},
			}

			ctx, _ := testContext(t)
			err := svc.Run(ctx)
			if !errors.Is(err, ErrRespawnLimit) {
				t.Errorf("Expected ErrRespawnLimit, got %v", err)
			}
		})
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	svc := &Service{
		Name:    "testd",
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 60"},
		Policy:  DefaultPolicy(),
	}

	ctx, _ := testContext(t)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancellation, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestHealthyUptimeResetsBudget(t *testing.T) {
	// Each run outlives the threshold, so the crash counter resets and the
	// service respawns past its retry count until the context ends it.
	svc := &Service{
		Name:    "testd",
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 0.1; exit 1"},
		Policy: Policy{
			Threshold: 20 * time.Millisecond,
			Retries:   1,
			Delay:     time.Millisecond,
		},
	}

	ctx, _ := testContext(t)
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := svc.Run(ctx); err != nil {
		t.Errorf("Expected nil after cancellation, got %v", err)
	}
}

func TestForwardsServiceOutput(t *testing.T) {
	svc := &Service{
		Name:    "testd",
		Command: "/bin/sh",
		Args:    []string{"-c", "echo out-marker; echo err-marker >&2"},
		Policy: Policy{
			Threshold: time.Hour,
			Retries:   1,
			Delay:     time.Millisecond,
		},
	}

	ctx, buf := testContext(t)
	svc.Run(ctx)

	output := buf.String()
	if !strings.Contains(output, "out-marker") {
		t.Errorf("Expected stdout line in log output:\n%s", output)
	}
	if !strings.Contains(output, "err-marker") {
		t.Errorf("Expected stderr line in log output:\n%s", output)
	}
	if !strings.Contains(output, "stream=stdout") {
		t.Errorf("Expected stream attribute in log output:\n%s", output)
	}
}

func TestRestartReplacesInstance(t *testing.T) {
	svc := &Service{
		Name:    "testd",
		Command: "/bin/sh",
		Args:    []string{"-c", "echo started-marker; sleep 60"},
		Policy:  DefaultPolicy(),
	}

	ctx, buf := testContext(t)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitForCount := func(want int) {
		t.Helper()
		deadline := time.After(10 * time.Second)
		for {
			if strings.Count(buf.String(), "started-marker") >= want {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("Timed out waiting for %d service starts:\n%s", want, buf.String())
			case <-time.After(20 * time.Millisecond):
			}
		}
	}

	waitForCount(1)
	svc.Restart()
	waitForCount(2)

	select {
	case err := <-done:
		t.Fatalf("Run returned during restart: %v", err)
	default:
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected nil after cancellation, got %v", err)
	}
}
