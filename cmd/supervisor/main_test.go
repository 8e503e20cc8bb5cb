// cmd/supervisor/main_test.go
package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/liveness-supervisor/internal/config"
	"github.com/tamzrod/liveness-supervisor/internal/trigger"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "supervisor.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestValidateCmd_ReferenceBoard(t *testing.T) {
	out, err := execute(t, "validate")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	for _, want := range []string{
		"config OK",
		"cycle=50ms window=[0ms, 500ms] required=true driver=sim",
		"worker blink0: blink every 50ms",
		"worker blink1: blink every 50ms gated",
		"worker uart_out: counter every 50ms",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCmd_RejectsBadWindow(t *testing.T) {
	path := writeConfig(t, "supervisor:\n  cycle_ms: 50\n  window_max_ms: 80\n")

	if _, err := execute(t, "validate", "--config", path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidateCmd_RejectsWorkerSlowerThanCycle(t *testing.T) {
	path := writeConfig(t, `
outputs:
  - name: led0
workers:
  - name: blink0
    output: led0
    period_ms: 100
`)

	_, err := execute(t, "validate", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "must not exceed cycle_ms=50") {
		t.Fatalf("expected period error, got %v", err)
	}
}

func TestResetCauseCmd_ReportsAndClears(t *testing.T) {
	path := writeConfig(t, "watchdog:\n  driver: sim\n  boot_cause: 3\nlogging:\n  level: error\n")

	out, err := execute(t, "reset-cause", "--config", path)
	if err != nil {
		t.Fatalf("reset-cause: %v", err)
	}
	if !strings.Contains(out, "0x00000003: reset from pin, reset from watchdog") {
		t.Fatalf("unexpected output: %s", out)
	}
}

const fastBoard = `
supervisor:
  cycle_ms: 20
  window_max_ms: 200
watchdog:
  driver: sim
outputs:
  - name: led0
workers:
  - name: fast
    output: led0
    period_ms: 20
  - name: gated
    workload: counter
    period_ms: 20
    gated: true
trigger:
  input: signal
  poll_ms: 10
  debounce_ms: 10
logging:
  level: error
`

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", d)
}

func TestApp_RebootsAfterWatchdogReset(t *testing.T) {
	c, err := config.Parse([]byte(fastBoard))
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	a, err := newApp(c, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	waitFor(t, time.Second, func() bool { return a.Boots() == 1 })

	// healthy for several windows
	time.Sleep(300 * time.Millisecond)
	if a.Boots() != 1 || a.hw.sim.Resets() != 0 {
		t.Fatalf("healthy board rebooted: boots=%d resets=%d", a.Boots(), a.hw.sim.Resets())
	}

	// button press stops the gated worker
	a.input.(*trigger.SignalInput).Press()

	waitFor(t, 2*time.Second, func() bool { return a.Boots() == 2 })

	// the new boot starts with the gate enabled and stays up
	time.Sleep(300 * time.Millisecond)
	if a.Boots() != 2 || a.hw.sim.Resets() != 1 {
		t.Fatalf("unexpected boots=%d resets=%d", a.Boots(), a.hw.sim.Resets())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
}
