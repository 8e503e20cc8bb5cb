// internal/supervisor/scenario_test.go
package supervisor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"

	"github.com/tamzrod/liveness-supervisor/internal/gate"
	"github.com/tamzrod/liveness-supervisor/internal/heartbeat"
	"github.com/tamzrod/liveness-supervisor/internal/output"
	"github.com/tamzrod/liveness-supervisor/internal/resetcause"
	"github.com/tamzrod/liveness-supervisor/internal/watchdog"
	"github.com/tamzrod/liveness-supervisor/internal/watchdog/sim"
	"github.com/tamzrod/liveness-supervisor/internal/worker"
)

const step = 50 * time.Millisecond

// board is the reference board on simulated time: three workers reporting
// every 50ms, blink1 gated, a 500ms watchdog polled every 50ms.
type board struct {
	t *testing.T

	dev     *sim.Device
	reg     *heartbeat.Registry
	gate    *gate.Gate
	workers []*worker.Worker
	sup     *Supervisor
	logs    *observer.ObservedLogs

	// late workers run after the drain in their slot, as a ticker
	// phase-shifted against the supervisor would.
	late    map[heartbeat.WorkerID]bool
	reports []int
	last    CycleResult

	now        time.Duration
	lastFeed   time.Duration
	expiredAt  time.Duration
	finalFeeds int
}

func newBoard(t *testing.T, hw sim.Config) *board {
	t.Helper()
	return bootBoard(t, sim.New(hw))
}

// bootBoard boots fresh software on dev, as after a reset.
func bootBoard(t *testing.T, dev *sim.Device) *board {
	t.Helper()

	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()

	reg, err := heartbeat.NewRegistry(3)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	g := gate.New(true)

	ws := []*worker.Worker{
		{ID: 0, Name: "blink0", Period: step, Registry: reg, Log: log,
			Workload: &worker.Blink{Out: output.NewLogOutput("led0", log), Every: 2}},
		{ID: 1, Name: "blink1", Period: step, Registry: reg, Log: log, Gate: g,
			Workload: &worker.Blink{Out: output.NewLogOutput("led1", log), Every: 16}},
		{ID: 2, Name: "uart_out", Period: step, Registry: reg, Log: log,
			Workload: &worker.Counter{Log: zap.NewNop().Sugar(), Every: 2}},
	}

	sup, err := New(Config{
		Cycle:    step,
		Window:   watchdog.Window{Max: 500 * time.Millisecond},
		Required: true,
		Callback: true,
	}, Deps{
		Registry:   reg,
		Device:     dev,
		ResetCause: dev,
		Gate:       g,
		Names:      worker.Names(ws),
		Log:        log,
	})
	if err != nil {
		t.Fatalf("supervisor: %v", err)
	}

	if err := sup.Boot(context.Background()); err != nil {
		t.Fatalf("boot: %v", err)
	}

	return &board{
		t: t, dev: dev, reg: reg, gate: g, workers: ws, sup: sup, logs: logs,
		late:      map[heartbeat.WorkerID]bool{},
		reports:   make([]int, len(ws)),
		expiredAt: -1,
	}
}

func (b *board) stepWorkers(late bool) {
	for i, w := range b.workers {
		if b.late[w.ID] == late && b.now%w.Period == 0 && w.Step() {
			b.reports[i]++
		}
	}
}

// tick runs one 50ms slice: due workers, one supervisor cycle, late
// workers, then the clock.
func (b *board) tick() {
	b.stepWorkers(false)

	b.last = b.sup.CheckOnce(context.Background())
	if b.last.Fed {
		b.lastFeed = b.now
	}

	b.stepWorkers(true)

	resets, feeds := b.dev.Resets(), b.dev.Feeds()
	b.dev.Advance(step)
	b.now += step

	if b.dev.Resets() > resets && b.expiredAt < 0 {
		b.expiredAt = b.now
		b.finalFeeds = b.dev.Feeds() - feeds
	}
}

func (b *board) run(d time.Duration) {
	for end := b.now + d; b.now < end; {
		b.tick()
	}
}

// ---- scenarios ----

func TestScenario_HealthyBoardNeverResets(t *testing.T) {
	b := newBoard(t, sim.Config{CallbackSupported: true})

	b.run(10 * time.Second)

	if b.dev.Resets() != 0 {
		t.Fatalf("healthy board reset %d times", b.dev.Resets())
	}
	if got := b.sup.Feeds(); got != 200 {
		t.Fatalf("expected a feed every cycle (200 in 10s), got %d", got)
	}
	if b.dev.Remaining() < 400*time.Millisecond {
		t.Fatalf("countdown ran low: %s", b.dev.Remaining())
	}
}

func TestScenario_PhaseShiftedWorkerStillFeeds(t *testing.T) {
	b := newBoard(t, sim.Config{CallbackSupported: true})
	b.late[2] = true // uart_out ticks after the drain

	b.run(10 * time.Second)

	if b.dev.Resets() != 0 {
		t.Fatalf("phase shift reset the board %d times", b.dev.Resets())
	}
	// only the very first drain precedes uart_out's first report
	if got := b.sup.Feeds(); got != 199 {
		t.Fatalf("expected 199 feeds in 10s, got %d", got)
	}
	if n := b.logs.FilterMessageSnippet("withholding watchdog feed for").Len(); n != 0 {
		t.Fatalf("phase shift raised %d starvation warnings", n)
	}
	if b.dev.Remaining() < 400*time.Millisecond {
		t.Fatalf("countdown ran low: %s", b.dev.Remaining())
	}
}

func TestScenario_GateIsolatesOnlyGatedWorker(t *testing.T) {
	b := newBoard(t, sim.Config{CallbackSupported: true})

	b.run(time.Second)
	before := append([]int(nil), b.reports...)

	b.gate.InjectLockup()
	for i := 0; i < 8; i++ {
		b.tick()
		if len(b.last.Missing) != 1 || b.last.Missing[0] != 1 {
			t.Fatalf("cycle %d: missing=%v, want only blink1", i, b.last.Missing)
		}
	}

	if b.reports[1] != before[1] {
		t.Fatalf("blink1 reported while gated: %d -> %d", before[1], b.reports[1])
	}
	for _, i := range []int{0, 2} {
		if got := b.reports[i] - before[i]; got != 8 {
			t.Fatalf("%s reported %d times in 8 cycles", b.workers[i].Name, got)
		}
	}
	if b.sup.Starved() != 8 || b.dev.Resets() != 0 {
		t.Fatalf("starved=%d resets=%d", b.sup.Starved(), b.dev.Resets())
	}
}

func TestScenario_LockupResetsWithinWindow(t *testing.T) {
	b := newBoard(t, sim.Config{CallbackSupported: true})

	b.run(time.Second)
	b.gate.InjectLockup()
	b.run(2 * time.Second)

	if b.dev.Resets() != 1 {
		t.Fatalf("expected one reset, got %d", b.dev.Resets())
	}
	if elapsed := b.expiredAt - b.lastFeed; elapsed > 500*time.Millisecond+step {
		t.Fatalf("reset %s after last feed, beyond window + cycle", elapsed)
	}
	if b.finalFeeds != 1 {
		t.Fatalf("expected exactly one final feed from the handler, got %d", b.finalFeeds)
	}
	if n := b.logs.FilterMessage("Handled things..ready to reset using watchdog").Len(); n != 1 {
		t.Fatalf("expected one expiry line, got %d", n)
	}
	if b.sup.State() != watchdog.StateExpired {
		t.Fatalf("unexpected adapter state %s", b.sup.State())
	}
}

func TestScenario_RepeatedInterruptHandledOnce(t *testing.T) {
	b := newBoard(t, sim.Config{CallbackSupported: true, Resignals: 3})

	b.run(time.Second)
	b.gate.InjectLockup()
	b.run(2 * time.Second)

	if b.finalFeeds != 1 {
		t.Fatalf("expected one final feed across 4 interrupts, got %d", b.finalFeeds)
	}
	if n := b.logs.FilterMessage("Handled things..ready to reset using watchdog").Len(); n != 1 {
		t.Fatalf("expected one expiry line, got %d", n)
	}
}

func TestScenario_ClearedBeforeTimeoutRecovers(t *testing.T) {
	b := newBoard(t, sim.Config{CallbackSupported: true})

	b.run(time.Second)
	b.gate.InjectLockup()
	b.run(200 * time.Millisecond)
	b.gate.ClearLockup()
	b.run(5 * time.Second)

	if b.dev.Resets() != 0 {
		t.Fatalf("cleared lockup must not reset, got %d resets", b.dev.Resets())
	}
	if b.sup.State() != watchdog.StateArmed {
		t.Fatalf("unexpected adapter state %s", b.sup.State())
	}
}

func TestScenario_NoCallbackStillResets(t *testing.T) {
	b := newBoard(t, sim.Config{CallbackSupported: false})

	if b.sup.HasCallback() {
		t.Fatalf("channel must fall back to no callback")
	}
	if b.logs.FilterMessageSnippet("installing without callback").Len() != 1 {
		t.Fatalf("missing fallback line")
	}

	b.run(time.Second)
	b.gate.InjectLockup()
	b.run(2 * time.Second)

	if b.dev.Resets() != 1 {
		t.Fatalf("expected silent reset, got %d resets", b.dev.Resets())
	}
	if b.logs.FilterMessage("Handled things..ready to reset using watchdog").Len() != 0 {
		t.Fatalf("no handler must run without callback")
	}
	if b.finalFeeds != 0 {
		t.Fatalf("no final feed without callback, got %d", b.finalFeeds)
	}
}

func TestScenario_BootReportsEveryCause(t *testing.T) {
	b := newBoard(t, sim.Config{
		CallbackSupported: true,
		BootCause:         resetcause.PinReset | resetcause.Watchdog,
	})

	for _, line := range []string{"Reset reasons:", "- reset from pin", "- reset from watchdog"} {
		if b.logs.FilterMessage(line).Len() != 1 {
			t.Fatalf("missing line %q", line)
		}
	}
	if c := b.sup.ResetCause(); !c.Has(resetcause.PinReset) || !c.Has(resetcause.Watchdog) {
		t.Fatalf("unexpected cause %#x", uint32(c))
	}
	if raw, _ := b.dev.ReadResetCause(); raw != 0 {
		t.Fatalf("register not cleared after boot: %#x", raw)
	}
}

func TestScenario_RebootAfterResetReportsWatchdog(t *testing.T) {
	b := newBoard(t, sim.Config{CallbackSupported: true})

	b.run(time.Second)
	b.gate.InjectLockup()
	b.run(2 * time.Second)

	if b.dev.Resets() != 1 {
		t.Fatalf("expected one reset, got %d", b.dev.Resets())
	}

	next := bootBoard(t, b.dev)
	if !next.sup.ResetCause().Has(resetcause.Watchdog) {
		t.Fatalf("rebooted supervisor must see the watchdog cause")
	}
	if next.logs.FilterMessage("- reset from watchdog").Len() != 1 {
		t.Fatalf("missing watchdog cause line")
	}

	// fresh boot, gate enabled again
	next.run(3 * time.Second)
	if b.dev.Resets() != 1 {
		t.Fatalf("rebooted board must stay healthy, got %d resets", b.dev.Resets())
	}
}
