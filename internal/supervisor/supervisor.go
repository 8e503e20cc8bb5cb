// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/liveness-supervisor/internal/gate"
	"github.com/tamzrod/liveness-supervisor/internal/heartbeat"
	"github.com/tamzrod/liveness-supervisor/internal/logger"
	"github.com/tamzrod/liveness-supervisor/internal/metrics"
	"github.com/tamzrod/liveness-supervisor/internal/resetcause"
	"github.com/tamzrod/liveness-supervisor/internal/status"
	"github.com/tamzrod/liveness-supervisor/internal/watchdog"
	"github.com/tamzrod/liveness-supervisor/internal/writer"
)

// ErrNoSafetyNet is returned by Boot when the watchdog could not be
// installed or armed and the supervisor is configured as required.
var ErrNoSafetyNet = errors.New("supervisor: watchdog safety net unavailable")

// Config is the scheduling contract of the supervisor.
type Config struct {
	Cycle    time.Duration
	Window   watchdog.Window
	Required bool

	// Callback requests an expiry callback from the device.
	Callback bool
}

// Deps are the collaborators of one supervisor. Registry, Device and
// ResetCause are required; the rest are optional.
type Deps struct {
	Registry   *heartbeat.Registry
	Device     watchdog.Device
	ResetCause resetcause.Register

	Gate    *gate.Gate
	Names   []string // worker names indexed by WorkerID
	Status  writer.StatusWriter
	Metrics *metrics.Metrics
	Log     *zap.SugaredLogger
}

// CycleResult is the outcome of one polling cycle.
type CycleResult struct {
	Fed        bool // the device accepted a feed
	FeedFailed bool // all reported but the device rejected the feed
	Missing    []heartbeat.WorkerID
	Expired    bool // the expiry event was consumed in this cycle
	Skipped    bool // no drain: not armed, degraded or already expired
}

// Supervisor polls the heartbeat registry and feeds the watchdog only
// when every worker reported since the previous cycle.
//
// CheckOnce and Run are owned by a single goroutine. The expiry handler
// runs on the device's interrupt context and only talks to it through
// the expiries channel.
type Supervisor struct {
	cfg  Config
	deps Deps
	log  *zap.SugaredLogger

	adapter *watchdog.Adapter
	ch      watchdog.ChannelID

	handled  atomic.Bool
	expiries chan watchdog.Expiry

	// starved cycles before the streak is logged as a warning
	warnAfter int

	booted   bool
	degraded bool
	expired  bool
	cause    resetcause.Cause
	starved  int
	feeds    uint64
	missing  []heartbeat.WorkerID
}

// New validates cfg and wires the adapter around deps.Device.
func New(cfg Config, deps Deps) (*Supervisor, error) {
	if cfg.Cycle <= 0 {
		return nil, errors.New("supervisor: cycle must be > 0")
	}
	if cfg.Window.Max < 2*cfg.Cycle {
		return nil, fmt.Errorf("supervisor: window max %s must be at least twice the cycle %s", cfg.Window.Max, cfg.Cycle)
	}
	if cfg.Window.Min < 0 || cfg.Window.Min > cfg.Cycle {
		return nil, fmt.Errorf("supervisor: window min %s must be within one cycle %s", cfg.Window.Min, cfg.Cycle)
	}
	if deps.Registry == nil {
		return nil, errors.New("supervisor: registry required")
	}
	if deps.Device == nil {
		return nil, errors.New("supervisor: watchdog device required")
	}
	if deps.ResetCause == nil {
		return nil, errors.New("supervisor: reset cause register required")
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}

	return &Supervisor{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Log,
		adapter:  watchdog.NewAdapter(deps.Device, deps.Log.Named(logger.ComponentWatchdog)),
		ch:       -1,
		expiries: make(chan watchdog.Expiry, 1),

		warnAfter: max(2, int(cfg.Window.Max/(2*cfg.Cycle))),
	}, nil
}

// ---------------------------------------------------------------------------
// Boot
// ---------------------------------------------------------------------------

// Boot reports and clears the reset cause, then installs and arms the
// watchdog. It may be called once.
//
// When the watchdog cannot be installed or armed, Boot returns an error
// wrapping ErrNoSafetyNet if the supervisor is required. Otherwise it
// returns nil and the supervisor stays degraded: it never feeds.
func (s *Supervisor) Boot(ctx context.Context) error {
	if s.booted {
		return errors.New("supervisor: already booted")
	}
	s.booted = true

	cause, err := resetcause.Report(s.deps.ResetCause, s.log.Named(logger.ComponentResetCause))
	if err != nil {
		s.log.Warnf("boot diagnostics incomplete: %v", err)
	}
	s.cause = cause
	s.deps.Metrics.Boot(resetcause.Classify(cause))
	s.deps.Metrics.Gate(s.gateEnabled())

	var cb watchdog.ExpiryCallback
	if s.cfg.Callback {
		cb = s.onExpiry
	}

	ch, err := s.adapter.Install(ctx, s.cfg.Window, cb)
	if err != nil {
		s.log.Errorf("Watchdog install error: %v", err)
		return s.noSafetyNet(err)
	}

	if err := s.adapter.Arm(ctx, ch); err != nil {
		s.log.Errorf("Watchdog setup error: %v", err)
		return s.noSafetyNet(err)
	}
	s.ch = ch

	s.deps.Metrics.Armed()
	s.log.Info("Watchdog thread started")
	s.publish(status.HealthUnknown)
	return nil
}

func (s *Supervisor) noSafetyNet(err error) error {
	if s.cfg.Required {
		return fmt.Errorf("%w: %w", ErrNoSafetyNet, err)
	}
	s.degraded = true
	s.publish(status.HealthDegraded)
	return nil
}

// ---------------------------------------------------------------------------
// Cycle
// ---------------------------------------------------------------------------

// CheckOnce performs exactly one polling cycle.
// All-or-nothing: one missing worker withholds the feed for the whole cycle.
// It never resets the device itself.
func (s *Supervisor) CheckOnce(ctx context.Context) CycleResult {
	select {
	case e := <-s.expiries:
		s.adapter.MarkExpired(ctx)
		s.expired = true
		s.deps.Metrics.Expired()
		s.log.Debugf("watchdog channel %d expired at %s", e.Channel, e.At.Format(time.RFC3339Nano))
		s.publish(status.HealthExpired)
		return CycleResult{Expired: true}
	default:
	}

	if s.expired || s.degraded || s.ch < 0 {
		return CycleResult{Skipped: true}
	}

	v := s.deps.Registry.Drain()
	s.missing = v.Missing

	res := CycleResult{Missing: v.Missing}

	if v.AllReported {
		s.adapter.Feed(ctx, s.ch)
		res.Fed = s.adapter.LastFeedOK()
		res.FeedFailed = !res.Fed
	}

	switch {
	case res.Fed:
		s.feeds++
		if s.starved >= s.warnAfter {
			s.log.Infof("all workers reporting again after %d starved cycles", s.starved)
		}
		s.starved = 0
	case res.FeedFailed:
		// the device kept counting down; the adapter already logged why
		s.starved++
		s.deps.Metrics.FeedFailed()
	default:
		s.starved++
		// Ticker jitter can starve a single cycle.
		if s.starved == s.warnAfter {
			s.log.Warnf("withholding watchdog feed for %d cycles, missing: %s", s.starved, s.namesOf(v.Missing))
		} else {
			s.log.Debugf("withholding watchdog feed, missing: %s", s.namesOf(v.Missing))
		}
	}

	s.deps.Metrics.Cycle(res.Fed, s.nameList(v.Missing))

	health := status.HealthFeeding
	if !res.Fed {
		health = status.HealthStarving
	}
	s.publish(health)

	return res
}

// Run boots the supervisor and then polls every Cycle until ctx is cancelled.
// A degraded supervisor returns right after boot.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Boot(ctx); err != nil {
		return err
	}
	if s.degraded {
		s.log.Warn("watchdog unavailable, liveness supervision disabled")
		return nil
	}

	ticker := time.NewTicker(s.cfg.Cycle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.CheckOnce(ctx)
		}
	}
}

// ---------------------------------------------------------------------------
// Expiry
// ---------------------------------------------------------------------------

// onExpiry runs on the device's interrupt context. The first invocation
// issues the final feed, logs once and posts the terminal event; every
// later invocation returns without side effects.
func (s *Supervisor) onExpiry(ch watchdog.ChannelID) {
	if !s.handled.CompareAndSwap(false, true) {
		return
	}

	if err := s.adapter.FinalFeed(ch); err != nil {
		s.log.Warnf("final feed failed: %v", err)
	}

	s.log.Info("Handled things..ready to reset using watchdog")

	select {
	case s.expiries <- watchdog.Expiry{Channel: ch, At: time.Now()}:
	default:
	}
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

func (s *Supervisor) publish(health uint16) {
	if s.deps.Status == nil {
		return
	}

	idx := make([]int, len(s.missing))
	for i, id := range s.missing {
		idx[i] = int(id)
	}

	snap := status.Snapshot{
		Health:        health,
		MissingMask:   status.MaskOf(idx),
		CyclesStarved: saturate16(s.starved),
		FeedCount:     uint16(s.feeds),
		ResetCause:    uint32(s.cause),
	}
	if s.gateEnabled() {
		snap.GateEnabled = 1
	}

	if err := s.deps.Status.WriteStatus(snap); err != nil {
		s.deps.Metrics.StatusWriteFailed()
		s.log.Named(logger.ComponentStatus).Debugf("status write failed: %v", err)
	}
}

func (s *Supervisor) gateEnabled() bool {
	return s.deps.Gate == nil || s.deps.Gate.IsEnabled()
}

func (s *Supervisor) nameList(ids []heartbeat.WorkerID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if int(id) < len(s.deps.Names) {
			out[i] = s.deps.Names[id]
		} else {
			out[i] = id.String()
		}
	}
	return out
}

func (s *Supervisor) namesOf(ids []heartbeat.WorkerID) string {
	return strings.Join(s.nameList(ids), ", ")
}

func saturate16(n int) uint16 {
	if n > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(n)
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// State returns the watchdog adapter state.
func (s *Supervisor) State() string { return s.adapter.State() }

// HasCallback reports whether the installed channel calls back on expiry.
func (s *Supervisor) HasCallback() bool { return s.adapter.HasCallback() }

// Degraded reports whether the supervisor runs without a watchdog.
func (s *Supervisor) Degraded() bool { return s.degraded }

// ResetCause returns the cause reported at boot.
func (s *Supervisor) ResetCause() resetcause.Cause { return s.cause }

// Feeds returns the number of feeds issued by the polling cycle.
func (s *Supervisor) Feeds() uint64 { return s.feeds }

// Starved returns the number of consecutive starved cycles.
func (s *Supervisor) Starved() int { return s.starved }
