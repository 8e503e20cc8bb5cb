// internal/watchdog/sim/device.go
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tamzrod/liveness-supervisor/internal/resetcause"
	"github.com/tamzrod/liveness-supervisor/internal/watchdog"
)

// Config describes the simulated hardware.
type Config struct {
	// Slots is the number of timeout channels. Zero means 1.
	Slots int

	// CallbackSupported mirrors drivers (e.g. STM32 IWDG) that cannot call back.
	CallbackSupported bool

	// Resignals is how many extra times the expiry interrupt fires
	// before the reset completes.
	Resignals int

	// BootCause is latched into the reset-cause register at power-up.
	BootCause resetcause.Cause
}

// Device is an in-process watchdog timer plus the reset-cause register.
// Time only moves through Advance (tests) or Run (real clock).
type Device struct {
	mu  sync.Mutex
	cfg Config

	channels  []watchdog.TimeoutConfig
	armed     bool
	expired   bool
	remaining time.Duration
	sinceFeed time.Duration

	cause   uint32
	feeds   int
	resets  int
	onReset func()
}

// New powers up a simulated device.
func New(cfg Config) *Device {
	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}
	return &Device{cfg: cfg, cause: uint32(cfg.BootCause)}
}

// OnReset registers the hook invoked after every watchdog reset.
func (d *Device) OnReset(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onReset = fn
}

// ---- watchdog.Device ----

func (d *Device) InstallTimeout(cfg watchdog.TimeoutConfig) (watchdog.ChannelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.armed {
		return -1, &watchdog.InstallError{Reason: "device busy (already running)"}
	}
	if cfg.Callback != nil && !d.cfg.CallbackSupported {
		return -1, watchdog.ErrUnsupportedCallback
	}
	if cfg.Window.Max <= 0 || cfg.Window.Min > cfg.Window.Max {
		return -1, &watchdog.InstallError{Reason: fmt.Sprintf("invalid window %s", cfg.Window)}
	}
	if len(d.channels) >= d.cfg.Slots {
		return -1, &watchdog.InstallError{Reason: "no free channel"}
	}

	d.channels = append(d.channels, cfg)
	return watchdog.ChannelID(len(d.channels) - 1), nil
}

func (d *Device) Setup(_ watchdog.SetupOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.armed {
		return &watchdog.SetupError{Reason: "already running"}
	}
	if len(d.channels) == 0 {
		return &watchdog.SetupError{Reason: "no channel installed"}
	}

	d.armed = true
	d.remaining = d.maxLocked()
	d.sinceFeed = 0
	return nil
}

func (d *Device) Feed(ch watchdog.ChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.feeds++

	if int(ch) < 0 || int(ch) >= len(d.channels) {
		return fmt.Errorf("sim watchdog: unknown channel %d", ch)
	}
	if d.expired {
		// Accepted, but the reset is already committed.
		return nil
	}
	if !d.armed {
		return watchdog.ErrNotArmed
	}

	if lo := d.channels[ch].Window.Min; lo > 0 && d.sinceFeed < lo {
		// Early feed is a window violation: expire on the next tick.
		d.remaining = 0
		return nil
	}

	d.remaining = d.maxLocked()
	d.sinceFeed = 0
	return nil
}

func (d *Device) maxLocked() time.Duration {
	var limit time.Duration
	for i, c := range d.channels {
		if i == 0 || c.Window.Max < limit {
			limit = c.Window.Max
		}
	}
	return limit
}

// ---- clock ----

// Advance moves the countdown by dt. On expiry it raises the callback
// interrupt (1+Resignals times per channel) and then resets the device.
func (d *Device) Advance(dt time.Duration) {
	d.mu.Lock()
	if !d.armed || d.expired {
		d.mu.Unlock()
		return
	}

	d.remaining -= dt
	d.sinceFeed += dt
	if d.remaining > 0 {
		d.mu.Unlock()
		return
	}

	d.expired = true
	type irq struct {
		ch watchdog.ChannelID
		cb watchdog.ExpiryCallback
	}
	var irqs []irq
	for i, c := range d.channels {
		if c.Callback != nil {
			irqs = append(irqs, irq{ch: watchdog.ChannelID(i), cb: c.Callback})
		}
	}
	repeats := 1 + d.cfg.Resignals
	d.mu.Unlock()

	for n := 0; n < repeats; n++ {
		for _, q := range irqs {
			q.cb(q.ch)
		}
	}

	d.reset()
}

// Run advances the device in real time every tick until ctx ends.
func (d *Device) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Advance(tick)
		}
	}
}

func (d *Device) reset() {
	d.mu.Lock()
	d.cause |= uint32(resetcause.Watchdog)
	d.channels = nil
	d.armed = false
	d.expired = false
	d.remaining = 0
	d.sinceFeed = 0
	d.resets++
	hook := d.onReset
	d.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// ---- resetcause.Register ----

func (d *Device) ReadResetCause() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cause, nil
}

// ClearResetCause writes ones to clear, like RESETREAS.
func (d *Device) ClearResetCause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cause &^= resetcause.ClearAll
	return nil
}

// ---- inspection ----

// Feeds counts every Feed call, accepted or not.
func (d *Device) Feeds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.feeds
}

// Resets counts completed watchdog resets.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// Armed reports whether the countdown is running.
func (d *Device) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Remaining returns the time left before expiry.
func (d *Device) Remaining() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.remaining
}
