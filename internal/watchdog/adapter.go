// internal/watchdog/adapter.go
package watchdog

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Adapter states.
const (
	StateUninstalled = "uninstalled"
	StateInstalled   = "installed"
	StateArmed       = "armed"
	StateExpired     = "expired"
)

// Adapter events.
const (
	EventInstall = "install"
	EventArm     = "arm"
	EventFeed    = "feed"
	EventExpire  = "expire"
)

// Adapter drives one watchdog channel through
// uninstalled -> installed -> armed -> {armed (feed) | expired}.
//
// It is owned by the supervisor goroutine. Only FinalFeed may be called
// from the expiry callback.
type Adapter struct {
	dev Device
	log *zap.SugaredLogger
	fsm *fsm.FSM

	ch          ChannelID
	window      Window
	hasCallback bool
	lastFeedOK  bool
}

// NewAdapter wraps dev. The adapter starts uninstalled.
func NewAdapter(dev Device, log *zap.SugaredLogger) *Adapter {
	a := &Adapter{dev: dev, log: log, ch: -1}

	a.fsm = fsm.NewFSM(
		StateUninstalled,
		fsm.Events{
			{Name: EventInstall, Src: []string{StateUninstalled}, Dst: StateInstalled},
			{Name: EventArm, Src: []string{StateInstalled}, Dst: StateArmed},
			{Name: EventFeed, Src: []string{StateArmed}, Dst: StateArmed},
			{Name: EventExpire, Src: []string{StateArmed}, Dst: StateExpired},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				a.log.Debugf("watchdog %s -> %s (%s)", e.Src, e.Dst, e.Event)
			},
		},
	)

	return a
}

// State returns the current adapter state.
func (a *Adapter) State() string {
	return a.fsm.Current()
}

// Window returns the installed window.
func (a *Adapter) Window() Window {
	return a.window
}

// HasCallback reports whether the installed channel calls back on expiry.
func (a *Adapter) HasCallback() bool {
	return a.hasCallback
}

// Install reserves one channel with the given window.
//
// If the driver cannot call back on expiry, the install is retried once
// without a callback. That fallback is not an error.
func (a *Adapter) Install(ctx context.Context, w Window, cb ExpiryCallback) (ChannelID, error) {
	if w.Max <= 0 || w.Min < 0 || w.Min > w.Max {
		return -1, &InstallError{Reason: fmt.Sprintf("invalid window %s", w)}
	}
	if !a.fsm.Can(EventInstall) {
		return -1, &InstallError{Reason: "channel already installed (state=" + a.State() + ")"}
	}

	cfg := TimeoutConfig{Window: w, Callback: cb, Flags: FlagResetSoC}

	ch, err := a.dev.InstallTimeout(cfg)
	if errors.Is(err, ErrUnsupportedCallback) && cb != nil {
		a.log.Warn("watchdog device cannot call back on expiry, installing without callback")
		cfg.Callback = nil
		ch, err = a.dev.InstallTimeout(cfg)
	}
	if err != nil {
		var ie *InstallError
		if errors.As(err, &ie) {
			return -1, err
		}
		return -1, &InstallError{Reason: "driver", Err: err}
	}

	if err := a.fsm.Event(ctx, EventInstall); err != nil {
		return -1, &InstallError{Reason: "state", Err: err}
	}

	a.ch = ch
	a.window = w
	a.hasCallback = cfg.Callback != nil

	a.log.Infof("WDT timeout = %dms", w.Max.Milliseconds())
	return ch, nil
}

// Arm starts the countdown of ch.
func (a *Adapter) Arm(ctx context.Context, ch ChannelID) error {
	if ch != a.ch {
		return &SetupError{Reason: fmt.Sprintf("unknown channel %d", ch)}
	}
	if !a.fsm.Can(EventArm) {
		return &SetupError{Reason: "cannot arm in state " + a.State()}
	}

	if err := a.dev.Setup(SetupOptions{}); err != nil {
		var se *SetupError
		if errors.As(err, &se) {
			return err
		}
		return &SetupError{Reason: "driver", Err: err}
	}

	if err := a.fsm.Event(ctx, EventArm); err != nil {
		return &SetupError{Reason: "state", Err: err}
	}
	return nil
}

// Feed restarts the countdown. Ignored unless armed.
// LastFeedOK reports whether the device accepted it.
func (a *Adapter) Feed(ctx context.Context, ch ChannelID) {
	a.lastFeedOK = false

	if a.State() != StateArmed {
		a.log.Debugf("feed ignored in state %s", a.State())
		return
	}

	if err := a.dev.Feed(ch); err != nil {
		a.log.Warnf("watchdog feed failed (channel=%d): %v", ch, err)
		return
	}
	a.lastFeedOK = true

	// armed -> armed always reports NoTransitionError.
	err := a.fsm.Event(ctx, EventFeed)
	var nt fsm.NoTransitionError
	if err != nil && !errors.As(err, &nt) {
		a.log.Debugf("feed transition: %v", err)
	}
}

// LastFeedOK is true when the most recent Feed reached the device.
func (a *Adapter) LastFeedOK() bool { return a.lastFeedOK }

// FinalFeed is the single feed the expiry handler may issue.
// It bypasses the state machine and only touches the device.
func (a *Adapter) FinalFeed(ch ChannelID) error {
	return a.dev.Feed(ch)
}

// MarkExpired records the terminal expiry event.
func (a *Adapter) MarkExpired(ctx context.Context) {
	if err := a.fsm.Event(ctx, EventExpire); err != nil {
		a.log.Debugf("expire transition: %v", err)
	}
}
