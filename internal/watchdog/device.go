// internal/watchdog/device.go
package watchdog

import (
	"fmt"
	"time"
)

// ChannelID identifies one installed timeout on a watchdog device.
type ChannelID int

// Window is the feed window. A feed earlier than Min or no feed within Max
// expires the watchdog.
type Window struct {
	Min time.Duration
	Max time.Duration
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.Min, w.Max)
}

// ExpiryCallback runs at interrupt priority when a channel expires.
// The device resets unconditionally afterwards.
type ExpiryCallback func(ch ChannelID)

// Flags select the recovery action taken by the device on expiry.
type Flags uint8

const (
	FlagResetSoC Flags = 1 << iota
	FlagResetCPUCore
)

// TimeoutConfig is one timeout installation request.
type TimeoutConfig struct {
	Window   Window
	Callback ExpiryCallback // nil = silent expiry
	Flags    Flags
}

// SetupOptions control the device once it starts counting.
type SetupOptions struct {
	PauseInSleep       bool
	PauseHaltedByDebug bool
}

// Device is the watchdog driver contract.
// Implementations must be safe to call from the expiry callback's context.
type Device interface {
	// InstallTimeout reserves a channel.
	// Returns ErrUnsupportedCallback if cfg.Callback is set and the hardware
	// cannot call back, or an *InstallError if no channel slot remains.
	InstallTimeout(cfg TimeoutConfig) (ChannelID, error)

	// Setup starts the countdown of every installed channel.
	Setup(opts SetupOptions) error

	// Feed restarts the countdown of ch.
	Feed(ch ChannelID) error
}

// Expiry is the terminal event posted by the expiry handler.
type Expiry struct {
	Channel ChannelID
	At      time.Time
}
