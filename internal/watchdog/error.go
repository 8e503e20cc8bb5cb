// internal/watchdog/error.go
package watchdog

import (
	"context"
	"errors"
)

// ErrUnsupportedCallback is returned by a driver that cannot invoke a callback on expiry.
var ErrUnsupportedCallback = errors.New("watchdog: expiry callback not supported")

// ErrNotArmed is returned when feeding a channel that is not counting.
var ErrNotArmed = errors.New("watchdog: channel not armed")

// ErrDeviceReset is the cancel cause of a boot context ended by a watchdog reset.
var ErrDeviceReset = errors.New("watchdog: device reset")

// InstallError indicates a timeout could not be installed.
type InstallError struct {
	Reason string
	Err    error
}

func (e *InstallError) Error() string {
	if e.Err != nil {
		return "watchdog install: " + e.Reason + ": " + e.Err.Error()
	}
	return "watchdog install: " + e.Reason
}

func (e *InstallError) Unwrap() error { return e.Err }

// SetupError indicates the device could not start counting.
type SetupError struct {
	Reason string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return "watchdog setup: " + e.Reason + ": " + e.Err.Error()
	}
	return "watchdog setup: " + e.Reason
}

func (e *SetupError) Unwrap() error { return e.Err }

// IsDeviceReset reports whether ctx was cancelled by a watchdog reset.
func IsDeviceReset(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrDeviceReset)
}
