// internal/trigger/button.go
package trigger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/liveness-supervisor/internal/gate"
)

// Input abstracts the button level.
type Input interface {
	Pressed() (bool, error)
}

// Config is the minimal runtime config the button needs.
type Config struct {
	Poll     time.Duration
	Debounce time.Duration
}

// Button polls an Input and toggles the fault-injection gate on press.
// It is the only writer of the gate.
type Button struct {
	cfg   Config
	input Input
	gate  *gate.Gate
	log   *zap.SugaredLogger

	// OnToggle is called after every gate change.
	OnToggle func(enabled bool)
}

// New creates a button with immutable config.
func New(cfg Config, in Input, g *gate.Gate, log *zap.SugaredLogger) (*Button, error) {
	if in == nil {
		return nil, errors.New("trigger: input required")
	}
	if g == nil {
		return nil, errors.New("trigger: gate required")
	}
	if cfg.Poll <= 0 {
		return nil, errors.New("trigger: poll interval must be > 0")
	}
	if cfg.Debounce < 0 {
		return nil, errors.New("trigger: debounce must not be negative")
	}
	return &Button{cfg: cfg, input: in, gate: g, log: log}, nil
}

// PollOnce samples the input once and toggles the gate if pressed.
// It reports whether the gate changed.
func (b *Button) PollOnce() (bool, error) {
	pressed, err := b.input.Pressed()
	if err != nil {
		return false, err
	}
	if !pressed {
		return false, nil
	}

	if b.gate.Toggle() {
		b.log.Info("Resumed thread")
	} else {
		b.log.Info("Stopped thread")
	}

	if b.OnToggle != nil {
		b.OnToggle(b.gate.IsEnabled())
	}
	return true, nil
}

// Run polls until ctx is cancelled. After a press it waits the debounce
// interval before polling again. Read errors are logged and the loop goes on.
func (b *Button) Run(ctx context.Context) {
	b.log.Info("Button thread running")

	for {
		toggled, err := b.PollOnce()
		if err != nil {
			b.log.Warnf("button read failed: %v", err)
		}

		wait := b.cfg.Poll
		if toggled {
			wait += b.cfg.Debounce
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
