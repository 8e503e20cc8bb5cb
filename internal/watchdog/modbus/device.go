// internal/watchdog/modbus/device.go
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tamzrod/liveness-supervisor/internal/endpoint"
	"github.com/tamzrod/liveness-supervisor/internal/resetcause"
	"github.com/tamzrod/liveness-supervisor/internal/watchdog"
)

// KickValue is written to the feed register to restart the countdown.
const KickValue uint16 = 0x5A5A

const (
	coilOn uint16 = 0xFF00
)

// client is the subset of modbus.Client used by the driver.
type client interface {
	WriteSingleRegister(address, value uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Registers is the register map of the external watchdog relay.
type Registers struct {
	Timeout    uint16 // holding register, window max in ms
	Enable     uint16 // coil
	Feed       uint16 // holding register, KickValue restarts the countdown
	ResetCause uint16 // holding register pair (hi, lo), write ones to clear
}

type Config struct {
	Endpoint  string
	UnitID    uint8
	Timeout   time.Duration
	Registers Registers
}

// Device drives an external watchdog relay over Modbus TCP.
// The relay has one channel and cannot call back into the host.
type Device struct {
	mu   sync.Mutex
	cli  client
	regs Registers

	installed bool
	armed     bool
}

var _ watchdog.Device = (*Device)(nil)
var _ resetcause.Register = (*Device)(nil)

// New dials the relay through pool. The pool owns the connection; the
// relay keeps counting after it closes.
func New(pool *endpoint.Pool, cfg Config) (*Device, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("watchdog modbus: endpoint required")
	}

	cli, err := pool.Dial(endpoint.Config{
		Endpoint: cfg.Endpoint,
		UnitID:   cfg.UnitID,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("watchdog modbus: %w", err)
	}

	return &Device{cli: cli, regs: cfg.Registers}, nil
}

// ---- watchdog.Device ----

func (d *Device) InstallTimeout(cfg watchdog.TimeoutConfig) (watchdog.ChannelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cfg.Callback != nil {
		return -1, watchdog.ErrUnsupportedCallback
	}
	if d.installed {
		return -1, &watchdog.InstallError{Reason: "no free channel"}
	}
	if cfg.Window.Min > 0 {
		return -1, &watchdog.InstallError{Reason: "window min not supported"}
	}

	ms := cfg.Window.Max.Milliseconds()
	if ms <= 0 || ms > 0xFFFF {
		return -1, &watchdog.InstallError{Reason: fmt.Sprintf("invalid window %s", cfg.Window)}
	}

	if _, err := d.cli.WriteSingleRegister(d.regs.Timeout, uint16(ms)); err != nil {
		return -1, &watchdog.InstallError{Reason: "write timeout register", Err: err}
	}

	d.installed = true
	return 0, nil
}

func (d *Device) Setup(_ watchdog.SetupOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.installed {
		return &watchdog.SetupError{Reason: "no channel installed"}
	}
	if d.armed {
		return &watchdog.SetupError{Reason: "already running"}
	}

	if _, err := d.cli.WriteSingleCoil(d.regs.Enable, coilOn); err != nil {
		return &watchdog.SetupError{Reason: "write enable coil", Err: err}
	}

	d.armed = true
	return nil
}

func (d *Device) Feed(ch watchdog.ChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch != 0 {
		return fmt.Errorf("watchdog modbus: unknown channel %d", ch)
	}
	if !d.armed {
		return watchdog.ErrNotArmed
	}

	if _, err := d.cli.WriteSingleRegister(d.regs.Feed, KickValue); err != nil {
		return fmt.Errorf("watchdog modbus: feed: %w", err)
	}
	return nil
}

// ---- resetcause.Register ----

func (d *Device) ReadResetCause() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.cli.ReadHoldingRegisters(d.regs.ResetCause, 2)
	if err != nil {
		return 0, fmt.Errorf("watchdog modbus: read reset cause: %w", err)
	}
	if len(b) < 4 {
		return 0, errors.New("watchdog modbus: short reset cause payload")
	}
	return binary.BigEndian.Uint32(b[:4]), nil
}

func (d *Device) ClearResetCause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b [4]byte
	binary.BigEndian.PutUint32(b[:], resetcause.ClearAll)

	if _, err := d.cli.WriteMultipleRegisters(d.regs.ResetCause, 2, b[:]); err != nil {
		return fmt.Errorf("watchdog modbus: clear reset cause: %w", err)
	}
	return nil
}
