// internal/trigger/input.go
package trigger

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tamzrod/liveness-supervisor/internal/endpoint"
)

// ---------------------------------------------------------------------------
// Signal input
// ---------------------------------------------------------------------------

// SignalInput turns a process signal (SIGUSR1 by default) into a button press.
// A press is latched until the next poll reads it.
type SignalInput struct {
	sigs    []os.Signal
	pending atomic.Bool
}

func NewSignalInput(sigs ...os.Signal) *SignalInput {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGUSR1}
	}
	return &SignalInput{sigs: sigs}
}

// Listen latches presses until ctx is cancelled.
func (s *SignalInput) Listen(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, s.sigs...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			s.Press()
		}
	}
}

// Press latches one press.
func (s *SignalInput) Press() {
	s.pending.Store(true)
}

func (s *SignalInput) Pressed() (bool, error) {
	return s.pending.Swap(false), nil
}

// ---------------------------------------------------------------------------
// Modbus discrete input
// ---------------------------------------------------------------------------

// discreteReader is the subset of modbus.Client used by ModbusInput.
type discreteReader interface {
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
}

// ModbusInput reads the button level from one discrete input (FC 2).
type ModbusInput struct {
	mu   sync.Mutex
	cli  discreteReader
	addr uint16
}

type ModbusConfig struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
	Address  uint16
}

// NewModbusInput dials the button's endpoint through pool.
func NewModbusInput(pool *endpoint.Pool, cfg ModbusConfig) (*ModbusInput, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("trigger modbus: endpoint required")
	}

	cli, err := pool.Dial(endpoint.Config{
		Endpoint: cfg.Endpoint,
		UnitID:   cfg.UnitID,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("trigger modbus: %w", err)
	}

	return &ModbusInput{cli: cli, addr: cfg.Address}, nil
}

func (m *ModbusInput) Pressed() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.cli.ReadDiscreteInputs(m.addr, 1)
	if err != nil {
		return false, fmt.Errorf("trigger modbus: read discrete input %d: %w", m.addr, err)
	}
	if len(b) < 1 {
		return false, fmt.Errorf("trigger modbus: short read-bits payload")
	}
	return b[0]&0x01 != 0, nil
}
