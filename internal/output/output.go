// internal/output/output.go
package output

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	cfg "github.com/tamzrod/liveness-supervisor/internal/config"
	"github.com/tamzrod/liveness-supervisor/internal/endpoint"
)

// Output is a single binary output pin (an LED on the reference board).
type Output interface {
	Set(on bool) error
}

// Bindings maps a board-level output name to its driver.
// A missing binding is an error for the component asking for it.
type Bindings map[string]Output

// Lookup returns the output bound to name.
func (b Bindings) Lookup(name string) (Output, error) {
	o, ok := b[name]
	if !ok {
		return nil, fmt.Errorf("output: no binding for %q", name)
	}
	return o, nil
}

// ---------------------------------------------------------------------------
// Log output
// ---------------------------------------------------------------------------

// LogOutput records pin changes on the log sink.
type LogOutput struct {
	name string
	log  *zap.SugaredLogger

	mu  sync.Mutex
	on  bool
	set int
}

func NewLogOutput(name string, log *zap.SugaredLogger) *LogOutput {
	return &LogOutput{name: name, log: log}
}

func (o *LogOutput) Set(on bool) error {
	o.mu.Lock()
	o.on = on
	o.set++
	o.mu.Unlock()

	o.log.Debugw("output set", "output", o.name, "on", on)
	return nil
}

// State returns the last value written and the number of writes.
func (o *LogOutput) State() (bool, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on, o.set
}

// ---------------------------------------------------------------------------
// Modbus coil output
// ---------------------------------------------------------------------------

// coilWriter is the subset of modbus.Client used by CoilOutput.
type coilWriter interface {
	WriteSingleCoil(address, value uint16) ([]byte, error)
}

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// CoilOutput drives one coil on a Modbus TCP device (FC 5).
type CoilOutput struct {
	mu   sync.Mutex
	cli  coilWriter
	coil uint16
}

func (o *CoilOutput) Set(on bool) error {
	v := coilOff
	if on {
		v = coilOn
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.cli.WriteSingleCoil(o.coil, v); err != nil {
		return fmt.Errorf("output: coil %d: %w", o.coil, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Build binds every configured output. Modbus coils share the pool's
// connection to their endpoint.
func Build(outs []cfg.OutputConfig, pool *endpoint.Pool, log *zap.SugaredLogger) (Bindings, error) {
	b := make(Bindings, len(outs))

	for _, o := range outs {
		switch o.Kind {
		case cfg.OutputModbus:
			cli, err := pool.Dial(endpoint.Config{
				Endpoint: o.Endpoint,
				UnitID:   o.UnitID,
				Timeout:  time.Duration(o.TimeoutMs) * time.Millisecond,
			})
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", o.Name, err)
			}
			b[o.Name] = &CoilOutput{cli: cli, coil: o.Coil}

		default:
			b[o.Name] = NewLogOutput(o.Name, log)
		}
	}

	return b, nil
}
