// cmd/supervisor/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/liveness-supervisor/internal/config"
	"github.com/tamzrod/liveness-supervisor/internal/endpoint"
	"github.com/tamzrod/liveness-supervisor/internal/gate"
	"github.com/tamzrod/liveness-supervisor/internal/heartbeat"
	"github.com/tamzrod/liveness-supervisor/internal/logger"
	"github.com/tamzrod/liveness-supervisor/internal/metrics"
	"github.com/tamzrod/liveness-supervisor/internal/output"
	"github.com/tamzrod/liveness-supervisor/internal/resetcause"
	"github.com/tamzrod/liveness-supervisor/internal/supervisor"
	"github.com/tamzrod/liveness-supervisor/internal/trigger"
	"github.com/tamzrod/liveness-supervisor/internal/watchdog"
	wdmodbus "github.com/tamzrod/liveness-supervisor/internal/watchdog/modbus"
	"github.com/tamzrod/liveness-supervisor/internal/watchdog/sim"
	"github.com/tamzrod/liveness-supervisor/internal/worker"
	"github.com/tamzrod/liveness-supervisor/internal/writer"
)

// simTick is the resolution of the simulated watchdog clock.
const simTick = 10 * time.Millisecond

// ---------------------------------------------------------------------------
// Hardware
// ---------------------------------------------------------------------------

// hardware is the device-level state that survives a reset.
type hardware struct {
	dev   watchdog.Device
	cause resetcause.Register
	sim   *sim.Device // nil unless driver=sim
}

func openHardware(c *config.Config, pool *endpoint.Pool) (*hardware, error) {
	w := c.Watchdog

	switch w.Driver {
	case config.DriverModbus:
		d, err := wdmodbus.New(pool, wdmodbus.Config{
			Endpoint: w.Endpoint,
			UnitID:   w.UnitID,
			Timeout:  time.Duration(w.TimeoutMs) * time.Millisecond,
			Registers: wdmodbus.Registers{
				Timeout:    w.Registers.Timeout,
				Enable:     w.Registers.Enable,
				Feed:       w.Registers.Feed,
				ResetCause: w.Registers.ResetCause,
			},
		})
		if err != nil {
			return nil, err
		}
		return &hardware{dev: d, cause: d}, nil

	default:
		d := sim.New(sim.Config{
			Slots:             w.Slots,
			CallbackSupported: *w.CallbackSupported,
			Resignals:         w.Resignals,
			BootCause:         resetcause.Cause(w.BootCause),
		})
		return &hardware{dev: d, cause: d, sim: d}, nil
	}
}

// ---------------------------------------------------------------------------
// App
// ---------------------------------------------------------------------------

// app owns everything that outlives a single boot: hardware, outputs,
// the trigger input, the status endpoint and the metrics registry.
// Every Modbus component shares the app's endpoint pool.
type app struct {
	cfg *config.Config
	log *zap.SugaredLogger

	pool    *endpoint.Pool
	hw      *hardware
	outs    output.Bindings
	input   trigger.Input
	status  writer.StatusWriter
	reg     *prometheus.Registry
	metrics *metrics.Metrics

	closers []func() error
	boots   atomic.Int64
}

func newApp(c *config.Config, log *zap.SugaredLogger) (*app, error) {
	a := &app{cfg: c, log: log, reg: prometheus.NewRegistry(), pool: endpoint.NewPool()}
	a.metrics = metrics.New(a.reg)
	a.closers = append(a.closers, a.pool.Close)

	hw, err := openHardware(c, a.pool)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("watchdog device: %w", err)
	}
	a.hw = hw

	outs, err := output.Build(c.Outputs, a.pool, log.Named(logger.ComponentHardware))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.outs = outs

	if t := c.Trigger; t != nil {
		switch t.Input {
		case config.InputModbus:
			mi, err := trigger.NewModbusInput(a.pool, trigger.ModbusConfig{
				Endpoint: t.Endpoint,
				UnitID:   t.UnitID,
				Timeout:  time.Duration(t.TimeoutMs) * time.Millisecond,
				Address:  t.Address,
			})
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("trigger input: %w", err)
			}
			a.input = mi
		default:
			a.input = trigger.NewSignalInput()
		}
	}

	if plan := writer.BuildStatusPlan(c); plan != nil {
		sw, _, err := writer.BuildStatusWriter(plan, a.pool, c.StatusMemory.TimeoutMs)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("status writer: %w", err)
		}
		a.status = sw
	}

	return a, nil
}

// Close releases every connection opened by newApp.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Debugf("close: %v", err)
		}
	}
	a.closers = nil
}

// Boots returns the number of boots started so far.
func (a *app) Boots() int64 { return a.boots.Load() }

// run starts the long-lived services and the boot loop.
// It returns when ctx is cancelled or a boot fails.
func (a *app) run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	if si, ok := a.input.(*trigger.SignalInput); ok {
		eg.Go(func() error {
			si.Listen(ctx)
			return nil
		})
	}

	if addr := a.cfg.Metrics.Listen; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metrics.Handler(a.reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			a.log.Named(logger.ComponentMetrics).Infof("metrics listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		return a.bootLoop(ctx)
	})

	return eg.Wait()
}

// bootLoop boots the application again after every simulated watchdog reset.
func (a *app) bootLoop(ctx context.Context) error {
	for {
		bootCtx, cancel := context.WithCancelCause(ctx)
		if a.hw.sim != nil {
			a.hw.sim.OnReset(func() { cancel(watchdog.ErrDeviceReset) })
		}

		err := a.boot(bootCtx)
		reset := watchdog.IsDeviceReset(bootCtx)
		cancel(nil)

		switch {
		case err != nil:
			return err
		case ctx.Err() != nil:
			return nil
		case !reset:
			// every boot goroutine returned on its own
			<-ctx.Done()
			return nil
		}

		a.log.Warn("device reset by watchdog, rebooting")
	}
}

// boot runs one boot until ctx ends. Software state (registry, gate,
// workers, supervisor) is created fresh, as after a power cycle.
func (a *app) boot(ctx context.Context) error {
	n := a.boots.Add(1)
	log := a.log.With("boot", n, "boot_id", uuid.NewString())

	c := a.cfg

	reg, err := heartbeat.NewRegistry(len(c.Workers))
	if err != nil {
		return err
	}
	g := gate.New(true)

	ws, err := worker.Build(c.Workers, reg, g, a.outs, log.Named(logger.ComponentWorker))
	if err != nil {
		return err
	}

	sup, err := supervisor.New(supervisor.Config{
		Cycle: time.Duration(c.Supervisor.CycleMs) * time.Millisecond,
		Window: watchdog.Window{
			Min: time.Duration(c.Supervisor.WindowMinMs) * time.Millisecond,
			Max: time.Duration(c.Supervisor.WindowMaxMs) * time.Millisecond,
		},
		Required: *c.Supervisor.Required,
		Callback: *c.Watchdog.Callback,
	}, supervisor.Deps{
		Registry:   reg,
		Device:     a.hw.dev,
		ResetCause: a.hw.cause,
		Gate:       g,
		Names:      worker.Names(ws),
		Status:     a.status,
		Metrics:    a.metrics,
		Log:        log.Named(logger.ComponentSupervisor),
	})
	if err != nil {
		return err
	}

	var btn *trigger.Button
	if a.input != nil {
		btn, err = trigger.New(trigger.Config{
			Poll:     time.Duration(c.Trigger.PollMs) * time.Millisecond,
			Debounce: time.Duration(c.Trigger.DebounceMs) * time.Millisecond,
		}, a.input, g, log.Named(logger.ComponentTrigger))
		if err != nil {
			return err
		}
		btn.OnToggle = a.metrics.Gate
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return sup.Run(ctx)
	})

	for _, w := range ws {
		w := w
		eg.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}

	if btn != nil {
		eg.Go(func() error {
			btn.Run(ctx)
			return nil
		})
	}

	if a.hw.sim != nil {
		eg.Go(func() error {
			a.hw.sim.Run(ctx, simTick)
			return nil
		})
	}

	return eg.Wait()
}
