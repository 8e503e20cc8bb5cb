// internal/config/validate.go
package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values are checked as the defaults Normalize will apply.
func Validate(cfg *Config) error {
	if err := validateSupervisor(cfg.Supervisor); err != nil {
		return err
	}
	if err := validateWatchdog(cfg.Watchdog); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// OUTPUTS
	// ------------------------------------------------------------

	outputs := make(map[string]struct{}, len(cfg.Outputs))
	for _, o := range cfg.Outputs {
		if o.Name == "" {
			return fmt.Errorf("outputs: name is required")
		}
		if _, dup := outputs[o.Name]; dup {
			return fmt.Errorf("outputs: duplicate name %q", o.Name)
		}
		outputs[o.Name] = struct{}{}

		switch o.Kind {
		case "", OutputLog:
		case OutputModbus:
			if o.Endpoint == "" {
				return fmt.Errorf("output %q: modbus output requires endpoint", o.Name)
			}
		default:
			return fmt.Errorf("output %q: unknown kind %q", o.Name, o.Kind)
		}
	}

	// ------------------------------------------------------------
	// WORKERS
	// ------------------------------------------------------------

	names := make(map[string]struct{}, len(cfg.Workers))
	gated := ""
	cycle := orDefault(cfg.Supervisor.CycleMs, DefaultCycleMs)

	for _, w := range cfg.Workers {
		if w.Name == "" {
			return fmt.Errorf("workers: name is required")
		}
		if _, dup := names[w.Name]; dup {
			return fmt.Errorf("workers: duplicate name %q", w.Name)
		}
		names[w.Name] = struct{}{}

		if w.PeriodMs < 0 || w.ToggleEvery < 0 {
			return fmt.Errorf("worker %q: period_ms and toggle_every must not be negative", w.Name)
		}
		// Flags are drained every cycle; a slower worker starves the watchdog.
		if w.PeriodMs > cycle {
			return fmt.Errorf(
				"worker %q: period_ms=%d must not exceed cycle_ms=%d",
				w.Name,
				w.PeriodMs,
				cycle,
			)
		}

		switch w.Workload {
		case "", WorkloadBlink:
			if w.Output == "" {
				return fmt.Errorf("worker %q: blink workload requires an output", w.Name)
			}
		case WorkloadCounter:
		default:
			return fmt.Errorf("worker %q: unknown workload %q", w.Name, w.Workload)
		}

		if w.Output != "" {
			if _, ok := outputs[w.Output]; !ok {
				return fmt.Errorf("worker %q: output %q is not bound", w.Name, w.Output)
			}
		}

		if w.Gated {
			if gated != "" {
				return fmt.Errorf("workers: only one gated worker allowed (%q and %q)", gated, w.Name)
			}
			gated = w.Name
		}
	}

	// ------------------------------------------------------------
	// TRIGGER
	// ------------------------------------------------------------

	if t := cfg.Trigger; t != nil {
		switch t.Input {
		case "", InputSignal:
		case InputModbus:
			if t.Endpoint == "" {
				return fmt.Errorf("trigger: modbus input requires endpoint")
			}
		default:
			return fmt.Errorf("trigger: unknown input %q", t.Input)
		}
		if t.PollMs < 0 || t.DebounceMs < 0 {
			return fmt.Errorf("trigger: poll_ms and debounce_ms must not be negative")
		}
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCK VALIDATION (OPT-IN)
	// ------------------------------------------------------------

	if sm := cfg.StatusMemory; sm != nil {
		if sm.Endpoint == "" {
			return fmt.Errorf("status_memory: endpoint is required")
		}
		// device_name sanity (ASCII only)
		for i := 0; i < len(sm.DeviceName); i++ {
			if sm.DeviceName[i] > 0x7F {
				return fmt.Errorf("status_memory: device_name must contain ASCII characters only")
			}
		}
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", cfg.Logging.Format)
	}

	return nil
}

func validateSupervisor(s SupervisorConfig) error {
	if s.CycleMs < 0 || s.WindowMinMs < 0 || s.WindowMaxMs < 0 {
		return fmt.Errorf("supervisor: timings must not be negative")
	}

	cycle := orDefault(s.CycleMs, DefaultCycleMs)
	windowMax := orDefault(s.WindowMaxMs, DefaultWindowMaxMs)

	// The supervisor must get at least two polls into every window.
	if windowMax < 2*cycle {
		return fmt.Errorf(
			"supervisor: window_max_ms=%d must be at least twice cycle_ms=%d",
			windowMax,
			cycle,
		)
	}
	// Feeds are at least one cycle apart, so a min above the cycle
	// would turn healthy feeds into window violations.
	if s.WindowMinMs > cycle {
		return fmt.Errorf(
			"supervisor: window_min_ms=%d must not exceed cycle_ms=%d",
			s.WindowMinMs,
			cycle,
		)
	}
	if s.WindowMinMs >= windowMax {
		return fmt.Errorf(
			"supervisor: window_min_ms=%d must be below window_max_ms=%d",
			s.WindowMinMs,
			windowMax,
		)
	}
	return nil
}

func validateWatchdog(w WatchdogConfig) error {
	switch w.Driver {
	case "", DriverSim:
		if w.Slots < 0 || w.Resignals < 0 {
			return fmt.Errorf("watchdog: slots and resignals must not be negative")
		}
	case DriverModbus:
		if w.Endpoint == "" {
			return fmt.Errorf("watchdog: modbus driver requires endpoint")
		}
	default:
		return fmt.Errorf("watchdog: unknown driver %q", w.Driver)
	}
	return nil
}
