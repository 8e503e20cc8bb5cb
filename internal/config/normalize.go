// internal/config/normalize.go
package config

// Defaults for the reference board.
const (
	DefaultCycleMs     = 50
	DefaultWindowMaxMs = 500
	DefaultPollMs      = 50
	DefaultDebounceMs  = 250
	DefaultTimeoutMs   = 1000
	DefaultSlots       = 1
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// SUPERVISOR
	// ------------------------------------------------------------

	s := &cfg.Supervisor
	s.CycleMs = orDefault(s.CycleMs, DefaultCycleMs)
	s.WindowMaxMs = orDefault(s.WindowMaxMs, DefaultWindowMaxMs)
	if s.Required == nil {
		s.Required = boolPtr(true)
	}

	// ------------------------------------------------------------
	// WATCHDOG
	// ------------------------------------------------------------

	w := &cfg.Watchdog
	if w.Driver == "" {
		w.Driver = DriverSim
	}
	if w.Callback == nil {
		w.Callback = boolPtr(true)
	}
	if w.CallbackSupported == nil {
		w.CallbackSupported = boolPtr(true)
	}
	w.Slots = orDefault(w.Slots, DefaultSlots)
	w.TimeoutMs = orDefault(w.TimeoutMs, DefaultTimeoutMs)

	// ------------------------------------------------------------
	// REFERENCE BOARD (no workers declared)
	// ------------------------------------------------------------

	if len(cfg.Workers) == 0 {
		applyReferenceBoard(cfg)
	}

	for i := range cfg.Workers {
		wk := &cfg.Workers[i]
		if wk.Workload == "" {
			wk.Workload = WorkloadBlink
		}
		// one report per cycle unless the worker asks for more
		wk.PeriodMs = orDefault(wk.PeriodMs, s.CycleMs)
		wk.ToggleEvery = orDefault(wk.ToggleEvery, 1)
	}

	if t := cfg.Trigger; t != nil {
		if t.Input == "" {
			t.Input = InputSignal
		}
		t.PollMs = orDefault(t.PollMs, DefaultPollMs)
		t.DebounceMs = orDefault(t.DebounceMs, DefaultDebounceMs)
		t.TimeoutMs = orDefault(t.TimeoutMs, DefaultTimeoutMs)
	}

	for i := range cfg.Outputs {
		o := &cfg.Outputs[i]
		if o.Kind == "" {
			o.Kind = OutputLog
		}
		o.TimeoutMs = orDefault(o.TimeoutMs, DefaultTimeoutMs)
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCK NORMALIZATION (OPT-IN)
	// ------------------------------------------------------------

	if sm := cfg.StatusMemory; sm != nil {
		// ASCII already validated; truncate to max 16 characters
		if len(sm.DeviceName) > 16 {
			sm.DeviceName = sm.DeviceName[:16]
		}
		sm.TimeoutMs = orDefault(sm.TimeoutMs, DefaultTimeoutMs)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// Stock LED cadences of the reference board.
const (
	refBlink0ToggleMs = 100
	refBlink1ToggleMs = 800
	refCounterMs      = 100
)

// applyReferenceBoard installs the three stock workers, their LEDs and the
// button trigger of the reference board. Workers report every cycle; the
// visible cadence is carried by toggle_every.
func applyReferenceBoard(cfg *Config) {
	cycle := cfg.Supervisor.CycleMs
	cfg.Workers = []WorkerConfig{
		{Name: "blink0", Workload: WorkloadBlink, Output: "led0", ToggleEvery: everyFor(refBlink0ToggleMs, cycle)},
		{Name: "blink1", Workload: WorkloadBlink, Output: "led1", ToggleEvery: everyFor(refBlink1ToggleMs, cycle), Gated: true},
		{Name: "uart_out", Workload: WorkloadCounter, ToggleEvery: everyFor(refCounterMs, cycle)},
	}

	for _, name := range []string{"led0", "led1"} {
		if !hasOutput(cfg, name) {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Name: name, Kind: OutputLog})
		}
	}

	if cfg.Trigger == nil {
		cfg.Trigger = &TriggerConfig{Input: InputSignal}
	}
}

func hasOutput(cfg *Config, name string) bool {
	for _, o := range cfg.Outputs {
		if o.Name == name {
			return true
		}
	}
	return false
}

// everyFor is the number of cycles closest to ms, at least one.
func everyFor(ms, cycle int) int {
	if cycle <= 0 {
		return 1
	}
	return max(1, (ms+cycle/2)/cycle)
}

func orDefault(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}

func boolPtr(b bool) *bool { return &b }
