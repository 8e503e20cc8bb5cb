// internal/config/config.go
package config

type Config struct {
	Supervisor   SupervisorConfig    `yaml:"supervisor"`
	Watchdog     WatchdogConfig      `yaml:"watchdog"`
	Workers      []WorkerConfig      `yaml:"workers"`
	Trigger      *TriggerConfig      `yaml:"trigger"`
	Outputs      []OutputConfig      `yaml:"outputs"`
	StatusMemory *StatusMemoryConfig `yaml:"status_memory"`
	Metrics      MetricsConfig       `yaml:"metrics"`
	Logging      LoggingConfig       `yaml:"logging"`
}

// ---- SUPERVISOR ----

type SupervisorConfig struct {
	CycleMs     int `yaml:"cycle_ms"`
	WindowMinMs int `yaml:"window_min_ms"`
	WindowMaxMs int `yaml:"window_max_ms"`

	// Required makes a failed install/arm fatal (default true).
	Required *bool `yaml:"required"`
}

// ---- WATCHDOG ----

const (
	DriverSim    = "sim"
	DriverModbus = "modbus"
)

type WatchdogConfig struct {
	Driver string `yaml:"driver"`

	// Callback requests an expiry callback. Drivers without callback
	// support fall back to a callback-less install.
	Callback *bool `yaml:"callback"`

	// sim driver
	Slots             int    `yaml:"slots"`
	CallbackSupported *bool  `yaml:"callback_supported"`
	Resignals         int    `yaml:"resignals"`
	BootCause         uint32 `yaml:"boot_cause"`

	// modbus driver
	Endpoint  string            `yaml:"endpoint"`
	UnitID    uint8             `yaml:"unit_id"`
	TimeoutMs int               `yaml:"timeout_ms"`
	Registers WatchdogRegisters `yaml:"registers"`
}

type WatchdogRegisters struct {
	Timeout    uint16 `yaml:"timeout"`     // holding register, window max in ms
	Enable     uint16 `yaml:"enable"`      // coil
	Feed       uint16 `yaml:"feed"`        // holding register, kick value
	ResetCause uint16 `yaml:"reset_cause"` // holding register pair (hi, lo)
}

// ---- WORKERS ----

const (
	WorkloadBlink   = "blink"
	WorkloadCounter = "counter"
)

type WorkerConfig struct {
	Name        string `yaml:"name"`
	Workload    string `yaml:"workload"`
	PeriodMs    int    `yaml:"period_ms"`
	ToggleEvery int    `yaml:"toggle_every"`
	Gated       bool   `yaml:"gated"`
	Output      string `yaml:"output"`
}

// ---- TRIGGER ----

const (
	InputSignal = "signal"
	InputModbus = "modbus"
)

type TriggerConfig struct {
	Input      string `yaml:"input"`
	PollMs     int    `yaml:"poll_ms"`
	DebounceMs int    `yaml:"debounce_ms"`

	// modbus input
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Address   uint16 `yaml:"address"` // discrete input
}

// ---- OUTPUTS ----

const (
	OutputLog    = "log"
	OutputModbus = "modbus"
)

type OutputConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// modbus coil
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Coil      uint16 `yaml:"coil"`
}

// ---- STATUS MEMORY (optional, opt-in) ----

type StatusMemoryConfig struct {
	Endpoint   string `yaml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	Slot       uint16 `yaml:"slot"`
	DeviceName string `yaml:"device_name"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
