// internal/status/constants.go
package status

// Supervisor Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of holding registers per supervisor.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the supervisor health state.
const SlotHealthCode = 0

// SlotMissingMask holds one bit per worker that missed the last drain (workers 0-15).
const SlotMissingMask = 1

// SlotCyclesStarved holds the consecutive starved cycle count (saturating).
const SlotCyclesStarved = 2

// SlotFeedCount holds the low 16 bits of the feed counter.
const SlotFeedCount = 3

// SlotGateEnabled is 1 while the gated worker may report.
const SlotGateEnabled = 4

// SlotResetCauseHi / SlotResetCauseLo hold the boot reset cause (big-endian pair).
const SlotResetCauseHi = 5
const SlotResetCauseLo = 6

// ---- RESERVED RANGE ----

// Slots 7-10 are reserved for future use.
const SlotReservedStart = 7
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// MaxMaskedWorkers is the number of workers representable in SlotMissingMask.
const MaxMaskedWorkers = 16

// ---- HEALTH CODES ----

// HealthUnknown is the boot state before the first cycle.
const HealthUnknown uint16 = 0

// HealthFeeding means the last cycle fed the watchdog.
const HealthFeeding uint16 = 1

// HealthStarving means the last cycle withheld the feed.
const HealthStarving uint16 = 2

// HealthExpired means the watchdog expired and a reset is pending.
const HealthExpired uint16 = 3

// HealthDegraded means the watchdog could not be installed or armed.
const HealthDegraded uint16 = 4
