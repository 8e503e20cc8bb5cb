// internal/resetcause/cause.go
package resetcause

import (
	"fmt"

	"go.uber.org/zap"
)

// Cause is the reset-reason bitmask latched by hardware.
// Bit layout follows the nRF52 RESETREAS register.
type Cause uint32

const (
	PinReset        Cause = 0x00000001
	Watchdog        Cause = 0x00000002
	SoftwareRequest Cause = 0x00000004
	CPULockup       Cause = 0x00000008
	WakeFromOff     Cause = 0x00010000
)

// ClearAll is written back to clear every latched bit (write-ones-to-clear).
const ClearAll uint32 = 0xFFFFFFFF

var known = []struct {
	bit  Cause
	text string
}{
	{PinReset, "reset from pin"},
	{Watchdog, "reset from watchdog"},
	{SoftwareRequest, "reset from software request"},
	{CPULockup, "reset from CPU lockup"},
	{WakeFromOff, "wake from system OFF (power-up)"},
}

// Register is the reset-reason register of the device.
type Register interface {
	ReadResetCause() (uint32, error)
	ClearResetCause() error
}

// Has reports whether bit is set in c.
func (c Cause) Has(bit Cause) bool {
	return c&bit != 0
}

// Classify lists every known cause present in c, in bit order.
// An empty register yields a single "none" entry.
// Unknown bits are reported once, as raw hex.
func Classify(c Cause) []string {
	if c == 0 {
		return []string{"none"}
	}

	var out []string
	rest := c
	for _, k := range known {
		if c.Has(k.bit) {
			out = append(out, k.text)
			rest &^= k.bit
		}
	}
	if rest != 0 {
		out = append(out, fmt.Sprintf("unknown bits 0x%08x", uint32(rest)))
	}
	return out
}

// Report reads the register once, logs every cause, then clears it.
// No retries: a failed read is returned and the register is left alone.
func Report(reg Register, log *zap.SugaredLogger) (Cause, error) {
	raw, err := reg.ReadResetCause()
	if err != nil {
		log.Errorf("reset cause read failed: %v", err)
		return 0, fmt.Errorf("resetcause: read: %w", err)
	}

	c := Cause(raw)
	log.Info("Reset reasons:")
	if c == 0 {
		log.Info("- no reset cause recorded")
	} else {
		for _, line := range Classify(c) {
			log.Infof("- %s", line)
		}
	}

	if err := reg.ClearResetCause(); err != nil {
		log.Errorf("reset cause clear failed: %v", err)
		return c, fmt.Errorf("resetcause: clear: %w", err)
	}

	return c, nil
}
