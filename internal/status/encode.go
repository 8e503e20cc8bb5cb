// internal/status/encode.go
package status

// Encode converts a Snapshot into the live part of a status block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotMissingMask] = s.MissingMask
	regs[SlotCyclesStarved] = s.CyclesStarved
	regs[SlotFeedCount] = s.FeedCount
	regs[SlotGateEnabled] = s.GateEnabled
	regs[SlotResetCauseHi] = uint16(s.ResetCause >> 16)
	regs[SlotResetCauseLo] = uint16(s.ResetCause)

	return regs
}

// MaskOf packs worker indexes into a missing-worker bitmask.
// Indexes beyond MaxMaskedWorkers are dropped.
func MaskOf(indexes []int) uint16 {
	var m uint16
	for _, i := range indexes {
		if i >= 0 && i < MaxMaskedWorkers {
			m |= 1 << uint(i)
		}
	}
	return m
}
