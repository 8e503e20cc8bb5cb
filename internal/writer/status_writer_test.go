// internal/writer/status_writer_test.go
package writer

import (
	"errors"
	"testing"

	"github.com/tamzrod/liveness-supervisor/internal/status"
)

// ---- fake endpoint client ----

type fakeEndpointClient struct {
	fail         bool
	writes       int
	lastRegsAddr uint16
	lastRegs     []uint16
}

func (f *fakeEndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if f.fail {
		return errors.New("endpoint down")
	}
	f.writes++
	f.lastRegsAddr = addr
	f.lastRegs = append([]uint16(nil), regs...)
	return nil
}

func plan() *StatusPlan {
	return &StatusPlan{
		Endpoint:   "status-endpoint",
		UnitID:     1,
		BaseSlot:   2,
		DeviceName: "NODE-01",
	}
}

// ---- tests ----

func TestStatusWriter_DisabledWithoutPlan(t *testing.T) {
	if _, enabled := NewDeviceStatusWriter(nil, &fakeEndpointClient{}); enabled {
		t.Fatalf("status writer must be disabled without a plan")
	}
}

func TestDeviceNameWrittenOnFullAssertOnly(t *testing.T) {
	cli := &fakeEndpointClient{}
	p := plan()

	sw, enabled := NewDeviceStatusWriter(p, cli)
	if !enabled {
		t.Fatalf("status writer should be enabled")
	}

	// ---- first write: FULL ASSERT ----
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthFeeding, GateEnabled: 1}); err != nil {
		t.Fatalf("initial full assert failed: %v", err)
	}

	if len(cli.lastRegs) != status.SlotsPerDevice {
		t.Fatalf("expected full block write (%d regs), got %d", status.SlotsPerDevice, len(cli.lastRegs))
	}
	if cli.lastRegsAddr != p.BaseSlot*status.SlotsPerDevice {
		t.Fatalf("unexpected base addr: %d", cli.lastRegsAddr)
	}

	expectedNameRegs := encodeDeviceNameRegs(p.DeviceName)
	for i := 0; i < status.SlotDeviceNameSlots; i++ {
		slot := status.SlotDeviceNameStart + i
		if cli.lastRegs[slot] != expectedNameRegs[i] {
			t.Fatalf("device name slot %d mismatch: got=%d want=%d", slot, cli.lastRegs[slot], expectedNameRegs[i])
		}
	}

	// ---- second write: INCREMENTAL ONLY ----
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthStarving, GateEnabled: 1, CyclesStarved: 1}); err != nil {
		t.Fatalf("incremental write failed: %v", err)
	}

	if len(cli.lastRegs) == status.SlotsPerDevice {
		t.Fatalf("device name should not be rewritten on incremental update")
	}
	// health + cycles_starved changed
	if cli.writes != 3 {
		t.Fatalf("expected 1 full + 2 slot writes, got %d", cli.writes)
	}
}

func TestUnchangedSnapshotWritesNothing(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw, _ := NewDeviceStatusWriter(plan(), cli)

	s := status.Snapshot{Health: status.HealthFeeding, FeedCount: 5}
	_ = sw.WriteStatus(s)
	_ = sw.WriteStatus(s)

	if cli.writes != 1 {
		t.Fatalf("expected only the full assert, got %d writes", cli.writes)
	}
}

func TestFailureForcesFullReassert(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw, _ := NewDeviceStatusWriter(plan(), cli)

	_ = sw.WriteStatus(status.Snapshot{Health: status.HealthFeeding})

	cli.fail = true
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthStarving}); err == nil {
		t.Fatalf("expected write failure")
	}

	cli.fail = false
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthStarving}); err != nil {
		t.Fatalf("recovery write failed: %v", err)
	}
	if len(cli.lastRegs) != status.SlotsPerDevice {
		t.Fatalf("expected full re-assert after failure, got %d regs", len(cli.lastRegs))
	}
}

func TestResetCauseSlotsWritten(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw, _ := NewDeviceStatusWriter(plan(), cli)

	_ = sw.WriteStatus(status.Snapshot{ResetCause: 0x00010002})

	if cli.lastRegs[status.SlotResetCauseHi] != 0x0001 || cli.lastRegs[status.SlotResetCauseLo] != 0x0002 {
		t.Fatalf("reset cause not in block: %v", cli.lastRegs[:status.SlotResetCauseLo+1])
	}
}
