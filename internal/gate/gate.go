// internal/gate/gate.go
package gate

import "sync/atomic"

// Gate suspends one worker's heartbeat emission to simulate a lockup.
//
// Enabled means the gated worker runs its workload and reports progress.
// Disabled means it keeps looping but skips both.
// One writer (the trigger collaborator), one reader (the gated worker).
type Gate struct {
	enabled atomic.Bool
}

// New returns a gate in the given initial state.
func New(enabled bool) *Gate {
	g := &Gate{}
	g.enabled.Store(enabled)
	return g
}

// Set stores the gate state.
func (g *Gate) Set(enabled bool) {
	g.enabled.Store(enabled)
}

// IsEnabled is polled by the gated worker once per iteration.
func (g *Gate) IsEnabled() bool {
	return g.enabled.Load()
}

// InjectLockup stops the gated worker from reporting progress.
func (g *Gate) InjectLockup() {
	g.Set(false)
}

// ClearLockup lets the gated worker report progress again.
func (g *Gate) ClearLockup() {
	g.Set(true)
}

// Toggle flips the gate and returns the new state.
// Only the trigger collaborator calls this.
func (g *Gate) Toggle() bool {
	for {
		cur := g.enabled.Load()
		if g.enabled.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}
