// internal/heartbeat/registry.go
package heartbeat

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// WorkerID is an opaque index into a Registry.
// It is assigned by NewRegistry and stays valid for the process lifetime.
type WorkerID int

// Verdict is the outcome of one drain.
type Verdict struct {
	AllReported bool
	Missing     []WorkerID // workers whose flag was false at drain time
}

// Registry owns one liveness cell per worker.
// The worker count is fixed at construction: no add, no remove.
//
// Writers: each worker sets only its own cell.
// Reader: the supervisor drains all cells once per cycle.
type Registry struct {
	cells []atomic.Bool
}

// NewRegistry creates a registry for n workers with every cell cleared.
func NewRegistry(n int) (*Registry, error) {
	if n <= 0 {
		return nil, errors.New("heartbeat: worker count must be > 0")
	}
	return &Registry{cells: make([]atomic.Bool, n)}, nil
}

// Len returns the fixed worker count.
func (r *Registry) Len() int {
	return len(r.cells)
}

// IDs returns every worker identity in index order.
func (r *Registry) IDs() []WorkerID {
	out := make([]WorkerID, len(r.cells))
	for i := range r.cells {
		out[i] = WorkerID(i)
	}
	return out
}

// Valid reports whether id belongs to this registry.
func (r *Registry) Valid(id WorkerID) bool {
	return id >= 0 && int(id) < len(r.cells)
}

// ReportProgress marks id as having made progress since the last drain.
// Idempotent within a cycle. Unknown ids are ignored.
func (r *Registry) ReportProgress(id WorkerID) {
	if !r.Valid(id) {
		return
	}
	r.cells[id].Store(true)
}

// DrainAll clears every cell and reports whether all of them were set.
// Cells are cleared regardless of the result.
func (r *Registry) DrainAll() bool {
	return r.Drain().AllReported
}

// Drain clears every cell and returns which workers had not reported.
//
// Each cell is swapped individually. A report that lands after its cell
// was swapped is kept for the next drain; it is never credited backwards.
func (r *Registry) Drain() Verdict {
	v := Verdict{AllReported: true}
	for i := range r.cells {
		if !r.cells[i].Swap(false) {
			v.AllReported = false
			v.Missing = append(v.Missing, WorkerID(i))
		}
	}
	return v
}

func (id WorkerID) String() string {
	return fmt.Sprintf("worker#%d", int(id))
}
