// internal/writer/builder.go
package writer

import (
	"time"

	cfg "github.com/tamzrod/liveness-supervisor/internal/config"
	"github.com/tamzrod/liveness-supervisor/internal/endpoint"
)

// BuildStatusPlan converts the status_memory section into a plan.
// Returns nil when status publishing is not configured.
func BuildStatusPlan(c *cfg.Config) *StatusPlan {
	sm := c.StatusMemory
	if sm == nil {
		return nil
	}

	return &StatusPlan{
		Endpoint:   sm.Endpoint,
		UnitID:     sm.UnitID,
		BaseSlot:   sm.Slot,
		DeviceName: sm.DeviceName,
	}
}

// BuildStatusWriter dials the status endpoint through pool.
// A nil plan yields (nil, false, nil). The pool owns the connection.
func BuildStatusWriter(plan *StatusPlan, pool *endpoint.Pool, timeoutMs int) (StatusWriter, bool, error) {
	if plan == nil {
		return nil, false, nil
	}

	c, err := pool.Dial(endpoint.Config{
		Endpoint: plan.Endpoint,
		UnitID:   plan.UnitID,
		Timeout:  time.Duration(timeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, false, err
	}

	sw, enabled := NewDeviceStatusWriter(plan, c)
	return sw, enabled, nil
}
