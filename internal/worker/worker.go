// internal/worker/worker.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	cfg "github.com/tamzrod/liveness-supervisor/internal/config"
	"github.com/tamzrod/liveness-supervisor/internal/gate"
	"github.com/tamzrod/liveness-supervisor/internal/heartbeat"
	"github.com/tamzrod/liveness-supervisor/internal/output"
)

// Worker is one monitored thread.
// Each iteration runs the workload and reports progress exactly once.
// A gated worker skips both while its gate is disabled but keeps looping.
type Worker struct {
	ID       heartbeat.WorkerID
	Name     string
	Period   time.Duration
	Registry *heartbeat.Registry
	Gate     *gate.Gate // nil means ungated
	Workload Workload
	Log      *zap.SugaredLogger

	iter int
}

// Step performs one iteration and reports whether a heartbeat was emitted.
func (w *Worker) Step() bool {
	if w.Gate != nil && !w.Gate.IsEnabled() {
		return false
	}

	// A failing output is not a stalled thread.
	if err := w.Workload.Do(w.iter); err != nil {
		w.Log.Warnf("%s: workload failed: %v", w.Name, err)
	}
	w.iter++

	w.Registry.ReportProgress(w.ID)
	return true
}

// Run loops on Period until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.Log.Infof("%s thread started", w.Name)

	ticker := time.NewTicker(w.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Step()
		}
	}
}

// Build creates one worker per config entry. IDs follow config order,
// so reg must have been created with len(workers) cells.
func Build(
	workers []cfg.WorkerConfig,
	reg *heartbeat.Registry,
	g *gate.Gate,
	outs output.Bindings,
	log *zap.SugaredLogger,
) ([]*Worker, error) {
	if reg == nil || reg.Len() != len(workers) {
		return nil, errors.New("worker: registry size does not match worker count")
	}

	out := make([]*Worker, 0, len(workers))

	for i, wc := range workers {
		wl := log.Named(wc.Name)

		var load Workload
		switch wc.Workload {
		case cfg.WorkloadCounter:
			load = &Counter{Log: wl, Every: wc.ToggleEvery}
		default:
			pin, err := outs.Lookup(wc.Output)
			if err != nil {
				return nil, fmt.Errorf("worker %q: %w", wc.Name, err)
			}
			load = &Blink{Out: pin, Every: wc.ToggleEvery}
		}

		w := &Worker{
			ID:       heartbeat.WorkerID(i),
			Name:     wc.Name,
			Period:   time.Duration(wc.PeriodMs) * time.Millisecond,
			Registry: reg,
			Workload: load,
			Log:      wl,
		}
		if wc.Gated {
			w.Gate = g
		}

		out = append(out, w)
	}

	return out, nil
}

// Names returns worker names indexed by WorkerID.
func Names(ws []*Worker) []string {
	names := make([]string, len(ws))
	for _, w := range ws {
		names[w.ID] = w.Name
	}
	return names
}
