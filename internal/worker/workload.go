// internal/worker/workload.go
package worker

import (
	"go.uber.org/zap"

	"github.com/tamzrod/liveness-supervisor/internal/output"
)

// Workload is the useful work a worker performs once per iteration.
type Workload interface {
	Do(iter int) error
}

// Blink toggles an output every Every iterations.
type Blink struct {
	Out   output.Output
	Every int
}

func (b *Blink) Do(iter int) error {
	every := b.Every
	if every <= 0 {
		every = 1
	}
	if iter%every != 0 {
		return nil
	}
	// first toggle drives the pin high
	return b.Out.Set((iter/every)%2 == 0)
}

// Counter emits a console line every Every iterations and wraps after ten.
type Counter struct {
	Log   *zap.SugaredLogger
	Every int
	n     int
}

const counterWrap = 10

func (c *Counter) Do(iter int) error {
	if c.Every > 1 && iter%c.Every != 0 {
		return nil
	}
	c.n++
	c.Log.Infof("Toggle USR1 LED1: Counter = %d", c.n)
	if c.n >= counterWrap {
		c.Log.Infof("Toggle USR2 LED2: Counter = %d", c.n)
		c.n = 0
	}
	return nil
}
