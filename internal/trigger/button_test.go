// internal/trigger/button_test.go
package trigger

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"

	"github.com/tamzrod/liveness-supervisor/internal/endpoint"
	"github.com/tamzrod/liveness-supervisor/internal/gate"
)

// ---- fakes ----

type scriptedInput struct {
	levels []bool
	err    error
	reads  int
}

func (s *scriptedInput) Pressed() (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	i := s.reads
	s.reads++
	if i < len(s.levels) {
		return s.levels[i], nil
	}
	return false, nil
}

type fakeDiscreteReader struct {
	payload []byte
	err     error
}

func (f *fakeDiscreteReader) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	return f.payload, f.err
}

func testConfig() Config {
	return Config{Poll: 50 * time.Millisecond, Debounce: 250 * time.Millisecond}
}

// ---- tests ----

func TestNew_Validation(t *testing.T) {
	g := gate.New(true)
	log := zap.NewNop().Sugar()

	if _, err := New(testConfig(), nil, g, log); err == nil {
		t.Fatalf("expected error for nil input")
	}
	if _, err := New(testConfig(), &scriptedInput{}, nil, log); err == nil {
		t.Fatalf("expected error for nil gate")
	}
	if _, err := New(Config{}, &scriptedInput{}, g, log); err == nil {
		t.Fatalf("expected error for zero poll")
	}
}

func TestPollOnce_PressTogglesGate(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	g := gate.New(true)
	in := &scriptedInput{levels: []bool{false, true, false, true}}

	var seen []bool
	b, _ := New(testConfig(), in, g, zap.New(core).Sugar())
	b.OnToggle = func(enabled bool) { seen = append(seen, enabled) }

	if toggled, _ := b.PollOnce(); toggled || !g.IsEnabled() {
		t.Fatalf("released button must not toggle")
	}
	if toggled, _ := b.PollOnce(); !toggled || g.IsEnabled() {
		t.Fatalf("first press must disable the gate")
	}
	_, _ = b.PollOnce()
	if toggled, _ := b.PollOnce(); !toggled || !g.IsEnabled() {
		t.Fatalf("second press must re-enable the gate")
	}

	if logs.FilterMessage("Stopped thread").Len() != 1 || logs.FilterMessage("Resumed thread").Len() != 1 {
		t.Fatalf("missing toggle lines: %v", logs.All())
	}
	if len(seen) != 2 || seen[0] || !seen[1] {
		t.Fatalf("unexpected toggle callbacks: %v", seen)
	}
}

func TestPollOnce_ReadErrorLeavesGate(t *testing.T) {
	g := gate.New(true)
	b, _ := New(testConfig(), &scriptedInput{err: errors.New("bus fault")}, g, zap.NewNop().Sugar())

	if _, err := b.PollOnce(); err == nil {
		t.Fatalf("expected read error")
	}
	if !g.IsEnabled() {
		t.Fatalf("gate must be unchanged on read error")
	}
}

func TestRun_DebounceSuppressesHeldButton(t *testing.T) {
	g := gate.New(true)
	held := make([]bool, 100)
	for i := range held {
		held[i] = true
	}
	in := &scriptedInput{levels: held}

	b, _ := New(Config{Poll: 5 * time.Millisecond, Debounce: time.Second}, in, g, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	b.Run(ctx)

	// one press, then stuck in debounce until ctx ends
	if in.reads != 1 || g.IsEnabled() {
		t.Fatalf("expected a single debounced toggle, reads=%d enabled=%v", in.reads, g.IsEnabled())
	}
}

func TestSignalInput_LatchesOnePress(t *testing.T) {
	s := NewSignalInput()
	s.Press()
	s.Press()

	if p, _ := s.Pressed(); !p {
		t.Fatalf("latched press not reported")
	}
	if p, _ := s.Pressed(); p {
		t.Fatalf("press must be consumed by the first read")
	}
}

func TestSignalInput_Listen(t *testing.T) {
	s := NewSignalInput(syscall.SIGUSR2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Listen(ctx)

	// let Listen register before raising the signal
	time.Sleep(20 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR2); err != nil {
		t.Fatalf("kill: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p, _ := s.Pressed(); p {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("signal was not latched")
}

func TestModbusInput_ReadsBitZero(t *testing.T) {
	m := &ModbusInput{cli: &fakeDiscreteReader{payload: []byte{0x01}}, addr: 3}
	if p, err := m.Pressed(); err != nil || !p {
		t.Fatalf("expected pressed, got %v %v", p, err)
	}

	m.cli = &fakeDiscreteReader{payload: []byte{0x02}}
	if p, _ := m.Pressed(); p {
		t.Fatalf("only bit 0 carries the input")
	}

	m.cli = &fakeDiscreteReader{err: errors.New("timeout")}
	if _, err := m.Pressed(); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestNewModbusInput_RequiresEndpoint(t *testing.T) {
	if _, err := NewModbusInput(endpoint.NewPool(), ModbusConfig{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
