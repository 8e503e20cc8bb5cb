// internal/endpoint/client.go
package endpoint

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// conn is one TCP connection. Requests are serialized because the unit
// id lives on the handler.
type conn struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	cli     modbus.Client
}

// Client addresses one unit on a shared Modbus TCP connection.
// It satisfies the small client interfaces of the relay driver, the coil
// outputs and the button input.
type Client struct {
	c    *conn
	unit uint8
}

type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
}

func newClient(cli modbus.Client, handler *modbus.TCPClientHandler, unit uint8) *Client {
	return &Client{c: &conn{handler: handler, cli: cli}, unit: unit}
}

func (c *Client) do(unit uint8, fn func(modbus.Client) ([]byte, error)) ([]byte, error) {
	c.c.mu.Lock()
	defer c.c.mu.Unlock()

	if c.c.handler != nil {
		c.c.handler.SlaveId = unit
	}
	return fn(c.c.cli)
}

// UnitID returns the unit this client addresses.
func (c *Client) UnitID() uint8 { return c.unit }

func (c *Client) WriteSingleCoil(address, value uint16) ([]byte, error) {
	return c.do(c.unit, func(m modbus.Client) ([]byte, error) {
		return m.WriteSingleCoil(address, value)
	})
}

func (c *Client) WriteSingleRegister(address, value uint16) ([]byte, error) {
	return c.do(c.unit, func(m modbus.Client) ([]byte, error) {
		return m.WriteSingleRegister(address, value)
	})
}

func (c *Client) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	return c.do(c.unit, func(m modbus.Client) ([]byte, error) {
		return m.WriteMultipleRegisters(address, quantity, value)
	})
}

func (c *Client) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return c.do(c.unit, func(m modbus.Client) ([]byte, error) {
		return m.ReadHoldingRegisters(address, quantity)
	})
}

func (c *Client) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	return c.do(c.unit, func(m modbus.Client) ([]byte, error) {
		return m.ReadDiscreteInputs(address, quantity)
	})
}

// WriteRegisters writes regs at addr on unitID: FC 6 for a single
// register, FC 16 otherwise.
func (c *Client) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if len(regs) == 0 {
		return nil
	}
	_, err := c.do(unitID, func(m modbus.Client) ([]byte, error) {
		if len(regs) == 1 {
			return m.WriteSingleRegister(addr, regs[0])
		}
		return m.WriteMultipleRegisters(addr, uint16(len(regs)), PackRegisters(regs))
	})
	return err
}

// PackRegisters encodes regs big-endian, as Modbus carries them.
func PackRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

// ---------------------------------------------------------------------------
// Pool
// ---------------------------------------------------------------------------

// Pool keeps one connection per endpoint. Components on the same device
// share it whatever unit they address. The first Dial's timeout wins.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*conn
	order []string
}

func NewPool() *Pool {
	return &Pool{conns: make(map[string]*conn)}
}

// Dial returns a client for cfg.UnitID, connecting cfg.Endpoint on first use.
func (p *Pool) Dial(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint: address required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[cfg.Endpoint]; ok {
		return &Client{c: c, unit: cfg.UnitID}, nil
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.SlaveId = cfg.UnitID
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("endpoint: connect %s: %w", cfg.Endpoint, err)
	}

	c := &conn{handler: h, cli: modbus.NewClient(h)}
	p.conns[cfg.Endpoint] = c
	p.order = append(p.order, cfg.Endpoint)

	return &Client{c: c, unit: cfg.UnitID}, nil
}

// Len returns the number of open connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close closes every connection and returns the first error.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var first error
	for _, ep := range p.order {
		c := p.conns[ep]
		c.mu.Lock()
		err := c.handler.Close()
		c.mu.Unlock()
		if err != nil && first == nil {
			first = err
		}
	}
	p.conns = make(map[string]*conn)
	p.order = nil
	return first
}
