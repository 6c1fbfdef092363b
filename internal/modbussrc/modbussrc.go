// Package modbussrc polls tri-axis counts from a Modbus gateway's input
// registers.
package modbussrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"sensorhub/internal/sensor"
)

// RegisterReader is the subset of modbus.Client the source polls with.
type RegisterReader interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

type Config struct {
	// Mode is "tcp" or "rtu".
	Mode    string
	Address string
	Baud    int
	SlaveID byte
	Timeout time.Duration
}

// Conn is one connection to a gateway. Requests are serialized.
type Conn struct {
	mu      sync.Mutex
	handler io.Closer
	client  modbus.Client
}

func Dial(cfg Config) (*Conn, error) {
	if cfg.Address == "" {
		return nil, errors.New("modbussrc: address required")
	}
	switch cfg.Mode {
	case "", "tcp":
		h := modbus.NewTCPClientHandler(cfg.Address)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.SlaveID
		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("modbussrc: connect %s: %w", cfg.Address, err)
		}
		return &Conn{handler: h, client: modbus.NewClient(h)}, nil
	case "rtu":
		h := modbus.NewRTUClientHandler(cfg.Address)
		h.BaudRate = cfg.Baud
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.SlaveID
		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("modbussrc: open %s: %w", cfg.Address, err)
		}
		return &Conn{handler: h, client: modbus.NewClient(h)}, nil
	}
	return nil, fmt.Errorf("modbussrc: unknown mode %q", cfg.Mode)
}

func (c *Conn) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.ReadInputRegisters(address, quantity)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

const defaultMaxFailures = 5

// Source polls one sensor every Period. Register holds x, y, z as signed
// 16-bit counts. When TickRegister is non-zero it holds the 32-bit sample
// counter, high word first; otherwise ticks come from the local clock at
// TickHz.
type Source struct {
	Client       RegisterReader
	Sensor       sensor.Type
	Register     uint16
	TickRegister uint16
	Period       time.Duration
	TickHz       float64
	// MaxFailures consecutive failed polls end the run; zero means 5.
	MaxFailures int
	// OnError, if set, sees every failed poll.
	OnError func(error)

	now func() time.Time
}

func (s *Source) Run(ctx context.Context, emit func(sensor.Reading) error) error {
	if s.Client == nil {
		return errors.New("modbussrc: client is nil")
	}
	if !s.Sensor.Valid() {
		return fmt.Errorf("modbussrc: invalid sensor type %d", s.Sensor)
	}
	if s.Period <= 0 {
		return errors.New("modbussrc: poll period must be > 0")
	}
	if s.TickRegister == 0 && s.TickHz <= 0 {
		return errors.New("modbussrc: tick rate must be > 0 without a tick register")
	}
	maxFailures := s.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	start := now()
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		raw, err := s.poll(now().Sub(start))
		if err != nil {
			failures++
			if s.OnError != nil {
				s.OnError(err)
			}
			if failures >= maxFailures {
				return fmt.Errorf("modbussrc: %d consecutive failures: %w", failures, err)
			}
			continue
		}
		failures = 0
		if err := emit(sensor.Reading{Type: s.Sensor, Raw: raw}); err != nil {
			return err
		}
	}
}

func (s *Source) poll(elapsed time.Duration) (sensor.RawSample, error) {
	var raw sensor.RawSample
	b, err := s.Client.ReadInputRegisters(s.Register, 3)
	if err != nil {
		return raw, fmt.Errorf("modbussrc: read axes at %d: %w", s.Register, err)
	}
	if len(b) != 6 {
		return raw, fmt.Errorf("modbussrc: read axes at %d: got %d bytes want 6", s.Register, len(b))
	}
	for i := 0; i < 3; i++ {
		raw.Axes[i] = int32(int16(uint16(b[2*i])<<8 | uint16(b[2*i+1])))
	}

	if s.TickRegister == 0 {
		raw.Ticks = uint32(uint64(math.Round(elapsed.Seconds() * s.TickHz)))
		return raw, nil
	}
	b, err = s.Client.ReadInputRegisters(s.TickRegister, 2)
	if err != nil {
		return raw, fmt.Errorf("modbussrc: read ticks at %d: %w", s.TickRegister, err)
	}
	if len(b) != 4 {
		return raw, fmt.Errorf("modbussrc: read ticks at %d: got %d bytes want 4", s.TickRegister, len(b))
	}
	raw.Ticks = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return raw, nil
}
