// Package serialsrc reads raw sample lines streamed by a sensor MCU over a
// serial port. Lines use the sample log format:
//
//	<t_ns>,<sensor>,<ticks>,<x>,<y>,<z>
//
// Blank lines, '#' comments and START markers are ignored.
package serialsrc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"

	"sensorhub/internal/replay"
	"sensorhub/internal/sensor"
)

// Open opens path at baud, 8N1.
func Open(path string, baud int) (serial.Port, error) {
	if baud <= 0 {
		return nil, fmt.Errorf("serialsrc: invalid baud rate %d", baud)
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serialsrc: open %s: %w", path, err)
	}
	return port, nil
}

// Source parses readings from Port until it reports EOF or ctx ends, at
// which point Port is closed to unblock the pending read.
type Source struct {
	Port io.ReadCloser
	// OnBadLine, if set, sees every line that failed to parse. Bad lines
	// are skipped.
	OnBadLine func(line string, err error)

	mu  sync.Mutex
	bad uint64
}

// BadLines is the number of lines skipped so far.
func (s *Source) BadLines() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bad
}

func (s *Source) Run(ctx context.Context, emit func(sensor.Reading) error) error {
	if s.Port == nil {
		return errors.New("serialsrc: port is nil")
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Port.Close() })
	defer stop()

	sc := bufio.NewScanner(s.Port)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == "START" || strings.HasPrefix(line, "#") {
			continue
		}
		_, r, err := replay.ParseLine(line)
		if err != nil {
			s.mu.Lock()
			s.bad++
			s.mu.Unlock()
			if s.OnBadLine != nil {
				s.OnBadLine(line, err)
			}
			continue
		}
		if err := emit(r); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("serialsrc: read: %w", err)
	}
	return io.EOF
}
