package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"sensorhub/internal/sensor"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<sensor>,<ticks>,<x>,<y>,<z>
//   where t_ns is nanoseconds since START, sensor is a sensor type name,
//   ticks is the unsigned 32-bit sample counter and x, y, z are raw counts.

type Record struct {
	At time.Duration
	// Start marks a START line; Reading is unset.
	Start   bool
	Reading sensor.Reading
}

// ParseLine parses one data line.
func ParseLine(line string) (time.Duration, sensor.Reading, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 6 {
		return 0, sensor.Reading{}, fmt.Errorf("invalid sample line (want 6 fields, got %d): %q", len(fields), line)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
		if fields[i] == "" {
			return 0, sensor.Reading{}, fmt.Errorf("invalid sample line (empty field %d): %q", i, line)
		}
	}

	tsNs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, sensor.Reading{}, fmt.Errorf("invalid sample timestamp %q: %w", fields[0], err)
	}
	if tsNs < 0 {
		return 0, sensor.Reading{}, fmt.Errorf("invalid sample timestamp (negative): %d", tsNs)
	}
	typ, err := sensor.ParseType(fields[1])
	if err != nil {
		return 0, sensor.Reading{}, err
	}
	ticks, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return 0, sensor.Reading{}, fmt.Errorf("invalid sample ticks %q: %w", fields[2], err)
	}
	r := sensor.Reading{Type: typ, Raw: sensor.RawSample{Ticks: uint32(ticks)}}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseInt(fields[3+i], 10, 32)
		if err != nil {
			return 0, sensor.Reading{}, fmt.Errorf("invalid sample axis %c %q: %w", "xyz"[i], fields[3+i], err)
		}
		r.Raw.Axes[i] = int32(v)
	}
	return time.Duration(tsNs), r, nil
}

// FormatLine renders r as a data line without the trailing newline.
func FormatLine(at time.Duration, r sensor.Reading) string {
	a := r.Raw.Axes
	return fmt.Sprintf("%d,%s,%d,%d,%d,%d", at.Nanoseconds(), r.Type, r.Raw.Ticks, a[0], a[1], a[2])
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{Start: true})
			continue
		}
		at, r, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		recs = append(recs, Record{At: at, Reading: r})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ReadFile reads every record of the log at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

type Writer struct {
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

// CreateWriter creates path and writes a comment line per header entry,
// then START.
func CreateWriter(path string, header ...string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	for _, h := range header {
		if _, err := fmt.Fprintf(bw, "# %s\n", h); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

func (ww *Writer) WriteReading(now time.Time, r sensor.Reading) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid sensor type %d", r.Type)
	}

	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	if _, err := ww.w.WriteString(FormatLine(d, r) + "\n"); err != nil {
		return err
	}
	return nil
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

type noSleeper struct{}

func (noSleeper) Sleep(time.Duration) {}

// Play replays records with their relative timing, calling cb for every
// data record. START markers are honored by resetting the origin.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
func Play(ctx context.Context, records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(sensor.Reading) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}

	for {
		var origin time.Duration
		var lastAt time.Duration
		var haveLast bool

		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.Start {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast {
				wait := at - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					sleeper.Sleep(wait)
				}
			}

			if err := cb(r.Reading); err != nil {
				return err
			}

			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}

// Source plays records as a sample source. Speed zero plays without waiting.
type Source struct {
	Records []Record
	Speed   float64
	Loop    bool
	Sleeper Sleeper
}

func (s *Source) Run(ctx context.Context, emit func(sensor.Reading) error) error {
	speed, sleeper := s.Speed, s.Sleeper
	if speed == 0 {
		speed, sleeper = 1, noSleeper{}
	}
	return Play(ctx, s.Records, speed, s.Loop, sleeper, emit)
}
