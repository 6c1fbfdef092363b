// Package step turns accelerometer samples into step segments and a running
// step count.
//
// The pipeline is: dsp.StepFilter (band-pass, decimate) -> Segmenter (peak
// classifier) -> Detector (walk bookkeeping, callbacks).
package step

import (
	"fmt"
	"time"

	"sensorhub/internal/fixedpoint"
)

// SegmentType tags a segment's position within a walk.
type SegmentType int

const (
	SegmentFirst SegmentType = iota
	SegmentMid
	SegmentLast
)

func (t SegmentType) String() string {
	switch t {
	case SegmentFirst:
		return "first"
	case SegmentMid:
		return "mid"
	case SegmentLast:
		return "last"
	default:
		return fmt.Sprintf("SegmentType(%d)", int(t))
	}
}

// Segment is one detected step, valley to valley of the filtered magnitude.
type Segment struct {
	StartTime fixedpoint.Time
	StopTime  fixedpoint.Time
	Type      SegmentType
}

// Data is the cumulative step counter state reported after every segment.
type Data struct {
	StartTime fixedpoint.Time
	StopTime  fixedpoint.Time
	// Frequency is ConsecutiveCount over the time since the walk started, in
	// steps per second (Q24).
	Frequency        fixedpoint.Precise
	TotalCount       uint32
	ConsecutiveCount uint32
}

type Config struct {
	// PeakThreshold is the minimum |filtered magnitude| (m/s², Q12) for an
	// extremum to count as a peak.
	PeakThreshold fixedpoint.Extended
	// MinStepPeriod and MaxStepPeriod bound a plausible step duration.
	// MaxStepPeriod is also the idle time that ends a walk.
	MinStepPeriod fixedpoint.Time
	MaxStepPeriod fixedpoint.Time
}

func DefaultConfig() Config {
	return Config{
		PeakThreshold: fixedpoint.ExtendedFromFloat(0.3),
		MinStepPeriod: fixedpoint.TimeFromDuration(250 * time.Millisecond),
		MaxStepPeriod: fixedpoint.TimeFromDuration(1200 * time.Millisecond),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PeakThreshold <= 0 {
		c.PeakThreshold = d.PeakThreshold
	}
	if c.MinStepPeriod <= 0 {
		c.MinStepPeriod = d.MinStepPeriod
	}
	if c.MaxStepPeriod <= 0 {
		c.MaxStepPeriod = d.MaxStepPeriod
	}
	return c
}

// Validate reports settings that cannot produce a step.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.MinStepPeriod >= c.MaxStepPeriod {
		return fmt.Errorf("step: min step period %.3fs must be below max %.3fs",
			c.MinStepPeriod.Seconds(), c.MaxStepPeriod.Seconds())
	}
	return nil
}
