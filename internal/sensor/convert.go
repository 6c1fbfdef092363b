package sensor

import "sensorhub/internal/fixedpoint"

// SignExtend keeps the low width bits of v and sign-extends from bit
// width-1.
func SignExtend(v int32, width uint8) int32 {
	if width == 0 || width >= 32 {
		return v
	}
	shift := 32 - uint(width)
	return int32(uint32(v)<<shift) >> shift
}

// ConvertAxes maps raw counts through d into the output format of d.Type.
func ConvertAxes(d *Descriptor, raw [3]int32) [3]int32 {
	shift := fixedpoint.PreciseShift - d.Type.Format().Shift()
	var out [3]int32
	for i, sel := range d.AxisMap {
		idx, negate, ok := sel.Source()
		if !ok {
			continue
		}
		counts := int64(SignExtend(raw[idx], d.DataWidth)) - int64(d.Offset[idx])
		v := fixedpoint.MulShift(fixedpoint.SatInt32(counts), int32(d.Scale[idx]), shift)
		if negate {
			v = fixedpoint.Negate(v)
		}
		out[i] = clamp(v, d.Min, d.Max)
	}
	return out
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Converter holds the per-consumer timestamp state: the last raw tick value
// and the rollover extension word. Each queue consumer needs its own.
//
// Not safe for concurrent use.
type Converter struct {
	coef      fixedpoint.TimeCoef
	last      uint32
	extension uint32
	started   bool
}

// NewConverter returns a converter for a counter whose tick length is coef.
func NewConverter(coef fixedpoint.TimeCoef) *Converter {
	return &Converter{coef: coef}
}

func (c *Converter) Reset() {
	c.last = 0
	c.extension = 0
	c.started = false
}

// Extension returns the number of counter wraps seen.
func (c *Converter) Extension() uint32 { return c.extension }

// Timestamp widens a 32-bit tick count and scales it to Q24 seconds. The
// extension word increments when the counter's sign bit goes from set to
// clear. ok is false when the time saturated.
func (c *Converter) Timestamp(ticks uint32) (fixedpoint.Time, bool) {
	if c.started && int32(c.last) < 0 && int32(ticks) >= 0 {
		c.extension++
	}
	c.last = ticks
	c.started = true
	return fixedpoint.TicksToTime(uint64(c.extension)<<32|uint64(ticks), c.coef)
}

// Convert produces a Sample from raw using d and advances the timestamp
// state. ok is false when the timestamp saturated.
func (c *Converter) Convert(d *Descriptor, raw RawSample) (s Sample, ok bool) {
	s.Type = d.Type
	s.Axes = ConvertAxes(d, raw.Axes)
	s.Time, ok = c.Timestamp(raw.Ticks)
	return s, ok
}
