// Package fixedpoint holds the integer number formats exchanged by the sensor
// pipeline and the saturating helpers used to move between them.
//
// Formats:
//
//	Compact   int16  Q12
//	Extended  int32  Q12
//	Precise   int32  Q24
//	Time      int64  Q24 seconds
//	TimeCoef  uint32 Q32 seconds per counter tick
//
// No helper in this package panics or wraps around; results outside the
// destination range clamp to its min/max.
package fixedpoint

import (
	"math"
	"math/bits"
	"time"
)

type Compact int16

type Extended int32

type Precise int32

type Time int64

type TimeCoef uint32

const (
	CompactShift  = 12
	ExtendedShift = 12
	PreciseShift  = 24
	TimeShift     = 24
	TimeCoefShift = 32
)

// MaxTime is the value timestamps saturate to.
const MaxTime = Time(math.MaxInt64)

// SatInt32 clamps v into the int32 range.
func SatInt32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// SatInt16 clamps v into the int16 range.
func SatInt16(v int64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// RoundShift divides v by 2^shift rounding to nearest (half-up), by adding
// half an output LSB before the arithmetic right shift.
func RoundShift(v int64, shift uint) int64 {
	if shift == 0 {
		return v
	}
	if shift > 62 {
		if v < 0 {
			return -1
		}
		return 0
	}
	half := int64(1) << (shift - 1)
	if v > math.MaxInt64-half {
		return math.MaxInt64 >> shift
	}
	return (v + half) >> shift
}

// MulShift returns a*b/2^shift rounded to nearest and saturated to int32.
// The full product is formed in 64 bits, so it cannot overflow.
func MulShift(a, b int32, shift uint) int32 {
	return SatInt32(RoundShift(int64(a)*int64(b), shift))
}

// Negate returns -v saturated (MinInt32 maps to MaxInt32).
func Negate(v int32) int32 {
	if v == math.MinInt32 {
		return math.MaxInt32
	}
	return -v
}

func fromFloat(f float64, shift uint, min, max int64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	v := math.Round(f * float64(int64(1)<<shift))
	if v >= float64(max) {
		return max
	}
	if v <= float64(min) {
		return min
	}
	return int64(v)
}

func CompactFromFloat(f float64) Compact {
	return Compact(fromFloat(f, CompactShift, math.MinInt16, math.MaxInt16))
}

func ExtendedFromFloat(f float64) Extended {
	return Extended(fromFloat(f, ExtendedShift, math.MinInt32, math.MaxInt32))
}

func PreciseFromFloat(f float64) Precise {
	return Precise(fromFloat(f, PreciseShift, math.MinInt32, math.MaxInt32))
}

func TimeFromFloat(sec float64) Time {
	return Time(fromFloat(sec, TimeShift, math.MinInt64, math.MaxInt64))
}

func (c Compact) Float() float64  { return float64(c) / (1 << CompactShift) }
func (e Extended) Float() float64 { return float64(e) / (1 << ExtendedShift) }
func (p Precise) Float() float64  { return float64(p) / (1 << PreciseShift) }
func (t Time) Seconds() float64   { return float64(t) / (1 << TimeShift) }

// Extended widens a compact value; both are Q12 so only the width changes.
func (c Compact) Extended() Extended { return Extended(c) }

// Compact narrows to 16 bits with saturation.
func (e Extended) Compact() Compact { return Compact(SatInt16(int64(e))) }

// Precise rescales Q12 to Q24 with saturation.
func (e Extended) Precise() Precise { return Precise(SatInt32(int64(e) << (PreciseShift - ExtendedShift))) }

// Extended rescales Q24 to Q12, rounding to nearest.
func (p Precise) Extended() Extended {
	return Extended(SatInt32(RoundShift(int64(p), PreciseShift-ExtendedShift)))
}

// TimeFromDuration converts d to Q24 seconds, rounding the sub-second part.
func TimeFromDuration(d time.Duration) Time {
	secs := int64(d / time.Second)
	rem := int64(d % time.Second)
	if secs > math.MaxInt64>>TimeShift {
		return MaxTime
	}
	if secs < math.MinInt64>>TimeShift {
		return Time(math.MinInt64)
	}
	frac := (rem<<TimeShift + int64(time.Second)/2) / int64(time.Second)
	if rem < 0 {
		frac = (rem<<TimeShift - int64(time.Second)/2) / int64(time.Second)
	}
	return Time(secs<<TimeShift + frac)
}

// Duration converts t back to a time.Duration, rounding to the nanosecond.
func (t Time) Duration() time.Duration {
	secs := int64(t) >> TimeShift
	frac := int64(t) & (1<<TimeShift - 1)
	if secs > math.MaxInt64/int64(time.Second)-1 {
		return time.Duration(math.MaxInt64)
	}
	ns := (frac*int64(time.Second) + 1<<(TimeShift-1)) >> TimeShift
	return time.Duration(secs*int64(time.Second) + ns)
}

// TimeCoefFromHz returns the Q32 seconds-per-tick coefficient of a counter
// running at hz. Rates at or below 1 Hz saturate.
func TimeCoefFromHz(hz float64) TimeCoef {
	if hz <= 0 || math.IsNaN(hz) {
		return 0
	}
	v := math.Round(float64(uint64(1)<<TimeCoefShift) / hz)
	if v >= math.MaxUint32 {
		return math.MaxUint32
	}
	return TimeCoef(v)
}

// TicksToTime scales a wide tick count by coef (Q32 seconds/tick) into Q24
// seconds. The product is formed in 128 bits and rounded before the shift.
// ok is false when the result does not fit; t is then MaxTime.
func TicksToTime(ticks uint64, coef TimeCoef) (t Time, ok bool) {
	const shift = TimeCoefShift - TimeShift
	hi, lo := bits.Mul64(ticks, uint64(coef))
	lo, carry := bits.Add64(lo, 1<<(shift-1), 0)
	hi += carry
	if hi>>shift != 0 {
		return MaxTime, false
	}
	v := hi<<(64-shift) | lo>>shift
	if v > math.MaxInt64 {
		return MaxTime, false
	}
	return Time(v), true
}

// Rate returns count/elapsed as a Q24 rate per second. Non-positive elapsed
// yields 0; rates beyond the Precise range saturate.
func Rate(count uint32, elapsed Time) Precise {
	if elapsed <= 0 || count == 0 {
		return 0
	}
	// count * 2^48 / elapsed: the Q24 numerator over a Q24 denominator, scaled to Q24.
	hi, lo := bits.Mul64(uint64(count), 1<<(2*PreciseShift))
	den := uint64(elapsed)
	if hi >= den {
		return math.MaxInt32
	}
	q, r := bits.Div64(hi, lo, den)
	if r >= den-r {
		q++
	}
	if q > math.MaxInt32 {
		return math.MaxInt32
	}
	return Precise(q)
}
