package dsp

import (
	"math"

	"sensorhub/internal/fixedpoint"
)

const (
	// StepFilterTaps is the one-sided length of the symmetric step kernel;
	// the full kernel spans 2*StepFilterTaps+1 samples.
	StepFilterTaps = 13
	// StepFilterDecimation is the ratio of filtered samples to ready outputs.
	StepFilterDecimation = 8

	stepBufLen     = 32
	stepKernelLen  = 2*StepFilterTaps + 1
	stepCoefShift  = 15
	stepChannels   = 4 // x, y, z, magnitude
	stepMagChannel = 3
)

// stepKernel holds the Q15 half-kernel (centre tap first) of a 0.5–3 Hz
// band-pass designed for 50 Hz input. Centre + 2*sum(rest) == 0, so the DC
// gain is exactly zero.
var stepKernel = [StepFilterTaps + 1]int32{
	2420, 2282, 1902, 1346, 705, 81, -444,
	-820, -1035, -1114, -1100, -1047, -996, -970,
}

// StepSample is one StepFilter output.
type StepSample struct {
	// Time is the timestamp of the centre sample (input time minus the
	// group delay) once Filtered, else the input time.
	Time fixedpoint.Time
	Axes [3]int32
	// Norm is the band-passed acceleration magnitude. The magnitude is
	// taken per raw sample and then filtered, so gravity does not rectify it.
	Norm int32
	// Filtered is false while the kernel is still filling; Axes/Norm are
	// then the raw input.
	Filtered bool
	// Ready marks every StepFilterDecimation-th filtered output.
	Ready bool
}

// StepFilter band-passes 3-axis acceleration for step segmentation.
//
// Not safe for concurrent use.
type StepFilter struct {
	buf     [stepBufLen][stepChannels]int32
	next    int
	count   int
	outputs uint32
	period  fixedpoint.Time
}

// NewStepFilter returns a filter for input sampled every period.
func NewStepFilter(period fixedpoint.Time) *StepFilter {
	return &StepFilter{period: period}
}

// SetPeriod changes the sample period used for group-delay compensation.
func (f *StepFilter) SetPeriod(period fixedpoint.Time) { f.period = period }

func (f *StepFilter) Period() fixedpoint.Time { return f.period }

func (f *StepFilter) Reset() {
	f.buf = [stepBufLen][stepChannels]int32{}
	f.next = 0
	f.count = 0
	f.outputs = 0
}

// Update pushes one sample and returns the filter output for it.
func (f *StepFilter) Update(axes [3]int32, t fixedpoint.Time) StepSample {
	mag := Magnitude(axes)
	f.buf[f.next] = [stepChannels]int32{axes[0], axes[1], axes[2], mag}
	newest := f.next
	f.next = (f.next + 1) % stepBufLen

	if f.count < stepKernelLen {
		f.count++
	}
	if f.count < stepKernelLen {
		return StepSample{Time: t, Axes: axes, Norm: mag}
	}

	centre := (newest - StepFilterTaps + stepBufLen) % stepBufLen
	var out [stepChannels]int32
	for ch := 0; ch < stepChannels; ch++ {
		acc := int64(stepKernel[0]) * int64(f.buf[centre][ch])
		for k := 1; k <= StepFilterTaps; k++ {
			fwd := f.buf[(centre+k)%stepBufLen][ch]
			back := f.buf[(centre-k+stepBufLen)%stepBufLen][ch]
			acc += int64(stepKernel[k]) * (int64(fwd) + int64(back))
		}
		out[ch] = fixedpoint.SatInt32(fixedpoint.RoundShift(acc, stepCoefShift))
	}

	f.outputs++
	return StepSample{
		Time:     t - fixedpoint.Time(StepFilterTaps)*f.period,
		Axes:     [3]int32{out[0], out[1], out[2]},
		Norm:     out[stepMagChannel],
		Filtered: true,
		Ready:    f.outputs%StepFilterDecimation == 0,
	}
}

// Magnitude returns the Euclidean norm of v, saturated to int32.
func Magnitude(v [3]int32) int32 {
	var sum uint64
	for _, a := range v {
		x := int64(a)
		sum += uint64(x * x)
	}
	r := Isqrt(sum)
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(r)
}

// Isqrt returns floor(sqrt(v)).
func Isqrt(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	r := uint64(math.Sqrt(float64(v)))
	for r > 0 && r > v/r {
		r--
	}
	for r+1 <= v/(r+1) {
		r++
	}
	return r
}
