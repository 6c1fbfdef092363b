package fixedpoint

import (
	"math"
	"testing"
	"time"
)

func TestRoundShift_RoundsHalfUp(t *testing.T) {
	cases := []struct {
		v     int64
		shift uint
		want  int64
	}{
		{v: 0x800, shift: 12, want: 1},  // exactly half
		{v: 0x7FF, shift: 12, want: 0},  // just under half
		{v: -0x800, shift: 12, want: 0}, // half rounds toward +inf
		{v: -0x801, shift: 12, want: -1},
		{v: 12345, shift: 0, want: 12345},
		{v: math.MaxInt64, shift: 8, want: math.MaxInt64 >> 8},
	}
	for _, tc := range cases {
		if got := RoundShift(tc.v, tc.shift); got != tc.want {
			t.Fatalf("RoundShift(%d,%d)=%d want %d", tc.v, tc.shift, got, tc.want)
		}
	}
}

func TestMulShift_Saturates(t *testing.T) {
	if got := MulShift(math.MaxInt32, math.MaxInt32, 0); got != math.MaxInt32 {
		t.Fatalf("got=%d want max", got)
	}
	if got := MulShift(math.MinInt32, math.MaxInt32, 0); got != math.MinInt32 {
		t.Fatalf("got=%d want min", got)
	}
	// 1.5 (Q24) * 2 (Q24) = 3 (Q24)
	a := int32(PreciseFromFloat(1.5))
	b := int32(PreciseFromFloat(2))
	if got := MulShift(a, b, PreciseShift); got != int32(PreciseFromFloat(3)) {
		t.Fatalf("got=%d want %d", got, PreciseFromFloat(3))
	}
}

func TestNegate_Saturates(t *testing.T) {
	if got := Negate(math.MinInt32); got != math.MaxInt32 {
		t.Fatalf("got=%d want max", got)
	}
	if got := Negate(7); got != -7 {
		t.Fatalf("got=%d want -7", got)
	}
}

func TestFloatConversions(t *testing.T) {
	if got := ExtendedFromFloat(9.80665).Float(); math.Abs(got-9.80665) > 1.0/4096 {
		t.Fatalf("extended roundtrip=%v", got)
	}
	if got := PreciseFromFloat(0.001).Float(); math.Abs(got-0.001) > 1.0/(1<<24) {
		t.Fatalf("precise roundtrip=%v", got)
	}
	if got := CompactFromFloat(100); got != math.MaxInt16 {
		t.Fatalf("compact=%d want saturated", got)
	}
	if got := PreciseFromFloat(-1000); got != math.MinInt32 {
		t.Fatalf("precise=%d want saturated", got)
	}
	if got := ExtendedFromFloat(math.NaN()); got != 0 {
		t.Fatalf("NaN=%d want 0", got)
	}
}

func TestFormatRescaling(t *testing.T) {
	e := ExtendedFromFloat(1.25)
	if got := e.Precise(); got != PreciseFromFloat(1.25) {
		t.Fatalf("precise=%d want %d", got, PreciseFromFloat(1.25))
	}
	if got := PreciseFromFloat(1.25).Extended(); got != e {
		t.Fatalf("extended=%d want %d", got, e)
	}
	if got := Extended(1 << 20).Compact(); got != math.MaxInt16 {
		t.Fatalf("compact=%d want saturated", got)
	}
	if got := CompactFromFloat(-2).Extended(); got != ExtendedFromFloat(-2) {
		t.Fatalf("extended=%d", got)
	}
}

func TestTimeFromDuration_RoundTrip(t *testing.T) {
	for _, d := range []time.Duration{0, 20 * time.Millisecond, 1500 * time.Millisecond, 36 * time.Hour} {
		tm := TimeFromDuration(d)
		back := tm.Duration()
		if diff := back - d; diff > 60*time.Nanosecond || diff < -60*time.Nanosecond {
			t.Fatalf("d=%s back=%s", d, back)
		}
	}
	if got := TimeFromDuration(time.Second); got != 1<<TimeShift {
		t.Fatalf("1s=%d want %d", got, 1<<TimeShift)
	}
}

func TestTimeCoefFromHz(t *testing.T) {
	if got := TimeCoefFromHz(32768); got != 131072 {
		t.Fatalf("coef=%d want 131072", got)
	}
	if got := TimeCoefFromHz(1000); got != 4294967 {
		t.Fatalf("coef=%d want 4294967", got)
	}
	if got := TimeCoefFromHz(0.5); got != math.MaxUint32 {
		t.Fatalf("coef=%d want saturated", got)
	}
	if got := TimeCoefFromHz(0); got != 0 {
		t.Fatalf("coef=%d want 0", got)
	}
}

func TestTicksToTime(t *testing.T) {
	coef := TimeCoefFromHz(32768)
	got, ok := TicksToTime(32768, coef)
	if !ok || got != 1<<TimeShift {
		t.Fatalf("got=%d ok=%v want 1s", got, ok)
	}

	// One extension word past the 32-bit counter: 2^32 ticks at 32768 Hz = 131072 s.
	got, ok = TicksToTime(1<<32, coef)
	if !ok || got != Time(131072)<<TimeShift {
		t.Fatalf("got=%d ok=%v", got, ok)
	}

	got, ok = TicksToTime(math.MaxUint64, math.MaxUint32)
	if ok || got != MaxTime {
		t.Fatalf("got=%d ok=%v want saturation", got, ok)
	}
}

func TestRate(t *testing.T) {
	// 4 events over 2 s = 2 Hz.
	if got := Rate(4, TimeFromDuration(2*time.Second)); got != PreciseFromFloat(2) {
		t.Fatalf("rate=%d want %d", got, PreciseFromFloat(2))
	}
	if got := Rate(3, 0); got != 0 {
		t.Fatalf("rate=%d want 0", got)
	}
	if got := Rate(1000, 1); got != math.MaxInt32 {
		t.Fatalf("rate=%d want saturated", got)
	}
}
