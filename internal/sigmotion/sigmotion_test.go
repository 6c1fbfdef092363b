package sigmotion

import (
	"math"
	"testing"

	"sensorhub/internal/fixedpoint"
)

var period = fixedpoint.TimeFromFloat(0.02)

func newRecorded() (*Detector, *[]Event) {
	d := NewDetector(DefaultConfig(), period)
	var events []Event
	d.SetCallback(func(e Event) { events = append(events, e) })
	return d, &events
}

func TestRunLengthSpansFourSeconds(t *testing.T) {
	d := NewDetector(DefaultConfig(), period)
	if d.RunLength() != 200 {
		t.Fatalf("run length=%d want 200", d.RunLength())
	}
	d.SetPeriod(fixedpoint.TimeFromFloat(0.01))
	if d.RunLength() != 400 {
		t.Fatalf("run length at 100Hz=%d want 400", d.RunLength())
	}
	d.SetPeriod(0)
	if d.RunLength() != 1 {
		t.Fatalf("run length with zero period=%d want 1", d.RunLength())
	}
}

func TestEdgeTrigger_ExactRunLength(t *testing.T) {
	d, events := newRecorded()
	hi := int32(d.cfg.Threshold)
	n := int(d.RunLength())

	for i := 0; i < n-1; i++ {
		d.updateEnergy(hi, fixedpoint.Time(i)*period)
	}
	if len(*events) != 0 || d.Significant() {
		t.Fatalf("fired before run length reached")
	}
	d.updateEnergy(hi, fixedpoint.Time(n-1)*period)
	if len(*events) != 1 || !d.Significant() {
		t.Fatalf("events=%d significant=%v want 1/true", len(*events), d.Significant())
	}
	want := fixedpoint.Time(n-1)*period - 32*period
	if (*events)[0].Time != want {
		t.Fatalf("event time=%d want %d", (*events)[0].Time, want)
	}

	// Staying above threshold does not re-fire.
	for i := 0; i < 3*n; i++ {
		d.updateEnergy(hi, 0)
	}
	if len(*events) != 1 {
		t.Fatalf("events=%d after sustained motion", len(*events))
	}
}

func TestEdgeTrigger_BelowThresholdNeverFires(t *testing.T) {
	d, events := newRecorded()
	lo := int32(d.cfg.Threshold) - 1
	for i := 0; i < 10*int(d.RunLength()); i++ {
		d.updateEnergy(lo, 0)
	}
	if len(*events) != 0 {
		t.Fatalf("events=%d want 0", len(*events))
	}
}

func TestEdgeTrigger_DropResetsRun(t *testing.T) {
	d, events := newRecorded()
	hi := int32(d.cfg.Threshold)
	n := int(d.RunLength())

	for i := 0; i < n-1; i++ {
		d.updateEnergy(hi, 0)
	}
	d.updateEnergy(hi-1, 0)
	for i := 0; i < n-1; i++ {
		d.updateEnergy(hi, 0)
	}
	if len(*events) != 0 {
		t.Fatalf("interrupted run fired")
	}
	d.updateEnergy(hi, 0)
	if len(*events) != 1 {
		t.Fatalf("events=%d want 1", len(*events))
	}

	// Rising edge then immediate falling edge: one event at most.
	d.updateEnergy(hi-1, 0)
	if d.Significant() {
		t.Fatalf("flag not cleared on drop")
	}
	d.updateEnergy(hi, 0)
	if len(*events) != 1 {
		t.Fatalf("events=%d after single sample rise", len(*events))
	}
}

func synthetic(leadSec, walkSec, standSec float64) [][3]int32 {
	const g, f, amp = 9.80665, 1.8, 2.5
	q := func(v float64) int32 { return int32(math.Round(v * 4096)) }
	var out [][3]int32
	total := int((leadSec + walkSec + standSec) * 50)
	for i := 0; i < total; i++ {
		tw := float64(i)/50 - leadSec
		if tw < 0 || tw >= walkSec {
			out = append(out, [3]int32{0, 0, q(g)})
			continue
		}
		w := 2 * math.Pi * f * tw
		out = append(out, [3]int32{
			q(0.3 * amp * math.Sin(w/2)),
			q(0.5 * amp * math.Sin(w+math.Pi/2)),
			q(g + amp*math.Sin(w) + 0.3*amp*math.Sin(2*w+0.5)),
		})
	}
	return out
}

func TestDetector_WalkingTriggersOnce(t *testing.T) {
	d, events := newRecorded()
	for i, s := range synthetic(1, 10, 3) {
		d.Update(s, fixedpoint.Time(i)*period)
	}
	if len(*events) != 1 {
		t.Fatalf("events=%d want 1", len(*events))
	}
	if ts := (*events)[0].Time.Seconds(); ts < 4.0 || ts > 5.0 {
		t.Fatalf("event at %.2fs want ~4.4s", ts)
	}
	if d.Significant() {
		t.Fatalf("flag should clear after standing")
	}
}

func TestDetector_ShortBurstDoesNotTrigger(t *testing.T) {
	d, events := newRecorded()
	for i, s := range synthetic(1, 3, 3) {
		d.Update(s, fixedpoint.Time(i)*period)
	}
	if len(*events) != 0 {
		t.Fatalf("events=%d want 0", len(*events))
	}
}

func TestDetector_ResetClearsFlag(t *testing.T) {
	d, events := newRecorded()
	for i, s := range synthetic(0, 6, 0) {
		d.Update(s, fixedpoint.Time(i)*period)
	}
	if !d.Significant() {
		t.Fatalf("expected significant motion")
	}
	d.Reset()
	if d.Significant() {
		t.Fatalf("flag survived reset")
	}
	for i, s := range synthetic(0, 6, 0) {
		d.Update(s, fixedpoint.Time(i)*period)
	}
	if len(*events) != 2 {
		t.Fatalf("events=%d want 2 (callback kept across reset)", len(*events))
	}
}
