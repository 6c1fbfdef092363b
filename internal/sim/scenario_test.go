package sim

import (
	"strings"
	"testing"
	"time"

	"sensorhub/internal/sensor"
)

func TestScenario_ParseAndInterpolateCadence(t *testing.T) {
	yaml := []byte(`
version: 1
# duration derived from last keyframe
keyframes:
  - t: 0s
    activity: walk
    cadence_hz: 1.0
    amplitude: 2
  - t: 10s
    activity: walk
    cadence_hz: 2.0
    amplitude: 4
`)

	script, err := ParseActivityScriptYAML(yaml)
	if err != nil {
		t.Fatalf("ParseActivityScriptYAML: %v", err)
	}
	scn, err := NewScenario(script)
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	if scn.Duration() != 10*time.Second {
		t.Fatalf("duration: got %s want %s", scn.Duration(), 10*time.Second)
	}
	if scn.SamplePeriod() != 20*time.Millisecond {
		t.Fatalf("sample period: got %s want 20ms", scn.SamplePeriod())
	}

	st := scn.StateAt(5 * time.Second)
	if !st.Walking || st.CadenceHz != 1.5 || st.Amplitude != 3 {
		t.Fatalf("state at 5s: got %+v want walking 1.5Hz amplitude 3", st)
	}
	// Clamped past the end.
	if st := scn.StateAt(time.Minute); st.CadenceHz != 2 {
		t.Fatalf("clamp cadence: got %v want 2", st.CadenceHz)
	}
}

func TestScenario_StillHoldsUntilNextKeyframe(t *testing.T) {
	scn, err := NewScenario(DefaultWalkScript())
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	cases := []struct {
		at   time.Duration
		walk bool
	}{
		{0, false},
		{999 * time.Millisecond, false},
		{time.Second, true},
		{10*time.Second + 999*time.Millisecond, true},
		{11 * time.Second, false},
	}
	for _, tc := range cases {
		st := scn.StateAt(tc.at)
		if st.Walking != tc.walk {
			t.Fatalf("at %s: walking=%v want %v", tc.at, st.Walking, tc.walk)
		}
		if st.Walking && st.CadenceHz != 1.8 {
			t.Fatalf("at %s: cadence=%v want 1.8 (no interpolation toward still)", tc.at, st.CadenceHz)
		}
	}
}

func TestScenario_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"Version", "version: 2\nkeyframes: [{t: 1s, activity: still}]\n", "unsupported scenario version 2"},
		{"NoKeyframes", "duration: 1s\n", "keyframes is required"},
		{"Unsorted", "keyframes: [{t: 2s, activity: still}, {t: 1s, activity: still}]\n", "keyframes must be sorted by t (index 1)"},
		{"Activity", "keyframes: [{t: 1s, activity: run}]\n", `keyframes[0].activity must be "still" or "walk"`},
		{"WalkCadence", "keyframes: [{t: 1s, activity: walk}]\n", "keyframes[0]: walk needs cadence_hz and amplitude > 0"},
		{"Duration", "keyframes: [{t: 0s, activity: still}]\n", "duration is required (or deriveable from keyframes)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			script, err := ParseActivityScriptYAML([]byte(tc.yaml))
			if err != nil {
				t.Fatalf("ParseActivityScriptYAML: %v", err)
			}
			_, err = NewScenario(script)
			if err == nil || err.Error() != tc.want {
				t.Fatalf("error=%v want %q", err, tc.want)
			}
		})
	}
}

func TestScenario_RecordsWrapTicks(t *testing.T) {
	script := DefaultWalkScript()
	script.StartTick = 0xFFFFF000
	scn, err := NewScenario(script)
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	recs := scn.Records()
	if len(recs) != 701 {
		t.Fatalf("records: got %d want 701", len(recs))
	}
	if !recs[0].Start {
		t.Fatalf("first record should be START")
	}

	wrapped := 0
	for i := 2; i < len(recs); i++ {
		prev, cur := recs[i-1].Reading.Raw.Ticks, recs[i].Reading.Raw.Ticks
		if cur-prev != 20 {
			t.Fatalf("record %d: tick step %d want 20", i, cur-prev)
		}
		if cur < prev {
			wrapped++
		}
		if recs[i].Reading.Type != sensor.TypeAccelerometer {
			t.Fatalf("record %d: type %s", i, recs[i].Reading.Type)
		}
	}
	if wrapped != 1 {
		t.Fatalf("tick counter wrapped %d times, want 1", wrapped)
	}

	still := recs[1].Reading.Raw.Axes
	if still != [3]int32{0, 0, 4096} {
		t.Fatalf("still sample: got %v want [0 0 4096]", still)
	}
	// Walking starts at phase zero: x and z sit at rest, y at its crest.
	first := recs[51].Reading.Raw.Axes
	if first[0] != 0 || first[1] != 522 {
		t.Fatalf("first walking sample: got %v", first)
	}
}

func TestScenario_ExpectedSteps(t *testing.T) {
	scn, err := NewScenario(DefaultWalkScript())
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	if got := scn.ExpectedSteps(); got != 18 {
		t.Fatalf("expected steps: got %d want 18", got)
	}
}

func TestLoadActivityScript_Missing(t *testing.T) {
	_, err := LoadActivityScript("/nonexistent/walk.yaml")
	if err == nil || !strings.Contains(err.Error(), "no such file") {
		t.Fatalf("error=%v", err)
	}
}
