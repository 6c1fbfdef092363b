package sim

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"sensorhub/internal/replay"
	"sensorhub/internal/sensor"
)

const standardGravity = 9.80665

// ActivityScript is a deterministic, script-driven description of a wearer's
// activity, rendered into raw accelerometer counts.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 14s
//	sample_rate_hz: 50
//	tick_hz: 1000
//	start_tick: 4294963200
//	counts_per_g: 4096
//	keyframes:
//	  - t: 0s
//	    activity: still
//	  - t: 1s
//	    activity: walk
//	    cadence_hz: 1.8
//	    amplitude: 2.5
//	  - t: 11s
//	    activity: still
//
// Each keyframe holds until the next one. Cadence and amplitude interpolate
// linearly between consecutive walk keyframes.
type ActivityScript struct {
	Version      int                `yaml:"version"`
	Duration     time.Duration      `yaml:"duration"`
	SampleRateHz float64            `yaml:"sample_rate_hz"`
	TickHz       float64            `yaml:"tick_hz"`
	StartTick    uint32             `yaml:"start_tick"`
	CountsPerG   float64            `yaml:"counts_per_g"`
	Keyframes    []ActivityKeyframe `yaml:"keyframes"`
}

// ActivityKeyframe is a time-stamped activity. Amplitude is the vertical
// acceleration swing in m/s².
type ActivityKeyframe struct {
	T         time.Duration `yaml:"t"`
	Activity  string        `yaml:"activity"`
	CadenceHz float64       `yaml:"cadence_hz"`
	Amplitude float64       `yaml:"amplitude"`
}

const (
	ActivityStill = "still"
	ActivityWalk  = "walk"
)

// DefaultWalkScript is one second still, ten seconds walking at 1.8 steps/s,
// then three seconds still.
func DefaultWalkScript() ActivityScript {
	return ActivityScript{
		Version:  1,
		Duration: 14 * time.Second,
		Keyframes: []ActivityKeyframe{
			{T: 0, Activity: ActivityStill},
			{T: time.Second, Activity: ActivityWalk, CadenceHz: 1.8, Amplitude: 2.5},
			{T: 11 * time.Second, Activity: ActivityStill},
		},
	}
}

// Scenario is the validated, runtime representation.
type Scenario struct {
	script   ActivityScript
	duration time.Duration
}

// LoadActivityScript reads and unmarshals a YAML activity script from path.
func LoadActivityScript(path string) (ActivityScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ActivityScript{}, err
	}
	return ParseActivityScriptYAML(b)
}

// ParseActivityScriptYAML parses a YAML activity script.
func ParseActivityScriptYAML(b []byte) (ActivityScript, error) {
	var s ActivityScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ActivityScript{}, err
	}
	return s, nil
}

// NewScenario validates script, applies defaults and returns a Scenario.
func NewScenario(script ActivityScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if script.SampleRateHz == 0 {
		script.SampleRateHz = 50
	}
	if script.TickHz == 0 {
		script.TickHz = 1000
	}
	if script.CountsPerG == 0 {
		script.CountsPerG = 4096
	}
	if script.SampleRateHz < 0 || script.TickHz < 0 || script.CountsPerG < 0 {
		return nil, fmt.Errorf("sample_rate_hz, tick_hz and counts_per_g must be > 0")
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i, kf := range script.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		switch kf.Activity {
		case ActivityStill:
		case ActivityWalk:
			if kf.CadenceHz <= 0 || kf.Amplitude <= 0 {
				return nil, fmt.Errorf("keyframes[%d]: walk needs cadence_hz and amplitude > 0", i)
			}
		default:
			return nil, fmt.Errorf("keyframes[%d].activity must be %q or %q", i, ActivityStill, ActivityWalk)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = script.Keyframes[len(script.Keyframes)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}
	return &Scenario{script: script, duration: dur}, nil
}

// Duration returns the effective scenario duration.
func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// SamplePeriod is the interval between rendered samples.
func (s *Scenario) SamplePeriod() time.Duration {
	return time.Duration(float64(time.Second) / s.script.SampleRateHz)
}

// ActivityState is the computed activity at a time.
type ActivityState struct {
	Walking   bool
	CadenceHz float64
	Amplitude float64
}

// StateAt computes the activity at elapsed, clamped to [0, Duration()].
func (s *Scenario) StateAt(elapsed time.Duration) ActivityState {
	if s == nil {
		return ActivityState{}
	}
	elapsed = max(0, min(elapsed, s.duration))

	k0, k1, alpha := selectSegment(s.script.Keyframes, elapsed)
	if k0.Activity != ActivityWalk {
		return ActivityState{}
	}
	if k1.Activity != ActivityWalk {
		k1 = k0
	}
	return ActivityState{
		Walking:   true,
		CadenceHz: lerp(k0.CadenceHz, k1.CadenceHz, alpha),
		Amplitude: lerp(k0.Amplitude, k1.Amplitude, alpha),
	}
}

func (s *Scenario) sampleCount() int {
	return int(math.Round(s.duration.Seconds() * s.script.SampleRateHz))
}

// Records renders the scenario as a replayable sample log: a START marker
// followed by one accelerometer reading per sample period. The tick counter
// starts at StartTick and wraps at 32 bits.
func (s *Scenario) Records() []replay.Record {
	sc := s.script
	n := s.sampleCount()
	out := make([]replay.Record, 0, n+1)
	out = append(out, replay.Record{Start: true})

	q := func(v float64) int32 { return int32(math.Round(v / standardGravity * sc.CountsPerG)) }
	var phase float64
	walking := false
	for k := 0; k < n; k++ {
		at := time.Duration(float64(k) / sc.SampleRateHz * float64(time.Second))
		st := s.StateAt(at)
		ticks := sc.StartTick + uint32(uint64(math.Round(float64(k)*sc.TickHz/sc.SampleRateHz)))

		axes := [3]int32{0, 0, q(standardGravity)}
		if st.Walking {
			if !walking {
				phase = 0
			}
			a := st.Amplitude
			axes = [3]int32{
				q(0.3 * a * math.Sin(phase/2)),
				q(0.5 * a * math.Sin(phase+math.Pi/2)),
				q(standardGravity + a*math.Sin(phase) + 0.3*a*math.Sin(2*phase+0.5)),
			}
			phase += 2 * math.Pi * st.CadenceHz / sc.SampleRateHz
		}
		walking = st.Walking

		out = append(out, replay.Record{
			At: at,
			Reading: sensor.Reading{
				Type: sensor.TypeAccelerometer,
				Raw:  sensor.RawSample{Axes: axes, Ticks: ticks},
			},
		})
	}
	return out
}

// ExpectedSteps is the number of whole gait cycles the scenario contains:
// one step per cadence period of walking.
func (s *Scenario) ExpectedSteps() int {
	var cycles float64
	n := s.sampleCount()
	for k := 0; k < n; k++ {
		st := s.StateAt(time.Duration(float64(k) / s.script.SampleRateHz * float64(time.Second)))
		if st.Walking {
			cycles += st.CadenceHz / s.script.SampleRateHz
		}
	}
	return int(math.Round(cycles))
}

func selectSegment(kfs []ActivityKeyframe, t time.Duration) (ActivityKeyframe, ActivityKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	return k0, k1, max(0, min(alpha, 1))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
