package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"sensorhub/internal/fixedpoint"
	"sensorhub/internal/hub"
	"sensorhub/internal/runner"
	"sensorhub/internal/sensor"
	"sensorhub/internal/step"
)

func seg(start, stop float64, typ step.SegmentType) step.Segment {
	return step.Segment{
		StartTime: fixedpoint.TimeFromFloat(start),
		StopTime:  fixedpoint.TimeFromFloat(stop),
		Type:      typ,
	}
}

func TestBuild_StepStatistics(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snap := runner.Snapshot{
		RunID:        "run-1",
		Readings:     700,
		StepsValid:   true,
		Steps:        step.Data{TotalCount: 4},
		Hub:          hub.Stats{ForegroundDropped: 1, BackgroundDropped: 2},
		MotionEvents: []fixedpoint.Time{fixedpoint.TimeFromFloat(4.5)},
		Calibration:  map[sensor.Type]sensor.Calibration{sensor.TypeGyroscope: {Bias: [3]int32{1, -2, 3}}},
		StartedAt:    started,
		UpdatedAt:    started.Add(14 * time.Second),
	}
	segments := []step.Segment{
		seg(1.0, 1.5, step.SegmentFirst),
		seg(1.5, 2.0, step.SegmentMid),
		seg(2.0, 2.75, step.SegmentMid),
		seg(2.75, 3.25, step.SegmentLast),
	}
	s := Build(snap, segments)

	if s.Steps != 4 || s.Segments != 4 || s.Walks != 1 || s.Dropped != 3 {
		t.Fatalf("counts: %+v", s)
	}
	if s.Duration != 14*time.Second {
		t.Fatalf("Duration=%s", s.Duration)
	}
	// periods 0.5, 0.5, 0.75, 0.5
	if math.Abs(s.MeanStepSec-0.5625) > 1e-6 {
		t.Fatalf("MeanStepSec=%f", s.MeanStepSec)
	}
	if math.Abs(s.StdDevStepSec-0.125) > 1e-6 {
		t.Fatalf("StdDevStepSec=%f", s.StdDevStepSec)
	}
	if math.Abs(s.MedianStepSec-0.5) > 1e-6 {
		t.Fatalf("MedianStepSec=%f", s.MedianStepSec)
	}
	if math.Abs(s.CadenceHz-1/0.5625) > 1e-6 {
		t.Fatalf("CadenceHz=%f", s.CadenceHz)
	}
	if len(s.MotionEventsSec) != 1 || math.Abs(s.MotionEventsSec[0]-4.5) > 1e-6 {
		t.Fatalf("MotionEventsSec=%v", s.MotionEventsSec)
	}
	if s.Calibration["gyroscope"] != [3]int32{1, -2, 3} {
		t.Fatalf("Calibration=%v", s.Calibration)
	}
}

func TestBuild_NoSteps(t *testing.T) {
	s := Build(runner.Snapshot{Steps: step.Data{TotalCount: 9}}, nil)
	if s.Steps != 0 || s.CadenceHz != 0 || s.Walks != 0 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	s = Build(runner.Snapshot{}, []step.Segment{seg(1, 1.5, step.SegmentFirst)})
	if s.StdDevStepSec != 0 || math.Abs(s.CadenceHz-2) > 1e-6 {
		t.Fatalf("single segment: %+v", s)
	}
}

func TestSummary_Write(t *testing.T) {
	s := Summary{
		RunID:           "abc",
		Steps:           2,
		Walks:           1,
		Segments:        2,
		MeanStepSec:     0.5,
		MedianStepSec:   0.5,
		CadenceHz:       2,
		MotionEventsSec: []float64{4.25},
		Calibration:     map[string][3]int32{"accelerometer": {1, 2, 3}},
	}
	var buf bytes.Buffer
	if err := s.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	for _, want := range []string{
		"run abc: 0 readings",
		"steps: 2 in 1 walk(s), 2 segments",
		"cadence 2.00 Hz",
		"significant motion at 4.250s",
		"accelerometer bias: 1 2 3",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("text output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := s.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got["run_id"] != "abc" || got["cadence_hz"] != 2.0 {
		t.Fatalf("json fields: %v", got)
	}
}
