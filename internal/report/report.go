// Package report summarizes a finished run: step timing statistics,
// significant-motion events and the calibration the hub settled on.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"sensorhub/internal/runner"
	"sensorhub/internal/sensor"
	"sensorhub/internal/step"
)

type Summary struct {
	RunID    string        `json:"run_id"`
	Duration time.Duration `json:"duration"`
	Readings uint64        `json:"readings"`
	Dropped  uint64        `json:"dropped"`

	Steps    uint64 `json:"steps"`
	Segments int    `json:"segments"`
	// Walks is the number of First segments, i.e. distinct walking bouts.
	Walks int `json:"walks"`

	// Step period statistics over segment durations, in seconds.
	MeanStepSec   float64 `json:"mean_step_sec"`
	StdDevStepSec float64 `json:"stddev_step_sec"`
	MedianStepSec float64 `json:"median_step_sec"`
	// CadenceHz is 1/MeanStepSec.
	CadenceHz float64 `json:"cadence_hz"`

	MotionEventsSec []float64           `json:"motion_events_sec"`
	Calibration     map[string][3]int32 `json:"calibration,omitempty"`
	Hub             map[string]uint64   `json:"hub"`
}

// Build summarizes snap and the segment history reported during the run.
func Build(snap runner.Snapshot, segments []step.Segment) Summary {
	s := Summary{
		RunID:    snap.RunID,
		Readings: snap.Readings,
		Dropped:  snap.Hub.ForegroundDropped + snap.Hub.BackgroundDropped,
		Segments: len(segments),
		Hub: map[string]uint64{
			"enqueued":             snap.Hub.Enqueued,
			"foreground_dropped":   snap.Hub.ForegroundDropped,
			"background_dropped":   snap.Hub.BackgroundDropped,
			"foreground_processed": snap.Hub.ForegroundProcessed,
			"background_processed": snap.Hub.BackgroundProcessed,
			"delivered":            snap.Hub.Delivered,
			"calibration_writes":   snap.Hub.CalibrationWrites,
			"time_saturated":       snap.Hub.TimeSaturated,
		},
	}
	if !snap.StartedAt.IsZero() && snap.UpdatedAt.After(snap.StartedAt) {
		s.Duration = snap.UpdatedAt.Sub(snap.StartedAt)
	}
	if snap.StepsValid {
		s.Steps = uint64(snap.Steps.TotalCount)
	}

	periods := make([]float64, 0, len(segments))
	for _, seg := range segments {
		if seg.Type == step.SegmentFirst {
			s.Walks++
		}
		if d := (seg.StopTime - seg.StartTime).Seconds(); d > 0 {
			periods = append(periods, d)
		}
	}
	if len(periods) > 0 {
		s.MeanStepSec, s.StdDevStepSec = stat.MeanStdDev(periods, nil)
		if len(periods) == 1 {
			s.StdDevStepSec = 0
		}
		slices.Sort(periods)
		s.MedianStepSec = stat.Quantile(0.5, stat.Empirical, periods, nil)
		if s.MeanStepSec > 0 {
			s.CadenceHz = 1 / s.MeanStepSec
		}
	}

	s.MotionEventsSec = make([]float64, 0, len(snap.MotionEvents))
	for _, t := range snap.MotionEvents {
		s.MotionEventsSec = append(s.MotionEventsSec, t.Seconds())
	}
	if len(snap.Calibration) > 0 {
		s.Calibration = make(map[string][3]int32, len(snap.Calibration))
		for t, c := range snap.Calibration {
			s.Calibration[t.String()] = c.Bias
		}
	}
	return s
}

// WriteText writes a human-readable summary.
func (s Summary) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("run %s: %d readings in %s, %d dropped\n", s.RunID, s.Readings, s.Duration.Round(time.Millisecond), s.Dropped)
	ew.printf("steps: %d in %d walk(s), %d segments\n", s.Steps, s.Walks, s.Segments)
	if s.Segments > 0 {
		ew.printf("step period: mean %.3fs stddev %.3fs median %.3fs, cadence %.2f Hz\n",
			s.MeanStepSec, s.StdDevStepSec, s.MedianStepSec, s.CadenceHz)
	}
	for _, t := range s.MotionEventsSec {
		ew.printf("significant motion at %.3fs\n", t)
	}
	for _, t := range []sensor.Type{sensor.TypeAccelerometer, sensor.TypeMagnetometer, sensor.TypeGyroscope} {
		if b, ok := s.Calibration[t.String()]; ok {
			ew.printf("%s bias: %d %d %d\n", t, b[0], b[1], b[2])
		}
	}
	return ew.err
}

func (s Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
