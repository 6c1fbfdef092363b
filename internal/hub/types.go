package hub

import (
	"fmt"
	"strings"

	"sensorhub/internal/fixedpoint"
	"sensorhub/internal/sensor"
	"sensorhub/internal/sigmotion"
	"sensorhub/internal/step"
)

// slotRef addresses a table slot. gen is never zero for a live slot, so the
// zero slotRef is always invalid.
type slotRef struct {
	index uint16
	gen   uint32
}

func (r slotRef) valid() bool { return r.gen != 0 }

// SensorHandle identifies a registered input sensor. It goes stale when the
// sensor is unregistered, even if the slot is reused.
type SensorHandle struct{ ref slotRef }

func (h SensorHandle) Valid() bool { return h.ref.valid() }

func (h SensorHandle) String() string {
	if !h.Valid() {
		return "sensor(nil)"
	}
	return fmt.Sprintf("sensor(%d.%d)", h.ref.index, h.ref.gen)
}

// ResultHandle identifies a result subscription.
type ResultHandle struct{ ref slotRef }

func (h ResultHandle) Valid() bool { return h.ref.valid() }

func (h ResultHandle) String() string {
	if !h.Valid() {
		return "result(nil)"
	}
	return fmt.Sprintf("result(%d.%d)", h.ref.index, h.ref.gen)
}

// ResultType identifies a subscribable output. The zero value is invalid.
type ResultType uint8

const (
	ResultUncalAccelerometer ResultType = iota + 1
	ResultUncalMagnetometer
	ResultUncalGyroscope
	ResultStepCounter
	ResultStepSegment
	ResultSignificantMotion
	// ResultOrientation and ResultRotationVector are enumerated for table
	// compatibility; no algorithm produces them.
	ResultOrientation
	ResultRotationVector

	resultEnd
)

var resultNames = map[ResultType]string{
	ResultUncalAccelerometer: "uncal_accelerometer",
	ResultUncalMagnetometer:  "uncal_magnetometer",
	ResultUncalGyroscope:     "uncal_gyroscope",
	ResultStepCounter:        "step_counter",
	ResultStepSegment:        "step_segment",
	ResultSignificantMotion:  "significant_motion",
	ResultOrientation:        "orientation",
	ResultRotationVector:     "rotation_vector",
}

func (t ResultType) Valid() bool { return t > 0 && t < resultEnd }

func (t ResultType) String() string {
	if n, ok := resultNames[t]; ok {
		return n
	}
	return fmt.Sprintf("ResultType(%d)", uint8(t))
}

// ParseResultType accepts the names produced by String.
func ParseResultType(s string) (ResultType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, n := range resultNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("hub: unknown result type %q", s)
}

// Options are per-subscription flags.
type Options uint8

const (
	// OptionBypassPolicy delivers every sample, ignoring OutputRate and
	// Sensitivity.
	OptionBypassPolicy Options = 1 << iota

	optionsAll = OptionBypassPolicy
)

// ResultFunc receives results. It runs on the processing goroutine and may
// call back into the Hub.
type ResultFunc func(Result)

// ResultDescriptor configures one subscription. The hub keeps a reference
// while subscribed.
type ResultDescriptor struct {
	Type    ResultType
	OnReady ResultFunc
	// OutputRate caps deliveries of sensor streams, in Hz (Q24). Zero means
	// every sample.
	OutputRate fixedpoint.Precise
	// Sensitivity suppresses sensor-stream samples whose largest per-axis
	// change since the last delivery is below it, in output units.
	Sensitivity int32
	Options     Options
}

func (d *ResultDescriptor) validate() error {
	switch {
	case d == nil:
		return ErrNullPointer
	case !d.Type.Valid():
		return fmt.Errorf("%w: result type %d", ErrDescriptorInvalid, d.Type)
	case d.OutputRate < 0:
		return fmt.Errorf("%w: %s: negative output rate", ErrDescriptorInvalid, d.Type)
	case d.Sensitivity < 0:
		return fmt.Errorf("%w: %s: negative sensitivity", ErrDescriptorInvalid, d.Type)
	case d.Options&^optionsAll != 0:
		return fmt.Errorf("%w: %s: unknown options %#x", ErrDescriptorInvalid, d.Type, uint8(d.Options))
	}
	return nil
}

// SensorData is the payload of the uncalibrated sensor results.
type SensorData struct {
	Format sensor.Format
	Axes   [3]int32
	// Bias is the current calibration estimate; it is not subtracted.
	Bias [3]int32
}

// Result is one delivery. Only the field matching Type is set.
type Result struct {
	Type   ResultType
	Handle ResultHandle
	Time   fixedpoint.Time

	Sensor  SensorData
	Steps   step.Data
	Segment step.Segment
	Motion  sigmotion.Event
}
