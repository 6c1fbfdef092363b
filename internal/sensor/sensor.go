// Package sensor describes physical tri-axis inputs and converts their raw
// counts into fixed-point engineering units.
package sensor

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"sensorhub/internal/fixedpoint"
)

// Type identifies a physical sensor. The zero value is invalid.
type Type uint8

const (
	TypeAccelerometer Type = iota + 1
	TypeMagnetometer
	TypeGyroscope

	typeEnd
)

// TypeCount is the number of valid sensor types.
const TypeCount = int(typeEnd) - 1

// Types lists every valid sensor type in table order.
var Types = []Type{TypeAccelerometer, TypeMagnetometer, TypeGyroscope}

func (t Type) Valid() bool { return t > 0 && t < typeEnd }

func (t Type) String() string {
	switch t {
	case TypeAccelerometer:
		return "accelerometer"
	case TypeMagnetometer:
		return "magnetometer"
	case TypeGyroscope:
		return "gyroscope"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType accepts the String form plus the short names accel, mag and gyro.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accelerometer", "accel":
		return TypeAccelerometer, nil
	case "magnetometer", "mag":
		return TypeMagnetometer, nil
	case "gyroscope", "gyro":
		return TypeGyroscope, nil
	}
	return 0, fmt.Errorf("sensor: unknown type %q", s)
}

// Format is the fixed-point format a sensor type converts into.
type Format uint8

const (
	FormatExtended Format = iota // Q12
	FormatPrecise                // Q24
)

// Shift returns the number of fractional bits of f.
func (f Format) Shift() uint {
	if f == FormatPrecise {
		return fixedpoint.PreciseShift
	}
	return fixedpoint.ExtendedShift
}

// Format returns the output format: Q12 m/s² and µT for accelerometer and
// magnetometer, Q24 rad/s for gyroscope.
func (t Type) Format() Format {
	if t == TypeGyroscope {
		return FormatPrecise
	}
	return FormatExtended
}

// Mask is a set of sensor types.
type Mask uint8

func (t Type) Bit() Mask {
	if !t.Valid() {
		return 0
	}
	return 1 << (t - 1)
}

func (m Mask) Has(t Type) bool { return t.Valid() && m&t.Bit() != 0 }

func (m Mask) Len() int { return bits.OnesCount8(uint8(m)) }

func (m Mask) String() string {
	var parts []string
	for _, t := range Types {
		if m.Has(t) {
			parts = append(parts, t.String())
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// AxisSelector picks a raw source axis for one output axis. Negative values
// select the axis with its sign flipped; AxisNone outputs zero.
type AxisSelector int8

const (
	AxisNegZ AxisSelector = iota - 3
	AxisNegY
	AxisNegX
	AxisNone
	AxisX
	AxisY
	AxisZ
)

func (a AxisSelector) Valid() bool { return a >= AxisNegZ && a <= AxisZ }

// Source returns the raw axis index and whether the value is negated.
// ok is false for AxisNone.
func (a AxisSelector) Source() (index int, negate bool, ok bool) {
	switch {
	case a > AxisNone:
		return int(a) - 1, false, true
	case a < AxisNone:
		return int(-a) - 1, true, true
	}
	return 0, false, false
}

func (a AxisSelector) String() string {
	idx, neg, ok := a.Source()
	if !ok || !a.Valid() {
		return "none"
	}
	s := string("xyz"[idx])
	if neg {
		s = "-" + s
	}
	return s
}

// ParseAxis parses "x", "-y", "+z" or "none".
func ParseAxis(s string) (AxisSelector, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return AxisNone, nil
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) != 1 || s[0] < 'x' || s[0] > 'z' {
		return AxisNone, fmt.Errorf("sensor: bad axis %q", s)
	}
	a := AxisSelector(s[0]-'x') + AxisX
	if neg {
		a = -a
	}
	return a, nil
}

// AxisMap maps output axes x, y, z to raw source axes.
type AxisMap [3]AxisSelector

// IdentityAxisMap passes raw x, y, z through unchanged.
var IdentityAxisMap = AxisMap{AxisX, AxisY, AxisZ}

// Validate checks that every selector is in range, at most one output axis
// is unused, and no source axis is used twice.
func (m AxisMap) Validate() error {
	var used [3]bool
	unused := 0
	for i, a := range m {
		if !a.Valid() {
			return fmt.Errorf("axis %d: selector %d out of range", i, a)
		}
		idx, _, ok := a.Source()
		if !ok {
			unused++
			continue
		}
		if used[idx] {
			return fmt.Errorf("axis %d: source %s used twice", i, a)
		}
		used[idx] = true
	}
	if unused > 1 {
		return errors.New("more than one unused axis")
	}
	return nil
}

// Calibration is the per-axis bias, in output units, subtracted by
// calibrated consumers. Uncalibrated results report it alongside the data.
type Calibration struct {
	Bias [3]int32
}

// CalibrationWriteFunc receives updated calibration from background
// processing; persisting it is the caller's business.
type CalibrationWriteFunc func(Calibration)

// Descriptor is the static configuration of one physical input. The hub
// keeps a reference to it while registered; callers must not mutate it.
type Descriptor struct {
	Type    Type
	AxisMap AxisMap
	// DataWidth is the number of significant raw bits (1..32); bits above it
	// are masked off and the value is sign-extended from the top bit.
	DataWidth uint8
	// Offset and Scale are indexed by raw source axis. Scale is Q24 output
	// units per count.
	Offset [3]int32
	Scale  [3]fixedpoint.Precise
	// Min and Max bound converted values, in the output format.
	Min, Max int32
	// SamplePeriod is the nominal interval between samples (Q24 seconds).
	SamplePeriod fixedpoint.Time
	// Noise is the RMS noise in output units.
	Noise       int32
	FactoryBias [3]int32

	Calibration        *Calibration
	OnCalibrationWrite CalibrationWriteFunc
}

// Validate reports the first field that makes d unusable.
func (d *Descriptor) Validate() error {
	if d == nil {
		return errors.New("sensor: nil descriptor")
	}
	if !d.Type.Valid() {
		return fmt.Errorf("sensor: invalid type %d", d.Type)
	}
	if err := d.AxisMap.Validate(); err != nil {
		return fmt.Errorf("sensor: %s: %w", d.Type, err)
	}
	if d.DataWidth == 0 || d.DataWidth > 32 {
		return fmt.Errorf("sensor: %s: data width %d not in 1..32", d.Type, d.DataWidth)
	}
	if d.Min >= d.Max {
		return fmt.Errorf("sensor: %s: range [%d, %d] is empty", d.Type, d.Min, d.Max)
	}
	if d.SamplePeriod <= 0 {
		return fmt.Errorf("sensor: %s: sample period must be positive", d.Type)
	}
	for i, s := range d.Scale {
		if s == 0 {
			return fmt.Errorf("sensor: %s: scale[%d] is zero", d.Type, i)
		}
	}
	return nil
}

// Bias returns the calibration bias if set, else the factory bias.
func (d *Descriptor) Bias() [3]int32 {
	if d.Calibration != nil {
		return d.Calibration.Bias
	}
	return d.FactoryBias
}

// RawSample is one reading as delivered by a driver: counts for raw axes
// x, y, z and the free-running 32-bit tick counter at capture.
type RawSample struct {
	Axes  [3]int32
	Ticks uint32
}

// Reading is a raw sample tagged with the sensor that produced it, as
// delivered by a sample source.
type Reading struct {
	Type Type
	Raw  RawSample
}

// Sample is a converted reading in the sensor type's output format.
type Sample struct {
	Type Type
	Axes [3]int32
	Time fixedpoint.Time
}

// ToAlgorithmFrame applies the fixed sensor-to-algorithm axis permutation
// (x = y, y = -x, z = z).
func ToAlgorithmFrame(v [3]int32) [3]int32 {
	return [3]int32{v[1], fixedpoint.Negate(v[0]), v[2]}
}
