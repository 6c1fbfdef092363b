package hub

import (
	"sensorhub/internal/dsp"
	"sensorhub/internal/fixedpoint"
	"sensorhub/internal/sensor"
)

// BiasConfig tunes the background stationary-bias tracker.
type BiasConfig struct {
	Disabled bool
	// WindowShift sets the averaging window to 2^WindowShift samples. The
	// device must stay still for a full window before an estimate is made.
	WindowShift uint
	// NoiseFactor scales the descriptor's Noise into the stillness
	// tolerance. Descriptors without Noise fall back to DefaultStillness.
	NoiseFactor int32
	// DefaultStillness is the tolerance in Q12 (accelerometer, magnetometer)
	// or Q24 (gyroscope) units per format.
	DefaultStillness [2]int32
	// MinChange suppresses writes that move every axis by less than this
	// fraction of the stillness tolerance (numerator over 16).
	MinChange int32
}

func DefaultBiasConfig() BiasConfig {
	return BiasConfig{
		WindowShift: 6,
		NoiseFactor: 4,
		DefaultStillness: [2]int32{
			int32(fixedpoint.ExtendedFromFloat(0.05)),
			int32(fixedpoint.PreciseFromFloat(0.005)),
		},
		MinChange: 4,
	}
}

// standardGravity in Q12 m/s².
var standardGravity = int32(fixedpoint.ExtendedFromFloat(9.80665))

// biasTracker estimates a sensor's zero-rate offset while the device is
// still: it averages a full window of samples that all stay within the
// stillness tolerance of the running mean. Accelerometer estimates have
// gravity removed from the dominant axis. Magnetometer bias cannot be
// observed while still, so it is not tracked.
type biasTracker struct {
	owner   SensorHandle
	mean    *dsp.MovingAverage3
	still   int
	written bool
	last    [3]int32
}

func (b *biasTracker) reset(owner SensorHandle, shift uint) {
	b.owner = owner
	if b.mean == nil || b.mean.Window() != 1<<min(shift, dsp.MaxWindowShift) {
		b.mean = dsp.NewMovingAverage3(shift)
	}
	b.mean.Reset()
	b.still = 0
	b.written = false
	b.last = [3]int32{}
}

func (cfg BiasConfig) tolerance(d *sensor.Descriptor) int32 {
	if d.Noise > 0 && cfg.NoiseFactor > 0 {
		return fixedpoint.SatInt32(int64(d.Noise) * int64(cfg.NoiseFactor))
	}
	return cfg.DefaultStillness[d.Type.Format()]
}

// update feeds one converted sample; ok is true when a new calibration
// should be written.
func (b *biasTracker) update(cfg BiasConfig, d *sensor.Descriptor, s sensor.Sample) (sensor.Calibration, bool) {
	if d.Type == sensor.TypeMagnetometer {
		return sensor.Calibration{}, false
	}
	m := b.mean.Update(s.Axes)
	tol := int64(cfg.tolerance(d))
	for i := range s.Axes {
		dev := int64(s.Axes[i]) - int64(m[i])
		if dev > tol || dev < -tol {
			b.still = 0
			return sensor.Calibration{}, false
		}
	}
	b.still++
	if b.still < b.mean.Window() {
		return sensor.Calibration{}, false
	}
	b.still = 0

	bias := m
	if d.Type == sensor.TypeAccelerometer {
		axis, negative := dominantAxis(m)
		if negative {
			bias[axis] = fixedpoint.SatInt32(int64(bias[axis]) + int64(standardGravity))
		} else {
			bias[axis] = fixedpoint.SatInt32(int64(bias[axis]) - int64(standardGravity))
		}
	}

	if b.written {
		minChange := tol * int64(cfg.MinChange) / 16
		moved := false
		for i := range bias {
			c := int64(bias[i]) - int64(b.last[i])
			if c > minChange || c < -minChange {
				moved = true
			}
		}
		if !moved {
			return sensor.Calibration{}, false
		}
	}
	b.written = true
	b.last = bias
	return sensor.Calibration{Bias: bias}, true
}

// dominantAxis returns the axis with the largest magnitude and its sign.
func dominantAxis(v [3]int32) (axis int, negative bool) {
	best := int64(-1)
	for i, a := range v {
		m := int64(a)
		if m < 0 {
			m = -m
		}
		if m > best {
			best = m
			axis = i
		}
	}
	return axis, v[axis] < 0
}
