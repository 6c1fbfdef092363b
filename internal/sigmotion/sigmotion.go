// Package sigmotion detects sustained device motion from accelerometer data.
package sigmotion

import (
	"time"

	"sensorhub/internal/dsp"
	"sensorhub/internal/fixedpoint"
)

// Event is emitted once per rising edge of the significant-motion flag.
type Event struct {
	// Time is back-dated by half the mean window to line up with the motion.
	Time fixedpoint.Time
}

type EventFunc func(Event)

type Config struct {
	// MeanShift sets the per-axis mean window to 2^MeanShift samples.
	MeanShift uint
	// EnergyShift sets the deviation smoothing window to 2^EnergyShift samples.
	EnergyShift uint
	// NoiseFloor and Threshold are in m/s² (Q12), summed over three axes.
	NoiseFloor fixedpoint.Extended
	Threshold  fixedpoint.Extended
	// RunTime is how long energy must stay above Threshold.
	RunTime fixedpoint.Time
}

func DefaultConfig() Config {
	return Config{
		MeanShift:   6,
		EnergyShift: 5,
		NoiseFloor:  fixedpoint.ExtendedFromFloat(0.02),
		Threshold:   fixedpoint.ExtendedFromFloat(0.5),
		RunTime:     fixedpoint.TimeFromDuration(4 * time.Second),
	}
}

// Detector is a two-state machine (not significant / significant) driven by
// a smoothed absolute-deviation energy.
//
// Not safe for concurrent use.
type Detector struct {
	cfg    Config
	mean   *dsp.MovingAverage3
	energy *dsp.MovingAverage

	period      fixedpoint.Time
	runLength   uint32
	run         uint32
	significant bool

	onEvent EventFunc
}

// NewDetector returns a detector for input sampled every period.
func NewDetector(cfg Config, period fixedpoint.Time) *Detector {
	d := &Detector{
		cfg:    cfg,
		mean:   dsp.NewMovingAverage3(cfg.MeanShift),
		energy: dsp.NewMovingAverage(cfg.EnergyShift),
	}
	d.SetPeriod(period)
	return d
}

// SetPeriod updates the sample period; the run length is recomputed so it
// still spans RunTime.
func (d *Detector) SetPeriod(period fixedpoint.Time) {
	d.period = period
	n := uint32(1)
	if period > 0 {
		if q := (d.cfg.RunTime + period/2) / period; q > 1 {
			n = uint32(min(q, fixedpoint.Time(^uint32(0))))
		}
	}
	d.runLength = n
	if d.run > n {
		d.run = n
	}
}

// RunLength returns the number of consecutive above-threshold samples needed.
func (d *Detector) RunLength() uint32 { return d.runLength }

func (d *Detector) SetCallback(fn EventFunc) { d.onEvent = fn }

// Significant reports the current flag.
func (d *Detector) Significant() bool { return d.significant }

// Reset clears the filters and the flag. The callback is kept.
func (d *Detector) Reset() {
	d.mean.Reset()
	d.energy.Reset()
	d.run = 0
	d.significant = false
}

// Update feeds one accelerometer sample (m/s², Q12).
func (d *Detector) Update(accel [3]int32, t fixedpoint.Time) {
	mean := d.mean.Update(accel)
	var dev int64
	for i := range accel {
		v := int64(accel[i]) - int64(mean[i])
		if v < 0 {
			v = -v
		}
		dev += v
	}
	e := d.energy.Update(fixedpoint.SatInt32(dev))
	if e < int32(d.cfg.NoiseFloor) {
		e = int32(d.cfg.NoiseFloor)
	}
	d.updateEnergy(e, t)
}

func (d *Detector) updateEnergy(e int32, t fixedpoint.Time) {
	if e >= int32(d.cfg.Threshold) {
		if d.run < d.runLength {
			d.run++
		}
	} else {
		d.run = 0
		d.significant = false
	}
	if d.run < d.runLength || d.significant {
		return
	}
	d.significant = true
	if d.onEvent != nil {
		delay := fixedpoint.Time(d.mean.Window()/2) * d.period
		d.onEvent(Event{Time: t - delay})
	}
}
