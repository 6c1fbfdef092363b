package hub

import (
	"fmt"

	"sensorhub/internal/sensor"
	"sensorhub/internal/sigmotion"
	"sensorhub/internal/step"
)

// ProcessForeground drains one sample from the foreground queue: it converts
// it, delivers sensor-stream results and runs the step and significant-motion
// algorithms. It returns StatusOK while more samples are pending and
// StatusIdle once the queue is empty. Result callbacks run before it
// returns. Calls must not overlap with each other.
func (h *Hub) ProcessForeground() (Status, error) {
	f := &h.fgs
	f.mu.Lock()
	defer f.mu.Unlock()

	h.lock()
	e, ok := h.fg.Pop()
	if !ok {
		h.unlock()
		return StatusIdle, nil
	}
	more := h.fg.Len() > 0
	var desc *sensor.Descriptor
	if se := h.sensors.get(e.sensor.ref); se != nil {
		desc = se.desc
		h.collectLocked(desc.Type)
	}
	resetSteps, resetMotion := h.resetSteps, h.resetMotion
	h.resetSteps, h.resetMotion = false, false
	h.unlock()

	if resetSteps {
		f.steps.Reset()
	}
	if resetMotion {
		f.motion.Reset()
	}
	if desc == nil {
		return StatusError, fmt.Errorf("%w: %s", ErrInvalidHandle, e.sensor)
	}

	s, ok := f.conv.Convert(desc, e.raw)
	if !ok {
		h.stats.timeSat.Add(1)
	}
	h.stats.fgProcessed.Add(1)
	h.dispatchForeground(desc, s)

	if more {
		return StatusOK, nil
	}
	return StatusIdle, nil
}

// collectLocked snapshots the subscriptions a sample of type t can reach.
func (h *Hub) collectLocked(t sensor.Type) {
	f := &h.fgs
	f.uncal = f.uncal[:0]
	f.counters = f.counters[:0]
	f.segments = f.segments[:0]
	f.motions = f.motions[:0]
	h.results.each(func(r slotRef, e *resultEntry) {
		sub := subscriber{handle: ResultHandle{ref: r}, desc: e.desc}
		switch e.desc.Type {
		case uncalibratedResult(t):
			f.uncal = append(f.uncal, sub)
		case ResultStepCounter:
			f.counters = append(f.counters, sub)
		case ResultStepSegment:
			f.segments = append(f.segments, sub)
		case ResultSignificantMotion:
			f.motions = append(f.motions, sub)
		}
	})
}

func uncalibratedResult(t sensor.Type) ResultType {
	switch t {
	case sensor.TypeAccelerometer:
		return ResultUncalAccelerometer
	case sensor.TypeMagnetometer:
		return ResultUncalMagnetometer
	case sensor.TypeGyroscope:
		return ResultUncalGyroscope
	}
	return 0
}

func (h *Hub) dispatchForeground(d *sensor.Descriptor, s sensor.Sample) {
	f := &h.fgs
	for _, sub := range f.uncal {
		n := &f.notify[sub.handle.ref.index]
		if n.ref != sub.handle.ref {
			*n = notifyState{ref: sub.handle.ref}
		}
		if !n.admit(sub.desc, s.Time, s.Axes) {
			continue
		}
		h.deliver(sub, Result{
			Time: s.Time,
			Sensor: SensorData{
				Format: d.Type.Format(),
				Axes:   s.Axes,
				Bias:   d.Bias(),
			},
		})
	}

	if d.Type != sensor.TypeAccelerometer {
		return
	}
	steps := len(f.counters) > 0 || len(f.segments) > 0
	motion := len(f.motions) > 0
	if !steps && !motion {
		return
	}
	if d.SamplePeriod != f.period {
		f.period = d.SamplePeriod
		f.steps.SetPeriod(f.period)
		f.motion.SetPeriod(f.period)
	}
	v := sensor.ToAlgorithmFrame(s.Axes)
	if steps {
		f.steps.Update(v, s.Time)
	}
	if motion {
		f.motion.Update(v, s.Time)
	}
}

func (h *Hub) onStepData(d step.Data) {
	for _, sub := range h.fgs.counters {
		h.deliver(sub, Result{Time: d.StopTime, Steps: d})
	}
}

func (h *Hub) onStepSegment(seg step.Segment) {
	for _, sub := range h.fgs.segments {
		h.deliver(sub, Result{Time: seg.StopTime, Segment: seg})
	}
}

func (h *Hub) onMotion(ev sigmotion.Event) {
	for _, sub := range h.fgs.motions {
		h.deliver(sub, Result{Time: ev.Time, Motion: ev})
	}
}

func (h *Hub) deliver(sub subscriber, r Result) {
	if sub.desc.OnReady == nil {
		return
	}
	r.Type = sub.desc.Type
	r.Handle = sub.handle
	h.stats.delivered.Add(1)
	sub.desc.OnReady(r)
}

// ProcessBackground drains one sample from the background queue and feeds
// the stationary-bias tracker, which may call the sensor descriptor's
// OnCalibrationWrite. Status semantics match ProcessForeground.
func (h *Hub) ProcessBackground() (Status, error) {
	b := &h.bgs
	b.mu.Lock()
	defer b.mu.Unlock()

	h.lock()
	e, ok := h.bg.Pop()
	if !ok {
		h.unlock()
		return StatusIdle, nil
	}
	more := h.bg.Len() > 0
	var desc *sensor.Descriptor
	if se := h.sensors.get(e.sensor.ref); se != nil {
		desc = se.desc
	}
	cfg := h.cfg.Bias
	h.unlock()

	if desc == nil {
		return StatusError, fmt.Errorf("%w: %s", ErrInvalidHandle, e.sensor)
	}
	s, _ := b.conv.Convert(desc, e.raw)
	h.stats.bgProcessed.Add(1)

	if !cfg.Disabled {
		tr := &b.bias[desc.Type]
		if tr.owner != e.sensor || tr.mean == nil {
			tr.reset(e.sensor, cfg.WindowShift)
		}
		if cal, ok := tr.update(cfg, desc, s); ok && desc.OnCalibrationWrite != nil {
			h.stats.calWrites.Add(1)
			desc.OnCalibrationWrite(cal)
		}
	}

	if more {
		return StatusOK, nil
	}
	return StatusIdle, nil
}

// Drain calls process until it reports idle or fails.
func Drain(process func() (Status, error)) error {
	for {
		st, err := process()
		if err != nil {
			return err
		}
		if st == StatusIdle {
			return nil
		}
	}
}
