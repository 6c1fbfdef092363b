package hub

import "sensorhub/internal/sensor"

// resourceMap lists the physical sensors each result needs. Result types
// without an entry cannot be subscribed.
var resourceMap = map[ResultType][]sensor.Type{
	ResultUncalAccelerometer: {sensor.TypeAccelerometer},
	ResultUncalMagnetometer:  {sensor.TypeMagnetometer},
	ResultUncalGyroscope:     {sensor.TypeGyroscope},
	ResultStepCounter:        {sensor.TypeAccelerometer},
	ResultStepSegment:        {sensor.TypeAccelerometer},
	ResultSignificantMotion:  {sensor.TypeAccelerometer},
}

// Requires returns the sensors a result type needs. ok is false for result
// types no algorithm serves.
func Requires(t ResultType) (m sensor.Mask, ok bool) {
	types, ok := resourceMap[t]
	for _, st := range types {
		m |= st.Bit()
	}
	return m, ok
}

// SensorControlFunc switches a batch of physical sensors on or off. It is
// called once per subscribe or unsubscribe that changes the active set.
type SensorControlFunc func(sensors sensor.Mask, enable bool)

type sensorEntry struct {
	desc  *sensor.Descriptor
	inUse bool
}

func (h *Hub) sensorByType(t sensor.Type) (slotRef, *sensorEntry) {
	return h.sensors.find(func(e *sensorEntry) bool { return e.desc.Type == t })
}

// activateLocked marks the required sensors in use and returns those that
// were not already. Nothing changes unless every required sensor is
// registered.
func (h *Hub) activateLocked(required sensor.Mask) (sensor.Mask, error) {
	for _, t := range sensor.Types {
		if !required.Has(t) {
			continue
		}
		if _, e := h.sensorByType(t); e == nil {
			return 0, ErrNotRegistered
		}
	}
	var enabled sensor.Mask
	for _, t := range sensor.Types {
		if !required.Has(t) {
			continue
		}
		_, e := h.sensorByType(t)
		if !e.inUse {
			e.inUse = true
			enabled |= t.Bit()
		}
	}
	return enabled, nil
}

// deactivateLocked releases the sensors in released that no subscription
// other than except still needs, invalidates their queued samples, and
// returns the released set.
func (h *Hub) deactivateLocked(released sensor.Mask, except slotRef) sensor.Mask {
	var needed sensor.Mask
	h.results.each(func(r slotRef, e *resultEntry) {
		if r == except {
			return
		}
		m, _ := Requires(e.desc.Type)
		needed |= m
	})

	var disabled sensor.Mask
	for _, t := range sensor.Types {
		if !released.Has(t) || needed.Has(t) {
			continue
		}
		ref, e := h.sensorByType(t)
		if e == nil || !e.inUse {
			continue
		}
		e.inUse = false
		disabled |= t.Bit()
		h.invalidateLocked(SensorHandle{ref: ref})
	}
	return disabled
}

func (h *Hub) invalidateLocked(s SensorHandle) {
	match := func(e queueEntry) bool { return e.sensor == s }
	h.fg.Invalidate(match)
	h.bg.Invalidate(match)
}

func (h *Hub) sensorControl(mask sensor.Mask, enable bool) {
	if mask == 0 || h.cfg.SensorControl == nil {
		return
	}
	h.cfg.SensorControl(mask, enable)
}
