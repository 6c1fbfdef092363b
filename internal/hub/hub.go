// Package hub is the sensor hub core: it registers input sensors, manages
// result subscriptions and the sensors they need, queues raw samples, and
// drains them through conversion and the step and motion algorithms.
//
// A Hub does no scheduling of its own. Producers call SetInputData; the host
// calls ProcessForeground and ProcessBackground until they report
// StatusIdle, typically from two goroutines of different urgency.
package hub

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sensorhub/internal/fixedpoint"
	"sensorhub/internal/queue"
	"sensorhub/internal/sensor"
	"sensorhub/internal/sigmotion"
	"sensorhub/internal/step"
)

const (
	DefaultQueueCapacity  = 8
	DefaultSensorCapacity = 5
	DefaultResultCapacity = 8

	maxTableCapacity = 1 << 16
)

// Config is the system-wide configuration passed to New and Initialize.
type Config struct {
	// TimeCoef converts sample counter ticks to seconds (Q32). Required.
	TimeCoef fixedpoint.TimeCoef

	QueueCapacity  int
	SensorCapacity int
	ResultCapacity int

	// Enter and Exit bracket every table and queue update. Set both or
	// neither; with neither the hub uses its own mutex.
	Enter func()
	Exit  func()

	SensorControl SensorControlFunc

	Step   step.Config
	Motion sigmotion.Config
	Bias   BiasConfig
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.SensorCapacity == 0 {
		c.SensorCapacity = DefaultSensorCapacity
	}
	if c.ResultCapacity == 0 {
		c.ResultCapacity = DefaultResultCapacity
	}
	if c.Step == (step.Config{}) {
		c.Step = step.DefaultConfig()
	}
	if c.Motion == (sigmotion.Config{}) {
		c.Motion = sigmotion.DefaultConfig()
	}
	if c.Bias == (BiasConfig{}) {
		c.Bias = DefaultBiasConfig()
	}
	return c
}

func (c Config) validate() error {
	if c.TimeCoef == 0 {
		return errors.New("time coefficient is zero")
	}
	if (c.Enter == nil) != (c.Exit == nil) {
		return errors.New("critical section needs both enter and exit")
	}
	for name, n := range map[string]int{
		"queue":  c.QueueCapacity,
		"sensor": c.SensorCapacity,
		"result": c.ResultCapacity,
	} {
		if n < 1 || n > maxTableCapacity {
			return fmt.Errorf("%s capacity %d out of range", name, n)
		}
	}
	if err := c.Step.Validate(); err != nil {
		return err
	}
	if c.Motion.Threshold <= c.Motion.NoiseFloor {
		return errors.New("motion threshold must exceed the noise floor")
	}
	return nil
}

// Stats are running counters, safe to read from any goroutine.
type Stats struct {
	Enqueued            uint64
	ForegroundDropped   uint64
	BackgroundDropped   uint64
	ForegroundProcessed uint64
	BackgroundProcessed uint64
	Delivered           uint64
	CalibrationWrites   uint64
	TimeSaturated       uint64
}

type stats struct {
	enqueued, fgDropped, bgDropped atomic.Uint64
	fgProcessed, bgProcessed       atomic.Uint64
	delivered, calWrites, timeSat  atomic.Uint64
}

type queueEntry struct {
	sensor SensorHandle
	raw    sensor.RawSample
}

type resultEntry struct {
	desc *ResultDescriptor
}

type subscriber struct {
	handle ResultHandle
	desc   *ResultDescriptor
}

// foreground is state touched only by ProcessForeground.
type foreground struct {
	mu     sync.Mutex
	conv   *sensor.Converter
	steps  *step.Detector
	motion *sigmotion.Detector
	period fixedpoint.Time
	notify []notifyState

	uncal    []subscriber
	counters []subscriber
	segments []subscriber
	motions  []subscriber
}

// background is state touched only by ProcessBackground.
type background struct {
	mu   sync.Mutex
	conv *sensor.Converter
	bias [sensor.TypeCount + 1]biasTracker
}

// Hub owns every table, queue and algorithm instance. The zero value is
// not usable; call New.
type Hub struct {
	cfg Config

	mu      sync.Mutex
	enter   func()
	exit    func()
	sensors table[sensorEntry]
	results table[resultEntry]
	fg      *queue.Ring[queueEntry]
	bg      *queue.Ring[queueEntry]

	resetSteps  bool
	resetMotion bool

	fgs foreground
	bgs background

	stats stats
}

// New returns an initialized Hub.
func New(cfg Config) (*Hub, error) {
	h := &Hub{}
	if err := h.Initialize(cfg); err != nil {
		return nil, err
	}
	return h, nil
}

// Initialize discards all registrations, subscriptions, queued samples and
// algorithm state, then applies cfg. Handles issued before stay invalid.
// It must not run concurrently with processing.
func (h *Hub) Initialize(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrDescriptorInvalid, err)
	}

	h.fgs.mu.Lock()
	defer h.fgs.mu.Unlock()
	h.bgs.mu.Lock()
	defer h.bgs.mu.Unlock()

	h.cfg = cfg
	h.enter, h.exit = cfg.Enter, cfg.Exit
	if h.enter == nil {
		h.enter, h.exit = h.mu.Lock, h.mu.Unlock
	}

	h.lock()
	defer h.unlock()
	h.sensors.reset(cfg.SensorCapacity)
	h.results.reset(cfg.ResultCapacity)
	h.fg = queue.New[queueEntry](cfg.QueueCapacity)
	h.bg = queue.New[queueEntry](cfg.QueueCapacity)
	h.resetSteps, h.resetMotion = false, false

	period := fixedpoint.TimeFromDuration(20 * time.Millisecond)
	h.fgs.conv = sensor.NewConverter(cfg.TimeCoef)
	h.fgs.steps = step.NewDetector(cfg.Step, period)
	h.fgs.steps.SetDataCallback(h.onStepData)
	h.fgs.steps.SetSegmentCallback(h.onStepSegment)
	h.fgs.motion = sigmotion.NewDetector(cfg.Motion, period)
	h.fgs.motion.SetCallback(h.onMotion)
	h.fgs.period = period
	h.fgs.notify = make([]notifyState, cfg.ResultCapacity)

	h.bgs.conv = sensor.NewConverter(cfg.TimeCoef)
	h.bgs.bias = [sensor.TypeCount + 1]biasTracker{}
	return nil
}

func (h *Hub) lock()   { h.enter() }
func (h *Hub) unlock() { h.exit() }

// RegisterInputSensor adds d to the sensor table. d must stay unchanged
// while registered.
func (h *Hub) RegisterInputSensor(d *sensor.Descriptor) (SensorHandle, error) {
	if err := d.Validate(); err != nil {
		return SensorHandle{}, fmt.Errorf("%w: %v", ErrDescriptorInvalid, err)
	}
	h.lock()
	if _, e := h.sensorByType(d.Type); e != nil {
		h.unlock()
		return SensorHandle{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, d.Type)
	}
	var needed sensor.Mask
	h.results.each(func(_ slotRef, e *resultEntry) {
		m, _ := Requires(e.desc.Type)
		needed |= m
	})
	ref, ok := h.sensors.insert(sensorEntry{desc: d, inUse: needed.Has(d.Type)})
	if !ok {
		h.unlock()
		return SensorHandle{}, ErrNoMoreHandles
	}
	h.unlock()

	// A subscription that outlived an earlier registration of this type
	// needs the sensor back on.
	if needed.Has(d.Type) {
		h.sensorControl(d.Type.Bit(), true)
	}
	return SensorHandle{ref: ref}, nil
}

// UnregisterInputSensor removes the sensor and marks its queued samples
// stale. Subscriptions that need it stay but receive nothing.
func (h *Hub) UnregisterInputSensor(s SensorHandle) error {
	h.lock()
	e := h.sensors.get(s.ref)
	if e == nil {
		h.unlock()
		return ErrNotRegistered
	}
	typ, inUse := e.desc.Type, e.inUse
	h.invalidateLocked(s)
	h.sensors.remove(s.ref)
	h.unlock()

	if inUse {
		h.sensorControl(typ.Bit(), false)
	}
	return nil
}

// SubscribeResult activates the sensors d.Type needs and installs d.
func (h *Hub) SubscribeResult(d *ResultDescriptor) (ResultHandle, error) {
	if err := d.validate(); err != nil {
		return ResultHandle{}, err
	}
	required, ok := Requires(d.Type)
	if !ok {
		return ResultHandle{}, fmt.Errorf("%w: %s", ErrUnknownRequest, d.Type)
	}

	h.lock()
	if _, e := h.results.find(func(e *resultEntry) bool { return e.desc.Type == d.Type }); e != nil {
		h.unlock()
		return ResultHandle{}, fmt.Errorf("%w: %s", ErrAlreadySubscribed, d.Type)
	}
	if h.results.len() == len(h.results.slots) {
		h.unlock()
		return ResultHandle{}, ErrNoMoreHandles
	}
	enabled, err := h.activateLocked(required)
	if err != nil {
		h.unlock()
		return ResultHandle{}, fmt.Errorf("%w: %s needs %s", err, d.Type, required)
	}
	h.markAlgorithmStartLocked(d.Type)
	ref, _ := h.results.insert(resultEntry{desc: d})
	h.unlock()

	h.sensorControl(enabled, true)
	return ResultHandle{ref: ref}, nil
}

// markAlgorithmStartLocked requests an algorithm reset when t is the first
// live subscription served by that algorithm.
func (h *Hub) markAlgorithmStartLocked(t ResultType) {
	has := func(types ...ResultType) bool {
		_, e := h.results.find(func(e *resultEntry) bool {
			for _, x := range types {
				if e.desc.Type == x {
					return true
				}
			}
			return false
		})
		return e != nil
	}
	switch t {
	case ResultStepCounter, ResultStepSegment:
		if !has(ResultStepCounter, ResultStepSegment) {
			h.resetSteps = true
		}
	case ResultSignificantMotion:
		h.resetMotion = true
	}
}

// UnsubscribeResult removes the subscription and releases sensors no other
// subscription needs.
func (h *Hub) UnsubscribeResult(r ResultHandle) error {
	if !r.Valid() {
		return ErrInvalidHandle
	}
	h.lock()
	e := h.results.get(r.ref)
	if e == nil {
		h.unlock()
		return ErrNotSubscribed
	}
	required, _ := Requires(e.desc.Type)
	disabled := h.deactivateLocked(required, r.ref)
	h.results.remove(r.ref)
	h.unlock()

	h.sensorControl(disabled, false)
	return nil
}

// SetInputData queues raw for both foreground and background processing.
// When either queue was full its oldest sample is dropped and the error is
// ErrQueueFull; raw is queued regardless.
func (h *Hub) SetInputData(s SensorHandle, raw *sensor.RawSample) error {
	if raw == nil {
		return ErrNullPointer
	}
	if !s.Valid() {
		return ErrInvalidHandle
	}
	h.lock()
	if h.sensors.get(s.ref) == nil {
		h.unlock()
		return ErrInvalidHandle
	}
	e := queueEntry{sensor: s, raw: *raw}
	fgDrop := h.fg.Push(e)
	bgDrop := h.bg.Push(e)
	h.unlock()

	h.stats.enqueued.Add(1)
	if fgDrop {
		h.stats.fgDropped.Add(1)
	}
	if bgDrop {
		h.stats.bgDropped.Add(1)
	}
	if fgDrop || bgDrop {
		return ErrQueueFull
	}
	return nil
}

// ActiveSensors returns the set of sensors some subscription needs.
func (h *Hub) ActiveSensors() sensor.Mask {
	h.lock()
	defer h.unlock()
	var m sensor.Mask
	h.sensors.each(func(_ slotRef, e *sensorEntry) {
		if e.inUse {
			m |= e.desc.Type.Bit()
		}
	})
	return m
}

// Pending returns the foreground and background queue occupancy.
func (h *Hub) Pending() (foreground, background int) {
	h.lock()
	defer h.unlock()
	return h.fg.Len(), h.bg.Len()
}

func (h *Hub) Stats() Stats {
	return Stats{
		Enqueued:            h.stats.enqueued.Load(),
		ForegroundDropped:   h.stats.fgDropped.Load(),
		BackgroundDropped:   h.stats.bgDropped.Load(),
		ForegroundProcessed: h.stats.fgProcessed.Load(),
		BackgroundProcessed: h.stats.bgProcessed.Load(),
		Delivered:           h.stats.delivered.Load(),
		CalibrationWrites:   h.stats.calWrites.Load(),
		TimeSaturated:       h.stats.timeSat.Load(),
	}
}
