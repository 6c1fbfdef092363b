// Package runner drives a hub from a sample source: a foreground goroutine
// feeds readings and drains foreground processing after each one, and a
// background goroutine drains calibration processing on a ticker.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sensorhub/internal/fixedpoint"
	"sensorhub/internal/hub"
	"sensorhub/internal/sensor"
	"sensorhub/internal/step"
)

// Source produces raw readings until ctx ends or its input runs out. A nil
// or io.EOF return means the input is exhausted.
type Source interface {
	Run(ctx context.Context, emit func(sensor.Reading) error) error
}

// Recorder receives every reading before it is queued.
type Recorder interface {
	WriteReading(now time.Time, r sensor.Reading) error
}

type Config struct {
	Hub     hub.Config
	Sensors []*sensor.Descriptor
	// Results are subscribed in order. OnReady, when set, is called after
	// the runner has recorded the result.
	Results []*hub.ResultDescriptor
	Source  Source

	Recorder           Recorder
	BackgroundInterval time.Duration
	Logger             *slog.Logger
	// RunID tags logs and reports; a random one is assigned when zero.
	RunID uuid.UUID
}

type Snapshot struct {
	RunID   string
	Running bool

	Readings   uint64
	QueueFull  uint64
	Unrouted   uint64
	Active     sensor.Mask
	Hub        hub.Stats
	Steps      step.Data
	StepsValid bool
	Segments   int
	// MotionEvents are significant-motion times.
	MotionEvents []fixedpoint.Time
	Calibration  map[sensor.Type]sensor.Calibration

	LastError string
	StartedAt time.Time
	UpdatedAt time.Time
}

type Service struct {
	cfg Config
	log *slog.Logger

	hub     *hub.Hub
	handles map[sensor.Type]hub.SensorHandle

	mu       sync.RWMutex
	snap     Snapshot
	segments []step.Segment
	err      error

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

func New(cfg Config) (*Service, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("runner: source is nil")
	}
	if len(cfg.Sensors) == 0 {
		return nil, fmt.Errorf("runner: no sensors")
	}
	if cfg.BackgroundInterval <= 0 {
		cfg.BackgroundInterval = 100 * time.Millisecond
	}
	if cfg.RunID == uuid.Nil {
		cfg.RunID = uuid.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Service{
		cfg:     cfg,
		log:     cfg.Logger.With("run", cfg.RunID.String()),
		handles: make(map[sensor.Type]hub.SensorHandle),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.snap.RunID = cfg.RunID.String()
	s.snap.Calibration = make(map[sensor.Type]sensor.Calibration)

	hc := cfg.Hub
	user := hc.SensorControl
	hc.SensorControl = func(m sensor.Mask, enable bool) {
		s.log.Info("sensor power", "sensors", m.String(), "enable", enable)
		if user != nil {
			user(m, enable)
		}
	}
	h, err := hub.New(hc)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	s.hub = h

	for _, d := range cfg.Sensors {
		if d == nil {
			return nil, fmt.Errorf("runner: nil sensor descriptor")
		}
		reg := *d
		typ, next := d.Type, d.OnCalibrationWrite
		reg.OnCalibrationWrite = func(c sensor.Calibration) {
			s.onCalibration(typ, c)
			if next != nil {
				next(c)
			}
		}
		hd, err := h.RegisterInputSensor(&reg)
		if err != nil {
			return nil, fmt.Errorf("runner: register %s: %w", d.Type, err)
		}
		s.handles[d.Type] = hd
	}
	for _, r := range cfg.Results {
		if r == nil {
			return nil, fmt.Errorf("runner: nil result descriptor")
		}
		sub := *r
		next := r.OnReady
		sub.OnReady = func(res hub.Result) {
			s.onResult(res)
			if next != nil {
				next(res)
			}
		}
		if _, err := h.SubscribeResult(&sub); err != nil {
			return nil, fmt.Errorf("runner: subscribe %s: %w", r.Type, err)
		}
	}
	return s, nil
}

// RunID identifies this run in logs and reports.
func (s *Service) RunID() uuid.UUID { return s.cfg.RunID }

// Start launches the foreground and background loops. It returns
// immediately; use Done and Err to observe completion.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("runner: service is nil")
	}
	started := false
	s.startOnce.Do(func() {
		started = true
		now := time.Now().UTC()
		s.mu.Lock()
		s.snap.Running = true
		s.snap.StartedAt = now
		s.snap.UpdatedAt = now
		s.snap.Active = s.hub.ActiveSensors()
		s.mu.Unlock()

		s.log.Info("runner started", "sensors", len(s.handles), "results", len(s.cfg.Results), "active", s.hub.ActiveSensors().String())
		go s.run(ctx)
	})
	if !started {
		return fmt.Errorf("runner: already started")
	}
	return nil
}

// Close stops both loops and waits for them to finish. Safe to call more
// than once, and before Start.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
}

// Done is closed once the source is exhausted or the service is stopped.
func (s *Service) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the run, if any. Cancellation is not an
// error.
func (s *Service) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Hub = s.hub.Stats()
	snap.MotionEvents = append([]fixedpoint.Time(nil), s.snap.MotionEvents...)
	snap.Calibration = make(map[sensor.Type]sensor.Calibration, len(s.snap.Calibration))
	for k, v := range s.snap.Calibration {
		snap.Calibration[k] = v
	}
	return snap
}

// Segments returns every step segment delivered so far.
func (s *Service) Segments() []step.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]step.Segment(nil), s.segments...)
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	bgDone := make(chan struct{})
	bgStop := make(chan struct{})
	go s.background(bgStop, bgDone)

	err := s.cfg.Source.Run(ctx, s.emit)
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		err = nil
	}
	if derr := hub.Drain(s.hub.ProcessForeground); derr != nil && err == nil {
		err = derr
	}
	close(bgStop)
	<-bgDone

	now := time.Now().UTC()
	s.mu.Lock()
	s.err = err
	s.snap.Running = false
	s.snap.UpdatedAt = now
	if err != nil {
		s.snap.LastError = err.Error()
	}
	snap := s.snap
	s.mu.Unlock()

	if err != nil {
		s.log.Error("runner stopped", "err", err)
		return
	}
	s.log.Info("runner finished", "readings", snap.Readings, "steps", snap.Steps.TotalCount, "motion_events", len(snap.MotionEvents))
}

func (s *Service) background(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.BackgroundInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			s.drainBackground()
			return
		case <-t.C:
			s.drainBackground()
		}
	}
}

func (s *Service) drainBackground() {
	if err := hub.Drain(s.hub.ProcessBackground); err != nil {
		s.setErr(err)
		s.log.Warn("background processing", "err", err)
	}
}

func (s *Service) emit(r sensor.Reading) error {
	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.WriteReading(time.Now(), r); err != nil {
			return fmt.Errorf("runner: record: %w", err)
		}
	}

	s.mu.Lock()
	s.snap.Readings++
	s.mu.Unlock()

	hd, ok := s.handles[r.Type]
	if !ok {
		s.mu.Lock()
		s.snap.Unrouted++
		s.mu.Unlock()
		return nil
	}
	raw := r.Raw
	if err := s.hub.SetInputData(hd, &raw); err != nil {
		if !errors.Is(err, hub.ErrQueueFull) {
			return fmt.Errorf("runner: %s input: %w", r.Type, err)
		}
		s.mu.Lock()
		s.snap.QueueFull++
		s.mu.Unlock()
		s.log.Debug("queue full, oldest sample dropped", "sensor", r.Type.String())
	}
	if err := hub.Drain(s.hub.ProcessForeground); err != nil {
		s.setErr(err)
		s.log.Warn("foreground processing", "err", err)
	}
	return nil
}

func (s *Service) onResult(r hub.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.UpdatedAt = time.Now().UTC()
	switch r.Type {
	case hub.ResultStepCounter:
		s.snap.Steps = r.Steps
		s.snap.StepsValid = true
		s.log.Debug("steps", "total", r.Steps.TotalCount, "consecutive", r.Steps.ConsecutiveCount, "hz", r.Steps.Frequency.Float())
	case hub.ResultStepSegment:
		s.segments = append(s.segments, r.Segment)
		s.snap.Segments = len(s.segments)
	case hub.ResultSignificantMotion:
		s.snap.MotionEvents = append(s.snap.MotionEvents, r.Motion.Time)
		s.log.Info("significant motion", "t", r.Motion.Time.Duration())
	}
}

func (s *Service) onCalibration(t sensor.Type, c sensor.Calibration) {
	s.mu.Lock()
	s.snap.Calibration[t] = c
	s.mu.Unlock()
	s.log.Info("calibration updated", "sensor", t.String(), "bias", c.Bias)
}

func (s *Service) setErr(err error) {
	s.mu.Lock()
	s.snap.LastError = err.Error()
	s.mu.Unlock()
}
