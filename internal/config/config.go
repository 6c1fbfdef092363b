package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sensorhub/internal/fixedpoint"
	"sensorhub/internal/hub"
	"sensorhub/internal/sensor"
	"sensorhub/internal/sigmotion"
	"sensorhub/internal/step"
)

const standardGravity = 9.80665

type Config struct {
	System  SystemConfig   `yaml:"system"`
	Sensors []SensorConfig `yaml:"sensors"`
	Results []ResultConfig `yaml:"results"`
	Step    StepConfig     `yaml:"step"`
	Motion  MotionConfig   `yaml:"motion"`
	Bias    BiasConfig     `yaml:"bias"`
	Source  SourceConfig   `yaml:"source"`
	Record  RecordConfig   `yaml:"record"`
	Log     LogConfig      `yaml:"log"`
}

type SystemConfig struct {
	// TickHz is the rate of the free-running sample counter.
	TickHz         float64       `yaml:"tick_hz"`
	QueueCapacity  int           `yaml:"queue_capacity"`
	SensorCapacity int           `yaml:"sensor_capacity"`
	ResultCapacity int           `yaml:"result_capacity"`
	DrainInterval  time.Duration `yaml:"background_interval"`
}

// SensorConfig describes one input in engineering units: m/s² for the
// accelerometer, µT for the magnetometer and rad/s for the gyroscope.
type SensorConfig struct {
	Type         string        `yaml:"type"`
	Axes         []string      `yaml:"axes"`
	DataBits     int           `yaml:"data_bits"`
	Offset       []int32       `yaml:"offset"`
	Scale        []float64     `yaml:"scale"`
	Range        float64       `yaml:"range"`
	SamplePeriod time.Duration `yaml:"sample_period"`
	Noise        float64       `yaml:"noise"`
	FactoryBias  []float64     `yaml:"factory_bias"`
}

type ResultConfig struct {
	Type         string  `yaml:"type"`
	OutputRateHz float64 `yaml:"output_rate_hz"`
	Sensitivity  float64 `yaml:"sensitivity"`
	Bypass       bool    `yaml:"bypass"`
}

type StepConfig struct {
	PeakThreshold float64       `yaml:"peak_threshold"`
	MinStepPeriod time.Duration `yaml:"min_step_period"`
	MaxStepPeriod time.Duration `yaml:"max_step_period"`
}

type MotionConfig struct {
	Threshold  float64       `yaml:"threshold"`
	NoiseFloor float64       `yaml:"noise_floor"`
	RunTime    time.Duration `yaml:"run_time"`
}

type BiasConfig struct {
	Disable     bool `yaml:"disable"`
	NoiseFactor int  `yaml:"noise_factor"`
}

type SourceConfig struct {
	Kind     string         `yaml:"kind"`
	Sim      SimSource      `yaml:"sim"`
	Replay   ReplaySource   `yaml:"replay"`
	ICM20948 ICM20948Source `yaml:"icm20948"`
	Serial   SerialSource   `yaml:"serial"`
	Modbus   ModbusSource   `yaml:"modbus"`
}

type SimSource struct {
	// Scenario is a path to an activity script; empty uses the built-in walk.
	Scenario  string  `yaml:"scenario"`
	StartTick uint32  `yaml:"start_tick"`
	Speed     float64 `yaml:"speed"`
}

type ReplaySource struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type ICM20948Source struct {
	Bus     string `yaml:"bus"`
	Address uint16 `yaml:"address"`
}

type SerialSource struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type ModbusSource struct {
	// Mode is "tcp" or "rtu".
	Mode    string        `yaml:"mode"`
	Address string        `yaml:"address"`
	Baud    int           `yaml:"baud"`
	SlaveID byte          `yaml:"slave_id"`
	Timeout time.Duration `yaml:"timeout"`
	// Sensor names the sensor type the registers belong to.
	Sensor string `yaml:"sensor"`
	// Register is the first of three input registers holding x, y, z counts.
	Register uint16 `yaml:"register"`
	// TickRegister, when set, is the first of two registers holding the
	// 32-bit sample counter (high word first).
	TickRegister uint16 `yaml:"tick_register"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var sourceKinds = []string{"sim", "replay", "icm20948", "serial", "modbus"}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.System.TickHz == 0 {
		cfg.System.TickHz = 1000
	}
	if cfg.System.TickHz < 1 {
		return Config{}, fmt.Errorf("system.tick_hz must be >= 1")
	}
	if cfg.System.DrainInterval <= 0 {
		cfg.System.DrainInterval = 100 * time.Millisecond
	}

	if len(cfg.Sensors) == 0 {
		return Config{}, fmt.Errorf("at least one sensor is required")
	}
	seen := map[sensor.Type]bool{}
	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]
		if s.Type == "" {
			return Config{}, fmt.Errorf("sensors[%d].type is required", i)
		}
		t, err := sensor.ParseType(s.Type)
		if err != nil {
			return Config{}, fmt.Errorf("sensors[%d].type: %w", i, err)
		}
		if seen[t] {
			return Config{}, fmt.Errorf("sensors[%d]: duplicate %s", i, t)
		}
		seen[t] = true
		s.applyDefaults(t)
		if _, err := s.Descriptor(); err != nil {
			return Config{}, fmt.Errorf("sensors[%d]: %w", i, err)
		}
	}

	if len(cfg.Results) == 0 {
		cfg.Results = []ResultConfig{
			{Type: hub.ResultStepCounter.String()},
			{Type: hub.ResultStepSegment.String()},
			{Type: hub.ResultSignificantMotion.String()},
		}
	}
	for i, r := range cfg.Results {
		if r.Type == "" {
			return Config{}, fmt.Errorf("results[%d].type is required", i)
		}
		if _, err := hub.ParseResultType(r.Type); err != nil {
			return Config{}, fmt.Errorf("results[%d].type: %w", i, err)
		}
		if r.OutputRateHz < 0 || r.Sensitivity < 0 {
			return Config{}, fmt.Errorf("results[%d]: output_rate_hz and sensitivity must be >= 0", i)
		}
	}

	if cfg.Step.MinStepPeriod > 0 && cfg.Step.MaxStepPeriod > 0 && cfg.Step.MinStepPeriod >= cfg.Step.MaxStepPeriod {
		return Config{}, fmt.Errorf("step.min_step_period must be < step.max_step_period")
	}
	if cfg.Motion.Threshold < 0 || cfg.Motion.NoiseFloor < 0 {
		return Config{}, fmt.Errorf("motion.threshold and motion.noise_floor must be >= 0")
	}

	if cfg.Source.Kind == "" {
		cfg.Source.Kind = "sim"
	}
	if err := cfg.Source.validate(); err != nil {
		return Config{}, err
	}

	if cfg.Record.Enable {
		if cfg.Source.Kind == "replay" {
			return Config{}, fmt.Errorf("record cannot be used with source.kind=replay")
		}
		if cfg.Record.Path == "" {
			return Config{}, fmt.Errorf("record.path is required when record.enable is true")
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (s *SourceConfig) validate() error {
	switch s.Kind {
	case "sim":
		if s.Sim.Speed < 0 {
			return fmt.Errorf("source.sim.speed must be >= 0")
		}
	case "replay":
		if s.Replay.Path == "" {
			return fmt.Errorf("source.replay.path is required when source.kind is 'replay'")
		}
		if s.Replay.Speed == 0 {
			s.Replay.Speed = 1
		}
		if s.Replay.Speed < 0 {
			return fmt.Errorf("source.replay.speed must be > 0")
		}
	case "icm20948":
		if s.ICM20948.Bus == "" {
			s.ICM20948.Bus = "/dev/i2c-1"
		}
		if s.ICM20948.Address == 0 {
			s.ICM20948.Address = 0x68
		}
	case "serial":
		if s.Serial.Port == "" {
			return fmt.Errorf("source.serial.port is required when source.kind is 'serial'")
		}
		if s.Serial.Baud <= 0 {
			s.Serial.Baud = 115200
		}
	case "modbus":
		m := &s.Modbus
		if m.Mode == "" {
			m.Mode = "tcp"
		}
		if m.Mode != "tcp" && m.Mode != "rtu" {
			return fmt.Errorf("source.modbus.mode must be 'tcp' or 'rtu'")
		}
		if m.Address == "" {
			return fmt.Errorf("source.modbus.address is required when source.kind is 'modbus'")
		}
		if m.SlaveID == 0 {
			m.SlaveID = 1
		}
		if m.Timeout <= 0 {
			m.Timeout = time.Second
		}
		if m.Mode == "rtu" && m.Baud <= 0 {
			m.Baud = 19200
		}
		if m.Sensor == "" {
			m.Sensor = "accelerometer"
		}
		if _, err := sensor.ParseType(m.Sensor); err != nil {
			return fmt.Errorf("source.modbus.sensor: %w", err)
		}
	default:
		return fmt.Errorf("source.kind must be one of %s", strings.Join(sourceKinds, ", "))
	}
	return nil
}

func (s *SensorConfig) applyDefaults(t sensor.Type) {
	if len(s.Axes) == 0 {
		s.Axes = []string{"x", "y", "z"}
	}
	if s.DataBits == 0 {
		s.DataBits = 16
	}
	if s.SamplePeriod <= 0 {
		s.SamplePeriod = 20 * time.Millisecond
	}
	if s.Range <= 0 {
		switch t {
		case sensor.TypeAccelerometer:
			s.Range = 8 * standardGravity
		case sensor.TypeMagnetometer:
			s.Range = 4900
		case sensor.TypeGyroscope:
			s.Range = 2000 * math.Pi / 180
		}
	}
}

// Descriptor converts s into the fixed-point descriptor the hub registers.
func (s SensorConfig) Descriptor() (*sensor.Descriptor, error) {
	t, err := sensor.ParseType(s.Type)
	if err != nil {
		return nil, err
	}
	toFormat := func(v float64) int32 {
		if t.Format() == sensor.FormatPrecise {
			return int32(fixedpoint.PreciseFromFloat(v))
		}
		return int32(fixedpoint.ExtendedFromFloat(v))
	}

	d := &sensor.Descriptor{
		Type:         t,
		SamplePeriod: fixedpoint.TimeFromDuration(s.SamplePeriod),
		Min:          toFormat(-s.Range),
		Max:          toFormat(s.Range),
		Noise:        toFormat(s.Noise),
	}
	if s.DataBits < 1 || s.DataBits > 32 {
		return nil, fmt.Errorf("data_bits must be in 1..32")
	}
	d.DataWidth = uint8(s.DataBits)

	if len(s.Axes) != 3 {
		return nil, fmt.Errorf("axes needs 3 entries, got %d", len(s.Axes))
	}
	for i, a := range s.Axes {
		sel, err := sensor.ParseAxis(a)
		if err != nil {
			return nil, fmt.Errorf("axes[%d]: %w", i, err)
		}
		d.AxisMap[i] = sel
	}

	scale, err := triple("scale", s.Scale)
	if err != nil {
		return nil, err
	}
	for i, v := range scale {
		if v <= 0 {
			return nil, fmt.Errorf("scale[%d] must be > 0", i)
		}
		d.Scale[i] = fixedpoint.PreciseFromFloat(v)
	}
	if len(s.Offset) != 0 {
		if len(s.Offset) != 3 {
			return nil, fmt.Errorf("offset needs 3 entries, got %d", len(s.Offset))
		}
		copy(d.Offset[:], s.Offset)
	}
	if len(s.FactoryBias) != 0 {
		fb, err := triple("factory_bias", s.FactoryBias)
		if err != nil {
			return nil, err
		}
		for i, v := range fb {
			d.FactoryBias[i] = toFormat(v)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// triple accepts one value (applied to every axis) or three.
func triple(name string, v []float64) ([3]float64, error) {
	switch len(v) {
	case 1:
		return [3]float64{v[0], v[0], v[0]}, nil
	case 3:
		return [3]float64{v[0], v[1], v[2]}, nil
	}
	return [3]float64{}, fmt.Errorf("%s needs 1 or 3 entries, got %d", name, len(v))
}

// Descriptor builds the subscription for r; the sensitivity is in the output
// units of the sensor the result reads.
func (r ResultConfig) Descriptor(fn hub.ResultFunc) (*hub.ResultDescriptor, error) {
	t, err := hub.ParseResultType(r.Type)
	if err != nil {
		return nil, err
	}
	d := &hub.ResultDescriptor{
		Type:       t,
		OnReady:    fn,
		OutputRate: fixedpoint.PreciseFromFloat(r.OutputRateHz),
	}
	if t == hub.ResultUncalGyroscope {
		d.Sensitivity = int32(fixedpoint.PreciseFromFloat(r.Sensitivity))
	} else {
		d.Sensitivity = int32(fixedpoint.ExtendedFromFloat(r.Sensitivity))
	}
	if r.Bypass {
		d.Options |= hub.OptionBypassPolicy
	}
	return d, nil
}

// HubConfig returns the hub configuration; unset tunables keep the hub's
// defaults. Critical-section and sensor-control hooks are left to the caller.
func (c Config) HubConfig() hub.Config {
	hc := hub.Config{
		TimeCoef:       fixedpoint.TimeCoefFromHz(c.System.TickHz),
		QueueCapacity:  c.System.QueueCapacity,
		SensorCapacity: c.System.SensorCapacity,
		ResultCapacity: c.System.ResultCapacity,
		Step:           step.DefaultConfig(),
		Motion:         sigmotion.DefaultConfig(),
		Bias:           hub.DefaultBiasConfig(),
	}
	if c.Step.PeakThreshold > 0 {
		hc.Step.PeakThreshold = fixedpoint.ExtendedFromFloat(c.Step.PeakThreshold)
	}
	if c.Step.MinStepPeriod > 0 {
		hc.Step.MinStepPeriod = fixedpoint.TimeFromDuration(c.Step.MinStepPeriod)
	}
	if c.Step.MaxStepPeriod > 0 {
		hc.Step.MaxStepPeriod = fixedpoint.TimeFromDuration(c.Step.MaxStepPeriod)
	}
	if c.Motion.Threshold > 0 {
		hc.Motion.Threshold = fixedpoint.ExtendedFromFloat(c.Motion.Threshold)
	}
	if c.Motion.NoiseFloor > 0 {
		hc.Motion.NoiseFloor = fixedpoint.ExtendedFromFloat(c.Motion.NoiseFloor)
	}
	if c.Motion.RunTime > 0 {
		hc.Motion.RunTime = fixedpoint.TimeFromDuration(c.Motion.RunTime)
	}
	hc.Bias.Disabled = c.Bias.Disable
	if c.Bias.NoiseFactor > 0 {
		hc.Bias.NoiseFactor = int32(c.Bias.NoiseFactor)
	}
	return hc
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
