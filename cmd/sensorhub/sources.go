package main

import (
	"fmt"
	"log/slog"
	"time"

	"sensorhub/internal/config"
	"sensorhub/internal/hub"
	"sensorhub/internal/i2c"
	"sensorhub/internal/modbussrc"
	"sensorhub/internal/replay"
	"sensorhub/internal/runner"
	"sensorhub/internal/sensor"
	"sensorhub/internal/sensor/icm20948"
	"sensorhub/internal/serialsrc"
	"sensorhub/internal/sim"
)

func buildDescriptors(cfg config.Config) ([]*sensor.Descriptor, []*hub.ResultDescriptor, error) {
	sensors := make([]*sensor.Descriptor, 0, len(cfg.Sensors))
	for i, sc := range cfg.Sensors {
		d, err := sc.Descriptor()
		if err != nil {
			return nil, nil, fmt.Errorf("sensors[%d]: %w", i, err)
		}
		sensors = append(sensors, d)
	}
	results := make([]*hub.ResultDescriptor, 0, len(cfg.Results))
	for i, rc := range cfg.Results {
		d, err := rc.Descriptor(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("results[%d]: %w", i, err)
		}
		results = append(results, d)
	}
	return sensors, results, nil
}

// samplePeriod is the configured period of sensor t, or 20ms when t is not
// configured.
func samplePeriod(cfg config.Config, t sensor.Type) time.Duration {
	for _, sc := range cfg.Sensors {
		if st, err := sensor.ParseType(sc.Type); err == nil && st == t && sc.SamplePeriod > 0 {
			return sc.SamplePeriod
		}
	}
	return 20 * time.Millisecond
}

func noClose() {}

// buildSource opens the configured input. The returned func releases it and
// is safe to call once the runner has finished.
func buildSource(cfg config.Config, logger *slog.Logger) (runner.Source, func(), error) {
	sc := cfg.Source
	switch sc.Kind {
	case "sim":
		script := sim.DefaultWalkScript()
		if sc.Sim.Scenario != "" {
			s, err := sim.LoadActivityScript(sc.Sim.Scenario)
			if err != nil {
				return nil, nil, fmt.Errorf("sim scenario: %w", err)
			}
			script = s
		}
		if sc.Sim.StartTick != 0 {
			script.StartTick = sc.Sim.StartTick
		}
		script.TickHz = cfg.System.TickHz
		scn, err := sim.NewScenario(script)
		if err != nil {
			return nil, nil, fmt.Errorf("sim scenario: %w", err)
		}
		logger.Info("sim source", "duration", scn.Duration(), "expected_steps", scn.ExpectedSteps())
		return &replay.Source{Records: scn.Records(), Speed: sc.Sim.Speed}, noClose, nil

	case "replay":
		recs, err := replay.ReadFile(sc.Replay.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("replay: %w", err)
		}
		logger.Info("replay source", "path", sc.Replay.Path, "records", len(recs), "speed", sc.Replay.Speed, "loop", sc.Replay.Loop)
		return &replay.Source{Records: recs, Speed: sc.Replay.Speed, Loop: sc.Replay.Loop}, noClose, nil

	case "icm20948":
		bus, err := i2c.Open(sc.ICM20948.Bus)
		if err != nil {
			return nil, nil, err
		}
		rate := float64(time.Second) / float64(samplePeriod(cfg, sensor.TypeAccelerometer))
		dev, err := icm20948.New(bus.Dev(sc.ICM20948.Address), rate)
		if err != nil {
			_ = bus.Close()
			return nil, nil, err
		}
		logger.Info("icm20948 source", "bus", bus.String(), "addr", fmt.Sprintf("0x%02x", sc.ICM20948.Address), "rate_hz", dev.SampleRate())
		return &icm20948.Source{Dev: dev, TickHz: cfg.System.TickHz}, func() { _ = bus.Close() }, nil

	case "serial":
		port, err := serialsrc.Open(sc.Serial.Port, sc.Serial.Baud)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("serial source", "port", sc.Serial.Port, "baud", sc.Serial.Baud)
		src := &serialsrc.Source{
			Port: port,
			OnBadLine: func(line string, err error) {
				logger.Debug("serial line skipped", "line", line, "err", err)
			},
		}
		return src, func() { _ = port.Close() }, nil

	case "modbus":
		m := sc.Modbus
		t, err := sensor.ParseType(m.Sensor)
		if err != nil {
			return nil, nil, err
		}
		conn, err := modbussrc.Dial(modbussrc.Config{
			Mode:    m.Mode,
			Address: m.Address,
			Baud:    m.Baud,
			SlaveID: m.SlaveID,
			Timeout: m.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		period := samplePeriod(cfg, t)
		logger.Info("modbus source", "mode", m.Mode, "addr", m.Address, "slave", m.SlaveID, "sensor", t, "period", period)
		src := &modbussrc.Source{
			Client:       conn,
			Sensor:       t,
			Register:     m.Register,
			TickRegister: m.TickRegister,
			Period:       period,
			TickHz:       cfg.System.TickHz,
			OnError: func(err error) {
				logger.Warn("modbus poll failed", "err", err)
			},
		}
		return src, func() { _ = conn.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown source kind %q", sc.Kind)
}
