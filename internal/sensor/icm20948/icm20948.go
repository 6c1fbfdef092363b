// Package icm20948 reads raw accelerometer and gyroscope counts from an
// ICM-20948 over I2C and streams them as hub input.
package icm20948

import (
	"context"
	"fmt"
	"math"
	"time"

	"sensorhub/internal/i2c"
	"sensorhub/internal/sensor"
)

var sleep = time.Sleep

// WHO_AM_I at 0x00 should return 0xEA.
const (
	addrDefault = 0x68

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	regAccelXoutH = 0x2D // contiguous accel+gyro block
	regIntEnable  = 0x38

	// Bank 2.
	bank2           = 2
	regGyroSmplrt   = 0x00
	regGyroConfig   = 0x01
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14

	fsGyro250dps = 0x00
	fsAccel4g    = 0x02

	baseRateHz = 1125
)

// Per-count scales at the configured full-scale ranges: ±4 g and ±250 °/s.
const (
	AccelScale = 4 * 9.80665 / 32768        // m/s² per count
	GyroScale  = 250 * math.Pi / 180 / 32768 // rad/s per count
)

func DefaultAddress() uint16 { return addrDefault }

type Device struct {
	dev     i2c.RegIO
	curBank byte
	div     byte
}

// New probes and configures the chip to sample at close to rateHz.
func New(dev i2c.RegIO, rateHz float64) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	if rateHz <= 0 || rateHz > baseRateHz {
		return nil, fmt.Errorf("icm20948: rate %v Hz not in (0, %d]", rateHz, baseRateHz)
	}
	d := &Device{dev: dev, curBank: 0xFF}
	d.div = byte(min(255, max(0, math.Round(baseRateHz/rateHz)-1)))

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.setBank(0); err != nil {
		return err
	}

	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	// CLKSEL 1: auto-select PLL.
	if err := d.dev.WriteReg(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.setBank(bank2); err != nil {
		return err
	}
	// rate = 1125/(div+1)
	if err := d.dev.WriteReg(regGyroSmplrt, d.div); err != nil {
		return fmt.Errorf("icm20948: gyro rate failed: %w", err)
	}
	if err := d.dev.WriteReg(regAccelSmplrt2, d.div); err != nil {
		return fmt.Errorf("icm20948: accel rate failed: %w", err)
	}
	if err := d.dev.WriteReg(regGyroConfig, fsGyro250dps); err != nil {
		return fmt.Errorf("icm20948: gyro config failed: %w", err)
	}
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}

	return d.setBank(0)
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

// SampleRate is the output data rate the divider produces.
func (d *Device) SampleRate() float64 {
	return baseRateHz / float64(int(d.div)+1)
}

// ReadRaw returns the latest accelerometer and gyroscope counts.
func (d *Device) ReadRaw() (accel, gyro [3]int32, err error) {
	if d == nil {
		return accel, gyro, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return accel, gyro, err
	}
	var w [6]int16
	if err := i2c.ReadBE16(d.dev, regAccelXoutH, w[:]); err != nil {
		return accel, gyro, fmt.Errorf("icm20948: read sensors failed: %w", err)
	}
	for i := 0; i < 3; i++ {
		accel[i] = int32(w[i])
		gyro[i] = int32(w[3+i])
	}
	return accel, gyro, nil
}

// Source polls a Device at its sample rate and emits one accelerometer and
// one gyroscope reading per poll. The chip has no host-visible sample
// counter, so ticks come from the local monotonic clock at TickHz.
type Source struct {
	Dev    *Device
	TickHz float64

	now func() time.Time
}

func (s *Source) Run(ctx context.Context, emit func(sensor.Reading) error) error {
	if s.Dev == nil {
		return fmt.Errorf("icm20948: source has no device")
	}
	if s.TickHz <= 0 {
		return fmt.Errorf("icm20948: tick rate must be > 0")
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	period := time.Duration(float64(time.Second) / s.Dev.SampleRate())
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	start := now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		accel, gyro, err := s.Dev.ReadRaw()
		if err != nil {
			return err
		}
		ticks := uint32(uint64(now().Sub(start).Seconds() * s.TickHz))
		if err := emit(sensor.Reading{Type: sensor.TypeAccelerometer, Raw: sensor.RawSample{Axes: accel, Ticks: ticks}}); err != nil {
			return err
		}
		if err := emit(sensor.Reading{Type: sensor.TypeGyroscope, Raw: sensor.RawSample{Axes: gyro, Ticks: ticks}}); err != nil {
			return err
		}
	}
}
