package i2c

import "fmt"

// RegIO is the register-level access a sensor driver needs. *Dev satisfies
// it on Linux; tests substitute an in-memory register file.
type RegIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

// ReadBE16 burst-reads len(dst) consecutive big-endian signed 16-bit words
// starting at reg, the layout of most IMU output blocks.
func ReadBE16(dev RegIO, reg byte, dst []int16) error {
	if len(dst) == 0 {
		return nil
	}
	if len(dst) > 127 {
		return fmt.Errorf("i2c: burst of %d words too long", len(dst))
	}
	buf := make([]byte, 2*len(dst))
	if err := dev.ReadReg(reg, buf); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = int16(buf[2*i])<<8 | int16(buf[2*i+1])
	}
	return nil
}
