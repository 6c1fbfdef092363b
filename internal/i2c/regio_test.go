package i2c

import (
	"errors"
	"reflect"
	"testing"
)

type memRegs map[byte][]byte

func (m memRegs) ReadRegU8(reg byte) (byte, error) { return m[reg][0], nil }

func (m memRegs) ReadReg(reg byte, dst []byte) error {
	if len(m[reg]) < len(dst) {
		return errors.New("short read")
	}
	copy(dst, m[reg])
	return nil
}

func (m memRegs) WriteReg(reg, value byte) error { m[reg] = []byte{value}; return nil }

func TestReadBE16(t *testing.T) {
	regs := memRegs{0x2D: {0x40, 0x00, 0xFF, 0xFE, 0x80, 0x00}}
	got := make([]int16, 3)
	if err := ReadBE16(regs, 0x2D, got); err != nil {
		t.Fatalf("ReadBE16: %v", err)
	}
	if want := []int16{16384, -2, -32768}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if err := ReadBE16(regs, 0x2D, make([]int16, 4)); err == nil {
		t.Fatalf("expected short read error")
	}
	if err := ReadBE16(regs, 0x2D, make([]int16, 200)); err == nil {
		t.Fatalf("expected burst length error")
	}
}
