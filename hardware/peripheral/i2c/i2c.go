// Package i2c emulates an STM32 I2C controller driving byte exchanges
// with an attached slave device (typically an EEPROM model), replacing
// peripherals/i2c.rs's SR1/SR2 toggle hack (alternating 0xFFFFFFFF/0 to
// fool polling loops) with a real START/address/data state machine and
// always-ready status bits.
package i2c

import (
	"strings"

	"github.com/kvasari/stm32emu/svd"
)

// Device is the attach point for an I2C slave.
type Device interface {
	Start(address uint8, write bool)
	WriteByte(b byte)
	ReadByte() byte
	Stop()
}

const (
	cr1Start = 1 << 8
	cr1Stop  = 1 << 9

	sr1Ready = (1 << 0) | (1 << 1) | (1 << 2) | (1 << 6) | (1 << 7) // SB|ADDR|BTF|RXNE|TXE
	sr2Msl   = 1 << 0
)

// I2c implements peripheral.Peripheral.
type I2c struct {
	name   string
	base   uint32
	device Device

	pendingStart bool

	dmaTrigger func(periAddr uint32)
}

// SetDMATrigger wires a callback that pulses whichever DMA stream, if any,
// is armed against this I2C's DR register whenever DR is touched --
// spec.md §4.5's "on peripheral trigger" DMA hook.
func (i *I2c) SetDMATrigger(fn func(periAddr uint32)) { i.dmaTrigger = fn }

// New returns an I2c for an SVD peripheral named "I2Cx", or ok=false.
func New(name string, base uint32, device Device) (*I2c, bool) {
	if !strings.HasPrefix(name, "I2C") {
		return nil, false
	}
	return &I2c{name: name, base: base, device: device}, true
}

func (i *I2c) Base() uint32 { return i.base }
func (i *I2c) Name() string { return i.name }

func (i *I2c) OnRead(reg *svd.Register, old uint32, fields map[string]uint32) (uint32, uint32) {
	switch reg.Name {
	case "SR1":
		return sr1Ready, sr1Ready
	case "SR2":
		return sr2Msl, sr2Msl
	case "DR":
		if i.device == nil {
			return 0, 0
		}
		b := i.device.ReadByte()
		if i.dmaTrigger != nil {
			i.dmaTrigger(i.base + uint32(reg.AddressOffset))
		}
		return uint32(b), 0
	default:
		return old, old
	}
}

func (i *I2c) OnWrite(reg *svd.Register, old, new uint32, fields map[string]uint32) uint32 {
	switch reg.Name {
	case "CR1":
		if new&cr1Start != 0 {
			i.pendingStart = true
		}
		if new&cr1Stop != 0 && i.device != nil {
			i.device.Stop()
		}
		return new
	case "DR":
		if i.device == nil {
			return new
		}
		if i.pendingStart {
			addr := uint8(new) >> 1
			write := new&1 == 0
			i.device.Start(addr, write)
			i.pendingStart = false
		} else {
			i.device.WriteByte(byte(new))
		}
		if i.dmaTrigger != nil {
			i.dmaTrigger(i.base + uint32(reg.AddressOffset))
		}
		return new
	default:
		return new
	}
}
