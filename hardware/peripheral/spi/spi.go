// Package spi emulates a hardware SPI peripheral's data register as a
// full-duplex byte exchange with an attached Device, grounded on
// peripherals/spi.rs's always-ready SR, generalized from a no-op DR (the
// original never actually read/wrote data) into real byte transfer.
// Chip-select is expected to be driven by firmware through an ordinary
// GPIO pin rather than the peripheral's own NSS line, matching how the
// emulated SPI flash/TFT/touch devices are wired in practice.
package spi

import (
	"strings"

	"github.com/kvasari/stm32emu/svd"
)

// Device is the attach point for an SPI slave (flash, display, touch
// controller). Xfer clocks one byte out and one byte back.
type Device interface {
	Xfer(tx byte) byte
}

const (
	srRXNE = 1 << 0
	srTXE  = 1 << 1
)

// Spi implements peripheral.Peripheral.
type Spi struct {
	name   string
	base   uint32
	device Device
	lastRx byte

	dmaTrigger func(periAddr uint32)
}

// SetDMATrigger wires a callback that pulses whichever DMA stream, if any,
// is armed against this SPI's DR register whenever a byte is clocked --
// spec.md §4.5's "on peripheral trigger" DMA hook.
func (s *Spi) SetDMATrigger(fn func(periAddr uint32)) { s.dmaTrigger = fn }

// New returns an Spi for an SVD peripheral named "SPIx", or ok=false.
func New(name string, base uint32, device Device) (*Spi, bool) {
	if !strings.HasPrefix(name, "SPI") {
		return nil, false
	}
	return &Spi{name: name, base: base, device: device}, true
}

func (s *Spi) Base() uint32 { return s.base }
func (s *Spi) Name() string { return s.name }

func (s *Spi) OnRead(reg *svd.Register, old uint32, fields map[string]uint32) (uint32, uint32) {
	switch reg.Name {
	case "SR":
		return srRXNE | srTXE, srRXNE | srTXE
	case "DR":
		return uint32(s.lastRx), 0
	default:
		return old, old
	}
}

func (s *Spi) OnWrite(reg *svd.Register, old, new uint32, fields map[string]uint32) uint32 {
	if reg.Name != "DR" {
		return new
	}
	if s.device != nil {
		s.lastRx = s.device.Xfer(byte(new))
	}

	if s.dmaTrigger != nil {
		s.dmaTrigger(s.base + uint32(reg.AddressOffset))
	}
	return new
}
