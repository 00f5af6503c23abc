// Package swspi synthesizes byte-level SPI transactions from GPIO edge
// transitions, grounded on peripherals/sw_spi.rs: firmware that drives
// SCK/MOSI/MISO/CS as plain GPIO pins (bit-banged SPI) rather than through
// a hardware SPI peripheral. It is not itself a memory-mapped peripheral;
// it only registers callbacks on hardware/peripheral/gpio's shared Ports.
package swspi

import (
	"github.com/kvasari/stm32emu/hardware/peripheral/gpio"
	"github.com/kvasari/stm32emu/logger"
)

// Device is the attach point for the SPI slave clocked over the
// bit-banged lines.
type Device interface {
	Xfer(tx byte) byte
}

// Config names the GPIO pins a software SPI bus is wired to.
type Config struct {
	Name string
	CS   string // optional; empty means no chip-select line
	Clk  string
	Miso string
	Mosi string
}

// SoftwareSpi accumulates clocked bits into bytes and forwards completed
// bytes to the attached Device.
type SoftwareSpi struct {
	name   string
	device Device

	dataMosi, dataMiso byte
	bitIndex           uint8

	cs, clk, mosi, miso bool
}

// Register parses cfg's pin names and wires SoftwareSpi's callbacks into
// ports, returning the instance for tests/inspection.
func Register(cfg Config, ports *gpio.Ports, device Device) (*SoftwareSpi, error) {
	clk, err := gpio.ParsePin(cfg.Clk)
	if err != nil {
		return nil, err
	}
	miso, err := gpio.ParsePin(cfg.Miso)
	if err != nil {
		return nil, err
	}
	mosi, err := gpio.ParsePin(cfg.Mosi)
	if err != nil {
		return nil, err
	}

	s := &SoftwareSpi{name: cfg.Name, device: device}

	if cfg.CS != "" {
		cs, err := gpio.ParsePin(cfg.CS)
		if err != nil {
			return nil, err
		}
		ports.AddWriteCallback(cs, s.writeCS)
	}
	ports.AddWriteCallback(clk, s.writeClk)
	ports.AddReadCallback(miso, s.readMiso)
	ports.AddWriteCallback(mosi, s.writeMosi)

	return s, nil
}

func (s *SoftwareSpi) writeCS(value bool) {
	if s.cs && !value { // falling edge: reset the bit accumulator
		s.dataMosi = 0
		s.dataMiso = 0
		s.bitIndex = 0
		s.clk = false
		s.mosi = false
		s.miso = false
	}
	s.cs = value
}

func (s *SoftwareSpi) writeClk(value bool) {
	if s.cs {
		return
	}
	if !s.clk && value { // rising edge
		s.miso = s.dataMiso&0x80 != 0
		s.dataMiso <<= 1

		s.dataMosi <<= 1
		if s.mosi {
			s.dataMosi |= 1
		}

		s.bitIndex++
		if s.bitIndex == 8 {
			s.bitIndex = 0
			s.dataMiso = s.xfer(s.dataMosi)
		}
	}
	s.clk = value
}

func (s *SoftwareSpi) readMiso() bool {
	if s.cs {
		return false
	}
	return s.miso
}

func (s *SoftwareSpi) writeMosi(value bool) {
	if s.cs {
		return
	}
	s.mosi = value
}

func (s *SoftwareSpi) xfer(mosi byte) byte {
	logger.Trace(logger.Allow, "%s write=%02x", s.name, mosi)
	var miso byte
	if s.device != nil {
		miso = s.device.Xfer(mosi)
	}
	logger.Trace(logger.Allow, "%s read=%02x", s.name, miso)
	return miso
}
