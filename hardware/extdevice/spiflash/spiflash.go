// Package spiflash emulates a SPI NOR flash's command/address/data state
// machine, grounded on ext_devices/spi_flash.rs. The original only covered
// ReadJEDECID and ReadData; PageProgram, SectorErase, ReadStatus and
// WriteEnable are supplemented here since the emulator needs a flash that
// firmware can actually erase and program, not just read.
package spiflash

import (
	"fmt"
	"os"

	"github.com/kvasari/stm32emu/logger"
)

const (
	cmdReadData     = 0x03
	cmdFastRead     = 0x0B
	cmdReadJEDECID  = 0x9F
	cmdPageProgram  = 0x02
	cmdSectorErase  = 0xD8
	cmdReadStatus   = 0x05
	cmdWriteEnable  = 0x06

	sectorSize = 4096
	statusWEL  = 1 << 1
)

type phase int

const (
	phaseCmd phase = iota
	phaseAddr
	phaseDummy
	phaseData
)

// Config describes a backing file mapped as a SPI NOR flash.
type Config struct {
	Peripheral string
	JedecID    uint32
	File       string
	Size       int
	Writable   bool
}

// SpiFlash implements spi.Device and swspi.Device (both are
// Xfer(byte) byte), driving a command/address/data state machine over the
// backing content.
type SpiFlash struct {
	name     string
	jedecID  uint32
	content  []byte
	size     int
	writable bool

	phase   phase
	cmd     byte
	addr    uint32
	addrGot int
	addrLen int
	dataIdx int
	writeEnable bool

	jedecRX []byte
}

// New loads cfg.File (padded/truncated to cfg.Size) and returns a SpiFlash.
func New(cfg Config) (*SpiFlash, error) {
	content, err := os.ReadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("spiflash: reading %s: %w", cfg.File, err)
	}
	if len(content) < cfg.Size {
		padded := make([]byte, cfg.Size)
		copy(padded, content)
		content = padded
	} else {
		content = content[:cfg.Size]
	}
	return &SpiFlash{
		name:     cfg.Peripheral,
		jedecID:  cfg.JedecID,
		content:  content,
		size:     cfg.Size,
		writable: cfg.Writable,
	}, nil
}

// Name implements spi.Device's naming convention indirectly (spi.Device
// has no Name method; usart.Device does). Kept for parity with the
// original's SpiDevice::name and for log messages.
func (f *SpiFlash) Name(spiName string) string {
	f.name = spiName + " ext-flash"
	return f.name
}

// Reset returns the state machine to IDLE, matching chip-select
// deassertion in the original.
func (f *SpiFlash) Reset() {
	f.phase = phaseCmd
}

// Xfer implements spi.Device/swspi.Device, advancing the state machine by
// one clocked byte and returning the byte shifted out on MISO.
func (f *SpiFlash) Xfer(tx byte) byte {
	switch f.phase {
	case phaseCmd:
		return f.startCommand(tx)
	case phaseAddr:
		return f.feedAddr(tx)
	case phaseDummy:
		f.phase = phaseData
		return 0
	default:
		return f.feedData(tx)
	}
}

func (f *SpiFlash) startCommand(cmd byte) byte {
	f.cmd = cmd
	f.addr = 0
	f.addrGot = 0
	f.dataIdx = 0

	switch cmd {
	case cmdReadJEDECID:
		logger.Info(logger.Allow, "%s cmd=ReadJEDECID", f.name)
		f.jedecRX = f.jedecRX[:0]
		f.phase = phaseData
	case cmdReadData, cmdFastRead, cmdPageProgram, cmdSectorErase:
		f.addrLen = 3
		f.phase = phaseAddr
	case cmdReadStatus:
		f.phase = phaseData
	case cmdWriteEnable:
		f.writeEnable = true
		logger.Info(logger.Allow, "%s cmd=WriteEnable", f.name)
		f.phase = phaseCmd
	default:
		logger.Debug(logger.Allow, "%s tx=%02x unrecognised", f.name, cmd)
		f.phase = phaseCmd
	}
	return 0
}

func (f *SpiFlash) feedAddr(b byte) byte {
	f.addr = f.addr<<8 | uint32(b)
	f.addrGot++
	if f.addrGot < f.addrLen {
		return 0
	}
	if int(f.addr) >= f.size {
		logger.Warn(logger.Allow, "%s cmd=%02x addr=0x%06x larger than size=0x%06x", f.name, f.cmd, f.addr, f.size)
		f.addr %= uint32(f.size)
	} else {
		logger.Info(logger.Allow, "%s cmd=%02x addr=0x%06x", f.name, f.cmd, f.addr)
	}
	switch f.cmd {
	case cmdFastRead:
		f.phase = phaseDummy
	case cmdSectorErase:
		f.eraseSector()
		f.phase = phaseCmd
	default:
		f.phase = phaseData
	}
	return 0
}

func (f *SpiFlash) feedData(b byte) byte {
	switch f.cmd {
	case cmdReadJEDECID:
		return f.nextJEDECByte()
	case cmdReadData, cmdFastRead:
		return f.readByte()
	case cmdPageProgram:
		f.programByte(b)
		return 0
	case cmdReadStatus:
		status := byte(0)
		if f.writeEnable {
			status |= statusWEL
		}
		return status
	default:
		return 0
	}
}

func (f *SpiFlash) nextJEDECByte() byte {
	idx := f.dataIdx
	f.dataIdx++
	if idx > 2 {
		return 0
	}
	b := byte(f.jedecID >> uint(16-8*idx))
	f.jedecRX = append(f.jedecRX, b)
	if idx == 2 {
		logger.Info(logger.Allow, "%s cmd=ReadJEDECID rx=%s", f.name, hexList(f.jedecRX))
	}
	return b
}

// hexList formats bs as "[ab, cd, ef]", the bracketed lowercase form the
// end-to-end scenarios log against rather than Go's default %x run-together
// hex.
func hexList(bs []byte) string {
	out := "["
	for i, b := range bs {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%02x", b)
	}
	return out + "]"
}

func (f *SpiFlash) readByte() byte {
	if int(f.addr) >= f.size {
		f.addr = 0
	}
	b := f.content[f.addr]
	f.addr++
	return b
}

func (f *SpiFlash) programByte(b byte) {
	if !f.writable {
		logger.Warn(logger.Allow, "%s PageProgram to read-only flash ignored", f.name)
		return
	}
	if !f.writeEnable {
		logger.Warn(logger.Allow, "%s PageProgram without WriteEnable", f.name)
	}
	if int(f.addr) >= f.size {
		f.addr = 0
	}
	f.content[f.addr] = b
	f.addr++
}

func (f *SpiFlash) eraseSector() {
	if !f.writable {
		logger.Warn(logger.Allow, "%s SectorErase on read-only flash ignored", f.name)
		return
	}
	start := f.addr &^ (sectorSize - 1)
	end := start + sectorSize
	if int(end) > f.size {
		end = uint32(f.size)
	}
	for i := start; i < end; i++ {
		f.content[i] = 0xFF
	}
	f.writeEnable = false
	logger.Info(logger.Allow, "%s cmd=SectorErase addr=0x%06x", f.name, start)
}

// Content exposes the in-memory buffer for round-trip tests. Writes are
// never copied back to the backing file.
func (f *SpiFlash) Content() []byte { return f.content }
