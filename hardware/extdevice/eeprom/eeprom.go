// Package eeprom emulates a 24LCxx-class I2C EEPROM: a file-backed byte
// array addressed by a 2-byte (MSB-first) pointer that auto-increments and
// wraps at capacity, supplementing SPEC_FULL.md's "I2C drives byte
// exchanges with an EEPROM model" requirement -- original_source's i2c.rs
// never modeled an attached device at all (see DESIGN.md). Styled on
// extdevice/spiflash's own file-loaded, in-memory state machine since
// no EEPROM original exists in the pack to ground this more directly on.
package eeprom

import (
	"fmt"
	"os"

	"github.com/kvasari/stm32emu/logger"
)

// Config describes a backing file mapped as an I2C EEPROM.
type Config struct {
	Peripheral string
	Address    uint8
	File       string
	Size       int
	Writable   bool
}

// Eeprom implements i2c.Device, sequencing the START/address-byte/data
// phases a real 24LCxx expects.
type Eeprom struct {
	name     string
	address  uint8
	content  []byte
	size     int
	writable bool

	ptr        uint32
	addrGot    int
	addressing bool
}

// New loads cfg.File (padded/truncated to cfg.Size) and returns an Eeprom.
func New(cfg Config) (*Eeprom, error) {
	content, err := os.ReadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("eeprom: reading %s: %w", cfg.File, err)
	}
	if len(content) < cfg.Size {
		padded := make([]byte, cfg.Size)
		copy(padded, content)
		content = padded
	} else {
		content = content[:cfg.Size]
	}
	return &Eeprom{
		name:     cfg.Peripheral + " eeprom",
		address:  cfg.Address,
		content:  content,
		size:     cfg.Size,
		writable: cfg.Writable,
	}, nil
}

// Start implements i2c.Device. A write-direction START begins a new memory
// address (the next two WriteByte calls latch it); a read-direction START
// resumes sequential reads from the address pointer left by the previous
// transaction.
func (e *Eeprom) Start(address uint8, write bool) {
	if write {
		e.addressing = true
		e.addrGot = 0
		return
	}
	e.addressing = false
	logger.Debug(logger.Allow, "%s start read addr=0x%04x", e.name, e.ptr)
}

// WriteByte implements i2c.Device: the first two bytes of a write
// transaction latch the memory address pointer, MSB first; every byte
// after that is stored at the pointer, which then increments and wraps.
func (e *Eeprom) WriteByte(b byte) {
	if e.addressing {
		if e.addrGot == 0 {
			e.ptr = 0
		}
		e.ptr = e.ptr<<8 | uint32(b)
		e.addrGot++
		if e.addrGot >= 2 {
			e.addressing = false
			e.ptr %= uint32(e.size)
			logger.Debug(logger.Allow, "%s addr=0x%04x", e.name, e.ptr)
		}
		return
	}
	if !e.writable {
		logger.Warn(logger.Allow, "%s write to read-only eeprom ignored", e.name)
		return
	}
	e.content[e.ptr] = b
	e.ptr = (e.ptr + 1) % uint32(e.size)
}

// ReadByte implements i2c.Device, returning the byte at the current
// pointer and advancing it, wrapping at capacity.
func (e *Eeprom) ReadByte() byte {
	b := e.content[e.ptr]
	e.ptr = (e.ptr + 1) % uint32(e.size)
	return b
}

// Stop implements i2c.Device. The address pointer survives a STOP, as on
// real 24LCxx hardware, so a following current-address read continues
// where the last transaction left off.
func (e *Eeprom) Stop() {
	e.addressing = false
}

// Content exposes the in-memory buffer for round-trip tests. Writes are
// never copied back to the backing file.
func (e *Eeprom) Content() []byte { return e.content }
