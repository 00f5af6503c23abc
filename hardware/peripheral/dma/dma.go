// Package dma emulates the STM32F4 DMA controller's 16 streams, grounded
// on peripherals/dma.rs's Stream/do_xfer, but replacing the original's
// CR-toggle workaround for zero-size writes with real TCIF/HTIF/TEIF
// completion flags so the transfer-complete invariant is observable.
package dma

import (
	"strings"

	"github.com/kvasari/stm32emu/hardware/membus"
	"github.com/kvasari/stm32emu/logger"
)

const (
	NumStreams = 16
	streamBase = 0x10
	streamSize = 0x18

	flagTCIF  = 1 << 0
	flagHTIF  = 1 << 1
	flagTEIF  = 1 << 2
	flagDMEIF = 1 << 3
)

type dir int

const (
	dirPeriToMem dir = iota
	dirMemToPeri
	dirMemToMem
	dirInvalid
)

// Dma implements peripheral.Peripheral for one DMA controller instance.
type Dma struct {
	name string
	base uint32
	bus  *membus.Bus

	streams [NumStreams]stream
}

type stream struct {
	cr, ndtr, par, m0ar, m1ar, fcr uint32
	flags                          uint8

	armed   bool   // EN set, peripheral-to-memory/memory-to-peripheral stream waiting on Trigger
	reload  uint32 // NDTR at arm time, for the half-transfer flag
	xferred uint32 // units moved since arm
}

// New returns a Dma for an SVD peripheral named "DMAx", or ok=false.
func New(name string, base uint32, bus *membus.Bus) (*Dma, bool) {
	if !strings.HasPrefix(name, "DMA") {
		return nil, false
	}
	return &Dma{name: name, base: base, bus: bus}, true
}

func (d *Dma) Base() uint32 { return d.base }
func (d *Dma) Name() string { return d.name }

// OnAccess implements membus.Handler directly rather than going through
// peripheral.Registration: DMA's register layout (common ISR/IFCR plus a
// strided per-stream block) doesn't fit the SVD-derived single-register
// dispatch every other peripheral uses, so it decodes offsets itself.
func (d *Dma) OnAccess(offset uint32, width int, isWrite bool, valueIn uint32) uint32 {
	switch {
	case offset == 0x00: // ISR0: streams 0-7
		return d.readISR(0, isWrite, valueIn, offset)
	case offset == 0x04: // ISR1: streams 8-15
		return d.readISR(8, isWrite, valueIn, offset)
	case offset == 0x08: // IFCR0
		return d.writeIFCR(0, isWrite, valueIn)
	case offset == 0x0C: // IFCR1
		return d.writeIFCR(8, isWrite, valueIn)
	case offset >= streamBase:
		idx := int((offset - streamBase) / streamSize)
		regOffset := (offset - streamBase) % streamSize
		if idx >= NumStreams {
			logger.Warn(logger.Allow, "%s stream index %d out of range", d.name, idx)
			return 0
		}
		return d.streamAccess(idx, regOffset, width, isWrite, valueIn)
	default:
		return 0
	}
}

func (d *Dma) readISR(base int, isWrite bool, valueIn, offset uint32) uint32 {
	if isWrite {
		return 0 // ISR is read-only
	}
	var v uint32
	for i := 0; i < 8; i++ {
		v |= uint32(d.streams[base+i].flags) << (uint32(i) * 4)
	}
	return v
}

func (d *Dma) writeIFCR(base int, isWrite bool, valueIn uint32) uint32 {
	if !isWrite {
		return 0
	}
	for i := 0; i < 8; i++ {
		clear := uint8((valueIn >> (uint32(i) * 4)) & 0xF)
		d.streams[base+i].flags &^= clear
	}
	return 0
}

func (d *Dma) streamAccess(idx int, regOffset uint32, width int, isWrite bool, valueIn uint32) uint32 {
	s := &d.streams[idx]
	if !isWrite {
		switch regOffset {
		case 0x00:
			return s.cr
		case 0x04:
			return s.ndtr
		case 0x08:
			return s.par
		case 0x0C:
			return s.m0ar
		case 0x10:
			return s.m1ar
		case 0x14:
			return s.fcr
		}
		return 0
	}

	switch regOffset {
	case 0x00:
		wasEnabled := s.cr&1 != 0
		s.cr = valueIn
		if valueIn&1 != 0 && !wasEnabled {
			d.arm(idx)
		} else if valueIn&1 == 0 {
			s.armed = false
		}
	case 0x04:
		s.ndtr = valueIn & 0xFFFF
	case 0x08:
		s.par = valueIn
	case 0x0C:
		s.m0ar = valueIn
	case 0x10:
		s.m1ar = valueIn
	case 0x14:
		s.fcr = valueIn
	}
	return 0
}

func (s *stream) channel() uint8 { return uint8((s.cr >> 25) & 0b111) }

func (s *stream) direction() dir {
	switch (s.cr >> 6) & 0b11 {
	case 0b00:
		return dirPeriToMem
	case 0b01:
		return dirMemToPeri
	case 0b10:
		return dirMemToMem
	default:
		return dirInvalid
	}
}

func (s *stream) wordSize() uint32 {
	switch (s.cr >> 11) & 0b11 {
	case 0b01:
		return 2
	case 0b10:
		return 4
	default:
		return 1
	}
}

func (s *stream) dataSize() uint32 { return s.wordSize() * s.ndtr }

func (s *stream) dataAddr() uint32 {
	if s.cr&(1<<19) != 0 {
		return s.m1ar
	}
	return s.m0ar
}

// arm records the configured transfer and logs the single "xfer initiated"
// line spec.md §4.5 requires per armed stream. Memory-to-memory transfers
// have no peripheral to wait on and complete immediately, matching real
// DMA hardware; peripheral-to-memory streams stay armed until Trigger is
// called once per unit by the attached peripheral's own RXNE event.
// Memory-to-peripheral streams push data with no external pacing signal of
// their own, so arming one also kicks the first unit immediately; that
// unit's write reaches the peripheral's DR handler, which calls back into
// Trigger for the next one, a recursion bounded by NDTR and never deeper.
func (d *Dma) arm(idx int) {
	s := &d.streams[idx]
	s.reload = s.ndtr
	s.xferred = 0

	logger.Debug(logger.Allow, "%s stream=%d channel=%d dir=%d xfer initiated addr=0x%08x size=%d", d.name, idx, s.channel(), s.direction(), s.dataAddr(), s.dataSize())

	if s.direction() == dirMemToMem {
		d.xferMemToMem(idx)
		s.cr &^= 1
		return
	}

	s.armed = true
	if s.direction() == dirMemToPeri {
		d.transferUnit(idx)
	}
}

func (d *Dma) xferMemToMem(idx int) {
	s := &d.streams[idx]
	size := s.dataSize()
	width := int(s.wordSize())
	src, dst := s.par, s.dataAddr()

	for off := uint32(0); off < size; off += uint32(width) {
		v := d.bus.Read(0, src+off, width)
		d.bus.Write(0, dst+off, width, v)
	}

	s.flags |= flagTCIF
	if size > 0 {
		s.flags |= flagHTIF
	}
}

// Trigger moves exactly one transfer unit on every stream armed with
// peripheral address periAddr, matching spec.md §4.5's "on peripheral
// trigger ... performs one transfer unit" semantics. Called by the
// attached USART/SPI/I2C peripheral's register handler once per byte
// event (TXE for memory-to-peripheral, RXNE for peripheral-to-memory).
func (d *Dma) Trigger(periAddr uint32) {
	for i := range d.streams {
		s := &d.streams[i]
		if !s.armed || s.par != periAddr {
			continue
		}
		d.transferUnit(i)
	}
}

func (d *Dma) transferUnit(idx int) {
	s := &d.streams[idx]
	width := uint32(s.wordSize())
	dataAddr := s.dataAddr() + s.xferred*width

	var src, dst uint32
	switch s.direction() {
	case dirPeriToMem:
		src, dst = s.par, dataAddr
	case dirMemToPeri:
		src, dst = dataAddr, s.par
	default:
		s.armed = false
		return
	}

	v := d.bus.Read(0, src, int(width))
	d.bus.Write(0, dst, int(width), v)

	s.xferred++
	if s.ndtr > 0 {
		s.ndtr--
	}
	if s.reload > 0 && s.xferred*2 >= s.reload {
		s.flags |= flagHTIF
	}

	logger.Trace(logger.Allow, "%s stream=%d xfer unit=%d/%d", d.name, idx, s.xferred, s.reload)

	if s.ndtr == 0 {
		s.flags |= flagTCIF
		s.cr &^= 1
		s.armed = false
	}
}
