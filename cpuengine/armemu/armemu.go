// Package armemu implements cpuengine.Engine on top of
// github.com/yalue/arm_emulate, the only real ARM instruction-set
// simulator available to this project. That library decodes the
// classic ARMv4T instruction set plus Thumb-1, not the full ARMv7-M
// Thumb-2 encoding Cortex-M4 firmware actually uses. Firmware that
// relies on 32-bit-only Thumb-2 encodings, or on the MSR/MRS special-
// register forms used to touch CONTROL/PRIMASK/MSP/PSP directly, will
// surface as an instruction-decode error from RunNextInstruction,
// which this package reports the same way it reports any other fault:
// through Start's error return, for hardware/system to turn into
// errors.EngineFault. Everything this emulator needs for exception
// entry/return (hardware/nvic) touches MSP, PSP, CONTROL, XPSR and LR
// only through register read/write, never through executed
// instructions, so the gap is confined to firmware that deliberately
// reaches for instructions outside the classic ISA.
package armemu

import (
	"fmt"

	"github.com/yalue/arm_emulate"

	"github.com/kvasari/stm32emu/cpuengine"
)

type ramRegion struct {
	start uint32
	data  []byte
}

type mmioRegion struct {
	start, end uint32
	read       cpuengine.MMIOReadFunc
	write      cpuengine.MMIOWriteFunc
}

// Engine adapts arm_emulate.ARMProcessor to cpuengine.Engine, and
// supplies the processor's ARMMemory by dispatching to whichever
// region (flat RAM or MMIO callback) an access falls inside of.
type Engine struct {
	proc arm_emulate.ARMProcessor

	ram  []ramRegion
	mmio []mmioRegion

	// Cortex-M register state arm_emulate has no notion of: it only
	// models the classic ARM CPSR/SPSR banked-mode register file.
	msp, psp, control, primask, xpsr uint32
	activeIsPSP                      bool

	codeHook cpuengine.CodeHookFunc
	intrHook cpuengine.InterruptHookFunc
	memHooks map[cpuengine.MemHookType]cpuengine.MemHookFunc

	closed bool
}

// New returns an Engine with a fresh ARMProcessor fixed in Thumb mode,
// since Cortex-M has no 32-bit ARM execution state.
func New() (*Engine, error) {
	proc := arm_emulate.NewARMProcessor()
	if err := proc.SetTHUMBMode(true); err != nil {
		return nil, fmt.Errorf("armemu: enabling THUMB mode: %w", err)
	}
	e := &Engine{
		proc:     proc,
		memHooks: make(map[cpuengine.MemHookType]cpuengine.MemHookFunc),
	}
	proc.SetMemoryInterface(e)
	return e, nil
}

// -- cpuengine.Engine --------------------------------------------------

func (e *Engine) MemMap(addr uint32, size uint32) error {
	e.ram = append(e.ram, ramRegion{start: addr, data: make([]byte, size)})
	return nil
}

func (e *Engine) ramFor(addr uint32) (*ramRegion, bool) {
	for i := range e.ram {
		r := &e.ram[i]
		if addr >= r.start && addr < r.start+uint32(len(r.data)) {
			return r, true
		}
	}
	return nil, false
}

func (e *Engine) MemWrite(addr uint32, data []byte) error {
	r, ok := e.ramFor(addr)
	if !ok {
		return fmt.Errorf("armemu: write to unmapped address 0x%08x", addr)
	}
	copy(r.data[addr-r.start:], data)
	return nil
}

func (e *Engine) MemRead(addr uint32, buf []byte) error {
	r, ok := e.ramFor(addr)
	if !ok {
		return fmt.Errorf("armemu: read from unmapped address 0x%08x", addr)
	}
	copy(buf, r.data[addr-r.start:])
	return nil
}

func (e *Engine) MMIOMap(addr uint32, size uint32, read cpuengine.MMIOReadFunc, write cpuengine.MMIOWriteFunc) error {
	e.mmio = append(e.mmio, mmioRegion{start: addr, end: addr + size, read: read, write: write})
	return nil
}

func (e *Engine) mmioFor(addr uint32) (*mmioRegion, bool) {
	for i := range e.mmio {
		r := &e.mmio[i]
		if addr >= r.start && addr < r.end {
			return r, true
		}
	}
	return nil, false
}

func (e *Engine) RegRead(reg cpuengine.Register) (uint32, error) {
	switch reg {
	case cpuengine.MSP:
		if !e.activeIsPSP {
			v, err := e.proc.GetRegister(13)
			if err != nil {
				return 0, err
			}
			e.msp = v
		}
		return e.msp, nil
	case cpuengine.PSP:
		if e.activeIsPSP {
			v, err := e.proc.GetRegister(13)
			if err != nil {
				return 0, err
			}
			e.psp = v
		}
		return e.psp, nil
	case cpuengine.PRIMASK:
		return e.primask, nil
	case cpuengine.CONTROL:
		return e.control, nil
	case cpuengine.XPSR:
		return e.xpsr, nil
	}
	n, ok := armRegNum(reg)
	if !ok {
		return 0, fmt.Errorf("armemu: register %d out of range", reg)
	}
	return e.proc.GetRegister(arm_emulate.ARMRegister(n))
}

func (e *Engine) RegWrite(reg cpuengine.Register, value uint32) error {
	switch reg {
	case cpuengine.MSP:
		e.msp = value
		e.activeIsPSP = false
		return e.proc.SetRegister(13, value)
	case cpuengine.PSP:
		e.psp = value
		e.activeIsPSP = true
		return e.proc.SetRegister(13, value)
	case cpuengine.PRIMASK:
		e.primask = value
		return nil
	case cpuengine.CONTROL:
		e.control = value
		return nil
	case cpuengine.XPSR:
		e.xpsr = value
		return nil
	}
	n, ok := armRegNum(reg)
	if !ok {
		return fmt.Errorf("armemu: register %d out of range", reg)
	}
	return e.proc.SetRegister(arm_emulate.ARMRegister(n), value)
}

// armRegNum maps the registers cpuengine.Register and ARM's own R0-PC
// numbering agree on (0-15) straight through; Cortex-M-only registers
// are handled by the caller before reaching here.
func armRegNum(reg cpuengine.Register) (int, bool) {
	if reg >= cpuengine.R0 && reg <= cpuengine.PC {
		return int(reg), true
	}
	return 0, false
}

func (e *Engine) AddCodeHook(fn cpuengine.CodeHookFunc) error {
	e.codeHook = fn
	return nil
}

func (e *Engine) AddInterruptHook(fn cpuengine.InterruptHookFunc) error {
	e.intrHook = fn
	return nil
}

func (e *Engine) AddMemHook(kind cpuengine.MemHookType, fn cpuengine.MemHookFunc) error {
	e.memHooks[kind] = fn
	return nil
}

// thumbInstrSize reports whether the 16-bit word at a Thumb fetch
// address begins a 32-bit Thumb-2 instruction, per the standard rule:
// bits [15:11] of 0b11101/0b11110/0b11111 commit the next halfword as
// the low half of the encoding.
func thumbInstrSize(first uint16) uint8 {
	top5 := first >> 11
	if top5 == 0x1D || top5 == 0x1E || top5 == 0x1F {
		return 4
	}
	return 2
}

// Start runs single or multiple instructions starting at pc. arm_emulate
// has no built-in stepping limit or hook mechanism, so this loop drives
// RunNextInstruction one instruction at a time and fires the code hook
// itself before each one.
func (e *Engine) Start(pc uint32, until uint32, count uint64) error {
	if err := e.proc.SetRegister(15, pc); err != nil {
		return fmt.Errorf("armemu: setting pc: %w", err)
	}

	var executed uint64
	for {
		cur, err := e.proc.GetRegister(15)
		if err != nil {
			return fmt.Errorf("armemu: reading pc: %w", err)
		}
		if until != 0 && cur == until {
			return nil
		}
		if count != 0 && executed >= count {
			return nil
		}

		if e.codeHook != nil {
			first, _ := e.ReadMemoryHalfword(cur)
			e.codeHook(cur, thumbInstrSize(first))
		}

		if err := e.proc.RunNextInstruction(); err != nil {
			if e.intrHook != nil {
				e.intrHook(0)
			}
			return fmt.Errorf("armemu: fault at pc=0x%08x: %w", cur, err)
		}

		executed++
	}
}

func (e *Engine) Close() error {
	e.closed = true
	return nil
}

// -- arm_emulate.ARMMemory ----------------------------------------------

func (e *Engine) fireHook(kind cpuengine.MemHookType, addr uint32, size int, value int64) {
	if fn := e.memHooks[kind]; fn != nil {
		fn(kind, addr, size, value)
	}
}

func (e *Engine) SetMemoryRegion(offset uint32, data []byte) error {
	e.ram = append(e.ram, ramRegion{start: offset, data: data})
	return nil
}

func (e *Engine) ReadMemoryByte(addr uint32) (byte, error) {
	if r, ok := e.mmioFor(addr); ok && r.read != nil {
		v := r.read(addr-r.start, 1)
		e.fireHook(cpuengine.MemRead, addr, 1, int64(v))
		return byte(v), nil
	}
	if r, ok := e.ramFor(addr); ok {
		v := r.data[addr-r.start]
		e.fireHook(cpuengine.MemRead, addr, 1, int64(v))
		return v, nil
	}
	e.fireHook(cpuengine.MemUnmapped, addr, 1, 0)
	return 0, nil
}

func (e *Engine) ReadMemoryHalfword(addr uint32) (uint16, error) {
	if r, ok := e.mmioFor(addr); ok && r.read != nil {
		v := r.read(addr-r.start, 2)
		e.fireHook(cpuengine.MemRead, addr, 2, int64(v))
		return uint16(v), nil
	}
	if r, ok := e.ramFor(addr); ok {
		off := addr - r.start
		v := uint16(r.data[off]) | uint16(r.data[off+1])<<8
		e.fireHook(cpuengine.MemRead, addr, 2, int64(v))
		return v, nil
	}
	e.fireHook(cpuengine.MemUnmapped, addr, 2, 0)
	return 0, nil
}

func (e *Engine) ReadMemoryWord(addr uint32) (uint32, error) {
	if r, ok := e.mmioFor(addr); ok && r.read != nil {
		v := r.read(addr-r.start, 4)
		e.fireHook(cpuengine.MemRead, addr, 4, int64(v))
		return v, nil
	}
	if r, ok := e.ramFor(addr); ok {
		off := addr - r.start
		v := uint32(r.data[off]) | uint32(r.data[off+1])<<8 | uint32(r.data[off+2])<<16 | uint32(r.data[off+3])<<24
		e.fireHook(cpuengine.MemRead, addr, 4, int64(v))
		return v, nil
	}
	e.fireHook(cpuengine.MemUnmapped, addr, 4, 0)
	return 0, nil
}

func (e *Engine) WriteMemoryByte(addr uint32, value byte) error {
	if r, ok := e.mmioFor(addr); ok {
		if r.write != nil {
			r.write(addr-r.start, 1, uint32(value))
		}
		e.fireHook(cpuengine.MemWrite, addr, 1, int64(value))
		return nil
	}
	if r, ok := e.ramFor(addr); ok {
		r.data[addr-r.start] = value
		e.fireHook(cpuengine.MemWrite, addr, 1, int64(value))
		return nil
	}
	e.fireHook(cpuengine.MemUnmapped, addr, 1, int64(value))
	return nil
}

func (e *Engine) WriteMemoryHalfword(addr uint32, value uint16) error {
	if r, ok := e.mmioFor(addr); ok {
		if r.write != nil {
			r.write(addr-r.start, 2, uint32(value))
		}
		e.fireHook(cpuengine.MemWrite, addr, 2, int64(value))
		return nil
	}
	if r, ok := e.ramFor(addr); ok {
		off := addr - r.start
		r.data[off] = byte(value)
		r.data[off+1] = byte(value >> 8)
		e.fireHook(cpuengine.MemWrite, addr, 2, int64(value))
		return nil
	}
	e.fireHook(cpuengine.MemUnmapped, addr, 2, int64(value))
	return nil
}

func (e *Engine) WriteMemoryWord(addr uint32, value uint32) error {
	if r, ok := e.mmioFor(addr); ok {
		if r.write != nil {
			r.write(addr-r.start, 4, value)
		}
		e.fireHook(cpuengine.MemWrite, addr, 4, int64(value))
		return nil
	}
	if r, ok := e.ramFor(addr); ok {
		off := addr - r.start
		r.data[off] = byte(value)
		r.data[off+1] = byte(value >> 8)
		r.data[off+2] = byte(value >> 16)
		r.data[off+3] = byte(value >> 24)
		e.fireHook(cpuengine.MemWrite, addr, 4, int64(value))
		return nil
	}
	e.fireHook(cpuengine.MemUnmapped, addr, 4, int64(value))
	return nil
}
