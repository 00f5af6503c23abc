// Package fake provides a deterministic cpuengine.Engine used only by
// tests. It does not decode Thumb-2; a test supplies a short Program of
// Steps keyed by program counter, each of which mutates registers/memory
// directly, standing in for whatever real instructions would have done.
package fake

import (
	"fmt"

	"github.com/kvasari/stm32emu/cpuengine"
)

// Step is one instruction-equivalent in a fake Program.
type Step struct {
	Size uint8
	// Exec runs the step's effect. If it does not write cpuengine.PC
	// itself, execution falls through to pc+Size.
	Exec func(e *Engine)
}

type mmioRegion struct {
	start, end uint32
	read       cpuengine.MMIOReadFunc
	write      cpuengine.MMIOWriteFunc
}

// Engine is a deterministic, table-driven stand-in for a real ARM
// instruction-set simulator.
type Engine struct {
	regs [cpuengine.CONTROL + 1]uint32
	mem  map[uint32][]byte // region base -> backing bytes
	mmio []mmioRegion

	program map[uint32]Step

	codeHook CodeHook
	intrHook cpuengine.InterruptHookFunc
	memHooks map[cpuengine.MemHookType]cpuengine.MemHookFunc

	closed bool
}

// CodeHook matches cpuengine.CodeHookFunc; named so tests can assign it
// without importing cpuengine directly.
type CodeHook = cpuengine.CodeHookFunc

// New returns an empty fake engine.
func New() *Engine {
	return &Engine{
		mem:      make(map[uint32][]byte),
		memHooks: make(map[cpuengine.MemHookType]cpuengine.MemHookFunc),
	}
}

// LoadProgram installs the Steps a subsequent Start will execute, keyed
// by the program counter at which each applies.
func (e *Engine) LoadProgram(steps map[uint32]Step) {
	e.program = steps
}

func (e *Engine) MemMap(addr uint32, size uint32) error {
	e.mem[addr] = make([]byte, size)
	return nil
}

func (e *Engine) regionFor(addr uint32) ([]byte, uint32, bool) {
	for base, buf := range e.mem {
		if addr >= base && addr < base+uint32(len(buf)) {
			return buf, base, true
		}
	}
	return nil, 0, false
}

func (e *Engine) MemWrite(addr uint32, data []byte) error {
	buf, base, ok := e.regionFor(addr)
	if !ok {
		return fmt.Errorf("fake: write to unmapped address 0x%08x", addr)
	}
	copy(buf[addr-base:], data)
	return nil
}

func (e *Engine) MemRead(addr uint32, out []byte) error {
	buf, base, ok := e.regionFor(addr)
	if !ok {
		return fmt.Errorf("fake: read from unmapped address 0x%08x", addr)
	}
	copy(out, buf[addr-base:])
	return nil
}

func (e *Engine) MMIOMap(addr uint32, size uint32, read cpuengine.MMIOReadFunc, write cpuengine.MMIOWriteFunc) error {
	e.mmio = append(e.mmio, mmioRegion{start: addr, end: addr + size, read: read, write: write})
	return nil
}

// ReadMMIO lets a test drive a peripheral's read path without executing
// any instructions.
func (e *Engine) ReadMMIO(addr uint32, size uint8) (uint32, bool) {
	for _, r := range e.mmio {
		if addr >= r.start && addr < r.end && r.read != nil {
			return r.read(addr-r.start, size), true
		}
	}
	return 0, false
}

// WriteMMIO lets a test drive a peripheral's write path without executing
// any instructions.
func (e *Engine) WriteMMIO(addr uint32, size uint8, value uint32) bool {
	for _, r := range e.mmio {
		if addr >= r.start && addr < r.end && r.write != nil {
			r.write(addr-r.start, size, value)
			return true
		}
	}
	return false
}

func (e *Engine) RegRead(reg cpuengine.Register) (uint32, error) {
	if int(reg) < 0 || int(reg) >= len(e.regs) {
		return 0, fmt.Errorf("fake: register %d out of range", reg)
	}
	return e.regs[reg], nil
}

func (e *Engine) RegWrite(reg cpuengine.Register, value uint32) error {
	if int(reg) < 0 || int(reg) >= len(e.regs) {
		return fmt.Errorf("fake: register %d out of range", reg)
	}
	e.regs[reg] = value
	return nil
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

// Start executes Steps beginning at pc. It stops when the current pc
// equals until (and until != 0), when count steps have run (count != 0),
// or when no Step exists for the current pc (an implicit unmapped-code
// fault, reported via the MemUnmapped hook if one is set).
func (e *Engine) Start(pc uint32, until uint32, count uint64) error {
	e.regs[cpuengine.PC] = pc

	var executed uint64
	for {
		cur := e.regs[cpuengine.PC]
		if until != 0 && cur == until {
			return nil
		}
		if count != 0 && executed >= count {
			return nil
		}

		step, ok := e.program[cur]
		if !ok {
			if hook := e.memHooks[cpuengine.MemUnmapped]; hook != nil {
				hook(cpuengine.MemUnmapped, cur, 0, 0)
			}
			return nil
		}

		if e.codeHook != nil {
			e.codeHook(cur, step.Size)
		}

		before := e.regs[cpuengine.PC]
		if step.Exec != nil {
			step.Exec(e)
		}
		if e.regs[cpuengine.PC] == before {
			e.regs[cpuengine.PC] = cur + uint32(step.Size)
		}

		executed++
	}
}

// TriggerInterrupt invokes the installed interrupt hook, simulating the
// engine taking a software interrupt or fault.
func (e *Engine) TriggerInterrupt(intno uint32) {
	if e.intrHook != nil {
		e.intrHook(intno)
	}
}

func (e *Engine) Close() error {
	e.closed = true
	return nil
}
