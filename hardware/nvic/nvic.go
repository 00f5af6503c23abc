// Package nvic synthesizes ARM-v7M exception entry and return on top of a
// CPU engine that has no native notion of interrupts. It is polled once
// per instruction by hardware/system; when an enabled, pending exception
// outranks whatever is currently executing, it pushes a stack frame and
// redirects the program counter to the vector table entry, exactly as a
// real Cortex-M4 core would.
package nvic

import (
	"fmt"

	"github.com/kvasari/stm32emu/cpuengine"
	"github.com/kvasari/stm32emu/hardware/membus"
	"github.com/kvasari/stm32emu/logger"
)

// Fixed exception numbers, per the ARM-v7M vector table layout.
const (
	ExcReset     = 1
	ExcNMI       = 2
	ExcHardFault = 3
	ExcSVCall    = 11
	ExcPendSV    = 14
	ExcSysTick   = 15
	ExcIRQ0      = 16

	maxExceptions = 256
)

type excState struct {
	enabled  bool
	pending  bool
	active   bool
	priority uint8
}

// Nvic owns the per-exception enabled/pending/active/priority state and
// performs exception entry/return directly against the CPU engine's
// register file and the memory bus's stack region.
type Nvic struct {
	bus    *membus.Bus
	engine cpuengine.Engine

	vtor         uint32
	priorityBits int
	aspen        bool

	exceptions  [maxExceptions]excState
	activeStack []int
}

// New returns an Nvic with fixed exceptions (Reset, NMI, HardFault, ...)
// always enabled and every IRQ line disabled, matching reset state.
func New(bus *membus.Bus, engine cpuengine.Engine, vtor uint32, priorityBits int) *Nvic {
	n := &Nvic{bus: bus, engine: engine, vtor: vtor, priorityBits: priorityBits, aspen: true}
	n.exceptions[ExcReset].enabled = true
	n.exceptions[ExcNMI].enabled = true
	n.exceptions[ExcHardFault].enabled = true
	n.exceptions[ExcSVCall].enabled = true
	n.exceptions[ExcPendSV].enabled = true
	n.exceptions[ExcSysTick].enabled = true
	return n
}

func (n *Nvic) SetVTOR(v uint32) { n.vtor = v }

// EnableIRQ/PendIRQ/SetIRQPriority address external IRQs by their SVD
// number (0-based), matching the NVIC register block's IRQ numbering.
func (n *Nvic) EnableIRQ(irq int, enabled bool) { n.exceptions[ExcIRQ0+irq].enabled = enabled }
func (n *Nvic) PendIRQ(irq int)                 { n.exceptions[ExcIRQ0+irq].pending = true }
func (n *Nvic) ClearPendingIRQ(irq int)         { n.exceptions[ExcIRQ0+irq].pending = false }
func (n *Nvic) SetIRQPriority(irq int, pri uint8) {
	n.exceptions[ExcIRQ0+irq].priority = pri
}
func (n *Nvic) IRQPending(irq int) bool { return n.exceptions[ExcIRQ0+irq].pending }
func (n *Nvic) IRQActive(irq int) bool  { return n.exceptions[ExcIRQ0+irq].active }

// PendSysTick pends the SysTick exception (number 15), for
// hardware/peripheral/systick to call on down-counter underflow.
func (n *Nvic) PendSysTick() { n.exceptions[ExcSysTick].pending = true }

// Depth reports the number of stacked (nested) exception frames not yet
// unwound, matching spec.md's "current exception depth" invariant.
func (n *Nvic) Depth() int { return len(n.activeStack) }

func (n *Nvic) effectivePriority(num int) uint8 {
	if num < ExcIRQ0 {
		return 0 // fixed exceptions run at the highest priority, unconfigurable here
	}
	pri := n.exceptions[num].priority
	shift := uint(8 - n.priorityBits)
	if shift > 8 {
		shift = 8
	}
	return (pri >> shift) << shift
}

func (n *Nvic) currentPriority() uint8 {
	if len(n.activeStack) == 0 {
		return 255 // thread level: lower priority than anything pending
	}
	return n.effectivePriority(n.activeStack[len(n.activeStack)-1])
}

// Poll finds the highest-priority pending, enabled, inactive exception
// and performs entry if it outranks whatever is currently executing.
// Returns true if entry was performed.
func (n *Nvic) Poll() (bool, error) {
	primask, err := n.engine.RegRead(cpuengine.PRIMASK)
	if err != nil {
		return false, err
	}
	if primask&1 != 0 {
		return false, nil // CPSID I: all configurable exceptions masked
	}

	best := -1
	var bestPri uint8 = 255
	for num := ExcNMI; num < maxExceptions; num++ {
		e := &n.exceptions[num]
		if !e.pending || !e.enabled || e.active {
			continue
		}
		pri := n.effectivePriority(num)
		if best == -1 || pri < bestPri || (pri == bestPri && num < best) {
			best, bestPri = num, pri
		}
	}
	if best == -1 || bestPri >= n.currentPriority() {
		return false, nil
	}
	return true, n.enter(best)
}

func (n *Nvic) enter(num int) error {
	handlerModeBefore := len(n.activeStack) > 0

	control, err := n.engine.RegRead(cpuengine.CONTROL)
	if err != nil {
		return err
	}
	spsel := control&(1<<1) != 0
	fpca := control&(1<<2) != 0
	fpExtended := fpca && n.aspen

	useMSP := handlerModeBefore || !spsel
	spReg := cpuengine.PSP
	if useMSP {
		spReg = cpuengine.MSP
	}

	sp, err := n.engine.RegRead(spReg)
	if err != nil {
		return err
	}

	frameSize := uint32(0x20)
	if fpExtended {
		frameSize = 0x68
	}
	newSP := sp - frameSize

	r0, _ := n.engine.RegRead(cpuengine.R0)
	r1, _ := n.engine.RegRead(cpuengine.R1)
	r2, _ := n.engine.RegRead(cpuengine.R2)
	r3, _ := n.engine.RegRead(cpuengine.R3)
	r12, _ := n.engine.RegRead(cpuengine.R12)
	lr, _ := n.engine.RegRead(cpuengine.LR)
	returnAddress, _ := n.engine.RegRead(cpuengine.PC)
	xpsr, _ := n.engine.RegRead(cpuengine.XPSR)

	n.bus.Write(returnAddress, newSP+0x00, 4, r0)
	n.bus.Write(returnAddress, newSP+0x04, 4, r1)
	n.bus.Write(returnAddress, newSP+0x08, 4, r2)
	n.bus.Write(returnAddress, newSP+0x0C, 4, r3)
	n.bus.Write(returnAddress, newSP+0x10, 4, r12)
	n.bus.Write(returnAddress, newSP+0x14, 4, lr)
	n.bus.Write(returnAddress, newSP+0x18, 4, returnAddress)
	n.bus.Write(returnAddress, newSP+0x1C, 4, xpsr)

	if fpExtended {
		for i := 0; i < 18; i++ {
			n.bus.Write(returnAddress, newSP+0x20+uint32(i*4), 4, 0)
		}
	}

	excReturn := uint32(0xFFFFFFF1)
	if !handlerModeBefore {
		excReturn |= 1 << 3
	}
	if !useMSP {
		excReturn |= 1 << 2
	}
	if fpExtended {
		excReturn &^= 1 << 4
	}

	_ = n.engine.RegWrite(cpuengine.LR, excReturn)
	_ = n.engine.RegWrite(spReg, newSP)

	vectorAddr := n.vtor + uint32(num)*4
	handlerPC := n.bus.Read(returnAddress, vectorAddr, 4) &^ 1

	_ = n.engine.RegWrite(cpuengine.PC, handlerPC)
	newXPSR := (xpsr &^ 0x1FF) | uint32(num)
	_ = n.engine.RegWrite(cpuengine.XPSR, newXPSR)
	_ = n.engine.RegWrite(cpuengine.CONTROL, control&^(1<<2))

	n.exceptions[num].pending = false
	n.exceptions[num].active = true
	n.activeStack = append(n.activeStack, num)

	logger.Debug(logger.Allow, "nvic exception-entry num=%d pc=0x%08x handler=0x%08x depth=%d", num, returnAddress, handlerPC, len(n.activeStack))
	return nil
}

// IsExceptionReturn reports whether addr matches one of the EXC_RETURN
// sentinel encodings a branch-to-LR would use to unwind.
func IsExceptionReturn(addr uint32) bool {
	if addr>>24 != 0xFF {
		return false
	}
	switch addr & 0xFF {
	case 0xE1, 0xE9, 0xED, 0xF1, 0xF9, 0xFD:
		return true
	}
	return false
}

// Return pops the most recently entered exception frame using the
// EXC_RETURN bits in excReturn (normally read straight from LR).
func (n *Nvic) Return(excReturn uint32) error {
	if len(n.activeStack) == 0 {
		return fmt.Errorf("nvic: exception return with no active exception")
	}
	num := n.activeStack[len(n.activeStack)-1]
	n.activeStack = n.activeStack[:len(n.activeStack)-1]
	n.exceptions[num].active = false

	usePSP := excReturn&(1<<2) != 0
	fpExtended := excReturn&(1<<4) == 0
	spReg := cpuengine.MSP
	if usePSP {
		spReg = cpuengine.PSP
	}

	sp, err := n.engine.RegRead(spReg)
	if err != nil {
		return err
	}

	r0 := n.bus.Read(sp, sp+0x00, 4)
	r1 := n.bus.Read(sp, sp+0x04, 4)
	r2 := n.bus.Read(sp, sp+0x08, 4)
	r3 := n.bus.Read(sp, sp+0x0C, 4)
	r12 := n.bus.Read(sp, sp+0x10, 4)
	lr := n.bus.Read(sp, sp+0x14, 4)
	returnAddress := n.bus.Read(sp, sp+0x18, 4)
	xpsr := n.bus.Read(sp, sp+0x1C, 4)

	frameSize := uint32(0x20)
	if fpExtended {
		frameSize = 0x68
	}
	newSP := sp + frameSize

	_ = n.engine.RegWrite(cpuengine.R0, r0)
	_ = n.engine.RegWrite(cpuengine.R1, r1)
	_ = n.engine.RegWrite(cpuengine.R2, r2)
	_ = n.engine.RegWrite(cpuengine.R3, r3)
	_ = n.engine.RegWrite(cpuengine.R12, r12)
	_ = n.engine.RegWrite(cpuengine.LR, lr)
	_ = n.engine.RegWrite(cpuengine.PC, returnAddress)
	_ = n.engine.RegWrite(cpuengine.XPSR, xpsr)
	_ = n.engine.RegWrite(spReg, newSP)

	logger.Debug(logger.Allow, "nvic exception-return num=%d pc=0x%08x depth=%d", num, returnAddress, len(n.activeStack))
	return nil
}
