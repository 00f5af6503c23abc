// Package rcc emulates just enough of the reset-and-clock-control
// peripheral for firmware's clock bring-up busy-waits to terminate
// immediately: every xON bit written also sets its paired xRDY bit on the
// same write, grounded on peripherals/rcc.rs's always-ready CR read taken
// one step further into real read-modify-write semantics.
package rcc

import "github.com/kvasari/stm32emu/svd"

const (
	bitHSION  = 0
	bitHSIRDY = 1
	bitHSEON  = 16
	bitHSERDY = 17
	bitPLLON  = 24
	bitPLLRDY = 25
	bitPLLI2SON  = 26
	bitPLLI2SRDY = 27
)

var readyFollowsOn = map[uint]uint{
	bitHSION: bitHSIRDY,
	bitHSEON: bitHSERDY,
	bitPLLON: bitPLLRDY,
	bitPLLI2SON: bitPLLI2SRDY,
}

// Rcc implements peripheral.Peripheral for the RCC register block.
type Rcc struct {
	name string
	base uint32
}

// New returns an Rcc peripheral for name without checking it; callers
// (hardware/system) match the SVD "RCC" instance first.
func New(name string, base uint32) *Rcc {
	return &Rcc{name: name, base: base}
}

func (r *Rcc) Base() uint32 { return r.base }
func (r *Rcc) Name() string { return r.name }

func (r *Rcc) OnRead(reg *svd.Register, old uint32, fields map[string]uint32) (uint32, uint32) {
	return old, old
}

// OnWrite implements the RDY-follows-ON behaviour: whenever an xON bit is
// set in the incoming word, the matching xRDY bit is forced on in the
// same write, so firmware's "while (!RCC->CR & RDY) {}" loop never spins.
func (r *Rcc) OnWrite(reg *svd.Register, old, new uint32, fields map[string]uint32) uint32 {
	if reg.Name != "CR" {
		return new
	}
	for on, rdy := range readyFollowsOn {
		if new&(1<<on) != 0 {
			new |= 1 << rdy
		}
	}
	return new
}
