// Package systick emulates the Cortex-M4 SysTick timer as a genuine
// down-counter driven by the emulator's cycle counter, replacing the
// original's read-time toggle hack (peripherals/systick.rs) with real
// underflow-triggered exception pending through the NVIC.
package systick

import (
	"github.com/kvasari/stm32emu/hardware/nvic"
	"github.com/kvasari/stm32emu/svd"
)

const (
	ctrlEnable    = 1 << 0
	ctrlTickInt   = 1 << 1
	ctrlClkSource = 1 << 2
	ctrlCountFlag = 1 << 16
	ctrlMask      = ctrlEnable | ctrlTickInt | ctrlClkSource | ctrlCountFlag
	reloadMask    = 0x00FFFFFF
)

// SysTick implements peripheral.Peripheral and peripheral.Ticker.
type SysTick struct {
	name string
	base uint32
	nvic *nvic.Nvic

	ctrl uint32
	load uint32
	val  uint32

	lastTsc    uint64
	hasLastTsc bool
}

// New returns a SysTick peripheral that pends the SysTick exception on n
// whenever the down-counter underflows with TICKINT set.
func New(name string, base uint32, n *nvic.Nvic) *SysTick {
	return &SysTick{name: name, base: base, nvic: n}
}

func (s *SysTick) Base() uint32 { return s.base }
func (s *SysTick) Name() string { return s.name }

func (s *SysTick) OnRead(reg *svd.Register, old uint32, fields map[string]uint32) (uint32, uint32) {
	switch reg.Name {
	case "CTRL":
		result := s.ctrl
		s.ctrl &^= ctrlCountFlag // COUNTFLAG clears on read
		return result, s.ctrl
	case "LOAD":
		return s.load, s.load
	case "VAL":
		return s.val, s.val
	default: // CALIB, reserved
		return old, old
	}
}

func (s *SysTick) OnWrite(reg *svd.Register, old, new uint32, fields map[string]uint32) uint32 {
	switch reg.Name {
	case "CTRL":
		s.ctrl = new & ctrlMask
		return s.ctrl
	case "LOAD":
		s.load = new & reloadMask
		return s.load
	case "VAL":
		// any write clears the current count and COUNTFLAG
		s.val = 0
		s.ctrl &^= ctrlCountFlag
		return 0
	default:
		return old
	}
}

// Tick advances the down-counter by tsc's delta since the last call,
// reloading and pending the SysTick exception on each underflow.
func (s *SysTick) Tick(tsc uint64) {
	if !s.hasLastTsc {
		s.lastTsc = tsc
		s.hasLastTsc = true
		return
	}
	delta := tsc - s.lastTsc
	s.lastTsc = tsc

	if s.ctrl&ctrlEnable == 0 || delta == 0 {
		return
	}

	for delta > 0 {
		if uint64(s.val) >= delta {
			s.val -= uint32(delta)
			return
		}
		delta -= uint64(s.val) + 1
		s.underflow()
		if s.load == 0 {
			return
		}
	}
}

func (s *SysTick) underflow() {
	s.ctrl |= ctrlCountFlag
	s.val = s.load
	if s.ctrl&ctrlTickInt != 0 && s.nvic != nil {
		s.nvic.PendSysTick()
	}
}
