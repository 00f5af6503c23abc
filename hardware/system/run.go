package system

import (
	"github.com/kvasari/stm32emu/cpuengine"
	"github.com/kvasari/stm32emu/errors"
	"github.com/kvasari/stm32emu/hardware/nvic"
	"github.com/kvasari/stm32emu/logger"
)

// Run drives the fetch/poll/tick loop one instruction at a time: the
// engine has no hook point after an instruction completes, so stepping
// one instruction per iteration stands in for it, letting NVIC exception
// delivery and every peripheral.Ticker observe the machine between every
// pair of instructions. When busyLoopStop is set, a step whose pc did not
// move (a `b .` self-branch) ends the run cleanly instead of spinning
// forever, per spec.md's busy-loop-stop heuristic.
func (s *System) Run(busyLoopStop bool) error {
	pc := s.resetPC

	for {
		prevPC := pc

		if err := s.engine.Start(pc, 0, 1); err != nil {
			return errors.New(errors.EngineFault, prevPC, err)
		}

		newPC, err := s.engine.RegRead(cpuengine.PC)
		if err != nil {
			return errors.New(errors.EngineFault, prevPC, err)
		}
		if nvic.IsExceptionReturn(newPC) {
			if err := s.nvic.Return(newPC); err != nil {
				return errors.New(errors.EngineFault, prevPC, err)
			}
			newPC, err = s.engine.RegRead(cpuengine.PC)
			if err != nil {
				return errors.New(errors.EngineFault, prevPC, err)
			}
		}
		pc = newPC
		s.pc = pc

		s.tsc++
		for _, t := range s.tickers {
			t.Tick(s.tsc)
		}
		if _, err := s.nvic.Poll(); err != nil {
			return errors.New(errors.EngineFault, pc, err)
		}
		if newPC, err := s.engine.RegRead(cpuengine.PC); err == nil {
			pc = newPC
			s.pc = pc
		}

		if busyLoopStop && pc == prevPC {
			logger.Info(logger.Allow, "system: Busy loop reached at pc=0x%08x, stopping", pc)
			return nil
		}
	}
}

// Close releases every external device and framebuffer sink this System
// opened, and the underlying engine.
func (s *System) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := s.engine.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
