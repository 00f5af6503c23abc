package armemu_test

import (
	"testing"

	"github.com/kvasari/stm32emu/cpuengine"
	"github.com/kvasari/stm32emu/cpuengine/armemu"
)

func TestMemMapReadWrite(t *testing.T) {
	e, err := armemu.New()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.MemMap(0x20000000, 0x1000); err != nil {
		t.Fatalf("MemMap: %v", err)
	}
	if err := e.MemWrite(0x20000004, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("MemWrite: %v", err)
	}
	out := make([]byte, 4)
	if err := e.MemRead(0x20000004, out); err != nil {
		t.Fatalf("MemRead: %v", err)
	}
	if out[0] != 1 || out[3] != 4 {
		t.Errorf("got %v", out)
	}
}

func TestMMIORoundTrip(t *testing.T) {
	e, _ := armemu.New()
	var lastWrite uint32
	e.MMIOMap(0x40011000, 0x400, func(offset uint32, size uint8) uint32 {
		return 0xAABBCCDD
	}, func(offset uint32, size uint8, value uint32) {
		lastWrite = value
	})

	var observedRead bool
	e.AddMemHook(cpuengine.MemRead, func(kind cpuengine.MemHookType, addr uint32, size int, value int64) bool {
		observedRead = true
		return true
	})

	v, err := e.ReadMemoryWord(0x40011004)
	if err != nil || v != 0xAABBCCDD {
		t.Fatalf("got %#x err=%v", v, err)
	}
	if !observedRead {
		t.Error("expected MemRead hook to fire")
	}

	if err := e.WriteMemoryWord(0x40011000, 0x11223344); err != nil {
		t.Fatal(err)
	}
	if lastWrite != 0x11223344 {
		t.Errorf("got %#x", lastWrite)
	}
}

// movs r0, #5 (Thumb encoding 0x2005) at 0x08000000, followed by a
// self-branch (0xE7FE) so a single Start(pc,0,1) call executes exactly
// one instruction.
func TestStartExecutesMovImmediate(t *testing.T) {
	e, err := armemu.New()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.MemMap(0x08000000, 0x100); err != nil {
		t.Fatal(err)
	}
	if err := e.MemWrite(0x08000000, []byte{0x05, 0x20, 0xFE, 0xE7}); err != nil {
		t.Fatal(err)
	}

	var trace []uint32
	e.AddCodeHook(func(pc uint32, size uint8) { trace = append(trace, pc) })

	if err := e.Start(0x08000000, 0, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r0, err := e.RegRead(cpuengine.R0)
	if err != nil {
		t.Fatal(err)
	}
	if r0 != 5 {
		t.Errorf("expected r0=5, got %d", r0)
	}
	if len(trace) != 1 || trace[0] != 0x08000000 {
		t.Errorf("unexpected trace: %#v", trace)
	}

	pc, _ := e.RegRead(cpuengine.PC)
	if pc != 0x08000002 {
		t.Errorf("expected pc=0x08000002 after one instruction, got 0x%08x", pc)
	}
}

func TestMSPPSPSwitchTracksActiveStackPointer(t *testing.T) {
	e, _ := armemu.New()

	if err := e.RegWrite(cpuengine.MSP, 0x20001000); err != nil {
		t.Fatal(err)
	}
	sp, _ := e.RegRead(cpuengine.SP)
	if sp != 0x20001000 {
		t.Errorf("expected SP to mirror MSP, got 0x%08x", sp)
	}

	if err := e.RegWrite(cpuengine.PSP, 0x20002000); err != nil {
		t.Fatal(err)
	}
	sp, _ = e.RegRead(cpuengine.SP)
	if sp != 0x20002000 {
		t.Errorf("expected SP to mirror PSP after switch, got 0x%08x", sp)
	}

	msp, _ := e.RegRead(cpuengine.MSP)
	if msp != 0x20001000 {
		t.Errorf("expected MSP to retain its last written value, got 0x%08x", msp)
	}
}
