package nvic_test

import (
	"testing"

	"github.com/kvasari/stm32emu/cpuengine"
	"github.com/kvasari/stm32emu/cpuengine/fake"
	"github.com/kvasari/stm32emu/hardware/membus"
	"github.com/kvasari/stm32emu/hardware/nvic"
)

func newTestRig(t *testing.T) (*membus.Bus, *fake.Engine, *nvic.Nvic) {
	t.Helper()
	bus := membus.NewBus()
	bus.MapRegion(&membus.Region{Name: "ram", Start: 0x20000000, Size: 0x10000, Kind: membus.KindRAM, Data: make([]byte, 0x10000)})
	bus.MapRegion(&membus.Region{Name: "flash", Start: 0x08000000, Size: 0x1000, Kind: membus.KindRAM, Data: make([]byte, 0x1000)})

	eng := fake.New()
	n := nvic.New(bus, eng, 0x08000000, 4)

	_ = eng.RegWrite(cpuengine.MSP, 0x20001000)
	_ = eng.RegWrite(cpuengine.PSP, 0x20002000)
	_ = eng.RegWrite(cpuengine.PC, 0x08000100)
	_ = eng.RegWrite(cpuengine.XPSR, 0x01000000)

	// vector table entry for exception 16 (IRQ0) and 15 (SysTick)
	bus.Write(0, 0x08000000+16*4, 4, 0x08000200)
	bus.Write(0, 0x08000000+15*4, 4, 0x08000300)

	return bus, eng, n
}

func TestDisabledIRQDoesNotEnter(t *testing.T) {
	_, _, n := newTestRig(t)
	n.PendIRQ(0)
	entered, err := n.Poll()
	if err != nil {
		t.Fatal(err)
	}
	if entered {
		t.Fatal("disabled IRQ should not be entered")
	}
}

func TestEnabledPendingIRQEnters(t *testing.T) {
	_, eng, n := newTestRig(t)
	n.EnableIRQ(0, true)
	n.SetIRQPriority(0, 0x10)
	n.PendIRQ(0)

	entered, err := n.Poll()
	if err != nil {
		t.Fatal(err)
	}
	if !entered {
		t.Fatal("expected entry")
	}
	pc, _ := eng.RegRead(cpuengine.PC)
	if pc != 0x08000200 {
		t.Errorf("expected pc at handler vector, got 0x%x", pc)
	}
	if n.Depth() != 1 {
		t.Errorf("expected depth 1, got %d", n.Depth())
	}
	if n.IRQPending(0) {
		t.Error("pending should clear on entry")
	}
	if !n.IRQActive(0) {
		t.Error("expected IRQ marked active")
	}
}

func TestRoundTripRestoresRegisters(t *testing.T) {
	_, eng, n := newTestRig(t)
	n.EnableIRQ(0, true)
	n.SetIRQPriority(0, 0x10)

	_ = eng.RegWrite(cpuengine.R0, 0xAAAA0000)
	_ = eng.RegWrite(cpuengine.R1, 0xAAAA0001)
	_ = eng.RegWrite(cpuengine.LR, 0xDEADBEEF)
	origPC, _ := eng.RegRead(cpuengine.PC)
	origXPSR, _ := eng.RegRead(cpuengine.XPSR)
	origSP, _ := eng.RegRead(cpuengine.MSP)

	n.PendIRQ(0)
	entered, err := n.Poll()
	if err != nil || !entered {
		t.Fatalf("expected entry, err=%v entered=%v", err, entered)
	}

	excReturn, _ := eng.RegRead(cpuengine.LR)
	if err := n.Return(excReturn); err != nil {
		t.Fatal(err)
	}

	r0, _ := eng.RegRead(cpuengine.R0)
	r1, _ := eng.RegRead(cpuengine.R1)
	pc, _ := eng.RegRead(cpuengine.PC)
	xpsr, _ := eng.RegRead(cpuengine.XPSR)
	sp, _ := eng.RegRead(cpuengine.MSP)

	if r0 != 0xAAAA0000 || r1 != 0xAAAA0001 {
		t.Errorf("registers not restored: r0=0x%x r1=0x%x", r0, r1)
	}
	if pc != origPC {
		t.Errorf("pc not restored: got 0x%x want 0x%x", pc, origPC)
	}
	if xpsr != origXPSR {
		t.Errorf("xpsr not restored: got 0x%x want 0x%x", xpsr, origXPSR)
	}
	if sp != origSP {
		t.Errorf("sp not restored: got 0x%x want 0x%x", sp, origSP)
	}
	if n.Depth() != 0 {
		t.Errorf("expected depth 0 after return, got %d", n.Depth())
	}
}

func TestHigherPriorityNests(t *testing.T) {
	_, eng, n := newTestRig(t)
	n.EnableIRQ(0, true)
	n.SetIRQPriority(0, 0x80)
	n.PendIRQ(0)
	if entered, err := n.Poll(); err != nil || !entered {
		t.Fatalf("expected first entry, err=%v entered=%v", err, entered)
	}
	if n.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", n.Depth())
	}

	n.PendSysTick()
	// SysTick is a fixed exception, priority 0 — strictly outranks IRQ0's 0x80.
	entered, err := n.Poll()
	if err != nil {
		t.Fatal(err)
	}
	if !entered {
		t.Fatal("expected SysTick to preempt lower-priority active IRQ")
	}
	if n.Depth() != 2 {
		t.Errorf("expected nested depth 2, got %d", n.Depth())
	}
	pc, _ := eng.RegRead(cpuengine.PC)
	if pc != 0x08000300 {
		t.Errorf("expected pc at SysTick vector, got 0x%x", pc)
	}
}

func TestEqualPriorityDoesNotPreempt(t *testing.T) {
	_, _, n := newTestRig(t)
	n.EnableIRQ(0, true)
	n.EnableIRQ(1, true)
	n.SetIRQPriority(0, 0x80)
	n.SetIRQPriority(1, 0x80)
	n.PendIRQ(0)
	n.PendIRQ(1)

	entered, err := n.Poll()
	if err != nil || !entered {
		t.Fatalf("expected first entry, err=%v entered=%v", err, entered)
	}
	if !n.IRQPending(1) {
		t.Error("IRQ1 should remain pending, not entered")
	}

	entered, err = n.Poll()
	if err != nil {
		t.Fatal(err)
	}
	if entered {
		t.Error("equal-priority exception should not preempt the active one")
	}
}

func TestTieBreakByLowestIRQNumber(t *testing.T) {
	_, eng, n := newTestRig(t)
	n.EnableIRQ(0, true)
	n.EnableIRQ(1, true)
	n.SetIRQPriority(0, 0x40)
	n.SetIRQPriority(1, 0x40)
	n.PendIRQ(1)
	n.PendIRQ(0)

	entered, err := n.Poll()
	if err != nil || !entered {
		t.Fatalf("expected entry, err=%v entered=%v", err, entered)
	}
	if !n.IRQActive(0) {
		t.Error("expected lowest-numbered IRQ (0) to win the tie")
	}
	_ = eng
}

func TestIsExceptionReturn(t *testing.T) {
	cases := map[uint32]bool{
		0xFFFFFFF1: true,
		0xFFFFFFF9: true,
		0xFFFFFFFD: true,
		0xFFFFFFE1: true,
		0x08000201: false,
		0x20001000: false,
	}
	for addr, want := range cases {
		if got := nvic.IsExceptionReturn(addr); got != want {
			t.Errorf("IsExceptionReturn(0x%08x) = %v, want %v", addr, got, want)
		}
	}
}
