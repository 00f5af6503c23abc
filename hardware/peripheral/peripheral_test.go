package peripheral_test

import (
	"testing"

	"github.com/kvasari/stm32emu/hardware/peripheral"
	"github.com/kvasari/stm32emu/svd"
)

type echoPeripheral struct {
	name string
	base uint32
}

func (e *echoPeripheral) Base() uint32 { return e.base }
func (e *echoPeripheral) Name() string { return e.name }
func (e *echoPeripheral) OnRead(reg *svd.Register, old uint32, fields map[string]uint32) (uint32, uint32) {
	return old, old
}
func (e *echoPeripheral) OnWrite(reg *svd.Register, old, new uint32, fields map[string]uint32) uint32 {
	return new
}

func testSVDPeripheral() *svd.Peripheral {
	p := &svd.Peripheral{
		Name:        "TESTP",
		BaseAddress: 0x40010000,
		ResolvedRegisters: []svd.Register{
			{Name: "CR", AddressOffset: 0, Size: 32, Access: "read-write", ResetValue: 0x10,
				Fields: []svd.Field{{Name: "EN", BitOffset: 0, BitWidth: 1}}},
			{Name: "SR", AddressOffset: 4, Size: 32, Access: "read-only", ResetValue: 0xC0},
		},
	}
	return p
}

func TestResetValueSeeded(t *testing.T) {
	p := testSVDPeripheral()
	reg := peripheral.NewRegistration(&echoPeripheral{name: "TESTP", base: uint32(p.BaseAddress)}, p)
	if reg.Storage.Get(0) != 0x10 {
		t.Errorf("expected CR reset value 0x10, got 0x%x", reg.Storage.Get(0))
	}
}

func TestWriteToReadOnlyIsDropped(t *testing.T) {
	p := testSVDPeripheral()
	reg := peripheral.NewRegistration(&echoPeripheral{name: "TESTP"}, p)

	reg.OnAccess(4, 4, true, 0xFFFFFFFF)
	if reg.Storage.Get(4) != 0xC0 {
		t.Errorf("write to read-only register should be dropped, got 0x%x", reg.Storage.Get(4))
	}
}

func TestWriteCommitsAndInvokesHandler(t *testing.T) {
	p := testSVDPeripheral()
	var gotOld, gotNew uint32
	impl := &capturingPeripheral{echoPeripheral: echoPeripheral{name: "TESTP"}, onWrite: func(old, new uint32) uint32 {
		gotOld, gotNew = old, new
		return new
	}}
	reg := peripheral.NewRegistration(impl, p)

	reg.OnAccess(0, 4, true, 0x11)
	if gotOld != 0x10 || gotNew != 0x11 {
		t.Errorf("got old=0x%x new=0x%x", gotOld, gotNew)
	}
	if reg.Storage.Get(0) != 0x11 {
		t.Errorf("expected committed value 0x11, got 0x%x", reg.Storage.Get(0))
	}
}

func TestOnWriteCanOverrideCommittedValue(t *testing.T) {
	p := testSVDPeripheral()
	impl := &capturingPeripheral{echoPeripheral: echoPeripheral{name: "TESTP"}, onWrite: func(old, new uint32) uint32 {
		// mirror RCC-style RDY-follows-ON: force bit 1 on whenever bit 0 is set
		if new&1 != 0 {
			return new | 0b10
		}
		return new
	}}
	reg := peripheral.NewRegistration(impl, p)

	reg.OnAccess(0, 4, true, 0x1)
	if reg.Storage.Get(0) != 0x3 {
		t.Errorf("expected OnWrite override to commit 0x3, got 0x%x", reg.Storage.Get(0))
	}
}

type capturingPeripheral struct {
	echoPeripheral
	onWrite func(old, new uint32) uint32
}

func (c *capturingPeripheral) OnWrite(reg *svd.Register, old, new uint32, fields map[string]uint32) uint32 {
	return c.onWrite(old, new)
}
