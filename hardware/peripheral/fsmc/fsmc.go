// Package fsmc emulates the STM32F4 flexible static memory controller
// enough to mirror parallel bus writes to an attached display, grounded
// on peripherals/fsmc.rs's bank/offset decode. Unlike every other
// peripheral here, FSMC's data-bus banks occupy gigabyte-sized address
// windows outside its own SVD addressBlock, so it implements
// membus.Handler directly instead of going through peripheral.Registration.
package fsmc

import "github.com/kvasari/stm32emu/logger"

const (
	bankWindow  = 0x10000000
	regBankBase = 0x40000000

	cmdDataBit = 1 << 13 // matches the original's (1 << (12+1)) command/data select
)

// Device is the attach point for whatever sits on an FSMC bank's data
// bus -- an ILI9341-style display or FPGA/LCD bridge.
type Device interface {
	Write(isData bool, value uint16)
	Read(isData bool) uint16
}

// Fsmc implements membus.Handler for the entire FSMC address space: four
// data banks plus the register block.
type Fsmc struct {
	name  string
	base  uint32
	banks [4]Device
}

// New returns an Fsmc for an SVD peripheral named "FSMC", or ok=false.
func New(name string, base uint32) (*Fsmc, bool) {
	if name != "FSMC" {
		return nil, false
	}
	return &Fsmc{name: name, base: base}, true
}

func (f *Fsmc) Base() uint32 { return f.base }
func (f *Fsmc) Name() string { return f.name }

// AttachBank wires device to FSMC bank index (0-3).
func (f *Fsmc) AttachBank(bank int, device Device) { f.banks[bank] = device }

// OnAccess implements membus.Handler. offset is relative to the bank-0
// data window's base address (spec.md's FSMC region starts there), so a
// bank's data window is [bank*bankWindow, (bank+1)*bankWindow) and the
// register block follows at regBankBase.
func (f *Fsmc) OnAccess(offset uint32, width int, isWrite bool, valueIn uint32) uint32 {
	if offset < regBankBase {
		bank := int(offset / bankWindow)
		bankOffset := offset % bankWindow
		return f.dataAccess(bank, bankOffset, isWrite, valueIn)
	}
	return f.registerAccess(offset-regBankBase, isWrite, valueIn)
}

func (f *Fsmc) dataAccess(bank int, offset uint32, isWrite bool, valueIn uint32) uint32 {
	if bank < 0 || bank >= len(f.banks) {
		logger.Warn(logger.Allow, "%s bank %d out of range", f.name, bank)
		return 0
	}
	isData := offset&cmdDataBit != 0
	pin := "cmd"
	if isData {
		pin = "data"
	}

	dev := f.banks[bank]
	if isWrite {
		logger.Debug(logger.Allow, "%s bank=%d WRITE %s value=0x%04x", f.name, bank+1, pin, uint16(valueIn))
		if dev != nil {
			dev.Write(isData, uint16(valueIn))
		}
		return 0
	}
	logger.Debug(logger.Allow, "%s bank=%d READ %s", f.name, bank+1, pin)
	if dev != nil {
		return uint32(dev.Read(isData))
	}
	return 0
}

func (f *Fsmc) registerAccess(offset uint32, isWrite bool, valueIn uint32) uint32 {
	logger.Trace(logger.Allow, "%s register offset=0x%x isWrite=%v", f.name, offset, isWrite)
	return 0
}
