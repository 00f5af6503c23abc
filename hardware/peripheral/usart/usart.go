// Package usart emulates a minimal STM32 USART: a transmit/receive byte
// queue behind the DR register, grounded on peripherals/usart.rs, with an
// SR register added (not present in the original, which left USART status
// unimplemented) so firmware polling loops observe TXE/RXNE correctly.
package usart

import (
	"strings"

	"github.com/kvasari/stm32emu/logger"
	"github.com/kvasari/stm32emu/svd"
)

// Device is the attach point for an external sink/source of USART bytes
// (a line-buffered probe, a modem, ...), grounded on the original's
// UsartDevice trait.
type Device interface {
	// Name lets the device rename the USART instance for logging (the
	// original's ext_device.name(usart_name)).
	Name(usartName string) string
	// Xfer is called once per byte written to DR; it returns bytes to
	// enqueue into rx, if any.
	Xfer(tx byte) (rx []byte, ok bool)
}

const (
	srTXE  = 1 << 7
	srRXNE = 1 << 5
)

// Usart implements peripheral.Peripheral.
type Usart struct {
	name string
	base uint32

	tx, rx []byte
	device Device

	dmaTrigger func(periAddr uint32)
}

// SetDMATrigger wires a callback that pulses whichever DMA stream, if any,
// is armed against this USART's DR register whenever firmware writes DR --
// spec.md §4.5's "on peripheral trigger" DMA hook.
func (u *Usart) SetDMATrigger(fn func(periAddr uint32)) { u.dmaTrigger = fn }

// New returns a Usart for an SVD peripheral named "USARTx"/"UARTx", or
// ok=false. device may be nil when no external device is attached.
func New(name string, base uint32, device Device) (*Usart, bool) {
	if !strings.HasPrefix(name, "USART") && !strings.HasPrefix(name, "UART") {
		return nil, false
	}
	display := name
	if device != nil {
		display = device.Name(name)
	}
	return &Usart{name: display, base: base, device: device}, true
}

func (u *Usart) Base() uint32 { return u.base }
func (u *Usart) Name() string { return u.name }

func (u *Usart) OnRead(reg *svd.Register, old uint32, fields map[string]uint32) (uint32, uint32) {
	switch reg.Name {
	case "DR":
		if len(u.rx) == 0 {
			return 0, 0
		}
		b := u.rx[0]
		u.rx = u.rx[1:]
		return uint32(b), 0
	case "SR":
		sr := uint32(srTXE)
		if len(u.rx) > 0 {
			sr |= srRXNE
		}
		return sr, sr
	default:
		return old, old
	}
}

func (u *Usart) OnWrite(reg *svd.Register, old, new uint32, fields map[string]uint32) uint32 {
	if reg.Name != "DR" {
		return new
	}
	b := byte(new)
	u.tx = append(u.tx, b)
	logger.Trace(logger.Allow, "%s tx=%x", u.name, u.tx)

	if u.device != nil {
		if rx, ok := u.device.Xfer(b); ok {
			logger.Debug(logger.Allow, "%s rx=%x", u.name, rx)
			u.rx = append(u.rx, rx...)
		}
	}

	if u.dmaTrigger != nil {
		u.dmaTrigger(u.base + uint32(reg.AddressOffset))
	}
	return new
}
