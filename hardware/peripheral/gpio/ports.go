// Package gpio emulates the STM32F4 GPIO register blocks and the
// cross-port pin registry external devices (software SPI, touch) attach
// to, grounded on peripherals/gpio.rs's GpioPorts/Pin/iter_port_reg_changes.
package gpio

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const NumPorts = 11 // A..K

var pinNameRE = regexp.MustCompile(`^P?([A-K])(\d{1,2})$`)

// Pin identifies a single GPIO line as (port index, pin number).
type Pin struct {
	Port uint8
	Num  uint8
}

// ParsePin parses names like "PA0", "A0", "pb12".
func ParsePin(name string) (Pin, error) {
	m := pinNameRE.FindStringSubmatch(strings.ToUpper(name))
	if m == nil {
		return Pin{}, fmt.Errorf("gpio: invalid pin name %q", name)
	}
	port := m[1][0] - 'A'
	num, err := strconv.Atoi(m[2])
	if err != nil || num >= 16 {
		return Pin{}, fmt.Errorf("gpio: invalid pin number in %q", name)
	}
	return Pin{Port: port, Num: uint8(num)}, nil
}

// ReadCallback reports a pin's externally-driven logic level.
type ReadCallback func() bool

// WriteCallback is invoked when firmware drives a pin's output level.
type WriteCallback func(value bool)

type readEntry struct {
	pin uint8
	cb  ReadCallback
}

type writeEntry struct {
	pin uint8
	cb  WriteCallback
}

// Ports is the shared registry every Gpio port instance and every
// external device (software SPI clock lines, touch pen-down, etc.)
// attaches to, exactly as GpioPorts does in the original.
type Ports struct {
	readCallbacks  [NumPorts][]readEntry
	writeCallbacks [NumPorts][]writeEntry
}

func NewPorts() *Ports { return &Ports{} }

func (p *Ports) AddReadCallback(pin Pin, cb ReadCallback) {
	p.readCallbacks[pin.Port] = append(p.readCallbacks[pin.Port], readEntry{pin.Num, cb})
}

func (p *Ports) AddWriteCallback(pin Pin, cb WriteCallback) {
	p.writeCallbacks[pin.Port] = append(p.writeCallbacks[pin.Port], writeEntry{pin.Num, cb})
}

// ReadPort ORs together every registered read callback for port into the
// IDR bitmask.
func (p *Ports) ReadPort(port uint8) uint16 {
	var v uint16
	for _, e := range p.readCallbacks[port] {
		if e.cb() {
			v |= 1 << e.pin
		}
	}
	return v
}

// WritePort notifies every write callback registered for (port, pin).
func (p *Ports) WritePort(port, pin uint8, value bool) {
	for _, e := range p.writeCallbacks[port] {
		if e.pin == pin {
			e.cb(value)
		}
	}
}
