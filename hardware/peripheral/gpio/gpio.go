package gpio

import (
	"strings"

	"github.com/kvasari/stm32emu/logger"
	"github.com/kvasari/stm32emu/svd"
)

// Gpio implements peripheral.Peripheral for one GPIOx register block.
type Gpio struct {
	name       string
	base       uint32
	portLetter byte
	port       uint8
	ports      *Ports

	mode, otype, ospeed, pupd, od, lck, afrl, afrh uint32
}

// New returns a Gpio for an SVD peripheral named "GPIOx", or ok=false if
// name does not match.
func New(name string, base uint32, ports *Ports) (*Gpio, bool) {
	block, ok := strings.CutPrefix(name, "GPIO")
	if !ok || block == "" {
		return nil, false
	}
	letter := block[0]
	if letter < 'A' || letter > 'K' {
		return nil, false
	}
	return &Gpio{name: name, base: base, portLetter: letter, port: letter - 'A', ports: ports}, true
}

func (g *Gpio) Base() uint32 { return g.base }
func (g *Gpio) Name() string { return g.name }

func (g *Gpio) pinStr(pin uint8) string {
	return string(g.portLetter) + itoa(pin)
}

func itoa(v uint8) string {
	if v < 10 {
		return string(rune('0' + v))
	}
	return string(rune('0'+v/10)) + string(rune('0'+v%10))
}

// iterPortRegChanges walks the bits that differ between old and new,
// stride bits at a time, invoking f(pin, fieldValue) for each changed pin.
func iterPortRegChanges(old, new uint32, stride uint8, f func(pin, v uint8)) {
	strideMask := uint32(0xFF >> (8 - stride))
	changes := old ^ new
	for changes != 0 {
		bit := uint8(trailingZeros32(changes))
		pin := bit / stride
		if pin <= 16 {
			v := uint8((new >> (uint32(pin) * uint32(stride))) & strideMask)
			f(pin, v)
		}
		changes &^= strideMask << (uint32(pin) * uint32(stride))
	}
}

func trailingZeros32(v uint32) int {
	if v == 0 {
		return 32
	}
	n := 0
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}

func (g *Gpio) OnRead(reg *svd.Register, old uint32, fields map[string]uint32) (uint32, uint32) {
	switch reg.Name {
	case "MODER":
		return g.mode, g.mode
	case "OTYPER":
		return g.otype, g.otype
	case "OSPEEDR":
		return g.ospeed, g.ospeed
	case "PUPDR":
		return g.pupd, g.pupd
	case "IDR":
		v := uint32(g.ports.ReadPort(g.port))
		logger.Trace(logger.Allow, "GPIO%c read v=0x%04x", g.portLetter, v)
		return v, v
	case "ODR":
		return g.od, g.od
	case "BSRR":
		return 0, 0
	case "LCKR":
		return g.lck, g.lck
	case "AFRL":
		return g.afrl, g.afrl
	case "AFRH":
		return g.afrh, g.afrh
	default:
		return old, old
	}
}

func (g *Gpio) OnWrite(reg *svd.Register, old, new uint32, fields map[string]uint32) uint32 {
	switch reg.Name {
	case "MODER":
		iterPortRegChanges(g.mode, new, 2, func(pin, v uint8) {
			cfg := [...]string{"input", "output", "alternate", "analog"}[v]
			logger.Trace(logger.Allow, "%s mode=%s", g.pinStr(pin), cfg)
		})
		g.mode = new
		return new
	case "OTYPER":
		iterPortRegChanges(g.otype, new, 1, func(pin, v uint8) {
			cfg := [...]string{"push-pull", "open-drain"}[v]
			logger.Trace(logger.Allow, "%s output_cfg=%s", g.pinStr(pin), cfg)
		})
		g.otype = new
		return new
	case "OSPEEDR":
		iterPortRegChanges(g.ospeed, new, 2, func(pin, v uint8) {
			cfg := [...]string{"low", "medium", "high", "very-high"}[v]
			logger.Trace(logger.Allow, "%s speed=%s", g.pinStr(pin), cfg)
		})
		g.ospeed = new
		return new
	case "PUPDR":
		iterPortRegChanges(g.pupd, new, 2, func(pin, v uint8) {
			cfg := [...]string{"regular", "pull-up", "pull-down", "reserved"}[v]
			logger.Trace(logger.Allow, "%s input_cfg=%s", g.pinStr(pin), cfg)
		})
		g.pupd = new
		return new
	case "IDR":
		return old // read-only
	case "ODR":
		iterPortRegChanges(g.od, new, 1, func(pin, v uint8) {
			g.ports.WritePort(g.port, pin, v != 0)
			logger.Trace(logger.Allow, "%s output=%d", g.pinStr(pin), v)
		})
		g.od = new
		return new
	case "BSRR":
		reset := new >> 16
		set := new & 0xFFFF
		iterPortRegChanges(0, set, 1, func(pin, _ uint8) {
			g.ports.WritePort(g.port, pin, true)
			logger.Trace(logger.Allow, "%s output=1", g.pinStr(pin))
		})
		iterPortRegChanges(0, reset, 1, func(pin, _ uint8) {
			g.ports.WritePort(g.port, pin, false)
			logger.Trace(logger.Allow, "%s output=0", g.pinStr(pin))
		})
		g.od &^= reset
		g.od |= set
		return 0
	case "LCKR":
		logger.Trace(logger.Allow, "GPIO%c port locked", g.portLetter)
		g.lck = new
		return new
	case "AFRL":
		iterPortRegChanges(g.afrl, new, 4, func(pin, v uint8) {
			logger.Trace(logger.Allow, "%s alternate_cfg=AF%d", g.pinStr(pin), v)
		})
		g.afrl = new
		return new
	case "AFRH":
		iterPortRegChanges(g.afrh, new, 4, func(pin, v uint8) {
			logger.Trace(logger.Allow, "%s alternate_cfg=AF%d", g.pinStr(pin+8), v)
		})
		g.afrh = new
		return new
	default:
		return old
	}
}
