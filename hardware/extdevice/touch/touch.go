// Package touch emulates an ADS7846-style resistive touch controller,
// grounded on ext_devices/touchscreen.rs's control-byte decode
// (Command/Operation/Mode/Power bitfields). The original drove its
// measurements from a live framebuffer pointer position (mouse-over-SDL-
// window); this is generalized to spec.md's richer model of a scripted
// list of (x, y, pressure) events with explicit start/end instants, since
// a headless emulator run has no pointing device to sample.
package touch

import (
	"github.com/kvasari/stm32emu/hardware/peripheral/gpio"
	"github.com/kvasari/stm32emu/logger"
)

const (
	startBit = 1 << 7
	adcMax   = 0xFFF
)

type operation uint8

const (
	opMeasureY  operation = 0b001
	opMeasureZ1 operation = 0b011
	opMeasureZ2 operation = 0b100
	opMeasureX  operation = 0b101
)

// Event describes a scripted touch: active while StartTick <= tsc <
// EndTick.
type Event struct {
	StartTick, EndTick uint64
	X, Y               int
	Pressure           uint16
}

// Config describes a touch controller's screen geometry, orientation, and
// the scripted sequence of touch events it replays.
type Config struct {
	Peripheral     string
	Width, Height  int
	FlipX, FlipY   bool
	SwapXY         bool
	ScaleDown      uint32
	PenDetectedPin string
	Events         []Event
}

// Touch implements spi.Device (and swspi.Device, same Xfer(byte) byte
// shape).
type Touch struct {
	name string

	width, height int
	flipX, flipY  bool
	swapXY        bool
	scaleDown     uint32

	events []Event
	active *Event

	reply []byte
}

// New returns a Touch and, if cfg.PenDetectedPin names a pin, registers a
// read callback on ports for it (active-low PENIRQ, matching the
// original's gpio.add_read_callback wiring).
func New(cfg Config, ports *gpio.Ports) (*Touch, error) {
	t := &Touch{
		name:      cfg.Peripheral,
		width:     cfg.Width,
		height:    cfg.Height,
		flipX:     cfg.FlipX,
		flipY:     cfg.FlipY,
		swapXY:    cfg.SwapXY,
		scaleDown: cfg.ScaleDown,
		events:    cfg.Events,
	}
	if cfg.PenDetectedPin != "" {
		pin, err := gpio.ParsePin(cfg.PenDetectedPin)
		if err != nil {
			return nil, err
		}
		ports.AddReadCallback(pin, t.PenIRQ)
	}
	return t, nil
}

// Name implements the naming convention used elsewhere in this package
// family (usart.Device); spi.Device itself has no such method, but
// orchestration code calls this when logging.
func (t *Touch) Name(peripheralName string) string {
	t.name = peripheralName + " touchscreen"
	return t.name
}

// Tick implements peripheral.Ticker, advancing the active touch event
// according to the instruction counter.
func (t *Touch) Tick(tsc uint64) {
	t.active = nil
	for i := range t.events {
		e := &t.events[i]
		if tsc >= e.StartTick && tsc < e.EndTick {
			t.active = e
			return
		}
	}
}

// PenIRQ is the GPIO read callback: true (pin high, inactive) when no
// touch is currently active, matching get_touch_position().is_none().
func (t *Touch) PenIRQ() bool { return t.active == nil }

// Xfer implements spi.Device/swspi.Device: decode tx as a control byte if
// it carries the ADS7846 start bit, and shift out whatever the previous
// command queued.
func (t *Touch) Xfer(tx byte) byte {
	resp := t.popReply()
	if tx&startBit != 0 {
		t.handleCommand(tx)
	}
	return resp
}

func (t *Touch) popReply() byte {
	if len(t.reply) == 0 {
		return 0
	}
	b := t.reply[0]
	t.reply = t.reply[1:]
	return b
}

func (t *Touch) handleCommand(cmd byte) {
	op := operation((cmd >> 4) & 0b111)

	if t.active == nil {
		t.reply = nil
		return
	}

	if t.swapXY {
		switch op {
		case opMeasureX:
			op = opMeasureY
		case opMeasureY:
			op = opMeasureX
		}
	}

	var v uint32
	switch op {
	case opMeasureX:
		v = uint32(t.active.X) * adcMax / uint32(t.width)
	case opMeasureY:
		v = uint32(t.active.Y) * adcMax / uint32(t.height)
	case opMeasureZ1, opMeasureZ2:
		v = uint32(t.active.Pressure)
	default:
		logger.Debug(logger.Allow, "%s unknown operation in cmd=0x%02x", t.name, cmd)
		t.reply = nil
		return
	}

	if op == opMeasureX && t.flipX {
		v = adcMax - v
	}
	if op == opMeasureY && t.flipY {
		v = adcMax - v
	}
	if t.scaleDown > 0 {
		v /= t.scaleDown
	}

	logger.Debug(logger.Allow, "%s cmd=0x%02x op=%d reply=0x%04x", t.name, cmd, op, v)
	if cmd&(1<<3) != 0 {
		// MODE bit set: 8-bit conversion, one byte holding the top 8 bits.
		t.reply = []byte{byte(v >> 4)}
		return
	}
	t.reply = []byte{byte(v >> 4), byte(v << 4)}
}
