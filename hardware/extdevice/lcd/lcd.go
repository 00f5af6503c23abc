// Package lcd emulates a command/pixel-burst FPGA-attached LCD bridge,
// grounded on ext_devices/lcd.rs's Command/drawing-flag state machine. The
// original only ever completed the StartDrawing command -- GetVersion,
// SetPalette and GetPalette were declared but their handlers always
// returned None, which left self.cmd permanently occupied and silently
// swallowed every later byte as an argument to a command that could never
// finish. Those three commands are completed here instead, since a
// register-write path that can never return is not something worth
// reproducing.
package lcd

import (
	"github.com/kvasari/stm32emu/framebuffer"
	"github.com/kvasari/stm32emu/logger"
)

const (
	cmdGetVersion   = 0xF0
	cmdStartDrawing = 0xFB
	cmdSetPalette   = 0xF1
	cmdGetPalette   = 0xF2

	versionReply = 0x01
)

// Config describes an LCD bridge's pixel geometry.
type Config struct {
	Peripheral string
	Width      int
	Height     int
}

// Lcd implements the single-byte Xfer(byte) byte shape shared by
// spi.Device/swspi.Device/touch.Touch.
type Lcd struct {
	name   string
	width  int
	height int

	drawing bool
	x, y    int

	pendingCmd *byte
	args       []byte
	reply      []byte

	palette [256][3]byte
	raw     []byte
	sink    framebuffer.Sink
}

// New returns an Lcd; sink may be nil if no pixel output is wired up.
func New(cfg Config, sink framebuffer.Sink) (*Lcd, error) {
	l := &Lcd{
		name:   cfg.Peripheral,
		width:  cfg.Width,
		height: cfg.Height,
		raw:    make([]byte, cfg.Width*cfg.Height),
		sink:   sink,
	}
	if sink != nil {
		if err := sink.Open(cfg.Width, cfg.Height, framebuffer.RGB565); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Xfer implements spi.Device/swspi.Device.
func (l *Lcd) Xfer(tx byte) byte {
	resp := l.popReply()
	l.write(tx)
	return resp
}

func (l *Lcd) popReply() byte {
	if len(l.reply) == 0 {
		return 0
	}
	b := l.reply[0]
	l.reply = l.reply[1:]
	return b
}

func (l *Lcd) write(v byte) {
	if l.drawing {
		l.drawPixelPair(v)
		return
	}
	if l.pendingCmd != nil {
		l.args = append(l.args, v)
		l.tryProcessCommand()
		return
	}
	if isKnownCommand(v) {
		cmd := v
		l.pendingCmd = &cmd
		l.args = l.args[:0]
		l.tryProcessCommand()
	} else if v != 0xFF && v != 0x00 {
		logger.Warn(logger.Allow, "%s unknown cmd=0x%02x", l.name, v)
	}
}

func isKnownCommand(v byte) bool {
	switch v {
	case cmdGetVersion, cmdStartDrawing, cmdSetPalette, cmdGetPalette:
		return true
	default:
		return false
	}
}

func (l *Lcd) tryProcessCommand() {
	cmd := *l.pendingCmd
	switch cmd {
	case cmdGetVersion:
		if len(l.args) != 0 {
			return
		}
		l.reply = []byte{versionReply}
	case cmdStartDrawing:
		if len(l.args) != 0 {
			return
		}
		l.x, l.y = 0, 0
		l.drawing = true
	case cmdSetPalette:
		if len(l.args) != 4 {
			return
		}
		idx := l.args[0]
		l.palette[idx] = [3]byte{l.args[1], l.args[2], l.args[3]}
	case cmdGetPalette:
		if len(l.args) != 1 {
			return
		}
		idx := l.args[0]
		p := l.palette[idx]
		l.reply = []byte{p[0], p[1], p[2]}
	default:
		logger.Warn(logger.Allow, "%s unreachable cmd=0x%02x", l.name, cmd)
	}
	logger.Debug(logger.Allow, "%s cmd=0x%02x args=%02x reply=%02x", l.name, cmd, l.args, l.reply)
	l.pendingCmd = nil
	l.args = l.args[:0]
}

func (l *Lcd) drawPixelPair(c byte) {
	l.setPixel(l.x, l.y, c)
	l.setPixel(l.x+1, l.y, c)

	l.x += 2
	if l.x >= l.width {
		l.x %= 2
		l.y++
		if l.y >= l.height {
			l.y = 0
		}
	}
}

func (l *Lcd) setPixel(x, y int, index byte) {
	if x < 0 || x >= l.width || y < 0 || y >= l.height {
		return
	}
	l.raw[y*l.width+x] = index
	if l.sink == nil {
		return
	}
	p := l.palette[index]
	rgbValue := packRGB888(p[0], p[1], p[2])
	if err := l.sink.WritePixel(x, y, rgbValue); err != nil {
		logger.Warn(logger.Allow, "%s sink write failed: %v", l.name, err)
	}
}

func packRGB888(r, g, b byte) uint16 {
	r5 := uint16(r) >> 3
	g6 := uint16(g) >> 2
	b5 := uint16(b) >> 3
	return r5<<11 | g6<<5 | b5
}

// Pixel returns the raw palette index last written at (x,y), for tests.
func (l *Lcd) Pixel(x, y int) byte { return l.raw[y*l.width+x] }

// Close releases the backing sink, if any.
func (l *Lcd) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}
