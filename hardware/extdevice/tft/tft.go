// Package tft emulates an ILI9341-class TFT controller driven over the
// FSMC parallel bus, grounded on ext_devices/display.rs's Mode/Command/
// draw-cursor state machine. The original only implemented column/row
// address set and memory write (0x2A/0x2B/0x2C); memory access control
// (0x36) and pixel format set (0x3A) are supplemented here since spec.md
// names them explicitly.
package tft

import (
	"fmt"

	"github.com/kvasari/stm32emu/framebuffer"
	"github.com/kvasari/stm32emu/logger"
)

const (
	cmdSetHoriRegion = 0x2A
	cmdSetVertRegion = 0x2B
	cmdDraw          = 0x2C
	cmdMAC           = 0x36
	cmdPixelFormat   = 0x3A

	macRowColExchange = 1 << 5 // MADCTL MV bit
)

// Config describes a display's geometry; Name is used purely for logging.
type Config struct {
	Name   string
	Width  int
	Height int
}

type region struct {
	left, top, right, bottom int
}

// Tft implements fsmc.Device (and, for FPGA/LCD bridges wired over
// software SPI instead of FSMC, can be driven directly via Write by a
// caller that decodes the D/CX line itself).
type Tft struct {
	name   string
	width  int
	height int

	drawRegion region

	pendingCmd *byte
	args       []uint16

	drawing bool
	x, y    int

	raw  []uint16
	sink framebuffer.Sink

	madctl byte
	colMod byte
}

// New opens sink at cfg's geometry and returns a ready Tft.
func New(cfg Config, sink framebuffer.Sink) (*Tft, error) {
	if err := sink.Open(cfg.Width, cfg.Height, framebuffer.RGB565); err != nil {
		return nil, fmt.Errorf("tft: opening sink: %w", err)
	}
	return &Tft{
		name:       cfg.Name,
		width:      cfg.Width,
		height:     cfg.Height,
		drawRegion: region{0, 0, cfg.Width - 1, cfg.Height - 1},
		raw:        make([]uint16, cfg.Width*cfg.Height),
		sink:       sink,
	}, nil
}

// Write implements fsmc.Device.
func (t *Tft) Write(isData bool, value uint16) {
	if !isData {
		t.finishCmd()
		cmd := byte(value)
		t.pendingCmd = &cmd
		t.args = t.args[:0]
	} else if t.drawing {
		t.drawPixel(value)
	} else if t.pendingCmd != nil {
		t.args = append(t.args, value)
	}
	t.handleCmd()
}

// Read implements fsmc.Device; the controller has no readable status in
// this model, matching the original's always-0 read() after finishing
// whatever command was pending.
func (t *Tft) Read(isData bool) uint16 {
	logger.Debug(logger.Allow, "%s READ isData=%v", t.name, isData)
	t.finishCmd()
	return 0
}

func (t *Tft) handleCmd() {
	if t.pendingCmd == nil {
		return
	}
	switch *t.pendingCmd {
	case cmdSetHoriRegion:
		if len(t.args) != 4 {
			return
		}
		left := int(t.args[0])<<8 | int(t.args[1])
		right := int(t.args[2])<<8 | int(t.args[3])
		logger.Debug(logger.Allow, "%s cmd=SetHoriRegion left=%d right=%d", t.name, left, right)
		t.drawRegion.left = min(left, t.width-1)
		t.drawRegion.right = min(right, t.width-1)
	case cmdSetVertRegion:
		if len(t.args) != 4 {
			return
		}
		top := int(t.args[0])<<8 | int(t.args[1])
		bottom := int(t.args[2])<<8 | int(t.args[3])
		logger.Debug(logger.Allow, "%s cmd=SetVertRegion top=%d bottom=%d", t.name, top, bottom)
		t.drawRegion.top = min(top, t.height-1)
		t.drawRegion.bottom = min(bottom, t.height-1)
	case cmdDraw:
		if len(t.args) != 0 {
			return
		}
		t.drawing = true
		t.x, t.y = t.drawRegion.left, t.drawRegion.top
		t.pendingCmd = nil
		return
	case cmdMAC:
		if len(t.args) != 1 {
			return
		}
		t.madctl = byte(t.args[0])
		logger.Debug(logger.Allow, "%s cmd=MAC madctl=0x%02x", t.name, t.madctl)
	case cmdPixelFormat:
		if len(t.args) != 1 {
			return
		}
		t.colMod = byte(t.args[0])
		logger.Debug(logger.Allow, "%s cmd=PixelFormat colmod=0x%02x", t.name, t.colMod)
	default:
		logger.Debug(logger.Allow, "%s cmd=0x%02x args=%v unrecognised", t.name, *t.pendingCmd, t.args)
	}
	t.pendingCmd = nil
}

func (t *Tft) finishCmd() {
	t.drawing = false
	if t.pendingCmd != nil {
		logger.Debug(logger.Allow, "%s cmd=0x%02x args=%v abandoned", t.name, *t.pendingCmd, t.args)
	}
	t.pendingCmd = nil
	t.args = t.args[:0]
}

func (t *Tft) drawPixel(value uint16) {
	x, y := t.x, t.y
	if t.madctl&macRowColExchange != 0 {
		x, y = y, x
	}
	if x >= 0 && x < t.width && y >= 0 && y < t.height {
		t.raw[y*t.width+x] = value
		if err := t.sink.WritePixel(x, y, value); err != nil {
			logger.Warn(logger.Allow, "%s sink write failed: %v", t.name, err)
		}
	}

	t.x++
	if t.x > t.drawRegion.right {
		t.x = t.drawRegion.left
		t.y++
		if t.y > t.drawRegion.bottom {
			t.y = t.drawRegion.top
		}
	}
}

// Pixel returns the last RGB565 value written at (x,y), for tests and the
// memory_write round-trip invariant.
func (t *Tft) Pixel(x, y int) uint16 { return t.raw[y*t.width+x] }

// Close releases the backing sink.
func (t *Tft) Close() error { return t.sink.Close() }
