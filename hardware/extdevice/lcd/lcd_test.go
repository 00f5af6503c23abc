package lcd_test

import (
	"testing"

	"github.com/kvasari/stm32emu/framebuffer"
	"github.com/kvasari/stm32emu/hardware/extdevice/lcd"
)

type recordingSink struct {
	pixels map[[2]int]uint16
}

func (s *recordingSink) Open(w, h int, f framebuffer.PixelFormat) error {
	s.pixels = map[[2]int]uint16{}
	return nil
}
func (s *recordingSink) WritePixel(x, y int, v uint16) error {
	s.pixels[[2]int{x, y}] = v
	return nil
}
func (s *recordingSink) Close() error { return nil }

func TestGetVersionReturnsReply(t *testing.T) {
	d, err := lcd.New(lcd.Config{Width: 8, Height: 8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	d.Xfer(0xF0)
	if got := d.Xfer(0); got != 0x01 {
		t.Errorf("expected version reply 0x01, got 0x%02x", got)
	}
}

func TestSetPaletteThenGetPaletteRoundTrips(t *testing.T) {
	d, _ := lcd.New(lcd.Config{Width: 8, Height: 8}, nil)
	d.Xfer(0xF1) // SetPalette
	d.Xfer(3)    // index
	d.Xfer(0x11)
	d.Xfer(0x22)
	d.Xfer(0x33)

	d.Xfer(0xF2) // GetPalette
	d.Xfer(3)    // index
	r := d.Xfer(0)
	g := d.Xfer(0)
	b := d.Xfer(0)
	if r != 0x11 || g != 0x22 || b != 0x33 {
		t.Errorf("got %02x %02x %02x", r, g, b)
	}
}

func TestStartDrawingWritesPixelPairs(t *testing.T) {
	sink := &recordingSink{}
	d, err := lcd.New(lcd.Config{Width: 4, Height: 4}, sink)
	if err != nil {
		t.Fatal(err)
	}
	d.Xfer(0xF1) // palette index 7 -> pure red-ish
	d.Xfer(7)
	d.Xfer(0xF8)
	d.Xfer(0x00)
	d.Xfer(0x00)

	d.Xfer(0xFB) // StartDrawing
	d.Xfer(7)

	if got := d.Pixel(0, 0); got != 7 {
		t.Errorf("expected index 7 at (0,0), got %d", got)
	}
	if got := d.Pixel(1, 0); got != 7 {
		t.Errorf("expected index 7 at (1,0) from pixel-pair write, got %d", got)
	}
	if _, ok := sink.pixels[[2]int{0, 0}]; !ok {
		t.Error("expected sink to receive pixel at (0,0)")
	}
}

func TestUnknownByteBeforeAnyCommandIsIgnored(t *testing.T) {
	d, _ := lcd.New(lcd.Config{Width: 4, Height: 4}, nil)
	d.Xfer(0x42)
	d.Xfer(0xF0)
	if got := d.Xfer(0); got != 0x01 {
		t.Errorf("expected GetVersion to still work after garbage byte, got 0x%02x", got)
	}
}
