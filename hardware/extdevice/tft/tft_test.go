package tft_test

import (
	"testing"

	"github.com/kvasari/stm32emu/framebuffer"
	"github.com/kvasari/stm32emu/hardware/extdevice/tft"
)

type recordingSink struct {
	width, height int
	pixels        map[[2]int]uint16
}

func (s *recordingSink) Open(w, h int, f framebuffer.PixelFormat) error {
	s.width, s.height = w, h
	s.pixels = map[[2]int]uint16{}
	return nil
}
func (s *recordingSink) WritePixel(x, y int, v uint16) error {
	s.pixels[[2]int{x, y}] = v
	return nil
}
func (s *recordingSink) Close() error { return nil }

func writeCmd(d *tft.Tft, cmd byte) { d.Write(false, uint16(cmd)) }
func writeData(d *tft.Tft, v uint16) { d.Write(true, v) }

func TestMemoryWriteRectangleRoundTrips(t *testing.T) {
	sink := &recordingSink{}
	d, err := tft.New(tft.Config{Name: "TFT", Width: 240, Height: 320}, sink)
	if err != nil {
		t.Fatal(err)
	}

	writeCmd(d, 0x2A)
	for _, b := range []uint16{0, 0, 0, 1} { // left=0 right=1
		writeData(d, b)
	}
	writeCmd(d, 0x2B)
	for _, b := range []uint16{0, 0, 0, 0} { // top=0 bottom=0
		writeData(d, b)
	}
	writeCmd(d, 0x2C)
	writeData(d, 0xF800)
	writeData(d, 0x07E0)

	if got := d.Pixel(0, 0); got != 0xF800 {
		t.Errorf("pixel(0,0): got 0x%04x", got)
	}
	if got := d.Pixel(1, 0); got != 0x07E0 {
		t.Errorf("pixel(1,0): got 0x%04x", got)
	}
	if sink.pixels[[2]int{0, 0}] != 0xF800 || sink.pixels[[2]int{1, 0}] != 0x07E0 {
		t.Errorf("sink did not receive expected pixels: %v", sink.pixels)
	}
}

func TestDrawCursorWrapsToRegionStart(t *testing.T) {
	sink := &recordingSink{}
	d, _ := tft.New(tft.Config{Name: "TFT", Width: 240, Height: 320}, sink)

	writeCmd(d, 0x2A)
	for _, b := range []uint16{0, 0, 0, 1} {
		writeData(d, b)
	}
	writeCmd(d, 0x2B)
	for _, b := range []uint16{0, 0, 0, 1} {
		writeData(d, b)
	}
	writeCmd(d, 0x2C)
	for i := 0; i < 5; i++ {
		writeData(d, uint16(i))
	}
	// region is 2x2; fifth pixel (index 4) wraps back to (0,0)
	if got := d.Pixel(0, 0); got != 4 {
		t.Errorf("expected wraparound to overwrite (0,0) with value 4, got %d", got)
	}
}

func TestMACRowColExchangeSwapsAxes(t *testing.T) {
	sink := &recordingSink{}
	d, _ := tft.New(tft.Config{Name: "TFT", Width: 240, Height: 320}, sink)

	writeCmd(d, 0x36)
	writeData(d, 1<<5)

	writeCmd(d, 0x2A)
	for _, b := range []uint16{0, 0, 0, 2} {
		writeData(d, b)
	}
	writeCmd(d, 0x2B)
	for _, b := range []uint16{0, 0, 0, 0} {
		writeData(d, b)
	}
	writeCmd(d, 0x2C)
	writeData(d, 0xABCD)
	writeData(d, 0x1234)

	if got := d.Pixel(0, 0); got != 0xABCD {
		t.Errorf("expected swapped-axis write at (0,0), got 0x%04x", got)
	}
	if got := d.Pixel(0, 1); got != 0x1234 {
		t.Errorf("expected second pixel at swapped (0,1), got 0x%04x", got)
	}
}

func TestUnrecognisedCommandDoesNotPanic(t *testing.T) {
	sink := &recordingSink{}
	d, _ := tft.New(tft.Config{Name: "TFT", Width: 16, Height: 16}, sink)
	writeCmd(d, 0xEE)
	writeData(d, 1)
	writeData(d, 2)
}
