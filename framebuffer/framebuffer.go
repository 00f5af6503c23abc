// Package framebuffer defines the sink external display/LCD devices draw
// into, grounded on the teacher's television.Renderer/SetPixel idiom
// (television/renderers/imagetv.go, gui/sdl/screen.go) generalized from a
// fixed 6-colour-clock TV raster to an arbitrary RGB565 rectangle.
package framebuffer

// PixelFormat names the colour encoding a Sink is opened with. STM32F4
// TFT/LCD firmware in this corpus only ever programs RGB565, but the type
// keeps the door open for 18-bit/24-bit panels without reshaping Sink.
type PixelFormat int

const (
	RGB565 PixelFormat = iota
)

// Sink receives pixels written by a display device (TFT, LCD/FPGA). A
// single device may feed more than one Sink at once (see multisink.go).
type Sink interface {
	Open(width, height int, format PixelFormat) error
	WritePixel(x, y int, rgb565 uint16) error
	Close() error
}
