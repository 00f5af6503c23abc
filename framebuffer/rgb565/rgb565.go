// Package rgb565 provides the colour conversions between the 16-bit RGB565
// pixel format STM32F4 TFT/LCD firmware writes and image.Color, following
// the standard library's color.Model/color.Color pairing (the same pattern
// golang.org/x/image's own colour types, e.g. vp8's YCbCr, follow). The
// x/image dependency itself is exercised in framebuffer/pngsink, which
// composites the converted image with golang.org/x/image/draw.
package rgb565

import "image/color"

// Color is a packed RGB565 pixel: bits 15-11 red, 10-5 green, 4-0 blue.
type Color uint16

// Model converts arbitrary colors down to RGB565.
var Model = color.ModelFunc(convert)

func (c Color) RGBA() (r, g, b, a uint32) {
	r5 := uint32(c>>11) & 0x1F
	g6 := uint32(c>>5) & 0x3F
	b5 := uint32(c) & 0x1F

	r = (r5*255/31)<<8 | (r5 * 255 / 31)
	g = (g6*255/63)<<8 | (g6 * 255 / 63)
	b = (b5*255/31)<<8 | (b5 * 255 / 31)
	a = 0xFFFF
	return
}

func convert(c color.Color) color.Color {
	if rgb, ok := c.(Color); ok {
		return rgb
	}
	r, g, b, _ := c.RGBA()
	r5 := (r >> 11) & 0x1F
	g6 := (g >> 10) & 0x3F
	b5 := (b >> 11) & 0x1F
	return Color(r5<<11 | g6<<5 | b5)
}

// FromBigEndianPair decodes a 16-bit RGB565 value from a big-endian byte
// pair, matching the wire format a 16-bit FSMC/SPI write delivers.
func FromBigEndianPair(hi, lo byte) Color {
	return Color(uint16(hi)<<8 | uint16(lo))
}

// ToNRGBA converts a packed RGB565 value into a standard-library NRGBA
// color for PNG encoding.
func ToNRGBA(c Color) color.NRGBA {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: byte(r >> 8), G: byte(g >> 8), B: byte(b >> 8), A: 0xFF}
}
