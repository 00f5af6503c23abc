// Package pngsink implements framebuffer.Sink by accumulating pixels into
// an in-memory image and writing it to disk on Close, grounded on
// television/renderers/imagetv.go's NewFrame/SetPixel/Save idiom.
package pngsink

import (
	"fmt"
	"image"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/kvasari/stm32emu/framebuffer"
	"github.com/kvasari/stm32emu/framebuffer/rgb565"
)

// PngSink writes the final framebuffer contents to path when Close is
// called.
type PngSink struct {
	path string
	img  *image.RGBA
}

// New returns a PngSink that will write to path on Close.
func New(path string) *PngSink {
	return &PngSink{path: path}
}

func (s *PngSink) Open(width, height int, format framebuffer.PixelFormat) error {
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

func (s *PngSink) WritePixel(x, y int, pixel uint16) error {
	if s.img == nil {
		return fmt.Errorf("pngsink: WritePixel before Open")
	}
	if !image.Pt(x, y).In(s.img.Bounds()) {
		return fmt.Errorf("pngsink: pixel (%d,%d) out of bounds", x, y)
	}
	col := rgb565.ToNRGBA(rgb565.Color(pixel))
	s.img.Set(x, y, col)
	return nil
}

func (s *PngSink) Close() error {
	if s.img == nil {
		return nil
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("pngsink: creating %s: %w", s.path, err)
	}
	defer f.Close()

	// Route the final composite through x/image/draw rather than
	// png.Encode(f, s.img) directly, so a scaled destination can be
	// substituted later without touching WritePixel.
	dst := image.NewNRGBA(s.img.Bounds())
	xdraw.Draw(dst, dst.Bounds(), s.img, image.Point{}, xdraw.Src)

	if err := png.Encode(f, dst); err != nil {
		return fmt.Errorf("pngsink: encoding %s: %w", s.path, err)
	}
	return nil
}
