// Package sdlsink implements framebuffer.Sink as a live SDL2 window,
// grounded on the teacher's gui/sdl package (window/renderer/texture setup
// in screen.go, event pump and FPS limiting in sdl.go) and the original's
// src/sdl.rs (Sdl::new_canvas/should_redraw/pump_events).
package sdlsink

import (
	"fmt"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/kvasari/stm32emu/framebuffer"
	"github.com/kvasari/stm32emu/framebuffer/rgb565"
	"github.com/kvasari/stm32emu/logger"
)

var sdlInitialized bool

// redrawInterval matches src/sdl.rs's Sdl::should_redraw 10ms threshold.
const redrawInterval = 10 * time.Millisecond

// SdlSink owns one SDL window/renderer/texture triple.
type SdlSink struct {
	title  string
	width  int
	height int

	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture

	pixels     []byte // RGBA8888, width*height*4
	lastRedraw time.Time
	quit       bool
}

// New returns an SdlSink that will create its window on Open.
func New(title string) *SdlSink {
	return &SdlSink{title: title}
}

// QuitRequested reports whether the window's close button or Escape/Q was
// seen, mirroring pump_events' "returns false if we need to quit".
func (s *SdlSink) QuitRequested() bool { return s.quit }

func (s *SdlSink) Open(width, height int, format framebuffer.PixelFormat) error {
	if !sdlInitialized {
		if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
			return fmt.Errorf("sdlsink: sdl.Init: %w", err)
		}
		sdlInitialized = true
	}

	window, err := sdl.CreateWindow(s.title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return fmt.Errorf("sdlsink: CreateWindow: %w", err)
	}
	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		window.Destroy()
		return fmt.Errorf("sdlsink: CreateRenderer: %w", err)
	}
	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ABGR8888, sdl.TEXTUREACCESS_STREAMING, int32(width), int32(height))
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		return fmt.Errorf("sdlsink: CreateTexture: %w", err)
	}

	renderer.SetDrawColor(0, 0, 0, 255)
	renderer.Clear()
	renderer.Present()

	s.width, s.height = width, height
	s.window, s.renderer, s.texture = window, renderer, texture
	s.pixels = make([]byte, width*height*4)
	s.lastRedraw = time.Time{}
	return nil
}

func (s *SdlSink) WritePixel(x, y int, pixel uint16) error {
	if s.texture == nil {
		return fmt.Errorf("sdlsink: WritePixel before Open")
	}
	if x < 0 || x >= s.width || y < 0 || y >= s.height {
		return fmt.Errorf("sdlsink: pixel (%d,%d) out of bounds", x, y)
	}
	col := rgb565.ToNRGBA(rgb565.Color(pixel))
	off := (y*s.width + x) * 4
	s.pixels[off] = col.R
	s.pixels[off+1] = col.G
	s.pixels[off+2] = col.B
	s.pixels[off+3] = col.A

	if s.shouldRedraw() {
		return s.redraw()
	}
	return nil
}

func (s *SdlSink) shouldRedraw() bool {
	now := time.Now()
	if now.Sub(s.lastRedraw) > redrawInterval {
		s.lastRedraw = now
		return true
	}
	return false
}

func (s *SdlSink) redraw() error {
	if err := s.texture.Update(nil, s.pixels, s.width*4); err != nil {
		return fmt.Errorf("sdlsink: texture update: %w", err)
	}
	s.renderer.Clear()
	if err := s.renderer.Copy(s.texture, nil, nil); err != nil {
		return fmt.Errorf("sdlsink: renderer copy: %w", err)
	}
	s.renderer.Present()
	s.pumpEvents()
	return nil
}

func (s *SdlSink) pumpEvents() {
	for {
		ev := sdl.PollEvent()
		if ev == nil {
			return
		}
		switch e := ev.(type) {
		case *sdl.QuitEvent:
			s.quit = true
		case *sdl.KeyboardEvent:
			if e.Type == sdl.KEYDOWN && (e.Keysym.Sym == sdl.K_ESCAPE || e.Keysym.Sym == sdl.K_q) {
				s.quit = true
			}
		}
	}
}

func (s *SdlSink) Close() error {
	if s.texture != nil {
		s.texture.Destroy()
		s.texture = nil
	}
	if s.renderer != nil {
		s.renderer.Destroy()
		s.renderer = nil
	}
	if s.window != nil {
		s.window.Destroy()
		s.window = nil
	}
	logger.Debug(logger.Allow, "sdlsink %s closed", s.title)
	return nil
}
