package framebuffer

// MultiSink fans a single device's pixel stream out to several Sinks at
// once, since spec.md allows a PNG file and a live window to both be
// active for the same display.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a Sink that forwards every call to each of sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Open(width, height int, format PixelFormat) error {
	for _, s := range m.sinks {
		if err := s.Open(width, height, format); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) WritePixel(x, y int, rgb565 uint16) error {
	for _, s := range m.sinks {
		if err := s.WritePixel(x, y, rgb565); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
