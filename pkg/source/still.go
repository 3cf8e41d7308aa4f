package source

import (
	"fmt"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/ports"
)

// Still is a single decoded image presented as a one-frame stream.
type Still struct {
	path string
	img  frame.Frame
	read bool
}

// OpenStill reads and decodes the image at path.
func OpenStill(path string, fs ports.FileSystem, renderer ports.Renderer) (*Still, error) {
	if fs == nil || renderer == nil {
		return nil, fmt.Errorf("%w: %s: no image reader configured", ErrSourceUnavailable, path)
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, path, err)
	}
	img, err := renderer.DecodeImage(data, ports.FormatFromExt(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, path, err)
	}
	f := frame.FromImage(img)
	if f.IsZero() {
		return nil, fmt.Errorf("%w: %s: empty image", ErrSourceUnavailable, path)
	}
	return &Still{path: path, img: f}, nil
}

// NewStill wraps an in-memory frame.
func NewStill(f frame.Frame) *Still {
	return &Still{img: f}
}

func (s *Still) Kind() Kind { return KindStill }

func (s *Still) Read() (frame.Frame, error) {
	if s.read {
		return frame.Frame{}, ErrEndOfStream
	}
	s.read = true
	return s.img, nil
}

func (s *Still) SeekFrame(index int) error {
	s.read = index > 0
	return nil
}

func (s *Still) SeekTime(seconds float64) error {
	return s.SeekFrame(0)
}

func (s *Still) Properties() Properties {
	p := Properties{Width: s.img.Width(), Height: s.img.Height(), FrameCount: 1}
	if s.read {
		p.Position = 1
	}
	return p
}

func (s *Still) Close() error { return nil }
