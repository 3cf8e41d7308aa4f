package mocks

import (
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/user/framelab/pkg/ports"
)

// VideoDecoder is a mock implementation of ports.VideoDecoder.
type VideoDecoder struct {
	Info   ports.VideoInfo
	Frames []ports.VideoFrame

	ProbeFunc      func(path string) (ports.VideoInfo, error)
	OpenStreamFunc func(path string, start int) (ports.FrameStream, error)

	mu sync.Mutex
	// OpenStreamStarts records the start frame of every OpenStream call.
	OpenStreamStarts []int
	// FramesRead counts frames delivered by all streams.
	FramesRead int
	Closed     bool
}

// NewVideoDecoder creates a decoder serving count synthetic frames of the given size.
// The red channel of frame i is i%256, so tests can tell frames apart.
func NewVideoDecoder(width, height int, fps float64, count int) *VideoDecoder {
	frames := make([]ports.VideoFrame, count)
	for i := range frames {
		frames[i] = ports.VideoFrame{
			Image:       SolidImage(width, height, color.RGBA{R: uint8(i), G: 40, B: 200, A: 255}),
			Index:       i,
			TimestampMs: int(float64(i) * 1000 / fps),
		}
	}
	return &VideoDecoder{
		Info: ports.VideoInfo{
			Width:      width,
			Height:     height,
			FPS:        fps,
			FrameCount: count,
			DurationMs: int(float64(count) * 1000 / fps),
			Codec:      "h264",
		},
		Frames: frames,
	}
}

func (m *VideoDecoder) Probe(path string) (ports.VideoInfo, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(path)
	}
	return m.Info, nil
}

func (m *VideoDecoder) OpenStream(path string, info ports.VideoInfo, start int) (ports.FrameStream, error) {
	m.mu.Lock()
	m.OpenStreamStarts = append(m.OpenStreamStarts, start)
	m.mu.Unlock()
	if m.OpenStreamFunc != nil {
		return m.OpenStreamFunc(path, start)
	}
	return &frameStream{dec: m, pos: start}, nil
}

// Opens returns the number of OpenStream calls.
func (m *VideoDecoder) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.OpenStreamStarts)
}

// Reads returns the number of frames delivered so far.
func (m *VideoDecoder) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FramesRead
}

func (m *VideoDecoder) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
}

// frameStream serves the decoder's Frames slice from a position.
type frameStream struct {
	dec    *VideoDecoder
	pos    int
	closed bool
}

func (s *frameStream) Next() (ports.VideoFrame, error) {
	if s.closed || s.pos < 0 || s.pos >= len(s.dec.Frames) {
		return ports.VideoFrame{}, io.EOF
	}
	vf := s.dec.Frames[s.pos]
	s.pos++
	s.dec.mu.Lock()
	s.dec.FramesRead++
	s.dec.mu.Unlock()
	return vf, nil
}

func (s *frameStream) Close() error {
	s.closed = true
	return nil
}

var _ ports.VideoDecoder = (*VideoDecoder)(nil)

// SolidImage returns a width x height image filled with c.
func SolidImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// Gray is a mid-gray opaque colour for synthetic images.
var Gray = color.RGBA{R: 128, G: 128, B: 128, A: 255}
