package mocks

import (
	"image"

	"github.com/user/framelab/pkg/ports"
)

// VideoEncoder is a mock implementation of ports.VideoEncoder.
type VideoEncoder struct {
	BeginFunc       func(path string, width, height int, fps float64, opts ports.EncoderOptions) error
	EncodeFrameFunc func(img image.Image, timestampMs int) error
	EndFunc         func() error

	// Recorded calls for verification
	BeginCalls       []BeginCall
	EncodeFrameCalls []EncodeFrameCall
	EndCalls         int
}

// BeginCall records a call to Begin.
type BeginCall struct {
	Path   string
	Width  int
	Height int
	FPS    float64
}

// EncodeFrameCall records a call to EncodeFrame.
type EncodeFrameCall struct {
	TimestampMs int
	Width       int
	Height      int
}

func (m *VideoEncoder) Begin(path string, width, height int, fps float64, opts ports.EncoderOptions) error {
	m.BeginCalls = append(m.BeginCalls, BeginCall{Path: path, Width: width, Height: height, FPS: fps})
	if m.BeginFunc != nil {
		return m.BeginFunc(path, width, height, fps, opts)
	}
	return nil
}

func (m *VideoEncoder) EncodeFrame(img image.Image, timestampMs int) error {
	b := img.Bounds()
	m.EncodeFrameCalls = append(m.EncodeFrameCalls, EncodeFrameCall{TimestampMs: timestampMs, Width: b.Dx(), Height: b.Dy()})
	if m.EncodeFrameFunc != nil {
		return m.EncodeFrameFunc(img, timestampMs)
	}
	return nil
}

func (m *VideoEncoder) End() error {
	m.EndCalls++
	if m.EndFunc != nil {
		return m.EndFunc()
	}
	return nil
}

var _ ports.VideoEncoder = (*VideoEncoder)(nil)
