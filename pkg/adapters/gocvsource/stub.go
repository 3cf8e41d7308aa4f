//go:build !gocv

// Package gocvsource reads cameras and video files through OpenCV.
// Without the gocv build tag every operation fails with ErrNotBuilt.
package gocvsource

import (
	"image"

	"github.com/user/framelab/pkg/ports"
)

// Available reports whether OpenCV support was compiled in.
func Available() bool {
	return false
}

// Capture is the stub capture device.
type Capture struct{}

// NewCapture creates a stub capture.
func NewCapture(width, height int) *Capture {
	return &Capture{}
}

func (c *Capture) Open(device int) error      { return ErrNotBuilt }
func (c *Capture) Read() (image.Image, error) { return nil, ErrNotBuilt }
func (c *Capture) Info() ports.CaptureInfo    { return ports.CaptureInfo{} }
func (c *Capture) Close() error               { return nil }

// Decoder is the stub decoder.
type Decoder struct{}

// NewDecoder creates a stub decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Probe(path string) (ports.VideoInfo, error) { return ports.VideoInfo{}, ErrNotBuilt }
func (d *Decoder) OpenStream(path string, info ports.VideoInfo, start int) (ports.FrameStream, error) {
	return nil, ErrNotBuilt
}
func (d *Decoder) Close() {}

var (
	_ ports.CaptureDevice = (*Capture)(nil)
	_ ports.VideoDecoder  = (*Decoder)(nil)
)
