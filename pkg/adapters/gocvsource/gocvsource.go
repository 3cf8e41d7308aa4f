//go:build gocv

// Package gocvsource reads cameras and video files through OpenCV.
// It is compiled only with the gocv build tag.
package gocvsource

import (
	"fmt"
	"image"
	"io"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/user/framelab/pkg/ports"
)

// Available reports whether OpenCV support was compiled in.
func Available() bool {
	return true
}

// Capture implements ports.CaptureDevice with gocv.VideoCapture.
type Capture struct {
	mu     sync.Mutex
	width  int
	height int
	cam    *gocv.VideoCapture
	mat    gocv.Mat
}

// NewCapture creates a capture that requests width x height from the device.
// Zero keeps the device default.
func NewCapture(width, height int) *Capture {
	return &Capture{width: width, height: height}
}

// Open connects to the device with the given index.
func (c *Capture) Open(device int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cam != nil {
		c.closeLocked()
	}
	cam, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return fmt.Errorf("open device %d: %w", device, err)
	}
	if !cam.IsOpened() {
		cam.Close()
		return fmt.Errorf("open device %d: not opened", device)
	}
	if c.width > 0 && c.height > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
		cam.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	}
	c.cam = cam
	c.mat = gocv.NewMat()
	return nil
}

// Read blocks until the next frame is available.
func (c *Capture) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cam == nil {
		return nil, fmt.Errorf("capture not open")
	}
	if !c.cam.Read(&c.mat) || c.mat.Empty() {
		return nil, fmt.Errorf("cannot read frame")
	}
	return c.mat.ToImage()
}

// Info returns the properties the device currently reports.
func (c *Capture) Info() ports.CaptureInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cam == nil {
		return ports.CaptureInfo{}
	}
	return ports.CaptureInfo{
		Width:  int(c.cam.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(c.cam.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    c.cam.Get(gocv.VideoCaptureFPS),
	}
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Capture) closeLocked() error {
	if c.cam == nil {
		return nil
	}
	err := c.cam.Close()
	c.mat.Close()
	c.cam = nil
	return err
}

// Decoder implements ports.VideoDecoder with gocv.VideoCaptureFile.
type Decoder struct{}

// NewDecoder creates a decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Probe reads stream properties.
func (d *Decoder) Probe(path string) (ports.VideoInfo, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return ports.VideoInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer vc.Close()

	info := ports.VideoInfo{
		Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        vc.Get(gocv.VideoCaptureFPS),
		FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
		Codec:      vc.CodecString(),
	}
	if info.FPS > 0 && !math.IsInf(info.FPS, 0) {
		info.DurationMs = int(float64(info.FrameCount) * 1000 / info.FPS)
	}
	return info, nil
}

// OpenStream opens the file positioned at frame start.
func (d *Decoder) OpenStream(path string, info ports.VideoInfo, start int) (ports.FrameStream, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if start > 0 {
		vc.Set(gocv.VideoCapturePosFrames, float64(start))
	}
	fps := info.FPS
	if fps <= 0 || math.IsInf(fps, 0) {
		fps = 30
	}
	return &stream{vc: vc, mat: gocv.NewMat(), fps: fps, index: start}, nil
}

type stream struct {
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	fps   float64
	index int
}

func (s *stream) Next() (ports.VideoFrame, error) {
	if s.vc == nil || !s.vc.Read(&s.mat) {
		return ports.VideoFrame{}, io.EOF
	}
	i := s.index
	s.index++
	f := ports.VideoFrame{Index: i, TimestampMs: int(float64(i) * 1000 / s.fps)}
	if s.mat.Empty() {
		return f, nil
	}
	if img, err := s.mat.ToImage(); err == nil {
		// undecodable frames keep their slot with a nil image
		f.Image = img
	}
	return f, nil
}

func (s *stream) Close() error {
	if s.vc == nil {
		return nil
	}
	s.mat.Close()
	err := s.vc.Close()
	s.vc = nil
	return err
}

// Close releases decoder resources.
func (d *Decoder) Close() {}

var (
	_ ports.CaptureDevice = (*Capture)(nil)
	_ ports.VideoDecoder  = (*Decoder)(nil)
)
