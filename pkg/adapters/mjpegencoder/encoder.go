// Package mjpegencoder writes Motion-JPEG AVI files without external tools.
package mjpegencoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"sync"

	"github.com/icza/mjpeg"
	"golang.org/x/image/draw"

	"github.com/user/framelab/pkg/ports"
)

// Ext is the container extension of the files written.
const Ext = "avi"

// DefaultJPEGQuality is used when EncoderOptions.Quality is 0.
const DefaultJPEGQuality = 90

var (
	// ErrNotInitialized is returned when encoder methods are called before Begin.
	ErrNotInitialized = errors.New("mjpegencoder: encoder not initialized")
	// ErrBusy is returned when Begin is called while a file is still open.
	ErrBusy = errors.New("mjpegencoder: encoder already writing a file")
	// ErrEncodingFailed wraps writer and JPEG errors.
	ErrEncodingFailed = errors.New("mjpegencoder: encoding failed")
)

// Encoder implements ports.VideoEncoder on top of an AVI writer.
type Encoder struct {
	mu sync.Mutex

	width   int
	height  int
	quality int
	path    string

	writer     mjpeg.AviWriter
	frameCount int
	buf        bytes.Buffer
}

// New creates an encoder.
func New() *Encoder {
	return &Encoder{}
}

// JPEGQuality maps a CRF-style quality (0-51, lower is better) to a JPEG
// quality (1-100, higher is better).
func JPEGQuality(crf int) int {
	if crf <= 0 {
		return DefaultJPEGQuality
	}
	q := 100 - int(math.Round(float64(crf)*90/51))
	return min(max(q, 10), 100)
}

// Begin creates the AVI file. The frame rate is rounded to whole frames per second.
func (e *Encoder) Begin(path string, width, height int, fps float64, opts ports.EncoderOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writer != nil {
		return ErrBusy
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid frame size %dx%d", ErrEncodingFailed, width, height)
	}
	rate := int32(math.Round(fps))
	if rate <= 0 {
		rate = 30
	}

	w, err := mjpeg.New(path, int32(width), int32(height), rate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	e.writer = w
	e.width, e.height = width, height
	e.quality = JPEGQuality(opts.Quality)
	e.path = path
	e.frameCount = 0
	return nil
}

// EncodeFrame compresses img as JPEG and appends it. timestampMs is ignored;
// frames play at the rate given to Begin.
func (e *Encoder) EncodeFrame(img image.Image, timestampMs int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writer == nil {
		return ErrNotInitialized
	}

	bounds := img.Bounds()
	if bounds.Dx() != e.width || bounds.Dy() != e.height {
		scaled := image.NewRGBA(image.Rect(0, 0, e.width, e.height))
		draw.BiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
		img = scaled
	}

	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("%w: frame %d: %w", ErrEncodingFailed, e.frameCount, err)
	}
	if err := e.writer.AddFrame(e.buf.Bytes()); err != nil {
		return fmt.Errorf("%w: frame %d at %dms: %w", ErrEncodingFailed, e.frameCount, timestampMs, err)
	}
	e.frameCount++
	return nil
}

// End finalises the AVI index. A file that received no frames is removed.
func (e *Encoder) End() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writer == nil {
		return ErrNotInitialized
	}
	err := e.writer.Close()
	e.writer = nil

	if e.frameCount == 0 {
		os.Remove(e.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	return nil
}

// FrameCount returns the number of frames written to the current or last file.
func (e *Encoder) FrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameCount
}

var _ ports.VideoEncoder = (*Encoder)(nil)
