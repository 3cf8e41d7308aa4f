package ports

import (
	"image"
)

// VideoFrame represents a decoded video frame with timing information.
type VideoFrame struct {
	Image       image.Image
	Index       int
	TimestampMs int
}

// VideoInfo describes a video container without decoding it.
type VideoInfo struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	DurationMs int
	Codec      string
}

// DurationSec returns the stream duration in seconds.
// When the container does not report a duration it is derived from frame count and fps.
func (v VideoInfo) DurationSec() float64 {
	if v.DurationMs > 0 {
		return float64(v.DurationMs) / 1000
	}
	if v.FPS > 0 {
		return float64(v.FrameCount) / v.FPS
	}
	return 0
}

// FrameStream yields decoded frames in order, starting at the frame it was
// opened at.
type FrameStream interface {
	// Next returns the next frame, or io.EOF after the last one. A frame that
	// could not be decoded comes back with a nil Image and no error.
	Next() (VideoFrame, error)

	// Close stops decoding.
	Close() error
}

// VideoDecoder abstracts video decoding operations.
type VideoDecoder interface {
	// Probe reads stream properties (size, fps, frame count) from a video file.
	Probe(path string) (VideoInfo, error)

	// OpenStream starts decoding the file at frame index start. info is the
	// result of Probe; frames are delivered at info's size.
	OpenStream(path string, info VideoInfo, start int) (FrameStream, error)

	// Close releases decoder resources, including open streams.
	Close()
}
