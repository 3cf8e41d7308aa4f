package ports

import (
	"image"
)

// VideoEncoder abstracts a video sink that writes one container file.
type VideoEncoder interface {
	// Begin opens the output file and fixes the frame size and rate for the whole file.
	Begin(path string, width, height int, fps float64, opts EncoderOptions) error

	// EncodeFrame appends a single frame at the specified timestamp.
	// Frames with a different size are scaled to the size given to Begin.
	EncodeFrame(img image.Image, timestampMs int) error

	// End flushes pending frames and closes the output file.
	End() error
}

// EncoderOptions configures video encoding parameters.
type EncoderOptions struct {
	Bitrate int // Target bitrate in kbps (0 = encoder default)
	Quality int // CRF value: 0-51 (lower is higher quality, 0 = encoder default)
}
