package ports

import (
	"image"
)

// CaptureInfo reports the current properties of a capture device.
type CaptureInfo struct {
	Width  int
	Height int
	FPS    float64
}

// CaptureDevice abstracts a live camera or capture card.
type CaptureDevice interface {
	// Open connects to the device with the given index.
	Open(device int) error

	// Read blocks until the next frame is available.
	Read() (image.Image, error)

	// Info returns the properties the device currently reports.
	Info() CaptureInfo

	// Close releases the device.
	Close() error
}
