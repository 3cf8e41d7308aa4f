// Package ports defines interfaces for the collaborators of the frame pipeline:
// decoders, capture devices, encoders, displays, detectors and storage.
package ports

import (
	"image"
)

// Viewport describes how a source-sized frame is fitted into a display canvas.
// Ratio is source pixels per display pixel; the scaled image is centred at (OffsetX, OffsetY).
type Viewport struct {
	CanvasWidth  int
	CanvasHeight int
	Ratio        float64
	OffsetX      float64
	OffsetY      float64
	ScaledWidth  int
	ScaledHeight int
}

// DisplayFrame is what the pipeline hands to the display for one tick.
type DisplayFrame struct {
	Image    image.Image
	Viewport Viewport
	// Overlay is an in-progress selection rectangle in canvas coordinates, if any.
	Overlay *image.Rectangle
	// PositionSec is the stream position of the frame (0 for still images).
	PositionSec float64
}

// Display presents processed frames to the operator.
type Display interface {
	Show(frame DisplayFrame) error
}
