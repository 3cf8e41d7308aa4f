package ports

import (
	"context"
	"image"
)

// Detection is one object found by a detector, in source pixel coordinates.
type Detection struct {
	Label      string
	Confidence float64
	Box        image.Rectangle
}

// Detector runs an object detection model on a frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Annotator returns a copy of the frame with detections rendered onto it.
// Calls block until inference completes.
type Annotator interface {
	Annotate(ctx context.Context, img image.Image) (image.Image, error)
}
