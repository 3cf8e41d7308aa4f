package mocks

import (
	"context"
	"image"

	"github.com/user/framelab/pkg/ports"
)

// Detector is a mock implementation of ports.Detector.
type Detector struct {
	Detections []ports.Detection
	DetectFunc func(ctx context.Context, img image.Image) ([]ports.Detection, error)
	Calls      int
}

func (m *Detector) Detect(ctx context.Context, img image.Image) ([]ports.Detection, error) {
	m.Calls++
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, img)
	}
	return m.Detections, nil
}

var _ ports.Detector = (*Detector)(nil)

// Annotator is a mock implementation of ports.Annotator. By default it returns
// the input unchanged.
type Annotator struct {
	AnnotateFunc func(ctx context.Context, img image.Image) (image.Image, error)
	Calls        int
}

func (m *Annotator) Annotate(ctx context.Context, img image.Image) (image.Image, error) {
	m.Calls++
	if m.AnnotateFunc != nil {
		return m.AnnotateFunc(ctx, img)
	}
	return img, nil
}

var _ ports.Annotator = (*Annotator)(nil)
