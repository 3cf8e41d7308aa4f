// Package boxannotator draws detector output onto frames.
package boxannotator

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/user/framelab/pkg/ports"
)

// DefaultConfidence is the minimum confidence of a drawn detection.
const DefaultConfidence = 0.5

// Options configures box drawing.
type Options struct {
	Confidence  float64
	BoxColor    color.Color
	StrokeWidth float64
	Label       ports.TextStyle
	LabelHeight int
}

// DefaultOptions draws green two-pixel boxes with a filled label above them.
func DefaultOptions() Options {
	return Options{
		Confidence:  DefaultConfidence,
		BoxColor:    color.RGBA{G: 255, A: 255},
		StrokeWidth: 2,
		Label:       ports.TextStyle{FontSize: 12, Color: color.Black},
		LabelHeight: 16,
	}
}

// Annotator implements ports.Annotator on top of a Detector.
type Annotator struct {
	detector ports.Detector
	renderer ports.Renderer
	opts     Options
}

// New creates an annotator.
func New(detector ports.Detector, renderer ports.Renderer, opts Options) *Annotator {
	def := DefaultOptions()
	if opts.Confidence <= 0 {
		opts.Confidence = def.Confidence
	}
	if opts.BoxColor == nil {
		opts.BoxColor = def.BoxColor
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = def.StrokeWidth
	}
	if opts.Label.Color == nil {
		opts.Label = def.Label
	}
	if opts.LabelHeight <= 0 {
		opts.LabelHeight = def.LabelHeight
	}
	return &Annotator{detector: detector, renderer: renderer, opts: opts}
}

// Annotate runs the detector and returns a copy of img with every detection at
// or above the confidence threshold outlined and labelled.
func (a *Annotator) Annotate(ctx context.Context, img image.Image) (image.Image, error) {
	dets, err := a.detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	canvas := a.renderer.CanvasFrom(img)
	origin := img.Bounds().Min
	for _, det := range dets {
		if det.Confidence < a.opts.Confidence {
			continue
		}
		b := det.Box.Canon().Sub(origin)
		canvas.DrawRectStroke(b.Min.X, b.Min.Y, b.Dx(), b.Dy(), a.opts.BoxColor, a.opts.StrokeWidth)

		label := fmt.Sprintf("%s %.2f", det.Label, det.Confidence)
		y := max(b.Min.Y-a.opts.LabelHeight, 0)
		width := int(float64(len(label)) * a.opts.Label.FontSize * 0.6)
		canvas.DrawRect(b.Min.X, y, width, a.opts.LabelHeight, a.opts.BoxColor)
		canvas.DrawText(label, b.Min.X+2, y+2, a.opts.Label)
	}
	return canvas.ToImage(), nil
}

// Ensure Annotator implements ports.Annotator
var _ ports.Annotator = (*Annotator)(nil)
