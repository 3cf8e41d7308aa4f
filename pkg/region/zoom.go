package region

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/user/framelab/pkg/frame"
)

// Zoom is the persistent source-space crop applied to every frame after filtering.
// The zero Zoom is inactive.
type Zoom struct {
	rect   image.Rectangle
	active bool
}

// Set activates the zoom on r.
func (z *Zoom) Set(r image.Rectangle) error {
	r = r.Canon()
	if r.Empty() {
		return ErrDegenerateRegion
	}
	z.rect = r
	z.active = true
	return nil
}

// Clear deactivates the zoom.
func (z *Zoom) Clear() {
	*z = Zoom{}
}

// Active reports whether a zoom rectangle is set.
func (z Zoom) Active() bool { return z.active }

// Rect returns the zoom rectangle in source pixels.
func (z Zoom) Rect() image.Rectangle { return z.rect }

// Apply crops f to the zoom rectangle. An inactive zoom, or one that no longer
// overlaps the frame, returns f unchanged.
func (z Zoom) Apply(f frame.Frame) frame.Frame {
	if !z.active {
		return f
	}
	c := f.Crop(z.rect)
	if c.IsZero() {
		return f
	}
	return c
}

// Extract crops f to r, clipped to the frame bounds.
func Extract(f frame.Frame, r image.Rectangle) (frame.Frame, error) {
	c := f.Crop(r)
	if c.IsZero() {
		return frame.Frame{}, ErrDegenerateRegion
	}
	return c, nil
}

// ZoomByFactor scales f by factor, interpolating linearly when enlarging and
// averaging pixel areas when shrinking.
func ZoomByFactor(f frame.Frame, factor float64) (frame.Frame, error) {
	if f.IsZero() || factor <= 0 {
		return frame.Frame{}, ErrDegenerateRegion
	}
	w := int(float64(f.Width()) * factor)
	h := int(float64(f.Height()) * factor)
	if w <= 0 || h <= 0 {
		return frame.Frame{}, ErrDegenerateRegion
	}
	filter := imaging.Linear
	if factor < 1 {
		filter = imaging.Box
	}
	return frame.FromImage(imaging.Resize(f.Pixels(), w, h, filter)), nil
}
