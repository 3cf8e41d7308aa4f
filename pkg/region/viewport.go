// Package region maps operator selections between display and source space and
// implements the one-shot extract and persistent zoom interpretations of a selection.
package region

import (
	"errors"
	"image"
	"math"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/ports"
)

// ErrDegenerateRegion is returned for selections with zero width or height.
// Callers discard such selections without reporting them.
var ErrDegenerateRegion = errors.New("region: degenerate region")

// Viewport describes how a source frame is fitted into the display canvas.
type Viewport struct {
	SourceWidth  int
	SourceHeight int
	CanvasWidth  int
	CanvasHeight int
	// Ratio is source pixels per display pixel.
	Ratio        float64
	OffsetX      float64
	OffsetY      float64
	ScaledWidth  int
	ScaledHeight int
}

// Fit computes the viewport that shows a srcW x srcH frame as large as possible
// inside the canvas, centred, keeping its aspect ratio.
func Fit(srcW, srcH, canvasW, canvasH int) Viewport {
	v := Viewport{
		SourceWidth:  srcW,
		SourceHeight: srcH,
		CanvasWidth:  canvasW,
		CanvasHeight: canvasH,
	}
	if srcW <= 0 || srcH <= 0 || canvasW <= 0 || canvasH <= 0 {
		v.Ratio = 1
		return v
	}
	v.Ratio = math.Max(float64(srcW)/float64(canvasW), float64(srcH)/float64(canvasH))
	v.ScaledWidth = max(1, int(float64(srcW)/v.Ratio))
	v.ScaledHeight = max(1, int(float64(srcH)/v.Ratio))
	v.OffsetX = float64((canvasW - v.ScaledWidth) / 2)
	v.OffsetY = float64((canvasH - v.ScaledHeight) / 2)
	return v
}

// Port converts the viewport to the form handed to the display.
func (v Viewport) Port() ports.Viewport {
	return ports.Viewport{
		CanvasWidth:  v.CanvasWidth,
		CanvasHeight: v.CanvasHeight,
		Ratio:        v.Ratio,
		OffsetX:      v.OffsetX,
		OffsetY:      v.OffsetY,
		ScaledWidth:  v.ScaledWidth,
		ScaledHeight: v.ScaledHeight,
	}
}

// ToSource maps a display-space rectangle to source pixels: each coordinate
// becomes (d - offset) * ratio truncated toward zero, negatives clamp to zero,
// and the result is normalised and clipped to the source bounds.
func (v Viewport) ToSource(r image.Rectangle) (image.Rectangle, error) {
	x0 := max(0, int((float64(r.Min.X)-v.OffsetX)*v.Ratio))
	y0 := max(0, int((float64(r.Min.Y)-v.OffsetY)*v.Ratio))
	x1 := max(0, int((float64(r.Max.X)-v.OffsetX)*v.Ratio))
	y1 := max(0, int((float64(r.Max.Y)-v.OffsetY)*v.Ratio))

	out := image.Rect(x0, y0, x1, y1)
	if v.SourceWidth > 0 && v.SourceHeight > 0 {
		out = out.Intersect(image.Rect(0, 0, v.SourceWidth, v.SourceHeight))
	}
	if out.Empty() {
		return image.Rectangle{}, ErrDegenerateRegion
	}
	return out, nil
}

// ToDisplay maps a source-space rectangle to canvas coordinates, rounding to the
// nearest display pixel.
func (v Viewport) ToDisplay(r image.Rectangle) image.Rectangle {
	r = r.Canon()
	conv := func(s int, off float64) int {
		return int(math.Round(float64(s)/v.Ratio + off))
	}
	return image.Rect(
		conv(r.Min.X, v.OffsetX), conv(r.Min.Y, v.OffsetY),
		conv(r.Max.X, v.OffsetX), conv(r.Max.Y, v.OffsetY),
	)
}

// Render scales f to the viewport's scaled size. The result is what the display
// places at (OffsetX, OffsetY).
func (v Viewport) Render(f frame.Frame) frame.Frame {
	if f.IsZero() || v.ScaledWidth <= 0 || v.ScaledHeight <= 0 {
		return f
	}
	return f.Resize(v.ScaledWidth, v.ScaledHeight)
}
