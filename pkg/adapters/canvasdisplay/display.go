// Package canvasdisplay composes display frames onto a fixed-size canvas:
// the fitted image, the selection overlay and a position label.
package canvasdisplay

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/session"
)

// Options configures the composition.
type Options struct {
	Background   color.Color
	OverlayColor color.Color
	OverlayWidth float64
	// ShowPosition draws the stream position in the top-left corner.
	ShowPosition bool
	Label        ports.TextStyle
	// SnapshotPath, when set, receives every composed canvas through the sink.
	SnapshotPath string
}

// DefaultOptions returns a black canvas with a red one-pixel selection outline.
func DefaultOptions() Options {
	return Options{
		Background:   color.Black,
		OverlayColor: color.RGBA{R: 255, A: 255},
		OverlayWidth: 1,
		Label:        ports.TextStyle{FontSize: 13, Color: color.White},
	}
}

// Display implements ports.Display by rendering into an in-memory canvas.
type Display struct {
	renderer ports.Renderer
	sink     ports.FrameSink
	opts     Options

	mu       sync.Mutex
	last     image.Image
	shown    int
	onRender func(image.Image)
}

// New creates a display. sink may be nil when no snapshot is written.
func New(renderer ports.Renderer, sink ports.FrameSink, opts Options) *Display {
	if opts.Background == nil {
		opts.Background = color.Black
	}
	if opts.OverlayColor == nil {
		opts.OverlayColor = color.RGBA{R: 255, A: 255}
	}
	if opts.OverlayWidth <= 0 {
		opts.OverlayWidth = 1
	}
	if opts.Label.Color == nil {
		opts.Label.Color = color.White
	}
	return &Display{renderer: renderer, sink: sink, opts: opts}
}

// OnRender registers a callback receiving each composed canvas.
func (d *Display) OnRender(fn func(image.Image)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onRender = fn
}

// Show composes the frame.
func (d *Display) Show(frame ports.DisplayFrame) error {
	img := d.Compose(frame)

	d.mu.Lock()
	d.last = img
	d.shown++
	fn := d.onRender
	d.mu.Unlock()

	if fn != nil {
		fn(img)
	}
	if d.sink != nil && d.opts.SnapshotPath != "" {
		if err := d.sink.SaveImage(d.opts.SnapshotPath, img); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	return nil
}

// Compose renders frame without recording it.
func (d *Display) Compose(frame ports.DisplayFrame) image.Image {
	vp := frame.Viewport
	w, h := vp.CanvasWidth, vp.CanvasHeight
	if (w <= 0 || h <= 0) && frame.Image != nil {
		w, h = frame.Image.Bounds().Dx(), frame.Image.Bounds().Dy()
	}
	canvas := d.renderer.CreateCanvas(max(w, 1), max(h, 1), d.opts.Background)

	if frame.Image != nil {
		sw, sh := vp.ScaledWidth, vp.ScaledHeight
		if sw <= 0 || sh <= 0 {
			sw, sh = frame.Image.Bounds().Dx(), frame.Image.Bounds().Dy()
		}
		canvas.DrawImageScaled(frame.Image, int(vp.OffsetX), int(vp.OffsetY), sw, sh)
	}

	if r := frame.Overlay; r != nil && !r.Canon().Empty() {
		c := r.Canon()
		canvas.DrawRectStroke(c.Min.X, c.Min.Y, c.Dx(), c.Dy(), d.opts.OverlayColor, d.opts.OverlayWidth)
	}

	if d.opts.ShowPosition && frame.PositionSec > 0 {
		canvas.DrawText(session.ClockMillis(frame.PositionSec), 4, 4, d.opts.Label)
	}
	return canvas.ToImage()
}

// Last returns the most recently composed canvas.
func (d *Display) Last() image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Shown returns the number of frames shown.
func (d *Display) Shown() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

// Ensure Display implements ports.Display
var _ ports.Display = (*Display)(nil)
