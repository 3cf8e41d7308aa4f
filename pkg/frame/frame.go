// Package frame provides the immutable pixel buffer passed between pipeline stages.
package frame

import (
	"bytes"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Channels is the number of interleaved channels of every Frame (R, G, B, A).
// Single-channel results are expanded back to this layout so that every stage
// downstream of a filter sees the same channel count.
const Channels = 4

// Frame is an immutable RGBA pixel grid anchored at the origin.
// The zero Frame holds no pixels. Operations never modify the receiver;
// they return a new Frame.
type Frame struct {
	pix *image.RGBA
}

// New creates a black, fully opaque frame of the given size.
func New(width, height int) Frame {
	if width <= 0 || height <= 0 {
		return Frame{}
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return Frame{pix: img}
}

// FromImage copies img into a new Frame whose bounds start at (0,0).
func FromImage(img image.Image) Frame {
	if img == nil {
		return Frame{}
	}
	b := img.Bounds()
	if b.Empty() {
		return Frame{}
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return Frame{pix: dst}
}

// Wrap takes ownership of img without copying. The caller must not modify img afterwards.
// img must be anchored at the origin.
func Wrap(img *image.RGBA) Frame {
	if img == nil || img.Bounds().Empty() {
		return Frame{}
	}
	if img.Bounds().Min != (image.Point{}) {
		return FromImage(img)
	}
	return Frame{pix: img}
}

// IsZero reports whether the frame holds no pixels.
func (f Frame) IsZero() bool {
	return f.pix == nil
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.pix == nil {
		return 0
	}
	return f.pix.Rect.Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.pix == nil {
		return 0
	}
	return f.pix.Rect.Dy()
}

// Bounds returns the frame rectangle, always anchored at (0,0).
func (f Frame) Bounds() image.Rectangle {
	if f.pix == nil {
		return image.Rectangle{}
	}
	return f.pix.Rect
}

// Image returns the frame as an image.Image. The result must be treated as read-only.
func (f Frame) Image() image.Image {
	if f.pix == nil {
		return nil
	}
	return f.pix
}

// Pixels exposes the underlying buffer for kernels. It must be treated as read-only.
func (f Frame) Pixels() *image.RGBA {
	return f.pix
}

// At returns the pixel at (x, y).
func (f Frame) At(x, y int) color.RGBA {
	if f.pix == nil {
		return color.RGBA{}
	}
	return f.pix.RGBAAt(x, y)
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	if f.pix == nil {
		return Frame{}
	}
	dst := image.NewRGBA(f.pix.Rect)
	copy(dst.Pix, f.pix.Pix)
	return Frame{pix: dst}
}

// Crop returns a copy of the part of the frame inside r.
// r is clipped to the frame bounds; an empty intersection yields the zero Frame.
func (f Frame) Crop(r image.Rectangle) Frame {
	if f.pix == nil {
		return Frame{}
	}
	r = r.Canon().Intersect(f.pix.Rect)
	if r.Empty() {
		return Frame{}
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := f.pix.PixOffset(r.Min.X, r.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+r.Dx()*4], f.pix.Pix[src:src+r.Dx()*4])
	}
	return Frame{pix: dst}
}

// Resize scales the frame to width x height with bilinear interpolation.
func (f Frame) Resize(width, height int) Frame {
	if f.pix == nil || width <= 0 || height <= 0 {
		return Frame{}
	}
	if width == f.Width() && height == f.Height() {
		return f.Clone()
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), f.pix, f.pix.Rect, draw.Src, nil)
	return Frame{pix: dst}
}

// Letterbox scales the frame to fit inside width x height keeping its aspect ratio
// and centres it on a black canvas of exactly that size.
func (f Frame) Letterbox(width, height int) Frame {
	if f.pix == nil || width <= 0 || height <= 0 {
		return Frame{}
	}
	if f.Width() == width && f.Height() == height {
		return f.Clone()
	}
	scale := min(float64(width)/float64(f.Width()), float64(height)/float64(f.Height()))
	w := max(1, int(float64(f.Width())*scale))
	h := max(1, int(float64(f.Height())*scale))
	out := New(width, height)
	x := (width - w) / 2
	y := (height - h) / 2
	draw.BiLinear.Scale(out.pix, image.Rect(x, y, x+w, y+h), f.pix, f.pix.Rect, draw.Src, nil)
	return out
}

// Equal reports whether both frames have the same size and identical pixels.
func (f Frame) Equal(o Frame) bool {
	if f.pix == nil || o.pix == nil {
		return f.pix == nil && o.pix == nil
	}
	if f.pix.Rect != o.pix.Rect {
		return false
	}
	w := f.Width() * 4
	for y := 0; y < f.Height(); y++ {
		a := f.pix.Pix[y*f.pix.Stride : y*f.pix.Stride+w]
		b := o.pix.Pix[y*o.pix.Stride : y*o.pix.Stride+w]
		if !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

// IsGray reports whether every pixel has R == G == B.
func (f Frame) IsGray() bool {
	if f.pix == nil {
		return false
	}
	for y := 0; y < f.Height(); y++ {
		row := f.pix.Pix[y*f.pix.Stride : y*f.pix.Stride+f.Width()*4]
		for i := 0; i < len(row); i += 4 {
			if row[i] != row[i+1] || row[i] != row[i+2] {
				return false
			}
		}
	}
	return true
}
