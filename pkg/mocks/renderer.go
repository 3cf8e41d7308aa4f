package mocks

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/user/framelab/pkg/ports"
)

// Renderer is a mock implementation of ports.Renderer.
type Renderer struct {
	CreateCanvasFunc func(width, height int, bg color.Color) ports.Canvas
	CanvasFromFunc   func(img image.Image) ports.Canvas
	DecodeImageFunc  func(data []byte, format ports.ImageFormat) (image.Image, error)
	EncodeImageFunc  func(img image.Image, format ports.ImageFormat, quality int) ([]byte, error)
	ResizeImageFunc  func(img image.Image, width, height int) image.Image
}

func (m *Renderer) CreateCanvas(width, height int, bg color.Color) ports.Canvas {
	if m.CreateCanvasFunc != nil {
		return m.CreateCanvasFunc(width, height, bg)
	}
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (m *Renderer) CanvasFrom(img image.Image) ports.Canvas {
	if m.CanvasFromFunc != nil {
		return m.CanvasFromFunc(img)
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Canvas{img: dst}
}

func (m *Renderer) DecodeImage(data []byte, format ports.ImageFormat) (image.Image, error) {
	if m.DecodeImageFunc != nil {
		return m.DecodeImageFunc(data, format)
	}
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

func (m *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	if m.EncodeImageFunc != nil {
		return m.EncodeImageFunc(img, format, quality)
	}
	return []byte{byte(format)}, nil
}

func (m *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	if m.ResizeImageFunc != nil {
		return m.ResizeImageFunc(img, width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

var _ ports.Renderer = (*Renderer)(nil)

// Canvas is a mock implementation of ports.Canvas that records drawing calls.
type Canvas struct {
	img *image.RGBA

	Rects []image.Rectangle
	Texts []string
}

func (m *Canvas) DrawImage(img image.Image, x, y int) {}

func (m *Canvas) DrawImageScaled(img image.Image, x, y, width, height int) {}

func (m *Canvas) DrawRect(x, y, w, h int, c color.Color) {
	m.Rects = append(m.Rects, image.Rect(x, y, x+w, y+h))
}

func (m *Canvas) DrawRectStroke(x, y, w, h int, c color.Color, strokeWidth float64) {
	m.Rects = append(m.Rects, image.Rect(x, y, x+w, y+h))
}

func (m *Canvas) DrawText(text string, x, y int, style ports.TextStyle) {
	m.Texts = append(m.Texts, text)
}

func (m *Canvas) ToImage() image.Image {
	return m.img
}

var _ ports.Canvas = (*Canvas)(nil)
