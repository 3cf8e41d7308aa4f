package ports

import (
	"image"
	"image/color"
	"path/filepath"
	"strings"
)

// Renderer abstracts image codec and drawing operations.
type Renderer interface {
	// CreateCanvas creates a new drawing canvas with the specified dimensions and background color.
	CreateCanvas(width, height int, bg color.Color) Canvas

	// CanvasFrom creates a canvas initialised with a copy of img.
	CanvasFrom(img image.Image) Canvas

	// DecodeImage decodes image data into an image.Image.
	DecodeImage(data []byte, format ImageFormat) (image.Image, error)

	// EncodeImage encodes an image to the specified format.
	EncodeImage(img image.Image, format ImageFormat, quality int) ([]byte, error)

	// ResizeImage resizes an image to the specified dimensions.
	ResizeImage(img image.Image, width, height int) image.Image
}

// Canvas provides drawing operations for overlays and display composition.
type Canvas interface {
	// DrawImage draws an image at the specified position.
	DrawImage(img image.Image, x, y int)

	// DrawImageScaled draws an image scaled to the specified dimensions.
	DrawImageScaled(img image.Image, x, y, width, height int)

	// DrawRect draws a filled rectangle.
	DrawRect(x, y, w, h int, c color.Color)

	// DrawRectStroke draws a rectangle outline.
	DrawRectStroke(x, y, w, h int, c color.Color, strokeWidth float64)

	// DrawText draws text with its top-left corner at the specified position.
	DrawText(text string, x, y int, style TextStyle)

	// ToImage returns the canvas as an image.Image.
	ToImage() image.Image
}

// TextStyle defines text rendering properties.
type TextStyle struct {
	FontSize float64
	FontPath string
	Color    color.Color
}

// ImageFormat specifies image encoding format.
type ImageFormat int

const (
	FormatAuto ImageFormat = iota
	FormatJPEG
	FormatPNG
	FormatBMP
)

// String returns the canonical file extension (without dot) of the format.
func (f ImageFormat) String() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatPNG:
		return "png"
	case FormatBMP:
		return "bmp"
	default:
		return "auto"
	}
}

// FormatFromExt maps a file name or bare extension to an ImageFormat.
// Unknown extensions map to FormatAuto.
func FormatFromExt(name string) ImageFormat {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(name, "."))
	}
	switch ext {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "bmp":
		return FormatBMP
	default:
		return FormatAuto
	}
}
