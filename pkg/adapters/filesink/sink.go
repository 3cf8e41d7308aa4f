// Package filesink stores numbered frames and single images through a FileSystem.
package filesink

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/user/framelab/pkg/ports"
)

// ErrUnsupportedFormat is returned for file extensions no encoder handles.
var ErrUnsupportedFormat = errors.New("filesink: unsupported image format")

// DefaultJPEGQuality is used for JPEG output when no quality is configured.
const DefaultJPEGQuality = 95

// Sink implements ports.FrameSink.
type Sink struct {
	ext      string
	format   ports.ImageFormat
	quality  int
	fs       ports.FileSystem
	renderer ports.Renderer
}

// New creates a sink that writes frames with the given extension ("png", "jpg", "bmp").
// quality applies to JPEG only; 0 selects DefaultJPEGQuality.
func New(ext string, quality int, fs ports.FileSystem, renderer ports.Renderer) (*Sink, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	format := ports.FormatFromExt(ext)
	if format == ports.FormatAuto {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	return &Sink{
		ext:      ext,
		format:   format,
		quality:  quality,
		fs:       fs,
		renderer: renderer,
	}, nil
}

// FrameName returns the file name of frame index, e.g. frame_0007.png.
func FrameName(index int, ext string) string {
	return fmt.Sprintf("frame_%04d.%s", index, ext)
}

// Ext returns the frame file extension.
func (s *Sink) Ext() string {
	return s.ext
}

// SaveFrame encodes img and stores it as frame_<NNNN>.<ext> under dir.
func (s *Sink) SaveFrame(dir string, index int, img image.Image) (string, error) {
	if err := s.fs.MkdirAll(dir); err != nil {
		return "", err
	}
	data, err := s.renderer.EncodeImage(img, s.format, s.quality)
	if err != nil {
		return "", fmt.Errorf("encode frame %d: %w", index, err)
	}
	path := filepath.Join(dir, FrameName(index, s.ext))
	if err := s.fs.WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveImage encodes img in the format named by the extension of path.
func (s *Sink) SaveImage(path string, img image.Image) error {
	format := ports.FormatFromExt(path)
	if format == ports.FormatAuto {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	data, err := s.renderer.EncodeImage(img, format, s.quality)
	if err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := s.fs.MkdirAll(dir); err != nil {
			return err
		}
	}
	return s.fs.WriteFile(path, data)
}

// Ensure Sink implements ports.FrameSink
var _ ports.FrameSink = (*Sink)(nil)
