package mocks

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/user/framelab/pkg/ports"
)

// FrameSink is an in-memory implementation of ports.FrameSink.
type FrameSink struct {
	mu sync.Mutex

	Ext           string
	SaveFrameFunc func(dir string, index int, img image.Image) (string, error)
	SaveImageFunc func(path string, img image.Image) error

	// Frames maps directory to the images saved into it, in call order.
	Frames map[string][]image.Image
	// Images maps explicit paths to saved images.
	Images map[string]image.Image
}

// NewFrameSink creates a FrameSink naming frames with the given extension.
func NewFrameSink(ext string) *FrameSink {
	return &FrameSink{
		Ext:    ext,
		Frames: make(map[string][]image.Image),
		Images: make(map[string]image.Image),
	}
}

func (m *FrameSink) SaveFrame(dir string, index int, img image.Image) (string, error) {
	if m.SaveFrameFunc != nil {
		return m.SaveFrameFunc(dir, index, img)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames[dir] = append(m.Frames[dir], img)
	return filepath.Join(dir, fmt.Sprintf("frame_%04d.%s", index, m.Ext)), nil
}

func (m *FrameSink) SaveImage(path string, img image.Image) error {
	if m.SaveImageFunc != nil {
		return m.SaveImageFunc(path, img)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Images[path] = img
	return nil
}

// Count returns how many frames were saved into dir.
func (m *FrameSink) Count(dir string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Frames[dir])
}

var _ ports.FrameSink = (*FrameSink)(nil)
