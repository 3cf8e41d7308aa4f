package mocks

import (
	"image"
	"image/color"
	"sync"

	"github.com/user/framelab/pkg/ports"
)

// CaptureDevice is a mock implementation of ports.CaptureDevice producing
// solid frames whose red channel counts the frames read.
type CaptureDevice struct {
	mu sync.Mutex

	CurrentInfo ports.CaptureInfo

	OpenFunc func(device int) error
	ReadFunc func() (image.Image, error)

	OpenedDevice int
	Reads        int
	Closed       bool
}

// NewCaptureDevice creates a device reporting the given size and rate.
func NewCaptureDevice(width, height int, fps float64) *CaptureDevice {
	return &CaptureDevice{
		CurrentInfo:  ports.CaptureInfo{Width: width, Height: height, FPS: fps},
		OpenedDevice: -1,
	}
}

func (m *CaptureDevice) Open(device int) error {
	if m.OpenFunc != nil {
		if err := m.OpenFunc(device); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenedDevice = device
	return nil
}

func (m *CaptureDevice) Read() (image.Image, error) {
	m.mu.Lock()
	n := m.Reads
	m.Reads++
	info := m.CurrentInfo
	m.mu.Unlock()

	if m.ReadFunc != nil {
		return m.ReadFunc()
	}
	return SolidImage(info.Width, info.Height, color.RGBA{R: uint8(n), G: 90, B: 10, A: 255}), nil
}

func (m *CaptureDevice) Info() ports.CaptureInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentInfo
}

// SetInfo changes what the device reports, as a camera might after renegotiation.
func (m *CaptureDevice) SetInfo(info ports.CaptureInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentInfo = info
}

func (m *CaptureDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

var _ ports.CaptureDevice = (*CaptureDevice)(nil)
