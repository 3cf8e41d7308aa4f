package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/ports"
)

// Live reads frames from a capture device as they arrive.
type Live struct {
	device int
	dev    ports.CaptureDevice
	count  int
}

// OpenLive opens the capture device with the given index.
func OpenLive(device int, dev ports.CaptureDevice) (*Live, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: device %d: no capture backend configured", ErrSourceUnavailable, device)
	}
	if err := dev.Open(device); err != nil {
		return nil, fmt.Errorf("%w: device %d: %w", ErrSourceUnavailable, device, err)
	}
	return &Live{device: device, dev: dev}, nil
}

func (l *Live) Kind() Kind { return KindLive }

func (l *Live) Read() (frame.Frame, error) {
	img, err := l.dev.Read()
	if deviceGone(err) {
		return frame.Frame{}, fmt.Errorf("%w: device %d: %w", ErrEndOfStream, l.device, err)
	}
	if err != nil {
		return frame.Frame{}, fmt.Errorf("%w: device %d: %w", ErrDecode, l.device, err)
	}
	f := frame.FromImage(img)
	if f.IsZero() {
		return frame.Frame{}, fmt.Errorf("%w: device %d: empty frame", ErrDecode, l.device)
	}
	l.count++
	return f, nil
}

// deviceGone reports read errors that mean the device stream has ended rather
// than a single bad frame.
func deviceGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed)
}

func (l *Live) SeekFrame(int) error { return ErrSeekUnsupported }

func (l *Live) SeekTime(float64) error { return ErrSeekUnsupported }

// Properties reports what the device currently advertises; Position counts frames read.
func (l *Live) Properties() Properties {
	info := l.dev.Info()
	p := Properties{
		Width:    info.Width,
		Height:   info.Height,
		FPS:      info.FPS,
		Position: l.count,
	}
	if info.FPS > 0 {
		p.PositionSec = float64(l.count) / info.FPS
	}
	return p
}

func (l *Live) Close() error {
	return l.dev.Close()
}
