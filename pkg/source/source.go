// Package source provides uniform frame access to still images, video files and
// live capture devices.
package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/ports"
)

var (
	// ErrSourceUnavailable is returned when a path or device cannot be opened.
	ErrSourceUnavailable = errors.New("source: unavailable")
	// ErrDecode is returned when a single frame cannot be decoded. The source stays usable.
	ErrDecode = errors.New("source: decode failed")
	// ErrEndOfStream is returned by Read once every frame has been consumed.
	ErrEndOfStream = errors.New("source: end of stream")
	// ErrSeekUnsupported is returned by live sources, which cannot be repositioned.
	ErrSeekUnsupported = errors.New("source: seek unsupported")
)

// Kind is the variety of a Source.
type Kind int

const (
	KindStill Kind = iota
	KindVideo
	KindLive
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindLive:
		return "live"
	default:
		return "image"
	}
}

// ParseKind accepts "image" (or "still"), "video" and "live" (or "camera").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image", "still":
		return KindStill, nil
	case "video":
		return KindVideo, nil
	case "live", "camera":
		return KindLive, nil
	default:
		return KindStill, fmt.Errorf("source: unknown mode %q", s)
	}
}

// Properties are the stream attributes reported by a Source.
type Properties struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	// Position is the index of the next frame Read will return.
	Position int
	// PositionSec is Position expressed in seconds.
	PositionSec float64
	DurationSec float64
}

// Source yields frames from an image, a video file or a capture device.
type Source interface {
	Kind() Kind
	// Read returns the frame at the current position and advances by one.
	Read() (frame.Frame, error)
	// SeekFrame moves the read position to a frame index.
	SeekFrame(index int) error
	// SeekTime moves the read position to the frame shown at the given time.
	SeekTime(seconds float64) error
	Properties() Properties
	Close() error
}

// Reference identifies what to open.
type Reference struct {
	Kind   Kind
	Path   string
	Device int
}

func (r Reference) String() string {
	if r.Kind == KindLive {
		return fmt.Sprintf("device %d", r.Device)
	}
	return r.Path
}

// Deps are the collaborators a Source may need. Only the ones relevant to the
// requested Kind must be set.
type Deps struct {
	FileSystem ports.FileSystem
	Renderer   ports.Renderer
	Decoder    ports.VideoDecoder
	Capture    ports.CaptureDevice
	Logger     ports.Logger
}

// Open creates the Source described by ref.
func Open(ref Reference, deps Deps) (Source, error) {
	switch ref.Kind {
	case KindStill:
		return OpenStill(ref.Path, deps.FileSystem, deps.Renderer)
	case KindVideo:
		return OpenVideo(ref.Path, deps.Decoder)
	case KindLive:
		return OpenLive(ref.Device, deps.Capture)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %d", ErrSourceUnavailable, int(ref.Kind))
	}
}

// FrameAt converts a time to the index of the frame shown at that time.
// The small epsilon keeps exact multiples of the frame period from rounding down.
func FrameAt(seconds, fps float64) int {
	if fps <= 0 || seconds <= 0 {
		return 0
	}
	return int(seconds*fps + 1e-9)
}
