// Package session holds the explicit per-pipeline state shared by playback,
// export and recording: the open source, the original and current frames, the
// filter chain, the zoom and the cut points.
package session

import (
	"context"
	"errors"
	"image"

	"github.com/google/uuid"

	"github.com/user/framelab/pkg/filter"
	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/region"
	"github.com/user/framelab/pkg/source"
)

var (
	// ErrNoSource is returned by operations that need an open source.
	ErrNoSource = errors.New("session: no source open")
	// ErrNoFrame is returned when no frame has been read yet.
	ErrNoFrame = errors.New("session: no frame loaded")
	// ErrNotVideo is returned when a video-only operation is used on another kind of source.
	ErrNotVideo = errors.New("session: source is not a video")
)

// Options configures a new Session.
type Options struct {
	CanvasWidth  int
	CanvasHeight int
	Env          filter.Env
}

// Session is the state of one frame pipeline. It is not safe for concurrent use;
// the playback loop owns it and serialises every access.
type Session struct {
	id string

	src      source.Source
	original frame.Frame
	current  frame.Frame
	shown    int // stream index of original, -1 before the first frame

	chain filter.Chain
	mode  filter.Mode
	zoom  region.Zoom
	env   filter.Env

	cutPoints []float64

	canvasW, canvasH int
	viewport         region.Viewport
}

// New creates an empty session.
func New(opts Options) *Session {
	if opts.CanvasWidth <= 0 {
		opts.CanvasWidth = 800
	}
	if opts.CanvasHeight <= 0 {
		opts.CanvasHeight = 600
	}
	return &Session{
		id:      uuid.NewString(),
		shown:   -1,
		env:     opts.Env,
		canvasW: opts.CanvasWidth,
		canvasH: opts.CanvasHeight,
	}
}

// ID returns the unique identifier of the session.
func (s *Session) ID() string { return s.id }

// Source returns the open source, or nil.
func (s *Session) Source() source.Source { return s.src }

// Original returns the last frame read from the source, untouched by filters.
func (s *Session) Original() frame.Frame { return s.original }

// Current returns the last processed frame.
func (s *Session) Current() frame.Frame { return s.current }

// Mode returns the processing mode.
func (s *Session) Mode() filter.Mode { return s.mode }

// Chain returns the active filter operations in order.
func (s *Session) Chain() []filter.Op { return s.chain.Ops() }

// Zoom returns the zoom state.
func (s *Session) Zoom() region.Zoom { return s.zoom }

// Env returns the filter environment.
func (s *Session) Env() filter.Env { return s.env }

// SetSource replaces the open source. The previous source is closed and the
// frames, chain, zoom and cut points are cleared.
func (s *Session) SetSource(src source.Source) error {
	err := s.CloseSource()
	s.src = src
	return err
}

// CloseSource closes the open source, if any, and resets all per-source state.
func (s *Session) CloseSource() error {
	var err error
	if s.src != nil {
		err = s.src.Close()
	}
	s.src = nil
	s.original = frame.Frame{}
	s.current = frame.Frame{}
	s.shown = -1
	s.chain.Clear()
	s.zoom.Clear()
	s.cutPoints = nil
	return err
}

// SetMode changes how the next filter invocation composes with earlier ones.
func (s *Session) SetMode(m filter.Mode) {
	s.mode = m
}

// Process runs the chain over f and applies the zoom. It does not touch the
// session's frames, so exporters can reuse it.
func (s *Session) Process(ctx context.Context, f frame.Frame) (frame.Frame, error) {
	out, err := s.chain.Run(ctx, f, s.env)
	if err != nil {
		return frame.Frame{}, err
	}
	return s.zoom.Apply(out), nil
}

// Ingest stores f as the original frame and recomputes the current frame.
func (s *Session) Ingest(ctx context.Context, f frame.Frame) (frame.Frame, error) {
	s.original = f
	return s.Refresh(ctx)
}

// IngestAt is Ingest for the frame at stream index i. The index drives
// Position, so cut points and the on-screen clock follow the displayed frame
// rather than the source's read cursor.
func (s *Session) IngestAt(ctx context.Context, f frame.Frame, i int) (frame.Frame, error) {
	s.shown = i
	return s.Ingest(ctx, f)
}

// Position returns the stream time in seconds of the frame on screen.
func (s *Session) Position() float64 {
	if s.src == nil || s.shown <= 0 {
		return 0
	}
	fps := s.src.Properties().FPS
	if fps <= 0 {
		return 0
	}
	return float64(s.shown) / fps
}

// Refresh recomputes the current frame from the original through the chain and zoom.
func (s *Session) Refresh(ctx context.Context) (frame.Frame, error) {
	if s.original.IsZero() {
		return frame.Frame{}, ErrNoFrame
	}
	cur, err := s.Process(ctx, s.original)
	if err != nil {
		return frame.Frame{}, err
	}
	s.current = cur
	s.viewport = region.Fit(cur.Width(), cur.Height(), s.canvasW, s.canvasH)
	return cur, nil
}

// ApplyFilter records op in the chain according to the mode and re-renders.
// In independent mode the result is op applied to the original frame; in cascade
// mode it is op applied to the previous result.
func (s *Session) ApplyFilter(ctx context.Context, op filter.Op) (frame.Frame, error) {
	s.chain.Add(op, s.mode)
	if s.original.IsZero() {
		return frame.Frame{}, nil
	}
	return s.Refresh(ctx)
}

// Restore clears the chain so the original frame is shown again.
func (s *Session) Restore(ctx context.Context) (frame.Frame, error) {
	s.chain.Clear()
	if s.original.IsZero() {
		return frame.Frame{}, nil
	}
	return s.Refresh(ctx)
}

// Resize changes the display canvas size.
func (s *Session) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.canvasW, s.canvasH = width, height
	if !s.current.IsZero() {
		s.viewport = region.Fit(s.current.Width(), s.current.Height(), width, height)
	}
}

// Viewport returns how the current frame is fitted into the canvas.
func (s *Session) Viewport() region.Viewport { return s.viewport }

// Display builds what the display should show for the current frame.
func (s *Session) Display(overlay *image.Rectangle) ports.DisplayFrame {
	df := ports.DisplayFrame{
		Image:    s.current.Image(),
		Viewport: s.viewport.Port(),
		Overlay:  overlay,
	}
	df.PositionSec = s.Position()
	return df
}
