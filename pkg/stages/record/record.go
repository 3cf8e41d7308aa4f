// Package record implements the recording session that persists processed live
// frames to a frame directory or a single video file until stopped.
package record

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/pipeline"
	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/source"
)

var (
	// ErrNotLive is returned when recording is requested for a non-live source.
	ErrNotLive = errors.New("record: source is not a live capture")
	// ErrDestinationUnwritable is returned when the recording sink cannot be opened or written.
	ErrDestinationUnwritable = pipeline.ErrDestinationUnwritable
)

// timestampLayout names recordings by their start time.
const timestampLayout = "20060102_150405"

// Session persists frames while active. It is driven from the playback loop and
// is not safe for concurrent use.
type Session struct {
	sink    ports.FrameSink
	fs      ports.FileSystem
	encoder ports.VideoEncoder
	logger  ports.Logger

	active      bool
	granularity pipeline.Granularity
	path        string
	frames      int
	fps         float64
	width       int
	height      int
	last        pipeline.RecordResult
}

// New creates an inactive session. encoder may be nil when only frame
// recordings are needed.
func New(sink ports.FrameSink, fs ports.FileSystem, encoder ports.VideoEncoder, logger ports.Logger) *Session {
	return &Session{
		sink:    sink,
		fs:      fs,
		encoder: encoder,
		logger:  logger.WithComponent("record"),
	}
}

// Name returns the base name of a recording started at t.
func Name(t time.Time) string {
	return "recording_" + t.Format(timestampLayout)
}

// Start opens the sink and fixes fps and frame size from the source's current
// properties. Calling Start on an active session stops it instead.
func (s *Session) Start(input pipeline.RecordInput) error {
	if s.active {
		_, err := s.Stop()
		return err
	}
	if input.Source == nil || input.Source.Kind() != source.KindLive {
		return ErrNotLive
	}

	props := input.Source.Properties()
	if props.Width <= 0 || props.Height <= 0 {
		return fmt.Errorf("record: device reports invalid size %dx%d", props.Width, props.Height)
	}
	fps := props.FPS
	if fps <= 0 {
		fps = 30
	}
	started := input.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	ext := input.ContainerExt
	if ext == "" {
		ext = "mp4"
	}

	name := Name(started)
	switch input.Granularity {
	case pipeline.GranularityVideo:
		if s.encoder == nil {
			return fmt.Errorf("%w: no video encoder available", ErrDestinationUnwritable)
		}
		if err := s.fs.MkdirAll(input.Destination); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, input.Destination, err)
		}
		s.path = filepath.Join(input.Destination, name+"."+ext)
		if err := s.encoder.Begin(s.path, props.Width, props.Height, fps, input.Encoder); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, s.path, err)
		}
	default:
		s.path = filepath.Join(input.Destination, name)
		if err := s.fs.MkdirAll(s.path); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, s.path, err)
		}
	}

	s.active = true
	s.granularity = input.Granularity
	s.frames = 0
	s.fps = fps
	s.width = props.Width
	s.height = props.Height
	s.logger.Info("Recording started: %s (%dx%d @ %.2f fps)", s.path, s.width, s.height, s.fps)
	return nil
}

// LastResult describes the most recently stopped recording.
func (s *Session) LastResult() pipeline.RecordResult { return s.last }

// Active reports whether frames are being persisted.
func (s *Session) Active() bool { return s.active }

// Path returns the output of the current or last recording.
func (s *Session) Path() string { return s.path }

// Append persists f, letterboxed to the size fixed at Start when it differs
// (a zoomed crop or a device that changed mode).
// A write failure ends the session.
func (s *Session) Append(f frame.Frame) error {
	if !s.active {
		return nil
	}
	if f.Width() != s.width || f.Height() != s.height {
		f = f.Letterbox(s.width, s.height)
	}

	var err error
	if s.granularity == pipeline.GranularityVideo {
		ts := int(float64(s.frames) * 1000 / s.fps)
		err = s.encoder.EncodeFrame(f.Image(), ts)
	} else {
		_, err = s.sink.SaveFrame(s.path, s.frames, f.Image())
	}
	if err != nil {
		_, _ = s.Stop()
		return fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, s.path, err)
	}
	s.frames++
	return nil
}

// Stop flushes and releases the sink. Stopping an inactive session does nothing.
func (s *Session) Stop() (pipeline.RecordResult, error) {
	if !s.active {
		return pipeline.RecordResult{}, nil
	}
	s.active = false
	result := pipeline.RecordResult{
		Path:   s.path,
		Frames: s.frames,
		FPS:    s.fps,
		Width:  s.width,
		Height: s.height,
	}
	s.last = result

	if s.granularity == pipeline.GranularityVideo {
		if err := s.encoder.End(); err != nil {
			return result, fmt.Errorf("finalize %s: %w", s.path, err)
		}
	}
	s.logger.Info("Recording stopped: %d frames written to %s", s.frames, s.path)
	return result, nil
}
