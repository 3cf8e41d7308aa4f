package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/source"
)

// ErrDestinationUnwritable is returned when an output directory or sink cannot be
// created. It aborts only the affected segment or recording.
var ErrDestinationUnwritable = errors.New("pipeline: destination unwritable")

// Processor applies the live filter chain and zoom to a frame, so that exported
// and recorded media match what is on screen.
type Processor interface {
	Process(ctx context.Context, f frame.Frame) (frame.Frame, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, f frame.Frame) (frame.Frame, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, fr frame.Frame) (frame.Frame, error) {
	return f(ctx, fr)
}

// Granularity selects how exported or recorded frames are stored.
type Granularity int

const (
	// GranularityFrames writes numbered still images into a directory.
	GranularityFrames Granularity = iota
	// GranularityVideo writes one encoded video file.
	GranularityVideo
)

func (g Granularity) String() string {
	if g == GranularityVideo {
		return "video"
	}
	return "frames"
}

// ParseGranularity accepts "frames" or "video".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "frames", "frame", "images":
		return GranularityFrames, nil
	case "video":
		return GranularityVideo, nil
	default:
		return GranularityFrames, fmt.Errorf("pipeline: unknown output mode %q", s)
	}
}

// =============================================================================
// Export Stage Types
// =============================================================================

// ExportInput describes one export request.
type ExportInput struct {
	Source    source.Source
	Processor Processor
	// CutPoints are operator-marked timestamps in seconds, in any order.
	CutPoints   []float64
	Granularity Granularity
	Destination string
	// MergeWithin collapses cut points closer than this many seconds. Zero keeps all.
	MergeWithin  float64
	ContainerExt string
	Encoder      ports.EncoderOptions
	// Progress, if set, is called after every frame written.
	Progress func(written int)
}

// DefaultExportInput returns ExportInput with default values.
func DefaultExportInput() ExportInput {
	return ExportInput{
		Granularity:  GranularityFrames,
		ContainerExt: "mp4",
		Encoder:      ports.EncoderOptions{Quality: 23},
	}
}

// ExportResult reports what an export produced.
type ExportResult struct {
	Boundaries  []float64
	DurationSec float64
	FPS         float64
	Width       int
	Height      int
	Segments    []SegmentResult
	Elapsed     time.Duration
}

// SegmentResult describes one exported segment.
type SegmentResult struct {
	// Number is the 1-based segment number used in output names.
	Number   int
	StartSec float64
	EndSec   float64
	Path     string
	Frames   int
	Skipped  int
	Err      error
}

// Failed returns the segments that did not complete.
func (r ExportResult) Failed() []SegmentResult {
	var out []SegmentResult
	for _, s := range r.Segments {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// TotalFrames returns the number of frames written across all segments.
func (r ExportResult) TotalFrames() int {
	n := 0
	for _, s := range r.Segments {
		n += s.Frames
	}
	return n
}

// =============================================================================
// Record Stage Types
// =============================================================================

// RecordInput starts a recording of a live source.
type RecordInput struct {
	Source       source.Source
	Granularity  Granularity
	Destination  string
	ContainerExt string
	Encoder      ports.EncoderOptions
	// StartedAt names the output; zero means now.
	StartedAt time.Time
}

// RecordResult reports a finished recording.
type RecordResult struct {
	Path   string
	Frames int
	FPS    float64
	Width  int
	Height int
}
