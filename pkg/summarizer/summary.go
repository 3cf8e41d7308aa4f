// Package summarizer provides report generation for export runs.
package summarizer

import "time"

// Summary contains everything reported about one export run.
type Summary struct {
	GeneratedAt time.Time

	Source     SourceInfo
	Processing ProcessingInfo
	Export     ExportInfo
	Segments   []SegmentInfo
}

// SourceInfo describes the exported video.
type SourceInfo struct {
	Path        string
	Width       int
	Height      int
	FPS         float64
	DurationSec float64
	Codec       string
}

// ProcessingInfo is the filter state applied to every exported frame.
type ProcessingInfo struct {
	Mode  string
	Chain []string
	// Zoom is the zoom rectangle in source pixels, empty when not zoomed.
	Zoom string
}

// ExportInfo describes the export request and its outcome.
type ExportInfo struct {
	Granularity string
	Destination string
	CutPoints   []float64
	Boundaries  []float64
	MergeWithin float64
	Codec       string
	Quality     int
	Elapsed     time.Duration
}

// SegmentInfo describes one written segment.
type SegmentInfo struct {
	Number   int
	StartSec float64
	EndSec   float64
	Path     string
	Frames   int
	Skipped  int
	Error    string
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// TotalFrames returns the frames written across all segments.
func (s *Summary) TotalFrames() int {
	n := 0
	for _, seg := range s.Segments {
		n += seg.Frames
	}
	return n
}

// FailedSegments returns the number of segments with an error.
func (s *Summary) FailedSegments() int {
	n := 0
	for _, seg := range s.Segments {
		if seg.Error != "" {
			n++
		}
	}
	return n
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSource sets source information.
func (b *Builder) WithSource(source SourceInfo) *Builder {
	b.summary.Source = source
	return b
}

// WithProcessing sets the processing mode and filter chain.
func (b *Builder) WithProcessing(mode string, chain []string, zoom string) *Builder {
	b.summary.Processing = ProcessingInfo{
		Mode:  mode,
		Chain: append([]string(nil), chain...),
		Zoom:  zoom,
	}
	return b
}

// WithExport sets the export request details.
func (b *Builder) WithExport(export ExportInfo) *Builder {
	b.summary.Export = export
	return b
}

// AddSegment appends one segment.
func (b *Builder) AddSegment(seg SegmentInfo) *Builder {
	b.summary.Segments = append(b.summary.Segments, seg)
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
