package export

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/framelab/pkg/adapters/logger"
	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/mocks"
	"github.com/user/framelab/pkg/pipeline"
	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/source"
)

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		cuts        []float64
		duration    float64
		mergeWithin float64
		want        []float64
	}{
		{"sorted with virtual ends", []float64{5, 2, 8}, 10, 0, []float64{0, 2, 5, 8, 10}},
		{"duplicates kept by default", []float64{3, 3}, 10, 0, []float64{0, 3, 3, 10}},
		{"out of range dropped", []float64{-1, 0, 4, 10, 12}, 10, 0, []float64{0, 4, 10}},
		{"near cuts merged", []float64{3, 3.02, 6}, 10, 0.1, []float64{0, 3, 6, 10}},
		{"cut near end merged", []float64{4, 9.95}, 10, 0.1, []float64{0, 4, 10}},
		{"no cuts", nil, 10, 0, []float64{0, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Boundaries(tt.cuts, tt.duration, tt.mergeWithin)
			if !floatsEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func openVideo(t *testing.T, fps float64, count int) source.Source {
	t.Helper()
	src, err := source.OpenVideo("in.mp4", mocks.NewVideoDecoder(20, 10, fps, count))
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func TestExecute_FramesPerSegment(t *testing.T) {
	sink := mocks.NewFrameSink("png")
	fs := mocks.NewFileSystem()
	stage := NewStage(sink, fs, nil, logger.NewNoop(), 3)

	input := pipeline.DefaultExportInput()
	input.Source = openVideo(t, 10, 100) // 10 seconds
	input.CutPoints = []float64{5, 2, 8}
	input.Destination = "/out"
	progressed := 0
	input.Progress = func(int) { progressed++ }

	result, err := stage.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !floatsEqual(result.Boundaries, []float64{0, 2, 5, 8, 10}) {
		t.Errorf("unexpected boundaries %v", result.Boundaries)
	}
	if len(result.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(result.Segments))
	}

	wantFrames := []int{20, 30, 30, 20}
	for i, seg := range result.Segments {
		dir := filepath.Join("/out", "segment_"+string(rune('1'+i))+"_frames")
		if seg.Path != dir {
			t.Errorf("segment %d: expected path %s, got %s", i+1, dir, seg.Path)
		}
		if seg.Frames != wantFrames[i] || sink.Count(dir) != wantFrames[i] {
			t.Errorf("segment %d: expected %d frames, got %d (sink %d)", i+1, wantFrames[i], seg.Frames, sink.Count(dir))
		}
		if seg.Err != nil {
			t.Errorf("segment %d: unexpected error %v", i+1, seg.Err)
		}
	}
	if result.TotalFrames() != 100 || progressed != 100 {
		t.Errorf("expected 100 frames written and reported, got %d / %d", result.TotalFrames(), progressed)
	}
}

func TestExecute_NoCutPointsWritesNothing(t *testing.T) {
	sink := mocks.NewFrameSink("png")
	fs := mocks.NewFileSystem()
	enc := &mocks.VideoEncoder{}
	stage := NewStage(sink, fs, enc, logger.NewNoop(), 2)

	input := pipeline.DefaultExportInput()
	input.Source = openVideo(t, 10, 50)
	input.Destination = "/out"

	for _, g := range []pipeline.Granularity{pipeline.GranularityFrames, pipeline.GranularityVideo} {
		input.Granularity = g
		if _, err := stage.Execute(context.Background(), input); !errors.Is(err, ErrNoCutPoints) {
			t.Errorf("%v: expected ErrNoCutPoints, got %v", g, err)
		}
	}
	if len(fs.Dirs()) != 0 || len(sink.Frames) != 0 || len(enc.BeginCalls) != 0 {
		t.Error("rejected export must not write anything")
	}
}

func TestExecute_UnwritableSegmentDoesNotAbortOthers(t *testing.T) {
	sink := mocks.NewFrameSink("png")
	fs := mocks.NewFileSystem()
	fs.MkdirAllFunc = func(path string) error {
		if strings.Contains(path, "segment_2_") {
			return errors.New("permission denied")
		}
		return nil
	}
	stage := NewStage(sink, fs, nil, logger.NewNoop(), 2)

	input := pipeline.DefaultExportInput()
	input.Source = openVideo(t, 10, 60)
	input.CutPoints = []float64{2, 4}
	input.Destination = "/out"

	result, err := stage.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	failed := result.Failed()
	if len(failed) != 1 || failed[0].Number != 2 || !errors.Is(failed[0].Err, ErrDestinationUnwritable) {
		t.Fatalf("expected only segment 2 to fail, got %+v", failed)
	}
	if result.Segments[0].Frames != 20 || result.Segments[2].Frames != 20 {
		t.Errorf("expected other segments complete, got %d and %d", result.Segments[0].Frames, result.Segments[2].Frames)
	}
}

func TestExecute_SinkFailureMarksSegment(t *testing.T) {
	sink := mocks.NewFrameSink("png")
	sink.SaveFrameFunc = func(dir string, index int, img image.Image) (string, error) {
		return "", errors.New("disk full")
	}
	stage := NewStage(sink, mocks.NewFileSystem(), nil, logger.NewNoop(), 1)

	input := pipeline.DefaultExportInput()
	input.Source = openVideo(t, 10, 30)
	input.CutPoints = []float64{1}
	input.Destination = "/out"

	result, err := stage.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Failed()) != 2 {
		t.Errorf("expected both segments failed, got %d", len(result.Failed()))
	}
}

func TestExecute_VideoLetterboxesZoomedFrames(t *testing.T) {
	enc := &mocks.VideoEncoder{}
	stage := NewStage(mocks.NewFrameSink("png"), mocks.NewFileSystem(), enc, logger.NewNoop(), 1)

	input := pipeline.DefaultExportInput()
	input.Source = openVideo(t, 10, 40)
	input.CutPoints = []float64{1.5}
	input.Granularity = pipeline.GranularityVideo
	input.Destination = "/out"
	input.Processor = pipeline.ProcessorFunc(func(ctx context.Context, f frame.Frame) (frame.Frame, error) {
		return f.Crop(image.Rect(0, 0, 5, 5)), nil
	})

	result, err := stage.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc.BeginCalls) != 2 || enc.EndCalls != 2 {
		t.Fatalf("expected one encoder session per segment, got %d begins / %d ends", len(enc.BeginCalls), enc.EndCalls)
	}
	if enc.BeginCalls[0].Path != filepath.Join("/out", "segment_1.mp4") || enc.BeginCalls[1].Path != filepath.Join("/out", "segment_2.mp4") {
		t.Errorf("unexpected paths %+v", enc.BeginCalls)
	}
	if enc.BeginCalls[0].Width != 20 || enc.BeginCalls[0].Height != 10 || enc.BeginCalls[0].FPS != 10 {
		t.Errorf("expected stream size and rate, got %+v", enc.BeginCalls[0])
	}
	for _, call := range enc.EncodeFrameCalls {
		if call.Width != 20 || call.Height != 10 {
			t.Fatalf("expected letterboxed 20x10 frames, got %dx%d", call.Width, call.Height)
		}
	}
	if result.Segments[0].Frames != 15 || result.Segments[1].Frames != 25 {
		t.Errorf("expected 15 + 25 frames, got %d + %d", result.Segments[0].Frames, result.Segments[1].Frames)
	}
}

func TestExecute_EncoderBeginFailure(t *testing.T) {
	enc := &mocks.VideoEncoder{
		BeginFunc: func(path string, w, h int, fps float64, opts ports.EncoderOptions) error {
			if strings.HasSuffix(path, "segment_1.mp4") {
				return errors.New("cannot open")
			}
			return nil
		},
	}
	stage := NewStage(mocks.NewFrameSink("png"), mocks.NewFileSystem(), enc, logger.NewNoop(), 1)

	input := pipeline.DefaultExportInput()
	input.Source = openVideo(t, 10, 40)
	input.CutPoints = []float64{2}
	input.Granularity = pipeline.GranularityVideo
	input.Destination = "/out"

	result, err := stage.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(result.Segments[0].Err, ErrDestinationUnwritable) || result.Segments[1].Err != nil {
		t.Errorf("expected only segment 1 failed: %v / %v", result.Segments[0].Err, result.Segments[1].Err)
	}
	if result.Segments[1].Frames != 20 {
		t.Errorf("expected segment 2 written, got %d frames", result.Segments[1].Frames)
	}
}

func TestExecute_RequiresVideoSource(t *testing.T) {
	stage := NewStage(mocks.NewFrameSink("png"), mocks.NewFileSystem(), nil, logger.NewNoop(), 1)
	input := pipeline.DefaultExportInput()
	input.Source = source.NewStill(frame.New(4, 4))
	input.CutPoints = []float64{1}
	if _, err := stage.Execute(context.Background(), input); !errors.Is(err, ErrNotSeekable) {
		t.Errorf("expected ErrNotSeekable, got %v", err)
	}
}
