// Package export implements the segment export stage: it re-reads a video
// between consecutive cut points and writes every span as a frame sequence or an
// encoded video file.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/pipeline"
	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/source"
)

var (
	// ErrNoCutPoints rejects an export request without cut points. Nothing is written.
	ErrNoCutPoints = errors.New("export: no cut points marked")
	// ErrNotSeekable is returned for sources that cannot be repositioned by time.
	ErrNotSeekable = errors.New("export: source is not a seekable video")
	// ErrDestinationUnwritable marks a segment whose directory or sink could not be opened.
	ErrDestinationUnwritable = pipeline.ErrDestinationUnwritable
)

// Stage exports the segments between cut points.
type Stage struct {
	sink       ports.FrameSink
	fs         ports.FileSystem
	encoder    ports.VideoEncoder
	logger     ports.Logger
	numWorkers int
}

// NewStage creates a new export stage. encoder may be nil when only frame
// sequences are exported.
func NewStage(sink ports.FrameSink, fs ports.FileSystem, encoder ports.VideoEncoder, logger ports.Logger, numWorkers int) *Stage {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Stage{
		sink:       sink,
		fs:         fs,
		encoder:    encoder,
		logger:     logger.WithComponent("export"),
		numWorkers: numWorkers,
	}
}

// SegmentFramesDir returns the frame directory of segment n under dest.
func SegmentFramesDir(dest string, n int) string {
	return filepath.Join(dest, fmt.Sprintf("segment_%d_frames", n))
}

// SegmentVideoPath returns the video file of segment n under dest.
func SegmentVideoPath(dest string, n int, ext string) string {
	return filepath.Join(dest, fmt.Sprintf("segment_%d.%s", n, ext))
}

// Execute writes every segment. Per-segment failures are recorded in the result
// and do not stop later segments; cancellation stops the export and returns what
// was completed.
func (s *Stage) Execute(ctx context.Context, input pipeline.ExportInput) (pipeline.ExportResult, error) {
	result := pipeline.ExportResult{}
	started := time.Now()

	if len(input.CutPoints) == 0 {
		return result, ErrNoCutPoints
	}
	if input.Source == nil || input.Source.Kind() != source.KindVideo {
		return result, ErrNotSeekable
	}
	if input.Granularity == pipeline.GranularityVideo && s.encoder == nil {
		return result, fmt.Errorf("%w: no video encoder available", ErrDestinationUnwritable)
	}
	if input.ContainerExt == "" {
		input.ContainerExt = "mp4"
	}

	props := input.Source.Properties()
	result.DurationSec = props.DurationSec
	result.FPS = props.FPS
	result.Width = props.Width
	result.Height = props.Height
	result.Boundaries = Boundaries(input.CutPoints, props.DurationSec, input.MergeWithin)

	s.logger.Info("Exporting %d segments as %s to %s", len(result.Boundaries)-1, input.Granularity, input.Destination)

	written := 0
	progress := func() {
		written++
		if input.Progress != nil {
			input.Progress(written)
		}
	}

	for i := 0; i+1 < len(result.Boundaries); i++ {
		seg := pipeline.SegmentResult{
			Number:   i + 1,
			StartSec: result.Boundaries[i],
			EndSec:   result.Boundaries[i+1],
		}

		var err error
		if input.Granularity == pipeline.GranularityVideo {
			err = s.exportVideo(ctx, input, props, &seg, progress)
		} else {
			err = s.exportFrames(ctx, input, &seg, progress)
		}
		if err != nil && ctx.Err() != nil {
			result.Segments = append(result.Segments, seg)
			result.Elapsed = time.Since(started)
			return result, ctx.Err()
		}
		if err != nil {
			seg.Err = err
			s.logger.Error("Segment %d failed: %v", seg.Number, err)
		} else {
			s.logger.Debug("Segment %d: %d frames (%.2fs - %.2fs)", seg.Number, seg.Frames, seg.StartSec, seg.EndSec)
		}
		result.Segments = append(result.Segments, seg)
	}

	result.Elapsed = time.Since(started)
	s.logger.Info("Export completed: %d frames in %d segments", result.TotalFrames(), len(result.Segments))
	return result, nil
}

// readSegment seeks to the segment start and calls emit with every processed
// frame whose position lies before the segment end.
func (s *Stage) readSegment(ctx context.Context, input pipeline.ExportInput, seg *pipeline.SegmentResult, emit func(frame.Frame) error) error {
	src := input.Source
	if err := src.SeekTime(seg.StartSec); err != nil {
		return fmt.Errorf("seek to %.3fs: %w", seg.StartSec, err)
	}
	for src.Properties().PositionSec < seg.EndSec {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := src.Read()
		if errors.Is(err, source.ErrEndOfStream) {
			break
		}
		if err != nil {
			s.logger.Warn("Skipping frame in segment %d: %v", seg.Number, err)
			seg.Skipped++
			continue
		}
		if input.Processor != nil {
			f, err = input.Processor.Process(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("Skipping frame in segment %d: %v", seg.Number, err)
				seg.Skipped++
				continue
			}
		}
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

type frameJob struct {
	index int
	img   image.Image
}

// exportFrames writes numbered images. Reading stays sequential; encoding and
// writing run on a bounded worker pool.
func (s *Stage) exportFrames(ctx context.Context, input pipeline.ExportInput, seg *pipeline.SegmentResult, progress func()) error {
	dir := SegmentFramesDir(input.Destination, seg.Number)
	seg.Path = dir
	if err := s.fs.MkdirAll(dir); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, dir, err)
	}

	jobs := make(chan frameJob, s.numWorkers)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		writeErr error
		saved    int
	)
	for w := 0; w < s.numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				_, err := s.sink.SaveFrame(dir, job.index, job.img)
				mu.Lock()
				if err != nil {
					if writeErr == nil {
						writeErr = fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, dir, err)
					}
				} else {
					saved++
					progress()
				}
				mu.Unlock()
			}
		}()
	}

	next := 0
	readErr := s.readSegment(ctx, input, seg, func(f frame.Frame) error {
		mu.Lock()
		failed := writeErr
		mu.Unlock()
		if failed != nil {
			return failed
		}
		jobs <- frameJob{index: next, img: f.Image()}
		next++
		return nil
	})
	close(jobs)
	wg.Wait()

	seg.Frames = saved
	if readErr != nil {
		return readErr
	}
	return writeErr
}

// exportVideo encodes the segment into one file at the stream's size and rate.
// Frames of another size, such as zoomed crops, are letterboxed to fit.
func (s *Stage) exportVideo(ctx context.Context, input pipeline.ExportInput, props source.Properties, seg *pipeline.SegmentResult, progress func()) error {
	path := SegmentVideoPath(input.Destination, seg.Number, input.ContainerExt)
	seg.Path = path
	if err := s.fs.MkdirAll(input.Destination); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, input.Destination, err)
	}
	if err := s.encoder.Begin(path, props.Width, props.Height, props.FPS, input.Encoder); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, path, err)
	}

	err := s.readSegment(ctx, input, seg, func(f frame.Frame) error {
		if f.Width() != props.Width || f.Height() != props.Height {
			f = f.Letterbox(props.Width, props.Height)
		}
		ts := int(float64(seg.Frames) * 1000 / props.FPS)
		if err := s.encoder.EncodeFrame(f.Image(), ts); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, path, err)
		}
		seg.Frames++
		progress()
		return nil
	})

	if endErr := s.encoder.End(); endErr != nil && err == nil {
		err = fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, path, endErr)
	}
	return err
}
