package orchestrator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/framelab/pkg/adapters/logger"
	"github.com/user/framelab/pkg/filter"
	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/mocks"
	"github.com/user/framelab/pkg/pipeline"
	"github.com/user/framelab/pkg/playback"
	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/source"
	"github.com/user/framelab/pkg/stages/export"
)

type fixture struct {
	orch     *Orchestrator
	display  *mocks.Display
	sink     *mocks.FrameSink
	fs       *mocks.FileSystem
	encoder  *mocks.VideoEncoder
	capture  *mocks.CaptureDevice
	renderer *mocks.Renderer
	ctx      context.Context
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y), B: 30, A: 255})
		}
	}
	return img
}

// start runs an orchestrator on a 100x100 canvas. Ticks only happen when a test
// asks for them.
func start(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		display:  &mocks.Display{},
		sink:     mocks.NewFrameSink("png"),
		fs:       mocks.NewFileSystem(),
		encoder:  &mocks.VideoEncoder{},
		capture:  mocks.NewCaptureDevice(32, 24, 30),
		renderer: &mocks.Renderer{},
	}
	f.renderer.DecodeImageFunc = func([]byte, ports.ImageFormat) (image.Image, error) {
		return gradient(100, 100), nil
	}

	cfg := DefaultConfig()
	cfg.CanvasWidth = 100
	cfg.CanvasHeight = 100
	cfg.Playback.BaseInterval = time.Hour
	cfg.LiveDevice = 2
	cfg.RecordDir = "rec"
	cfg.RegionDir = "regions"

	f.orch = New(cfg, Deps{
		Display:    f.display,
		Sink:       f.sink,
		FileSystem: f.fs,
		Renderer:   f.renderer,
		Decoder:    mocks.NewVideoDecoder(64, 48, 10, 20),
		Capture:    f.capture,
		Encoder:    f.encoder,
		Logger:     logger.NewNoop(),
		Workers:    2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v", err)
		}
	})
	f.ctx = ctx
	return f
}

func (f *fixture) openStill(t *testing.T) {
	t.Helper()
	if err := f.fs.WriteFile("photo.png", []byte("png")); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.OpenSource(f.ctx, source.Reference{Kind: source.KindStill, Path: "photo.png"}); err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}
}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	err := f.orch.Controller().Do(f.ctx, func(c *playback.Controller) error { return c.Tick(f.ctx) })
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
}

func lastFrame(t *testing.T, d *mocks.Display) frame.Frame {
	t.Helper()
	df, ok := d.Last()
	if !ok {
		t.Fatal("nothing was displayed")
	}
	return frame.FromImage(df.Image)
}

func TestOpenSource_StillIsShownPaused(t *testing.T) {
	f := start(t)
	f.openStill(t)

	st, err := f.orch.Status(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind != source.KindStill || st.State != playback.Paused {
		t.Errorf("expected paused still, got %s / %s", st.Kind, st.State)
	}
	if st.Source != "photo.png" {
		t.Errorf("expected source photo.png, got %q", st.Source)
	}
	if f.display.Count() == 0 {
		t.Error("expected the still to be displayed")
	}
}

func TestOpenSource_MissingFile(t *testing.T) {
	f := start(t)
	err := f.orch.OpenSource(f.ctx, source.Reference{Kind: source.KindStill, Path: "missing.png"})
	if !errors.Is(err, source.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestApplyFilterAndRestore(t *testing.T) {
	f := start(t)
	f.openStill(t)

	if err := f.orch.ApplyFilter(f.ctx, "grayscale"); err != nil {
		t.Fatal(err)
	}
	if !lastFrame(t, f.display).IsGray() {
		t.Error("expected grayscale frame on display")
	}

	if err := f.orch.RestoreOriginal(f.ctx); err != nil {
		t.Fatal(err)
	}
	if lastFrame(t, f.display).IsGray() {
		t.Error("expected original colours after restore")
	}
	st, _ := f.orch.Status(f.ctx)
	if len(st.Chain) != 0 {
		t.Errorf("expected empty chain, got %v", st.Chain)
	}
}

func TestApplyFilter_Unknown(t *testing.T) {
	f := start(t)
	if err := f.orch.ApplyFilter(f.ctx, "posterize"); !errors.Is(err, filter.ErrUnknownFilter) {
		t.Errorf("expected ErrUnknownFilter, got %v", err)
	}
}

func TestSelectProcessingMode(t *testing.T) {
	f := start(t)
	f.openStill(t)

	if err := f.orch.SelectProcessingMode(f.ctx, filter.ModeCascade); err != nil {
		t.Fatal(err)
	}
	_ = f.orch.ApplyFilter(f.ctx, "blur")
	_ = f.orch.ApplyFilter(f.ctx, "sharpen")

	st, _ := f.orch.Status(f.ctx)
	if st.Mode != filter.ModeCascade || len(st.Chain) != 2 {
		t.Errorf("expected cascade chain of 2, got %s %v", st.Mode, st.Chain)
	}
}

func TestRegion_ExtractAndZoom(t *testing.T) {
	f := start(t)
	f.openStill(t)

	if err := f.orch.BeginRegion(f.ctx, image.Pt(10, 10)); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.UpdateRegion(f.ctx, image.Pt(30, 30)); err != nil {
		t.Fatal(err)
	}
	if df, _ := f.display.Last(); df.Overlay == nil {
		t.Error("expected selection overlay while dragging")
	}
	r, err := f.orch.EndRegion(f.ctx, image.Pt(50, 50))
	if err != nil {
		t.Fatal(err)
	}
	if r != image.Rect(10, 10, 50, 50) {
		t.Errorf("expected source rect (10,10)-(50,50), got %v", r)
	}

	path, err := f.orch.ExtractRegion(f.ctx, "roi.png")
	if err != nil {
		t.Fatal(err)
	}
	img, ok := f.sink.Images[path]
	if !ok {
		t.Fatalf("expected region saved to %s", path)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 40 {
		t.Errorf("expected 40x40 crop, got %v", img.Bounds())
	}

	zpath, err := f.orch.ZoomRegion(f.ctx, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(zpath, filepath.Join("regions", "zoom_2x_")) {
		t.Errorf("unexpected default zoom path %s", zpath)
	}
	if b := f.sink.Images[zpath].Bounds(); b.Dx() != 80 || b.Dy() != 80 {
		t.Errorf("expected 80x80 zoom, got %v", b)
	}

	if err := f.orch.ApplyZoom(f.ctx); err != nil {
		t.Fatal(err)
	}
	st, _ := f.orch.Status(f.ctx)
	if !st.Zoomed {
		t.Error("expected persistent zoom")
	}
	if _, err := f.orch.ExtractRegion(f.ctx, ""); !errors.Is(err, ErrNoRegion) {
		t.Errorf("expected ErrNoRegion after zoom consumed the region, got %v", err)
	}

	if err := f.orch.ClearZoom(f.ctx); err != nil {
		t.Fatal(err)
	}
	st, _ = f.orch.Status(f.ctx)
	if st.Zoomed {
		t.Error("expected zoom cleared")
	}
}

func TestExtractRegion_NoSelection(t *testing.T) {
	f := start(t)
	f.openStill(t)
	if _, err := f.orch.ExtractRegion(f.ctx, "x.png"); !errors.Is(err, ErrNoRegion) {
		t.Errorf("expected ErrNoRegion, got %v", err)
	}
}

func TestPlaybackCommands(t *testing.T) {
	f := start(t)
	if err := f.orch.OpenSource(f.ctx, source.Reference{Kind: source.KindVideo, Path: "clip.mp4"}); err != nil {
		t.Fatal(err)
	}

	state, err := f.orch.TogglePause(f.ctx)
	if err != nil || state != playback.Paused {
		t.Errorf("expected paused, got %s (%v)", state, err)
	}
	speed, _ := f.orch.SpeedUp(f.ctx)
	if speed != 1.5 {
		t.Errorf("expected speed 1.5, got %v", speed)
	}
	speed, _ = f.orch.SlowDown(f.ctx)
	if speed != 1.125 {
		t.Errorf("expected speed 1.125, got %v", speed)
	}
	rev, _ := f.orch.ToggleDirection(f.ctx)
	if !rev {
		t.Error("expected reverse playback")
	}
}

func TestMarkCutPoint_RequiresVideo(t *testing.T) {
	f := start(t)
	f.openStill(t)
	if _, _, err := f.orch.MarkCutPoint(f.ctx); err == nil {
		t.Error("expected error marking a cut point on a still")
	}
}

func TestExportSegments(t *testing.T) {
	f := start(t)
	if err := f.orch.OpenSource(f.ctx, source.Reference{Kind: source.KindVideo, Path: "clip.mp4"}); err != nil {
		t.Fatal(err)
	}

	f.tick(t)
	f.tick(t)

	sec, label, err := f.orch.MarkCutPoint(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sec-0.2) > 1e-9 || label != "0:00:00" {
		t.Errorf("expected a cut at frame 2 (0.2s), got %v (%s)", sec, label)
	}
	if err := f.orch.AddCutPoint(f.ctx, 1.0); err != nil {
		t.Fatal(err)
	}

	result, err := f.orch.ExportSegments(f.ctx, ExportOptions{Granularity: pipeline.GranularityFrames, Destination: "out"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(result.Segments))
	}
	if result.TotalFrames() != 20 {
		t.Errorf("expected 20 frames exported, got %d", result.TotalFrames())
	}
	if n := f.sink.Count(export.SegmentFramesDir("out", 3)); n != 10 {
		t.Errorf("expected 10 frames in last segment, got %d", n)
	}

	st, _ := f.orch.Status(f.ctx)
	if len(st.CutPoints) != 0 {
		t.Errorf("expected cut points cleared after export, got %v", st.CutPoints)
	}

	report, ok := f.fs.GetFile(filepath.Join("out", SummaryName))
	if !ok {
		t.Fatal("expected summary report")
	}
	if !strings.Contains(string(report), "segment_3_frames") {
		t.Errorf("summary should list segments:\n%s", report)
	}
}

func TestMarkCutPoint_FollowsDisplayedFrame(t *testing.T) {
	f := start(t)
	if err := f.orch.OpenSource(f.ctx, source.Reference{Kind: source.KindVideo, Path: "clip.mp4"}); err != nil {
		t.Fatal(err)
	}
	if sec, _, _ := f.orch.MarkCutPoint(f.ctx); sec != 0 {
		t.Errorf("expected the first frame at 0s, got %v", sec)
	}
	f.tick(t)
	f.tick(t)
	if state, _ := f.orch.TogglePause(f.ctx); state != playback.Paused {
		t.Fatalf("expected Paused, got %v", state)
	}

	sec, _, err := f.orch.MarkCutPoint(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sec-0.2) > 1e-9 {
		t.Errorf("expected 0.2s for frame 2, got %v", sec)
	}
	st, _ := f.orch.Status(f.ctx)
	if math.Abs(st.PositionSec-0.2) > 1e-9 {
		t.Errorf("expected status at 0.2s, got %v", st.PositionSec)
	}
	if df, _ := f.display.Last(); math.Abs(df.PositionSec-0.2) > 1e-9 {
		t.Errorf("expected display clock at 0.2s, got %v", df.PositionSec)
	}

	if _, err := f.orch.ExportSegments(f.ctx, ExportOptions{Granularity: pipeline.GranularityFrames, Destination: "out"}); err != nil {
		t.Fatal(err)
	}
	// The export reads the whole clip; the paused frame stays where it was.
	f.tick(t)
	sec, _, err = f.orch.MarkCutPoint(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sec-0.2) > 1e-9 {
		t.Errorf("expected 0.2s after export, got %v", sec)
	}
}

func TestExportSegments_NoCutPoints(t *testing.T) {
	f := start(t)
	if err := f.orch.OpenSource(f.ctx, source.Reference{Kind: source.KindVideo, Path: "clip.mp4"}); err != nil {
		t.Fatal(err)
	}
	_, err := f.orch.ExportSegments(f.ctx, ExportOptions{Destination: "out"})
	if !errors.Is(err, export.ErrNoCutPoints) {
		t.Errorf("expected ErrNoCutPoints, got %v", err)
	}
	if exists, _ := f.fs.Exists(filepath.Join("out", SummaryName)); exists {
		t.Error("no report should be written for a rejected export")
	}
}

func TestRecording_LiveFrames(t *testing.T) {
	f := start(t)
	if err := f.orch.SelectMode(f.ctx, source.KindLive); err != nil {
		t.Fatal(err)
	}
	if f.capture.OpenedDevice != 2 {
		t.Errorf("expected device 2 opened, got %d", f.capture.OpenedDevice)
	}

	rt, err := f.orch.StartRecording(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	path := rt.Path
	if !rt.Started || !strings.HasPrefix(path, filepath.Join("rec", "recording_")) || !strings.HasSuffix(path, ".mp4") {
		t.Errorf("unexpected recording path %s", path)
	}

	f.tick(t)
	f.tick(t)

	res, err := f.orch.StopRecording(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Frames != 2 {
		t.Errorf("expected 2 recorded frames, got %d", res.Frames)
	}
	if len(f.encoder.BeginCalls) != 1 || f.encoder.EndCalls != 1 {
		t.Errorf("expected one begin/end pair, got %d/%d", len(f.encoder.BeginCalls), f.encoder.EndCalls)
	}

	// Further ticks are not recorded.
	f.tick(t)
	if len(f.encoder.EncodeFrameCalls) != 2 {
		t.Errorf("expected 2 encoded frames, got %d", len(f.encoder.EncodeFrameCalls))
	}
}

func TestRecording_FinalisedWhenDeviceDisconnects(t *testing.T) {
	f := start(t)
	if err := f.orch.SelectMode(f.ctx, source.KindLive); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.StartRecording(f.ctx); err != nil {
		t.Fatal(err)
	}
	f.tick(t)
	f.capture.ReadFunc = func() (image.Image, error) { return nil, io.EOF }
	for i := 0; i < 10; i++ {
		f.tick(t)
	}

	st, _ := f.orch.Status(f.ctx)
	if st.State != playback.Stopped || st.Recording {
		t.Errorf("expected stopped playback without recording, got %+v", st)
	}
	if f.encoder.EndCalls != 1 || len(f.encoder.EncodeFrameCalls) != 1 {
		t.Errorf("expected 1 frame recorded and the file closed, got %d frames, %d ends",
			len(f.encoder.EncodeFrameCalls), f.encoder.EndCalls)
	}
}

func TestRecording_StartWhileActiveStops(t *testing.T) {
	f := start(t)
	if err := f.orch.SelectMode(f.ctx, source.KindLive); err != nil {
		t.Fatal(err)
	}
	first, err := f.orch.StartRecording(f.ctx)
	if err != nil || !first.Started {
		t.Fatalf("expected recording to start, got %+v (%v)", first, err)
	}
	f.tick(t)

	second, err := f.orch.StartRecording(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Started || second.Path != first.Path || second.Result.Frames != 1 {
		t.Errorf("expected the second start to stop %s after 1 frame, got %+v", first.Path, second)
	}
	st, _ := f.orch.Status(f.ctx)
	if st.Recording {
		t.Error("expected recording to be stopped")
	}
	if f.encoder.EndCalls != 1 {
		t.Errorf("expected the encoder to be finalised once, got %d", f.encoder.EndCalls)
	}

	f.tick(t)
	if len(f.encoder.EncodeFrameCalls) != 1 {
		t.Errorf("expected no frames after stopping, got %d", len(f.encoder.EncodeFrameCalls))
	}
}

func TestRecording_RequiresLive(t *testing.T) {
	f := start(t)
	f.openStill(t)
	if _, err := f.orch.StartRecording(f.ctx); err == nil {
		t.Error("expected error recording a still")
	}
}

func TestSelectMode_ClosesOtherKind(t *testing.T) {
	f := start(t)
	f.openStill(t)

	if err := f.orch.SelectMode(f.ctx, source.KindVideo); err != nil {
		t.Fatal(err)
	}
	st, _ := f.orch.Status(f.ctx)
	if st.Source != "" || st.Kind != source.KindVideo || st.State != playback.Stopped {
		t.Errorf("expected closed source in video mode, got %+v", st)
	}
}

func TestResizeAndClose(t *testing.T) {
	f := start(t)
	if err := f.orch.SelectMode(f.ctx, source.KindLive); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.Resize(f.ctx, 200, 150); err != nil {
		t.Fatal(err)
	}
	if df, _ := f.display.Last(); df.Viewport.CanvasWidth != 200 || df.Viewport.CanvasHeight != 150 {
		t.Errorf("expected 200x150 canvas after resize, got %+v", df.Viewport)
	}
	if err := f.orch.Close(f.ctx); err != nil {
		t.Fatal(err)
	}
	if !f.capture.Closed {
		t.Error("expected capture device closed")
	}
}

func TestSelectRegionAndSnapshot(t *testing.T) {
	f := start(t)
	f.openStill(t)

	if err := f.orch.SelectRegion(f.ctx, image.Rect(20, 30, 60, 50)); err != nil {
		t.Fatal(err)
	}
	path, err := f.orch.ExtractRegion(f.ctx, "sel.png")
	if err != nil {
		t.Fatal(err)
	}
	if b := f.sink.Images[path].Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("expected 40x20 crop, got %v", b)
	}

	if err := f.orch.ApplyFilter(f.ctx, "grayscale"); err != nil {
		t.Fatal(err)
	}
	snap, err := f.orch.Snapshot(f.ctx, "frame.png")
	if err != nil {
		t.Fatal(err)
	}
	img := f.sink.Images[snap]
	if img == nil || !frame.FromImage(img).IsGray() {
		t.Error("expected processed frame in snapshot")
	}
}

func TestSnapshot_NoFrame(t *testing.T) {
	f := start(t)
	if _, err := f.orch.Snapshot(f.ctx, "frame.png"); err == nil {
		t.Error("expected error without a frame")
	}
}

func TestSeek(t *testing.T) {
	f := start(t)
	if err := f.orch.OpenSource(f.ctx, source.Reference{Kind: source.KindVideo, Path: "clip.mp4"}); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.Seek(f.ctx, 1.5); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	st, err := f.orch.Status(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	// The source has advanced past the frame shown at 1.5s.
	if st.PositionSec < 1.5 || st.PositionSec > 1.7 {
		t.Errorf("expected position near 1.5s, got %v", st.PositionSec)
	}

	f.openStill(t)
	if err := f.orch.Seek(f.ctx, 1); !errors.Is(err, source.ErrSeekUnsupported) {
		t.Errorf("expected ErrSeekUnsupported on a still, got %v", err)
	}
}

func TestExportDefaults(t *testing.T) {
	f := start(t)
	opts := f.orch.ExportDefaults()
	if opts.Granularity != pipeline.GranularityFrames || opts.Destination != "export" {
		t.Errorf("unexpected export defaults %+v", opts)
	}
}
