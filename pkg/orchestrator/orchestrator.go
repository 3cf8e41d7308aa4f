// Package orchestrator exposes the operator commands of a frame pipeline and
// serialises them onto the playback loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/ideamans/go-l10n"

	"github.com/user/framelab/pkg/filter"
	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/pipeline"
	"github.com/user/framelab/pkg/playback"
	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/region"
	"github.com/user/framelab/pkg/session"
	"github.com/user/framelab/pkg/source"
	"github.com/user/framelab/pkg/stages/export"
	"github.com/user/framelab/pkg/stages/record"
	"github.com/user/framelab/pkg/summarizer"
)

// ErrNoRegion is returned when a region command runs before a region was selected.
var ErrNoRegion = errors.New("orchestrator: no region selected")

// SummaryName is the report written next to exported segments.
const SummaryName = "summary.md"

// Config contains all configuration for the orchestrator.
type Config struct {
	// Display
	CanvasWidth  int
	CanvasHeight int

	// Processing
	Filters filter.Params

	// Playback
	Playback   playback.Options
	LiveDevice int

	// Export
	ExportDir         string
	ExportGranularity pipeline.Granularity
	ContainerExt      string
	Encoder           ports.EncoderOptions
	EncoderName       string
	MergeWithin       float64
	WriteSummary      bool

	// Recording
	RecordDir         string
	RecordGranularity pipeline.Granularity

	// Regions extracted without an explicit path are saved here.
	RegionDir string

	Version string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		CanvasWidth:       800,
		CanvasHeight:      600,
		Filters:           filter.DefaultParams(),
		Playback:          playback.DefaultOptions(),
		ExportDir:         "export",
		ExportGranularity: pipeline.GranularityFrames,
		ContainerExt:      "mp4",
		Encoder:           ports.EncoderOptions{Quality: 23},
		WriteSummary:      true,
		RecordDir:         "recordings",
		RecordGranularity: pipeline.GranularityVideo,
		RegionDir:         ".",
	}
}

// Deps are the collaborators the orchestrator wires together.
type Deps struct {
	Display    ports.Display
	Sink       ports.FrameSink
	FileSystem ports.FileSystem
	Renderer   ports.Renderer
	Decoder    ports.VideoDecoder
	Capture    ports.CaptureDevice
	// Encoder serves both exports and recordings; they never overlap because
	// exports need a video source and recordings a live one.
	Encoder   ports.VideoEncoder
	Annotator ports.Annotator
	Logger    ports.Logger
	Workers   int
}

// Orchestrator owns one pipeline session and runs operator commands against it.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger ports.Logger

	ctrl     *playback.Controller
	exporter *export.Stage
	recorder *record.Session
	summary  *summarizer.Writer

	// Loop-owned state, touched only inside Do.
	kind     source.Kind
	ref      source.Reference
	selector region.Selector
}

// New creates an Orchestrator. Run must be active for commands to execute.
func New(cfg Config, deps Deps) *Orchestrator {
	logger := deps.Logger.WithComponent("orchestrator")
	sess := session.New(session.Options{
		CanvasWidth:  cfg.CanvasWidth,
		CanvasHeight: cfg.CanvasHeight,
		Env:          filter.Env{Params: cfg.Filters, Annotator: deps.Annotator},
	})

	formatter := summarizer.NewMarkdownFormatter(summarizer.WithVersion(cfg.Version), summarizer.WithTranslator(l10n.T))
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		ctrl:     playback.New(sess, deps.Display, cfg.Playback, deps.Logger),
		exporter: export.NewStage(deps.Sink, deps.FileSystem, deps.Encoder, deps.Logger, deps.Workers),
		recorder: record.New(deps.Sink, deps.FileSystem, deps.Encoder, deps.Logger),
		summary:  summarizer.NewWriter(formatter, deps.FileSystem),
		kind:     source.KindStill,
	}
}

// Controller returns the playback controller.
func (o *Orchestrator) Controller() *playback.Controller { return o.ctrl }

// Run drives the playback loop until ctx is cancelled. An active recording is
// finalised and the source closed on return.
func (o *Orchestrator) Run(ctx context.Context) error {
	err := o.ctrl.Run(ctx)
	if o.recorder.Active() {
		if _, stopErr := o.recorder.Stop(); stopErr != nil {
			o.logger.Error("Failed to stop recording: %v", stopErr)
		}
	}
	if closeErr := o.ctrl.Close(); closeErr != nil {
		o.logger.Warn("Closing source failed: %v", closeErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Status is a snapshot of the pipeline reported to the operator.
type Status struct {
	Source      string
	Kind        source.Kind
	State       playback.State
	Speed       float64
	Reverse     bool
	PositionSec float64
	Mode        filter.Mode
	Chain       []filter.Op
	CutPoints   []float64
	Zoomed      bool
	Recording   bool
}

// Status returns the current pipeline state.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		sess := c.Session()
		st = Status{
			Kind:      o.kind,
			State:     c.State(),
			Speed:     c.Speed(),
			Reverse:   c.Reverse(),
			Mode:      sess.Mode(),
			Chain:     sess.Chain(),
			CutPoints: sess.CutPoints(),
			Zoomed:    sess.Zoom().Active(),
			Recording: o.recorder.Active(),
		}
		if src := sess.Source(); src != nil {
			st.Source = o.ref.String()
			st.PositionSec = sess.Position()
		}
		return nil
	})
	return st, err
}

// OpenSource opens ref and starts showing it. Decoding happens before the loop
// is entered so ticks keep running while a long video loads.
func (o *Orchestrator) OpenSource(ctx context.Context, ref source.Reference) error {
	src, err := source.Open(ref, source.Deps{
		FileSystem: o.deps.FileSystem,
		Renderer:   o.deps.Renderer,
		Decoder:    o.deps.Decoder,
		Capture:    o.deps.Capture,
		Logger:     o.deps.Logger,
	})
	if err != nil {
		o.logger.Error("Failed to open %s: %v", ref, err)
		return err
	}

	err = o.ctrl.Do(ctx, func(c *playback.Controller) error {
		o.stopRecording()
		o.clearRegion()
		o.kind = ref.Kind
		o.ref = ref
		p := src.Properties()
		o.logger.Info("Opened %s %s (%dx%d)", ref.Kind, ref, p.Width, p.Height)
		return c.Load(ctx, src)
	})
	if errors.Is(err, playback.ErrNotRunning) {
		_ = src.Close()
	}
	return err
}

// SelectMode switches between image, video and live input. Selecting live opens
// the configured capture device; the other modes close a source of a different
// kind and wait for OpenSource.
func (o *Orchestrator) SelectMode(ctx context.Context, kind source.Kind) error {
	if kind == source.KindLive {
		return o.OpenSource(ctx, source.Reference{Kind: source.KindLive, Device: o.cfg.LiveDevice})
	}
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		o.kind = kind
		src := c.Session().Source()
		if src == nil || src.Kind() == kind {
			return nil
		}
		o.stopRecording()
		o.clearRegion()
		o.ref = source.Reference{}
		return c.Close()
	})
}

// SelectProcessingMode sets how the next filter composes with earlier ones.
func (o *Orchestrator) SelectProcessingMode(ctx context.Context, mode filter.Mode) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		c.Session().SetMode(mode)
		o.logger.Debug("Processing mode: %s", mode)
		return nil
	})
}

// ApplyFilter parses name and adds it to the chain.
func (o *Orchestrator) ApplyFilter(ctx context.Context, name string) error {
	op, err := filter.ParseOp(name)
	if err != nil {
		return err
	}
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		if _, err := c.Session().ApplyFilter(ctx, op); err != nil {
			return fmt.Errorf("apply %s: %w", op, err)
		}
		o.logger.Info("Applied filter %s (%s)", op, c.Session().Mode())
		return c.Render()
	})
}

// RestoreOriginal clears the chain and shows the unprocessed frame.
func (o *Orchestrator) RestoreOriginal(ctx context.Context) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		if _, err := c.Session().Restore(ctx); err != nil {
			return err
		}
		return c.Render()
	})
}

// BeginRegion starts a selection at a display point.
func (o *Orchestrator) BeginRegion(ctx context.Context, p image.Point) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		o.selector.Begin(p)
		return nil
	})
}

// UpdateRegion moves the free corner and draws the selection overlay.
func (o *Orchestrator) UpdateRegion(ctx context.Context, p image.Point) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		r, ok := o.selector.Update(p)
		if !ok {
			return nil
		}
		return c.SetOverlay(&r)
	})
}

// EndRegion completes the selection and returns it in source coordinates. The
// selection stays drawn until it is used or cleared.
func (o *Orchestrator) EndRegion(ctx context.Context, p image.Point) (image.Rectangle, error) {
	var src image.Rectangle
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		r, err := o.selector.End(p)
		if err != nil {
			return err
		}
		src, err = c.Session().SourceRect(r)
		if err != nil {
			o.selector.Reset()
			_ = c.SetOverlay(nil)
			return err
		}
		return c.SetOverlay(&r)
	})
	return src, err
}

// SelectRegion selects a rectangle given in source pixels as if it had been
// dragged on the display.
func (o *Orchestrator) SelectRegion(ctx context.Context, r image.Rectangle) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		sess := c.Session()
		if sess.Current().IsZero() {
			return session.ErrNoFrame
		}
		if z := sess.Zoom(); z.Active() {
			r = r.Sub(z.Rect().Min)
		}
		d := sess.Viewport().ToDisplay(r)
		o.selector.Begin(d.Min)
		if _, err := o.selector.End(d.Max); err != nil {
			return err
		}
		return c.SetOverlay(&d)
	})
}

// ClearRegion drops the selection and its overlay.
func (o *Orchestrator) ClearRegion(ctx context.Context) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		o.clearRegion()
		return c.SetOverlay(nil)
	})
}

func (o *Orchestrator) clearRegion() {
	o.selector.Reset()
}

func (o *Orchestrator) region() (image.Rectangle, error) {
	if o.selector.State() != region.Resolved {
		return image.Rectangle{}, ErrNoRegion
	}
	return o.selector.Rect(), nil
}

// ExtractRegion crops the selected region from the filtered frame and saves it.
// An empty path saves to a timestamped name in the region directory.
func (o *Orchestrator) ExtractRegion(ctx context.Context, path string) (string, error) {
	var crop frame.Frame
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		r, err := o.region()
		if err != nil {
			return err
		}
		crop, err = c.Session().Extract(ctx, r)
		return err
	})
	if err != nil {
		return "", err
	}
	return o.saveRegion(path, "region", crop)
}

// ApplyZoom makes the selected region the persistent zoom.
func (o *Orchestrator) ApplyZoom(ctx context.Context) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		r, err := o.region()
		if err != nil {
			return err
		}
		if _, err := c.Session().ZoomTo(ctx, r); err != nil {
			return err
		}
		o.clearRegion()
		return c.SetOverlay(nil)
	})
}

// ZoomRegion rescales the selected region by factor and saves the result.
func (o *Orchestrator) ZoomRegion(ctx context.Context, factor float64, path string) (string, error) {
	var zoomed frame.Frame
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		r, err := o.region()
		if err != nil {
			return err
		}
		zoomed, err = c.Session().ZoomByFactor(ctx, r, factor)
		return err
	})
	if err != nil {
		return "", err
	}
	return o.saveRegion(path, fmt.Sprintf("zoom_%gx", factor), zoomed)
}

// ClearZoom removes the persistent zoom.
func (o *Orchestrator) ClearZoom(ctx context.Context) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		if err := c.Session().ClearZoom(ctx); err != nil {
			return err
		}
		return c.Render()
	})
}

func (o *Orchestrator) saveRegion(path, prefix string, f frame.Frame) (string, error) {
	if path == "" {
		path = filepath.Join(o.cfg.RegionDir, fmt.Sprintf("%s_%s.png", prefix, time.Now().Format("20060102_150405")))
	}
	if err := o.deps.Sink.SaveImage(path, f.Image()); err != nil {
		o.logger.Error("Failed to save image: %v", err)
		return "", err
	}
	o.logger.Info("Saved %dx%d image to %s", f.Width(), f.Height(), path)
	return path, nil
}

// Snapshot saves the processed frame currently on display.
func (o *Orchestrator) Snapshot(ctx context.Context, path string) (string, error) {
	var cur frame.Frame
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		cur = c.Session().Current()
		if cur.IsZero() {
			return session.ErrNoFrame
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return o.saveRegion(path, "frame", cur)
}

// MarkCutPoint records the current position of a video and returns it with its
// clock label.
func (o *Orchestrator) MarkCutPoint(ctx context.Context) (float64, string, error) {
	var t float64
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		var err error
		t, err = c.Session().MarkCutPoint()
		return err
	})
	if err != nil {
		return 0, "", err
	}
	label := session.Clock(t)
	o.logger.Info("Cut point marked at %s", label)
	return t, label, nil
}

// AddCutPoint records an explicit timestamp.
func (o *Orchestrator) AddCutPoint(ctx context.Context, seconds float64) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		c.Session().AddCutPoint(seconds)
		return nil
	})
}

// ExportOptions overrides the configured export settings for one request.
type ExportOptions struct {
	Granularity pipeline.Granularity
	// Destination defaults to the configured export directory.
	Destination string
	Progress    func(written int)
}

// ExportDefaults returns the configured export settings.
func (o *Orchestrator) ExportDefaults() ExportOptions {
	return ExportOptions{Granularity: o.cfg.ExportGranularity, Destination: o.cfg.ExportDir}
}

// ExportSegments writes the video between consecutive cut points through the
// current filters and zoom. The loop is held for the duration of the export.
// Cut points are cleared when every segment succeeded.
func (o *Orchestrator) ExportSegments(ctx context.Context, opts ExportOptions) (pipeline.ExportResult, error) {
	dest := opts.Destination
	if dest == "" {
		dest = o.cfg.ExportDir
	}

	var result pipeline.ExportResult
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		sess := c.Session()
		input := pipeline.ExportInput{
			Source:       sess.Source(),
			Processor:    pipeline.ProcessorFunc(sess.Process),
			CutPoints:    sess.CutPoints(),
			Granularity:  opts.Granularity,
			Destination:  dest,
			MergeWithin:  o.cfg.MergeWithin,
			ContainerExt: o.cfg.ContainerExt,
			Encoder:      o.cfg.Encoder,
			Progress:     opts.Progress,
		}

		var err error
		result, err = o.exporter.Execute(ctx, input)
		if err != nil {
			return err
		}
		if len(result.Failed()) == 0 {
			sess.ClearCutPoints()
		}
		if o.cfg.WriteSummary {
			o.writeSummary(sess, input, result)
		}
		return nil
	})
	if err != nil {
		o.logger.Error("Export failed: %v", err)
		return result, err
	}
	o.logger.Info("Export finished: %d segments, %d frames, %d failed",
		len(result.Segments), result.TotalFrames(), len(result.Failed()))
	return result, nil
}

func (o *Orchestrator) writeSummary(sess *session.Session, input pipeline.ExportInput, result pipeline.ExportResult) {
	info := summarizer.SourceInfo{
		Path:        o.ref.String(),
		Width:       result.Width,
		Height:      result.Height,
		FPS:         result.FPS,
		DurationSec: result.DurationSec,
	}
	if v, ok := input.Source.(interface{ Codec() string }); ok {
		info.Codec = v.Codec()
	}

	chain := make([]string, 0, len(sess.Chain()))
	for _, op := range sess.Chain() {
		chain = append(chain, op.String())
	}
	zoom := ""
	if z := sess.Zoom(); z.Active() {
		zoom = z.Rect().String()
	}

	exp := summarizer.ExportInfo{
		Granularity: input.Granularity.String(),
		Destination: input.Destination,
		CutPoints:   input.CutPoints,
		Boundaries:  result.Boundaries,
		MergeWithin: input.MergeWithin,
		Elapsed:     result.Elapsed,
	}
	if input.Granularity == pipeline.GranularityVideo {
		exp.Codec = o.cfg.EncoderName
		exp.Quality = input.Encoder.Quality
	}

	b := summarizer.NewBuilder().
		WithSource(info).
		WithProcessing(sess.Mode().String(), chain, zoom).
		WithExport(exp)
	for _, seg := range result.Segments {
		si := summarizer.SegmentInfo{
			Number:   seg.Number,
			StartSec: seg.StartSec,
			EndSec:   seg.EndSec,
			Path:     seg.Path,
			Frames:   seg.Frames,
			Skipped:  seg.Skipped,
		}
		if seg.Err != nil {
			si.Error = seg.Err.Error()
		}
		b.AddSegment(si)
	}

	path := filepath.Join(input.Destination, SummaryName)
	if err := o.summary.Write(path, b.Build()); err != nil {
		o.logger.Warn("Failed to write summary: %v", err)
	}
}

// TogglePause pauses or resumes playback.
func (o *Orchestrator) TogglePause(ctx context.Context) (playback.State, error) {
	var st playback.State
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		st = c.TogglePause()
		return nil
	})
	return st, err
}

// SpeedUp increases the playback speed.
func (o *Orchestrator) SpeedUp(ctx context.Context) (float64, error) {
	var v float64
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		v = c.SpeedUp()
		return nil
	})
	return v, err
}

// SlowDown decreases the playback speed.
func (o *Orchestrator) SlowDown(ctx context.Context) (float64, error) {
	var v float64
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		v = c.SlowDown()
		return nil
	})
	return v, err
}

// ToggleDirection flips between forward and reverse playback and reports
// whether playback is now reversed.
func (o *Orchestrator) ToggleDirection(ctx context.Context) (bool, error) {
	var rev bool
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		rev = c.ToggleDirection()
		return nil
	})
	return rev, err
}

// Seek shows the video frame at seconds.
func (o *Orchestrator) Seek(ctx context.Context, seconds float64) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		return c.SeekTime(ctx, seconds)
	})
}

// RecordingToggle reports the outcome of StartRecording.
type RecordingToggle struct {
	// Started is false when the call stopped an active recording instead.
	Started bool
	Path    string
	// Result describes the finished recording when Started is false.
	Result pipeline.RecordResult
}

// StartRecording begins persisting processed live frames. Called while a
// recording is active it stops that recording instead.
func (o *Orchestrator) StartRecording(ctx context.Context) (RecordingToggle, error) {
	var rt RecordingToggle
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		if o.recorder.Active() {
			c.SetRecorder(nil)
		}
		wasActive := o.recorder.Active()
		path := o.recorder.Path()
		err := o.recorder.Start(pipeline.RecordInput{
			Source:       c.Session().Source(),
			Granularity:  o.cfg.RecordGranularity,
			Destination:  o.cfg.RecordDir,
			ContainerExt: o.cfg.ContainerExt,
			Encoder:      o.cfg.Encoder,
		})
		if wasActive {
			rt = RecordingToggle{Path: path, Result: o.recorder.LastResult()}
			return err
		}
		if err != nil {
			return err
		}
		c.SetRecorder(o.recorder)
		rt = RecordingToggle{Started: true, Path: o.recorder.Path()}
		return nil
	})
	return rt, err
}

// StopRecording finalises the active recording.
func (o *Orchestrator) StopRecording(ctx context.Context) (pipeline.RecordResult, error) {
	var res pipeline.RecordResult
	err := o.ctrl.Do(ctx, func(c *playback.Controller) error {
		c.SetRecorder(nil)
		if !o.recorder.Active() {
			return nil
		}
		var err error
		res, err = o.recorder.Stop()
		return err
	})
	return res, err
}

func (o *Orchestrator) stopRecording() {
	o.ctrl.SetRecorder(nil)
	if !o.recorder.Active() {
		return
	}
	if _, err := o.recorder.Stop(); err != nil {
		o.logger.Error("Failed to stop recording: %v", err)
	}
}

// Resize changes the display canvas.
func (o *Orchestrator) Resize(ctx context.Context, width, height int) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		c.Session().Resize(width, height)
		o.clearRegion()
		return c.SetOverlay(nil)
	})
}

// Close stops recording and playback and releases the source.
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.ctrl.Do(ctx, func(c *playback.Controller) error {
		o.stopRecording()
		o.clearRegion()
		o.ref = source.Reference{}
		return c.Close()
	})
}
