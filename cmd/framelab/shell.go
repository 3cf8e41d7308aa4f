package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/ideamans/go-l10n"

	"github.com/user/framelab/pkg/filter"
	"github.com/user/framelab/pkg/orchestrator"
	"github.com/user/framelab/pkg/pipeline"
	"github.com/user/framelab/pkg/playback"
	"github.com/user/framelab/pkg/source"
)

// commander is the part of the orchestrator driven by the interactive shell.
type commander interface {
	OpenSource(ctx context.Context, ref source.Reference) error
	SelectMode(ctx context.Context, kind source.Kind) error
	SelectProcessingMode(ctx context.Context, mode filter.Mode) error
	ApplyFilter(ctx context.Context, name string) error
	RestoreOriginal(ctx context.Context) error
	BeginRegion(ctx context.Context, p image.Point) error
	UpdateRegion(ctx context.Context, p image.Point) error
	EndRegion(ctx context.Context, p image.Point) (image.Rectangle, error)
	SelectRegion(ctx context.Context, r image.Rectangle) error
	ClearRegion(ctx context.Context) error
	ExtractRegion(ctx context.Context, path string) (string, error)
	ApplyZoom(ctx context.Context) error
	ZoomRegion(ctx context.Context, factor float64, path string) (string, error)
	ClearZoom(ctx context.Context) error
	Snapshot(ctx context.Context, path string) (string, error)
	MarkCutPoint(ctx context.Context) (float64, string, error)
	AddCutPoint(ctx context.Context, seconds float64) error
	ExportDefaults() orchestrator.ExportOptions
	ExportSegments(ctx context.Context, opts orchestrator.ExportOptions) (pipeline.ExportResult, error)
	TogglePause(ctx context.Context) (playback.State, error)
	SpeedUp(ctx context.Context) (float64, error)
	SlowDown(ctx context.Context) (float64, error)
	ToggleDirection(ctx context.Context) (bool, error)
	Seek(ctx context.Context, seconds float64) error
	StartRecording(ctx context.Context) (orchestrator.RecordingToggle, error)
	StopRecording(ctx context.Context) (pipeline.RecordResult, error)
	Resize(ctx context.Context, width, height int) error
	Status(ctx context.Context) (orchestrator.Status, error)
}

var errQuit = errors.New("quit")

const shellHelp = `open PATH | open live         open a file or the camera
mode image|video|live         switch input mode
processing independent|cascade
filter NAME                   apply a filter
restore                       clear all filters
pause | faster | slower | reverse
seek SECONDS                  show a video position
select X0 Y0 X1 Y1            select a region in source pixels
press X Y | drag X Y | release X Y
                              drag a selection in canvas pixels
clear                         drop the selection
extract [PATH]                save the selected region
zoom [FACTOR [PATH]]          zoom the view, or save the region scaled
unzoom                        restore the full frame
snapshot [PATH]               save the processed frame
cut [TIME]                    mark a cut point at the current or given time
export [frames|video] [DIR]   export segments between cut points
record | stop                 toggle or stop recording a camera
resize W H                    change the canvas size
status | help | quit`

// shell reads one command per line and prints the outcome.
type shell struct {
	orch commander
	out  io.Writer
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	s.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := s.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(s.out, l10n.F("Error: %v", err))
			}
			s.prompt()
		}
	}
}

func (s *shell) prompt() {
	fmt.Fprint(s.out, "> ")
}

func (s *shell) println(a ...any) {
	fmt.Fprintln(s.out, a...)
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch cmd {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		s.println(shellHelp)
		return nil

	case "open":
		if arg(0) == "live" {
			return s.orch.SelectMode(ctx, source.KindLive)
		}
		ref, err := referenceFor(strings.Join(args, " "))
		if err != nil {
			return err
		}
		return s.orch.OpenSource(ctx, ref)
	case "mode":
		kind, err := source.ParseKind(arg(0))
		if err != nil {
			return err
		}
		return s.orch.SelectMode(ctx, kind)
	case "processing":
		mode, err := filter.ParseMode(arg(0))
		if err != nil {
			return err
		}
		return s.orch.SelectProcessingMode(ctx, mode)
	case "filter":
		return s.orch.ApplyFilter(ctx, arg(0))
	case "restore":
		return s.orch.RestoreOriginal(ctx)

	case "pause", "play", "p":
		st, err := s.orch.TogglePause(ctx)
		if err == nil {
			s.println(st)
		}
		return err
	case "faster", "+":
		v, err := s.orch.SpeedUp(ctx)
		if err == nil {
			s.println(l10n.F("speed %.2fx", v))
		}
		return err
	case "slower", "-":
		v, err := s.orch.SlowDown(ctx)
		if err == nil {
			s.println(l10n.F("speed %.2fx", v))
		}
		return err
	case "reverse", "r":
		rev, err := s.orch.ToggleDirection(ctx)
		if err == nil {
			s.println(direction(rev))
		}
		return err
	case "seek":
		t, err := parseTimestamp(arg(0))
		if err != nil {
			return err
		}
		return s.orch.Seek(ctx, t)

	case "select":
		r, err := parseRect(strings.Join(args, " "))
		if err != nil {
			return err
		}
		return s.orch.SelectRegion(ctx, r)
	case "press", "drag", "release":
		p, err := parsePoint(args)
		if err != nil {
			return err
		}
		switch cmd {
		case "press":
			return s.orch.BeginRegion(ctx, p)
		case "drag":
			return s.orch.UpdateRegion(ctx, p)
		}
		r, err := s.orch.EndRegion(ctx, p)
		if err == nil {
			s.println(l10n.F("selected %d,%d-%d,%d", r.Min.X, r.Min.Y, r.Max.X, r.Max.Y))
		}
		return err
	case "clear":
		return s.orch.ClearRegion(ctx)
	case "extract":
		return s.saved(s.orch.ExtractRegion(ctx, arg(0)))
	case "zoom":
		if arg(0) == "" {
			return s.orch.ApplyZoom(ctx)
		}
		factor, err := strconv.ParseFloat(arg(0), 64)
		if err != nil || factor <= 0 {
			return fmt.Errorf("invalid zoom factor %q", arg(0))
		}
		return s.saved(s.orch.ZoomRegion(ctx, factor, arg(1)))
	case "unzoom":
		return s.orch.ClearZoom(ctx)
	case "snapshot":
		return s.saved(s.orch.Snapshot(ctx, arg(0)))

	case "cut":
		if arg(0) == "" {
			_, label, err := s.orch.MarkCutPoint(ctx)
			if err == nil {
				s.println(l10n.F("cut at %s", label))
			}
			return err
		}
		t, err := parseTimestamp(arg(0))
		if err != nil {
			return err
		}
		return s.orch.AddCutPoint(ctx, t)
	case "export":
		opts := s.orch.ExportDefaults()
		rest := args
		if len(rest) > 0 {
			if g, err := pipeline.ParseGranularity(rest[0]); err == nil {
				opts.Granularity = g
				rest = rest[1:]
			}
		}
		if len(rest) > 0 {
			opts.Destination = rest[0]
		}
		res, err := s.orch.ExportSegments(ctx, opts)
		if err != nil {
			return err
		}
		s.println(l10n.F("%d segments, %d frames, %d failed", len(res.Segments), res.TotalFrames(), len(res.Failed())))
		return nil

	case "record":
		rt, err := s.orch.StartRecording(ctx)
		switch {
		case err != nil:
		case rt.Started:
			s.println(l10n.F("Recording to %s", rt.Path))
		default:
			s.println(l10n.F("%d frames written to %s", rt.Result.Frames, rt.Path))
		}
		return err
	case "stop":
		res, err := s.orch.StopRecording(ctx)
		if err == nil && res.Path != "" {
			s.println(l10n.F("%d frames written to %s", res.Frames, res.Path))
		}
		return err

	case "resize":
		w, errW := strconv.Atoi(arg(0))
		h, errH := strconv.Atoi(arg(1))
		if errW != nil || errH != nil || w <= 0 || h <= 0 {
			return fmt.Errorf("invalid size %q x %q", arg(0), arg(1))
		}
		return s.orch.Resize(ctx, w, h)
	case "status":
		st, err := s.orch.Status(ctx)
		if err != nil {
			return err
		}
		s.printStatus(st)
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func (s *shell) saved(path string, err error) error {
	if err == nil {
		s.println(path)
	}
	return err
}

func (s *shell) printStatus(st orchestrator.Status) {
	src := st.Source
	if src == "" {
		src = "-"
	}
	chain := make([]string, len(st.Chain))
	for i, op := range st.Chain {
		chain[i] = op.String()
	}
	cuts := make([]string, len(st.CutPoints))
	for i, c := range st.CutPoints {
		cuts[i] = strconv.FormatFloat(c, 'f', 3, 64)
	}
	fmt.Fprintf(s.out, "%s (%s) %s %.2fx %s @ %.3fs\n", src, st.Kind, st.State, st.Speed, direction(st.Reverse), st.PositionSec)
	fmt.Fprintf(s.out, "%s: [%s] zoom=%t cuts=[%s] recording=%t\n",
		st.Mode, strings.Join(chain, " "), st.Zoomed, strings.Join(cuts, " "), st.Recording)
}

func direction(reverse bool) string {
	if reverse {
		return "reverse"
	}
	return "forward"
}
