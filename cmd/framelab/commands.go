package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/user/framelab/pkg/filter"
	"github.com/user/framelab/pkg/playback"
	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/source"
)

var errMissingInput = errors.New("an input file is required")

func processingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "filter", Aliases: []string{"f"}, Usage: l10n.F("Filter to apply, repeatable (%s)", strings.Join(filter.Names(), ", ")), Category: l10n.T("Processing")},
		&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: l10n.T("Processing mode (independent, cascade)"), Category: l10n.T("Processing")},
		&cli.StringFlag{Name: "region", Aliases: []string{"r"}, Usage: l10n.T("Region in source pixels as x0,y0,x1,y1"), Category: l10n.T("Processing")},
	}
}

func filterCommand() *cli.Command {
	return &cli.Command{
		Name:      "filter",
		Usage:     l10n.T("Apply filters to an image or the first frame of a video"),
		ArgsUsage: "INPUT",
		Flags: append(processingFlags(),
			&cli.BoolFlag{Name: "zoom", Aliases: []string{"z"}, Usage: l10n.T("Zoom into the region before saving"), Category: l10n.T("Processing")},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output image path"), Category: l10n.T("Output")},
		),
		Action: func(c *cli.Context) error {
			return withApp(c, runtimeOptions{}, func(ctx context.Context, a *app) error {
				if err := openFrozen(ctx, a, c.Args().First()); err != nil {
					return err
				}
				if err := applyProcessing(ctx, a, c); err != nil {
					return err
				}
				if c.Bool("zoom") {
					if err := a.orch.ApplyZoom(ctx); err != nil {
						return err
					}
				}
				path, err := a.orch.Snapshot(ctx, c.String("output"))
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			})
		},
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     l10n.T("Save a region of an image or video frame"),
		ArgsUsage: "INPUT",
		Flags: append(processingFlags(),
			&cli.Float64Flag{Name: "factor", Usage: l10n.T("Scale factor for the saved region (1 keeps the original size)"), Value: 1, Category: l10n.T("Processing")},
			&cli.Float64Flag{Name: "at", Usage: l10n.T("Video position in seconds"), Category: l10n.T("Processing")},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output image path"), Category: l10n.T("Output")},
		),
		Action: func(c *cli.Context) error {
			if c.String("region") == "" {
				return errors.New(l10n.T("--region is required"))
			}
			return withApp(c, runtimeOptions{}, func(ctx context.Context, a *app) error {
				if err := openFrozen(ctx, a, c.Args().First()); err != nil {
					return err
				}
				if at := c.Float64("at"); at > 0 {
					if err := a.orch.Seek(ctx, at); err != nil {
						return err
					}
				}
				if err := applyProcessing(ctx, a, c); err != nil {
					return err
				}
				var (
					path string
					err  error
				)
				if f := c.Float64("factor"); f > 0 && f != 1 {
					path, err = a.orch.ZoomRegion(ctx, f, c.String("output"))
				} else {
					path, err = a.orch.ExtractRegion(ctx, c.String("output"))
				}
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			})
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     l10n.T("Split a video at cut points and export the segments"),
		ArgsUsage: "VIDEO",
		Flags: append(processingFlags(),
			&cli.StringSliceFlag{Name: "cut", Usage: l10n.T("Cut point in seconds or H:MM:SS.mmm, repeatable"), Category: l10n.T("Export")},
			&cli.StringFlag{Name: "format", Usage: l10n.T("Export mode (frames, video)"), Category: l10n.T("Export")},
			&cli.BoolFlag{Name: "zoom", Aliases: []string{"z"}, Usage: l10n.T("Export only the zoomed region"), Category: l10n.T("Processing")},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output directory"), Category: l10n.T("Output")},
		),
		Action: func(c *cli.Context) error {
			cfgMutate := func(cfg *configOverrides) {
				cfg.exportMode = c.String("format")
			}
			return withAppOverrides(c, runtimeOptions{}, cfgMutate, func(ctx context.Context, a *app) error {
				input := c.Args().First()
				ref, err := referenceFor(input)
				if err != nil {
					return err
				}
				if ref.Kind != source.KindVideo {
					return errors.New(l10n.F("%s is not a video", input))
				}
				if err := openFrozen(ctx, a, input); err != nil {
					return err
				}
				for _, s := range c.StringSlice("cut") {
					t, err := parseTimestamp(s)
					if err != nil {
						return err
					}
					if err := a.orch.AddCutPoint(ctx, t); err != nil {
						return err
					}
				}
				if err := applyProcessing(ctx, a, c); err != nil {
					return err
				}
				if c.Bool("zoom") {
					if err := a.orch.ApplyZoom(ctx); err != nil {
						return err
					}
				}

				opts := a.orch.ExportDefaults()
				if dir := c.String("output"); dir != "" {
					opts.Destination = dir
				}
				bar := newProgressBar(l10n.T("Exporting"))
				opts.Progress = bar.update
				result, err := a.orch.ExportSegments(ctx, opts)
				bar.finish()
				if err != nil {
					return err
				}
				for _, seg := range result.Segments {
					if seg.Err != nil {
						fmt.Println(l10n.F("segment %d: failed: %v", seg.Number, seg.Err))
						continue
					}
					fmt.Println(l10n.F("segment %d: %s (%d frames)", seg.Number, seg.Path, seg.Frames))
				}
				if n := len(result.Failed()); n > 0 {
					return errors.New(l10n.F("%d of %d segments failed", n, len(result.Segments)))
				}
				return nil
			})
		},
	}
}

func recordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: l10n.T("Record processed frames from a camera"),
		Flags: append(processingFlags(),
			&cli.IntFlag{Name: "device", Aliases: []string{"d"}, Usage: l10n.T("Camera device index"), Value: -1, Category: l10n.T("Capture")},
			&cli.DurationFlag{Name: "duration", Aliases: []string{"t"}, Usage: l10n.T("Recording length (0 records until interrupted)"), Category: l10n.T("Capture")},
			&cli.StringFlag{Name: "format", Usage: l10n.T("Recording mode (frames, video)"), Category: l10n.T("Output")},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output directory"), Category: l10n.T("Output")},
		),
		Action: func(c *cli.Context) error {
			mutate := func(o *configOverrides) {
				o.recordMode = c.String("format")
				o.recordDir = c.String("output")
				o.device = c.Int("device")
			}
			return withAppOverrides(c, runtimeOptions{}, mutate, func(ctx context.Context, a *app) error {
				if err := a.orch.SelectMode(ctx, source.KindLive); err != nil {
					return err
				}
				if err := applyProcessing(ctx, a, c); err != nil {
					return err
				}
				rt, err := a.orch.StartRecording(ctx)
				if err != nil {
					return err
				}
				fmt.Println(l10n.F("Recording to %s", rt.Path))

				var timeout <-chan time.Time
				if d := c.Duration("duration"); d > 0 {
					timer := time.NewTimer(d)
					defer timer.Stop()
					timeout = timer.C
				}
				select {
				case <-timeout:
				case <-ctx.Done():
					// The loop finalises the recording on shutdown.
					return nil
				}

				res, err := a.orch.StopRecording(ctx)
				if err != nil {
					return err
				}
				fmt.Println(l10n.F("%d frames written to %s", res.Frames, res.Path))
				return nil
			})
		},
	}
}

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     l10n.T("Interactive session reading commands from standard input"),
		ArgsUsage: "[INPUT]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "canvas", Usage: l10n.T("Write the display canvas to this image after every frame"), Category: l10n.T("Output")},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, runtimeOptions{SnapshotPath: c.String("canvas")}, func(ctx context.Context, a *app) error {
				if input := c.Args().First(); input != "" {
					ref, err := referenceFor(input)
					if err != nil {
						return err
					}
					if err := a.orch.OpenSource(ctx, ref); err != nil {
						return err
					}
				}
				sh := &shell{orch: a.orch, out: os.Stdout}
				return sh.run(ctx, os.Stdin)
			})
		},
	}
}

// configOverrides are command flags that replace values from the config file.
type configOverrides struct {
	exportMode string
	recordMode string
	recordDir  string
	device     int
}

func withApp(c *cli.Context, opts runtimeOptions, fn func(context.Context, *app) error) error {
	return withAppOverrides(c, opts, nil, fn)
}

func withAppOverrides(c *cli.Context, opts runtimeOptions, mutate func(*configOverrides), fn func(context.Context, *app) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if mode := c.String("mode"); mode != "" {
		cfg.Filters.Mode = mode
	}
	if mutate != nil {
		o := configOverrides{device: -1}
		mutate(&o)
		if o.exportMode != "" {
			cfg.Export.Mode = o.exportMode
		}
		if o.recordMode != "" {
			cfg.Record.Mode = o.recordMode
		}
		if o.recordDir != "" {
			cfg.Record.Dir = o.recordDir
		}
		if o.device >= 0 {
			cfg.Capture.Device = o.device
		}
	}

	log := newLogger(c, cfg)
	ctx, cancel := signalContext(log)
	defer cancel()

	a, err := start(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.stop(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// openFrozen opens input and holds it on its first frame.
func openFrozen(ctx context.Context, a *app, input string) error {
	ref, err := referenceFor(input)
	if err != nil {
		return err
	}
	if err := a.orch.OpenSource(ctx, ref); err != nil {
		return err
	}
	if ref.Kind != source.KindVideo {
		return nil
	}
	st, err := a.orch.TogglePause(ctx)
	if err != nil {
		return err
	}
	if st != playback.Paused {
		return fmt.Errorf("unexpected playback state %s", st)
	}
	return a.orch.Seek(ctx, 0)
}

// applyProcessing adds the filters and region selected by the processing flags.
func applyProcessing(ctx context.Context, a *app, c *cli.Context) error {
	for _, name := range c.StringSlice("filter") {
		if err := a.orch.ApplyFilter(ctx, name); err != nil {
			return err
		}
	}
	if s := c.String("region"); s != "" {
		r, err := parseRect(s)
		if err != nil {
			return err
		}
		if err := a.orch.SelectRegion(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// referenceFor infers the source kind from the file extension.
func referenceFor(path string) (source.Reference, error) {
	if path == "" {
		return source.Reference{}, errMissingInput
	}
	if ports.FormatFromExt(path) != ports.FormatAuto {
		return source.Reference{Kind: source.KindStill, Path: path}, nil
	}
	return source.Reference{Kind: source.KindVideo, Path: path}, nil
}

// parseRect parses "x0,y0,x1,y1" (spaces also separate) into a canonical rectangle.
func parseRect(s string) (image.Rectangle, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: want x0,y0,x1,y1", s)
	}
	var v [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		v[i] = n
	}
	r := image.Rect(v[0], v[1], v[2], v[3])
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: empty", s)
	}
	return r, nil
}

// parsePoint reads "X Y" display coordinates.
func parsePoint(args []string) (image.Point, error) {
	if len(args) != 2 {
		return image.Point{}, fmt.Errorf("invalid point %q: want X Y", strings.Join(args, " "))
	}
	x, errX := strconv.Atoi(args[0])
	y, errY := strconv.Atoi(args[1])
	if errX != nil || errY != nil {
		return image.Point{}, fmt.Errorf("invalid point %q: want X Y", strings.Join(args, " "))
	}
	return image.Pt(x, y), nil
}

// parseTimestamp accepts plain seconds ("12.5") or a clock ("1:02.5", "0:01:02.500").
func parseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i < len(parts)-1 && v != float64(int(v)) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}

// progress reports exported frames on a terminal and stays silent otherwise.
type progress struct {
	bar *progressbar.ProgressBar
}

func newProgressBar(desc string) *progress {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return &progress{}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &progress{bar: bar}
}

func (p *progress) update(written int) {
	if p.bar != nil {
		_ = p.bar.Set(written)
	}
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}
