package main

import (
	"context"
	"errors"
	"runtime"
	"sort"

	"github.com/user/framelab/pkg/adapters/boxannotator"
	"github.com/user/framelab/pkg/adapters/canvasdisplay"
	"github.com/user/framelab/pkg/adapters/ffmpegbin"
	"github.com/user/framelab/pkg/adapters/ffmpegcapture"
	"github.com/user/framelab/pkg/adapters/filesink"
	"github.com/user/framelab/pkg/adapters/ggrenderer"
	"github.com/user/framelab/pkg/adapters/gocvsource"
	"github.com/user/framelab/pkg/adapters/nulldisplay"
	"github.com/user/framelab/pkg/adapters/osfilesystem"
	"github.com/user/framelab/pkg/adapters/procdetector"
	"github.com/user/framelab/pkg/adapters/smartdecoder"
	"github.com/user/framelab/pkg/adapters/smartencoder"
	"github.com/user/framelab/pkg/config"
	"github.com/user/framelab/pkg/orchestrator"
	"github.com/user/framelab/pkg/ports"
)

// runtimeOptions are per-command choices that are not part of the config file.
type runtimeOptions struct {
	// SnapshotPath makes the display write every composed canvas to this file.
	SnapshotPath string
}

// app is a running orchestrator with everything it needs to shut down.
type app struct {
	orch    *orchestrator.Orchestrator
	cfg     config.Config
	log     ports.Logger
	closers []func() error
	done    chan error
	cancel  context.CancelFunc
}

// start wires the adapters named by cfg and runs the playback loop until
// stop is called.
func start(parent context.Context, cfg config.Config, log ports.Logger, opts runtimeOptions) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FFmpegPath != "" {
		ffmpegbin.SetPath(cfg.FFmpegPath)
	}

	fs := osfilesystem.New()
	renderer := ggrenderer.New()
	sink, err := filesink.New(cfg.Export.FrameExt, cfg.Export.JPEGQuality, fs, renderer)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	deps := orchestrator.Deps{
		Sink:       sink,
		FileSystem: fs,
		Renderer:   renderer,
		Logger:     log,
		Workers:    cfg.Export.Workers,
	}
	if deps.Workers <= 0 {
		deps.Workers = runtime.NumCPU()
	}

	if opts.SnapshotPath != "" {
		dopts := canvasdisplay.DefaultOptions()
		dopts.Background = config.ParseColor(cfg.Display.Background)
		dopts.OverlayColor = config.ParseColor(cfg.Display.OverlayColor)
		dopts.ShowPosition = cfg.Display.ShowPosition
		dopts.SnapshotPath = opts.SnapshotPath
		deps.Display = canvasdisplay.New(renderer, sink, dopts)
	} else {
		deps.Display = nulldisplay.New()
	}

	if cfg.Capture.Backend == "gocv" && gocvsource.Available() {
		deps.Decoder = gocvsource.NewDecoder()
		deps.Capture = gocvsource.NewCapture(cfg.Capture.Width, cfg.Capture.Height)
	} else {
		if cfg.Capture.Backend == "gocv" {
			log.Warn("OpenCV backend not built in, using ffmpeg")
		}
		deps.Decoder = smartdecoder.New(smartdecoder.Options{FFmpegPath: cfg.FFmpegPath})
		deps.Capture = ffmpegcapture.New(ffmpegcapture.Options{
			Width:       cfg.Capture.Width,
			Height:      cfg.Capture.Height,
			FPS:         cfg.Capture.FPS,
			InputFormat: cfg.Capture.InputFormat,
			InputName:   cfg.Capture.InputName,
		})
	}

	codec, err := smartencoder.ParseCodec(cfg.Export.Codec)
	if err != nil {
		return nil, err
	}
	encoder, info, err := smartencoder.New(codec, smartencoder.Options{FFmpegPath: cfg.FFmpegPath, Logger: log})
	switch {
	case errors.Is(err, smartencoder.ErrNoEncoderAvailable):
		log.Warn("No video encoder available, video output disabled: %v", err)
	case err != nil:
		return nil, err
	default:
		deps.Encoder = encoder
	}

	if cfg.Detector.Command != "" {
		det, err := procdetector.New(procdetector.Config{
			Command:    cfg.Detector.Command,
			Args:       cfg.Detector.Args,
			Env:        envList(cfg.Detector.Env),
			Confidence: cfg.Filters.AnnotateConfidence,
		}, renderer, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, det.Close)
		aopts := boxannotator.DefaultOptions()
		aopts.Confidence = cfg.Filters.AnnotateConfidence
		deps.Annotator = boxannotator.New(det, renderer, aopts)
	}

	ocfg := cfg.ToOrchestratorConfig()
	if info.Codec != "" {
		ocfg.EncoderName = string(info.Codec)
	}
	if ext := info.Codec.Container(); ext != "" {
		ocfg.ContainerExt = ext
	}
	ocfg.Version = version
	a.orch = orchestrator.New(ocfg, deps)

	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel
	a.done = make(chan error, 1)
	go func() { a.done <- a.orch.Run(ctx) }()

	if err := a.orch.SelectProcessingMode(ctx, cfg.ProcessingMode()); err != nil {
		a.stop()
		return nil, err
	}
	return a, nil
}

// stop ends the loop and releases worker processes.
func (a *app) stop() error {
	a.cancel()
	err := <-a.done
	for _, c := range a.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
