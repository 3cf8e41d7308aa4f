// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/user/framelab/pkg/filter"
	"github.com/user/framelab/pkg/orchestrator"
	"github.com/user/framelab/pkg/pipeline"
	"github.com/user/framelab/pkg/playback"
	"github.com/user/framelab/pkg/ports"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for values that cannot be clamped.
var ErrInvalid = errors.New("config: invalid value")

// Config represents the full configuration for framelab.
type Config struct {
	Display  DisplayConfig  `yaml:"display"`
	Playback PlaybackConfig `yaml:"playback"`
	Filters  FiltersConfig  `yaml:"filters"`
	Export   ExportConfig   `yaml:"export"`
	Record   RecordConfig   `yaml:"record"`
	Detector DetectorConfig `yaml:"detector"`
	Capture  CaptureConfig  `yaml:"capture"`

	FFmpegPath string `yaml:"ffmpeg_path"`
	LogLevel   string `yaml:"log_level"`
}

// DisplayConfig controls the display canvas.
type DisplayConfig struct {
	CanvasWidth  int    `yaml:"canvas_width"`
	CanvasHeight int    `yaml:"canvas_height"`
	Background   string `yaml:"background"`
	OverlayColor string `yaml:"overlay_color"`
	ShowPosition bool   `yaml:"show_position"`
	RegionDir    string `yaml:"region_dir"`
}

// PlaybackConfig controls the tick loop.
type PlaybackConfig struct {
	BaseIntervalMs int     `yaml:"base_interval_ms"`
	MinSpeed       float64 `yaml:"min_speed"`
	MaxSpeed       float64 `yaml:"max_speed"`
	SpeedUp        float64 `yaml:"speed_up"`
	SlowDown       float64 `yaml:"slow_down"`
	// MaxDecodeErrors consecutive unreadable frames stop playback.
	MaxDecodeErrors int `yaml:"max_decode_errors"`
}

// FiltersConfig holds filter thresholds.
type FiltersConfig struct {
	Mode               string  `yaml:"mode"`
	BinaryThreshold    int     `yaml:"binary_threshold"`
	EdgesLow           float64 `yaml:"edges_low"`
	EdgesHigh          float64 `yaml:"edges_high"`
	BlurSigma          float64 `yaml:"blur_sigma"`
	AnnotateConfidence float64 `yaml:"annotate_confidence"`
}

// ExportConfig controls segment export.
type ExportConfig struct {
	Dir            string  `yaml:"dir"`
	Mode           string  `yaml:"mode"`
	FrameExt       string  `yaml:"frame_ext"`
	JPEGQuality    int     `yaml:"jpeg_quality"`
	ContainerExt   string  `yaml:"container_ext"`
	Codec          string  `yaml:"codec"`
	Quality        int     `yaml:"quality"`
	Bitrate        int     `yaml:"bitrate"`
	MergeWithinSec float64 `yaml:"merge_within_sec"`
	Workers        int     `yaml:"workers"`
	Summary        bool    `yaml:"summary"`
}

// RecordConfig controls live recordings.
type RecordConfig struct {
	Mode string `yaml:"mode"`
	Dir  string `yaml:"dir"`
}

// DetectorConfig describes the object-detection worker process.
type DetectorConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// CaptureConfig selects and configures the live capture device.
type CaptureConfig struct {
	Device      int     `yaml:"device"`
	Backend     string  `yaml:"backend"`
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	FPS         float64 `yaml:"fps"`
	InputFormat string  `yaml:"input_format"`
	InputName   string  `yaml:"input_name"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Display: DisplayConfig{
			CanvasWidth:  800,
			CanvasHeight: 600,
			Background:   "#000000",
			OverlayColor: "#ff0000",
			ShowPosition: true,
			RegionDir:    ".",
		},
		Playback: PlaybackConfig{
			BaseIntervalMs: 30,
			MinSpeed:       0.1,
			MaxSpeed:       5.0,
			SpeedUp:        1.5,
			SlowDown:       0.75,

			MaxDecodeErrors: 50,
		},
		Filters: FiltersConfig{
			Mode:               "independent",
			BinaryThreshold:    127,
			EdgesLow:           100,
			EdgesHigh:          200,
			BlurSigma:          1.1,
			AnnotateConfidence: 0.5,
		},
		Export: ExportConfig{
			Dir:          "export",
			Mode:         "frames",
			FrameExt:     "png",
			JPEGQuality:  95,
			ContainerExt: "mp4",
			Codec:        "h264",
			Quality:      23,
			Workers:      4,
			Summary:      true,
		},
		Record: RecordConfig{
			Mode: "video",
			Dir:  "recordings",
		},
		Capture: CaptureConfig{
			Backend: "ffmpeg",
			Width:   640,
			Height:  480,
			FPS:     30,
		},
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate clamps out-of-range numbers to their defaults and rejects names that
// cannot be parsed.
func (c *Config) Validate() error {
	d := Defaults()

	if c.Display.CanvasWidth <= 0 || c.Display.CanvasHeight <= 0 {
		c.Display.CanvasWidth, c.Display.CanvasHeight = d.Display.CanvasWidth, d.Display.CanvasHeight
	}
	if c.Playback.BaseIntervalMs <= 0 {
		c.Playback.BaseIntervalMs = d.Playback.BaseIntervalMs
	}
	if c.Playback.MaxDecodeErrors <= 0 {
		c.Playback.MaxDecodeErrors = d.Playback.MaxDecodeErrors
	}
	if c.Filters.BinaryThreshold < 0 || c.Filters.BinaryThreshold > 255 {
		c.Filters.BinaryThreshold = d.Filters.BinaryThreshold
	}
	if c.Filters.EdgesLow > c.Filters.EdgesHigh {
		c.Filters.EdgesLow, c.Filters.EdgesHigh = c.Filters.EdgesHigh, c.Filters.EdgesLow
	}
	if c.Filters.AnnotateConfidence <= 0 || c.Filters.AnnotateConfidence > 1 {
		c.Filters.AnnotateConfidence = d.Filters.AnnotateConfidence
	}
	if c.Export.Quality < 0 || c.Export.Quality > 51 {
		c.Export.Quality = d.Export.Quality
	}
	if c.Export.JPEGQuality <= 0 || c.Export.JPEGQuality > 100 {
		c.Export.JPEGQuality = d.Export.JPEGQuality
	}
	if c.Export.Workers <= 0 {
		c.Export.Workers = d.Export.Workers
	}
	if c.Export.MergeWithinSec < 0 {
		c.Export.MergeWithinSec = 0
	}
	c.Export.FrameExt = strings.TrimPrefix(strings.ToLower(c.Export.FrameExt), ".")
	c.Export.ContainerExt = strings.TrimPrefix(strings.ToLower(c.Export.ContainerExt), ".")
	if c.Export.ContainerExt == "" {
		c.Export.ContainerExt = d.Export.ContainerExt
	}

	if _, err := filter.ParseMode(c.Filters.Mode); err != nil {
		return fmt.Errorf("%w: filters.mode: %w", ErrInvalid, err)
	}
	if _, err := pipeline.ParseGranularity(c.Export.Mode); err != nil {
		return fmt.Errorf("%w: export.mode: %w", ErrInvalid, err)
	}
	if _, err := pipeline.ParseGranularity(c.Record.Mode); err != nil {
		return fmt.Errorf("%w: record.mode: %w", ErrInvalid, err)
	}
	if ports.FormatFromExt("x."+c.Export.FrameExt) == ports.FormatAuto {
		return fmt.Errorf("%w: export.frame_ext: unsupported image format %q", ErrInvalid, c.Export.FrameExt)
	}
	switch c.Capture.Backend {
	case "ffmpeg", "gocv":
	default:
		return fmt.Errorf("%w: capture.backend: %q", ErrInvalid, c.Capture.Backend)
	}
	return nil
}

// ParseColor parses a hex color string to color.Color.
func ParseColor(hex string) color.Color {
	if len(hex) == 0 {
		return color.Black
	}

	if hex[0] == '#' {
		hex = hex[1:]
	}

	if len(hex) != 6 {
		return color.Black
	}

	return color.RGBA{
		R: hexValue(hex[0])<<4 | hexValue(hex[1]),
		G: hexValue(hex[2])<<4 | hexValue(hex[3]),
		B: hexValue(hex[4])<<4 | hexValue(hex[5]),
		A: 255,
	}
}

func hexValue(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// ToOrchestratorConfig converts Config to orchestrator.Config. Call Validate first.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	exportMode, _ := pipeline.ParseGranularity(c.Export.Mode)
	recordMode, _ := pipeline.ParseGranularity(c.Record.Mode)

	return orchestrator.Config{
		CanvasWidth:  c.Display.CanvasWidth,
		CanvasHeight: c.Display.CanvasHeight,

		Filters: filter.Params{
			BinaryThreshold: uint8(c.Filters.BinaryThreshold),
			EdgesLow:        c.Filters.EdgesLow,
			EdgesHigh:       c.Filters.EdgesHigh,
			BlurSigma:       c.Filters.BlurSigma,
		},

		Playback: playback.Options{
			BaseInterval:   time.Duration(c.Playback.BaseIntervalMs) * time.Millisecond,
			MinSpeed:       c.Playback.MinSpeed,
			MaxSpeed:       c.Playback.MaxSpeed,
			SpeedUpFactor:  c.Playback.SpeedUp,
			SlowDownFactor: c.Playback.SlowDown,

			MaxDecodeErrors: c.Playback.MaxDecodeErrors,
		},
		LiveDevice: c.Capture.Device,

		ExportDir:         c.Export.Dir,
		ExportGranularity: exportMode,
		ContainerExt:      c.Export.ContainerExt,
		Encoder: ports.EncoderOptions{
			Quality: c.Export.Quality,
			Bitrate: c.Export.Bitrate,
		},
		EncoderName:  c.Export.Codec,
		MergeWithin:  c.Export.MergeWithinSec,
		WriteSummary: c.Export.Summary,

		RecordDir:         c.Record.Dir,
		RecordGranularity: recordMode,

		RegionDir: c.Display.RegionDir,
	}
}

// ProcessingMode returns the configured initial filter composition mode.
func (c Config) ProcessingMode() filter.Mode {
	m, _ := filter.ParseMode(c.Filters.Mode)
	return m
}
