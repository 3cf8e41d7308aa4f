package config

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/framelab/pkg/filter"
	"github.com/user/framelab/pkg/pipeline"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Display.CanvasWidth != 800 || cfg.Display.CanvasHeight != 600 {
		t.Errorf("expected 800x600 canvas, got %dx%d", cfg.Display.CanvasWidth, cfg.Display.CanvasHeight)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framelab.yaml")
	content := `
display:
  canvas_width: 1024
playback:
  base_interval_ms: 40
filters:
  mode: cascade
  binary_threshold: 90
export:
  mode: video
  codec: mpeg4
  merge_within_sec: 0.25
detector:
  command: python3
  args: ["detect.py", "--model", "yolo.onnx"]
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Display.CanvasWidth != 1024 {
		t.Errorf("expected canvas width 1024, got %d", cfg.Display.CanvasWidth)
	}
	// Unset values keep their defaults.
	if cfg.Display.CanvasHeight != 600 {
		t.Errorf("expected default canvas height 600, got %d", cfg.Display.CanvasHeight)
	}
	if cfg.Export.FrameExt != "png" {
		t.Errorf("expected default frame ext png, got %s", cfg.Export.FrameExt)
	}
	if len(cfg.Detector.Args) != 3 || cfg.Detector.Command != "python3" {
		t.Errorf("unexpected detector config %+v", cfg.Detector)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.ProcessingMode() != filter.ModeCascade {
		t.Errorf("expected cascade mode, got %s", cfg.ProcessingMode())
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("display: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate_Clamps(t *testing.T) {
	cfg := Defaults()
	cfg.Display.CanvasWidth = 0
	cfg.Filters.BinaryThreshold = 300
	cfg.Filters.EdgesLow, cfg.Filters.EdgesHigh = 200, 100
	cfg.Filters.AnnotateConfidence = 2
	cfg.Export.Quality = 99
	cfg.Export.Workers = -1
	cfg.Export.MergeWithinSec = -3
	cfg.Export.FrameExt = ".JPG"
	cfg.Playback.MaxDecodeErrors = -1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Display.CanvasWidth != 800 {
		t.Errorf("expected default canvas width, got %d", cfg.Display.CanvasWidth)
	}
	if cfg.Filters.BinaryThreshold != 127 {
		t.Errorf("expected default threshold, got %d", cfg.Filters.BinaryThreshold)
	}
	if cfg.Filters.EdgesLow != 100 || cfg.Filters.EdgesHigh != 200 {
		t.Errorf("expected swapped edge thresholds, got %v/%v", cfg.Filters.EdgesLow, cfg.Filters.EdgesHigh)
	}
	if cfg.Filters.AnnotateConfidence != 0.5 {
		t.Errorf("expected default confidence, got %v", cfg.Filters.AnnotateConfidence)
	}
	if cfg.Export.Quality != 23 || cfg.Export.Workers != 4 || cfg.Export.MergeWithinSec != 0 {
		t.Errorf("unexpected export clamps %+v", cfg.Export)
	}
	if cfg.Export.FrameExt != "jpg" {
		t.Errorf("expected normalised frame ext jpg, got %s", cfg.Export.FrameExt)
	}
	if cfg.Playback.MaxDecodeErrors != 50 {
		t.Errorf("expected default decode error limit, got %d", cfg.Playback.MaxDecodeErrors)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"processing mode", func(c *Config) { c.Filters.Mode = "parallel" }},
		{"export mode", func(c *Config) { c.Export.Mode = "gif" }},
		{"record mode", func(c *Config) { c.Record.Mode = "stream" }},
		{"frame ext", func(c *Config) { c.Export.FrameExt = "tiff" }},
		{"capture backend", func(c *Config) { c.Capture.Backend = "directshow" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestToOrchestratorConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Export.Mode = "video"
	cfg.Export.Bitrate = 1500
	cfg.Record.Mode = "frames"
	cfg.Capture.Device = 1
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	oc := cfg.ToOrchestratorConfig()
	if oc.CanvasWidth != 800 || oc.CanvasHeight != 600 {
		t.Errorf("unexpected canvas %dx%d", oc.CanvasWidth, oc.CanvasHeight)
	}
	if oc.Playback.BaseInterval != 30*time.Millisecond || oc.Playback.MaxDecodeErrors != 50 {
		t.Errorf("unexpected playback options %+v", oc.Playback)
	}
	if oc.Filters.BinaryThreshold != 127 || oc.Filters.EdgesHigh != 200 {
		t.Errorf("unexpected filter params %+v", oc.Filters)
	}
	if oc.ExportGranularity != pipeline.GranularityVideo || oc.RecordGranularity != pipeline.GranularityFrames {
		t.Errorf("unexpected granularities %s / %s", oc.ExportGranularity, oc.RecordGranularity)
	}
	if oc.Encoder.Quality != 23 || oc.Encoder.Bitrate != 1500 {
		t.Errorf("unexpected encoder options %+v", oc.Encoder)
	}
	if oc.LiveDevice != 1 || !oc.WriteSummary || oc.EncoderName != "h264" {
		t.Errorf("unexpected config %+v", oc)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		hex  string
		want color.Color
	}{
		{"#ff0000", color.RGBA{R: 255, A: 255}},
		{"00FF80", color.RGBA{G: 255, B: 128, A: 255}},
		{"", color.Black},
		{"#fff", color.Black},
	}
	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			if got := ParseColor(tt.hex); got != tt.want {
				t.Errorf("ParseColor(%q) = %v, want %v", tt.hex, got, tt.want)
			}
		})
	}
}
