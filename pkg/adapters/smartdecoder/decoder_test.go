package smartdecoder

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"github.com/user/framelab/pkg/adapters/ffmpegbin"
	"github.com/user/framelab/pkg/ports"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997},
		{"25", 25},
		{"0/0", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseRate(tt.in); math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("parseRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams": [{
			"codec_name": "h264",
			"width": 1280,
			"height": 720,
			"avg_frame_rate": "24000/1001",
			"r_frame_rate": "24000/1001",
			"nb_read_packets": "240",
			"duration": "N/A"
		}],
		"format": {"duration": "10.010000"}
	}`)

	info, err := parseProbe(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Width != 1280 || info.Height != 720 {
		t.Errorf("expected 1280x720, got %dx%d", info.Width, info.Height)
	}
	if info.FrameCount != 240 {
		t.Errorf("expected 240 frames, got %d", info.FrameCount)
	}
	if info.DurationMs != 10010 {
		t.Errorf("expected 10010ms from format duration, got %d", info.DurationMs)
	}
	if info.Codec != "h264" {
		t.Errorf("expected h264, got %s", info.Codec)
	}
}

func TestParseProbe_NoStreams(t *testing.T) {
	if _, err := parseProbe([]byte(`{"streams": [], "format": {}}`)); err == nil {
		t.Error("expected error without video stream")
	}
}

func TestRawReader(t *testing.T) {
	const w, h = 4, 2
	raw := make([]byte, w*h*4*3+5) // three frames plus a truncated tail
	for i := range raw {
		raw[i] = byte(i / (w * h * 4))
	}

	r := newRawReader(bytes.NewReader(raw), w, h, 10, 20)
	for i := 0; i < 3; i++ {
		f, err := r.next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Index != 20+i || f.TimestampMs != (20+i)*100 {
			t.Errorf("frame %d: index %d timestamp %d", i, f.Index, f.TimestampMs)
		}
		if f.Image.Bounds().Dx() != w || f.Image.Bounds().Dy() != h {
			t.Errorf("frame %d: unexpected size %v", i, f.Image.Bounds())
		}
	}
	if _, err := r.next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on the truncated tail, got %v", err)
	}
	if r.read != 3 {
		t.Errorf("expected 3 frames counted, got %d", r.read)
	}
}

func TestStreamArgs(t *testing.T) {
	args := streamArgs("in.mov", 64, 48, 25, 0)
	if slices.Contains(args, "-ss") {
		t.Errorf("no seek expected from frame 0: %v", args)
	}
	args = streamArgs("in.mov", 64, 48, 25, 50)
	i := slices.Index(args, "-ss")
	if i < 0 || args[i+1] != "2.000000" || slices.Index(args, "-i") < i {
		t.Errorf("expected an input seek to 2s before -i, got %v", args)
	}
	if !slices.Contains(args, "scale=64:48") {
		t.Errorf("expected scaling to the probed size, got %v", args)
	}
}

func TestIsMP4(t *testing.T) {
	for path, want := range map[string]bool{
		"clip.mp4": true,
		"CLIP.MOV": true,
		"a.m4v":    true,
		"a.avi":    false,
		"a.mkv":    false,
	} {
		if got := isMP4(path); got != want {
			t.Errorf("isMP4(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestOpenStream_FFmpeg(t *testing.T) {
	if !IsAvailable() {
		t.Skip("ffmpeg not available")
	}
	if _, err := ffmpegbin.FindProbe(); err != nil {
		t.Skip("ffprobe not available")
	}
	ffmpegPath, _ := ffmpegbin.Find()

	path := filepath.Join(t.TempDir(), "clip.avi")
	gen := exec.Command(ffmpegPath, "-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=10", "-t", "1",
		"-c:v", "mpeg4", path)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test clip: %v: %s", err, out)
	}

	d := New(Options{})
	defer d.Close()

	info, err := d.Probe(path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if d.Info().Backend != BackendFFprobe {
		t.Errorf("expected ffprobe backend for avi, got %s", d.Info().Backend)
	}

	count := func(start int) int {
		s, err := d.OpenStream(path, info, start)
		if err != nil {
			t.Fatalf("OpenStream(%d) failed: %v", start, err)
		}
		defer s.Close()
		n := 0
		for {
			f, err := s.Next()
			if errors.Is(err, io.EOF) {
				return n
			}
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			if f.Index != start+n {
				t.Errorf("expected index %d, got %d", start+n, f.Index)
			}
			n++
		}
	}
	if n := count(0); n != 10 {
		t.Errorf("expected 10 frames, got %d", n)
	}
	if n := count(5); n != 5 {
		t.Errorf("expected 5 frames from frame 5, got %d", n)
	}
}

func TestOpenStream_StopsEarly(t *testing.T) {
	if !IsAvailable() {
		t.Skip("ffmpeg not available")
	}
	d := New(Options{})
	s, err := d.OpenStream(filepath.Join(t.TempDir(), "missing.mp4"), ports.VideoInfo{Width: 8, Height: 8, FPS: 10}, 0)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer s.Close()
	if _, err := s.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected ffmpeg's failure to be reported, got %v", err)
	}
}
