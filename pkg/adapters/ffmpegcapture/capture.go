// Package ffmpegcapture reads a live camera through an ffmpeg child process
// that emits raw RGBA frames on stdout.
package ffmpegcapture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/user/framelab/pkg/adapters/ffmpegbin"
	"github.com/user/framelab/pkg/ports"
)

var (
	// ErrNotOpen is returned by Read before Open succeeds.
	ErrNotOpen = errors.New("ffmpegcapture: device not open")
	// ErrPlatformNotSupported is returned where no input format is known.
	ErrPlatformNotSupported = errors.New("ffmpegcapture: platform not supported")
)

// Options configures the requested capture mode.
type Options struct {
	Width  int
	Height int
	FPS    float64
	// InputFormat overrides the ffmpeg demuxer (v4l2, avfoundation, dshow).
	InputFormat string
	// InputName overrides the device name derived from the index.
	InputName string
}

// DefaultOptions requests 640x480 at 30 fps.
func DefaultOptions() Options {
	return Options{Width: 640, Height: 480, FPS: 30}
}

// Capture implements ports.CaptureDevice.
type Capture struct {
	opts Options

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr stderrBuffer
}

// stderrBuffer collects ffmpeg's stderr. os/exec writes it from its own
// goroutine, so every access is locked.
type stderrBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *stderrBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *stderrBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// New creates a capture device.
func New(opts Options) *Capture {
	def := DefaultOptions()
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = def.Width, def.Height
	}
	if opts.FPS <= 0 {
		opts.FPS = def.FPS
	}
	return &Capture{opts: opts}
}

// inputArgs returns the demuxer arguments for a device index on goos.
func inputArgs(goos string, device int, opts Options) ([]string, error) {
	format := opts.InputFormat
	name := opts.InputName
	switch {
	case format != "":
	case goos == "linux":
		format = "v4l2"
	case goos == "darwin":
		format = "avfoundation"
	case goos == "windows":
		format = "dshow"
	default:
		return nil, fmt.Errorf("%w: %s", ErrPlatformNotSupported, goos)
	}
	if name == "" {
		switch format {
		case "v4l2":
			name = "/dev/video" + strconv.Itoa(device)
		case "avfoundation":
			name = strconv.Itoa(device)
		default:
			return nil, fmt.Errorf("%w: %s needs an explicit device name", ErrPlatformNotSupported, format)
		}
	}

	return []string{
		"-f", format,
		"-framerate", strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-i", name,
	}, nil
}

// Open starts ffmpeg on the device with the given index.
func (c *Capture) Open(device int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		c.closeLocked()
	}

	ffmpegPath, err := ffmpegbin.Find()
	if err != nil {
		return err
	}
	in, err := inputArgs(runtime.GOOS, device, c.opts)
	if err != nil {
		return err
	}
	args := append([]string{"-hide_banner", "-loglevel", "error"}, in...)
	args = append(args,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", c.opts.Width, c.opts.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)

	c.stderr.Reset()
	cmd := exec.Command(ffmpegPath, args...)
	cmd.Stderr = &c.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	c.cmd = cmd
	c.stdout = stdout
	c.reader = bufio.NewReaderSize(stdout, c.opts.Width*c.opts.Height*4)
	return nil
}

// Read blocks until the next frame is available.
func (c *Capture) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reader == nil {
		return nil, ErrNotOpen
	}
	return readFrame(c.reader, c.opts.Width, c.opts.Height, c.stderr.String)
}

// readFrame reads one RGBA frame. stderr is only consulted on failure. A
// device that went away surfaces as io.EOF or io.ErrUnexpectedEOF.
func readFrame(r io.Reader, width, height int, stderr func() string) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if _, err := io.ReadFull(r, img.Pix); err != nil {
		if msg := stderr(); msg != "" {
			return nil, fmt.Errorf("read frame: %w\nstderr: %s", err, msg)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return img, nil
}

// Info returns the capture mode. ffmpeg scales to the requested size, so the
// reported size is always the requested one.
func (c *Capture) Info() ports.CaptureInfo {
	return ports.CaptureInfo{Width: c.opts.Width, Height: c.opts.Height, FPS: c.opts.FPS}
}

// Close stops ffmpeg.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Capture) closeLocked() error {
	if c.cmd == nil {
		return nil
	}
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	c.stdout.Close()
	_ = c.cmd.Wait()
	c.cmd = nil
	c.stdout = nil
	c.reader = nil
	return nil
}

// Ensure Capture implements ports.CaptureDevice
var _ ports.CaptureDevice = (*Capture)(nil)
