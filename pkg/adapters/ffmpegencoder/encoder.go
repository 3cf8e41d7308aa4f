// Package ffmpegencoder writes video container files by piping raw RGBA frames
// into an external ffmpeg process.
package ffmpegencoder

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/user/framelab/pkg/adapters/ffmpegbin"
	"github.com/user/framelab/pkg/ports"
	"golang.org/x/image/draw"
)

// Codec is an ffmpeg encoder name.
type Codec string

const (
	// CodecH264 encodes with libx264.
	CodecH264 Codec = "libx264"
	// CodecMPEG4 encodes MPEG-4 Part 2, available in every ffmpeg build.
	CodecMPEG4 Codec = "mpeg4"
)

// DefaultQuality is the CRF used when EncoderOptions.Quality is 0.
const DefaultQuality = 23

// Encoder implements ports.VideoEncoder. One file is open at a time.
type Encoder struct {
	mu sync.Mutex

	codec  Codec
	width  int
	height int
	path   string

	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stderr     bytes.Buffer
	frameCount int
}

// New creates an encoder for the given codec.
func New(codec Codec) *Encoder {
	return &Encoder{codec: codec}
}

// Codec returns the ffmpeg encoder name used for output.
func (e *Encoder) Codec() Codec {
	return e.codec
}

// Begin starts ffmpeg writing to path. Existing files are overwritten.
func (e *Encoder) Begin(path string, width, height int, fps float64, opts ports.EncoderOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin != nil {
		return ErrBusy
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid frame size %dx%d", ErrEncodingFailed, width, height)
	}
	if fps <= 0 {
		fps = 30
	}

	ffmpegPath, err := ffmpegbin.Find()
	if err != nil {
		return err
	}

	args, err := buildArgs(e.codec, path, width, height, fps, opts)
	if err != nil {
		return err
	}

	e.stderr.Reset()
	cmd := exec.Command(ffmpegPath, args...)
	cmd.Stderr = &e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.width = width
	e.height = height
	e.path = path
	e.frameCount = 0
	return nil
}

// buildArgs returns the ffmpeg command line for one output file.
func buildArgs(codec Codec, path string, width, height int, fps float64, opts ports.EncoderOptions) ([]string, error) {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "pipe:0",
		// yuv420p needs even dimensions
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", string(codec),
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}
	if quality > 51 {
		quality = 51
	}

	switch codec {
	case CodecH264:
		args = append(args,
			"-preset", "fast",
			"-crf", strconv.Itoa(quality),
			"-profile:v", "baseline",
			"-level", "3.1",
		)
	case CodecMPEG4:
		// Map the 0-51 CRF scale onto mpeg4's 2-31 quantiser.
		q := 2 + quality*29/51
		args = append(args, "-q:v", strconv.Itoa(q))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}

	if opts.Bitrate > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", opts.Bitrate))
	}

	args = append(args,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		path,
	)
	return args, nil
}

// EncodeFrame writes one frame. Frames are assumed to arrive at the rate given
// to Begin; timestampMs is not used to retime the stream.
func (e *Encoder) EncodeFrame(img image.Image, timestampMs int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil {
		return ErrNotInitialized
	}

	rgba := image.NewRGBA(image.Rect(0, 0, e.width, e.height))
	bounds := img.Bounds()
	if bounds.Dx() == e.width && bounds.Dy() == e.height {
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(rgba, rgba.Bounds(), img, bounds, draw.Src, nil)
	}

	if _, err := e.stdin.Write(rgba.Pix); err != nil {
		return fmt.Errorf("%w: frame %d at %dms: %w", ErrEncodingFailed, e.frameCount, timestampMs, err)
	}
	e.frameCount++
	return nil
}

// End closes the input pipe and waits for ffmpeg to finish the file.
// A file that received no frames is removed.
func (e *Encoder) End() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil {
		return ErrNotInitialized
	}

	e.stdin.Close()
	e.stdin = nil
	err := e.cmd.Wait()
	e.cmd = nil

	if e.frameCount == 0 {
		os.Remove(e.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w\nstderr: %s", ErrEncodingFailed, err, e.stderr.String())
	}
	return nil
}

// FrameCount returns the number of frames written to the current or last file.
func (e *Encoder) FrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameCount
}

// Ensure Encoder implements ports.VideoEncoder
var _ ports.VideoEncoder = (*Encoder)(nil)
