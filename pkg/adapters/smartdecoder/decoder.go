// Package smartdecoder provides a video decoder that probes containers with the
// cheapest available backend and streams frames through ffmpeg.
package smartdecoder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/user/framelab/pkg/adapters/ffmpegbin"
	"github.com/user/framelab/pkg/adapters/mp4probe"
	"github.com/user/framelab/pkg/ports"
)

// Backend names the component that read the stream properties.
type Backend string

const (
	// BackendMP4 reads the MP4 box structure directly.
	BackendMP4 Backend = "mp4ff"
	// BackendFFprobe asks ffprobe.
	BackendFFprobe Backend = "ffprobe"
)

// Info describes the last probe.
type Info struct {
	Codec   string
	Backend Backend
}

// Options configures the decoder.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
}

var (
	// ErrNoDecoderAvailable is returned when ffmpeg cannot be found.
	ErrNoDecoderAvailable = errors.New("smartdecoder: no decoder available")
	// ErrProbeFailed is returned when no backend could read the stream properties.
	ErrProbeFailed = errors.New("smartdecoder: probe failed")
)

// Decoder implements ports.VideoDecoder.
type Decoder struct {
	mu      sync.Mutex
	info    Info
	streams map[*stream]struct{}
}

// New creates a decoder.
func New(opts Options) *Decoder {
	if opts.FFmpegPath != "" {
		ffmpegbin.SetPath(opts.FFmpegPath)
	}
	return &Decoder{streams: make(map[*stream]struct{})}
}

// IsAvailable reports whether frames can be decoded on this system.
func IsAvailable() bool {
	return ffmpegbin.Available()
}

// Info returns information about the last probe.
func (d *Decoder) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// Probe reads stream properties. MP4 family containers are read directly;
// everything else, or an MP4 the box parser rejects, goes to ffprobe.
func (d *Decoder) Probe(path string) (ports.VideoInfo, error) {
	var mp4Err error
	if isMP4(path) {
		info, err := mp4probe.ProbeFile(path)
		if err == nil && info.Width > 0 && info.Height > 0 && info.FrameCount > 0 {
			d.setInfo(Info{Codec: info.Codec, Backend: BackendMP4})
			return info, nil
		}
		mp4Err = err
	}

	info, err := ffprobe(path)
	if err != nil {
		return ports.VideoInfo{}, fmt.Errorf("%w: %s: %w", ErrProbeFailed, path, errors.Join(mp4Err, err))
	}
	d.setInfo(Info{Codec: info.Codec, Backend: BackendFFprobe})
	return info, nil
}

func (d *Decoder) setInfo(info Info) {
	d.mu.Lock()
	d.info = info
	d.mu.Unlock()
}

// OpenStream starts an ffmpeg pipe that decodes path from frame start as RGBA.
// Frames are scaled to the probed size so that rotated or anamorphic streams
// keep a fixed frame size.
func (d *Decoder) OpenStream(path string, info ports.VideoInfo, start int) (ports.FrameStream, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", info.Width, info.Height)
	}
	fps := info.FPS
	if fps <= 0 {
		fps = 30
	}
	ffmpegPath, err := ffmpegbin.Find()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDecoderAvailable, err)
	}

	s := &stream{dec: d}
	s.cmd = exec.Command(ffmpegPath, streamArgs(path, info.Width, info.Height, fps, start)...)
	s.cmd.Stderr = &s.stderr
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	s.stdout = stdout
	s.raw = newRawReader(bufio.NewReaderSize(stdout, info.Width*info.Height*4), info.Width, info.Height, fps, start)

	d.mu.Lock()
	d.streams[s] = struct{}{}
	d.mu.Unlock()
	return s, nil
}

// streamArgs seeks on the input so ffmpeg skips to the nearest keyframe and
// decodes only from there to start.
func streamArgs(path string, width, height int, fps float64, start int) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if start > 0 {
		args = append(args, "-ss", strconv.FormatFloat(float64(start)/fps, 'f', 6, 64))
	}
	return append(args,
		"-i", path,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
}

// stream is one running ffmpeg decode.
type stream struct {
	dec    *Decoder
	cmd    *exec.Cmd
	stdout io.ReadCloser
	raw    *rawReader
	stderr bytes.Buffer
	waited bool
}

// Next returns the next frame. When ffmpeg fails before producing a single
// frame its stderr is returned instead of io.EOF.
func (s *stream) Next() (ports.VideoFrame, error) {
	if s.waited {
		return ports.VideoFrame{}, io.EOF
	}
	vf, err := s.raw.next()
	if !errors.Is(err, io.EOF) {
		return vf, err
	}
	if werr := s.wait(); werr != nil && s.raw.read == 0 {
		return ports.VideoFrame{}, fmt.Errorf("ffmpeg decode failed: %w\nstderr: %s", werr, s.stderr.String())
	}
	return ports.VideoFrame{}, io.EOF
}

// Close stops ffmpeg if it is still running.
func (s *stream) Close() error {
	if s.waited {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdout.Close()
	_ = s.wait()
	return nil
}

func (s *stream) wait() error {
	s.waited = true
	err := s.cmd.Wait()
	s.dec.mu.Lock()
	delete(s.dec.streams, s)
	s.dec.mu.Unlock()
	return err
}

// rawReader splits a stream of packed RGBA frames.
type rawReader struct {
	r      io.Reader
	width  int
	height int
	fps    float64
	index  int
	read   int
}

func newRawReader(r io.Reader, width, height int, fps float64, start int) *rawReader {
	if fps <= 0 {
		fps = 30
	}
	return &rawReader{r: r, width: width, height: height, fps: fps, index: start}
}

// next reads one frame. A truncated trailing frame counts as the end.
func (r *rawReader) next() (ports.VideoFrame, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	_, err := io.ReadFull(r.r, img.Pix)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ports.VideoFrame{}, io.EOF
	}
	if err != nil {
		return ports.VideoFrame{}, fmt.Errorf("read frame %d: %w", r.index, err)
	}
	vf := ports.VideoFrame{
		Image:       img,
		Index:       r.index,
		TimestampMs: int(float64(r.index) * 1000 / r.fps),
	}
	r.index++
	r.read++
	return vf, nil
}

// Close stops every running decode.
func (d *Decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for s := range d.streams {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	}
}

func isMP4(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return true
	}
	return false
}

type probeOutput struct {
	Streams []struct {
		CodecName     string `json:"codec_name"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		RFrameRate    string `json:"r_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
		Duration      string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func ffprobe(path string) (ports.VideoInfo, error) {
	probePath, err := ffmpegbin.FindProbe()
	if err != nil {
		return ports.VideoInfo{}, err
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(probePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=codec_name,width,height,avg_frame_rate,r_frame_rate,nb_frames,nb_read_packets,duration:format=duration",
		"-of", "json",
		path,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ports.VideoInfo{}, fmt.Errorf("ffprobe: %w\nstderr: %s", err, stderr.String())
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (ports.VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ports.VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return ports.VideoInfo{}, mp4probe.ErrNoVideoTrack
	}
	s := out.Streams[0]

	info := ports.VideoInfo{
		Width:  s.Width,
		Height: s.Height,
		Codec:  s.CodecName,
		FPS:    parseRate(s.AvgFrameRate),
	}
	if info.FPS == 0 {
		info.FPS = parseRate(s.RFrameRate)
	}
	info.FrameCount, _ = strconv.Atoi(s.NbReadPackets)
	if info.FrameCount == 0 {
		info.FrameCount, _ = strconv.Atoi(s.NbFrames)
	}
	duration := s.Duration
	if duration == "" || duration == "N/A" {
		duration = out.Format.Duration
	}
	if sec, err := strconv.ParseFloat(duration, 64); err == nil {
		info.DurationMs = int(sec * 1000)
	}
	return info, nil
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
