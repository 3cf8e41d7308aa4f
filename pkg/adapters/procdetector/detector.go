// Package procdetector runs an object detection model in a worker process.
// Frames go to the worker's stdin and detections come back on its stdout,
// both as length-prefixed msgpack messages.
package procdetector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/user/framelab/pkg/ports"
)

var (
	// ErrNoCommand is returned when no worker command is configured.
	ErrNoCommand = errors.New("procdetector: no worker command configured")
	// ErrWorker is returned when the worker fails or reports an error.
	ErrWorker = errors.New("procdetector: worker failed")
)

// Config describes the worker process.
type Config struct {
	Command string
	Args    []string
	// Env is appended to the current environment.
	Env []string
	// Confidence is forwarded to the worker as its detection threshold.
	Confidence float64
	// JPEGQuality for frames sent to the worker.
	JPEGQuality int
}

// Detector implements ports.Detector. The worker is started on first use
// and restarted after a failure.
type Detector struct {
	cfg      Config
	renderer ports.Renderer
	logger   ports.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	seq    uint64
	done   chan struct{}
}

// New creates a detector.
func New(cfg Config, renderer ports.Renderer, logger ports.Logger) (*Detector, error) {
	if cfg.Command == "" {
		return nil, ErrNoCommand
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.5
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 90
	}
	return &Detector{
		cfg:      cfg,
		renderer: renderer,
		logger:   logger.WithComponent("detector"),
	}, nil
}

func (d *Detector) startLocked() error {
	cmd := exec.Command(d.cfg.Command, d.cfg.Args...)
	cmd.Env = append(os.Environ(), d.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %w", ErrWorker, d.cfg.Command, err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.done = make(chan struct{})
	d.logger.Debug("Detector worker started: %s (pid %d)", d.cfg.Command, cmd.Process.Pid)

	go d.logStderr(stderr)
	go func(cmd *exec.Cmd, done chan struct{}) {
		err := cmd.Wait()
		close(done)
		if err != nil {
			d.logger.Debug("Detector worker exited: %v", err)
		}
	}(cmd, d.done)
	return nil
}

func (d *Detector) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		d.logger.Debug("worker: %s", scanner.Text())
	}
}

// Detect sends img to the worker and waits for its detections.
// Cancelling ctx kills the worker; the next call starts a fresh one.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]ports.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := d.renderer.EncodeImage(img, ports.FormatJPEG, d.cfg.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		if err := d.startLocked(); err != nil {
			return nil, err
		}
	}

	d.seq++
	req := request{
		Seq:        d.seq,
		FrameData:  data,
		Width:      img.Bounds().Dx(),
		Height:     img.Bounds().Dy(),
		Confidence: d.cfg.Confidence,
	}

	type result struct {
		resp response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		var res result
		if err := writeMessage(d.stdin, req); err != nil {
			res.err = err
		} else {
			res.err = readMessage(d.stdout, &res.resp)
		}
		ch <- res
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			d.stopLocked()
			return nil, fmt.Errorf("%w: %w", ErrWorker, res.err)
		}
		if res.resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrWorker, res.resp.Error)
		}
		if res.resp.Seq != 0 && res.resp.Seq != req.Seq {
			d.stopLocked()
			return nil, fmt.Errorf("%w: response for frame %d, expected %d", ErrWorker, res.resp.Seq, req.Seq)
		}
		d.logger.Debug("Detected %d objects in %.1fms", len(res.resp.Detections), res.resp.Timing.TotalMs)
		return toDetections(res.resp.Detections), nil
	case <-ctx.Done():
		d.stopLocked()
		<-ch
		return nil, ctx.Err()
	}
}

func toDetections(in []detection) []ports.Detection {
	out := make([]ports.Detection, 0, len(in))
	for _, det := range in {
		if len(det.Box) != 4 {
			continue
		}
		out = append(out, ports.Detection{
			Label:      det.Label,
			Confidence: det.Confidence,
			Box:        image.Rect(int(det.Box[0]), int(det.Box[1]), int(det.Box[2]), int(det.Box[3])),
		})
	}
	return out
}

func (d *Detector) stopLocked() {
	if d.cmd == nil {
		return
	}
	d.stdin.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	<-d.done
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
}

// Close stops the worker.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	return nil
}

// Ensure Detector implements ports.Detector
var _ ports.Detector = (*Detector)(nil)
