// Package playback drives a session at a variable rate: every tick reads the next
// (or previous) frame, runs it through the session's filters and zoom, shows it
// and hands it to an active recording.
package playback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/pipeline"
	"github.com/user/framelab/pkg/ports"
	"github.com/user/framelab/pkg/session"
	"github.com/user/framelab/pkg/source"
)

// ErrNotRunning is returned by Do when the loop has exited.
var ErrNotRunning = errors.New("playback: loop not running")

// State is the playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Options configures timing.
type Options struct {
	BaseInterval   time.Duration
	MinSpeed       float64
	MaxSpeed       float64
	SpeedUpFactor  float64
	SlowDownFactor float64
	// MaxDecodeErrors consecutive undecodable frames stop playback.
	MaxDecodeErrors int
}

// DefaultOptions returns a 30ms base interval, speeds 0.1 to 5.0 and factors 1.5 / 0.75.
func DefaultOptions() Options {
	return Options{
		BaseInterval:    30 * time.Millisecond,
		MinSpeed:        0.1,
		MaxSpeed:        5.0,
		SpeedUpFactor:   1.5,
		SlowDownFactor:  0.75,
		MaxDecodeErrors: 50,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BaseInterval <= 0 {
		o.BaseInterval = d.BaseInterval
	}
	if o.MinSpeed <= 0 {
		o.MinSpeed = d.MinSpeed
	}
	if o.MaxSpeed < o.MinSpeed {
		o.MaxSpeed = math.Max(d.MaxSpeed, o.MinSpeed)
	}
	if o.SpeedUpFactor <= 1 {
		o.SpeedUpFactor = d.SpeedUpFactor
	}
	if o.SlowDownFactor <= 0 || o.SlowDownFactor >= 1 {
		o.SlowDownFactor = d.SlowDownFactor
	}
	if o.MaxDecodeErrors <= 0 {
		o.MaxDecodeErrors = d.MaxDecodeErrors
	}
	return o
}

// Recorder receives every processed frame while active. It is stopped when
// the stream ends.
type Recorder interface {
	Active() bool
	Append(f frame.Frame) error
	Stop() (pipeline.RecordResult, error)
}

type command struct {
	fn   func(*Controller) error
	done chan error
}

// Controller owns a session and its tick task. Methods other than Do must only
// be called from the loop goroutine (inside Do) or while Run is not active.
type Controller struct {
	sess     *session.Session
	display  ports.Display
	recorder Recorder
	logger   ports.Logger
	opts     Options

	state   State
	speed   float64
	reverse bool
	index   int
	overlay *image.Rectangle

	decodeErrs int

	task Task
	cmds chan command
	quit chan struct{}
}

// New creates a controller for sess. display may be nil.
func New(sess *session.Session, display ports.Display, opts Options, logger ports.Logger) *Controller {
	return &Controller{
		sess:    sess,
		display: display,
		logger:  logger.WithComponent("playback"),
		opts:    opts.withDefaults(),
		speed:   1,
		index:   -1,
		cmds:    make(chan command),
		quit:    make(chan struct{}),
	}
}

// Session returns the controlled session.
func (c *Controller) Session() *session.Session { return c.sess }

// SetRecorder attaches a recorder; nil detaches.
func (c *Controller) SetRecorder(r Recorder) { c.recorder = r }

// Run executes ticks and submitted commands until ctx is cancelled.
// The pending tick is cancelled on return.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.quit)
	defer c.task.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.cmds:
			cmd.done <- cmd.fn(c)
		case <-c.task.C():
			if err := c.Tick(ctx); err != nil {
				c.logger.Warn("Tick failed: %v", err)
			}
		}
	}
}

// Do runs fn on the loop goroutine between ticks and returns its error.
func (c *Controller) Do(ctx context.Context, fn func(*Controller) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.quit:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load replaces the session's source and shows its first frame. Video and live
// sources start playing; stills stay paused.
func (c *Controller) Load(ctx context.Context, src source.Source) error {
	c.task.Stop()
	if err := c.sess.SetSource(src); err != nil {
		c.logger.Warn("Closing previous source failed: %v", err)
	}
	c.index = -1
	c.reverse = false
	c.overlay = nil
	c.decodeErrs = 0

	if src.Kind() == source.KindStill {
		c.state = Paused
		f, err := src.Read()
		if err != nil {
			return err
		}
		if _, err := c.sess.IngestAt(ctx, f, 0); err != nil {
			return err
		}
		c.index = 0
		return c.Render()
	}

	c.state = Playing
	c.task.Start(c.Period())
	return c.Tick(ctx)
}

// Close stops playback and releases the source.
func (c *Controller) Close() error {
	c.task.Stop()
	c.state = Stopped
	c.index = -1
	return c.sess.CloseSource()
}

// Tick performs one iteration of the loop.
func (c *Controller) Tick(ctx context.Context) error {
	switch c.state {
	case Playing:
		return c.advance(ctx)
	case Paused:
		if c.sess.Original().IsZero() {
			return nil
		}
		if _, err := c.sess.Refresh(ctx); err != nil {
			return err
		}
		return c.Render()
	default:
		return nil
	}
}

func (c *Controller) advance(ctx context.Context) error {
	src := c.sess.Source()
	if src == nil {
		c.stop()
		return nil
	}

	target := c.index + 1
	if src.Kind() == source.KindVideo {
		if c.reverse {
			target = max(0, c.index-1)
		}
		if err := src.SeekFrame(target); err != nil {
			return fmt.Errorf("seek to frame %d: %w", target, err)
		}
	}

	f, err := src.Read()
	switch {
	case errors.Is(err, source.ErrEndOfStream):
		c.logger.Debug("End of stream at frame %d", c.index)
		c.endOfStream()
		return nil
	case errors.Is(err, source.ErrDecode):
		c.decodeErrs++
		if c.decodeErrs >= c.opts.MaxDecodeErrors {
			c.logger.Error("Stopping after %d unreadable frames: %v", c.decodeErrs, err)
			c.endOfStream()
			return nil
		}
		c.logger.Warn("Skipping frame %d: %v", target, err)
		c.index = target
		return nil
	case err != nil:
		return err
	}
	c.decodeErrs = 0
	c.index = target

	cur, err := c.sess.IngestAt(ctx, f, target)
	if err != nil {
		return err
	}
	if err := c.Render(); err != nil {
		return err
	}
	if c.recorder != nil && c.recorder.Active() {
		if err := c.recorder.Append(cur); err != nil {
			c.logger.Error("Recording failed: %v", err)
		}
	}
	return nil
}

// SeekTime shows the video frame at seconds without changing the playback
// state. Other source kinds return source.ErrSeekUnsupported.
func (c *Controller) SeekTime(ctx context.Context, seconds float64) error {
	src := c.sess.Source()
	if src == nil || src.Kind() != source.KindVideo {
		return source.ErrSeekUnsupported
	}
	p := src.Properties()
	target := source.FrameAt(seconds, p.FPS)
	if p.FrameCount > 0 {
		target = min(target, p.FrameCount-1)
	}
	if err := src.SeekFrame(target); err != nil {
		return fmt.Errorf("seek to frame %d: %w", target, err)
	}
	f, err := src.Read()
	if err != nil {
		return err
	}
	c.index = target
	if _, err := c.sess.IngestAt(ctx, f, target); err != nil {
		return err
	}
	return c.Render()
}

func (c *Controller) stop() {
	c.task.Stop()
	c.state = Stopped
	c.decodeErrs = 0
}

// endOfStream stops playback and finalises an attached recording.
func (c *Controller) endOfStream() {
	c.stop()
	if c.recorder == nil || !c.recorder.Active() {
		return
	}
	res, err := c.recorder.Stop()
	if err != nil {
		c.logger.Error("Failed to stop recording: %v", err)
		return
	}
	c.logger.Info("Recording finished at end of stream: %d frames written to %s", res.Frames, res.Path)
}

// Render shows the session's current frame with the selection overlay, if any.
func (c *Controller) Render() error {
	if c.display == nil || c.sess.Current().IsZero() {
		return nil
	}
	return c.display.Show(c.sess.Display(c.overlay))
}

// SetOverlay sets or clears (nil) the in-progress selection drawn over the frame.
func (c *Controller) SetOverlay(r *image.Rectangle) error {
	c.overlay = r
	return c.Render()
}

// TogglePause switches between Playing and Paused. A video stopped at its end
// plays again from the first frame; other stopped sources stay stopped.
func (c *Controller) TogglePause() State {
	src := c.sess.Source()
	switch c.state {
	case Playing:
		c.state = Paused
	case Paused:
		if src != nil && src.Kind() != source.KindStill {
			c.resume()
		}
	case Stopped:
		if src == nil || src.Kind() != source.KindVideo {
			break
		}
		if n := src.Properties().FrameCount; !c.reverse && c.index >= n-1 {
			c.index = -1
		}
		c.resume()
	}
	return c.state
}

func (c *Controller) resume() {
	c.state = Playing
	if !c.task.Running() {
		c.task.Start(c.Period())
	}
}

// ToggleDirection flips between forward and reverse without stopping.
func (c *Controller) ToggleDirection() bool {
	c.reverse = !c.reverse
	return c.reverse
}

// SpeedUp multiplies the speed by the speed-up factor, up to the maximum.
func (c *Controller) SpeedUp() float64 {
	return c.setSpeed(c.speed * c.opts.SpeedUpFactor)
}

// SlowDown multiplies the speed by the slow-down factor, down to the minimum.
func (c *Controller) SlowDown() float64 {
	return c.setSpeed(c.speed * c.opts.SlowDownFactor)
}

func (c *Controller) setSpeed(v float64) float64 {
	c.speed = math.Min(math.Max(v, c.opts.MinSpeed), c.opts.MaxSpeed)
	c.task.Reset(c.Period())
	return c.speed
}

// Period returns base interval / speed.
func (c *Controller) Period() time.Duration {
	return time.Duration(float64(c.opts.BaseInterval) / c.speed)
}

// State returns the playback state.
func (c *Controller) State() State { return c.state }

// Speed returns the speed multiplier.
func (c *Controller) Speed() float64 { return c.speed }

// Reverse reports whether playback runs backwards.
func (c *Controller) Reverse() bool { return c.reverse }

// Position returns the index of the last frame shown, 0 before the first.
func (c *Controller) Position() int { return max(c.index, 0) }
