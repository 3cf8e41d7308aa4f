package playback

import (
	"context"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/user/framelab/pkg/adapters/logger"
	"github.com/user/framelab/pkg/filter"
	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/mocks"
	"github.com/user/framelab/pkg/pipeline"
	"github.com/user/framelab/pkg/session"
	"github.com/user/framelab/pkg/source"
)

func newVideo(t *testing.T, fps float64, count int) (*Controller, *mocks.Display) {
	t.Helper()
	sess := session.New(session.Options{Env: filter.DefaultEnv()})
	display := &mocks.Display{}
	c := New(sess, display, DefaultOptions(), logger.NewNoop())
	src, err := source.OpenVideo("clip.mp4", mocks.NewVideoDecoder(16, 16, fps, count))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Load(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, display
}

type fakeRecorder struct {
	active bool
	frames []frame.Frame
	stops  int
}

func (r *fakeRecorder) Active() bool { return r.active }
func (r *fakeRecorder) Append(f frame.Frame) error {
	r.frames = append(r.frames, f)
	return nil
}
func (r *fakeRecorder) Stop() (pipeline.RecordResult, error) {
	r.active = false
	r.stops++
	return pipeline.RecordResult{Path: "rec.mp4", Frames: len(r.frames)}, nil
}

func TestLoad_VideoStartsPlaying(t *testing.T) {
	c, display := newVideo(t, 30, 10)
	if c.State() != Playing {
		t.Errorf("expected Playing, got %v", c.State())
	}
	if display.Count() != 1 {
		t.Errorf("expected first frame shown on load, got %d", display.Count())
	}
	if !c.task.Running() {
		t.Error("expected tick task running")
	}
}

func TestLoad_StillIsPaused(t *testing.T) {
	sess := session.New(session.Options{})
	display := &mocks.Display{}
	c := New(sess, display, DefaultOptions(), logger.NewNoop())
	if err := c.Load(context.Background(), source.NewStill(frame.New(8, 8))); err != nil {
		t.Fatal(err)
	}
	if c.State() != Paused || c.task.Running() {
		t.Errorf("still image should be paused without a running task, state=%v", c.State())
	}
	if display.Count() != 1 {
		t.Errorf("expected still shown once, got %d", display.Count())
	}
}

func TestTick_ForwardAndReverse(t *testing.T) {
	ctx := context.Background()
	c, display := newVideo(t, 30, 10)

	for i := 0; i < 3; i++ {
		if err := c.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if c.Position() != 3 {
		t.Fatalf("expected position 3, got %d", c.Position())
	}

	c.ToggleDirection()
	_ = c.Tick(ctx)
	if c.Position() != 2 {
		t.Errorf("expected position 2 after reverse tick, got %d", c.Position())
	}
	last, _ := display.Last()
	if r := last.Image.At(0, 0); r == nil {
		t.Fatal("expected displayed image")
	}
	if c.State() != Playing {
		t.Errorf("direction toggle should not stop playback, got %v", c.State())
	}
}

func TestTick_ReverseAtZeroDoesNotUnderflow(t *testing.T) {
	ctx := context.Background()
	c, _ := newVideo(t, 30, 10)
	if c.Position() != 0 {
		t.Fatalf("expected position 0 after load, got %d", c.Position())
	}
	c.ToggleDirection()
	for i := 0; i < 3; i++ {
		if err := c.Tick(ctx); err != nil {
			t.Fatal(err)
		}
		if c.Position() != 0 {
			t.Fatalf("expected position to stay 0, got %d", c.Position())
		}
	}
	if c.Session().Original().At(0, 0).R != 0 {
		t.Error("expected frame 0 to be shown")
	}
}

func TestTick_EndOfStreamStops(t *testing.T) {
	ctx := context.Background()
	c, display := newVideo(t, 30, 3)
	for i := 0; i < 5; i++ {
		_ = c.Tick(ctx)
	}
	if c.State() != Stopped {
		t.Errorf("expected Stopped at end of stream, got %v", c.State())
	}
	if c.task.Running() {
		t.Error("expected tick task cancelled")
	}
	if display.Count() != 3 {
		t.Errorf("expected 3 frames shown, got %d", display.Count())
	}
}

func TestTick_DecodeErrorContinues(t *testing.T) {
	ctx := context.Background()
	sess := session.New(session.Options{})
	log := mocks.NewLogger()
	c := New(sess, &mocks.Display{}, DefaultOptions(), log)
	dec := mocks.NewVideoDecoder(8, 8, 10, 4)
	dec.Frames[1].Image = nil
	src, _ := source.OpenVideo("x.mp4", dec)
	if err := c.Load(ctx, src); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_ = c.Tick(ctx) // frame 1 fails
	_ = c.Tick(ctx) // frame 2
	if c.Position() != 2 || sess.Original().At(0, 0).R != 2 {
		t.Errorf("expected playback to continue at frame 2, position=%d", c.Position())
	}
	if len(log.Entries(0)) == 0 {
		t.Error("expected decode failure to be logged")
	}
}

func newLive(t *testing.T, opts Options, read func() (image.Image, error)) (*Controller, *fakeRecorder, *int) {
	t.Helper()
	capture := mocks.NewCaptureDevice(8, 8, 30)
	reads := 0
	capture.ReadFunc = func() (image.Image, error) {
		reads++
		return read()
	}
	src, err := source.OpenLive(0, capture)
	if err != nil {
		t.Fatal(err)
	}
	c := New(session.New(session.Options{}), &mocks.Display{}, opts, logger.NewNoop())
	rec := &fakeRecorder{active: true}
	c.SetRecorder(rec)
	_ = c.Load(context.Background(), src)
	t.Cleanup(func() { _ = c.Close() })
	return c, rec, &reads
}

func TestTick_DeviceGoneStops(t *testing.T) {
	ctx := context.Background()
	c, rec, reads := newLive(t, DefaultOptions(), func() (image.Image, error) {
		return nil, io.EOF
	})
	for i := 0; i < 1000; i++ {
		_ = c.Tick(ctx)
	}
	if c.State() != Stopped {
		t.Errorf("expected Stopped when the device is gone, got %v", c.State())
	}
	if c.task.Running() {
		t.Error("expected tick task cancelled")
	}
	if rec.stops != 1 || rec.active {
		t.Errorf("expected the recording finalised once, got %d stops", rec.stops)
	}
	if *reads != 1 {
		t.Errorf("expected no reads after the stream ended, got %d", *reads)
	}
}

func TestTick_RepeatedDecodeErrorsStop(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.MaxDecodeErrors = 5
	c, rec, reads := newLive(t, opts, func() (image.Image, error) {
		return nil, errors.New("corrupt frame")
	})
	for i := 0; i < 100; i++ {
		_ = c.Tick(ctx)
	}
	if c.State() != Stopped || c.task.Running() {
		t.Errorf("expected playback stopped after 5 unreadable frames, got %v", c.State())
	}
	if *reads != 5 {
		t.Errorf("expected 5 reads, got %d", *reads)
	}
	if rec.stops != 1 {
		t.Errorf("expected the recording finalised, got %d stops", rec.stops)
	}
}

func TestTick_DecodeErrorCountResetsOnGoodFrame(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.MaxDecodeErrors = 3
	n := 0
	c, _, _ := newLive(t, opts, func() (image.Image, error) {
		n++
		if n%3 == 0 {
			return mocks.SolidImage(8, 8, mocks.Gray), nil
		}
		return nil, errors.New("corrupt frame")
	})
	for i := 0; i < 30; i++ {
		_ = c.Tick(ctx)
	}
	if c.State() != Playing {
		t.Errorf("good frames between failures should keep playing, got %v", c.State())
	}
}

func TestTogglePause_ReplaysStoppedVideo(t *testing.T) {
	ctx := context.Background()
	c, display := newVideo(t, 30, 3)
	for i := 0; i < 5; i++ {
		_ = c.Tick(ctx)
	}
	if c.State() != Stopped {
		t.Fatalf("expected Stopped at end of stream, got %v", c.State())
	}

	if got := c.TogglePause(); got != Playing {
		t.Fatalf("expected a stopped video to play again, got %v", got)
	}
	if !c.task.Running() {
		t.Error("expected tick task restarted")
	}
	shown := display.Count()
	_ = c.Tick(ctx)
	if c.Position() != 0 || display.Count() != shown+1 {
		t.Errorf("expected replay from frame 0, position %d", c.Position())
	}
	if c.Session().Original().At(0, 0).R != 0 {
		t.Error("expected frame 0 on screen")
	}
}

func TestTogglePause_StoppedLiveStaysStopped(t *testing.T) {
	c, _, _ := newLive(t, DefaultOptions(), func() (image.Image, error) {
		return nil, io.EOF
	})
	if c.State() != Stopped {
		t.Fatalf("expected Stopped, got %v", c.State())
	}
	if got := c.TogglePause(); got != Stopped || c.task.Running() {
		t.Errorf("a lost device cannot resume, got %v", got)
	}
}

func TestPausedTickRerendersWithNewFilter(t *testing.T) {
	ctx := context.Background()
	c, display := newVideo(t, 30, 30)
	_ = c.Tick(ctx)

	if c.TogglePause() != Paused {
		t.Fatalf("expected Paused")
	}
	pos := c.Position()
	original := c.Session().Original().Clone()

	sess := c.Session()
	sess.SetMode(filter.ModeIndependent)
	if _, err := sess.ApplyFilter(ctx, filter.OpGrayscale); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}

	if c.Position() != pos {
		t.Errorf("paused tick should not advance, got %d want %d", c.Position(), pos)
	}
	last, _ := display.Last()
	if !frame.FromImage(last.Image).IsGray() {
		t.Error("expected grayscale frame on screen")
	}
	if !sess.Original().Equal(original) {
		t.Error("original frame was modified by the filter")
	}

	// A later independent filter starts from the untouched original.
	got, _ := sess.ApplyFilter(ctx, filter.OpBlur)
	want, _ := filter.Apply(ctx, original, filter.OpBlur, sess.Env())
	if !got.Equal(want) {
		t.Error("independent blur should start from the original, not the grayscale result")
	}
}

func TestSpeedClamp(t *testing.T) {
	c := New(session.New(session.Options{}), nil, DefaultOptions(), logger.NewNoop())
	for i := 0; i < 20; i++ {
		c.SpeedUp()
	}
	if c.Speed() != 5.0 {
		t.Errorf("expected max speed 5, got %v", c.Speed())
	}
	if c.Period() != 6*time.Millisecond {
		t.Errorf("expected 6ms period at 5x, got %v", c.Period())
	}
	for i := 0; i < 40; i++ {
		c.SlowDown()
	}
	if c.Speed() != 0.1 {
		t.Errorf("expected min speed 0.1, got %v", c.Speed())
	}

	c = New(session.New(session.Options{}), nil, DefaultOptions(), logger.NewNoop())
	if got := c.SpeedUp(); got != 1.5 {
		t.Errorf("expected 1.5, got %v", got)
	}
	if got := c.SlowDown(); got != 1.125 {
		t.Errorf("expected 1.125, got %v", got)
	}
}

func TestRecorderReceivesProcessedFrames(t *testing.T) {
	ctx := context.Background()
	c, _ := newVideo(t, 30, 10)
	rec := &fakeRecorder{active: true}
	c.SetRecorder(rec)
	_, _ = c.Session().ApplyFilter(ctx, filter.OpGrayscale)

	_ = c.Tick(ctx)
	_ = c.Tick(ctx)
	if len(rec.frames) != 2 {
		t.Fatalf("expected 2 recorded frames, got %d", len(rec.frames))
	}
	if !rec.frames[0].IsGray() {
		t.Error("recorded frame should be processed")
	}
}

func TestRunAndDo(t *testing.T) {
	sess := session.New(session.Options{})
	display := &mocks.Display{}
	opts := DefaultOptions()
	opts.BaseInterval = time.Millisecond
	c := New(sess, display, opts, logger.NewNoop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	src, _ := source.OpenVideo("clip.mp4", mocks.NewVideoDecoder(8, 8, 30, 20))
	if err := c.Do(ctx, func(c *Controller) error { return c.Load(ctx, src) }); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		var state State
		_ = c.Do(ctx, func(c *Controller) error { state = c.State(); return nil })
		if state == Stopped {
			break
		}
		select {
		case <-deadline:
			t.Fatal("playback did not reach end of stream")
		case <-time.After(time.Millisecond):
		}
	}
	if display.Count() != 20 {
		t.Errorf("expected 20 frames shown, got %d", display.Count())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := c.Do(context.Background(), func(*Controller) error { return nil }); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning after exit, got %v", err)
	}
}

func TestSeekTime_ShowsFrameAndKeepsState(t *testing.T) {
	ctx := context.Background()
	c, display := newVideo(t, 10, 20)
	if c.TogglePause() != Paused {
		t.Fatal("expected Paused")
	}
	shown := display.Count()

	if err := c.SeekTime(ctx, 1.0); err != nil {
		t.Fatalf("SeekTime failed: %v", err)
	}
	if c.Position() != 10 {
		t.Errorf("expected frame 10, got %d", c.Position())
	}
	if c.State() != Paused {
		t.Errorf("seek should not change state, got %v", c.State())
	}
	if display.Count() != shown+1 {
		t.Errorf("expected one render after seek, got %d", display.Count()-shown)
	}
	r, _, _, _ := c.Session().Original().Image().At(0, 0).RGBA()
	if r>>8 != 10 {
		t.Errorf("expected pixel of frame 10, got red %d", r>>8)
	}

	// Past the end clamps to the last frame.
	if err := c.SeekTime(ctx, 99); err != nil {
		t.Fatalf("SeekTime past end failed: %v", err)
	}
	if c.Position() != 19 {
		t.Errorf("expected last frame 19, got %d", c.Position())
	}
}

func TestSeekTime_StillUnsupported(t *testing.T) {
	sess := session.New(session.Options{})
	c := New(sess, &mocks.Display{}, DefaultOptions(), logger.NewNoop())
	if err := c.Load(context.Background(), source.NewStill(frame.New(8, 8))); err != nil {
		t.Fatal(err)
	}
	if err := c.SeekTime(context.Background(), 1); !errors.Is(err, source.ErrSeekUnsupported) {
		t.Errorf("expected ErrSeekUnsupported, got %v", err)
	}
}
