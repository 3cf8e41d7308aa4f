package source

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/ports"
)

// DefaultCacheBytes bounds the decoded frames a Video keeps for stepping back
// and re-reading.
const DefaultCacheBytes = 128 << 20

// minCacheFrames applies however large the frames are.
const minCacheFrames = 4

// Video decodes a video file on demand. Frames are read from a decoder stream
// that is restarted at the requested position when a seek leaves the window the
// cache and a short forward skip can serve.
type Video struct {
	path    string
	info    ports.VideoInfo
	decoder ports.VideoDecoder

	stream ports.FrameStream
	next   int // index the stream yields next
	pos    int
	last   int // index of the last frame returned by Read
	cache  *frameCache
}

// OpenVideo probes the file at path and decodes its first frame.
func OpenVideo(path string, decoder ports.VideoDecoder) (*Video, error) {
	return OpenVideoWithCache(path, decoder, DefaultCacheBytes)
}

// OpenVideoWithCache is OpenVideo with an explicit cache budget in bytes.
func OpenVideoWithCache(path string, decoder ports.VideoDecoder, cacheBytes int) (*Video, error) {
	if decoder == nil {
		return nil, fmt.Errorf("%w: %s: no video decoder configured", ErrSourceUnavailable, path)
	}
	info, err := decoder.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, path, err)
	}
	if info.FPS <= 0 || math.IsInf(info.FPS, 0) {
		info.FPS = 30
	}
	if info.FrameCount <= 0 && info.DurationMs > 0 {
		info.FrameCount = int(math.Round(float64(info.DurationMs) * info.FPS / 1000))
	}

	v := &Video{path: path, info: info, decoder: decoder, last: -1}
	v.cache = newFrameCache(cacheFrames(info.Width, info.Height, cacheBytes))

	first, err := v.frameAt(0)
	switch {
	case errors.Is(err, ErrEndOfStream):
		v.closeStream()
		return nil, fmt.Errorf("%w: %s: no frames decoded", ErrSourceUnavailable, path)
	case errors.Is(err, ErrDecode):
	case err != nil:
		v.closeStream()
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, path, err)
	}
	if (v.info.Width == 0 || v.info.Height == 0) && first != nil {
		b := first.Bounds()
		v.info.Width, v.info.Height = b.Dx(), b.Dy()
		v.cache.resize(cacheFrames(v.info.Width, v.info.Height, cacheBytes))
	}
	if v.info.FrameCount <= 0 {
		n, err := v.count()
		if err != nil {
			v.closeStream()
			return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, path, err)
		}
		v.info.FrameCount = n
	}
	v.info.DurationMs = int(float64(v.info.FrameCount) * 1000 / v.info.FPS)
	return v, nil
}

func cacheFrames(width, height, budget int) int {
	size := width * height * 4
	if size <= 0 || budget <= 0 {
		return minCacheFrames
	}
	return max(minCacheFrames, budget/size)
}

func (v *Video) Kind() Kind { return KindVideo }

func (v *Video) Read() (frame.Frame, error) {
	if v.pos >= v.info.FrameCount {
		return frame.Frame{}, ErrEndOfStream
	}
	i := v.pos
	img, err := v.frameAt(i)
	if errors.Is(err, ErrEndOfStream) {
		// The container promised more frames than the stream holds.
		v.info.FrameCount = i
		v.info.DurationMs = int(float64(i) * 1000 / v.info.FPS)
		return frame.Frame{}, err
	}
	v.pos++
	v.last = i
	if err != nil {
		return frame.Frame{}, err
	}
	return frame.FromImage(img), nil
}

// frameAt returns frame i from the cache or the stream. A frame the decoder
// could not decode yields ErrDecode.
func (v *Video) frameAt(i int) (image.Image, error) {
	if img, ok := v.cache.get(i); ok {
		if img == nil {
			return nil, fmt.Errorf("%w: frame %d", ErrDecode, i)
		}
		return img, nil
	}

	if v.stream == nil || i < v.next || i-v.next > v.maxSkip() {
		start := i
		if i == v.last-1 {
			// Stepping backwards: decode a window ending at i so the following
			// steps are served from the cache.
			start = max(0, i-v.cache.capacity+1)
		}
		if err := v.restart(start); err != nil {
			return nil, err
		}
	}

	var img image.Image
	for v.next <= i {
		vf, err := v.stream.Next()
		if errors.Is(err, io.EOF) {
			v.closeStream()
			return nil, ErrEndOfStream
		}
		if err != nil {
			v.closeStream()
			return nil, fmt.Errorf("%w: frame %d: %w", ErrDecode, i, err)
		}
		img = vf.Image
		v.cache.put(v.next, img)
		v.next++
	}
	if img == nil {
		return nil, fmt.Errorf("%w: frame %d", ErrDecode, i)
	}
	return img, nil
}

// maxSkip is how far ahead frameAt decodes through the open stream before it
// restarts the stream at the target instead.
func (v *Video) maxSkip() int {
	return max(30, int(2*v.info.FPS))
}

func (v *Video) restart(start int) error {
	v.closeStream()
	s, err := v.decoder.OpenStream(v.path, v.info, start)
	if err != nil {
		return fmt.Errorf("open stream at frame %d: %w", start, err)
	}
	v.stream = s
	v.next = start
	return nil
}

// count decodes the whole stream once, without caching, to learn its length.
func (v *Video) count() (int, error) {
	if err := v.restart(0); err != nil {
		return 0, err
	}
	defer v.closeStream()
	n := 0
	for {
		_, err := v.stream.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (v *Video) closeStream() {
	if v.stream != nil {
		_ = v.stream.Close()
		v.stream = nil
	}
}

// SeekFrame clamps index to [0, frame count].
func (v *Video) SeekFrame(index int) error {
	v.pos = min(max(index, 0), v.info.FrameCount)
	return nil
}

func (v *Video) SeekTime(seconds float64) error {
	return v.SeekFrame(FrameAt(seconds, v.info.FPS))
}

func (v *Video) Properties() Properties {
	return Properties{
		Width:       v.info.Width,
		Height:      v.info.Height,
		FPS:         v.info.FPS,
		FrameCount:  v.info.FrameCount,
		Position:    v.pos,
		PositionSec: float64(v.pos) / v.info.FPS,
		DurationSec: v.info.DurationSec(),
	}
}

// Codec reports the codec the container declared.
func (v *Video) Codec() string { return v.info.Codec }

func (v *Video) Close() error {
	v.closeStream()
	v.cache.clear()
	v.pos = 0
	v.last = -1
	v.decoder.Close()
	return nil
}

// frameCache keeps the most recently decoded frames, oldest evicted first.
// Undecodable frames are kept as nil images.
type frameCache struct {
	capacity int
	frames   map[int]image.Image
	order    []int
}

func newFrameCache(capacity int) *frameCache {
	return &frameCache{capacity: capacity, frames: make(map[int]image.Image, capacity)}
}

func (c *frameCache) get(i int) (image.Image, bool) {
	img, ok := c.frames[i]
	return img, ok
}

func (c *frameCache) put(i int, img image.Image) {
	if _, ok := c.frames[i]; !ok {
		c.order = append(c.order, i)
	}
	c.frames[i] = img
	c.evict()
}

func (c *frameCache) resize(capacity int) {
	c.capacity = capacity
	c.evict()
}

func (c *frameCache) evict() {
	for len(c.order) > c.capacity {
		delete(c.frames, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *frameCache) clear() {
	c.frames = make(map[int]image.Image, c.capacity)
	c.order = nil
}

func (c *frameCache) len() int { return len(c.order) }
