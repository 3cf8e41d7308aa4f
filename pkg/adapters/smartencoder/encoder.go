// Package smartencoder selects the best available video encoder with fallback support.
package smartencoder

import (
	"errors"
	"fmt"

	"github.com/user/framelab/pkg/adapters/ffmpegbin"
	"github.com/user/framelab/pkg/adapters/ffmpegencoder"
	"github.com/user/framelab/pkg/adapters/mjpegencoder"
	"github.com/user/framelab/pkg/ports"
)

// Codec represents the video codec type.
type Codec string

const (
	// CodecH264 represents H.264/AVC codec.
	CodecH264 Codec = "h264"
	// CodecMPEG4 represents MPEG-4 Part 2, the codec behind the "mp4v" FourCC.
	CodecMPEG4 Codec = "mpeg4"
	// CodecMJPEG writes Motion-JPEG AVI files in-process, without ffmpeg.
	CodecMJPEG Codec = "mjpeg"
)

// Container returns the file extension the codec must be written with, or ""
// when the configured container applies.
func (c Codec) Container() string {
	if c == CodecMJPEG {
		return mjpegencoder.Ext
	}
	return ""
}

// ParseCodec maps a configuration value to a Codec. Empty selects H.264.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "h264", "avc", "libx264":
		return CodecH264, nil
	case "mpeg4", "mp4v":
		return CodecMPEG4, nil
	case "mjpeg", "mjpg":
		return CodecMJPEG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

// Info contains information about the selected encoder.
type Info struct {
	// Codec is the actual codec being used.
	Codec Codec
	// RequestedCodec is the codec that was originally requested.
	RequestedCodec Codec
	// FallbackUsed indicates whether a fallback occurred.
	FallbackUsed bool
}

// Options configures the smart encoder behavior.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// DisableFallback makes New fail instead of falling back to MPEG-4 or
	// Motion-JPEG when the preferred codec is not available.
	DisableFallback bool
	// Logger is used to log fallback warnings.
	Logger ports.Logger
}

var (
	// ErrNoEncoderAvailable is returned when no encoder is available.
	ErrNoEncoderAvailable = errors.New("smartencoder: no encoder available")
	// ErrUnknownCodec is returned by ParseCodec.
	ErrUnknownCodec = errors.New("smartencoder: unknown codec")
)

var encoderNames = map[Codec]ffmpegencoder.Codec{
	CodecH264:  ffmpegencoder.CodecH264,
	CodecMPEG4: ffmpegencoder.CodecMPEG4,
}

// fallbacks are tried in order when the preferred codec is unavailable.
var fallbacks = []Codec{CodecMPEG4, CodecMJPEG}

// New creates a new video encoder with automatic codec selection.
//
// The selection flow:
//  1. Use the preferred codec if it is available (ffmpeg codecs need the
//     local ffmpeg build to have the encoder)
//  2. Fall back to MPEG-4, then Motion-JPEG, unless DisableFallback is set
func New(preferred Codec, opts Options) (ports.VideoEncoder, Info, error) {
	if opts.FFmpegPath != "" {
		ffmpegbin.SetPath(opts.FFmpegPath)
	}
	hasFFmpeg := ffmpegbin.Available()

	info, err := selectCodec(preferred, !opts.DisableFallback, func(c Codec) bool {
		if c == CodecMJPEG {
			return true
		}
		return hasFFmpeg && ffmpegbin.HasEncoder(string(encoderNames[c]))
	})
	if err != nil {
		if !hasFFmpeg {
			err = fmt.Errorf("%w: %w", err, ffmpegbin.ErrFFmpegNotFound)
		}
		return nil, info, err
	}
	if info.FallbackUsed && opts.Logger != nil {
		opts.Logger.Warn("Encoder %s not available, falling back to %s", info.RequestedCodec, info.Codec)
	}
	if info.Codec == CodecMJPEG {
		return mjpegencoder.New(), info, nil
	}
	return ffmpegencoder.New(encoderNames[info.Codec]), info, nil
}

func selectCodec(preferred Codec, allowFallback bool, available func(Codec) bool) (Info, error) {
	if preferred == "" {
		preferred = CodecH264
	}
	info := Info{RequestedCodec: preferred}
	if _, ok := encoderNames[preferred]; !ok && preferred != CodecMJPEG {
		return info, fmt.Errorf("%w: %q", ErrUnknownCodec, preferred)
	}

	if available(preferred) {
		info.Codec = preferred
		return info, nil
	}
	if allowFallback {
		for _, c := range fallbacks {
			if c != preferred && available(c) {
				info.Codec = c
				info.FallbackUsed = true
				return info, nil
			}
		}
	}
	return info, fmt.Errorf("%w: %s", ErrNoEncoderAvailable, preferred)
}

// IsH264Available checks if H.264 encoding is available.
func IsH264Available() bool {
	return ffmpegbin.HasEncoder(string(ffmpegencoder.CodecH264))
}
