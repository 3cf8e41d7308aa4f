package ffmpegencoder

import "errors"

var (
	// ErrNotInitialized is returned when encoder methods are called before Begin.
	ErrNotInitialized = errors.New("ffmpegencoder: encoder not initialized")

	// ErrBusy is returned when Begin is called while a file is still open.
	ErrBusy = errors.New("ffmpegencoder: encoder already writing a file")

	// ErrEncodingFailed is returned when ffmpeg rejects a frame or exits with an error.
	ErrEncodingFailed = errors.New("ffmpegencoder: encoding failed")

	// ErrUnsupportedCodec is returned for codecs the encoder has no arguments for.
	ErrUnsupportedCodec = errors.New("ffmpegencoder: unsupported codec")
)
