package procdetector

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize bounds a single response from the worker.
const maxMessageSize = 64 << 20

// request is sent to the worker for every frame.
type request struct {
	Seq        uint64  `msgpack:"seq"`
	FrameData  []byte  `msgpack:"frame_data"`
	Width      int     `msgpack:"width"`
	Height     int     `msgpack:"height"`
	Confidence float64 `msgpack:"confidence"`
}

// response is what the worker answers for one frame.
type response struct {
	Seq        uint64      `msgpack:"seq"`
	Detections []detection `msgpack:"detections"`
	Error      string      `msgpack:"error,omitempty"`
	Timing     struct {
		TotalMs     float64 `msgpack:"total_ms"`
		InferenceMs float64 `msgpack:"inference_ms"`
	} `msgpack:"timing"`
}

type detection struct {
	Label      string    `msgpack:"label"`
	Confidence float64   `msgpack:"confidence"`
	Box        []float64 `msgpack:"box"` // x1, y1, x2, y2 in pixels
}

// writeMessage writes v as a 4-byte big-endian length followed by msgpack data.
func writeMessage(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed msgpack message into v.
func readMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
