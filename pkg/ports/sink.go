package ports

import (
	"image"
)

// FrameSink writes numbered still frames into a directory.
type FrameSink interface {
	// SaveFrame encodes img and stores it as frame_<NNNN>.<ext> under dir.
	SaveFrame(dir string, index int, img image.Image) (string, error)

	// SaveImage encodes img and stores it at path; the format follows the extension.
	SaveImage(path string, img image.Image) error
}
