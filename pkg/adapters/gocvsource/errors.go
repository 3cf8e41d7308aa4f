package gocvsource

import "errors"

// ErrNotBuilt is returned when the binary was built without the gocv tag.
var ErrNotBuilt = errors.New("gocvsource: built without OpenCV support (use -tags gocv)")
