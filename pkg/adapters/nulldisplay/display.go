// Package nulldisplay provides a display that discards frames.
package nulldisplay

import (
	"sync/atomic"

	"github.com/user/framelab/pkg/ports"
)

// Display is a no-op implementation of ports.Display for headless runs.
// It only counts the frames it receives.
type Display struct {
	shown atomic.Int64
}

// New creates a new Display.
func New() *Display {
	return &Display{}
}

// Show discards the frame.
func (d *Display) Show(frame ports.DisplayFrame) error {
	d.shown.Add(1)
	return nil
}

// Shown returns the number of frames received.
func (d *Display) Shown() int64 {
	return d.shown.Load()
}

// Ensure Display implements ports.Display
var _ ports.Display = (*Display)(nil)
