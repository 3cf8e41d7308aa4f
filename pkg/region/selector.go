package region

import (
	"errors"
	"image"
)

// ErrNoSelection is returned by End when no drag is in progress.
var ErrNoSelection = errors.New("region: no selection in progress")

// State is the phase of an interactive selection.
type State int

const (
	Idle State = iota
	Dragging
	Resolved
)

func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	case Resolved:
		return "resolved"
	default:
		return "idle"
	}
}

// Selector tracks a rectangle drawn on the display canvas.
// All points are in display coordinates; the selector never touches frame data.
type Selector struct {
	state  State
	anchor image.Point
	cursor image.Point
	result image.Rectangle
}

// Begin starts a new drag at p, discarding any previous selection.
func (s *Selector) Begin(p image.Point) {
	s.state = Dragging
	s.anchor = p
	s.cursor = p
	s.result = image.Rectangle{}
}

// Update moves the free corner to p and returns the in-progress rectangle for
// overlay drawing. ok is false when no drag is in progress.
func (s *Selector) Update(p image.Point) (r image.Rectangle, ok bool) {
	if s.state != Dragging {
		return image.Rectangle{}, false
	}
	s.cursor = p
	return image.Rectangle{Min: s.anchor, Max: p}.Canon(), true
}

// End finishes the drag at p. A zero-area rectangle returns the selector to
// Idle and yields ErrDegenerateRegion.
func (s *Selector) End(p image.Point) (image.Rectangle, error) {
	if s.state != Dragging {
		return image.Rectangle{}, ErrNoSelection
	}
	r := image.Rectangle{Min: s.anchor, Max: p}.Canon()
	if r.Empty() {
		s.Reset()
		return image.Rectangle{}, ErrDegenerateRegion
	}
	s.state = Resolved
	s.cursor = p
	s.result = r
	return r, nil
}

// Reset returns the selector to Idle.
func (s *Selector) Reset() {
	*s = Selector{}
}

// State returns the current phase.
func (s *Selector) State() State { return s.state }

// Rect returns the resolved display rectangle, or the zero rectangle when the
// selector is not Resolved.
func (s *Selector) Rect() image.Rectangle {
	if s.state != Resolved {
		return image.Rectangle{}
	}
	return s.result
}
