package session

import (
	"context"
	"image"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/region"
)

// SourceRect maps a display rectangle to coordinates of the unzoomed source frame.
func (s *Session) SourceRect(display image.Rectangle) (image.Rectangle, error) {
	if s.current.IsZero() {
		return image.Rectangle{}, ErrNoFrame
	}
	r, err := s.viewport.ToSource(display)
	if err != nil {
		return image.Rectangle{}, err
	}
	if s.zoom.Active() {
		r = r.Add(s.zoom.Rect().Min)
	}
	return r, nil
}

// Extract returns the filtered, unzoomed frame cropped to a display rectangle.
func (s *Session) Extract(ctx context.Context, display image.Rectangle) (frame.Frame, error) {
	r, err := s.SourceRect(display)
	if err != nil {
		return frame.Frame{}, err
	}
	filtered, err := s.chain.Run(ctx, s.original, s.env)
	if err != nil {
		return frame.Frame{}, err
	}
	return region.Extract(filtered, r)
}

// ZoomTo makes a display rectangle the persistent zoom and re-renders.
func (s *Session) ZoomTo(ctx context.Context, display image.Rectangle) (frame.Frame, error) {
	r, err := s.SourceRect(display)
	if err != nil {
		return frame.Frame{}, err
	}
	if err := s.zoom.Set(r); err != nil {
		return frame.Frame{}, err
	}
	return s.Refresh(ctx)
}

// SetZoom sets the persistent zoom in source coordinates.
func (s *Session) SetZoom(ctx context.Context, r image.Rectangle) error {
	if err := s.zoom.Set(r); err != nil {
		return err
	}
	if s.original.IsZero() {
		return nil
	}
	_, err := s.Refresh(ctx)
	return err
}

// ClearZoom removes the persistent zoom.
func (s *Session) ClearZoom(ctx context.Context) error {
	s.zoom.Clear()
	if s.original.IsZero() {
		return nil
	}
	_, err := s.Refresh(ctx)
	return err
}

// ZoomByFactor extracts a display rectangle and rescales it by factor.
func (s *Session) ZoomByFactor(ctx context.Context, display image.Rectangle, factor float64) (frame.Frame, error) {
	crop, err := s.Extract(ctx, display)
	if err != nil {
		return frame.Frame{}, err
	}
	return region.ZoomByFactor(crop, factor)
}
