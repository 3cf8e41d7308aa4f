package mocks

import (
	"sync"

	"github.com/user/framelab/pkg/ports"
)

// Display is a mock implementation of ports.Display that keeps every frame shown.
type Display struct {
	mu sync.Mutex

	ShowFunc func(frame ports.DisplayFrame) error
	Shown    []ports.DisplayFrame
}

func (m *Display) Show(frame ports.DisplayFrame) error {
	m.mu.Lock()
	m.Shown = append(m.Shown, frame)
	m.mu.Unlock()
	if m.ShowFunc != nil {
		return m.ShowFunc(frame)
	}
	return nil
}

// Last returns the most recently shown frame.
func (m *Display) Last() (ports.DisplayFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Shown) == 0 {
		return ports.DisplayFrame{}, false
	}
	return m.Shown[len(m.Shown)-1], true
}

// Count returns how many frames were shown.
func (m *Display) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Shown)
}

var _ ports.Display = (*Display)(nil)
