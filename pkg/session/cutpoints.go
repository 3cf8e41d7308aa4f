package session

import (
	"fmt"
	"math"
	"time"

	"github.com/user/framelab/pkg/source"
)

// MarkCutPoint records the time of the displayed frame as a cut point and returns it.
func (s *Session) MarkCutPoint() (float64, error) {
	if s.src == nil {
		return 0, ErrNoSource
	}
	if s.src.Kind() != source.KindVideo {
		return 0, ErrNotVideo
	}
	t := s.Position()
	s.cutPoints = append(s.cutPoints, t)
	return t, nil
}

// AddCutPoint records an explicit timestamp in seconds.
func (s *Session) AddCutPoint(seconds float64) {
	s.cutPoints = append(s.cutPoints, seconds)
}

// CutPoints returns the marked timestamps in marking order.
func (s *Session) CutPoints() []float64 {
	out := make([]float64, len(s.cutPoints))
	copy(out, s.cutPoints)
	return out
}

// ClearCutPoints forgets every marked timestamp.
func (s *Session) ClearCutPoints() {
	s.cutPoints = nil
}

// Clock formats seconds as H:MM:SS, truncating fractions.
func Clock(seconds float64) string {
	h, m, sec, _ := clockParts(seconds)
	return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
}

// ClockMillis is Clock with milliseconds, H:MM:SS.mmm.
func ClockMillis(seconds float64) string {
	h, m, sec, ms := clockParts(seconds)
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, sec, ms)
}

func clockParts(seconds float64) (h, m, s, ms int) {
	d := time.Duration(math.Round(max(seconds, 0) * float64(time.Second))).Truncate(time.Millisecond)
	return int(d.Hours()), int(d.Minutes()) % 60, int(d.Seconds()) % 60, int(d.Milliseconds() % 1000)
}
