package export

import "sort"

// Boundaries returns the segment boundaries for cuts on a stream of the given
// duration: 0, the sorted cuts strictly inside (0, duration), then duration.
// When mergeWithin is positive, a cut closer than mergeWithin seconds to the
// previous kept boundary is dropped.
func Boundaries(cuts []float64, duration, mergeWithin float64) []float64 {
	sorted := make([]float64, 0, len(cuts))
	for _, c := range cuts {
		if c > 0 && c < duration {
			sorted = append(sorted, c)
		}
	}
	sort.Float64s(sorted)

	out := make([]float64, 0, len(sorted)+2)
	out = append(out, 0)
	for _, c := range sorted {
		if mergeWithin > 0 && c-out[len(out)-1] < mergeWithin {
			continue
		}
		out = append(out, c)
	}
	if mergeWithin > 0 && len(out) > 1 && duration-out[len(out)-1] < mergeWithin {
		out = out[:len(out)-1]
	}
	return append(out, duration)
}
