package filter

import (
	"math"

	"github.com/disintegration/imaging"

	"github.com/user/framelab/pkg/frame"
)

// edges is a Canny detector: Sobel gradients on the luma plane, non-maximum
// suppression along the quantised gradient direction, then hysteresis between
// low and high. Edge pixels are white on black.
func edges(f frame.Frame, low, high float64) frame.Frame {
	if high < low {
		low, high = high, low
	}
	w, h := f.Width(), f.Height()
	luma := imaging.Grayscale(f.Pixels())

	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return float64(luma.Pix[y*luma.Stride+x*4])
	}

	mag := make([]float64, w*h)
	dir := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			mag[y*w+x] = math.Abs(gx) + math.Abs(gy)
			dir[y*w+x] = sector(gx, gy)
		}
	}

	const (
		none uint8 = iota
		weak
		strong
	)
	state := make([]uint8, w*h)
	var stack []int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			var a, b float64
			switch dir[i] {
			case 0:
				a, b = mag[i-1], mag[i+1]
			case 1:
				a, b = mag[i-w+1], mag[i+w-1]
			case 2:
				a, b = mag[i-w], mag[i+w]
			default:
				a, b = mag[i-w-1], mag[i+w+1]
			}
			if m < a || m <= b {
				continue
			}
			if m > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	out := frame.New(w, h)
	dst := out.Pixels()
	for i, s := range state {
		if s == strong {
			p := i * 4
			dst.Pix[p], dst.Pix[p+1], dst.Pix[p+2] = 0xff, 0xff, 0xff
		}
	}
	return out
}

// sector quantises a gradient direction to 0 (horizontal), 1 (45°),
// 2 (vertical) or 3 (135°). Image y grows downward.
func sector(gx, gy float64) uint8 {
	angle := math.Atan2(gy, gx) * 180 / math.Pi
	if angle < 0 {
		angle += 180
	}
	switch {
	case angle < 22.5 || angle >= 157.5:
		return 0
	case angle < 67.5:
		return 3
	case angle < 112.5:
		return 2
	default:
		return 1
	}
}
