package filter

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/user/framelab/pkg/frame"
	"github.com/user/framelab/pkg/ports"
)

// Params holds the tunable constants of the parametric filters.
type Params struct {
	BinaryThreshold uint8
	EdgesLow        float64
	EdgesHigh       float64
	BlurSigma       float64
}

// DefaultParams returns the thresholds used when nothing is configured.
func DefaultParams() Params {
	return Params{
		BinaryThreshold: 127,
		EdgesLow:        100,
		EdgesHigh:       200,
		BlurSigma:       1.1,
	}
}

// Env carries everything Apply needs besides the frame itself.
type Env struct {
	Params Params
	// Annotator draws detections for OpAnnotate. A nil Annotator turns
	// OpAnnotate into an identity copy.
	Annotator ports.Annotator
}

// DefaultEnv returns an Env with default parameters and no annotator.
func DefaultEnv() Env {
	return Env{Params: DefaultParams()}
}

var (
	sharpenKernel   = [9]float64{-1, -1, -1, -1, 9, -1, -1, -1, -1}
	embossKernel    = [9]float64{-2, -1, 0, -1, 1, 1, 0, 1, 2}
	laplacianKernel = [9]float64{0, 1, 0, 1, -4, 1, 0, 1, 0}
	sobelXKernel    = [9]float64{-1, 0, 1, -2, 0, 2, -1, 0, 1}
	sobelYKernel    = [9]float64{-1, -2, -1, 0, 0, 0, 1, 2, 1}
)

// Apply runs a single operation on f and returns the result. f is never modified.
// Apply panics when op is not one of the defined operations.
func Apply(ctx context.Context, f frame.Frame, op Op, env Env) (frame.Frame, error) {
	if f.IsZero() {
		return f, nil
	}
	src := f.Pixels()

	switch op {
	case OpNone:
		return f.Clone(), nil
	case OpBlur:
		sigma := env.Params.BlurSigma
		if sigma <= 0 {
			sigma = DefaultParams().BlurSigma
		}
		return frame.FromImage(imaging.Blur(src, sigma)), nil
	case OpSharpen:
		return frame.FromImage(imaging.Convolve3x3(src, sharpenKernel, nil)), nil
	case OpEmboss:
		return frame.FromImage(imaging.Convolve3x3(src, embossKernel, nil)), nil
	case OpLaplacian:
		return frame.FromImage(imaging.Convolve3x3(src, laplacianKernel, &imaging.ConvolveOptions{Abs: true})), nil
	case OpGradient:
		return gradient(f), nil
	case OpEdges:
		return edges(f, env.Params.EdgesLow, env.Params.EdgesHigh), nil
	case OpGrayscale:
		return frame.FromImage(imaging.Grayscale(src)), nil
	case OpBinary:
		return binary(f, env.Params.BinaryThreshold), nil
	case OpAnnotate:
		if env.Annotator == nil {
			return f.Clone(), nil
		}
		img, err := env.Annotator.Annotate(ctx, src)
		if err != nil {
			return frame.Frame{}, fmt.Errorf("annotate: %w", err)
		}
		return frame.FromImage(img), nil
	default:
		panic(fmt.Sprintf("filter: unknown operation %d", int(op)))
	}
}

// gradient combines the absolute horizontal and vertical Sobel responses with equal weight.
func gradient(src frame.Frame) frame.Frame {
	abs := &imaging.ConvolveOptions{Abs: true}
	gx := imaging.Convolve3x3(src.Pixels(), sobelXKernel, abs)
	gy := imaging.Convolve3x3(src.Pixels(), sobelYKernel, abs)

	out := frame.New(src.Width(), src.Height())
	dst := out.Pixels()
	for i := 0; i < len(dst.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := 0.5*float64(gx.Pix[i+c]) + 0.5*float64(gy.Pix[i+c])
			dst.Pix[i+c] = uint8(v + 0.5)
		}
	}
	return out
}

func binary(f frame.Frame, threshold uint8) frame.Frame {
	gray := imaging.Grayscale(f.Pixels())
	out := frame.New(f.Width(), f.Height())
	dst := out.Pixels()
	for i := 0; i < len(dst.Pix); i += 4 {
		var v uint8
		if gray.Pix[i] > threshold {
			v = 0xff
		}
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = v, v, v
	}
	return out
}
