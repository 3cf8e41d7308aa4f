// Package filter implements the per-frame transformations and the filter chain
// that replays them on every frame of a video or live source.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFilter is returned when an operator names a filter that does not exist.
var ErrUnknownFilter = errors.New("filter: unknown filter")

// Op identifies one filter operation. The set is closed; Apply panics on values
// outside it.
type Op int

const (
	OpNone Op = iota
	OpBlur
	OpSharpen
	OpEmboss
	OpLaplacian
	OpEdges
	OpGradient
	OpGrayscale
	OpBinary
	OpAnnotate

	opCount
)

var opNames = [opCount]string{
	OpNone:      "none",
	OpBlur:      "blur",
	OpSharpen:   "sharpen",
	OpEmboss:    "emboss",
	OpLaplacian: "laplacian",
	OpEdges:     "edges",
	OpGradient:  "gradient",
	OpGrayscale: "grayscale",
	OpBinary:    "binary",
	OpAnnotate:  "annotate",
}

var opAliases = map[string]Op{
	"canny":     OpEdges,
	"sobel":     OpGradient,
	"gray":      OpGrayscale,
	"grey":      OpGrayscale,
	"threshold": OpBinary,
	"detect":    OpAnnotate,
	"original":  OpNone,
}

// String returns the canonical name of the operation.
func (o Op) String() string {
	if o < 0 || o >= opCount {
		return fmt.Sprintf("op(%d)", int(o))
	}
	return opNames[o]
}

// Valid reports whether o is one of the defined operations.
func (o Op) Valid() bool {
	return o >= 0 && o < opCount
}

// ParseOp maps a filter name (case-insensitive, aliases allowed) to an Op.
func ParseOp(name string) (Op, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range opNames {
		if s == n {
			return Op(i), nil
		}
	}
	if op, ok := opAliases[n]; ok {
		return op, nil
	}
	return OpNone, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
}

// Names returns the canonical names of all operations in declaration order.
func Names() []string {
	out := make([]string, len(opNames))
	copy(out, opNames[:])
	return out
}

// Mode selects what the running frame is at the start of a filter invocation.
type Mode int

const (
	// ModeIndependent starts every invocation from the untouched original frame.
	ModeIndependent Mode = iota
	// ModeCascade starts every invocation from the previous filtered result.
	ModeCascade
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeCascade {
		return "cascade"
	}
	return "independent"
}

// ParseMode parses "independent" or "cascade".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "independent", "":
		return ModeIndependent, nil
	case "cascade":
		return ModeCascade, nil
	default:
		return ModeIndependent, fmt.Errorf("filter: unknown processing mode %q", s)
	}
}
