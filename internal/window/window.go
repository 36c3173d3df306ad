// Package window slices an episode into overlapping fixed-size observation windows.
package window

import (
	"errors"
	"fmt"
	"image"
)

// DefaultSize is the number of timesteps per observation window.
const DefaultSize = 2

// ErrWindowTooLarge is returned when a window does not fit inside the episode.
var ErrWindowTooLarge = errors.New("window exceeds episode")

// #region span
// Span is the inclusive step range [Start, End] covered by one window.
type Span struct {
	Start int
	End   int
}

// Count returns how many windows of size w fit into t steps.
func Count(t, w int) int {
	if w <= 0 || t < w {
		return 0
	}
	return t - w + 1
}

// Spans returns every window of size w over t steps, in order.
func Spans(t, w int) []Span {
	n := Count(t, w)
	out := make([]Span, n)
	for i := 0; i < n; i++ {
		out[i] = Span{Start: i, End: i + w - 1}
	}
	return out
}

// Size returns the number of steps in the span.
func (s Span) Size() int {
	return s.End - s.Start + 1
}

// #endregion span

// #region observation
// Observation is the model input for one window: batch-of-one image stacks
// plus the timestep pad mask.
type Observation struct {
	ImagePrimary    Tensor
	ImageWrist      Tensor
	TimestepPadMask [][]bool // [1][W], true for every present timestep
}

// Build stacks the primary and wrist frames covered by span.
func Build(primary, wrist []image.Image, span Span) (Observation, error) {
	if span.Start < 0 || span.End >= len(primary) || span.End >= len(wrist) || span.Size() <= 0 {
		return Observation{}, fmt.Errorf("%w: span [%d,%d] over %d steps", ErrWindowTooLarge, span.Start, span.End, len(primary))
	}

	prim, err := FromImages(primary[span.Start : span.End+1])
	if err != nil {
		return Observation{}, fmt.Errorf("primary: %w", err)
	}
	wr, err := FromImages(wrist[span.Start : span.End+1])
	if err != nil {
		return Observation{}, fmt.Errorf("wrist: %w", err)
	}

	mask := make([]bool, span.Size())
	for i := range mask {
		mask[i] = true
	}
	return Observation{
		ImagePrimary:    prim,
		ImageWrist:      wr,
		TimestepPadMask: [][]bool{mask},
	}, nil
}

// #endregion observation
