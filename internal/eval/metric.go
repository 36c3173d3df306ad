package eval

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/montanaflynn/stats"
)

var (
	// ErrShapeMismatch is returned when predictions and ground truth cannot be stacked together.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrEmpty is returned when there is nothing to score.
	ErrEmpty = errors.New("nothing to score")
)

// #region stack
// Stack packs equally sized rows into an [N, D] tensor.
func Stack(rows [][]float32) (*tensors.Tensor, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-width rows", ErrEmpty)
	}
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(r), dim)
		}
	}
	return tensors.FromAnyValue(rows), nil
}

func checkShapes(pred, truth [][]float32) error {
	pt, err := Stack(pred)
	if err != nil {
		return fmt.Errorf("predictions: %w", err)
	}
	tt, err := Stack(truth)
	if err != nil {
		return fmt.Errorf("ground truth: %w", err)
	}
	if ps, ts := pt.Shape().Dimensions, tt.Shape().Dimensions; !slices.Equal(ps, ts) {
		return fmt.Errorf("%w: predictions %v, ground truth %v", ErrShapeMismatch, ps, ts)
	}
	return nil
}

// #endregion stack

// #region l1
// L1 is the mean absolute difference over every window and action dim.
func L1(pred, truth [][]float32) (float64, error) {
	if err := checkShapes(pred, truth); err != nil {
		return 0, err
	}
	var sum float64
	var n int
	for i := range pred {
		for j := range pred[i] {
			sum += math.Abs(float64(pred[i][j]) - float64(truth[i][j]))
			n++
		}
	}
	if n == 0 {
		return 0, ErrEmpty
	}
	return sum / float64(n), nil
}

// PerDimL1 is the mean absolute difference of each action dim across windows.
func PerDimL1(pred, truth [][]float32) ([]float64, error) {
	if err := checkShapes(pred, truth); err != nil {
		return nil, err
	}
	out := make([]float64, len(pred[0]))
	for i := range pred {
		for j := range pred[i] {
			out[j] += math.Abs(float64(pred[i][j]) - float64(truth[i][j]))
		}
	}
	for j := range out {
		out[j] /= float64(len(pred))
	}
	return out, nil
}

// PerWindowL1 is the mean absolute difference of each window across dims.
func PerWindowL1(pred, truth [][]float32) ([]float64, error) {
	if err := checkShapes(pred, truth); err != nil {
		return nil, err
	}
	out := make([]float64, len(pred))
	for i := range pred {
		if len(pred[i]) == 0 {
			continue
		}
		var sum float64
		for j := range pred[i] {
			sum += math.Abs(float64(pred[i][j]) - float64(truth[i][j]))
		}
		out[i] = sum / float64(len(pred[i]))
	}
	return out, nil
}

// #endregion l1

// #region summarize
// Summarize computes the run-level L1 plus per-dim and per-window breakdowns.
func Summarize(pred, truth [][]float32) (Summary, error) {
	l1, err := L1(pred, truth)
	if err != nil {
		return Summary{}, err
	}
	perDim, err := PerDimL1(pred, truth)
	if err != nil {
		return Summary{}, err
	}
	perWindow, err := PerWindowL1(pred, truth)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{L1: l1, PerDim: perDim, Windows: len(pred)}
	if s.Mean, err = stats.Mean(perWindow); err != nil {
		return Summary{}, fmt.Errorf("mean: %w", err)
	}
	if s.Median, err = stats.Median(perWindow); err != nil {
		return Summary{}, fmt.Errorf("median: %w", err)
	}
	if s.P90, err = stats.Percentile(perWindow, 90); err != nil {
		return Summary{}, fmt.Errorf("p90: %w", err)
	}
	if s.Max, err = stats.Max(perWindow); err != nil {
		return Summary{}, fmt.Errorf("max: %w", err)
	}
	return s, nil
}

// Metrics flattens the summary into named scalars. labels name the action
// dims; missing labels fall back to dim_<i>.
func (s Summary) Metrics(labels []string) []Metric {
	out := []Metric{
		{Name: "l1", Value: s.L1},
		{Name: "window_l1_mean", Value: s.Mean},
		{Name: "window_l1_median", Value: s.Median},
		{Name: "window_l1_p90", Value: s.P90},
		{Name: "window_l1_max", Value: s.Max},
	}
	for i, v := range s.PerDim {
		name := fmt.Sprintf("dim_%d", i)
		if i < len(labels) {
			name = labels[i]
		}
		out = append(out, Metric{Name: "l1_" + name, Value: v})
	}
	return out
}

// #endregion summarize
