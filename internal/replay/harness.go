package replay

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/policy-eval/internal/eval"
	"github.com/danielpatrickdp/policy-eval/internal/policy"
	"github.com/danielpatrickdp/policy-eval/internal/store"
)

// #region types

// Options controls how stored predictions are rescored.
type Options struct {
	HorizonIndex int
	Unnormalize  *policy.ActionStatistics
}

// Result is the outcome of rescoring a set of windows.
type Result struct {
	Summary   eval.Summary
	PerWindow []float64
}

// #endregion types

// #region rescore

// Rescore recomputes the metrics of stored window predictions without
// calling the policy again.
func Rescore(windows []store.WindowRecord, opts Options) (Result, error) {
	if len(windows) == 0 {
		return Result{}, eval.ErrEmpty
	}
	pred := make([][]float32, len(windows))
	truth := make([][]float32, len(windows))
	for i, w := range windows {
		if opts.HorizonIndex < 0 || opts.HorizonIndex >= len(w.Predicted) {
			return Result{}, fmt.Errorf("%w: window %d has horizon %d, index %d",
				eval.ErrShapeMismatch, w.WindowIndex, len(w.Predicted), opts.HorizonIndex)
		}
		a := w.Predicted[opts.HorizonIndex]
		if opts.Unnormalize != nil {
			var err error
			if a, err = opts.Unnormalize.Unnormalize(a); err != nil {
				return Result{}, fmt.Errorf("window %d: %w", w.WindowIndex, err)
			}
		}
		pred[i] = a
		truth[i] = w.Truth
	}

	summary, err := eval.Summarize(pred, truth)
	if err != nil {
		return Result{}, err
	}
	perWindow, err := eval.PerWindowL1(pred, truth)
	if err != nil {
		return Result{}, err
	}
	return Result{Summary: summary, PerWindow: perWindow}, nil
}

// #endregion rescore

// #region check

// Check compares a rescore against a fixture's expected score. It returns
// false and a reason on drift.
func Check(res Result, expected FixtureExpected) (bool, string) {
	if expected.Windows > 0 && res.Summary.Windows != expected.Windows {
		return false, fmt.Sprintf("windows: expected %d, got %d", expected.Windows, res.Summary.Windows)
	}
	tol := expected.Tolerance
	if tol <= 0 {
		tol = 1e-6
	}
	if diff := math.Abs(res.Summary.L1 - expected.L1); diff > tol {
		return false, fmt.Sprintf("l1: expected %.6f, got %.6f (diff %.2g > %.2g)", expected.L1, res.Summary.L1, diff, tol)
	}
	return true, "match"
}

// #endregion check
