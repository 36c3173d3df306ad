package policy

import (
	"fmt"

	"github.com/danielpatrickdp/policy-eval/internal/window"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region statistics
// ActionStatistics holds the normalization statistics of a training dataset.
type ActionStatistics struct {
	Mean []float32
	Std  []float32
	Mask []bool // dims to unnormalize; nil means all
}

// Unnormalize maps a normalized action back to dataset units: a*std + mean
// on masked dims, identity elsewhere.
func (s ActionStatistics) Unnormalize(action []float32) ([]float32, error) {
	if len(s.Mean) != len(action) || len(s.Std) != len(action) {
		return nil, fmt.Errorf("statistics dim %d/%d, action dim %d", len(s.Mean), len(s.Std), len(action))
	}
	if s.Mask != nil && len(s.Mask) != len(action) {
		return nil, fmt.Errorf("mask dim %d, action dim %d", len(s.Mask), len(action))
	}
	out := make([]float32, len(action))
	for i, a := range action {
		if s.Mask != nil && !s.Mask[i] {
			out[i] = a
			continue
		}
		out[i] = a*s.Std[i] + s.Mean[i]
	}
	return out, nil
}

// #endregion statistics

// #region task
// TaskSpec selects the conditioning for CreateTasks. Exactly one of Goals
// or Texts must be set.
type TaskSpec struct {
	Goals map[string]window.Tensor // e.g. "image_primary" -> [1,H,W,3]
	Texts []string
}

// Task is the opaque conditioning record returned by the policy server.
type Task struct {
	Kind    string // "goal" | "language"
	payload *structpb.Struct
}

// #endregion task

// #region sample-options
// SampleOptions controls a SampleActions call.
type SampleOptions struct {
	Seed        int64
	Unnormalize *ActionStatistics
}

// #endregion sample-options
