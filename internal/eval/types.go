package eval

import (
	"github.com/danielpatrickdp/policy-eval/internal/policy"
	"github.com/danielpatrickdp/policy-eval/internal/window"
)

// #region config
// TaskMode selects how the policy is conditioned.
type TaskMode string

const (
	TaskLanguage TaskMode = "language"
	TaskGoal     TaskMode = "goal"
)

// Config holds the knobs of one evaluation run.
type Config struct {
	WindowSize   int
	Seed         int64
	TaskMode     TaskMode
	HorizonIndex int                      // which step of the predicted chunk is scored
	Unnormalize  *policy.ActionStatistics // nil keeps normalized predictions
	Progress     bool                     // render a progress bar over windows
}

// DefaultConfig returns the settings of the reference evaluation.
func DefaultConfig() Config {
	return Config{
		WindowSize:   window.DefaultSize,
		Seed:         0,
		TaskMode:     TaskLanguage,
		HorizonIndex: 0,
		Progress:     true,
	}
}

// #endregion config

// #region result
// Prediction is the policy output for one window, aligned to the window's last step.
type Prediction struct {
	Step    int // == Window.End
	Window  window.Span
	Actions [][]float32 // [horizon][dim]
}

// Result collects predictions and the aligned ground-truth actions.
type Result struct {
	Predictions []Prediction
	Truth       [][]float32
}

// #endregion result

// #region metric
// Metric is a single named scalar of an evaluation summary.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Summary is the aggregate error of a run.
type Summary struct {
	L1      float64   // mean |pred-truth| over all windows and dims
	PerDim  []float64 // mean |pred-truth| per action dim
	Windows int

	// distribution of per-window L1
	Mean   float64
	Median float64
	P90    float64
	Max    float64
}

// #endregion metric
