// Package eval runs a policy over the observation windows of an episode and
// scores the predictions against the recorded actions.
package eval

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/policy-eval/internal/episode"
	"github.com/danielpatrickdp/policy-eval/internal/policy"
	"github.com/danielpatrickdp/policy-eval/internal/window"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
)

// #region interfaces
// Sampler produces an action chunk for one observation window.
type Sampler interface {
	SampleActions(ctx context.Context, obs window.Observation, task *policy.Task, opts policy.SampleOptions) ([][]float32, error)
}

// TaskCreator builds the conditioning record for a run.
type TaskCreator interface {
	CreateTasks(ctx context.Context, spec policy.TaskSpec) (*policy.Task, error)
}

// #endregion interfaces

// #region task
// BuildTask conditions on the episode's goal image (last primary frame) or
// its language instruction (first step).
func BuildTask(ctx context.Context, tc TaskCreator, ep *episode.Episode, mode TaskMode) (*policy.Task, error) {
	switch mode {
	case TaskGoal:
		img := ep.GoalImage()
		if img == nil {
			return nil, fmt.Errorf("goal task: %w", ErrEmpty)
		}
		goals, err := policy.GoalsFromImage(img)
		if err != nil {
			return nil, err
		}
		return tc.CreateTasks(ctx, policy.TaskSpec{Goals: goals})
	case TaskLanguage, "":
		return tc.CreateTasks(ctx, policy.TaskSpec{Texts: []string{ep.Instruction()}})
	default:
		return nil, fmt.Errorf("unknown task mode %q", mode)
	}
}

// #endregion task

// #region run
// Run invokes the policy once per window of size cfg.WindowSize, in order,
// and pairs each prediction with the ground-truth action at the window's
// last step. Errors from the sampler are returned unmodified apart from
// the window index.
func Run(ctx context.Context, s Sampler, ep *episode.Episode, task *policy.Task, cfg Config) (*Result, error) {
	spans := window.Spans(ep.Len(), cfg.WindowSize)
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: %d steps, window %d", window.ErrWindowTooLarge, ep.Len(), cfg.WindowSize)
	}

	primary := ep.Images()
	wrist := ep.WristImages()
	opts := policy.SampleOptions{Seed: cfg.Seed, Unnormalize: cfg.Unnormalize}

	res := &Result{
		Predictions: make([]Prediction, 0, len(spans)),
		Truth:       make([][]float32, 0, len(spans)),
	}
	err := forEach(len(spans), "Inference", cfg.Progress, func(i int) error {
		span := spans[i]
		obs, err := window.Build(primary, wrist, span)
		if err != nil {
			return err
		}
		actions, err := s.SampleActions(ctx, obs, task, opts)
		if err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
		res.Predictions = append(res.Predictions, Prediction{Step: span.End, Window: span, Actions: actions})
		res.Truth = append(res.Truth, ep.Steps[span.End].Action)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// forEach calls fn for 0..n-1, stopping at the first error.
func forEach(n int, desc string, progress bool, fn func(i int) error) error {
	if !progress {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	var ferr error
	err := tqdm.With(iterators.Interval(0, n), desc, func(v interface{}) (brk bool) {
		if ferr = fn(v.(int)); ferr != nil {
			return true
		}
		return false
	})
	if ferr != nil {
		return ferr
	}
	return err
}

// #endregion run

// #region pairs
// Pairs returns the scored prediction of every window (the action at
// horizonIndex of each chunk) alongside the ground truth.
func (r *Result) Pairs(horizonIndex int) ([][]float32, [][]float32, error) {
	pred := make([][]float32, len(r.Predictions))
	for i, p := range r.Predictions {
		if horizonIndex < 0 || horizonIndex >= len(p.Actions) {
			return nil, nil, fmt.Errorf("%w: window %d has horizon %d, index %d", ErrShapeMismatch, i, len(p.Actions), horizonIndex)
		}
		pred[i] = p.Actions[horizonIndex]
	}
	if len(pred) != len(r.Truth) {
		return nil, nil, fmt.Errorf("%w: %d predictions, %d ground-truth actions", ErrShapeMismatch, len(pred), len(r.Truth))
	}
	return pred, r.Truth, nil
}

// #endregion pairs
