package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/danielpatrickdp/policy-eval/internal/episode"
	"github.com/danielpatrickdp/policy-eval/internal/eval"
	"github.com/danielpatrickdp/policy-eval/internal/logging"
	"github.com/danielpatrickdp/policy-eval/internal/policy"
	"github.com/danielpatrickdp/policy-eval/internal/store"
	"github.com/danielpatrickdp/policy-eval/internal/viz"
)

// #region args
type args struct {
	Addr         string        `arg:"--addr,env:POLICY_ADDR" default:"localhost:50061" help:"policy server address"`
	Checkpoint   string        `arg:"--checkpoint,env:POLICY_CHECKPOINT,required" help:"checkpoint path, resolved by the policy server"`
	Dataset      string        `arg:"--dataset,env:EVAL_DATASET,required" help:"dataset directory containing dataset_info.json"`
	Split        string        `arg:"--split" default:"train[:1]" help:"split expression, e.g. train[:1] or val[10%:]"`
	Window       int           `arg:"--window" default:"2" help:"observation window size"`
	Seed         int64         `arg:"--seed" default:"0" help:"sampling seed"`
	Task         string        `arg:"--task" default:"language" help:"task conditioning: language or goal"`
	HorizonIndex int           `arg:"--horizon-index" default:"0" help:"step of the predicted chunk that is scored"`
	Unnormalize  string        `arg:"--unnormalize" help:"dataset name whose action statistics unnormalize predictions"`
	PlotDir      string        `arg:"--plot-dir" help:"write action plots and an image strip here"`
	DB           string        `arg:"--db,env:EVAL_DB" help:"record the run in this SQLite database"`
	Timeout      time.Duration `arg:"--timeout" default:"10m" help:"overall deadline"`
	Quiet        bool          `arg:"--quiet" help:"disable the progress bar"`
}

func (args) Description() string {
	return "evaluate a policy checkpoint offline against one recorded episode"
}

// #endregion args

// #region main
func main() {
	var a args
	p := mustParse(&a)

	mode := eval.TaskMode(a.Task)
	if mode != eval.TaskLanguage && mode != eval.TaskGoal {
		usageError(p, fmt.Errorf("--task must be %q or %q, got %q", eval.TaskLanguage, eval.TaskGoal, a.Task))
	}
	if a.Window < 1 {
		usageError(p, fmt.Errorf("--window must be >= 1, got %d", a.Window))
	}
	if a.HorizonIndex < 0 {
		usageError(p, fmt.Errorf("--horizon-index must be >= 0, got %d", a.HorizonIndex))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Timeout)
	defer cancel()

	if err := run(ctx, a, mode); err != nil {
		log.Printf("evaluate: %v", err)
		cancel()
		os.Exit(1)
	}
}

// #endregion main

// #region run
func run(ctx context.Context, a args, mode eval.TaskMode) error {
	client, err := policy.NewClient(a.Addr)
	if err != nil {
		return fmt.Errorf("connect to policy server at %s: %w", a.Addr, err)
	}
	defer client.Close()

	model, err := client.LoadPretrained(ctx, a.Checkpoint)
	if err != nil {
		return err
	}
	log.Printf("loaded %s (model %s, action dim %d, horizon %d)", a.Checkpoint, model.ID, model.ActionDim, model.ActionHorizon)

	builder, err := episode.FromDirectory(a.Dataset)
	if err != nil {
		return err
	}
	info := builder.Info()
	log.Printf("dataset %s %s at %s", info.Name, info.Version, builder.Dir())
	ds, err := builder.AsDataset(a.Split)
	if err != nil {
		return err
	}
	ep, err := ds.Next()
	if err != nil {
		return fmt.Errorf("draw episode from %s: %w", a.Split, err)
	}

	fmt.Printf("Instruction: %s\n", ep.Instruction())
	fmt.Println("Dataset loaded!")

	cfg := eval.DefaultConfig()
	cfg.WindowSize = a.Window
	cfg.Seed = a.Seed
	cfg.TaskMode = mode
	cfg.HorizonIndex = a.HorizonIndex
	cfg.Progress = !a.Quiet
	if a.Unnormalize != "" {
		st, ok := model.Statistics[a.Unnormalize]
		if !ok {
			return fmt.Errorf("checkpoint has no action statistics for dataset %q", a.Unnormalize)
		}
		cfg.Unnormalize = &st
	}

	rec, closeRun, err := openRun(a, info, ep, cfg)
	if err != nil {
		return err
	}

	summary, err := evaluate(ctx, model, ep, cfg, a.PlotDir, rec)
	closeRun(summary, err)
	if err != nil {
		return err
	}

	fmt.Printf("L1 loss: %v\n", summary.L1)
	log.Printf("windows=%d median=%.4f p90=%.4f max=%.4f", summary.Windows, summary.Median, summary.P90, summary.Max)
	return nil
}

// evaluate runs inference over every window of ep, scores it and, when
// requested, plots and persists the per-window results.
func evaluate(ctx context.Context, model *policy.Model, ep *episode.Episode, cfg eval.Config, plotDir string, rec *runRecorder) (eval.Summary, error) {
	if err := checkHorizonIndex(cfg.HorizonIndex, model.ActionHorizon); err != nil {
		return eval.Summary{}, err
	}
	task, err := eval.BuildTask(ctx, model, ep, cfg.TaskMode)
	if err != nil {
		return eval.Summary{}, err
	}
	res, err := eval.Run(ctx, model, ep, task, cfg)
	if err != nil {
		return eval.Summary{}, err
	}
	pred, truth, err := res.Pairs(cfg.HorizonIndex)
	if err != nil {
		return eval.Summary{}, err
	}
	summary, err := eval.Summarize(pred, truth)
	if err != nil {
		return eval.Summary{}, err
	}

	if plotDir != "" {
		files, err := viz.Render(plotDir, ep.Images(), pred, truth, viz.DefaultLabels)
		if err != nil {
			return eval.Summary{}, fmt.Errorf("plot: %w", err)
		}
		log.Printf("wrote %s and %s", files.Actions, files.Strip)
	}

	if rec != nil {
		if err := rec.logWindows(res, pred, truth); err != nil {
			return eval.Summary{}, err
		}
	}
	return summary, nil
}

// checkHorizonIndex rejects an index outside the checkpoint's action chunk.
// A horizon of zero means the server did not report one.
func checkHorizonIndex(idx, horizon int) error {
	if idx < 0 || (horizon > 0 && idx >= horizon) {
		return fmt.Errorf("%w: horizon index %d, checkpoint predicts %d steps", eval.ErrShapeMismatch, idx, horizon)
	}
	return nil
}

// #endregion run

// #region persistence
type runRecorder struct {
	store *store.Store
	run   store.RunRecord
}

// openRun creates the run row when --db is set. The returned func closes the
// run as finished or failed and releases the store.
func openRun(a args, info episode.DatasetInfo, ep *episode.Episode, cfg eval.Config) (*runRecorder, func(eval.Summary, error), error) {
	if a.DB == "" {
		return nil, func(eval.Summary, error) {}, nil
	}
	st, err := store.NewStore(a.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	run, err := st.CreateRun(store.RunRecord{
		Checkpoint:   a.Checkpoint,
		Dataset:      info.Name,
		Split:        a.Split,
		EpisodeID:    ep.ID,
		Instruction:  ep.Instruction(),
		TaskMode:     string(cfg.TaskMode),
		WindowSize:   cfg.WindowSize,
		Seed:         cfg.Seed,
		HorizonIndex: cfg.HorizonIndex,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	log.Printf("recording run %s in %s", run.RunID, a.DB)

	rec := &runRecorder{store: st, run: run}
	closeRun := func(summary eval.Summary, runErr error) {
		defer st.Close()
		var err error
		if runErr != nil {
			err = st.FailRun(run.RunID, runErr.Error())
		} else {
			err = st.FinishRun(run.RunID, summary.L1, summary.Metrics(viz.DefaultLabels))
		}
		if err != nil {
			log.Printf("close run %s: %v", run.RunID, err)
		}
	}
	return rec, closeRun, nil
}

func (r *runRecorder) logWindows(res *eval.Result, pred, truth [][]float32) error {
	perWindow, err := eval.PerWindowL1(pred, truth)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	entries := make([]logging.WindowEntry, len(res.Predictions))
	for i, p := range res.Predictions {
		entries[i] = logging.WindowEntry{
			RunID:       r.run.RunID,
			WindowIndex: i,
			Step:        p.Step,
			Predicted:   p.Actions,
			Truth:       truth[i],
			L1:          perWindow[i],
			CreatedAt:   now,
		}
	}
	if err := logging.LogWindows(r.store.DB(), entries); err != nil {
		return fmt.Errorf("log windows: %w", err)
	}
	return nil
}

// #endregion persistence

// #region helpers
func mustParse(dest interface{}) *arg.Parser {
	p, err := arg.NewParser(arg.Config{}, dest)
	if err != nil {
		log.Fatalf("arg parser: %v", err)
	}
	err = p.Parse(os.Args[1:])
	switch {
	case errors.Is(err, arg.ErrHelp):
		p.WriteHelp(os.Stdout)
		os.Exit(0)
	case err != nil:
		usageError(p, err)
	}
	return p
}

func usageError(p *arg.Parser, err error) {
	p.WriteUsage(os.Stderr)
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(2)
}

// #endregion helpers
