package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/danielpatrickdp/policy-eval/internal/replay"
	"github.com/danielpatrickdp/policy-eval/internal/store"
)

// #region main

type args struct {
	DB          string `arg:"--db,env:EVAL_DB,required" help:"path to the evaluation database"`
	Run         string `arg:"--run" help:"run ID to export; defaults to the most recent finished run"`
	Out         string `arg:"--out,required" help:"output fixture JSON path"`
	Description string `arg:"--description" help:"fixture description"`
}

func main() {
	var a args
	p, err := arg.NewParser(arg.Config{}, &a)
	if err != nil {
		log.Fatalf("arg parser: %v", err)
	}
	if err := p.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, arg.ErrHelp) {
			p.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		p.WriteUsage(os.Stderr)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err := run(a); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(a args) error {
	st, err := store.NewStore(a.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	rec, err := pickRun(st, a.Run)
	if err != nil {
		return err
	}
	if rec.Status != store.StatusFinished {
		return fmt.Errorf("run %s is %s, only finished runs can be exported", rec.RunID, rec.Status)
	}

	windows, err := st.Windows(rec.RunID)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		return fmt.Errorf("run %s has no stored windows", rec.RunID)
	}

	f := replay.FromWindows(rec.RunID, rec.HorizonIndex, windows, rec.L1)
	if a.Description != "" {
		f.Description = a.Description
	} else {
		f.Description = fmt.Sprintf("%s on %s %s (%s task, window %d)",
			rec.Checkpoint, rec.Dataset, rec.Split, rec.TaskMode, rec.WindowSize)
	}

	// Rescore before writing so a fixture never starts out drifted.
	res, err := replay.Rescore(f.ToWindows(), replay.Options{HorizonIndex: f.HorizonIndex})
	if err != nil {
		return fmt.Errorf("rescore: %w", err)
	}
	if ok, reason := replay.Check(res, f.Expected); !ok {
		return fmt.Errorf("stored windows disagree with run L1: %s", reason)
	}

	if err := replay.WriteFixture(a.Out, f); err != nil {
		return err
	}
	fmt.Printf("Exported %d windows of run %s to %s (L1 %.6f)\n", len(windows), rec.RunID, a.Out, rec.L1)
	return nil
}

func pickRun(st *store.Store, runID string) (store.RunRecord, error) {
	if runID != "" {
		return st.GetRun(runID)
	}
	runs, err := st.ListRuns(50)
	if err != nil {
		return store.RunRecord{}, err
	}
	for _, r := range runs {
		if r.Status == store.StatusFinished {
			return r, nil
		}
	}
	return store.RunRecord{}, fmt.Errorf("%w: no finished runs", store.ErrRunNotFound)
}

// #endregion export
