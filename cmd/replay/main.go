package main

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/danielpatrickdp/policy-eval/internal/replay"
	"github.com/danielpatrickdp/policy-eval/internal/store"
)

// #region main

type args struct {
	DB        string  `arg:"--db,env:EVAL_DB" help:"evaluation database (DB mode, with --run)"`
	Run       string  `arg:"--run" help:"run ID to rescore (DB mode)"`
	Fixture   string  `arg:"--fixture" help:"fixture JSON to rescore (fixture mode)"`
	Tolerance float64 `arg:"--tolerance" default:"1e-6" help:"allowed absolute L1 drift in DB mode"`
}

func main() {
	var a args
	p, err := arg.NewParser(arg.Config{}, &a)
	if err != nil {
		log.Fatalf("arg parser: %v", err)
	}
	err = p.Parse(os.Args[1:])
	if errors.Is(err, arg.ErrHelp) {
		p.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	dbMode := a.DB != "" && a.Run != ""
	if err != nil || dbMode == (a.Fixture != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/eval.db --run RUN_ID")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(2)
	}

	var exitCode int
	if a.Fixture != "" {
		exitCode = runFixtureMode(a.Fixture)
	} else {
		exitCode = runDBMode(a.DB, a.Run, a.Tolerance)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

func runDBMode(dbPath, runID string, tol float64) int {
	st, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	run, err := st.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get run: %v\n", err)
		return 2
	}
	if run.Status != store.StatusFinished {
		fmt.Fprintf(os.Stderr, "run %s is %s, nothing to compare against\n", run.RunID, run.Status)
		return 2
	}
	windows, err := st.Windows(run.RunID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load windows: %v\n", err)
		return 2
	}

	res, err := replay.Rescore(windows, replay.Options{HorizonIndex: run.HorizonIndex})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rescore: %v\n", err)
		return 2
	}

	stored := make([]float64, len(windows))
	for i, w := range windows {
		stored[i] = w.L1
	}
	return printComparison(res, stored, replay.FixtureExpected{L1: run.L1, Windows: len(windows), Tolerance: tol})
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	res, err := replay.Rescore(f.ToWindows(), replay.Options{HorizonIndex: f.HorizonIndex})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rescore: %v\n", err)
		return 2
	}
	return printComparison(res, nil, f.Expected)
}

// #endregion fixture-mode

// #region output

// printComparison prints per-window and total L1 and returns the exit code.
// stored may be nil when there are no reference per-window scores.
func printComparison(res replay.Result, stored []float64, expected replay.FixtureExpected) int {
	tol := expected.Tolerance
	if tol <= 0 {
		tol = 1e-6
	}

	diverge := 0
	if stored != nil {
		fmt.Printf("%-8s| %-12s| %-12s| %s\n", "Window", "Stored", "Rescored", "Match")
		fmt.Printf("%-8s+%-13s+%-13s+%s\n", "--------", "-------------", "-------------", "------")
		for i, got := range res.PerWindow {
			match := "OK"
			if i >= len(stored) || math.Abs(stored[i]-got) > tol {
				match = "DIFF"
				diverge++
			}
			exp := math.NaN()
			if i < len(stored) {
				exp = stored[i]
			}
			fmt.Printf("%-8d| %-12.6f| %-12.6f| %s\n", i, exp, got, match)
		}
		fmt.Println()
	}

	ok, reason := replay.Check(res, expected)
	fmt.Printf("L1: expected %.6f, rescored %.6f over %d windows (%s)\n",
		expected.L1, res.Summary.L1, res.Summary.Windows, reason)
	fmt.Printf("Summary: %d windows, %d diverge\n", res.Summary.Windows, diverge)

	if !ok || diverge > 0 {
		return 1
	}
	return 0
}

// #endregion output
