package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/danielpatrickdp/policy-eval/internal/eval"
	"github.com/danielpatrickdp/policy-eval/internal/store"
	"github.com/dustin/go-humanize"
)

// #region main

type args struct {
	DB      string `arg:"--db,env:EVAL_DB,required" help:"path to the evaluation database"`
	Last    int    `arg:"--last" default:"20" help:"show N most recent runs"`
	Run     string `arg:"--run" help:"show a single run in detail"`
	Windows bool   `arg:"--windows" help:"with --run, list every window"`
	JSON    bool   `arg:"--json" help:"output as JSON instead of a table"`
}

func main() {
	var a args
	mustParse(&a)

	st, err := store.NewStore(a.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if a.Run != "" {
		err = runDetailMode(st, a.Run, a.Windows, a.JSON)
	} else {
		err = runListMode(st, a.Last, a.JSON)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		st.Close()
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID      string   `json:"run_id"`
	Checkpoint string   `json:"checkpoint"`
	Dataset    string   `json:"dataset"`
	Split      string   `json:"split"`
	TaskMode   string   `json:"task_mode"`
	WindowSize int      `json:"window_size"`
	Status     string   `json:"status"`
	L1         *float64 `json:"l1,omitempty"`
	CreatedAt  string   `json:"created_at"`

	created time.Time
}

func toListRow(r store.RunRecord) listRow {
	lr := listRow{
		RunID:      r.RunID,
		Checkpoint: r.Checkpoint,
		Dataset:    r.Dataset,
		Split:      r.Split,
		TaskMode:   r.TaskMode,
		WindowSize: r.WindowSize,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		created:    r.CreatedAt,
	}
	if r.Status == store.StatusFinished {
		l1 := r.L1
		lr.L1 = &l1
	}
	return lr
}

func runListMode(st *store.Store, last int, jsonOut bool) error {
	runs, err := st.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[i] = toListRow(r)
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-24s  %-16s  %-8s  %3s  %-8s  %10s  %s\n",
		"Run", "Checkpoint", "Split", "Task", "W", "Status", "L1", "Created")
	for _, r := range rows {
		l1 := "-"
		if r.L1 != nil {
			l1 = fmt.Sprintf("%.6f", *r.L1)
		}
		fmt.Printf("%-10s  %-24s  %-16s  %-8s  %3d  %-8s  %10s  %s\n",
			shortID(r.RunID), clip(r.Checkpoint, 24), clip(r.Split, 16), r.TaskMode, r.WindowSize,
			r.Status, l1, humanize.Time(r.created))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	listRow
	EpisodeID    string        `json:"episode_id,omitempty"`
	Instruction  string        `json:"instruction,omitempty"`
	Seed         int64         `json:"seed"`
	HorizonIndex int           `json:"horizon_index"`
	Reason       string        `json:"reason,omitempty"`
	FinishedAt   string        `json:"finished_at,omitempty"`
	Metrics      []eval.Metric `json:"metrics,omitempty"`
	Windows      []windowRow   `json:"windows,omitempty"`
}

type windowRow struct {
	Index     int       `json:"index"`
	Step      int       `json:"step"`
	L1        float64   `json:"l1"`
	Predicted []float32 `json:"predicted"` // scored step of the chunk
	Truth     []float32 `json:"truth"`
}

func runDetailMode(st *store.Store, runID string, withWindows, jsonOut bool) error {
	r, err := st.GetRun(runID)
	if err != nil {
		return err
	}

	out := detailOutput{
		listRow:      toListRow(r),
		EpisodeID:    r.EpisodeID,
		Instruction:  r.Instruction,
		Seed:         r.Seed,
		HorizonIndex: r.HorizonIndex,
		Reason:       r.Reason,
	}
	if !r.FinishedAt.IsZero() {
		out.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	if r.MetricsJSON != "" {
		if err := json.Unmarshal([]byte(r.MetricsJSON), &out.Metrics); err != nil {
			return fmt.Errorf("parse metrics: %w", err)
		}
	}
	if withWindows {
		windows, err := st.Windows(r.RunID)
		if err != nil {
			return err
		}
		for _, w := range windows {
			wr := windowRow{Index: w.WindowIndex, Step: w.Step, L1: w.L1, Truth: w.Truth}
			if r.HorizonIndex < len(w.Predicted) {
				wr.Predicted = w.Predicted[r.HorizonIndex]
			}
			out.Windows = append(out.Windows, wr)
		}
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:         %s\n", out.RunID)
	fmt.Printf("Checkpoint:  %s\n", out.Checkpoint)
	fmt.Printf("Dataset:     %s %s (episode %s)\n", out.Dataset, out.Split, out.EpisodeID)
	fmt.Printf("Instruction: %s\n", out.Instruction)
	fmt.Printf("Task:        %s, window %d, seed %d, horizon index %d\n",
		out.TaskMode, out.WindowSize, out.Seed, out.HorizonIndex)
	fmt.Printf("Status:      %s\n", out.Status)
	if out.Reason != "" {
		fmt.Printf("Reason:      %s\n", out.Reason)
	}
	fmt.Printf("Created:     %s (%s)\n", out.CreatedAt, humanize.Time(r.CreatedAt))
	if !r.FinishedAt.IsZero() {
		fmt.Printf("Took:        %s\n", humanize.RelTime(r.CreatedAt, r.FinishedAt, "", ""))
	}

	if len(out.Metrics) > 0 {
		fmt.Printf("\nMetrics:\n")
		for _, m := range out.Metrics {
			fmt.Printf("  %-18s %.6f\n", m.Name, m.Value)
		}
	}

	if len(out.Windows) > 0 {
		fmt.Printf("\n%6s  %6s  %10s\n", "Window", "Step", "L1")
		for _, w := range out.Windows {
			fmt.Printf("%6d  %6d  %10.6f\n", w.Index, w.Step, w.L1)
		}
		fmt.Printf("(%s windows)\n", humanize.Comma(int64(len(out.Windows))))
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	if len(s) > n {
		return "..." + s[len(s)-n+3:]
	}
	return s
}

func mustParse(dest interface{}) {
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
		p.WriteUsage(os.Stderr)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

// #endregion output
