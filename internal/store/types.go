package store

import "time"

// #region run-record
// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// RunRecord is one evaluation run of a checkpoint on one episode.
type RunRecord struct {
	RunID        string
	Checkpoint   string
	Dataset      string
	Split        string
	EpisodeID    string
	Instruction  string
	TaskMode     string
	WindowSize   int
	Seed         int64
	HorizonIndex int
	Status       string
	L1           float64 // valid once Status == StatusFinished
	MetricsJSON  string
	Reason       string // failure reason
	CreatedAt    time.Time
	FinishedAt   time.Time
}

// #endregion run-record

// #region window-record
// WindowRecord is the stored prediction of one observation window.
type WindowRecord struct {
	RunID       string
	WindowIndex int
	Step        int
	Predicted   [][]float32 // full predicted chunk [horizon][dim]
	Truth       []float32
	L1          float64
	CreatedAt   time.Time
}

// #endregion window-record
