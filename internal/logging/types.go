package logging

import "time"

// #region window-entry
// WindowEntry is a single row in the window_predictions table.
type WindowEntry struct {
	RunID       string
	WindowIndex int
	Step        int         // episode step the window ends on
	Predicted   [][]float32 // predicted chunk [horizon][dim]
	Truth       []float32
	L1          float64 // scored action vs truth
	CreatedAt   time.Time
}

// #endregion window-entry
