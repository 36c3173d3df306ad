package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-window
// LogWindow writes one window prediction to the window_predictions table.
func LogWindow(db *sql.DB, entry WindowEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	predJSON, err := json.Marshal(entry.Predicted)
	if err != nil {
		return fmt.Errorf("marshal predicted: %w", err)
	}
	truthJSON, err := json.Marshal(entry.Truth)
	if err != nil {
		return fmt.Errorf("marshal truth: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO window_predictions (run_id, window_index, step, predicted_json, truth_json, l1, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.WindowIndex,
		entry.Step,
		string(predJSON),
		string(truthJSON),
		entry.L1,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log window %d: %w", entry.WindowIndex, err)
	}
	return nil
}

// LogWindows writes all entries in a single transaction.
func LogWindows(db *sql.DB, entries []WindowEntry) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO window_predictions (run_id, window_index, step, predicted_json, truth_json, l1, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		predJSON, err := json.Marshal(e.Predicted)
		if err != nil {
			return fmt.Errorf("marshal predicted: %w", err)
		}
		truthJSON, err := json.Marshal(e.Truth)
		if err != nil {
			return fmt.Errorf("marshal truth: %w", err)
		}
		if _, err := stmt.Exec(e.RunID, e.WindowIndex, e.Step, string(predJSON), string(truthJSON), e.L1,
			e.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("log window %d: %w", e.WindowIndex, err)
		}
	}
	return tx.Commit()
}

// #endregion log-window
