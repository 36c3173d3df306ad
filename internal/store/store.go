package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed width so that timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS eval_runs (
	run_id        TEXT PRIMARY KEY,
	checkpoint    TEXT NOT NULL,
	dataset       TEXT NOT NULL,
	split         TEXT NOT NULL,
	episode_id    TEXT,
	instruction   TEXT,
	task_mode     TEXT NOT NULL,
	window_size   INTEGER NOT NULL,
	seed          INTEGER NOT NULL,
	horizon_index INTEGER NOT NULL,
	status        TEXT NOT NULL,
	l1            REAL,
	metrics_json  TEXT,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	finished_at   TEXT
);

CREATE TABLE IF NOT EXISTS window_predictions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	window_index   INTEGER NOT NULL,
	step           INTEGER NOT NULL,
	predicted_json TEXT NOT NULL,
	truth_json     TEXT NOT NULL,
	l1             REAL NOT NULL,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES eval_runs(run_id),
	UNIQUE (run_id, window_index)
);
`

// #endregion schema

// #region store-struct
// Store persists evaluation runs in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store-struct

// #region create-run
// CreateRun inserts rec as a running run and returns it with RunID and CreatedAt set.
func (s *Store) CreateRun(rec RunRecord) (RunRecord, error) {
	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Status = StatusRunning

	_, err := s.db.Exec(
		`INSERT INTO eval_runs (run_id, checkpoint, dataset, split, episode_id, instruction, task_mode,
			window_size, seed, horizon_index, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Checkpoint, rec.Dataset, rec.Split, nullIfEmpty(rec.EpisodeID), nullIfEmpty(rec.Instruction),
		rec.TaskMode, rec.WindowSize, rec.Seed, rec.HorizonIndex, rec.Status, rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}

// #endregion create-run

// #region finish-run
// FinishRun records the final loss and metrics of a run.
func (s *Store) FinishRun(runID string, l1 float64, metrics interface{}) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	return s.closeRun(runID, StatusFinished, &l1, string(metricsJSON), "")
}

// FailRun marks a run as failed with a reason.
func (s *Store) FailRun(runID string, reason string) error {
	return s.closeRun(runID, StatusFailed, nil, "", reason)
}

func (s *Store) closeRun(runID, status string, l1 *float64, metricsJSON, reason string) error {
	var l1Ptr interface{}
	if l1 != nil {
		l1Ptr = *l1
	}
	res, err := s.db.Exec(
		`UPDATE eval_runs SET status = ?, l1 = ?, metrics_json = ?, reason = ?, finished_at = ?
		 WHERE run_id = ?`,
		status, l1Ptr, nullIfEmpty(metricsJSON), nullIfEmpty(reason), time.Now().UTC().Format(timeLayout), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// #endregion finish-run

// #region get-run
const runColumns = `run_id, checkpoint, dataset, split, episode_id, instruction, task_mode, window_size,
	seed, horizon_index, status, l1, metrics_json, reason, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var episodeID, instruction, metricsJSON, reason, finishedStr sql.NullString
	var l1 sql.NullFloat64
	var createdStr string

	err := row.Scan(&rec.RunID, &rec.Checkpoint, &rec.Dataset, &rec.Split, &episodeID, &instruction,
		&rec.TaskMode, &rec.WindowSize, &rec.Seed, &rec.HorizonIndex, &rec.Status, &l1, &metricsJSON,
		&reason, &createdStr, &finishedStr)
	if err != nil {
		return RunRecord{}, err
	}
	rec.EpisodeID = episodeID.String
	rec.Instruction = instruction.String
	rec.MetricsJSON = metricsJSON.String
	rec.Reason = reason.String
	rec.L1 = l1.Float64
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if finishedStr.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr.String)
	}
	return rec, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM eval_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM eval_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-runs

// #region windows
// Windows returns the stored window predictions of a run in window order.
func (s *Store) Windows(runID string) ([]WindowRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, window_index, step, predicted_json, truth_json, l1, created_at
		 FROM window_predictions WHERE run_id = ? ORDER BY window_index ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	defer rows.Close()

	var out []WindowRecord
	for rows.Next() {
		var w WindowRecord
		var predJSON, truthJSON, createdStr string
		if err := rows.Scan(&w.RunID, &w.WindowIndex, &w.Step, &predJSON, &truthJSON, &w.L1, &createdStr); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		if err := json.Unmarshal([]byte(predJSON), &w.Predicted); err != nil {
			return nil, fmt.Errorf("unmarshal predicted: %w", err)
		}
		if err := json.Unmarshal([]byte(truthJSON), &w.Truth); err != nil {
			return nil, fmt.Errorf("unmarshal truth: %w", err)
		}
		w.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, w)
	}
	return out, rows.Err()
}

// #endregion windows

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
