// Package history persists workflow run results to a local SQLite database
// so past runs can be listed and inspected from the CLI.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ensemble-run/ensemble/pkg/errors"
	"github.com/ensemble-run/ensemble/pkg/workflow"
)

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the history database location, honoring the
// ENSEMBLE_HISTORY environment variable.
func DefaultPath() (string, error) {
	if p := os.Getenv("ENSEMBLE_HISTORY"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving home directory")
	}
	return filepath.Join(home, ".ensemble", "history.db"), nil
}

// Open opens (creating if needed) the history database at path.
// The special path ":memory:" creates an in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, &errors.ConfigError{Key: "history.path", Reason: "database path is required"}
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating history directory")
		}
		// WAL mode tolerates a reader while a run is being recorded
		path += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening history database")
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to history database")
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating history schema")
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			cost_usd REAL NOT NULL,
			state TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS run_nodes (
			run_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			error TEXT,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			cost_usd REAL NOT NULL,
			PRIMARY KEY (run_id, node_id),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Run statuses recorded in history.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID        string
	Workflow     string
	Status       string
	Error        string
	StartedAt    time.Time
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// NodeSummary is one node row of a stored run.
type NodeSummary struct {
	NodeID   string
	Status   string
	Attempts int
	Error    string
	Duration time.Duration
	CostUSD  float64
}

// RecordRun persists a completed run. runErr is nil for successful runs.
func (s *Store) RecordRun(ctx context.Context, result *workflow.RunResult, runErr error) error {
	status := StatusSucceeded
	errMsg := ""
	if runErr != nil {
		status = StatusFailed
		errMsg = runErr.Error()
	}

	stateJSON, err := json.Marshal(result.State)
	if err != nil {
		return errors.Wrap(err, "encoding run state")
	}

	usage := result.Usage()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting history transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow, status, error, started_at, duration_ms,
			input_tokens, output_tokens, cost_usd, state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.Workflow, status, errMsg,
		result.StartedAt.UnixMilli(), result.Duration.Milliseconds(),
		usage.InputTokens, usage.OutputTokens, result.CostUSD(), string(stateJSON))
	if err != nil {
		return errors.Wrap(err, "recording run")
	}

	for _, n := range result.Nodes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_nodes (run_id, node_id, status, attempts, error,
				started_at, duration_ms, input_tokens, output_tokens, cost_usd)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID, n.NodeID, string(n.Status), n.Attempts, n.Error,
			n.StartedAt.UnixMilli(), n.Duration.Milliseconds(),
			n.Usage.InputTokens, n.Usage.OutputTokens, n.CostUSD)
		if err != nil {
			return errors.Wrap(err, "recording run node")
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, workflow, status, error, started_at, duration_ms,
			input_tokens, output_tokens, cost_usd
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var startedMS, durationMS int64
		if err := rows.Scan(&r.RunID, &r.Workflow, &r.Status, &r.Error,
			&startedMS, &durationMS, &r.InputTokens, &r.OutputTokens, &r.CostUSD); err != nil {
			return nil, errors.Wrap(err, "scanning run row")
		}
		r.StartedAt = time.UnixMilli(startedMS)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one stored run with its node breakdown.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunSummary, []NodeSummary, error) {
	var r RunSummary
	var startedMS, durationMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, workflow, status, error, started_at, duration_ms,
			input_tokens, output_tokens, cost_usd
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.Workflow, &r.Status, &r.Error,
			&startedMS, &durationMS, &r.InputTokens, &r.OutputTokens, &r.CostUSD)
	if err == sql.ErrNoRows {
		return nil, nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading run")
	}
	r.StartedAt = time.UnixMilli(startedMS)
	r.Duration = time.Duration(durationMS) * time.Millisecond

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, status, attempts, error, duration_ms, cost_usd
		 FROM run_nodes WHERE run_id = ? ORDER BY started_at`, runID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading run nodes")
	}
	defer rows.Close()

	var nodes []NodeSummary
	for rows.Next() {
		var n NodeSummary
		var durationMS int64
		if err := rows.Scan(&n.NodeID, &n.Status, &n.Attempts, &n.Error,
			&durationMS, &n.CostUSD); err != nil {
			return nil, nil, errors.Wrap(err, "scanning node row")
		}
		n.Duration = time.Duration(durationMS) * time.Millisecond
		nodes = append(nodes, n)
	}
	return &r, nodes, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
