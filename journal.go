package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Fixed width so started_at sorts lexically.
const journalTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const journalSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	state       TEXT NOT NULL,
	log_path    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS table_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(run_id),
	table_name  TEXT NOT NULL,
	state       TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	inserted    INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS table_runs_table ON table_runs(table_name, id);
`

// runJournal records every run and table outcome in a local SQLite file so
// that a later run can resume past tables that already completed cleanly.
type runJournal struct {
	db *sql.DB
}

func openJournal(ctx context.Context, path string) (*runJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	return &runJournal{db: db}, nil
}

func (j *runJournal) Close() error { return j.db.Close() }

func (j *runJournal) StartRun(ctx context.Context, runID string, started time.Time, logPath string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, state, log_path) VALUES (?, ?, ?, ?)`,
		runID, started.UTC().Format(journalTimeLayout), string(RunRunning), logPath)
	if err != nil {
		return fmt.Errorf("journal start run: %w", err)
	}
	return nil
}

func (j *runJournal) RecordTable(ctx context.Context, runID string, r *TableReport, finished time.Time) error {
	errText := ""
	if r.Err != nil {
		errText = r.Err.Error()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO table_runs (run_id, table_name, state, row_count, inserted, failed, error, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Table, string(r.State), r.RowCount, r.InsertedCount, len(r.FailedRows), errText,
		finished.UTC().Format(journalTimeLayout))
	if err != nil {
		return fmt.Errorf("journal record %s: %w", r.Table, err)
	}
	return nil
}

func (j *runJournal) FinishRun(ctx context.Context, runID string, state RunState, finished time.Time) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, finished_at = ? WHERE run_id = ?`,
		string(state), finished.UTC().Format(journalTimeLayout), runID)
	if err != nil {
		return fmt.Errorf("journal finish run: %w", err)
	}
	return nil
}

// CompletedTables returns tables whose latest recorded outcome is DONE with
// no failed rows.
func (j *runJournal) CompletedTables(ctx context.Context) (map[string]bool, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT t.table_name
		FROM table_runs t
		WHERE t.id = (SELECT MAX(t2.id) FROM table_runs t2 WHERE t2.table_name = t.table_name)
		  AND t.state = ? AND t.failed = 0`, string(TableDone))
	if err != nil {
		return nil, fmt.Errorf("journal completed tables: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		done[name] = true
	}
	return done, rows.Err()
}

// journalRun is one line of the run history.
type journalRun struct {
	RunID    string
	State    string
	Started  time.Time
	Finished time.Time // zero while running or after a crash
	LogPath  string
	Tables   int
	Inserted int
	Failed   int
}

// History returns the most recent runs, newest first.
func (j *runJournal) History(ctx context.Context, limit int) ([]journalRun, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.run_id, r.state, r.started_at, COALESCE(r.finished_at, ''), r.log_path,
		       COUNT(t.id), COALESCE(SUM(t.inserted), 0), COALESCE(SUM(t.failed), 0)
		FROM runs r
		LEFT JOIN table_runs t ON t.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal history: %w", err)
	}
	defer rows.Close()

	var out []journalRun
	for rows.Next() {
		var jr journalRun
		var started, finished string
		if err := rows.Scan(&jr.RunID, &jr.State, &started, &finished, &jr.LogPath,
			&jr.Tables, &jr.Inserted, &jr.Failed); err != nil {
			return nil, fmt.Errorf("scan journal run: %w", err)
		}
		if jr.Started, err = time.Parse(journalTimeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", started, err)
		}
		if finished != "" {
			if jr.Finished, err = time.Parse(journalTimeLayout, finished); err != nil {
				return nil, fmt.Errorf("parse finished_at %q: %w", finished, err)
			}
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}

// errNoJournal is returned by history when the journal file does not exist.
var errNoJournal = errors.New("no run journal found")

func journalExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w at %s", errNoJournal, path)
		}
		return err
	}
	return nil
}
