package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo toolchain required
)

// SQLiteStore implements Store over modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path in WAL mode with a 5s busy timeout, matching
// the teacher's concurrency-tolerant SQLite DSN.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			target_branch TEXT NOT NULL DEFAULT '',
			tasks_opened INTEGER NOT NULL DEFAULT 0,
			tasks_healed INTEGER NOT NULL DEFAULT 0,
			tasks_failed INTEGER NOT NULL DEFAULT 0,
			tasks_complete INTEGER NOT NULL DEFAULT 0,
			pause_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS task_outcomes (
			run_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			status TEXT NOT NULL,
			worker_id TEXT NOT NULL DEFAULT '',
			commit_hash TEXT NOT NULL DEFAULT '',
			attempted_at DATETIME NOT NULL,
			finished_at DATETIME,
			reason TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, task_id, attempted_at)
		);`,
		`CREATE TABLE IF NOT EXISTS merge_events (
			run_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			commit_hash TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_outcomes_run ON task_outcomes (run_id, attempted_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_merge_events_run ON merge_events (run_id, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) StartRun(run RunSummary) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, started_at, target_branch) VALUES (?, ?, ?)`,
		run.RunID, run.StartedAt, run.TargetBranch,
	)
	return err
}

func (s *SQLiteStore) FinishRun(runID string, ended time.Time, tasksOpened, tasksHealed, tasksFailed, tasksComplete, pauseCount int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET ended_at = ?, tasks_opened = ?, tasks_healed = ?, tasks_failed = ?, tasks_complete = ?, pause_count = ? WHERE run_id = ?`,
		ended, tasksOpened, tasksHealed, tasksFailed, tasksComplete, pauseCount, runID,
	)
	return err
}

func scanRun(row interface{ Scan(...any) error }) (RunSummary, error) {
	var r RunSummary
	var ended sql.NullTime
	if err := row.Scan(&r.RunID, &r.StartedAt, &ended, &r.TargetBranch,
		&r.TasksOpened, &r.TasksHealed, &r.TasksFailed, &r.TasksComplete, &r.PauseCount); err != nil {
		return RunSummary{}, err
	}
	if ended.Valid {
		t := ended.Time
		r.EndedAt = &t
	}
	return r, nil
}

func (s *SQLiteStore) LatestRun() (RunSummary, error) {
	row := s.db.QueryRow(`SELECT run_id, started_at, ended_at, target_branch, tasks_opened, tasks_healed, tasks_failed, tasks_complete, pause_count FROM runs ORDER BY started_at DESC LIMIT 1`)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return RunSummary{}, nil
	}
	return r, err
}

func (s *SQLiteStore) RecentRuns(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(`SELECT run_id, started_at, ended_at, target_branch, tasks_opened, tasks_healed, tasks_failed, tasks_complete, pause_count FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordTaskOutcome(o TaskOutcome) error {
	_, err := s.db.Exec(
		`INSERT INTO task_outcomes (run_id, task_id, status, worker_id, commit_hash, attempted_at, finished_at, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.TaskID, o.Status, o.WorkerID, o.Commit, o.AttemptedAt, o.FinishedAt, o.Reason,
	)
	return err
}

func (s *SQLiteStore) TaskOutcomes(runID string) ([]TaskOutcome, error) {
	rows, err := s.db.Query(
		`SELECT run_id, task_id, status, worker_id, commit_hash, attempted_at, finished_at, reason
		 FROM task_outcomes WHERE run_id = ? ORDER BY attempted_at ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskOutcome
	for rows.Next() {
		var o TaskOutcome
		var finished sql.NullTime
		if err := rows.Scan(&o.RunID, &o.TaskID, &o.Status, &o.WorkerID, &o.Commit, &o.AttemptedAt, &finished, &o.Reason); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			o.FinishedAt = &t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordMergeEvent(e MergeEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO merge_events (run_id, task_id, commit_hash, outcome, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, e.TaskID, e.Commit, e.Outcome, e.Detail, e.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) MergeEvents(runID string, limit int) ([]MergeEvent, error) {
	rows, err := s.db.Query(
		`SELECT run_id, task_id, commit_hash, outcome, detail, created_at FROM merge_events WHERE run_id = ? ORDER BY created_at DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MergeEvent
	for rows.Next() {
		var e MergeEvent
		if err := rows.Scan(&e.RunID, &e.TaskID, &e.Commit, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
