package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LuisDee/catalog-enricher/internal/enrich"
)

const runColumns = `r.id, r.status, r.dry_run, r.started_at, r.completed_at, r.error,
	(SELECT COUNT(*) FROM table_runs t WHERE t.run_id = r.id),
	(SELECT COUNT(*) FROM table_runs t WHERE t.run_id = r.id AND t.status = 'failed'),
	(SELECT COALESCE(SUM(t.changed), 0) FROM table_runs t WHERE t.run_id = r.id)`

// CreateRun records the start of a run. An empty id generates one.
func (s *SQLiteStore) CreateRun(ctx context.Context, id string, dryRun bool) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if id == "" {
		id = generateID()
	}
	run := &Run{
		ID:        id,
		Status:    RunStatusRunning,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", id), slog.Bool("dry_run", dryRun))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, dry_run, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), boolToInt(run.DryRun), formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	var errValue any
	if errMsg != "" {
		errValue = errMsg
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), errValue, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// RecordTable stores the outcome of one table, replacing any earlier row
// for the same run and table.
func (s *SQLiteStore) RecordTable(ctx context.Context, row *TableRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return recordTable(ctx, s.db, row)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordTable(ctx context.Context, db execer, row *TableRun) error {
	stats, err := json.Marshal(row.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats for %s: %w", row.Table, err)
	}
	var coverage, errValue any
	if row.CoveragePass != nil {
		coverage = boolToInt(*row.CoveragePass)
	}
	if row.Error != "" {
		errValue = row.Error
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO table_runs
			(run_id, table_name, path, status, changed, written, stats, coverage_pass, warnings, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.Table, row.Path, string(row.Status), row.Changed, boolToInt(row.Written),
		string(stats), coverage, row.Warnings, errValue,
	)
	if err != nil {
		return fmt.Errorf("failed to record table %s: %w", row.Table, err)
	}
	return nil
}

// RecordResult stores a finished engine run and all of its tables in one
// transaction.
func (s *SQLiteStore) RecordResult(ctx context.Context, res *enrich.RunResult) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	status := RunStatusCompleted
	var errValue any
	if err := res.Err(); err != nil {
		status = RunStatusFailed
		errValue = err.Error()
	}
	completed := res.Completed
	if completed.IsZero() {
		completed = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, status, dry_run, started_at, completed_at, error) VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, string(status), boolToInt(res.DryRun), formatTime(res.Started), formatTime(completed), errValue,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	for _, tr := range res.Tables {
		if err := recordTable(ctx, tx, NewTableRun(res.ID, tr)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", res.ID, err)
	}

	s.logger.Debug("recorded run", slog.String("id", res.ID), slog.Int("tables", len(res.Tables)), slog.String("status", string(status)))
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetLatestRun retrieves the most recent run, or nil when none exist.
func (s *SQLiteStore) GetLatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r ORDER BY r.started_at DESC, r.id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListTableRuns returns the table outcomes of one run in table order.
func (s *SQLiteStore) ListTableRuns(ctx context.Context, runID string) ([]*TableRun, error) {
	return s.queryTableRuns(ctx,
		`WHERE t.run_id = ? ORDER BY t.table_name`, runID)
}

// TableHistory returns the most recent outcomes for one table, newest first.
func (s *SQLiteStore) TableHistory(ctx context.Context, table string, limit int) ([]*TableRun, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryTableRuns(ctx,
		`WHERE t.table_name = ? ORDER BY r.started_at DESC LIMIT ?`, table, limit)
}

func (s *SQLiteStore) queryTableRuns(ctx context.Context, where string, args ...any) ([]*TableRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.run_id, t.table_name, t.path, t.status, t.changed, t.written, t.stats,
			t.coverage_pass, t.warnings, t.error, r.started_at
		FROM table_runs t JOIN runs r ON r.id = t.run_id `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query table runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*TableRun
	for rows.Next() {
		var (
			row       TableRun
			status    string
			written   int
			stats     string
			coverage  sql.NullInt64
			errMsg    sql.NullString
			startedAt string
		)
		if err := rows.Scan(&row.RunID, &row.Table, &row.Path, &status, &row.Changed, &written, &stats,
			&coverage, &row.Warnings, &errMsg, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan table run: %w", err)
		}
		row.Status = TableStatus(status)
		row.Written = written != 0
		row.Stats = enrich.Stats{}
		if err := json.Unmarshal([]byte(stats), &row.Stats); err != nil {
			return nil, fmt.Errorf("invalid stats for %s in run %s: %w", row.Table, row.RunID, err)
		}
		if coverage.Valid {
			pass := coverage.Int64 != 0
			row.CoveragePass = &pass
		}
		row.Error = errMsg.String
		if row.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		out = append(out, &row)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run         Run
		status      string
		dryRun      int
		startedAt   string
		completedAt sql.NullString
		errMsg      sql.NullString
	)
	if err := sc.Scan(&run.ID, &status, &dryRun, &startedAt, &completedAt, &errMsg,
		&run.Tables, &run.Failed, &run.Changed); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.DryRun = dryRun != 0
	run.Error = errMsg.String

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	return &run, nil
}
