package publish

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// SQLiteTarget publishes into a SQLite database file.
type SQLiteTarget struct {
	BaseTarget
}

// NewSQLite creates a new SQLite target instance.
func NewSQLite(logger *slog.Logger) *SQLiteTarget {
	return &SQLiteTarget{BaseTarget: newBase(logger, dialect{
		name:          "sqlite",
		placeholder:   questionPlaceholder,
		timestampType: "TIMESTAMP",
		boolType:      "BOOLEAN",
	})}
}

// Connect opens the SQLite database at cfg.Path.
func (t *SQLiteTarget) Connect(ctx context.Context, cfg Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("sqlite target requires a path")
	}

	t.Logger.Debug("connecting to sqlite", slog.String("path", cfg.Path))

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	t.DB = db
	t.Cfg = cfg
	return nil
}

func init() {
	Register("sqlite", func(logger *slog.Logger) Target { return NewSQLite(logger) })
}
