package publish

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DuckDBTarget publishes into a DuckDB database file.
type DuckDBTarget struct {
	BaseTarget
}

// NewDuckDB creates a new DuckDB target instance.
func NewDuckDB(logger *slog.Logger) *DuckDBTarget {
	return &DuckDBTarget{BaseTarget: newBase(logger, dialect{
		name:          "duckdb",
		placeholder:   questionPlaceholder,
		timestampType: "TIMESTAMP",
		boolType:      "BOOLEAN",
	})}
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (t *DuckDBTarget) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	t.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	t.DB = db
	t.Cfg = cfg
	return nil
}

func init() {
	Register("duckdb", func(logger *slog.Logger) Target { return NewDuckDB(logger) })
}
