package publish

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
)

// dialect captures the SQL differences between targets.
type dialect struct {
	name          string
	placeholder   func(i int) string
	timestampType string
	boolType      string
}

func questionPlaceholder(int) string { return "?" }

func dollarPlaceholder(i int) string { return fmt.Sprintf("$%d", i) }

// BaseTarget provides the database/sql publishing shared by every target.
// Embed it in concrete targets and set DB in Connect.
type BaseTarget struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger

	dialect dialect
	now     func() time.Time
}

func newBase(logger *slog.Logger, d dialect) BaseTarget {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return BaseTarget{Logger: logger, dialect: d, now: time.Now}
}

// Name returns the target type.
func (b *BaseTarget) Name() string {
	return b.dialect.name
}

// Close closes the database connection.
func (b *BaseTarget) Close() error {
	if b.DB != nil {
		b.Logger.Debug("closing database connection")
		return b.DB.Close()
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseTarget) IsConnected() bool {
	return b.DB != nil
}

// QualifiedTable returns the quoted, schema-qualified destination table.
func (b *BaseTarget) QualifiedTable() string {
	table := b.Cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if b.Cfg.Schema != "" {
		return quoteIdent(b.Cfg.Schema) + "." + quoteIdent(table)
	}
	return quoteIdent(table)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (b *BaseTarget) createTableSQL() string {
	types := map[string]string{
		"position":     "INTEGER",
		"filterable":   b.dialect.boolType,
		"published_at": b.dialect.timestampType,
	}
	defs := make([]string, 0, len(rowColumns))
	for _, c := range rowColumns {
		typ, ok := types[c]
		if !ok {
			typ = "TEXT"
		}
		if c == "table_name" || c == "column_name" {
			typ += " NOT NULL"
		}
		defs = append(defs, "\t"+c+" "+typ)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", b.QualifiedTable(), strings.Join(defs, ",\n"))
}

func (b *BaseTarget) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE table_name = %s", b.QualifiedTable(), b.dialect.placeholder(1)) //nolint:gosec // identifiers are quoted
}

func (b *BaseTarget) insertSQL() string {
	marks := make([]string, len(rowColumns))
	for i := range rowColumns {
		marks[i] = b.dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", //nolint:gosec // identifiers are quoted
		b.QualifiedTable(), strings.Join(rowColumns, ", "), strings.Join(marks, ", "))
}

// Publish creates the destination table if needed, then replaces the rows
// of every given table inside one transaction.
func (b *BaseTarget) Publish(ctx context.Context, tables []*catalog.Table) (*Result, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	if _, err := b.DB.ExecContext(ctx, b.createTableSQL()); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", b.QualifiedTable(), err)
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res := &Result{Target: b.Name(), Table: b.QualifiedTable()}
	at := b.now()
	insert := b.insertSQL()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, b.deleteSQL(), t.Name); err != nil {
			return nil, fmt.Errorf("failed to clear rows of %s: %w", t.Name, err)
		}
		for _, row := range RowsFor(t, at) {
			if _, err := tx.ExecContext(ctx, insert, row.args()...); err != nil {
				return nil, fmt.Errorf("failed to insert %s.%s: %w", t.Name, row.Column, err)
			}
			res.Rows++
		}
		res.Tables++
		b.Logger.Debug("published table", slog.String("table", t.Name), slog.Int("columns", len(t.Columns)))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit publish: %w", err)
	}
	b.Logger.Info("published catalog", slog.String("target", b.Name()), slog.Int("tables", res.Tables), slog.Int("rows", res.Rows))
	return res, nil
}
