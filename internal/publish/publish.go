// Package publish writes the enriched catalog into an analytical database,
// one row per column, for consumers that search or cache column metadata.
//
// Targets register themselves by name; NewTarget builds one from Config.
package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
)

// DefaultTable is the table rows are written to when none is configured.
const DefaultTable = "catalog_columns"

// Config holds the configuration for connecting to a publish target.
type Config struct {
	// Type selects the target (e.g., "duckdb", "postgres", "sqlite").
	Type string

	// Path is the file path for file-based databases.
	// Use ":memory:" for in-memory databases.
	Path string

	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Schema qualifies Table when set.
	Schema string

	// Table receives the rows; DefaultTable when empty.
	Table string

	// Options contains additional driver-specific options.
	Options map[string]string
}

// Target is a database the catalog can be published to.
type Target interface {
	// Name returns the registered target type.
	Name() string

	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Publish replaces the rows of every given table in one transaction.
	Publish(ctx context.Context, tables []*catalog.Table) (*Result, error)
}

// Result summarises a publish.
type Result struct {
	Target string `json:"target"`
	Table  string `json:"table"`
	Tables int    `json:"tables"`
	Rows   int    `json:"rows"`
}

// Row is the published form of one column.
type Row struct {
	Table              string
	Layer              string
	Column             string
	Position           int
	Type               string
	Description        string
	Category           string
	TypicalAggregation string
	Filterable         *bool
	Formula            string
	RelatedColumns     string // JSON array
	Source             string
	Synonyms           string // JSON array
	BusinessRules      string
	PublishedAt        time.Time
}

// rowColumns is the column order of the published table and of Row.args.
var rowColumns = []string{
	"table_name",
	"layer",
	"column_name",
	"position",
	"data_type",
	"description",
	"category",
	"typical_aggregation",
	"filterable",
	"formula",
	"related_columns",
	"source",
	"synonyms",
	"business_rules",
	"published_at",
}

func (r Row) args() []any {
	var filterable any
	if r.Filterable != nil {
		filterable = *r.Filterable
	}
	return []any{
		r.Table,
		r.Layer,
		r.Column,
		r.Position,
		r.Type,
		r.Description,
		r.Category,
		r.TypicalAggregation,
		filterable,
		r.Formula,
		r.RelatedColumns,
		r.Source,
		r.Synonyms,
		r.BusinessRules,
		r.PublishedAt,
	}
}

// RowsFor converts a table into rows, in document order.
func RowsFor(t *catalog.Table, at time.Time) []Row {
	rows := make([]Row, 0, len(t.Columns))
	for i := range t.Columns {
		c := &t.Columns[i]
		rows = append(rows, Row{
			Table:              t.Name,
			Layer:              string(t.Layer),
			Column:             c.Name,
			Position:           i + 1,
			Type:               c.Type,
			Description:        c.Description,
			Category:           c.Category,
			TypicalAggregation: c.TypicalAggregation,
			Filterable:         c.Filterable,
			Formula:            c.Formula,
			RelatedColumns:     jsonList(c.RelatedColumns),
			Source:             c.Source,
			Synonyms:           jsonList(c.Synonyms),
			BusinessRules:      c.BusinessRules,
			PublishedAt:        at.UTC(),
		})
	}
	return rows
}

func jsonList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}
