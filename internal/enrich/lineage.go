package enrich

import (
	"context"
	"fmt"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/dag"
	"github.com/LuisDee/catalog-enricher/internal/formula"
	"github.com/LuisDee/catalog-enricher/internal/repository"
)

// TableFormulas is a table document with its built formula index.
type TableFormulas struct {
	Document *repository.Document
	Formulas *formula.Index
}

// Table loads the document for a table by name and builds its formula
// index. A table with no document is a MissingInputError.
func (e *Engine) Table(ctx context.Context, name string) (*TableFormulas, error) {
	idx, err := e.repo.Indexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load structural indexes: %w", err)
	}
	docs, errs, err := e.repo.Documents()
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.Table.Name != name {
			continue
		}
		spec := idx.Metrics
		return &TableFormulas{
			Document: doc,
			Formulas: formula.BuildIndex(spec, TradeType(doc.Table, spec), doc.Table.Name, nil),
		}, nil
	}
	for _, err := range errs {
		e.logger.Debug("skipped unreadable document", "error", err)
	}
	return nil, &catalog.MissingInputError{Kind: "document", Table: name, Path: e.repo.CatalogDir()}
}

// EffectiveFormula returns the formula a column is computed by: the indexed
// one when present, otherwise the authored one.
func (t *TableFormulas) EffectiveFormula(col *catalog.Column) string {
	if f := t.Formulas.Formula(col.Name); f != "" {
		return f
	}
	return col.Formula
}

// Graph builds the column dependency graph of the table.
func (t *TableFormulas) Graph() *dag.Graph {
	table := t.Document.Table
	columns := make([]string, len(table.Columns))
	refs := make(map[string][]string)
	for i := range table.Columns {
		col := &table.Columns[i]
		columns[i] = col.Name
		if f := t.EffectiveFormula(col); f != "" {
			refs[col.Name] = formula.ExtractReferences(f)
		}
	}
	return dag.Build(columns, refs)
}
