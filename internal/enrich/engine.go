// Package enrich runs the enrichment pipeline: for each table document it
// classifies columns, resolves formulas and related columns, resolves
// descriptions and sources, and patches the computed values into the
// document in place.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/coverage"
	"github.com/LuisDee/catalog-enricher/internal/describe"
	"github.com/LuisDee/catalog-enricher/internal/index"
	"github.com/LuisDee/catalog-enricher/internal/patch"
	"github.com/LuisDee/catalog-enricher/internal/repository"
	"github.com/google/uuid"
)

// DefaultReplaceFields are the fields whose computed values overwrite
// differing authored ones.
var DefaultReplaceFields = []string{catalog.FieldFormula, catalog.FieldRelated}

// Config tunes the engine.
type Config struct {
	ReplaceFields []string
	Describe      describe.Options
	Thresholds    coverage.Thresholds
}

// Options scopes one run.
type Options struct {
	Tables []string      // table names; empty means all
	Layer  catalog.Layer // empty means all
	DryRun bool
	Stages []Stage // empty means all
}

func (o Options) selects(t *catalog.Table) bool {
	if o.Layer != "" && t.Layer != o.Layer {
		return false
	}
	if len(o.Tables) == 0 {
		return true
	}
	for _, name := range o.Tables {
		if name == t.Name {
			return true
		}
	}
	return false
}

// TableResult is the outcome for one table.
type TableResult struct {
	Name     string
	Path     string
	Layer    catalog.Layer
	Stats    Stats
	Warnings []error
	Applied  []patch.Applied
	Changed  bool
	Written  bool
	Diff     string

	// Document is the table as it reads after the run. For dry runs this is
	// the patched view that was not written.
	Document *catalog.Table
	Coverage *coverage.TableReport

	Err error
}

// Failed reports whether the table could not be enriched.
func (t *TableResult) Failed() bool {
	return t.Err != nil
}

// CoverageFailed reports whether the table missed a coverage threshold.
func (t *TableResult) CoverageFailed() bool {
	return t.Coverage != nil && !t.Coverage.Pass
}

// RunResult is the outcome of a run.
type RunResult struct {
	ID        string
	Started   time.Time
	Completed time.Time
	DryRun    bool
	Tables    []*TableResult
	Missing   []*catalog.MissingInputError
}

// Stats sums stats across tables.
func (r *RunResult) Stats() Stats {
	total := Stats{}
	for _, t := range r.Tables {
		total.Sum(t.Stats)
	}
	return total
}

// Failed returns the tables that failed.
func (r *RunResult) Failed() []*TableResult {
	var out []*TableResult
	for _, t := range r.Tables {
		if t.Failed() {
			out = append(out, t)
		}
	}
	return out
}

// Warnings returns every warning across tables.
func (r *RunResult) Warnings() []error {
	var out []error
	for _, t := range r.Tables {
		out = append(out, t.Warnings...)
	}
	return out
}

// Err summarises what should make the run exit non-zero: failed tables,
// missing inputs and coverage failures.
func (r *RunResult) Err() error {
	var errs []error
	for _, t := range r.Tables {
		switch {
		case t.Failed():
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, t.Err))
		case t.CoverageFailed():
			errs = append(errs, fmt.Errorf("%s: coverage below threshold", t.Name))
		}
	}
	for _, m := range r.Missing {
		errs = append(errs, m)
	}
	return errors.Join(errs...)
}

// Engine runs enrichment over the documents of a repository.
type Engine struct {
	repo   *repository.Repository
	cfg    Config
	logger *slog.Logger
}

// New creates an engine. A nil ReplaceFields uses DefaultReplaceFields and a
// nil Thresholds uses coverage.DefaultThresholds.
func New(repo *repository.Repository, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ReplaceFields == nil {
		cfg.ReplaceFields = DefaultReplaceFields
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = coverage.DefaultThresholds()
	}
	return &Engine{repo: repo, cfg: cfg, logger: logger}
}

// Repository returns the engine's repository.
func (e *Engine) Repository() *repository.Repository {
	return e.repo
}

// Run enriches every selected table, one at a time, in name order. A
// failing table does not stop the run; its error is recorded on its result.
// Only a malformed structural index or an unreadable catalog directory
// fails the run itself.
func (e *Engine) Run(ctx context.Context, opts Options) (*RunResult, error) {
	res := &RunResult{ID: uuid.NewString(), Started: time.Now(), DryRun: opts.DryRun}
	e.logger.Info("starting run", "run_id", res.ID, "dry_run", opts.DryRun, "tables", opts.Tables, "layer", opts.Layer)

	idx, err := e.repo.Indexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load structural indexes: %w", err)
	}
	res.Missing = append(res.Missing, idx.Missing...)

	paths, err := e.repo.Paths()
	if err != nil {
		return nil, err
	}

	resolver := describe.NewResolver(idx, e.cfg.Describe, e.logger)
	found := make(map[string]bool)

	var docs []*repository.Document
	for _, p := range paths {
		doc, err := e.repo.Document(p)
		if err != nil {
			name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
			if opts.selects(&catalog.Table{Name: name}) {
				found[name] = true
				e.logger.Warn("failed to load document", "path", p, "error", err)
				res.Tables = append(res.Tables, &TableResult{Name: name, Path: p, Stats: Stats{}, Err: err})
			}
			continue
		}
		if !opts.selects(doc.Table) {
			continue
		}
		found[doc.Table.Name] = true
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Table.Name < docs[j].Table.Name })

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Tables = append(res.Tables, e.enrich(doc, idx, resolver, opts))
	}
	sort.SliceStable(res.Tables, func(i, j int) bool { return res.Tables[i].Name < res.Tables[j].Name })

	for _, name := range opts.Tables {
		if !found[name] {
			res.Missing = append(res.Missing, &catalog.MissingInputError{Kind: "document", Table: name, Path: e.repo.CatalogDir()})
		}
	}

	res.Completed = time.Now()
	e.logger.Info("run completed", "run_id", res.ID, "tables", len(res.Tables),
		"failed", len(res.Failed()), "changed", res.Stats().Changed(), "duration", res.Completed.Sub(res.Started))
	return res, nil
}

// EnrichTable enriches a single document.
func (e *Engine) EnrichTable(ctx context.Context, path string, opts Options) (*TableResult, error) {
	idx, err := e.repo.Indexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load structural indexes: %w", err)
	}
	doc, err := e.repo.Document(path)
	if err != nil {
		return nil, err
	}
	return e.enrich(doc, idx, describe.NewResolver(idx, e.cfg.Describe, e.logger), opts), nil
}

func (e *Engine) enrich(doc *repository.Document, idx *index.Indexes, resolver *describe.Resolver, opts Options) *TableResult {
	table := doc.Table
	tr := &TableResult{
		Name:     table.Name,
		Path:     doc.Path,
		Layer:    table.Layer,
		Document: table,
	}
	logger := e.logger.With("table", table.Name)

	plan := BuildPlan(table, idx, resolver, opts.Stages, e.cfg.ReplaceFields)
	tr.Stats = plan.Stats
	tr.Warnings = plan.Warnings
	for _, w := range plan.Warnings {
		logger.Debug("enrichment warning", "warning", w.Error())
	}

	result, err := patch.Apply(doc.Source, doc.Path, plan.Changes)
	if err != nil {
		logger.Error("patch failed, document left unchanged", "error", err)
		tr.Err = err
		return tr
	}
	tr.Stats.record(result.Applied)
	tr.Applied = result.Applied
	tr.Changed = result.Changed

	if result.Changed {
		patched, err := catalog.ParseDocument(result.Output, doc.Path)
		if err != nil {
			tr.Err = &catalog.ValidationFailure{Table: table.Name, Path: doc.Path, Err: err}
			return tr
		}
		tr.Document = patched

		if opts.DryRun {
			tr.Diff = UnifiedDiff(relativePath(e.repo.CatalogDir(), doc.Path), doc.Source, result.Output)
		} else {
			if err := e.repo.Write(doc.Path, result.Output); err != nil {
				tr.Err = err
				return tr
			}
			tr.Written = true
		}
	}

	report := coverage.Evaluate(tr.Document, e.cfg.Thresholds)
	tr.Coverage = &report

	logger.Debug("table enriched", "changed", tr.Stats.Changed(), "written", tr.Written, "coverage_pass", report.Pass)
	return tr
}

func relativePath(base, path string) string {
	if base == "" {
		return filepath.Base(path)
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(abs, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
