package enrich

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/coverage"
	"github.com/LuisDee/catalog-enricher/internal/index"
	"github.com/LuisDee/catalog-enricher/internal/repository"
	"github.com/LuisDee/catalog-enricher/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fieldsYAML = `groups:
  - name: Trade
    fields:
      - {name: tradePrice, type: double, number: 4, comment: "price at which the trade executed"}
`

const transformsYAML = `tables:
  markettrade:
    - {column: trade_price, source: Trade.tradePrice, kind: direct}
`

const metricsYAML = `intervals: ["1s"]
shared_formulas:
  delta_slippage:
    template: "delta_slippage_{interval}"
    per_interval: true
    standard: "(mid_{interval} - trade_price) * delta"
    markettrade: "(mid_{interval} - trade_price) * delta * size"
trade_types:
  - name: markettrade
    tables: [markettrade]
    metrics:
      - {name: "delta_slippage_{interval}", shared: delta_slippage, per_interval: true}
      - {name: instant_pnl, formula: "(tv - trade_price) * size - fees"}
`

const marketTradeDoc = `name: markettrade
layer: data
# hand-written notes survive
columns:
  - name: trade_date
    type: date
  - name: trade_price
    type: double
  - name: size
    type: double
  - name: delta_slippage_1s
    type: double
  - name: instant_pnl
    type: double
    description: Authored PnL description.
    formula: "tv - trade_price"
`

type fixture struct {
	dir        string
	catalogDir string
	docPath    string
	paths      index.Paths
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:        dir,
		catalogDir: filepath.Join(dir, "catalog"),
		paths: index.Paths{
			Fields:     testutil.WriteFile(t, dir, "fields.yaml", fieldsYAML),
			Transforms: testutil.WriteFile(t, dir, "transforms.yaml", transformsYAML),
			Metrics:    testutil.WriteFile(t, dir, "metrics.yaml", metricsYAML),
		},
	}
	f.docPath = testutil.WriteFile(t, dir, "catalog/markettrade.yaml", marketTradeDoc)
	return f
}

func (f fixture) engine(t *testing.T) *Engine {
	t.Helper()
	repo := repository.New(f.catalogDir, f.paths, testutil.NewTestLogger(t))
	return New(repo, Config{Thresholds: coverage.Thresholds{}}, testutil.NewTestLogger(t))
}

func loadTable(t *testing.T, path string) *catalog.Table {
	t.Helper()
	table, _, err := catalog.LoadDocument(path)
	require.NoError(t, err)
	return table
}

func TestEngine_Run(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(t)

	res, err := eng.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	require.NoError(t, res.Err())

	tr := res.Tables[0]
	assert.Equal(t, "markettrade", tr.Name)
	assert.True(t, tr.Written)
	assert.Positive(t, tr.Stats.Changed())

	table := loadTable(t, f.docPath)

	date, ok := table.Column("trade_date")
	require.True(t, ok)
	assert.Equal(t, "time", date.Category)
	assert.Equal(t, "Trading date the record belongs to, used as the partition key.", date.Description)

	price, ok := table.Column("trade_price")
	require.True(t, ok)
	assert.Equal(t, "Trade.tradePrice", price.Source)
	assert.Equal(t, "Price at which the trade executed. Originates from Trade.", price.Description)

	slippage, ok := table.Column("delta_slippage_1s")
	require.True(t, ok)
	assert.Equal(t, "measure", slippage.Category)
	assert.Equal(t, "(mid_1s - trade_price) * delta * size", slippage.Formula)
	assert.Equal(t, []string{"size", "trade_price"}, slippage.RelatedColumns)
	assert.NotEmpty(t, slippage.TypicalAggregation)

	pnl, ok := table.Column("instant_pnl")
	require.True(t, ok)
	assert.Equal(t, "Authored PnL description.", pnl.Description, "authored description is kept")
	assert.Equal(t, "(tv - trade_price) * size - fees", pnl.Formula, "formula is replaced")
	assert.Equal(t, []string{"size", "trade_price"}, pnl.RelatedColumns)

	assert.Equal(t, 1, tr.Stats[catalog.FieldFormula].Updated)
	assert.Equal(t, 1, tr.Stats[catalog.FieldFormula].Added)

	data, err := os.ReadFile(f.docPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# hand-written notes survive")
}

func TestEngine_RunIsIdempotent(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine(t).Run(context.Background(), Options{})
	require.NoError(t, err)
	first, err := os.ReadFile(f.docPath)
	require.NoError(t, err)

	res, err := f.engine(t).Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.False(t, res.Tables[0].Changed)
	assert.False(t, res.Tables[0].Written)
	assert.Zero(t, res.Stats().Changed())

	second, err := os.ReadFile(f.docPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestEngine_DryRun(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine(t).Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)

	tr := res.Tables[0]
	assert.True(t, tr.Changed)
	assert.False(t, tr.Written)
	assert.Contains(t, tr.Diff, "--- a/markettrade.yaml")
	assert.Contains(t, tr.Diff, "+++ b/markettrade.yaml")
	assert.Contains(t, tr.Diff, "+    category: time")

	slippage, ok := tr.Document.Column("delta_slippage_1s")
	require.True(t, ok)
	assert.NotEmpty(t, slippage.Formula, "dry-run document reflects the patch")

	data, err := os.ReadFile(f.docPath)
	require.NoError(t, err)
	assert.Equal(t, marketTradeDoc, string(data), "dry run leaves the file alone")
}

func TestEngine_FailingTableIsIsolated(t *testing.T) {
	f := newFixture(t)
	broken := testutil.WriteFile(t, f.dir, "catalog/broken.yaml", "name: broken\ncolumns: [\n")

	res, err := f.engine(t).Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)

	byName := map[string]*TableResult{}
	for _, tr := range res.Tables {
		byName[tr.Name] = tr
	}
	require.Contains(t, byName, "broken")
	assert.True(t, byName["broken"].Failed())
	assert.Equal(t, broken, byName["broken"].Path)

	require.Contains(t, byName, "markettrade")
	assert.False(t, byName["markettrade"].Failed())
	assert.True(t, byName["markettrade"].Written)

	assert.Len(t, res.Failed(), 1)
	assert.Error(t, res.Err())
}

func TestEngine_Filters(t *testing.T) {
	f := newFixture(t)
	testutil.WriteFile(t, f.dir, "catalog/quotes.yaml", "name: quotes\nlayer: source\ncolumns:\n  - name: bid_price_1\n    type: double\n")

	res, err := f.engine(t).Run(context.Background(), Options{Layer: catalog.LayerSource, DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "quotes", res.Tables[0].Name)

	res, err = f.engine(t).Run(context.Background(), Options{Tables: []string{"markettrade", "nope"}, DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "markettrade", res.Tables[0].Name)
	require.Len(t, res.Missing, 1)
	assert.Equal(t, "document", res.Missing[0].Kind)
	assert.Equal(t, "nope", res.Missing[0].Table)

	var mi *catalog.MissingInputError
	assert.True(t, errors.As(res.Err(), &mi))
}

func TestEngine_MissingIndexContinues(t *testing.T) {
	f := newFixture(t)
	f.paths.Metrics = filepath.Join(f.dir, "absent.yaml")

	res, err := f.engine(t).Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, res.Missing, 1)
	assert.Equal(t, "metrics index", res.Missing[0].Kind)
	assert.Error(t, res.Err())

	table := loadTable(t, f.docPath)
	date, _ := table.Column("trade_date")
	assert.Equal(t, "time", date.Category, "other stages still run")
	slippage, _ := table.Column("delta_slippage_1s")
	assert.Empty(t, slippage.Formula)
	pnl, _ := table.Column("instant_pnl")
	assert.Equal(t, "tv - trade_price", pnl.Formula, "authored formula is untouched")
}

func TestEngine_Stages(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine(t).Run(context.Background(), Options{Stages: []Stage{StageClassify}})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)

	for _, field := range res.Tables[0].Stats.Fields() {
		assert.Contains(t, []string{catalog.FieldCategory, catalog.FieldAggregation, catalog.FieldFilterable}, field)
	}
	table := loadTable(t, f.docPath)
	date, _ := table.Column("trade_date")
	assert.Equal(t, "time", date.Category)
	assert.Empty(t, date.Description)
}

func TestEngine_EnrichTable(t *testing.T) {
	f := newFixture(t)

	tr, err := f.engine(t).EnrichTable(context.Background(), f.docPath, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "markettrade", tr.Name)
	assert.NotEmpty(t, tr.Diff)

	_, err = f.engine(t).EnrichTable(context.Background(), filepath.Join(f.catalogDir, "nope.yaml"), Options{})
	var mi *catalog.MissingInputError
	assert.True(t, errors.As(err, &mi))
}

func TestEngine_CoverageGate(t *testing.T) {
	f := newFixture(t)
	run := func(th coverage.Thresholds) *RunResult {
		repo := repository.New(f.catalogDir, f.paths, nil)
		res, err := New(repo, Config{Thresholds: th}, nil).Run(context.Background(), Options{DryRun: true})
		require.NoError(t, err)
		require.Len(t, res.Tables, 1)
		require.NotNil(t, res.Tables[0].Coverage)
		return res
	}

	// Every column gets a category, so the patched view passes.
	res := run(coverage.Thresholds{coverage.FieldCategory: 100})
	assert.False(t, res.Tables[0].CoverageFailed())
	assert.NoError(t, res.Err())

	// trade_date has no lineage, so no source can be resolved for it.
	res = run(coverage.Thresholds{coverage.FieldSource: 100})
	fc, ok := res.Tables[0].Coverage.Field(coverage.FieldSource)
	require.True(t, ok)
	assert.Less(t, fc.Present, fc.Applicable)
	assert.True(t, res.Tables[0].CoverageFailed())
	assert.Error(t, res.Err())
}

func TestEngine_Watch(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs := make(chan *RunResult, 8)
	done := make(chan error, 1)
	go func() {
		done <- eng.Watch(ctx, Options{}, func(res *RunResult, err error) {
			if err == nil {
				runs <- res
			}
		})
	}()

	select {
	case res := <-runs:
		require.Len(t, res.Tables, 1)
	case <-ctx.Done():
		t.Fatal("initial run did not happen")
	}

	testutil.WriteFile(t, f.dir, "catalog/quotes.yaml", "name: quotes\ncolumns:\n  - name: bid_price_1\n    type: double\n")

	select {
	case res := <-runs:
		require.Len(t, res.Tables, 2)
	case <-ctx.Done():
		t.Fatal("change did not trigger a run")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestUnifiedDiff(t *testing.T) {
	diff := UnifiedDiff("t.yaml", []byte("a\nb\n"), []byte("a\nc\n"))
	assert.Contains(t, diff, "-b\n")
	assert.Contains(t, diff, "+c\n")
	assert.Empty(t, UnifiedDiff("t.yaml", []byte("same\n"), []byte("same\n")))
}

func TestEngine_MeasuresAreNeverFilterable(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine(t).Run(context.Background(), Options{})
	require.NoError(t, err)

	table := loadTable(t, f.docPath)
	for _, c := range table.Columns {
		if c.Category != string(catalog.CategoryMeasure) {
			assert.NotNil(t, c.Filterable, "%s should carry filterable", c.Name)
			continue
		}
		assert.Nil(t, c.Filterable, "%s is a measure", c.Name)
	}

	data, err := os.ReadFile(f.docPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "filterable:"), "only trade_date is filterable")
}

// wideDoc has more formula siblings than related_columns may hold, a column
// whose related list comes from the reference catalog, and a column no tier
// can describe.
const wideDoc = `name: wide
layer: data
columns:
  - name: a
    type: double
    description: Leg a.
  - name: b
    type: double
    description: Leg b.
  - name: c
    type: double
    description: Leg c.
  - name: d
    type: double
    description: Leg d.
  - name: e
    type: double
    description: Leg e.
  - name: f
    type: double
    description: Leg f.
  - name: g
    type: double
    description: Leg g.
  - name: gross
    type: double
    description: Sum of all legs.
    formula: "a + b + c + d + e + f + g"
  - name: label
    type: string
  - name: xyz
    type: double
`

const wideReference = `name: wide
columns:
  - name: label
    description: Free text label of the row.
    related_columns: [label, missing, a, a, b, c, d, e, f]
`

func TestEngine_RelatedColumnConstraints(t *testing.T) {
	f := newFixture(t)
	f.paths.Reference = filepath.Join(f.dir, "reference")
	testutil.WriteFile(t, f.dir, "reference/wide.yaml", wideReference)
	path := testutil.WriteFile(t, f.dir, "catalog/wide.yaml", wideDoc)

	res, err := f.engine(t).Run(context.Background(), Options{Tables: []string{"wide"}})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	tr := res.Tables[0]
	require.NoError(t, tr.Err)

	violations := map[string]*catalog.SchemaConstraintViolation{}
	var ambiguous []string
	for _, w := range tr.Warnings {
		var scv *catalog.SchemaConstraintViolation
		var arw *catalog.AmbiguousResolutionWarning
		switch {
		case errors.As(w, &scv):
			violations[scv.Column] = scv
		case errors.As(w, &arw):
			ambiguous = append(ambiguous, arw.Column)
			assert.Equal(t, catalog.FieldDescription, arw.Field)
		}
	}

	t.Run("formula siblings over the cap are truncated", func(t *testing.T) {
		v, ok := violations["gross"]
		require.True(t, ok)
		assert.Equal(t, catalog.FieldRelated, v.Field)
		assert.Equal(t, []string{"f", "g"}, v.Dropped)
	})

	t.Run("reference related columns are sanitised", func(t *testing.T) {
		v, ok := violations["label"]
		require.True(t, ok)
		assert.Equal(t, []string{"label", "missing", "a", "f"}, v.Dropped)
	})

	t.Run("undescribable column is reported", func(t *testing.T) {
		assert.Equal(t, []string{"xyz"}, ambiguous)
	})

	t.Run("written lists respect the cap", func(t *testing.T) {
		table := loadTable(t, path)
		gross, ok := table.Column("gross")
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, gross.RelatedColumns)

		label, ok := table.Column("label")
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, label.RelatedColumns)
		assert.Equal(t, "Free text label of the row.", label.Description)

		xyz, ok := table.Column("xyz")
		require.True(t, ok)
		assert.Empty(t, xyz.Description)
	})
}
