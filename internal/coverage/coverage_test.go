package coverage

import (
	"testing"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func sampleTable() *catalog.Table {
	return &catalog.Table{
		Name: "markettrade",
		Columns: []catalog.Column{
			{Name: "trade_date", Type: "DATE", Category: "time", Description: "Trading date.", Source: "Trade.date", Filterable: boolPtr(true)},
			{Name: "symbol", Type: "STRING", Category: "dimension", Description: "Ticker.", Source: "Instrument.symbol"},
			{Name: "trade_price", Type: "FLOAT64", Category: "measure", Description: "Price.", TypicalAggregation: "AVG"},
			{Name: "instant_pnl", Type: "FLOAT64", Category: "measure", Formula: "tv - trade_price", Description: "PnL.", Source: "computed"},
		},
	}
}

func TestEvaluate(t *testing.T) {
	rep := Evaluate(sampleTable(), DefaultThresholds())

	category, ok := rep.Field(FieldCategory)
	require.True(t, ok)
	assert.Equal(t, 4, category.Applicable)
	assert.Equal(t, 100.0, category.Percent)
	assert.True(t, category.Pass)

	source, _ := rep.Field(FieldSource)
	assert.Equal(t, 75.0, source.Percent)
	assert.False(t, source.Pass)
	assert.Equal(t, []string{"trade_price"}, source.Missing)

	formula, _ := rep.Field(FieldFormula)
	assert.Equal(t, 2, formula.Applicable)
	assert.Equal(t, 50.0, formula.Percent)
	assert.False(t, formula.Pass)

	agg, _ := rep.Field(FieldAggregation)
	assert.Equal(t, 50.0, agg.Percent)
	assert.Nil(t, agg.Threshold)
	assert.True(t, agg.Pass, "ungated fields never fail")

	filterable, _ := rep.Field(FieldFilterable)
	assert.Equal(t, 2, filterable.Applicable)
	assert.Equal(t, 1, filterable.Present)

	assert.False(t, rep.Pass)
	assert.ElementsMatch(t, []Gap{
		{Table: "markettrade", Column: "trade_price", Field: FieldSource},
		{Table: "markettrade", Column: "trade_price", Field: FieldFormula},
	}, rep.Gaps())
}

func TestEvaluate_NotApplicable(t *testing.T) {
	table := &catalog.Table{
		Name: "dims",
		Columns: []catalog.Column{
			{Name: "symbol", Type: "STRING", Category: "dimension", Description: "Ticker.", Source: "x", Filterable: boolPtr(true)},
		},
	}
	rep := Evaluate(table, DefaultThresholds())

	formula, _ := rep.Field(FieldFormula)
	assert.True(t, formula.NotApplicable())
	assert.False(t, formula.Gated())
	assert.True(t, formula.Pass)
	assert.Equal(t, "n/a", formula.PercentString())
	assert.True(t, rep.Pass)
}

func TestEvaluate_ComputedCategoryDecidesMeasures(t *testing.T) {
	table := &catalog.Table{
		Name:    "t",
		Columns: []catalog.Column{{Name: "fees", Type: "FLOAT64"}},
	}
	rep := Evaluate(table, Thresholds{})

	formula, _ := rep.Field(FieldFormula)
	assert.Equal(t, 1, formula.Applicable)
	filterable, _ := rep.Field(FieldFilterable)
	assert.True(t, filterable.NotApplicable())
}

func TestBuild(t *testing.T) {
	passing := &catalog.Table{
		Name: "alpha",
		Columns: []catalog.Column{
			{Name: "symbol", Type: "STRING", Category: "dimension", Description: "Ticker.", Source: "x"},
		},
	}
	rep := Build([]*catalog.Table{sampleTable(), passing}, DefaultThresholds())

	require.Len(t, rep.Tables, 2)
	assert.Equal(t, "alpha", rep.Tables[0].Table, "tables are reported in name order")
	assert.Equal(t, 2, rep.Summary.Tables)
	assert.Equal(t, 1, rep.Summary.Passed)
	assert.Equal(t, 1, rep.Summary.Failed)
	assert.False(t, rep.Pass())
	assert.Equal(t, []string{"markettrade"}, rep.Failed())

	require.Len(t, rep.Summary.Fields, len(Fields))
	source := rep.Summary.Fields[1]
	assert.Equal(t, FieldSource, source.Field)
	assert.Equal(t, 4, source.Present)
	assert.Equal(t, 5, source.Applicable)
	assert.InDelta(t, 80.0, source.Percent, 0.001)
}

func TestParseThreshold(t *testing.T) {
	f, pct, err := ParseThreshold("description=80")
	require.NoError(t, err)
	assert.Equal(t, FieldDescription, f)
	assert.Equal(t, 80.0, pct)

	f, pct, err = ParseThreshold("aggregation=50%")
	require.NoError(t, err)
	assert.Equal(t, FieldAggregation, f)
	assert.Equal(t, 50.0, pct)

	for _, bad := range []string{"description", "nope=10", "source=abc", "source=120"} {
		_, _, err := ParseThreshold(bad)
		assert.Error(t, err, bad)
	}
}

func TestCoverage_Monotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("filling a missing field never lowers its coverage", prop.ForAll(
		func(present []bool, pick int) bool {
			table := &catalog.Table{Name: "t"}
			for i, p := range present {
				col := catalog.Column{Name: "c" + string(rune('a'+i%26)) + string(rune('a'+i/26)), Type: "STRING"}
				if p {
					col.Description = "Described."
				}
				table.Columns = append(table.Columns, col)
			}
			beforeRep := Evaluate(table, nil)
			before, _ := beforeRep.Field(FieldDescription)

			var missing []int
			for i, p := range present {
				if !p {
					missing = append(missing, i)
				}
			}
			if len(missing) == 0 {
				return true
			}
			table.Columns[missing[pick%len(missing)]].Description = "Now described."
			afterRep := Evaluate(table, nil)
			after, _ := afterRep.Field(FieldDescription)
			return after.Percent >= before.Percent && after.Present == before.Present+1
		},
		gen.SliceOf(gen.Bool()),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
