package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Table(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(t)

	tf, err := eng.Table(context.Background(), "markettrade")
	require.NoError(t, err)
	assert.Equal(t, "markettrade", tf.Document.Table.Name)
	assert.Equal(t, "markettrade", tf.Formulas.TradeType)
	assert.Equal(t, []string{"delta_slippage_1s", "instant_pnl"}, tf.Formulas.Columns())

	pnl, ok := tf.Document.Table.Column("instant_pnl")
	require.True(t, ok)
	assert.Equal(t, "(tv - trade_price) * size - fees", tf.EffectiveFormula(pnl), "indexed formula wins")

	_, err = eng.Table(context.Background(), "nope")
	var missing *catalog.MissingInputError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "nope", missing.Table)
}

func TestTableFormulas_Graph(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(t)

	tf, err := eng.Table(context.Background(), "markettrade")
	require.NoError(t, err)

	g := tf.Graph()
	assert.Equal(t, 5, g.NodeCount())
	assert.Equal(t, []string{"size", "trade_price"}, g.Dependencies("instant_pnl"))
	assert.Equal(t, []string{"delta_slippage_1s", "instant_pnl"}, g.Dependents("trade_price"))
	assert.Empty(t, g.Dependencies("trade_date"))
	assert.Nil(t, g.FindCycle())

	node, ok := g.Node("delta_slippage_1s")
	require.True(t, ok)
	assert.True(t, node.Derived)
}

func TestTableFormulas_GraphUsesAuthoredFormula(t *testing.T) {
	f := newFixture(t)
	f.paths.Metrics = ""
	eng := f.engine(t)

	tf, err := eng.Table(context.Background(), "markettrade")
	require.NoError(t, err)
	assert.Zero(t, tf.Formulas.Len())

	g := tf.Graph()
	assert.Equal(t, []string{"trade_price"}, g.Dependencies("instant_pnl"))
	assert.Empty(t, g.Dependencies("delta_slippage_1s"))
}

func TestTradeType(t *testing.T) {
	spec, err := index.ParseMetricSpec([]byte(`trade_types:
  - name: markettrade
    tables: [markettrade, markettrade_agg]
`))
	require.NoError(t, err)

	tests := []struct {
		name  string
		table *catalog.Table
		want  string
	}{
		{"explicit trade type wins", &catalog.Table{Name: "markettrade_agg", TradeType: "quotes"}, "quotes"},
		{"listed table", &catalog.Table{Name: "markettrade_agg"}, "markettrade"},
		{"falls back to table name", &catalog.Table{Name: "orders"}, "orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TradeType(tt.table, spec))
		})
	}
	assert.Equal(t, "orders", TradeType(&catalog.Table{Name: "orders"}, nil))
}
