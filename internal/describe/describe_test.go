package describe

import (
	"testing"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/index"
	"github.com/LuisDee/catalog-enricher/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWords(t *testing.T) {
	tests := map[string][]string{
		"exchangeTimestampNs": {"exchange", "timestamp", "ns"},
		"TradePrice":          {"trade", "price"},
		"HTTPServer":          {"http", "server"},
		"bid_price_1":         {"bid", "price", "1"},
		"mid1s":               {"mid", "1", "s"},
		"kebab-case name":     {"kebab", "case", "name"},
		"":                    nil,
	}
	for in, want := range tests {
		assert.Equal(t, want, SplitWords(in), in)
	}
}

func TestNameVariants(t *testing.T) {
	assert.Equal(t,
		[]string{"trade_price", "tradePrice", "TradePrice", "tradeprice"},
		NameVariants("trade_price"))
	assert.Equal(t,
		[]string{"exchangeTimestampNs", "ExchangeTimestampNs", "exchange_timestamp_ns", "exchangetimestampns"},
		NameVariants("exchangeTimestampNs"))
}

func TestSentence(t *testing.T) {
	assert.Equal(t, "Price at which we traded.", Sentence("price at which we traded"))
	assert.Equal(t, "Already done!", Sentence("already done!"))
	assert.Equal(t, "PnL of the trade.", Sentence("PnL of the trade"))
	assert.Equal(t, "", Sentence("  "))
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		column string
		want   string
	}{
		{"trade_date", "Trading date the record belongs to, used as the partition key."},
		{"bid_price_1", "Best bid price (order-book level 1)."},
		{"ask_size_level_3", "Ask size at order-book level 3."},
		{"bid_2_price", "Bid price at order-book level 2."},
		{"delta_slippage_5s", "Delta slippage, measured over the 5s horizon."},
		{"tv_eod", "Theoretical value of the instrument at the time of the event, measured over the end of day horizon."},
		{"fill_count", "Number of fills."},
		{"order_ids", "Identifiers of the associated orders."},
		{"is_aggressor", "Flag set when the record is aggressor."},
		{"exchange_timestamp_ns", "Exchange timestamp in nanoseconds since the Unix epoch."},
		{"created_at", "Time at which the record was created."},
		{"instant_pnl", "Instant profit and loss."},
		{"edge_bps", "Edge expressed in basis points."},
		{"parent_order_id", "Identifier of the parent order."},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			got, ok := Heuristic(tt.column)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := Heuristic("xyz")
	assert.False(t, ok)
}

func testIndexes(t *testing.T) *index.Indexes {
	t.Helper()

	fields, err := index.ParseFieldIndex([]byte(`enums: [Side]
groups:
  - name: Trade
    fields:
      - {name: tradePrice, type: double, comment: "price at which the trade executed"}
      - {name: side, type: Side, comment: "aggressor side"}
      - {name: exchangeTimestampNs, type: int64, comment: "exchange event time"}
  - name: Book
    fields:
      - {name: bidPrice3, type: double, comment: "bid"}
`))
	require.NoError(t, err)

	transforms, err := index.ParseTransformIndex([]byte(`tables:
  markettrade:
    - {column: trade_price, source: Trade.tradePrice, kind: direct}
    - {column: side, source: Trade.side}
    - {column: exchange_timestamp_ns, source: Trade.exchangeTimestampNs, kind: rename}
    - {column: symbol, source: Instrument.symbol, kind: join}
    - {column: bid_price_3, source: Book.bid_price_3}
    - {column: venue, source: Trade.venueCode}
`))
	require.NoError(t, err)

	ref := index.NewReferenceCatalog()
	ref.Add(&catalog.Table{
		Name: "markettrade",
		Columns: []catalog.Column{{
			Name:           "symbol",
			Description:    "Exchange ticker of the instrument.",
			Synonyms:       []string{"ticker"},
			BusinessRules:  "Upper case.",
			RelatedColumns: []string{"instrument_hash"},
		}},
	})

	idx := index.Empty()
	idx.Fields = fields
	idx.Transforms = transforms
	idx.Reference = ref
	return idx
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(testIndexes(t), Options{}, testutil.NewTestLogger(t))
	table := &catalog.Table{Name: "markettrade"}

	tests := []struct {
		column     string
		desc       string
		descTier   Tier
		source     string
		sourceTier Tier
	}{
		{
			column:     "trade_price",
			desc:       "Price at which the trade executed. Originates from Trade.",
			descTier:   TierLineage,
			source:     "Trade.tradePrice",
			sourceTier: TierLineage,
		},
		{
			column:     "side",
			desc:       "Aggressor side. Originates from Trade. Stored as the enum value name.",
			descTier:   TierLineage,
			source:     "Trade.side",
			sourceTier: TierLineage,
		},
		{
			column:     "exchange_timestamp_ns",
			desc:       "Exchange event time. Originates from Trade. Expressed in nanoseconds since the Unix epoch.",
			descTier:   TierLineage,
			source:     "Trade.exchangeTimestampNs (rename)",
			sourceTier: TierLineage,
		},
		{
			column:     "symbol",
			desc:       "Exchange ticker of the instrument.",
			descTier:   TierReference,
			source:     "Instrument.symbol (enrichment)",
			sourceTier: TierLineage,
		},
		{
			column:     "bid_price_3",
			desc:       "Bid price at order-book level 3.",
			descTier:   TierHeuristic,
			source:     "Book.bid_price_3",
			sourceTier: TierLineage,
		},
		{
			column:     "venue",
			desc:       "Execution venue that reported the event.",
			descTier:   TierHeuristic,
			source:     "Trade.venueCode",
			sourceTier: TierLineage,
		},
		{
			column:   "created_at",
			desc:     "Time at which the record was created.",
			descTier: TierHeuristic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			res := r.Resolve(table, &catalog.Column{Name: tt.column})
			assert.Equal(t, tt.desc, res.Description)
			assert.Equal(t, tt.descTier, res.DescriptionTier)
			assert.Equal(t, tt.source, res.Source)
			assert.Equal(t, tt.sourceTier, res.SourceTier)
			assert.Nil(t, res.Warning)
		})
	}
}

func TestResolver_ReferenceExtras(t *testing.T) {
	r := NewResolver(testIndexes(t), Options{}, nil)
	res := r.Resolve(&catalog.Table{Name: "markettrade"}, &catalog.Column{Name: "symbol"})

	assert.Equal(t, []string{"ticker"}, res.Synonyms)
	assert.Equal(t, "Upper case.", res.BusinessRules)
	assert.Equal(t, []string{"instrument_hash"}, res.RelatedColumns)
}

func TestResolver_NoCandidate(t *testing.T) {
	r := NewResolver(testIndexes(t), Options{}, nil)
	res := r.Resolve(&catalog.Table{Name: "markettrade"}, &catalog.Column{Name: "zzz"})

	assert.Empty(t, res.Description)
	assert.Equal(t, TierNone, res.DescriptionTier)
	require.NotNil(t, res.Warning)
	assert.Equal(t, "zzz", res.Warning.Column)
}

func TestResolver_ThresholdIsConfigurable(t *testing.T) {
	r := NewResolver(testIndexes(t), Options{MinInformativeLength: 5}, nil)
	res := r.Resolve(&catalog.Table{Name: "markettrade"}, &catalog.Column{Name: "bid_price_3"})

	assert.Equal(t, "Bid. Originates from Book.", res.Description)
	assert.Equal(t, TierLineage, res.DescriptionTier)
}
