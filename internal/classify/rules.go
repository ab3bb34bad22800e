// Package classify assigns a category to each column from its name and
// declared type, and derives the default aggregation and filterability that
// follow from that category.
package classify

import "strings"

// partitionNames are partition and event-date columns. They classify as time
// regardless of type and are the only filterable time columns.
var partitionNames = setOf(
	"trade_date",
	"event_date",
	"business_date",
	"partition_date",
	"as_of_date",
	"snapshot_date",
	"value_date",
	"date",
)

var timeSuffixes = []string{
	"_timestamp_ns",
	"_timestamp",
	"_datetime",
	"_date",
	"_time",
	"_ts",
	"_at",
}

var identifierSuffixes = []string{
	"_id",
	"_ids",
	"_hash",
	"_key",
	"_uuid",
	"_guid",
	"_ref",
}

// infraCounters are transport and storage bookkeeping columns.
var infraCounters = setOf(
	"sequence_number",
	"seq_num",
	"msg_seq_num",
	"kafka_offset",
	"kafka_partition",
	"record_offset",
	"update_id",
	"ingestion_batch",
	"row_version",
)

var categoricalNames = setOf(
	"side",
	"symbol",
	"exchange",
	"venue",
	"currency",
	"trade_type",
	"instrument_type",
	"option_type",
	"underlying",
	"desk",
	"book",
	"strategy",
	"portfolio",
	"trader",
	"counterparty",
	"status",
	"region",
	"country",
	"asset_class",
	"product",
	"tenor",
	"interval",
	"source_system",
)

var categoricalSuffixes = []string{
	"_type",
	"_status",
	"_side",
	"_code",
	"_name",
	"_flag",
	"_category",
	"_class",
	"_mode",
	"_reason",
	"_kind",
	"_currency",
	"_venue",
	"_exchange",
	"_symbol",
	"_state",
}

// Per-unit measures are averages even when the base quantity is additive.
var (
	perUnitInfixes   = []string{"_per_", "per_unit"}
	perUnitPrefixes  = []string{"avg_", "mean_", "per_"}
	perUnitSuffixes  = []string{"_bps", "_pct", "_percent", "_ratio", "_rate", "_price", "_avg", "_mean"}
	averageOverrides = setOf(
		"delta",
		"gamma",
		"vega",
		"theta",
		"rho",
		"beta",
		"multiplier",
		"contract_multiplier",
		"fx_rate",
		"implied_vol",
		"weight",
		"edge_ratio",
	)
)

// additiveTokens mark quantities that sum across rows.
var additiveTokens = setOf(
	"pnl",
	"edge",
	"slippage",
	"fee",
	"fees",
	"commission",
	"size",
	"volume",
	"quantity",
	"qty",
	"notional",
)

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
