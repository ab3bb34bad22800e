package formula

import "strings"

// reserved holds SQL keywords, functions and type names that never name a
// column. Lookups are lower-case.
var reserved = func() map[string]bool {
	words := []string{
		// keywords
		"select", "from", "where", "and", "or", "not", "in", "is", "null",
		"true", "false", "case", "when", "then", "else", "end", "as", "on",
		"between", "like", "ilike", "distinct", "over", "partition", "by",
		"order", "asc", "desc", "rows", "range", "preceding", "following",
		"unbounded", "current", "row", "filter", "within", "group", "having",
		"interval", "if", "ifnull", "nullif", "exists", "all", "any", "some",
		"escape", "using", "join", "left", "right", "inner", "outer", "cross",
		"with", "limit", "offset", "union", "except", "intersect", "qualify",
		"respect", "ignore", "nulls", "first", "last", "day", "hour", "minute",
		"second", "millisecond", "microsecond", "nanosecond", "week", "month",
		"quarter", "year", "epoch",
		// functions
		"sum", "avg", "min", "max", "count", "abs", "sign", "sqrt", "pow",
		"power", "exp", "ln", "log", "log10", "round", "floor", "ceil",
		"ceiling", "trunc", "mod", "greatest", "least", "coalesce", "cast",
		"safe_cast", "safe_divide", "div", "lag", "lead", "first_value",
		"last_value", "nth_value", "row_number", "rank", "dense_rank",
		"ntile", "percentile_cont", "percentile_disc", "median", "stddev",
		"stddev_pop", "stddev_samp", "variance", "var_pop", "var_samp",
		"corr", "covar_pop", "covar_samp", "any_value", "array_agg",
		"string_agg", "concat", "lower", "upper", "substr", "substring",
		"length", "trim", "replace", "split", "extract", "date_trunc",
		"date_diff", "date_add", "date_sub", "timestamp_diff",
		"timestamp_add", "timestamp_sub", "timestamp_trunc", "unix_nanos",
		"unix_micros", "unix_millis", "unix_seconds", "timestamp_nanos",
		"timestamp_micros", "timestamp_millis", "timestamp_seconds",
		"date", "time", "datetime", "timestamp", "now", "current_date",
		"current_timestamp", "iff", "nvl", "decode", "exp2",
		// types
		"int", "int64", "integer", "bigint", "float", "float64", "double",
		"numeric", "decimal", "bignumeric", "bool", "boolean", "string",
		"varchar", "text", "bytes",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

// IsReserved reports whether word is a reserved keyword or function name.
func IsReserved(word string) bool {
	return reserved[strings.ToLower(word)]
}
