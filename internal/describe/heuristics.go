package describe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"
)

// knownColumns are fixed descriptions for common column names.
var knownColumns = map[string]string{
	"trade_date":          "Trading date the record belongs to, used as the partition key.",
	"event_date":          "Calendar date of the underlying event, used as the partition key.",
	"business_date":       "Business date the record is booked against.",
	"as_of_date":          "Date the snapshot values are valid as of.",
	"symbol":              "Ticker symbol of the traded instrument.",
	"side":                "Trade direction from our perspective, BUY or SELL.",
	"exchange":            "Exchange on which the order or trade occurred.",
	"venue":               "Execution venue that reported the event.",
	"currency":            "ISO 4217 currency code of the monetary amounts.",
	"tv":                  "Theoretical value of the instrument at the time of the event.",
	"size":                "Executed quantity in contracts or shares.",
	"quantity":            "Executed quantity in contracts or shares.",
	"trade_price":         "Price at which the trade executed.",
	"mid_price":           "Midpoint between the best bid and best ask prices.",
	"bid_price":           "Best bid price at the time of the event.",
	"ask_price":           "Best ask price at the time of the event.",
	"fees":                "Total exchange and clearing fees charged for the trade.",
	"notional":            "Notional value of the trade, price times quantity times multiplier.",
	"strategy":            "Trading strategy that generated the order.",
	"desk":                "Trading desk that owns the position.",
	"book":                "Risk book the trade is booked into.",
	"trader":              "Trader responsible for the order.",
	"underlying":          "Underlying instrument of the derivative.",
	"strike":              "Strike price of the option contract.",
	"expiry":              "Expiration date of the contract.",
	"delta":               "Option delta, sensitivity of the theoretical value to the underlying price.",
	"gamma":               "Option gamma, rate of change of delta with the underlying price.",
	"vega":                "Option vega, sensitivity of the theoretical value to implied volatility.",
	"theta":               "Option theta, time decay of the theoretical value per day.",
	"multiplier":          "Contract multiplier converting price points into currency.",
	"contract_multiplier": "Contract multiplier converting price points into currency.",
	"kafka_offset":        "Kafka offset of the source message, for replay and deduplication.",
	"kafka_partition":     "Kafka partition the source message was read from.",
	"sequence_number":     "Monotonic sequence number assigned by the upstream publisher.",
	"instrument_hash":     "Stable hash identifying the instrument across sources.",
}

var (
	// bid_price_1, ask_size_level_3, bid_1_price
	levelSuffixPattern = regexp.MustCompile(`^(bid|ask)_(price|size|qty|quantity|orders|count)_(?:level_?)?(\d+)$`)
	levelInfixPattern  = regexp.MustCompile(`^(bid|ask)_(?:level_?)?(\d+)_(price|size|qty|quantity|orders|count)$`)
	intervalPattern    = regexp.MustCompile(`^(.+)_(\d+(?:ms|us|ns|s|m|min|h|d)|eod|sod)$`)
)

// Heuristic describes a column from its name alone. The second result is
// false when no rule applies.
func Heuristic(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	if d, ok := knownColumns[n]; ok {
		return d, true
	}
	if d, ok := orderBookLevel(n); ok {
		return d, true
	}
	if m := intervalPattern.FindStringSubmatch(n); m != nil {
		base, ok := Heuristic(m[1])
		if !ok {
			base = Sentence(Humanize(SplitWords(m[1])))
		}
		return strings.TrimSuffix(base, ".") + fmt.Sprintf(", measured over the %s horizon.", Humanize([]string{m[2]})), true
	}
	return patternRule(n)
}

func orderBookLevel(n string) (string, bool) {
	var side, field, level string
	if m := levelSuffixPattern.FindStringSubmatch(n); m != nil {
		side, field, level = m[1], m[2], m[3]
	} else if m := levelInfixPattern.FindStringSubmatch(n); m != nil {
		side, level, field = m[1], m[2], m[3]
	} else {
		return "", false
	}

	noun := Humanize([]string{field})
	if field == "orders" || field == "count" {
		noun = "order count"
	}
	if level == "1" {
		return fmt.Sprintf("Best %s %s (order-book level 1).", side, noun), true
	}
	return fmt.Sprintf("%s %s at order-book level %s.", Capitalize(side), noun, level), true
}

// patternRule applies suffix and prefix rules, most specific first.
func patternRule(n string) (string, bool) {
	words := SplitWords(n)
	if len(words) == 0 {
		return "", false
	}
	head := func(k int) string { return Humanize(words[:len(words)-k]) }

	switch {
	case len(words) > 2 && strings.HasSuffix(n, "_timestamp_ns"):
		return Sentence(head(2) + " timestamp in nanoseconds since the Unix epoch"), true
	case len(words) > 1 && (strings.HasSuffix(n, "_ts_ns") || strings.HasSuffix(n, "_time_ns")):
		return Sentence(head(2) + " time in nanoseconds since the Unix epoch"), true
	case len(words) > 1 && (strings.HasSuffix(n, "_timestamp") || strings.HasSuffix(n, "_ts")):
		return Sentence("timestamp of the " + head(1) + " event"), true
	case len(words) > 1 && strings.HasSuffix(n, "_at"):
		return Sentence("time at which the record was " + head(1)), true
	case len(words) > 1 && strings.HasSuffix(n, "_time"):
		return Sentence("time of the " + head(1) + " event"), true
	case len(words) > 1 && strings.HasSuffix(n, "_date"):
		return Sentence("calendar date of the " + head(1)), true
	case len(words) > 1 && words[0] == "is":
		return Sentence("flag set when the record is " + Humanize(words[1:])), true
	case len(words) > 1 && words[0] == "has":
		return Sentence("flag set when the record has " + Humanize(words[1:])), true
	case len(words) > 1 && strings.HasSuffix(n, "_ids"):
		return Sentence("identifiers of the associated " + pluralPhrase(words[:len(words)-1])), true
	case len(words) > 1 && strings.HasSuffix(n, "_id"):
		return Sentence("identifier of the " + head(1)), true
	case len(words) > 1 && strings.HasSuffix(n, "_hash"):
		return Sentence("hash key identifying the " + head(1)), true
	case len(words) > 1 && strings.HasSuffix(n, "_count"):
		return Sentence("number of " + pluralPhrase(words[:len(words)-1])), true
	case len(words) > 1 && strings.HasSuffix(n, "_pnl"):
		return Sentence(head(1) + " profit and loss"), true
	case len(words) > 1 && strings.HasSuffix(n, "_bps"):
		return Sentence(head(1) + " expressed in basis points"), true
	case len(words) > 1 && (strings.HasSuffix(n, "_pct") || strings.HasSuffix(n, "_percent")):
		return Sentence(head(1) + " expressed as a percentage"), true
	case len(words) > 1 && strings.HasSuffix(n, "_ns"):
		return Sentence(head(1) + " in nanoseconds"), true
	}
	return "", false
}

// pluralPhrase pluralises the last word of a humanised phrase.
func pluralPhrase(words []string) string {
	if len(words) == 0 {
		return ""
	}
	phrase := Humanize(words[:len(words)-1])
	last := inflection.Plural(Humanize(words[len(words)-1:]))
	if phrase == "" {
		return last
	}
	return phrase + " " + last
}
