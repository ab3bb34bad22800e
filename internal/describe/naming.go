// Package describe resolves a human-readable description and a provenance
// string for each column through three tiers: a reference catalog copy,
// lineage through transformation records and field comments, and
// name-pattern heuristics.
package describe

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Casers carry state, so each call builds its own.
func titleCase(s string) string {
	return cases.Title(language.English, cases.NoLower).String(s)
}

func lowerCase(s string) string {
	return cases.Lower(language.English).String(s)
}

// SplitWords splits snake_case, kebab-case, camelCase and PascalCase names
// into lower-case words. Digit runs become their own words.
func SplitWords(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, lowerCase(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
			continue
		case unicode.IsUpper(r):
			// Split before an upper-case letter unless inside an acronym
			// that is not followed by a lower-case letter.
			if len(cur) > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if !unicode.IsUpper(prev) || nextLower {
					flush()
				}
			}
		case unicode.IsDigit(r):
			if len(cur) > 0 && !unicode.IsDigit(cur[len(cur)-1]) {
				flush()
			}
		default:
			if len(cur) > 0 && unicode.IsDigit(cur[len(cur)-1]) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// NameVariants returns the spellings tried when looking up a field by
// name: the literal name, lowerCamel, UpperCamel, snake_case and the
// concatenated lower-case form, without duplicates.
func NameVariants(name string) []string {
	words := SplitWords(name)
	if len(words) == 0 {
		return []string{name}
	}

	var upper strings.Builder
	for _, w := range words {
		upper.WriteString(titleCase(w))
	}
	lowerCamel := words[0]
	for _, w := range words[1:] {
		lowerCamel += titleCase(w)
	}

	candidates := []string{
		name,
		lowerCamel,
		upper.String(),
		strings.Join(words, "_"),
		strings.Join(words, ""),
	}

	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

var expansions = map[string]string{
	"pnl":   "PnL",
	"tv":    "theoretical value",
	"bps":   "basis points",
	"qty":   "quantity",
	"px":    "price",
	"ns":    "nanoseconds",
	"id":    "ID",
	"ids":   "IDs",
	"fx":    "FX",
	"eod":   "end of day",
	"mtm":   "mark-to-market",
	"vol":   "volatility",
	"pct":   "percent",
	"avg":   "average",
	"seq":   "sequence",
	"num":   "number",
	"msg":   "message",
	"ts":    "timestamp",
	"otc":   "OTC",
	"nbbo":  "NBBO",
	"vwap":  "VWAP",
	"twap":  "TWAP",
	"isin":  "ISIN",
	"cusip": "CUSIP",
	"sedol": "SEDOL",
	"ric":   "RIC",
	"mic":   "MIC",
	"utc":   "UTC",
}

// Humanize turns name words into a readable phrase, expanding common
// trading abbreviations.
func Humanize(words []string) string {
	parts := make([]string, len(words))
	for i, w := range words {
		if e, ok := expansions[w]; ok {
			parts[i] = e
		} else {
			parts[i] = w
		}
	}
	return strings.Join(parts, " ")
}

// Capitalize upper-cases the first letter of s and leaves the rest alone.
func Capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	first, rest, _ := strings.Cut(s, " ")
	first = titleCase(first)
	if rest == "" {
		return first
	}
	return first + " " + rest
}

// Sentence capitalises s and ensures terminal punctuation.
func Sentence(s string) string {
	s = Capitalize(s)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
