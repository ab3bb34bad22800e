package catalog

import (
	"strconv"
	"strings"
)

// Value is an annotation value: either a text scalar or a list of items.
type Value struct {
	Text  string
	Items []string
	List  bool
}

// Text returns a scalar value.
func Text(s string) Value {
	return Value{Text: s}
}

// List returns a list value.
func List(items []string) Value {
	return Value{Items: items, List: true}
}

// Bool returns a scalar value holding a YAML boolean.
func Bool(b bool) Value {
	return Value{Text: strconv.FormatBool(b)}
}

// IsEmpty reports whether the value is absent or a placeholder.
func (v Value) IsEmpty() bool {
	if v.List {
		return len(v.Items) == 0
	}
	return IsPlaceholder(v.Text)
}

// AsBool interprets a scalar value as a boolean.
func (v Value) AsBool() (bool, bool) {
	if v.List {
		return false, false
	}
	b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v.Text)))
	if err != nil {
		return false, false
	}
	return b, true
}

// Normalized returns the whitespace-insensitive form used for comparisons.
func (v Value) Normalized() string {
	if v.List {
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = NormalizeText(it)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return NormalizeText(v.Text)
}

// Equal compares two values in normalised form.
func (v Value) Equal(other Value) bool {
	return v.Normalized() == other.Normalized()
}

// String renders the value for logs and previews.
func (v Value) String() string {
	if v.List {
		return "[" + strings.Join(v.Items, ", ") + "]"
	}
	return v.Text
}

// NormalizeText collapses runs of whitespace to a single space and trims.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var placeholders = map[string]bool{
	"":     true,
	"~":    true,
	"null": true,
	"todo": true,
	"tbd":  true,
	"[]":   true,
	"{}":   true,
	`""`:   true,
	`''`:   true,
}

// IsPlaceholder reports whether raw text stands for "no value yet".
// Surrounding quotes are ignored, so `""` and `"TODO"` both count.
func IsPlaceholder(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	if placeholders[s] {
		return true
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return placeholders[strings.TrimSpace(s[1:len(s)-1])]
	}
	return false
}
