package formula

import (
	"sort"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/index"
)

// IntervalPlaceholder marks where an interval name is substituted.
const IntervalPlaceholder = "{interval}"

// Entry is one resolved formula in a table's index.
type Entry struct {
	Column   string
	Formula  string
	Interval string // empty for non-templated definitions
	Origin   string // definition name or shared-formula key
	Shared   string // shared-formula key, if resolved through one
	Implicit bool   // added by the unreferenced shared-formula pass
}

// Index maps column names to resolved formulas for one trade type and table.
type Index struct {
	TradeType string
	Table     string

	entries map[string]Entry
	// Skipped lists definitions that had no resolvable formula.
	Skipped []string
}

func newIndex(tradeType, table string) *Index {
	return &Index{TradeType: tradeType, Table: table, entries: make(map[string]Entry)}
}

// Lookup returns the entry for a column.
func (ix *Index) Lookup(column string) (Entry, bool) {
	e, ok := ix.entries[column]
	return e, ok
}

// Formula returns the formula for a column, or "".
func (ix *Index) Formula(column string) string {
	return ix.entries[column].Formula
}

// Columns returns the indexed column names, sorted.
func (ix *Index) Columns() []string {
	cols := make([]string, 0, len(ix.entries))
	for c := range ix.entries {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// add keeps the first entry for a column.
func (ix *Index) add(e Entry) bool {
	if _, exists := ix.entries[e.Column]; exists {
		return false
	}
	ix.entries[e.Column] = e
	return true
}

// BuildIndex expands the metric definitions scoped to tradeType and table
// into a flat column-to-formula map. A nil intervals slice uses the spec's
// own interval catalog. Indexes are never merged across trade types.
func BuildIndex(spec *index.MetricSpec, tradeType, table string, intervals []string) *Index {
	ix := newIndex(tradeType, table)
	if spec == nil {
		return ix
	}
	if intervals == nil {
		intervals = spec.Intervals
	}

	// A shared formula any table of the trade type points at is owned by
	// that definition and never added implicitly.
	referenced := make(map[string]bool)

	if tt, ok := spec.TradeType(tradeType); ok {
		for _, def := range tt.Definitions {
			if def.Shared != "" {
				referenced[def.Shared] = true
			}
		}
		for _, def := range tt.DefinitionsFor(table) {
			text, shared, ok := resolveDefinition(spec, def, tradeType)
			if !ok {
				ix.Skipped = append(ix.Skipped, def.Name)
				continue
			}
			added := expand(def.Name, text, def.PerInterval, intervals, func(name, f, interval string) {
				ix.add(Entry{
					Column:   name,
					Formula:  f,
					Interval: interval,
					Origin:   def.Name,
					Shared:   shared,
				})
			})
			if !added {
				ix.Skipped = append(ix.Skipped, def.Name)
			}
		}
	}

	// Shared formulas with a variant for this trade type that no definition
	// points at still describe columns of its tables. Explicit entries win.
	for _, sf := range spec.SharedInOrder() {
		if referenced[sf.Key] || !sf.HasVariant(tradeType) {
			continue
		}
		text := sf.Variants[tradeType]
		expand(sf.ColumnName(), text, sf.PerInterval, intervals, func(name, f, interval string) {
			ix.add(Entry{
				Column:   name,
				Formula:  f,
				Interval: interval,
				Origin:   sf.Key,
				Shared:   sf.Key,
				Implicit: true,
			})
		})
	}

	return ix
}

// resolveDefinition picks a definition's formula text: the shared variant
// for the trade type (or its standard variant), then the definition's own
// formula, then its standard field.
func resolveDefinition(spec *index.MetricSpec, def index.MetricDefinition, tradeType string) (text, shared string, ok bool) {
	if def.Shared != "" {
		if sf, found := spec.Shared[def.Shared]; found {
			if f, found := sf.Variant(tradeType); found {
				return f, sf.Key, true
			}
		}
	}
	if strings.TrimSpace(def.Formula) != "" {
		return def.Formula, "", true
	}
	if strings.TrimSpace(def.Standard) != "" {
		return def.Standard, "", true
	}
	return "", "", false
}

// expand emits one entry per interval for templated definitions and a single
// entry otherwise. It reports whether anything was emitted.
func expand(name, text string, perInterval bool, intervals []string, emit func(name, formula, interval string)) bool {
	templated := perInterval ||
		strings.Contains(name, IntervalPlaceholder) ||
		strings.Contains(text, IntervalPlaceholder)

	if !templated {
		emit(name, strings.TrimSpace(text), "")
		return true
	}

	for _, iv := range intervals {
		emit(ExpandName(name, iv, perInterval), strings.TrimSpace(Substitute(text, iv)), iv)
	}
	return len(intervals) > 0
}

// ExpandName substitutes an interval into a column name template. Names
// flagged per-interval without a placeholder get the interval appended.
func ExpandName(name, interval string, perInterval bool) string {
	if strings.Contains(name, IntervalPlaceholder) {
		return Substitute(name, interval)
	}
	if perInterval {
		return name + "_" + interval
	}
	return name
}

// Substitute replaces every interval placeholder in s.
func Substitute(s, interval string) string {
	return strings.ReplaceAll(s, IntervalPlaceholder, interval)
}
