// Package coverage measures how completely each table's columns are
// annotated and gates the result against per-field thresholds.
package coverage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/classify"
)

// Field is a tracked annotation field.
type Field string

// Tracked fields, in report order.
const (
	FieldCategory    Field = catalog.FieldCategory
	FieldSource      Field = catalog.FieldSource
	FieldDescription Field = catalog.FieldDescription
	FieldFormula     Field = catalog.FieldFormula
	FieldAggregation Field = catalog.FieldAggregation
	FieldFilterable  Field = catalog.FieldFilterable
)

// Fields lists tracked fields in report order.
var Fields = []Field{
	FieldCategory,
	FieldSource,
	FieldDescription,
	FieldFormula,
	FieldAggregation,
	FieldFilterable,
}

// ParseField accepts a field name. "aggregation" is accepted for
// typical_aggregation.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "aggregation" {
		return FieldAggregation, nil
	}
	for _, f := range Fields {
		if string(f) == s {
			return f, nil
		}
	}
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = string(f)
	}
	return "", fmt.Errorf("unknown coverage field %q (valid: %s)", s, strings.Join(names, ", "))
}

// Thresholds maps a gated field to its minimum percentage. Fields without
// an entry are reported but never fail a table.
type Thresholds map[Field]float64

// DefaultThresholds returns the default gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FieldCategory:    95,
		FieldSource:      90,
		FieldFormula:     85,
		FieldDescription: 100,
	}
}

// Clone returns an independent copy.
func (t Thresholds) Clone() Thresholds {
	out := make(Thresholds, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// ParseThreshold parses an override of the form field=pct.
func ParseThreshold(s string) (Field, float64, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", 0, fmt.Errorf("invalid threshold %q: expected field=percent", s)
	}
	field, err := ParseField(name)
	if err != nil {
		return "", 0, err
	}
	pct, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), "%"), 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid threshold %q: %w", s, err)
	}
	if pct < 0 || pct > 100 {
		return "", 0, fmt.Errorf("invalid threshold %q: percent must be between 0 and 100", s)
	}
	return field, pct, nil
}

// FieldCoverage is the coverage of one field within one table.
type FieldCoverage struct {
	Field      Field    `json:"field"`
	Present    int      `json:"present"`
	Applicable int      `json:"applicable"`
	Percent    float64  `json:"percent"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Pass       bool     `json:"pass"`
	Missing    []string `json:"missing,omitempty"`
}

// NotApplicable reports whether the field's subset is empty.
func (f FieldCoverage) NotApplicable() bool {
	return f.Applicable == 0
}

// Gated reports whether the field can fail its table.
func (f FieldCoverage) Gated() bool {
	return f.Threshold != nil && !f.NotApplicable()
}

// PercentString formats the percentage, or "n/a" for an empty subset.
func (f FieldCoverage) PercentString() string {
	if f.NotApplicable() {
		return "n/a"
	}
	return strconv.FormatFloat(f.Percent, 'f', 1, 64) + "%"
}

// Gap is one column missing a tracked field.
type Gap struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Field  Field  `json:"field"`
}

// TableReport is the coverage of one table.
type TableReport struct {
	Table   string          `json:"table"`
	Path    string          `json:"path,omitempty"`
	Layer   string          `json:"layer,omitempty"`
	Columns int             `json:"columns"`
	Fields  []FieldCoverage `json:"fields"`
	Pass    bool            `json:"pass"`
}

// Field returns the coverage for f.
func (t *TableReport) Field(f Field) (FieldCoverage, bool) {
	for _, fc := range t.Fields {
		if fc.Field == f {
			return fc, true
		}
	}
	return FieldCoverage{}, false
}

// Gaps itemises missing values for gated fields that failed.
func (t *TableReport) Gaps() []Gap {
	var gaps []Gap
	for _, fc := range t.Fields {
		if fc.Pass {
			continue
		}
		for _, col := range fc.Missing {
			gaps = append(gaps, Gap{Table: t.Table, Column: col, Field: fc.Field})
		}
	}
	return gaps
}

// Summary aggregates a report.
type Summary struct {
	Tables int             `json:"tables"`
	Passed int             `json:"passed"`
	Failed int             `json:"failed"`
	Fields []FieldCoverage `json:"fields"`
}

// Report covers a set of tables.
type Report struct {
	Tables  []TableReport `json:"tables"`
	Summary Summary       `json:"summary"`
}

// Pass reports whether every table passed.
func (r *Report) Pass() bool {
	return r.Summary.Failed == 0
}

// Failed returns the names of failing tables.
func (r *Report) Failed() []string {
	var names []string
	for _, t := range r.Tables {
		if !t.Pass {
			names = append(names, t.Table)
		}
	}
	return names
}

// Gaps returns every gap across tables.
func (r *Report) Gaps() []Gap {
	var gaps []Gap
	for i := range r.Tables {
		gaps = append(gaps, r.Tables[i].Gaps()...)
	}
	return gaps
}

// IsMeasure reports whether a column counts as a measure: its authored
// category when valid, the computed one otherwise.
func IsMeasure(col *catalog.Column) bool {
	if c, ok := catalog.ParseCategory(col.Category); ok {
		return c == catalog.CategoryMeasure
	}
	return classify.ClassifyColumn(col) == catalog.CategoryMeasure
}

func applies(f Field, measure bool) bool {
	switch f {
	case FieldFormula, FieldAggregation:
		return measure
	case FieldFilterable:
		return !measure
	}
	return true
}

// Evaluate computes coverage for one table.
func Evaluate(table *catalog.Table, thresholds Thresholds) TableReport {
	rep := TableReport{
		Table:   table.Name,
		Path:    table.Path,
		Layer:   string(table.Layer),
		Columns: len(table.Columns),
		Pass:    true,
	}

	measures := make([]bool, len(table.Columns))
	for i := range table.Columns {
		measures[i] = IsMeasure(&table.Columns[i])
	}

	for _, f := range Fields {
		fc := FieldCoverage{Field: f}
		for i := range table.Columns {
			col := &table.Columns[i]
			if !applies(f, measures[i]) {
				continue
			}
			fc.Applicable++
			if col.Has(string(f)) {
				fc.Present++
			} else {
				fc.Missing = append(fc.Missing, col.Name)
			}
		}
		if fc.Applicable > 0 {
			fc.Percent = 100 * float64(fc.Present) / float64(fc.Applicable)
		}
		if th, ok := thresholds[f]; ok {
			fc.Threshold = &th
		}
		fc.Pass = !fc.Gated() || fc.Percent >= *fc.Threshold
		if !fc.Pass {
			rep.Pass = false
		}
		rep.Fields = append(rep.Fields, fc)
	}
	return rep
}

// Build evaluates every table, in name order, and summarises the result.
func Build(tables []*catalog.Table, thresholds Thresholds) *Report {
	sorted := append([]*catalog.Table(nil), tables...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	rep := &Report{}
	totals := make(map[Field]*FieldCoverage, len(Fields))
	for _, f := range Fields {
		fc := &FieldCoverage{Field: f}
		if th, ok := thresholds[f]; ok {
			fc.Threshold = &th
		}
		totals[f] = fc
	}

	for _, t := range sorted {
		tr := Evaluate(t, thresholds)
		rep.Tables = append(rep.Tables, tr)
		rep.Summary.Tables++
		if tr.Pass {
			rep.Summary.Passed++
		} else {
			rep.Summary.Failed++
		}
		for _, fc := range tr.Fields {
			total := totals[fc.Field]
			total.Present += fc.Present
			total.Applicable += fc.Applicable
		}
	}

	for _, f := range Fields {
		total := totals[f]
		if total.Applicable > 0 {
			total.Percent = 100 * float64(total.Present) / float64(total.Applicable)
		}
		total.Pass = !total.Gated() || total.Percent >= *total.Threshold
		rep.Summary.Fields = append(rep.Summary.Fields, *total)
	}
	return rep
}
