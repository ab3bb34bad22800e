// Package catalog defines the table and column model shared by every
// enrichment stage, plus decoding of per-table catalog documents.
package catalog

import (
	"sort"
	"strings"
)

// Layer is the warehouse layer a table belongs to.
type Layer string

// Known layers.
const (
	LayerSource    Layer = "source"
	LayerData      Layer = "data"
	LayerMart      Layer = "mart"
	LayerReference Layer = "reference"
)

// Valid reports whether the layer is one of the known layers.
func (l Layer) Valid() bool {
	switch l {
	case LayerSource, LayerData, LayerMart, LayerReference:
		return true
	}
	return false
}

// Category is the semantic role of a column.
type Category string

// Column categories.
const (
	CategoryTime       Category = "time"
	CategoryIdentifier Category = "identifier"
	CategoryDimension  Category = "dimension"
	CategoryMeasure    Category = "measure"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryTime, CategoryIdentifier, CategoryDimension, CategoryMeasure}

// Valid reports whether c is one of the four categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryTime, CategoryIdentifier, CategoryDimension, CategoryMeasure:
		return true
	}
	return false
}

// ParseCategory parses an authored category value, ignoring case and
// surrounding whitespace. The zero value is returned for unknown input.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", false
	}
	return c, true
}

// Aggregation is the default aggregation verb for a measure.
type Aggregation string

// Aggregation verbs.
const (
	AggregationSum Aggregation = "SUM"
	AggregationAvg Aggregation = "AVG"
)

// Annotation field keys, as they appear in catalog documents.
const (
	FieldName          = "name"
	FieldType          = "type"
	FieldDescription   = "description"
	FieldCategory      = "category"
	FieldAggregation   = "typical_aggregation"
	FieldFilterable    = "filterable"
	FieldFormula       = "formula"
	FieldRelated       = "related_columns"
	FieldSource        = "source"
	FieldSynonyms      = "synonyms"
	FieldBusinessRules = "business_rules"
)

// FieldOrder is the canonical order in which column fields are written.
var FieldOrder = []string{
	FieldName,
	FieldType,
	FieldDescription,
	FieldCategory,
	FieldAggregation,
	FieldFilterable,
	FieldFormula,
	FieldRelated,
	FieldSource,
	FieldSynonyms,
	FieldBusinessRules,
}

// FieldRank returns the position of key in FieldOrder. Unknown keys sort last.
func FieldRank(key string) int {
	for i, k := range FieldOrder {
		if k == key {
			return i
		}
	}
	return len(FieldOrder)
}

// MaxRelatedColumns caps the size of related_columns.
const MaxRelatedColumns = 5

// Column is one column entity of a table document.
type Column struct {
	Name               string
	Type               string
	Description        string
	Category           string
	TypicalAggregation string
	Filterable         *bool
	Formula            string
	RelatedColumns     []string
	Source             string
	Synonyms           []string
	BusinessRules      string

	// Line is the 1-based line of the column's name key in its document.
	Line int
}

// DataType returns the normalised declared type.
func (c *Column) DataType() DataType {
	return NormalizeType(c.Type)
}

// HasFormula reports whether the column carries a formula.
func (c *Column) HasFormula() bool {
	return strings.TrimSpace(c.Formula) != ""
}

// Value returns the column's value for a field key and whether it is present.
func (c *Column) Value(field string) (Value, bool) {
	var v Value
	switch field {
	case FieldName:
		v = Text(c.Name)
	case FieldType:
		v = Text(c.Type)
	case FieldDescription:
		v = Text(c.Description)
	case FieldCategory:
		v = Text(c.Category)
	case FieldAggregation:
		v = Text(c.TypicalAggregation)
	case FieldFilterable:
		if c.Filterable == nil {
			return Value{}, false
		}
		v = Bool(*c.Filterable)
	case FieldFormula:
		v = Text(c.Formula)
	case FieldRelated:
		v = List(c.RelatedColumns)
	case FieldSource:
		v = Text(c.Source)
	case FieldSynonyms:
		v = List(c.Synonyms)
	case FieldBusinessRules:
		v = Text(c.BusinessRules)
	default:
		return Value{}, false
	}
	return v, !v.IsEmpty()
}

// Has reports whether a field carries a non-placeholder value.
func (c *Column) Has(field string) bool {
	_, ok := c.Value(field)
	return ok
}

// Set stores v into the named field. Unknown fields are ignored.
func (c *Column) Set(field string, v Value) {
	switch field {
	case FieldDescription:
		c.Description = v.Text
	case FieldCategory:
		c.Category = v.Text
	case FieldAggregation:
		c.TypicalAggregation = v.Text
	case FieldFilterable:
		if b, ok := v.AsBool(); ok {
			c.Filterable = &b
		}
	case FieldFormula:
		c.Formula = v.Text
	case FieldRelated:
		c.RelatedColumns = append([]string(nil), v.Items...)
	case FieldSource:
		c.Source = v.Text
	case FieldSynonyms:
		c.Synonyms = append([]string(nil), v.Items...)
	case FieldBusinessRules:
		c.BusinessRules = v.Text
	}
}

// Table is a parsed catalog document.
type Table struct {
	Name         string
	Layer        Layer
	PartitionKey string
	TradeType    string
	Description  string
	Columns      []Column

	// Path is the file the table was read from, if any.
	Path string
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in document order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnSet returns the column names as a set.
func (t *Table) ColumnSet() map[string]bool {
	set := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		set[c.Name] = true
	}
	return set
}

// SortTables orders tables by name, the order every report uses.
func SortTables(tables []*Table) {
	sort.Slice(tables, func(i, j int) bool {
		return tables[i].Name < tables[j].Name
	})
}
