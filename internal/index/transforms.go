package index

import (
	"fmt"
	"sort"
	"strings"
)

// TransformKind classifies how a column was produced from its source.
type TransformKind string

// Transform kinds.
const (
	KindDirect     TransformKind = "direct"
	KindRename     TransformKind = "rename"
	KindDerived    TransformKind = "derived"
	KindEnrichment TransformKind = "enrichment"
)

// ParseTransformKind maps an authored kind onto a TransformKind.
// Unknown or empty kinds are treated as direct copies.
func ParseTransformKind(s string) TransformKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rename", "unnest", "renamed":
		return KindRename
	case "derived", "computed", "calculated":
		return KindDerived
	case "enrichment", "join", "enrichment-join", "lookup":
		return KindEnrichment
	}
	return KindDirect
}

// TransformRecord describes where one table column comes from.
type TransformRecord struct {
	Table  string
	Column string
	Source string
	Kind   TransformKind
	Notes  string
}

// SourceGroup is the first segment of the source path.
func (r TransformRecord) SourceGroup() string {
	if i := strings.Index(r.Source, "."); i >= 0 {
		return r.Source[:i]
	}
	return ""
}

// SourceField is the last segment of the source path.
func (r TransformRecord) SourceField() string {
	if i := strings.LastIndex(r.Source, "."); i >= 0 {
		return r.Source[i+1:]
	}
	return r.Source
}

type rawTransform struct {
	Column string `mapstructure:"column"`
	Source string `mapstructure:"source"`
	Kind   string `mapstructure:"kind"`
	Notes  string `mapstructure:"notes"`
}

// TransformIndex looks up transformation records by table and column.
type TransformIndex struct {
	byTable map[string]map[string]TransformRecord
}

// NewTransformIndex returns an empty index.
func NewTransformIndex() *TransformIndex {
	return &TransformIndex{byTable: make(map[string]map[string]TransformRecord)}
}

// ParseTransformIndex decodes a transformation-record index document.
func ParseTransformIndex(data []byte) (*TransformIndex, error) {
	sections, err := sectionNodes(data)
	if err != nil {
		return nil, err
	}

	tables, err := NormalizeSection(sections["tables"], "table", "name")
	if err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}

	idx := NewTransformIndex()
	for _, t := range tables {
		raw := t.Fields["items"]
		if raw == nil {
			raw = t.Fields["columns"]
		}
		if raw == nil {
			raw = t.Fields["records"]
		}
		var recs []rawTransform
		if err := decodeInto(raw, &recs); err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name, err)
		}
		for _, r := range recs {
			if r.Column == "" {
				continue
			}
			idx.Add(TransformRecord{
				Table:  t.Name,
				Column: r.Column,
				Source: strings.TrimSpace(r.Source),
				Kind:   ParseTransformKind(r.Kind),
				Notes:  r.Notes,
			})
		}
	}
	return idx, nil
}

// Add inserts or replaces a record.
func (idx *TransformIndex) Add(r TransformRecord) {
	cols, ok := idx.byTable[r.Table]
	if !ok {
		cols = make(map[string]TransformRecord)
		idx.byTable[r.Table] = cols
	}
	cols[r.Column] = r
}

// Lookup returns the record for a table column.
func (idx *TransformIndex) Lookup(table, column string) (TransformRecord, bool) {
	r, ok := idx.byTable[table][column]
	return r, ok
}

// Tables returns the indexed table names, sorted.
func (idx *TransformIndex) Tables() []string {
	names := make([]string, 0, len(idx.byTable))
	for name := range idx.byTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
