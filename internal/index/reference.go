package index

import (
	"fmt"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
)

// ReferenceCatalog is a richer, parallel set of table documents keyed by
// table name. It is the first resolution tier.
type ReferenceCatalog struct {
	tables map[string]*catalog.Table
}

// NewReferenceCatalog returns an empty catalog.
func NewReferenceCatalog() *ReferenceCatalog {
	return &ReferenceCatalog{tables: make(map[string]*catalog.Table)}
}

// Add registers a reference table, replacing any previous one of that name.
func (r *ReferenceCatalog) Add(t *catalog.Table) {
	r.tables[t.Name] = t
}

// Column returns the reference entry for a table column.
func (r *ReferenceCatalog) Column(table, column string) (*catalog.Column, bool) {
	t, ok := r.tables[table]
	if !ok {
		return nil, false
	}
	return t.Column(column)
}

// Len returns the number of reference tables.
func (r *ReferenceCatalog) Len() int {
	return len(r.tables)
}

// LoadReferenceCatalog parses every document under dir.
func LoadReferenceCatalog(dir string) (*ReferenceCatalog, error) {
	paths, err := catalog.DiscoverDocuments(dir)
	if err != nil {
		return nil, err
	}
	ref := NewReferenceCatalog()
	for _, p := range paths {
		t, _, err := catalog.LoadDocument(p)
		if err != nil {
			return nil, fmt.Errorf("reference catalog: %w", err)
		}
		ref.Add(t)
	}
	return ref, nil
}
