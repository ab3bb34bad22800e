package enrich

import (
	"sort"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/patch"
)

// Counts tallies outcomes for one annotation kind.
type Counts struct {
	Added      int `json:"added"`
	Updated    int `json:"updated"`
	Preserved  int `json:"preserved"`
	Unresolved int `json:"unresolved"`
}

// Total is the number of columns the kind was considered for.
func (c Counts) Total() int {
	return c.Added + c.Updated + c.Preserved + c.Unresolved
}

// Stats maps an annotation field to its counts.
type Stats map[string]*Counts

func (s Stats) count(field string) *Counts {
	c, ok := s[field]
	if !ok {
		c = &Counts{}
		s[field] = c
	}
	return c
}

// Fields returns the recorded fields in canonical order.
func (s Stats) Fields() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := catalog.FieldRank(keys[i]), catalog.FieldRank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Sum adds other into s.
func (s Stats) Sum(other Stats) {
	for k, c := range other {
		t := s.count(k)
		t.Added += c.Added
		t.Updated += c.Updated
		t.Preserved += c.Preserved
		t.Unresolved += c.Unresolved
	}
}

// Changed is the number of added or updated values.
func (s Stats) Changed() int {
	n := 0
	for _, c := range s {
		n += c.Added + c.Updated
	}
	return n
}

// record folds the patcher's outcome into the stats.
func (s Stats) record(applied []patch.Applied) {
	for _, ap := range applied {
		c := s.count(ap.Field)
		switch ap.Action {
		case patch.ActionAdded:
			c.Added++
		case patch.ActionUpdated:
			c.Updated++
		case patch.ActionPreserved:
			c.Preserved++
		}
	}
}
