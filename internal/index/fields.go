package index

import (
	"fmt"
	"strings"
)

// FieldDefinition is one field of an upstream message group.
type FieldDefinition struct {
	Group   string `mapstructure:"-"`
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"`
	Number  int    `mapstructure:"number"`
	Comment string `mapstructure:"comment"`
	Enum    bool   `mapstructure:"-"`
}

// FieldIndex looks up field definitions by group and name.
type FieldIndex struct {
	groups  []string
	byGroup map[string]map[string]FieldDefinition
	enums   map[string]bool
}

// NewFieldIndex returns an empty index.
func NewFieldIndex() *FieldIndex {
	return &FieldIndex{
		byGroup: make(map[string]map[string]FieldDefinition),
		enums:   make(map[string]bool),
	}
}

// ParseFieldIndex decodes a field-definition index document.
func ParseFieldIndex(data []byte) (*FieldIndex, error) {
	sections, err := sectionNodes(data)
	if err != nil {
		return nil, err
	}

	idx := NewFieldIndex()

	if node, ok := sections["enums"]; ok {
		var enums []string
		if err := node.Decode(&enums); err != nil {
			return nil, fmt.Errorf("enums: %w", err)
		}
		for _, e := range enums {
			idx.enums[strings.ToLower(e)] = true
		}
	}

	groups, err := NormalizeSection(sections["groups"])
	if err != nil {
		return nil, fmt.Errorf("groups: %w", err)
	}

	for _, g := range groups {
		raw := g.Fields["fields"]
		if raw == nil {
			raw = g.Fields["items"]
		}
		var defs []FieldDefinition
		if err := decodeInto(raw, &defs); err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Name, err)
		}
		for _, d := range defs {
			d.Group = g.Name
			d.Enum = idx.enums[strings.ToLower(d.Type)]
			idx.add(d)
		}
	}
	return idx, nil
}

func (idx *FieldIndex) add(d FieldDefinition) {
	fields, ok := idx.byGroup[d.Group]
	if !ok {
		fields = make(map[string]FieldDefinition)
		idx.byGroup[d.Group] = fields
		idx.groups = append(idx.groups, d.Group)
	}
	fields[d.Name] = d
}

// Lookup finds a field by exact group and name. An empty group searches
// every group in declaration order.
func (idx *FieldIndex) Lookup(group, name string) (FieldDefinition, bool) {
	if group != "" {
		d, ok := idx.byGroup[group][name]
		return d, ok
	}
	for _, g := range idx.groups {
		if d, ok := idx.byGroup[g][name]; ok {
			return d, true
		}
	}
	return FieldDefinition{}, false
}

// Groups returns the group names in declaration order.
func (idx *FieldIndex) Groups() []string {
	return idx.groups
}

// Len returns the number of field definitions.
func (idx *FieldIndex) Len() int {
	n := 0
	for _, fields := range idx.byGroup {
		n += len(fields)
	}
	return n
}
