// Package index loads the read-only structural indexes that feed
// enrichment: field definitions, transformation records, computed-metric
// definitions and the reference catalog.
package index

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Record is the canonical shape of one entry in a keyed index section.
// Sections may be written as a mapping keyed by name or as an ordered list
// of entries carrying their own name; both decode to []Record in document
// order.
type Record struct {
	Name   string
	Fields map[string]any
	Line   int
	Node   *yaml.Node
}

// NormalizeSection converts a mapping or list section into records.
// nameKeys are tried in order to find an entry's name in list form.
//
// A mapping entry whose value is a list is stored under "items", and a
// scalar value under "value", so callers always decode from a map.
func NormalizeSection(node *yaml.Node, nameKeys ...string) ([]Record, error) {
	if node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null") {
		return nil, nil
	}
	if len(nameKeys) == 0 {
		nameKeys = []string{"name"}
	}

	switch node.Kind {
	case yaml.MappingNode:
		records := make([]Record, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			fields, err := nodeFields(val)
			if err != nil {
				return nil, fmt.Errorf("line %d: entry %q: %w", key.Line, key.Value, err)
			}
			records = append(records, Record{Name: key.Value, Fields: fields, Line: key.Line, Node: val})
		}
		return records, nil

	case yaml.SequenceNode:
		records := make([]Record, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("line %d: list entry must be a mapping", item.Line)
			}
			var fields map[string]any
			if err := item.Decode(&fields); err != nil {
				return nil, fmt.Errorf("line %d: %w", item.Line, err)
			}
			name := ""
			for _, k := range nameKeys {
				if s, ok := fields[k].(string); ok && s != "" {
					name = s
					break
				}
			}
			if name == "" {
				return nil, fmt.Errorf("line %d: list entry has no %s", item.Line, nameKeys[0])
			}
			records = append(records, Record{Name: name, Fields: fields, Line: item.Line, Node: item})
		}
		return records, nil
	}

	return nil, fmt.Errorf("line %d: section must be a mapping or a list", node.Line)
}

func nodeFields(val *yaml.Node) (map[string]any, error) {
	switch val.Kind {
	case yaml.MappingNode:
		var fields map[string]any
		if err := val.Decode(&fields); err != nil {
			return nil, err
		}
		if fields == nil {
			fields = map[string]any{}
		}
		return fields, nil
	case yaml.SequenceNode:
		var items []any
		if err := val.Decode(&items); err != nil {
			return nil, err
		}
		return map[string]any{"items": items}, nil
	default:
		var v any
		if err := val.Decode(&v); err != nil {
			return nil, err
		}
		return map[string]any{"value": v}, nil
	}
}

// child returns the value node under key in a mapping node.
func child(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// decodeInto decodes a loosely typed value into out using mapstructure
// tags. Scalar types are coerced, so per_interval: "yes" is accepted.
func decodeInto(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// sectionNodes returns the top-level keys of a YAML document as nodes.
func sectionNodes(data []byte) (map[string]*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	sections := make(map[string]*yaml.Node)
	if len(root.Content) == 0 {
		return sections, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: index root must be a mapping", doc.Line)
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		sections[doc.Content[i].Value] = doc.Content[i+1]
	}
	return sections, nil
}
