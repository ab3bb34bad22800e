package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseDocument decodes a table document. Placeholder values decode as
// empty, and column order follows the document. Keys the model does not know
// are ignored here; they survive patching because the patcher edits text.
func ParseDocument(data []byte, file string) (*Table, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &DocumentParseError{File: file, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if len(root.Content) == 0 {
		return nil, &DocumentParseError{File: file, Message: "empty document"}
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, &DocumentParseError{File: file, Line: doc.Line, Message: "document root must be a mapping"}
	}

	t := &Table{Path: file}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, val := doc.Content[i], doc.Content[i+1]
		switch key.Value {
		case "name":
			t.Name = scalar(val)
		case "layer":
			t.Layer = Layer(strings.ToLower(scalar(val)))
		case "partition_key":
			t.PartitionKey = scalar(val)
		case "trade_type":
			t.TradeType = scalar(val)
		case "description":
			t.Description = scalar(val)
		case "columns":
			cols, err := decodeColumns(val, file)
			if err != nil {
				return nil, err
			}
			t.Columns = cols
		}
	}

	if t.Name == "" && file != "" {
		t.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	if t.Name == "" {
		return nil, &DocumentParseError{File: file, Line: doc.Line, Message: "table name is required"}
	}
	return t, nil
}

func decodeColumns(node *yaml.Node, file string) ([]Column, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, &DocumentParseError{File: file, Line: node.Line, Message: "columns must be a list"}
	}

	cols := make([]Column, 0, len(node.Content))
	seen := make(map[string]int, len(node.Content))
	for _, item := range node.Content {
		col, err := decodeColumn(item, file)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[col.Name]; dup {
			return nil, &DocumentParseError{
				File:    file,
				Line:    col.Line,
				Message: fmt.Sprintf("duplicate column %q (first defined on line %d)", col.Name, prev),
			}
		}
		seen[col.Name] = col.Line
		cols = append(cols, col)
	}
	return cols, nil
}

func decodeColumn(node *yaml.Node, file string) (Column, error) {
	if node.Kind != yaml.MappingNode {
		return Column{}, &DocumentParseError{File: file, Line: node.Line, Message: "column entry must be a mapping"}
	}

	col := Column{Line: node.Line}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case FieldName:
			col.Name = scalar(val)
			col.Line = key.Line
		case FieldType:
			col.Type = scalar(val)
		case FieldDescription:
			col.Description = scalar(val)
		case FieldCategory:
			col.Category = scalar(val)
		case FieldAggregation:
			col.TypicalAggregation = scalar(val)
		case FieldFilterable:
			s := scalar(val)
			if s == "" {
				continue
			}
			b, ok := Text(s).AsBool()
			if !ok {
				return Column{}, &DocumentParseError{
					File:    file,
					Line:    val.Line,
					Message: fmt.Sprintf("filterable must be true or false, got %q", s),
				}
			}
			col.Filterable = &b
		case FieldFormula:
			col.Formula = scalar(val)
		case FieldRelated:
			col.RelatedColumns = sequence(val)
		case FieldSource:
			col.Source = scalar(val)
		case FieldSynonyms:
			col.Synonyms = sequence(val)
		case FieldBusinessRules:
			col.BusinessRules = scalar(val)
		}
	}

	if col.Name == "" {
		return Column{}, &DocumentParseError{File: file, Line: node.Line, Message: "column is missing a name"}
	}
	return col, nil
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

func scalar(node *yaml.Node) string {
	if isNull(node) || node.Kind != yaml.ScalarNode {
		return ""
	}
	if IsPlaceholder(node.Value) {
		return ""
	}
	return node.Value
}

// sequence decodes a list of scalars. A lone scalar is read as a one-item list.
func sequence(node *yaml.Node) []string {
	if isNull(node) {
		return nil
	}
	if node.Kind == yaml.ScalarNode {
		if s := scalar(node); s != "" {
			return []string{s}
		}
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil
	}
	var items []string
	for _, it := range node.Content {
		if s := scalar(it); s != "" {
			items = append(items, s)
		}
	}
	return items
}

// LoadDocument reads and parses a table document from disk.
func LoadDocument(path string) (*Table, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, &MissingInputError{Kind: "document", Path: path, Err: err}
		}
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	t, err := ParseDocument(data, path)
	if err != nil {
		return nil, nil, err
	}
	return t, data, nil
}

// DiscoverDocuments returns every YAML document under dir in lexical order.
func DiscoverDocuments(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingInputError{Kind: "catalog directory", Path: dir, Err: err}
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}
