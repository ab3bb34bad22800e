package index

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// StandardVariant is the variant key used when no trade-type-specific
// formula exists.
const StandardVariant = "standard"

// MetricKind separates published metrics from the intermediates they use.
type MetricKind string

// Metric kinds.
const (
	MetricKindMetric       MetricKind = "metric"
	MetricKindIntermediate MetricKind = "intermediate"
)

// MetricDefinition is one computed column definition for a trade type.
type MetricDefinition struct {
	Name        string     `mapstructure:"name"`
	Table       string     `mapstructure:"table"`
	Formula     string     `mapstructure:"formula"`
	Shared      string     `mapstructure:"shared"`
	Standard    string     `mapstructure:"standard"`
	PerInterval bool       `mapstructure:"per_interval"`
	Kind        MetricKind `mapstructure:"-"`
}

// SharedFormula is a formula defined once and referenced by name, with an
// optional variant per trade type.
type SharedFormula struct {
	Key         string
	Name        string
	PerInterval bool
	Variants    map[string]string
}

// Variant returns the formula for a trade type, falling back to the
// standard variant.
func (s SharedFormula) Variant(tradeType string) (string, bool) {
	if f, ok := s.Variants[tradeType]; ok && strings.TrimSpace(f) != "" {
		return f, true
	}
	if f, ok := s.Variants[StandardVariant]; ok && strings.TrimSpace(f) != "" {
		return f, true
	}
	return "", false
}

// HasVariant reports whether a trade-type-specific variant exists.
func (s SharedFormula) HasVariant(tradeType string) bool {
	f, ok := s.Variants[tradeType]
	return ok && strings.TrimSpace(f) != ""
}

// ColumnName is the column the shared formula produces when expanded on its
// own. It defaults to the shared key.
func (s SharedFormula) ColumnName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Key
}

// TradeTypeSpec holds the definitions scoped to one trade type.
type TradeTypeSpec struct {
	Name        string
	Tables      []string
	Definitions []MetricDefinition
}

// DefinitionsFor returns the definitions that apply to table. Definitions
// without a table apply to every table of the trade type.
func (t TradeTypeSpec) DefinitionsFor(table string) []MetricDefinition {
	var out []MetricDefinition
	for _, d := range t.Definitions {
		if d.Table == "" || d.Table == table {
			out = append(out, d)
		}
	}
	return out
}

// MetricSpec is the full computed-metric index.
type MetricSpec struct {
	Intervals   []string
	Shared      map[string]SharedFormula
	SharedOrder []string
	TradeTypes  map[string]TradeTypeSpec
}

// NewMetricSpec returns an empty spec.
func NewMetricSpec() *MetricSpec {
	return &MetricSpec{
		Shared:     make(map[string]SharedFormula),
		TradeTypes: make(map[string]TradeTypeSpec),
	}
}

// TradeType returns the definitions for a trade type.
func (m *MetricSpec) TradeType(name string) (TradeTypeSpec, bool) {
	t, ok := m.TradeTypes[name]
	return t, ok
}

// TradeTypeForTable finds the trade type that lists table, falling back to
// a trade type named like the table.
func (m *MetricSpec) TradeTypeForTable(table string) (string, bool) {
	names := make([]string, 0, len(m.TradeTypes))
	for name := range m.TradeTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, t := range m.TradeTypes[name].Tables {
			if t == table {
				return name, true
			}
		}
	}
	if _, ok := m.TradeTypes[table]; ok {
		return table, true
	}
	return "", false
}

// SharedInOrder returns shared formulas in declaration order.
func (m *MetricSpec) SharedInOrder() []SharedFormula {
	out := make([]SharedFormula, 0, len(m.SharedOrder))
	for _, k := range m.SharedOrder {
		out = append(out, m.Shared[k])
	}
	return out
}

var sharedReservedKeys = map[string]bool{
	"name":         true,
	"template":     true,
	"per_interval": true,
	"description":  true,
	"variants":     true,
	"value":        true,
}

// ParseMetricSpec decodes a computed-metric index document.
func ParseMetricSpec(data []byte) (*MetricSpec, error) {
	sections, err := sectionNodes(data)
	if err != nil {
		return nil, err
	}

	spec := NewMetricSpec()

	if node, ok := sections["intervals"]; ok {
		if err := node.Decode(&spec.Intervals); err != nil {
			return nil, fmt.Errorf("intervals: %w", err)
		}
	}

	shared, err := NormalizeSection(sections["shared_formulas"], "key", "name")
	if err != nil {
		return nil, fmt.Errorf("shared_formulas: %w", err)
	}
	for _, rec := range shared {
		sf, err := decodeShared(rec)
		if err != nil {
			return nil, fmt.Errorf("shared formula %s: %w", rec.Name, err)
		}
		if _, dup := spec.Shared[sf.Key]; !dup {
			spec.SharedOrder = append(spec.SharedOrder, sf.Key)
		}
		spec.Shared[sf.Key] = sf
	}

	tradeTypes, err := NormalizeSection(sections["trade_types"], "trade_type", "name")
	if err != nil {
		return nil, fmt.Errorf("trade_types: %w", err)
	}
	for _, rec := range tradeTypes {
		tt, err := decodeTradeType(rec)
		if err != nil {
			return nil, fmt.Errorf("trade type %s: %w", rec.Name, err)
		}
		spec.TradeTypes[tt.Name] = tt
	}

	return spec, nil
}

func decodeShared(rec Record) (SharedFormula, error) {
	sf := SharedFormula{Key: rec.Name, Variants: make(map[string]string)}

	// A bare string is a standard-only shared formula.
	if v, ok := rec.Fields["value"].(string); ok && len(rec.Fields) == 1 {
		sf.Variants[StandardVariant] = v
		return sf, nil
	}

	var head struct {
		Key         string            `mapstructure:"key"`
		Name        string            `mapstructure:"name"`
		Template    string            `mapstructure:"template"`
		PerInterval bool              `mapstructure:"per_interval"`
		Variants    map[string]string `mapstructure:"variants"`
	}
	if err := decodeInto(rec.Fields, &head); err != nil {
		return SharedFormula{}, err
	}
	if head.Template != "" {
		sf.Name = head.Template
	} else if head.Name != "" && head.Name != rec.Name {
		sf.Name = head.Name
	}
	sf.PerInterval = head.PerInterval
	for k, v := range head.Variants {
		sf.Variants[k] = v
	}
	for k, v := range rec.Fields {
		if sharedReservedKeys[k] || k == "key" {
			continue
		}
		if s, ok := v.(string); ok {
			sf.Variants[k] = s
		}
	}
	return sf, nil
}

func decodeTradeType(rec Record) (TradeTypeSpec, error) {
	var raw struct {
		Tables []string `mapstructure:"tables"`
	}
	if err := decodeInto(rec.Fields, &raw); err != nil {
		return TradeTypeSpec{}, err
	}

	tt := TradeTypeSpec{Name: rec.Name, Tables: raw.Tables}
	add := func(node *yaml.Node, kind MetricKind) error {
		items, err := NormalizeSection(node, "name")
		if err != nil {
			return err
		}
		for _, item := range items {
			d, err := decodeDefinition(item)
			if err != nil {
				return fmt.Errorf("%s: %w", item.Name, err)
			}
			d.Kind = kind
			tt.Definitions = append(tt.Definitions, d)
		}
		return nil
	}

	// A trade type written as a bare list holds its metrics directly.
	if rec.Node != nil && rec.Node.Kind == yaml.SequenceNode {
		if err := add(rec.Node, MetricKindMetric); err != nil {
			return TradeTypeSpec{}, err
		}
		return tt, nil
	}
	if err := add(child(rec.Node, "intermediates"), MetricKindIntermediate); err != nil {
		return TradeTypeSpec{}, fmt.Errorf("intermediates: %w", err)
	}
	if err := add(child(rec.Node, "metrics"), MetricKindMetric); err != nil {
		return TradeTypeSpec{}, fmt.Errorf("metrics: %w", err)
	}
	if err := add(child(rec.Node, "items"), MetricKindMetric); err != nil {
		return TradeTypeSpec{}, fmt.Errorf("items: %w", err)
	}
	return tt, nil
}

// decodeDefinition decodes one metric entry. In mapping form the key names
// the column unless the entry carries its own name, and a scalar value is
// the formula.
func decodeDefinition(rec Record) (MetricDefinition, error) {
	var d MetricDefinition
	if f, ok := rec.Fields["value"].(string); ok && len(rec.Fields) == 1 {
		return MetricDefinition{Name: rec.Name, Formula: f}, nil
	}
	if err := decodeInto(rec.Fields, &d); err != nil {
		return MetricDefinition{}, err
	}
	if d.Name == "" {
		d.Name = rec.Name
	}
	return d, nil
}
