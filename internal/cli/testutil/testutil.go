// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/LuisDee/catalog-enricher/internal/cli/output"
)

// FieldsIndex is the fields index written by SetupTestProject.
const FieldsIndex = `groups:
  - name: Trade
    fields:
      - {name: tradePrice, type: double, number: 4, comment: "price at which the trade executed"}
`

// TransformsIndex is the transforms index written by SetupTestProject.
const TransformsIndex = `tables:
  markettrade:
    - {column: trade_price, source: Trade.tradePrice, kind: direct}
`

// MetricSpec is the metric spec written by SetupTestProject.
const MetricSpec = `intervals: ["1s"]
shared_formulas:
  delta_slippage:
    template: "delta_slippage_{interval}"
    per_interval: true
    standard: "(mid_{interval} - trade_price) * delta"
    markettrade: "(mid_{interval} - trade_price) * delta * size"
trade_types:
  - name: markettrade
    tables: [markettrade]
    metrics:
      - {name: "delta_slippage_{interval}", shared: delta_slippage, per_interval: true}
      - {name: instant_pnl, formula: "(tv - trade_price) * size - fees"}
`

// MarketTradeDoc is the table document written by SetupTestProject.
const MarketTradeDoc = `name: markettrade
layer: data
# hand-written notes survive
columns:
  - name: trade_date
    type: date
  - name: trade_price
    type: double
  - name: size
    type: double
  - name: delta_slippage_1s
    type: double
  - name: instant_pnl
    type: double
    description: Authored PnL description.
    formula: "tv - trade_price"
`

// ProjectConfig is the enricher.yaml written by SetupTestProject. Coverage
// gates are zeroed so tests opt into them explicitly.
const ProjectConfig = `catalog_dir: catalog
index:
  fields: index/fields.yaml
  transforms: index/transforms.yaml
  metrics: index/metrics.yaml
state_path: .enricher/state.db
coverage:
  thresholds:
    category: 0
    source: 0
    formula: 0
    description: 0
`

// SetupTestProject creates a temporary project with a catalog, structural
// indexes and an enricher.yaml. It returns the project root.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	files := map[string]string{
		"enricher.yaml":            ProjectConfig,
		"index/fields.yaml":        FieldsIndex,
		"index/transforms.yaml":    TransformsIndex,
		"index/metrics.yaml":       MetricSpec,
		"catalog/markettrade.yaml": MarketTradeDoc,
	}
	for rel, content := range files {
		path := filepath.Join(tmpDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create %s: %v", rel, err)
		}
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
