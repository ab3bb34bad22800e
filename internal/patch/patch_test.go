package patch

import (
	"errors"
	"strings"
	"testing"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tradeDoc = `# Market trades.
name: markettrade
layer: silver
columns:
  - name: trade_date
    type: DATE
    category: time   # authored

  - name: trade_price
    type: FLOAT64
    description: ""
    # pricing notes
    formula: TODO
  - name: side
    type: STRING
    description: Trade direction.
    related_columns:
      - symbol
`

func tradeChanges() ChangeSet {
	cs := ChangeSet{}
	cs.Set("trade_date", catalog.FieldFilterable, Change{Value: catalog.Bool(true)})
	cs.Set("trade_date", catalog.FieldDescription, Change{Value: catalog.Text("Trading date.")})
	cs.Set("trade_price", catalog.FieldDescription, Change{Value: catalog.Text("Price at which the trade executed.")})
	cs.Set("trade_price", catalog.FieldFormula, Change{Value: catalog.Text("tv * size"), Policy: PolicyReplace})
	cs.Set("trade_price", catalog.FieldCategory, Change{Value: catalog.Text("measure")})
	cs.Set("side", catalog.FieldDescription, Change{Value: catalog.Text("Trade direction, BUY or SELL.")})
	cs.Set("side", catalog.FieldRelated, Change{Value: catalog.List([]string{"symbol", "trade_price"}), Policy: PolicyReplace})
	return cs
}

func TestScan_RoundTrip(t *testing.T) {
	events := Scan([]byte(tradeDoc), "")

	var b strings.Builder
	var entities []string
	for _, ev := range events {
		for _, l := range ev.Lines {
			b.WriteString(l)
		}
		if ev.Kind == EventEntityStart {
			entities = append(entities, ev.Entity)
			assert.Equal(t, 4, ev.Indent)
		}
	}
	assert.Equal(t, tradeDoc, b.String())
	assert.Equal(t, []string{"trade_date", "trade_price", "side"}, entities)
}

func TestScan_Fields(t *testing.T) {
	var fields []string
	for _, ev := range Scan([]byte(tradeDoc), "") {
		if ev.Kind == EventField && ev.Entity == "side" {
			fields = append(fields, ev.Key)
			if ev.Key == catalog.FieldRelated {
				assert.Len(t, ev.Lines, 2, "list items belong to their key")
			}
			if ev.Key == catalog.FieldName {
				assert.Equal(t, "  - ", ev.Prefix)
			}
		}
	}
	assert.Equal(t, []string{"name", "type", "description", "related_columns"}, fields)
}

func TestScan_NoEntityKey(t *testing.T) {
	src := "name: t\nlayer: gold\n"
	events := Scan([]byte(src), "")
	require.Len(t, events, 1)
	assert.Equal(t, EventPassthrough, events[0].Kind)
}

func TestApply(t *testing.T) {
	res, err := Apply([]byte(tradeDoc), "markettrade.yaml", tradeChanges())
	require.NoError(t, err)

	want := `# Market trades.
name: markettrade
layer: silver
columns:
  - name: trade_date
    type: DATE
    category: time   # authored
    description: Trading date.
    filterable: true

  - name: trade_price
    type: FLOAT64
    description: Price at which the trade executed.
    # pricing notes
    formula: tv * size
    category: measure
  - name: side
    type: STRING
    description: Trade direction.
    related_columns:
      - symbol
      - trade_price
`
	assert.Equal(t, want, string(res.Output))
	assert.True(t, res.Changed)
	assert.Equal(t, 5, res.Count(ActionAdded))
	assert.Equal(t, 1, res.Count(ActionUpdated))
	assert.Equal(t, 1, res.Count(ActionPreserved))
}

func TestApply_Idempotent(t *testing.T) {
	first, err := Apply([]byte(tradeDoc), "markettrade.yaml", tradeChanges())
	require.NoError(t, err)

	second, err := Apply(first.Output, "markettrade.yaml", tradeChanges())
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, string(first.Output), string(second.Output))
	assert.Zero(t, second.Count(ActionAdded))
	assert.Zero(t, second.Count(ActionUpdated))
}

func TestApply_EmptyChangeSetIsByteIdentical(t *testing.T) {
	src := "name: t\r\ncolumns:\r\n  -   name: a   # odd spacing\r\n      type: 'STRING'\r\n"
	res, err := Apply([]byte(src), "", ChangeSet{})
	require.NoError(t, err)
	assert.Equal(t, src, string(res.Output))
	assert.False(t, res.Changed)
}

func TestApply_NoTrailingNewline(t *testing.T) {
	src := "name: t\ncolumns:\n  - name: a\n    type: STRING"
	cs := ChangeSet{}
	cs.Set("a", catalog.FieldDescription, Change{Value: catalog.Text("Alpha.")})

	res, err := Apply([]byte(src), "", cs)
	require.NoError(t, err)
	assert.Equal(t, src+"\n    description: Alpha.\n", string(res.Output))
}

func TestApply_ReplaceLastLineKeepsMissingNewline(t *testing.T) {
	src := "name: t\ncolumns:\n  - name: a\n    formula: TODO"
	cs := ChangeSet{}
	cs.Set("a", catalog.FieldFormula, Change{Value: catalog.Text("b + c"), Policy: PolicyReplace})

	res, err := Apply([]byte(src), "", cs)
	require.NoError(t, err)
	assert.Equal(t, "name: t\ncolumns:\n  - name: a\n    formula: b + c", string(res.Output))
}

func TestApply_CompactSequence(t *testing.T) {
	src := "name: t\ncolumns:\n- name: a\n  type: STRING\n- name: b\n"
	cs := ChangeSet{}
	cs.Set("a", catalog.FieldCategory, Change{Value: catalog.Text("dimension")})
	cs.Set("b", catalog.FieldSynonyms, Change{Value: catalog.List([]string{"bee"})})

	res, err := Apply([]byte(src), "", cs)
	require.NoError(t, err)
	assert.Equal(t,
		"name: t\ncolumns:\n- name: a\n  type: STRING\n  category: dimension\n- name: b\n  synonyms:\n    - bee\n",
		string(res.Output))
}

func TestApply_BareDashItems(t *testing.T) {
	src := "name: t\ncolumns:\n  -\n    name: a\n    type: STRING\n  - # second\n    name: b\n"
	cs := ChangeSet{}
	cs.Set("a", catalog.FieldCategory, Change{Value: catalog.Text("dimension")})
	cs.Set("b", catalog.FieldDescription, Change{Value: catalog.Text("Bee.")})

	res, err := Apply([]byte(src), "", cs)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t,
		"name: t\ncolumns:\n  -\n    name: a\n    type: STRING\n    category: dimension\n  - # second\n    name: b\n    description: Bee.\n",
		string(res.Output))
}

func TestApply_QuotedFieldKey(t *testing.T) {
	src := "name: t\ncolumns:\n  - \"name\": a\n    \"description\": \"\"\n    'type': STRING\n"
	cs := ChangeSet{}
	cs.Set("a", catalog.FieldDescription, Change{Value: catalog.Text("Alpha.")})

	res, err := Apply([]byte(src), "", cs)
	require.NoError(t, err)
	assert.Equal(t, "name: t\ncolumns:\n  - \"name\": a\n    description: Alpha.\n    'type': STRING\n", string(res.Output))
	assert.Equal(t, 1, strings.Count(string(res.Output), "description"))
}

func TestApply_UnpatchableLayoutFails(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"flow sequence", "name: t\ncolumns: [{name: a, type: STRING}, {name: b}]\n"},
		{"flow mapping items", "name: t\ncolumns:\n  - {name: a, type: STRING}\n  - {name: b}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := ChangeSet{}
			cs.Set("a", catalog.FieldCategory, Change{Value: catalog.Text("dimension")})
			cs.Set("b", catalog.FieldDescription, Change{Value: catalog.Text("Bee.")})

			_, err := Apply([]byte(tt.src), "t.yaml", cs)
			var vf *catalog.ValidationFailure
			require.True(t, errors.As(err, &vf), "got %v", err)
			assert.ErrorContains(t, err, "a, b")
		})
	}
}

func TestApply_CRLF(t *testing.T) {
	src := "name: t\r\ncolumns:\r\n  - name: a\r\n\r\n"
	cs := ChangeSet{}
	cs.Set("a", catalog.FieldCategory, Change{Value: catalog.Text("dimension")})

	res, err := Apply([]byte(src), "", cs)
	require.NoError(t, err)
	assert.Equal(t, "name: t\r\ncolumns:\r\n  - name: a\r\n    category: dimension\r\n\r\n", string(res.Output))
}

func TestApply_EmptyListPlaceholderIsFilled(t *testing.T) {
	src := "name: t\ncolumns:\n  - name: a\n    related_columns: []\n    type: INT64\n  - name: b\n"
	cs := ChangeSet{}
	cs.Set("a", catalog.FieldRelated, Change{Value: catalog.List([]string{"b"}), Policy: PolicyReplace})

	res, err := Apply([]byte(src), "", cs)
	require.NoError(t, err)
	assert.Equal(t,
		"name: t\ncolumns:\n  - name: a\n    related_columns:\n      - b\n    type: INT64\n  - name: b\n",
		string(res.Output))
}

func TestApply_PreservesUnknownKeys(t *testing.T) {
	src := "name: t\nowner: risk\ncolumns:\n  - name: a\n    pii: false\n"
	cs := ChangeSet{}
	cs.Set("a", catalog.FieldDescription, Change{Value: catalog.Text("Alpha.")})

	res, err := Apply([]byte(src), "", cs)
	require.NoError(t, err)
	assert.Equal(t, "name: t\nowner: risk\ncolumns:\n  - name: a\n    pii: false\n    description: Alpha.\n", string(res.Output))
}

func TestApply_ValidationFailure(t *testing.T) {
	src := "name: t\ncolumns:\n  - name: a\n"
	cs := ChangeSet{}
	cs.Set("a", "not_a_field", Change{Value: catalog.Text("x")})

	_, err := Apply([]byte(src), "t.yaml", cs)
	require.Error(t, err)

	var vf *catalog.ValidationFailure
	require.True(t, errors.As(err, &vf))
	assert.Equal(t, "t", vf.Table)
	assert.Equal(t, "t.yaml", vf.Path)
}

func TestApply_ParseError(t *testing.T) {
	_, err := Apply([]byte("columns: [\n"), "bad.yaml", ChangeSet{})
	var pe *catalog.DocumentParseError
	require.True(t, errors.As(err, &pe))
}

func TestApply_UnknownEntityIgnored(t *testing.T) {
	src := "name: t\ncolumns:\n  - name: a\n"
	cs := ChangeSet{}
	cs.Set("zzz", catalog.FieldDescription, Change{Value: catalog.Text("x")})

	res, err := Apply([]byte(src), "", cs)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, src, string(res.Output))
}

func TestRenderField(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value catalog.Value
		want  string
	}{
		{"plain", "description", catalog.Text("Plain text."), "    description: Plain text.\n"},
		{"colon", "description", catalog.Text("Ratio: a/b"), "    description: \"Ratio: a/b\"\n"},
		{"inner hash", "description", catalog.Text("issue#4"), "    description: issue#4\n"},
		{"spaced hash", "description", catalog.Text("see #4 again"), "    description: \"see #4 again\"\n"},
		{"bool text", "description", catalog.Text("true"), "    description: \"true\"\n"},
		{"number text", "description", catalog.Text("1.5"), "    description: \"1.5\"\n"},
		{"leading quote", "formula", catalog.Text("'BUY' = side"), "    formula: \"'BUY' = side\"\n"},
		{"embedded quote", "formula", catalog.Text(`-"x"`), "    formula: \"-\\\"x\\\"\"\n"},
		{"filterable", "filterable", catalog.Bool(false), "    filterable: false\n"},
		{"multi-line", "description", catalog.Text("Line one.\n\nLine two.\n"), "    description: |-\n      Line one.\n\n      Line two.\n"},
		{"indented multi-line", "description", catalog.Text(" x\ny"), "    description: \" x\\ny\"\n"},
		{"list", "synonyms", catalog.List([]string{"px", "yes"}), "    synonyms:\n      - px\n      - \"yes\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(RenderField("    ", 4, tt.key, tt.value, "\n"), "")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Replace")
	require.NoError(t, err)
	assert.Equal(t, PolicyReplace, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFill, p)

	_, err = ParsePolicy("merge")
	assert.Error(t, err)
}
