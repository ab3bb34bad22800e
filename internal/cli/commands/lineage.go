package commands

import (
	"fmt"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/cli/output"
	"github.com/LuisDee/catalog-enricher/internal/dag"
	"github.com/LuisDee/catalog-enricher/internal/enrich"
	"github.com/spf13/cobra"
)

// LineageOptions holds options for the lineage command.
type LineageOptions struct {
	Upstream   bool
	Downstream bool
	Depth      int
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	opts := &LineageOptions{}

	cmd := &cobra.Command{
		Use:   "lineage <table> <column>",
		Short: "Show the formula lineage of a column",
		Long: `Display the columns a column is computed from and the columns computed
from it, following formulas within the table.

Formulas from the metric spec take precedence over authored ones, so the
lineage matches what enrichment would write.`,
		Example: `  # Show full lineage for a column
  enricher lineage markettrade instant_pnl

  # Show only the columns it is computed from
  enricher lineage markettrade instant_pnl --downstream=false

  # Limit traversal depth
  enricher lineage markettrade trade_price --depth 1

  # Output as JSON
  enricher lineage markettrade instant_pnl -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Upstream, "upstream", true, "Include columns this column is computed from")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", true, "Include columns computed from this column")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "Max traversal depth (0 = unlimited)")

	return cmd
}

// LineageNode is one column in lineage output.
type LineageNode struct {
	Column  string `json:"column"`
	Derived bool   `json:"derived"`
	Formula string `json:"formula,omitempty"`
}

// LineageEdge points from a dependency to the column computed from it.
type LineageEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// LineageOutput is the JSON form of a column's lineage.
type LineageOutput struct {
	Table      string        `json:"table"`
	Root       string        `json:"root"`
	Formula    string        `json:"formula,omitempty"`
	Upstream   []string      `json:"upstream"`
	Downstream []string      `json:"downstream"`
	Nodes      []LineageNode `json:"nodes"`
	Edges      []LineageEdge `json:"edges"`
	Cycle      []string      `json:"cycle,omitempty"`
}

func runLineage(cmd *cobra.Command, table, column string, opts *LineageOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	tf, err := cmdCtx.Engine.Table(cmd.Context(), table)
	if err != nil {
		return err
	}
	graph := tf.Graph()
	if _, ok := graph.Node(column); !ok {
		return fmt.Errorf("column not found: %s.%s", table, column)
	}

	out := buildLineage(tf, graph, column, opts)

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Lineage for: %s.%s", table, column))
	if out.Formula != "" {
		r.KeyValue("Formula", out.Formula)
	}
	r.Println("")

	if opts.Upstream {
		r.Header(2, fmt.Sprintf("Computed from (%d)", len(out.Upstream)))
		lineageList(r, out.Upstream)
	}
	if opts.Downstream {
		r.Header(2, fmt.Sprintf("Used by (%d)", len(out.Downstream)))
		lineageList(r, out.Downstream)
	}
	if out.Cycle != nil {
		r.Warning("formula cycle: " + strings.Join(out.Cycle, " -> "))
	}
	return nil
}

func lineageList(r *output.Renderer, columns []string) {
	if len(columns) == 0 {
		r.Muted("  (none)")
	}
	for _, c := range columns {
		r.Println("  - " + c)
	}
	r.Println("")
}

func buildLineage(tf *enrich.TableFormulas, graph *dag.Graph, column string, opts *LineageOptions) LineageOutput {
	out := LineageOutput{
		Table:      tf.Document.Table.Name,
		Root:       column,
		Upstream:   []string{},
		Downstream: []string{},
		Nodes:      []LineageNode{},
		Edges:      []LineageEdge{},
		Cycle:      graph.FindCycle(),
	}

	nodeSet := map[string]bool{column: true}
	if opts.Upstream {
		out.Upstream = withDepth(graph.Upstream, graph.Dependencies, column, opts.Depth)
		for _, c := range out.Upstream {
			nodeSet[c] = true
		}
	}
	if opts.Downstream {
		out.Downstream = withDepth(graph.Downstream, graph.Dependents, column, opts.Depth)
		for _, c := range out.Downstream {
			nodeSet[c] = true
		}
	}

	for _, c := range graph.Columns() {
		if !nodeSet[c] {
			continue
		}
		node, _ := graph.Node(c)
		ln := LineageNode{Column: c, Derived: node.Derived}
		if col, ok := tf.Document.Table.Column(c); ok {
			ln.Formula = tf.EffectiveFormula(col)
		}
		if c == column {
			out.Formula = ln.Formula
		}
		out.Nodes = append(out.Nodes, ln)

		for _, dep := range graph.Dependencies(c) {
			if nodeSet[dep] {
				out.Edges = append(out.Edges, LineageEdge{From: dep, To: c})
			}
		}
	}
	return out
}

// withDepth walks the graph from column. A zero depth uses the full
// transitive walk; otherwise neighbours are followed up to maxDepth hops.
func withDepth(all func(string) []string, next func(string) []string, column string, maxDepth int) []string {
	if maxDepth <= 0 {
		return all(column)
	}

	visited := map[string]bool{column: true}
	result := []string{}

	var traverse func(id string, depth int)
	traverse = func(id string, depth int) {
		if depth > maxDepth {
			return
		}
		for _, n := range next(id) {
			if !visited[n] {
				visited[n] = true
				result = append(result, n)
				traverse(n, depth+1)
			}
		}
	}

	traverse(column, 1)
	return result
}
