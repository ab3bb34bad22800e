package commands

import (
	"github.com/LuisDee/catalog-enricher/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewIndexCommand creates the index command.
func NewIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <table>",
		Short: "Show the formula index built for a table",
		Long: `Show the formula index built for a table from the metric spec.

Each entry lists the column, its resolved formula, the interval it was
expanded for, and the definition or shared formula it came from. Definitions
whose formula could not be resolved are listed as skipped.`,
		Example: `  enricher index markettrade
  enricher index markettrade -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args[0])
		},
	}
	return cmd
}

// IndexEntryOutput is the JSON form of one formula index entry.
type IndexEntryOutput struct {
	Column   string `json:"column"`
	Formula  string `json:"formula"`
	Interval string `json:"interval,omitempty"`
	Origin   string `json:"origin"`
	Shared   string `json:"shared,omitempty"`
	Implicit bool   `json:"implicit,omitempty"`
}

// IndexOutput is the JSON form of a table's formula index.
type IndexOutput struct {
	Table     string             `json:"table"`
	TradeType string             `json:"trade_type"`
	Entries   []IndexEntryOutput `json:"entries"`
	Skipped   []string           `json:"skipped,omitempty"`
}

func runIndex(cmd *cobra.Command, name string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	tf, err := cmdCtx.Engine.Table(cmd.Context(), name)
	if err != nil {
		return err
	}
	idx := tf.Formulas

	out := IndexOutput{
		Table:     name,
		TradeType: idx.TradeType,
		Entries:   make([]IndexEntryOutput, 0, idx.Len()),
		Skipped:   idx.Skipped,
	}
	for _, col := range idx.Columns() {
		e, _ := idx.Lookup(col)
		out.Entries = append(out.Entries, IndexEntryOutput{
			Column:   e.Column,
			Formula:  e.Formula,
			Interval: e.Interval,
			Origin:   e.Origin,
			Shared:   e.Shared,
			Implicit: e.Implicit,
		})
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Formula index: "+name)
	tradeType := out.TradeType
	if tradeType == "" {
		tradeType = "(none)"
	}
	r.KeyValue("Trade type", tradeType)
	r.Println("")

	if len(out.Entries) == 0 {
		r.Muted("No formulas resolved for this table.")
	} else {
		rows := make([][]string, 0, len(out.Entries))
		for _, e := range out.Entries {
			origin := e.Origin
			if e.Implicit {
				origin += " (implicit)"
			}
			rows = append(rows, []string{e.Column, e.Formula, e.Interval, origin})
		}
		r.Table([]string{"Column", "Formula", "Interval", "Origin"}, rows)
	}

	if len(out.Skipped) > 0 {
		r.Header(2, "Skipped")
		r.Println(output.FormatList(out.Skipped))
	}
	return nil
}
