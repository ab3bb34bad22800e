package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/LuisDee/catalog-enricher/internal/cli/output"
	"github.com/LuisDee/catalog-enricher/internal/state"
	"github.com/spf13/cobra"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
	RunID string
	Table string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded enrichment runs",
		Long: `Show enrichment runs recorded in the state database.

Without flags the most recent runs are listed. --run shows the per-table
outcome of one run; --table shows one table across runs.`,
		Example: `  enricher history
  enricher history --run 3f0c9d1e-...
  enricher history --table markettrade --limit 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of entries (0 = all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "Show the tables of one run")
	cmd.Flags().StringVar(&opts.Table, "table", "", "Show the history of one table")
	cmd.MarkFlagsMutuallyExclusive("run", "table")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if cmdCtx.Cfg.StatePath == "" {
		return errors.New("run history is disabled: set state_path or --state")
	}

	store, err := state.OpenStore(cmdCtx.Cfg.StatePath, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	r := cmdCtx.Renderer

	switch {
	case opts.RunID != "":
		run, err := store.GetRun(ctx, opts.RunID)
		if err != nil {
			return err
		}
		tables, err := store.ListTableRuns(ctx, run.ID)
		if err != nil {
			return err
		}
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(struct {
				*state.Run
				TableRuns []*state.TableRun `json:"table_runs"`
			}{run, tables})
		}
		renderRunDetail(r, run, tables)

	case opts.Table != "":
		rows, err := store.TableHistory(ctx, opts.Table, opts.Limit)
		if err != nil {
			return err
		}
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(rows)
		}
		r.Header(1, "History: "+opts.Table)
		if len(rows) == 0 {
			r.Muted("No recorded runs for this table.")
			return nil
		}
		r.Table([]string{"Started", "Run", "Status", "Changed", "Written", "Coverage", "Warnings"}, tableRunRows(rows, true))

	default:
		runs, err := store.ListRuns(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if r.EffectiveMode() == output.ModeJSON {
			if runs == nil {
				runs = []*state.Run{}
			}
			return r.JSON(runs)
		}
		r.Header(1, "Runs")
		if len(runs) == 0 {
			r.Muted("No runs recorded yet.")
			return nil
		}
		rows := make([][]string, 0, len(runs))
		for _, run := range runs {
			rows = append(rows, []string{
				run.StartedAt.Local().Format(time.DateTime),
				run.ID,
				runStatus(run),
				fmt.Sprint(run.Tables),
				fmt.Sprint(run.Failed),
				fmt.Sprint(run.Changed),
				run.Duration().Round(time.Millisecond).String(),
			})
		}
		r.Table([]string{"Started", "ID", "Status", "Tables", "Failed", "Changed", "Duration"}, rows)
	}
	return nil
}

func runStatus(run *state.Run) string {
	s := string(run.Status)
	if run.DryRun {
		s += " (dry run)"
	}
	return s
}

func renderRunDetail(r *output.Renderer, run *state.Run, tables []*state.TableRun) {
	r.Header(1, "Run "+run.ID)
	r.KeyValue("Status", runStatus(run))
	r.KeyValue("Started", run.StartedAt.Local().Format(time.DateTime))
	r.KeyValue("Duration", run.Duration().Round(time.Millisecond).String())
	if run.Error != "" {
		r.KeyValue("Error", run.Error)
	}
	r.Println("")
	if len(tables) == 0 {
		r.Muted("No tables recorded.")
		return
	}
	r.Table([]string{"Table", "Status", "Changed", "Written", "Coverage", "Warnings"}, tableRunRows(tables, false))
}

func tableRunRows(rows []*state.TableRun, withRun bool) [][]string {
	out := make([][]string, 0, len(rows))
	for _, tr := range rows {
		cov := "-"
		if tr.CoveragePass != nil {
			cov = "pass"
			if !*tr.CoveragePass {
				cov = "FAIL"
			}
		}
		status := string(tr.Status)
		if tr.Error != "" {
			status += ": " + tr.Error
		}
		row := []string{status, fmt.Sprint(tr.Changed), fmt.Sprint(tr.Written), cov, fmt.Sprint(tr.Warnings)}
		if withRun {
			row = append([]string{tr.StartedAt.Local().Format(time.DateTime), tr.RunID}, row...)
		} else {
			row = append([]string{tr.Table}, row...)
		}
		out = append(out, row)
	}
	return out
}
