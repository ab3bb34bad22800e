package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/LuisDee/catalog-enricher/internal/cli/output"
	"github.com/LuisDee/catalog-enricher/internal/coverage"
	"github.com/LuisDee/catalog-enricher/internal/enrich"
	"github.com/LuisDee/catalog-enricher/internal/state"
	"github.com/spf13/cobra"
)

// EnrichOptions holds options for the enrichment commands.
type EnrichOptions struct {
	selectionFlags
	DryRun    bool
	Watch     bool
	Stages    []string
	NoHistory bool
}

// NewEnrichCommand creates the enrich command.
func NewEnrichCommand() *cobra.Command {
	opts := &EnrichOptions{}

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Run the full enrichment pipeline",
		Long: `Enrich every table document in the catalog.

Each table is classified, given typical aggregations and filterability,
matched against the metric spec for formulas and related columns, and
described from the structural indexes. Documents are patched in place:
authored values and comments are preserved, and a second run changes nothing.

The command exits non-zero when a table fails validation, an input is
missing, or a table misses a coverage threshold.`,
		Example: `  # Enrich the whole catalog
  enricher enrich

  # Preview changes as a diff without writing
  enricher enrich --dry-run

  # Only data-layer tables, only the describe stage
  enricher enrich --layer data --stage describe

  # Re-run whenever a document or index changes
  enricher enrich --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stages := make([]enrich.Stage, 0, len(opts.Stages))
			for _, s := range opts.Stages {
				st, err := enrich.ParseStage(s)
				if err != nil {
					return err
				}
				stages = append(stages, st)
			}
			return runEnrich(cmd, opts, stages, true)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show a diff instead of writing documents")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-run when documents or structural indexes change")
	cmd.Flags().StringSliceVar(&opts.Stages, "stage", nil, "Only run these stages (classify|formulas|related|describe)")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record the run in the state database")
	_ = cmd.RegisterFlagCompletionFunc("stage", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"classify", "formulas", "related", "describe"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand() *cobra.Command {
	return newStageCommand("classify",
		"Assign categories, aggregations and filterability",
		`Classify every column into a category (time, identifier, dimension or
measure) and assign typical_aggregation to measures and filterable to
non-measures. No formulas or descriptions are touched.`,
		enrich.StageClassify)
}

// NewFormulasCommand creates the formulas command.
func NewFormulasCommand() *cobra.Command {
	return newStageCommand("formulas",
		"Resolve formulas and related columns from the metric spec",
		`Build each table's formula index from the metric spec, write formulas
onto matching columns and derive related_columns from every formula.`,
		enrich.StageFormulas, enrich.StageRelated)
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand() *cobra.Command {
	return newStageCommand("describe",
		"Resolve descriptions and sources",
		`Resolve column descriptions and sources through the resolution tiers:
authored text, reference catalog, structural lineage, heuristics.`,
		enrich.StageDescribe)
}

func newStageCommand(use, short, long string, stages ...enrich.Stage) *cobra.Command {
	opts := &EnrichOptions{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Example: fmt.Sprintf(`  enricher %[1]s
  enricher %[1]s --table markettrade --dry-run`, use),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEnrich(cmd, opts, stages, false)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show a diff instead of writing documents")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record the run in the state database")
	return cmd
}

// runEnrich runs the engine. Coverage gates apply only to full runs; a
// single stage cannot be expected to meet them.
func runEnrich(cmd *cobra.Command, opts *EnrichOptions, stages []enrich.Stage, gate bool) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
		return err
	}
	layer, err := opts.layer()
	if err != nil {
		return err
	}

	if !gate {
		engineCfg, err := cmdCtx.Cfg.EngineConfig()
		if err != nil {
			return err
		}
		engineCfg.Thresholds = coverage.Thresholds{}
		cmdCtx.Engine = enrich.New(cmdCtx.Repo, engineCfg, cmdCtx.Logger)
	}

	runOpts := enrich.Options{
		Tables: opts.Tables,
		Layer:  layer,
		DryRun: opts.DryRun,
		Stages: stages,
	}

	var store *state.SQLiteStore
	if cmdCtx.Cfg.StatePath != "" && !opts.NoHistory {
		store, err = state.OpenStore(cmdCtx.Cfg.StatePath, cmdCtx.Logger)
		if err != nil {
			return fmt.Errorf("failed to open state database: %w", err)
		}
		defer func() { _ = store.Close() }()
	}

	ctx := cmd.Context()
	record := func(res *enrich.RunResult) {
		if store == nil || res == nil {
			return
		}
		if err := store.RecordResult(ctx, res); err != nil {
			cmdCtx.Renderer.Warning(fmt.Sprintf("failed to record run history: %v", err))
		}
	}

	if opts.Watch {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return cmdCtx.Engine.Watch(ctx, runOpts, func(res *enrich.RunResult, err error) {
			if err != nil {
				cmdCtx.Renderer.Error(err.Error())
				return
			}
			record(res)
			_ = renderRun(cmdCtx, res)
			if cmdCtx.Renderer.EffectiveMode() != output.ModeJSON {
				cmdCtx.Renderer.Muted("Watching for changes (Ctrl+C to stop)...")
			}
		})
	}

	res, err := cmdCtx.Engine.Run(ctx, runOpts)
	if err != nil {
		return err
	}
	record(res)
	if err := renderRun(cmdCtx, res); err != nil {
		return err
	}
	return res.Err()
}

// RunOutput is the JSON form of an enrichment run.
type RunOutput struct {
	ID      string         `json:"id"`
	DryRun  bool           `json:"dry_run"`
	Tables  []TableOutput  `json:"tables"`
	Missing []string       `json:"missing,omitempty"`
	Stats   enrich.Stats   `json:"stats"`
	Summary RunSummaryJSON `json:"summary"`
}

// TableOutput is the JSON form of one table's outcome.
type TableOutput struct {
	Name     string                `json:"name"`
	Path     string                `json:"path"`
	Status   string                `json:"status"`
	Changed  int                   `json:"changed"`
	Written  bool                  `json:"written"`
	Stats    enrich.Stats          `json:"stats"`
	Warnings []string              `json:"warnings,omitempty"`
	Error    string                `json:"error,omitempty"`
	Coverage *coverage.TableReport `json:"coverage,omitempty"`
	Diff     string                `json:"diff,omitempty"`
}

// RunSummaryJSON totals a run.
type RunSummaryJSON struct {
	Tables   int  `json:"tables"`
	Failed   int  `json:"failed"`
	Changed  int  `json:"changed"`
	Warnings int  `json:"warnings"`
	Success  bool `json:"success"`
}

func tableStatus(t *enrich.TableResult) string {
	switch {
	case t.Failed():
		return output.StatusFailed
	case t.CoverageFailed():
		return output.StatusWarning
	}
	return output.StatusSuccess
}

func newRunOutput(res *enrich.RunResult) RunOutput {
	out := RunOutput{
		ID:     res.ID,
		DryRun: res.DryRun,
		Tables: make([]TableOutput, 0, len(res.Tables)),
		Stats:  res.Stats(),
		Summary: RunSummaryJSON{
			Tables:   len(res.Tables),
			Failed:   len(res.Failed()),
			Changed:  res.Stats().Changed(),
			Warnings: len(res.Warnings()),
			Success:  res.Err() == nil,
		},
	}
	for _, t := range res.Tables {
		to := TableOutput{
			Name:     t.Name,
			Path:     t.Path,
			Status:   tableStatus(t),
			Changed:  t.Stats.Changed(),
			Written:  t.Written,
			Stats:    t.Stats,
			Coverage: t.Coverage,
			Diff:     t.Diff,
		}
		for _, w := range t.Warnings {
			to.Warnings = append(to.Warnings, w.Error())
		}
		if t.Err != nil {
			to.Error = t.Err.Error()
		}
		out.Tables = append(out.Tables, to)
	}
	for _, m := range res.Missing {
		out.Missing = append(out.Missing, m.Error())
	}
	return out
}

func renderRun(cmdCtx *CommandContext, res *enrich.RunResult) error {
	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(newRunOutput(res))
	}

	title := "Enrichment"
	if res.DryRun {
		title += " (dry run)"
	}
	r.Header(1, title)

	for _, t := range res.Tables {
		r.StatusLine(t.Name, tableStatus(t), tableDetail(t, res.DryRun))
	}
	r.Println("")

	if stats := res.Stats(); len(stats) > 0 {
		rows := make([][]string, 0, len(stats))
		for _, f := range stats.Fields() {
			c := stats[f]
			rows = append(rows, []string{f,
				fmt.Sprint(c.Added), fmt.Sprint(c.Updated), fmt.Sprint(c.Preserved), fmt.Sprint(c.Unresolved)})
		}
		r.Table([]string{"Field", "Added", "Updated", "Preserved", "Unresolved"}, rows)
	}

	if res.DryRun {
		for _, t := range res.Tables {
			if t.Diff != "" {
				r.Header(2, t.Name)
				r.CodeBlock("diff", t.Diff)
			}
		}
	}

	warnings := res.Warnings()
	if cmdCtx.Cfg.Verbose {
		for _, w := range warnings {
			r.Warning(w.Error())
		}
	} else if len(warnings) > 0 {
		r.Muted(fmt.Sprintf("%d warnings (use -v to list them)", len(warnings)))
	}
	for _, m := range res.Missing {
		r.Warning(m.Error())
	}
	for _, t := range res.Tables {
		if t.CoverageFailed() {
			r.Warning(fmt.Sprintf("%s: coverage below threshold: %s", t.Name, failingFields(t.Coverage)))
		}
	}

	summary := fmt.Sprintf("%d tables, %d changes", len(res.Tables), res.Stats().Changed())
	if failed := len(res.Failed()); failed > 0 {
		r.Error(fmt.Sprintf("%s, %d failed", summary, failed))
		return nil
	}
	r.Success(summary + fmt.Sprintf(" in %s", res.Completed.Sub(res.Started).Round(time.Millisecond)))
	return nil
}

func tableDetail(t *enrich.TableResult, dryRun bool) string {
	if t.Err != nil {
		return t.Err.Error()
	}
	changed := t.Stats.Changed()
	switch {
	case changed == 0:
		return "unchanged"
	case dryRun:
		return fmt.Sprintf("%d changes (not written)", changed)
	}
	return fmt.Sprintf("%d changes", changed)
}

func failingFields(rep *coverage.TableReport) string {
	var parts []string
	for _, fc := range rep.Fields {
		if !fc.Pass && fc.Threshold != nil {
			parts = append(parts, fmt.Sprintf("%s %s < %.0f%%", fc.Field, fc.PercentString(), *fc.Threshold))
		}
	}
	return strings.Join(parts, ", ")
}
