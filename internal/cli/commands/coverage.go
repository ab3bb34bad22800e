package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/cli/output"
	"github.com/LuisDee/catalog-enricher/internal/coverage"
	"github.com/spf13/cobra"
)

// CoverageOptions holds options for the coverage command.
type CoverageOptions struct {
	selectionFlags
	Thresholds []string
	Gaps       bool
}

// NewCoverageCommand creates the coverage command.
func NewCoverageCommand() *cobra.Command {
	opts := &CoverageOptions{}

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Report semantic field coverage per table",
		Long: `Report, per table, the share of columns carrying each semantic field.

typical_aggregation is measured over measures only, filterable over
non-measures only. A field with no applicable columns is reported as n/a and
never fails. The command exits non-zero when any table misses a threshold.`,
		Example: `  # Report coverage against the configured thresholds
  enricher coverage

  # Require full formula coverage on mart tables
  enricher coverage --layer mart --threshold formula=100

  # List the columns missing each failing field
  enricher coverage --gaps`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCoverage(cmd, opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringArrayVar(&opts.Thresholds, "threshold", nil, "Override a threshold as field=percent (repeatable)")
	cmd.Flags().BoolVar(&opts.Gaps, "gaps", false, "List the columns behind every failing field")

	return cmd
}

func runCoverage(cmd *cobra.Command, opts *CoverageOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	layer, err := opts.layer()
	if err != nil {
		return err
	}

	thresholds, err := cmdCtx.Cfg.Thresholds()
	if err != nil {
		return err
	}
	for _, s := range opts.Thresholds {
		field, pct, err := coverage.ParseThreshold(s)
		if err != nil {
			return err
		}
		thresholds[field] = pct
	}

	docs, loadErrs, err := cmdCtx.Repo.Documents()
	if err != nil {
		return err
	}
	var tables []*catalog.Table
	for _, doc := range docs {
		if opts.selects(doc.Table, layer) {
			tables = append(tables, doc.Table)
		}
	}
	for _, name := range opts.Tables {
		if !containsTable(tables, name) {
			loadErrs = append(loadErrs, &catalog.MissingInputError{Kind: "document", Table: name, Path: cmdCtx.Repo.CatalogDir()})
		}
	}

	rep := coverage.Build(tables, thresholds)
	if err := renderCoverage(cmdCtx.Renderer, rep, opts.Gaps, loadErrs); err != nil {
		return err
	}

	var errs []error
	errs = append(errs, loadErrs...)
	if !rep.Pass() {
		errs = append(errs, fmt.Errorf("coverage below threshold: %s", strings.Join(rep.Failed(), ", ")))
	}
	return errors.Join(errs...)
}

func containsTable(tables []*catalog.Table, name string) bool {
	for _, t := range tables {
		if t.Name == name {
			return true
		}
	}
	return false
}

// CoverageOutput is the JSON form of a coverage report.
type CoverageOutput struct {
	*coverage.Report
	Gaps   []coverage.Gap `json:"gaps,omitempty"`
	Errors []string       `json:"errors,omitempty"`
}

func renderCoverage(r *output.Renderer, rep *coverage.Report, gaps bool, loadErrs []error) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := CoverageOutput{Report: rep, Gaps: rep.Gaps()}
		for _, err := range loadErrs {
			out.Errors = append(out.Errors, err.Error())
		}
		return r.JSON(out)
	}

	r.Header(1, "Coverage")
	if len(rep.Tables) == 0 {
		r.Muted("No tables found.")
	} else {
		headers := []string{"Table", "Columns"}
		for _, f := range coverage.Fields {
			headers = append(headers, string(f))
		}
		headers = append(headers, "Status")

		rows := make([][]string, 0, len(rep.Tables)+1)
		for i := range rep.Tables {
			t := &rep.Tables[i]
			row := []string{t.Table, fmt.Sprint(t.Columns)}
			for _, f := range coverage.Fields {
				row = append(row, coverageCell(t, f))
			}
			status := "pass"
			if !t.Pass {
				status = "FAIL"
			}
			rows = append(rows, append(row, status))
		}
		r.Table(headers, rows)
	}

	if gaps {
		if all := rep.Gaps(); len(all) > 0 {
			r.Header(2, "Gaps")
			rows := make([][]string, 0, len(all))
			for _, g := range all {
				rows = append(rows, []string{g.Table, g.Column, string(g.Field)})
			}
			r.Table([]string{"Table", "Column", "Missing"}, rows)
		}
	}

	for _, err := range loadErrs {
		r.Warning(err.Error())
	}

	s := rep.Summary
	if rep.Pass() {
		r.Success(fmt.Sprintf("%d/%d tables pass", s.Passed, s.Tables))
	} else {
		r.Error(fmt.Sprintf("%d/%d tables below threshold", s.Failed, s.Tables))
	}
	return nil
}

func coverageCell(t *coverage.TableReport, f coverage.Field) string {
	fc, ok := t.Field(f)
	if !ok {
		return "-"
	}
	cell := fc.PercentString()
	if fc.Gated() {
		cell += fmt.Sprintf(" (>=%.0f%%)", *fc.Threshold)
		if !fc.Pass {
			cell += " !"
		}
	}
	return cell
}
