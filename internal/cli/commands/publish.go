package commands

import (
	"errors"
	"fmt"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/cli/config"
	"github.com/LuisDee/catalog-enricher/internal/cli/output"
	"github.com/LuisDee/catalog-enricher/internal/publish"
	"github.com/spf13/cobra"
)

// PublishOptions holds options for the publish command.
type PublishOptions struct {
	selectionFlags
	Target string
}

// NewPublishCommand creates the publish command.
func NewPublishCommand() *cobra.Command {
	opts := &PublishOptions{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the enriched catalog to a database",
		Long: `Write the catalog into the configured publish target, one row per column.

The rows of each published table are replaced in a single transaction, so
readers never see a partially published table. Configure the target in the
publish block of enricher.yaml.`,
		Example: `  # Publish every table
  enricher publish

  # Publish only mart tables
  enricher publish --layer mart`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd, opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.Target, "target", "", "Override the publish target type")
	_ = cmd.RegisterFlagCompletionFunc("target", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return publish.ListTargets(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runPublish(cmd *cobra.Command, opts *PublishOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if cmdCtx.Cfg.Publish == nil {
		return errors.New("no publish target configured: add a publish block to " + config.ConfigFileName)
	}
	layer, err := opts.layer()
	if err != nil {
		return err
	}

	targetCfg := cmdCtx.Cfg.Publish.Target()
	if opts.Target != "" {
		targetCfg.Type = opts.Target
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
	for _, err := range loadErrs {
		cmdCtx.Renderer.Warning(err.Error())
	}

	target, err := publish.NewTarget(targetCfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := target.Connect(ctx, targetCfg); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", targetCfg.Type, err)
	}
	defer func() { _ = target.Close() }()

	res, err := target.Publish(ctx, tables)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(res); err != nil {
			return err
		}
	} else {
		r.Success(fmt.Sprintf("Published %d tables (%d columns) to %s %s", res.Tables, res.Rows, res.Target, res.Table))
	}
	if len(loadErrs) > 0 {
		return fmt.Errorf("%d documents could not be read", len(loadErrs))
	}
	return nil
}
