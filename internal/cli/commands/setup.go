// Package commands implements the enricher subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/cli/config"
	"github.com/LuisDee/catalog-enricher/internal/cli/output"
	"github.com/LuisDee/catalog-enricher/internal/enrich"
	"github.com/LuisDee/catalog-enricher/internal/repository"
	"github.com/spf13/cobra"
)

// CommandContext holds the shared dependencies of a command.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Repo     *repository.Repository
	Engine   *enrich.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with repository, engine and
// renderer. The config comes from the command context, or is loaded when
// the command runs outside the root command.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		var err error
		if cfg, err = config.LoadConfig("", nil); err != nil {
			return nil, err
		}
	}
	logger := config.GetLogger(cmd.Context())

	mode, err := output.ParseMode(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	repo := repository.New(cfg.CatalogDir, cfg.IndexPaths(), logger)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Repo:     repo,
		Engine:   enrich.New(repo, engineCfg, logger),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}, nil
}

// selectionFlags are the table filters shared by the catalog commands.
type selectionFlags struct {
	Tables []string
	Layer  string
}

func (s *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&s.Tables, "table", nil, "Only process these tables (repeatable)")
	cmd.Flags().StringVar(&s.Layer, "layer", "", "Only process tables in this layer (source|data|mart|reference)")
	_ = cmd.RegisterFlagCompletionFunc("layer", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"source", "data", "mart", "reference"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func (s *selectionFlags) layer() (catalog.Layer, error) {
	if s.Layer == "" {
		return "", nil
	}
	l := catalog.Layer(strings.ToLower(s.Layer))
	if !l.Valid() {
		return "", fmt.Errorf("invalid layer %q (valid: source, data, mart, reference)", s.Layer)
	}
	return l, nil
}

// selects reports whether a table passes the filters.
func (s *selectionFlags) selects(t *catalog.Table, layer catalog.Layer) bool {
	if layer != "" && t.Layer != layer {
		return false
	}
	if len(s.Tables) == 0 {
		return true
	}
	for _, name := range s.Tables {
		if name == t.Name {
			return true
		}
	}
	return false
}
