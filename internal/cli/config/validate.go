package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/coverage"
	"github.com/LuisDee/catalog-enricher/internal/describe"
	"github.com/LuisDee/catalog-enricher/internal/enrich"
	"github.com/LuisDee/catalog-enricher/internal/index"
	"github.com/LuisDee/catalog-enricher/internal/publish"
)

var validOutputs = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.CatalogDir == "" {
		errs = append(errs, fmt.Errorf("catalog_dir is required"))
	}

	validOutput := false
	for _, o := range validOutputs {
		if c.OutputFormat == o {
			validOutput = true
		}
	}
	if !validOutput {
		errs = append(errs, fmt.Errorf("invalid output %q (valid: %s)", c.OutputFormat, strings.Join(validOutputs, ", ")))
	}

	if _, err := c.Thresholds(); err != nil {
		errs = append(errs, err)
	}

	if c.Describe.MinInformativeLength < 0 {
		errs = append(errs, fmt.Errorf("describe.min_informative_length must not be negative"))
	}

	for _, f := range c.Patch.ReplaceFields {
		if catalog.FieldRank(f) == len(catalog.FieldOrder) || f == catalog.FieldName || f == catalog.FieldType {
			errs = append(errs, fmt.Errorf("patch.replace_fields: %q is not an enrichable field", f))
		}
	}

	if c.Publish != nil && c.Publish.Type != "" && !publish.IsRegistered(c.Publish.Type) {
		errs = append(errs, &publish.UnknownTargetError{Type: c.Publish.Type, Available: publish.ListTargets()})
	}

	return errors.Join(errs...)
}

// ValidateDirectories checks if required directories exist.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.CatalogDir); os.IsNotExist(err) {
		return fmt.Errorf("catalog directory does not exist: %s\nHint: Create the directory or use --catalog-dir to specify a different path", c.CatalogDir)
	}
	return nil
}

// Thresholds returns the coverage gates keyed by field.
func (c *Config) Thresholds() (coverage.Thresholds, error) {
	out := make(coverage.Thresholds, len(c.Coverage.Thresholds))
	for name, pct := range c.Coverage.Thresholds {
		field, err := coverage.ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("coverage.thresholds: %w", err)
		}
		if pct < 0 || pct > 100 {
			return nil, fmt.Errorf("coverage.thresholds.%s: percent must be between 0 and 100", name)
		}
		out[field] = pct
	}
	return out, nil
}

// IndexPaths returns the structural index locations.
func (c *Config) IndexPaths() index.Paths {
	return index.Paths{
		Fields:     c.Index.Fields,
		Transforms: c.Index.Transforms,
		Metrics:    c.Index.Metrics,
		Reference:  c.ReferenceDir,
	}
}

// EngineConfig returns the enrichment engine settings.
func (c *Config) EngineConfig() (enrich.Config, error) {
	th, err := c.Thresholds()
	if err != nil {
		return enrich.Config{}, err
	}
	return enrich.Config{
		ReplaceFields: c.Patch.ReplaceFields,
		Describe:      describe.Options{MinInformativeLength: c.Describe.MinInformativeLength},
		Thresholds:    th,
	}, nil
}

// fileBased reports whether Database names a file rather than a server database.
func (p *PublishConfig) fileBased() bool {
	return p.Type == "duckdb" || p.Type == "sqlite"
}

// Target returns the publish target configuration.
func (p *PublishConfig) Target() publish.Config {
	cfg := publish.Config{
		Type:     p.Type,
		Host:     p.Host,
		Port:     p.Port,
		Username: p.User,
		Password: p.Password,
		Schema:   p.Schema,
		Table:    p.Table,
		Options:  p.Options,
	}
	if p.fileBased() {
		cfg.Path = p.Database
	} else {
		cfg.Database = p.Database
	}
	return cfg
}
