// Package config provides configuration management for the enricher CLI.
//
// Configuration is layered with koanf: built-in defaults, then
// enricher.yaml, then ENRICHER_* environment variables, then flags the user
// set explicitly. Relative paths are resolved against the project root, the
// directory holding enricher.yaml.
package config

import (
	"github.com/LuisDee/catalog-enricher/internal/coverage"
	"github.com/LuisDee/catalog-enricher/internal/describe"
	"github.com/LuisDee/catalog-enricher/internal/enrich"
)

// Config holds all CLI configuration options.
type Config struct {
	CatalogDir   string         `koanf:"catalog_dir"`
	ReferenceDir string         `koanf:"reference_dir"`
	Index        IndexConfig    `koanf:"index"`
	StatePath    string         `koanf:"state_path"`
	OutputFormat string         `koanf:"output"`
	Verbose      bool           `koanf:"verbose"`
	Coverage     CoverageConfig `koanf:"coverage"`
	Describe     DescribeConfig `koanf:"describe"`
	Patch        PatchConfig    `koanf:"patch"`
	Publish      *PublishConfig `koanf:"publish"`

	// Set by the loader, not read from configuration.
	ProjectRoot string `koanf:"-"`
	ConfigFile  string `koanf:"-"`
}

// IndexConfig locates the structural index files.
type IndexConfig struct {
	Fields     string `koanf:"fields"`
	Transforms string `koanf:"transforms"`
	Metrics    string `koanf:"metrics"`
}

// CoverageConfig holds the per-field coverage gates, in percent.
type CoverageConfig struct {
	Thresholds map[string]float64 `koanf:"thresholds"`
}

// DescribeConfig tunes description resolution.
type DescribeConfig struct {
	MinInformativeLength int `koanf:"min_informative_length"`
}

// PatchConfig tunes document patching.
type PatchConfig struct {
	ReplaceFields []string `koanf:"replace_fields"`
}

// PublishConfig holds the catalog publish target.
type PublishConfig struct {
	Type string `koanf:"type"` // duckdb, postgres, sqlite

	// File path for duckdb and sqlite, database name for postgres.
	Database string `koanf:"database"`

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Schema   string `koanf:"schema"`
	Table    string `koanf:"table"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// Config file names, in lookup order.
const (
	ConfigFileName    = "enricher.yaml"
	ConfigFileNameAlt = "enricher.yml"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: ENRICHER_INDEX__METRICS sets index.metrics.
const EnvPrefix = "ENRICHER_"

// Default configuration values.
const (
	DefaultCatalogDir      = "catalog"
	DefaultFieldsIndex     = "index/fields.yaml"
	DefaultTransformsIndex = "index/transforms.yaml"
	DefaultMetricsIndex    = "index/metrics.yaml"
	DefaultStateFile       = ".enricher/state.db"
	DefaultOutput          = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// defaults returns the lowest configuration layer.
func defaults() map[string]any {
	m := map[string]any{
		"catalog_dir":                     DefaultCatalogDir,
		"reference_dir":                   "",
		"index.fields":                    DefaultFieldsIndex,
		"index.transforms":                DefaultTransformsIndex,
		"index.metrics":                   DefaultMetricsIndex,
		"state_path":                      DefaultStateFile,
		"output":                          DefaultOutput,
		"verbose":                         false,
		"describe.min_informative_length": describe.DefaultMinInformativeLength,
		"patch.replace_fields":            append([]string(nil), enrich.DefaultReplaceFields...),
	}
	for field, pct := range coverage.DefaultThresholds() {
		m["coverage.thresholds."+string(field)] = pct
	}
	return m
}
