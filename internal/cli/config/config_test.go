package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/coverage"
	"github.com/LuisDee/catalog-enricher/internal/publish"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFlags mirrors the persistent flags of the root command.
func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("catalog-dir", "", "")
	fs.String("reference-dir", "", "")
	fs.String("state", "", "")
	fs.String("fields", "", "")
	fs.String("transforms", "", "")
	fs.String("metrics", "", "")
	fs.StringP("output", "o", "", "")
	fs.BoolP("verbose", "v", false, "")
	return fs
}

func realPath(t *testing.T, p string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return resolved
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, realPath(t, tmp), realPath(t, cfg.ProjectRoot))
	assert.Empty(t, cfg.ConfigFile)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, DefaultCatalogDir), cfg.CatalogDir)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, DefaultMetricsIndex), cfg.Index.Metrics)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, DefaultStateFile), cfg.StatePath)
	assert.Empty(t, cfg.ReferenceDir)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, 40, cfg.Describe.MinInformativeLength)
	assert.Equal(t, []string{catalog.FieldFormula, catalog.FieldRelated}, cfg.Patch.ReplaceFields)
	assert.Nil(t, cfg.Publish)

	th, err := cfg.Thresholds()
	require.NoError(t, err)
	assert.Equal(t, coverage.DefaultThresholds(), th)
}

func TestLoadConfig_FileFoundUpward(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
catalog_dir: tables
reference_dir: ref
index:
  metrics: specs/metrics.yaml
coverage:
  thresholds:
    source: 50
describe:
  min_informative_length: 25
patch:
  replace_fields: [formula]
publish:
  type: postgres
  database: catalog
  password: ${ENRICHER_TEST_PASSWORD}
`)
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)
	t.Setenv("ENRICHER_TEST_PASSWORD", "s3cret")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, realPath(t, root), realPath(t, cfg.ProjectRoot))
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, ConfigFileName), cfg.ConfigFile)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "tables"), cfg.CatalogDir)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "ref"), cfg.ReferenceDir)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "specs", "metrics.yaml"), cfg.Index.Metrics)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, DefaultFieldsIndex), cfg.Index.Fields, "unset keys keep defaults")
	assert.Equal(t, 25, cfg.Describe.MinInformativeLength)
	assert.Equal(t, []string{"formula"}, cfg.Patch.ReplaceFields)

	th, err := cfg.Thresholds()
	require.NoError(t, err)
	assert.Equal(t, 50.0, th[coverage.FieldSource])
	assert.Equal(t, 95.0, th[coverage.FieldCategory], "file thresholds merge with defaults")

	require.NotNil(t, cfg.Publish)
	assert.Equal(t, "s3cret", cfg.Publish.Password)
	assert.Equal(t, 5432, cfg.Publish.Port)
	assert.Equal(t, "public", cfg.Publish.Schema)

	target := cfg.Publish.Target()
	assert.Equal(t, "catalog", target.Database)
	assert.Empty(t, target.Path)

	paths := cfg.IndexPaths()
	assert.Equal(t, cfg.ReferenceDir, paths.Reference)
	assert.Equal(t, cfg.Index.Metrics, paths.Metrics)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "catalog_dir: tables\noutput: text\n")
	t.Chdir(root)
	t.Setenv("ENRICHER_CATALOG_DIR", "envtables")
	t.Setenv("ENRICHER_COVERAGE__THRESHOLDS__CATEGORY", "10")
	t.Setenv("ENRICHER_INDEX__FIELDS", "/abs/fields.yaml")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "envtables"), cfg.CatalogDir)
	assert.Equal(t, "/abs/fields.yaml", cfg.Index.Fields)
	assert.Equal(t, "text", cfg.OutputFormat)

	th, err := cfg.Thresholds()
	require.NoError(t, err)
	assert.Equal(t, 10.0, th[coverage.FieldCategory])
}

func TestLoadConfig_FlagsOverrideEverything(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "catalog_dir: tables\nstate_path: from-file.db\n")
	work := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))
	t.Chdir(work)
	t.Setenv("ENRICHER_OUTPUT", "markdown")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{
		"--catalog-dir", "mycat",
		"--state", "run.db",
		"--metrics", "m.yaml",
		"-o", "json",
		"-v",
	}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, realPath(t, root), realPath(t, cfg.ProjectRoot))
	assert.Equal(t, filepath.Join(wd, "mycat"), cfg.CatalogDir, "flag paths are relative to the working directory")
	assert.Equal(t, filepath.Join(wd, "run.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(wd, "m.yaml"), cfg.Index.Metrics)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_UnchangedFlagsDoNotOverride(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "output: text\n")
	t.Chdir(root)

	flags := newFlags()
	require.NoError(t, flags.Parse(nil))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.OutputFormat)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, "catalog_dir: docs\npublish:\n  type: duckdb\n  database: out/catalog.duckdb\n")
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, realPath(t, root), realPath(t, cfg.ProjectRoot))
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "docs"), cfg.CatalogDir)

	require.NotNil(t, cfg.Publish)
	target := cfg.Publish.Target()
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "out", "catalog.duckdb"), target.Path)
	assert.Equal(t, "main", target.Schema)

	_, err = LoadConfig(filepath.Join(root, "missing.yaml"), nil)
	assert.ErrorContains(t, err, "config file not found")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "catalog_dir: [unclosed\n")
	t.Chdir(root)

	_, err := LoadConfig("", nil)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			CatalogDir:   "catalog",
			OutputFormat: "auto",
			Coverage:     CoverageConfig{Thresholds: map[string]float64{"category": 95}},
			Patch:        PatchConfig{ReplaceFields: []string{"formula"}},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "aggregation alias", mutate: func(c *Config) { c.Coverage.Thresholds = map[string]float64{"aggregation": 50} }},
		{name: "missing catalog dir", mutate: func(c *Config) { c.CatalogDir = "" }, errSubstr: "catalog_dir is required"},
		{name: "bad output", mutate: func(c *Config) { c.OutputFormat = "yaml" }, errSubstr: `invalid output "yaml"`},
		{name: "unknown threshold field", mutate: func(c *Config) { c.Coverage.Thresholds = map[string]float64{"colour": 1} }, errSubstr: "unknown coverage field"},
		{name: "threshold out of range", mutate: func(c *Config) { c.Coverage.Thresholds = map[string]float64{"source": 101} }, errSubstr: "between 0 and 100"},
		{name: "negative min length", mutate: func(c *Config) { c.Describe.MinInformativeLength = -1 }, errSubstr: "must not be negative"},
		{name: "replace name", mutate: func(c *Config) { c.Patch.ReplaceFields = []string{"name"} }, errSubstr: "not an enrichable field"},
		{name: "replace unknown", mutate: func(c *Config) { c.Patch.ReplaceFields = []string{"colour"} }, errSubstr: "not an enrichable field"},
		{name: "unknown publish type", mutate: func(c *Config) { c.Publish = &PublishConfig{Type: "oracle"} }, errSubstr: "unknown publish target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errSubstr)
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{OutputFormat: "yaml", Publish: &PublishConfig{Type: "oracle"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "catalog_dir is required")
	assert.ErrorContains(t, err, "invalid output")

	var unknown *publish.UnknownTargetError
	assert.True(t, errors.As(err, &unknown))
}

func TestConfig_ValidateDirectories(t *testing.T) {
	cfg := &Config{CatalogDir: filepath.Join(t.TempDir(), "nope")}
	assert.ErrorContains(t, cfg.ValidateDirectories(), "catalog directory does not exist")

	cfg.CatalogDir = t.TempDir()
	assert.NoError(t, cfg.ValidateDirectories())
}

func TestConfig_EngineConfig(t *testing.T) {
	cfg := &Config{
		Coverage: CoverageConfig{Thresholds: map[string]float64{"formula": 80}},
		Describe: DescribeConfig{MinInformativeLength: 12},
		Patch:    PatchConfig{ReplaceFields: []string{"related_columns"}},
	}
	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, coverage.Thresholds{coverage.FieldFormula: 80}, ec.Thresholds)
	assert.Equal(t, 12, ec.Describe.MinInformativeLength)
	assert.Equal(t, []string{"related_columns"}, ec.ReplaceFields)
}

func TestKeyMapping(t *testing.T) {
	assert.Equal(t, "catalog_dir", flagKey("catalog-dir"))
	assert.Equal(t, "state_path", flagKey("state"))
	assert.Equal(t, "index.transforms", flagKey("transforms"))
	assert.Equal(t, "output", flagKey("output"))

	assert.Equal(t, "catalog_dir", envKey("ENRICHER_CATALOG_DIR"))
	assert.Equal(t, "publish.password", envKey("ENRICHER_PUBLISH__PASSWORD"))
	assert.Equal(t, "describe.min_informative_length", envKey("ENRICHER_DESCRIBE__MIN_INFORMATIVE_LENGTH"))
}

func TestResolvePathRelativeTo(t *testing.T) {
	assert.Equal(t, "", resolvePathRelativeTo("", "/root"))
	assert.Equal(t, ":memory:", resolvePathRelativeTo(":memory:", "/root"))
	assert.Equal(t, "/abs/x", resolvePathRelativeTo("/abs/x", "/root"))
	assert.Equal(t, filepath.Join("/root", "rel"), resolvePathRelativeTo("rel", "/root"))
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ENRICHER_TEST_HOST", "db.internal")
	assert.Equal(t, "db.internal:5432", expandEnvVars("${ENRICHER_TEST_HOST}:5432"))
	assert.Equal(t, "${ENRICHER_TEST_UNSET_VAR}", expandEnvVars("${ENRICHER_TEST_UNSET_VAR}"))
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()), "falls back to a discard logger")
}

func TestConfigContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	cfg := &Config{CatalogDir: "catalog"}
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
