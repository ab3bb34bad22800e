package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// flagKeys maps flag names whose config key is not the snake_case of the name.
var flagKeys = map[string]string{
	"state":      "state_path",
	"fields":     "index.fields",
	"transforms": "index.transforms",
	"metrics":    "index.metrics",
}

// pathFlags are flags holding paths. When set explicitly they are relative
// to the working directory, not the project root.
var pathFlags = []string{"catalog-dir", "reference-dir", "state", "fields", "transforms", "metrics"}

// configExistsIn returns the config file in dir, or "" when there is none.
func configExistsIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Directory of an explicit --config file
//  2. Parent of --catalog-dir when it holds a config file
//  3. Search upward from CWD for enricher.yaml
//  4. Current working directory
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
		return filepath.Dir(cfgFile)
	}

	if flags != nil && flags.Changed("catalog-dir") {
		if dir, _ := flags.GetString("catalog-dir"); dir != "" {
			if abs, err := filepath.Abs(dir); err == nil {
				if parent := filepath.Dir(abs); configExistsIn(parent) != "" {
					return parent
				}
			}
		}
	}

	cwd, _ := os.Getwd()
	if cwd == "" {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, already absolute or in-memory.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// flagKey maps a flag to its config key: kebab-case becomes snake_case
// unless flagKeys says otherwise.
func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

// envKey maps ENRICHER_COVERAGE__THRESHOLDS__SOURCE to coverage.thresholds.source.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// LoadConfig loads configuration from defaults, the config file, environment
// variables and flags. Precedence (highest to lowest): flags > env vars >
// config file > defaults. An explicit cfgFile that does not exist is an
// error; a missing enricher.yaml is not.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	projectRoot := inferProjectRoot(cfgFile, flags)

	// Paths given as flags are relative to CWD. Capture them as absolute
	// paths before resolution against the project root.
	flagPaths := make(map[string]string)
	if flags != nil {
		for _, name := range pathFlags {
			if f := flags.Lookup(name); f != nil && f.Changed && f.Value.String() != "" {
				abs, err := filepath.Abs(f.Value.String())
				if err != nil {
					return nil, fmt.Errorf("invalid --%s: %w", name, err)
				}
				flagPaths[flagKey(name)] = abs
			}
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFile := cfgFile
	if configFile == "" {
		configFile = configExistsIn(projectRoot)
	} else if _, err := os.Stat(configFile); err != nil {
		return nil, fmt.Errorf("config file not found: %s", configFile)
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	// 3. Load environment variables (ENRICHER_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot
	cfg.ConfigFile = configFile

	// 6. Resolve relative paths
	resolve := func(key string, path *string) {
		if abs, ok := flagPaths[key]; ok {
			*path = abs
			return
		}
		*path = resolvePathRelativeTo(*path, projectRoot)
	}
	resolve("catalog_dir", &cfg.CatalogDir)
	resolve("reference_dir", &cfg.ReferenceDir)
	resolve("state_path", &cfg.StatePath)
	resolve("index.fields", &cfg.Index.Fields)
	resolve("index.transforms", &cfg.Index.Transforms)
	resolve("index.metrics", &cfg.Index.Metrics)

	if cfg.Publish != nil {
		expandPublishEnvVars(cfg.Publish)
		applyPublishDefaults(cfg.Publish)
		if cfg.Publish.fileBased() {
			cfg.Publish.Database = resolvePathRelativeTo(cfg.Publish.Database, projectRoot)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandPublishEnvVars expands environment variables in sensitive publish fields.
func expandPublishEnvVars(p *PublishConfig) {
	p.Password = expandEnvVars(p.Password)
	p.User = expandEnvVars(p.User)
	p.Host = expandEnvVars(p.Host)
	p.Database = expandEnvVars(p.Database)
}

// applyPublishDefaults applies type-specific defaults.
func applyPublishDefaults(p *PublishConfig) {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	switch p.Type {
	case "postgres":
		if p.Port == 0 {
			p.Port = 5432
		}
		if p.Schema == "" {
			p.Schema = "public"
		}
	case "duckdb":
		if p.Schema == "" {
			p.Schema = "main"
		}
	}
}

// configKey is used to store the loaded config in context.
type configKey struct{}

// WithConfig returns a context carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext returns the config stored by WithConfig, or nil.
func FromContext(ctx context.Context) *Config {
	if ctx == nil {
		return nil
	}
	cfg, _ := ctx.Value(configKey{}).(*Config)
	return cfg
}
