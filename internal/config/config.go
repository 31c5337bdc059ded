// Package config loads the command-line tool's settings.
//
// Sources are applied in order, later ones winning: built-in defaults, a YAML
// file, a .env file, then TIKA_* environment variables. Command-line flags are
// applied by the caller on top of the result.
package config

import (
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dameikle/tika/internal/types"
)

// Output formats understood by the extract command.
const (
	OutputJSON     = "json"
	OutputRMeta    = "rmeta"
	OutputMetadata = "metadata"
	OutputText     = "text"
)

// Environment variables read by Load.
const (
	EnvMaxDepth    = "TIKA_MAX_DEPTH"
	EnvMaxEmbedded = "TIKA_MAX_EMBEDDED"
	EnvMaxBytes    = "TIKA_MAX_BYTES"
	EnvLogLevel    = "TIKA_LOG_LEVEL"
	EnvOutput      = "TIKA_OUTPUT"
	EnvConcurrency = "TIKA_CONCURRENCY"
)

var outputs = []string{OutputJSON, OutputRMeta, OutputMetadata, OutputText}

var logLevels = []string{"debug", "info", "warn", "error"}

// Config holds the tool settings.
type Config struct {
	MaxDepth    int    `yaml:"maxDepth"`
	MaxEmbedded int    `yaml:"maxEmbedded"`
	MaxBytes    int64  `yaml:"maxBytes"`
	LogLevel    string `yaml:"logLevel"`
	Output      string `yaml:"output"`
	// Concurrency bounds how many files are extracted at once. Zero means
	// one per CPU.
	Concurrency int `yaml:"concurrency"`
	// Options holds per-extractor overrides keyed by extractor name.
	Options map[string]map[string]string `yaml:"options"`
}

// Default returns the built-in settings.
func Default() Config {
	l := types.DefaultLimits()
	return Config{
		MaxDepth:    l.MaxDepth,
		MaxEmbedded: l.MaxEmbedded,
		MaxBytes:    l.MaxBytes,
		LogLevel:    "warn",
		Output:      OutputJSON,
	}
}

// Load builds the settings from path (skipped when empty), the given .env
// files and the environment. With no env files, a .env in the working
// directory is loaded if present.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return cfg, errors.Wrap(err, "load env files")
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.MaxDepth, err = envInt(EnvMaxDepth, c.MaxDepth); err != nil {
		return err
	}
	if c.MaxEmbedded, err = envInt(EnvMaxEmbedded, c.MaxEmbedded); err != nil {
		return err
	}
	if c.Concurrency, err = envInt(EnvConcurrency, c.Concurrency); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvMaxBytes); ok {
		n, perr := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if perr != nil {
			return errors.Wrapf(perr, "%s=%q", EnvMaxBytes, v)
		}
		c.MaxBytes = n
	}
	c.LogLevel = getEnv(EnvLogLevel, c.LogLevel)
	c.Output = getEnv(EnvOutput, c.Output)
	return nil
}

// Validate rejects negative limits and unknown output formats or log levels.
func (c Config) Validate() error {
	switch {
	case c.MaxDepth < 0:
		return errors.Errorf("maxDepth must not be negative, got %d", c.MaxDepth)
	case c.MaxEmbedded < 0:
		return errors.Errorf("maxEmbedded must not be negative, got %d", c.MaxEmbedded)
	case c.MaxBytes < 0:
		return errors.Errorf("maxBytes must not be negative, got %d", c.MaxBytes)
	case c.Concurrency < 0:
		return errors.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if !slices.Contains(outputs, c.Output) {
		return errors.Errorf("unknown output %q, want one of %s", c.Output, strings.Join(outputs, ", "))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return errors.Errorf("unknown log level %q, want one of %s", c.LogLevel, strings.Join(logLevels, ", "))
	}
	return nil
}

// Limits returns the extraction limits.
func (c Config) Limits() types.Limits {
	return types.Limits{MaxDepth: c.MaxDepth, MaxEmbedded: c.MaxEmbedded, MaxBytes: c.MaxBytes}
}

// SetOption records an override in "extractor.key=value" form.
func (c *Config) SetOption(s string) error {
	kv, value, ok := strings.Cut(s, "=")
	if !ok {
		return errors.Errorf("option %q: want extractor.key=value", s)
	}
	i := strings.LastIndexByte(kv, '.')
	if i <= 0 || i == len(kv)-1 {
		return errors.Errorf("option %q: want extractor.key=value", s)
	}
	if c.Options == nil {
		c.Options = make(map[string]map[string]string)
	}
	name, key := kv[:i], kv[i+1:]
	if c.Options[name] == nil {
		c.Options[name] = make(map[string]string)
	}
	c.Options[name][key] = value
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, errors.Wrapf(err, "%s=%q", key, v)
	}
	return n, nil
}
