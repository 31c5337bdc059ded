package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dameikle/tika/internal/types"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, types.DefaultLimits(), cfg.Limits())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := writeFile(t, "tika.yaml", `
maxDepth: 4
maxEmbedded: 50
output: rmeta
options:
  pdf.Extractor:
    extractAttachments: "false"
`)
	t.Setenv(EnvMaxDepth, "7")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxDepth)
	assert.Equal(t, 50, cfg.MaxEmbedded)
	assert.Equal(t, types.DefaultLimits().MaxBytes, cfg.MaxBytes)
	assert.Equal(t, OutputRMeta, cfg.Output)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "false", cfg.Options["pdf.Extractor"]["extractAttachments"])
}

func TestLoad_EnvFile(t *testing.T) {
	t.Cleanup(func() { os.Unsetenv(EnvMaxBytes) })
	env := writeFile(t, ".env", "TIKA_MAX_BYTES=1024\n")

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.MaxBytes)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "unknown field", yaml: "maxDeph: 3\n"},
		{name: "negative depth", yaml: "maxDepth: -1\n"},
		{name: "unknown output", yaml: "output: xml\n"},
		{name: "bad env int", env: map[string]string{EnvMaxEmbedded: "many"}},
		{name: "bad env bytes", env: map[string]string{EnvMaxBytes: "1GB"}},
		{name: "bad log level", env: map[string]string{EnvLogLevel: "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "tika.yaml", tt.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSetOption(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.SetOption("pdf.Extractor.extractAttachments=false"))
	require.NoError(t, cfg.SetOption("text.Extractor.fallbackCharset=ISO-8859-1"))
	require.NoError(t, cfg.SetOption("text.Extractor.minConfidence=50"))
	assert.Equal(t, map[string]map[string]string{
		"pdf.Extractor":  {"extractAttachments": "false"},
		"text.Extractor": {"fallbackCharset": "ISO-8859-1", "minConfidence": "50"},
	}, cfg.Options)

	for _, bad := range []string{"noequals", "nodot=1", ".key=1", "name.=1"} {
		assert.Error(t, cfg.SetOption(bad), bad)
	}
}
