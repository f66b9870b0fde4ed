package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reposcope.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[ai]
api_key = "pplx-test"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "pplx-test", cfg.AI.APIKey)

	// Untouched keys keep their defaults.
	assert.Equal(t, "https://api.github.com", cfg.GitHub.BaseURL)
	assert.Equal(t, "sonar-pro", cfg.AI.Model)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 60000, cfg.Context.MaxDiffChars)
	assert.Equal(t, 10, cfg.Chat.HistoryLimit)
	assert.Equal(t, 50, cfg.Trends.WindowSize)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[ai]
api_key = "from-file"
`)
	t.Setenv("REPOSCOPE_AI_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AI.APIKey)
}

func TestLoadConfig_MissingExplicitFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig(writeConfig(t, `
[ai]
api_key = "pplx-test"
`))
		require.NoError(t, err)
		return cfg
	}

	cfg := valid()
	assert.NoError(t, Validate(cfg))

	cfg = valid()
	cfg.AI.APIKey = ""
	assert.Error(t, Validate(cfg))

	cfg = valid()
	cfg.Server.Port = -1
	assert.Error(t, Validate(cfg))

	cfg = valid()
	cfg.Trends.WindowSize = 500
	assert.Error(t, Validate(cfg))
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reposcope.toml")
	require.NoError(t, InitConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8787, cfg.Server.Port)

	assert.Error(t, InitConfig(path), "refuses to overwrite an existing file")
}
