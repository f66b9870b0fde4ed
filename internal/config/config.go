package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port      int    `koanf:"port"`
		LogFormat string `koanf:"log_format"`
		LogLevel  string `koanf:"log_level"`
	} `koanf:"server"`

	GitHub struct {
		BaseURL        string  `koanf:"base_url"`
		OAuthURL       string  `koanf:"oauth_url"`
		ClientID       string  `koanf:"client_id"`
		ClientSecret   string  `koanf:"client_secret"`
		StateSecret    string  `koanf:"state_secret"`
		TimeoutSeconds int     `koanf:"timeout_seconds"`
		RequestsPerSec float64 `koanf:"requests_per_sec"`
	} `koanf:"github"`

	AI struct {
		APIKey         string  `koanf:"api_key"`
		Model          string  `koanf:"model"`
		BaseURL        string  `koanf:"base_url"`
		Temperature    float64 `koanf:"temperature"`
		TimeoutSeconds int     `koanf:"timeout_seconds"`
		MaxRetries     int     `koanf:"max_retries"`
	} `koanf:"ai"`

	Cache struct {
		RedisAddr     string `koanf:"redis_addr"`
		RedisDB       int    `koanf:"redis_db"`
		TTLSeconds    int    `koanf:"ttl_seconds"`
		MaxEntryBytes int    `koanf:"max_entry_bytes"`
	} `koanf:"cache"`

	Context struct {
		MaxDiffChars      int `koanf:"max_diff_chars"`
		MaxPrevDiffChars  int `koanf:"max_prev_diff_chars"`
		MaxPRDiffChars    int `koanf:"max_pr_diff_chars"`
		MaxReadmeChars    int `koanf:"max_readme_chars"`
		MaxPrevFiles      int `koanf:"max_prev_files"`
		MaxPrevFileChars  int `koanf:"max_prev_file_chars"`
		MaxPrevTotalChars int `koanf:"max_prev_total_chars"`
	} `koanf:"context"`

	Chat struct {
		HistoryLimit int `koanf:"history_limit"`
	} `koanf:"chat"`

	Trends struct {
		WindowSize     int `koanf:"window_size"`
		ActivityWindow int `koanf:"activity_window"`
		TopK           int `koanf:"top_k"`
		BatchSize      int `koanf:"batch_size"`
	} `koanf:"trends"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":               8787,
		"server.log_format":         "console",
		"server.log_level":          "info",
		"github.base_url":           "https://api.github.com",
		"github.oauth_url":          "https://github.com/login/oauth/access_token",
		"github.timeout_seconds":    30,
		"github.requests_per_sec":   8.0,
		"ai.model":                  "sonar-pro",
		"ai.base_url":               "https://api.perplexity.ai",
		"ai.temperature":            0.2,
		"ai.timeout_seconds":        90,
		"ai.max_retries":            3,
		"cache.redis_addr":          "localhost:6379",
		"cache.redis_db":            0,
		"cache.ttl_seconds":         3600,
		"cache.max_entry_bytes":     1 << 20,
		"context.max_diff_chars":    60000,
		"context.max_prev_diff_chars":  15000,
		"context.max_pr_diff_chars":    80000,
		"context.max_readme_chars":     10000,
		"context.max_prev_files":       7,
		"context.max_prev_file_chars":  4000,
		"context.max_prev_total_chars": 25000,
		"chat.history_limit":        10,
		"trends.window_size":        50,
		"trends.activity_window":    200,
		"trends.top_k":              10,
		"trends.batch_size":         20,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try default locations - prioritize rsdata for containerized environments
		defaultPaths := []string{"./rsdata/reposcope.toml", "./reposcope.toml", "$HOME/.reposcope.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix REPOSCOPE_
	k.Load(env.Provider("REPOSCOPE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REPOSCOPE_")), "_", ".", 1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# RepoScope Configuration

[server]
port = 8787
log_format = "console"
log_level = "info"

[github]
client_id = "your-github-oauth-client-id"
client_secret = "your-github-oauth-client-secret"
state_secret = "random-string-used-to-sign-oauth-state"

[ai]
api_key = "your-provider-api-key"
model = "sonar-pro"
base_url = "https://api.perplexity.ai"
temperature = 0.2

[cache]
redis_addr = "localhost:6379"
ttl_seconds = 3600
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.AI.APIKey == "" {
		return fmt.Errorf("ai api_key is required")
	}
	if config.AI.Model == "" {
		return fmt.Errorf("ai model is required")
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", config.Server.Port)
	}
	if config.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache ttl_seconds must be positive")
	}
	if config.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat history_limit must be positive")
	}
	if config.Trends.WindowSize <= 0 || config.Trends.WindowSize > 100 {
		return fmt.Errorf("trends window_size must be in 1..100")
	}
	return nil
}
