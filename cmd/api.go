package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/reposcope/internal/ai"
	"github.com/reposcope/internal/api"
	"github.com/reposcope/internal/assembler"
	"github.com/reposcope/internal/cache"
	"github.com/reposcope/internal/config"
	"github.com/reposcope/internal/conversation"
	"github.com/reposcope/internal/engine"
	"github.com/reposcope/internal/github"
	"github.com/reposcope/internal/logging"
	"github.com/reposcope/internal/trends"
)

// APICommand returns the CLI command for starting the API server.
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the reposcope API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runAPI,
	}
}

func runAPI(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Server.LogFormat, cfg.Server.LogLevel)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}

	gh := github.NewClient(
		cfg.GitHub.BaseURL,
		time.Duration(cfg.GitHub.TimeoutSeconds)*time.Second,
		cfg.GitHub.RequestsPerSec,
	)
	oauth := github.NewOAuth(cfg.GitHub.OAuthURL, cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.StateSecret, gh)

	store := openStore(cfg)
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second

	base, err := ai.NewPerplexity(ai.PerplexityConfig{
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		BaseURL:     cfg.AI.BaseURL,
		Temperature: cfg.AI.Temperature,
		Timeout:     time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create analysis provider: %w", err)
	}
	provider := ai.NewResilient(base, cfg.AI.MaxRetries)

	asm := assembler.New(gh, assembler.Limits{
		MaxDiffChars:      cfg.Context.MaxDiffChars,
		MaxPrevDiffChars:  cfg.Context.MaxPrevDiffChars,
		MaxPRDiffChars:    cfg.Context.MaxPRDiffChars,
		MaxReadmeChars:    cfg.Context.MaxReadmeChars,
		MaxPrevFiles:      cfg.Context.MaxPrevFiles,
		MaxPrevFileChars:  cfg.Context.MaxPrevFileChars,
		MaxPrevTotalChars: cfg.Context.MaxPrevTotalChars,
		RecentCommits:     30,
	})
	orch := cache.NewOrchestrator(store, ttl, cfg.Cache.MaxEntryBytes)
	conv := conversation.NewManager(store, gh, cfg.Chat.HistoryLimit, ttl)
	agg := trends.NewAggregator(gh, provider, trends.Options{
		WindowSize:     cfg.Trends.WindowSize,
		ActivityWindow: cfg.Trends.ActivityWindow,
		TopK:           cfg.Trends.TopK,
		BatchSize:      cfg.Trends.BatchSize,
	})
	eng := engine.New(gh, asm, provider, orch, store, conv, agg, ttl)

	server := api.NewServer(port, gh, oauth, eng)
	return server.Start()
}

// openStore connects to Redis when configured, otherwise serves from an
// in-process store. A Redis that is down at boot is a warning, not a
// fatal error: caching is an optimization.
func openStore(cfg *config.Config) cache.Store {
	if cfg.Cache.RedisAddr == "" {
		log.Info().Msg("no redis configured, using in-process cache")
		return cache.NewMemoryStore()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := cache.NewRedisStore(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).
			Msg("redis unreachable, falling back to in-process cache")
		return cache.NewMemoryStore()
	}
	log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("connected to redis")
	return store
}
