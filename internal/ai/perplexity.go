package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/reposcope/internal/assembler"
	"github.com/reposcope/internal/core"
	"github.com/reposcope/internal/prompts"
)

// PerplexityConfig configures the OpenAI-compatible provider client.
type PerplexityConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

// Perplexity implements Provider against Perplexity's OpenAI-compatible
// chat completions API via langchaingo.
type Perplexity struct {
	llm         llms.Model
	model       string
	temperature float64
	timeout     time.Duration
}

// NewPerplexity builds the provider client.
func NewPerplexity(cfg PerplexityConfig) (*Perplexity, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "sonar-pro"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}

	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating provider client: %w", err)
	}

	return &Perplexity{
		llm:         llm,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// Name returns the provider's name
func (p *Perplexity) Name() string {
	return "perplexity"
}

// Generate renders the bundle and asks the model.
func (p *Perplexity) Generate(ctx context.Context, kind TaskKind, bundle *assembler.Bundle) (string, error) {
	prompt := prompts.Instruction(prompts.Kind(kind), nil)
	if prompt != "" {
		prompt += "\n\n"
	}
	prompt += bundle.Render()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	response, err := llms.GenerateFromSinglePrompt(ctx, p.llm, prompt,
		llms.WithTemperature(p.temperature))
	if err != nil {
		return "", classifyProviderError(err)
	}
	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("%w: empty response", core.ErrProviderUnavailable)
	}

	log.Debug().Str("task", string(kind)).Int("prompt_chars", len(prompt)).
		Int("response_chars", len(response)).Dur("elapsed", time.Since(start)).
		Msg("provider call complete")
	return response, nil
}

// classifyProviderError maps provider failures onto the taxonomy. The
// underlying client surfaces HTTP details only in the error string, so
// classification is substring-based.
func classifyProviderError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrUpstreamTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return fmt.Errorf("%w: %v", core.ErrProviderRateLimited, err)
	case strings.Contains(msg, "content"), strings.Contains(msg, "invalid_request"):
		return fmt.Errorf("%w: %v", core.ErrContentRejected, err)
	default:
		return fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
}
