package ai

import (
	"context"

	"github.com/reposcope/internal/assembler"
	"github.com/reposcope/internal/core"
	"github.com/reposcope/internal/retry"
)

// Resilient wraps a Provider with bounded retry and backoff. Only
// retryable failures (unavailable, rate limited, timeout) are retried;
// content rejections surface immediately.
type Resilient struct {
	inner Provider
	cfg   retry.Config
}

// NewResilient wraps provider with the given retry budget.
func NewResilient(provider Provider, maxRetries int) *Resilient {
	return &Resilient{inner: provider, cfg: retry.ProviderConfig(maxRetries)}
}

// Name returns the wrapped provider's name.
func (r *Resilient) Name() string {
	return r.inner.Name()
}

// Generate calls the wrapped provider, retrying retryable failures with
// exponential backoff. After exhaustion the last taxonomy error surfaces
// unchanged, never a partial result.
func (r *Resilient) Generate(ctx context.Context, kind TaskKind, bundle *assembler.Bundle) (string, error) {
	var out string
	result := retry.Do(ctx, r.cfg, func() error {
		var err error
		out, err = r.inner.Generate(ctx, kind, bundle)
		return err
	}, core.Retryable)

	if !result.Success {
		return "", result.LastError
	}
	return out, nil
}
