// Package ai defines the analysis provider boundary: a slow, rate-limited
// service that turns an assembled context bundle into a natural-language
// (markdown) result.
package ai

import (
	"context"

	"github.com/reposcope/internal/assembler"
)

// TaskKind tells the provider what job the context bundle is for.
type TaskKind string

const (
	TaskCommitAnalysis TaskKind = "commit-analysis"
	TaskPRReview       TaskKind = "pr-review"
	TaskOverview       TaskKind = "overview"
	TaskTrendNarrative TaskKind = "trend-narrative"
	TaskClassify       TaskKind = "classify"
	TaskChat           TaskKind = "chat"
)

// Provider represents an AI service that answers over an assembled context
type Provider interface {
	// Generate renders the bundle into a prompt and returns the provider's
	// free-text result.
	Generate(ctx context.Context, kind TaskKind, bundle *assembler.Bundle) (string, error)

	// Name returns the provider's name
	Name() string
}
