// Package trends classifies a window of recent commits into change
// categories and ranks file/module activity, producing partial results
// when individual classifications fail.
package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/reposcope/internal/ai"
	"github.com/reposcope/internal/assembler"
	"github.com/reposcope/internal/core"
	"github.com/reposcope/pkg/models"
)

// Categories is the closed set a commit can be classified into.
// Unclassified is not a category: it counts commits whose classification
// failed outright.
var Categories = []string{"feature", "fix", "refactor", "docs", "test", "perf", "other"}

const Unclassified = "unclassified"

// PathCount is one ranked entry in an activity listing.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Activity is the file/module modification-frequency ranking over the
// activity window.
type Activity struct {
	Narrative  string      `json:"analysis_text,omitempty"`
	TopFiles   []PathCount `json:"top_files"`
	TopModules []PathCount `json:"top_modules"`
}

// Report is the full trend analysis for one window.
type Report struct {
	Narrative    string         `json:"trends_analysis"`
	Statistics   map[string]int `json:"statistics"`
	CommitCount  int            `json:"commit_count"`
	Unclassified int            `json:"unclassified"`
	Activity     *Activity      `json:"activity_analysis,omitempty"`
}

// Source fetches the per-commit detail (touched files) for activity
// ranking. Satisfied by the GitHub client.
type Source interface {
	GetCommit(ctx context.Context, token string, repo core.Repository, sha string) (*models.Commit, error)
}

// Options bound the aggregator's work.
type Options struct {
	// WindowSize caps how many commits are classified. At most 100.
	WindowSize int
	// ActivityWindow caps how many commits contribute file activity.
	ActivityWindow int
	// TopK bounds the activity rankings.
	TopK int
	// BatchSize is how many heuristic leftovers go to the provider per call.
	BatchSize int
	// FetchConcurrency bounds parallel commit-detail fetches.
	FetchConcurrency int
}

// Aggregator folds a commit window into category statistics, activity
// rankings, and a provider-written narrative.
type Aggregator struct {
	source   Source
	provider ai.Provider
	opts     Options
}

func NewAggregator(source Source, provider ai.Provider, opts Options) *Aggregator {
	if opts.WindowSize <= 0 || opts.WindowSize > 100 {
		opts.WindowSize = 50
	}
	if opts.ActivityWindow <= 0 {
		opts.ActivityWindow = 200
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 8
	}
	return &Aggregator{source: source, provider: provider, opts: opts}
}

// ClassifyMessage places a commit message into a category by keyword, or
// returns "" when no keyword matches and the provider should decide.
func ClassifyMessage(message string) string {
	m := strings.ToLower(message)
	contains := func(keywords ...string) bool {
		for _, k := range keywords {
			if strings.Contains(m, k) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("fix", "bug", "hotfix"):
		return "fix"
	case contains("feat", "feature"):
		return "feature"
	case contains("perf", "performance", "optimize"):
		return "perf"
	case contains("refactor", "style", "format"):
		return "refactor"
	case contains("docs", "doc:", "readme", "comment"):
		return "docs"
	case contains("test"):
		return "test"
	}
	return ""
}

// Analyze classifies commits (newest first, capped at the window size),
// ranks file activity, and asks the provider for a narrative. Individual
// classification failures become the unclassified count; only a window
// that cannot be assembled at all fails.
func (a *Aggregator) Analyze(ctx context.Context, token string, repo core.Repository, commits []models.Commit, limit int) (*Report, error) {
	if len(commits) == 0 {
		return nil, fmt.Errorf("trend window for %s: %w", repo, core.ErrNotFound)
	}
	window := a.opts.WindowSize
	if limit > 0 && limit < window {
		window = limit
	}
	if len(commits) < window {
		window = len(commits)
	}
	recent := commits[:window]

	categories, unclassified := a.classify(ctx, recent)

	stats := make(map[string]int)
	for _, c := range categories {
		if c != Unclassified {
			stats[c]++
		}
	}

	activity := a.fileActivity(ctx, token, repo, commits)

	report := &Report{
		Statistics:   stats,
		CommitCount:  window,
		Unclassified: unclassified,
		Activity:     activity,
	}
	report.Narrative = a.narrative(ctx, recent, categories, report)
	return report, nil
}

// classify returns one category per commit, heuristics first, provider
// batches for the rest. A failed batch marks its commits unclassified.
func (a *Aggregator) classify(ctx context.Context, commits []models.Commit) ([]string, int) {
	categories := make([]string, len(commits))
	var pending []int
	for i, c := range commits {
		if cat := ClassifyMessage(c.Message); cat != "" {
			categories[i] = cat
		} else {
			pending = append(pending, i)
		}
	}

	unclassified := 0
	for start := 0; start < len(pending); start += a.opts.BatchSize {
		end := start + a.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		results, err := a.classifyBatch(ctx, commits, batch)
		if err != nil {
			log.Warn().Err(err).Int("commits", len(batch)).Msg("classification batch failed")
			for _, idx := range batch {
				categories[idx] = Unclassified
			}
			unclassified += len(batch)
			continue
		}
		for j, idx := range batch {
			categories[idx] = results[j]
		}
	}
	return categories, unclassified
}

func (a *Aggregator) classifyBatch(ctx context.Context, commits []models.Commit, batch []int) ([]string, error) {
	var sb strings.Builder
	for j, idx := range batch {
		fmt.Fprintf(&sb, "%d. %s\n", j+1, commits[idx].Subject())
	}

	bundle := &assembler.Bundle{}
	bundle.Add("Categories", strings.Join(Categories, ", "))
	bundle.Add("Commit Messages", sb.String())

	answer, err := a.provider.Generate(ctx, ai.TaskClassify, bundle)
	if err != nil {
		return nil, err
	}
	parsed, err := parseCategoryArray(answer)
	if err != nil {
		return nil, err
	}
	if len(parsed) != len(batch) {
		return nil, fmt.Errorf("classification returned %d categories for %d commits", len(parsed), len(batch))
	}

	valid := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		valid[c] = true
	}
	results := make([]string, len(parsed))
	for i, c := range parsed {
		c = strings.ToLower(strings.TrimSpace(c))
		if !valid[c] {
			c = "other"
		}
		results[i] = c
	}
	return results, nil
}

// parseCategoryArray extracts a JSON string array from a provider answer,
// repairing malformed JSON before giving up.
func parseCategoryArray(answer string) ([]string, error) {
	text := strings.TrimSpace(answer)
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			text = text[start : end+1]
		}
	}

	var parsed []string
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, nil
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, fmt.Errorf("unparseable classification answer: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, fmt.Errorf("unparseable classification answer after repair: %w", err)
	}
	return parsed, nil
}

// fileActivity fetches commit details concurrently and counts touched
// files and their top-level modules. Failed fetches are skipped.
func (a *Aggregator) fileActivity(ctx context.Context, token string, repo core.Repository, commits []models.Commit) *Activity {
	window := a.opts.ActivityWindow
	if len(commits) < window {
		window = len(commits)
	}

	files := make([][]string, window)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.FetchConcurrency)
	for i := 0; i < window; i++ {
		g.Go(func() error {
			detail, err := a.source.GetCommit(gctx, token, repo, commits[i].SHA)
			if err != nil {
				log.Debug().Err(err).Str("sha", commits[i].SHA).Msg("skipping commit in activity analysis")
				return nil
			}
			files[i] = detail.Files
			return nil
		})
	}
	_ = g.Wait()

	fileCounts := make(map[string]int)
	moduleCounts := make(map[string]int)
	for _, list := range files {
		for _, path := range list {
			fileCounts[path]++
			if module, _, found := strings.Cut(path, "/"); found && module != "" {
				moduleCounts[module]++
			} else {
				moduleCounts[path]++
			}
		}
	}
	if len(fileCounts) == 0 {
		return nil
	}
	return &Activity{
		TopFiles:   topK(fileCounts, a.opts.TopK),
		TopModules: topK(moduleCounts, a.opts.TopK),
	}
}

// topK ranks counts descending, ties broken by path for determinism.
func topK(counts map[string]int, k int) []PathCount {
	ranked := make([]PathCount, 0, len(counts))
	for path, count := range counts {
		ranked = append(ranked, PathCount{Path: path, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Path < ranked[j].Path
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// narrative asks the provider for the trend report. A provider failure
// leaves the narrative empty rather than failing the window.
func (a *Aggregator) narrative(ctx context.Context, commits []models.Commit, categories []string, report *Report) string {
	var stats strings.Builder
	for _, cat := range Categories {
		if n := report.Statistics[cat]; n > 0 {
			fmt.Fprintf(&stats, "- %s: %d\n", cat, n)
		}
	}
	if report.Unclassified > 0 {
		fmt.Fprintf(&stats, "- %s: %d\n", Unclassified, report.Unclassified)
	}

	var listing strings.Builder
	for i, c := range commits {
		fmt.Fprintf(&listing, "- %s (%s)\n", c.Subject(), categories[i])
	}

	bundle := &assembler.Bundle{}
	bundle.Add("Category Statistics", stats.String())
	bundle.Add("Recent Commits", listing.String())
	if report.Activity != nil {
		var act strings.Builder
		act.WriteString("Most changed files:\n")
		for _, f := range report.Activity.TopFiles {
			fmt.Fprintf(&act, "- %s: %d\n", f.Path, f.Count)
		}
		act.WriteString("Most active modules:\n")
		for _, m := range report.Activity.TopModules {
			fmt.Fprintf(&act, "- %s: %d\n", m.Path, m.Count)
		}
		bundle.Add("File Activity", act.String())
	}

	answer, err := a.provider.Generate(ctx, ai.TaskTrendNarrative, bundle)
	if err != nil {
		log.Warn().Err(err).Msg("trend narrative generation failed")
		return ""
	}
	return answer
}
