package trends

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposcope/internal/ai"
	"github.com/reposcope/internal/assembler"
	"github.com/reposcope/internal/core"
	"github.com/reposcope/pkg/models"
)

var repo = core.Repository{Owner: "octo", Name: "demo"}

type fakeProvider struct {
	classify    func(bundle *assembler.Bundle) (string, error)
	narrative   string
	narrativeOK bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, kind ai.TaskKind, bundle *assembler.Bundle) (string, error) {
	switch kind {
	case ai.TaskClassify:
		return f.classify(bundle)
	case ai.TaskTrendNarrative:
		if !f.narrativeOK {
			return "", core.ErrProviderUnavailable
		}
		return f.narrative, nil
	}
	return "", core.ErrContentRejected
}

type fakeSource struct {
	files map[string][]string
	fail  map[string]bool
}

func (f *fakeSource) GetCommit(_ context.Context, _ string, _ core.Repository, sha string) (*models.Commit, error) {
	if f.fail[sha] {
		return nil, core.ErrUpstreamTimeout
	}
	return &models.Commit{SHA: sha, Files: f.files[sha]}, nil
}

func TestClassifyMessage_Keywords(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"fix: null pointer in parser", "fix"},
		{"hotfix for prod outage", "fix"},
		{"feat: add trends endpoint", "feature"},
		{"optimize cache lookups", "perf"},
		{"refactor assembler internals", "refactor"},
		{"docs: update readme", "docs"},
		{"add integration tests", "test"},
		{"bump version", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyMessage(tc.message), tc.message)
	}
}

func TestAnalyze_HeuristicsOnly(t *testing.T) {
	commits := []models.Commit{
		{SHA: "a1", Message: "fix: crash on empty diff"},
		{SHA: "a2", Message: "feat: what-if chat mode"},
		{SHA: "a3", Message: "fix bug in key fingerprint"},
		{SHA: "a4", Message: "docs: architecture notes"},
	}
	p := &fakeProvider{
		classify:    func(*assembler.Bundle) (string, error) { t.Fatal("heuristics cover everything"); return "", nil },
		narrative:   "steady bugfix work",
		narrativeOK: true,
	}
	a := NewAggregator(&fakeSource{}, p, Options{})

	report, err := a.Analyze(context.Background(), "tok", repo, commits, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, report.CommitCount)
	assert.Equal(t, 0, report.Unclassified)
	assert.Equal(t, map[string]int{"fix": 2, "feature": 1, "docs": 1}, report.Statistics)
	assert.Equal(t, "steady bugfix work", report.Narrative)
}

func TestAnalyze_ProviderClassifiesLeftovers(t *testing.T) {
	commits := []models.Commit{
		{SHA: "a1", Message: "wip"},
		{SHA: "a2", Message: "fix: crash"},
		{SHA: "a3", Message: "misc changes"},
	}
	p := &fakeProvider{
		classify:    func(*assembler.Bundle) (string, error) { return `["other", "feature"]`, nil },
		narrativeOK: true,
	}
	a := NewAggregator(&fakeSource{}, p, Options{})

	report, err := a.Analyze(context.Background(), "tok", repo, commits, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Unclassified)
	assert.Equal(t, map[string]int{"other": 1, "fix": 1, "feature": 1}, report.Statistics)
}

func TestAnalyze_PartialTolerance(t *testing.T) {
	// 47 commits the heuristic can place, 3 it cannot; the provider batch
	// fails, so those 3 are reported unclassified and the rest survive.
	var commits []models.Commit
	for i := 0; i < 47; i++ {
		commits = append(commits, models.Commit{
			SHA:     fmt.Sprintf("sha%02d", i),
			Message: fmt.Sprintf("fix: issue %d", i),
		})
	}
	for i := 0; i < 3; i++ {
		commits = append(commits, models.Commit{
			SHA:     fmt.Sprintf("odd%d", i),
			Message: "assorted changes",
		})
	}
	p := &fakeProvider{
		classify:    func(*assembler.Bundle) (string, error) { return "", core.ErrProviderUnavailable },
		narrativeOK: true,
	}
	a := NewAggregator(&fakeSource{}, p, Options{})

	report, err := a.Analyze(context.Background(), "tok", repo, commits, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Unclassified)

	classified := 0
	for _, n := range report.Statistics {
		classified += n
	}
	assert.Equal(t, 47, classified)
}

func TestAnalyze_RepairedProviderJSON(t *testing.T) {
	commits := []models.Commit{
		{SHA: "a1", Message: "something unusual"},
		{SHA: "a2", Message: "more odd work"},
	}
	p := &fakeProvider{
		// Trailing comma and surrounding prose, as providers love to do.
		classify: func(*assembler.Bundle) (string, error) {
			return "Here you go:\n[\"other\", \"perf\",]", nil
		},
		narrativeOK: true,
	}
	a := NewAggregator(&fakeSource{}, p, Options{})

	report, err := a.Analyze(context.Background(), "tok", repo, commits, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"other": 1, "perf": 1}, report.Statistics)
}

func TestAnalyze_ActivityRanking(t *testing.T) {
	commits := []models.Commit{
		{SHA: "a1", Message: "fix: one"},
		{SHA: "a2", Message: "fix: two"},
		{SHA: "a3", Message: "fix: three"},
	}
	src := &fakeSource{
		files: map[string][]string{
			"a1": {"api/server.go", "api/routes.go"},
			"a2": {"api/server.go", "core/engine.go"},
			"a3": {"api/server.go", "README.md"},
		},
	}
	p := &fakeProvider{narrativeOK: true}
	a := NewAggregator(src, p, Options{TopK: 2})

	report, err := a.Analyze(context.Background(), "tok", repo, commits, 0)
	require.NoError(t, err)
	require.NotNil(t, report.Activity)

	require.Len(t, report.Activity.TopFiles, 2)
	assert.Equal(t, PathCount{Path: "api/server.go", Count: 3}, report.Activity.TopFiles[0])
	require.Len(t, report.Activity.TopModules, 2)
	assert.Equal(t, PathCount{Path: "api", Count: 4}, report.Activity.TopModules[0])
}

func TestAnalyze_ActivitySkipsFailedFetches(t *testing.T) {
	commits := []models.Commit{
		{SHA: "a1", Message: "fix: one"},
		{SHA: "a2", Message: "fix: two"},
	}
	src := &fakeSource{
		files: map[string][]string{"a1": {"pkg/a.go"}},
		fail:  map[string]bool{"a2": true},
	}
	p := &fakeProvider{narrativeOK: true}
	a := NewAggregator(src, p, Options{})

	report, err := a.Analyze(context.Background(), "tok", repo, commits, 0)
	require.NoError(t, err)
	require.NotNil(t, report.Activity)
	assert.Equal(t, []PathCount{{Path: "pkg/a.go", Count: 1}}, report.Activity.TopFiles)
}

func TestAnalyze_NarrativeFailureIsNotFatal(t *testing.T) {
	commits := []models.Commit{{SHA: "a1", Message: "fix: one"}}
	p := &fakeProvider{narrativeOK: false}
	a := NewAggregator(&fakeSource{}, p, Options{})

	report, err := a.Analyze(context.Background(), "tok", repo, commits, 0)
	require.NoError(t, err)
	assert.Empty(t, report.Narrative)
	assert.Equal(t, map[string]int{"fix": 1}, report.Statistics)
}

func TestAnalyze_EmptyWindowFails(t *testing.T) {
	a := NewAggregator(&fakeSource{}, &fakeProvider{narrativeOK: true}, Options{})
	_, err := a.Analyze(context.Background(), "tok", repo, nil, 0)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestParseCategoryArray(t *testing.T) {
	parsed, err := parseCategoryArray(`["fix","feature"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"fix", "feature"}, parsed)

	parsed, err = parseCategoryArray("```json\n[\"docs\"]\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, parsed)

	_, err = parseCategoryArray("no list here")
	assert.Error(t, err)
}
