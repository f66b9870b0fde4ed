package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposcope/internal/ai"
	"github.com/reposcope/internal/assembler"
	"github.com/reposcope/internal/cache"
	"github.com/reposcope/internal/conversation"
	"github.com/reposcope/internal/core"
	"github.com/reposcope/internal/trends"
	"github.com/reposcope/pkg/models"
)

var repo = core.Repository{Owner: "octo", Name: "demo"}

// fakeUpstream serves canned GitHub data and counts listing calls.
type fakeUpstream struct {
	commits   []models.Commit
	diffs     map[string]string
	pr        *models.PullRequest
	prDiff    string
	listCalls int
	comments  []string
}

func (f *fakeUpstream) ListCommits(context.Context, string, core.Repository, string) ([]models.Commit, error) {
	f.listCalls++
	return f.commits, nil
}

func (f *fakeUpstream) GetCommit(_ context.Context, _ string, _ core.Repository, sha string) (*models.Commit, error) {
	for _, c := range f.commits {
		if c.SHA == sha {
			return &c, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeUpstream) GetCommitDiff(_ context.Context, _ string, _ core.Repository, sha string) (string, error) {
	d, ok := f.diffs[sha]
	if !ok {
		return "", core.ErrNotFound
	}
	return d, nil
}

func (f *fakeUpstream) GetPullRequest(context.Context, string, core.Repository, int) (*models.PullRequest, error) {
	if f.pr == nil {
		return nil, core.ErrNotFound
	}
	return f.pr, nil
}

func (f *fakeUpstream) GetPullRequestDiff(context.Context, string, core.Repository, int) (string, error) {
	return f.prDiff, nil
}

func (f *fakeUpstream) PostIssueComment(_ context.Context, _ string, _ core.Repository, _ int, body string) (string, error) {
	f.comments = append(f.comments, body)
	return "https://example.test/comment/1", nil
}

func (f *fakeUpstream) GetFileContent(context.Context, string, core.Repository, string, string) (string, error) {
	return "", core.ErrNotFound
}

func (f *fakeUpstream) GetReadme(context.Context, string, core.Repository) (string, error) {
	return "# demo\nA test repository.", nil
}

// countingProvider answers every task and counts calls.
type countingProvider struct {
	calls   int
	answers map[ai.TaskKind]string
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Generate(_ context.Context, kind ai.TaskKind, _ *assembler.Bundle) (string, error) {
	p.calls++
	if a, ok := p.answers[kind]; ok {
		return a, nil
	}
	return "generated answer", nil
}

func diffFor(path string) string {
	return fmt.Sprintf("diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n@@ -1 +1 @@\n-old\n+new\n", path, path, path, path)
}

func newTestEngine(up *fakeUpstream, p ai.Provider) *Engine {
	store := cache.NewMemoryStore()
	asm := assembler.New(up, assembler.DefaultLimits())
	orch := cache.NewOrchestrator(store, time.Hour, 1<<20)
	conv := conversation.NewManager(store, up, 10, time.Hour)
	agg := trends.NewAggregator(up, p, trends.Options{})
	return New(up, asm, p, orch, store, conv, agg, time.Hour)
}

func threeCommits() *fakeUpstream {
	return &fakeUpstream{
		commits: []models.Commit{
			{SHA: "ccc3333", Message: "feat: newest"},
			{SHA: "bbb2222", Message: "fix: middle"},
			{SHA: "aaa1111", Message: "docs: oldest"},
		},
		diffs: map[string]string{
			"ccc3333": diffFor("api/server.go"),
			"bbb2222": diffFor("core/engine.go"),
			"aaa1111": diffFor("README.md"),
		},
	}
}

func TestAnalyzeCommit_NumbersAndCaching(t *testing.T) {
	up := threeCommits()
	p := &countingProvider{}
	e := newTestEngine(up, p)
	ctx := context.Background()

	result, err := e.AnalyzeCommit(ctx, "tok", repo, "bbb2222")
	require.NoError(t, err)
	assert.Equal(t, "bbb2222", result.SHA)
	assert.Equal(t, 2, result.CommitNumber)
	assert.Equal(t, 1, result.PreviousCommitNumber)
	assert.Equal(t, up.diffs["bbb2222"], result.Diff)
	assert.Equal(t, up.diffs["aaa1111"], result.PreviousDiff)
	assert.Equal(t, 1, p.calls)

	again, err := e.AnalyzeCommit(ctx, "tok", repo, "bbb2222")
	require.NoError(t, err)
	assert.Equal(t, result, again)
	assert.Equal(t, 1, p.calls, "second call must hit the cache")
}

func TestAnalyzeCommit_OldestHasNoBaseline(t *testing.T) {
	up := threeCommits()
	e := newTestEngine(up, &countingProvider{})

	result, err := e.AnalyzeCommit(context.Background(), "tok", repo, "aaa1111")
	require.NoError(t, err)
	assert.Equal(t, 1, result.CommitNumber)
	assert.Zero(t, result.PreviousCommitNumber)
	assert.Empty(t, result.PreviousDiff)
}

func TestCommitListCachedAcrossOperations(t *testing.T) {
	up := threeCommits()
	e := newTestEngine(up, &countingProvider{})
	ctx := context.Background()

	_, err := e.AnalyzeCommit(ctx, "tok", repo, "ccc3333")
	require.NoError(t, err)
	_, err = e.Overview(ctx, "tok", repo)
	require.NoError(t, err)
	assert.Equal(t, 1, up.listCalls)
}

func TestAnalyzePullRequest_KeyedOnHeadSHA(t *testing.T) {
	up := threeCommits()
	up.pr = &models.PullRequest{Number: 7, Title: "Add engine", HeadSHA: "ccc3333"}
	up.prDiff = diffFor("internal/engine/engine.go")
	p := &countingProvider{}
	e := newTestEngine(up, p)
	ctx := context.Background()

	result, err := e.AnalyzePullRequest(ctx, "tok", repo, 7)
	require.NoError(t, err)
	assert.Equal(t, "ccc3333", result.SHA)
	assert.Equal(t, 1, p.calls)

	_, err = e.AnalyzePullRequest(ctx, "tok", repo, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)

	// A new push moves the head sha and invalidates the cached review.
	up.pr.HeadSHA = "ddd4444"
	_, err = e.AnalyzePullRequest(ctx, "tok", repo, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestPostPullRequestComment_AddsPreamble(t *testing.T) {
	up := threeCommits()
	e := newTestEngine(up, &countingProvider{})

	url, err := e.PostPullRequestComment(context.Background(), "tok", repo, 7, "looks good")
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	require.Len(t, up.comments, 1)
	assert.Contains(t, up.comments[0], "looks good")
	assert.Contains(t, up.comments[0], "[reposcope]")
}

func TestOverview_EmptyRepositoryFails(t *testing.T) {
	up := &fakeUpstream{diffs: map[string]string{}}
	e := newTestEngine(up, &countingProvider{})

	_, err := e.Overview(context.Background(), "tok", repo)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTrends_CachedUnderWindowFingerprint(t *testing.T) {
	up := threeCommits()
	p := &countingProvider{answers: map[ai.TaskKind]string{ai.TaskTrendNarrative: "busy week"}}
	e := newTestEngine(up, p)
	ctx := context.Background()

	report, err := e.Trends(ctx, "tok", repo, 50)
	require.NoError(t, err)
	assert.Equal(t, "busy week", report.Narrative)
	assert.Equal(t, 3, report.CommitCount)
	narrativeCalls := p.calls

	again, err := e.Trends(ctx, "tok", repo, 50)
	require.NoError(t, err)
	assert.Equal(t, report.Statistics, again.Statistics)
	assert.Equal(t, narrativeCalls, p.calls, "cached window must not regenerate")
}

func TestChat_CommitModeCachesAnswerButAppendsHistory(t *testing.T) {
	up := threeCommits()
	p := &countingProvider{answers: map[ai.TaskKind]string{ai.TaskChat: "it renames the handler"}}
	e := newTestEngine(up, p)
	ctx := context.Background()

	req := ChatRequest{Mode: core.ModeCommit, Target: "bbb2222", Question: "what changed?"}
	first, err := e.Chat(ctx, "tok", repo, req)
	require.NoError(t, err)
	assert.Equal(t, "it renames the handler", first.Answer)
	assert.Len(t, first.History, 2)
	assert.Equal(t, 1, p.calls)

	second, err := e.Chat(ctx, "tok", repo, req)
	require.NoError(t, err)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Len(t, second.History, 4, "history grows even on cache hits")
	assert.Equal(t, 1, p.calls)
}

func TestChat_RepositoryModeNeedsNoTarget(t *testing.T) {
	up := threeCommits()
	e := newTestEngine(up, &countingProvider{})

	resp, err := e.Chat(context.Background(), "tok", repo, ChatRequest{
		Mode:     core.ModeRepository,
		Question: "what does this repo do?",
	})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", resp.Answer)
}

func TestChat_WhatIfNeverCachedAndTargetUntouched(t *testing.T) {
	up := threeCommits()
	p := &countingProvider{}
	e := newTestEngine(up, p)
	ctx := context.Background()

	req := ChatRequest{
		Mode:      core.ModeWhatIf,
		Target:    "ccc3333",
		WhatIfSHA: "bbb2222",
		Question:  "what if we reverted this?",
	}
	_, err := e.Chat(ctx, "tok", repo, req)
	require.NoError(t, err)
	calls := p.calls

	_, err = e.Chat(ctx, "tok", repo, req)
	require.NoError(t, err)
	assert.Equal(t, calls+1, p.calls, "what-if answers are never cached")

	// The scope stays addressed by its persisted target, not the
	// hypothetical sha.
	history, err := e.History(ctx, core.Scope{Repo: repo, Mode: core.ModeWhatIf, Target: "ccc3333"})
	require.NoError(t, err)
	assert.Len(t, history, 4)
	other, err := e.History(ctx, core.Scope{Repo: repo, Mode: core.ModeWhatIf, Target: "bbb2222"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestChat_UnknownTargetFailsPrecondition(t *testing.T) {
	up := threeCommits()
	e := newTestEngine(up, &countingProvider{})

	_, err := e.Chat(context.Background(), "tok", repo, ChatRequest{
		Mode:     core.ModeCommit,
		Target:   "f00df00d",
		Question: "hm?",
	})
	assert.ErrorIs(t, err, core.ErrInvalidScopePrecondition)
}

func TestChat_NonChatModeRejected(t *testing.T) {
	up := threeCommits()
	e := newTestEngine(up, &countingProvider{})

	_, err := e.Chat(context.Background(), "tok", repo, ChatRequest{
		Mode:     core.ModeTrend,
		Question: "hm?",
	})
	assert.ErrorIs(t, err, core.ErrInvalidScopePrecondition)
}

func TestResetConversation(t *testing.T) {
	up := threeCommits()
	e := newTestEngine(up, &countingProvider{})
	ctx := context.Background()

	scope := core.Scope{Repo: repo, Mode: core.ModeRepository}
	_, err := e.Chat(ctx, "tok", repo, ChatRequest{Mode: core.ModeRepository, Question: "hi"})
	require.NoError(t, err)

	require.NoError(t, e.ResetConversation(ctx, scope))
	history, err := e.History(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, history)
}
