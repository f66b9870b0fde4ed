// Package engine ties the upstream client, context assembler, cache
// orchestrator, provider, and conversation manager together into the
// operations the API exposes.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reposcope/internal/ai"
	"github.com/reposcope/internal/assembler"
	"github.com/reposcope/internal/cache"
	"github.com/reposcope/internal/conversation"
	"github.com/reposcope/internal/core"
	"github.com/reposcope/internal/trends"
	"github.com/reposcope/pkg/models"
)

// Upstream is the slice of the GitHub client the engine drives.
type Upstream interface {
	ListCommits(ctx context.Context, token string, repo core.Repository, branch string) ([]models.Commit, error)
	GetCommitDiff(ctx context.Context, token string, repo core.Repository, sha string) (string, error)
	GetPullRequest(ctx context.Context, token string, repo core.Repository, number int) (*models.PullRequest, error)
	GetPullRequestDiff(ctx context.Context, token string, repo core.Repository, number int) (string, error)
	PostIssueComment(ctx context.Context, token string, repo core.Repository, number int, body string) (string, error)
}

// Engine implements the analysis operations. All results flow through the
// cache orchestrator except what-if chat, whose hypothetical input makes
// caching meaningless.
type Engine struct {
	upstream     Upstream
	assembler    *assembler.Assembler
	provider     ai.Provider
	orchestrator *cache.Orchestrator
	store        cache.Store
	conversation *conversation.Manager
	trends       *trends.Aggregator
	listTTL      time.Duration
}

func New(upstream Upstream, asm *assembler.Assembler, provider ai.Provider, orch *cache.Orchestrator, store cache.Store, conv *conversation.Manager, agg *trends.Aggregator, listTTL time.Duration) *Engine {
	return &Engine{
		upstream:     upstream,
		assembler:    asm,
		provider:     provider,
		orchestrator: orch,
		store:        store,
		conversation: conv,
		trends:       agg,
		listTTL:      listTTL,
	}
}

// commitList returns the repository's full commit list, newest first,
// cached in the store for the list TTL.
func (e *Engine) commitList(ctx context.Context, token string, repo core.Repository) ([]models.Commit, error) {
	key := "commits:" + repo.String()
	if raw, ok, err := e.store.Get(ctx, key); err == nil && ok {
		var commits []models.Commit
		if err := json.Unmarshal(raw, &commits); err == nil {
			return commits, nil
		}
	}

	commits, err := e.upstream.ListCommits(ctx, token, repo, "")
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(commits); err == nil {
		if err := e.store.Set(ctx, key, raw, e.listTTL); err != nil {
			log.Warn().Err(err).Str("repo", repo.String()).Msg("commit list cache write failed")
		}
	}
	return commits, nil
}

// sequence locates sha in the newest-first list and returns its 1-based
// number (oldest commit is 1), the previous commit's sha, and that
// commit's number. A sha absent from the list yields number 0.
func sequence(commits []models.Commit, sha string) (number int, prevSHA string, prevNumber int) {
	for i, c := range commits {
		if c.SHA == sha {
			number = len(commits) - i
			if i+1 < len(commits) {
				prevSHA = commits[i+1].SHA
				prevNumber = len(commits) - i - 1
			}
			return number, prevSHA, prevNumber
		}
	}
	return 0, "", 0
}

// AnalyzeCommit produces the cached deep analysis of one commit against
// its predecessor.
func (e *Engine) AnalyzeCommit(ctx context.Context, token string, repo core.Repository, sha string) (*models.AnalysisResult, error) {
	commits, err := e.commitList(ctx, token, repo)
	if err != nil {
		return nil, err
	}
	number, prevSHA, prevNumber := sequence(commits, sha)

	bundle, rawDiff, prevDiff, err := e.assembler.CommitDiff(ctx, token, repo, sha, prevSHA)
	if err != nil {
		return nil, err
	}

	key := cache.NewKey(repo, core.ModeCommit, sha, bundle.Render())
	raw, err := e.orchestrator.Resolve(ctx, key, func(ctx context.Context) ([]byte, error) {
		analysis, err := e.provider.Generate(ctx, ai.TaskCommitAnalysis, bundle)
		if err != nil {
			return nil, err
		}
		return json.Marshal(models.AnalysisResult{
			SHA:                  sha,
			Analysis:             analysis,
			Diff:                 rawDiff,
			PreviousDiff:         prevDiff,
			CommitNumber:         number,
			PreviousCommitNumber: prevNumber,
		})
	})
	if err != nil {
		return nil, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode cached analysis: %w", err)
	}
	return &result, nil
}

// AnalyzePullRequest produces the cached review of one pull request,
// keyed on its head sha so new pushes invalidate naturally.
func (e *Engine) AnalyzePullRequest(ctx context.Context, token string, repo core.Repository, number int) (*models.AnalysisResult, error) {
	pr, err := e.upstream.GetPullRequest(ctx, token, repo, number)
	if err != nil {
		return nil, err
	}
	rawDiff, err := e.upstream.GetPullRequestDiff(ctx, token, repo, number)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching pull request diff: %v", core.ErrContextUnavailable, err)
	}

	bundle, err := e.assembler.PullRequest(ctx, token, repo, pr, rawDiff)
	if err != nil {
		return nil, err
	}

	key := cache.NewKey(repo, core.ModePullRequest, strconv.Itoa(number), pr.HeadSHA, bundle.Render())
	raw, err := e.orchestrator.Resolve(ctx, key, func(ctx context.Context) ([]byte, error) {
		analysis, err := e.provider.Generate(ctx, ai.TaskPRReview, bundle)
		if err != nil {
			return nil, err
		}
		return json.Marshal(models.AnalysisResult{SHA: pr.HeadSHA, Analysis: analysis})
	})
	if err != nil {
		return nil, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode cached analysis: %w", err)
	}
	return &result, nil
}

// commentPreamble marks bot-posted PR comments.
const commentPreamble = "**[reposcope]**\n\n"

// PostPullRequestComment posts a user-authored comment on a pull request.
// The body is opaque markdown.
func (e *Engine) PostPullRequestComment(ctx context.Context, token string, repo core.Repository, number int, body string) (string, error) {
	return e.upstream.PostIssueComment(ctx, token, repo, number, commentPreamble+body)
}

// Overview produces the cached repository overview, keyed on the latest
// commit sha.
func (e *Engine) Overview(ctx context.Context, token string, repo core.Repository) (*models.AnalysisResult, error) {
	commits, err := e.commitList(ctx, token, repo)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("repository %s has no commits: %w", repo, core.ErrNotFound)
	}
	latest := commits[0].SHA

	bundle, err := e.assembler.Overview(ctx, token, repo, commits)
	if err != nil {
		return nil, err
	}

	key := cache.NewKey(repo, core.ModeRepository, latest, bundle.Render())
	raw, err := e.orchestrator.Resolve(ctx, key, func(ctx context.Context) ([]byte, error) {
		analysis, err := e.provider.Generate(ctx, ai.TaskOverview, bundle)
		if err != nil {
			return nil, err
		}
		return json.Marshal(models.AnalysisResult{SHA: latest, Analysis: analysis})
	})
	if err != nil {
		return nil, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode cached analysis: %w", err)
	}
	return &result, nil
}

// Trends produces the trend report for the most recent commits, cached
// under the window's sha fingerprint.
func (e *Engine) Trends(ctx context.Context, token string, repo core.Repository, limit int) (*trends.Report, error) {
	commits, err := e.commitList(ctx, token, repo)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("repository %s has no commits: %w", repo, core.ErrNotFound)
	}

	shas := make([]string, len(commits))
	for i, c := range commits {
		shas[i] = c.SHA
	}
	key := cache.NewKey(repo, core.ModeTrend, strconv.Itoa(limit), strings.Join(shas, ","))

	raw, err := e.orchestrator.Resolve(ctx, key, func(ctx context.Context) ([]byte, error) {
		report, err := e.trends.Analyze(ctx, token, repo, commits, limit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(report)
	})
	if err != nil {
		return nil, err
	}

	var report trends.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode cached trend report: %w", err)
	}
	return &report, nil
}

// ChatRequest is one conversational question.
type ChatRequest struct {
	Mode      core.Mode
	Target    string // commit sha anchoring the scope; empty means latest
	WhatIfSHA string // hypothetical sha for what-if turns
	Question  string
}

// ChatResponse is the answer plus the scope's full history after the
// exchange.
type ChatResponse struct {
	Answer  string        `json:"answer"`
	History []models.Turn `json:"history"`
}

// Chat answers a question in one of the three chat modes. Repository and
// commit answers are cached on their anchor sha plus the question;
// what-if answers never are. History is appended even on cache hits.
func (e *Engine) Chat(ctx context.Context, token string, repo core.Repository, req ChatRequest) (*ChatResponse, error) {
	switch req.Mode {
	case core.ModeCommit, core.ModeRepository, core.ModeWhatIf:
	default:
		return nil, fmt.Errorf("%w: mode %s is not a chat mode", core.ErrInvalidScopePrecondition, req.Mode)
	}

	commits, err := e.commitList(ctx, token, repo)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("repository %s has no commits: %w", repo, core.ErrNotFound)
	}

	target := req.Target
	if target == "" && req.Mode != core.ModeRepository {
		target = commits[0].SHA
	}
	scope := core.Scope{Repo: repo, Mode: req.Mode, Target: target}

	userTurn := models.Turn{Role: "user", Text: req.Question, WhatIfSHA: req.WhatIfSHA}
	history, err := e.conversation.AppendTurn(ctx, token, scope, userTurn)
	if err != nil {
		return nil, err
	}
	prior := history[:len(history)-1]

	answer, err := e.chatAnswer(ctx, token, repo, scope, req, commits, prior)
	if err != nil {
		return nil, err
	}

	history, err = e.conversation.AppendTurn(ctx, token, scope, models.Turn{Role: "assistant", Text: answer})
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Answer: answer, History: history}, nil
}

func (e *Engine) chatAnswer(ctx context.Context, token string, repo core.Repository, scope core.Scope, req ChatRequest, commits []models.Commit, prior []models.Turn) (string, error) {
	switch scope.Mode {
	case core.ModeRepository:
		bundle, err := e.assembler.ChatRepository(ctx, token, repo, commits, prior, req.Question)
		if err != nil {
			return "", err
		}
		key := cache.NewKey(repo, scope.Mode, commits[0].SHA, req.Question)
		return e.cachedAnswer(ctx, key, bundle)

	case core.ModeCommit:
		_, prevSHA, _ := sequence(commits, scope.Target)
		bundle, err := e.assembler.ChatCommit(ctx, token, repo, scope.Target, prevSHA, prior, req.Question)
		if err != nil {
			return "", err
		}
		key := cache.NewKey(repo, scope.Mode, scope.Target, req.Question)
		return e.cachedAnswer(ctx, key, bundle)

	default: // what-if
		// The hypothetical sha replaces the target for this turn's context
		// only; scope.Target stays as persisted.
		contextSHA := req.WhatIfSHA
		if contextSHA == "" {
			contextSHA = scope.Target
		}
		_, prevSHA, _ := sequence(commits, contextSHA)
		bundle, err := e.assembler.ChatCommit(ctx, token, repo, contextSHA, prevSHA, prior, req.Question)
		if err != nil {
			return "", err
		}
		return e.provider.Generate(ctx, ai.TaskChat, bundle)
	}
}

func (e *Engine) cachedAnswer(ctx context.Context, key cache.Key, bundle *assembler.Bundle) (string, error) {
	raw, err := e.orchestrator.Resolve(ctx, key, func(ctx context.Context) ([]byte, error) {
		answer, err := e.provider.Generate(ctx, ai.TaskChat, bundle)
		if err != nil {
			return nil, err
		}
		return json.Marshal(answer)
	})
	if err != nil {
		return "", err
	}
	var answer string
	if err := json.Unmarshal(raw, &answer); err != nil {
		return "", fmt.Errorf("decode cached answer: %w", err)
	}
	return answer, nil
}

// History returns a chat scope's stored turns without generating anything.
func (e *Engine) History(ctx context.Context, scope core.Scope) ([]models.Turn, error) {
	return e.conversation.History(ctx, scope)
}

// ResetConversation clears a chat scope.
func (e *Engine) ResetConversation(ctx context.Context, scope core.Scope) error {
	return e.conversation.Reset(ctx, scope)
}
