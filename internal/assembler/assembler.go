package assembler

import (
	"context"
	"fmt"
	"strings"

	"github.com/reposcope/internal/core"
	"github.com/reposcope/internal/diff"
	"github.com/reposcope/pkg/models"
)

// Source is the slice of the upstream client the assembler pulls raw
// content through.
type Source interface {
	GetCommitDiff(ctx context.Context, token string, repo core.Repository, sha string) (string, error)
	GetFileContent(ctx context.Context, token string, repo core.Repository, path, ref string) (string, error)
	GetReadme(ctx context.Context, token string, repo core.Repository) (string, error)
}

// Limits are the size budgets applied while assembling context.
type Limits struct {
	MaxDiffChars      int
	MaxPrevDiffChars  int
	MaxPRDiffChars    int
	MaxReadmeChars    int
	MaxPrevFiles      int
	MaxPrevFileChars  int
	MaxPrevTotalChars int
	RecentCommits     int
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDiffChars:      60000,
		MaxPrevDiffChars:  15000,
		MaxPRDiffChars:    80000,
		MaxReadmeChars:    10000,
		MaxPrevFiles:      7,
		MaxPrevFileChars:  4000,
		MaxPrevTotalChars: 25000,
		RecentCommits:     30,
	}
}

// Assembler builds context bundles for the analysis provider. Every
// builder is idempotent: unchanged inputs yield byte-identical bundles.
type Assembler struct {
	source Source
	limits Limits
}

// New creates an assembler over the given source.
func New(source Source, limits Limits) *Assembler {
	return &Assembler{source: source, limits: limits}
}

func unavailable(what string, err error) error {
	return fmt.Errorf("%w: fetching %s: %v", core.ErrContextUnavailable, what, err)
}

// CommitDiff assembles the context for a single-commit analysis: the
// commit's diff plus the previous commit's diff as the comparison
// baseline. It also returns the untruncated diffs for response shaping.
func (a *Assembler) CommitDiff(ctx context.Context, token string, repo core.Repository, sha, prevSHA string) (*Bundle, string, string, error) {
	rawDiff, err := a.source.GetCommitDiff(ctx, token, repo, sha)
	if err != nil {
		return nil, "", "", unavailable("commit diff "+sha, err)
	}

	var prevDiff string
	if prevSHA != "" {
		prevDiff, err = a.source.GetCommitDiff(ctx, token, repo, prevSHA)
		if err != nil {
			// The baseline is best-effort; analysis proceeds without it.
			prevDiff = ""
		}
	}

	bundle := &Bundle{Budget: a.limits.MaxDiffChars + a.limits.MaxPrevDiffChars}
	if prevDiff != "" {
		truncated, err := TruncateDiff(prevDiff, a.limits.MaxPrevDiffChars)
		if err == nil {
			bundle.Add("Previous commit "+short(prevSHA)+" (baseline)", truncated)
		}
	}
	current, err := TruncateDiff(rawDiff, a.limits.MaxDiffChars)
	if err != nil {
		return nil, "", "", err
	}
	bundle.Add("Commit "+short(sha)+" diff", current)

	return bundle, rawDiff, prevDiff, nil
}

// PullRequest assembles the context for a PR review: title, body, diff.
func (a *Assembler) PullRequest(ctx context.Context, token string, repo core.Repository, pr *models.PullRequest, rawDiff string) (*Bundle, error) {
	truncated, err := TruncateDiff(rawDiff, a.limits.MaxPRDiffChars)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{Budget: a.limits.MaxPRDiffChars}
	bundle.Add("Pull request title", pr.Title)
	if pr.Body != "" {
		bundle.Add("Pull request description", pr.Body)
	} else {
		bundle.Add("Pull request description", "(no description provided)")
	}
	bundle.Add("Diff", truncated)
	return bundle, nil
}

// Overview assembles the repository-overview context: README plus recent
// commit subjects.
func (a *Assembler) Overview(ctx context.Context, token string, repo core.Repository, commits []models.Commit) (*Bundle, error) {
	readme, err := a.source.GetReadme(ctx, token, repo)
	if err != nil {
		return nil, unavailable("readme", err)
	}

	bundle := &Bundle{Budget: a.limits.MaxReadmeChars}
	if readme != "" {
		bundle.Add("README", TruncateText(readme, a.limits.MaxReadmeChars))
	} else {
		bundle.Add("README", "(repository has no README)")
	}
	bundle.Add("Recent commits", a.commitList(commits))
	return bundle, nil
}

// ChatRepository assembles repository-mode chat context: overview material
// and the recent commit window, no target restriction.
func (a *Assembler) ChatRepository(ctx context.Context, token string, repo core.Repository, commits []models.Commit, turns []models.Turn, question string) (*Bundle, error) {
	readme, err := a.source.GetReadme(ctx, token, repo)
	if err != nil {
		return nil, unavailable("readme", err)
	}

	bundle := &Bundle{Budget: a.limits.MaxReadmeChars + a.limits.MaxDiffChars}
	if readme != "" {
		bundle.Add("Repository overview", TruncateText(readme, a.limits.MaxReadmeChars))
	}
	bundle.Add("Recent commits", a.commitList(commits))
	a.addTurns(bundle, turns)
	bundle.Add("Question", question)
	return bundle, nil
}

// ChatCommit assembles commit-mode chat context: the target commit's diff,
// the previous commit's versions of the files it touched, and the scope's
// prior turns. For what-if turns the caller passes the hypothetical sha as
// target; the scope's persisted target is untouched by design.
func (a *Assembler) ChatCommit(ctx context.Context, token string, repo core.Repository, target, prevSHA string, turns []models.Turn, question string) (*Bundle, error) {
	rawDiff, err := a.source.GetCommitDiff(ctx, token, repo, target)
	if err != nil {
		return nil, unavailable("commit diff "+target, err)
	}

	bundle := &Bundle{Budget: a.limits.MaxDiffChars + a.limits.MaxPrevTotalChars}

	if prevSHA != "" {
		if prev := a.previousFiles(ctx, token, repo, rawDiff, prevSHA); prev != "" {
			bundle.Add("Files as of previous commit "+short(prevSHA), prev)
		}
	}

	truncated, err := TruncateDiff(rawDiff, a.limits.MaxDiffChars)
	if err != nil {
		return nil, err
	}
	bundle.Add("Commit "+short(target)+" diff", truncated)
	a.addTurns(bundle, turns)
	bundle.Add("Question", question)
	return bundle, nil
}

// previousFiles fetches the prior versions of the files the diff touched,
// bounded by file count and char budgets. Fetch failures for individual
// files are skipped; the section is best-effort context.
func (a *Assembler) previousFiles(ctx context.Context, token string, repo core.Repository, rawDiff, prevSHA string) string {
	paths := diff.PreviousPaths(rawDiff)
	if len(paths) > a.limits.MaxPrevFiles {
		paths = paths[:a.limits.MaxPrevFiles]
	}

	var sb strings.Builder
	total := 0
	for _, path := range paths {
		if total >= a.limits.MaxPrevTotalChars {
			break
		}
		content, err := a.source.GetFileContent(ctx, token, repo, path, prevSHA)
		if err != nil {
			continue
		}
		content = TruncateText(content, a.limits.MaxPrevFileChars)
		sb.WriteString(fmt.Sprintf("--- file: `%s` ---\n```\n%s\n```\n\n", path, content))
		total += len(content)
	}
	return strings.TrimSuffix(sb.String(), "\n\n")
}

func (a *Assembler) commitList(commits []models.Commit) string {
	n := a.limits.RecentCommits
	if n <= 0 {
		n = 30
	}
	if len(commits) > n {
		commits = commits[:n]
	}
	var sb strings.Builder
	for _, c := range commits {
		sb.WriteString("- ")
		sb.WriteString(short(c.SHA))
		sb.WriteString(" ")
		sb.WriteString(c.Subject())
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (a *Assembler) addTurns(bundle *Bundle, turns []models.Turn) {
	if len(turns) == 0 {
		return
	}
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Role)
		sb.WriteString(": ")
		sb.WriteString(t.Text)
		sb.WriteString("\n")
	}
	bundle.Add("Conversation so far", strings.TrimSuffix(sb.String(), "\n"))
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
