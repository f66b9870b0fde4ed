// Package github is the upstream source client: it fetches commits, diffs,
// pull requests, file trees, and file contents from the GitHub REST API on
// behalf of a user token.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/reposcope/internal/core"
	"github.com/reposcope/pkg/models"
)

const (
	acceptJSON = "application/vnd.github.v3+json"
	acceptDiff = "application/vnd.github.v3.diff"
	acceptRaw  = "application/vnd.github.raw"

	perPage = 100
)

// Client talks to the GitHub REST API. All methods take the caller's
// bearer token; the client holds no credentials of its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client against baseURL (normally
// https://api.github.com). requestsPerSec throttles outbound calls to stay
// under GitHub's secondary rate limits.
func NewClient(baseURL string, timeout time.Duration, requestsPerSec float64) *Client {
	if requestsPerSec <= 0 {
		requestsPerSec = 8
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSec), int(requestsPerSec)),
	}
}

// get performs one authenticated GET and returns the response body.
func (c *Client) get(ctx context.Context, token, path, accept string, query url.Values) ([]byte, http.Header, error) {
	return c.do(ctx, http.MethodGet, token, path, accept, query, nil)
}

func (c *Client) do(ctx context.Context, method, token, path, accept string, query url.Values, body io.Reader) ([]byte, http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, wrapTransport(err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, wrapTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, wrapTransport(err)
	}

	if resp.StatusCode >= 400 {
		return nil, resp.Header, statusError(resp, data)
	}
	return data, resp.Header, nil
}

// wrapTransport maps transport-level failures onto the taxonomy.
func wrapTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrUpstreamTimeout, err)
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", core.ErrUpstreamTimeout, err)
	}
	return err
}

// statusError maps GitHub error responses onto the taxonomy.
func statusError(resp *http.Response, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", core.ErrAuthInvalid, msg)
	case http.StatusForbidden, http.StatusTooManyRequests:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", core.ErrRateLimited, msg)
		}
		return fmt.Errorf("%w: %s", core.ErrAuthInvalid, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", core.ErrNotFound, msg)
	}
	return fmt.Errorf("github api %d: %s", resp.StatusCode, msg)
}

// ValidateToken checks a token against GET /user and returns the user it
// belongs to.
func (c *Client) ValidateToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, core.ErrAuthInvalid
	}
	data, _, err := c.get(ctx, token, "/user", acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
		HTMLURL   string `json:"html_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	return &models.User{Login: raw.Login, AvatarURL: raw.AvatarURL, HTMLURL: raw.HTMLURL}, nil
}

// ListRepos returns the repositories visible to the token.
func (c *Client) ListRepos(ctx context.Context, token string) ([]models.Repo, error) {
	var repos []models.Repo
	for page := 1; ; page++ {
		q := url.Values{"per_page": {strconv.Itoa(perPage)}, "page": {strconv.Itoa(page)}}
		data, _, err := c.get(ctx, token, "/user/repos", acceptJSON, q)
		if err != nil {
			return nil, err
		}
		var raw []struct {
			Name     string `json:"name"`
			FullName string `json:"full_name"`
			Private  bool   `json:"private"`
			Owner    struct {
				Login string `json:"login"`
			} `json:"owner"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decoding repos: %w", err)
		}
		for _, r := range raw {
			repos = append(repos, models.Repo{Name: r.Name, FullName: r.FullName, Owner: r.Owner.Login, Private: r.Private})
		}
		if len(raw) < perPage {
			break
		}
	}
	return repos, nil
}

// ListBranches returns the repository's branches.
func (c *Client) ListBranches(ctx context.Context, token string, repo core.Repository) ([]models.Branch, error) {
	var branches []models.Branch
	for page := 1; ; page++ {
		q := url.Values{"per_page": {strconv.Itoa(perPage)}, "page": {strconv.Itoa(page)}}
		data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/branches", repo.Owner, repo.Name), acceptJSON, q)
		if err != nil {
			return nil, err
		}
		var raw []struct {
			Name   string `json:"name"`
			Commit struct {
				SHA string `json:"sha"`
			} `json:"commit"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decoding branches: %w", err)
		}
		for _, b := range raw {
			branches = append(branches, models.Branch{Name: b.Name, SHA: b.Commit.SHA})
		}
		if len(raw) < perPage {
			break
		}
	}
	return branches, nil
}

type rawCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Files []struct {
		Filename string `json:"filename"`
	} `json:"files"`
}

func (rc rawCommit) toModel() models.Commit {
	c := models.Commit{
		SHA:     rc.SHA,
		Message: rc.Commit.Message,
		Author:  rc.Commit.Author.Name,
		Date:    rc.Commit.Author.Date,
	}
	for _, f := range rc.Files {
		c.Files = append(c.Files, f.Filename)
	}
	return c
}

// ListCommits returns the repository's commits, newest first, following
// pagination to the end. branch narrows the listing when non-empty.
func (c *Client) ListCommits(ctx context.Context, token string, repo core.Repository, branch string) ([]models.Commit, error) {
	var commits []models.Commit
	for page := 1; ; page++ {
		q := url.Values{"per_page": {strconv.Itoa(perPage)}, "page": {strconv.Itoa(page)}}
		if branch != "" {
			q.Set("sha", branch)
		}
		data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/commits", repo.Owner, repo.Name), acceptJSON, q)
		if err != nil {
			return nil, err
		}
		var raw []rawCommit
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decoding commits: %w", err)
		}
		for _, rc := range raw {
			commits = append(commits, rc.toModel())
		}
		if len(raw) < perPage {
			break
		}
	}
	log.Debug().Str("repo", repo.String()).Int("count", len(commits)).Msg("fetched commit list")
	return commits, nil
}

// GetCommit returns one commit with the files it touched.
func (c *Client) GetCommit(ctx context.Context, token string, repo core.Repository, sha string) (*models.Commit, error) {
	data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/commits/%s", repo.Owner, repo.Name, sha), acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var raw rawCommit
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding commit: %w", err)
	}
	commit := raw.toModel()
	return &commit, nil
}

// GetCommitDiff returns the commit's unified diff text.
func (c *Client) GetCommitDiff(ctx context.Context, token string, repo core.Repository, sha string) (string, error) {
	data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/commits/%s", repo.Owner, repo.Name, sha), acceptDiff, nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListPullRequests returns the repository's pull requests ({number, title,
// head sha}).
func (c *Client) ListPullRequests(ctx context.Context, token string, repo core.Repository, state string) ([]models.PullRequest, error) {
	if state == "" {
		state = "open"
	}
	q := url.Values{"per_page": {strconv.Itoa(perPage)}, "state": {state}}
	data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/pulls", repo.Owner, repo.Name), acceptJSON, q)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		State  string `json:"state"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding pull requests: %w", err)
	}
	prs := make([]models.PullRequest, 0, len(raw))
	for _, p := range raw {
		prs = append(prs, models.PullRequest{Number: p.Number, Title: p.Title, State: p.State, HeadSHA: p.Head.SHA})
	}
	return prs, nil
}

// GetPullRequest returns one PR's metadata including body and head sha.
func (c *Client) GetPullRequest(ctx context.Context, token string, repo core.Repository, number int) (*models.PullRequest, error) {
	data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/pulls/%d", repo.Owner, repo.Name, number), acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding pull request: %w", err)
	}
	return &models.PullRequest{Number: raw.Number, Title: raw.Title, Body: raw.Body, State: raw.State, HeadSHA: raw.Head.SHA}, nil
}

// GetPullRequestDiff returns the PR's unified diff text.
func (c *Client) GetPullRequestDiff(ctx context.Context, token string, repo core.Repository, number int) (string, error) {
	data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/pulls/%d", repo.Owner, repo.Name, number), acceptDiff, nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetTree returns the recursive file tree at the given sha (blobs only).
func (c *Client) GetTree(ctx context.Context, token string, repo core.Repository, sha string) ([]models.TreeEntry, error) {
	q := url.Values{"recursive": {"1"}}
	data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/git/trees/%s", repo.Owner, repo.Name, sha), acceptJSON, q)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			Size int64  `json:"size"`
		} `json:"tree"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}
	var entries []models.TreeEntry
	for _, e := range raw.Tree {
		if e.Type != "blob" {
			continue
		}
		entries = append(entries, models.TreeEntry{Path: e.Path, Type: e.Type, Size: e.Size})
	}
	return entries, nil
}

// GetFileContent returns a file's raw content at the given ref.
func (c *Client) GetFileContent(ctx context.Context, token string, repo core.Repository, path, ref string) (string, error) {
	q := url.Values{}
	if ref != "" {
		q.Set("ref", ref)
	}
	data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Name, path), acceptRaw, q)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetReadme returns the repository README's raw content, "" if the
// repository has none.
func (c *Client) GetReadme(ctx context.Context, token string, repo core.Repository) (string, error) {
	data, _, err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/readme", repo.Owner, repo.Name), acceptRaw, nil)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// PostIssueComment posts a comment on an issue or PR and returns its
// html_url.
func (c *Client) PostIssueComment(ctx context.Context, token string, repo core.Repository, number int, body string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"body": body})
	data, _, err := c.do(ctx, http.MethodPost, token,
		fmt.Sprintf("/repos/%s/%s/issues/%d/comments", repo.Owner, repo.Name, number),
		acceptJSON, nil, strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	var raw struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("decoding comment response: %w", err)
	}
	return raw.HTMLURL, nil
}
