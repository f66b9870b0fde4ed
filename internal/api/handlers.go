package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/reposcope/internal/core"
	"github.com/reposcope/internal/engine"
	"github.com/reposcope/pkg/models"
)

func fail(c echo.Context, err error) error {
	return c.JSON(httpStatus(err), errorBody{Detail: err.Error()})
}

func repoParam(c echo.Context) core.Repository {
	return core.Repository{Owner: c.Param("owner"), Name: c.Param("repo")}
}

// token pulls the access token from the query string, the way the
// frontend has always sent it.
func token(c echo.Context) (string, error) {
	t := c.QueryParam("access_token")
	if t == "" {
		return "", fmt.Errorf("missing access_token: %w", core.ErrAuthInvalid)
	}
	return t, nil
}

// validated pulls the token and checks it upstream before any expensive
// work happens.
func (s *Server) validated(c echo.Context) (string, error) {
	t, err := token(c)
	if err != nil {
		return "", err
	}
	if _, err := s.github.ValidateToken(c.Request().Context(), t); err != nil {
		return "", err
	}
	return t, nil
}

func (s *Server) login(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return fail(c, fmt.Errorf("missing code: %w", core.ErrAuthInvalid))
	}
	if state := c.QueryParam("state"); state != "" {
		if err := s.oauth.VerifyState(state); err != nil {
			return fail(c, err)
		}
	}

	accessToken, user, err := s.oauth.ExchangeCode(c.Request().Context(), code)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"access_token": accessToken,
		"user":         user,
	})
}

func (s *Server) userInfo(c echo.Context) error {
	t, err := token(c)
	if err != nil {
		return fail(c, err)
	}
	user, err := s.github.ValidateToken(c.Request().Context(), t)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) repoList(c echo.Context) error {
	t, err := token(c)
	if err != nil {
		return fail(c, err)
	}
	repos, err := s.github.ListRepos(c.Request().Context(), t)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, repos)
}

func (s *Server) repoBranches(c echo.Context) error {
	t, err := token(c)
	if err != nil {
		return fail(c, err)
	}
	branches, err := s.github.ListBranches(c.Request().Context(), t, repoParam(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, branches)
}

func (s *Server) repoCommits(c echo.Context) error {
	t, err := token(c)
	if err != nil {
		return fail(c, err)
	}
	commits, err := s.github.ListCommits(c.Request().Context(), t, repoParam(c), c.QueryParam("branch"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, commits)
}

func (s *Server) pullRequestList(c echo.Context) error {
	t, err := token(c)
	if err != nil {
		return fail(c, err)
	}
	state := c.QueryParam("state")
	if state == "" {
		state = "open"
	}
	prs, err := s.github.ListPullRequests(c.Request().Context(), t, repoParam(c), state)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, prs)
}

func (s *Server) analyzeCommit(c echo.Context) error {
	t, err := s.validated(c)
	if err != nil {
		return fail(c, err)
	}
	result, err := s.engine.AnalyzeCommit(c.Request().Context(), t, repoParam(c), c.Param("sha"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) analyzePullRequest(c echo.Context) error {
	t, err := s.validated(c)
	if err != nil {
		return fail(c, err)
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		return fail(c, fmt.Errorf("bad pull request number: %w", core.ErrNotFound))
	}
	result, err := s.engine.AnalyzePullRequest(c.Request().Context(), t, repoParam(c), number)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func (s *Server) postPullRequestComment(c echo.Context) error {
	t, err := s.validated(c)
	if err != nil {
		return fail(c, err)
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		return fail(c, fmt.Errorf("bad pull request number: %w", core.ErrNotFound))
	}
	var req commentRequest
	if err := c.Bind(&req); err != nil || req.Comment == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "missing comment body"})
	}
	url, err := s.engine.PostPullRequestComment(c.Request().Context(), t, repoParam(c), number, req.Comment)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"comment_url": url})
}

func (s *Server) overview(c echo.Context) error {
	t, err := s.validated(c)
	if err != nil {
		return fail(c, err)
	}
	result, err := s.engine.Overview(c.Request().Context(), t, repoParam(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) trends(c echo.Context) error {
	t, err := s.validated(c)
	if err != nil {
		return fail(c, err)
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			return c.JSON(http.StatusBadRequest, errorBody{Detail: "limit must be between 1 and 100"})
		}
		limit = parsed
	}
	report, err := s.engine.Trends(c.Request().Context(), t, repoParam(c), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// chat answers a question in commit, repository, or what-if mode.
// target_sha anchors the scope; what_if_sha carries the hypothetical sha
// for what-if turns and never touches the scope's persisted target.
func (s *Server) chat(c echo.Context) error {
	t, err := s.validated(c)
	if err != nil {
		return fail(c, err)
	}
	question := c.QueryParam("question")
	if question == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "missing question"})
	}
	mode, err := core.ParseMode(c.QueryParam("mode"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: err.Error()})
	}

	resp, err := s.engine.Chat(c.Request().Context(), t, repoParam(c), engine.ChatRequest{
		Mode:      mode,
		Target:    c.QueryParam("target_sha"),
		WhatIfSHA: c.QueryParam("what_if_sha"),
		Question:  question,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) chatScope(c echo.Context) (core.Scope, error) {
	mode, err := core.ParseMode(c.QueryParam("mode"))
	if err != nil {
		return core.Scope{}, err
	}
	return core.Scope{Repo: repoParam(c), Mode: mode, Target: c.QueryParam("target_sha")}, nil
}

func (s *Server) chatHistory(c echo.Context) error {
	if _, err := s.validated(c); err != nil {
		return fail(c, err)
	}
	scope, err := s.chatScope(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: err.Error()})
	}
	history, err := s.engine.History(c.Request().Context(), scope)
	if err != nil {
		return fail(c, err)
	}
	if history == nil {
		history = []models.Turn{}
	}
	return c.JSON(http.StatusOK, map[string]any{"history": history})
}

func (s *Server) chatReset(c echo.Context) error {
	if _, err := s.validated(c); err != nil {
		return fail(c, err)
	}
	scope, err := s.chatScope(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: err.Error()})
	}
	if err := s.engine.ResetConversation(c.Request().Context(), scope); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
