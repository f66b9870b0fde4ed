// Package api exposes the engine over HTTP, mirroring the route layout
// the frontend already speaks: listing pass-throughs plus the analysis
// and chat endpoints. Access tokens travel as a query parameter.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/reposcope/internal/engine"
	"github.com/reposcope/internal/github"
)

// Server is the HTTP front of the engine.
type Server struct {
	echo   *echo.Echo
	port   int
	github *github.Client
	oauth  *github.OAuth
	engine *engine.Engine
}

// NewServer wires routes over the given collaborators.
func NewServer(port int, gh *github.Client, oauth *github.OAuth, eng *engine.Engine) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{echo: e, port: port, github: gh, oauth: oauth, engine: eng}
	s.setupRoutes()
	return s
}

// requestLogger tags every request with a uuid and logs its outcome
// through zerolog.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := uuid.NewString()
			c.Set("request_id", requestID)
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			log.Info().
				Str("request_id", requestID).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("elapsed", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	s.echo.GET("/login/", s.login)
	s.echo.GET("/user_info/", s.userInfo)
	s.echo.GET("/repo_list/", s.repoList)
	s.echo.GET("/repo_commit/repos/:owner/:repo", s.repoCommits)
	s.echo.GET("/branches/:owner/:repo", s.repoBranches)

	s.echo.GET("/pr/repos/:owner/:repo/pulls", s.pullRequestList)
	s.echo.GET("/pr/repos/:owner/:repo/pulls/:number", s.analyzePullRequest)
	s.echo.POST("/pr/repos/:owner/:repo/pulls/:number/comments", s.postPullRequestComment)

	s.echo.GET("/overview/repos/:owner/:repo", s.overview)
	s.echo.GET("/trends/repos/:owner/:repo/trends", s.trends)
	s.echo.POST("/diff/repos/:owner/:repo/commits/:sha", s.analyzeCommit)

	s.echo.POST("/chat/repos/:owner/:repo", s.chat)
	s.echo.GET("/chat/repos/:owner/:repo/history", s.chatHistory)
	s.echo.DELETE("/chat/repos/:owner/:repo/history", s.chatReset)
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until an interrupt, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()
	log.Info().Int("port", s.port).Msg("api server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
