package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposcope/internal/core"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, 1000)
}

var testRepo = core.Repository{Owner: "octo", Name: "demo"}

func TestValidateToken(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"login":"octo","avatar_url":"http://a","html_url":"http://h"}`)
	}))

	user, err := c.ValidateToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "octo", user.Login)
}

func TestValidateToken_EmptyToken(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty token")
	}))

	_, err := c.ValidateToken(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrAuthInvalid)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status  int
		headers map[string]string
		want    error
	}{
		{http.StatusUnauthorized, nil, core.ErrAuthInvalid},
		{http.StatusNotFound, nil, core.ErrNotFound},
		{http.StatusTooManyRequests, nil, core.ErrRateLimited},
		{http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, core.ErrRateLimited},
	}

	for _, tc := range cases {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range tc.headers {
				w.Header().Set(k, v)
			}
			w.WriteHeader(tc.status)
		}))
		_, err := c.ValidateToken(context.Background(), "tok")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestListCommits_Paginates(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/octo/demo/commits", r.URL.Path)
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(commitPage(perPage, 0)))
		case "2":
			w.Write([]byte(commitPage(3, perPage)))
		default:
			t.Fatalf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))

	commits, err := c.ListCommits(context.Background(), "tok", testRepo, "")
	require.NoError(t, err)
	assert.Len(t, commits, perPage+3)
	assert.Equal(t, "sha-0", commits[0].SHA)
}

func commitPage(n, offset int) string {
	out := "["
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"sha":"sha-%d","commit":{"message":"msg %d"}}`, offset+i, offset+i)
	}
	return out + "]"
}

func TestGetCommitDiff_UsesDiffAccept(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, acceptDiff, r.Header.Get("Accept"))
		fmt.Fprint(w, "diff --git a/x b/x\n")
	}))

	diff, err := c.GetCommitDiff(context.Background(), "tok", testRepo, "abc")
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git")
}

func TestGetPullRequest(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/octo/demo/pulls/7", r.URL.Path)
		fmt.Fprint(w, `{"number":7,"title":"Add thing","body":"desc","state":"open","head":{"sha":"headsha"}}`)
	}))

	pr, err := c.GetPullRequest(context.Background(), "tok", testRepo, 7)
	require.NoError(t, err)
	assert.Equal(t, "headsha", pr.HeadSHA)
	assert.Equal(t, "Add thing", pr.Title)
}

func TestGetReadme_MissingIsEmpty(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	readme, err := c.GetReadme(context.Background(), "tok", testRepo)
	require.NoError(t, err)
	assert.Equal(t, "", readme)
}

func TestGetTree_BlobsOnly(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("recursive"))
		fmt.Fprint(w, `{"tree":[{"path":"a.go","type":"blob"},{"path":"dir","type":"tree"},{"path":"dir/b.go","type":"blob"}]}`)
	}))

	entries, err := c.GetTree(context.Background(), "tok", testRepo, "main")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.go", entries[0].Path)
	assert.Equal(t, "dir/b.go", entries[1].Path)
}

func TestTimeoutMapsToUpstreamTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, 20*time.Millisecond, 1000)

	_, err := c.ValidateToken(context.Background(), "tok")
	require.Error(t, err)
	if !errors.Is(err, core.ErrUpstreamTimeout) {
		t.Fatalf("expected upstream timeout, got %v", err)
	}
}

func TestPostIssueComment(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/repos/octo/demo/issues/7/comments", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"html_url":"http://github/comment/1"}`)
	}))

	url, err := c.PostIssueComment(context.Background(), "tok", testRepo, 7, "nice")
	require.NoError(t, err)
	assert.Equal(t, "http://github/comment/1", url)
}
