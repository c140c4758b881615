package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/docent/internal/config"
)

func testGitHubClient(srv *httptest.Server) *githubClient {
	return &githubClient{
		baseURL:  srv.URL,
		username: "operator",
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

func TestGitHubProfileTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/operator", r.URL.Path)
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		w.Write([]byte(`{"login":"operator","public_repos":12}`))
	}))
	defer srv.Close()

	tool := &githubProfileTool{client: testGitHubClient(srv)}
	out, err := tool.Invoke(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, out, `"public_repos":12`)
}

func TestGitHubProfileToolUsernameOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/someone-else", r.URL.Path)
		w.Write([]byte(`{"login":"someone-else"}`))
	}))
	defer srv.Close()

	tool := &githubProfileTool{client: testGitHubClient(srv)}
	_, err := tool.Invoke(context.Background(), `{"username": "someone-else"}`)
	require.NoError(t, err)
}

func TestGitHubReposTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/operator/repos", r.URL.Path)
		w.Write([]byte(`[{"name":"docent"},{"name":"dotfiles"}]`))
	}))
	defer srv.Close()

	tool := &githubReposTool{client: testGitHubClient(srv)}
	out, err := tool.Invoke(context.Background(), "{}")
	require.NoError(t, err)
	assert.Contains(t, out, `"docent"`)
}

func TestGitHubCommitsTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/operator/docent/commits", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("per_page"))
		w.Write([]byte(`[{"sha":"abc123"}]`))
	}))
	defer srv.Close()

	tool := &githubCommitsTool{client: testGitHubClient(srv)}
	out, err := tool.Invoke(context.Background(), `{"repo": "docent", "limit": 3}`)
	require.NoError(t, err)
	assert.Contains(t, out, "abc123")
}

func TestGitHubCommitsToolRequiresRepo(t *testing.T) {
	// No request should go out; the client is never used.
	tool := &githubCommitsTool{client: &githubClient{baseURL: "http://unused", username: "operator", http: http.DefaultClient}}
	_, err := tool.Invoke(context.Background(), `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repo is required")
}

func TestGitHubCommitsToolDefaultLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	tool := &githubCommitsTool{client: testGitHubClient(srv)}
	_, err := tool.Invoke(context.Background(), `{"repo": "docent"}`)
	require.NoError(t, err)
}

func TestGitHubToolErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer srv.Close()

	tool := &githubProfileTool{client: testGitHubClient(srv)}
	_, err := tool.Invoke(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGitHubToolInvalidInput(t *testing.T) {
	tool := &githubProfileTool{client: &githubClient{baseURL: "http://unused", username: "operator", http: http.DefaultClient}}
	_, err := tool.Invoke(context.Background(), `{"username": 42}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tool input")
}

func TestNewGitHubToolsRegistersTrio(t *testing.T) {
	tools := NewGitHubTools(config.GitHubConfig{Username: "operator"})
	require.Len(t, tools, 3)

	names := make([]string, 0, 3)
	for _, tl := range tools {
		names = append(names, tl.Name())
	}
	assert.ElementsMatch(t, []string{"github_profile", "github_repos", "github_commits"}, names)
}

func TestPortfolioTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects", r.URL.Path)
		w.Write([]byte(`[{"title":"docent","stack":["go","redis"]}]`))
	}))
	defer srv.Close()

	tool := NewPortfolioTool(srv.URL + "/api/projects")
	assert.Equal(t, "portfolio_projects", tool.Name())

	out, err := tool.Invoke(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, out, `"docent"`)
}

func TestPortfolioToolErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tool := NewPortfolioTool(srv.URL)
	_, err := tool.Invoke(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
