package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/soyeahso/docent/internal/config"
)

const githubAPIURL = "https://api.github.com"

// githubClient is the HTTP plumbing shared by the GitHub tools. With a
// token configured, requests go through an oauth2 transport; without one,
// the public unauthenticated API limits apply.
type githubClient struct {
	baseURL  string
	username string
	http     *http.Client
}

func newGitHubClient(cfg config.GitHubConfig) *githubClient {
	hc := &http.Client{Timeout: 15 * time.Second}
	if cfg.Token != "" {
		hc = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
		hc.Timeout = 15 * time.Second
	}
	return &githubClient{baseURL: githubAPIURL, username: cfg.Username, http: hc}
}

func (c *githubClient) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("github request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read github response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github %s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// NewGitHubTools builds the GitHub lookup tools sharing one API client.
func NewGitHubTools(cfg config.GitHubConfig) []Tool {
	c := newGitHubClient(cfg)
	return []Tool{
		&githubProfileTool{client: c},
		&githubReposTool{client: c},
		&githubCommitsTool{client: c},
	}
}

type githubProfileTool struct {
	client *githubClient
}

func (t *githubProfileTool) Name() string { return "github_profile" }

func (t *githubProfileTool) Description() string {
	return "Fetch a GitHub user profile (bio, follower counts, public repo count)."
}

func (t *githubProfileTool) InputSchema() string {
	return `{"type":"object","properties":{"username":{"type":"string","description":"GitHub username; defaults to the configured one"}}}`
}

func (t *githubProfileTool) Invoke(ctx context.Context, input string) (string, error) {
	var in struct {
		Username string `json:"username"`
	}
	if err := unmarshalInput(input, &in); err != nil {
		return "", err
	}
	user := t.client.username
	if in.Username != "" {
		user = in.Username
	}
	return t.client.get(ctx, "/users/"+user)
}

type githubReposTool struct {
	client *githubClient
}

func (t *githubReposTool) Name() string { return "github_repos" }

func (t *githubReposTool) Description() string {
	return "List public repositories for a GitHub user."
}

func (t *githubReposTool) InputSchema() string {
	return `{"type":"object","properties":{"username":{"type":"string","description":"GitHub username; defaults to the configured one"}}}`
}

func (t *githubReposTool) Invoke(ctx context.Context, input string) (string, error) {
	var in struct {
		Username string `json:"username"`
	}
	if err := unmarshalInput(input, &in); err != nil {
		return "", err
	}
	user := t.client.username
	if in.Username != "" {
		user = in.Username
	}
	return t.client.get(ctx, "/users/"+user+"/repos")
}

type githubCommitsTool struct {
	client *githubClient
}

func (t *githubCommitsTool) Name() string { return "github_commits" }

func (t *githubCommitsTool) Description() string {
	return "Get recent commits for one of a user's repositories."
}

func (t *githubCommitsTool) InputSchema() string {
	return `{"type":"object","required":["repo"],"properties":{"repo":{"type":"string","description":"Repository name"},"username":{"type":"string","description":"GitHub username; defaults to the configured one"},"limit":{"type":"integer","description":"Number of commits, default 5"}}}`
}

func (t *githubCommitsTool) Invoke(ctx context.Context, input string) (string, error) {
	var in struct {
		Username string `json:"username"`
		Repo     string `json:"repo"`
		Limit    int    `json:"limit"`
	}
	if err := unmarshalInput(input, &in); err != nil {
		return "", err
	}
	if in.Repo == "" {
		return "", fmt.Errorf("repo is required")
	}
	user := t.client.username
	if in.Username != "" {
		user = in.Username
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 5
	}
	return t.client.get(ctx, fmt.Sprintf("/repos/%s/%s/commits?per_page=%d", user, in.Repo, limit))
}

// unmarshalInput decodes a tool's JSON input, tolerating an absent one.
func unmarshalInput(input string, v any) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(input), v); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}
