package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PortfolioTool fetches the project list from the configured portfolio
// endpoint. The endpoint returns JSON and is passed through verbatim.
type PortfolioTool struct {
	url  string
	http *http.Client
}

func NewPortfolioTool(url string) *PortfolioTool {
	return &PortfolioTool{
		url:  url,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *PortfolioTool) Name() string { return "portfolio_projects" }

func (t *PortfolioTool) Description() string {
	return "Fetch the list of projects published on the portfolio site."
}

func (t *PortfolioTool) InputSchema() string {
	return `{"type":"object","properties":{}}`
}

func (t *PortfolioTool) Invoke(ctx context.Context, _ string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("portfolio request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read portfolio response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("portfolio %s: %d %s", t.url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
