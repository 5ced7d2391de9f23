package codehost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/time/rate"
)

// GitHubConfig configures the GitHub adapter.
type GitHubConfig struct {
	// Token authenticates API calls. Empty means anonymous access.
	Token string
	// BaseURL overrides the API root (GitHub Enterprise, tests).
	BaseURL string
	// RequestsPerSecond throttles calls. Zero or less disables throttling.
	RequestsPerSecond float64
	// Timeout bounds each API request.
	Timeout time.Duration
}

// GitHub implements CodeHost against the GitHub REST API.
type GitHub struct {
	client  *github.Client
	limiter *rate.Limiter
}

// NewGitHub builds a GitHub adapter from cfg.
func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	client := github.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("codehost: parse base url: %w", err)
		}
		client.BaseURL = u
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &GitHub{client: client, limiter: limiter}, nil
}

// IsMerged asks GitHub whether ref has been merged. A 404 from the merge
// endpoint means "not merged" and is not an error.
func (g *GitHub) IsMerged(ctx context.Context, ref PRRef) (bool, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("codehost: rate limit wait: %w", err)
	}
	merged, _, err := g.client.PullRequests.IsMerged(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return false, fmt.Errorf("codehost: check %s: %w", ref, err)
	}
	return merged, nil
}
