package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// GitHub is the subset of the GitHub REST API used to collect changes and their diffs.
type GitHub interface {
	ListPullRequests(ctx context.Context, input ListPullRequestsInput) (*PullRequestPage, error)
	GetCommitMessage(ctx context.Context, owner, repo, sha string) (string, error)
	GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error)
}

type ListPullRequestsInput struct {
	Owner   string
	Repo    string
	Page    int
	PerPage int
}

// PullRequestPage is one page of pull requests sorted by update time, newest first.
// NextPage is zero on the last page.
type PullRequestPage struct {
	PullRequests []*github.PullRequest
	NextPage     int
}

type GitHubClient struct {
	client *github.Client
}

type GitHubOption func(*githubConfig)

type githubConfig struct {
	baseURL   string
	transport http.RoundTripper
	timeout   time.Duration
}

// WithGitHubBaseURL points the client at a GitHub Enterprise API root or a test server.
func WithGitHubBaseURL(baseURL string) GitHubOption {
	return func(c *githubConfig) {
		c.baseURL = baseURL
	}
}

// WithGitHubTransport replaces the underlying round tripper. It is still wrapped by
// RetryTransport.
func WithGitHubTransport(rt http.RoundTripper) GitHubOption {
	return func(c *githubConfig) {
		c.transport = rt
	}
}

func WithGitHubTimeout(d time.Duration) GitHubOption {
	return func(c *githubConfig) {
		c.timeout = d
	}
}

func NewGitHub(token string, opts ...GitHubOption) (*GitHubClient, error) {
	cfg := &githubConfig{
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	httpClient := &http.Client{
		Transport: NewRetryTransport(cfg.transport),
		Timeout:   cfg.timeout,
	}

	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	if cfg.baseURL != "" {
		base := cfg.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, goerr.Wrap(model.ErrConfig, "invalid GitHub base URL",
				goerr.V("base_url", cfg.baseURL), goerr.V("cause", err.Error()))
		}
		client.BaseURL = u
	}

	return &GitHubClient{client: client}, nil
}

func (x *GitHubClient) ListPullRequests(ctx context.Context, input ListPullRequestsInput) (*PullRequestPage, error) {
	prs, resp, err := x.client.PullRequests.List(ctx, input.Owner, input.Repo, &github.PullRequestListOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			Page:    input.Page,
			PerPage: input.PerPage,
		},
	})
	if err != nil {
		return nil, classifyGitHubError(err, "failed to list pull requests",
			goerr.V("owner", input.Owner), goerr.V("repo", input.Repo), goerr.V("page", input.Page))
	}

	return &PullRequestPage{
		PullRequests: prs,
		NextPage:     resp.NextPage,
	}, nil
}

func (x *GitHubClient) GetCommitMessage(ctx context.Context, owner, repo, sha string) (string, error) {
	commit, _, err := x.client.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return "", classifyGitHubError(err, "failed to get commit",
			goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("sha", sha))
	}

	return commit.GetCommit().GetMessage(), nil
}

// GetPullRequestDiff fetches the unified diff of a pull request using the diff media type.
func (x *GitHubClient) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, _, err := x.client.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", classifyGitHubError(err, "failed to get pull request diff",
			goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("number", number))
	}

	return diff, nil
}

// classifyGitHubError maps a go-github error onto ErrAuth, ErrNotFound or ErrUpstream.
func classifyGitHubError(err error, msg string, opts ...goerr.Option) error {
	var (
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
		respErr  *github.ErrorResponse
	)

	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		opts = append(opts, goerr.V("cause", err.Error()))
		return goerr.Wrap(model.ErrUpstream, msg+": rate limited", opts...)

	case errors.As(err, &respErr) && respErr.Response != nil:
		status := respErr.Response.StatusCode
		opts = append(opts, goerr.V("status", status), goerr.V("cause", respErr.Message))
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return goerr.Wrap(model.ErrAuth, msg, opts...)
		case http.StatusNotFound:
			return goerr.Wrap(model.ErrNotFound, msg, opts...)
		default:
			return goerr.Wrap(model.ErrUpstream, msg, opts...)
		}
	}

	opts = append(opts, goerr.V("cause", err.Error()))
	return goerr.Wrap(model.ErrUpstream, msg, opts...)
}
