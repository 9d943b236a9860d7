package change

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/policy"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const defaultPerPage = 100

// Collector gathers pull requests merged within a trailing window.
type Collector struct {
	github  adapter.GitHub
	policy  *policy.Engine
	perPage int
	now     func() time.Time
}

type CollectorOption func(*Collector)

// WithPolicy drops records excluded by the ingest policy.
func WithPolicy(engine *policy.Engine) CollectorOption {
	return func(c *Collector) {
		c.policy = engine
	}
}

func WithPerPage(n int) CollectorOption {
	return func(c *Collector) {
		c.perPage = n
	}
}

func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		c.now = now
	}
}

func NewCollector(gh adapter.GitHub, opts ...CollectorOption) *Collector {
	c := &Collector{
		github:  gh,
		perPage: defaultPerPage,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRecentChanges returns the pull requests of owner/repo that were updated within the last
// hoursAgo hours and are merged, each with the message of its merge commit. Pages are read
// newest first and reading stops at the first page without a recent pull request. Any failure
// of a list request discards what was read so far.
func (x *Collector) FetchRecentChanges(ctx context.Context, owner, repo string, hoursAgo int) ([]*model.ChangeRecord, error) {
	logger := logging.From(ctx)
	cutoff := x.now().Add(-time.Duration(hoursAgo) * time.Hour)

	var records []*model.ChangeRecord
	for page := 1; page > 0; {
		resp, err := x.github.ListPullRequests(ctx, adapter.ListPullRequestsInput{
			Owner:   owner,
			Repo:    repo,
			Page:    page,
			PerPage: x.perPage,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to fetch recent changes", goerr.V("page", page))
		}

		recent := 0
		for _, pr := range resp.PullRequests {
			if pr.GetUpdatedAt().Time.Before(cutoff) {
				continue
			}
			recent++
			if pr.MergedAt == nil {
				continue
			}
			records = append(records, toChangeRecord(pr))
		}
		logger.Debug("listed pull requests", "page", page, "count", len(resp.PullRequests), "recent", recent)

		if recent == 0 {
			break
		}
		page = resp.NextPage
	}

	for _, rec := range records {
		if rec.MergeCommitSHA == "" {
			continue
		}
		msg, err := x.github.GetCommitMessage(ctx, owner, repo, rec.MergeCommitSHA)
		if errors.Is(err, model.ErrNotFound) {
			logger.Warn("merge commit not found", "id", rec.ID, "sha", rec.MergeCommitSHA)
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to fetch merge commit", goerr.V("id", rec.ID))
		}
		rec.MergeMessage = msg
	}

	if x.policy != nil {
		filtered, err := x.policy.Filter(ctx, records)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to apply ingest policy")
		}
		records = filtered
	}

	logger.Info("collected recent changes", "owner", owner, "repo", repo, "count", len(records), "since", cutoff)
	return records, nil
}

func toChangeRecord(pr *github.PullRequest) *model.ChangeRecord {
	return &model.ChangeRecord{
		ID:             model.ChangeID(pr.GetNumber()),
		Title:          pr.GetTitle(),
		Body:           pr.GetBody(),
		State:          model.ChangeStateMerged,
		UpdatedAt:      pr.GetUpdatedAt().Time,
		URL:            pr.GetHTMLURL(),
		MergeCommitSHA: pr.GetMergeCommitSHA(),
	}
}
