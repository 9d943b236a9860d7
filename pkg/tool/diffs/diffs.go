// Package diffs provides the find_relevant_diffs tool: retrieve recent changes similar to an
// issue, fetch their diffs, and let the judge pick the most relevant one.
package diffs

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/tool"
	"github.com/m-mizutani/culprit/pkg/usecase/change"
	"github.com/m-mizutani/culprit/pkg/usecase/judge"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultTopK  = 5
	maxDiffBytes = 30000
)

type Searcher interface {
	Search(ctx context.Context, query, indexName string, topK int) ([]*model.SearchResult, error)
}

type DiffGetter interface {
	GetDiffs(ctx context.Context, owner, repo string, ids []model.ChangeID) (map[model.ChangeID]*model.DiffRecord, error)
}

type Config struct {
	Owner string
	Repo  string
	Index string
	TopK  int
}

type Finder struct {
	searcher Searcher
	diffs    DiffGetter
	judge    judge.Judge
	cfg      Config
}

type Result struct {
	Verdict    model.Verdict         `json:"verdict"`
	Candidates []*model.SearchResult `json:"candidates"`
}

func NewFinder(searcher Searcher, diffs DiffGetter, j judge.Judge, cfg Config) *Finder {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Finder{searcher: searcher, diffs: diffs, judge: j, cfg: cfg}
}

// Find runs retrieve -> fetch diffs -> judge for one issue description.
func (x *Finder) Find(ctx context.Context, issue string) (*Result, error) {
	hits, err := x.searcher.Search(ctx, issue, x.cfg.Index, x.cfg.TopK)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to retrieve candidates")
	}

	ids := make([]model.ChangeID, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}

	diffs, err := x.diffs.GetDiffs(ctx, x.cfg.Owner, x.cfg.Repo, ids)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch candidate diffs")
	}

	candidates := make([]*model.Candidate, 0, len(hits))
	for _, hit := range hits {
		d, ok := diffs[hit.ID]
		if !ok {
			continue
		}
		url := hit.Metadata.URL
		if url == "" {
			url = fmt.Sprintf("https://github.com/%s/%s/pull/%d", x.cfg.Owner, x.cfg.Repo, hit.ID)
		}
		candidates = append(candidates, &model.Candidate{
			ID:   hit.ID,
			URL:  url,
			Diff: clip(change.Annotate(d.Text)),
		})
	}
	logging.From(ctx).Debug("judging candidates", "count", len(candidates))

	verdict, err := x.judge.Judge(ctx, issue, candidates)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to judge candidates")
	}

	return &Result{Verdict: verdict, Candidates: hits}, nil
}

func clip(s string) string {
	if len(s) <= maxDiffBytes {
		return s
	}
	end := maxDiffBytes
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end] + "\n... (diff truncated)"
}

type input struct {
	IssueDescription string `json:"issue_description" jsonschema:"description of the issue observed in production"`
}

// New exposes the finder as the find_relevant_diffs tool.
func New(finder *Finder) (tool.Tool, error) {
	return tool.Typed(tool.NameFindRelevantDiffs,
		"Find the recently merged pull request most relevant to an issue and explain the relevant lines of its diff.",
		"Call find_relevant_diffs with the issue description first. It searches pull requests merged in the last hours and returns the most relevant one with line references.",
		func(ctx context.Context, in input) (any, error) {
			if in.IssueDescription == "" {
				return nil, goerr.New("issue_description is required")
			}
			result, err := finder.Find(ctx, in.IssueDescription)
			if err != nil {
				return nil, err
			}
			return string(result.Verdict), nil
		})
}
