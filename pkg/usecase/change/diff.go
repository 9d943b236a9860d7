package change

import (
	"context"
	"sync"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sourcegraph/conc/pool"
)

// DiffFetcher downloads the unified diff of pull requests.
type DiffFetcher struct {
	github      adapter.GitHub
	concurrency int
}

type DiffFetcherOption func(*DiffFetcher)

// WithConcurrency fetches up to n diffs at a time. n <= 1 fetches sequentially.
func WithConcurrency(n int) DiffFetcherOption {
	return func(x *DiffFetcher) {
		x.concurrency = n
	}
}

func NewDiffFetcher(gh adapter.GitHub, opts ...DiffFetcherOption) *DiffFetcher {
	x := &DiffFetcher{
		github:      gh,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// GetDiffs returns the diff of every id. Any failure aborts the whole call with a typed error.
func (x *DiffFetcher) GetDiffs(ctx context.Context, owner, repo string, ids []model.ChangeID) (map[model.ChangeID]*model.DiffRecord, error) {
	diffs := make(map[model.ChangeID]*model.DiffRecord, len(ids))
	if len(ids) == 0 {
		return diffs, nil
	}

	if x.concurrency <= 1 {
		for _, id := range ids {
			rec, err := x.fetch(ctx, owner, repo, id)
			if err != nil {
				return nil, err
			}
			diffs[id] = rec
		}
		return diffs, nil
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(x.concurrency).WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			rec, err := x.fetch(ctx, owner, repo, id)
			if err != nil {
				return err
			}
			mu.Lock()
			diffs[id] = rec
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return diffs, nil
}

func (x *DiffFetcher) fetch(ctx context.Context, owner, repo string, id model.ChangeID) (*model.DiffRecord, error) {
	text, err := x.github.GetPullRequestDiff(ctx, owner, repo, int(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch diff", goerr.V("id", id))
	}
	logging.From(ctx).Debug("fetched diff", "id", id, "bytes", len(text))
	return &model.DiffRecord{ID: id, Text: text}, nil
}
