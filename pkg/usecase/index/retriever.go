package index

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const DefaultRecencyWindow = 12 * time.Hour

// Retriever finds indexed changes similar to a free text query.
type Retriever struct {
	embedder adapter.Embedder
	index    adapter.VectorIndex
	window   time.Duration
	now      func() time.Time
}

type RetrieverOption func(*Retriever)

// WithRecencyWindow only returns changes updated within d before now. Zero disables the filter.
func WithRecencyWindow(d time.Duration) RetrieverOption {
	return func(x *Retriever) {
		x.window = d
	}
}

func WithClock(now func() time.Time) RetrieverOption {
	return func(x *Retriever) {
		x.now = now
	}
}

func NewRetriever(embedder adapter.Embedder, index adapter.VectorIndex, opts ...RetrieverOption) *Retriever {
	x := &Retriever{
		embedder: embedder,
		index:    index,
		window:   DefaultRecencyWindow,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Search returns at most topK changes ordered by descending similarity.
func (x *Retriever) Search(ctx context.Context, query, indexName string, topK int) ([]*model.SearchResult, error) {
	if topK <= 0 {
		return nil, goerr.New("topK must be greater than 0", goerr.V("top_k", topK))
	}

	vector, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}
	if len(vector) != x.embedder.Dimension() {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query vector has unexpected dimension",
			goerr.V("expected", x.embedder.Dimension()), goerr.V("actual", len(vector)))
	}

	input := adapter.QueryInput{
		Index:  indexName,
		Vector: vector,
		TopK:   topK,
	}
	if x.window > 0 {
		input.UpdatedSince = x.now().Add(-x.window)
	}

	results, err := x.index.Query(ctx, input)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search index", goerr.V("index", indexName))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}

	logging.From(ctx).Debug("searched index", "index", indexName, "top_k", topK, "hits", len(results), "since", input.UpdatedSince)
	return results, nil
}
