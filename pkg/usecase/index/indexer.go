package index

import (
	"context"
	"slices"

	"github.com/m-mizutani/culprit/pkg/adapter"
	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Indexer embeds change records and writes them into a vector index.
type Indexer struct {
	embedder  adapter.Embedder
	index     adapter.VectorIndex
	truncator *truncator
}

type IndexerOption func(*indexerConfig)

type indexerConfig struct {
	maxTokens int
}

// WithMaxTokens bounds the embedding text per record. Zero disables truncation.
func WithMaxTokens(n int) IndexerOption {
	return func(c *indexerConfig) {
		c.maxTokens = n
	}
}

func NewIndexer(embedder adapter.Embedder, index adapter.VectorIndex, opts ...IndexerOption) (*Indexer, error) {
	cfg := &indexerConfig{maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(cfg)
	}

	t, err := newTruncator(cfg.maxTokens)
	if err != nil {
		return nil, err
	}

	return &Indexer{
		embedder:  embedder,
		index:     index,
		truncator: t,
	}, nil
}

// Embed returns one vector per record, in input order.
func (x *Indexer) Embed(ctx context.Context, records []*model.ChangeRecord) ([]*model.EmbeddingVector, error) {
	if len(records) == 0 {
		return []*model.EmbeddingVector{}, nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		// state is stored as index metadata, so reject unknown ones before paying for embeddings
		if err := rec.State.Validate(); err != nil {
			return nil, goerr.Wrap(err, "cannot index record", goerr.V("id", rec.ID))
		}
		text, cut := x.truncator.truncate(rec.EmbeddingText())
		if cut {
			logging.From(ctx).Debug("embedding text truncated", "id", rec.ID)
		}
		texts[i] = text
	}

	values, err := x.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed records", goerr.V("count", len(records)))
	}
	if len(values) != len(records) {
		return nil, goerr.Wrap(model.ErrLengthMismatch, "embedder returned unexpected number of vectors",
			goerr.V("expected", len(records)), goerr.V("actual", len(values)))
	}

	dim := x.embedder.Dimension()
	vectors := make([]*model.EmbeddingVector, len(records))
	for i, rec := range records {
		if len(values[i]) != dim {
			return nil, goerr.Wrap(model.ErrDimensionMismatch, "embedding has unexpected dimension",
				goerr.V("id", rec.ID), goerr.V("expected", dim), goerr.V("actual", len(values[i])))
		}
		vectors[i] = &model.EmbeddingVector{
			ID:       rec.ID,
			Values:   values[i],
			Metadata: rec.Metadata(),
		}
	}
	return vectors, nil
}

// Upsert writes vectors into indexName, creating the index on first use. Writing the same id
// again overwrites it.
func (x *Indexer) Upsert(ctx context.Context, vectors []*model.EmbeddingVector, indexName string) error {
	if len(vectors) == 0 {
		return nil
	}

	if err := x.EnsureIndex(ctx, indexName); err != nil {
		return err
	}

	dim := x.embedder.Dimension()
	for _, v := range vectors {
		if len(v.Values) != dim {
			return goerr.Wrap(model.ErrDimensionMismatch, "vector does not match index dimension",
				goerr.V("id", v.ID), goerr.V("expected", dim), goerr.V("actual", len(v.Values)))
		}
	}

	if err := x.index.Upsert(ctx, indexName, vectors); err != nil {
		return goerr.Wrap(err, "failed to upsert vectors", goerr.V("index", indexName))
	}

	logging.From(ctx).Info("indexed changes", "index", indexName, "count", len(vectors))
	return nil
}

// EnsureIndex creates indexName with the embedder's dimension if it is not listed, and checks
// the dimension of an existing one.
func (x *Indexer) EnsureIndex(ctx context.Context, indexName string) error {
	names, err := x.index.ListIndexes(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list indexes")
	}

	dim := x.embedder.Dimension()
	if !slices.Contains(names, indexName) {
		if err := x.index.CreateIndex(ctx, indexName, dim); err != nil {
			return goerr.Wrap(err, "failed to create index", goerr.V("index", indexName))
		}
		return nil
	}

	actual, err := x.index.Dimension(ctx, indexName)
	if err != nil {
		return goerr.Wrap(err, "failed to get index dimension", goerr.V("index", indexName))
	}
	if actual != dim {
		return goerr.Wrap(model.ErrDimensionMismatch, "index dimension differs from embedder",
			goerr.V("index", indexName), goerr.V("index_dimension", actual), goerr.V("embedder_dimension", dim))
	}
	return nil
}
