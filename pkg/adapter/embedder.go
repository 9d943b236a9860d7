package adapter

import (
	"context"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Embedder turns texts into fixed-length vectors. Documents and queries may be embedded
// differently by the provider, but vectors from both share one space.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// DefaultDimension is the vector size of every index created by culprit.
const DefaultDimension = 1024

type geminiEmbedder struct {
	gemini    Gemini
	dimension int
}

func NewGeminiEmbedder(gemini Gemini, dimension int) Embedder {
	return &geminiEmbedder{gemini: gemini, dimension: dimension}
}

func (x *geminiEmbedder) Dimension() int { return x.dimension }

func (x *geminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return x.gemini.EmbedContents(ctx, texts, TaskRetrievalDocument, x.dimension)
}

func (x *geminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := x.gemini.EmbedContents(ctx, []string{text}, TaskRetrievalQuery, x.dimension)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, goerr.Wrap(model.ErrLengthMismatch, "expected one query vector", goerr.V("actual", len(vectors)))
	}
	return vectors[0], nil
}
