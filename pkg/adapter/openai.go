package adapter

import (
	"context"
	"sort"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

type openAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

type OpenAIOption func(*openAIEmbedder, *[]option.RequestOption)

func WithOpenAIModel(name string) OpenAIOption {
	return func(x *openAIEmbedder, _ *[]option.RequestOption) {
		x.model = name
	}
}

// WithOpenAIBaseURL targets an OpenAI compatible endpoint.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(_ *openAIEmbedder, reqOpts *[]option.RequestOption) {
		*reqOpts = append(*reqOpts, option.WithBaseURL(baseURL))
	}
}

func NewOpenAIEmbedder(apiKey string, dimension int, opts ...OpenAIOption) (Embedder, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(model.ErrConfig, "OpenAI API key is required")
	}

	x := &openAIEmbedder{
		model:     defaultOpenAIEmbeddingModel,
		dimension: dimension,
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		opt(x, &reqOpts)
	}
	x.client = openai.NewClient(reqOpts...)

	return x, nil
}

func (x *openAIEmbedder) Dimension() int { return x.dimension }

func (x *openAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := x.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(x.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Dimensions: openai.Int(int64(x.dimension)),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embeddings", goerr.V("model", x.model), goerr.V("count", len(texts)))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, 0, len(data))
	for _, d := range data {
		v := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (x *openAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := x.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, goerr.Wrap(model.ErrLengthMismatch, "expected one query vector", goerr.V("actual", len(vectors)))
	}
	return vectors[0], nil
}
