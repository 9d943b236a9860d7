package adapter

import (
	"context"

	"github.com/m-mizutani/culprit/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	// EmbedContents returns one vector per text, in input order.
	EmbedContents(ctx context.Context, texts []string, taskType string, dimension int) ([][]float32, error)
}

// Embedding task types of the Gemini API.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

type GeminiClient struct {
	client          *genai.Client
	apiKey          string
	generativeModel string
	embeddingModel  string
	embedBatchSize  int
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// WithGeminiAPIKey switches from Vertex AI to the Gemini API backend.
func WithGeminiAPIKey(apiKey string) GeminiOption {
	return func(g *GeminiClient) {
		g.apiKey = apiKey
	}
}

// NewGemini creates a client on Vertex AI (projectID, location) or, with WithGeminiAPIKey, on the
// Gemini API.
func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	g := &GeminiClient{
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
	}
	for _, opt := range opts {
		opt(g)
	}

	cfg := &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}
	// Vertex AI accepts a single instance per embedding request for gemini-embedding-001
	g.embedBatchSize = 1
	if g.apiKey != "" {
		cfg = &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		g.embedBatchSize = 100
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	g.client = client

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}
	return resp, nil
}

func (g *GeminiClient) EmbedContents(ctx context.Context, texts []string, taskType string, dimension int) ([][]float32, error) {
	dim := int32(dimension)
	config := &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dim,
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.embedBatchSize {
		end := min(start+g.embedBatchSize, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, config)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed content",
				goerr.V("model", g.embeddingModel), goerr.V("offset", start))
		}
		if len(resp.Embeddings) != end-start {
			return nil, goerr.Wrap(model.ErrLengthMismatch, "embedding response size differs from request",
				goerr.V("expected", end-start), goerr.V("actual", len(resp.Embeddings)))
		}

		for _, e := range resp.Embeddings {
			vectors = append(vectors, e.Values)
		}
	}

	return vectors, nil
}
